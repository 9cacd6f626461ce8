package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agscout/trapsync/internal/database"
)

// Destination table identities for chunk tasks.
const (
	TableLocations  = "locations"
	TableTrapCounts = "trap_counts"
)

// ChunkTask is one dispatched insert chunk. Exactly one of Locations or
// Counts is populated, discriminated by Table. Delivery is
// at-least-once; the destination's identity indexes make replays
// row-safe.
type ChunkTask struct {
	TaskID       string                  `json:"task_id"`
	Table        string                  `json:"table"`
	RegionID     int64                   `json:"region_id,omitempty"`
	Locations    []database.NewLocation  `json:"locations,omitempty"`
	Counts       []database.NewTrapCount `json:"trap_counts,omitempty"`
	DispatchedAt time.Time               `json:"dispatched_at"`
}

// Rows returns the number of rows the task carries.
func (t *ChunkTask) Rows() int {
	if t.Table == TableLocations {
		return len(t.Locations)
	}
	return len(t.Counts)
}

// NewLocationTask wraps one location chunk.
func NewLocationTask(regionID int64, rows []database.NewLocation) *ChunkTask {
	return &ChunkTask{
		TaskID:       uuid.New().String(),
		Table:        TableLocations,
		RegionID:     regionID,
		Locations:    rows,
		DispatchedAt: time.Now().UTC(),
	}
}

// NewTrapCountTask wraps one trap-count chunk.
func NewTrapCountTask(regionID int64, rows []database.NewTrapCount) *ChunkTask {
	return &ChunkTask{
		TaskID:       uuid.New().String(),
		Table:        TableTrapCounts,
		RegionID:     regionID,
		Counts:       rows,
		DispatchedAt: time.Now().UTC(),
	}
}

// EncodeChunkTask encodes a ChunkTask to JSON.
func EncodeChunkTask(task *ChunkTask) ([]byte, error) {
	return json.Marshal(task)
}

// DecodeChunkTask decodes JSON to a ChunkTask and validates the table
// identity.
func DecodeChunkTask(data []byte) (*ChunkTask, error) {
	var task ChunkTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, err
	}
	if task.Table != TableLocations && task.Table != TableTrapCounts {
		return nil, fmt.Errorf("unknown chunk task table %q", task.Table)
	}
	return &task, nil
}
