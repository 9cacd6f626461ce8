package chunk

import (
	"context"
	"fmt"

	"github.com/agscout/trapsync/internal/database"
	"github.com/agscout/trapsync/internal/protocol"
)

// DefaultSize is the chunk size used when the caller passes nothing.
const DefaultSize = 500

// Split partitions rows into contiguous chunks of at most size rows,
// preserving order. size is coerced to at least 1; concatenating the
// result reproduces the input.
func Split[T any](rows []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	if len(rows) == 0 {
		return nil
	}

	chunks := make([][]T, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}

// Applier applies one chunk task: either directly against the
// destination database or by dispatching it to the task queue.
type Applier interface {
	ApplyChunk(ctx context.Context, task *protocol.ChunkTask) error
}

// Writer splits insert batches into chunks and hands each chunk to its
// applier. A failed chunk halts the writer; chunks already applied stay
// committed, which is safe because every row is identity-checked on
// insert.
type Writer struct {
	size    int
	applier Applier
}

// NewWriter creates a writer. size is coerced to at least 1; zero or
// negative selects DefaultSize.
func NewWriter(size int, applier Applier) *Writer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Writer{size: size, applier: applier}
}

// WriteLocations applies a pending-location batch in chunks and returns
// the number of chunks applied.
func (w *Writer) WriteLocations(ctx context.Context, regionID int64, rows []database.NewLocation) (int, error) {
	chunks := Split(rows, w.size)
	for i, c := range chunks {
		task := protocol.NewLocationTask(regionID, c)
		if err := w.applier.ApplyChunk(ctx, task); err != nil {
			return i, fmt.Errorf("location chunk %d/%d failed: %w", i+1, len(chunks), err)
		}
	}
	return len(chunks), nil
}

// WriteTrapCounts applies a pending-count batch in chunks and returns
// the number of chunks applied.
func (w *Writer) WriteTrapCounts(ctx context.Context, regionID int64, rows []database.NewTrapCount) (int, error) {
	chunks := Split(rows, w.size)
	for i, c := range chunks {
		task := protocol.NewTrapCountTask(regionID, c)
		if err := w.applier.ApplyChunk(ctx, task); err != nil {
			return i, fmt.Errorf("trap-count chunk %d/%d failed: %w", i+1, len(chunks), err)
		}
	}
	return len(chunks), nil
}

// DirectApplier applies chunk tasks in-process against the destination
// database (the synchronous mode).
type DirectApplier struct {
	DB *database.DestDB
}

// ApplyChunk executes the chunk's insert immediately.
func (a *DirectApplier) ApplyChunk(ctx context.Context, task *protocol.ChunkTask) error {
	switch task.Table {
	case protocol.TableLocations:
		return a.DB.InsertLocations(ctx, task.Locations)
	case protocol.TableTrapCounts:
		return a.DB.InsertTrapCounts(ctx, task.Counts)
	default:
		return fmt.Errorf("unknown chunk task table %q", task.Table)
	}
}
