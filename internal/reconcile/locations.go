package reconcile

import (
	"time"

	"github.com/agscout/trapsync/internal/database"
)

// LocationReconciler diffs source traps against existing destination
// locations by identity key and produces the pending inserts. Pure
// transformation; writing is the chunk writer's job.
type LocationReconciler struct {
	regionID  int64
	createdBy string
	now       func() time.Time
}

// NewLocationReconciler creates a reconciler for one region.
func NewLocationReconciler(regionID int64, createdBy string, now func() time.Time) *LocationReconciler {
	if now == nil {
		now = time.Now
	}
	return &LocationReconciler{regionID: regionID, createdBy: createdBy, now: now}
}

// Diff partitions traps into already-present and new by identity key
// and returns the new ones as pending inserts, source order preserved.
// Traps that cannot form a valid key are excluded entirely, and two
// source traps sharing a key yield a single insert.
func (lr *LocationReconciler) Diff(traps []*database.SourceTrap, existing map[string]struct{}) []database.NewLocation {
	now := lr.now()

	var pending []database.NewLocation
	seen := make(map[string]struct{}, len(traps))

	for _, t := range traps {
		key, ok := trapKey(t, now)
		if !ok {
			continue
		}
		if _, present := existing[key]; present {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		pending = append(pending, database.NewLocation{
			Name:            trapDisplayName(t),
			Lat:             roundCoord(*t.Lat),
			Lng:             roundCoord(*t.Lng),
			SurveyYear:      trapSurveyYear(t, now),
			ContourRegionID: lr.regionID,
			CreatedBy:       lr.createdBy,
		})
	}

	return pending
}
