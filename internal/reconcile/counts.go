package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agscout/trapsync/internal/database"
)

// MissingCountPolicy selects how records without a detection count are
// handled. Both behaviors exist in the field; zero is the default so a
// row is written rather than data silently dropped.
type MissingCountPolicy string

const (
	MissingCountZero MissingCountPolicy = "zero"
	MissingCountSkip MissingCountPolicy = "skip"
)

// recordedAtLayouts are the date formats accepted from the legacy
// recorded_at text column, tried in order.
var recordedAtLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// CountStats is the per-reason breakdown of one count-reconciliation
// pass. Every input record lands in exactly one bucket.
type CountStats struct {
	NoTrap        int
	NoDate        int
	BadDateFormat int
	OutOfRange    int
	NoModel       int
	NoCount       int
	NoLocation    int
	AlreadyExists int
	Added         int
}

// Total returns the number of records accounted for.
func (s CountStats) Total() int {
	return s.NoTrap + s.NoDate + s.BadDateFormat + s.OutOfRange +
		s.NoModel + s.NoCount + s.NoLocation + s.AlreadyExists + s.Added
}

func (s CountStats) String() string {
	return fmt.Sprintf(
		"added=%d already_exists=%d no_trap=%d no_date=%d bad_date_format=%d out_of_range=%d no_model=%d no_count=%d no_location=%d",
		s.Added, s.AlreadyExists, s.NoTrap, s.NoDate, s.BadDateFormat, s.OutOfRange, s.NoModel, s.NoCount, s.NoLocation)
}

// CountReconciler diffs source detection records against existing
// destination trap-count rows and produces the pending inserts plus the
// skip-reason statistics.
type CountReconciler struct {
	resolver    *PestModelResolver
	traps       map[int64]*database.SourceTrap
	locationIDs map[string]int64
	existing    map[string]struct{}
	scopeModel  bool
	missing     MissingCountPolicy
	from, to    *time.Time
	now         func() time.Time
}

// CountReconcilerConfig carries the inputs of one reconciliation pass.
type CountReconcilerConfig struct {
	Resolver    *PestModelResolver
	Traps       map[int64]*database.SourceTrap
	LocationIDs map[string]int64
	Existing    []database.CountKey
	ScopeModel  bool
	Missing     MissingCountPolicy
	From, To    *time.Time
	Now         func() time.Time
}

// NewCountReconciler creates a reconciler for one pass.
func NewCountReconciler(cfg CountReconcilerConfig) *CountReconciler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	missing := cfg.Missing
	if missing == "" {
		missing = MissingCountZero
	}

	existing := make(map[string]struct{}, len(cfg.Existing))
	for _, k := range cfg.Existing {
		existing[countKey(k.LocationID, k.ModelID, k.SurveyDate, cfg.ScopeModel)] = struct{}{}
	}

	return &CountReconciler{
		resolver:    cfg.Resolver,
		traps:       cfg.Traps,
		locationIDs: cfg.LocationIDs,
		existing:    existing,
		scopeModel:  cfg.ScopeModel,
		missing:     missing,
		from:        cfg.From,
		to:          cfg.To,
		now:         now,
	}
}

// Diff walks the records in order and emits the pending trap-count
// inserts. Skips are counted, never fatal; only lookup-store failures
// abort the pass.
func (cr *CountReconciler) Diff(ctx context.Context, records []*database.SourceRecord) ([]database.NewTrapCount, CountStats, error) {
	var (
		pending []database.NewTrapCount
		stats   CountStats
	)
	emitted := make(map[string]struct{})
	now := cr.now()

	for _, rec := range records {
		var trap *database.SourceTrap
		if rec.TrapID != nil {
			trap = cr.traps[*rec.TrapID]
		}
		if trap == nil {
			stats.NoTrap++
			continue
		}

		if rec.RecordedAt == nil || strings.TrimSpace(*rec.RecordedAt) == "" {
			stats.NoDate++
			continue
		}
		recordedAt, err := parseRecordedAt(*rec.RecordedAt)
		if err != nil {
			stats.BadDateFormat++
			continue
		}

		// Range filter: [from, to), to exclusive.
		if cr.from != nil && recordedAt.Before(*cr.from) {
			stats.OutOfRange++
			continue
		}
		if cr.to != nil && !recordedAt.Before(*cr.to) {
			stats.OutOfRange++
			continue
		}

		modelID, ok, err := cr.resolver.Resolve(ctx, rec.PestName)
		if err != nil {
			return nil, stats, fmt.Errorf("failed to resolve pest name: %w", err)
		}
		if !ok {
			stats.NoModel++
			continue
		}

		count := 0
		if rec.DetectionCount != nil {
			count = *rec.DetectionCount
		} else if cr.missing == MissingCountSkip {
			stats.NoCount++
			continue
		}

		locKey, ok := trapKey(trap, now)
		if !ok {
			stats.NoLocation++
			continue
		}
		locationID, ok := cr.locationIDs[locKey]
		if !ok {
			stats.NoLocation++
			continue
		}

		surveyDate := recordedAt.Format("2006-01-02")

		key := countKey(locationID, modelID, surveyDate, cr.scopeModel)
		if _, present := cr.existing[key]; present {
			stats.AlreadyExists++
			continue
		}
		if _, dup := emitted[key]; dup {
			stats.AlreadyExists++
			continue
		}
		emitted[key] = struct{}{}

		pending = append(pending, database.NewTrapCount{
			LocationID: locationID,
			ModelID:    modelID,
			SurveyDate: surveyDate,
			TrapCount:  count,
		})
		stats.Added++
	}

	return pending, stats, nil
}

func parseRecordedAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range recordedAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized recorded_at value %q", raw)
}

// countKey builds the duplicate-check key. The model id participates
// only in the model-scoped variant.
func countKey(locationID, modelID int64, surveyDate string, scopeModel bool) string {
	if scopeModel {
		return fmt.Sprintf("%d|%d|%s", locationID, modelID, surveyDate)
	}
	return fmt.Sprintf("%d|%s", locationID, surveyDate)
}
