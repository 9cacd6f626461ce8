package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/agscout/trapsync/internal/database"
)

func i64Ptr(v int64) *int64 { return &v }

func testTrap() *database.SourceTrap {
	return &database.SourceTrap{
		ID:         1,
		TrapID:     strPtr("T1"),
		Lat:        f64Ptr(10.0),
		Lng:        f64Ptr(20.0),
		SurveyYear: intPtr(2026),
	}
}

func testCountConfig(cfg CountReconcilerConfig) CountReconcilerConfig {
	if cfg.Resolver == nil {
		cfg.Resolver = NewPestModelResolver(&fakeCardStore{cards: testCards()}, nil)
	}
	if cfg.Traps == nil {
		trap := testTrap()
		cfg.Traps = map[int64]*database.SourceTrap{trap.ID: trap}
	}
	if cfg.LocationIDs == nil {
		cfg.LocationIDs = map[string]int64{
			LocationKey("T1", 10.0, 20.0, 2026): 101,
		}
	}
	if cfg.Now == nil {
		cfg.Now = fixedNow
	}
	cfg.ScopeModel = true
	return cfg
}

func TestCountDiff_AddsRecord(t *testing.T) {
	cr := NewCountReconciler(testCountConfig(CountReconcilerConfig{}))

	records := []*database.SourceRecord{
		{ID: 1, TrapID: i64Ptr(1), PestName: strPtr("Navel Orangeworm"), RecordedAt: strPtr("2026-06-15 08:30:00"), DetectionCount: intPtr(5)},
	}

	pending, stats, err := cr.Diff(context.Background(), records)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if stats.Added != 1 {
		t.Fatalf("Expected 1 added, got stats %s", stats)
	}
	got := pending[0]
	if got.LocationID != 101 || got.ModelID != 3 || got.SurveyDate != "2026-06-15" || got.TrapCount != 5 {
		t.Errorf("Unexpected pending count: %+v", got)
	}
}

func TestCountDiff_SkipReasons(t *testing.T) {
	orphan := &database.SourceTrap{ID: 2, TrapID: strPtr("T9"), Lat: f64Ptr(99.0), Lng: f64Ptr(99.0)}
	cfg := testCountConfig(CountReconcilerConfig{})
	cfg.Traps[orphan.ID] = orphan
	cr := NewCountReconciler(cfg)

	records := []*database.SourceRecord{
		{ID: 1, PestName: strPtr("Navel Orangeworm"), RecordedAt: strPtr("2026-06-15")},                       // no trap link
		{ID: 2, TrapID: i64Ptr(99), PestName: strPtr("Navel Orangeworm"), RecordedAt: strPtr("2026-06-15")},   // unknown trap
		{ID: 3, TrapID: i64Ptr(1), PestName: strPtr("Navel Orangeworm")},                                      // no date
		{ID: 4, TrapID: i64Ptr(1), PestName: strPtr("Navel Orangeworm"), RecordedAt: strPtr("15/06/2026")},    // bad date
		{ID: 5, TrapID: i64Ptr(1), PestName: strPtr("Unknown Bug"), RecordedAt: strPtr("2026-06-15")},         // no model
		{ID: 6, TrapID: i64Ptr(2), PestName: strPtr("Navel Orangeworm"), RecordedAt: strPtr("2026-06-15")},    // no location match
		{ID: 7, TrapID: i64Ptr(1), PestName: strPtr("Navel Orangeworm"), RecordedAt: strPtr("2026-06-15"), DetectionCount: intPtr(2)}, // added
	}

	pending, stats, err := cr.Diff(context.Background(), records)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if stats.NoTrap != 2 {
		t.Errorf("Expected 2 no-trap, got %d", stats.NoTrap)
	}
	if stats.NoDate != 1 {
		t.Errorf("Expected 1 no-date, got %d", stats.NoDate)
	}
	if stats.BadDateFormat != 1 {
		t.Errorf("Expected 1 bad-date-format, got %d", stats.BadDateFormat)
	}
	if stats.NoModel != 1 {
		t.Errorf("Expected 1 no-model, got %d", stats.NoModel)
	}
	if stats.NoLocation != 1 {
		t.Errorf("Expected 1 no-location, got %d", stats.NoLocation)
	}
	if stats.Added != 1 || len(pending) != 1 {
		t.Errorf("Expected 1 added, got %d (pending %d)", stats.Added, len(pending))
	}
	if stats.Total() != len(records) {
		t.Errorf("Expected every record accounted for: total %d, records %d", stats.Total(), len(records))
	}
}

func TestCountDiff_MissingCountDefaultsToZero(t *testing.T) {
	cr := NewCountReconciler(testCountConfig(CountReconcilerConfig{Missing: MissingCountZero}))

	records := []*database.SourceRecord{
		{ID: 1, TrapID: i64Ptr(1), PestName: strPtr("Navel Orangeworm"), RecordedAt: strPtr("2026-06-15")},
	}

	pending, stats, err := cr.Diff(context.Background(), records)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if stats.Added != 1 {
		t.Fatalf("Expected 1 added, got stats %s", stats)
	}
	if pending[0].TrapCount != 0 {
		t.Errorf("Expected trap count 0, got %d", pending[0].TrapCount)
	}
}

func TestCountDiff_MissingCountSkipPolicy(t *testing.T) {
	cr := NewCountReconciler(testCountConfig(CountReconcilerConfig{Missing: MissingCountSkip}))

	records := []*database.SourceRecord{
		{ID: 1, TrapID: i64Ptr(1), PestName: strPtr("Navel Orangeworm"), RecordedAt: strPtr("2026-06-15")},
	}

	pending, stats, err := cr.Diff(context.Background(), records)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if stats.NoCount != 1 || len(pending) != 0 {
		t.Errorf("Expected 1 no-count and no pending rows, got stats %s, pending %d", stats, len(pending))
	}
}

func TestCountDiff_DateRange(t *testing.T) {
	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	cr := NewCountReconciler(testCountConfig(CountReconcilerConfig{From: &from, To: &to}))

	records := []*database.SourceRecord{
		{ID: 1, TrapID: i64Ptr(1), PestName: strPtr("Navel Orangeworm"), RecordedAt: strPtr("2026-05-31 23:59:59"), DetectionCount: intPtr(1)}, // before from
		{ID: 2, TrapID: i64Ptr(1), PestName: strPtr("Navel Orangeworm"), RecordedAt: strPtr("2026-06-01 00:00:00"), DetectionCount: intPtr(1)}, // exactly from: included
		{ID: 3, TrapID: i64Ptr(1), PestName: strPtr("Navel Orangeworm"), RecordedAt: strPtr("2026-07-01 00:00:00"), DetectionCount: intPtr(1)}, // exactly to: excluded
	}

	pending, stats, err := cr.Diff(context.Background(), records)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if stats.OutOfRange != 2 {
		t.Errorf("Expected 2 out-of-range, got %d", stats.OutOfRange)
	}
	if len(pending) != 1 || pending[0].SurveyDate != "2026-06-01" {
		t.Errorf("Expected only the 2026-06-01 record, got %+v", pending)
	}
}

func TestCountDiff_AlreadyExists(t *testing.T) {
	cfg := testCountConfig(CountReconcilerConfig{})
	cfg.Existing = []database.CountKey{
		{LocationID: 101, ModelID: 3, SurveyDate: "2026-06-15"},
	}
	cr := NewCountReconciler(cfg)

	records := []*database.SourceRecord{
		{ID: 1, TrapID: i64Ptr(1), PestName: strPtr("Navel Orangeworm"), RecordedAt: strPtr("2026-06-15 10:00:00"), DetectionCount: intPtr(4)},
		// Same identity inside the same run
		{ID: 2, TrapID: i64Ptr(1), PestName: strPtr("Navel Orangeworm"), RecordedAt: strPtr("2026-06-16 10:00:00"), DetectionCount: intPtr(4)},
		{ID: 3, TrapID: i64Ptr(1), PestName: strPtr("Navel Orangeworm"), RecordedAt: strPtr("2026-06-16 15:00:00"), DetectionCount: intPtr(9)},
	}

	pending, stats, err := cr.Diff(context.Background(), records)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if stats.AlreadyExists != 2 {
		t.Errorf("Expected 2 already-exists, got %d", stats.AlreadyExists)
	}
	if len(pending) != 1 || pending[0].SurveyDate != "2026-06-16" || pending[0].TrapCount != 4 {
		t.Errorf("Expected one 2026-06-16 row with count 4, got %+v", pending)
	}
}

func TestCountDiff_UnscopedDuplicateCheck(t *testing.T) {
	cfg := testCountConfig(CountReconcilerConfig{})
	cfg.ScopeModel = false
	// Existing row for a different model on the same location and date
	cfg.Existing = []database.CountKey{
		{LocationID: 101, ModelID: 99, SurveyDate: "2026-06-15"},
	}
	cr := NewCountReconciler(cfg)

	records := []*database.SourceRecord{
		{ID: 1, TrapID: i64Ptr(1), PestName: strPtr("Navel Orangeworm"), RecordedAt: strPtr("2026-06-15"), DetectionCount: intPtr(4)},
	}

	pending, stats, err := cr.Diff(context.Background(), records)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if stats.AlreadyExists != 1 || len(pending) != 0 {
		t.Errorf("Expected the unscoped check to treat the row as existing, got stats %s", stats)
	}
}
