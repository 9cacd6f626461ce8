package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agscout/trapsync/internal/chunk"
	"github.com/agscout/trapsync/internal/database"
)

var (
	// ErrMissingRegion means the run was started without a region name.
	ErrMissingRegion = errors.New("region name is required")
	// ErrInvalidDateRange means from is after to.
	ErrInvalidDateRange = errors.New("invalid date range: from is after to")
	// ErrRegionNotFound means the region name matched nothing and
	// create-if-absent was not requested.
	ErrRegionNotFound = errors.New("region not found")
	// ErrBarrierTimeout means dispatched location chunks did not become
	// visible in the destination within the configured window.
	ErrBarrierTimeout = errors.New("timed out waiting for dispatched locations to become visible")
)

// SourceStore is the read surface of the legacy schema.
type SourceStore interface {
	TrapsWithCoordinates(ctx context.Context) ([]*database.SourceTrap, error)
	DetectionRecords(ctx context.Context) ([]*database.SourceRecord, error)
}

// DestStore is the read surface of the destination schema.
type DestStore interface {
	FindRegionByName(ctx context.Context, name string) (*database.Region, error)
	CreateRegion(ctx context.Context, name string) (*database.Region, error)
	LocationsByRegion(ctx context.Context, regionID int64, surveyYear *int) ([]*database.Location, error)
	ExistingCountKeys(ctx context.Context, regionID int64, from, to *time.Time) ([]database.CountKey, error)
}

// ChunkWriter applies or dispatches pending inserts in bounded chunks.
type ChunkWriter interface {
	WriteLocations(ctx context.Context, regionID int64, rows []database.NewLocation) (int, error)
	WriteTrapCounts(ctx context.Context, regionID int64, rows []database.NewTrapCount) (int, error)
}

// Options configures one reconciliation run. Built once by the caller
// and handed to the orchestrator at construction; nothing here is read
// from the environment mid-pipeline.
type Options struct {
	Region          string
	From, To        *time.Time
	ChunkSize       int
	DryRun          bool
	Synchronous     bool
	ScopeModel      bool
	CreateRegion    bool
	CurrentYearOnly bool
	MissingCount    MissingCountPolicy
	CreatedBy       string
	PreviewPath     string
	PreviewLimit    int
	BarrierTimeout  time.Duration
	BarrierPoll     time.Duration
}

// Validate reports configuration errors before anything is written.
func (o Options) Validate() error {
	if strings.TrimSpace(o.Region) == "" {
		return ErrMissingRegion
	}
	if o.From != nil && o.To != nil && o.From.After(*o.To) {
		return ErrInvalidDateRange
	}
	return nil
}

// Summary is the observable outcome of one run.
type Summary struct {
	RunID             string
	RegionID          int64
	RegionName        string
	TrapsRead         int
	ExistingLocations int
	NewLocations      int
	LocationChunks    int
	RecordsRead       int
	NewCounts         int
	CountChunks       int
	CountStats        CountStats
	DryRun            bool
	Elapsed           time.Duration
}

func (s *Summary) String() string {
	mode := "applied"
	if s.DryRun {
		mode = "dry-run"
	}
	return fmt.Sprintf(
		"run %s (%s): region=%q id=%d traps=%d locations new=%d/%d chunks=%d records=%d counts new=%d chunks=%d [%s] in %s",
		s.RunID, mode, s.RegionName, s.RegionID, s.TrapsRead, s.NewLocations,
		s.ExistingLocations+s.NewLocations, s.LocationChunks, s.RecordsRead,
		s.NewCounts, s.CountChunks, s.CountStats.String(), s.Elapsed.Round(time.Millisecond))
}

// Orchestrator sequences one full reconciliation run: resolve region,
// diff and write locations, rebuild the location map, diff and write
// counts.
type Orchestrator struct {
	source   SourceStore
	dest     DestStore
	writer   ChunkWriter
	resolver *PestModelResolver
	opts     Options
	now      func() time.Time
}

// NewOrchestrator wires a run. now may be nil for the wall clock.
func NewOrchestrator(source SourceStore, dest DestStore, writer ChunkWriter, resolver *PestModelResolver, opts Options, now func() time.Time) *Orchestrator {
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		source:   source,
		dest:     dest,
		writer:   writer,
		resolver: resolver,
		opts:     opts,
		now:      now,
	}
}

// Run executes the pipeline. Committed chunks are never rolled back on
// a later failure; a sequential re-run is self-healing because every
// insert is identity-checked first.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	start := o.now()

	if err := o.opts.Validate(); err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:  uuid.New().String(),
		DryRun: o.opts.DryRun,
	}

	region, err := o.resolveRegion(ctx)
	if err != nil {
		return nil, err
	}
	summary.RegionID = region.ID
	summary.RegionName = region.Name

	traps, err := o.source.TrapsWithCoordinates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read source traps: %w", err)
	}
	summary.TrapsRead = len(traps)

	locations, err := o.dest.LocationsByRegion(ctx, region.ID, o.yearScope())
	if err != nil {
		return nil, fmt.Errorf("failed to read destination locations: %w", err)
	}
	summary.ExistingLocations = len(locations)

	locRecon := NewLocationReconciler(region.ID, o.opts.CreatedBy, o.now)
	newLocations := locRecon.Diff(traps, LocationKeySet(locations))
	summary.NewLocations = len(newLocations)

	if o.opts.DryRun {
		return o.finishDryRun(ctx, summary, region, traps, locations, newLocations, start)
	}

	summary.LocationChunks, err = o.writer.WriteLocations(ctx, region.ID, newLocations)
	if err != nil {
		return nil, fmt.Errorf("failed to write locations: %w", err)
	}

	// Deferred writes land through the task queue; wait until every
	// dispatched location is visible before building the map the count
	// stage depends on. A fixed sleep is not a guarantee, this is.
	if !o.opts.Synchronous && len(newLocations) > 0 {
		if err := o.awaitLocations(ctx, region.ID, newLocations); err != nil {
			return nil, err
		}
	}

	locations, err = o.dest.LocationsByRegion(ctx, region.ID, o.yearScope())
	if err != nil {
		return nil, fmt.Errorf("failed to re-read destination locations: %w", err)
	}

	newCounts, stats, err := o.reconcileCounts(ctx, region.ID, traps, locations)
	if err != nil {
		return nil, err
	}
	summary.RecordsRead = stats.Total()
	summary.NewCounts = len(newCounts)
	summary.CountStats = stats

	summary.CountChunks, err = o.writer.WriteTrapCounts(ctx, region.ID, newCounts)
	if err != nil {
		return nil, fmt.Errorf("failed to write trap counts: %w", err)
	}

	summary.Elapsed = o.now().Sub(start)
	return summary, nil
}

func (o *Orchestrator) resolveRegion(ctx context.Context) (*database.Region, error) {
	region, err := o.dest.FindRegionByName(ctx, o.opts.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to look up region %q: %w", o.opts.Region, err)
	}
	if region != nil {
		return region, nil
	}
	if !o.opts.CreateRegion {
		return nil, fmt.Errorf("%w: %q", ErrRegionNotFound, o.opts.Region)
	}
	region, err = o.dest.CreateRegion(ctx, o.opts.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to create region %q: %w", o.opts.Region, err)
	}
	return region, nil
}

func (o *Orchestrator) yearScope() *int {
	if !o.opts.CurrentYearOnly {
		return nil
	}
	year := o.now().Year()
	return &year
}

func (o *Orchestrator) reconcileCounts(ctx context.Context, regionID int64, traps []*database.SourceTrap, locations []*database.Location) ([]database.NewTrapCount, CountStats, error) {
	records, err := o.source.DetectionRecords(ctx)
	if err != nil {
		return nil, CountStats{}, fmt.Errorf("failed to read source records: %w", err)
	}

	existing, err := o.dest.ExistingCountKeys(ctx, regionID, o.opts.From, o.opts.To)
	if err != nil {
		return nil, CountStats{}, fmt.Errorf("failed to read existing trap counts: %w", err)
	}

	recon := NewCountReconciler(CountReconcilerConfig{
		Resolver:    o.resolver,
		Traps:       database.TrapsByID(traps),
		LocationIDs: LocationKeyMap(locations),
		Existing:    existing,
		ScopeModel:  o.opts.ScopeModel,
		Missing:     o.opts.MissingCount,
		From:        o.opts.From,
		To:          o.opts.To,
		Now:         o.now,
	})

	return recon.Diff(ctx, records)
}

// finishDryRun computes the count candidates against existing locations
// only (dispatched inserts have no ids yet) and emits the preview
// artifact instead of writing.
func (o *Orchestrator) finishDryRun(ctx context.Context, summary *Summary, region *database.Region, traps []*database.SourceTrap, locations []*database.Location, newLocations []database.NewLocation, start time.Time) (*Summary, error) {
	newCounts, stats, err := o.reconcileCounts(ctx, region.ID, traps, locations)
	if err != nil {
		return nil, err
	}
	summary.RecordsRead = stats.Total()
	summary.NewCounts = len(newCounts)
	summary.CountStats = stats

	if o.opts.PreviewPath != "" {
		if err := chunk.WritePreview(o.opts.PreviewPath, o.opts.PreviewLimit, newLocations, newCounts); err != nil {
			// Preview is a convenience artifact, never fatal.
			fmt.Printf("Failed to write preview %s: %v\n", o.opts.PreviewPath, err)
		}
	}

	summary.Elapsed = o.now().Sub(start)
	return summary, nil
}

// awaitLocations polls the destination until every dispatched location
// key is visible, bounded by the configured timeout.
func (o *Orchestrator) awaitLocations(ctx context.Context, regionID int64, dispatched []database.NewLocation) error {
	expected := make([]string, 0, len(dispatched))
	for _, loc := range dispatched {
		expected = append(expected, LocationKey(loc.Name, loc.Lat, loc.Lng, loc.SurveyYear))
	}

	poll := o.opts.BarrierPoll
	if poll <= 0 {
		poll = 2 * time.Second
	}
	timeout := o.opts.BarrierTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		locations, err := o.dest.LocationsByRegion(ctx, regionID, o.yearScope())
		if err != nil {
			return fmt.Errorf("failed to poll destination locations: %w", err)
		}
		visible := LocationKeySet(locations)

		missing := 0
		for _, key := range expected {
			if _, ok := visible[key]; !ok {
				missing++
			}
		}
		if missing == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %d of %d still missing", ErrBarrierTimeout, missing, len(expected))
		}

		fmt.Printf("Waiting for %d dispatched locations to become visible...\n", missing)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
