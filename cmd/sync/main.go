package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agscout/trapsync/internal/cache"
	"github.com/agscout/trapsync/internal/chunk"
	"github.com/agscout/trapsync/internal/database"
	"github.com/agscout/trapsync/internal/queue"
	"github.com/agscout/trapsync/internal/reconcile"
	"github.com/agscout/trapsync/internal/timer"
	"github.com/agscout/trapsync/pkg/config"
)

// Exit statuses: 2 for bad input, 3 for region not found, 1 for any
// other failure.
const (
	exitBadInput = 2
	exitNotFound = 3
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var (
		regionName   = flag.String("region", "", "destination region name (required)")
		fromStr      = flag.String("from", "", "include records on or after this date (YYYY-MM-DD)")
		toStr        = flag.String("to", "", "include records before this date, exclusive (YYYY-MM-DD)")
		chunkSize    = flag.Int("chunk-size", cfg.Sync.ChunkSize, "rows per insert chunk")
		dryRun       = flag.Bool("dry-run", false, "compute the diff and write a preview file, no inserts")
		syncMode     = flag.Bool("sync", false, "apply inserts in-process instead of dispatching chunk tasks")
		scopeModel   = flag.Bool("scope-model", true, "include the model id in the trap-count duplicate key")
		createRegion = flag.Bool("create-region", false, "create the region if it does not exist")
		currentYear  = flag.Bool("current-year", false, "match locations against the current survey year only")
		missingCount = flag.String("missing-count", string(reconcile.MissingCountZero), "records without a detection count: zero or skip")
		previewPath  = flag.String("preview", cfg.Sync.PreviewPath, "dry-run preview file path")
		every        = flag.Duration("every", 0, "re-run on this interval instead of exiting (e.g. 24h)")
	)
	flag.Parse()

	opts, err := buildOptions(cfg, *regionName, *fromStr, *toStr, *chunkSize, *dryRun, *syncMode,
		*scopeModel, *createRegion, *currentYear, *missingCount, *previewPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitBadInput)
	}

	fmt.Println("Starting trap reconciliation...")

	sourceDB, err := database.ConnectSource(cfg.SourceDB.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to source database: %v", err)
	}
	defer sourceDB.Close()

	destDB, err := database.ConnectDest(cfg.DestDB.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to destination database: %v", err)
	}
	defer destDB.Close()
	fmt.Println("Connected to source and destination databases")

	resolver := reconcile.NewPestModelResolver(destDB, resolutionCache(cfg))

	var applier chunk.Applier
	if opts.Synchronous || opts.DryRun {
		applier = &chunk.DirectApplier{DB: destDB}
	} else {
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicTasks)
		defer producer.Close()
		applier = queue.NewTaskDispatcher(producer)
		fmt.Printf("Dispatching chunks to topic %s\n", cfg.Kafka.TopicTasks)
	}

	writer := chunk.NewWriter(opts.ChunkSize, applier)
	orchestrator := reconcile.NewOrchestrator(sourceDB, destDB, writer, resolver, opts, nil)

	runOnce := func() error {
		summary, err := orchestrator.Run(context.Background())
		if err != nil {
			return err
		}
		fmt.Println(summary)
		return nil
	}

	if *every > 0 {
		runForever(runOnce, *every)
		return
	}

	if err := runOnce(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		switch {
		case errors.Is(err, reconcile.ErrRegionNotFound):
			os.Exit(exitNotFound)
		case errors.Is(err, reconcile.ErrMissingRegion), errors.Is(err, reconcile.ErrInvalidDateRange):
			os.Exit(exitBadInput)
		default:
			os.Exit(1)
		}
	}
}

func buildOptions(cfg *config.Config, region, fromStr, toStr string, chunkSize int, dryRun, syncMode,
	scopeModel, createRegion, currentYear bool, missingCount, previewPath string) (reconcile.Options, error) {

	opts := reconcile.Options{
		Region:          region,
		ChunkSize:       chunkSize,
		DryRun:          dryRun,
		Synchronous:     syncMode,
		ScopeModel:      scopeModel,
		CreateRegion:    createRegion,
		CurrentYearOnly: currentYear,
		CreatedBy:       cfg.Sync.CreatedBy,
		PreviewPath:     previewPath,
		PreviewLimit:    cfg.Sync.PreviewLimit,
		BarrierTimeout:  cfg.Sync.BarrierTimeout,
		BarrierPoll:     cfg.Sync.BarrierPoll,
	}

	switch reconcile.MissingCountPolicy(missingCount) {
	case reconcile.MissingCountZero, reconcile.MissingCountSkip:
		opts.MissingCount = reconcile.MissingCountPolicy(missingCount)
	default:
		return opts, fmt.Errorf("invalid -missing-count value %q (want zero or skip)", missingCount)
	}

	var err error
	if opts.From, err = parseDate(fromStr); err != nil {
		return opts, fmt.Errorf("invalid -from date: %w", err)
	}
	if opts.To, err = parseDate(toStr); err != nil {
		return opts, fmt.Errorf("invalid -to date: %w", err)
	}

	return opts, opts.Validate()
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// resolutionCache connects the optional Redis resolution cache. The
// reconciler works without it, so a failed ping just disables caching.
func resolutionCache(cfg *config.Config) reconcile.ResolutionCache {
	if cfg.Redis.Addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		fmt.Printf("Redis unavailable, running without resolution cache: %v\n", err)
		return nil
	}

	fmt.Println("Connected to Redis resolution cache")
	return cache.NewModelCache(client, cfg.Sync.CacheTTL)
}

// runForever reschedules the run after each completion. Runs never
// overlap within this process; cross-process exclusion stays with the
// operator.
func runForever(runOnce func() error, interval time.Duration) {
	scheduler := timer.NewScheduler()
	scheduler.Start()
	defer scheduler.Stop()

	var scheduleNext func(at time.Time)
	scheduleNext = func(at time.Time) {
		fmt.Printf("Next reconciliation run scheduled for: %s\n", at.Format("2006-01-02 15:04:05"))
		scheduler.Schedule("reconcile", at, func() {
			fmt.Println("\n--- Running Reconciliation ---")
			if err := runOnce(); err != nil {
				log.Printf("Reconciliation failed: %v\n", err)
			}
			fmt.Println("--- Reconciliation Complete ---")

			scheduleNext(time.Now().Add(interval))
		})
	}

	scheduleNext(time.Now())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
}
