package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"github.com/chatter-agent/internal/config"
	"github.com/chatter-agent/internal/ingest"
	"github.com/chatter-agent/internal/sentiment"
	"github.com/chatter-agent/internal/source"
	"github.com/chatter-agent/internal/source/alphavantage"
	"github.com/chatter-agent/internal/source/googlenews"
	"github.com/chatter-agent/internal/source/reddit"
	"github.com/chatter-agent/internal/source/rssfeeds"
	"github.com/chatter-agent/internal/source/stocktwits"
	"github.com/chatter-agent/internal/source/yahoo"
	"github.com/chatter-agent/internal/storage/migrate"
	"github.com/chatter-agent/internal/storage/sqldb"
	"github.com/chatter-agent/internal/tracker"
	"github.com/chatter-agent/pkg/logger"
	"github.com/chatter-agent/pkg/ratelimit"
)

// Options controls the bootstrap sequence
type Options struct {
	ConfigPath     string
	StartScheduler bool
}

// Result is the assembled application. Cached after the first
// successful Bootstrap; later calls return the same instance.
type Result struct {
	Config       *config.Config
	Log          *logger.Logger
	Repo         *sqldb.Repository
	Manager      *source.Manager
	Orchestrator *ingest.Orchestrator
	Scheduler    *ingest.Scheduler

	// SchedulerStarted is false when the scheduler failed to start and
	// the process is serving in degraded (on-demand only) mode.
	SchedulerStarted bool
	MigrationSteps   []string
}

var (
	mu     sync.Mutex
	cached *Result
)

// Bootstrap initializes the application in strict order: configuration,
// storage, migrations and schema, then the scheduler. The first three
// are fatal; a scheduler failure degrades to on-demand-only operation
// instead of killing the process. Idempotent: repeated calls return the
// cached result.
func Bootstrap(ctx context.Context, opts Options) (*Result, error) {
	mu.Lock()
	defer mu.Unlock()

	if cached != nil {
		return cached, nil
	}

	// Step 1: configuration
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	blog := log.WithComponent("bootstrap")
	blog.Info().Msg("Configuration loaded")

	// Step 2: storage
	repo, err := sqldb.New(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	blog.Info().Str("driver", cfg.Database.Driver).Msg("Database connected")

	// Step 3: migrations, then schema
	runner := migrate.New(repo.DB(), log)
	migrated, steps, err := runner.Run(ctx)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	if migrated {
		blog.Info().Strs("steps", steps).Msg("Migrations applied")
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	// Step 4: sources, orchestrator, scheduler
	manager := BuildManager(cfg, log)
	pipeline := &source.Pipeline{
		Repo:     repo,
		Enricher: sentiment.New(log),
		Log:      log,
	}
	orch := ingest.NewOrchestrator(manager, pipeline, repo, cfg.Ingestion, log)
	sched := ingest.SharedScheduler(orch, cfg.Ingestion, log)

	// Optional run-log tracker; never load-bearing
	if cfg.Tracker.Available() {
		trk, err := tracker.New(ctx, cfg.Tracker, log)
		if err != nil {
			blog.Warn().Err(err).Msg("Run tracker unavailable; continuing without it")
		} else {
			if err := trk.Initialize(ctx); err != nil {
				blog.Warn().Err(err).Msg("Run tracker sheet initialization failed; continuing without it")
			} else {
				sched.SetOnCycle(func(ctx context.Context, result *ingest.AggregateResult) {
					if err := trk.RecordCycle(ctx, result); err != nil {
						log.WithComponent("sheets-tracker").Warn().Err(err).Msg("Failed to record cycle")
					}
				})
			}
		}
	}

	result := &Result{
		Config:         cfg,
		Log:            log,
		Repo:           repo,
		Manager:        manager,
		Orchestrator:   orch,
		Scheduler:      sched,
		MigrationSteps: steps,
	}

	if opts.StartScheduler {
		if err := sched.Start(ctx); err != nil {
			// Degraded mode: on-demand ingestion still works
			blog.Warn().Err(err).Msg("Scheduler failed to start; continuing without background ingestion")
		} else {
			result.SchedulerStarted = true
		}
	}

	cached = result
	return cached, nil
}

// Reset clears the cached result (tests only)
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cached = nil
}

// BuildManager registers every source that is enabled and usable with
// the current configuration. Key-gated sources are silently absent
// without their key.
func BuildManager(cfg *config.Config, log *logger.Logger) *source.Manager {
	limiter := ratelimit.NewDefaultLimiter()
	timeout := cfg.Ingestion.HTTPTimeout

	manager := source.NewManager()
	if cfg.Sources.GoogleNews.Enabled {
		manager.Register(googlenews.New(cfg.Sources.GoogleNews, limiter, timeout, log))
	}
	if cfg.Sources.Yahoo.Enabled {
		manager.Register(yahoo.New(cfg.Sources.Yahoo, limiter, timeout, log))
	}
	if cfg.Sources.RSS.Enabled && len(cfg.Sources.RSS.Feeds) > 0 {
		manager.Register(rssfeeds.New(cfg.Sources.RSS, limiter, timeout, log))
	}
	if cfg.Sources.Reddit.Enabled && len(cfg.Sources.Reddit.Subreddits) > 0 {
		manager.Register(reddit.New(cfg.Sources.Reddit, limiter, timeout, log))
	}
	if cfg.Sources.Stocktwits.Enabled {
		manager.Register(stocktwits.New(cfg.Sources.Stocktwits, limiter, timeout, log))
	}
	if cfg.Sources.AlphaVantage.Available() {
		manager.Register(alphavantage.New(cfg.Sources.AlphaVantage, limiter, timeout, log))
	}

	log.WithComponent("bootstrap").Info().
		Strs("sources", manager.Names()).
		Msg("Registered chatter sources")

	return manager
}
