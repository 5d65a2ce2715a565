package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chatter-agent/internal/config"
	"github.com/chatter-agent/pkg/logger"
)

// SchedulerState is a point-in-time snapshot of the background worker.
// Snapshots are copies: reading state never blocks a running cycle.
type SchedulerState struct {
	Running         bool             `json:"running"`
	IntervalSeconds int              `json:"interval_seconds"`
	RunCount        int              `json:"run_count"`
	ErrorCount      int              `json:"error_count"`
	TotalInserted   int              `json:"total_inserted"`
	LastRunAt       *time.Time       `json:"last_run_at,omitempty"`
	LastResult      *AggregateResult `json:"last_result,omitempty"`
}

// Scheduler runs periodic ingestion cycles in a single worker.
// Cycles never overlap: a tick that fires while the previous cycle is
// still in flight is skipped, so a slow window cannot stack redundant
// fetches against already-slow upstreams.
type Scheduler struct {
	orch *Orchestrator
	cfg  config.IngestionConfig
	log  *logger.Logger

	mu       sync.Mutex
	cron     *cron.Cron
	cancel   context.CancelFunc
	running  bool
	inFlight bool
	wg       sync.WaitGroup
	state    SchedulerState
	onCycle  func(ctx context.Context, result *AggregateResult)
}

var (
	sharedOnce sync.Once
	shared     *Scheduler
)

// SharedScheduler returns the process-wide scheduler, creating it on
// first call. Later calls ignore their arguments and return the same
// handle, so every entrypoint observes one worker.
func SharedScheduler(orch *Orchestrator, cfg config.IngestionConfig, log *logger.Logger) *Scheduler {
	sharedOnce.Do(func() {
		shared = NewScheduler(orch, cfg, log)
	})
	return shared
}

// NewScheduler creates an independent scheduler (tests use this to
// avoid the process-wide singleton)
func NewScheduler(orch *Orchestrator, cfg config.IngestionConfig, log *logger.Logger) *Scheduler {
	return &Scheduler{
		orch: orch,
		cfg:  cfg,
		log:  log.WithComponent("scheduler"),
	}
}

// SetOnCycle registers an observer invoked after each completed cycle.
// Must be called before Start.
func (s *Scheduler) SetOnCycle(fn func(ctx context.Context, result *AggregateResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCycle = fn
}

// Start launches the periodic worker. Idempotent: a second call on a
// running scheduler logs a warning and changes nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Warn().Msg("Scheduler already running; ignoring duplicate start")
		return nil
	}

	interval := s.cfg.IntervalSeconds
	if interval <= 0 {
		interval = 300
	}

	workerCtx, cancel := context.WithCancel(ctx)

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %ds", interval), func() {
		s.runCycle(workerCtx)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to schedule ingestion job: %w", err)
	}

	s.cron = c
	s.cancel = cancel
	s.running = true
	s.state.IntervalSeconds = interval

	c.Start()

	// First cycle runs immediately rather than waiting one interval.
	// Tracked so Stop can join it; cron's stop context only covers
	// cycles launched by ticks.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCycle(workerCtx)
	}()

	s.log.Info().Int("interval_seconds", interval).Msg("Scheduler started")
	return nil
}

// Stop halts the worker, waiting for any in-flight cycle with a
// bounded timeout. Safe to call on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	c := s.cron
	s.cron = nil
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	stopCtx := c.Stop()
	done := make(chan struct{})
	go func() {
		<-stopCtx.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		s.log.Warn().Msg("Timed out waiting for in-flight cycle during shutdown")
	}

	s.log.Info().Msg("Scheduler stopped")
}

// Status returns a snapshot of the scheduler state
func (s *Scheduler) Status() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state
	snapshot.Running = s.running
	if snapshot.IntervalSeconds == 0 {
		snapshot.IntervalSeconds = s.cfg.IntervalSeconds
	}
	return snapshot
}

// RunOnce runs a single ingestion cycle synchronously, outside the
// periodic schedule. Returns nil when a scheduled cycle is already
// in flight.
func (s *Scheduler) RunOnce(ctx context.Context) *AggregateResult {
	return s.runCycle(ctx)
}

func (s *Scheduler) runCycle(ctx context.Context) *AggregateResult {
	if ctx.Err() != nil {
		return nil
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		s.log.Warn().Msg("Previous cycle still in flight; skipping this tick")
		return nil
	}
	s.inFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	result := s.orch.RunCycle(ctx)

	now := time.Now().UTC()
	s.mu.Lock()
	s.state.RunCount++
	s.state.ErrorCount += result.Counts.Errors
	s.state.TotalInserted += result.Counts.Inserted
	s.state.LastRunAt = &now
	s.state.LastResult = result
	observer := s.onCycle
	s.mu.Unlock()

	if observer != nil {
		observer(ctx, result)
	}

	return result
}
