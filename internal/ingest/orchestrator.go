package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chatter-agent/internal/config"
	"github.com/chatter-agent/internal/models"
	"github.com/chatter-agent/internal/source"
	"github.com/chatter-agent/internal/storage"
	"github.com/chatter-agent/pkg/logger"
)

// TickerResult aggregates all per-source outcomes for one ticker
type TickerResult struct {
	Ticker  string                   `json:"ticker"`
	Results []source.IngestionResult `json:"results"`
	Counts  models.IngestionCounts   `json:"counts"`
}

// AggregateResult is the outcome of one full ingestion cycle
type AggregateResult struct {
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Tickers    []TickerResult         `json:"tickers"`
	Counts     models.IngestionCounts `json:"counts"`
}

// EnsureResult is the outcome of an on-demand ingestion request
type EnsureResult struct {
	Ticker          string           `json:"ticker"`
	AlreadyIngested bool             `json:"already_ingested"`
	Result          *AggregateResult `json:"result,omitempty"`
}

// Orchestrator drives ingestion cycles across registered sources.
// A single orchestrator is shared by the scheduler worker and on-demand
// callers; the ingested-ticker set makes first-sight ingestion happen
// exactly once per ticker per process lifetime.
type Orchestrator struct {
	manager  *source.Manager
	pipeline *source.Pipeline
	repo     storage.Repository
	cfg      config.IngestionConfig
	log      *logger.Logger

	mu       sync.Mutex
	ingested map[string]bool
}

// NewOrchestrator creates an ingestion orchestrator
func NewOrchestrator(manager *source.Manager, pipeline *source.Pipeline, repo storage.Repository, cfg config.IngestionConfig, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		manager:  manager,
		pipeline: pipeline,
		repo:     repo,
		cfg:      cfg,
		log:      log.WithComponent("orchestrator"),
		ingested: make(map[string]bool),
	}
}

// ActiveTickers resolves the working set of tickers for a cycle:
// the configured list first, then distinct active companies from the
// registry. An empty result is valid and only warned about, so a fresh
// deployment idles instead of crashing.
func (o *Orchestrator) ActiveTickers(ctx context.Context) []string {
	if len(o.cfg.Tickers) > 0 {
		return o.cfg.Tickers
	}

	tickers, err := o.repo.ActiveTickers(ctx)
	if err != nil {
		o.log.Warn().Err(err).Msg("Failed to load tickers from company registry")
		return nil
	}
	if len(tickers) == 0 {
		o.log.Warn().Msg("No active tickers configured or registered; cycle will be empty")
	}
	return tickers
}

// IngestForTickers runs one ingestion pass over the given tickers.
// Every ticker runs against every registered source; failures stay
// confined to their (ticker, source) cell.
func (o *Orchestrator) IngestForTickers(ctx context.Context, tickers []string, lookbackDays int) *AggregateResult {
	if lookbackDays <= 0 {
		lookbackDays = o.cfg.LookbackDays
	}
	until := time.Now().UTC()
	since := until.AddDate(0, 0, -lookbackDays)

	agg := &AggregateResult{
		StartedAt: until,
		Tickers:   make([]TickerResult, 0, len(tickers)),
	}

	for _, ticker := range tickers {
		ticker = models.NormalizeTicker(ticker)
		if ticker == "" {
			continue
		}
		if ctx.Err() != nil {
			o.log.Warn().Err(ctx.Err()).Msg("Cycle cancelled")
			break
		}

		companyName, err := o.repo.CompanyName(ctx, ticker)
		if err != nil {
			o.log.Warn().Err(err).Str("ticker", ticker).Msg("Company lookup failed")
		}

		tr := TickerResult{Ticker: ticker}
		for _, src := range o.manager.Sources() {
			result := o.pipeline.Ingest(ctx, src, ticker, companyName, since, until)
			tr.Results = append(tr.Results, result)
			tr.Counts.Add(result.Counts)
		}
		agg.Tickers = append(agg.Tickers, tr)
		agg.Counts.Add(tr.Counts)

		o.markIngested(ticker)
	}

	agg.FinishedAt = time.Now().UTC()

	o.log.Info().
		Int("tickers", len(agg.Tickers)).
		Int("fetched", agg.Counts.Fetched).
		Int("inserted", agg.Counts.Inserted).
		Int("skipped", agg.Counts.Skipped).
		Int("errors", agg.Counts.Errors).
		Dur("elapsed", agg.FinishedAt.Sub(agg.StartedAt)).
		Msg("Ingestion cycle complete")

	return agg
}

// IngestSourceForTicker runs one ingestion pass for a single ticker
// against one named source. Used by the CLI's --source filter.
func (o *Orchestrator) IngestSourceForTicker(ctx context.Context, sourceName, ticker string, lookbackDays int) (*AggregateResult, error) {
	src := o.manager.ByName(sourceName)
	if src == nil {
		return nil, fmt.Errorf("unknown source %q (registered: %v)", sourceName, o.manager.Names())
	}
	if lookbackDays <= 0 {
		lookbackDays = o.cfg.LookbackDays
	}
	ticker = models.NormalizeTicker(ticker)
	until := time.Now().UTC()
	since := until.AddDate(0, 0, -lookbackDays)

	result := o.pipeline.Ingest(ctx, src, ticker, "", since, until)

	tr := TickerResult{Ticker: ticker, Results: []source.IngestionResult{result}}
	tr.Counts.Add(result.Counts)

	agg := &AggregateResult{
		StartedAt:  until,
		FinishedAt: time.Now().UTC(),
		Tickers:    []TickerResult{tr},
	}
	agg.Counts.Add(tr.Counts)
	o.markIngested(ticker)
	return agg, nil
}

// RunCycle discovers the working set and ingests it
func (o *Orchestrator) RunCycle(ctx context.Context) *AggregateResult {
	return o.IngestForTickers(ctx, o.ActiveTickers(ctx), o.cfg.LookbackDays)
}

// EnsureTickerIngested guarantees a ticker has been ingested at least
// once in this process. The first call for a ticker runs a synchronous
// bounded-lookback ingest under a deadline; subsequent calls return
// immediately with AlreadyIngested set. Duplicate records are impossible
// either way - this gate only saves redundant fetch work.
func (o *Orchestrator) EnsureTickerIngested(ctx context.Context, ticker string, days int) *EnsureResult {
	ticker = models.NormalizeTicker(ticker)

	o.mu.Lock()
	if o.ingested[ticker] {
		o.mu.Unlock()
		return &EnsureResult{Ticker: ticker, AlreadyIngested: true}
	}
	// Claim before releasing the lock so concurrent callers for the
	// same ticker do not both fetch.
	o.ingested[ticker] = true
	o.mu.Unlock()

	timeout := o.cfg.OnDemandTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	o.log.Info().Str("ticker", ticker).Msg("First sight of ticker; running on-demand ingestion")

	result := o.IngestForTickers(ctx, []string{ticker}, days)
	return &EnsureResult{Ticker: ticker, Result: result}
}

// HasIngested reports whether a ticker was already ingested this process
func (o *Orchestrator) HasIngested(ticker string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ingested[models.NormalizeTicker(ticker)]
}

func (o *Orchestrator) markIngested(ticker string) {
	o.mu.Lock()
	o.ingested[ticker] = true
	o.mu.Unlock()
}
