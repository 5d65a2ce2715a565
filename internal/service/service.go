package service

import (
	"context"
	"fmt"

	"github.com/chatter-agent/internal/ingest"
	"github.com/chatter-agent/internal/models"
	"github.com/chatter-agent/internal/storage"
	"github.com/chatter-agent/pkg/logger"
)

// Status is the closed set of response outcomes
type Status string

const (
	StatusSuccess Status = "success"
	StatusNoData  Status = "no_data"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// Response is the uniform envelope returned by every operation.
// Operations never return Go errors: failures become StatusError with
// a message, so callers branch on Status alone.
type Response struct {
	Data    interface{} `json:"data,omitempty"`
	Status  Status      `json:"status"`
	Message string      `json:"message,omitempty"`
}

// Success builds a success response
func Success(data interface{}, message string) Response {
	return Response{Data: data, Status: StatusSuccess, Message: message}
}

// NoData builds a no-data response
func NoData(message string) Response {
	return Response{Status: StatusNoData, Message: message}
}

// Partial builds a partial-success response
func Partial(data interface{}, message string) Response {
	return Response{Data: data, Status: StatusPartial, Message: message}
}

// Error builds an error response
func Error(message string) Response {
	return Response{Status: StatusError, Message: message}
}

// Service is the operation facade over ingestion and the read path
type Service struct {
	orch  *ingest.Orchestrator
	sched *ingest.Scheduler
	repo  storage.Repository
	log   *logger.Logger
}

// New creates the service facade
func New(orch *ingest.Orchestrator, sched *ingest.Scheduler, repo storage.Repository, log *logger.Logger) *Service {
	return &Service{
		orch:  orch,
		sched: sched,
		repo:  repo,
		log:   log.WithComponent("service"),
	}
}

// IngestTicker runs one ingestion pass for a single ticker
func (s *Service) IngestTicker(ctx context.Context, ticker string, days int) Response {
	ticker = models.NormalizeTicker(ticker)
	if ticker == "" {
		return Error("ticker is required")
	}
	return s.ingestionResponse(s.orch.IngestForTickers(ctx, []string{ticker}, days))
}

// IngestTickerSource runs one ingestion pass for a single ticker
// restricted to one named source
func (s *Service) IngestTickerSource(ctx context.Context, ticker, sourceName string, days int) Response {
	ticker = models.NormalizeTicker(ticker)
	if ticker == "" {
		return Error("ticker is required")
	}
	result, err := s.orch.IngestSourceForTicker(ctx, sourceName, ticker, days)
	if err != nil {
		return Error(err.Error())
	}
	return s.ingestionResponse(result)
}

// IngestTickers runs one ingestion pass for a set of tickers
func (s *Service) IngestTickers(ctx context.Context, tickers []string, days int) Response {
	if len(tickers) == 0 {
		return Error("at least one ticker is required")
	}
	return s.ingestionResponse(s.orch.IngestForTickers(ctx, tickers, days))
}

// EnsureTickerIngested guarantees at-least-once ingestion for a ticker
func (s *Service) EnsureTickerIngested(ctx context.Context, ticker string, days int) Response {
	ticker = models.NormalizeTicker(ticker)
	if ticker == "" {
		return Error("ticker is required")
	}

	result := s.orch.EnsureTickerIngested(ctx, ticker, days)
	if result.AlreadyIngested {
		return Success(result, fmt.Sprintf("%s already ingested this session", ticker))
	}
	if result.Result != nil && result.Result.Counts.Errors > 0 && result.Result.Counts.Inserted > 0 {
		return Partial(result, "ingestion completed with source errors")
	}
	if result.Result != nil && result.Result.Counts.Errors > 0 && result.Result.Counts.Inserted == 0 {
		return Error("ingestion failed for all sources")
	}
	return Success(result, fmt.Sprintf("ingested %s", ticker))
}

// ActiveTickers returns the current working set of tickers
func (s *Service) ActiveTickers(ctx context.Context) Response {
	tickers := s.orch.ActiveTickers(ctx)
	if len(tickers) == 0 {
		return NoData("no active tickers configured or registered")
	}
	return Success(tickers, fmt.Sprintf("%d active tickers", len(tickers)))
}

// SchedulerStatus returns a snapshot of the background worker
func (s *Service) SchedulerStatus(ctx context.Context) Response {
	return Success(s.sched.Status(), "")
}

// RecentChatter returns stored records for a ticker
func (s *Service) RecentChatter(ctx context.Context, filter storage.ChatterFilter) Response {
	filter.Ticker = models.NormalizeTicker(filter.Ticker)
	if filter.Ticker == "" {
		return Error("ticker is required")
	}

	records, err := s.repo.RecentChatter(ctx, filter)
	if err != nil {
		s.log.Error().Err(err).Str("ticker", filter.Ticker).Msg("Read path failed")
		return Error("failed to load chatter: " + err.Error())
	}
	if len(records) == 0 {
		return NoData(fmt.Sprintf("no chatter stored for %s", filter.Ticker))
	}
	return Success(records, fmt.Sprintf("%d records", len(records)))
}

// ChatterSummary returns aggregate statistics for a ticker
func (s *Service) ChatterSummary(ctx context.Context, ticker string, days int) Response {
	ticker = models.NormalizeTicker(ticker)
	if ticker == "" {
		return Error("ticker is required")
	}

	summary, err := s.repo.ChatterSummary(ctx, ticker, days)
	if err != nil {
		s.log.Error().Err(err).Str("ticker", ticker).Msg("Summary query failed")
		return Error("failed to summarize chatter: " + err.Error())
	}
	if summary.TotalCount == 0 {
		return NoData(fmt.Sprintf("no chatter stored for %s", ticker))
	}
	return Success(summary, "")
}

// ingestionResponse maps cycle counts onto the envelope:
// inserts with source errors is partial, errors without inserts is
// error, nothing fetched anywhere is no_data.
func (s *Service) ingestionResponse(result *ingest.AggregateResult) Response {
	c := result.Counts
	switch {
	case c.Errors > 0 && c.Inserted > 0:
		return Partial(result, fmt.Sprintf("inserted %d with %d source errors", c.Inserted, c.Errors))
	case c.Errors > 0:
		return Error(fmt.Sprintf("%d source errors, nothing inserted", c.Errors))
	case c.Fetched == 0:
		return NoData("no chatter returned by any source")
	default:
		return Success(result, fmt.Sprintf("inserted %d, skipped %d duplicates", c.Inserted, c.Skipped))
	}
}
