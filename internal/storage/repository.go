package storage

import (
	"context"
	"time"

	"github.com/chatter-agent/internal/models"
)

// Repository defines the interface for chatter persistence.
//
// Persist deliberately returns counts instead of an error: it is the
// final stop before storage, and its callers depend on always getting a
// counts structure so one bad record cannot lose visibility into the
// rest of the batch.
type Repository interface {
	// EnsureSchema creates the chatter tables and indexes if missing.
	// Safe to call repeatedly.
	EnsureSchema(ctx context.Context) error

	// Persist writes records with on-conflict-do-nothing semantics on
	// (source, source_id). Duplicates count as Skipped, genuine write
	// failures as Errors; the batch always runs to completion.
	Persist(ctx context.Context, records []*models.ChatterRecord) models.IngestionCounts

	// RecentChatter returns stored records for the read path.
	RecentChatter(ctx context.Context, filter ChatterFilter) ([]*models.ChatterRecord, error)

	// ChatterSummary aggregates stored chatter for a ticker.
	ChatterSummary(ctx context.Context, ticker string, days int) (*Summary, error)

	// ActiveTickers returns distinct tickers of active companies.
	ActiveTickers(ctx context.Context) ([]string, error)

	// CompanyName returns the registered name for a ticker, or "" when
	// the ticker is not in the company registry.
	CompanyName(ctx context.Context, ticker string) (string, error)

	// Ping verifies connectivity with a trivial round-trip query.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}

// ChatterFilter defines filtering options for the chatter read path
type ChatterFilter struct {
	Ticker string
	Source string // optional filter by source
	Days   int    // lookback window; 0 means no window
	Limit  int
	Offset int
}

// DefaultChatterFilter returns a filter with sensible defaults
func DefaultChatterFilter(ticker string) ChatterFilter {
	return ChatterFilter{
		Ticker: ticker,
		Days:   7,
		Limit:  100,
	}
}

// Summary aggregates stored chatter for a ticker over a window
type Summary struct {
	Ticker                string         `json:"ticker"`
	TotalCount            int            `json:"total_count"`
	WindowDays            int            `json:"window_days"`
	Sources               map[string]int `json:"sources"`
	SentimentDistribution map[string]int `json:"sentiment_distribution"`
	AverageSentiment      *float64       `json:"average_sentiment"`
	NewestItem            *time.Time     `json:"newest_item"`
	OldestItem            *time.Time     `json:"oldest_item"`
}
