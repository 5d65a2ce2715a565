package source

import (
	"context"
	"strings"
	"time"

	"github.com/chatter-agent/internal/models"
	"github.com/chatter-agent/internal/storage"
	"github.com/chatter-agent/pkg/logger"
)

// RawItem is a source-specific payload before normalization
type RawItem map[string]interface{}

// ChatterSource defines the interface for market chatter sources.
//
// Fetch must not propagate transient failures to the caller's cycle: a
// dead source returns an error that the pipeline logs and counts, so one
// broken source degrades its own counts instead of aborting the ticker.
// Items without a stable identifier are discarded during Normalize.
type ChatterSource interface {
	// Name returns the unique source name (e.g. "google_news")
	Name() string

	// Type returns the source type (news or social)
	Type() string

	// Fetch retrieves raw items for a ticker within the window
	Fetch(ctx context.Context, ticker, companyName string, since, until time.Time) ([]RawItem, error)

	// Normalize converts raw items into canonical records. Items whose
	// identity cannot be derived are dropped, not errored.
	Normalize(items []RawItem, ticker, companyName string) ([]*models.ChatterRecord, error)
}

// Enricher fills missing sentiment fields on normalized records
type Enricher interface {
	Enrich(records []*models.ChatterRecord)
}

// Waiter is the slice of the shared rate limiter the adapters need
type Waiter interface {
	Wait(ctx context.Context, name string) error
}

// IngestionResult contains the per-source outcome of one ingestion
type IngestionResult struct {
	Source   string                 `json:"source"`
	Ticker   string                 `json:"ticker"`
	Counts   models.IngestionCounts `json:"counts"`
	Messages []string               `json:"messages,omitempty"`
}

// Success reports whether the ingestion completed without errors
func (r IngestionResult) Success() bool {
	return r.Counts.Errors == 0
}

// Pipeline composes the shared fetch -> normalize -> enrich -> persist
// flow. Composition lives here rather than in each adapter, so every
// source shares one failure policy.
type Pipeline struct {
	Repo     storage.Repository
	Enricher Enricher // optional
	Log      *logger.Logger
}

// Ingest runs the full pipeline for one source and one ticker
func (p *Pipeline) Ingest(ctx context.Context, src ChatterSource, ticker, companyName string, since, until time.Time) IngestionResult {
	ticker = models.NormalizeTicker(ticker)
	result := IngestionResult{Source: src.Name(), Ticker: ticker}
	log := p.Log.WithSource(src.Type(), src.Name()).WithTicker(ticker)

	raw, err := src.Fetch(ctx, ticker, companyName, since, until)
	if err != nil {
		// Transient source failure: counted and logged, never propagated
		log.Warn().Err(err).Msg("Fetch failed")
		result.Counts.Errors++
		result.Messages = append(result.Messages, "fetch: "+err.Error())
		return result
	}
	result.Counts.Fetched = len(raw)
	if len(raw) == 0 {
		result.Messages = append(result.Messages, "no data returned from source")
		return result
	}

	records, err := src.Normalize(raw, ticker, companyName)
	if err != nil {
		log.Warn().Err(err).Msg("Normalize failed")
		result.Counts.Errors++
		result.Messages = append(result.Messages, "normalize: "+err.Error())
		return result
	}

	// Items without a stable identity were dropped during Normalize.
	// A deliberate skip, not an error.
	if dropped := len(raw) - len(records); dropped > 0 {
		result.Counts.Dropped = dropped
		log.Debug().Int("dropped", dropped).Msg("Dropped items without stable identifier")
	}

	if p.Enricher != nil {
		p.Enricher.Enrich(records)
	}

	counts := p.Repo.Persist(ctx, records)
	result.Counts.Inserted = counts.Inserted
	result.Counts.Skipped = counts.Skipped
	result.Counts.Errors += counts.Errors

	// Either a fully-duplicate window (benign) or a normalization bug
	// dropping everything; the trend over many cycles tells them apart.
	if result.Counts.Fetched > 0 && result.Counts.Inserted == 0 {
		log.Warn().
			Int("fetched", result.Counts.Fetched).
			Int("dropped", result.Counts.Dropped).
			Int("skipped", result.Counts.Skipped).
			Msg("Zero new records from source")
	}

	log.Info().
		Int("fetched", result.Counts.Fetched).
		Int("inserted", result.Counts.Inserted).
		Int("skipped", result.Counts.Skipped).
		Int("dropped", result.Counts.Dropped).
		Int("errors", result.Counts.Errors).
		Msg("Ingestion complete")

	return result
}

// Manager manages the set of registered chatter sources.
// It is built once at startup from configuration; credential-gated
// sources are simply never registered when their key is absent.
type Manager struct {
	sources []ChatterSource
}

// NewManager creates a new source manager
func NewManager() *Manager {
	return &Manager{
		sources: make([]ChatterSource, 0),
	}
}

// Register adds a source to the manager
func (m *Manager) Register(source ChatterSource) {
	m.sources = append(m.sources, source)
}

// Sources returns all registered sources
func (m *Manager) Sources() []ChatterSource {
	return m.sources
}

// ByName returns a source by name, or nil if not registered
func (m *Manager) ByName(name string) ChatterSource {
	for _, s := range m.sources {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// ByType returns all sources of a given type
func (m *Manager) ByType(sourceType string) []ChatterSource {
	var result []ChatterSource
	for _, s := range m.sources {
		if s.Type() == sourceType {
			result = append(result, s)
		}
	}
	return result
}

// Names returns the registered source names in registration order
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.sources))
	for _, s := range m.sources {
		names = append(names, s.Name())
	}
	return names
}

// CleanText strips HTML tags and collapses whitespace. Feed descriptions
// routinely embed markup; the canonical record stores plain text.
func CleanText(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			result.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(result.String()), " ")
}
