package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatter-agent/internal/config"
	"github.com/chatter-agent/internal/models"
	"github.com/chatter-agent/internal/source"
	"github.com/chatter-agent/internal/storage/sqldb"
	"github.com/chatter-agent/pkg/logger"
)

// fakeSource is a scriptable adapter for orchestrator tests
type fakeSource struct {
	name       string
	items      []source.RawItem
	err        error
	gate       chan struct{}
	fetchCalls int32
}

func (f *fakeSource) Name() string { return f.name }
func (f *fakeSource) Type() string { return models.SourceTypeNews }

func (f *fakeSource) Fetch(ctx context.Context, ticker, companyName string, since, until time.Time) ([]source.RawItem, error) {
	atomic.AddInt32(&f.fetchCalls, 1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func (f *fakeSource) Normalize(items []source.RawItem, ticker, companyName string) ([]*models.ChatterRecord, error) {
	records := make([]*models.ChatterRecord, 0, len(items))
	for _, item := range items {
		raw := map[string]interface{}(item)
		raw["ticker"] = ticker
		rec, err := models.Normalize(raw, f.name)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func item(title, url string) source.RawItem {
	return source.RawItem{
		"title":        title,
		"url":          url,
		"summary":      "summary of " + title,
		"published_at": time.Now().UTC().Add(-time.Hour),
	}
}

func newTestOrchestrator(t *testing.T, cfg config.IngestionConfig, sources ...source.ChatterSource) (*Orchestrator, *sqldb.Repository) {
	t.Helper()

	repo, err := sqldb.New(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.EnsureSchema(context.Background()))

	manager := source.NewManager()
	for _, s := range sources {
		manager.Register(s)
	}
	pipeline := &source.Pipeline{Repo: repo, Log: logger.Nop()}

	if cfg.LookbackDays == 0 {
		cfg.LookbackDays = 7
	}
	return NewOrchestrator(manager, pipeline, repo, cfg, logger.Nop()), repo
}

func TestIngestForTickersEndToEnd(t *testing.T) {
	// Two of the three fetched items were already stored by an earlier
	// cycle; only the new one lands.
	src := &fakeSource{name: "news", items: []source.RawItem{
		item("Article A", "https://example.com/a"),
		item("Article B", "https://example.com/b"),
		item("Article C", "https://example.com/c"),
	}}
	orch, repo := newTestOrchestrator(t, config.IngestionConfig{}, src)
	ctx := context.Background()

	// Prior cycle: A and C
	prior := &fakeSource{name: "news", items: []source.RawItem{
		item("Article A", "https://example.com/a"),
		item("Article C", "https://example.com/c"),
	}}
	records, err := prior.Normalize(prior.items, "ACME", "")
	require.NoError(t, err)
	counts := repo.Persist(ctx, records)
	require.Equal(t, 2, counts.Inserted)

	result := orch.IngestForTickers(ctx, []string{"ACME"}, 7)

	require.Len(t, result.Tickers, 1)
	assert.Equal(t, 3, result.Counts.Fetched)
	assert.Equal(t, 1, result.Counts.Inserted)
	assert.Equal(t, 2, result.Counts.Skipped)
	assert.Equal(t, 0, result.Counts.Errors)
}

func TestIngestForTickersSourceIsolation(t *testing.T) {
	broken := &fakeSource{name: "broken", err: errors.New("connection refused")}
	healthy := &fakeSource{name: "healthy", items: []source.RawItem{
		item("Good article", "https://example.com/good"),
	}}
	orch, _ := newTestOrchestrator(t, config.IngestionConfig{}, broken, healthy)

	result := orch.IngestForTickers(context.Background(), []string{"AAPL"}, 7)

	require.Len(t, result.Tickers, 1)
	assert.Equal(t, 1, result.Counts.Inserted)
	assert.Equal(t, 1, result.Counts.Errors)

	// Both sources were attempted despite the first one failing
	require.Len(t, result.Tickers[0].Results, 2)
}

func TestIngestDropsItemsWithoutIdentity(t *testing.T) {
	src := &fakeSource{name: "news", items: []source.RawItem{
		item("Has identity", "https://example.com/ok"),
		{"published_at": time.Now().UTC()}, // nothing to derive an ID from
	}}
	orch, _ := newTestOrchestrator(t, config.IngestionConfig{}, src)

	result := orch.IngestForTickers(context.Background(), []string{"AAPL"}, 7)

	assert.Equal(t, 2, result.Counts.Fetched)
	assert.Equal(t, 1, result.Counts.Inserted)
	assert.Equal(t, 1, result.Counts.Dropped)
	assert.Equal(t, 0, result.Counts.Errors)
}

func TestIngestReplayIsIdempotent(t *testing.T) {
	src := &fakeSource{name: "news", items: []source.RawItem{
		item("Same article", "https://example.com/same"),
	}}
	orch, _ := newTestOrchestrator(t, config.IngestionConfig{}, src)
	ctx := context.Background()

	first := orch.IngestForTickers(ctx, []string{"AAPL"}, 7)
	second := orch.IngestForTickers(ctx, []string{"AAPL"}, 7)

	assert.Equal(t, 1, first.Counts.Inserted)
	assert.Equal(t, 0, second.Counts.Inserted)
	assert.Equal(t, 1, second.Counts.Skipped)
}

func TestEnsureTickerIngestedOnce(t *testing.T) {
	src := &fakeSource{name: "news", items: []source.RawItem{
		item("One article", "https://example.com/one"),
	}}
	orch, _ := newTestOrchestrator(t, config.IngestionConfig{}, src)
	ctx := context.Background()

	first := orch.EnsureTickerIngested(ctx, "nvda", 7)
	assert.False(t, first.AlreadyIngested)
	require.NotNil(t, first.Result)
	assert.Equal(t, 1, first.Result.Counts.Inserted)

	second := orch.EnsureTickerIngested(ctx, "NVDA", 7)
	assert.True(t, second.AlreadyIngested)
	assert.Nil(t, second.Result)

	assert.Equal(t, int32(1), atomic.LoadInt32(&src.fetchCalls))
}

func TestEnsureTickerIngestedConcurrent(t *testing.T) {
	src := &fakeSource{name: "news", items: []source.RawItem{
		item("One article", "https://example.com/one"),
	}}
	orch, _ := newTestOrchestrator(t, config.IngestionConfig{}, src)

	var wg sync.WaitGroup
	var fetched int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := orch.EnsureTickerIngested(context.Background(), "AMD", 7)
			if !res.AlreadyIngested {
				atomic.AddInt32(&fetched, 1)
			}
		}()
	}
	wg.Wait()

	// Exactly one caller wins the first-sight ingest
	assert.Equal(t, int32(1), fetched)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.fetchCalls))
}

func TestActiveTickersPrefersConfig(t *testing.T) {
	orch, repo := newTestOrchestrator(t, config.IngestionConfig{Tickers: []string{"AAPL", "TSLA"}})
	require.NoError(t, repo.DB().Create(&models.Company{Ticker: "NVDA", Name: "NVIDIA", IsActive: true}).Error)

	assert.Equal(t, []string{"AAPL", "TSLA"}, orch.ActiveTickers(context.Background()))
}

func TestActiveTickersFallsBackToRegistry(t *testing.T) {
	orch, repo := newTestOrchestrator(t, config.IngestionConfig{})
	require.NoError(t, repo.DB().Create(&models.Company{Ticker: "NVDA", Name: "NVIDIA", IsActive: true}).Error)

	assert.Equal(t, []string{"NVDA"}, orch.ActiveTickers(context.Background()))
}

func TestActiveTickersEmptyIsValid(t *testing.T) {
	orch, _ := newTestOrchestrator(t, config.IngestionConfig{})
	assert.Empty(t, orch.ActiveTickers(context.Background()))
}

func TestIngestSourceForTicker(t *testing.T) {
	wanted := &fakeSource{name: "wanted", items: []source.RawItem{
		item("From wanted", "https://example.com/w"),
	}}
	other := &fakeSource{name: "other", items: []source.RawItem{
		item("From other", "https://example.com/o"),
	}}
	orch, _ := newTestOrchestrator(t, config.IngestionConfig{}, wanted, other)

	result, err := orch.IngestSourceForTicker(context.Background(), "wanted", "AAPL", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counts.Inserted)
	assert.Equal(t, int32(0), atomic.LoadInt32(&other.fetchCalls))

	_, err = orch.IngestSourceForTicker(context.Background(), "missing", "AAPL", 7)
	assert.Error(t, err)
}
