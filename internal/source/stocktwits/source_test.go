package stocktwits

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatter-agent/internal/config"
	"github.com/chatter-agent/internal/models"
	"github.com/chatter-agent/internal/source"
	"github.com/chatter-agent/pkg/logger"
	"github.com/chatter-agent/pkg/ratelimit"
)

func streamJSON(messages ...string) string {
	return fmt.Sprintf(`{"messages":[%s]}`, strings.Join(messages, ","))
}

func messageJSON(id int64, body, sentiment string, created time.Time) string {
	entities := `{"sentiment":null}`
	if sentiment != "" {
		entities = fmt.Sprintf(`{"sentiment":{"basic":%q}}`, sentiment)
	}
	return fmt.Sprintf(`{"id":%d,"body":%q,"created_at":%q,"user":{"username":"trader"},"entities":%s}`,
		id, body, created.Format(time.RFC3339), entities)
}

func newTestSource(t *testing.T, cfg config.StocktwitsConfig, handler http.HandlerFunc) *Source {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	src := New(cfg, ratelimit.NewDefaultLimiter(), 5*time.Second, logger.Nop())
	src.SetBaseURL(server.URL)
	return src
}

func TestFetchParsesStream(t *testing.T) {
	now := time.Now().UTC()

	src := newTestSource(t, config.StocktwitsConfig{Enabled: true}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/streams/symbol/NVDA.json", r.URL.Path)
		fmt.Fprint(w, streamJSON(
			messageJSON(101, "NVDA to the moon", "Bullish", now.Add(-time.Hour)),
			messageJSON(102, "taking profits here", "", now.Add(-2*time.Hour)),
		))
	})

	items, err := src.Fetch(context.Background(), "NVDA", "NVIDIA", now.AddDate(0, 0, -7), now)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "stocktwits_101", items[0]["source_id"])
	assert.Equal(t, "NVDA to the moon", items[0]["summary"])
	assert.Equal(t, "Bullish", items[0]["sentiment_label"])
	assert.Equal(t, "trader", items[0]["author"])

	_, hasLabel := items[1]["sentiment_label"]
	assert.False(t, hasLabel)
}

func TestFetchFiltersByWindow(t *testing.T) {
	now := time.Now().UTC()

	src := newTestSource(t, config.StocktwitsConfig{Enabled: true}, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, streamJSON(
			messageJSON(1, "recent", "", now.Add(-time.Hour)),
			messageJSON(2, "stale", "", now.AddDate(0, 0, -30)),
		))
	})

	items, err := src.Fetch(context.Background(), "NVDA", "", now.AddDate(0, 0, -7), now)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "recent", items[0]["summary"])
}

func TestFetchUnknownSymbol(t *testing.T) {
	now := time.Now().UTC()

	src := newTestSource(t, config.StocktwitsConfig{Enabled: true}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	items, err := src.Fetch(context.Background(), "ZZZZ", "", now.AddDate(0, 0, -7), now)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFetchServerError(t *testing.T) {
	now := time.Now().UTC()

	src := newTestSource(t, config.StocktwitsConfig{Enabled: true}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := src.Fetch(context.Background(), "NVDA", "", now.AddDate(0, 0, -7), now)
	require.Error(t, err)
}

func TestFetchHonorsMaxItems(t *testing.T) {
	now := time.Now().UTC()

	src := newTestSource(t, config.StocktwitsConfig{Enabled: true, MaxItems: 1}, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, streamJSON(
			messageJSON(1, "first", "", now.Add(-time.Hour)),
			messageJSON(2, "second", "", now.Add(-2*time.Hour)),
		))
	})

	items, err := src.Fetch(context.Background(), "NVDA", "", now.AddDate(0, 0, -7), now)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestNormalizeCarriesSentimentLabel(t *testing.T) {
	now := time.Now().UTC()

	src := New(config.StocktwitsConfig{Enabled: true}, ratelimit.NewDefaultLimiter(), time.Second, logger.Nop())

	records, err := src.Normalize([]source.RawItem{
		{
			"summary":         "NVDA breaking out",
			"source_id":       "stocktwits_7",
			"published_at":    now.Add(-time.Hour),
			"author":          "trader",
			"source_type":     models.SourceTypeSocial,
			"sentiment_label": "Bullish",
		},
	}, "NVDA", "NVIDIA")
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "stocktwits", records[0].Source)
	assert.Equal(t, models.SourceTypeSocial, records[0].SourceType)
	assert.Equal(t, models.SentimentPositive, records[0].SentimentLabel)
	assert.Nil(t, records[0].SentimentScore)
}
