package alphavantage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
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

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	src := New(config.AlphaVantageConfig{APIKey: "test-key"},
		ratelimit.NewDefaultLimiter(), 5*time.Second, logger.Nop())
	src.SetBaseURL(server.URL)
	return src
}

func TestFetchParsesFeed(t *testing.T) {
	now := time.Now().UTC()

	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "NEWS_SENTIMENT", r.URL.Query().Get("function"))
		assert.Equal(t, "MSFT", r.URL.Query().Get("tickers"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		assert.NotEmpty(t, r.URL.Query().Get("time_from"))

		fmt.Fprintf(w, `{"feed":[{
			"title":"Microsoft beats on cloud growth",
			"url":"https://example.com/msft",
			"summary":"Azure revenue accelerated.",
			"time_published":%q,
			"overall_sentiment_score":0.31,
			"overall_sentiment_label":"Somewhat-Bullish",
			"ticker_sentiment":[]
		}]}`, now.Add(-time.Hour).Format(timeLayout))
	})

	items, err := src.Fetch(context.Background(), "MSFT", "Microsoft", now.AddDate(0, 0, -7), now)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "Microsoft beats on cloud growth", items[0]["title"])
	assert.Equal(t, models.HashURL("alpha_vantage", "https://example.com/msft"), items[0]["source_id"])
	assert.Equal(t, 0.31, items[0]["sentiment_score"])
	assert.Equal(t, "Somewhat-Bullish", items[0]["sentiment_label"])
}

func TestFetchPrefersPerTickerSentiment(t *testing.T) {
	now := time.Now().UTC()

	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"feed":[{
			"title":"Chip sector roundup",
			"url":"https://example.com/chips",
			"summary":"Mixed quarter across the sector.",
			"time_published":%q,
			"overall_sentiment_score":0.05,
			"overall_sentiment_label":"Neutral",
			"ticker_sentiment":[
				{"ticker":"INTC","ticker_sentiment_score":"-0.4","ticker_sentiment_label":"Bearish"},
				{"ticker":"AMD","ticker_sentiment_score":"0.6","ticker_sentiment_label":"Bullish"}
			]
		}]}`, now.Add(-time.Hour).Format(timeLayout))
	})

	items, err := src.Fetch(context.Background(), "amd", "AMD", now.AddDate(0, 0, -7), now)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, 0.6, items[0]["sentiment_score"])
	assert.Equal(t, "Bullish", items[0]["sentiment_label"])
}

func TestFetchQuotaNotice(t *testing.T) {
	now := time.Now().UTC()

	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Information":"Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`)
	})

	_, err := src.Fetch(context.Background(), "MSFT", "", now.AddDate(0, 0, -7), now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

func TestFetchWithoutAPIKey(t *testing.T) {
	now := time.Now().UTC()

	src := New(config.AlphaVantageConfig{},
		ratelimit.NewDefaultLimiter(), time.Second, logger.Nop())

	_, err := src.Fetch(context.Background(), "MSFT", "", now.AddDate(0, 0, -7), now)
	require.Error(t, err)
}

func TestFetchFiltersByWindow(t *testing.T) {
	now := time.Now().UTC()

	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"feed":[
			{"title":"recent","url":"https://example.com/1","time_published":%q},
			{"title":"stale","url":"https://example.com/2","time_published":%q}
		]}`,
			now.Add(-time.Hour).Format(timeLayout),
			now.AddDate(0, 0, -30).Format(timeLayout))
	})

	items, err := src.Fetch(context.Background(), "MSFT", "", now.AddDate(0, 0, -7), now)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "recent", items[0]["title"])
}

func TestNormalizeKeepsProviderScore(t *testing.T) {
	now := time.Now().UTC()

	src := New(config.AlphaVantageConfig{APIKey: "k"},
		ratelimit.NewDefaultLimiter(), time.Second, logger.Nop())

	records, err := src.Normalize([]source.RawItem{
		{
			"title":           "Microsoft beats on cloud growth",
			"summary":         "Azure revenue accelerated.",
			"url":             "https://example.com/msft",
			"source_id":       "av-1",
			"published_at":    now.Add(-time.Hour),
			"sentiment_score": 0.31,
			"sentiment_label": "Somewhat-Bullish",
		},
	}, "MSFT", "Microsoft")
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NotNil(t, records[0].SentimentScore)
	assert.InDelta(t, 0.31, *records[0].SentimentScore, 1e-9)
	assert.Equal(t, models.SentimentPositive, records[0].SentimentLabel)
	assert.Equal(t, "alpha_vantage", records[0].Source)
}
