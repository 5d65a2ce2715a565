package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSourceIDDeterministic(t *testing.T) {
	a := GenerateSourceID("AAPL", "google_news", "Apple beats estimates", "https://example.com/a", "strong quarter")
	b := GenerateSourceID("AAPL", "google_news", "Apple beats estimates", "https://example.com/a", "strong quarter")
	c := GenerateSourceID("AAPL", "google_news", "Apple misses estimates", "https://example.com/a", "strong quarter")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestGenerateSourceIDSummaryPrefix(t *testing.T) {
	long := strings.Repeat("x", 150)
	// Only the first 100 summary bytes participate, so two summaries
	// sharing that prefix collapse to one identity
	a := GenerateSourceID("AAPL", "rss", "t", "u", long+"tail-one")
	b := GenerateSourceID("AAPL", "rss", "t", "u", long+"tail-two")
	assert.Equal(t, a, b)
}

func TestHashURLSourceScoped(t *testing.T) {
	a := HashURL("google_news", "https://example.com/article")
	b := HashURL("rss", "https://example.com/article")
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 32)
}

func TestNewChatterRecord(t *testing.T) {
	rec, err := NewChatterRecord("  aapl ", "google_news", "", "Title", "Summary", "https://example.com")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", rec.Ticker)
	assert.Equal(t, "google_news", rec.Source)
	assert.NotEmpty(t, rec.SourceID)
	assert.Equal(t, SourceTypeNews, rec.SourceType)
}

func TestNewChatterRecordUnknownSource(t *testing.T) {
	rec, err := NewChatterRecord("AAPL", "some_new_feed", "id-1", "Title", "", "")
	require.NoError(t, err)
	assert.Equal(t, "news", rec.Source)
}

func TestNewChatterRecordNoIdentity(t *testing.T) {
	_, err := NewChatterRecord("AAPL", "rss", "", "", "", "")
	assert.ErrorIs(t, err, ErrNoSourceID)
}

func TestNormalize(t *testing.T) {
	published := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	raw := map[string]interface{}{
		"ticker":          "aapl",
		"title":           "Apple hits record high",
		"summary":         "Shares rallied after earnings.",
		"url":             "https://example.com/apple",
		"published_at":    published,
		"sentiment_score": 0.42,
		"sentiment_label": "Bullish",
	}

	rec, err := Normalize(raw, "alpha_vantage")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", rec.Ticker)
	assert.Equal(t, "alpha_vantage", rec.Source)
	assert.Equal(t, "Apple hits record high", rec.Title)
	assert.Equal(t, published, rec.PublishedAt)
	require.NotNil(t, rec.SentimentScore)
	assert.InDelta(t, 0.42, *rec.SentimentScore, 1e-9)
	assert.Equal(t, SentimentPositive, rec.SentimentLabel)
	assert.NotEmpty(t, rec.SourceID)
	assert.NotNil(t, rec.RawPayload)
}

func TestNormalizeKeyFallbacks(t *testing.T) {
	rec, err := Normalize(map[string]interface{}{
		"ticker":   "TSLA",
		"headline": "Tesla news",
		"text":     "body text",
		"link":     "https://example.com/tsla",
		"id":       "ext-42",
	}, "reddit")
	require.NoError(t, err)

	assert.Equal(t, "Tesla news", rec.Title)
	assert.Equal(t, "body text", rec.Summary)
	assert.Equal(t, "https://example.com/tsla", rec.URL)
	assert.Equal(t, "ext-42", rec.SourceID)
}

func TestNormalizeMalformedInput(t *testing.T) {
	// Wrong types everywhere must not panic
	rec, err := Normalize(map[string]interface{}{
		"ticker":          12345,
		"title":           "still a title",
		"published_at":    "not-a-date",
		"sentiment_score": "not-a-number",
	}, "stocktwits")
	require.NoError(t, err)

	assert.Empty(t, rec.Ticker)
	assert.Equal(t, "still a title", rec.Title)
	assert.Nil(t, rec.SentimentScore)
	assert.WithinDuration(t, time.Now().UTC(), rec.PublishedAt, 5*time.Second)
}

func TestNormalizeNoIdentity(t *testing.T) {
	_, err := Normalize(map[string]interface{}{"ticker": "AAPL"}, "rss")
	assert.ErrorIs(t, err, ErrNoSourceID)
}

func TestNormalizeClampsScore(t *testing.T) {
	rec, err := Normalize(map[string]interface{}{
		"ticker":          "AAPL",
		"title":           "t",
		"sentiment_score": 3.5,
	}, "news")
	require.NoError(t, err)
	require.NotNil(t, rec.SentimentScore)
	assert.Equal(t, 1.0, *rec.SentimentScore)
}

func TestTruncateRuneBoundary(t *testing.T) {
	s := strings.Repeat("é", 300) // 2 bytes per rune
	cut := Truncate(s, 11)

	assert.LessOrEqual(t, len(cut), 11)
	// Must still be a whole number of runes
	assert.Equal(t, 5, len([]rune(cut)))
}

func TestTruncateShortString(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 500))
}

func TestNormalizeSentimentLabel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Bullish", SentimentPositive},
		{"Somewhat-Bullish", SentimentPositive},
		{"bearish", SentimentNegative},
		{"Somewhat-Bearish", SentimentNegative},
		{"neutral", SentimentNeutral},
		{"", ""},
		{"weird-label", SentimentNeutral},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, normalizeSentimentLabel(tc.in), "label %q", tc.in)
	}
}

func TestNormalizeTicker(t *testing.T) {
	assert.Equal(t, "AAPL", NormalizeTicker(" aapl\t"))
	assert.Equal(t, "", NormalizeTicker("  "))
}
