package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/chatter-agent/internal/config"
	"github.com/chatter-agent/internal/models"
	"github.com/chatter-agent/internal/source"
	"github.com/chatter-agent/pkg/logger"
	"github.com/chatter-agent/pkg/ratelimit"
)

const (
	defaultBaseURL = "https://www.alphavantage.co/query"

	// Alpha Vantage's compact timestamp layout, e.g. 20240102T030405
	timeLayout = "20060102T150405"
)

// Source implements ChatterSource over the Alpha Vantage NEWS_SENTIMENT
// API. Key-gated: the source is only registered when an API key is
// configured. Articles arrive pre-scored, and the provider's per-ticker
// score is preserved on the record.
type Source struct {
	cfg     config.AlphaVantageConfig
	baseURL string
	client  *http.Client
	limiter source.Waiter
	log     *logger.Logger
}

// response mirrors the subset of the NEWS_SENTIMENT payload we consume.
// Rate-limit notices arrive as 200 responses with only Information or
// Note set, so those fields must be checked before trusting Feed.
type response struct {
	Information string    `json:"Information"`
	Note        string    `json:"Note"`
	Feed        []article `json:"feed"`
}

type article struct {
	Title           string  `json:"title"`
	URL             string  `json:"url"`
	Summary         string  `json:"summary"`
	TimePublished   string  `json:"time_published"`
	OverallScore    float64 `json:"overall_sentiment_score"`
	OverallLabel    string  `json:"overall_sentiment_label"`
	TickerSentiment []struct {
		Ticker         string `json:"ticker"`
		SentimentScore string `json:"ticker_sentiment_score"`
		SentimentLabel string `json:"ticker_sentiment_label"`
	} `json:"ticker_sentiment"`
}

// New creates an Alpha Vantage source
func New(cfg config.AlphaVantageConfig, limiter source.Waiter, httpTimeout time.Duration, log *logger.Logger) *Source {
	return &Source{
		cfg:     cfg,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: httpTimeout},
		limiter: limiter,
		log:     log.WithSource(models.SourceTypeNews, "alpha_vantage"),
	}
}

// SetBaseURL overrides the API endpoint (used in tests)
func (s *Source) SetBaseURL(u string) {
	s.baseURL = u
}

// Name returns the source name
func (s *Source) Name() string {
	return "alpha_vantage"
}

// Type returns "news"
func (s *Source) Type() string {
	return models.SourceTypeNews
}

// Fetch retrieves pre-scored news articles for a ticker
func (s *Source) Fetch(ctx context.Context, ticker, companyName string, since, until time.Time) ([]source.RawItem, error) {
	if !s.cfg.Available() {
		return nil, fmt.Errorf("alpha vantage API key not configured")
	}
	if err := s.limiter.Wait(ctx, ratelimit.LimiterAlphaVantage); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s?function=NEWS_SENTIMENT&tickers=%s&time_from=%s&limit=50&apikey=%s",
		s.baseURL, url.QueryEscape(ticker), since.UTC().Format(timeLayout), url.QueryEscape(s.cfg.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Information != "" || result.Note != "" {
		return nil, fmt.Errorf("alpha vantage quota exceeded: %s%s", result.Information, result.Note)
	}

	items := make([]source.RawItem, 0, len(result.Feed))
	for _, art := range result.Feed {
		publishedAt := time.Now().UTC()
		if t, err := time.Parse(timeLayout, art.TimePublished); err == nil {
			publishedAt = t.UTC()
		}
		if publishedAt.Before(since) || publishedAt.After(until) {
			continue
		}

		score := art.OverallScore
		label := art.OverallLabel
		// Prefer the per-ticker sentiment when the article covers
		// multiple symbols
		for _, ts := range art.TickerSentiment {
			if !equalTicker(ts.Ticker, ticker) {
				continue
			}
			if v, err := strconv.ParseFloat(ts.SentimentScore, 64); err == nil {
				score = v
			}
			if ts.SentimentLabel != "" {
				label = ts.SentimentLabel
			}
			break
		}

		raw := source.RawItem{
			"title":           art.Title,
			"summary":         art.Summary,
			"url":             art.URL,
			"published_at":    publishedAt,
			"sentiment_score": score,
			"sentiment_label": label,
		}
		if art.URL != "" {
			raw["source_id"] = models.HashURL("alpha_vantage", art.URL)
		}
		items = append(items, raw)
	}

	s.log.Info().
		Int("count", len(items)).
		Str("ticker", ticker).
		Msg("Fetched Alpha Vantage articles")

	return items, nil
}

// Normalize converts Alpha Vantage articles into canonical records
func (s *Source) Normalize(items []source.RawItem, ticker, companyName string) ([]*models.ChatterRecord, error) {
	records := make([]*models.ChatterRecord, 0, len(items))
	for _, item := range items {
		raw := map[string]interface{}(item)
		raw["ticker"] = ticker
		raw["company_name"] = companyName
		rec, err := models.Normalize(raw, s.Name())
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func equalTicker(a, b string) bool {
	return models.NormalizeTicker(a) == models.NormalizeTicker(b)
}

var _ source.ChatterSource = (*Source)(nil)
