package stocktwits

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

const defaultBaseURL = "https://api.stocktwits.com/api/2"

// Source implements ChatterSource over the Stocktwits public symbol
// stream. Messages carry author-declared sentiment, which is preserved
// as the record's label instead of being re-scored.
type Source struct {
	cfg     config.StocktwitsConfig
	baseURL string
	client  *http.Client
	limiter source.Waiter
	log     *logger.Logger
}

// stream mirrors the subset of the symbol stream response we consume
type stream struct {
	Messages []message `json:"messages"`
}

type message struct {
	ID        int64  `json:"id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
	User      struct {
		Username string `json:"username"`
	} `json:"user"`
	Entities struct {
		Sentiment *struct {
			Basic string `json:"basic"`
		} `json:"sentiment"`
	} `json:"entities"`
}

// New creates a Stocktwits source
func New(cfg config.StocktwitsConfig, limiter source.Waiter, httpTimeout time.Duration, log *logger.Logger) *Source {
	return &Source{
		cfg:     cfg,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: httpTimeout},
		limiter: limiter,
		log:     log.WithSource(models.SourceTypeSocial, "stocktwits"),
	}
}

// SetBaseURL overrides the API endpoint (used in tests)
func (s *Source) SetBaseURL(u string) {
	s.baseURL = u
}

// Name returns the source name
func (s *Source) Name() string {
	return "stocktwits"
}

// Type returns "social"
func (s *Source) Type() string {
	return models.SourceTypeSocial
}

// Fetch retrieves recent messages from the symbol stream
func (s *Source) Fetch(ctx context.Context, ticker, companyName string, since, until time.Time) ([]source.RawItem, error) {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterStocktwits); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/streams/symbol/%s.json", s.baseURL, url.PathEscape(ticker))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// 404 means an unknown symbol, not an outage
	if resp.StatusCode == http.StatusNotFound {
		s.log.Debug().Str("ticker", ticker).Msg("Symbol not found on Stocktwits")
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result stream
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	items := make([]source.RawItem, 0, len(result.Messages))
	for _, msg := range result.Messages {
		publishedAt := time.Now().UTC()
		if t, err := time.Parse(time.RFC3339, msg.CreatedAt); err == nil {
			publishedAt = t.UTC()
		}
		if publishedAt.Before(since) || publishedAt.After(until) {
			continue
		}

		raw := source.RawItem{
			"summary":      models.Truncate(msg.Body, 2000),
			"published_at": publishedAt,
			"author":       msg.User.Username,
			"source_type":  models.SourceTypeSocial,
		}
		if msg.ID != 0 {
			raw["source_id"] = "stocktwits_" + strconv.FormatInt(msg.ID, 10)
		}
		if msg.Entities.Sentiment != nil {
			raw["sentiment_label"] = msg.Entities.Sentiment.Basic
		}
		items = append(items, raw)

		if s.cfg.MaxItems > 0 && len(items) >= s.cfg.MaxItems {
			break
		}
	}

	s.log.Info().
		Int("count", len(items)).
		Str("ticker", ticker).
		Msg("Fetched Stocktwits messages")

	return items, nil
}

// Normalize converts Stocktwits messages into canonical records
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

var _ source.ChatterSource = (*Source)(nil)
