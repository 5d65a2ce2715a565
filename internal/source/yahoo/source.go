package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/chatter-agent/internal/config"
	"github.com/chatter-agent/internal/models"
	"github.com/chatter-agent/internal/source"
	"github.com/chatter-agent/pkg/logger"
	"github.com/chatter-agent/pkg/ratelimit"
)

const defaultFeedURL = "https://feeds.finance.yahoo.com/rss/2.0/headline"

// Source implements ChatterSource for the Yahoo Finance per-ticker
// headline feed. Free, no API key.
type Source struct {
	cfg     config.YahooConfig
	baseURL string
	parser  *gofeed.Parser
	limiter source.Waiter
	log     *logger.Logger
}

// New creates a Yahoo Finance source
func New(cfg config.YahooConfig, limiter source.Waiter, httpTimeout time.Duration, log *logger.Logger) *Source {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: httpTimeout}
	return &Source{
		cfg:     cfg,
		baseURL: defaultFeedURL,
		parser:  parser,
		limiter: limiter,
		log:     log.WithSource(models.SourceTypeNews, "yahoo_finance"),
	}
}

// SetBaseURL overrides the feed endpoint (used in tests)
func (s *Source) SetBaseURL(u string) {
	s.baseURL = u
}

// Name returns the source name
func (s *Source) Name() string {
	return "yahoo_finance"
}

// Type returns "news"
func (s *Source) Type() string {
	return models.SourceTypeNews
}

// Fetch retrieves headlines from the per-ticker Yahoo Finance feed
func (s *Source) Fetch(ctx context.Context, ticker, companyName string, since, until time.Time) ([]source.RawItem, error) {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterYahoo); err != nil {
		return nil, err
	}

	feedURL := fmt.Sprintf("%s?s=%s&region=US&lang=en-US", s.baseURL, url.QueryEscape(ticker))

	s.log.Debug().Str("url", feedURL).Msg("Fetching Yahoo Finance feed")

	feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Yahoo Finance feed for %s: %w", ticker, err)
	}

	items := make([]source.RawItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		publishedAt := time.Now().UTC()
		if item.PublishedParsed != nil {
			publishedAt = item.PublishedParsed.UTC()
		}
		if publishedAt.Before(since) || publishedAt.After(until) {
			continue
		}

		raw := source.RawItem{
			"title":        source.CleanText(item.Title),
			"summary":      source.CleanText(item.Description),
			"url":          item.Link,
			"published_at": publishedAt,
		}
		if item.GUID != "" {
			raw["source_id"] = models.HashURL("yahoo_finance", item.GUID)
		} else if item.Link != "" {
			raw["source_id"] = models.HashURL("yahoo_finance", item.Link)
		}
		items = append(items, raw)

		if s.cfg.MaxItems > 0 && len(items) >= s.cfg.MaxItems {
			break
		}
	}

	s.log.Info().
		Int("count", len(items)).
		Str("ticker", ticker).
		Msg("Fetched Yahoo Finance items")

	return items, nil
}

// Normalize converts Yahoo Finance items into canonical records
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
