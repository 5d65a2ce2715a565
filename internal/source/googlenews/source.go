package googlenews

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

const defaultFeedURL = "https://news.google.com/rss/search"

// Source implements ChatterSource for Google News RSS search.
// Free, no API key, queried per ticker.
type Source struct {
	cfg     config.GoogleNewsConfig
	baseURL string
	parser  *gofeed.Parser
	limiter source.Waiter
	log     *logger.Logger
}

// New creates a Google News source
func New(cfg config.GoogleNewsConfig, limiter source.Waiter, httpTimeout time.Duration, log *logger.Logger) *Source {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: httpTimeout}
	return &Source{
		cfg:     cfg,
		baseURL: defaultFeedURL,
		parser:  parser,
		limiter: limiter,
		log:     log.WithSource(models.SourceTypeNews, "google_news"),
	}
}

// SetBaseURL overrides the feed endpoint (used in tests)
func (s *Source) SetBaseURL(u string) {
	s.baseURL = u
}

// Name returns the source name
func (s *Source) Name() string {
	return "google_news"
}

// Type returns "news"
func (s *Source) Type() string {
	return models.SourceTypeNews
}

// Fetch retrieves news items from the Google News search feed
func (s *Source) Fetch(ctx context.Context, ticker, companyName string, since, until time.Time) ([]source.RawItem, error) {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterGoogleNews); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("%q stock", ticker)
	if companyName != "" {
		query = fmt.Sprintf("%q OR %q stock", ticker, companyName)
	}
	feedURL := fmt.Sprintf("%s?q=%s&hl=en-US&gl=US&ceid=US:en", s.baseURL, url.QueryEscape(query))

	s.log.Debug().Str("url", feedURL).Msg("Fetching Google News feed")

	feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Google News feed for %s: %w", ticker, err)
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
		// Google News links are stable per article; hash them so an
		// edited headline does not resurface as a new record.
		if item.Link != "" {
			raw["source_id"] = models.HashURL("google_news", item.Link)
		}
		items = append(items, raw)

		if s.cfg.MaxItems > 0 && len(items) >= s.cfg.MaxItems {
			break
		}
	}

	s.log.Info().
		Int("count", len(items)).
		Str("ticker", ticker).
		Msg("Fetched Google News items")

	return items, nil
}

// Normalize converts Google News items into canonical records
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
