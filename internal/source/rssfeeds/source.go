package rssfeeds

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/chatter-agent/internal/config"
	"github.com/chatter-agent/internal/models"
	"github.com/chatter-agent/internal/source"
	"github.com/chatter-agent/pkg/logger"
	"github.com/chatter-agent/pkg/ratelimit"
)

// Source implements ChatterSource over a configured list of general
// market RSS feeds. Feeds are not ticker-scoped, so items are kept only
// when they mention the ticker or the company name.
type Source struct {
	feeds   []config.RSSFeed
	parser  *gofeed.Parser
	limiter source.Waiter
	log     *logger.Logger
}

// New creates an RSS source over the configured feeds
func New(cfg config.RSSConfig, limiter source.Waiter, httpTimeout time.Duration, log *logger.Logger) *Source {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: httpTimeout}
	return &Source{
		feeds:   cfg.Feeds,
		parser:  parser,
		limiter: limiter,
		log:     log.WithSource(models.SourceTypeNews, "rss"),
	}
}

// SetFeeds replaces the configured feed list (used in tests)
func (s *Source) SetFeeds(feeds []config.RSSFeed) {
	s.feeds = feeds
}

// Name returns the source name
func (s *Source) Name() string {
	return "rss"
}

// Type returns "news"
func (s *Source) Type() string {
	return models.SourceTypeNews
}

// Fetch retrieves matching items across all configured feeds.
// A dead feed is logged and skipped so the remaining feeds still report.
func (s *Source) Fetch(ctx context.Context, ticker, companyName string, since, until time.Time) ([]source.RawItem, error) {
	var items []source.RawItem

	for _, feed := range s.feeds {
		if err := s.limiter.Wait(ctx, ratelimit.LimiterRSS); err != nil {
			return items, err
		}

		parsed, err := s.parser.ParseURLWithContext(feed.URL, ctx)
		if err != nil {
			s.log.Warn().Err(err).Str("feed", feed.Name).Msg("Failed to parse RSS feed")
			continue
		}

		for _, item := range parsed.Items {
			publishedAt := time.Now().UTC()
			if item.PublishedParsed != nil {
				publishedAt = item.PublishedParsed.UTC()
			}
			if publishedAt.Before(since) || publishedAt.After(until) {
				continue
			}

			title := source.CleanText(item.Title)
			summary := source.CleanText(item.Description)
			if !mentions(title+" "+summary, ticker, companyName) {
				continue
			}

			raw := source.RawItem{
				"title":        title,
				"summary":      summary,
				"url":          item.Link,
				"published_at": publishedAt,
				"feed_name":    feed.Name,
			}
			if item.GUID != "" {
				raw["source_id"] = models.HashURL("rss", item.GUID)
			} else if item.Link != "" {
				raw["source_id"] = models.HashURL("rss", item.Link)
			}
			items = append(items, raw)
		}
	}

	s.log.Info().
		Int("count", len(items)).
		Str("ticker", ticker).
		Int("feeds", len(s.feeds)).
		Msg("Fetched RSS items")

	return items, nil
}

// Normalize converts RSS items into canonical records
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

// mentions reports whether text references the ticker or company name.
// Ticker matching is word-bounded so "A" does not match every article.
func mentions(text, ticker, companyName string) bool {
	lower := strings.ToLower(text)
	if companyName != "" && strings.Contains(lower, strings.ToLower(companyName)) {
		return true
	}
	for _, word := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9' || r == '$')
	}) {
		word = strings.TrimPrefix(word, "$")
		if strings.EqualFold(word, ticker) {
			return true
		}
	}
	return false
}

var _ source.ChatterSource = (*Source)(nil)
