package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/chatter-agent/internal/config"
	"github.com/chatter-agent/internal/models"
	"github.com/chatter-agent/internal/source"
	"github.com/chatter-agent/pkg/logger"
	"github.com/chatter-agent/pkg/ratelimit"
)

const defaultBaseURL = "https://www.reddit.com"

// Source implements ChatterSource over Reddit's public JSON search.
// No OAuth: the unauthenticated endpoints are enough for read-only
// search, at the cost of a stricter rate limit.
type Source struct {
	cfg     config.RedditConfig
	baseURL string
	client  *http.Client
	limiter source.Waiter
	log     *logger.Logger
}

// listing mirrors the subset of Reddit's search response we consume
type listing struct {
	Data struct {
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Permalink  string  `json:"permalink"`
	Subreddit  string  `json:"subreddit"`
	CreatedUTC float64 `json:"created_utc"`
}

// New creates a Reddit source
func New(cfg config.RedditConfig, limiter source.Waiter, httpTimeout time.Duration, log *logger.Logger) *Source {
	return &Source{
		cfg:     cfg,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: httpTimeout},
		limiter: limiter,
		log:     log.WithSource(models.SourceTypeSocial, "reddit"),
	}
}

// SetBaseURL overrides the API endpoint (used in tests)
func (s *Source) SetBaseURL(u string) {
	s.baseURL = u
}

// Name returns the source name
func (s *Source) Name() string {
	return "reddit"
}

// Type returns "social"
func (s *Source) Type() string {
	return models.SourceTypeSocial
}

// Fetch searches the configured subreddits for ticker mentions.
// Each subreddit is fetched independently: a failing or rate-limited
// subreddit is logged and skipped, the rest still contribute.
func (s *Source) Fetch(ctx context.Context, ticker, companyName string, since, until time.Time) ([]source.RawItem, error) {
	var items []source.RawItem

	for _, sub := range s.cfg.Subreddits {
		posts, err := s.searchSubreddit(ctx, sub, ticker)
		if err != nil {
			s.log.Warn().Err(err).Str("subreddit", sub).Msg("Subreddit search failed")
			continue
		}

		for _, p := range posts {
			publishedAt := time.Unix(int64(p.CreatedUTC), 0).UTC()
			if publishedAt.Before(since) || publishedAt.After(until) {
				continue
			}
			if p.ID == "" {
				// No post ID means no stable identity; let Normalize drop it
				s.log.Debug().Str("subreddit", sub).Msg("Post without ID")
			}

			raw := source.RawItem{
				"title":        p.Title,
				"summary":      models.Truncate(p.Selftext, 2000),
				"url":          s.baseURL + p.Permalink,
				"published_at": publishedAt,
				"subreddit":    p.Subreddit,
				"source_type":  models.SourceTypeSocial,
			}
			if p.ID != "" {
				raw["source_id"] = "reddit_" + p.ID
			}
			items = append(items, raw)
		}
	}

	s.log.Info().
		Int("count", len(items)).
		Str("ticker", ticker).
		Int("subreddits", len(s.cfg.Subreddits)).
		Msg("Fetched Reddit posts")

	return items, nil
}

// searchSubreddit runs one rate-limited search call against a subreddit
func (s *Source) searchSubreddit(ctx context.Context, subreddit, ticker string) ([]post, error) {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterReddit); err != nil {
		return nil, err
	}

	limit := s.cfg.MaxPosts
	if limit <= 0 {
		limit = 25
	}
	endpoint := fmt.Sprintf("%s/r/%s/search.json?q=%s&restrict_sr=1&sort=new&t=week&limit=%d",
		s.baseURL, url.PathEscape(subreddit), url.QueryEscape(ticker), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited by reddit (429)")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result listing
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	posts := make([]post, 0, len(result.Data.Children))
	for _, child := range result.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts, nil
}

// Normalize converts Reddit posts into canonical records
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
