package models

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SourceType classifies where chatter originates
const (
	SourceTypeNews   = "news"
	SourceTypeSocial = "social"
)

// Sentiment labels
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// ValidSources is the known set of chatter sources. Unknown sources are
// coerced to "news" rather than rejected, since new sources are added often.
var ValidSources = map[string]bool{
	"alpha_vantage": true,
	"rss":           true,
	"reddit":        true,
	"twitter":       true,
	"stocktwits":    true,
	"news":          true,
	"benzinga":      true,
	"seeking_alpha": true,
	"google_news":   true,
	"yahoo_finance": true,
}

const (
	maxTitleLen   = 500
	maxSummaryLen = 2000

	// summaryHashPrefix is how much of the summary participates in the
	// derived source ID. Must stay fixed: changing it changes every
	// derived ID and breaks dedup against already-stored rows.
	summaryHashPrefix = 100
)

// ErrNoSourceID marks a raw item whose identity cannot be derived.
// Such items are dropped before persistence - they cannot be deduplicated.
var ErrNoSourceID = errors.New("no derivable source id")

// JSON is a custom type for storing arbitrary JSON data
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
}

// ChatterRecord is the canonical market chatter record. Every source is
// normalized into this shape before storage, and records are never mutated
// after persistence. The pair (source, source_id) is the sole dedup key.
type ChatterRecord struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Ticker   string `gorm:"index:idx_chatter_ticker_published,priority:1;not null" json:"ticker"`
	Source   string `gorm:"uniqueIndex:idx_chatter_source_source_id;not null" json:"source"`
	SourceID string `gorm:"uniqueIndex:idx_chatter_source_source_id;column:source_id" json:"source_id"`
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`

	PublishedAt time.Time `gorm:"index:idx_chatter_ticker_published,priority:2,sort:desc" json:"published_at"`

	SentimentScore *float64 `json:"sentiment_score"`
	SentimentLabel string   `json:"sentiment_label"`
	Confidence     *float64 `json:"confidence"`

	SourceType  string `gorm:"default:'news'" json:"source_type"`
	CompanyName string `json:"company_name"`
	RawPayload  JSON   `gorm:"type:json" json:"raw_payload"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName keeps the legacy table name used by earlier deployments.
func (ChatterRecord) TableName() string {
	return "market_chatter"
}

// NormalizeTicker canonicalizes a ticker symbol for storage and lookup.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// GenerateSourceID derives a deterministic ID from record content.
// Same content always maps to the same ID, so re-fetching an item without
// a source-provided identity still dedups correctly.
func GenerateSourceID(ticker, source, title, url, summary string) string {
	if len(summary) > summaryHashPrefix {
		summary = summary[:summaryHashPrefix]
	}
	content := fmt.Sprintf("%s:%s:%s:%s:%s", ticker, source, title, url, summary)
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", hash[:16]) // 32 hex chars
}

// HashURL derives a source ID from a URL alone, prefixed by source so the
// same article seen via two sources keeps two identities.
func HashURL(source, url string) string {
	hash := sha256.Sum256([]byte(source + "_" + url))
	return fmt.Sprintf("%x", hash[:16])
}

// NewChatterRecord builds a validated record, applying the canonical
// normalization rules: uppercase ticker, source clamped to the known set,
// title/summary bounded, source ID derived when absent.
func NewChatterRecord(ticker, source, sourceID, title, summary, url string) (*ChatterRecord, error) {
	rec := &ChatterRecord{
		Ticker:      NormalizeTicker(ticker),
		Source:      source,
		SourceID:    sourceID,
		Title:       Truncate(title, maxTitleLen),
		Summary:     Truncate(summary, maxSummaryLen),
		URL:         url,
		SourceType:  SourceTypeNews,
		PublishedAt: time.Now().UTC(),
		CreatedAt:   time.Now().UTC(),
	}
	if !ValidSources[rec.Source] {
		rec.Source = "news"
	}
	if rec.SourceID == "" {
		if rec.Title == "" && rec.URL == "" && rec.Summary == "" {
			return nil, ErrNoSourceID
		}
		rec.SourceID = GenerateSourceID(rec.Ticker, rec.Source, rec.Title, rec.URL, rec.Summary)
	}
	return rec, nil
}

// Normalize converts a raw source payload into a canonical record.
// It never panics on malformed input: missing fields degrade to zero
// values. The only rejection is ErrNoSourceID - an item with no URL, no
// source-provided ID and no content has no stable identity.
func Normalize(raw map[string]interface{}, sourceName string) (*ChatterRecord, error) {
	ticker := NormalizeTicker(rawString(raw, "ticker"))

	source := sourceName
	if !ValidSources[source] {
		source = "news"
	}

	title := firstNonEmpty(rawString(raw, "title"), rawString(raw, "headline"))
	summary := firstNonEmpty(rawString(raw, "summary"), rawString(raw, "content"), rawString(raw, "text"))
	url := firstNonEmpty(rawString(raw, "url"), rawString(raw, "link"))
	sourceID := firstNonEmpty(rawString(raw, "source_id"), rawString(raw, "id"))

	if sourceID == "" {
		if url == "" && title == "" && summary == "" {
			return nil, ErrNoSourceID
		}
		sourceID = GenerateSourceID(ticker, source, title, url, summary)
	}

	rec := &ChatterRecord{
		Ticker:      ticker,
		Source:      source,
		SourceID:    sourceID,
		Title:       Truncate(title, maxTitleLen),
		Summary:     Truncate(summary, maxSummaryLen),
		URL:         url,
		PublishedAt: rawTime(raw, "published_at"),
		SentimentLabel: normalizeSentimentLabel(
			rawString(raw, "sentiment_label"),
		),
		SourceType:  SourceTypeNews,
		CompanyName: rawString(raw, "company_name"),
		RawPayload:  JSON(raw),
		CreatedAt:   time.Now().UTC(),
	}

	if st := rawString(raw, "source_type"); st == SourceTypeSocial {
		rec.SourceType = SourceTypeSocial
	}
	if score, ok := rawFloat(raw, "sentiment_score"); ok {
		rec.SentimentScore = ClampScore(score)
	}
	if conf, ok := rawFloat(raw, "confidence"); ok && conf >= 0 && conf <= 1 {
		rec.Confidence = &conf
	}

	return rec, nil
}

// Truncate bounds s to max bytes without splitting the string mid-rune.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	// Walk back to a rune boundary
	for len(cut) > 0 && cut[len(cut)-1]&0xC0 == 0x80 {
		cut = cut[:len(cut)-1]
	}
	return cut
}

// ClampScore bounds a sentiment score to [-1, 1] and returns a pointer
// suitable for the optional column.
func ClampScore(score float64) *float64 {
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return &score
}

func normalizeSentimentLabel(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case SentimentPositive, "bullish", "somewhat-bullish":
		return SentimentPositive
	case SentimentNegative, "bearish", "somewhat-bearish":
		return SentimentNegative
	case SentimentNeutral:
		return SentimentNeutral
	case "":
		return ""
	default:
		return SentimentNeutral
	}
}

func rawString(raw map[string]interface{}, key string) string {
	if raw == nil {
		return ""
	}
	if v, ok := raw[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func rawFloat(raw map[string]interface{}, key string) (float64, bool) {
	if raw == nil {
		return 0, false
	}
	switch v := raw[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func rawTime(raw map[string]interface{}, key string) time.Time {
	if raw != nil {
		switch v := raw[key].(type) {
		case time.Time:
			if !v.IsZero() {
				return v.UTC()
			}
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t.UTC()
			}
		case float64:
			if v > 0 {
				return time.Unix(int64(v), 0).UTC()
			}
		}
	}
	// Origin time unparseable - fall back to ingestion time
	return time.Now().UTC()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
