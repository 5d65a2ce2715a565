package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/chatter-agent/internal/models"
)

// Summarizer condenses a batch of chatter records into a readable
// digest. Implementations may call external services; ingestion never
// depends on one.
type Summarizer interface {
	Summarize(ctx context.Context, ticker string, records []*models.ChatterRecord) (string, error)
}

const digestSystemPrompt = `You are a financial news analyst. You receive recent market chatter
about a single stock ticker collected from news feeds and social media.
Write a concise digest: what is being discussed, the prevailing
sentiment, and any recurring themes. Plain prose, no preamble, at most
three short paragraphs. Do not invent facts that are not in the input.`

// maxDigestRecords caps how much chatter goes into one prompt
const maxDigestRecords = 40

// DigestSummarizer implements Summarizer on the Anthropic client
type DigestSummarizer struct {
	client *Client
}

// NewDigestSummarizer creates a digest summarizer
func NewDigestSummarizer(client *Client) *DigestSummarizer {
	return &DigestSummarizer{client: client}
}

// Summarize produces a digest for a ticker's recent chatter
func (d *DigestSummarizer) Summarize(ctx context.Context, ticker string, records []*models.ChatterRecord) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("no chatter records to summarize for %s", ticker)
	}
	if len(records) > maxDigestRecords {
		records = records[:maxDigestRecords]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ticker: %s\nItems: %d\n\n", ticker, len(records))
	for i, rec := range records {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, rec.Source, rec.Title)
		if rec.Summary != "" {
			fmt.Fprintf(&b, "   %s\n", models.Truncate(rec.Summary, 300))
		}
		if rec.SentimentLabel != "" {
			fmt.Fprintf(&b, "   sentiment: %s\n", rec.SentimentLabel)
		}
	}

	return d.client.Complete(ctx, digestSystemPrompt, b.String())
}

var _ Summarizer = (*DigestSummarizer)(nil)
