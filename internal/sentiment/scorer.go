package sentiment

import (
	"strings"

	"github.com/jonreiter/govader"

	"github.com/chatter-agent/internal/models"
	"github.com/chatter-agent/pkg/logger"
)

// Label thresholds on the VADER compound score. The band between them
// is neutral. These match how compound scores are conventionally read
// and must stay fixed so re-scoring is deterministic.
const (
	positiveThreshold = 0.05
	negativeThreshold = -0.05
)

// Scorer assigns lexicon-based sentiment to chatter records.
// Scoring is deterministic: the same text always yields the same score,
// so enrichment does not disturb idempotent ingestion.
type Scorer struct {
	analyzer *govader.SentimentIntensityAnalyzer
	log      *logger.Logger
}

// New creates a sentiment scorer
func New(log *logger.Logger) *Scorer {
	return &Scorer{
		analyzer: govader.NewSentimentIntensityAnalyzer(),
		log:      log.WithComponent("sentiment"),
	}
}

// Score computes sentiment for a piece of text
func (s *Scorer) Score(text string) (score float64, label string, confidence float64) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, models.SentimentNeutral, 0
	}

	result := s.analyzer.PolarityScores(text)
	score = result.Compound

	switch {
	case score >= positiveThreshold:
		label = models.SentimentPositive
		confidence = result.Positive
	case score <= negativeThreshold:
		label = models.SentimentNegative
		confidence = result.Negative
	default:
		label = models.SentimentNeutral
		confidence = result.Neutral
	}
	return score, label, confidence
}

// Enrich fills sentiment fields on records that arrived unscored.
// Records whose source already provided a score (e.g. Alpha Vantage,
// Stocktwits author sentiment) are left untouched.
func (s *Scorer) Enrich(records []*models.ChatterRecord) {
	scored := 0
	for _, rec := range records {
		if rec == nil || rec.SentimentScore != nil {
			continue
		}
		text := rec.Title
		if rec.Summary != "" {
			text = strings.TrimSpace(text + ". " + rec.Summary)
		}

		score, label, confidence := s.Score(text)
		rec.SentimentScore = models.ClampScore(score)
		if rec.SentimentLabel == "" {
			rec.SentimentLabel = label
		}
		if rec.Confidence == nil {
			rec.Confidence = &confidence
		}
		scored++
	}
	if scored > 0 {
		s.log.Debug().Int("scored", scored).Msg("Scored records")
	}
}
