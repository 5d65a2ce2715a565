package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatter-agent/internal/models"
	"github.com/chatter-agent/pkg/logger"
)

func TestScoreLabels(t *testing.T) {
	scorer := New(logger.Nop())

	tests := []struct {
		name  string
		text  string
		label string
	}{
		{"positive", "Great earnings, the stock is an excellent buy", models.SentimentPositive},
		{"negative", "Terrible quarter, awful guidance, avoid this disaster", models.SentimentNegative},
		{"neutral", "The company reported quarterly results", models.SentimentNeutral},
		{"empty", "", models.SentimentNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, label, confidence := scorer.Score(tt.text)
			assert.Equal(t, tt.label, label)
			assert.GreaterOrEqual(t, score, -1.0)
			assert.LessOrEqual(t, score, 1.0)
			assert.GreaterOrEqual(t, confidence, 0.0)
			assert.LessOrEqual(t, confidence, 1.0)
		})
	}
}

func TestScoreDeterministic(t *testing.T) {
	scorer := New(logger.Nop())

	text := "Shares surged after a strong earnings beat"
	first, _, _ := scorer.Score(text)
	for i := 0; i < 5; i++ {
		score, _, _ := scorer.Score(text)
		assert.Equal(t, first, score)
	}
}

func TestEnrichFillsUnscoredRecords(t *testing.T) {
	scorer := New(logger.Nop())

	records := []*models.ChatterRecord{
		{Title: "Excellent results, big win for shareholders"},
		{Title: "Catastrophic losses and terrible outlook"},
	}
	scorer.Enrich(records)

	for _, rec := range records {
		require.NotNil(t, rec.SentimentScore)
		require.NotNil(t, rec.Confidence)
		assert.NotEmpty(t, rec.SentimentLabel)
	}
	assert.Equal(t, models.SentimentPositive, records[0].SentimentLabel)
	assert.Equal(t, models.SentimentNegative, records[1].SentimentLabel)
}

func TestEnrichSkipsPreScoredRecords(t *testing.T) {
	scorer := New(logger.Nop())

	pre := 0.9
	rec := &models.ChatterRecord{
		Title:          "Terrible awful disaster",
		SentimentScore: &pre,
		SentimentLabel: models.SentimentPositive,
	}
	scorer.Enrich([]*models.ChatterRecord{rec, nil})

	assert.Equal(t, 0.9, *rec.SentimentScore)
	assert.Equal(t, models.SentimentPositive, rec.SentimentLabel)
}

func TestEnrichKeepsExistingLabel(t *testing.T) {
	scorer := New(logger.Nop())

	rec := &models.ChatterRecord{
		Title:          "Fantastic blowout quarter",
		SentimentLabel: models.SentimentNegative,
	}
	scorer.Enrich([]*models.ChatterRecord{rec})

	require.NotNil(t, rec.SentimentScore)
	assert.Equal(t, models.SentimentNegative, rec.SentimentLabel)
}
