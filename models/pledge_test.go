package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImpactValue(t *testing.T) {
	cases := map[string]int{
		"75/100":      75,
		" 90 / 100 ":  90,
		"80.5/100":    80,
		"70pts/100":   70,
		"61":          61,
		"not a score": 0,
		"":            0,
	}
	for score, want := range cases {
		assert.Equal(t, want, Pledge{AIImpactScore: score}.ImpactValue(), score)
	}
}

func TestParseImpactScore(t *testing.T) {
	n, ok := ParseImpactScore("60/100")
	assert.True(t, ok)
	assert.Equal(t, 60, n)

	n, ok = ParseImpactScore("100/100")
	assert.True(t, ok)
	assert.Equal(t, 100, n)

	for _, bad := range []string{"59/100", "101/100", "5000/100", "80", "80/10", "+80/100", "80.5/100", "/100", ""} {
		_, ok := ParseImpactScore(bad)
		assert.False(t, ok, bad)
	}
}

func TestValidSentiment(t *testing.T) {
	assert.True(t, ValidSentiment(SentimentPositive))
	assert.True(t, ValidSentiment(SentimentVeryPositive))
	assert.False(t, ValidSentiment("Hostile"))
	assert.False(t, ValidSentiment(""))
}
