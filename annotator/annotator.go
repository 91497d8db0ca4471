// Package annotator assigns a category, sentiment and impact score to a
// pledge message. Mock is a placeholder with no language model behind it;
// anything satisfying Annotator can replace it.
package annotator

import (
	"commitment-wall/models"
	"context"
	"math/rand"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// MinMessageLength is the shortest trimmed message that gets annotated.
const MinMessageLength = 15

// DefaultDelay is how long Mock pretends to think.
const DefaultDelay = 1800 * time.Millisecond

// PositiveKeywords push the sentiment to "Very Positive" when any appears
// in the message (case-insensitive substring).
var PositiveKeywords = []string{
	"empower", "improve", "support", "develop", "transform",
	"innovate", "create", "build", "enhance", "strengthen",
}

// Annotation is the annotator's verdict on one message.
type Annotation struct {
	Category    models.Category `json:"category"`
	Sentiment   string          `json:"sentiment"`
	ImpactScore int             `json:"impactScore"`
}

// ImpactLabel renders the score the way it is stored on a pledge.
func (a Annotation) ImpactLabel() string {
	return strconv.Itoa(a.ImpactScore) + "/100"
}

// Annotator produces an Annotation for message. ok is false when the
// message is too short to annotate and any earlier annotation should be hidden.
type Annotator interface {
	Annotate(ctx context.Context, message string) (a Annotation, ok bool, err error)
}

// Mock picks a uniform random category and an impact score in [60,100],
// and derives sentiment from PositiveKeywords.
type Mock struct {
	delay time.Duration
	intN  func(n int) int
}

// Option configures a Mock.
type Option func(*Mock)

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) Option {
	return func(m *Mock) { m.delay = d }
}

// WithIntN replaces the random source; intN must return a value in [0,n).
func WithIntN(intN func(n int) int) Option {
	return func(m *Mock) { m.intN = intN }
}

// NewMock returns a Mock using math/rand/v2 and DefaultDelay.
func NewMock(opts ...Option) *Mock {
	m := &Mock{delay: DefaultDelay, intN: rand.Intn}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Annotate waits the configured delay and returns a random annotation.
// The delay is not cut short by ctx.
func (m *Mock) Annotate(_ context.Context, message string) (Annotation, bool, error) {
	text := strings.TrimSpace(message)
	if utf8.RuneCountInString(text) < MinMessageLength {
		return Annotation{}, false, nil
	}

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	return Annotation{
		Category:    models.Categories[m.intN(len(models.Categories))],
		Sentiment:   Sentiment(text),
		ImpactScore: 60 + m.intN(41),
	}, true, nil
}

// Sentiment is "Very Positive" when text contains a positive keyword.
func Sentiment(text string) string {
	lower := strings.ToLower(text)
	for _, word := range PositiveKeywords {
		if strings.Contains(lower, word) {
			return models.SentimentVeryPositive
		}
	}
	return models.SentimentPositive
}
