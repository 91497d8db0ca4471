package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Category is one of the fixed pledge categories.
type Category string

const (
	CategoryEducation           Category = "Education"
	CategoryEnvironment         Category = "Environment"
	CategoryHealthcare          Category = "Healthcare"
	CategoryTechnology          Category = "Technology"
	CategoryEconomicDevelopment Category = "Economic Development"
	CategorySocialJustice       Category = "Social Justice"
	CategoryInfrastructure      Category = "Infrastructure"
	CategoryAgriculture         Category = "Agriculture"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryEducation,
	CategoryEnvironment,
	CategoryHealthcare,
	CategoryTechnology,
	CategoryEconomicDevelopment,
	CategorySocialJustice,
	CategoryInfrastructure,
	CategoryAgriculture,
}

// Valid reports whether c is one of Categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// InputMethod says which content mode backs a pledge.
type InputMethod string

const (
	InputMethodText  InputMethod = "text"
	InputMethodVideo InputMethod = "video"

	// legacy records call dictated/typed text "voice"
	inputMethodVoice InputMethod = "voice"
)

// ParseInputMethod maps form values onto an InputMethod. Anything other
// than "video" is text.
func ParseInputMethod(s string) InputMethod {
	if InputMethod(strings.ToLower(strings.TrimSpace(s))) == InputMethodVideo {
		return InputMethodVideo
	}
	return InputMethodText
}

const (
	SentimentPositive     = "Positive"
	SentimentVeryPositive = "Very Positive"

	// DefaultImpactScore is stored when no annotation was produced.
	DefaultImpactScore = "75/100"

	// EditedSuffix is appended to Date after an update.
	EditedSuffix = " (Edited)"
)

// Pledge is a single commitment on the wall. The JSON shape is the
// persisted format.
type Pledge struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Company       string      `json:"company"`
	Email         string      `json:"email"`
	Message       string      `json:"message"`
	Category      Category    `json:"category"`
	InputMethod   InputMethod `json:"inputMethod"`
	VideoData     string      `json:"videoData,omitempty"`
	AICategory    string      `json:"aiCategory"`
	AISentiment   string      `json:"aiSentiment"`
	AIImpactScore string      `json:"aiImpactScore"`
	Passcode      string      `json:"passcode,omitempty"`
	Date          string      `json:"date"`
	Timestamp     string      `json:"timestamp"`
}

// ImpactValue returns the integer at the start of the score, before the
// "/100" suffix. Trailing junk after the digits is ignored ("80.5/100" is
// 80); a score with no leading digits is 0.
func (p Pledge) ImpactValue() int {
	head, _, _ := strings.Cut(strings.TrimSpace(p.AIImpactScore), "/")
	head = strings.TrimSpace(head)

	end := 0
	if end < len(head) && (head[end] == '+' || head[end] == '-') {
		end++
	}
	for end < len(head) && head[end] >= '0' && head[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(head[:end])
	if err != nil {
		return 0
	}
	return n
}

const (
	MinImpactScore = 60
	MaxImpactScore = 100
)

// ParseImpactScore accepts only the exact "NN/100" form with NN in
// [MinImpactScore, MaxImpactScore].
func ParseImpactScore(s string) (int, bool) {
	head, tail, ok := strings.Cut(s, "/")
	if !ok || tail != "100" || head == "" {
		return 0, false
	}
	for _, r := range head {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(head)
	if err != nil || n < MinImpactScore || n > MaxImpactScore {
		return 0, false
	}
	return n, true
}

// ValidSentiment reports whether s is one of the two sentiment labels.
func ValidSentiment(s string) bool {
	return s == SentimentPositive || s == SentimentVeryPositive
}

// Public returns a copy without the passcode.
func (p Pledge) Public() Pledge {
	p.Passcode = ""
	return p
}

// UnmarshalJSON accepts records written by older versions of the wall,
// which used "aiImpact", "video" and "voice".
func (p *Pledge) UnmarshalJSON(data []byte) error {
	type plain Pledge
	var aux struct {
		plain
		AIImpact string `json:"aiImpact"`
		Video    string `json:"video"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Pledge(aux.plain)
	if p.AIImpactScore == "" {
		p.AIImpactScore = aux.AIImpact
	}
	if p.VideoData == "" {
		p.VideoData = aux.Video
	}
	switch p.InputMethod {
	case inputMethodVoice, "":
		if p.VideoData != "" {
			p.InputMethod = InputMethodVideo
		} else {
			p.InputMethod = InputMethodText
		}
	}
	return nil
}
