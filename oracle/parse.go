package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

var (
	fencePattern  = regexp.MustCompile("```(?:json)?")
	objectPattern = regexp.MustCompile(`(?s)\{.*\}`)

	ErrEmptyResponse = errors.New("oracle returned no content")
)

// ParseVerdict extracts the verdict object from free-form model output.
// Models often wrap JSON in markdown fences or add prose around it.
func ParseVerdict(text string) (Verdict, error) {
	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))
	if cleaned == "" {
		return Verdict{}, ErrEmptyResponse
	}
	if match := objectPattern.FindString(cleaned); match != "" {
		cleaned = match
	}

	// Scores sometimes arrive as floats.
	var raw struct {
		IsValid  bool    `json:"isValid"`
		Score    float64 `json:"score"`
		Feedback string  `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return Verdict{}, fmt.Errorf("failed to parse oracle verdict: %w", err)
	}
	return Verdict{
		IsValid:  raw.IsValid,
		Score:    clampScore(int(math.Round(raw.Score))),
		Feedback: raw.Feedback,
	}, nil
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
