package gemini

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// NoTextFound is the transcription used when the image holds no text.
const NoTextFound = "No text found."

type response struct {
	Text  string `json:"text"`
	Title string `json:"title"`
	Tags  []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
		Primary    bool    `json:"primary"`
	} `json:"tags"`
}

// parseResponse decodes the model's JSON answer. Code fences are tolerated.
// Malformed JSON is permanent; retrying the same image rarely helps.
func parseResponse(raw string) (*domain.Extraction, error) {
	body := stripFences(raw)

	var r response
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("%w: decoding model response: %w", domain.ErrValidation, err)
	}

	ext := &domain.Extraction{
		Text:  strings.TrimSpace(r.Text),
		Title: strings.TrimSpace(r.Title),
		Raw:   raw,
	}
	if ext.Text == "" {
		ext.Text = NoTextFound
	}
	for _, t := range r.Tags {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		ext.Proposals = append(ext.Proposals, domain.TagProposal{
			Name:       name,
			Confidence: normaliseConfidence(t.Confidence),
			Primary:    t.Primary,
		})
	}
	return ext, nil
}

// normaliseConfidence maps fractional scores onto 0..100 and clamps.
func normaliseConfidence(c float64) int {
	if c > 0 && c < 1 {
		c *= 100
	}
	return int(math.Round(math.Max(0, math.Min(100, c))))
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
