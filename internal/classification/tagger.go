package classification

import (
	"sort"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// Settings are the thresholds and limits used for tagging and naming.
type Settings struct {
	// PrimaryThreshold is the minimum confidence for the primary tag.
	PrimaryThreshold int

	// AdditionalThreshold is the minimum confidence for additional tags.
	AdditionalThreshold int

	// MaxAdditional caps the number of additional tags, clamped to 1..5.
	MaxAdditional int

	// MaxTitleLength caps the sanitized title, at least MinTitleLength.
	MaxTitleLength int
}

// DefaultSettings returns the default thresholds.
func DefaultSettings() Settings {
	return Settings{
		PrimaryThreshold:    80,
		AdditionalThreshold: 70,
		MaxAdditional:       3,
		MaxTitleLength:      30,
	}
}

// Normalize clamps the settings into their allowed ranges.
func (s Settings) Normalize() Settings {
	s.MaxAdditional = clamp(s.MaxAdditional, 1, 5)
	if s.MaxTitleLength < MinTitleLength {
		s.MaxTitleLength = MinTitleLength
	}
	s.PrimaryThreshold = clamp(s.PrimaryThreshold, 0, 100)
	s.AdditionalThreshold = clamp(s.AdditionalThreshold, 0, 100)
	return s
}

// TagSet is the read side of a vocabulary.
type TagSet interface {
	Contains(name string) bool
}

// AcceptedTags filters proposals against the vocabulary and thresholds.
//
// The primary proposal is the highest-confidence one flagged primary; it is
// accepted at PrimaryThreshold or above, otherwise the uncategorized marker
// takes its place. The remaining proposals are accepted in descending
// confidence at AdditionalThreshold or above, up to MaxAdditional.
// Proposals not in the vocabulary are never accepted.
func AcceptedTags(proposals []domain.TagProposal, vocab TagSet, settings Settings) []domain.AssignedTag {
	s := settings.Normalize()
	cleaned := dedupe(proposals)

	primaryIdx := -1
	for i, p := range cleaned {
		if p.Primary && (primaryIdx < 0 || p.Confidence > cleaned[primaryIdx].Confidence) {
			primaryIdx = i
		}
	}

	var accepted []domain.AssignedTag
	if primaryIdx >= 0 && cleaned[primaryIdx].Confidence >= s.PrimaryThreshold && vocab.Contains(cleaned[primaryIdx].Name) {
		p := cleaned[primaryIdx]
		accepted = append(accepted, domain.AssignedTag{Name: p.Name, Confidence: p.Confidence, Primary: true})
	} else {
		accepted = append(accepted, domain.AssignedTag{Name: domain.UncategorizedTag, Primary: true})
	}

	var additional []domain.TagProposal
	for i, p := range cleaned {
		if i == primaryIdx {
			continue
		}
		additional = append(additional, p)
	}
	sort.SliceStable(additional, func(i, j int) bool {
		return additional[i].Confidence > additional[j].Confidence
	})

	count := 0
	for _, p := range additional {
		if count >= s.MaxAdditional {
			break
		}
		if p.Confidence < s.AdditionalThreshold || !vocab.Contains(p.Name) || p.Name == accepted[0].Name {
			continue
		}
		accepted = append(accepted, domain.AssignedTag{Name: p.Name, Confidence: p.Confidence})
		count++
	}
	return accepted
}

// dedupe normalizes names, clamps confidences and keeps the strongest
// proposal per name. A name flagged primary anywhere stays primary.
func dedupe(proposals []domain.TagProposal) []domain.TagProposal {
	index := make(map[string]int, len(proposals))
	out := make([]domain.TagProposal, 0, len(proposals))
	for _, p := range proposals {
		name := NormalizeTag(p.Name)
		if !ValidTag(name) {
			continue
		}
		p.Name = name
		p.Confidence = clamp(p.Confidence, 0, 100)
		if i, ok := index[name]; ok {
			if p.Confidence > out[i].Confidence {
				out[i].Confidence = p.Confidence
			}
			out[i].Primary = out[i].Primary || p.Primary
			continue
		}
		index[name] = len(out)
		out = append(out, p)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
