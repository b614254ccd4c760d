package tesseract

import (
	"errors"
	"sort"
	"strings"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// ErrUnsupported is returned when the binary was built without Tesseract.
var ErrUnsupported = errors.New("built without tesseract support (rebuild with -tags tesseract)")

// keywords maps seed tags to words that suggest them.
var keywords = map[string][]string{
	"receipts":    {"receipt", "total", "subtotal", "cash", "change", "vat"},
	"invoices":    {"invoice", "due date", "bill to", "amount due"},
	"finance":     {"bank", "balance", "account", "payment", "statement", "tax"},
	"travel":      {"flight", "boarding", "hotel", "booking", "departure", "gate"},
	"health":      {"patient", "prescription", "clinic", "doctor", "dose"},
	"work":        {"meeting", "project", "deadline", "agenda"},
	"notes":       {"todo", "note", "remember"},
	"documents":   {"contract", "agreement", "signature", "section"},
	"screenshots": {"http", "www.", "settings", "notification"},
}

// titleFrom returns the first non-empty line of text.
func titleFrom(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// proposeTags scores vocabulary tags by keyword hits. A tag whose own name
// appears in the text scores as a keyword. The top tag is marked primary.
func proposeTags(text string, vocabulary []string) []domain.TagProposal {
	lower := strings.ToLower(text)
	var out []domain.TagProposal
	for _, tag := range vocabulary {
		words := append([]string{strings.TrimSuffix(tag, "s")}, keywords[tag]...)
		hits := 0
		for _, w := range words {
			if w != "" && strings.Contains(lower, w) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		confidence := 60 + 10*hits
		if confidence > 95 {
			confidence = 95
		}
		out = append(out, domain.TagProposal{Name: tag, Confidence: confidence})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > 0 {
		out[0].Primary = true
	}
	return out
}
