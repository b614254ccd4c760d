package classification

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MinTagLength and MaxTagLength bound a valid tag name.
	MinTagLength = 2
	MaxTagLength = 30

	// MinTitleLength is the shortest title kept before falling back to untitledTitle.
	MinTitleLength = 5

	untitledTitle = "untitled"
)

var (
	nonSlug       = regexp.MustCompile(`[^a-z0-9]+`)
	nonTagChar    = regexp.MustCompile(`[^a-z0-9-]+`)
	hyphenRun     = regexp.MustCompile(`-{2,}`)
	tagSeparators = strings.NewReplacer("/", "-", "_", "-", " ", "-", "\t", "-")
)

// reservedTags cannot be learned or proposed; they collide with folder
// names or the uncategorized marker.
var reservedTags = map[string]struct{}{
	"uncategorized": {},
	"logs":          {},
	"archive":       {},
	"inbox":         {},
	"outbox":        {},
}

// stripAccents decomposes s and drops combining marks, so "Café" becomes "Cafe".
func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeTag lowercases a tag name and reduces it to [a-z0-9-].
func NormalizeTag(name string) string {
	s := strings.ToLower(stripAccents(strings.TrimSpace(name)))
	s = tagSeparators.Replace(s)
	s = nonTagChar.ReplaceAllString(s, "")
	s = hyphenRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// ValidTag reports whether a normalized name may enter a vocabulary.
func ValidTag(name string) bool {
	if len(name) < MinTagLength || len(name) > MaxTagLength {
		return false
	}
	if _, reserved := reservedTags[name]; reserved {
		return false
	}
	return NormalizeTag(name) == name
}

// SanitizeTitle produces a lowercase hyphenated slug of at most maxLen
// characters. Slugs shorter than MinTitleLength become "untitled".
func SanitizeTitle(title string, maxLen int) string {
	if maxLen < MinTitleLength {
		maxLen = MinTitleLength
	}
	s := strings.ToLower(stripAccents(title))
	s = nonSlug.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "-")
	}
	if len(s) < MinTitleLength {
		return untitledTitle
	}
	return s
}
