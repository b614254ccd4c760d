package classification

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// maxCollisionAttempts bounds the numeric suffix search before falling
// back to a timestamp suffix.
const maxCollisionAttempts = 1000

// Namer derives output filenames from tags and a title candidate.
type Namer struct {
	// MaxTitleLength caps the sanitized title.
	MaxTitleLength int

	// Extension includes the leading dot, e.g. ".txt".
	Extension string
}

// NewNamer creates a namer.
func NewNamer(maxTitleLength int, extension string) Namer {
	if extension != "" && !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	return Namer{MaxTitleLength: maxTitleLength, Extension: extension}
}

// Name returns "[tag1][tag2]_title.ext", or "title.ext" without tags.
// It is deterministic for a given input.
func (n Namer) Name(tags []string, title string) string {
	return n.stem(tags, title) + n.Extension
}

func (n Namer) stem(tags []string, title string) string {
	var b strings.Builder
	for _, t := range tags {
		t = NormalizeTag(t)
		if t == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(t)
		b.WriteString("]")
	}
	slug := SanitizeTitle(title, n.MaxTitleLength)
	if b.Len() == 0 {
		return slug
	}
	b.WriteString("_")
	b.WriteString(slug)
	return b.String()
}

// ExistsFunc reports whether a name is taken at the output location.
type ExistsFunc func(ctx context.Context, name string) (bool, error)

// Unique returns the computed name, or the first free "<stem>-N<ext>"
// variant if it is taken.
func (n Namer) Unique(ctx context.Context, tags []string, title string, exists ExistsFunc) (string, error) {
	stem := n.stem(tags, title)
	candidate := stem + n.Extension
	for i := 1; ; i++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		if i > maxCollisionAttempts {
			return fmt.Sprintf("%s-%d%s", stem, time.Now().UnixNano(), n.Extension), nil
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, i, n.Extension)
	}
}
