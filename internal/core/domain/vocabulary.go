package domain

import "time"

// TagOrigin records where a vocabulary entry came from.
type TagOrigin string

// Tag origins.
const (
	OriginSeed    TagOrigin = "seed"
	OriginLearned TagOrigin = "learned"
)

// UncategorizedTag is assigned when no primary tag clears its threshold.
const UncategorizedTag = "uncategorized"

// VocabularyEntry is one tag name in an account's vocabulary.
type VocabularyEntry struct {
	Scope     string
	Name      string
	Origin    TagOrigin
	FirstSeen time.Time
}
