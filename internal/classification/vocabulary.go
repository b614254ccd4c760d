package classification

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// DefaultSeedTags is the vocabulary written to a fresh tags file.
var DefaultSeedTags = []string{
	"receipts", "documents", "invoices", "notes", "screenshots",
	"personal", "work", "travel", "health", "finance",
}

var bracketToken = regexp.MustCompile(`\[([^\[\]]+)\]`)

// Vocabulary is the working tag set of one scope.
// It is safe for concurrent use.
type Vocabulary struct {
	scope string
	store driven.VocabularyStore
	now   func() time.Time

	mu       sync.RWMutex
	entries  map[string]domain.VocabularyEntry
	produced map[string]struct{}
}

// NewVocabulary builds a vocabulary from seed names. A nil store keeps
// learned entries in memory only.
func NewVocabulary(scope string, seed []string, store driven.VocabularyStore) *Vocabulary {
	v := &Vocabulary{
		scope:    scope,
		store:    store,
		now:      time.Now,
		entries:  make(map[string]domain.VocabularyEntry),
		produced: make(map[string]struct{}),
	}
	v.addSeed(seed)
	return v
}

func (v *Vocabulary) addSeed(names []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, raw := range names {
		name := NormalizeTag(raw)
		if !ValidTag(name) {
			continue
		}
		if _, ok := v.entries[name]; ok {
			continue
		}
		v.entries[name] = domain.VocabularyEntry{
			Scope:     v.scope,
			Name:      name,
			Origin:    domain.OriginSeed,
			FirstSeen: v.now(),
		}
	}
}

// restore adds previously learned entries without persisting them again.
func (v *Vocabulary) restore(entries []domain.VocabularyEntry) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, e := range entries {
		if _, ok := v.entries[e.Name]; ok || !ValidTag(e.Name) {
			continue
		}
		v.entries[e.Name] = e
	}
}

// Scope returns the scope this vocabulary belongs to.
func (v *Vocabulary) Scope() string {
	return v.scope
}

// Contains reports whether name (after normalization) is in the vocabulary.
func (v *Vocabulary) Contains(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.entries[NormalizeTag(name)]
	return ok
}

// Names returns all tag names sorted alphabetically.
func (v *Vocabulary) Names() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := make([]string, 0, len(v.entries))
	for name := range v.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns all entries sorted by name.
func (v *Vocabulary) Entries() []domain.VocabularyEntry {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]domain.VocabularyEntry, 0, len(v.entries))
	for _, e := range v.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MarkProduced records an output name the system itself wrote, so a later
// Learn on the same name is ignored.
func (v *Vocabulary) MarkProduced(filename string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.produced[path.Base(filename)] = struct{}{}
}

// Produced reports whether filename was written by this process.
func (v *Vocabulary) Produced(filename string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.produced[path.Base(filename)]
	return ok
}

// Learn reads bracketed tokens from a human-edited output filename and adds
// the unseen ones as learned entries. Names this process produced are ignored.
// It returns the names that were added.
func (v *Vocabulary) Learn(ctx context.Context, filename string) ([]string, error) {
	base := path.Base(filename)
	if v.Produced(base) {
		return nil, nil
	}

	var learned []string
	for _, m := range bracketToken.FindAllStringSubmatch(base, -1) {
		name := NormalizeTag(m[1])
		if !ValidTag(name) {
			continue
		}

		v.mu.Lock()
		if _, ok := v.entries[name]; ok {
			v.mu.Unlock()
			continue
		}
		entry := domain.VocabularyEntry{
			Scope:     v.scope,
			Name:      name,
			Origin:    domain.OriginLearned,
			FirstSeen: v.now(),
		}
		v.entries[name] = entry
		v.mu.Unlock()

		if v.store != nil {
			if err := v.store.Add(ctx, entry); err != nil {
				return learned, fmt.Errorf("persisting learned tag %q: %w", name, err)
			}
		}
		learned = append(learned, name)
	}
	return learned, nil
}

// ParseVocabulary reads newline-delimited tag names. Blank lines and lines
// starting with '#' are skipped.
func ParseVocabulary(r io.Reader) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading vocabulary: %w", err)
	}
	return names, nil
}

// FormatVocabulary renders names in the tags file format.
func FormatVocabulary(names []string) []byte {
	var b strings.Builder
	b.WriteString("# One tag per line. Rename outputs to [tag]_title to teach new tags.\n")
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
