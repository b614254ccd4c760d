package classification

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// SeedFunc loads additional seed names for a scope when it is first opened.
type SeedFunc func(ctx context.Context) ([]string, error)

// Registry owns one Vocabulary per scope.
type Registry struct {
	seed  []string
	store driven.VocabularyStore

	mu     sync.Mutex
	scopes map[string]*scopeEntry
}

// scopeEntry is a scope being opened or already open. ready is closed once
// v or err is set.
type scopeEntry struct {
	ready chan struct{}
	v     *Vocabulary
	err   error
}

// NewRegistry creates a registry. Every scope starts from seed.
func NewRegistry(seed []string, store driven.VocabularyStore) *Registry {
	return &Registry{
		seed:   seed,
		store:  store,
		scopes: make(map[string]*scopeEntry),
	}
}

// Scope returns the vocabulary for scope, building it on first use from the
// shared seed, the optional extra seed and any stored learned entries.
// Opening one scope never blocks callers of another; concurrent callers of
// the same scope share one load. A failed load is forgotten so the next
// call retries it.
func (r *Registry) Scope(ctx context.Context, scope string, extra SeedFunc) (*Vocabulary, error) {
	r.mu.Lock()
	e, ok := r.scopes[scope]
	if !ok {
		e = &scopeEntry{ready: make(chan struct{})}
		r.scopes[scope] = e
	}
	r.mu.Unlock()

	if ok {
		select {
		case <-e.ready:
			return e.v, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.v, e.err = r.open(ctx, scope, extra)
	if e.err != nil {
		r.mu.Lock()
		delete(r.scopes, scope)
		r.mu.Unlock()
	}
	close(e.ready)
	return e.v, e.err
}

func (r *Registry) open(ctx context.Context, scope string, extra SeedFunc) (*Vocabulary, error) {
	v := NewVocabulary(scope, r.seed, r.store)
	if extra != nil {
		names, err := extra(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading seed for scope %q: %w", scope, err)
		}
		v.addSeed(names)
	}
	if r.store != nil {
		stored, err := r.store.List(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("loading learned tags for scope %q: %w", scope, err)
		}
		v.restore(stored)
	}
	return v, nil
}

// Lookup returns an already opened scope.
func (r *Registry) Lookup(scope string) (*Vocabulary, bool) {
	r.mu.Lock()
	e, ok := r.scopes[scope]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
		return e.v, e.err == nil
	default:
		return nil, false
	}
}
