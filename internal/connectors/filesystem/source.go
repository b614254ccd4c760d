package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
	"github.com/custodia-labs/ocrbox/internal/logger"
)

// DefaultDebounce is how long a file must stay quiet before it is reported.
const DefaultDebounce = 500 * time.Millisecond

// Ensure Source implements the interface.
var _ driven.LocalSource = (*Source)(nil)

// Source is the local inbox and outbox.
type Source struct {
	inbox    string
	outbox   string
	debounce time.Duration
}

// NewSource creates a source. outbox may be empty to disable learning.
func NewSource(inbox, outbox string, debounce time.Duration) *Source {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Source{inbox: inbox, outbox: outbox, debounce: debounce}
}

// Scan lists regular, non-hidden inbox files, oldest first.
func (s *Source) Scan(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.inbox)
	if err != nil {
		return nil, fmt.Errorf("reading inbox: %w", err)
	}

	type file struct {
		path string
		mod  time.Time
	}
	var files []file
	for _, e := range entries {
		if !e.Type().IsRegular() || isHidden(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{path: filepath.Join(s.inbox, e.Name()), mod: info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// Read returns a file's content. A missing file wraps domain.ErrNotFound.
func (s *Source) Read(_ context.Context, path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return content, nil
}

// Watch reports settled changes until ctx is done.
func (s *Source) Watch(ctx context.Context) (<-chan domain.LocalEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(s.inbox); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", s.inbox, err)
	}
	if s.outbox != "" {
		if err := watcher.Add(s.outbox); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watching %s: %w", s.outbox, err)
		}
	}

	out := make(chan domain.LocalEvent)
	go s.loop(ctx, watcher, out)
	return out, nil
}

func (s *Source) loop(ctx context.Context, watcher *fsnotify.Watcher, out chan<- domain.LocalEvent) {
	defer close(out)
	defer watcher.Close()

	var mu sync.Mutex
	pending := make(map[string]*time.Timer)
	settled := make(chan domain.LocalEvent, 16)

	defer func() {
		mu.Lock()
		for _, t := range pending {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			change := s.handleFsEvent(ev)
			if change == nil {
				continue
			}
			mu.Lock()
			if t, ok := pending[change.Path]; ok {
				t.Stop()
			}
			c := *change
			pending[c.Path] = time.AfterFunc(s.debounce, func() {
				mu.Lock()
				delete(pending, c.Path)
				mu.Unlock()
				select {
				case settled <- c:
				case <-ctx.Done():
				}
			})
			mu.Unlock()

		case c := <-settled:
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher error: %v", err)
		}
	}
}

// handleFsEvent maps an fsnotify event to a change, or nil if it is ignored.
func (s *Source) handleFsEvent(ev fsnotify.Event) *domain.LocalEvent {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return nil
	}
	if isHidden(filepath.Base(ev.Name)) {
		return nil
	}
	info, err := os.Stat(ev.Name)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}

	switch filepath.Dir(ev.Name) {
	case filepath.Clean(s.inbox):
		return &domain.LocalEvent{Kind: domain.LocalInbox, Path: ev.Name}
	case filepath.Clean(s.outbox):
		if !ev.Has(fsnotify.Create) {
			return nil
		}
		return &domain.LocalEvent{Kind: domain.LocalOutbox, Path: ev.Name}
	}
	return nil
}

// isHidden reports whether name is a dotfile or an editor temp file.
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~")
}
