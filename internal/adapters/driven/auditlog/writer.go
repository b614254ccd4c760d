// Package auditlog writes audit entries as JSON files on disk.
//
// Entries are grouped by account under the log directory, one file per
// entry, named "<timestamp>_<stem>_<kind>.json". Cleanup prunes files
// older than the retention window and is run by the scheduler.
package auditlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
	"github.com/custodia-labs/ocrbox/internal/logger"
)

// LocalScope is the directory used for entries without an account.
const LocalScope = "local"

const stampLayout = "20060102T150405.000000000Z"

// Ensure Writer implements the interface.
var _ driven.AuditLog = (*Writer)(nil)

// Writer stores audit entries under dir.
type Writer struct {
	dir           string
	retentionDays int
	now           func() time.Time
	mu            sync.Mutex
}

// NewWriter creates a writer. retentionDays <= 0 disables Cleanup.
func NewWriter(dir string, retentionDays int) *Writer {
	return &Writer{dir: dir, retentionDays: retentionDays, now: time.Now}
}

// Dir returns the root log directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Record writes entry to its own file.
func (w *Writer) Record(_ context.Context, entry domain.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = w.now().UTC()
	}
	data, err := entry.Marshal()
	if err != nil {
		return fmt.Errorf("encoding audit entry: %w", err)
	}

	dir := filepath.Join(w.dir, scopeDir(entry.AccountID))
	name := entry.Timestamp.UTC().Format(stampLayout) + "_" + entry.FileName()

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating audit dir: %w", err)
	}
	return writeAtomic(filepath.Join(dir, name), data)
}

// Cleanup removes entries older than the retention window and returns
// how many were removed.
func (w *Writer) Cleanup(ctx context.Context) (int, error) {
	if w.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := w.now().AddDate(0, 0, -w.retentionDays)

	removed := 0
	err := filepath.WalkDir(w.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			logger.Warn("audit retention: removing %s: %v", path, err)
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("pruning audit logs: %w", err)
	}
	return removed, nil
}

// scopeDir maps an account ID to a safe directory name.
func scopeDir(accountID string) string {
	if accountID == "" {
		return LocalScope
	}
	dir := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, accountID)
	if dir == "." || dir == ".." {
		return "_" + dir
	}
	return dir
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".audit-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing audit entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing audit entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming audit entry: %w", err)
	}
	return nil
}
