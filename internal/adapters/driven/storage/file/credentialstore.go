// Package file provides file-backed storage adapters.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
	"github.com/custodia-labs/ocrbox/internal/logger"
)

// Ensure CredentialStore implements the interface.
var _ driven.CredentialStore = (*CredentialStore)(nil)

const (
	dirMode  fs.FileMode = 0o700
	fileMode fs.FileMode = 0o600
	lockName             = ".lock"

	// lockRetryDelay is how often a blocked writer re-polls the lock.
	lockRetryDelay = 25 * time.Millisecond
)

// CredentialStore keeps one JSON file per account in a private directory.
// An advisory lock on the directory serialises writers across processes.
type CredentialStore struct {
	dir  string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewCredentialStore creates the token directory if needed and restricts
// it to the owner.
func NewCredentialStore(dir string) (*CredentialStore, error) {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("%w: creating token dir: %w", domain.ErrStorageUnavailable, err)
	}
	if err := os.Chmod(dir, dirMode); err != nil {
		logger.Warn("could not restrict %s: %v", dir, err)
	}
	return &CredentialStore{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, lockName)),
	}, nil
}

// Dir returns the token directory.
func (s *CredentialStore) Dir() string {
	return s.dir
}

// Put writes cred to a temp file, fsyncs it and renames it into place.
func (s *CredentialStore) Put(ctx context.Context, cred domain.AccountCredential) error {
	if cred.AccountID == "" {
		return fmt.Errorf("%w: account id is required", domain.ErrValidation)
	}
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}

	return s.withLock(ctx, func() error {
		return writeAtomic(s.dir, s.path(cred.AccountID), data)
	})
}

// Get reads the credential for accountID.
func (s *CredentialStore) Get(_ context.Context, accountID string) (*domain.AccountCredential, error) {
	cred, err := readCredential(s.path(accountID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// List returns every readable credential ordered by account ID. Corrupt
// files are logged and skipped.
func (s *CredentialStore) List(_ context.Context) ([]domain.AccountCredential, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading token dir: %w", domain.ErrStorageUnavailable, err)
	}

	var out []domain.AccountCredential
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		cred, err := readCredential(filepath.Join(s.dir, e.Name()))
		if err != nil {
			logger.Warn("skipping token file %s: %v", e.Name(), err)
			continue
		}
		out = append(out, *cred)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

// Remove deletes the credential file. Missing files are ignored.
func (s *CredentialStore) Remove(ctx context.Context, accountID string) error {
	return s.withLock(ctx, func() error {
		err := os.Remove(s.path(accountID))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: removing credential: %w", domain.ErrStorageUnavailable, err)
		}
		return nil
	})
}

func (s *CredentialStore) withLock(ctx context.Context, fn func() error) error {
	// flock is per file handle, so goroutines sharing s serialise here.
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("%w: locking token dir: %w", domain.ErrStorageUnavailable, err)
	}
	if !locked {
		return fmt.Errorf("%w: token dir is locked", domain.ErrStorageUnavailable)
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func (s *CredentialStore) path(accountID string) string {
	return filepath.Join(s.dir, fileName(accountID))
}

// fileName maps an account ID to a safe file name. Dropbox IDs look like
// "dbid:AAH...".
func fileName(accountID string) string {
	safe := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(accountID)
	if safe == "" || strings.HasPrefix(safe, ".") {
		safe = "_" + safe
	}
	return safe + ".json"
}

func readCredential(path string) (*domain.AccountCredential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reading credential: %w", domain.ErrStorageUnavailable, err)
	}
	var cred domain.AccountCredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", domain.ErrValidation, filepath.Base(path), err)
	}
	if cred.AccountID == "" {
		return nil, fmt.Errorf("%w: %s has no account id", domain.ErrValidation, filepath.Base(path))
	}
	return &cred, nil
}

// writeAtomic replaces path with data so readers never see a partial file.
func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".cred-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", domain.ErrStorageUnavailable, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: writing credential: %w", domain.ErrStorageUnavailable, err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: syncing credential: %w", domain.ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: replacing credential: %w", domain.ErrStorageUnavailable, err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes the rename to disk where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
