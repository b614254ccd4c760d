package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// Ensure Destination implements the interface.
var _ driven.Destination = (*Destination)(nil)

// Destination writes outputs and archives originals on local disk.
type Destination struct {
	outbox  string
	archive string
}

// NewDestination creates a destination, creating both folders.
func NewDestination(outbox, archive string) (*Destination, error) {
	for _, dir := range []string{outbox, archive} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return &Destination{outbox: outbox, archive: archive}, nil
}

// OutputExists reports whether the outbox holds name.
func (d *Destination) OutputExists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(filepath.Join(d.outbox, name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// WriteOutput writes content atomically and returns the output path.
func (d *Destination) WriteOutput(_ context.Context, name string, content []byte) (string, error) {
	target := filepath.Join(d.outbox, filepath.Base(name))
	if err := writeFileAtomic(target, content, 0o644); err != nil {
		return "", err
	}
	return target, nil
}

// Archive moves the original into the archive folder. When the original is
// gone or on another device, content is written instead.
func (d *Destination) Archive(_ context.Context, source domain.SourceRef, content []byte) (string, error) {
	target, err := freeName(d.archive, source.Name)
	if err != nil {
		return "", err
	}
	if source.Path != "" {
		if err := os.Rename(source.Path, target); err == nil {
			return target, nil
		}
	}
	if err := writeFileAtomic(target, content, 0o644); err != nil {
		return "", err
	}
	if source.Path != "" {
		if err := os.Remove(source.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return target, fmt.Errorf("removing original %s: %w", source.Path, err)
		}
	}
	return target, nil
}

// freeName returns dir/name, or dir/stem-N.ext for the first free N.
func freeName(dir, name string) (string, error) {
	name = filepath.Base(name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(dir, name)
	for i := 1; ; i++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", candidate, err)
		}
		candidate = filepath.Join(dir, stem+"-"+strconv.Itoa(i)+ext)
	}
}

// writeFileAtomic writes via a synced temp file and a rename.
func writeFileAtomic(path string, content []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ocrbox-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("setting mode on %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}
