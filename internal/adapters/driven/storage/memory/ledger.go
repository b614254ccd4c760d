package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// Ensure Ledger implements the interface.
var _ driven.Ledger = (*Ledger)(nil)

type ledgerKey struct {
	fingerprint string
	accountID   string
}

// Ledger is an in-memory implementation of driven.Ledger.
type Ledger struct {
	mu      sync.RWMutex
	records map[ledgerKey]*domain.ProcessedFile
	byID    map[string]ledgerKey
}

// NewLedger creates a new in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		records: make(map[ledgerKey]*domain.ProcessedFile),
		byID:    make(map[string]ledgerKey),
	}
}

// Get returns the record for a fingerprint in an account scope.
func (l *Ledger) Get(_ context.Context, fingerprint, accountID string) (*domain.ProcessedFile, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[ledgerKey{fingerprint, accountID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyRecord(rec), nil
}

// Reserve stores rec as pending, resetting a prior non-success record.
func (l *Ledger) Reserve(_ context.Context, rec *domain.ProcessedFile) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	key := ledgerKey{rec.Fingerprint, rec.AccountID}
	if existing, ok := l.records[key]; ok {
		if existing.Status == domain.StatusSuccess {
			return domain.ErrAlreadyProcessed
		}
		existing.Status = domain.StatusPending
		existing.SourceID = rec.SourceID
		existing.SourceName = rec.SourceName
		existing.Error = ""
		existing.Attempts++
		existing.UpdatedAt = now
		*rec = *copyRecord(existing)
		return nil
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.Status = domain.StatusPending
	rec.Attempts = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	l.records[key] = copyRecord(rec)
	l.byID[rec.ID] = key
	return nil
}

// Complete persists the final state of a reserved record.
func (l *Ledger) Complete(_ context.Context, rec *domain.ProcessedFile) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key, ok := l.byID[rec.ID]
	if !ok {
		return domain.ErrNotFound
	}
	stored := copyRecord(rec)
	stored.UpdatedAt = time.Now()
	l.records[key] = stored
	rec.UpdatedAt = stored.UpdatedAt
	return nil
}

// HasOutput reports whether any record, whatever its status, names
// outputPath as its output.
func (l *Ledger) HasOutput(_ context.Context, accountID, outputPath string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for key, rec := range l.records {
		if key.accountID == accountID && rec.OutputPath != "" && rec.OutputPath == outputPath {
			return true, nil
		}
	}
	return false, nil
}

// Stats returns record counts grouped by account.
func (l *Ledger) Stats(_ context.Context) ([]domain.LedgerStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	byAccount := make(map[string]*domain.LedgerStats)
	for key, rec := range l.records {
		st, ok := byAccount[key.accountID]
		if !ok {
			st = &domain.LedgerStats{AccountID: key.accountID}
			byAccount[key.accountID] = st
		}
		switch rec.Status {
		case domain.StatusPending:
			st.Pending++
		case domain.StatusSuccess:
			st.Success++
		case domain.StatusFailed:
			st.Failed++
		}
		if rec.UpdatedAt.After(st.LastAt) {
			st.LastAt = rec.UpdatedAt
		}
	}
	out := make([]domain.LedgerStats, 0, len(byAccount))
	for _, st := range byAccount {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

// Recent returns the newest records for an account scope.
func (l *Ledger) Recent(_ context.Context, accountID string, limit int) ([]domain.ProcessedFile, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.ProcessedFile
	for key, rec := range l.records {
		if key.accountID == accountID {
			out = append(out, *copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyRecord(rec *domain.ProcessedFile) *domain.ProcessedFile {
	c := *rec
	c.Tags = append([]domain.AssignedTag(nil), rec.Tags...)
	return &c
}
