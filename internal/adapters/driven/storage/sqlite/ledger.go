package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// ledger implements driven.Ledger.
type ledger struct {
	store *Store
}

var _ driven.Ledger = (*ledger)(nil)

const ledgerColumns = `id, fingerprint, account_id, source_id, source_name, status,
	output_path, archive_path, title, tags, duration_ms, attempts, error, created_at, updated_at`

// Get returns the record for a fingerprint in an account scope.
func (l *ledger) Get(ctx context.Context, fingerprint, accountID string) (*domain.ProcessedFile, error) {
	row := l.store.db.QueryRowContext(ctx,
		"SELECT "+ledgerColumns+" FROM processed_files WHERE fingerprint = ? AND account_id = ?",
		fingerprint, accountID)
	return scanProcessedFile(row)
}

// Reserve inserts a pending record, or resets a prior failed or pending one
// and bumps its attempt count. Reserving a successful record returns
// ErrAlreadyProcessed.
func (l *ledger) Reserve(ctx context.Context, rec *domain.ProcessedFile) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := formatTime(time.Now())

	res, err := l.store.db.ExecContext(ctx, `
		INSERT INTO processed_files (id, fingerprint, account_id, source_id, source_name, status, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'pending', 1, ?, ?)
		ON CONFLICT(fingerprint, account_id) DO UPDATE SET
			source_id = excluded.source_id,
			source_name = excluded.source_name,
			status = 'pending',
			error = NULL,
			attempts = processed_files.attempts + 1,
			updated_at = excluded.updated_at
		WHERE processed_files.status != 'success'
	`, rec.ID, rec.Fingerprint, rec.AccountID, rec.SourceID, rec.SourceName, now, now)
	if err != nil {
		return fmt.Errorf("reserving ledger record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyProcessed, rec.Fingerprint)
	}

	stored, err := l.Get(ctx, rec.Fingerprint, rec.AccountID)
	if err != nil {
		return err
	}
	*rec = *stored
	return nil
}

// Complete persists the final state of a reserved record.
func (l *ledger) Complete(ctx context.Context, rec *domain.ProcessedFile) error {
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("marshalling tags: %w", err)
	}
	if rec.Tags == nil {
		tags = []byte("[]")
	}
	now := time.Now()

	res, err := l.store.db.ExecContext(ctx, `
		UPDATE processed_files SET
			status = ?, output_path = ?, archive_path = ?, title = ?, tags = ?,
			duration_ms = ?, error = ?, updated_at = ?
		WHERE id = ?
	`, string(rec.Status), nullString(rec.OutputPath), nullString(rec.ArchivePath), nullString(rec.Title),
		string(tags), rec.Duration.Milliseconds(), nullString(rec.Error), formatTime(now), rec.ID)
	if err != nil {
		return fmt.Errorf("completing ledger record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	rec.UpdatedAt = now
	return nil
}

// HasOutput reports whether any record, whatever its status, names
// outputPath as its output.
func (l *ledger) HasOutput(ctx context.Context, accountID, outputPath string) (bool, error) {
	var n int
	err := l.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM processed_files
		WHERE account_id = ? AND output_path = ?
	`, accountID, outputPath).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking output: %w", err)
	}
	return n > 0, nil
}

// Stats returns record counts grouped by account.
func (l *ledger) Stats(ctx context.Context) ([]domain.LedgerStats, error) {
	rows, err := l.store.db.QueryContext(ctx, `
		SELECT account_id,
			SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
			MAX(updated_at)
		FROM processed_files
		GROUP BY account_id
		ORDER BY account_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.LedgerStats //nolint:prealloc // size unknown from query
	for rows.Next() {
		var st domain.LedgerStats
		var last sql.NullString
		if err := rows.Scan(&st.AccountID, &st.Pending, &st.Success, &st.Failed, &last); err != nil {
			return nil, fmt.Errorf("scanning stats: %w", err)
		}
		st.LastAt = parseNullableTime(last)
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stats: %w", err)
	}
	return stats, nil
}

// Recent returns the newest records for an account scope.
func (l *ledger) Recent(ctx context.Context, accountID string, limit int) ([]domain.ProcessedFile, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.store.db.QueryContext(ctx,
		"SELECT "+ledgerColumns+" FROM processed_files WHERE account_id = ? ORDER BY updated_at DESC LIMIT ?",
		accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent records: %w", err)
	}
	defer rows.Close()

	var out []domain.ProcessedFile //nolint:prealloc // size unknown from query
	for rows.Next() {
		rec, err := scanProcessedFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recent records: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProcessedFile(row rowScanner) (*domain.ProcessedFile, error) {
	var (
		rec                                    domain.ProcessedFile
		status, tags, createdAt, updatedAt     string
		outputPath, archivePath, title, errMsg sql.NullString
		durationMS                             int64
	)
	err := row.Scan(&rec.ID, &rec.Fingerprint, &rec.AccountID, &rec.SourceID, &rec.SourceName, &status,
		&outputPath, &archivePath, &title, &tags, &durationMS, &rec.Attempts, &errMsg, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning ledger record: %w", err)
	}

	rec.Status = domain.FileStatus(status)
	rec.OutputPath = outputPath.String
	rec.ArchivePath = archivePath.String
	rec.Title = title.String
	rec.Error = errMsg.String
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	if tags != "" && tags != "null" {
		if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
			return nil, fmt.Errorf("unmarshalling tags: %w", err)
		}
	}
	return &rec, nil
}
