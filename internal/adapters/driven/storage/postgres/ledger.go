package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// ledger implements driven.Ledger.
type ledger struct {
	db *gorm.DB
}

var _ driven.Ledger = (*ledger)(nil)

// Get returns the record for a fingerprint in an account scope.
func (l *ledger) Get(ctx context.Context, fingerprint, accountID string) (*domain.ProcessedFile, error) {
	var row processedFile
	err := l.db.WithContext(ctx).
		Where("fingerprint = ? AND account_id = ?", fingerprint, accountID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger record: %w", err)
	}
	return row.toDomain()
}

// Reserve inserts a pending record, or resets a prior non-success record
// under a row lock so two hosts cannot both claim it.
func (l *ledger) Reserve(ctx context.Context, rec *domain.ProcessedFile) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		var existing processedFile
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("fingerprint = ? AND account_id = ?", rec.Fingerprint, rec.AccountID).
			First(&existing).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if rec.ID == "" {
				rec.ID = uuid.New().String()
			}
			row := processedFile{
				ID:          rec.ID,
				Fingerprint: rec.Fingerprint,
				AccountID:   rec.AccountID,
				SourceID:    rec.SourceID,
				SourceName:  rec.SourceName,
				Status:      string(domain.StatusPending),
				Tags:        "[]",
				Attempts:    1,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("inserting ledger record: %w", err)
			}
			stored, err := row.toDomain()
			if err != nil {
				return err
			}
			*rec = *stored
			return nil
		case err != nil:
			return fmt.Errorf("reading ledger record: %w", err)
		case existing.Status == string(domain.StatusSuccess):
			return fmt.Errorf("%w: %s", domain.ErrAlreadyProcessed, rec.Fingerprint)
		}

		existing.SourceID = rec.SourceID
		existing.SourceName = rec.SourceName
		existing.Status = string(domain.StatusPending)
		existing.Error = nil
		existing.Attempts++
		existing.UpdatedAt = now
		if err := tx.Save(&existing).Error; err != nil {
			return fmt.Errorf("resetting ledger record: %w", err)
		}
		stored, err := existing.toDomain()
		if err != nil {
			return err
		}
		*rec = *stored
		return nil
	})
}

// Complete persists the final state of a reserved record.
func (l *ledger) Complete(ctx context.Context, rec *domain.ProcessedFile) error {
	tags, err := encodeTags(rec.Tags)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	result := l.db.WithContext(ctx).Model(&processedFile{}).
		Where("id = ?", rec.ID).
		Updates(map[string]any{
			"status":       string(rec.Status),
			"output_path":  strPtr(rec.OutputPath),
			"archive_path": strPtr(rec.ArchivePath),
			"title":        strPtr(rec.Title),
			"tags":         tags,
			"duration_ms":  rec.Duration.Milliseconds(),
			"error":        strPtr(rec.Error),
			"updated_at":   now,
		})
	if result.Error != nil {
		return fmt.Errorf("completing ledger record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	rec.UpdatedAt = now
	return nil
}

// HasOutput reports whether any record, whatever its status, names
// outputPath as its output.
func (l *ledger) HasOutput(ctx context.Context, accountID, outputPath string) (bool, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&processedFile{}).
		Where("account_id = ? AND output_path = ?", accountID, outputPath).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("checking output: %w", err)
	}
	return n > 0, nil
}

// Stats returns record counts grouped by account.
func (l *ledger) Stats(ctx context.Context) ([]domain.LedgerStats, error) {
	var rows []struct {
		AccountID string
		Pending   int
		Success   int
		Failed    int
		LastAt    *time.Time
	}
	err := l.db.WithContext(ctx).Model(&processedFile{}).
		Select(`account_id,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'success') AS success,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			MAX(updated_at) AS last_at`).
		Group("account_id").
		Order("account_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}

	stats := make([]domain.LedgerStats, 0, len(rows))
	for _, r := range rows {
		stats = append(stats, domain.LedgerStats{
			AccountID: r.AccountID,
			Pending:   r.Pending,
			Success:   r.Success,
			Failed:    r.Failed,
			LastAt:    derefTime(r.LastAt),
		})
	}
	return stats, nil
}

// Recent returns the newest records for an account scope.
func (l *ledger) Recent(ctx context.Context, accountID string, limit int) ([]domain.ProcessedFile, error) {
	q := l.db.WithContext(ctx).Where("account_id = ?", accountID).Order("updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []processedFile
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying recent records: %w", err)
	}

	out := make([]domain.ProcessedFile, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}
