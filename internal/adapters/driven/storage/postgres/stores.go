package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// ==================== Cursor Store ====================

// cursorStore implements driven.CursorStore.
type cursorStore struct {
	db *gorm.DB
}

var _ driven.CursorStore = (*cursorStore)(nil)

func (s *cursorStore) Save(ctx context.Context, cursor domain.SyncCursor) error {
	if cursor.UpdatedAt.IsZero() {
		cursor.UpdatedAt = time.Now().UTC()
	}
	row := syncCursor{AccountID: cursor.AccountID, Cursor: cursor.Cursor, UpdatedAt: cursor.UpdatedAt}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"cursor", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("saving cursor: %w", err)
	}
	return nil
}

func (s *cursorStore) Get(ctx context.Context, accountID string) (*domain.SyncCursor, error) {
	var row syncCursor
	err := s.db.WithContext(ctx).First(&row, "account_id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading cursor: %w", err)
	}
	return &domain.SyncCursor{AccountID: row.AccountID, Cursor: row.Cursor, UpdatedAt: row.UpdatedAt}, nil
}

func (s *cursorStore) Delete(ctx context.Context, accountID string) error {
	if err := s.db.WithContext(ctx).Delete(&syncCursor{}, "account_id = ?", accountID).Error; err != nil {
		return fmt.Errorf("deleting cursor: %w", err)
	}
	return nil
}

// ==================== Vocabulary Store ====================

// vocabularyStore implements driven.VocabularyStore.
type vocabularyStore struct {
	db *gorm.DB
}

var _ driven.VocabularyStore = (*vocabularyStore)(nil)

func (s *vocabularyStore) List(ctx context.Context, scope string) ([]domain.VocabularyEntry, error) {
	var rows []vocabularyEntry
	err := s.db.WithContext(ctx).Where("scope = ?", scope).Order("first_seen, name").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying vocabulary: %w", err)
	}
	out := make([]domain.VocabularyEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.VocabularyEntry{
			Scope:     r.Scope,
			Name:      r.Name,
			Origin:    domain.TagOrigin(r.Origin),
			FirstSeen: r.FirstSeen,
		})
	}
	return out, nil
}

func (s *vocabularyStore) Add(ctx context.Context, entry domain.VocabularyEntry) error {
	if entry.Name == "" {
		return fmt.Errorf("%w: tag name is required", domain.ErrValidation)
	}
	if entry.FirstSeen.IsZero() {
		entry.FirstSeen = time.Now().UTC()
	}
	row := vocabularyEntry{Scope: entry.Scope, Name: entry.Name, Origin: string(entry.Origin), FirstSeen: entry.FirstSeen}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("adding vocabulary entry: %w", err)
	}
	return nil
}

// ==================== Scheduler Store ====================

// schedulerStore implements driven.SchedulerStore.
type schedulerStore struct {
	db *gorm.DB
}

var _ driven.SchedulerStore = (*schedulerStore)(nil)

func (s *schedulerStore) GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error) {
	var row scheduledTask
	err := s.db.WithContext(ctx).First(&row, "id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading scheduled task: %w", err)
	}
	task := row.toDomain()
	return &task, nil
}

func (s *schedulerStore) ListTasks(ctx context.Context) ([]domain.ScheduledTask, error) {
	var rows []scheduledTask
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying scheduled tasks: %w", err)
	}
	out := make([]domain.ScheduledTask, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *schedulerStore) SaveTask(ctx context.Context, task *domain.ScheduledTask) error {
	if task == nil {
		return domain.ErrValidation
	}
	row := fromTask(task)
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("saving scheduled task: %w", err)
	}
	return nil
}

func (s *schedulerStore) DeleteTask(ctx context.Context, taskID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&taskResult{}, "task_id = ?", taskID).Error; err != nil {
			return fmt.Errorf("deleting task history: %w", err)
		}
		if err := tx.Delete(&scheduledTask{}, "id = ?", taskID).Error; err != nil {
			return fmt.Errorf("deleting scheduled task: %w", err)
		}
		return nil
	})
}

func (s *schedulerStore) RecordResult(ctx context.Context, result *domain.TaskResult) error {
	if result == nil {
		return domain.ErrValidation
	}
	row := taskResult{
		TaskID:         result.TaskID,
		StartedAt:      result.StartedAt,
		EndedAt:        result.EndedAt,
		Success:        result.Success,
		Error:          strPtr(result.Error),
		ItemsProcessed: result.ItemsProcessed,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("recording task result: %w", err)
	}
	return nil
}

func (s *schedulerStore) GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	var rows []taskResult
	err := s.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("started_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying task history: %w", err)
	}
	out := make([]domain.TaskResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.TaskResult{
			TaskID:         r.TaskID,
			StartedAt:      r.StartedAt,
			EndedAt:        r.EndedAt,
			Success:        r.Success,
			Error:          deref(r.Error),
			ItemsProcessed: r.ItemsProcessed,
		})
	}
	return out, nil
}

func (s *schedulerStore) PruneHistory(ctx context.Context, keep int) error {
	err := s.db.WithContext(ctx).Exec(`
		DELETE FROM task_results
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY task_id ORDER BY started_at DESC, id DESC) AS rn
				FROM task_results
			) ranked WHERE rn > ?
		)
	`, keep).Error
	if err != nil {
		return fmt.Errorf("pruning task history: %w", err)
	}
	return nil
}
