package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// processedFile is the processed_files row.
type processedFile struct {
	ID          string    `gorm:"column:id;primaryKey"`
	Fingerprint string    `gorm:"column:fingerprint"`
	AccountID   string    `gorm:"column:account_id"`
	SourceID    string    `gorm:"column:source_id"`
	SourceName  string    `gorm:"column:source_name"`
	Status      string    `gorm:"column:status"`
	OutputPath  *string   `gorm:"column:output_path"`
	ArchivePath *string   `gorm:"column:archive_path"`
	Title       *string   `gorm:"column:title"`
	Tags        string    `gorm:"column:tags;type:jsonb"`
	DurationMS  int64     `gorm:"column:duration_ms"`
	Attempts    int       `gorm:"column:attempts"`
	Error       *string   `gorm:"column:error"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (processedFile) TableName() string { return "processed_files" }

func (m processedFile) toDomain() (*domain.ProcessedFile, error) {
	rec := &domain.ProcessedFile{
		ID:          m.ID,
		Fingerprint: m.Fingerprint,
		AccountID:   m.AccountID,
		SourceID:    m.SourceID,
		SourceName:  m.SourceName,
		Status:      domain.FileStatus(m.Status),
		OutputPath:  deref(m.OutputPath),
		ArchivePath: deref(m.ArchivePath),
		Title:       deref(m.Title),
		Duration:    time.Duration(m.DurationMS) * time.Millisecond,
		Attempts:    m.Attempts,
		Error:       deref(m.Error),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.Tags != "" && m.Tags != "null" {
		if err := json.Unmarshal([]byte(m.Tags), &rec.Tags); err != nil {
			return nil, fmt.Errorf("unmarshalling tags: %w", err)
		}
	}
	return rec, nil
}

func encodeTags(tags []domain.AssignedTag) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshalling tags: %w", err)
	}
	return string(b), nil
}

// syncCursor is the sync_cursors row.
type syncCursor struct {
	AccountID string    `gorm:"column:account_id;primaryKey"`
	Cursor    string    `gorm:"column:cursor"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (syncCursor) TableName() string { return "sync_cursors" }

// vocabularyEntry is the vocabulary row.
type vocabularyEntry struct {
	Scope     string    `gorm:"column:scope;primaryKey"`
	Name      string    `gorm:"column:name;primaryKey"`
	Origin    string    `gorm:"column:origin"`
	FirstSeen time.Time `gorm:"column:first_seen"`
}

func (vocabularyEntry) TableName() string { return "vocabulary" }

// scheduledTask is the scheduled_tasks row.
type scheduledTask struct {
	ID              string     `gorm:"column:id;primaryKey"`
	Name            string     `gorm:"column:name"`
	IntervalSeconds int64      `gorm:"column:interval_seconds"`
	LastRun         *time.Time `gorm:"column:last_run"`
	NextRun         *time.Time `gorm:"column:next_run"`
	LastError       *string    `gorm:"column:last_error"`
	LastSuccess     *time.Time `gorm:"column:last_success"`
	Enabled         bool       `gorm:"column:enabled"`
}

func (scheduledTask) TableName() string { return "scheduled_tasks" }

func fromTask(t *domain.ScheduledTask) scheduledTask {
	return scheduledTask{
		ID:              t.ID,
		Name:            t.Name,
		IntervalSeconds: int64(t.Interval.Seconds()),
		LastRun:         timePtr(t.LastRun),
		NextRun:         timePtr(t.NextRun),
		LastError:       strPtr(t.LastError),
		LastSuccess:     timePtr(t.LastSuccess),
		Enabled:         t.Enabled,
	}
}

func (m scheduledTask) toDomain() domain.ScheduledTask {
	return domain.ScheduledTask{
		ID:          m.ID,
		Name:        m.Name,
		Interval:    time.Duration(m.IntervalSeconds) * time.Second,
		LastRun:     derefTime(m.LastRun),
		NextRun:     derefTime(m.NextRun),
		LastError:   deref(m.LastError),
		LastSuccess: derefTime(m.LastSuccess),
		Enabled:     m.Enabled,
	}
}

// taskResult is the task_results row.
type taskResult struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TaskID         string    `gorm:"column:task_id"`
	StartedAt      time.Time `gorm:"column:started_at"`
	EndedAt        time.Time `gorm:"column:ended_at"`
	Success        bool      `gorm:"column:success"`
	Error          *string   `gorm:"column:error"`
	ItemsProcessed int       `gorm:"column:items_processed"`
}

func (taskResult) TableName() string { return "task_results" }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
