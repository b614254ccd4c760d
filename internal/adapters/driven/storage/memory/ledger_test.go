package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

func TestLedger_ReserveCompleteGet(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	rec := &domain.ProcessedFile{Fingerprint: "fp", AccountID: "a", SourceName: "scan.png"}
	require.NoError(t, l.Reserve(ctx, rec))
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, domain.StatusPending, rec.Status)
	assert.Equal(t, 1, rec.Attempts)

	rec.Status = domain.StatusSuccess
	rec.OutputPath = "/Outbox/[receipts]_shop.txt"
	rec.Tags = []domain.AssignedTag{{Name: "receipts", Confidence: 90, Primary: true}}
	require.NoError(t, l.Complete(ctx, rec))

	got, err := l.Get(ctx, "fp", "a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, got.Status)
	assert.Equal(t, []string{"receipts"}, got.TagNames())

	_, err = l.Get(ctx, "fp", "b")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	has, err := l.HasOutput(ctx, "a", "/Outbox/[receipts]_shop.txt")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = l.HasOutput(ctx, "b", "/Outbox/[receipts]_shop.txt")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestLedger_ReserveResetsFailedRecord(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	first := &domain.ProcessedFile{Fingerprint: "fp", AccountID: domain.LocalAccount}
	require.NoError(t, l.Reserve(ctx, first))
	first.Status = domain.StatusFailed
	first.Error = "extraction: boom"
	require.NoError(t, l.Complete(ctx, first))

	retry := &domain.ProcessedFile{Fingerprint: "fp", AccountID: domain.LocalAccount}
	require.NoError(t, l.Reserve(ctx, retry))
	assert.Equal(t, first.ID, retry.ID)
	assert.Equal(t, 2, retry.Attempts)
	assert.Equal(t, domain.StatusPending, retry.Status)
	assert.Empty(t, retry.Error)
}

func TestLedger_Stats(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	for i, status := range []domain.FileStatus{domain.StatusSuccess, domain.StatusSuccess, domain.StatusFailed} {
		rec := &domain.ProcessedFile{Fingerprint: string(rune('a' + i)), AccountID: "acct"}
		require.NoError(t, l.Reserve(ctx, rec))
		rec.Status = status
		require.NoError(t, l.Complete(ctx, rec))
	}
	require.NoError(t, l.Reserve(ctx, &domain.ProcessedFile{Fingerprint: "z", AccountID: ""}))

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "", stats[0].AccountID)
	assert.Equal(t, 1, stats[0].Pending)
	assert.Equal(t, "acct", stats[1].AccountID)
	assert.Equal(t, 2, stats[1].Success)
	assert.Equal(t, 1, stats[1].Failed)

	recent, err := l.Recent(ctx, "acct", 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestCredentialStore(t *testing.T) {
	s := NewCredentialStore()
	ctx := context.Background()

	assert.ErrorIs(t, s.Put(ctx, domain.AccountCredential{}), domain.ErrValidation)

	require.NoError(t, s.Put(ctx, domain.AccountCredential{AccountID: "b", AccessToken: "1"}))
	require.NoError(t, s.Put(ctx, domain.AccountCredential{AccountID: "a", AccessToken: "2"}))
	require.NoError(t, s.Put(ctx, domain.AccountCredential{AccountID: "b", AccessToken: "3"}))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].AccountID)

	got, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "3", got.AccessToken)

	require.NoError(t, s.Remove(ctx, "b"))
	require.NoError(t, s.Remove(ctx, "b"))
	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCursorStore(t *testing.T) {
	s := NewCursorStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Save(ctx, domain.SyncCursor{AccountID: "a", Cursor: "c1"}))
	require.NoError(t, s.Save(ctx, domain.SyncCursor{AccountID: "a", Cursor: "c2"}))
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "c2", got.Cursor)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVocabularyStore(t *testing.T) {
	s := NewVocabularyStore()
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, domain.VocabularyEntry{Scope: "a", Name: "groceries", Origin: domain.OriginLearned}))
	require.NoError(t, s.Add(ctx, domain.VocabularyEntry{Scope: "a", Name: "groceries", Origin: domain.OriginSeed}))

	entries, err := s.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.OriginLearned, entries[0].Origin)

	entries, err = s.List(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSchedulerStore(t *testing.T) {
	s := NewSchedulerStore()
	ctx := context.Background()

	task, err := s.GetTask(ctx, domain.TaskIDRemotePoll)
	require.NoError(t, err)
	assert.Nil(t, task)

	require.NoError(t, s.SaveTask(ctx, &domain.ScheduledTask{ID: domain.TaskIDRemotePoll, Enabled: true}))
	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordResult(ctx, &domain.TaskResult{TaskID: domain.TaskIDRemotePoll, ItemsProcessed: i}))
	}
	require.NoError(t, s.PruneHistory(ctx, 3))
	history, err := s.GetTaskHistory(ctx, domain.TaskIDRemotePoll, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 4, history[0].ItemsProcessed)
}

func TestLedger_ReserveRejectsSuccessfulRecord(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	rec := &domain.ProcessedFile{Fingerprint: "fp", AccountID: "a"}
	require.NoError(t, l.Reserve(ctx, rec))
	rec.Status = domain.StatusSuccess
	require.NoError(t, l.Complete(ctx, rec))

	err := l.Reserve(ctx, &domain.ProcessedFile{Fingerprint: "fp", AccountID: "a"})
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
}

func TestLedger_HasOutputIncludesFailedRecords(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	rec := &domain.ProcessedFile{Fingerprint: "fp", AccountID: "a"}
	require.NoError(t, l.Reserve(ctx, rec))
	rec.Status = domain.StatusFailed
	rec.OutputPath = "/Outbox/[receipts]_shop.txt"
	require.NoError(t, l.Complete(ctx, rec))

	has, err := l.HasOutput(ctx, "a", "/Outbox/[receipts]_shop.txt")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = l.HasOutput(ctx, "a", "")
	require.NoError(t, err)
	assert.False(t, has)
}
