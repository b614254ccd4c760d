package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ocrbox/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driving"
)

// mockSynchronizer implements driving.Synchronizer for scheduler tests.
type mockSynchronizer struct {
	mu       sync.Mutex
	accounts []string
	results  map[string]domain.AccountSyncResult
	blocks   map[string]chan struct{}
	polled   []string
}

func newMockSynchronizer(accounts ...string) *mockSynchronizer {
	return &mockSynchronizer{
		accounts: accounts,
		results:  make(map[string]domain.AccountSyncResult),
		blocks:   make(map[string]chan struct{}),
	}
}

func (m *mockSynchronizer) Accounts(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.accounts...), nil
}

func (m *mockSynchronizer) PollAccount(_ context.Context, id string) domain.AccountSyncResult {
	m.mu.Lock()
	m.polled = append(m.polled, id)
	block := m.blocks[id]
	r, ok := m.results[id]
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	if !ok {
		r = domain.AccountSyncResult{AccountID: id}
	}
	return r
}

func (m *mockSynchronizer) PollAll(ctx context.Context) ([]domain.AccountSyncResult, error) {
	accounts, _ := m.Accounts(ctx)
	var out []domain.AccountSyncResult
	for _, id := range accounts {
		out = append(out, m.PollAccount(ctx, id))
	}
	return out, nil
}

func (m *mockSynchronizer) Status(id string) driving.SyncStatus {
	return driving.SyncStatus{AccountID: id}
}

func (m *mockSynchronizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.polled)
}

func (m *mockSynchronizer) setAccounts(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = ids
}

var _ driving.Synchronizer = (*mockSynchronizer)(nil)

func testSchedulerConfig() domain.SchedulerConfig {
	cfg := domain.DefaultSchedulerConfig()
	cfg.Tick = 10 * time.Millisecond
	return cfg
}

func TestScheduler_StartStop(t *testing.T) {
	store := memory.NewSchedulerStore()
	syncer := newMockSynchronizer("a")
	scheduler := NewScheduler(testSchedulerConfig(), store, syncer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Start(ctx)
	}()

	// New tasks are due immediately, so the account task is created at
	// startup and polled on the next tick.
	require.Eventually(t, func() bool { return syncer.Calls() >= 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, scheduler.Stop())
	wg.Wait()

	// No new runs after Stop.
	calls := syncer.Calls()
	scheduler.checkAndRunDueTasks(context.Background())
	scheduler.wg.Wait()
	assert.Equal(t, calls, syncer.Calls())
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	scheduler := NewScheduler(testSchedulerConfig(), memory.NewSchedulerStore(), nil)
	require.NoError(t, scheduler.Stop())
}

func TestScheduler_InitialiseTasks(t *testing.T) {
	store := memory.NewSchedulerStore()
	scheduler := NewScheduler(testSchedulerConfig(), store, nil)
	ctx := context.Background()

	require.NoError(t, scheduler.initialiseTasks(ctx))

	poll, err := store.GetTask(ctx, domain.TaskIDRemotePoll)
	require.NoError(t, err)
	require.NotNil(t, poll)
	assert.Equal(t, "Remote Poll", poll.Name)
	assert.Equal(t, 30*time.Second, poll.Interval)

	retention, err := store.GetTask(ctx, domain.TaskIDAuditRetention)
	require.NoError(t, err)
	require.NotNil(t, retention)
	assert.Equal(t, 24*time.Hour, retention.Interval)
}

func TestScheduler_EnsureTaskUpdatesInterval(t *testing.T) {
	store := memory.NewSchedulerStore()
	scheduler := NewScheduler(testSchedulerConfig(), store, nil)
	ctx := context.Background()

	cfg := domain.TaskConfig{Enabled: true, Interval: time.Hour}
	require.NoError(t, scheduler.ensureTask(ctx, "t", "T", cfg))
	cfg.Interval = 2 * time.Hour
	require.NoError(t, scheduler.ensureTask(ctx, "t", "T", cfg))

	task, err := store.GetTask(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, task.Interval)
}

func TestScheduler_RemotePollKeepsOneTaskPerAccount(t *testing.T) {
	store := memory.NewSchedulerStore()
	syncer := newMockSynchronizer("a", "b")
	scheduler := NewScheduler(testSchedulerConfig(), store, syncer)
	ctx := context.Background()

	scheduler.runTask(ctx, &domain.ScheduledTask{ID: domain.TaskIDRemotePoll, Interval: time.Minute, Enabled: true})
	scheduler.wg.Wait()

	for _, id := range []string{"a", "b"} {
		task, err := store.GetTask(ctx, domain.AccountPollTaskID(id))
		require.NoError(t, err)
		require.NotNil(t, task, id)
		assert.True(t, task.Enabled)
		assert.Equal(t, 30*time.Second, task.Interval)
	}
	history, err := store.GetTaskHistory(ctx, domain.TaskIDRemotePoll, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 2, history[0].ItemsProcessed)
	assert.Zero(t, syncer.Calls(), "reconciling does not poll")

	// A removed account loses its task.
	syncer.setAccounts("a")
	scheduler.runTask(ctx, &domain.ScheduledTask{ID: domain.TaskIDRemotePoll, Interval: time.Minute, Enabled: true})
	scheduler.wg.Wait()

	gone, err := store.GetTask(ctx, domain.AccountPollTaskID("b"))
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := store.GetTask(ctx, domain.AccountPollTaskID("a"))
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestScheduler_AccountPollRecordsResult(t *testing.T) {
	store := memory.NewSchedulerStore()
	syncer := newMockSynchronizer("a")
	syncer.results["a"] = domain.AccountSyncResult{AccountID: "a", Processed: 2}
	scheduler := NewScheduler(testSchedulerConfig(), store, syncer)
	ctx := context.Background()

	taskID := domain.AccountPollTaskID("a")
	scheduler.runTask(ctx, &domain.ScheduledTask{ID: taskID, Interval: time.Minute, Enabled: true})
	scheduler.wg.Wait()

	history, err := store.GetTaskHistory(ctx, taskID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)
	assert.Equal(t, 2, history[0].ItemsProcessed)

	saved, err := store.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.True(t, saved.NextRun.After(saved.LastRun))
}

func TestScheduler_NoOverlap(t *testing.T) {
	syncer := newMockSynchronizer("a")
	syncer.blocks["a"] = make(chan struct{})
	scheduler := NewScheduler(testSchedulerConfig(), memory.NewSchedulerStore(), syncer)
	ctx := context.Background()

	task := domain.ScheduledTask{ID: domain.AccountPollTaskID("a"), Interval: time.Minute, Enabled: true}
	first, second := task, task
	scheduler.runTask(ctx, &first)
	require.Eventually(t, func() bool { return syncer.Calls() == 1 }, time.Second, 5*time.Millisecond)
	scheduler.runTask(ctx, &second)

	close(syncer.blocks["a"])
	scheduler.wg.Wait()
	assert.Equal(t, 1, syncer.Calls())
}

func TestScheduler_SlowAccountDoesNotDelayOthers(t *testing.T) {
	store := memory.NewSchedulerStore()
	syncer := newMockSynchronizer("slow", "fast")
	release := make(chan struct{})
	syncer.blocks["slow"] = release
	scheduler := NewScheduler(testSchedulerConfig(), store, syncer)
	ctx := context.Background()

	scheduler.runTask(ctx, &domain.ScheduledTask{ID: domain.AccountPollTaskID("slow"), Interval: time.Minute, Enabled: true})

	fastID := domain.AccountPollTaskID("fast")
	for i := 0; i < 2; i++ {
		scheduler.runTask(ctx, &domain.ScheduledTask{ID: fastID, Interval: time.Minute, Enabled: true})
		require.Eventually(t, func() bool {
			history, err := store.GetTaskHistory(ctx, fastID, 10)
			return err == nil && len(history) == i+1
		}, time.Second, 5*time.Millisecond)
	}

	close(release)
	scheduler.wg.Wait()
}

func TestScheduler_StorageFailureIsFatal(t *testing.T) {
	syncer := newMockSynchronizer("a")
	syncer.results["a"] = domain.AccountSyncResult{AccountID: "a", Err: domain.ErrStorageUnavailable}
	var fatal error
	scheduler := NewScheduler(testSchedulerConfig(), memory.NewSchedulerStore(), syncer,
		WithFatalHandler(func(err error) { fatal = err }))

	scheduler.runTask(context.Background(), &domain.ScheduledTask{ID: domain.AccountPollTaskID("a"), Enabled: true})
	scheduler.wg.Wait()
	assert.ErrorIs(t, fatal, domain.ErrStorageUnavailable)
}

func TestScheduler_ItemErrorsAreNotFatal(t *testing.T) {
	syncer := newMockSynchronizer("a")
	syncer.results["a"] = domain.AccountSyncResult{AccountID: "a", Err: domain.ErrTransient}
	called := false
	store := memory.NewSchedulerStore()
	scheduler := NewScheduler(testSchedulerConfig(), store, syncer,
		WithFatalHandler(func(error) { called = true }))

	taskID := domain.AccountPollTaskID("a")
	scheduler.runTask(context.Background(), &domain.ScheduledTask{ID: taskID, Enabled: true, Interval: time.Minute})
	scheduler.wg.Wait()
	assert.False(t, called)

	saved, err := store.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	assert.Contains(t, saved.LastError, "transient")
}

func TestScheduler_DisabledPollingRemovesAccountTasks(t *testing.T) {
	store := memory.NewSchedulerStore()
	ctx := context.Background()
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{ID: domain.AccountPollTaskID("a"), Enabled: true}))
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{ID: domain.TaskIDRemotePoll, Enabled: true}))

	cfg := testSchedulerConfig()
	cfg.TaskConfigs[domain.TaskIDRemotePoll] = domain.TaskConfig{Enabled: false, Interval: time.Minute}
	scheduler := NewScheduler(cfg, store, nil)
	require.NoError(t, scheduler.initialiseTasks(ctx))

	stale, err := store.GetTask(ctx, domain.AccountPollTaskID("a"))
	require.NoError(t, err)
	assert.Nil(t, stale)
	poll, err := store.GetTask(ctx, domain.TaskIDRemotePoll)
	require.NoError(t, err)
	assert.False(t, poll.Enabled)
}

func TestScheduler_Retention(t *testing.T) {
	store := memory.NewSchedulerStore()
	called := false
	scheduler := NewScheduler(testSchedulerConfig(), store, nil, WithRetention(func(context.Context) (int, error) {
		called = true
		return 7, nil
	}))
	ctx := context.Background()

	scheduler.runTask(ctx, &domain.ScheduledTask{ID: domain.TaskIDAuditRetention, Enabled: true, Interval: time.Hour})
	scheduler.wg.Wait()
	assert.True(t, called)

	history, err := store.GetTaskHistory(ctx, domain.TaskIDAuditRetention, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 7, history[0].ItemsProcessed)
}

func TestScheduler_UnknownTask(t *testing.T) {
	scheduler := NewScheduler(testSchedulerConfig(), memory.NewSchedulerStore(), nil)
	scheduler.runTask(context.Background(), &domain.ScheduledTask{ID: "unknown", Enabled: true})
	scheduler.wg.Wait()
}
