package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ocrbox/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ocrbox/internal/classification"
	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

type syncFixture struct {
	creds     *memory.CredentialStore
	cursors   *memory.CursorStore
	remotes   *mockRemoteFactory
	refresher *mockRefresher
	processor *mockProcessor
	ledger    *memory.Ledger
	registry  *classification.Registry
	notifier  *mockNotifier
	sync      *Synchronizer
}

func newSyncFixture(t *testing.T, accounts ...string) *syncFixture {
	t.Helper()
	f := &syncFixture{
		creds:     memory.NewCredentialStore(),
		cursors:   memory.NewCursorStore(),
		remotes:   newMockRemoteFactory(),
		processor: &mockProcessor{errs: make(map[string]error)},
		ledger:    memory.NewLedger(),
		registry:  classification.NewRegistry(classification.DefaultSeedTags, memory.NewVocabularyStore()),
		notifier:  &mockNotifier{},
	}
	f.refresher = &mockRefresher{creds: f.creds}
	for _, id := range accounts {
		require.NoError(t, f.creds.Put(context.Background(), domain.AccountCredential{
			AccountID:    id,
			AccessToken:  "tok-" + id,
			RefreshToken: "refresh-" + id,
		}))
	}
	f.sync = NewSynchronizer(f.creds, f.cursors, f.remotes, f.refresher, f.processor, f.ledger, f.registry, DefaultSyncConfig())
	f.sync.SetNotifier(f.notifier)
	return f
}

func TestSynchronizer_PollAdvancesCursor(t *testing.T) {
	f := newSyncFixture(t, "a")
	store := f.remotes.store("a")
	img := store.put("/Inbox/receipt.jpg", []byte("jpeg"))
	store.pages[""] = &domain.ListPage{Items: []domain.RemoteItem{img}, Cursor: "c1"}

	result := f.sync.PollAccount(context.Background(), "a")
	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Processed)

	cursor, err := f.cursors.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "c1", cursor.Cursor)

	// Next poll lists from c1 and sees nothing new.
	result = f.sync.PollAccount(context.Background(), "a")
	require.NoError(t, result.Err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, []string{"", "c1"}, store.listCalls)
	assert.Equal(t, []string{"receipt.jpg"}, f.processor.Names())
}

func TestSynchronizer_FollowsHasMore(t *testing.T) {
	f := newSyncFixture(t, "a")
	store := f.remotes.store("a")
	one := store.put("/Inbox/one.png", []byte("1"))
	two := store.put("/Inbox/two.png", []byte("2"))
	store.pages[""] = &domain.ListPage{Items: []domain.RemoteItem{one}, Cursor: "p1", HasMore: true}
	store.pages["p1"] = &domain.ListPage{Items: []domain.RemoteItem{two}, Cursor: "p2"}

	result := f.sync.PollAccount(context.Background(), "a")
	require.NoError(t, result.Err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, []string{"one.png", "two.png"}, f.processor.Names())

	cursor, err := f.cursors.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "p2", cursor.Cursor)
}

func TestSynchronizer_ExpiredCursorResyncs(t *testing.T) {
	f := newSyncFixture(t, "a")
	ctx := context.Background()
	require.NoError(t, f.cursors.Save(ctx, domain.SyncCursor{AccountID: "a", Cursor: "stale"}))

	store := f.remotes.store("a")
	img := store.put("/Inbox/old.png", []byte("old"))
	store.listErrs = []error{domain.ErrCursorExpired}
	store.pages[""] = &domain.ListPage{Items: []domain.RemoteItem{img}, Cursor: "fresh"}

	result := f.sync.PollAccount(ctx, "a")
	require.NoError(t, result.Err)
	assert.True(t, result.FullResync)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, []string{"stale", ""}, store.listCalls)

	cursor, err := f.cursors.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "fresh", cursor.Cursor)
}

func TestSynchronizer_RefreshesOnceOnAuthFailure(t *testing.T) {
	f := newSyncFixture(t, "a")
	f.remotes.staleAt["a"] = "tok-a"
	store := f.remotes.store("a")
	img := store.put("/Inbox/x.png", []byte("x"))
	store.pages[""] = &domain.ListPage{Items: []domain.RemoteItem{img}, Cursor: "c1"}

	result := f.sync.PollAccount(context.Background(), "a")
	require.NoError(t, result.Err)
	assert.Equal(t, 1, f.refresher.Calls())
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, []string{"tok-a", "tok-a-fresh"}, f.remotes.opened["a"])
}

func TestSynchronizer_RefreshFailureAbortsAccount(t *testing.T) {
	f := newSyncFixture(t, "a")
	f.remotes.staleAt["a"] = "tok-a"
	f.refresher.err = domain.ErrTokenRefreshFailed

	result := f.sync.PollAccount(context.Background(), "a")
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, domain.ErrAuthExpired)
	assert.Equal(t, 1, f.refresher.Calls())
	assert.Empty(t, f.processor.Names())

	_, err := f.cursors.Get(context.Background(), "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSynchronizer_AccountsAreIsolated(t *testing.T) {
	f := newSyncFixture(t, "a", "b")
	f.remotes.store("a").listErrs = []error{domain.ErrTransient}
	storeB := f.remotes.store("b")
	img := storeB.put("/Inbox/b.png", []byte("b"))
	storeB.pages[""] = &domain.ListPage{Items: []domain.RemoteItem{img}, Cursor: "cb"}

	results, err := f.sync.PollAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	byAccount := make(map[string]domain.AccountSyncResult)
	for _, r := range results {
		byAccount[r.AccountID] = r
	}
	assert.ErrorIs(t, byAccount["a"].Err, domain.ErrTransient)
	assert.NoError(t, byAccount["b"].Err)
	assert.Equal(t, 1, byAccount["b"].Processed)

	_, err = f.cursors.Get(context.Background(), "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	cursor, err := f.cursors.Get(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "cb", cursor.Cursor)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventBatchSummary, events[0].Kind)
	assert.Equal(t, 1, events[0].Processed)
}

func TestSynchronizer_PollAllStorageFailureIsFatal(t *testing.T) {
	f := newSyncFixture(t)
	s := NewSynchronizer(failingCredentialStore{}, f.cursors, f.remotes, f.refresher, f.processor, f.ledger, f.registry, DefaultSyncConfig())

	_, err := s.PollAll(context.Background())
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestSynchronizer_ItemFailureDoesNotStopBatch(t *testing.T) {
	f := newSyncFixture(t, "a")
	store := f.remotes.store("a")
	bad := store.put("/Inbox/bad.png", []byte("bad"))
	good := store.put("/Inbox/good.png", []byte("good"))
	store.pages[""] = &domain.ListPage{Items: []domain.RemoteItem{bad, good}, Cursor: "c1"}
	f.processor.errs["bad.png"] = &domain.ProcessingError{Stage: domain.StageExtraction, Reason: "boom", Err: errors.New("boom")}

	result := f.sync.PollAccount(context.Background(), "a")
	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Processed)

	cursor, err := f.cursors.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "c1", cursor.Cursor)
}

func TestSynchronizer_DownloadFailureKeepsCursor(t *testing.T) {
	f := newSyncFixture(t, "a")
	store := f.remotes.store("a")
	img := store.put("/Inbox/x.png", []byte("x"))
	store.downloadErrs["/Inbox/x.png"] = domain.ErrTransient
	store.pages[""] = &domain.ListPage{Items: []domain.RemoteItem{img}, Cursor: "c1"}

	result := f.sync.PollAccount(context.Background(), "a")
	assert.ErrorIs(t, result.Err, domain.ErrTransient)
	_, err := f.cursors.Get(context.Background(), "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSynchronizer_SkipsExcludedAndNonInboxItems(t *testing.T) {
	f := newSyncFixture(t, "a")
	cfg := DefaultSyncConfig()
	cfg.Accept = func(name string) bool { return name != "notes.txt" }
	f.sync = NewSynchronizer(f.creds, f.cursors, f.remotes, f.refresher, f.processor, f.ledger, f.registry, cfg)

	store := f.remotes.store("a")
	items := []domain.RemoteItem{
		store.put("/Archive/old.png", []byte("1")),
		store.put("/Logs/x_processing.json", []byte("2")),
		store.put("/elsewhere/y.png", []byte("3")),
		store.put("/inbox/notes.txt", []byte("4")),
		{Path: "/Inbox/gone.png", Name: "gone.png", Deleted: true},
		{Path: "/Inbox/sub", Name: "sub", Folder: true},
		store.put("/INBOX/keep.png", []byte("5")),
	}
	store.pages[""] = &domain.ListPage{Items: items, Cursor: "c1"}

	result := f.sync.PollAccount(context.Background(), "a")
	require.NoError(t, result.Err)
	assert.Equal(t, []string{"keep.png"}, f.processor.Names())
}

func TestSynchronizer_LearnsFromUserRenamedOutputs(t *testing.T) {
	f := newSyncFixture(t, "a")
	store := f.remotes.store("a")
	renamed := store.put("/Outbox/[groceries]_weekly-shop.txt", []byte("milk"))
	store.pages[""] = &domain.ListPage{Items: []domain.RemoteItem{renamed}, Cursor: "c1"}

	result := f.sync.PollAccount(context.Background(), "a")
	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Learned)
	assert.Empty(t, f.processor.Names())

	vocab, ok := f.registry.Lookup("a")
	require.True(t, ok)
	assert.True(t, vocab.Contains("groceries"))

	other, err := f.registry.Scope(context.Background(), "b", nil)
	require.NoError(t, err)
	assert.False(t, other.Contains("groceries"))
}

func TestSynchronizer_DoesNotLearnFromOwnOutputs(t *testing.T) {
	f := newSyncFixture(t, "a")
	ctx := context.Background()
	rec := &domain.ProcessedFile{Fingerprint: "fp", AccountID: "a"}
	require.NoError(t, f.ledger.Reserve(ctx, rec))
	rec.Status = domain.StatusSuccess
	rec.OutputPath = "/Outbox/[mystery]_thing.txt"
	require.NoError(t, f.ledger.Complete(ctx, rec))

	store := f.remotes.store("a")
	own := store.put("/Outbox/[mystery]_thing.txt", []byte("x"))
	store.pages[""] = &domain.ListPage{Items: []domain.RemoteItem{own}, Cursor: "c1"}

	result := f.sync.PollAccount(ctx, "a")
	require.NoError(t, result.Err)
	assert.Zero(t, result.Learned)
}

func TestSynchronizer_SeedsFromRemoteTagsFile(t *testing.T) {
	f := newSyncFixture(t, "a")
	store := f.remotes.store("a")
	store.put("/tags.txt", []byte("# my tags\nrecipes\nwarranty\n"))

	result := f.sync.PollAccount(context.Background(), "a")
	require.NoError(t, result.Err)

	vocab, ok := f.registry.Lookup("a")
	require.True(t, ok)
	assert.True(t, vocab.Contains("recipes"))
	assert.True(t, vocab.Contains("warranty"))
}

func TestSynchronizer_InProgressGuard(t *testing.T) {
	f := newSyncFixture(t, "a")
	require.True(t, f.sync.begin("a"))

	result := f.sync.PollAccount(context.Background(), "a")
	assert.ErrorIs(t, result.Err, domain.ErrSyncInProgress)
	assert.True(t, f.sync.Status("a").Running)

	f.sync.end(domain.AccountSyncResult{AccountID: "a", EndedAt: time.Now()})
	status := f.sync.Status("a")
	assert.False(t, status.Running)
	require.NotNil(t, status.LastResult)
}

func TestSynchronizer_UnknownAccount(t *testing.T) {
	f := newSyncFixture(t)
	result := f.sync.PollAccount(context.Background(), "ghost")
	assert.ErrorIs(t, result.Err, domain.ErrNotFound)
}

func TestInArea(t *testing.T) {
	assert.True(t, inArea("/Inbox/a.png", "/Inbox"))
	assert.True(t, inArea("/inbox/a.png", "/Inbox/"))
	assert.True(t, inArea("/Inbox", "/Inbox"))
	assert.False(t, inArea("/Inboxes/a.png", "/Inbox"))
	assert.False(t, inArea("/a.png", ""))
}

func TestSynchronizer_SlowTagsFileDoesNotDelayOtherAccounts(t *testing.T) {
	f := newSyncFixture(t, "a", "b")
	storeA := f.remotes.store("a")
	storeA.put("/tags.txt", []byte("recipes\n"))
	gate := make(chan struct{})
	storeA.downloadGates["/tags.txt"] = gate

	storeB := f.remotes.store("b")
	img := storeB.put("/Inbox/b.png", []byte("b"))
	storeB.pages[""] = &domain.ListPage{Items: []domain.RemoteItem{img}, Cursor: "cb"}

	resultA := make(chan domain.AccountSyncResult, 1)
	go func() { resultA <- f.sync.PollAccount(context.Background(), "a") }()
	require.Eventually(t, func() bool { return f.sync.Status("a").Running }, time.Second, 5*time.Millisecond)

	resultB := make(chan domain.AccountSyncResult, 1)
	go func() { resultB <- f.sync.PollAccount(context.Background(), "b") }()
	select {
	case r := <-resultB:
		require.NoError(t, r.Err)
		assert.Equal(t, 1, r.Processed)
	case <-time.After(time.Second):
		t.Fatal("account b waited on account a's tags file")
	}

	close(gate)
	r := <-resultA
	require.NoError(t, r.Err)
	vocab, ok := f.registry.Lookup("a")
	require.True(t, ok)
	assert.True(t, vocab.Contains("recipes"))
}

func TestSynchronizer_PollAccountSummarizesOwnBatch(t *testing.T) {
	f := newSyncFixture(t, "a")
	store := f.remotes.store("a")
	img := store.put("/Inbox/receipt.jpg", []byte("jpeg"))
	store.pages[""] = &domain.ListPage{Items: []domain.RemoteItem{img}, Cursor: "c1"}

	result := f.sync.PollAccount(context.Background(), "a")
	require.NoError(t, result.Err)
	assert.False(t, result.EndedAt.IsZero())
	assert.False(t, result.EndedAt.Before(result.StartedAt))

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventBatchSummary, events[0].Kind)
	assert.Equal(t, 1, events[0].Processed)

	// An empty cycle sends nothing.
	f.sync.PollAccount(context.Background(), "a")
	assert.Len(t, f.notifier.Events(), 1)
}

func TestSynchronizer_Accounts(t *testing.T) {
	f := newSyncFixture(t, "a", "b")
	ids, err := f.sync.Accounts(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}
