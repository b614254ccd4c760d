package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/ocrbox/internal/classification"
	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driving"
	"github.com/custodia-labs/ocrbox/internal/logger"
)

// Ensure Synchronizer implements the interface.
var _ driving.Synchronizer = (*Synchronizer)(nil)

// SyncConfig controls which remote items are dispatched.
type SyncConfig struct {
	Layout RemoteLayout

	// ExcludedPaths are never dispatched to the pipeline. Matching is a
	// case-insensitive prefix at a path-segment boundary.
	ExcludedPaths []string

	// InboxOnly restricts dispatch to items under Layout.Inbox.
	InboxOnly bool

	// Accept filters item names, e.g. to image extensions. Nil accepts all.
	Accept func(name string) bool
}

// DefaultSyncConfig returns the default dispatch rules.
func DefaultSyncConfig() SyncConfig {
	layout := DefaultRemoteLayout()
	return SyncConfig{
		Layout:        layout,
		ExcludedPaths: []string{layout.Outbox, layout.Archive, layout.Logs},
		InboxOnly:     true,
	}
}

// Synchronizer polls every authorized account for new remote items and
// hands them to the pipeline, one at a time per account.
type Synchronizer struct {
	credentials driven.CredentialStore
	cursors     driven.CursorStore
	remotes     driven.RemoteStoreFactory
	refresher   driving.TokenRefresher
	processor   driving.Processor
	ledger      driven.Ledger
	vocab       *classification.Registry
	notifier    driven.Notifier
	cfg         SyncConfig
	now         func() time.Time

	mu     sync.Mutex
	active map[string]bool
	last   map[string]domain.AccountSyncResult
}

// NewSynchronizer creates a synchronizer.
func NewSynchronizer(
	credentials driven.CredentialStore,
	cursors driven.CursorStore,
	remotes driven.RemoteStoreFactory,
	refresher driving.TokenRefresher,
	processor driving.Processor,
	ledger driven.Ledger,
	vocab *classification.Registry,
	cfg SyncConfig,
) *Synchronizer {
	return &Synchronizer{
		credentials: credentials,
		cursors:     cursors,
		remotes:     remotes,
		refresher:   refresher,
		processor:   processor,
		ledger:      ledger,
		vocab:       vocab,
		cfg:         cfg,
		now:         time.Now,
		active:      make(map[string]bool),
		last:        make(map[string]domain.AccountSyncResult),
	}
}

// SetNotifier sets the sink for batch summaries.
func (s *Synchronizer) SetNotifier(n driven.Notifier) {
	s.notifier = n
}

// PollAll polls every stored account concurrently. Each account runs as its
// own task and reports back on a channel, so one account's failure never
// touches another's. Only a storage failure is returned as an error.
func (s *Synchronizer) PollAll(ctx context.Context) ([]domain.AccountSyncResult, error) {
	accounts, err := s.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		logger.Debug("no authorized accounts to poll")
		return nil, nil
	}

	results := make(chan domain.AccountSyncResult, len(accounts))
	var wg sync.WaitGroup
	for _, accountID := range accounts {
		wg.Add(1)
		go func(accountID string) {
			defer wg.Done()
			results <- s.pollAccount(ctx, accountID)
		}(accountID)
	}
	wg.Wait()
	close(results)

	var (
		out   []domain.AccountSyncResult
		fatal []error
	)
	for r := range results {
		out = append(out, r)
		switch {
		case r.Err == nil:
		case errors.Is(r.Err, domain.ErrStorageUnavailable):
			fatal = append(fatal, fmt.Errorf("account %s: %w", r.AccountID, r.Err))
		case errors.Is(r.Err, context.Canceled):
		default:
			logger.Warn("poll for account %s failed, retrying next cycle: %v", r.AccountID, r.Err)
		}
	}

	s.summarize(ctx, out...)
	return out, errors.Join(fatal...)
}

// Accounts returns the IDs of every stored account.
func (s *Synchronizer) Accounts(ctx context.Context) ([]string, error) {
	creds, err := s.credentials.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing credentials: %w", domain.ErrStorageUnavailable, err)
	}
	ids := make([]string, 0, len(creds))
	for _, c := range creds {
		ids = append(ids, c.AccountID)
	}
	return ids, nil
}

// PollAccount runs one poll cycle for an account: list from the stored
// cursor, dispatch every item in order, then advance the cursor.
func (s *Synchronizer) PollAccount(ctx context.Context, accountID string) domain.AccountSyncResult {
	result := s.pollAccount(ctx, accountID)
	s.summarize(ctx, result)
	return result
}

// summarize sends one batch summary covering results, if any item was handled.
func (s *Synchronizer) summarize(ctx context.Context, results ...domain.AccountSyncResult) {
	if s.notifier == nil {
		return
	}
	processed, failed := 0, 0
	for _, r := range results {
		processed += r.Processed
		failed += r.Failed
	}
	if processed+failed == 0 {
		return
	}
	event := domain.Event{Kind: domain.EventBatchSummary, Processed: processed, Failed: failed, Timestamp: s.now()}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn("batch summary notification failed: %v", err)
	}
}

func (s *Synchronizer) pollAccount(ctx context.Context, accountID string) (result domain.AccountSyncResult) {
	result = domain.AccountSyncResult{AccountID: accountID, StartedAt: s.now()}
	if !s.begin(accountID) {
		result.Err = domain.ErrSyncInProgress
		result.EndedAt = s.now()
		return result
	}
	defer func() {
		result.EndedAt = s.now()
		s.end(result)
	}()

	result.Err = s.poll(ctx, accountID, &result)
	return result
}

func (s *Synchronizer) poll(ctx context.Context, accountID string, result *domain.AccountSyncResult) error {
	log := logger.With("account", accountID)

	cred, err := s.credentials.Get(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: reading credential: %w", domain.ErrStorageUnavailable, err)
	}

	session, err := s.openSession(ctx, *cred)
	if err != nil {
		return err
	}

	vocab, err := s.vocab.Scope(ctx, accountID, s.remoteSeed(session))
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("%w: opening vocabulary: %w", domain.ErrStorageUnavailable, err)
	}

	cursor := ""
	stored, err := s.cursors.Get(ctx, accountID)
	switch {
	case err == nil:
		cursor = stored.Cursor
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("%w: reading cursor: %w", domain.ErrStorageUnavailable, err)
	}

	for {
		var page *domain.ListPage
		err := session.do(ctx, func(remote driven.RemoteStore) error {
			var listErr error
			page, listErr = remote.ListSince(ctx, cursor)
			return listErr
		})
		if errors.Is(err, domain.ErrCursorExpired) && cursor != "" {
			log.Warn("cursor expired, running full resync")
			if err := s.cursors.Delete(ctx, accountID); err != nil {
				return fmt.Errorf("%w: discarding cursor: %w", domain.ErrStorageUnavailable, err)
			}
			cursor = ""
			result.FullResync = true
			continue
		}
		if err != nil {
			return fmt.Errorf("listing changes: %w", err)
		}

		for _, item := range page.Items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.dispatch(ctx, session, vocab, item, result); err != nil {
				return err
			}
		}

		if err := s.cursors.Save(ctx, domain.SyncCursor{
			AccountID: accountID,
			Cursor:    page.Cursor,
			UpdatedAt: s.now(),
		}); err != nil {
			return fmt.Errorf("%w: saving cursor: %w", domain.ErrStorageUnavailable, err)
		}
		cursor = page.Cursor

		if !page.HasMore {
			break
		}
	}

	log.Debug("poll complete", "processed", result.Processed, "skipped", result.Skipped, "failed", result.Failed)
	return nil
}

// dispatch handles one listed item. It returns an error only when the batch
// must stop: a provider failure or a storage failure.
func (s *Synchronizer) dispatch(
	ctx context.Context,
	session *accountSession,
	vocab *classification.Vocabulary,
	item domain.RemoteItem,
	result *domain.AccountSyncResult,
) error {
	if item.Deleted || item.Folder {
		return nil
	}

	if inArea(item.Path, s.cfg.Layout.Outbox) {
		return s.learn(ctx, session.cred.AccountID, vocab, item, result)
	}
	if s.excluded(item.Path) {
		return nil
	}
	if s.cfg.InboxOnly && !inArea(item.Path, s.cfg.Layout.Inbox) {
		return nil
	}
	if s.cfg.Accept != nil && !s.cfg.Accept(item.Name) {
		return nil
	}

	// The item runs to completion once started, even during shutdown.
	itemCtx := context.WithoutCancel(ctx)

	var content []byte
	err := session.do(itemCtx, func(remote driven.RemoteStore) error {
		var dlErr error
		content, dlErr = remote.Download(itemCtx, item)
		return dlErr
	})
	if err != nil {
		return fmt.Errorf("downloading %s: %w", item.Path, err)
	}

	outcome, err := s.processor.Process(itemCtx, driving.ProcessRequest{
		Content:     content,
		Source:      domain.SourceRef{ID: item.ID, Path: item.Path, Name: item.Name},
		AccountID:   session.cred.AccountID,
		Destination: NewRemoteDestination(session.remote, s.cfg.Layout),
	})
	switch {
	case err == nil && outcome.AlreadyProcessed:
		result.Skipped++
	case err == nil:
		result.Processed++
	case errors.Is(err, domain.ErrStorageUnavailable):
		return err
	default:
		// Recorded as failed in the ledger; the batch carries on.
		result.Failed++
	}
	return nil
}

// learn teaches the vocabulary from an outbox file the system did not write.
func (s *Synchronizer) learn(
	ctx context.Context,
	accountID string,
	vocab *classification.Vocabulary,
	item domain.RemoteItem,
	result *domain.AccountSyncResult,
) error {
	if vocab.Produced(item.Name) {
		return nil
	}
	ours, err := s.ledger.HasOutput(ctx, accountID, item.Path)
	if err != nil {
		return fmt.Errorf("%w: checking output: %w", domain.ErrStorageUnavailable, err)
	}
	if ours {
		return nil
	}
	learned, err := vocab.Learn(ctx, item.Name)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	if len(learned) > 0 {
		logger.Info("learned tags %s from %s", strings.Join(learned, ","), item.Path)
		result.Learned += len(learned)
	}
	return nil
}

// remoteSeed reads the account's tags file the first time its vocabulary
// is opened. A missing file contributes nothing.
func (s *Synchronizer) remoteSeed(session *accountSession) classification.SeedFunc {
	if s.cfg.Layout.Vocabulary == "" {
		return nil
	}
	return func(ctx context.Context) ([]string, error) {
		var content []byte
		err := session.do(ctx, func(remote driven.RemoteStore) error {
			var dlErr error
			content, dlErr = remote.Download(ctx, domain.RemoteItem{Path: s.cfg.Layout.Vocabulary})
			return dlErr
		})
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			logger.Warn("reading %s for account %s: %v", s.cfg.Layout.Vocabulary, session.cred.AccountID, err)
			return nil, nil
		}
		return classification.ParseVocabulary(strings.NewReader(string(content)))
	}
}

func (s *Synchronizer) excluded(p string) bool {
	for _, prefix := range s.cfg.ExcludedPaths {
		if inArea(p, prefix) {
			return true
		}
	}
	return false
}

// inArea reports whether p is prefix or lies beneath it, ignoring case.
func inArea(p, prefix string) bool {
	if prefix == "" {
		return false
	}
	p = strings.ToLower(p)
	prefix = strings.ToLower(strings.TrimRight(prefix, "/"))
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// Status returns the live state of an account's poller.
func (s *Synchronizer) Status(accountID string) driving.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := driving.SyncStatus{AccountID: accountID, Running: s.active[accountID]}
	if r, ok := s.last[accountID]; ok {
		status.LastResult = &r
	}
	return status
}

func (s *Synchronizer) begin(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[accountID] {
		return false
	}
	s.active[accountID] = true
	return true
}

func (s *Synchronizer) end(result domain.AccountSyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, result.AccountID)
	s.last[result.AccountID] = result
}

// accountSession holds one account's remote store for a cycle and spends at
// most one token refresh on it.
type accountSession struct {
	s         *Synchronizer
	cred      domain.AccountCredential
	remote    driven.RemoteStore
	refreshed bool
}

func (s *Synchronizer) openSession(ctx context.Context, cred domain.AccountCredential) (*accountSession, error) {
	session := &accountSession{s: s, cred: cred}
	if cred.NeedsRefresh() {
		if err := session.refresh(ctx); err != nil {
			return nil, err
		}
		return session, nil
	}
	remote, err := s.remotes.Open(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("opening remote store: %w", err)
	}
	session.remote = remote
	return session, nil
}

// do runs op, and on an auth failure refreshes the token once per cycle
// and retries op once.
func (a *accountSession) do(ctx context.Context, op func(driven.RemoteStore) error) error {
	err := op(a.remote)
	if err == nil || !errors.Is(err, domain.ErrAuthExpired) || a.refreshed {
		return err
	}
	if rerr := a.refresh(ctx); rerr != nil {
		return fmt.Errorf("%w (refresh: %v)", err, rerr)
	}
	return op(a.remote)
}

func (a *accountSession) refresh(ctx context.Context) error {
	a.refreshed = true
	cred, err := a.s.refresher.Refresh(ctx, a.cred.AccountID)
	if err != nil {
		return err
	}
	remote, err := a.s.remotes.Open(ctx, *cred)
	if err != nil {
		return fmt.Errorf("opening remote store: %w", err)
	}
	a.cred = *cred
	a.remote = remote
	logger.Debug("refreshed credentials for account %s", cred.AccountID)
	return nil
}
