package services

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driving"
)

// --- Shared mocks for service tests ---

// mockExtractor returns scripted results in order, then repeats the last.
type mockExtractor struct {
	mu      sync.Mutex
	results []*domain.Extraction
	errs    []error
	calls   int
	reqs    []driven.ExtractionRequest
}

func (m *mockExtractor) Extract(_ context.Context, req driven.ExtractionRequest) (*domain.Extraction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	m.reqs = append(m.reqs, req)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if len(m.results) == 0 {
		return &domain.Extraction{Text: "hello"}, nil
	}
	if i >= len(m.results) {
		i = len(m.results) - 1
	}
	e := *m.results[i]
	return &e, nil
}

func (m *mockExtractor) Name() string { return "mock" }

func (m *mockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockDestination records outputs and archives in memory.
type mockDestination struct {
	mu         sync.Mutex
	outputs    map[string][]byte
	archived   []string
	logs       map[string][]byte
	outputErr  error
	archiveErr error
}

func newMockDestination() *mockDestination {
	return &mockDestination{outputs: make(map[string][]byte), logs: make(map[string][]byte)}
}

func (m *mockDestination) OutputExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.outputs["/out/"+name]
	return ok, nil
}

func (m *mockDestination) WriteOutput(_ context.Context, name string, content []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outputErr != nil {
		return "", m.outputErr
	}
	p := "/out/" + name
	m.outputs[p] = content
	return p, nil
}

func (m *mockDestination) Archive(_ context.Context, source domain.SourceRef, _ []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.archiveErr != nil {
		return "", m.archiveErr
	}
	p := "/archive/" + source.Name
	m.archived = append(m.archived, p)
	return p, nil
}

func (m *mockDestination) PublishLog(_ context.Context, name string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[name] = content
	return nil
}

// mockNotifier records events.
type mockNotifier struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (m *mockNotifier) Notify(_ context.Context, e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *mockNotifier) Events() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.events...)
}

// mockAuditLog records entries.
type mockAuditLog struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	err     error
}

func (m *mockAuditLog) Record(_ context.Context, e domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return m.err
}

func (m *mockAuditLog) Kinds() []domain.AuditKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]domain.AuditKind, 0, len(m.entries))
	for _, e := range m.entries {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// mockRemoteStore is an in-memory app folder with scripted list pages.
type mockRemoteStore struct {
	mu    sync.Mutex
	token string
	files map[string][]byte

	// pages maps a cursor to the page listed from it.
	pages map[string]*domain.ListPage

	// listErrs are returned, in order, before pages are consulted.
	listErrs     []error
	downloadErrs map[string]error
	listCalls    []string
	uploads      []string
	ensured      []string

	// downloadGates block a download of the path until closed.
	downloadGates map[string]chan struct{}
}

func newMockRemoteStore() *mockRemoteStore {
	return &mockRemoteStore{
		files:        make(map[string][]byte),
		pages:        make(map[string]*domain.ListPage),
		downloadErrs:  make(map[string]error),
		downloadGates: make(map[string]chan struct{}),
	}
}

func (m *mockRemoteStore) ListSince(_ context.Context, cursor string) (*domain.ListPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls = append(m.listCalls, cursor)
	if len(m.listErrs) > 0 {
		err := m.listErrs[0]
		m.listErrs = m.listErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	page, ok := m.pages[cursor]
	if !ok {
		return &domain.ListPage{Cursor: cursor}, nil
	}
	return page, nil
}

func (m *mockRemoteStore) Download(_ context.Context, item domain.RemoteItem) ([]byte, error) {
	m.mu.Lock()
	gate := m.downloadGates[item.Path]
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.downloadErrs[item.Path]; err != nil {
		return nil, err
	}
	content, ok := m.files[strings.ToLower(item.Path)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return content, nil
}

func (m *mockRemoteStore) Upload(_ context.Context, p string, content []byte, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(p)
	if _, ok := m.files[key]; ok && !overwrite {
		return nil
	}
	m.files[key] = content
	m.uploads = append(m.uploads, p)
	return nil
}

func (m *mockRemoteStore) Move(_ context.Context, src, dst string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[strings.ToLower(src)]
	if !ok {
		return "", domain.ErrNotFound
	}
	delete(m.files, strings.ToLower(src))
	m.files[strings.ToLower(dst)] = content
	return dst, nil
}

func (m *mockRemoteStore) Exists(_ context.Context, p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[strings.ToLower(p)]
	return ok, nil
}

func (m *mockRemoteStore) EnsureFolder(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensured = append(m.ensured, p)
	return nil
}

func (m *mockRemoteStore) CurrentAccount(_ context.Context) (domain.AccountIdentity, error) {
	return domain.AccountIdentity{}, nil
}

func (m *mockRemoteStore) put(p string, content []byte) domain.RemoteItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[strings.ToLower(p)] = content
	return domain.RemoteItem{ID: "id:" + p, Path: p, Name: path.Base(p)}
}

func (m *mockRemoteStore) paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// authFailingStore wraps a store and fails every call with ErrAuthExpired
// while its token is stale.
type authFailingStore struct {
	*mockRemoteStore
	stale bool
}

func (a *authFailingStore) ListSince(ctx context.Context, cursor string) (*domain.ListPage, error) {
	if a.stale {
		return nil, domain.ErrAuthExpired
	}
	return a.mockRemoteStore.ListSince(ctx, cursor)
}

// mockRemoteFactory hands out one store per account, keyed by account id.
type mockRemoteFactory struct {
	mu      sync.Mutex
	stores  map[string]*mockRemoteStore
	opened  map[string][]string
	staleAt map[string]string
	openErr error
}

func newMockRemoteFactory() *mockRemoteFactory {
	return &mockRemoteFactory{
		stores:  make(map[string]*mockRemoteStore),
		opened:  make(map[string][]string),
		staleAt: make(map[string]string),
	}
}

func (f *mockRemoteFactory) store(accountID string) *mockRemoteStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stores[accountID]
	if !ok {
		s = newMockRemoteStore()
		f.stores[accountID] = s
	}
	return s
}

func (f *mockRemoteFactory) Open(_ context.Context, cred domain.AccountCredential) (driven.RemoteStore, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := f.store(cred.AccountID)
	f.mu.Lock()
	f.opened[cred.AccountID] = append(f.opened[cred.AccountID], cred.AccessToken)
	stale := f.staleAt[cred.AccountID] != "" && f.staleAt[cred.AccountID] == cred.AccessToken
	f.mu.Unlock()
	if stale {
		return &authFailingStore{mockRemoteStore: s, stale: true}, nil
	}
	return s, nil
}

// mockRefresher swaps in a fresh token, or fails.
type mockRefresher struct {
	mu    sync.Mutex
	creds driven.CredentialStore
	calls int
	err   error
}

func (m *mockRefresher) Refresh(ctx context.Context, accountID string) (*domain.AccountCredential, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	cred, err := m.creds.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	cred.AccessToken += "-fresh"
	if err := m.creds.Put(ctx, *cred); err != nil {
		return nil, err
	}
	return cred, nil
}

func (m *mockRefresher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockProcessor records requests and returns scripted errors by source name.
type mockProcessor struct {
	mu   sync.Mutex
	reqs []driving.ProcessRequest
	errs map[string]error
}

func (m *mockProcessor) Process(_ context.Context, req driving.ProcessRequest) (*domain.ProcessOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	if err := m.errs[req.Source.Name]; err != nil {
		return nil, err
	}
	return &domain.ProcessOutcome{Record: domain.ProcessedFile{SourceName: req.Source.Name, Status: domain.StatusSuccess}}, nil
}

func (m *mockProcessor) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.reqs))
	for _, r := range m.reqs {
		out = append(out, r.Source.Name)
	}
	return out
}

// mockAuthProvider is a scripted OAuth provider.
type mockAuthProvider struct {
	mu          sync.Mutex
	identity    domain.AccountIdentity
	tokens      domain.TokenSet
	exchangeErr error
	refreshErr  error
	verifiers   []string
	refreshes   int
}

func (m *mockAuthProvider) AuthCodeURL(state, challenge, redirectURI string) string {
	return "https://auth.example.com/authorize?state=" + state + "&code_challenge=" + challenge + "&redirect_uri=" + redirectURI
}

func (m *mockAuthProvider) Exchange(_ context.Context, _, verifier, _ string) (*domain.TokenSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifiers = append(m.verifiers, verifier)
	if m.exchangeErr != nil {
		return nil, m.exchangeErr
	}
	t := m.tokens
	return &t, nil
}

func (m *mockAuthProvider) Refresh(_ context.Context, _ string) (*domain.TokenSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	return &domain.TokenSet{AccessToken: "refreshed", RefreshToken: "", Expiry: m.tokens.Expiry}, nil
}

func (m *mockAuthProvider) Identity(_ context.Context, _ string) (domain.AccountIdentity, error) {
	return m.identity, nil
}

// mockProvisioner counts provisioned accounts.
type mockProvisioner struct {
	mu       sync.Mutex
	accounts []string
	err      error
}

func (m *mockProvisioner) Provision(_ context.Context, cred domain.AccountCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = append(m.accounts, cred.AccountID)
	return m.err
}

// failingCredentialStore fails every call.
type failingCredentialStore struct{}

var errStoreDown = errors.New("disk full")

func (failingCredentialStore) Put(context.Context, domain.AccountCredential) error {
	return errStoreDown
}
func (failingCredentialStore) Get(context.Context, string) (*domain.AccountCredential, error) {
	return nil, errStoreDown
}
func (failingCredentialStore) List(context.Context) ([]domain.AccountCredential, error) {
	return nil, errStoreDown
}
func (failingCredentialStore) Remove(context.Context, string) error { return errStoreDown }

var (
	_ driven.Extractor          = (*mockExtractor)(nil)
	_ driven.Destination        = (*mockDestination)(nil)
	_ driven.LogPublisher       = (*mockDestination)(nil)
	_ driven.Notifier           = (*mockNotifier)(nil)
	_ driven.AuditLog           = (*mockAuditLog)(nil)
	_ driven.RemoteStore        = (*mockRemoteStore)(nil)
	_ driven.RemoteStoreFactory = (*mockRemoteFactory)(nil)
	_ driven.AuthProvider       = (*mockAuthProvider)(nil)
	_ driven.Provisioner        = (*mockProvisioner)(nil)
	_ driven.CredentialStore    = failingCredentialStore{}
	_ driving.TokenRefresher    = (*mockRefresher)(nil)
	_ driving.Processor         = (*mockProcessor)(nil)
)
