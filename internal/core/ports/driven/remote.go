package driven

import (
	"context"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// RemoteStore is one account's view of the cloud app folder.
//
// Implementations map provider failures onto domain errors:
// domain.ErrAuthExpired, domain.ErrCursorExpired and domain.ErrTransient.
type RemoteStore interface {
	// ListSince lists changes after cursor. An empty cursor lists everything.
	ListSince(ctx context.Context, cursor string) (*domain.ListPage, error)

	// Download returns the content of an item.
	Download(ctx context.Context, item domain.RemoteItem) ([]byte, error)

	// Upload writes content to path. With overwrite false an existing
	// file is left untouched.
	Upload(ctx context.Context, path string, content []byte, overwrite bool) error

	// Move relocates src to dst, renaming on conflict. Returns the final path.
	Move(ctx context.Context, src, dst string) (string, error)

	// Exists reports whether a file exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// EnsureFolder creates a folder if it does not exist.
	EnsureFolder(ctx context.Context, path string) error

	// CurrentAccount returns the identity of the token's owner.
	CurrentAccount(ctx context.Context) (domain.AccountIdentity, error)
}

// RemoteStoreFactory opens a RemoteStore for a credential.
type RemoteStoreFactory interface {
	Open(ctx context.Context, cred domain.AccountCredential) (RemoteStore, error)
}

// Provisioner lays out a freshly authorized account's app folder.
type Provisioner interface {
	Provision(ctx context.Context, cred domain.AccountCredential) error
}
