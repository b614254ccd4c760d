package dropbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/users"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.RemoteStore = (*Store)(nil)

// filesAPI is the subset of files.Client the store uses.
type filesAPI interface {
	ListFolder(arg *files.ListFolderArg) (*files.ListFolderResult, error)
	ListFolderContinue(arg *files.ListFolderContinueArg) (*files.ListFolderResult, error)
	Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error)
	Upload(arg *files.UploadArg, content io.Reader) (*files.FileMetadata, error)
	MoveV2(arg *files.RelocationArg) (*files.RelocationResult, error)
	CreateFolderV2(arg *files.CreateFolderArg) (*files.CreateFolderResult, error)
	GetMetadata(arg *files.GetMetadataArg) (files.IsMetadata, error)
}

// usersAPI is the subset of users.Client the store uses.
type usersAPI interface {
	GetCurrentAccount() (*users.FullAccount, error)
}

// Store is one account's app folder.
type Store struct {
	files   filesAPI
	users   usersAPI
	limiter *RateLimiter
	// root is the folder listed by ListSince. Empty means the app folder root.
	root string
}

func newStore(f filesAPI, u usersAPI, limiter *RateLimiter, root string) *Store {
	if limiter == nil {
		limiter = NewRateLimiter(DefaultRateLimit)
	}
	return &Store{files: f, users: u, limiter: limiter, root: normaliseRoot(root)}
}

// call waits for the rate limiter, runs fn and records any backoff.
func (s *Store) call(ctx context.Context, op string, fn func() error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	err := fn()
	if err == nil {
		return nil
	}
	if IsRateLimited(err) {
		s.limiter.Backoff(retryAfter(err))
	}
	return WrapError(op, err)
}

// ListSince lists changes after cursor. An empty cursor lists the whole tree.
func (s *Store) ListSince(ctx context.Context, cursor string) (*domain.ListPage, error) {
	var res *files.ListFolderResult
	err := s.call(ctx, "list_folder", func() error {
		var err error
		if cursor == "" {
			arg := files.NewListFolderArg(s.root)
			arg.Recursive = true
			arg.IncludeDeleted = true
			res, err = s.files.ListFolder(arg)
		} else {
			res, err = s.files.ListFolderContinue(files.NewListFolderContinueArg(cursor))
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	page := &domain.ListPage{Cursor: res.Cursor, HasMore: res.HasMore}
	for _, entry := range res.Entries {
		if item, ok := toRemoteItem(entry); ok {
			page.Items = append(page.Items, item)
		}
	}
	return page, nil
}

// Download returns the content of an item, addressed by ID when known.
func (s *Store) Download(ctx context.Context, item domain.RemoteItem) ([]byte, error) {
	target := item.ID
	if target == "" {
		target = item.Path
	}
	if target == "" {
		return nil, fmt.Errorf("%w: item has neither id nor path", domain.ErrValidation)
	}

	var content []byte
	err := s.call(ctx, "download", func() error {
		_, body, err := s.files.Download(files.NewDownloadArg(target))
		if err != nil {
			return err
		}
		defer body.Close()
		content, err = io.ReadAll(body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

// Upload writes content to p. Without overwrite an existing file is kept.
func (s *Store) Upload(ctx context.Context, p string, content []byte, overwrite bool) error {
	if !overwrite {
		exists, err := s.Exists(ctx, p)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}

	arg := files.NewUploadArg(p)
	mode := files.WriteModeAdd
	if overwrite {
		mode = files.WriteModeOverwrite
	}
	arg.Mode = &files.WriteMode{Tagged: dropbox.Tagged{Tag: mode}}
	arg.Mute = true

	err := s.call(ctx, "upload", func() error {
		_, err := s.files.Upload(arg, bytes.NewReader(content))
		return err
	})
	if err != nil && !overwrite && isConflict(err) {
		return nil
	}
	return err
}

// Move relocates src to dst, letting Dropbox pick a free name on conflict.
func (s *Store) Move(ctx context.Context, src, dst string) (string, error) {
	arg := files.NewRelocationArg(src, dst)
	arg.Autorename = true

	var res *files.RelocationResult
	err := s.call(ctx, "move", func() error {
		var err error
		res, err = s.files.MoveV2(arg)
		return err
	})
	if err != nil {
		return "", err
	}
	if res != nil {
		if p := displayPath(res.Metadata); p != "" {
			return p, nil
		}
	}
	return dst, nil
}

// Exists reports whether a file exists at p.
func (s *Store) Exists(ctx context.Context, p string) (bool, error) {
	var meta files.IsMetadata
	err := s.call(ctx, "get_metadata", func() error {
		var err error
		meta, err = s.files.GetMetadata(files.NewGetMetadataArg(p))
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_, isFile := meta.(*files.FileMetadata)
	return isFile, nil
}

// EnsureFolder creates a folder, treating an existing one as success.
func (s *Store) EnsureFolder(ctx context.Context, p string) error {
	err := s.call(ctx, "create_folder", func() error {
		_, err := s.files.CreateFolderV2(files.NewCreateFolderArg(p))
		return err
	})
	if err != nil && isConflict(err) {
		return nil
	}
	return err
}

// CurrentAccount returns the identity of the token's owner.
func (s *Store) CurrentAccount(ctx context.Context) (domain.AccountIdentity, error) {
	var account *users.FullAccount
	err := s.call(ctx, "get_current_account", func() error {
		var err error
		account, err = s.users.GetCurrentAccount()
		return err
	})
	if err != nil {
		return domain.AccountIdentity{}, err
	}
	return identityOf(account), nil
}

func identityOf(account *users.FullAccount) domain.AccountIdentity {
	if account == nil {
		return domain.AccountIdentity{}
	}
	id := domain.AccountIdentity{AccountID: account.AccountId, Email: account.Email}
	if account.Name != nil {
		id.Name = account.Name.DisplayName
	}
	return id
}

// toRemoteItem converts list_folder metadata. Unknown entry types are skipped.
func toRemoteItem(entry files.IsMetadata) (domain.RemoteItem, bool) {
	switch m := entry.(type) {
	case *files.FileMetadata:
		return domain.RemoteItem{
			ID:         m.Id,
			Path:       m.PathDisplay,
			Name:       m.Name,
			Size:       int64(m.Size),
			ModifiedAt: m.ServerModified,
		}, true
	case *files.FolderMetadata:
		return domain.RemoteItem{ID: m.Id, Path: m.PathDisplay, Name: m.Name, Folder: true}, true
	case *files.DeletedMetadata:
		return domain.RemoteItem{Path: m.PathDisplay, Name: m.Name, Deleted: true}, true
	default:
		return domain.RemoteItem{}, false
	}
}

func displayPath(entry files.IsMetadata) string {
	switch m := entry.(type) {
	case *files.FileMetadata:
		return m.PathDisplay
	case *files.FolderMetadata:
		return m.PathDisplay
	case *files.DeletedMetadata:
		return m.PathDisplay
	}
	return ""
}

// normaliseRoot maps "/" and "" to the API's root spelling, which is "".
func normaliseRoot(root string) string {
	root = strings.TrimSpace(root)
	if root == "" || root == "/" {
		return ""
	}
	return path.Clean("/" + root)
}
