package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/custodia-labs/ocrbox/internal/classification"
	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// RemoteLayout names the folders of an account's app folder.
type RemoteLayout struct {
	Inbox      string
	Outbox     string
	Archive    string
	Logs       string
	Vocabulary string
	Readme     string
}

// DefaultRemoteLayout returns the standard app folder layout.
func DefaultRemoteLayout() RemoteLayout {
	return RemoteLayout{
		Inbox:      "/Inbox",
		Outbox:     "/Outbox",
		Archive:    "/Archive",
		Logs:       "/Logs",
		Vocabulary: "/tags.txt",
		Readme:     "/README.txt",
	}
}

// Ensure RemoteDestination implements the interfaces.
var (
	_ driven.Destination  = (*RemoteDestination)(nil)
	_ driven.LogPublisher = (*RemoteDestination)(nil)
)

// RemoteDestination writes outputs and archives originals inside an
// account's app folder.
type RemoteDestination struct {
	remote driven.RemoteStore
	layout RemoteLayout
}

// NewRemoteDestination creates a destination backed by remote.
func NewRemoteDestination(remote driven.RemoteStore, layout RemoteLayout) *RemoteDestination {
	return &RemoteDestination{remote: remote, layout: layout}
}

// OutputExists reports whether the outbox already holds name.
func (d *RemoteDestination) OutputExists(ctx context.Context, name string) (bool, error) {
	return d.remote.Exists(ctx, path.Join(d.layout.Outbox, name))
}

// WriteOutput uploads content into the outbox.
func (d *RemoteDestination) WriteOutput(ctx context.Context, name string, content []byte) (string, error) {
	p := path.Join(d.layout.Outbox, name)
	if err := d.remote.Upload(ctx, p, content, true); err != nil {
		return "", err
	}
	return p, nil
}

// Archive moves the original into the archive folder.
func (d *RemoteDestination) Archive(ctx context.Context, source domain.SourceRef, _ []byte) (string, error) {
	return d.remote.Move(ctx, source.Path, path.Join(d.layout.Archive, source.Name))
}

// PublishLog uploads an audit entry into the logs folder.
func (d *RemoteDestination) PublishLog(ctx context.Context, name string, content []byte) error {
	return d.remote.Upload(ctx, path.Join(d.layout.Logs, name), content, true)
}

// Ensure RemoteProvisioner implements the interface.
var _ driven.Provisioner = (*RemoteProvisioner)(nil)

// RemoteProvisioner creates the folder layout, tags file and README of a
// newly authorized account. It never overwrites user files.
type RemoteProvisioner struct {
	remotes driven.RemoteStoreFactory
	layout  RemoteLayout
	seed    []string
}

// NewRemoteProvisioner creates a provisioner seeding the tags file with seed.
func NewRemoteProvisioner(remotes driven.RemoteStoreFactory, layout RemoteLayout, seed []string) *RemoteProvisioner {
	if len(seed) == 0 {
		seed = classification.DefaultSeedTags
	}
	return &RemoteProvisioner{remotes: remotes, layout: layout, seed: seed}
}

// Provision lays out the app folder. It is safe to run repeatedly.
func (p *RemoteProvisioner) Provision(ctx context.Context, cred domain.AccountCredential) error {
	remote, err := p.remotes.Open(ctx, cred)
	if err != nil {
		return err
	}

	var errs []error
	for _, folder := range []string{p.layout.Inbox, p.layout.Outbox, p.layout.Archive, p.layout.Logs} {
		if folder == "" {
			continue
		}
		if err := remote.EnsureFolder(ctx, folder); err != nil {
			errs = append(errs, fmt.Errorf("creating %s: %w", folder, err))
		}
	}

	if p.layout.Vocabulary != "" {
		if err := remote.Upload(ctx, p.layout.Vocabulary, classification.FormatVocabulary(p.seed), false); err != nil {
			errs = append(errs, fmt.Errorf("writing %s: %w", p.layout.Vocabulary, err))
		}
	}
	if p.layout.Readme != "" {
		if err := remote.Upload(ctx, p.layout.Readme, []byte(p.readme()), false); err != nil {
			errs = append(errs, fmt.Errorf("writing %s: %w", p.layout.Readme, err))
		}
	}
	return errors.Join(errs...)
}

func (p *RemoteProvisioner) readme() string {
	var b strings.Builder
	b.WriteString("ocrbox\n======\n\n")
	fmt.Fprintf(&b, "Drop images into %s. Each one is transcribed, tagged and\n", p.layout.Inbox)
	fmt.Fprintf(&b, "written to %s as [tag]_title.txt. Originals move to %s and\n", p.layout.Outbox, p.layout.Archive)
	fmt.Fprintf(&b, "processing records are kept in %s.\n\n", p.layout.Logs)
	fmt.Fprintf(&b, "Edit %s to change the tag vocabulary (read at startup).\n", p.layout.Vocabulary)
	b.WriteString("Renaming an output with new [tags] teaches ocrbox those tags.\n")
	return b.String()
}
