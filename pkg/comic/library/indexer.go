// Package library keeps a persistent index of the comic containers below a
// directory tree: a one-shot Scanner and a Watcher for live updates.
package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesainslie/comicarc/pkg/comic/archive"
	"github.com/jamesainslie/comicarc/pkg/comic/index"
	"github.com/jamesainslie/comicarc/pkg/comic/logging"
	"github.com/jamesainslie/comicarc/pkg/comic/manifest"
	"github.com/jamesainslie/comicarc/pkg/comic/thumb"
)

// Indexer opens containers and writes their records to an index store.
type Indexer struct {
	store     *index.Store
	validator *index.Validator
	archive   []archive.Option
	retry     archive.RetryPolicy
	thumbs    thumb.Options
	noThumbs  bool
	log       *logging.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithArchiveOptions passes options through to archive.Open.
func WithArchiveOptions(opts ...archive.Option) IndexerOption {
	return func(ix *Indexer) { ix.archive = append(ix.archive, opts...) }
}

// WithRetry sets the policy used when opening containers.
func WithRetry(p archive.RetryPolicy) IndexerOption {
	return func(ix *Indexer) { ix.retry = p }
}

// WithThumbnails sets the thumbnail options.
func WithThumbnails(o thumb.Options) IndexerOption {
	return func(ix *Indexer) { ix.thumbs = o }
}

// WithoutThumbnails skips thumbnail rendering.
func WithoutThumbnails() IndexerOption {
	return func(ix *Indexer) { ix.noThumbs = true }
}

// NewIndexer returns an Indexer writing to store.
func NewIndexer(store *index.Store, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		store:     store,
		validator: index.NewValidator(store),
		retry:     archive.DefaultRetryPolicy(),
		thumbs:    thumb.DefaultOptions(),
		log:       logging.Get("library"),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Store returns the underlying index store.
func (ix *Indexer) Store() *index.Store { return ix.store }

// Fresh reports whether path is indexed and unchanged.
func (ix *Indexer) Fresh(path string) (bool, error) {
	return ix.validator.Fresh(path)
}

// IndexPath opens the container at path and stores its record. A page that
// cannot be thumbnailed does not fail the container.
func (ix *Indexer) IndexPath(ctx context.Context, path string) (*index.Entry, error) {
	entry, err := index.StatEntry(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", archive.ErrNotFound, err)
	}

	h, err := archive.OpenWithRetry(ctx, entry.Path, ix.retry, ix.archive...)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	pages, err := h.ListImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", entry.Path, err)
	}

	m := h.Manifest()
	entry.Kind = string(h.Kind())
	entry.Title = m.Meta.Title
	entry.Author = m.Meta.Author
	entry.WebArchive = m.Meta.WebArchive
	entry.Pages = pages
	entry.IndexedAt = time.Now().UnixNano()

	if !ix.noThumbs && len(pages) > 0 {
		data, err := thumb.FromHandle(ctx, h, "", ix.thumbs)
		if err != nil {
			ix.log.Warn("thumbnail failed", "path", entry.Path, "error", err)
		} else {
			entry.Thumbnail = data
		}
	}

	if err := ix.store.Put(entry); err != nil {
		return nil, fmt.Errorf("storing %s: %w", entry.Path, err)
	}
	ix.log.Debug("indexed container", "path", entry.Path, "pages", len(pages), "kind", entry.Kind)
	return entry, nil
}

// Remove deletes the record for path and any records below it.
func (ix *Indexer) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return errors.Join(ix.store.Delete(abs), ix.store.DeletePrefix(abs))
}

// IsContainer reports whether path is something the library indexes: a
// container file, or a directory holding a manifest.
func IsContainer(path string, info os.FileInfo) bool {
	if info.IsDir() {
		_, err := os.Stat(filepath.Join(path, manifest.Filename))
		return err == nil
	}
	return info.Mode().IsRegular() && archive.IsContainerName(path)
}
