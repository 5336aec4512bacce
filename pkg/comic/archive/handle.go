package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jamesainslie/comicarc/pkg/comic/logging"
	"github.com/jamesainslie/comicarc/pkg/comic/manifest"
)

// Handle owns one backend and the manifest snapshot read when it was opened.
// All methods are safe for concurrent use; backend calls are serialized.
type Handle struct {
	path string
	log  *logging.Logger

	mu       sync.Mutex
	backend  Backend
	manifest *manifest.Manifest
	closed   bool
}

// Open selects a backend for path: directories are folders, and the file
// extension picks zip (.zip, .cbz), RAR (.rar, .cbr) or 7z (.7z, .cb7). The
// manifest is read once; a missing or invalid one is replaced by the default.
// When the manifest marks a web archive the backend is wrapped in Web.
func Open(ctx context.Context, path string, opts ...Option) (*Handle, error) {
	o := buildOptions(opts)
	log := logging.Get("archive")

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	backend, err := openBackend(ctx, path, info.IsDir(), o)
	if err != nil {
		return nil, err
	}

	m, err := backend.ReadManifest(ctx)
	if err != nil {
		log.Debug("no usable manifest, using default", "path", path, "error", err)
		m = manifest.Default()
	}

	if m.Meta.WebArchive {
		backend = NewWeb(backend, m, o.HTTPClient, o.MaxBody)
	}

	log.Info("opened container", "path", path, "kind", backend.Kind())
	return &Handle{
		path:     path,
		log:      log,
		backend:  backend,
		manifest: m,
	}, nil
}

func openBackend(ctx context.Context, path string, isDir bool, o Options) (Backend, error) {
	if isDir {
		return NewFolder(path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".zip", ".cbz":
		return NewZip(path)
	case ".rar", ".cbr":
		if !o.RarEnabled {
			return nil, fmt.Errorf("%w: rar support disabled: %s", ErrUnsupportedFormat, path)
		}
		return NewRar(ctx, path, o)
	case ".7z", ".cb7":
		return NewSevenZip(ctx, path, o)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// IsContainerName reports whether Open would pick a file backend for name.
func IsContainerName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip", ".cbz", ".rar", ".cbr", ".7z", ".cb7":
		return true
	}
	return false
}

// Path returns the path the handle was opened with.
func (h *Handle) Path() string { return h.path }

// Kind reports the active backend, which is KindWeb for web archives.
func (h *Handle) Kind() Kind {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.backend.Kind()
}

// Manifest returns a copy of the current manifest snapshot.
func (h *Handle) Manifest() *manifest.Manifest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.manifest.Clone()
}

// ListImages returns the page names of the container.
func (h *Handle) ListImages(ctx context.Context) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.usable(); err != nil {
		return nil, err
	}
	return h.backend.ListImages(ctx)
}

// ReadImageByName returns the bytes of one page.
func (h *Handle) ReadImageByName(ctx context.Context, name string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.usable(); err != nil {
		return nil, err
	}
	return h.backend.ReadImageByName(ctx, name)
}

// ReadImageByIndex lists the container and reads the i-th page.
func (h *Handle) ReadImageByIndex(ctx context.Context, i int) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.usable(); err != nil {
		return nil, err
	}
	names, err := h.backend.ListImages(ctx)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(names) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfBounds, i, len(names))
	}
	return h.backend.ReadImageByName(ctx, names[i])
}

// ReadManifest reads the stored manifest. Unlike Open it does not fall back
// to a default; failures surface as ErrManifest.
func (h *Handle) ReadManifest(ctx context.Context) (*manifest.Manifest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.usable(); err != nil {
		return nil, err
	}
	return h.backend.ReadManifest(ctx)
}

// WriteManifest stores m and makes it the handle's snapshot.
func (h *Handle) WriteManifest(ctx context.Context, m *manifest.Manifest) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.usable(); err != nil {
		return err
	}
	return h.writeLocked(ctx, m)
}

// EditManifest reads the stored manifest, applies fn and writes the result.
// A container without a manifest starts from the default. Nothing is written
// if the stored manifest is unreadable or fn fails.
func (h *Handle) EditManifest(ctx context.Context, fn func(*manifest.Manifest) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.usable(); err != nil {
		return err
	}
	m, err := h.backend.ReadManifest(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		h.log.Debug("no stored manifest, editing the default", "path", h.path)
		m = manifest.Default()
	case err != nil:
		return err
	}
	if err := fn(m); err != nil {
		return fmt.Errorf("editing manifest: %w", err)
	}
	return h.writeLocked(ctx, m)
}

func (h *Handle) writeLocked(ctx context.Context, m *manifest.Manifest) error {
	if err := h.backend.WriteManifest(ctx, m); err != nil {
		return err
	}
	h.manifest = m.Clone()
	h.log.Info("manifest written", "path", h.path)
	return nil
}

// Close releases the backend. It is safe to call more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	return h.backend.Close()
}

func (h *Handle) usable() error {
	if h.closed {
		return fmt.Errorf("%w: handle closed", ErrIO)
	}
	return nil
}
