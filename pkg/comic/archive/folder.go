package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/comicarc/pkg/comic/manifest"
)

// Folder treats a directory as a container. Pages are its direct child files.
type Folder struct {
	dir string
}

// NewFolder returns a Folder for dir, which must be an existing directory.
func NewFolder(dir string) (*Folder, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrUnsupportedFormat, dir)
	}
	return &Folder{dir: dir}, nil
}

// Kind implements Backend.
func (f *Folder) Kind() Kind { return KindFolder }

// ListImages implements Backend.
func (f *Folder) ListImages(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrIO, f.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return filterImages(names), nil
}

// ReadImageByName implements Backend.
func (f *Folder) ReadImageByName(_ context.Context, name string) ([]byte, error) {
	p, err := f.child(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return data, nil
}

// ReadManifest implements Backend.
func (f *Folder) ReadManifest(_ context.Context) (*manifest.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, manifest.Filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrManifest, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %w: %w", ErrManifest, ErrIO, err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	return m, nil
}

// WriteManifest writes manifest.toml next to the pages via a temp file and rename.
func (f *Folder) WriteManifest(_ context.Context, m *manifest.Manifest) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrManifest, err)
	}
	if err := writeFileAtomic(filepath.Join(f.dir, manifest.Filename), data); err != nil {
		return fmt.Errorf("%w: %w", ErrManifest, err)
	}
	return nil
}

// Close implements Backend.
func (f *Folder) Close() error { return nil }

// child resolves name to a direct child of the folder.
func (f *Folder) child(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return filepath.Join(f.dir, name), nil
}

// writeFileAtomic writes data to a uniquely named sibling, syncs it and
// renames it over path.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", ErrIO, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("%w: writing temp file: %w", ErrIO, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("%w: setting temp file mode: %w", ErrIO, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: syncing temp file: %w", ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing temp file: %w", ErrIO, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: renaming temp file: %w", ErrIO, err)
	}
	return nil
}
