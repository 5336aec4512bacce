package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"github.com/jamesainslie/comicarc/pkg/comic/manifest"
)

// Zip reads pages from a zip (.zip/.cbz) file. It keeps no open file between
// calls; every operation reopens the container by path.
type Zip struct {
	path string

	// beforeReplace runs after the temp container is complete and before it
	// is renamed over the original. Tests use it to inject failures.
	beforeReplace func(tmp string) error
}

// NewZip validates that path is a readable zip file.
func NewZip(path string) (*Zip, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: opening zip %s: %w", ErrIO, path, err)
	}
	_ = r.Close()
	return &Zip{path: path}, nil
}

// Kind implements Backend.
func (z *Zip) Kind() Kind { return KindZip }

// ListImages implements Backend.
func (z *Zip) ListImages(_ context.Context) ([]string, error) {
	r, err := z.open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		names = append(names, f.Name)
	}
	return filterImages(names), nil
}

// ReadImageByName implements Backend.
func (z *Zip) ReadImageByName(_ context.Context, name string) ([]byte, error) {
	r, err := z.open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return readZipEntry(&r.Reader, name)
}

// ReadManifest implements Backend.
func (z *Zip) ReadManifest(_ context.Context) (*manifest.Manifest, error) {
	r, err := z.open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	defer r.Close()

	data, err := readZipEntry(&r.Reader, manifest.Filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	return m, nil
}

// WriteManifest rewrites the container with m as its manifest. Every other
// entry is raw-copied so names, order and compression are preserved. The new
// container is built in a sibling temp file and renamed over the original; on
// any failure the original is left untouched.
func (z *Zip) WriteManifest(ctx context.Context, m *manifest.Manifest) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrManifest, err)
	}

	info, err := os.Stat(z.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	tmp := filepath.Join(filepath.Dir(z.path), "."+filepath.Base(z.path)+"."+uuid.NewString()+".tmp")
	if err := z.rewrite(ctx, tmp, info.Mode().Perm(), data); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if z.beforeReplace != nil {
		if err := z.beforeReplace(tmp); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
	}

	if err := os.Rename(tmp, z.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: replacing %s: %w", ErrIO, z.path, err)
	}
	return nil
}

func (z *Zip) rewrite(ctx context.Context, tmp string, perm os.FileMode, data []byte) error {
	r, err := z.open()
	if err != nil {
		return err
	}
	defer r.Close()

	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("%w: creating temp container: %w", ErrIO, err)
	}
	defer out.Close()

	w := zip.NewWriter(out)
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.Name == manifest.Filename {
			continue
		}
		if err := w.Copy(f); err != nil {
			return fmt.Errorf("%w: copying %s: %w", ErrIO, f.Name, err)
		}
	}

	mw, err := w.CreateHeader(&zip.FileHeader{
		Name:   manifest.Filename,
		Method: zip.Deflate,
	})
	if err != nil {
		return fmt.Errorf("%w: adding manifest: %w", ErrIO, err)
	}
	if _, err := mw.Write(data); err != nil {
		return fmt.Errorf("%w: writing manifest: %w", ErrIO, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: finishing container: %w", ErrIO, err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("%w: syncing container: %w", ErrIO, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: closing container: %w", ErrIO, err)
	}
	return nil
}

// Close implements Backend.
func (z *Zip) Close() error { return nil }

func (z *Zip) open() (*zip.ReadCloser, error) {
	r, err := zip.OpenReader(z.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, z.path)
		}
		return nil, fmt.Errorf("%w: opening %s: %w", ErrIO, z.path, err)
	}
	return r, nil
}

func readZipEntry(r *zip.Reader, name string) ([]byte, error) {
	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: opening entry %s: %w", ErrIO, name, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("%w: reading entry %s: %w", ErrIO, name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: entry %s", ErrNotFound, name)
}
