package archive

import (
	"errors"
	"fmt"
	"os"

	"github.com/klauspost/compress/zip"

	"github.com/jamesainslie/comicarc/pkg/comic/manifest"
)

// CreateWebArchive writes a new zip at path holding only a web archive
// manifest that lists urls. An existing file is not overwritten.
func CreateWebArchive(path string, urls []string) error {
	if len(urls) == 0 {
		return fmt.Errorf("%w: web archive needs at least one url", ErrManifest)
	}

	data, err := manifest.NewWebArchive(urls).Marshal()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrManifest, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	if err := writeSingleEntryZip(f, manifest.Filename, data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

func writeSingleEntryZip(f *os.File, name string, data []byte) error {
	w := zip.NewWriter(f)
	ew, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if _, err := ew.Write(data); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := errors.Join(w.Close(), f.Sync()); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}
