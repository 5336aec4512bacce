package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/comicarc/pkg/comic/logging"
	"github.com/jamesainslie/comicarc/pkg/comic/manifest"
)

// SevenZip reads 7z-family (.7z/.cb7) containers by extracting everything up
// front with the 7z tool. Reads are plain file reads from the extraction.
type SevenZip struct {
	path    string
	dir     string
	entries []string
	log     *logging.Logger
}

// NewSevenZip extracts path into a scratch directory and indexes it. The
// scratch directory is removed if construction fails.
func NewSevenZip(ctx context.Context, path string, opts Options) (*SevenZip, error) {
	dir, err := os.MkdirTemp(opts.ScratchDir, "comicarc-7z-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	log := logging.Get("archive")
	log.Info("extracting 7z container", "path", path, "dir", dir)

	if _, err := opts.Runner.Run(ctx, opts.Tools.SevenZip, "x", path, "-o"+dir, "-y"); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: extracting %s: %w", ErrUnsupportedFormat, path, err)
	}

	entries, err := walkExtraction(ctx, dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: indexing extraction: %w", ErrIO, err)
	}

	return &SevenZip{
		path:    path,
		dir:     dir,
		entries: filterImages(entries),
		log:     log,
	}, nil
}

// walkExtraction returns every regular file below root as a slash-separated
// path relative to root.
func walkExtraction(ctx context.Context, root string) ([]string, error) {
	var (
		mu    sync.Mutex
		names []string
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		mu.Lock()
		names = append(names, filepath.ToSlash(rel))
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Kind implements Backend.
func (s *SevenZip) Kind() Kind { return KindSevenZip }

// ListImages implements Backend.
func (s *SevenZip) ListImages(_ context.Context) ([]string, error) {
	return slices.Clone(s.entries), nil
}

// ReadImageByName implements Backend.
func (s *SevenZip) ReadImageByName(_ context.Context, name string) ([]byte, error) {
	return s.readFile(name)
}

// ReadManifest implements Backend.
func (s *SevenZip) ReadManifest(_ context.Context) (*manifest.Manifest, error) {
	data, err := s.readFile(manifest.Filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	return m, nil
}

// WriteManifest does nothing: 7z containers are read-only here.
func (s *SevenZip) WriteManifest(_ context.Context, _ *manifest.Manifest) error {
	s.log.Warn("manifest writes are not supported for 7z containers, ignoring", "path", s.path)
	return nil
}

// Close removes the extraction directory.
func (s *SevenZip) Close() error {
	if s.dir == "" {
		return nil
	}
	err := os.RemoveAll(s.dir)
	s.dir = ""
	if err != nil {
		return fmt.Errorf("%w: removing extraction: %w", ErrIO, err)
	}
	return nil
}

func (s *SevenZip) readFile(name string) ([]byte, error) {
	if s.dir == "" {
		return nil, fmt.Errorf("%w: container closed", ErrIO)
	}
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return nil, fmt.Errorf("%w: entry %s", ErrNotFound, name)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(name)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: entry %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return data, nil
}
