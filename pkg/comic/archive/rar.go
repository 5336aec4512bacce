package archive

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jamesainslie/comicarc/pkg/comic/logging"
	"github.com/jamesainslie/comicarc/pkg/comic/manifest"
)

// Rar reads RAR (.rar/.cbr) containers through the unrar tool and writes
// manifests with rar. The listing is taken once at construction.
type Rar struct {
	path        string
	entries     []string
	hasManifest bool
	runner      Runner
	tools       Tools
	scratch     string
	log         *logging.Logger
}

// NewRar lists path with `unrar l -c-`. A missing unrar binary or a failed
// listing makes the container unsupported.
func NewRar(ctx context.Context, path string, opts Options) (*Rar, error) {
	out, err := opts.Runner.Run(ctx, opts.Tools.Unrar, "l", "-c-", path)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %w", ErrUnsupportedFormat, path, err)
	}

	names := parseUnrarListing(out)
	return &Rar{
		path:        path,
		entries:     filterImages(names),
		hasManifest: slices.Contains(names, manifest.Filename),
		runner:      opts.Runner,
		tools:       opts.Tools,
		scratch:     opts.ScratchDir,
		log:         logging.Get("archive"),
	}, nil
}

// parseUnrarListing extracts member names from the technical listing. Rows
// start after the dashed separator; each row has attributes, size, date and
// time columns followed by the name, which may contain spaces. The first blank
// or short row ends the table.
func parseUnrarListing(out []byte) []string {
	var names []string
	started := false

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if !started {
			if strings.HasPrefix(trimmed, "--------") {
				started = true
			}
			continue
		}
		if trimmed == "" {
			break
		}
		fields := strings.Fields(trimmed)
		if len(fields) < 5 {
			break
		}
		names = append(names, strings.Join(fields[4:], " "))
	}
	return names
}

// Kind implements Backend.
func (r *Rar) Kind() Kind { return KindRar }

// ListImages implements Backend.
func (r *Rar) ListImages(_ context.Context) ([]string, error) {
	return slices.Clone(r.entries), nil
}

// ReadImageByName implements Backend.
func (r *Rar) ReadImageByName(ctx context.Context, name string) ([]byte, error) {
	if _, ok := slices.BinarySearch(r.entries, name); !ok {
		return nil, fmt.Errorf("%w: entry %s", ErrNotFound, name)
	}
	return r.extract(ctx, name)
}

// ReadManifest implements Backend.
func (r *Rar) ReadManifest(ctx context.Context) (*manifest.Manifest, error) {
	if !r.hasManifest {
		return nil, fmt.Errorf("%w: %w: entry %s", ErrManifest, ErrNotFound, manifest.Filename)
	}
	data, err := r.extract(ctx, manifest.Filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	return m, nil
}

// WriteManifest stages the manifest in a scratch directory and adds it to the
// archive root with `rar u -ep1`. This needs the rar binary, not just unrar.
func (r *Rar) WriteManifest(ctx context.Context, m *manifest.Manifest) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrManifest, err)
	}

	dir, err := os.MkdirTemp(r.scratch, "comicarc-rar-*")
	if err != nil {
		return fmt.Errorf("%w: %w: %w", ErrManifest, ErrIO, err)
	}
	defer os.RemoveAll(dir)

	staged := filepath.Join(dir, manifest.Filename)
	if err := os.WriteFile(staged, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w: %w", ErrManifest, ErrIO, err)
	}

	r.log.Info("updating rar manifest", "path", r.path)
	if _, err := r.runner.Run(ctx, r.tools.Rar, "u", "-ep1", r.path, staged); err != nil {
		if errors.Is(err, ErrToolMissing) {
			r.log.Error("rar binary required to write manifests", "tool", r.tools.Rar)
		}
		return fmt.Errorf("%w: updating %s: %w", ErrManifest, r.path, err)
	}
	r.hasManifest = true
	return nil
}

// Close implements Backend.
func (r *Rar) Close() error { return nil }

// extract pulls one member into a fresh scratch directory and reads it back.
func (r *Rar) extract(ctx context.Context, member string) ([]byte, error) {
	dir, err := os.MkdirTemp(r.scratch, "comicarc-rar-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer os.RemoveAll(dir)

	dest := dir + string(os.PathSeparator)
	if _, err := r.runner.Run(ctx, r.tools.Unrar, "x", "-y", r.path, member, dest); err != nil {
		return nil, fmt.Errorf("%w: extracting %s: %w", ErrIO, member, err)
	}

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(member)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: entry %s", ErrNotFound, member)
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return data, nil
}
