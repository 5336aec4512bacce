// Package archive gives uniform access to the pages of a comic container.
//
// A container is a zip file, a plain directory, a RAR or 7z archive read through
// external tools, or any of these carrying a manifest that points at remote
// pages ("web archive"). Open picks the backend and returns a Handle which
// serializes all access to it.
package archive

import (
	"context"
	"errors"
	"path"
	"slices"
	"strings"

	"github.com/jamesainslie/comicarc/pkg/comic/manifest"
)

// Sentinel errors. Backends wrap these with context; test with errors.Is.
var (
	ErrUnsupportedFormat = errors.New("unsupported container format")
	ErrNotFound          = errors.New("not found")
	ErrIndexOutOfBounds  = errors.New("page index out of bounds")
	ErrIO                = errors.New("i/o failure")
	ErrManifest          = errors.New("manifest failure")
	ErrNetwork           = errors.New("network failure")
)

// Kind identifies a backend implementation.
type Kind string

// Backend kinds.
const (
	KindZip      Kind = "zip"
	KindFolder   Kind = "folder"
	KindRar      Kind = "rar"
	KindSevenZip Kind = "7z"
	KindWeb      Kind = "web"
)

// Backend is the contract every container implementation satisfies.
//
// Backends are not safe for concurrent use; Handle provides the locking.
type Backend interface {
	// Kind reports the backend tag.
	Kind() Kind

	// ListImages returns page entry names, filtered to image extensions,
	// deduplicated and sorted ascending.
	ListImages(ctx context.Context) ([]string, error)

	// ReadImageByName returns the raw bytes of one entry.
	ReadImageByName(ctx context.Context, name string) ([]byte, error)

	// ReadManifest reads manifest.toml from the container root.
	ReadManifest(ctx context.Context) (*manifest.Manifest, error)

	// WriteManifest replaces manifest.toml at the container root.
	WriteManifest(ctx context.Context, m *manifest.Manifest) error

	// Close releases scratch resources.
	Close() error
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// IsImageName reports whether name has a page image extension. The match is
// case-insensitive on the suffix only.
func IsImageName(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return slices.Contains(imageExtensions, ext)
}

// filterImages keeps image names and returns them sorted and deduplicated.
func filterImages(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if IsImageName(n) {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
