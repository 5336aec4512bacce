// Package manifest models manifest.toml, the metadata document stored at the
// root of every comic container.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/pelletier/go-toml/v2"
)

// Filename is the name of the manifest entry at the container root.
const Filename = "manifest.toml"

// CurrentVersion is the newest manifest layout this package writes.
const CurrentVersion uint = 1

// ErrInvalid is returned when manifest bytes cannot be parsed.
var ErrInvalid = errors.New("invalid manifest")

// Unknown is the placeholder title and author of a fresh manifest.
const Unknown = "Unknown"

// Manifest is the versioned metadata document of a container.
type Manifest struct {
	Version       uint           `toml:"version"`
	Meta          Meta           `toml:"meta"`
	ExternalPages *ExternalPages `toml:"external_pages,omitempty"`
}

// Meta holds descriptive fields.
type Meta struct {
	Title      string   `toml:"title"`
	Author     string   `toml:"author"`
	WebArchive bool     `toml:"web_archive"`
	Comments   []string `toml:"comments,omitempty"`
}

// ExternalPages lists remote page URLs for web archives.
type ExternalPages struct {
	URLs []string `toml:"urls"`
}

// Default returns the manifest used when a container has none.
func Default() *Manifest {
	return &Manifest{
		Version: CurrentVersion,
		Meta: Meta{
			Title:  Unknown,
			Author: Unknown,
		},
	}
}

// NewWebArchive returns a manifest that delegates pages to urls.
func NewWebArchive(urls []string) *Manifest {
	m := Default()
	m.Meta.WebArchive = true
	m.ExternalPages = &ExternalPages{URLs: slices.Clone(urls)}
	return m
}

// Parse decodes manifest bytes. Unknown keys are ignored and absent keys keep
// their defaults. The result is always upgraded to CurrentVersion.
func Parse(data []byte) (*Manifest, error) {
	m := Default()
	m.Version = 0

	if err := toml.NewDecoder(bytes.NewReader(data)).Decode(m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	m.Upgrade()
	return m, nil
}

// Marshal encodes the manifest as TOML. Empty comment lists are omitted.
func (m *Manifest) Marshal() ([]byte, error) {
	out := m.Clone()
	if len(out.Meta.Comments) == 0 {
		out.Meta.Comments = nil
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(false)
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Upgrade moves the manifest to CurrentVersion. It never downgrades.
func (m *Manifest) Upgrade() {
	if m.Version >= CurrentVersion {
		return
	}

	// Comments arrived with version 1. Older documents have none and none
	// are synthesized.
	m.Version = CurrentVersion
}

// Clone returns a deep copy.
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}
	out := *m
	out.Meta.Comments = slices.Clone(m.Meta.Comments)
	if m.ExternalPages != nil {
		out.ExternalPages = &ExternalPages{URLs: slices.Clone(m.ExternalPages.URLs)}
	}
	return &out
}

// URLs returns the external page URLs, or nil when there are none.
func (m *Manifest) URLs() []string {
	if m == nil || m.ExternalPages == nil {
		return nil
	}
	return slices.Clone(m.ExternalPages.URLs)
}
