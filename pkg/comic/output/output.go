// Package output renders comicarc command results in the formats selected
// with --format (pretty, plain, json, yaml, ...).
//
// Formatters are looked up by name in a registry:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, result); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/comicarc/pkg/comic/index"
)

// Container describes one comic container.
type Container struct {
	Path       string    `json:"path" yaml:"path"`
	Name       string    `json:"name" yaml:"name"`
	Kind       string    `json:"kind" yaml:"kind"`
	Title      string    `json:"title" yaml:"title"`
	Author     string    `json:"author" yaml:"author"`
	WebArchive bool      `json:"web_archive" yaml:"web_archive"`
	Comments   []string  `json:"comments,omitempty" yaml:"comments,omitempty"`
	URLs       []string  `json:"urls,omitempty" yaml:"urls,omitempty"`
	PageCount  int       `json:"pages" yaml:"pages"`
	Size       int64     `json:"size" yaml:"size"`
	SizeHuman  string    `json:"size_human" yaml:"size_human"`
	ModTime    time.Time `json:"mod_time,omitempty" yaml:"mod_time,omitempty"`
	IndexedAt  time.Time `json:"indexed_at,omitempty" yaml:"indexed_at,omitempty"`
	Thumbnail  bool      `json:"thumbnail" yaml:"thumbnail"`
}

// FromEntry converts an index record.
func FromEntry(e *index.Entry) Container {
	c := Container{
		Path:       e.Path,
		Name:       filepath.Base(e.Path),
		Kind:       e.Kind,
		Title:      e.Title,
		Author:     e.Author,
		WebArchive: e.WebArchive,
		PageCount:  e.PageCount(),
		Size:       e.Size,
		SizeHuman:  humanize.IBytes(uint64(e.Size)),
		ModTime:    e.ModTime(),
		Thumbnail:  len(e.Thumbnail) > 0,
	}
	if e.IndexedAt > 0 {
		c.IndexedAt = time.Unix(0, e.IndexedAt)
	}
	return c
}

// Page is one entry of a container listing.
type Page struct {
	Index int    `json:"index" yaml:"index"`
	Name  string `json:"name" yaml:"name"`
}

// Pages numbers a listing.
func Pages(names []string) []Page {
	pages := make([]Page, len(names))
	for i, n := range names {
		pages[i] = Page{Index: i, Name: n}
	}
	return pages
}

// ScanStats summarizes a library scan.
type ScanStats struct {
	DirsScanned int64         `json:"dirs_scanned" yaml:"dirs_scanned"`
	Found       int64         `json:"found" yaml:"found"`
	Indexed     int64         `json:"indexed" yaml:"indexed"`
	Skipped     int64         `json:"skipped" yaml:"skipped"`
	Failed      int64         `json:"failed" yaml:"failed"`
	Removed     int           `json:"removed" yaml:"removed"`
	Duration    time.Duration `json:"-" yaml:"-"`
}

// WarmStats summarizes a cache warm-up.
type WarmStats struct {
	Loaded         int64         `json:"loaded" yaml:"loaded"`
	CacheHits      int64         `json:"cache_hits" yaml:"cache_hits"`
	AlreadyLoading int64         `json:"already_loading" yaml:"already_loading"`
	Failed         int64         `json:"failed" yaml:"failed"`
	Cached         int           `json:"cached" yaml:"cached"`
	Duration       time.Duration `json:"-" yaml:"-"`
}

// Result is everything a command wants to show.
type Result struct {
	// Source is the container or directory the command ran on.
	Source string

	// Containers holds library records or the single container inspected.
	Containers []Container

	// Pages is set for page listings and takes precedence in tabular output.
	Pages []Page

	Scan *ScanStats
	Warm *WarmStats

	Warnings []string
}

// TotalSize returns the sum of all container sizes.
func (r *Result) TotalSize() int64 {
	var total int64
	for _, c := range r.Containers {
		total += c.Size
	}
	return total
}

// TotalPages returns the number of pages across the result.
func (r *Result) TotalPages() int {
	if r.Pages != nil {
		return len(r.Pages)
	}
	total := 0
	for _, c := range r.Containers {
		total += c.PageCount
	}
	return total
}

// Table returns the rows shown by the tabular formatters.
func (r *Result) Table() (header []string, rows [][]string) {
	if r.Pages != nil {
		header = []string{"INDEX", "PAGE"}
		for _, p := range r.Pages {
			rows = append(rows, []string{strconv.Itoa(p.Index), p.Name})
		}
		return header, rows
	}

	header = []string{"PAGES", "SIZE", "KIND", "TITLE", "PATH"}
	for _, c := range r.Containers {
		rows = append(rows, []string{strconv.Itoa(c.PageCount), c.SizeHuman, c.Kind, c.Title, c.Path})
	}
	return header, rows
}

// Names returns page names for listings, else container paths.
func (r *Result) Names() []string {
	if r.Pages != nil {
		names := make([]string, len(r.Pages))
		for i, p := range r.Pages {
			names[i] = p.Name
		}
		return names
	}
	names := make([]string, len(r.Containers))
	for i, c := range r.Containers {
		names[i] = c.Path
	}
	return names
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry, replacing any
// existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
