package filter

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/jamesainslie/comicarc/pkg/comic/index"
)

// Filter defines criteria for selecting, sorting and limiting entries.
type Filter struct {
	// Include contains path globs. If non-empty, entries must match one.
	Include []string

	// Exclude contains path globs. Matching entries are dropped.
	Exclude []string

	// Kinds restricts entries to these container kinds ("zip", "folder", ...).
	Kinds []string

	// Query is matched case-insensitively against title and author.
	Query string

	// MinPages drops entries with fewer pages.
	MinPages int

	// OlderThan drops entries modified more recently than this long ago.
	OlderThan time.Duration

	// NewerThan drops entries modified longer ago than this.
	NewerThan time.Duration

	SortBy         SortField
	SortDescending bool

	// Limit is the maximum number of entries returned. 0 means unlimited.
	Limit int

	include []glob.Glob
	exclude []glob.Glob
	now     func() time.Time
}

// Option is a functional option for configuring a Filter.
type Option func(*Filter)

// New creates a Filter sorted by path, ascending, with no limit. Glob
// patterns are compiled up front so a bad pattern is reported once.
func New(opts ...Option) (*Filter, error) {
	f := &Filter{SortBy: SortPath, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}

	var err error
	if f.include, err = compile(f.Include); err != nil {
		return nil, err
	}
	if f.exclude, err = compile(f.Exclude); err != nil {
		return nil, err
	}
	return f, nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// WithLimit sets the maximum number of entries. Negative means unlimited.
func WithLimit(limit int) Option {
	return func(f *Filter) {
		f.Limit = max(limit, 0)
	}
}

// WithInclude sets the include globs.
func WithInclude(patterns ...string) Option {
	return func(f *Filter) {
		f.Include = patterns
	}
}

// WithExclude sets the exclude globs.
func WithExclude(patterns ...string) Option {
	return func(f *Filter) {
		f.Exclude = patterns
	}
}

// WithKinds restricts the container kinds. Names are lowercased.
func WithKinds(kinds ...string) Option {
	return func(f *Filter) {
		f.Kinds = f.Kinds[:0]
		for _, k := range kinds {
			f.Kinds = append(f.Kinds, strings.ToLower(strings.TrimSpace(k)))
		}
	}
}

// WithQuery sets the title/author text query.
func WithQuery(q string) Option {
	return func(f *Filter) {
		f.Query = strings.ToLower(strings.TrimSpace(q))
	}
}

// WithMinPages sets the minimum page count.
func WithMinPages(n int) Option {
	return func(f *Filter) {
		f.MinPages = max(n, 0)
	}
}

func WithOlderThan(d time.Duration) Option {
	return func(f *Filter) {
		f.OlderThan = d
	}
}

func WithNewerThan(d time.Duration) Option {
	return func(f *Filter) {
		f.NewerThan = d
	}
}

// WithSortBy sets the field to sort by.
func WithSortBy(field SortField) Option {
	return func(f *Filter) {
		f.SortBy = field
	}
}

// WithSortDescending reverses the sort order.
func WithSortDescending(desc bool) Option {
	return func(f *Filter) {
		f.SortDescending = desc
	}
}

// Match reports whether e passes every criterion.
func (f *Filter) Match(e *index.Entry) bool {
	return f.matchKind(e) &&
		f.matchPages(e) &&
		f.matchAge(e) &&
		f.matchQuery(e) &&
		f.matchPatterns(e)
}

func (f *Filter) matchKind(e *index.Entry) bool {
	return len(f.Kinds) == 0 || slices.Contains(f.Kinds, e.Kind)
}

func (f *Filter) matchPages(e *index.Entry) bool {
	return e.PageCount() >= f.MinPages
}

func (f *Filter) matchAge(e *index.Entry) bool {
	now := f.now()
	mtime := e.ModTime()

	if f.OlderThan > 0 && mtime.After(now.Add(-f.OlderThan)) {
		return false
	}
	if f.NewerThan > 0 && mtime.Before(now.Add(-f.NewerThan)) {
		return false
	}
	return true
}

func (f *Filter) matchQuery(e *index.Entry) bool {
	if f.Query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Title), f.Query) ||
		strings.Contains(strings.ToLower(e.Author), f.Query)
}

func (f *Filter) matchPatterns(e *index.Entry) bool {
	if matchesAny(e.Path, f.exclude) {
		return false
	}
	return len(f.include) == 0 || matchesAny(e.Path, f.include)
}

func matchesAny(path string, globs []glob.Glob) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// Sort returns a sorted copy of entries. Ties are broken by path.
func (f *Filter) Sort(entries []*index.Entry) []*index.Entry {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b *index.Entry) int {
		var result int
		switch f.SortBy {
		case SortTitle:
			result = cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		case SortPages:
			result = cmp.Compare(a.PageCount(), b.PageCount())
		case SortSize:
			result = cmp.Compare(a.Size, b.Size)
		case SortAge:
			result = cmp.Compare(a.Mtime, b.Mtime)
		case SortIndexed:
			result = cmp.Compare(a.IndexedAt, b.IndexedAt)
		}
		if result == 0 {
			result = cmp.Compare(a.Path, b.Path)
		}
		if f.SortDescending {
			return -result
		}
		return result
	})
	return sorted
}

// Apply runs Match, Sort and Limit in turn.
func (f *Filter) Apply(entries []*index.Entry) []*index.Entry {
	var matched []*index.Entry
	for _, e := range entries {
		if f.Match(e) {
			matched = append(matched, e)
		}
	}

	sorted := f.Sort(matched)
	if f.Limit > 0 && len(sorted) > f.Limit {
		return sorted[:f.Limit]
	}
	return sorted
}
