package filter

import (
	"errors"
	"testing"
	"time"

	"github.com/jamesainslie/comicarc/pkg/comic/index"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func entry(path, kind, title string, pages int, age time.Duration) *index.Entry {
	e := &index.Entry{
		Path:  path,
		Kind:  kind,
		Title: title,
		Mtime: testNow.Add(-age).UnixNano(),
	}
	for range pages {
		e.Pages = append(e.Pages, "p.png")
	}
	return e
}

func mustNew(t *testing.T, opts ...Option) *Filter {
	t.Helper()
	f, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.now = func() time.Time { return testNow }
	return f
}

func paths(entries []*index.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewDefaults(t *testing.T) {
	f := mustNew(t)
	if f.Limit != 0 {
		t.Errorf("Limit = %d, want 0", f.Limit)
	}
	if f.SortBy != SortPath {
		t.Errorf("SortBy = %v, want path", f.SortBy)
	}
	if f.SortDescending {
		t.Error("SortDescending should be false by default")
	}
}

func TestNewRejectsBadPattern(t *testing.T) {
	if _, err := New(WithInclude("[unclosed")); err == nil {
		t.Error("expected error for invalid include pattern")
	}
	if _, err := New(WithExclude("[a-")); err == nil {
		t.Error("expected error for invalid exclude pattern")
	}
}

func TestWithLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "positive", limit: 10, want: 10},
		{name: "zero is unlimited", limit: 0, want: 0},
		{name: "negative becomes zero", limit: -3, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustNew(t, WithLimit(tt.limit)).Limit; got != tt.want {
				t.Errorf("Limit = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	book := entry("/lib/marvel/xmen/001.cbz", "zip", "Uncanny X-Men", 24, 10*Day)
	book.Author = "Claremont"

	tests := []struct {
		name string
		opts []Option
		want bool
	}{
		{name: "no criteria", want: true},
		{name: "kind match", opts: []Option{WithKinds("ZIP", "rar")}, want: true},
		{name: "kind mismatch", opts: []Option{WithKinds("folder")}, want: false},
		{name: "min pages met", opts: []Option{WithMinPages(24)}, want: true},
		{name: "min pages not met", opts: []Option{WithMinPages(25)}, want: false},
		{name: "query title", opts: []Option{WithQuery("x-men")}, want: true},
		{name: "query author", opts: []Option{WithQuery("CLAREMONT")}, want: true},
		{name: "query miss", opts: []Option{WithQuery("batman")}, want: false},
		{name: "include hit", opts: []Option{WithInclude("/lib/marvel/**")}, want: true},
		{name: "include miss", opts: []Option{WithInclude("/lib/dc/**")}, want: false},
		{name: "single star stays in dir", opts: []Option{WithInclude("/lib/*.cbz")}, want: false},
		{name: "exclude wins", opts: []Option{WithInclude("**.cbz"), WithExclude("**/xmen/**")}, want: false},
		{name: "older than met", opts: []Option{WithOlderThan(7 * Day)}, want: true},
		{name: "older than not met", opts: []Option{WithOlderThan(30 * Day)}, want: false},
		{name: "newer than met", opts: []Option{WithNewerThan(30 * Day)}, want: true},
		{name: "newer than not met", opts: []Option{WithNewerThan(Day)}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mustNew(t, tt.opts...)
			if got := f.Match(book); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSort(t *testing.T) {
	a := entry("/a.cbz", "zip", "Zeta", 10, 3*Day)
	b := entry("/b.cbz", "zip", "alpha", 30, Day)
	c := entry("/c", "folder", "", 20, 2*Day)
	a.Size, b.Size, c.Size = 300, 100, 0
	a.IndexedAt, b.IndexedAt, c.IndexedAt = 3, 1, 2
	entries := []*index.Entry{c, a, b}

	tests := []struct {
		field SortField
		desc  bool
		want  []string
	}{
		{SortPath, false, []string{"/a.cbz", "/b.cbz", "/c"}},
		{SortPath, true, []string{"/c", "/b.cbz", "/a.cbz"}},
		{SortTitle, false, []string{"/c", "/b.cbz", "/a.cbz"}},
		{SortPages, true, []string{"/b.cbz", "/c", "/a.cbz"}},
		{SortSize, false, []string{"/c", "/b.cbz", "/a.cbz"}},
		{SortAge, false, []string{"/a.cbz", "/c", "/b.cbz"}},
		{SortIndexed, false, []string{"/b.cbz", "/c", "/a.cbz"}},
	}

	for _, tt := range tests {
		t.Run(tt.field.String(), func(t *testing.T) {
			f := mustNew(t, WithSortBy(tt.field), WithSortDescending(tt.desc))
			got := paths(f.Sort(entries))
			if !equal(got, tt.want) {
				t.Errorf("Sort() = %v, want %v", got, tt.want)
			}
		})
	}

	if got := paths(entries); !equal(got, []string{"/c", "/a.cbz", "/b.cbz"}) {
		t.Errorf("Sort modified its input: %v", got)
	}
}

func TestSortTiesBreakOnPath(t *testing.T) {
	x := entry("/x.cbz", "zip", "", 5, 0)
	y := entry("/y.cbz", "zip", "", 5, 0)
	f := mustNew(t, WithSortBy(SortPages))
	if got := paths(f.Sort([]*index.Entry{y, x})); !equal(got, []string{"/x.cbz", "/y.cbz"}) {
		t.Errorf("Sort() = %v", got)
	}
}

func TestApply(t *testing.T) {
	var entries []*index.Entry
	for i, name := range []string{"/e.cbz", "/d.cbz", "/c.cbr", "/b.cbz", "/a.cbz"} {
		entries = append(entries, entry(name, "zip", "", i+1, 0))
	}

	f := mustNew(t, WithInclude("/*.cbz"), WithSortBy(SortPages), WithSortDescending(true), WithLimit(2))
	got := paths(f.Apply(entries))
	if !equal(got, []string{"/a.cbz", "/b.cbz"}) {
		t.Errorf("Apply() = %v", got)
	}

	f = mustNew(t, WithKinds("folder"))
	if got := f.Apply(entries); len(got) != 0 {
		t.Errorf("Apply() = %v, want empty", paths(got))
	}
}

func TestParseSortField(t *testing.T) {
	for _, name := range SortFieldNames() {
		field, err := ParseSortField(name)
		if err != nil {
			t.Fatalf("ParseSortField(%q) error = %v", name, err)
		}
		if field.String() != name {
			t.Errorf("round trip %q gave %q", name, field.String())
		}
	}

	if f, err := ParseSortField(" Pages "); err != nil || f != SortPages {
		t.Errorf("ParseSortField(\" Pages \") = %v, %v", f, err)
	}
	if _, err := ParseSortField("colour"); !errors.Is(err, ErrInvalidSortField) {
		t.Errorf("expected ErrInvalidSortField, got %v", err)
	}
	if got := SortField(99).String(); got != "path" {
		t.Errorf("unknown field String() = %q", got)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr error
	}{
		{in: "3d", want: 3 * Day},
		{in: "2W", want: 2 * Week},
		{in: "6mo", want: 6 * Month},
		{in: "1y", want: Year},
		{in: "1.5d", want: 36 * time.Hour},
		{in: " 36h ", want: 36 * time.Hour},
		{in: "90m", want: 90 * time.Minute},
		{in: "", wantErr: ErrInvalidDuration},
		{in: "soon", wantErr: ErrInvalidDuration},
		{in: "-3d", wantErr: ErrNegativeValue},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseDuration(%q) error = %v, want %v", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDuration(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
