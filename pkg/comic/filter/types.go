// Package filter selects, sorts and limits library index entries for
// listing. It supports glob patterns on paths, container kinds, a text query
// on title and author, page counts and modification age.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// SortField specifies the field to sort entries by.
type SortField int

const (
	// SortPath sorts entries by path.
	SortPath SortField = iota
	// SortTitle sorts entries by title, falling back to path.
	SortTitle
	// SortPages sorts entries by page count.
	SortPages
	// SortSize sorts entries by size in bytes.
	SortSize
	// SortAge sorts entries by modification time, oldest first.
	SortAge
	// SortIndexed sorts entries by when they were last indexed.
	SortIndexed
)

var sortFieldNames = map[SortField]string{
	SortPath:    "path",
	SortTitle:   "title",
	SortPages:   "pages",
	SortSize:    "size",
	SortAge:     "age",
	SortIndexed: "indexed",
}

// String returns the string representation of the sort field.
func (s SortField) String() string {
	if name, ok := sortFieldNames[s]; ok {
		return name
	}
	return sortFieldNames[SortPath]
}

// ErrInvalidSortField indicates that the sort field string could not be parsed.
var ErrInvalidSortField = errors.New("invalid sort field")

// ParseSortField parses a sort field name (case-insensitive).
func ParseSortField(s string) (SortField, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for field, name := range sortFieldNames {
		if name == want {
			return field, nil
		}
	}
	return SortPath, fmt.Errorf("%w: %q (valid: %s)", ErrInvalidSortField, s, strings.Join(SortFieldNames(), ", "))
}

// SortFieldNames lists the accepted sort field names in declaration order.
func SortFieldNames() []string {
	names := make([]string, 0, len(sortFieldNames))
	for f := SortPath; f <= SortIndexed; f++ {
		names = append(names, sortFieldNames[f])
	}
	return names
}
