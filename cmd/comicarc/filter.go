package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/comicarc/pkg/comic/filter"
)

func addFilterFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSlice("include", nil, "only paths matching these globs (** crosses directories)")
	f.StringSlice("exclude", nil, "drop paths matching these globs")
	f.StringSlice("kind", nil, "only these kinds: zip, folder, rar, 7z, web")
	f.StringP("query", "s", "", "case-insensitive text to find in title or author")
	f.Int("min-pages", 0, "only containers with at least this many pages")
	f.String("older-than", "", "only containers modified before this age (e.g. 30d, 6mo)")
	f.String("newer-than", "", "only containers modified within this age (e.g. 2w, 36h)")
	f.String("sort", "path", "sort by: path, title, pages, size, age, indexed")
	f.BoolP("reverse", "r", false, "reverse the sort order")
	f.IntP("limit", "n", 0, "show at most this many containers (0=all)")
}

// buildFilter creates a filter.Filter from the command's flags.
func buildFilter(cmd *cobra.Command) (*filter.Filter, error) {
	flags := cmd.Flags()
	var opts []filter.Option

	if v, _ := flags.GetStringSlice("include"); len(v) > 0 {
		opts = append(opts, filter.WithInclude(v...))
	}
	if v, _ := flags.GetStringSlice("exclude"); len(v) > 0 {
		opts = append(opts, filter.WithExclude(v...))
	}
	if v, _ := flags.GetStringSlice("kind"); len(v) > 0 {
		opts = append(opts, filter.WithKinds(v...))
	}
	if v, _ := flags.GetString("query"); v != "" {
		opts = append(opts, filter.WithQuery(v))
	}
	if v, _ := flags.GetInt("min-pages"); v > 0 {
		opts = append(opts, filter.WithMinPages(v))
	}
	if v, _ := flags.GetInt("limit"); v > 0 {
		opts = append(opts, filter.WithLimit(v))
	}

	if v, _ := flags.GetString("older-than"); v != "" {
		d, err := filter.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid older-than %q: %w", v, err)
		}
		opts = append(opts, filter.WithOlderThan(d))
	}
	if v, _ := flags.GetString("newer-than"); v != "" {
		d, err := filter.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid newer-than %q: %w", v, err)
		}
		opts = append(opts, filter.WithNewerThan(d))
	}

	sortBy, _ := flags.GetString("sort")
	field, err := filter.ParseSortField(sortBy)
	if err != nil {
		return nil, err
	}
	opts = append(opts, filter.WithSortBy(field))

	// Counts and timestamps read best largest first; names and ages A-Z and
	// oldest first. --reverse flips whichever applies.
	reverse, _ := flags.GetBool("reverse")
	descending := reverse
	switch field {
	case filter.SortPages, filter.SortSize, filter.SortIndexed:
		descending = !reverse
	}
	opts = append(opts, filter.WithSortDescending(descending))

	return filter.New(opts...)
}
