package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/comicarc/pkg/comic/archive"
	"github.com/jamesainslie/comicarc/pkg/comic/loader"
	"github.com/jamesainslie/comicarc/pkg/comic/output"
	"github.com/jamesainslie/comicarc/pkg/comic/pagecache"
	"github.com/jamesainslie/comicarc/pkg/comic/tuner"
)

var warmCmd = &cobra.Command{
	Use:   "warm <container>",
	Short: "Decode pages into the page cache and report timing",
	Long: `Decode pages through the page cache and background loader, the way a
reader does while paging. Use it to check that every page decodes and to
measure decode throughput.

Without --all, pages from --start through the read-ahead window are decoded.`,
	Args: cobra.ExactArgs(1),
	RunE: runWarm,
}

func init() {
	warmCmd.Flags().Int("start", 0, "first page of the read-ahead window")
	warmCmd.Flags().Bool("all", false, "decode every page")
	rootCmd.AddCommand(warmCmd)
}

func runWarm(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	h, err := openContainer(ctx, args[0])
	if err != nil {
		return err
	}
	defer h.Close()

	size := cfg.Cache.Size
	all, _ := cmd.Flags().GetBool("all")
	start, _ := cmd.Flags().GetInt("start")

	names, err := h.ListImages(ctx)
	if err != nil {
		return err
	}
	if all && len(names) > size {
		size = min(len(names), max(size, tuner.Auto().MaxCachedPages))
	}
	cache, err := pagecache.New(size)
	if err != nil {
		return err
	}
	l, err := loader.New(ctx, h, cache, cfg.LoaderOptions())
	if err != nil {
		return err
	}

	began := time.Now()
	var stats loader.Stats
	if all {
		pages := make([]int, l.PageCount())
		for p := range pages {
			pages[p] = p
		}
		if stats, err = l.Warm(ctx, pages); err != nil {
			return err
		}
	} else {
		if start < 0 || start >= l.PageCount() {
			return fmt.Errorf("%w: page %d of %d", archive.ErrIndexOutOfBounds, start, l.PageCount())
		}
		l.Prefetch(ctx, start)
		l.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}
		stats = l.Stats()
	}

	return render(cmd, &output.Result{
		Source: h.Path(),
		Warm: &output.WarmStats{
			Loaded:         stats.Loaded,
			CacheHits:      stats.CacheHits,
			AlreadyLoading: stats.AlreadyLoading,
			Failed:         stats.Failed,
			Cached:         cache.Len(),
			Duration:       time.Since(began),
		},
	})
}
