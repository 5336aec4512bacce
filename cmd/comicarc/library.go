package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/comicarc/pkg/comic/filter"
	"github.com/jamesainslie/comicarc/pkg/comic/index"
	"github.com/jamesainslie/comicarc/pkg/comic/library"
	"github.com/jamesainslie/comicarc/pkg/comic/output"
)

var scanCmd = &cobra.Command{
	Use:   "scan [dir]",
	Short: "Index every container below a directory",
	Long: `Walk a directory tree and record every container (cbz/zip, cbr/rar,
cb7/7z and folders holding a manifest.toml) in the library index.

Containers whose size and modification time are unchanged since the last scan
are skipped unless --force is given. Records for containers that no longer
exist are removed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Scan a directory, then keep its index up to date",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

var libraryCmd = &cobra.Command{
	Use:   "library [dir]",
	Short: "List indexed containers",
	Long: `List containers recorded in the library index, optionally limited to a
directory. Filter flags narrow the list; results are sorted by path unless
--sort says otherwise.`,
	Example: `  comicarc library --kind zip --sort pages -n 10
  comicarc library ~/comics --query moore --newer-than 30d
  comicarc library --include '**/Sandman/**' --format paths`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLibrary,
}

func init() {
	for _, cmd := range []*cobra.Command{scanCmd, watchCmd} {
		cmd.Flags().Bool("force", false, "re-index containers even when unchanged")
		cmd.Flags().Bool("no-thumbnails", false, "do not render thumbnails")
		cmd.Flags().IntP("workers", "w", 0, "containers opened at once (0=auto)")
	}
	scanCmd.Flags().Bool("no-prune", false, "keep records of containers that disappeared")
	addFilterFlags(libraryCmd)

	rootCmd.AddCommand(scanCmd, watchCmd, libraryCmd)
}

// libraryRoot resolves the directory argument, falling back to library.root.
func libraryRoot(args []string) (string, error) {
	root := cfg.Library.Root
	if len(args) > 0 {
		root = args[0]
	}
	if root == "" {
		return "", errors.New("no directory given and library.root is not configured")
	}
	return filepath.Abs(root)
}

// openIndex opens the configured index store.
func openIndex() (*index.Store, error) {
	if err := os.MkdirAll(cfg.Index.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	return index.OpenStore(cfg.Index.Path)
}

// newIndexer builds an indexer from config and the command's flags.
func newIndexer(cmd *cobra.Command, store *index.Store) (*library.Indexer, error) {
	archiveOpts, err := archiveOptions()
	if err != nil {
		return nil, err
	}
	opts := []library.IndexerOption{
		library.WithArchiveOptions(archiveOpts...),
		library.WithRetry(cfg.RetryPolicy()),
		library.WithThumbnails(cfg.ThumbnailOptions()),
	}
	if noThumbs, _ := cmd.Flags().GetBool("no-thumbnails"); noThumbs {
		opts = append(opts, library.WithoutThumbnails())
	}
	return library.NewIndexer(store, opts...), nil
}

func scanOptions(cmd *cobra.Command, root string) library.ScanOptions {
	opts := library.DefaultScanOptions(root)
	opts.Force, _ = cmd.Flags().GetBool("force")
	if w, _ := cmd.Flags().GetInt("workers"); w > 0 {
		opts.Workers = w
	}
	if noPrune, err := cmd.Flags().GetBool("no-prune"); err == nil && noPrune {
		opts.Prune = false
	}
	if !getQuiet() {
		opts.OnProgress = func(p library.Progress) {
			fmt.Fprintf(os.Stderr, "\rfound %d  indexed %d  skipped %d  failed %d", p.Found, p.Indexed, p.Skipped, p.Failed)
		}
	}
	return opts
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	root, err := libraryRoot(args)
	if err != nil {
		return err
	}
	store, err := openIndex()
	if err != nil {
		return err
	}
	defer store.Close()

	ix, err := newIndexer(cmd, store)
	if err != nil {
		return err
	}

	res, err := library.NewScanner(ix, scanOptions(cmd, root)).Scan(ctx)
	if !getQuiet() {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	result, err := libraryResult(store, res.Root, nil)
	if err != nil {
		return err
	}
	result.Scan = &output.ScanStats{
		DirsScanned: res.DirsScanned,
		Found:       res.Found,
		Indexed:     res.Indexed,
		Skipped:     res.Skipped,
		Failed:      res.Failed,
		Removed:     len(res.Removed),
		Duration:    res.Elapsed,
	}
	for _, e := range res.Errors {
		result.Warnings = append(result.Warnings, e.Path+": "+e.Error)
	}
	return render(cmd, result)
}

func runLibrary(cmd *cobra.Command, args []string) error {
	f, err := buildFilter(cmd)
	if err != nil {
		return err
	}

	dir := ""
	if len(args) > 0 {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		dir = abs
	}

	store, err := openIndex()
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := libraryResult(store, dir, f)
	if err != nil {
		return err
	}
	return render(cmd, result)
}

// libraryResult lists the index below dir, narrowed by f when it is not nil.
func libraryResult(store *index.Store, dir string, f *filter.Filter) (*output.Result, error) {
	entries, err := store.List(dir)
	if err != nil {
		return nil, err
	}
	if f != nil {
		entries = f.Apply(entries)
	}
	result := &output.Result{Source: dir, Containers: make([]output.Container, 0, len(entries))}
	for _, e := range entries {
		result.Containers = append(result.Containers, output.FromEntry(e))
	}
	return result, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	root, err := libraryRoot(args)
	if err != nil {
		return err
	}
	store, err := openIndex()
	if err != nil {
		return err
	}
	defer store.Close()

	ix, err := newIndexer(cmd, store)
	if err != nil {
		return err
	}

	// Watch before the initial scan so changes made during it are not lost.
	w, err := library.NewWatcher(ix, cfg.Library.Debounce)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Watch(root); err != nil {
		return err
	}

	opts := scanOptions(cmd, root)
	opts.OnProgress = nil
	res, err := library.NewScanner(ix, opts).Scan(ctx)
	if err != nil {
		return err
	}
	printInfo("Indexed %d, skipped %d, failed %d. Watching %s (Ctrl-C to stop)",
		res.Indexed, res.Skipped, res.Failed, root)

	w.Run(ctx, func(e library.Event) {
		if e.Err != nil {
			printError("%s %s: %v", e.Action, e.Path, e.Err)
			return
		}
		printInfo("%s %s", e.Action, e.Path)
	})
	return nil
}
