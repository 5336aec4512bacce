package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/comicarc/pkg/comic/archive"
	"github.com/jamesainslie/comicarc/pkg/comic/output"
	"github.com/jamesainslie/comicarc/pkg/comic/thumb"
)

var listCmd = &cobra.Command{
	Use:   "list <container>",
	Short: "List the pages of a container in reading order",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

var infoCmd = &cobra.Command{
	Use:   "info <container>",
	Short: "Show container metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var extractCmd = &cobra.Command{
	Use:   "extract <container> <page>",
	Short: "Write one page's bytes to a file",
	Long: `Write one page to a file. <page> is a zero-based index or a page name as
shown by 'comicarc list'. Use --out - to write to stdout.`,
	Args: cobra.ExactArgs(2),
	RunE: runExtract,
}

var thumbCmd = &cobra.Command{
	Use:   "thumb <container> [page]",
	Short: "Render a JPEG thumbnail of a page (the first page by default)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runThumb,
}

func init() {
	extractCmd.Flags().String("out", "", "output file (default: the page's base name in the current directory)")

	thumbCmd.Flags().String("out", "thumb.jpg", "output file, - for stdout")
	thumbCmd.Flags().Int("size", 0, "bounding box in pixels (default from config)")
	thumbCmd.Flags().Int("quality", 0, "JPEG quality 1-100 (default from config)")

	rootCmd.AddCommand(listCmd, infoCmd, extractCmd, thumbCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	h, err := openContainer(ctx, args[0])
	if err != nil {
		return err
	}
	defer h.Close()

	pages, err := h.ListImages(ctx)
	if err != nil {
		return err
	}
	return render(cmd, &output.Result{Source: h.Path(), Pages: output.Pages(pages)})
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	h, err := openContainer(ctx, args[0])
	if err != nil {
		return err
	}
	defer h.Close()

	c, err := describe(ctx, h)
	if err != nil {
		return err
	}

	result := &output.Result{Containers: []output.Container{c}}
	if _, err := h.ReadManifest(ctx); errors.Is(err, archive.ErrManifest) {
		result.Warnings = append(result.Warnings, "no readable manifest.toml, showing defaults")
	}
	return render(cmd, result)
}

// describe builds the output record for an open container.
func describe(ctx context.Context, h *archive.Handle) (output.Container, error) {
	pages, err := h.ListImages(ctx)
	if err != nil {
		return output.Container{}, err
	}
	info, err := os.Stat(h.Path())
	if err != nil {
		return output.Container{}, err
	}

	m := h.Manifest()
	c := output.Container{
		Path:       h.Path(),
		Name:       filepath.Base(h.Path()),
		Kind:       string(h.Kind()),
		Title:      m.Meta.Title,
		Author:     m.Meta.Author,
		WebArchive: m.Meta.WebArchive,
		Comments:   m.Meta.Comments,
		URLs:       m.URLs(),
		PageCount:  len(pages),
		ModTime:    info.ModTime(),
	}
	if !info.IsDir() {
		c.Size = info.Size()
	}
	c.SizeHuman = humanize.IBytes(uint64(c.Size))
	return c, nil
}

// pageName resolves a page argument, accepting an index or a name.
func pageName(h *archive.Handle, pages []string, arg string) (string, error) {
	if i, err := strconv.Atoi(arg); err == nil {
		if i < 0 || i >= len(pages) {
			return "", fmt.Errorf("%w: page %d of %d", archive.ErrIndexOutOfBounds, i, len(pages))
		}
		return pages[i], nil
	}
	for _, p := range pages {
		if p == arg {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: page %q in %s", archive.ErrNotFound, arg, h.Path())
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	h, err := openContainer(ctx, args[0])
	if err != nil {
		return err
	}
	defer h.Close()

	pages, err := h.ListImages(ctx)
	if err != nil {
		return err
	}
	name, err := pageName(h, pages, args[1])
	if err != nil {
		return err
	}

	data, err := h.ReadImageByName(ctx, name)
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = pageFileName(name)
	}
	if err := writeOutput(cmd, out, data); err != nil {
		return err
	}
	if out != "-" {
		printInfo("Wrote %s (%s)", out, humanize.IBytes(uint64(len(data))))
	}
	return nil
}

// pageFileName derives a local file name from a page name or URL.
func pageFileName(name string) string {
	base := filepath.Base(filepath.FromSlash(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "page"
	}
	return base
}

func runThumb(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	h, err := openContainer(ctx, args[0])
	if err != nil {
		return err
	}
	defer h.Close()

	name := ""
	if len(args) == 2 {
		pages, err := h.ListImages(ctx)
		if err != nil {
			return err
		}
		if name, err = pageName(h, pages, args[1]); err != nil {
			return err
		}
	}

	opts := cfg.ThumbnailOptions()
	if size, _ := cmd.Flags().GetInt("size"); size > 0 {
		opts.Size = size
	}
	if q, _ := cmd.Flags().GetInt("quality"); q > 0 {
		opts.Quality = q
	}

	data, err := thumb.FromHandle(ctx, h, name, opts)
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if err := writeOutput(cmd, out, data); err != nil {
		return err
	}
	if out != "-" {
		printInfo("Wrote %s (%s)", out, humanize.IBytes(uint64(len(data))))
	}
	return nil
}

// writeOutput writes data to path, or the command's output for "-".
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
