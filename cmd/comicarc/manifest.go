package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/comicarc/pkg/comic/archive"
	"github.com/jamesainslie/comicarc/pkg/comic/manifest"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Show or edit a container's manifest.toml",
}

var manifestShowCmd = &cobra.Command{
	Use:   "show <container>",
	Short: "Print the manifest as TOML",
	Long: `Print the container's manifest as TOML. A container without a readable
manifest shows the defaults that would be written.`,
	Args: cobra.ExactArgs(1),
	RunE: runManifestShow,
}

var manifestSetCmd = &cobra.Command{
	Use:   "set <container>",
	Short: "Update manifest fields and write the manifest back",
	Long: `Update manifest fields and write the manifest back into the container.

Zip containers are rewritten atomically, folders get a new manifest.toml and
RAR containers are updated with the rar tool when it is installed. 7z
containers are read-only.`,
	Args: cobra.ExactArgs(1),
	RunE: runManifestSet,
}

var createWebCmd = &cobra.Command{
	Use:   "create-web <path> [url...]",
	Short: "Create a web archive whose pages are fetched over HTTP",
	Long: `Create a zip container holding only a manifest that lists page URLs.
URLs are taken from the arguments, or one per line from --from (- for stdin).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCreateWeb,
}

func init() {
	manifestSetCmd.Flags().String("title", "", "set the title")
	manifestSetCmd.Flags().String("author", "", "set the author")
	manifestSetCmd.Flags().StringArray("comment", nil, "append a comment (repeatable)")
	manifestSetCmd.Flags().Bool("clear-comments", false, "remove existing comments first")

	createWebCmd.Flags().String("from", "", "read URLs from a file, one per line")

	manifestCmd.AddCommand(manifestShowCmd, manifestSetCmd)
	rootCmd.AddCommand(manifestCmd, createWebCmd)
}

func runManifestShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	h, err := openContainer(ctx, args[0])
	if err != nil {
		return err
	}
	defer h.Close()

	data, err := h.Manifest().Marshal()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runManifestSet(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	flags := cmd.Flags()
	if !flags.Changed("title") && !flags.Changed("author") && !flags.Changed("comment") && !flags.Changed("clear-comments") {
		return fmt.Errorf("nothing to change: use --title, --author, --comment or --clear-comments")
	}

	h, err := openContainer(ctx, args[0])
	if err != nil {
		return err
	}
	defer h.Close()

	err = h.EditManifest(ctx, func(m *manifest.Manifest) error {
		if flags.Changed("title") {
			m.Meta.Title, _ = flags.GetString("title")
		}
		if flags.Changed("author") {
			m.Meta.Author, _ = flags.GetString("author")
		}
		if clear, _ := flags.GetBool("clear-comments"); clear {
			m.Meta.Comments = nil
		}
		comments, _ := flags.GetStringArray("comment")
		m.Meta.Comments = append(m.Meta.Comments, comments...)
		return nil
	})
	if err != nil {
		return err
	}

	printInfo("Updated manifest of %s", h.Path())
	return nil
}

func runCreateWeb(cmd *cobra.Command, args []string) error {
	path := args[0]
	urls := append([]string(nil), args[1:]...)

	if from, _ := cmd.Flags().GetString("from"); from != "" {
		more, err := readURLs(from)
		if err != nil {
			return err
		}
		urls = append(urls, more...)
	}

	if err := archive.CreateWebArchive(path, urls); err != nil {
		return err
	}
	printInfo("Created web archive %s with %d pages", path, len(urls))
	return nil
}

// readURLs reads one URL per line, skipping blanks and # comments.
func readURLs(path string) ([]string, error) {
	f := os.Stdin
	if path != "-" {
		var err error
		if f, err = os.Open(path); err != nil {
			return nil, err
		}
		defer f.Close()
	}

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}
