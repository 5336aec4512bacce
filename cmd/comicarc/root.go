package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/comicarc/pkg/comic/archive"
	"github.com/jamesainslie/comicarc/pkg/comic/config"
	"github.com/jamesainslie/comicarc/pkg/comic/logging"
)

var (
	cfgFile string

	// cfg is loaded by the PersistentPreRunE hook before any command runs.
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "comicarc",
		Short: "Read, inspect and index comic book archives",
		Long: `comicarc opens comic archives (cbz/zip, cbr/rar, cb7/7z, plain folders and
web archives), inspects and edits their manifest.toml, and keeps a searchable
index of a comic library.

Examples:
  comicarc list book.cbz             # List pages in reading order
  comicarc info book.cbz             # Show container metadata
  comicarc extract book.cbz 0        # Write the first page to the current dir
  comicarc manifest set book.cbz --title "Vol. 1"
  comicarc scan ~/Comics             # Index a library
  comicarc watch ~/Comics            # Keep the index up to date`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  initialize,
		PersistentPostRunE: shutdown,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/comicarc/config.yaml)")
	rootCmd.PersistentFlags().StringP("format", "o", "pretty", "output format (pretty, plain, json, yaml, jsonl, tsv, csv, markdown, paths, null, template)")
	rootCmd.PersistentFlags().String("template", "", "Go template used with --format template")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output on stderr")

	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("template", rootCmd.PersistentFlags().Lookup("template"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initialize loads configuration and starts logging.
func initialize(_ *cobra.Command, _ []string) error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFile(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	logCfg, err := cfg.LoggingOptions()
	if err != nil {
		return err
	}
	if getVerbose() {
		logCfg.ConsoleLevel = "debug"
	}
	if err := logging.Init(logCfg); err != nil {
		// Fall back to console-only logging when the log file cannot be opened.
		logCfg.Path = logging.ConsoleOnly
		if err := logging.Init(logCfg); err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
	}

	logging.Get("cli").Debug("configuration loaded", "file", cfg.File)
	return nil
}

func shutdown(_ *cobra.Command, _ []string) error {
	return logging.Close()
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// archiveOptions returns the configured archive options.
func archiveOptions() ([]archive.Option, error) {
	return cfg.ArchiveOptions()
}

// openContainer opens path with the configured options and retry policy.
func openContainer(ctx context.Context, path string) (*archive.Handle, error) {
	opts, err := archiveOptions()
	if err != nil {
		return nil, err
	}
	return archive.OpenWithRetry(ctx, path, cfg.RetryPolicy(), opts...)
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printInfo prints a message to stderr unless quiet mode is enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
