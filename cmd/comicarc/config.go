package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/comicarc/pkg/comic/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage comicarc configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/comicarc/config.yaml (if set)
  2. ~/.config/comicarc/config.yaml

Environment variables can override config file settings using the COMICARC_ prefix:
  COMICARC_CACHE_SIZE=40
  COMICARC_TOOLS_SEVENZIP=7zz
  COMICARC_HTTP_TIMEOUT=10s`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration from defaults, file and environment.`,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a commented default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")

	configCmd.AddCommand(configShowCmd, configInitCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if cfg.File != "" {
		fmt.Fprintf(out, "# Config file: %s\n", cfg.File)
	} else {
		fmt.Fprintln(out, "# Config file: (using defaults, no file found)")
	}

	overrides := envOverrides()
	if len(overrides) > 0 {
		fmt.Fprintln(out, "# Environment overrides:")
		for _, kv := range overrides {
			fmt.Fprintf(out, "#   %s\n", kv)
		}
	}
	fmt.Fprintln(out)

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

// envOverrides lists the COMICARC_ variables set in the environment.
func envOverrides() []string {
	var out []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "COMICARC_") {
			out = append(out, kv)
		}
	}
	return out
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	force, _ := cmd.Flags().GetBool("force")

	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(configPath); err == nil && !force {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'comicarc config init --force' to replace it.")
		return nil
	}

	if _, err := config.WriteDefault(force); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	printInfo("Created default config file: %s", configPath)
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), configPath)
	return nil
}
