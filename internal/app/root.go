// Package app implements the reposync command line.
package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blackwell-systems/reposync/internal/config"
	"github.com/blackwell-systems/reposync/internal/logging"
)

// cli carries the settings resolved before any subcommand runs.
type cli struct {
	configFile string
	cfg        config.Config
	logger     *slog.Logger
}

// persistentFlags maps config keys to their global flag names.
var persistentFlags = []struct {
	key, flag, usage string
}{
	{config.KeyDB, "db", "database path (default: <config dir>/reposync.db)"},
	{config.KeyPrefs, "prefs", "preferences file (default: <config dir>/preferences.yaml)"},
	{config.KeyCacheDir, "cache-dir", "repository index cache directory"},
	{config.KeyLogLevel, "log-level", "log level (debug, info, warn, error)"},
	{config.KeyLogFormat, "log-format", "log format (text, json)"},
	{config.KeyBrewPrefix, "brew-prefix", "Homebrew prefix (default: `brew --prefix`)"},
	{config.KeyBrewBin, "brew-bin", "brew executable"},
}

// NewRootCmd builds the reposync command tree.
func NewRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "reposync",
		Short: "Keep package repository indexes in step with your preferences",
		Long: `reposync mirrors the installed Homebrew packages into a local registry and
keeps remote repository indexes fresh.

A long-running 'reposync run' watches the preference file and reconciles:
  • the periodic sync job and the network/power conditions it waits for
  • the proxy used for every download
  • the periodic cache cleanup job
  • a full forced resync when unstable updates are toggled

Examples:
  # Start the background service
  reposync run --daemon

  # Add a repository and sync it now
  reposync repo add main https://repo.example.com/main
  reposync resync

  # Only sync on unmetered networks while charging
  reposync prefs set auto_sync wifi_plugged_in`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	root.PersistentFlags().StringVar(&c.configFile, "config", "", "config file (default: <config dir>/config.yaml)")
	for _, f := range persistentFlags {
		root.PersistentFlags().String(f.flag, "", f.usage)
	}
	root.SuggestionsMinimumDistance = 2

	root.AddCommand(
		c.newRunCmd(),
		c.newScanCmd(),
		c.newStatusCmd(),
		c.newResyncCmd(),
		c.newRepoCmd(),
		c.newPrefsCmd(),
	)
	return root
}

// load resolves config from flags, environment and file, and sets up logging.
func (c *cli) load(cmd *cobra.Command) error {
	dir, err := config.Dir()
	if err != nil {
		return fmt.Errorf("failed to resolve config directory: %w", err)
	}

	v := config.NewViper(dir)
	if err := bindFlags(v, cmd.Root()); err != nil {
		return err
	}

	c.cfg, err = config.Load(v, c.configFile)
	if err != nil {
		return err
	}
	if err := c.cfg.EnsureDirs(); err != nil {
		return err
	}

	c.logger, err = logging.New(os.Stderr, c.cfg.LogLevel, c.cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(c.logger)
	return nil
}

// bindFlags lets explicitly set flags win over environment and file values.
func bindFlags(v *viper.Viper, root *cobra.Command) error {
	for _, f := range persistentFlags {
		flag := root.PersistentFlags().Lookup(f.flag)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(f.key, flag); err != nil {
			return fmt.Errorf("failed to bind %s flag: %w", f.flag, err)
		}
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
