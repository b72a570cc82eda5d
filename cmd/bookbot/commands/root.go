// Package commands implements the bookbot CLI: processor control, job
// submission and inspection, book management, and database maintenance.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/dfeldman/bookbot-sub000/config"
	"github.com/dfeldman/bookbot-sub000/errors"
	"github.com/dfeldman/bookbot-sub000/logger"
)

var (
	cfgFile  string
	dbPath   string
	jsonLogs bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "bookbot",
	Short: "AI-assisted book writing with a persistent job processor",
	Long: `bookbot manages books as versioned chunks in SQLite and runs the
generation work (outlines, characters, settings, prose) as background
jobs with per-book and per-chunk locking.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(jsonLogs); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}

		var err error
		if cfgFile != "" {
			cfg, err = config.LoadFromFile(cfgFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: bookbot.toml in the project tree)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit logs as JSON")
}
