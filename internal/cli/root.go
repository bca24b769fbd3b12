// Package cli implements the breathe command-line interface using Cobra.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tutu-network/breathe/internal/daemon"
	"github.com/tutu-network/breathe/internal/infra/store"
	"github.com/tutu-network/breathe/internal/logger"
)

// cfg is loaded once per invocation before any subcommand runs.
var cfg daemon.Config

var rootCmd = &cobra.Command{
	Use:   "breathe",
	Short: "breathe: behavioral challenge and rewards engine",
	Long: `breathe tracks behavior-change challenges (such as quitting smoking),
derives streaks and health-risk fade from self-reported observations, and
awards idempotent points, milestones, and achievements.

Configuration is read from $BREATHE_HOME/config.toml (default ~/.breathe),
.env files, and BREATHE_* environment variables.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	cfg = c

	// The server logs to stdout; one-shot commands keep stdout for output.
	if cmd == serveCmd {
		logger.Init(cfg.Logging.Dev, cfg.Logging.SentryDSN)
	} else {
		logger.Log = logger.New(cmd.ErrOrStderr(), cfg.Logging.Dev, "")
		slog.SetDefault(logger.Log)
	}
	return nil
}

// openStore opens and migrates the configured database.
func openStore() (*store.DB, error) {
	db, err := store.Open(cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version
	defer logger.Flush()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		logger.Flush()
		os.Exit(1)
	}
}
