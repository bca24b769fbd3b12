package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

// Opening the store applies pending migrations, so up and status share a path.
var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrateStatus,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current schema version",
	RunE:  runMigrateStatus,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.MigrateDown(); err != nil {
			return err
		}
		return printVersion(cmd, db.MigrationVersion)
	},
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()
	return printVersion(cmd, db.MigrationVersion)
}

func printVersion(cmd *cobra.Command, version func() (int64, error)) error {
	v, err := version()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d (%s)\n", v, cfg.Store.Driver)
	return nil
}
