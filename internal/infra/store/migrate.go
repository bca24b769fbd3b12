package store

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var dialects = map[string]string{
	DriverSQLite:   "sqlite3",
	DriverPostgres: "postgres",
}

type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "migrate")
}

func (gooseLogger) Fatalf(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...), "component", "migrate")
}

func (d *DB) setupGoose() error {
	dialect, ok := dialects[d.driver]
	if !ok {
		return fmt.Errorf("no migration dialect for driver %q", d.driver)
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations dir: %w", err)
	}
	goose.SetBaseFS(sub)
	goose.SetLogger(gooseLogger{})
	return nil
}

// Migrate applies all pending migrations.
func (d *DB) Migrate() error {
	if err := d.setupGoose(); err != nil {
		return err
	}
	if err := goose.Up(d.db.DB, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (d *DB) MigrateDown() error {
	if err := d.setupGoose(); err != nil {
		return err
	}
	if err := goose.Down(d.db.DB, "."); err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	slog.Info("rolled back one migration")
	return nil
}

// MigrationVersion returns the current schema version.
func (d *DB) MigrationVersion() (int64, error) {
	if err := d.setupGoose(); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(d.db.DB)
}
