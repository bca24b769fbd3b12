// Package store provides SQL persistence for the engine.
// SQLite (modernc, pure Go) is the default; Postgres is served through pgx.
// Every mutating operation runs inside one transaction serialized per user.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver "pgx"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver "sqlite"

	"github.com/tutu-network/breathe/internal/domain"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Config selects and tunes the database.
type Config struct {
	Driver       string
	DSN          string        // For sqlite, empty means DataDir/state.db
	DataDir      string
	MaxOpenConns int           // Ignored for sqlite (single writer)
	OpTimeout    time.Duration // Upper bound for one transaction
}

// DB wraps the connection pool and the transaction helpers.
type DB struct {
	db      *sqlx.DB
	driver  string
	timeout time.Duration
}

// Open connects, configures the pool, and runs pending migrations.
func Open(cfg Config) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	dsn := cfg.DSN
	switch driver {
	case DriverSQLite:
		var err error
		if dsn, err = sqliteDSN(cfg); err != nil {
			return nil, err
		}
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("store: pgx driver requires a DSN")
		}
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite is single-writer
		db.SetMaxIdleConns(1)
	} else {
		conns := cfg.MaxOpenConns
		if conns <= 0 {
			conns = 25
		}
		db.SetMaxOpenConns(conns)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	d := &DB{db: db, driver: driver, timeout: timeout}
	if err := d.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("database connected", "driver", driver)
	return d, nil
}

// OpenSQLite opens dir/state.db with default settings.
func OpenSQLite(dir string) (*DB, error) {
	return Open(Config{Driver: DriverSQLite, DataDir: dir})
}

func sqliteDSN(cfg Config) (string, error) {
	if strings.Contains(cfg.DSN, "?") {
		return cfg.DSN, nil
	}
	path := cfg.DSN
	if path == "" {
		path = filepath.Join(cfg.DataDir, "state.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	// IMMEDIATE transactions take the write lock up front so two writers
	// never deadlock upgrading from a read lock.
	return "file:" + path +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate", nil
}

// Driver returns the configured driver name.
func (d *DB) Driver() string { return d.driver }

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return classify(d.db.PingContext(ctx))
}

// ─── Transactions ───────────────────────────────────────────────────────────

// Update runs fn in a transaction holding the per-user write lock.
// On Postgres the lock is a transaction-scoped advisory lock; on SQLite the
// single connection with IMMEDIATE transactions already serializes writers.
// fn's error rolls the transaction back; nothing is partially committed.
func (d *DB) Update(ctx context.Context, userID string, fn func(*Tx) error) error {
	return d.run(ctx, userID, fn)
}

// View runs fn in a transaction without taking the user lock.
func (d *DB) View(ctx context.Context, fn func(*Tx) error) error {
	return d.run(ctx, "", fn)
}

func (d *DB) run(ctx context.Context, userID string, fn func(*Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	sqlTx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = sqlTx.Rollback() }()

	tx := &Tx{tx: sqlTx, ctx: ctx}
	if userID != "" && d.driver == DriverPostgres {
		if _, err := tx.exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended(?, 0))`, userID); err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return tx.classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Tx is a unit of work. All repository methods hang off it so that a
// multi-step evaluation commits or fails as one.
type Tx struct {
	tx  *sqlx.Tx
	ctx context.Context // carries the operation deadline
}

// bound returns the context a statement runs under: the caller's ctx
// limited by the operation deadline.
func (t *Tx) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil || ctx == t.ctx {
		return t.ctx, func() {}
	}
	if deadline, ok := t.ctx.Deadline(); ok {
		return context.WithDeadline(ctx, deadline)
	}
	return ctx, func() {}
}

// classify also reports a transaction rolled back by its deadline as
// transient; database/sql surfaces that as sql.ErrTxDone.
func (t *Tx) classify(err error) error {
	if errors.Is(err, sql.ErrTxDone) && t.ctx.Err() != nil {
		return fmt.Errorf("%w: %v: %v", domain.ErrTransient, t.ctx.Err(), err)
	}
	return classify(err)
}

func (t *Tx) exec(ctx context.Context, query string, args ...any) (rowsAffected int64, err error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return 0, t.classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, t.classify(err)
	}
	return n, nil
}

func (t *Tx) get(ctx context.Context, dest any, query string, args ...any) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.classify(t.tx.GetContext(ctx, dest, t.tx.Rebind(query), args...))
}

func (t *Tx) sel(ctx context.Context, dest any, query string, args ...any) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.classify(t.tx.SelectContext(ctx, dest, t.tx.Rebind(query), args...))
}

// ─── Column helpers ─────────────────────────────────────────────────────────

func unixMilli(t time.Time) int64 { return t.UnixMilli() }

func fromMilli(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// dateArg renders an optional calendar date as a nullable TEXT column.
func dateArg(d *time.Time) any {
	if d == nil {
		return nil
	}
	return domain.FormatDate(*d)
}

func nullDate(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	d, err := domain.ParseDate(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func floatArg(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// NewID returns a time-ordered row id (UUIDv7), so lexical order of ids
// follows insertion order.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
