// Package daemon manages the breathe service lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // engine.timezone must resolve on hosts without zoneinfo

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/tutu-network/breathe/internal/app/engine"
	"github.com/tutu-network/breathe/internal/infra/events"
	"github.com/tutu-network/breathe/internal/infra/store"
)

// Config holds all service configuration.
type Config struct {
	API     APIConfig     `toml:"api"`
	Store   StoreConfig   `toml:"store"`
	Engine  EngineConfig  `toml:"engine"`
	Auth    AuthConfig    `toml:"auth"`
	Catalog CatalogConfig `toml:"catalog"`
	Events  EventsConfig  `toml:"events"`
	Logging LoggingConfig `toml:"logging"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	RateLimit      float64  `toml:"rate_limit"` // Requests per second per caller
	RateBurst      int      `toml:"rate_burst"`
	RequestTimeout string   `toml:"request_timeout"`
	Metrics        bool     `toml:"metrics"`
}

// StoreConfig selects the database.
type StoreConfig struct {
	Driver       string `toml:"driver"` // sqlite | pgx
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
	OpTimeout    string `toml:"op_timeout"`
}

// EngineConfig tunes the challenge and rewards engine.
type EngineConfig struct {
	Timezone        string `toml:"timezone"`
	MaxUploadPoints int64  `toml:"max_upload_points"`
}

// AuthConfig controls caller identification.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
	DevHeader bool   `toml:"dev_header"`
}

// CatalogConfig points at the reference-data file.
type CatalogConfig struct {
	File  string `toml:"file"`
	Watch bool   `toml:"watch"`
}

// EventsConfig controls notable-event publishing. An empty URL disables it.
type EventsConfig struct {
	NATSURL       string `toml:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Dev       bool   `toml:"dev"`
	SentryDSN string `toml:"sentry_dsn"`
}

// DefaultConfig returns a configuration that runs locally on SQLite.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8470,
			RateLimit:      10,
			RateBurst:      30,
			RequestTimeout: "30s",
			Metrics:        true,
		},
		Store: StoreConfig{
			Driver:    store.DriverSQLite,
			OpTimeout: "5s",
		},
		Engine: EngineConfig{
			Timezone:        "UTC",
			MaxUploadPoints: engine.DefaultMaxUploadPoints,
		},
		Events: EventsConfig{
			SubjectPrefix: events.DefaultSubjectPrefix,
		},
	}
}

// LoadConfig reads $BREATHE_HOME/config.toml, falling back to defaults,
// then applies .env files and BREATHE_* environment overrides.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := ConfigPath()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	// Existing environment variables win over .env entries.
	for _, env := range []string{".env", filepath.Join(BreatheHome(), ".env")} {
		if err := godotenv.Load(env); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", env, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overrides selected fields from the environment.
func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"BREATHE_HOST":       &cfg.API.Host,
		"BREATHE_DB_DRIVER":  &cfg.Store.Driver,
		"BREATHE_DB_DSN":     &cfg.Store.DSN,
		"BREATHE_SENTRY_DSN": &cfg.Logging.SentryDSN,
		"BREATHE_JWT_SECRET": &cfg.Auth.JWTSecret,
		"BREATHE_NATS_URL":   &cfg.Events.NATSURL,
		"BREATHE_CATALOG":    &cfg.Catalog.File,
		"BREATHE_TIMEZONE":   &cfg.Engine.Timezone,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("BREATHE_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BREATHE_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// BREATHE_DEV affects logging only; the identity header has its own switch.
	flags := map[string]*bool{
		"BREATHE_DEV":        &cfg.Logging.Dev,
		"BREATHE_DEV_HEADER": &cfg.Auth.DevHeader,
	}
	for key, dst := range flags {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}
	return nil
}

// Validate reports configuration errors that would fail at startup.
func (c Config) Validate() error {
	var errs []error
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port %d out of range", c.API.Port))
	}
	switch c.Store.Driver {
	case store.DriverSQLite, "":
	case store.DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for pgx"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not sqlite or pgx", c.Store.Driver))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	for name, d := range map[string]string{
		"api.request_timeout": c.API.RequestTimeout,
		"store.op_timeout":    c.Store.OpTimeout,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Location resolves engine.timezone.
func (c Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Engine.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone: %w", err)
	}
	return loc, nil
}

// StoreOptions converts the store section for store.Open.
func (c Config) StoreOptions() store.Config {
	return store.Config{
		Driver:       c.Store.Driver,
		DSN:          c.Store.DSN,
		DataDir:      BreatheHome(),
		MaxOpenConns: c.Store.MaxOpenConns,
		OpTimeout:    parseDuration(c.Store.OpTimeout, 5*time.Second),
	}
}

// SaveConfig writes the config to $BREATHE_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// ConfigPath returns the config file location.
func ConfigPath() string {
	return filepath.Join(BreatheHome(), "config.toml")
}

// BreatheHome returns the data directory.
func BreatheHome() string {
	if env := os.Getenv("BREATHE_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".breathe")
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
