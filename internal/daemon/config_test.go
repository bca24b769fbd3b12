package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8470 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8470)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q, want sqlite", cfg.Store.Driver)
	}
	if cfg.Engine.MaxUploadPoints != 100 {
		t.Errorf("Engine.MaxUploadPoints = %d, want 100", cfg.Engine.MaxUploadPoints)
	}
	if cfg.Events.SubjectPrefix != "breathe.events" {
		t.Errorf("Events.SubjectPrefix = %q", cfg.Events.SubjectPrefix)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv("BREATHE_HOME", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != DefaultConfig().API.Port {
		t.Errorf("Port = %d, want default", cfg.API.Port)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	t.Setenv("BREATHE_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.API.Port = 9000
	cfg.Engine.Timezone = "Europe/Berlin"
	cfg.Catalog.File = "/etc/breathe/catalog.yaml"
	cfg.Catalog.Watch = true
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	got, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if got.API.Port != 9000 || got.Engine.Timezone != "Europe/Berlin" {
		t.Errorf("loaded = %+v", got)
	}
	if got.Catalog.File != cfg.Catalog.File || !got.Catalog.Watch {
		t.Errorf("catalog = %+v", got.Catalog)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BREATHE_HOME", t.TempDir())
	t.Setenv("BREATHE_PORT", "9100")
	t.Setenv("BREATHE_JWT_SECRET", "s3cret")
	t.Setenv("BREATHE_DEV", "true")
	t.Setenv("BREATHE_NATS_URL", "nats://broker:4222")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.API.Port)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("JWTSecret = %q", cfg.Auth.JWTSecret)
	}
	if !cfg.Logging.Dev {
		t.Error("BREATHE_DEV should enable dev logging")
	}
	if cfg.Auth.DevHeader {
		t.Error("BREATHE_DEV must not enable the dev identity header")
	}
	if cfg.Events.NATSURL != "nats://broker:4222" {
		t.Errorf("NATSURL = %q", cfg.Events.NATSURL)
	}
}

func TestLoadConfig_DevHeaderEnv(t *testing.T) {
	t.Setenv("BREATHE_HOME", t.TempDir())
	t.Setenv("BREATHE_DEV_HEADER", "1")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if !cfg.Auth.DevHeader {
		t.Error("BREATHE_DEV_HEADER should enable the dev identity header")
	}
	if cfg.Logging.Dev {
		t.Error("BREATHE_DEV_HEADER must not change logging")
	}

	t.Setenv("BREATHE_DEV_HEADER", "maybe")
	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for non-boolean BREATHE_DEV_HEADER")
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("BREATHE_HOME", home)
	// Registered so the variable set by godotenv is restored afterwards.
	t.Setenv("BREATHE_SENTRY_DSN", "")
	os.Unsetenv("BREATHE_SENTRY_DSN")

	env := "BREATHE_SENTRY_DSN=https://key@sentry.example.com/1\n"
	if err := os.WriteFile(filepath.Join(home, ".env"), []byte(env), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Logging.SentryDSN != "https://key@sentry.example.com/1" {
		t.Errorf("SentryDSN = %q", cfg.Logging.SentryDSN)
	}
}

func TestLoadConfig_BadEnv(t *testing.T) {
	t.Setenv("BREATHE_HOME", t.TempDir())
	t.Setenv("BREATHE_PORT", "eighty")

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for non-numeric BREATHE_PORT")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad port", func(c *Config) { c.API.Port = 0 }, false},
		{"pgx without dsn", func(c *Config) { c.Store.Driver = "pgx" }, false},
		{"pgx with dsn", func(c *Config) { c.Store.Driver = "pgx"; c.Store.DSN = "postgres://localhost/breathe" }, true},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, false},
		{"bad timezone", func(c *Config) { c.Engine.Timezone = "Mars/Olympus" }, false},
		{"bad timeout", func(c *Config) { c.API.RequestTimeout = "soon" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.Timezone = ""
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("Location() = %v, %v; want UTC", loc, err)
	}

	cfg.Engine.Timezone = "Asia/Tokyo"
	loc, err = cfg.Location()
	if err != nil || loc.String() != "Asia/Tokyo" {
		t.Errorf("Location() = %v, %v", loc, err)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"5s", 5 * time.Second},
		{"2m", 2 * time.Minute},
		{"", time.Second},
		{"bogus", time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseDuration(tt.input, time.Second); got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
