package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tutu-network/breathe/internal/api"
	"github.com/tutu-network/breathe/internal/app/catalog"
	"github.com/tutu-network/breathe/internal/app/engine"
	"github.com/tutu-network/breathe/internal/health"
	"github.com/tutu-network/breathe/internal/infra/events"
	"github.com/tutu-network/breathe/internal/infra/store"
)

// Daemon is the breathe runtime. It wires together all services.
type Daemon struct {
	Config  Config
	DB      *store.DB
	Schema  *catalog.Schema
	Events  events.Publisher
	Engine  *engine.Engine
	Health  *health.Checker
	Server  *api.Server
	Watcher *catalog.Watcher

	retry  *events.Retrying
	cancel context.CancelFunc
}

// New creates a Daemon from the loaded configuration.
func New(ctx context.Context) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig creates a Daemon with the given configuration. The store is
// migrated, the built-in catalog seeded on first run, and the configured
// catalog file imported before the engine starts serving.
func NewWithConfig(ctx context.Context, cfg Config) (*Daemon, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	d := &Daemon{Config: cfg, DB: db}

	if seeded, err := catalog.Seed(ctx, db); err != nil {
		d.Close()
		return nil, fmt.Errorf("seed catalog: %w", err)
	} else if seeded {
		slog.Info("seeded built-in catalog")
	}

	d.Schema = catalog.NewSchema()
	if cfg.Catalog.File != "" {
		if _, err := catalog.Import(ctx, db, d.Schema, cfg.Catalog.File); err != nil {
			d.Close()
			return nil, fmt.Errorf("import catalog: %w", err)
		}
	} else if err := d.Schema.Refresh(ctx, db); err != nil {
		d.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	if cfg.Catalog.File != "" && cfg.Catalog.Watch {
		d.Watcher, err = catalog.NewWatcher(cfg.Catalog.File, db, d.Schema, catalog.DefaultDebounce, nil)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("watch catalog: %w", err)
		}
	}

	// Events are best effort: an unreachable broker never blocks startup.
	d.Events = events.Nop{}
	if cfg.Events.NATSURL != "" {
		pub, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			slog.Warn("nats unavailable, events disabled", "url", cfg.Events.NATSURL, "error", err)
		} else {
			d.retry = events.NewRetrying(pub, events.DefaultRetryConfig())
			d.Events = d.retry
		}
	}

	d.Engine = engine.New(db, d.Schema, d.Events,
		engine.WithLocation(loc),
		engine.WithMaxUploadPoints(cfg.Engine.MaxUploadPoints),
	)
	d.Health = health.NewChecker(db, d.Schema, 0)

	if cfg.Auth.JWTSecret == "" && !cfg.Auth.DevHeader {
		slog.Warn("no auth.jwt_secret configured; every API call will be rejected")
	}
	d.Server = api.NewServer(d.Engine, d.Health, api.Options{
		CORSOrigins:    cfg.API.CORSOrigins,
		RateLimit:      cfg.API.RateLimit,
		RateBurst:      cfg.API.RateBurst,
		RequestTimeout: parseDuration(cfg.API.RequestTimeout, 30*time.Second),
		JWTSecret:      cfg.Auth.JWTSecret,
		DevHeader:      cfg.Auth.DevHeader,
		Metrics:        cfg.API.Metrics,
	})
	return d, nil
}

// Addr is the listen address.
func (d *Daemon) Addr() string {
	return fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
}

// Serve starts the HTTP server and background services and blocks until
// ctx is cancelled or SIGINT/SIGTERM arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	go d.Health.Run(ctx)
	if d.retry != nil {
		go d.retry.Run(ctx)
	}

	if d.Watcher != nil {
		go func() {
			if err := d.Watcher.Run(ctx); err != nil {
				slog.Error("catalog watcher stopped", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              d.Addr(),
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("breathe serving", "addr", "http://"+d.Addr(),
			"driver", d.DB.Driver(), "metrics", d.Config.API.Metrics)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Events != nil {
		if err := d.Events.Close(); err != nil {
			slog.Warn("close events", "error", err)
		}
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
