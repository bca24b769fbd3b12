// Package health runs periodic dependency checks with optional recovery.
// Results are served on /health and exported as a gauge per check.
package health

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tutu-network/breathe/internal/app/catalog"
	"github.com/tutu-network/breathe/internal/infra/metrics"
	"github.com/tutu-network/breathe/internal/infra/store"
)

// DefaultInterval is the period between check rounds.
const DefaultInterval = 30 * time.Second

// Check is one named dependency probe. RecoverFn, if set, runs after a
// failed probe and the probe is retried once.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status is the outcome of the last probe of a check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker probes the store and the category schema on an interval.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker creates a checker with the store and catalog checks.
func NewChecker(db *store.DB, schema *catalog.Schema, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Checker{
		interval: interval,
		checks: []Check{
			{
				Name: "store",
				CheckFn: func(ctx context.Context) error {
					return db.Ping(ctx)
				},
			},
			{
				Name: "catalog",
				CheckFn: func(context.Context) error {
					if !schema.Loaded() {
						return errors.New("no observation categories loaded")
					}
					return nil
				},
				// An empty schema usually means the first load raced the seed.
				RecoverFn: func(ctx context.Context) error {
					return schema.Refresh(ctx, db)
				},
			},
		},
	}
}

// Run probes immediately and then on every tick until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.RunOnce(ctx)

	tick := time.NewTicker(c.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce probes every check and publishes the results.
func (c *Checker) RunOnce(ctx context.Context) {
	out := make([]Status, 0, len(c.checks))
	for _, chk := range c.checks {
		st := probe(ctx, chk)
		up := 0.0
		if st.Healthy {
			up = 1
		}
		metrics.HealthStatus.WithLabelValues(chk.Name).Set(up)
		out = append(out, st)
	}

	c.mu.Lock()
	c.statuses = out
	c.mu.Unlock()
}

func probe(ctx context.Context, chk Check) Status {
	st := Status{Name: chk.Name, CheckedAt: time.Now().UTC()}
	err := chk.CheckFn(ctx)
	if err == nil {
		st.Healthy = true
		return st
	}
	slog.Warn("health check failed", "check", chk.Name, "error", err)
	if chk.RecoverFn == nil {
		st.Error = err.Error()
		return st
	}
	if rerr := chk.RecoverFn(ctx); rerr != nil {
		slog.Warn("health recovery failed", "check", chk.Name, "error", rerr)
		st.Error = err.Error()
		return st
	}
	if err := chk.CheckFn(ctx); err != nil {
		st.Error = err.Error()
		return st
	}
	slog.Info("health check recovered", "check", chk.Name)
	st.Healthy = true
	return st
}

// Statuses returns a copy of the last round's results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Status, len(c.statuses))
	copy(out, c.statuses)
	return out
}

// IsHealthy reports whether every check passed in the last round. Before
// the first round it reports true.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, st := range c.statuses {
		if !st.Healthy {
			return false
		}
	}
	return true
}
