package health

import (
	"context"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tutu-network/breathe/internal/app/catalog"
	"github.com/tutu-network/breathe/internal/infra/metrics"
	"github.com/tutu-network/breathe/internal/infra/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestNewChecker(t *testing.T) {
	c := NewChecker(newTestDB(t), catalog.NewSchema(), 0)
	if len(c.checks) != 2 {
		t.Errorf("checks = %d, want 2", len(c.checks))
	}
	if c.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", c.interval, DefaultInterval)
	}
}

func TestChecker_AllHealthy(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	if _, err := catalog.Seed(ctx, db); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	schema := catalog.NewSchema()
	if err := schema.Refresh(ctx, db); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	c := NewChecker(db, schema, 0)
	c.RunOnce(ctx)

	for _, s := range c.Statuses() {
		if !s.Healthy {
			t.Errorf("check %q unhealthy: %s", s.Name, s.Error)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() = false")
	}
	if got := testutil.ToFloat64(metrics.HealthStatus.WithLabelValues("store")); got != 1 {
		t.Errorf("store gauge = %v, want 1", got)
	}
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	c := NewChecker(newTestDB(t), catalog.NewSchema(), 0)

	// No statuses yet: vacuously healthy.
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run")
	}
}

func TestChecker_CatalogRecoversByRefresh(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	if _, err := catalog.Seed(ctx, db); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	schema := catalog.NewSchema()

	c := NewChecker(db, schema, 0)
	c.RunOnce(ctx)

	if !c.IsHealthy() {
		t.Errorf("statuses = %+v, want recovered catalog", c.Statuses())
	}
	if !schema.Loaded() {
		t.Error("recovery did not refresh the schema")
	}
}

func TestChecker_CatalogEmpty(t *testing.T) {
	ctx := context.Background()
	c := NewChecker(newTestDB(t), catalog.NewSchema(), 0)
	c.RunOnce(ctx)

	for _, s := range c.Statuses() {
		if s.Name == "catalog" && (s.Healthy || s.Error == "") {
			t.Errorf("catalog status = %+v, want unhealthy", s)
		}
	}
	if c.IsHealthy() {
		t.Error("IsHealthy() should be false with an empty catalog")
	}
	if got := testutil.ToFloat64(metrics.HealthStatus.WithLabelValues("catalog")); got != 0 {
		t.Errorf("catalog gauge = %v, want 0", got)
	}
}

func TestChecker_StoreClosed(t *testing.T) {
	db, err := store.OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	db.Close()

	c := NewChecker(db, catalog.NewSchema(), 0)
	c.RunOnce(context.Background())

	if c.Statuses()[0].Healthy {
		t.Error("store check should fail on a closed database")
	}
}

func TestChecker_CustomCheck(t *testing.T) {
	recovered := false
	c := &Checker{
		checks: []Check{
			{
				Name:    "always_pass",
				CheckFn: func(ctx context.Context) error { return nil },
			},
			{
				Name:      "always_fail",
				CheckFn:   func(ctx context.Context) error { return os.ErrPermission },
				RecoverFn: func(ctx context.Context) error { recovered = true; return nil },
			},
		},
	}

	c.RunOnce(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d, want 2", len(statuses))
	}
	if !statuses[0].Healthy {
		t.Error("always_pass check should be healthy")
	}
	if statuses[1].Healthy || statuses[1].Error == "" {
		t.Errorf("always_fail = %+v, want unhealthy with error", statuses[1])
	}
	if !recovered {
		t.Error("RecoverFn not called")
	}
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	c := &Checker{interval: DefaultInterval}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}
