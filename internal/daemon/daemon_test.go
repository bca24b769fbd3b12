package daemon

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/breathe/internal/infra/events"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	t.Setenv("BREATHE_HOME", t.TempDir())
	cfg := DefaultConfig()
	cfg.Auth.DevHeader = true
	return cfg
}

func TestNewWithConfig_SeedsAndServes(t *testing.T) {
	d, err := NewWithConfig(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(d.Close)

	assert.True(t, d.Schema.Loaded())
	assert.IsType(t, events.Nop{}, d.Events)
	assert.Nil(t, d.Watcher)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/challenges",
		strings.NewReader(`{"challenge_type_id":"smoking"}`))
	req.Header.Set("X-User-ID", "u1")
	w := httptest.NewRecorder()
	d.Server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestNewWithConfig_ImportsCatalogFile(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	catalog := `
categories:
  - {key: steps, label: Steps, kind: numeric, min: 0}
`
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0600))
	cfg.Catalog.File = path
	cfg.Catalog.Watch = true

	d, err := NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	_, ok := d.Schema.Lookup("steps")
	assert.True(t, ok, "imported category missing")
	_, ok = d.Schema.Lookup("cigarette_count")
	assert.True(t, ok, "seeded category missing")
	assert.NotNil(t, d.Watcher)
}

func TestNewWithConfig_BadCatalogFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.File = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewWithConfig(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewWithConfig_UnreachableNATS(t *testing.T) {
	cfg := testConfig(t)
	cfg.Events.NATSURL = "nats://127.0.0.1:1"

	d, err := NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	assert.IsType(t, events.Nop{}, d.Events)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := testConfig(t)
	cfg.API.Port = port
	d, err := NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + d.Addr() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
