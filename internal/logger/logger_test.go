package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_ProductionJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, false, "")

	log.Debug("hidden")
	log.Info("observation logged", "user_id", "u1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1 (debug suppressed): %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "observation logged" || rec["user_id"] != "u1" {
		t.Errorf("record = %v", rec)
	}
}

func TestNew_DevelopmentText(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, true, "")

	log.Debug("streak extended", "days", 3)
	if !strings.Contains(buf.String(), "streak extended") || !strings.Contains(buf.String(), "days=3") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestNew_InvalidSentryDSN(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, false, "not a dsn")
	log.Error("boom")
	if !strings.Contains(buf.String(), "sentry disabled") || !strings.Contains(buf.String(), "boom") {
		t.Errorf("output = %q", buf.String())
	}
}
