// Package events publishes notable engine events (joins, transitions,
// unlocks, grants) to downstream notification systems. Publishing happens
// after commit and is best effort.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tutu-network/breathe/internal/domain"
)

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
	Close() error
}

// ─── Nop ────────────────────────────────────────────────────────────────────

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, domain.Event) error { return nil }
func (Nop) Close() error                                { return nil }

// ─── Recorder ───────────────────────────────────────────────────────────────

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

// Close implements Publisher.
func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the recorded event kinds in order.
func (r *Recorder) Kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// ─── NATS ───────────────────────────────────────────────────────────────────

// DefaultSubjectPrefix prefixes every subject: <prefix>.<kind>.
const DefaultSubjectPrefix = "breathe.events"

// NATS publishes JSON-encoded events on core NATS subjects.
type NATS struct {
	nc     *nats.Conn
	prefix string
}

// ConnectNATS dials url and returns a publisher.
func ConnectNATS(url, prefix string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("breathe"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewNATS(nc, prefix), nil
}

// NewNATS wraps an existing connection.
func NewNATS(nc *nats.Conn, prefix string) *NATS {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATS{nc: nc, prefix: prefix}
}

// Subject returns the subject an event kind is published on.
func (n *NATS) Subject(kind domain.EventKind) string {
	return n.prefix + "." + string(kind)
}

// Publish implements Publisher. NATS publish is asynchronous and has no
// context support, so ctx is only checked before sending.
func (n *NATS) Publish(ctx context.Context, ev domain.Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return n.nc.Publish(n.Subject(ev.Kind), data)
}

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() error {
	if err := n.nc.Drain(); err != nil {
		n.nc.Close()
		return err
	}
	return nil
}
