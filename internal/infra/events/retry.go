package events

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/tutu-network/breathe/internal/domain"
	"github.com/tutu-network/breathe/internal/infra/metrics"
)

// ─── Retry Queue ────────────────────────────────────────────────────────────
// Failed publishes are re-queued with exponential backoff in a min-heap
// ordered by next attempt time. Events exceeding MaxRetries, or arriving
// while MaxPending entries wait, are dropped and counted.

// RetryConfig configures redelivery of failed publishes.
type RetryConfig struct {
	MaxRetries uint64        // Redelivery attempts before an event is dropped
	BaseDelay  time.Duration // First backoff delay; doubles each attempt
	MaxDelay   time.Duration // Cap on a single backoff delay
	MaxPending int           // Queue bound
	Interval   time.Duration // How often ready entries are retried
}

// DefaultRetryConfig returns production retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		MaxPending: 10000,
		Interval:   500 * time.Millisecond,
	}
}

type retryEntry struct {
	ev      domain.Event
	attempt int
	next    time.Time
	seq     uint64
	backoff retry.Backoff
}

type retryHeap []*retryEntry

func (h retryHeap) Len() int { return len(h) }
func (h retryHeap) Less(i, j int) bool {
	if h[i].next.Equal(h[j].next) {
		return h[i].seq < h[j].seq
	}
	return h[i].next.Before(h[j].next)
}
func (h retryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *retryHeap) Push(x any)   { *h = append(*h, x.(*retryEntry)) }
func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Retrying wraps a publisher and redelivers events it failed to send.
type Retrying struct {
	inner Publisher
	cfg   RetryConfig
	now   func() time.Time

	mu        sync.Mutex
	queue     retryHeap
	seq       uint64
	delivered int64
	dropped   int64
}

// NewRetrying wraps inner. Zero config fields take DefaultRetryConfig values.
func NewRetrying(inner Publisher, cfg RetryConfig) *Retrying {
	def := DefaultRetryConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = def.MaxPending
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	return &Retrying{inner: inner, cfg: cfg, now: time.Now}
}

func (r *Retrying) newBackoff() retry.Backoff {
	b := retry.NewExponential(r.cfg.BaseDelay)
	b = retry.WithMaxRetries(r.cfg.MaxRetries, b)
	return retry.WithCappedDuration(r.cfg.MaxDelay, b)
}

// Publish implements Publisher. A failed send is queued for redelivery and
// reported as success; only a dropped event returns an error.
func (r *Retrying) Publish(ctx context.Context, ev domain.Event) error {
	err := r.inner.Publish(ctx, ev)
	if err == nil {
		r.mu.Lock()
		r.delivered++
		r.mu.Unlock()
		metrics.EventsPublished.WithLabelValues("ok").Inc()
		return nil
	}
	if !r.schedule(&retryEntry{ev: ev, backoff: r.newBackoff()}, err) {
		return fmt.Errorf("publish %s dropped: %w", ev.Kind, err)
	}
	return nil
}

// schedule queues e for its next attempt. Returns false if e was dropped.
func (r *Retrying) schedule(e *retryEntry, cause error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	delay, stop := e.backoff.Next()
	if stop || len(r.queue) >= r.cfg.MaxPending {
		r.dropped++
		metrics.EventsPublished.WithLabelValues("dropped").Inc()
		slog.Warn("event dropped", "kind", e.ev.Kind, "user_id", e.ev.UserID,
			"attempts", e.attempt, "error", cause)
		return false
	}

	e.attempt++
	e.next = r.now().Add(delay)
	r.seq++
	e.seq = r.seq
	heap.Push(&r.queue, e)
	metrics.EventsPublished.WithLabelValues("retry").Inc()
	return true
}

// ready pops every entry whose next attempt time has passed.
func (r *Retrying) ready() []*retryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var out []*retryEntry
	for len(r.queue) > 0 && !r.queue[0].next.After(now) {
		out = append(out, heap.Pop(&r.queue).(*retryEntry))
	}
	return out
}

// Flush retries every ready entry once. Called by Run.
func (r *Retrying) Flush(ctx context.Context) {
	for _, e := range r.ready() {
		if err := r.inner.Publish(ctx, e.ev); err != nil {
			r.schedule(e, err)
			continue
		}
		r.mu.Lock()
		r.delivered++
		r.mu.Unlock()
		metrics.EventsPublished.WithLabelValues("ok").Inc()
	}
}

// Run retries queued events until ctx is cancelled. Call in a goroutine.
func (r *Retrying) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			st := r.Stats()
			if st.Pending > 0 {
				slog.Warn("undelivered events discarded on shutdown", "count", st.Pending)
			}
			slog.Info("event retry queue stopped",
				"delivered", st.Delivered, "dropped", st.Dropped, "pending", st.Pending)
			return
		case <-ticker.C:
			r.Flush(ctx)
		}
	}
}

// Pending returns the number of events awaiting redelivery.
func (r *Retrying) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// RetryStats holds retry queue statistics.
type RetryStats struct {
	Pending   int   `json:"pending"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
}

// Stats returns current counters.
func (r *Retrying) Stats() RetryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RetryStats{Pending: len(r.queue), Delivered: r.delivered, Dropped: r.dropped}
}

// Close closes the wrapped publisher.
func (r *Retrying) Close() error {
	return r.inner.Close()
}
