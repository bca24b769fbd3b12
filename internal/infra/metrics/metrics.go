// Package metrics provides Prometheus metrics for breathe.
// Counters for observations, transitions, rewards, and unlocks, plus
// the HTTP request collectors used by the API monitor middleware.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "breathe"

// ─── Observations / Challenges ──────────────────────────────────────────────

// ObservationsLogged counts stored observations by category.
var ObservationsLogged = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "observations_logged_total",
	Help:      "Total observations stored.",
}, []string{"category"})

// ChallengesJoined counts joins by challenge type and starting mode.
var ChallengesJoined = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "challenges_joined_total",
	Help:      "Total challenge joins and restarts.",
}, []string{"challenge_type", "mode"})

// ModeTransitions counts automatic mode changes.
var ModeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "mode_transitions_total",
	Help:      "Total automatic challenge mode transitions.",
}, []string{"from", "to"})

// StatusChanges counts administrative status changes.
var StatusChanges = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "status_changes_total",
	Help:      "Total challenge status changes.",
}, []string{"to"})

// ─── Rewards ────────────────────────────────────────────────────────────────

// PointsGranted sums granted points by source (activity type, milestone, upload).
var PointsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "points_granted_total",
	Help:      "Total points credited to the ledger.",
}, []string{"source"})

// DuplicateRewards counts grants suppressed by an existing idempotency key.
var DuplicateRewards = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "duplicate_rewards_total",
	Help:      "Total reward attempts reported as already rewarded.",
}, []string{"source"})

// MilestonesUnlocked counts milestone unlocks by challenge type.
var MilestonesUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "milestones_unlocked_total",
	Help:      "Total milestones unlocked.",
}, []string{"challenge_type"})

// AchievementsUnlocked counts achievement unlocks.
var AchievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "achievements_unlocked_total",
	Help:      "Total achievements unlocked.",
}, []string{"achievement"})

// ─── Store ──────────────────────────────────────────────────────────────────

// OperationErrors counts failed engine operations by error kind.
var OperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "operation_errors_total",
	Help:      "Total failed engine operations.",
}, []string{"operation", "kind"})

// CatalogImports counts reference-data imports by result.
var CatalogImports = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "catalog_imports_total",
	Help:      "Total catalog imports.",
}, []string{"result"})

// EventsPublished counts notable-event deliveries by result
// (ok, retry, dropped).
var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "events_published_total",
	Help:      "Notable-event publish attempts by result.",
}, []string{"result"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequests counts API requests by route pattern, method, and status.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "http_requests_total",
	Help:      "Total HTTP requests.",
}, []string{"route", "method", "status"})

// HTTPDuration tracks API request duration in seconds.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "method"})

// AuthRejections counts requests refused for missing or invalid credentials.
var AuthRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "auth_rejections_total",
	Help:      "Total requests rejected by authentication.",
}, []string{"reason"})

// RateLimited counts throttled requests, keyed by user id or client address.
var RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "rate_limited_total",
	Help:      "Total requests rejected by the per-caller rate limiter.",
}, []string{"key"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthStatus reports 1 for a healthy dependency check, 0 otherwise.
var HealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "health_check_status",
	Help:      "Dependency health (1 = healthy).",
}, []string{"check"})
