// Package engine orchestrates the public operations of the challenge and
// rewards engine. Each mutating operation runs in one per-user store
// transaction: the challenge transition, milestone unlocks, ledger grants,
// and achievement unlocks it produces commit together or not at all.
// Notable events are published and metrics recorded only after commit.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/tutu-network/breathe/internal/app/catalog"
	"github.com/tutu-network/breathe/internal/app/credit"
	"github.com/tutu-network/breathe/internal/app/engagement"
	"github.com/tutu-network/breathe/internal/domain"
	"github.com/tutu-network/breathe/internal/infra/events"
	"github.com/tutu-network/breathe/internal/infra/metrics"
	"github.com/tutu-network/breathe/internal/infra/store"
)

// DefaultMaxUploadPoints caps the points override on upload rewards.
const DefaultMaxUploadPoints = 100

// Engine is the entry point for every user-facing operation.
type Engine struct {
	db           *store.DB
	schema       *catalog.Schema
	ledger       *credit.Service
	milestones   *engagement.MilestoneService
	achievements *engagement.AchievementService
	events       events.Publisher

	now             func() time.Time
	loc             *time.Location
	maxUploadPoints int64
	newID           func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the timezone calendar days are computed in.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithMaxUploadPoints bounds the upload points override.
func WithMaxUploadPoints(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxUploadPoints = n
		}
	}
}

// New creates an engine. A nil publisher discards events.
func New(db *store.DB, schema *catalog.Schema, pub events.Publisher, opts ...Option) *Engine {
	if pub == nil {
		pub = events.Nop{}
	}
	ledger := credit.NewService()
	e := &Engine{
		db:              db,
		schema:          schema,
		ledger:          ledger,
		milestones:      engagement.NewMilestoneService(ledger),
		achievements:    engagement.NewAchievementService(),
		events:          pub,
		now:             time.Now,
		loc:             time.UTC,
		maxUploadPoints: DefaultMaxUploadPoints,
		newID:           store.NewID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the observation-category registry.
func (e *Engine) Schema() *catalog.Schema { return e.schema }

// clock returns the current instant and its calendar day in the engine's
// timezone.
func (e *Engine) clock() (now, today time.Time) {
	now = e.now().UTC()
	return now, domain.DateOf(now.In(e.loc))
}

func requireUser(userID string) error {
	if userID == "" {
		return domain.ErrUnauthenticated
	}
	return nil
}

// ─── Post-commit effects ────────────────────────────────────────────────────

// effects collects what one transaction produced. It is applied only
// after the transaction commits.
type effects struct {
	userID string
	at     time.Time
	events []domain.Event
	apply  []func()
}

func newEffects(userID string, at time.Time) *effects {
	return &effects{userID: userID, at: at}
}

func (fx *effects) emit(kind domain.EventKind, data map[string]any) {
	fx.events = append(fx.events, domain.Event{Kind: kind, UserID: fx.userID, OccurredAt: fx.at, Data: data})
}

func (fx *effects) metric(f func()) {
	fx.apply = append(fx.apply, f)
}

func (fx *effects) grant(source string, g domain.Grant) {
	switch {
	case g.Granted:
		fx.emit(domain.EventPointsGranted, map[string]any{"source": source, "points": g.Points, "total_points": g.TotalPoints})
		fx.metric(func() { metrics.PointsGranted.WithLabelValues(source).Add(float64(g.Points)) })
	case g.AlreadyRewarded():
		fx.metric(func() { metrics.DuplicateRewards.WithLabelValues(source).Inc() })
	}
}

func (fx *effects) milestones(uc domain.UserChallenge, res engagement.MilestoneResult) {
	for _, m := range res.Unlocked {
		fx.emit(domain.EventMilestoneUnlocked, map[string]any{
			"user_challenge_id": uc.ID,
			"milestone_id":      m.ID,
			"name":              m.Name,
			"points":            m.PointsAwarded,
		})
		fx.metric(func() { metrics.MilestonesUnlocked.WithLabelValues(uc.ChallengeTypeID).Inc() })
	}
	if res.PointsAwarded > 0 {
		fx.emit(domain.EventPointsGranted, map[string]any{"source": "milestone", "points": res.PointsAwarded})
		fx.metric(func() { metrics.PointsGranted.WithLabelValues("milestone").Add(float64(res.PointsAwarded)) })
	}
}

func (fx *effects) achievements(unlocked []domain.UnlockedAchievement) {
	for _, a := range unlocked {
		fx.emit(domain.EventAchievementUnlocked, map[string]any{"achievement_id": a.ID, "name": a.Name, "points": a.Points})
		fx.metric(func() { metrics.AchievementsUnlocked.WithLabelValues(a.ID).Inc() })
	}
}

// commit publishes events and records metrics. Publishing is best effort.
func (e *Engine) commit(ctx context.Context, fx *effects) {
	for _, f := range fx.apply {
		f()
	}
	for _, ev := range fx.events {
		if err := e.events.Publish(ctx, ev); err != nil {
			slog.Warn("event publish failed", "kind", ev.Kind, "user_id", ev.UserID, "error", err)
		}
	}
}

// observe records a failed operation and passes err through.
func observe(op string, err error) error {
	if err != nil {
		metrics.OperationErrors.WithLabelValues(op, string(domain.KindOf(err))).Inc()
	}
	return err
}

// ─── Shared steps ───────────────────────────────────────────────────────────

// awardRule applies the active reward rule for activity, if one exists.
// A missing or inactive rule yields a zero grant.
func (e *Engine) awardRule(ctx context.Context, tx *store.Tx, fx *effects, userID string, activity domain.ActivityType, ref, description string, today, now time.Time) (domain.Grant, error) {
	rule, err := tx.RewardRule(ctx, activity)
	if err != nil {
		return domain.Grant{}, err
	}
	if rule == nil || !rule.IsActive {
		return domain.Grant{}, nil
	}
	g, err := e.ledger.Award(ctx, tx, userID, *rule, ref, description, today, now)
	if err != nil {
		return domain.Grant{}, err
	}
	fx.grant(string(activity), g)
	return g, nil
}

// unlockAchievements runs the achievement evaluator and records effects.
func (e *Engine) unlockAchievements(ctx context.Context, tx *store.Tx, fx *effects, userID string, now time.Time) ([]domain.UnlockedAchievement, error) {
	unlocked, err := e.achievements.CheckAndUnlock(ctx, tx, userID, now)
	if err != nil {
		return nil, err
	}
	fx.achievements(unlocked)
	return orEmpty(unlocked), nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
