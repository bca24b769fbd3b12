// Package credit implements the reward ledger.
// Every grant is one append-only point entry keyed by an idempotency key;
// the key's uniqueness, enforced by the store in the same statement as the
// insert, is what makes retries and concurrent duplicates safe.
package credit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tutu-network/breathe/internal/domain"
	"github.com/tutu-network/breathe/internal/infra/store"
)

// Service credits points inside a caller-owned transaction.
type Service struct {
	newID func() string
}

// NewService creates a ledger service.
func NewService() *Service {
	return &Service{newID: store.NewID}
}

// Request describes one credit attempt.
type Request struct {
	UserID      string
	Points      int64
	Reason      string
	Activity    domain.ActivityType // Empty for milestone and other non-activity grants
	Key         string              // Idempotency key, unique per user
	ReferenceID string
}

// Credit appends a point entry unless req.Key was already used by this
// user. A duplicate is not an error: the grant reports Granted=false.
func (s *Service) Credit(ctx context.Context, tx *store.Tx, req Request, now time.Time) (domain.Grant, error) {
	if req.Points <= 0 {
		return domain.Grant{}, fmt.Errorf("%w, got %d", domain.ErrInvalidPoints, req.Points)
	}
	if strings.TrimSpace(req.Key) == "" {
		return domain.Grant{}, fmt.Errorf("%w: idempotency key is required", domain.ErrValidation)
	}

	inserted, err := tx.InsertPointEntry(ctx, domain.PointEntry{
		ID:             s.newID(),
		UserID:         req.UserID,
		Points:         req.Points,
		Reason:         req.Reason,
		ActivityType:   req.Activity,
		IdempotencyKey: req.Key,
		ReferenceID:    req.ReferenceID,
		CreatedAt:      now,
	})
	if err != nil {
		return domain.Grant{}, err
	}

	total, err := tx.TotalPoints(ctx, req.UserID)
	if err != nil {
		return domain.Grant{}, fmt.Errorf("total points: %w", err)
	}

	g := domain.Grant{Granted: inserted, TotalPoints: total, Key: req.Key}
	if inserted {
		g.Points = req.Points
	}
	return g, nil
}

// Award applies a reward rule to one occurrence of its activity.
// The rule's frequency picks the idempotency key: the calendar day for
// daily rules, the activity alone for once-total rules, and ref for
// per-event rules. The activity counter moves only on a new grant.
func (s *Service) Award(ctx context.Context, tx *store.Tx, userID string, rule domain.RewardRule, ref, description string, day, now time.Time) (domain.Grant, error) {
	if !rule.Frequency.Valid() {
		return domain.Grant{}, fmt.Errorf("reward rule %s: unknown frequency %q", rule.ActivityType, rule.Frequency)
	}
	if rule.Frequency == domain.FrequencyPerEvent && ref == "" {
		ref = s.newID()
	}

	reason := description
	if reason == "" {
		reason = rule.Description
	}
	if reason == "" {
		reason = string(rule.ActivityType)
	}

	g, err := s.Credit(ctx, tx, Request{
		UserID:      userID,
		Points:      rule.Points,
		Reason:      reason,
		Activity:    rule.ActivityType,
		Key:         rule.IdempotencyKey(day, ref),
		ReferenceID: ref,
	}, now)
	if err != nil {
		return domain.Grant{}, err
	}
	if g.Granted {
		if err := tx.IncrementActivity(ctx, userID, rule.ActivityType, day); err != nil {
			return domain.Grant{}, err
		}
	}
	return g, nil
}

// Balance returns a user's point total.
func (s *Service) Balance(ctx context.Context, tx *store.Tx, userID string) (int64, error) {
	return tx.TotalPoints(ctx, userID)
}

// History returns a user's most recent grants.
func (s *Service) History(ctx context.Context, tx *store.Tx, userID string, limit int) ([]domain.PointEntry, error) {
	return tx.PointEntries(ctx, userID, limit)
}
