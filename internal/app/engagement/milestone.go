package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/tutu-network/breathe/internal/app/credit"
	"github.com/tutu-network/breathe/internal/domain"
	"github.com/tutu-network/breathe/internal/infra/store"
)

// MilestoneService unlocks milestones and credits their points.
type MilestoneService struct {
	ledger *credit.Service
	newID  func() string
}

// NewMilestoneService creates a milestone evaluator backed by ledger.
func NewMilestoneService(ledger *credit.Service) *MilestoneService {
	return &MilestoneService{ledger: ledger, newID: store.NewID}
}

// MilestoneResult is the outcome of one evaluation pass.
type MilestoneResult struct {
	Unlocked        []domain.Milestone `json:"unlocked_milestones"`
	DaysInChallenge int                `json:"days_in_challenge"`
	PointsAwarded   int64              `json:"points_awarded"`
}

// Reached reports whether a milestone's gates hold. Day gates need an
// ongoing quit; value gates need an externally supplied current value.
// A milestone with neither gate never unlocks.
func Reached(m domain.Milestone, days int, value *float64) bool {
	if m.DaysRequired == nil && m.TargetValue == nil {
		return false
	}
	if m.DaysRequired != nil && (days <= 0 || days < *m.DaysRequired) {
		return false
	}
	if m.TargetValue != nil && (value == nil || *value < *m.TargetValue) {
		return false
	}
	return true
}

// Evaluate unlocks every reached, not-yet-unlocked milestone of uc.
// The unlock insert is guarded by the (user_challenge_id, milestone_id)
// constraint; losing that race skips the milestone silently. Points are
// credited under the milestone's key, so a restarted challenge records
// the unlock again without paying twice.
func (s *MilestoneService) Evaluate(ctx context.Context, tx *store.Tx, uc domain.UserChallenge, currentValue *float64, today, now time.Time) (MilestoneResult, error) {
	res := MilestoneResult{DaysInChallenge: DaysSinceQuit(uc, today)}
	if uc.Status != domain.StatusActive {
		return res, nil
	}

	milestones, err := tx.Milestones(ctx, uc.ChallengeTypeID, true)
	if err != nil {
		return res, fmt.Errorf("load milestones: %w", err)
	}
	unlocked, err := tx.UnlockedMilestones(ctx, uc.ID)
	if err != nil {
		return res, fmt.Errorf("load unlocks: %w", err)
	}

	for _, m := range milestones {
		if _, done := unlocked[m.ID]; done {
			continue
		}
		if !Reached(m, res.DaysInChallenge, currentValue) {
			continue
		}

		isNew, err := tx.InsertMilestoneUnlock(ctx, domain.MilestoneUnlock{
			ID:              s.newID(),
			UserChallengeID: uc.ID,
			MilestoneID:     m.ID,
			UserID:          uc.UserID,
			UnlockedAt:      now,
		})
		if err != nil {
			return res, err
		}
		if !isNew {
			continue
		}

		if m.PointsAwarded > 0 {
			g, err := s.ledger.Credit(ctx, tx, credit.Request{
				UserID:      uc.UserID,
				Points:      m.PointsAwarded,
				Reason:      "milestone: " + m.Name,
				Key:         domain.MilestoneKey(m.ID),
				ReferenceID: m.ID,
			}, now)
			if err != nil {
				return res, fmt.Errorf("credit milestone %s: %w", m.ID, err)
			}
			res.PointsAwarded += g.Points
		}
		res.Unlocked = append(res.Unlocked, m)
	}
	return res, nil
}

// MilestoneStatus is a milestone annotated for read views.
type MilestoneStatus struct {
	domain.Milestone
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// Statuses annotates milestones with unlock state.
func Statuses(milestones []domain.Milestone, unlocked map[string]time.Time) []MilestoneStatus {
	out := make([]MilestoneStatus, len(milestones))
	for i, m := range milestones {
		out[i] = MilestoneStatus{Milestone: m}
		if at, ok := unlocked[m.ID]; ok {
			out[i].Unlocked = true
			out[i].UnlockedAt = &at
		}
	}
	return out
}
