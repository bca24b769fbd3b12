package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tutu-network/breathe/internal/app/engagement"
	"github.com/tutu-network/breathe/internal/domain"
	"github.com/tutu-network/breathe/internal/infra/metrics"
	"github.com/tutu-network/breathe/internal/infra/store"
)

// ObservationInput is one self-report. Date is YYYY-MM-DD and defaults
// to today; it may be backdated but not set in the future.
type ObservationInput struct {
	Category     string   `json:"category"`
	Value        string   `json:"value"`
	NumericValue *float64 `json:"numeric_value,omitempty"`
	Note         string   `json:"note,omitempty"`
	Date         string   `json:"date,omitempty"`
}

// ObservationResult reports the observation and everything it triggered.
type ObservationResult struct {
	Success            bool                         `json:"success"`
	ObservationID      string                       `json:"observation_id"`
	TransitionOccurred bool                         `json:"transition_occurred"`
	NewMode            domain.ChallengeMode         `json:"new_mode,omitempty"`
	CurrentStreakDays  *int                         `json:"current_streak_days,omitempty"`
	Transitions        []domain.Transition          `json:"transitions,omitempty"`
	Challenges         []domain.UserChallenge       `json:"challenges,omitempty"`
	UnlockedMilestones []domain.Milestone           `json:"unlocked_milestones"`
	PointsAwarded      int64                        `json:"points_awarded"`
	NewAchievements    []domain.UnlockedAchievement `json:"new_achievements"`
}

// LogObservation validates and stores an observation, then advances every
// active challenge whose primary category it belongs to, evaluates their
// milestones, applies the observation_logged reward rule, and evaluates
// achievements.
func (e *Engine) LogObservation(ctx context.Context, userID string, in ObservationInput) (ObservationResult, error) {
	res, err := e.logObservation(ctx, userID, in)
	return res, observe("log_observation", err)
}

func (e *Engine) logObservation(ctx context.Context, userID string, in ObservationInput) (ObservationResult, error) {
	if err := requireUser(userID); err != nil {
		return ObservationResult{}, err
	}
	now, today := e.clock()

	category := strings.TrimSpace(in.Category)
	value, numeric, err := e.schema.Validate(category, in.Value, in.NumericValue)
	if err != nil {
		return ObservationResult{}, err
	}
	day := today
	if in.Date != "" {
		if day, err = domain.ParseDate(in.Date); err != nil {
			return ObservationResult{}, err
		}
		if day.After(today) {
			return ObservationResult{}, fmt.Errorf("%w: %s is in the future", domain.ErrInvalidDate, in.Date)
		}
	}

	obs := domain.Observation{
		ID:              e.newID(),
		UserID:          userID,
		Category:        category,
		Value:           value,
		NumericValue:    numeric,
		Note:            strings.TrimSpace(in.Note),
		ObservationDate: day,
		CreatedAt:       now,
	}

	res := ObservationResult{Success: true, ObservationID: obs.ID}
	var fx *effects
	err = e.db.Update(ctx, userID, func(tx *store.Tx) error {
		fx = newEffects(userID, now)
		res.Transitions, res.Challenges, res.UnlockedMilestones, res.PointsAwarded = nil, nil, nil, 0

		if err := tx.InsertObservation(ctx, obs); err != nil {
			return err
		}

		challenges, err := tx.ActiveChallengesForCategory(ctx, userID, category)
		if err != nil {
			return err
		}
		for _, uc := range challenges {
			if tr := engagement.ApplyObservation(&uc, obs, now); tr != nil {
				res.Transitions = append(res.Transitions, *tr)
				fx.emit(domain.EventChallengeMode, map[string]any{
					"user_challenge_id": uc.ID,
					"from":              tr.From,
					"to":                tr.To,
					"relapse":           tr.Relapse,
				})
				fx.metric(func() { metrics.ModeTransitions.WithLabelValues(string(tr.From), string(tr.To)).Inc() })
			}
			if err := tx.UpdateUserChallenge(ctx, uc); err != nil {
				return err
			}

			ms, err := e.milestones.Evaluate(ctx, tx, uc, nil, today, now)
			if err != nil {
				return err
			}
			fx.milestones(uc, ms)
			res.UnlockedMilestones = append(res.UnlockedMilestones, ms.Unlocked...)
			res.PointsAwarded += ms.PointsAwarded
			res.Challenges = append(res.Challenges, uc)
		}

		g, err := e.awardRule(ctx, tx, fx, userID, domain.ActivityObservation, obs.ID, "", today, now)
		if err != nil {
			return err
		}
		res.PointsAwarded += g.Points

		res.NewAchievements, err = e.unlockAchievements(ctx, tx, fx, userID, now)
		return err
	})
	if err != nil {
		return ObservationResult{}, err
	}

	if len(res.Transitions) > 0 {
		res.TransitionOccurred = true
		res.NewMode = res.Transitions[0].To
	}
	if len(res.Challenges) > 0 {
		streak := res.Challenges[0].CurrentStreakDays
		res.CurrentStreakDays = &streak
	}
	res.UnlockedMilestones = orEmpty(res.UnlockedMilestones)

	fx.metric(func() { metrics.ObservationsLogged.WithLabelValues(category).Inc() })
	e.commit(ctx, fx)
	for _, tr := range res.Transitions {
		slog.Info("challenge mode changed", "user_id", userID, "user_challenge_id", tr.UserChallengeID,
			"from", tr.From, "to", tr.To, "relapse", tr.Relapse)
	}
	return res, nil
}

// ListObservations returns a user's history, newest first. An empty
// category lists every category.
func (e *Engine) ListObservations(ctx context.Context, userID, category string, limit int) ([]domain.Observation, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	var out []domain.Observation
	err := e.db.View(ctx, func(tx *store.Tx) (err error) {
		out, err = tx.Observations(ctx, userID, category, limit)
		return err
	})
	return orEmpty(out), observe("list_observations", err)
}

// LatestObservations returns the most recent observation per category.
func (e *Engine) LatestObservations(ctx context.Context, userID string) ([]domain.Observation, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	var out []domain.Observation
	err := e.db.View(ctx, func(tx *store.Tx) (err error) {
		out, err = tx.LatestObservations(ctx, userID)
		return err
	})
	return orEmpty(out), observe("latest_observations", err)
}
