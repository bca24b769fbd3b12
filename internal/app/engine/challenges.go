package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/tutu-network/breathe/internal/app/engagement"
	"github.com/tutu-network/breathe/internal/domain"
	"github.com/tutu-network/breathe/internal/infra/metrics"
	"github.com/tutu-network/breathe/internal/infra/store"
)

// ─── Join / Restart ─────────────────────────────────────────────────────────

// JoinResult is returned by JoinChallenge and RestartChallenge.
type JoinResult struct {
	Success         bool                         `json:"success"`
	UserChallengeID string                       `json:"user_challenge_id"`
	Challenge       domain.UserChallenge         `json:"challenge"`
	PointsAwarded   int64                        `json:"points_awarded"`
	NewAchievements []domain.UnlockedAchievement `json:"new_achievements"`
}

// JoinChallenge starts a challenge of typeID in mode, or the type's default
// mode when mode is empty. At most one active or paused challenge per type
// may exist for a user.
func (e *Engine) JoinChallenge(ctx context.Context, userID, typeID, mode string) (JoinResult, error) {
	res, err := e.joinChallenge(ctx, userID, typeID, mode)
	return res, observe("join_challenge", err)
}

func (e *Engine) joinChallenge(ctx context.Context, userID, typeID, mode string) (JoinResult, error) {
	if err := requireUser(userID); err != nil {
		return JoinResult{}, err
	}
	var m domain.ChallengeMode
	if mode != "" {
		var err error
		if m, err = domain.ParseMode(mode); err != nil {
			return JoinResult{}, err
		}
	}
	now, today := e.clock()

	var res JoinResult
	var fx *effects
	err := e.db.Update(ctx, userID, func(tx *store.Tx) error {
		fx = newEffects(userID, now)
		ct, err := activeType(ctx, tx, typeID)
		if err != nil {
			return err
		}
		open, err := tx.OpenChallenge(ctx, userID, typeID)
		if err != nil {
			return err
		}
		if open != nil {
			return domain.ErrChallengeAlreadyJoined
		}

		uc := engagement.NewUserChallenge(e.newID(), userID, ct, m, now, today)
		if err := tx.InsertUserChallenge(ctx, uc); err != nil {
			return err
		}
		fx.emit(domain.EventChallengeJoined, map[string]any{
			"user_challenge_id": uc.ID,
			"challenge_type_id": uc.ChallengeTypeID,
			"mode":              uc.Mode,
		})
		fx.metric(func() { metrics.ChallengesJoined.WithLabelValues(uc.ChallengeTypeID, string(uc.Mode)).Inc() })

		g, err := e.awardRule(ctx, tx, fx, userID, domain.ActivityChallengeJoined, uc.ID, "joined "+ct.Name, today, now)
		if err != nil {
			return err
		}
		achievements, err := e.unlockAchievements(ctx, tx, fx, userID, now)
		if err != nil {
			return err
		}
		res = JoinResult{Success: true, UserChallengeID: uc.ID, Challenge: uc, PointsAwarded: g.Points, NewAchievements: achievements}
		return nil
	})
	if err != nil {
		return JoinResult{}, err
	}

	e.commit(ctx, fx)
	slog.Info("challenge joined", "user_id", userID, "user_challenge_id", res.UserChallengeID,
		"challenge_type_id", typeID, "mode", res.Challenge.Mode)
	return res, nil
}

// RestartChallenge cancels the user's open challenge of typeID, if any,
// and starts a fresh one in the type's default mode. Restarts earn no
// join reward.
func (e *Engine) RestartChallenge(ctx context.Context, userID, typeID string) (JoinResult, error) {
	res, err := e.restartChallenge(ctx, userID, typeID)
	return res, observe("restart_challenge", err)
}

func (e *Engine) restartChallenge(ctx context.Context, userID, typeID string) (JoinResult, error) {
	if err := requireUser(userID); err != nil {
		return JoinResult{}, err
	}
	now, today := e.clock()

	var res JoinResult
	var fx *effects
	err := e.db.Update(ctx, userID, func(tx *store.Tx) error {
		fx = newEffects(userID, now)
		ct, err := activeType(ctx, tx, typeID)
		if err != nil {
			return err
		}
		open, err := tx.OpenChallenge(ctx, userID, typeID)
		if err != nil {
			return err
		}
		if open != nil {
			prev := *open
			open.Status = domain.StatusCancelled
			open.UpdatedAt = now
			if err := tx.UpdateUserChallenge(ctx, *open); err != nil {
				return err
			}
			fx.statusChanged(prev, *open)
		}

		uc := engagement.NewUserChallenge(e.newID(), userID, ct, "", now, today)
		if err := tx.InsertUserChallenge(ctx, uc); err != nil {
			return err
		}
		fx.emit(domain.EventChallengeJoined, map[string]any{
			"user_challenge_id": uc.ID,
			"challenge_type_id": uc.ChallengeTypeID,
			"mode":              uc.Mode,
			"restart":           true,
		})
		fx.metric(func() { metrics.ChallengesJoined.WithLabelValues(uc.ChallengeTypeID, string(uc.Mode)).Inc() })
		res = JoinResult{Success: true, UserChallengeID: uc.ID, Challenge: uc, NewAchievements: []domain.UnlockedAchievement{}}
		return nil
	})
	if err != nil {
		return JoinResult{}, err
	}

	e.commit(ctx, fx)
	slog.Info("challenge restarted", "user_id", userID, "user_challenge_id", res.UserChallengeID, "challenge_type_id", typeID)
	return res, nil
}

func activeType(ctx context.Context, tx *store.Tx, typeID string) (domain.ChallengeType, error) {
	ct, err := tx.ChallengeType(ctx, typeID)
	if err != nil {
		return domain.ChallengeType{}, err
	}
	if !ct.IsActive {
		return domain.ChallengeType{}, domain.ErrChallengeTypeNotFound
	}
	return ct, nil
}

// ─── Status Changes ─────────────────────────────────────────────────────────

// StatusResult is returned by the administrative status operations.
type StatusResult struct {
	Success   bool                 `json:"success"`
	Challenge domain.UserChallenge `json:"challenge"`
}

// PauseChallenge moves an active challenge to paused.
func (e *Engine) PauseChallenge(ctx context.Context, userID, id string) (StatusResult, error) {
	return e.changeStatus(ctx, userID, id, engagement.ActionPause)
}

// ResumeChallenge moves a paused challenge back to active.
func (e *Engine) ResumeChallenge(ctx context.Context, userID, id string) (StatusResult, error) {
	return e.changeStatus(ctx, userID, id, engagement.ActionResume)
}

// CancelChallenge ends an active or paused challenge.
func (e *Engine) CancelChallenge(ctx context.Context, userID, id string) (StatusResult, error) {
	return e.changeStatus(ctx, userID, id, engagement.ActionCancel)
}

// CompleteChallenge marks an active or paused challenge completed.
func (e *Engine) CompleteChallenge(ctx context.Context, userID, id string) (StatusResult, error) {
	return e.changeStatus(ctx, userID, id, engagement.ActionComplete)
}

func (e *Engine) changeStatus(ctx context.Context, userID, id string, action engagement.StatusAction) (StatusResult, error) {
	op := string(action) + "_challenge"
	if err := requireUser(userID); err != nil {
		return StatusResult{}, observe(op, err)
	}
	now, _ := e.clock()

	var res StatusResult
	var fx *effects
	err := e.db.Update(ctx, userID, func(tx *store.Tx) error {
		fx = newEffects(userID, now)
		uc, err := tx.UserChallenge(ctx, userID, id)
		if err != nil {
			return err
		}
		next, err := engagement.NextStatus(uc.Status, action)
		if err != nil {
			return err
		}
		prev := uc
		uc.Status = next
		uc.UpdatedAt = now
		if err := tx.UpdateUserChallenge(ctx, uc); err != nil {
			return err
		}
		fx.statusChanged(prev, uc)
		res = StatusResult{Success: true, Challenge: uc}
		return nil
	})
	if err != nil {
		return StatusResult{}, observe(op, err)
	}

	e.commit(ctx, fx)
	slog.Info("challenge status changed", "user_id", userID, "user_challenge_id", id, "status", res.Challenge.Status)
	return res, nil
}

func (fx *effects) statusChanged(prev, next domain.UserChallenge) {
	fx.emit(domain.EventChallengeStatus, map[string]any{
		"user_challenge_id": next.ID,
		"challenge_type_id": next.ChallengeTypeID,
		"from":              prev.Status,
		"to":                next.Status,
	})
	fx.metric(func() { metrics.StatusChanges.WithLabelValues(string(next.Status)).Inc() })
}

// ─── Milestones ─────────────────────────────────────────────────────────────

// MilestoneCheckResult is returned by CheckMilestones.
type MilestoneCheckResult struct {
	Success            bool                         `json:"success"`
	UnlockedMilestones []domain.Milestone           `json:"unlocked_milestones"`
	DaysInChallenge    int                          `json:"days_in_challenge"`
	PointsAwarded      int64                        `json:"points_awarded"`
	TotalPoints        int64                        `json:"total_points"`
	NewAchievements    []domain.UnlockedAchievement `json:"new_achievements"`
}

// CheckMilestones unlocks every milestone the challenge has reached.
// currentValue feeds value-based milestones and may be nil. Paused
// challenges report their day count without unlocking anything.
func (e *Engine) CheckMilestones(ctx context.Context, userID, id string, currentValue *float64) (MilestoneCheckResult, error) {
	res, err := e.checkMilestones(ctx, userID, id, currentValue)
	return res, observe("check_milestones", err)
}

func (e *Engine) checkMilestones(ctx context.Context, userID, id string, currentValue *float64) (MilestoneCheckResult, error) {
	if err := requireUser(userID); err != nil {
		return MilestoneCheckResult{}, err
	}
	now, today := e.clock()

	var res MilestoneCheckResult
	var fx *effects
	err := e.db.Update(ctx, userID, func(tx *store.Tx) error {
		fx = newEffects(userID, now)
		uc, err := tx.UserChallenge(ctx, userID, id)
		if err != nil {
			return err
		}
		if uc.Status.Terminal() {
			return domain.ErrChallengeTerminal
		}

		ms, err := e.milestones.Evaluate(ctx, tx, uc, currentValue, today, now)
		if err != nil {
			return err
		}
		fx.milestones(uc, ms)

		achievements, err := e.unlockAchievements(ctx, tx, fx, userID, now)
		if err != nil {
			return err
		}
		total, err := e.ledger.Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		res = MilestoneCheckResult{
			Success:            true,
			UnlockedMilestones: orEmpty(ms.Unlocked),
			DaysInChallenge:    ms.DaysInChallenge,
			PointsAwarded:      ms.PointsAwarded,
			TotalPoints:        total,
			NewAchievements:    achievements,
		}
		return nil
	})
	if err != nil {
		return MilestoneCheckResult{}, err
	}

	e.commit(ctx, fx)
	for _, m := range res.UnlockedMilestones {
		slog.Info("milestone unlocked", "user_id", userID, "user_challenge_id", id, "milestone_id", m.ID)
	}
	return res, nil
}

// ─── Read Views ─────────────────────────────────────────────────────────────

// ChallengeView is a challenge with its derived metrics.
type ChallengeView struct {
	domain.UserChallenge
	ChallengeType domain.ChallengeType         `json:"challenge_type"`
	DaysSinceQuit int                          `json:"days_since_quit"`
	HealthRisks   []engagement.RiskProgress    `json:"health_risks"`
	Milestones    []engagement.MilestoneStatus `json:"milestones"`
}

// GetChallenge returns one of the user's challenges.
func (e *Engine) GetChallenge(ctx context.Context, userID, id string) (ChallengeView, error) {
	if err := requireUser(userID); err != nil {
		return ChallengeView{}, err
	}
	_, today := e.clock()

	var view ChallengeView
	err := e.db.View(ctx, func(tx *store.Tx) error {
		uc, err := tx.UserChallenge(ctx, userID, id)
		if err != nil {
			return err
		}
		view, err = buildView(ctx, tx, uc, today)
		return err
	})
	return view, observe("get_challenge", err)
}

// ListChallenges returns every challenge the user has held, newest first.
func (e *Engine) ListChallenges(ctx context.Context, userID string) ([]ChallengeView, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	_, today := e.clock()

	views := []ChallengeView{}
	err := e.db.View(ctx, func(tx *store.Tx) error {
		ucs, err := tx.UserChallenges(ctx, userID)
		if err != nil {
			return err
		}
		for _, uc := range ucs {
			v, err := buildView(ctx, tx, uc, today)
			if err != nil {
				return err
			}
			views = append(views, v)
		}
		return nil
	})
	return views, observe("list_challenges", err)
}

// ListChallengeTypes returns the configured challenge types.
func (e *Engine) ListChallengeTypes(ctx context.Context) ([]domain.ChallengeType, error) {
	var out []domain.ChallengeType
	err := e.db.View(ctx, func(tx *store.Tx) (err error) {
		all, err := tx.ChallengeTypes(ctx)
		for _, ct := range all {
			if ct.IsActive {
				out = append(out, ct)
			}
		}
		return err
	})
	return orEmpty(out), observe("list_challenge_types", err)
}

func buildView(ctx context.Context, tx *store.Tx, uc domain.UserChallenge, today time.Time) (ChallengeView, error) {
	ct, err := tx.ChallengeType(ctx, uc.ChallengeTypeID)
	if err != nil {
		return ChallengeView{}, err
	}
	risks, err := tx.HealthRisks(ctx, ct.ID)
	if err != nil {
		return ChallengeView{}, err
	}
	milestones, err := tx.Milestones(ctx, ct.ID, true)
	if err != nil {
		return ChallengeView{}, err
	}
	unlocked, err := tx.UnlockedMilestones(ctx, uc.ID)
	if err != nil {
		return ChallengeView{}, err
	}

	days := engagement.DaysSinceQuit(uc, today)
	return ChallengeView{
		UserChallenge: uc,
		ChallengeType: ct,
		DaysSinceQuit: days,
		HealthRisks:   engagement.RiskProgressFor(days, risks),
		Milestones:    engagement.Statuses(milestones, unlocked),
	}, nil
}
