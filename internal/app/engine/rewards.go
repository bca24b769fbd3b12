package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tutu-network/breathe/internal/app/credit"
	"github.com/tutu-network/breathe/internal/app/engagement"
	"github.com/tutu-network/breathe/internal/domain"
	"github.com/tutu-network/breathe/internal/infra/store"
)

// AwardResult is returned by the reward operations. AlreadyRewarded is
// the idempotent duplicate outcome, not an error.
type AwardResult struct {
	Success         bool                         `json:"success"`
	AlreadyRewarded bool                         `json:"already_rewarded"`
	PointsAwarded   int64                        `json:"points_awarded"`
	TotalPoints     int64                        `json:"total_points"`
	NewAchievements []domain.UnlockedAchievement `json:"new_achievements"`
}

// ActivityInput names one rewarded activity. ReferenceID correlates
// per-event grants (a questionnaire id, a module id); retries with the
// same reference never pay twice.
type ActivityInput struct {
	ActivityType string `json:"activity_type"`
	Description  string `json:"description,omitempty"`
	ReferenceID  string `json:"reference_id,omitempty"`
}

// AwardActivityPoints applies the reward rule for an activity and then
// evaluates achievements. A missing or inactive rule awards nothing.
func (e *Engine) AwardActivityPoints(ctx context.Context, userID string, in ActivityInput) (AwardResult, error) {
	res, err := e.awardActivityPoints(ctx, userID, in)
	return res, observe("award_activity_points", err)
}

func (e *Engine) awardActivityPoints(ctx context.Context, userID string, in ActivityInput) (AwardResult, error) {
	if err := requireUser(userID); err != nil {
		return AwardResult{}, err
	}
	activity, err := domain.ParseActivityType(strings.TrimSpace(in.ActivityType))
	if err != nil {
		return AwardResult{}, err
	}
	now, today := e.clock()

	var res AwardResult
	var fx *effects
	err = e.db.Update(ctx, userID, func(tx *store.Tx) error {
		fx = newEffects(userID, now)
		g, err := e.awardRule(ctx, tx, fx, userID, activity, strings.TrimSpace(in.ReferenceID), strings.TrimSpace(in.Description), today, now)
		if err != nil {
			return err
		}
		res, err = e.finishAward(ctx, tx, fx, userID, g, now)
		return err
	})
	if err != nil {
		return AwardResult{}, err
	}

	e.commit(ctx, fx)
	if res.PointsAwarded > 0 {
		slog.Info("activity rewarded", "user_id", userID, "activity", activity, "points", res.PointsAwarded)
	}
	return res, nil
}

// AwardUploadPoints rewards the first upload of each document type.
// points overrides the document_upload rule's amount and must lie in
// 1..max upload points. Without an override and without an active rule,
// nothing is awarded.
func (e *Engine) AwardUploadPoints(ctx context.Context, userID, uploadType string, points *int64) (AwardResult, error) {
	res, err := e.awardUploadPoints(ctx, userID, uploadType, points)
	return res, observe("award_upload_points", err)
}

func (e *Engine) awardUploadPoints(ctx context.Context, userID, uploadType string, points *int64) (AwardResult, error) {
	if err := requireUser(userID); err != nil {
		return AwardResult{}, err
	}
	upload, err := domain.ParseUploadType(strings.TrimSpace(uploadType))
	if err != nil {
		return AwardResult{}, err
	}
	if points != nil && (*points < 1 || *points > e.maxUploadPoints) {
		return AwardResult{}, fmt.Errorf("%w: upload points must be in 1..%d, got %d", domain.ErrValidation, e.maxUploadPoints, *points)
	}
	now, today := e.clock()

	var res AwardResult
	var fx *effects
	err = e.db.Update(ctx, userID, func(tx *store.Tx) error {
		fx = newEffects(userID, now)

		amount := int64(0)
		if points != nil {
			amount = *points
		} else {
			rule, err := tx.RewardRule(ctx, domain.ActivityDocumentUpload)
			if err != nil {
				return err
			}
			if rule != nil && rule.IsActive {
				amount = rule.Points
			}
		}

		var g domain.Grant
		var err error
		if amount > 0 {
			g, err = e.ledger.Credit(ctx, tx, credit.Request{
				UserID:      userID,
				Points:      amount,
				Reason:      "upload: " + string(upload),
				Activity:    domain.ActivityDocumentUpload,
				Key:         domain.UploadKey(upload),
				ReferenceID: string(upload),
			}, now)
			if err != nil {
				return err
			}
			if g.Granted {
				if err := tx.IncrementActivity(ctx, userID, domain.ActivityDocumentUpload, today); err != nil {
					return err
				}
			}
			fx.grant(string(domain.ActivityDocumentUpload), g)
		}
		res, err = e.finishAward(ctx, tx, fx, userID, g, now)
		return err
	})
	if err != nil {
		return AwardResult{}, err
	}

	e.commit(ctx, fx)
	if res.PointsAwarded > 0 {
		slog.Info("upload rewarded", "user_id", userID, "upload_type", upload, "points", res.PointsAwarded)
	}
	return res, nil
}

// finishAward evaluates achievements after a grant attempt and fills in
// the response.
func (e *Engine) finishAward(ctx context.Context, tx *store.Tx, fx *effects, userID string, g domain.Grant, now time.Time) (AwardResult, error) {
	res := AwardResult{
		Success:         true,
		AlreadyRewarded: g.AlreadyRewarded(),
		PointsAwarded:   g.Points,
		TotalPoints:     g.TotalPoints,
		NewAchievements: []domain.UnlockedAchievement{},
	}
	if g.Key == "" {
		total, err := e.ledger.Balance(ctx, tx, userID)
		if err != nil {
			return res, err
		}
		res.TotalPoints = total
	}
	if !g.Granted {
		return res, nil
	}
	var err error
	res.NewAchievements, err = e.unlockAchievements(ctx, tx, fx, userID, now)
	return res, err
}

// ─── Read Views ─────────────────────────────────────────────────────────────

// PointsView is a user's balance with recent history.
type PointsView struct {
	TotalPoints    int64                  `json:"total_points"`
	Entries        []domain.PointEntry    `json:"entries"`
	ActivityCounts []domain.ActivityCount `json:"activity_counts"`
}

// GetPoints returns the user's total and the limit most recent grants.
func (e *Engine) GetPoints(ctx context.Context, userID string, limit int) (PointsView, error) {
	if err := requireUser(userID); err != nil {
		return PointsView{}, err
	}
	var view PointsView
	err := e.db.View(ctx, func(tx *store.Tx) (err error) {
		if view.TotalPoints, err = e.ledger.Balance(ctx, tx, userID); err != nil {
			return err
		}
		if view.Entries, err = e.ledger.History(ctx, tx, userID, limit); err != nil {
			return err
		}
		view.ActivityCounts, err = tx.ActivityCounts(ctx, userID)
		return err
	})
	view.Entries = orEmpty(view.Entries)
	view.ActivityCounts = orEmpty(view.ActivityCounts)
	return view, observe("get_points", err)
}

// ListAchievements returns every active achievement with the user's
// unlock state and condition progress.
func (e *Engine) ListAchievements(ctx context.Context, userID string) ([]engagement.AchievementProgress, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	var out []engagement.AchievementProgress
	err := e.db.View(ctx, func(tx *store.Tx) (err error) {
		out, err = e.achievements.Progress(ctx, tx, userID)
		return err
	})
	return orEmpty(out), observe("list_achievements", err)
}
