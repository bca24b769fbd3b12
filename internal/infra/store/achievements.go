package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tutu-network/breathe/internal/domain"
)

// ─── Achievements ───────────────────────────────────────────────────────────

type achievementRow struct {
	ID                 string        `db:"id"`
	Name               string        `db:"name"`
	Description        string        `db:"description"`
	Icon               string        `db:"icon"`
	PointsRequired     int64         `db:"points_required"`
	MinPointsThreshold sql.NullInt64 `db:"min_points_threshold"`
	IsActive           bool          `db:"is_active"`
}

// Achievements loads achievement definitions with their badge conditions.
func (t *Tx) Achievements(ctx context.Context, activeOnly bool) ([]domain.Achievement, error) {
	query := `SELECT id, name, description, icon, points_required, min_points_threshold, is_active
	          FROM achievements`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY points_required, id`

	var rows []achievementRow
	if err := t.sel(ctx, &rows, query); err != nil {
		return nil, err
	}

	var conds []struct {
		AchievementID string `db:"achievement_id"`
		ActivityType  string `db:"activity_type"`
		RequiredCount int    `db:"required_count"`
	}
	if err := t.sel(ctx, &conds,
		`SELECT achievement_id, activity_type, required_count
		 FROM badge_conditions ORDER BY achievement_id, activity_type`); err != nil {
		return nil, err
	}
	byAchievement := make(map[string][]domain.BadgeCondition)
	for _, c := range conds {
		byAchievement[c.AchievementID] = append(byAchievement[c.AchievementID], domain.BadgeCondition{
			AchievementID: c.AchievementID,
			ActivityType:  domain.ActivityType(c.ActivityType),
			RequiredCount: c.RequiredCount,
		})
	}

	out := make([]domain.Achievement, len(rows))
	for i, r := range rows {
		a := domain.Achievement{
			ID:             r.ID,
			Name:           r.Name,
			Description:    r.Description,
			Icon:           r.Icon,
			PointsRequired: r.PointsRequired,
			IsActive:       r.IsActive,
			Conditions:     byAchievement[r.ID],
		}
		if r.MinPointsThreshold.Valid {
			v := r.MinPointsThreshold.Int64
			a.MinPointsThreshold = &v
		}
		out[i] = a
	}
	return out, nil
}

// UserAchievements maps achievement id to unlock time for a user.
func (t *Tx) UserAchievements(ctx context.Context, userID string) (map[string]time.Time, error) {
	var rows []struct {
		AchievementID string `db:"achievement_id"`
		UnlockedAt    int64  `db:"unlocked_at"`
	}
	if err := t.sel(ctx, &rows,
		`SELECT achievement_id, unlocked_at FROM user_achievements WHERE user_id = ?`, userID); err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		out[r.AchievementID] = fromMilli(r.UnlockedAt)
	}
	return out, nil
}

// InsertUserAchievement unlocks an achievement unless the user already has
// it. Returns true if this call unlocked it.
func (t *Tx) InsertUserAchievement(ctx context.Context, ua domain.UserAchievement) (bool, error) {
	n, err := t.exec(ctx,
		`INSERT INTO user_achievements (id, user_id, achievement_id, unlocked_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, achievement_id) DO NOTHING`,
		ua.ID, ua.UserID, ua.AchievementID, unixMilli(ua.UnlockedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert user achievement: %w", err)
	}
	return n > 0, nil
}
