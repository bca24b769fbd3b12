package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tutu-network/breathe/internal/domain"
)

// ─── Milestones ─────────────────────────────────────────────────────────────

type milestoneRow struct {
	ID              string          `db:"id"`
	ChallengeTypeID string          `db:"challenge_type_id"`
	Name            string          `db:"name"`
	Description     string          `db:"description"`
	DaysRequired    sql.NullInt64   `db:"days_required"`
	TargetValue     sql.NullFloat64 `db:"target_value"`
	PointsAwarded   int64           `db:"points_awarded"`
	DisplayOrder    int             `db:"display_order"`
	IsActive        bool            `db:"is_active"`
}

func (r milestoneRow) toDomain() domain.Milestone {
	m := domain.Milestone{
		ID:              r.ID,
		ChallengeTypeID: r.ChallengeTypeID,
		Name:            r.Name,
		Description:     r.Description,
		TargetValue:     nullFloat(r.TargetValue),
		PointsAwarded:   r.PointsAwarded,
		DisplayOrder:    r.DisplayOrder,
		IsActive:        r.IsActive,
	}
	if r.DaysRequired.Valid {
		d := int(r.DaysRequired.Int64)
		m.DaysRequired = &d
	}
	return m
}

// Milestones returns the milestones configured for a challenge type in
// display order. activeOnly filters out retired rows.
func (t *Tx) Milestones(ctx context.Context, typeID string, activeOnly bool) ([]domain.Milestone, error) {
	query := `SELECT id, challenge_type_id, name, description, days_required, target_value,
	                 points_awarded, display_order, is_active
	          FROM milestones WHERE challenge_type_id = ?`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY display_order, id`

	var rows []milestoneRow
	if err := t.sel(ctx, &rows, query, typeID); err != nil {
		return nil, err
	}
	out := make([]domain.Milestone, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// UnlockedMilestones maps milestone id to unlock time for one challenge instance.
func (t *Tx) UnlockedMilestones(ctx context.Context, userChallengeID string) (map[string]time.Time, error) {
	var rows []struct {
		MilestoneID string `db:"milestone_id"`
		UnlockedAt  int64  `db:"unlocked_at"`
	}
	if err := t.sel(ctx, &rows,
		`SELECT milestone_id, unlocked_at FROM milestone_unlocks WHERE user_challenge_id = ?`,
		userChallengeID); err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		out[r.MilestoneID] = fromMilli(r.UnlockedAt)
	}
	return out, nil
}

// InsertMilestoneUnlock records an unlock unless (user_challenge_id,
// milestone_id) already exists. Returns true if this call unlocked it.
func (t *Tx) InsertMilestoneUnlock(ctx context.Context, u domain.MilestoneUnlock) (bool, error) {
	n, err := t.exec(ctx,
		`INSERT INTO milestone_unlocks (id, user_challenge_id, milestone_id, user_id, unlocked_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_challenge_id, milestone_id) DO NOTHING`,
		u.ID, u.UserChallengeID, u.MilestoneID, u.UserID, unixMilli(u.UnlockedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert milestone unlock: %w", err)
	}
	return n > 0, nil
}

// ─── Health Risks ───────────────────────────────────────────────────────────

// HealthRisks returns the risks configured for a challenge type.
func (t *Tx) HealthRisks(ctx context.Context, typeID string) ([]domain.HealthRisk, error) {
	var rows []struct {
		ID              string `db:"id"`
		ChallengeTypeID string `db:"challenge_type_id"`
		Name            string `db:"name"`
		Description     string `db:"description"`
		FadeStartDays   int    `db:"fade_start_days"`
		FadeEndDays     int    `db:"fade_end_days"`
		DisplayOrder    int    `db:"display_order"`
	}
	if err := t.sel(ctx, &rows,
		`SELECT id, challenge_type_id, name, description, fade_start_days, fade_end_days, display_order
		 FROM health_risks WHERE challenge_type_id = ? ORDER BY display_order, id`, typeID); err != nil {
		return nil, err
	}
	out := make([]domain.HealthRisk, len(rows))
	for i, r := range rows {
		out[i] = domain.HealthRisk(r)
	}
	return out, nil
}
