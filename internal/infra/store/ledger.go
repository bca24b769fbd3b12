package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tutu-network/breathe/internal/domain"
)

// ─── Point Ledger ───────────────────────────────────────────────────────────

type pointRow struct {
	ID             string         `db:"id"`
	UserID         string         `db:"user_id"`
	Points         int64          `db:"points"`
	Reason         string         `db:"reason"`
	ActivityType   sql.NullString `db:"activity_type"`
	IdempotencyKey string         `db:"idempotency_key"`
	ReferenceID    sql.NullString `db:"reference_id"`
	CreatedAt      int64          `db:"created_at"`
}

// InsertPointEntry appends a grant unless (user_id, idempotency_key) is
// already present. The check and the insert are one statement, so two
// concurrent duplicates produce exactly one row. Returns true if inserted.
func (t *Tx) InsertPointEntry(ctx context.Context, e domain.PointEntry) (bool, error) {
	n, err := t.exec(ctx,
		`INSERT INTO point_entries
		   (id, user_id, points, reason, activity_type, idempotency_key, reference_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, idempotency_key) DO NOTHING`,
		e.ID, e.UserID, e.Points, e.Reason, nullString(string(e.ActivityType)),
		e.IdempotencyKey, nullString(e.ReferenceID), unixMilli(e.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert point entry: %w", err)
	}
	return n > 0, nil
}

// TotalPoints is the sum over all of a user's entries.
func (t *Tx) TotalPoints(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := t.get(ctx, &total,
		`SELECT CAST(COALESCE(SUM(points), 0) AS BIGINT) FROM point_entries WHERE user_id = ?`,
		userID)
	return total, err
}

// PointEntries returns a user's most recent grants.
func (t *Tx) PointEntries(ctx context.Context, userID string, limit int) ([]domain.PointEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []pointRow
	if err := t.sel(ctx, &rows,
		`SELECT id, user_id, points, reason, activity_type, idempotency_key, reference_id, created_at
		 FROM point_entries WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit); err != nil {
		return nil, err
	}
	out := make([]domain.PointEntry, len(rows))
	for i, r := range rows {
		out[i] = domain.PointEntry{
			ID:             r.ID,
			UserID:         r.UserID,
			Points:         r.Points,
			Reason:         r.Reason,
			ActivityType:   domain.ActivityType(r.ActivityType.String),
			IdempotencyKey: r.IdempotencyKey,
			ReferenceID:    r.ReferenceID.String,
			CreatedAt:      fromMilli(r.CreatedAt),
		}
	}
	return out, nil
}

// ─── Activity Counts ────────────────────────────────────────────────────────

type activityRow struct {
	UserID       string         `db:"user_id"`
	ActivityType string         `db:"activity_type"`
	TotalCount   int            `db:"total_count"`
	LastDate     sql.NullString `db:"last_activity_date"`
}

// IncrementActivity bumps the per-activity counter for a user.
func (t *Tx) IncrementActivity(ctx context.Context, userID string, activity domain.ActivityType, day time.Time) error {
	_, err := t.exec(ctx,
		`INSERT INTO user_activity_counts (user_id, activity_type, total_count, last_activity_date)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT (user_id, activity_type) DO UPDATE
		 SET total_count = user_activity_counts.total_count + 1,
		     last_activity_date = excluded.last_activity_date`,
		userID, string(activity), domain.FormatDate(day),
	)
	if err != nil {
		return fmt.Errorf("increment activity: %w", err)
	}
	return nil
}

// ActivityCounts returns every counter for a user.
func (t *Tx) ActivityCounts(ctx context.Context, userID string) ([]domain.ActivityCount, error) {
	var rows []activityRow
	if err := t.sel(ctx, &rows,
		`SELECT user_id, activity_type, total_count, last_activity_date
		 FROM user_activity_counts WHERE user_id = ? ORDER BY activity_type`, userID); err != nil {
		return nil, err
	}
	out := make([]domain.ActivityCount, len(rows))
	for i, r := range rows {
		out[i] = domain.ActivityCount{
			UserID:           r.UserID,
			ActivityType:     domain.ActivityType(r.ActivityType),
			TotalCount:       r.TotalCount,
			LastActivityDate: nullDate(r.LastDate),
		}
	}
	return out, nil
}
