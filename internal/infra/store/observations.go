package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tutu-network/breathe/internal/domain"
)

// ─── Observations ───────────────────────────────────────────────────────────

type observationRow struct {
	ID              string          `db:"id"`
	UserID          string          `db:"user_id"`
	Category        string          `db:"category"`
	Value           string          `db:"value"`
	NumericValue    sql.NullFloat64 `db:"numeric_value"`
	Note            string          `db:"note"`
	ObservationDate string          `db:"observation_date"`
	CreatedAt       int64           `db:"created_at"`
}

func (r observationRow) toDomain() domain.Observation {
	o := domain.Observation{
		ID:           r.ID,
		UserID:       r.UserID,
		Category:     r.Category,
		Value:        r.Value,
		NumericValue: nullFloat(r.NumericValue),
		Note:         r.Note,
		CreatedAt:    fromMilli(r.CreatedAt),
	}
	if d, err := domain.ParseDate(r.ObservationDate); err == nil {
		o.ObservationDate = d
	}
	return o
}

const observationColumns = `id, user_id, category, value, numeric_value, note, observation_date, created_at`

// InsertObservation appends one observation. Observations are never updated.
func (t *Tx) InsertObservation(ctx context.Context, o domain.Observation) error {
	_, err := t.exec(ctx,
		`INSERT INTO observations (`+observationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.Category, o.Value, floatArg(o.NumericValue), o.Note,
		domain.FormatDate(o.ObservationDate), unixMilli(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// Observations returns a user's history, most recent submission first.
// An empty category returns every category.
func (t *Tx) Observations(ctx context.Context, userID, category string, limit int) ([]domain.Observation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + observationColumns + ` FROM observations WHERE user_id = ?`
	args := []any{userID}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var rows []observationRow
	if err := t.sel(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return mapObservations(rows), nil
}

// LatestObservations returns the authoritative (most recent by created_at)
// observation per category for a user. IDs are time-ordered, which breaks
// ties within the same millisecond.
func (t *Tx) LatestObservations(ctx context.Context, userID string) ([]domain.Observation, error) {
	var rows []observationRow
	if err := t.sel(ctx, &rows,
		`SELECT `+observationColumns+` FROM observations o
		 WHERE o.user_id = ?
		   AND NOT EXISTS (
		     SELECT 1 FROM observations n
		     WHERE n.user_id = o.user_id AND n.category = o.category
		       AND (n.created_at > o.created_at OR (n.created_at = o.created_at AND n.id > o.id)))
		 ORDER BY o.category`, userID); err != nil {
		return nil, err
	}
	return mapObservations(rows), nil
}

func mapObservations(rows []observationRow) []domain.Observation {
	out := make([]domain.Observation, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out
}
