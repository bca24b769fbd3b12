package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tutu-network/breathe/internal/domain"
)

// ─── User Challenges ────────────────────────────────────────────────────────

const challengeColumns = `id, user_id, challenge_type_id, status, current_mode, started_at,
	quit_date, current_streak_days, longest_streak_days, last_zero_logged_at, updated_at`

type challengeRow struct {
	ID              string         `db:"id"`
	UserID          string         `db:"user_id"`
	ChallengeTypeID string         `db:"challenge_type_id"`
	Status          string         `db:"status"`
	Mode            string         `db:"current_mode"`
	StartedAt       int64          `db:"started_at"`
	QuitDate        sql.NullString `db:"quit_date"`
	CurrentStreak   int            `db:"current_streak_days"`
	LongestStreak   int            `db:"longest_streak_days"`
	LastZero        sql.NullString `db:"last_zero_logged_at"`
	UpdatedAt       int64          `db:"updated_at"`
}

func (r challengeRow) toDomain() domain.UserChallenge {
	return domain.UserChallenge{
		ID:                r.ID,
		UserID:            r.UserID,
		ChallengeTypeID:   r.ChallengeTypeID,
		Status:            domain.ChallengeStatus(r.Status),
		Mode:              domain.ChallengeMode(r.Mode),
		StartedAt:         fromMilli(r.StartedAt),
		QuitDate:          nullDate(r.QuitDate),
		CurrentStreakDays: r.CurrentStreak,
		LongestStreakDays: r.LongestStreak,
		LastZeroLoggedAt:  nullDate(r.LastZero),
		UpdatedAt:         fromMilli(r.UpdatedAt),
	}
}

// InsertUserChallenge creates a challenge instance. A second open
// (active/paused) row for the same user and type violates the partial
// unique index and is reported as domain.ErrChallengeAlreadyJoined.
func (t *Tx) InsertUserChallenge(ctx context.Context, uc domain.UserChallenge) error {
	_, err := t.exec(ctx,
		`INSERT INTO user_challenges (`+challengeColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uc.ID, uc.UserID, uc.ChallengeTypeID, string(uc.Status), string(uc.Mode),
		unixMilli(uc.StartedAt), dateArg(uc.QuitDate), uc.CurrentStreakDays,
		uc.LongestStreakDays, dateArg(uc.LastZeroLoggedAt), unixMilli(uc.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return domain.ErrChallengeAlreadyJoined
	}
	if err != nil {
		return fmt.Errorf("insert user challenge: %w", err)
	}
	return nil
}

// UpdateUserChallenge persists every mutable field of uc.
func (t *Tx) UpdateUserChallenge(ctx context.Context, uc domain.UserChallenge) error {
	n, err := t.exec(ctx,
		`UPDATE user_challenges
		 SET status = ?, current_mode = ?, quit_date = ?, current_streak_days = ?,
		     longest_streak_days = ?, last_zero_logged_at = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		string(uc.Status), string(uc.Mode), dateArg(uc.QuitDate), uc.CurrentStreakDays,
		uc.LongestStreakDays, dateArg(uc.LastZeroLoggedAt), unixMilli(uc.UpdatedAt),
		uc.ID, uc.UserID,
	)
	if isUniqueViolation(err) {
		return domain.ErrChallengeAlreadyJoined
	}
	if err != nil {
		return fmt.Errorf("update user challenge: %w", err)
	}
	if n == 0 {
		return domain.ErrChallengeNotFound
	}
	return nil
}

// UserChallenge loads one challenge owned by userID.
// A row owned by someone else is indistinguishable from a missing one.
func (t *Tx) UserChallenge(ctx context.Context, userID, id string) (domain.UserChallenge, error) {
	var row challengeRow
	err := t.get(ctx, &row,
		`SELECT `+challengeColumns+` FROM user_challenges WHERE id = ? AND user_id = ?`,
		id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserChallenge{}, domain.ErrChallengeNotFound
	}
	if err != nil {
		return domain.UserChallenge{}, err
	}
	return row.toDomain(), nil
}

// UserChallenges lists a user's challenges, newest first.
func (t *Tx) UserChallenges(ctx context.Context, userID string) ([]domain.UserChallenge, error) {
	var rows []challengeRow
	if err := t.sel(ctx, &rows,
		`SELECT `+challengeColumns+` FROM user_challenges
		 WHERE user_id = ? ORDER BY started_at DESC, id DESC`, userID); err != nil {
		return nil, err
	}
	return mapChallenges(rows), nil
}

// OpenChallenge returns the active or paused row for (user, type), if any.
func (t *Tx) OpenChallenge(ctx context.Context, userID, typeID string) (*domain.UserChallenge, error) {
	var row challengeRow
	err := t.get(ctx, &row,
		`SELECT `+challengeColumns+` FROM user_challenges
		 WHERE user_id = ? AND challenge_type_id = ? AND status IN ('active', 'paused')`,
		userID, typeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	uc := row.toDomain()
	return &uc, nil
}

// ActiveChallengesForCategory returns the user's active challenges whose
// type designates category as its primary (transition-driving) category.
func (t *Tx) ActiveChallengesForCategory(ctx context.Context, userID, category string) ([]domain.UserChallenge, error) {
	var rows []challengeRow
	if err := t.sel(ctx, &rows,
		`SELECT uc.id, uc.user_id, uc.challenge_type_id, uc.status, uc.current_mode,
		        uc.started_at, uc.quit_date, uc.current_streak_days, uc.longest_streak_days,
		        uc.last_zero_logged_at, uc.updated_at
		 FROM user_challenges uc
		 JOIN challenge_types ct ON ct.id = uc.challenge_type_id
		 WHERE uc.user_id = ? AND uc.status = 'active' AND ct.primary_category = ?
		 ORDER BY uc.started_at, uc.id`,
		userID, category); err != nil {
		return nil, err
	}
	return mapChallenges(rows), nil
}

func mapChallenges(rows []challengeRow) []domain.UserChallenge {
	out := make([]domain.UserChallenge, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out
}
