// Package engagement implements the challenge calculators and evaluators:
// quit streaks, mode transitions, health-risk fade, milestone unlocks, and
// achievement unlocks. Calculators are pure; evaluators write through a
// caller-owned store transaction.
package engagement

import (
	"time"

	"github.com/tutu-network/breathe/internal/domain"
)

// ─── Joining ────────────────────────────────────────────────────────────────

// NewUserChallenge builds the initial state for a join.
// An empty mode falls back to the type's default (or tracking).
func NewUserChallenge(id, userID string, ct domain.ChallengeType, mode domain.ChallengeMode, now, today time.Time) domain.UserChallenge {
	if mode == "" {
		mode = ct.DefaultMode
	}
	if mode == "" {
		mode = domain.ModeTracking
	}

	uc := domain.UserChallenge{
		ID:              id,
		UserID:          userID,
		ChallengeTypeID: ct.ID,
		Status:          domain.StatusActive,
		Mode:            mode,
		StartedAt:       now,
		UpdatedAt:       now,
	}
	if mode == domain.ModeQuitting {
		quit := domain.DateOf(today)
		uc.QuitDate = &quit
		uc.CurrentStreakDays = 1
		uc.LongestStreakDays = 1
	}
	return uc
}

// ─── Days Since Quit ────────────────────────────────────────────────────────

// DaysSinceQuit is the single time basis for streak display, milestones,
// and fade. The quit day itself counts as day 1. Zero unless quitting.
func DaysSinceQuit(uc domain.UserChallenge, today time.Time) int {
	if uc.Mode != domain.ModeQuitting || uc.QuitDate == nil {
		return 0
	}
	return max(0, domain.DaysBetween(*uc.QuitDate, today)+1)
}

// ─── Transitions ────────────────────────────────────────────────────────────

// ApplyObservation advances uc for one observation in the challenge's
// primary category. It mutates uc in place and returns the mode transition,
// or nil when the mode did not change. Paused and terminal challenges,
// non-numeric observations, and maintenance mode are left untouched.
//
//	tracking/reduction + 0  -> quitting (quit date = observation date, streak 1)
//	quitting + 0 next day   -> streak + 1
//	quitting + 0 after gap  -> streak restarts at 1
//	quitting + >0           -> reduction (streak 0, quit date kept)
//	quitting + >0 backdated -> no change
func ApplyObservation(uc *domain.UserChallenge, obs domain.Observation, now time.Time) *domain.Transition {
	if uc.Status != domain.StatusActive || obs.NumericValue == nil {
		return nil
	}
	day := domain.DateOf(obs.ObservationDate)

	switch uc.Mode {
	case domain.ModeTracking, domain.ModeReduction:
		if !obs.IsZero() {
			return nil
		}
		from := uc.Mode
		uc.Mode = domain.ModeQuitting
		uc.QuitDate = &day
		uc.LastZeroLoggedAt = &day
		uc.CurrentStreakDays = 1
		uc.LongestStreakDays = max(uc.LongestStreakDays, 1)
		uc.UpdatedAt = now
		return &domain.Transition{UserChallengeID: uc.ID, From: from, To: domain.ModeQuitting}

	case domain.ModeQuitting:
		if obs.IsZero() {
			extendQuitStreak(uc, day, now)
			return nil
		}
		// A log dated before the last counted zero (or the quit) belongs
		// to history and never rewrites the current streak.
		if ref := referenceDay(uc); ref != nil && day.Before(*ref) {
			return nil
		}
		uc.Mode = domain.ModeReduction
		uc.CurrentStreakDays = 0
		uc.LastZeroLoggedAt = nil
		uc.UpdatedAt = now
		return &domain.Transition{UserChallengeID: uc.ID, From: domain.ModeQuitting, To: domain.ModeReduction, Relapse: true}
	}
	return nil
}

// referenceDay is the last counted zero day, or the quit date before any
// zero was counted.
func referenceDay(uc *domain.UserChallenge) *time.Time {
	if uc.LastZeroLoggedAt != nil {
		return uc.LastZeroLoggedAt
	}
	return uc.QuitDate
}

// extendQuitStreak counts a zero log against the last counted day (or the
// quit date before any zero was counted). Same-day and backdated logs are
// no-ops.
func extendQuitStreak(uc *domain.UserChallenge, day, now time.Time) {
	ref := referenceDay(uc)
	if ref == nil {
		uc.QuitDate = &day
		uc.CurrentStreakDays = 1
	} else {
		switch gap := domain.DaysBetween(*ref, day); {
		case gap == 1:
			uc.CurrentStreakDays++
		case gap > 1:
			uc.CurrentStreakDays = 1
		default:
			return
		}
	}

	uc.LastZeroLoggedAt = &day
	uc.LongestStreakDays = max(uc.LongestStreakDays, uc.CurrentStreakDays)
	uc.UpdatedAt = now
}

// ─── Status Changes ─────────────────────────────────────────────────────────

// StatusAction is an administrative lifecycle operation.
type StatusAction string

const (
	ActionPause    StatusAction = "pause"
	ActionResume   StatusAction = "resume"
	ActionCancel   StatusAction = "cancel"
	ActionComplete StatusAction = "complete"
)

// NextStatus validates action against the current status and returns the
// resulting status. Mode is never affected.
func NextStatus(current domain.ChallengeStatus, action StatusAction) (domain.ChallengeStatus, error) {
	if current.Terminal() {
		return current, domain.ErrChallengeTerminal
	}
	switch action {
	case ActionPause:
		if current != domain.StatusActive {
			return current, domain.ErrChallengeNotActive
		}
		return domain.StatusPaused, nil
	case ActionResume:
		if current != domain.StatusPaused {
			return current, domain.ErrChallengeNotPaused
		}
		return domain.StatusActive, nil
	case ActionCancel:
		return domain.StatusCancelled, nil
	case ActionComplete:
		return domain.StatusCompleted, nil
	}
	return current, domain.ErrInvalidState
}
