// Package domain holds the pure types of the behavior-change engine:
// challenges, observations, milestones, rewards, achievements, and the
// error taxonomy. Nothing here performs I/O.
package domain

import (
	"fmt"
	"time"
)

// ─── Status / Mode ──────────────────────────────────────────────────────────

// ChallengeStatus is the administrative lifecycle of a UserChallenge.
type ChallengeStatus string

const (
	StatusActive    ChallengeStatus = "active"
	StatusPaused    ChallengeStatus = "paused"
	StatusCompleted ChallengeStatus = "completed"
	StatusCancelled ChallengeStatus = "cancelled"
)

// Terminal reports whether no further state-changing calls are allowed.
func (s ChallengeStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Open reports whether the status counts toward the one-per-type join limit.
func (s ChallengeStatus) Open() bool {
	return s == StatusActive || s == StatusPaused
}

// ChallengeMode is the behavioral phase within a challenge.
type ChallengeMode string

const (
	ModeTracking    ChallengeMode = "tracking"
	ModeReduction   ChallengeMode = "reduction"
	ModeQuitting    ChallengeMode = "quitting"
	ModeMaintenance ChallengeMode = "maintenance"
)

// ParseMode validates a mode string.
func ParseMode(s string) (ChallengeMode, error) {
	switch m := ChallengeMode(s); m {
	case ModeTracking, ModeReduction, ModeQuitting, ModeMaintenance:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// ─── Reference Data ─────────────────────────────────────────────────────────

// DefaultPrimaryCategory drives mode transitions when a challenge type
// does not name one.
const DefaultPrimaryCategory = "cigarette_count"

// ChallengeType is externally managed reference data.
type ChallengeType struct {
	ID                 string        `json:"id" yaml:"id"`
	Name               string        `json:"name" yaml:"name"`
	Description        string        `json:"description,omitempty" yaml:"description"`
	DefaultMode        ChallengeMode `json:"default_mode" yaml:"default_mode"`
	PrimaryCategory    string        `json:"primary_category" yaml:"primary_category"`
	RequiredCategories []string      `json:"required_categories" yaml:"required_categories"`
	ShowStreak         bool          `json:"show_streak" yaml:"show_streak"`
	ShowHealthRisks    bool          `json:"show_health_risks" yaml:"show_health_risks"`
	IsActive           bool          `json:"is_active" yaml:"is_active"`
}

// Primary returns the category whose observations drive transitions.
func (t ChallengeType) Primary() string {
	if t.PrimaryCategory == "" {
		return DefaultPrimaryCategory
	}
	return t.PrimaryCategory
}

// ─── User Challenge ─────────────────────────────────────────────────────────

// UserChallenge is one user's instance of a challenge type.
// Rows are never deleted; completed and cancelled are terminal.
type UserChallenge struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	ChallengeTypeID   string          `json:"challenge_type_id"`
	Status            ChallengeStatus `json:"status"`
	Mode              ChallengeMode   `json:"current_mode"`
	StartedAt         time.Time       `json:"started_at"`
	QuitDate          *time.Time      `json:"quit_date,omitempty"`
	CurrentStreakDays int             `json:"current_streak_days"`
	LongestStreakDays int             `json:"longest_streak_days"`
	LastZeroLoggedAt  *time.Time      `json:"last_zero_logged_at,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Transition describes a mode change produced by an observation.
type Transition struct {
	UserChallengeID string        `json:"user_challenge_id"`
	From            ChallengeMode `json:"from"`
	To              ChallengeMode `json:"to"`
	Relapse         bool          `json:"relapse"`
}
