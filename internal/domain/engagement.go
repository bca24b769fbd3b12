package domain

import (
	"fmt"
	"time"
)

// ─── Activity Types ─────────────────────────────────────────────────────────

// ActivityType is the closed set of user activities the ledger rewards.
type ActivityType string

const (
	ActivityQuestionnaire    ActivityType = "questionnaire_completion"
	ActivityDailyCheckin     ActivityType = "daily_checkin"
	ActivityObservation      ActivityType = "observation_logged"
	ActivityDocumentUpload   ActivityType = "document_upload"
	ActivityEducation        ActivityType = "education_module"
	ActivityChallengeJoined  ActivityType = "challenge_joined"
	ActivityProfileCompleted ActivityType = "profile_completed"
)

// ActivityTypes lists every valid activity type.
func ActivityTypes() []ActivityType {
	return []ActivityType{
		ActivityQuestionnaire, ActivityDailyCheckin, ActivityObservation,
		ActivityDocumentUpload, ActivityEducation, ActivityChallengeJoined,
		ActivityProfileCompleted,
	}
}

// ParseActivityType validates an activity type string.
func ParseActivityType(s string) (ActivityType, error) {
	for _, a := range ActivityTypes() {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownActivityType, s)
}

// UploadType is the closed set of document kinds that earn upload points.
type UploadType string

const (
	UploadIDDocument    UploadType = "id_document"
	UploadMedicalRecord UploadType = "medical_record"
	UploadLabResult     UploadType = "lab_result"
	UploadConsentForm   UploadType = "consent_form"
	UploadProgressPhoto UploadType = "progress_photo"
)

// ParseUploadType validates an upload type string.
func ParseUploadType(s string) (UploadType, error) {
	switch u := UploadType(s); u {
	case UploadIDDocument, UploadMedicalRecord, UploadLabResult, UploadConsentForm, UploadProgressPhoto:
		return u, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownUploadType, s)
}

// ─── Reward Rules / Ledger ──────────────────────────────────────────────────

// RewardFrequency bounds how often a rule may grant.
type RewardFrequency string

const (
	FrequencyPerEvent  RewardFrequency = "per_event"
	FrequencyDaily     RewardFrequency = "daily"
	FrequencyOnceTotal RewardFrequency = "once_total"
)

// Valid reports whether f is a known frequency.
func (f RewardFrequency) Valid() bool {
	return f == FrequencyPerEvent || f == FrequencyDaily || f == FrequencyOnceTotal
}

// RewardRule is reference data: points for an activity type.
type RewardRule struct {
	ActivityType ActivityType    `json:"activity_type" yaml:"activity_type"`
	Points       int64           `json:"points" yaml:"points"`
	Frequency    RewardFrequency `json:"frequency" yaml:"frequency"`
	Description  string          `json:"description,omitempty" yaml:"description"`
	IsActive     bool            `json:"is_active" yaml:"is_active"`
}

// IdempotencyKey derives the ledger key for one grant under this rule.
// day is the caller's calendar day; ref is the per-event correlation key.
func (r RewardRule) IdempotencyKey(day time.Time, ref string) string {
	switch r.Frequency {
	case FrequencyDaily:
		return fmt.Sprintf("daily:%s:%s", r.ActivityType, FormatDate(day))
	case FrequencyOnceTotal:
		return fmt.Sprintf("once:%s", r.ActivityType)
	default:
		return fmt.Sprintf("event:%s:%s", r.ActivityType, ref)
	}
}

// MilestoneKey is the ledger key for a milestone's points.
func MilestoneKey(milestoneID string) string {
	return "milestone:" + milestoneID
}

// UploadKey is the ledger key for an upload type's points.
func UploadKey(u UploadType) string {
	return "upload:" + string(u)
}

// PointEntry is one append-only grant. Points are always positive.
type PointEntry struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	Points         int64        `json:"points"`
	Reason         string       `json:"reason"`
	ActivityType   ActivityType `json:"activity_type,omitempty"`
	IdempotencyKey string       `json:"idempotency_key"`
	ReferenceID    string       `json:"reference_id,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Grant is the outcome of one credit attempt.
// Granted is false when the idempotency key was already used.
type Grant struct {
	Granted     bool   `json:"granted"`
	Points      int64  `json:"points"`
	TotalPoints int64  `json:"total_points"`
	Key         string `json:"-"`
}

// AlreadyRewarded reports the idempotent duplicate outcome.
func (g Grant) AlreadyRewarded() bool { return !g.Granted && g.Key != "" }

// ActivityCount is the incrementally maintained per-activity counter.
type ActivityCount struct {
	UserID           string       `json:"user_id"`
	ActivityType     ActivityType `json:"activity_type"`
	TotalCount       int          `json:"total_count"`
	LastActivityDate *time.Time   `json:"last_activity_date,omitempty"`
}

// ─── Milestones / Health Risks ──────────────────────────────────────────────

// Milestone is a time- or value-based checkpoint within a challenge type.
type Milestone struct {
	ID              string   `json:"id" yaml:"id"`
	ChallengeTypeID string   `json:"challenge_type_id" yaml:"challenge_type_id"`
	Name            string   `json:"name" yaml:"name"`
	Description     string   `json:"description,omitempty" yaml:"description"`
	DaysRequired    *int     `json:"days_required,omitempty" yaml:"days_required"`
	TargetValue     *float64 `json:"target_value,omitempty" yaml:"target_value"`
	PointsAwarded   int64    `json:"points_awarded" yaml:"points_awarded"`
	DisplayOrder    int      `json:"display_order" yaml:"display_order"`
	IsActive        bool     `json:"is_active" yaml:"is_active"`
}

// MilestoneUnlock records a milestone reached by one challenge instance.
type MilestoneUnlock struct {
	ID              string    `json:"id"`
	UserChallengeID string    `json:"user_challenge_id"`
	MilestoneID     string    `json:"milestone_id"`
	UserID          string    `json:"user_id"`
	UnlockedAt      time.Time `json:"unlocked_at"`
}

// HealthRisk fades linearly between FadeStartDays and FadeEndDays.
type HealthRisk struct {
	ID              string `json:"id" yaml:"id"`
	ChallengeTypeID string `json:"challenge_type_id" yaml:"challenge_type_id"`
	Name            string `json:"name" yaml:"name"`
	Description     string `json:"description,omitempty" yaml:"description"`
	FadeStartDays   int    `json:"fade_start_days" yaml:"fade_start_days"`
	FadeEndDays     int    `json:"fade_end_days" yaml:"fade_end_days"`
	DisplayOrder    int    `json:"display_order" yaml:"display_order"`
}

// ─── Achievements ───────────────────────────────────────────────────────────

// BadgeCondition requires a minimum count of one activity type.
type BadgeCondition struct {
	AchievementID string       `json:"achievement_id" yaml:"-"`
	ActivityType  ActivityType `json:"activity_type" yaml:"activity_type"`
	RequiredCount int          `json:"required_count" yaml:"required_count"`
}

// Achievement is a cross-challenge badge gated by points and/or conditions.
type Achievement struct {
	ID                 string           `json:"id" yaml:"id"`
	Name               string           `json:"name" yaml:"name"`
	Description        string           `json:"description,omitempty" yaml:"description"`
	Icon               string           `json:"icon,omitempty" yaml:"icon"`
	PointsRequired     int64            `json:"points_required" yaml:"points_required"`
	MinPointsThreshold *int64           `json:"min_points_threshold,omitempty" yaml:"min_points_threshold"`
	Conditions         []BadgeCondition `json:"conditions,omitempty" yaml:"conditions"`
	IsActive           bool             `json:"is_active" yaml:"is_active"`
}

// UserAchievement records an achievement unlocked by a user.
type UserAchievement struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// UnlockedAchievement is returned to callers for notification.
type UnlockedAchievement struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Points      int64     `json:"points"`
	UnlockedAt  time.Time `json:"unlocked_at"`
}
