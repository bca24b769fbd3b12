package domain

import "time"

// EventKind names a notable event signaled to downstream consumers.
type EventKind string

const (
	EventChallengeJoined     EventKind = "challenge.joined"
	EventChallengeStatus     EventKind = "challenge.status_changed"
	EventChallengeMode       EventKind = "challenge.mode_changed"
	EventMilestoneUnlocked   EventKind = "milestone.unlocked"
	EventPointsGranted       EventKind = "points.granted"
	EventAchievementUnlocked EventKind = "achievement.unlocked"
)

// Event is published after the transaction that produced it commits.
type Event struct {
	Kind       EventKind      `json:"kind"`
	UserID     string         `json:"user_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}
