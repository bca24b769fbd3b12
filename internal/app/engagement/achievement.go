package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/tutu-network/breathe/internal/domain"
	"github.com/tutu-network/breathe/internal/infra/store"
)

// AchievementService evaluates the data-driven achievement catalog.
// Every definition goes through the same gate: a point gate and/or a set
// of activity-count conditions, with no per-achievement code.
type AchievementService struct {
	newID func() string
}

// NewAchievementService creates an achievement evaluator.
func NewAchievementService() *AchievementService {
	return &AchievementService{newID: store.NewID}
}

// Eligible reports whether a's gates hold for the given totals.
// points_required wins over min_points_threshold when both are set.
// An achievement with no gate at all is never eligible.
func Eligible(a domain.Achievement, totalPoints int64, counts map[domain.ActivityType]int) bool {
	gated := false
	switch {
	case a.PointsRequired > 0:
		gated = true
		if totalPoints < a.PointsRequired {
			return false
		}
	case a.MinPointsThreshold != nil:
		gated = true
		if totalPoints < *a.MinPointsThreshold {
			return false
		}
	}
	for _, c := range a.Conditions {
		gated = true
		if counts[c.ActivityType] < c.RequiredCount {
			return false
		}
	}
	return gated
}

// CheckAndUnlock evaluates every active achievement the user lacks and
// unlocks the eligible ones. The insert is guarded by the (user_id,
// achievement_id) constraint, so concurrent passes unlock each once.
func (s *AchievementService) CheckAndUnlock(ctx context.Context, tx *store.Tx, userID string, now time.Time) ([]domain.UnlockedAchievement, error) {
	defs, err := tx.Achievements(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("load achievements: %w", err)
	}
	have, err := tx.UserAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user achievements: %w", err)
	}
	total, counts, err := userTotals(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	var newlyUnlocked []domain.UnlockedAchievement
	for _, def := range defs {
		if _, ok := have[def.ID]; ok {
			continue
		}
		if !Eligible(def, total, counts) {
			continue
		}

		isNew, err := tx.InsertUserAchievement(ctx, domain.UserAchievement{
			ID:            s.newID(),
			UserID:        userID,
			AchievementID: def.ID,
			UnlockedAt:    now,
		})
		if err != nil {
			return nil, err
		}
		if isNew {
			newlyUnlocked = append(newlyUnlocked, domain.UnlockedAchievement{
				ID:          def.ID,
				Name:        def.Name,
				Description: def.Description,
				Icon:        def.Icon,
				Points:      pointGate(def),
				UnlockedAt:  now,
			})
		}
	}
	return newlyUnlocked, nil
}

// ConditionProgress shows one badge condition against the user's count.
type ConditionProgress struct {
	ActivityType  domain.ActivityType `json:"activity_type"`
	RequiredCount int                 `json:"required_count"`
	CurrentCount  int                 `json:"current_count"`
}

// AchievementProgress is an achievement annotated for read views.
type AchievementProgress struct {
	domain.Achievement
	Unlocked   bool                `json:"unlocked"`
	UnlockedAt *time.Time          `json:"unlocked_at,omitempty"`
	Progress   []ConditionProgress `json:"progress,omitempty"`
}

// Progress lists every active achievement with unlock state and counts.
func (s *AchievementService) Progress(ctx context.Context, tx *store.Tx, userID string) ([]AchievementProgress, error) {
	defs, err := tx.Achievements(ctx, true)
	if err != nil {
		return nil, err
	}
	have, err := tx.UserAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}
	_, counts, err := userTotals(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]AchievementProgress, len(defs))
	for i, def := range defs {
		p := AchievementProgress{Achievement: def}
		if at, ok := have[def.ID]; ok {
			p.Unlocked = true
			p.UnlockedAt = &at
		}
		for _, c := range def.Conditions {
			p.Progress = append(p.Progress, ConditionProgress{
				ActivityType:  c.ActivityType,
				RequiredCount: c.RequiredCount,
				CurrentCount:  counts[c.ActivityType],
			})
		}
		out[i] = p
	}
	return out, nil
}

func userTotals(ctx context.Context, tx *store.Tx, userID string) (int64, map[domain.ActivityType]int, error) {
	total, err := tx.TotalPoints(ctx, userID)
	if err != nil {
		return 0, nil, fmt.Errorf("total points: %w", err)
	}
	rows, err := tx.ActivityCounts(ctx, userID)
	if err != nil {
		return 0, nil, fmt.Errorf("activity counts: %w", err)
	}
	counts := make(map[domain.ActivityType]int, len(rows))
	for _, r := range rows {
		counts[r.ActivityType] = r.TotalCount
	}
	return total, counts, nil
}

func pointGate(a domain.Achievement) int64 {
	if a.PointsRequired > 0 {
		return a.PointsRequired
	}
	if a.MinPointsThreshold != nil {
		return *a.MinPointsThreshold
	}
	return 0
}
