package catalog

import (
	"context"
	"fmt"

	"github.com/tutu-network/breathe/internal/domain"
	"github.com/tutu-network/breathe/internal/infra/store"
)

func f64(v float64) *float64 { return &v }
func days(v int) *int        { return &v }

// Default is the built-in reference data for a fresh install: the
// smoking challenge with its milestones and health-risk fade table, the
// seeded observation categories, and a starter reward and badge set.
// Operators replace or extend it with `breathe catalog import`.
func Default() *File {
	return &File{
		Categories: []categoryEntry{
			{Key: "cigarette_count", Label: "Cigarettes smoked", Unit: "cigarettes", Kind: domain.KindNumeric, Min: f64(0), IsActive: true},
			{Key: "craving", Label: "Craving intensity", Kind: domain.KindScale, Min: f64(0), Max: f64(10), IsActive: true},
			{Key: "mood", Label: "Mood", Kind: domain.KindScale, Min: f64(1), Max: f64(10), IsActive: true},
			{Key: "weight", Label: "Weight", Unit: "kg", Kind: domain.KindNumeric, Min: f64(1), IsActive: true},
			{Key: "note", Label: "Note", Kind: domain.KindText, IsActive: true},
		},
		ChallengeTypes: []challengeTypeEntry{
			{
				ID:                 "smoking",
				Name:               "Quit smoking",
				Description:        "Track, reduce, and quit cigarettes.",
				DefaultMode:        domain.ModeTracking,
				PrimaryCategory:    "cigarette_count",
				RequiredCategories: []string{"cigarette_count"},
				ShowStreak:         true,
				ShowHealthRisks:    true,
				IsActive:           true,
			},
		},
		Milestones: []milestoneEntry{
			{ID: "smoking-day-1", ChallengeTypeID: "smoking", Name: "First smoke-free day", DaysRequired: days(1), PointsAwarded: 10, DisplayOrder: 1, IsActive: true},
			{ID: "smoking-day-3", ChallengeTypeID: "smoking", Name: "Three days", Description: "Nicotine is out of your body.", DaysRequired: days(3), PointsAwarded: 20, DisplayOrder: 2, IsActive: true},
			{ID: "smoking-week-1", ChallengeTypeID: "smoking", Name: "One week", DaysRequired: days(7), PointsAwarded: 50, DisplayOrder: 3, IsActive: true},
			{ID: "smoking-month-1", ChallengeTypeID: "smoking", Name: "One month", DaysRequired: days(30), PointsAwarded: 150, DisplayOrder: 4, IsActive: true},
			{ID: "smoking-month-3", ChallengeTypeID: "smoking", Name: "Three months", DaysRequired: days(90), PointsAwarded: 300, DisplayOrder: 5, IsActive: true},
			{ID: "smoking-year-1", ChallengeTypeID: "smoking", Name: "One year", DaysRequired: days(365), PointsAwarded: 1000, DisplayOrder: 6, IsActive: true},
		},
		HealthRisks: []domain.HealthRisk{
			{ID: "smoking-carbon-monoxide", ChallengeTypeID: "smoking", Name: "Carbon monoxide", Description: "Blood carbon monoxide returns to normal.", FadeStartDays: 0, FadeEndDays: 2, DisplayOrder: 1},
			{ID: "smoking-taste-smell", ChallengeTypeID: "smoking", Name: "Taste and smell", FadeStartDays: 1, FadeEndDays: 14, DisplayOrder: 2},
			{ID: "smoking-circulation", ChallengeTypeID: "smoking", Name: "Circulation", FadeStartDays: 14, FadeEndDays: 90, DisplayOrder: 3},
			{ID: "smoking-lung-function", ChallengeTypeID: "smoking", Name: "Lung function", FadeStartDays: 30, FadeEndDays: 270, DisplayOrder: 4},
			{ID: "smoking-heart-disease", ChallengeTypeID: "smoking", Name: "Coronary heart disease", FadeStartDays: 90, FadeEndDays: 365, DisplayOrder: 5},
			{ID: "smoking-stroke", ChallengeTypeID: "smoking", Name: "Stroke", FadeStartDays: 365, FadeEndDays: 1825, DisplayOrder: 6},
			{ID: "smoking-lung-cancer", ChallengeTypeID: "smoking", Name: "Lung cancer", FadeStartDays: 365, FadeEndDays: 3650, DisplayOrder: 7},
		},
		RewardRules: []rewardRuleEntry{
			{ActivityType: domain.ActivityDailyCheckin, Points: 5, Frequency: domain.FrequencyDaily, Description: "Daily check-in", IsActive: true},
			{ActivityType: domain.ActivityObservation, Points: 2, Frequency: domain.FrequencyDaily, Description: "Logged an observation", IsActive: true},
			{ActivityType: domain.ActivityQuestionnaire, Points: 25, Frequency: domain.FrequencyPerEvent, Description: "Completed a questionnaire", IsActive: true},
			{ActivityType: domain.ActivityEducation, Points: 15, Frequency: domain.FrequencyPerEvent, Description: "Finished an education module", IsActive: true},
			{ActivityType: domain.ActivityDocumentUpload, Points: 20, Frequency: domain.FrequencyPerEvent, Description: "Uploaded a document", IsActive: true},
			{ActivityType: domain.ActivityChallengeJoined, Points: 10, Frequency: domain.FrequencyPerEvent, Description: "Joined a challenge", IsActive: true},
			{ActivityType: domain.ActivityProfileCompleted, Points: 30, Frequency: domain.FrequencyOnceTotal, Description: "Completed the profile", IsActive: true},
		},
		Achievements: []achievementEntry{
			{ID: "first-steps", Name: "First steps", Icon: "footprints", PointsRequired: 50, IsActive: true},
			{ID: "committed", Name: "Committed", Icon: "calendar-check", Conditions: []domain.BadgeCondition{{ActivityType: domain.ActivityDailyCheckin, RequiredCount: 7}}, IsActive: true},
			{ID: "scholar", Name: "Scholar", Icon: "book", PointsRequired: 100, Conditions: []domain.BadgeCondition{{ActivityType: domain.ActivityQuestionnaire, RequiredCount: 3}}, IsActive: true},
			{ID: "centurion", Name: "Centurion", Icon: "trophy", PointsRequired: 1000, IsActive: true},
		},
	}
}

// Seed applies Default when the store holds no challenge types yet.
// It reports whether anything was written.
func Seed(ctx context.Context, db *store.DB) (bool, error) {
	var existing []domain.ChallengeType
	if err := db.View(ctx, func(tx *store.Tx) (err error) {
		existing, err = tx.ChallengeTypes(ctx)
		return err
	}); err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	if _, err := Apply(ctx, db, Default()); err != nil {
		return false, fmt.Errorf("seed catalog: %w", err)
	}
	return true, nil
}
