package engagement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tutu-network/breathe/internal/app/credit"
	"github.com/tutu-network/breathe/internal/app/engagement"
	"github.com/tutu-network/breathe/internal/domain"
	"github.com/tutu-network/breathe/internal/infra/store"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var (
	ctx  = context.Background()
	base = time.Date(2026, 1, 10, 8, 30, 0, 0, time.UTC)
)

func zeroLog(day time.Time) domain.Observation {
	v := 0.0
	return domain.Observation{Category: "cigarette_count", Value: "0", NumericValue: &v, ObservationDate: day}
}

func countLog(day time.Time, n float64) domain.Observation {
	return domain.Observation{Category: "cigarette_count", Value: "n", NumericValue: &n, ObservationDate: day}
}

func tracking() domain.UserChallenge {
	return engagement.NewUserChallenge("uc-1", "u1",
		domain.ChallengeType{ID: "smoking", DefaultMode: domain.ModeTracking}, "", base, base)
}

// ═══════════════════════════════════════════════════════════════════════════
// Join / Days Since Quit
// ═══════════════════════════════════════════════════════════════════════════

func TestNewUserChallenge_DefaultMode(t *testing.T) {
	uc := tracking()
	if uc.Mode != domain.ModeTracking || uc.Status != domain.StatusActive {
		t.Errorf("got mode=%s status=%s", uc.Mode, uc.Status)
	}
	if uc.QuitDate != nil || uc.CurrentStreakDays != 0 {
		t.Errorf("tracking join should have no quit date and streak 0, got %+v", uc)
	}
}

func TestNewUserChallenge_Quitting(t *testing.T) {
	uc := engagement.NewUserChallenge("uc-1", "u1", domain.ChallengeType{ID: "smoking"}, domain.ModeQuitting, base, base)
	if uc.QuitDate == nil || !uc.QuitDate.Equal(domain.DateOf(base)) {
		t.Fatalf("quit date = %v, want today", uc.QuitDate)
	}
	if uc.CurrentStreakDays != 1 {
		t.Errorf("streak = %d, want 1", uc.CurrentStreakDays)
	}
	if got := engagement.DaysSinceQuit(uc, base); got != 1 {
		t.Errorf("DaysSinceQuit on quit day = %d, want 1", got)
	}
	if got := engagement.DaysSinceQuit(uc, base.AddDate(0, 0, 6)); got != 7 {
		t.Errorf("DaysSinceQuit after 6 days = %d, want 7", got)
	}
	if got := engagement.DaysSinceQuit(uc, base.AddDate(0, 0, -3)); got != 0 {
		t.Errorf("DaysSinceQuit before quit = %d, want 0", got)
	}
}

func TestDaysSinceQuit_NotQuitting(t *testing.T) {
	uc := tracking()
	quit := domain.DateOf(base)
	uc.QuitDate = &quit
	if got := engagement.DaysSinceQuit(uc, base.AddDate(0, 0, 30)); got != 0 {
		t.Errorf("DaysSinceQuit in tracking = %d, want 0", got)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Transitions
// ═══════════════════════════════════════════════════════════════════════════

func TestApplyObservation_ZeroStartsQuit(t *testing.T) {
	uc := tracking()
	tr := engagement.ApplyObservation(&uc, zeroLog(base), base)
	if tr == nil || tr.To != domain.ModeQuitting || tr.From != domain.ModeTracking {
		t.Fatalf("transition = %+v, want tracking->quitting", tr)
	}
	if uc.CurrentStreakDays != 1 {
		t.Errorf("streak = %d, want 1", uc.CurrentStreakDays)
	}

	// Next calendar day.
	if tr := engagement.ApplyObservation(&uc, zeroLog(base.AddDate(0, 0, 1)), base); tr != nil {
		t.Errorf("unexpected transition %+v", tr)
	}
	if uc.CurrentStreakDays != 2 {
		t.Errorf("streak = %d, want 2", uc.CurrentStreakDays)
	}
	if uc.LongestStreakDays != 2 {
		t.Errorf("longest = %d, want 2", uc.LongestStreakDays)
	}
}

func TestApplyObservation_SameDayAndBackdatedNoop(t *testing.T) {
	uc := tracking()
	engagement.ApplyObservation(&uc, zeroLog(base), base)
	engagement.ApplyObservation(&uc, zeroLog(base.AddDate(0, 0, 1)), base)

	engagement.ApplyObservation(&uc, zeroLog(base.AddDate(0, 0, 1)), base)
	engagement.ApplyObservation(&uc, zeroLog(base.AddDate(0, 0, -4)), base)
	if uc.CurrentStreakDays != 2 {
		t.Errorf("streak = %d, want 2 after duplicate and backdated logs", uc.CurrentStreakDays)
	}
}

func TestApplyObservation_GapRestartsStreak(t *testing.T) {
	uc := tracking()
	for i := 0; i < 4; i++ {
		engagement.ApplyObservation(&uc, zeroLog(base.AddDate(0, 0, i)), base)
	}
	engagement.ApplyObservation(&uc, zeroLog(base.AddDate(0, 0, 7)), base)

	if uc.CurrentStreakDays != 1 {
		t.Errorf("streak after gap = %d, want 1", uc.CurrentStreakDays)
	}
	if uc.LongestStreakDays != 4 {
		t.Errorf("longest = %d, want 4", uc.LongestStreakDays)
	}
	if !uc.QuitDate.Equal(domain.DateOf(base)) {
		t.Errorf("quit date moved to %v", uc.QuitDate)
	}
}

func TestApplyObservation_JoinedQuittingFirstZero(t *testing.T) {
	uc := engagement.NewUserChallenge("uc-1", "u1", domain.ChallengeType{ID: "smoking"}, domain.ModeQuitting, base, base)

	engagement.ApplyObservation(&uc, zeroLog(base), base)
	if uc.CurrentStreakDays != 1 {
		t.Errorf("zero on quit day: streak = %d, want 1", uc.CurrentStreakDays)
	}
	engagement.ApplyObservation(&uc, zeroLog(base.AddDate(0, 0, 1)), base)
	if uc.CurrentStreakDays != 2 {
		t.Errorf("zero day after quit: streak = %d, want 2", uc.CurrentStreakDays)
	}
}

func TestApplyObservation_Relapse(t *testing.T) {
	uc := tracking()
	for i := 0; i < 5; i++ {
		engagement.ApplyObservation(&uc, zeroLog(base.AddDate(0, 0, i)), base)
	}
	quit := *uc.QuitDate

	tr := engagement.ApplyObservation(&uc, countLog(base.AddDate(0, 0, 5), 3), base)
	if tr == nil || tr.To != domain.ModeReduction || !tr.Relapse {
		t.Fatalf("transition = %+v, want relapse to reduction", tr)
	}
	if uc.CurrentStreakDays != 0 {
		t.Errorf("streak = %d, want 0", uc.CurrentStreakDays)
	}
	if uc.LongestStreakDays != 5 {
		t.Errorf("longest = %d, want 5 preserved", uc.LongestStreakDays)
	}
	if uc.QuitDate == nil || !uc.QuitDate.Equal(quit) {
		t.Errorf("quit date = %v, want kept %v", uc.QuitDate, quit)
	}
	if got := engagement.DaysSinceQuit(uc, base.AddDate(0, 0, 5)); got != 0 {
		t.Errorf("DaysSinceQuit after relapse = %d, want 0", got)
	}

	// Re-quit sets a new quit date.
	re := base.AddDate(0, 0, 8)
	engagement.ApplyObservation(&uc, zeroLog(re), base)
	if uc.Mode != domain.ModeQuitting || !uc.QuitDate.Equal(domain.DateOf(re)) {
		t.Errorf("re-quit: mode=%s quit=%v", uc.Mode, uc.QuitDate)
	}
}

func TestApplyObservation_BackdatedRelapseIgnored(t *testing.T) {
	tests := []struct {
		name     string
		zeroDays int // consecutive zero logs starting at base
		logDay   time.Time
		streak   int
	}{
		{"before quit date", 1, base.AddDate(0, 0, -2), 1},
		{"inside current streak", 4, base.AddDate(0, 0, 1), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := tracking()
			for i := 0; i < tt.zeroDays; i++ {
				engagement.ApplyObservation(&uc, zeroLog(base.AddDate(0, 0, i)), base)
			}
			before := uc

			if tr := engagement.ApplyObservation(&uc, countLog(tt.logDay, 5), base); tr != nil {
				t.Errorf("backdated relapse produced %+v", tr)
			}
			if uc.Mode != domain.ModeQuitting || uc.CurrentStreakDays != tt.streak {
				t.Errorf("mode=%s streak=%d, want quitting/%d", uc.Mode, uc.CurrentStreakDays, tt.streak)
			}
			if uc.LastZeroLoggedAt == nil || !uc.LastZeroLoggedAt.Equal(*before.LastZeroLoggedAt) {
				t.Errorf("last zero changed: %v -> %v", before.LastZeroLoggedAt, uc.LastZeroLoggedAt)
			}
		})
	}
}

func TestApplyObservation_SameDayRelapse(t *testing.T) {
	uc := tracking()
	engagement.ApplyObservation(&uc, zeroLog(base), base)
	engagement.ApplyObservation(&uc, zeroLog(base.AddDate(0, 0, 1)), base)

	tr := engagement.ApplyObservation(&uc, countLog(base.AddDate(0, 0, 1), 3), base)
	if tr == nil || !tr.Relapse {
		t.Fatalf("transition = %+v, want relapse", tr)
	}
	if uc.Mode != domain.ModeReduction || uc.CurrentStreakDays != 0 {
		t.Errorf("mode=%s streak=%d, want reduction/0", uc.Mode, uc.CurrentStreakDays)
	}
}

func TestApplyObservation_Ignored(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*domain.UserChallenge)
		obs  domain.Observation
	}{
		{"paused", func(uc *domain.UserChallenge) { uc.Status = domain.StatusPaused }, zeroLog(base)},
		{"cancelled", func(uc *domain.UserChallenge) { uc.Status = domain.StatusCancelled }, zeroLog(base)},
		{"maintenance", func(uc *domain.UserChallenge) { uc.Mode = domain.ModeMaintenance }, zeroLog(base)},
		{"positive in tracking", func(*domain.UserChallenge) {}, countLog(base, 12)},
		{"no numeric value", func(*domain.UserChallenge) {}, domain.Observation{ObservationDate: base}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := tracking()
			tt.mut(&uc)
			before := uc
			if tr := engagement.ApplyObservation(&uc, tt.obs, base); tr != nil {
				t.Errorf("unexpected transition %+v", tr)
			}
			if uc.Mode != before.Mode || uc.CurrentStreakDays != before.CurrentStreakDays {
				t.Errorf("state changed: %+v", uc)
			}
		})
	}
}

func TestNextStatus(t *testing.T) {
	tests := []struct {
		from    domain.ChallengeStatus
		action  engagement.StatusAction
		want    domain.ChallengeStatus
		wantErr bool
	}{
		{domain.StatusActive, engagement.ActionPause, domain.StatusPaused, false},
		{domain.StatusPaused, engagement.ActionResume, domain.StatusActive, false},
		{domain.StatusActive, engagement.ActionResume, domain.StatusActive, true},
		{domain.StatusPaused, engagement.ActionPause, domain.StatusPaused, true},
		{domain.StatusPaused, engagement.ActionCancel, domain.StatusCancelled, false},
		{domain.StatusActive, engagement.ActionComplete, domain.StatusCompleted, false},
		{domain.StatusCancelled, engagement.ActionResume, domain.StatusCancelled, true},
		{domain.StatusCompleted, engagement.ActionCancel, domain.StatusCompleted, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			got, err := engagement.NextStatus(tt.from, tt.action)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidState) {
				t.Errorf("err = %v, want invalid state", err)
			}
			if got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Fade
// ═══════════════════════════════════════════════════════════════════════════

func TestFade(t *testing.T) {
	risk := domain.HealthRisk{FadeStartDays: 10, FadeEndDays: 30}
	tests := []struct {
		days int
		want int
	}{
		{0, 0}, {9, 0}, {10, 0}, {15, 25}, {20, 50}, {21, 55}, {29, 95}, {30, 100}, {400, 100},
	}
	for _, tt := range tests {
		if got := engagement.Fade(tt.days, risk); got != tt.want {
			t.Errorf("Fade(%d) = %d, want %d", tt.days, got, tt.want)
		}
	}
}

func TestFade_MonotonicAndBounded(t *testing.T) {
	risks := []domain.HealthRisk{
		{FadeStartDays: 0, FadeEndDays: 1},
		{FadeStartDays: 1, FadeEndDays: 3},
		{FadeStartDays: 2, FadeEndDays: 365},
		{FadeStartDays: 90, FadeEndDays: 5475},
	}
	for _, r := range risks {
		prev := -1
		for d := 0; d <= r.FadeEndDays+5; d++ {
			got := engagement.Fade(d, r)
			if got < 0 || got > 100 {
				t.Fatalf("Fade(%d, %+v) = %d out of bounds", d, r, got)
			}
			if got < prev {
				t.Fatalf("Fade decreased at day %d for %+v: %d < %d", d, r, got, prev)
			}
			prev = got
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Milestones
// ═══════════════════════════════════════════════════════════════════════════

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestReached(t *testing.T) {
	tests := []struct {
		name  string
		m     domain.Milestone
		days  int
		value *float64
		want  bool
	}{
		{"days met", domain.Milestone{DaysRequired: intPtr(7)}, 7, nil, true},
		{"days short", domain.Milestone{DaysRequired: intPtr(7)}, 6, nil, false},
		{"zero-day needs quit", domain.Milestone{DaysRequired: intPtr(0)}, 0, nil, false},
		{"value met", domain.Milestone{TargetValue: floatPtr(100)}, 0, floatPtr(120), true},
		{"value missing", domain.Milestone{TargetValue: floatPtr(100)}, 30, nil, false},
		{"both gates", domain.Milestone{DaysRequired: intPtr(3), TargetValue: floatPtr(5)}, 3, floatPtr(4), false},
		{"no gate", domain.Milestone{}, 100, floatPtr(1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engagement.Reached(tt.m, tt.days, tt.value); got != tt.want {
				t.Errorf("Reached = %v, want %v", got, tt.want)
			}
		})
	}
}

func seedMilestones(t *testing.T, db *store.DB) {
	t.Helper()
	err := db.Update(ctx, "", func(tx *store.Tx) error {
		if err := tx.UpsertChallengeType(ctx, domain.ChallengeType{ID: "smoking", Name: "Smoking", DefaultMode: domain.ModeTracking, IsActive: true}); err != nil {
			return err
		}
		if err := tx.UpsertMilestone(ctx, domain.Milestone{ID: "week-1", ChallengeTypeID: "smoking", Name: "One week", DaysRequired: intPtr(7), PointsAwarded: 50, IsActive: true}); err != nil {
			return err
		}
		return tx.UpsertMilestone(ctx, domain.Milestone{ID: "retired", ChallengeTypeID: "smoking", Name: "Old", DaysRequired: intPtr(1), PointsAwarded: 5, IsActive: false})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestMilestoneService_SevenDayScenario(t *testing.T) {
	db := testDB(t)
	seedMilestones(t, db)
	svc := engagement.NewMilestoneService(credit.NewService())

	uc := engagement.NewUserChallenge("uc-1", "u1", domain.ChallengeType{ID: "smoking"}, domain.ModeQuitting, base, base)
	if err := db.Update(ctx, "u1", func(tx *store.Tx) error { return tx.InsertUserChallenge(ctx, uc) }); err != nil {
		t.Fatalf("insert: %v", err)
	}

	evaluate := func(today time.Time) engagement.MilestoneResult {
		var res engagement.MilestoneResult
		if err := db.Update(ctx, "u1", func(tx *store.Tx) (err error) {
			res, err = svc.Evaluate(ctx, tx, uc, nil, today, today)
			return err
		}); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		return res
	}

	if res := evaluate(base.AddDate(0, 0, 5)); len(res.Unlocked) != 0 || res.DaysInChallenge != 6 {
		t.Errorf("day 6: %+v, want nothing unlocked", res)
	}
	res := evaluate(base.AddDate(0, 0, 6))
	if len(res.Unlocked) != 1 || res.Unlocked[0].ID != "week-1" || res.PointsAwarded != 50 {
		t.Fatalf("day 7: %+v, want week-1 with 50 points", res)
	}
	if res := evaluate(base.AddDate(0, 0, 6)); len(res.Unlocked) != 0 {
		t.Errorf("repeat: %+v, want nothing", res)
	}

	var total int64
	_ = db.View(ctx, func(tx *store.Tx) (err error) {
		total, err = tx.TotalPoints(ctx, "u1")
		return err
	})
	if total != 50 {
		t.Errorf("total = %d, want 50", total)
	}
}

func TestMilestoneService_PausedSkipsUnlocks(t *testing.T) {
	db := testDB(t)
	seedMilestones(t, db)
	svc := engagement.NewMilestoneService(credit.NewService())

	uc := engagement.NewUserChallenge("uc-1", "u1", domain.ChallengeType{ID: "smoking"}, domain.ModeQuitting, base, base)
	uc.Status = domain.StatusPaused
	_ = db.Update(ctx, "u1", func(tx *store.Tx) error { return tx.InsertUserChallenge(ctx, uc) })

	var res engagement.MilestoneResult
	_ = db.Update(ctx, "u1", func(tx *store.Tx) (err error) {
		res, err = svc.Evaluate(ctx, tx, uc, nil, base.AddDate(0, 0, 30), base)
		return err
	})
	if len(res.Unlocked) != 0 || res.DaysInChallenge != 31 {
		t.Errorf("paused: %+v", res)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievements
// ═══════════════════════════════════════════════════════════════════════════

func TestEligible(t *testing.T) {
	threshold := int64(40)
	counts := map[domain.ActivityType]int{domain.ActivityQuestionnaire: 2}
	tests := []struct {
		name  string
		a     domain.Achievement
		total int64
		want  bool
	}{
		{"points only met", domain.Achievement{PointsRequired: 100}, 150, true},
		{"points only short", domain.Achievement{PointsRequired: 100}, 99, false},
		{"threshold met", domain.Achievement{MinPointsThreshold: &threshold}, 40, true},
		{"threshold short", domain.Achievement{MinPointsThreshold: &threshold}, 39, false},
		{"conditions only", domain.Achievement{Conditions: []domain.BadgeCondition{{ActivityType: domain.ActivityQuestionnaire, RequiredCount: 2}}}, 0, true},
		{"condition short", domain.Achievement{PointsRequired: 100, Conditions: []domain.BadgeCondition{{ActivityType: domain.ActivityQuestionnaire, RequiredCount: 3}}}, 150, false},
		{"no gate", domain.Achievement{}, 1000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engagement.Eligible(tt.a, tt.total, counts); got != tt.want {
				t.Errorf("Eligible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAchievementService_PointsAndConditions(t *testing.T) {
	db := testDB(t)
	ledger := credit.NewService()
	svc := engagement.NewAchievementService()

	err := db.Update(ctx, "", func(tx *store.Tx) error {
		return tx.UpsertAchievement(ctx, domain.Achievement{
			ID: "scholar", Name: "Scholar", PointsRequired: 100, IsActive: true,
			Conditions: []domain.BadgeCondition{{ActivityType: domain.ActivityQuestionnaire, RequiredCount: 3}},
		})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rule := domain.RewardRule{ActivityType: domain.ActivityQuestionnaire, Points: 75, Frequency: domain.FrequencyPerEvent, IsActive: true}
	complete := func(ref string) []domain.UnlockedAchievement {
		var unlocked []domain.UnlockedAchievement
		if err := db.Update(ctx, "u1", func(tx *store.Tx) error {
			if _, err := ledger.Award(ctx, tx, "u1", rule, ref, "", base, base); err != nil {
				return err
			}
			var err error
			unlocked, err = svc.CheckAndUnlock(ctx, tx, "u1", base)
			return err
		}); err != nil {
			t.Fatalf("complete %s: %v", ref, err)
		}
		return unlocked
	}

	if got := complete("q1"); len(got) != 0 {
		t.Errorf("after 1: %+v", got)
	}
	if got := complete("q2"); len(got) != 0 {
		t.Errorf("after 2 (150 points): %+v, want locked", got)
	}
	got := complete("q3")
	if len(got) != 1 || got[0].ID != "scholar" || got[0].Points != 100 {
		t.Fatalf("after 3: %+v, want scholar", got)
	}
	if got := complete("q4"); len(got) != 0 {
		t.Errorf("after 4: %+v, want no re-unlock", got)
	}

	var progress []engagement.AchievementProgress
	_ = db.View(ctx, func(tx *store.Tx) (err error) {
		progress, err = svc.Progress(ctx, tx, "u1")
		return err
	})
	if len(progress) != 1 || !progress[0].Unlocked || progress[0].Progress[0].CurrentCount != 4 {
		t.Errorf("progress = %+v", progress)
	}
}
