package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/breathe/internal/domain"
	"github.com/tutu-network/breathe/internal/infra/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

const sampleYAML = `
categories:
  - key: steps
    label: Steps walked
    kind: numeric
    min: 0
challenge_types:
  - id: walking
    name: Walk more
    default_mode: tracking
    primary_category: steps
milestones:
  - id: walking-10k
    challenge_type_id: walking
    name: Ten thousand
    target_value: 10000
    points_awarded: 40
health_risks:
  - id: walking-bp
    challenge_type_id: walking
    name: Blood pressure
    fade_start_days: 7
    fade_end_days: 60
reward_rules:
  - activity_type: education_module
    points: 12
    frequency: per_event
achievements:
  - id: walker
    name: Walker
    conditions:
      - activity_type: education_module
        required_count: 2
`

// ─── Parse / Validate ───────────────────────────────────────────────────────

func TestParse_DefaultsActive(t *testing.T) {
	f, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	require.Len(t, f.ChallengeTypes, 1)
	assert.True(t, f.ChallengeTypes[0].IsActive)
	assert.True(t, f.Categories[0].IsActive)
	assert.True(t, f.Milestones[0].IsActive)
	assert.True(t, f.RewardRules[0].IsActive)
	assert.True(t, f.Achievements[0].IsActive)
	assert.Equal(t, 10000.0, *f.Milestones[0].TargetValue)
}

func TestParse_ExplicitInactive(t *testing.T) {
	f, err := Parse([]byte("reward_rules:\n  - activity_type: daily_checkin\n    points: 5\n    frequency: daily\n    is_active: false\n"))
	require.NoError(t, err)
	assert.False(t, f.RewardRules[0].IsActive)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("challenge_typez:\n  - id: x\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	doc := `
health_risks:
  - id: r1
    challenge_type_id: smoking
    fade_start_days: 30
    fade_end_days: 10
reward_rules:
  - activity_type: dancing
    points: 0
    frequency: hourly
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "fade_start_days")
	assert.Contains(t, msg, "unknown activity type")
	assert.Contains(t, msg, "points must be positive")
	assert.Contains(t, msg, "hourly")
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

// ─── Apply / Seed / Import ──────────────────────────────────────────────────

func TestSeed_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	seeded, err := Seed(ctx, db)
	require.NoError(t, err)
	assert.True(t, seeded)

	seeded, err = Seed(ctx, db)
	require.NoError(t, err)
	assert.False(t, seeded)

	var risks []domain.HealthRisk
	require.NoError(t, db.View(ctx, func(tx *store.Tx) (err error) {
		risks, err = tx.HealthRisks(ctx, "smoking")
		return err
	}))
	assert.Len(t, risks, len(Default().HealthRisks))
}

func TestImport_AppliesAndRefreshes(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	schema := NewSchema()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	s, err := Import(ctx, db, schema, path)
	require.NoError(t, err)
	assert.Equal(t, Summary{Categories: 1, ChallengeTypes: 1, Milestones: 1, HealthRisks: 1, RewardRules: 1, Achievements: 1}, s)

	_, ok := schema.Lookup("steps")
	assert.True(t, ok)
	assert.True(t, schema.Loaded())

	var achievements []domain.Achievement
	require.NoError(t, db.View(ctx, func(tx *store.Tx) (err error) {
		achievements, err = tx.Achievements(ctx, true)
		return err
	}))
	require.Len(t, achievements, 1)
	require.Len(t, achievements[0].Conditions, 1)
	assert.Equal(t, 2, achievements[0].Conditions[0].RequiredCount)
}

func TestImport_MissingFile(t *testing.T) {
	_, err := Import(context.Background(), newTestDB(t), nil, filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// ─── Schema ─────────────────────────────────────────────────────────────────

func TestSchema_Validate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	_, err := Seed(ctx, db)
	require.NoError(t, err)

	schema := NewSchema()
	require.NoError(t, schema.Refresh(ctx, db))
	assert.Len(t, schema.Categories(), 5)

	zero := 0.0
	tests := []struct {
		name     string
		category string
		value    string
		numeric  *float64
		wantErr  error
		wantNum  *float64
	}{
		{"zero cigarettes", "cigarette_count", "", &zero, nil, &zero},
		{"cigarettes from text", "cigarette_count", "4", nil, nil, ptr(4)},
		{"negative cigarettes", "cigarette_count", "-1", nil, domain.ErrValueOutOfRange, nil},
		{"craving in scale", "craving", "7", nil, nil, ptr(7)},
		{"craving above scale", "craving", "11", nil, domain.ErrValueOutOfRange, nil},
		{"craving fractional", "craving", "2.5", nil, domain.ErrValueOutOfRange, nil},
		{"mood below scale", "mood", "0", nil, domain.ErrValueOutOfRange, nil},
		{"note text", "note", "felt fine", nil, nil, nil},
		{"empty note", "note", "   ", nil, domain.ErrValueRequired, nil},
		{"unknown category", "sleep", "8", nil, domain.ErrUnknownCategory, nil},
		{"not a number", "weight", "heavy", nil, domain.ErrValidation, nil},
		{"value agrees with numeric", "cigarette_count", "0.0", &zero, nil, &zero},
		{"value disagrees with numeric", "cigarette_count", "5", &zero, domain.ErrValueMismatch, nil},
		{"unparsable value with numeric", "cigarette_count", "none", &zero, domain.ErrValueMismatch, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, n, err := schema.Validate(tt.category, tt.value, tt.numeric)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.True(t, errors.Is(err, domain.ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNum, n)
		})
	}
}

func TestSchema_ValidateStoresCanonicalValue(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	_, err := Seed(ctx, db)
	require.NoError(t, err)
	schema := NewSchema()
	require.NoError(t, schema.Refresh(ctx, db))

	zero := 0.0
	value, n, err := schema.Validate("cigarette_count", "0.0", &zero)
	require.NoError(t, err)
	assert.Equal(t, "0", value)
	assert.Equal(t, 0.0, *n)

	value, _, err = schema.Validate("craving", " 07 ", nil)
	require.NoError(t, err)
	assert.Equal(t, "7", value)
}

func ptr(v float64) *float64 { return &v }

// ─── Watcher ────────────────────────────────────────────────────────────────

func TestWatcher_ReimportsOnChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	db := newTestDB(t)
	schema := NewSchema()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories: []\n"), 0o644))

	imported := make(chan error, 4)
	w, err := NewWatcher(path, db, schema, 50*time.Millisecond, func(_ Summary, err error) { imported <- err })
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	select {
	case err := <-imported:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not re-import")
	}
	_, ok := schema.Lookup("steps")
	assert.True(t, ok)

	cancel()
	require.NoError(t, <-done)
}
