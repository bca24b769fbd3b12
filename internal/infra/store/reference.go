package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tutu-network/breathe/internal/domain"
)

// ─── Reference Data ─────────────────────────────────────────────────────────
// Reads serve the engine. Upserts exist for `breathe catalog import` and
// tests; the production source of truth is an external admin surface.

type challengeTypeRow struct {
	ID                 string `db:"id"`
	Name               string `db:"name"`
	Description        string `db:"description"`
	DefaultMode        string `db:"default_mode"`
	PrimaryCategory    string `db:"primary_category"`
	RequiredCategories string `db:"required_categories"`
	ShowStreak         bool   `db:"show_streak"`
	ShowHealthRisks    bool   `db:"show_health_risks"`
	IsActive           bool   `db:"is_active"`
}

func (r challengeTypeRow) toDomain() domain.ChallengeType {
	var required []string
	for _, c := range strings.Split(r.RequiredCategories, ",") {
		if c = strings.TrimSpace(c); c != "" {
			required = append(required, c)
		}
	}
	return domain.ChallengeType{
		ID:                 r.ID,
		Name:               r.Name,
		Description:        r.Description,
		DefaultMode:        domain.ChallengeMode(r.DefaultMode),
		PrimaryCategory:    r.PrimaryCategory,
		RequiredCategories: required,
		ShowStreak:         r.ShowStreak,
		ShowHealthRisks:    r.ShowHealthRisks,
		IsActive:           r.IsActive,
	}
}

const challengeTypeColumns = `id, name, description, default_mode, primary_category,
	required_categories, show_streak, show_health_risks, is_active`

// ChallengeType loads one challenge type.
func (t *Tx) ChallengeType(ctx context.Context, id string) (domain.ChallengeType, error) {
	var row challengeTypeRow
	err := t.get(ctx, &row, `SELECT `+challengeTypeColumns+` FROM challenge_types WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChallengeType{}, domain.ErrChallengeTypeNotFound
	}
	if err != nil {
		return domain.ChallengeType{}, err
	}
	return row.toDomain(), nil
}

// ChallengeTypes lists every challenge type.
func (t *Tx) ChallengeTypes(ctx context.Context) ([]domain.ChallengeType, error) {
	var rows []challengeTypeRow
	if err := t.sel(ctx, &rows, `SELECT `+challengeTypeColumns+` FROM challenge_types ORDER BY name, id`); err != nil {
		return nil, err
	}
	out := make([]domain.ChallengeType, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// UpsertChallengeType inserts or replaces a challenge type.
func (t *Tx) UpsertChallengeType(ctx context.Context, ct domain.ChallengeType) error {
	_, err := t.exec(ctx,
		`INSERT INTO challenge_types (`+challengeTypeColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name, description = excluded.description,
		   default_mode = excluded.default_mode, primary_category = excluded.primary_category,
		   required_categories = excluded.required_categories, show_streak = excluded.show_streak,
		   show_health_risks = excluded.show_health_risks, is_active = excluded.is_active`,
		ct.ID, ct.Name, ct.Description, string(ct.DefaultMode), ct.Primary(),
		strings.Join(ct.RequiredCategories, ","), ct.ShowStreak, ct.ShowHealthRisks, ct.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert challenge type %s: %w", ct.ID, err)
	}
	return nil
}

// ─── Observation Categories ─────────────────────────────────────────────────

// CategoryRecord is the flat storage shape of a category.
type CategoryRecord struct {
	Key      string              `db:"key" yaml:"key"`
	Label    string              `db:"label" yaml:"label"`
	Unit     string              `db:"unit" yaml:"unit"`
	Kind     domain.CategoryKind `db:"kind" yaml:"kind"`
	Min      *float64            `db:"min_value" yaml:"min"`
	Max      *float64            `db:"max_value" yaml:"max"`
	IsActive bool                `db:"is_active" yaml:"is_active"`
}

// Categories returns the active observation categories.
func (t *Tx) Categories(ctx context.Context) ([]CategoryRecord, error) {
	var rows []CategoryRecord
	err := t.sel(ctx, &rows,
		`SELECT key, label, unit, kind, min_value, max_value, is_active
		 FROM observation_categories WHERE is_active = TRUE ORDER BY key`)
	return rows, err
}

// UpsertCategory inserts or replaces a category.
func (t *Tx) UpsertCategory(ctx context.Context, c CategoryRecord) error {
	_, err := t.exec(ctx,
		`INSERT INTO observation_categories (key, label, unit, kind, min_value, max_value, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET
		   label = excluded.label, unit = excluded.unit, kind = excluded.kind,
		   min_value = excluded.min_value, max_value = excluded.max_value,
		   is_active = excluded.is_active`,
		c.Key, c.Label, c.Unit, string(c.Kind), floatArg(c.Min), floatArg(c.Max), c.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert category %s: %w", c.Key, err)
	}
	return nil
}

// ─── Milestones / Risks (writes) ────────────────────────────────────────────

// UpsertMilestone inserts or replaces a milestone.
func (t *Tx) UpsertMilestone(ctx context.Context, m domain.Milestone) error {
	var days any
	if m.DaysRequired != nil {
		days = *m.DaysRequired
	}
	_, err := t.exec(ctx,
		`INSERT INTO milestones (id, challenge_type_id, name, description, days_required,
		                         target_value, points_awarded, display_order, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   challenge_type_id = excluded.challenge_type_id, name = excluded.name,
		   description = excluded.description, days_required = excluded.days_required,
		   target_value = excluded.target_value, points_awarded = excluded.points_awarded,
		   display_order = excluded.display_order, is_active = excluded.is_active`,
		m.ID, m.ChallengeTypeID, m.Name, m.Description, days, floatArg(m.TargetValue),
		m.PointsAwarded, m.DisplayOrder, m.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert milestone %s: %w", m.ID, err)
	}
	return nil
}

// UpsertHealthRisk inserts or replaces a health risk.
func (t *Tx) UpsertHealthRisk(ctx context.Context, r domain.HealthRisk) error {
	_, err := t.exec(ctx,
		`INSERT INTO health_risks (id, challenge_type_id, name, description,
		                           fade_start_days, fade_end_days, display_order)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   challenge_type_id = excluded.challenge_type_id, name = excluded.name,
		   description = excluded.description, fade_start_days = excluded.fade_start_days,
		   fade_end_days = excluded.fade_end_days, display_order = excluded.display_order`,
		r.ID, r.ChallengeTypeID, r.Name, r.Description, r.FadeStartDays, r.FadeEndDays, r.DisplayOrder,
	)
	if err != nil {
		return fmt.Errorf("upsert health risk %s: %w", r.ID, err)
	}
	return nil
}

// ─── Reward Rules ───────────────────────────────────────────────────────────

type ruleRow struct {
	ActivityType string `db:"activity_type"`
	Points       int64  `db:"points"`
	Frequency    string `db:"frequency"`
	Description  string `db:"description"`
	IsActive     bool   `db:"is_active"`
}

func (r ruleRow) toDomain() domain.RewardRule {
	return domain.RewardRule{
		ActivityType: domain.ActivityType(r.ActivityType),
		Points:       r.Points,
		Frequency:    domain.RewardFrequency(r.Frequency),
		Description:  r.Description,
		IsActive:     r.IsActive,
	}
}

// RewardRule returns the rule for an activity type, or nil if none exists.
func (t *Tx) RewardRule(ctx context.Context, activity domain.ActivityType) (*domain.RewardRule, error) {
	var row ruleRow
	err := t.get(ctx, &row,
		`SELECT activity_type, points, frequency, description, is_active
		 FROM reward_rules WHERE activity_type = ?`, string(activity))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rule := row.toDomain()
	return &rule, nil
}

// RewardRules lists every rule.
func (t *Tx) RewardRules(ctx context.Context) ([]domain.RewardRule, error) {
	var rows []ruleRow
	if err := t.sel(ctx, &rows,
		`SELECT activity_type, points, frequency, description, is_active
		 FROM reward_rules ORDER BY activity_type`); err != nil {
		return nil, err
	}
	out := make([]domain.RewardRule, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// UpsertRewardRule inserts or replaces a rule.
func (t *Tx) UpsertRewardRule(ctx context.Context, r domain.RewardRule) error {
	_, err := t.exec(ctx,
		`INSERT INTO reward_rules (activity_type, points, frequency, description, is_active)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (activity_type) DO UPDATE SET
		   points = excluded.points, frequency = excluded.frequency,
		   description = excluded.description, is_active = excluded.is_active`,
		string(r.ActivityType), r.Points, string(r.Frequency), r.Description, r.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert reward rule %s: %w", r.ActivityType, err)
	}
	return nil
}

// UpsertAchievement inserts or replaces an achievement and replaces its
// badge conditions.
func (t *Tx) UpsertAchievement(ctx context.Context, a domain.Achievement) error {
	var threshold any
	if a.MinPointsThreshold != nil {
		threshold = *a.MinPointsThreshold
	}
	if _, err := t.exec(ctx,
		`INSERT INTO achievements (id, name, description, icon, points_required,
		                           min_points_threshold, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name, description = excluded.description, icon = excluded.icon,
		   points_required = excluded.points_required,
		   min_points_threshold = excluded.min_points_threshold, is_active = excluded.is_active`,
		a.ID, a.Name, a.Description, a.Icon, a.PointsRequired, threshold, a.IsActive,
	); err != nil {
		return fmt.Errorf("upsert achievement %s: %w", a.ID, err)
	}

	if _, err := t.exec(ctx, `DELETE FROM badge_conditions WHERE achievement_id = ?`, a.ID); err != nil {
		return fmt.Errorf("clear badge conditions %s: %w", a.ID, err)
	}
	for _, c := range a.Conditions {
		if _, err := t.exec(ctx,
			`INSERT INTO badge_conditions (achievement_id, activity_type, required_count) VALUES (?, ?, ?)`,
			a.ID, string(c.ActivityType), c.RequiredCount,
		); err != nil {
			return fmt.Errorf("insert badge condition %s/%s: %w", a.ID, c.ActivityType, err)
		}
	}
	return nil
}
