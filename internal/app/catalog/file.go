package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tutu-network/breathe/internal/domain"
	"github.com/tutu-network/breathe/internal/infra/metrics"
	"github.com/tutu-network/breathe/internal/infra/store"
)

// File is the YAML shape of a reference-data catalog. Entries are
// upserted by id; anything absent from the file is left untouched.
// is_active defaults to true when omitted.
type File struct {
	Categories     []categoryEntry      `yaml:"categories"`
	ChallengeTypes []challengeTypeEntry `yaml:"challenge_types"`
	Milestones     []milestoneEntry     `yaml:"milestones"`
	HealthRisks    []domain.HealthRisk  `yaml:"health_risks"`
	RewardRules    []rewardRuleEntry    `yaml:"reward_rules"`
	Achievements   []achievementEntry   `yaml:"achievements"`
}

type (
	categoryEntry      store.CategoryRecord
	challengeTypeEntry domain.ChallengeType
	milestoneEntry     domain.Milestone
	rewardRuleEntry    domain.RewardRule
	achievementEntry   domain.Achievement
)

func (e *categoryEntry) UnmarshalYAML(n *yaml.Node) error {
	type raw categoryEntry
	r := raw{IsActive: true}
	if err := n.Decode(&r); err != nil {
		return err
	}
	*e = categoryEntry(r)
	return nil
}

func (e *challengeTypeEntry) UnmarshalYAML(n *yaml.Node) error {
	type raw challengeTypeEntry
	r := raw{IsActive: true}
	if err := n.Decode(&r); err != nil {
		return err
	}
	*e = challengeTypeEntry(r)
	return nil
}

func (e *milestoneEntry) UnmarshalYAML(n *yaml.Node) error {
	type raw milestoneEntry
	r := raw{IsActive: true}
	if err := n.Decode(&r); err != nil {
		return err
	}
	*e = milestoneEntry(r)
	return nil
}

func (e *rewardRuleEntry) UnmarshalYAML(n *yaml.Node) error {
	type raw rewardRuleEntry
	r := raw{IsActive: true}
	if err := n.Decode(&r); err != nil {
		return err
	}
	*e = rewardRuleEntry(r)
	return nil
}

func (e *achievementEntry) UnmarshalYAML(n *yaml.Node) error {
	type raw achievementEntry
	r := raw{IsActive: true}
	if err := n.Decode(&r); err != nil {
		return err
	}
	*e = achievementEntry(r)
	return nil
}

// Summary counts the entries applied by one import.
type Summary struct {
	Categories     int `json:"categories"`
	ChallengeTypes int `json:"challenge_types"`
	Milestones     int `json:"milestones"`
	HealthRisks    int `json:"health_risks"`
	RewardRules    int `json:"reward_rules"`
	Achievements   int `json:"achievements"`
}

// Parse decodes and validates a catalog document. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parse catalog: %v", domain.ErrValidation, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads and parses a catalog file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Validate checks every entry. All problems are reported together.
func (f *File) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{domain.ErrValidation}, args...)...))
	}

	for _, c := range f.Categories {
		if c.Key == "" {
			bad("category without key")
			continue
		}
		if _, err := domain.NewCategory(c.Key, c.Label, c.Unit, c.Kind, c.Min, c.Max); err != nil {
			errs = append(errs, err)
		}
	}
	for _, ct := range f.ChallengeTypes {
		if ct.ID == "" {
			bad("challenge type without id")
			continue
		}
		if ct.DefaultMode != "" {
			if _, err := domain.ParseMode(string(ct.DefaultMode)); err != nil {
				bad("challenge type %s: default mode %q", ct.ID, ct.DefaultMode)
			}
		}
	}
	for _, m := range f.Milestones {
		if m.ID == "" || m.ChallengeTypeID == "" {
			bad("milestone needs id and challenge_type_id")
		}
		if m.PointsAwarded < 0 {
			bad("milestone %s: negative points", m.ID)
		}
		if m.DaysRequired != nil && *m.DaysRequired < 0 {
			bad("milestone %s: negative days_required", m.ID)
		}
	}
	for _, r := range f.HealthRisks {
		if r.ID == "" || r.ChallengeTypeID == "" {
			bad("health risk needs id and challenge_type_id")
		}
		if r.FadeStartDays < 0 || r.FadeStartDays >= r.FadeEndDays {
			bad("health risk %s: need 0 <= fade_start_days < fade_end_days", r.ID)
		}
	}
	for _, r := range f.RewardRules {
		if _, err := domain.ParseActivityType(string(r.ActivityType)); err != nil {
			errs = append(errs, err)
		}
		if r.Points <= 0 {
			bad("reward rule %s: points must be positive", r.ActivityType)
		}
		if !r.Frequency.Valid() {
			bad("reward rule %s: unknown frequency %q", r.ActivityType, r.Frequency)
		}
	}
	for _, a := range f.Achievements {
		if a.ID == "" {
			bad("achievement without id")
			continue
		}
		for _, c := range a.Conditions {
			if _, err := domain.ParseActivityType(string(c.ActivityType)); err != nil {
				errs = append(errs, fmt.Errorf("achievement %s: %w", a.ID, err))
			}
			if c.RequiredCount <= 0 {
				bad("achievement %s: required_count must be positive", a.ID)
			}
		}
	}
	return errors.Join(errs...)
}

// Summary counts the entries in f.
func (f *File) Summary() Summary {
	return Summary{
		Categories:     len(f.Categories),
		ChallengeTypes: len(f.ChallengeTypes),
		Milestones:     len(f.Milestones),
		HealthRisks:    len(f.HealthRisks),
		RewardRules:    len(f.RewardRules),
		Achievements:   len(f.Achievements),
	}
}

// Apply upserts every entry of f in one transaction.
func Apply(ctx context.Context, db *store.DB, f *File) (Summary, error) {
	var s Summary
	err := db.Update(ctx, "", func(tx *store.Tx) error {
		for _, c := range f.Categories {
			if err := tx.UpsertCategory(ctx, store.CategoryRecord(c)); err != nil {
				return err
			}
			s.Categories++
		}
		for _, ct := range f.ChallengeTypes {
			if err := tx.UpsertChallengeType(ctx, domain.ChallengeType(ct)); err != nil {
				return err
			}
			s.ChallengeTypes++
		}
		for _, m := range f.Milestones {
			if err := tx.UpsertMilestone(ctx, domain.Milestone(m)); err != nil {
				return err
			}
			s.Milestones++
		}
		for _, r := range f.HealthRisks {
			if err := tx.UpsertHealthRisk(ctx, r); err != nil {
				return err
			}
			s.HealthRisks++
		}
		for _, r := range f.RewardRules {
			if err := tx.UpsertRewardRule(ctx, domain.RewardRule(r)); err != nil {
				return err
			}
			s.RewardRules++
		}
		for _, a := range f.Achievements {
			if err := tx.UpsertAchievement(ctx, domain.Achievement(a)); err != nil {
				return err
			}
			s.Achievements++
		}
		return nil
	})
	return s, err
}

// Import loads path, applies it, and refreshes schema when non-nil.
func Import(ctx context.Context, db *store.DB, schema *Schema, path string) (s Summary, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.CatalogImports.WithLabelValues(result).Inc()
	}()

	f, err := Load(path)
	if err != nil {
		return Summary{}, err
	}
	s, err = Apply(ctx, db, f)
	if err != nil {
		return s, err
	}
	if schema != nil {
		if err := schema.Refresh(ctx, db); err != nil {
			return s, err
		}
	}
	slog.Info("catalog imported", "path", path,
		"categories", s.Categories, "challenge_types", s.ChallengeTypes,
		"milestones", s.Milestones, "health_risks", s.HealthRisks,
		"reward_rules", s.RewardRules, "achievements", s.Achievements)
	return s, nil
}
