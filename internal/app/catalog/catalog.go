// Package catalog holds the observation-category schemas in memory and
// loads reference data (challenge types, categories, milestones, health
// risks, reward rules, achievements) from YAML into the store.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tutu-network/breathe/internal/domain"
	"github.com/tutu-network/breathe/internal/infra/store"
)

// Schema is the in-memory registry of active observation categories.
// Observations are validated against it before they reach the store.
type Schema struct {
	mu         sync.RWMutex
	categories map[string]domain.Category
}

// NewSchema creates an empty registry. Call Refresh before use.
func NewSchema() *Schema {
	return &Schema{categories: make(map[string]domain.Category)}
}

// Refresh reloads the active categories from the store.
func (s *Schema) Refresh(ctx context.Context, db *store.DB) error {
	var records []store.CategoryRecord
	if err := db.View(ctx, func(tx *store.Tx) (err error) {
		records, err = tx.Categories(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("load categories: %w", err)
	}

	cats := make([]domain.Category, 0, len(records))
	for _, r := range records {
		c, err := domain.NewCategory(r.Key, r.Label, r.Unit, r.Kind, r.Min, r.Max)
		if err != nil {
			return err
		}
		cats = append(cats, c)
	}
	s.Set(cats)
	return nil
}

// Set replaces the registry contents.
func (s *Schema) Set(cats []domain.Category) {
	m := make(map[string]domain.Category, len(cats))
	for _, c := range cats {
		m[c.Key] = c
	}
	s.mu.Lock()
	s.categories = m
	s.mu.Unlock()
}

// Lookup returns the category registered under key.
func (s *Schema) Lookup(key string) (domain.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[key]
	return c, ok
}

// Categories returns every registered category sorted by key.
func (s *Schema) Categories() []domain.Category {
	s.mu.RLock()
	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Loaded reports whether at least one category is registered.
func (s *Schema) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.categories) > 0
}

// Validate checks value against the category's schema and returns the
// normalized value and the numeric value to store.
func (s *Schema) Validate(category, value string, numeric *float64) (string, *float64, error) {
	c, ok := s.Lookup(category)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, category)
	}
	v, n, err := c.Schema.Normalize(value, numeric)
	if err != nil {
		return "", nil, fmt.Errorf("category %s: %w", category, err)
	}
	return v, n, nil
}
