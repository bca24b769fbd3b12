package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ─── Category Schema ────────────────────────────────────────────────────────
// Categories are loaded from reference data. Each carries exactly one
// schema variant; the set of variants is closed.

// CategoryKind tags the schema variant.
type CategoryKind string

const (
	KindNumeric CategoryKind = "numeric"
	KindScale   CategoryKind = "scale"
	KindText    CategoryKind = "text"
)

// CategorySchema validates and normalizes an incoming value.
// It returns the numeric value to store (nil for text categories).
type CategorySchema interface {
	Kind() CategoryKind
	Normalize(value string, numeric *float64) (string, *float64, error)
}

// NumericSchema accepts any finite number, optionally bounded.
type NumericSchema struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// ScaleSchema accepts integers within [Min, Max].
type ScaleSchema struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// TextSchema accepts any non-empty string.
type TextSchema struct {
	MaxLength int `json:"max_length,omitempty"`
}

func (NumericSchema) Kind() CategoryKind { return KindNumeric }
func (ScaleSchema) Kind() CategoryKind   { return KindScale }
func (TextSchema) Kind() CategoryKind    { return KindText }

// Normalize implements CategorySchema.
func (s NumericSchema) Normalize(value string, numeric *float64) (string, *float64, error) {
	n, err := resolveNumber(value, numeric)
	if err != nil {
		return "", nil, err
	}
	if s.Min != nil && n < *s.Min {
		return "", nil, fmt.Errorf("%w: %v < %v", ErrValueOutOfRange, n, *s.Min)
	}
	if s.Max != nil && n > *s.Max {
		return "", nil, fmt.Errorf("%w: %v > %v", ErrValueOutOfRange, n, *s.Max)
	}
	return formatNumber(n), &n, nil
}

// Normalize implements CategorySchema.
func (s ScaleSchema) Normalize(value string, numeric *float64) (string, *float64, error) {
	n, err := resolveNumber(value, numeric)
	if err != nil {
		return "", nil, err
	}
	if n != math.Trunc(n) {
		return "", nil, fmt.Errorf("%w: scale value must be a whole number", ErrValueOutOfRange)
	}
	if n < float64(s.Min) || n > float64(s.Max) {
		return "", nil, fmt.Errorf("%w: %v not in [%d, %d]", ErrValueOutOfRange, n, s.Min, s.Max)
	}
	return formatNumber(n), &n, nil
}

// Normalize implements CategorySchema.
func (s TextSchema) Normalize(value string, _ *float64) (string, *float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil, ErrValueRequired
	}
	if s.MaxLength > 0 && len(value) > s.MaxLength {
		return "", nil, fmt.Errorf("%w: text longer than %d", ErrValueOutOfRange, s.MaxLength)
	}
	return value, nil, nil
}

func resolveNumber(value string, numeric *float64) (float64, error) {
	if numeric != nil {
		if math.IsNaN(*numeric) || math.IsInf(*numeric, 0) {
			return 0, fmt.Errorf("%w: not a finite number", ErrValueOutOfRange)
		}
		if v := strings.TrimSpace(value); v != "" {
			if n, err := strconv.ParseFloat(v, 64); err != nil || n != *numeric {
				return 0, fmt.Errorf("%w: %q vs %v", ErrValueMismatch, v, *numeric)
			}
		}
		return *numeric, nil
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, ErrValueRequired
	}
	n, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrValidation, value)
	}
	return n, nil
}

// formatNumber renders the stored value so it always matches numeric_value.
func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// Category is one configured observation category.
type Category struct {
	Key    string         `json:"key"`
	Label  string         `json:"label"`
	Unit   string         `json:"unit,omitempty"`
	Schema CategorySchema `json:"schema"`
}

// Kind returns the schema variant tag.
func (c Category) Kind() CategoryKind {
	if c.Schema == nil {
		return KindText
	}
	return c.Schema.Kind()
}

// NewCategory builds a category from flat reference-data columns.
func NewCategory(key, label, unit string, kind CategoryKind, min, max *float64) (Category, error) {
	c := Category{Key: key, Label: label, Unit: unit}
	switch kind {
	case KindNumeric:
		c.Schema = NumericSchema{Min: min, Max: max}
	case KindScale:
		if min == nil || max == nil || *min > *max {
			return Category{}, fmt.Errorf("%w: scale category %q needs min <= max", ErrValidation, key)
		}
		c.Schema = ScaleSchema{Min: int(*min), Max: int(*max)}
	case KindText:
		c.Schema = TextSchema{}
	default:
		return Category{}, fmt.Errorf("%w: category %q has unknown kind %q", ErrValidation, key, kind)
	}
	return c, nil
}

// ─── Observations ───────────────────────────────────────────────────────────

// Observation is one self-reported measurement. Immutable once written.
type Observation struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Category        string    `json:"category"`
	Value           string    `json:"value"`
	NumericValue    *float64  `json:"numeric_value,omitempty"`
	Note            string    `json:"note,omitempty"`
	ObservationDate time.Time `json:"observation_date"`
	CreatedAt       time.Time `json:"created_at"`
}

// IsZero reports whether the observation carries a numeric zero.
func (o Observation) IsZero() bool {
	return o.NumericValue != nil && *o.NumericValue == 0
}
