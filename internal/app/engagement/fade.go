package engagement

import (
	"math"

	"github.com/tutu-network/breathe/internal/domain"
)

// Fade maps days since quit to a 0-100 risk-reduction percentage.
// Non-decreasing in days for a fixed risk.
func Fade(days int, risk domain.HealthRisk) int {
	if days < risk.FadeStartDays {
		return 0
	}
	if days >= risk.FadeEndDays {
		return 100
	}
	span := risk.FadeEndDays - risk.FadeStartDays
	if span <= 0 {
		return 100
	}
	pct := int(math.Round(100 * float64(days-risk.FadeStartDays) / float64(span)))
	return min(100, max(0, pct))
}

// RiskProgress is a health risk with its current fade.
type RiskProgress struct {
	domain.HealthRisk
	FadePercent int `json:"fade_percent"`
}

// RiskProgressFor evaluates every risk at the given day count.
func RiskProgressFor(days int, risks []domain.HealthRisk) []RiskProgress {
	out := make([]RiskProgress, len(risks))
	for i, r := range risks {
		out[i] = RiskProgress{HealthRisk: r, FadePercent: Fade(days, r)}
	}
	return out
}
