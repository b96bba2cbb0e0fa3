package policy

import "github.com/riskguard/platform/internal/domain"

// Tier boundaries on the risk signal (percentage of the session cap).
const (
	LowTierMax    = 50.0
	MediumTierMax = 75.0
)

// SessionRiskResult holds the evaluated session-cardinality risk.
type SessionRiskResult struct {
	Signal                float64         `json:"signal"`
	Tier                  domain.RiskTier `json:"tier"`
	CapExceeded           bool            `json:"cap_exceeded"`
	AboveDisplayThreshold bool            `json:"above_display_threshold"`
}

// RiskSignal is active/allowed*100. A zero cap yields 0.
func RiskSignal(active, allowed int) float64 {
	if allowed == 0 {
		return 0
	}
	return float64(active) / float64(allowed) * 100
}

// CapExceeded is the only enforcement trigger: strictly more sessions than allowed.
func CapExceeded(active, allowed int) bool {
	return active > allowed
}

// ClassifyTier labels the risk. CRITICAL is reserved for an exceeded cap; below
// that the tier follows the percentage of capacity.
func ClassifyTier(active, allowed int) domain.RiskTier {
	if CapExceeded(active, allowed) {
		return domain.RiskCritical
	}
	pct := RiskSignal(active, allowed)
	switch {
	case pct <= LowTierMax:
		return domain.RiskLow
	case pct <= MediumTierMax:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

// EvaluateSessionRisk computes the signal, tier and cap check for a session count.
// displayThreshold only sets AboveDisplayThreshold; it never affects CapExceeded.
func EvaluateSessionRisk(active, allowed int, displayThreshold float64) SessionRiskResult {
	signal := RiskSignal(active, allowed)
	return SessionRiskResult{
		Signal:                signal,
		Tier:                  ClassifyTier(active, allowed),
		CapExceeded:           CapExceeded(active, allowed),
		AboveDisplayThreshold: signal >= displayThreshold,
	}
}
