package domain

import (
	"time"

	"github.com/google/uuid"
)

// RiskTier labels how close a principal is to its session cap.
type RiskTier string

const (
	RiskLow      RiskTier = "LOW"
	RiskMedium   RiskTier = "MEDIUM"
	RiskHigh     RiskTier = "HIGH"
	RiskCritical RiskTier = "CRITICAL"
)

// EnforcementAction is the action string carried by evaluations and events.
type EnforcementAction string

const (
	ActionNone                     EnforcementAction = "NONE"
	ActionOtherSessionsInvalidated EnforcementAction = "OTHER_SESSIONS_INVALIDATED"
)

// RiskEvaluation is a snapshot produced by one evaluation. It is never mutated after return.
type RiskEvaluation struct {
	PrincipalID           uuid.UUID         `json:"principal_id"`
	DisplayName           string            `json:"display_name"`
	ActiveSessions        int               `json:"active_sessions"`
	AllowedSessions       int               `json:"allowed_sessions"`
	RiskSignal            float64           `json:"risk_signal"`
	Tier                  RiskTier          `json:"risk_tier"`
	CapExceeded           bool              `json:"cap_exceeded"`
	AboveDisplayThreshold bool              `json:"above_display_threshold"`
	Action                EnforcementAction `json:"action"`
	Deactivated           int               `json:"deactivated"`
	Message               string            `json:"message"`
	EvaluatedAt           time.Time         `json:"evaluated_at"`
}

// EnforcementEvent is an append-only audit row in risk_events.
type EnforcementEvent struct {
	ID              uuid.UUID         `json:"id"`
	PrincipalID     uuid.UUID         `json:"principal_id"`
	DisplayName     string            `json:"display_name"`
	ActiveSessions  int               `json:"active_sessions"`
	AllowedSessions int               `json:"allowed_sessions"`
	RiskSignal      float64           `json:"risk_signal"`
	Action          EnforcementAction `json:"action"`
	Description     string            `json:"description"`
	OccurredAt      time.Time         `json:"occurred_at"`
}
