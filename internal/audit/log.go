// Package audit keeps the append-only trail of enforcement events.
package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/riskguard/platform/internal/domain"
)

const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 100
)

// EventLog records enforcement outcomes. Record never fails from the
// caller's point of view; persistence problems are logged by the
// implementation.
type EventLog interface {
	Record(ctx context.Context, ev domain.EnforcementEvent)
	Recent(ctx context.Context, principalID uuid.UUID, limit int) ([]domain.EnforcementEvent, error)
}

// ClampLimit maps a requested page size onto 1..MaxRecentLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	default:
		return limit
	}
}
