package policy

import (
	"context"

	"github.com/riskguard/platform/internal/domain"
)

// Coordinates are optional client-reported coordinates supplied at login.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationGate decides whether a login from the given coordinates may proceed.
// coords is nil when the client did not report a position.
type LocationGate interface {
	Allow(ctx context.Context, p *domain.Principal, coords *Coordinates) (bool, error)
}

// AllowAllLocations is the default gate.
type AllowAllLocations struct{}

func (AllowAllLocations) Allow(context.Context, *domain.Principal, *Coordinates) (bool, error) {
	return true, nil
}

// LoginStatus holds the results of the pre-session login checks.
type LoginStatus struct {
	AccountActive   bool `json:"account_active"`
	LocationAllowed bool `json:"location_allowed"`
	Privileged      bool `json:"privileged"`
}

// EvaluateLoginPolicy runs the blocking login checks. Privileged principals
// bypass the location gate.
func EvaluateLoginPolicy(ctx context.Context, p *domain.Principal, gate LocationGate, coords *Coordinates) (LoginStatus, error) {
	status := LoginStatus{
		AccountActive:   !p.Locked,
		LocationAllowed: true,
		Privileged:      p.Privileged,
	}
	if p.Privileged || gate == nil {
		return status, nil
	}
	allowed, err := gate.Allow(ctx, p, coords)
	if err != nil {
		return status, err
	}
	status.LocationAllowed = allowed
	return status, nil
}

// IsLoginCleared returns true if all login checks pass.
func (s LoginStatus) IsLoginCleared() bool {
	return s.AccountActive && s.LocationAllowed
}
