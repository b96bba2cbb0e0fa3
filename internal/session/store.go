package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/riskguard/platform/internal/domain"
)

// Store is the durable token -> session mapping behind the Registry.
type Store interface {
	// Within runs fn holding the principal's serialization point. Writes made
	// through tx are committed before Within returns; an error from fn
	// discards them.
	Within(ctx context.Context, principalID uuid.UUID, fn func(tx Tx) error) error

	// FindByToken returns the session for token, or nil if unknown.
	FindByToken(ctx context.Context, token string) (*domain.Session, error)

	CountActive(ctx context.Context, principalID uuid.UUID) (int, error)
	ListActive(ctx context.Context, principalID uuid.UUID) ([]domain.Session, error)

	// Deactivate marks token inactive and returns the session that changed,
	// or nil if it was unknown or already inactive.
	Deactivate(ctx context.Context, token string) (*domain.Session, error)

	Touch(ctx context.Context, token string, at time.Time) error
	Search(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error)
}

// Tx is a Store view scoped to one principal inside Within.
type Tx interface {
	Insert(ctx context.Context, s *domain.Session) error
	CountActive(ctx context.Context) (int, error)
	ListActive(ctx context.Context) ([]domain.Session, error)

	// Deactivate reports whether token was an active session of the scoped principal.
	Deactivate(ctx context.Context, token string) (bool, error)
}

// Directory resolves principals. A nil principal with a nil error means it does not exist.
type Directory interface {
	FindPrincipal(ctx context.Context, id uuid.UUID) (*domain.Principal, error)
}

// Terminator ends the live connections of a session token.
type Terminator interface {
	Terminate(ctx context.Context, token string) error
}

// TerminatorFunc adapts a function to Terminator.
type TerminatorFunc func(ctx context.Context, token string) error

func (f TerminatorFunc) Terminate(ctx context.Context, token string) error { return f(ctx, token) }

// NopTerminator is used when the host has no live-session layer.
var NopTerminator Terminator = TerminatorFunc(func(context.Context, string) error { return nil })
