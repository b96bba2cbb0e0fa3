package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/riskguard/platform/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PrincipalRepository provides access to principals.
type PrincipalRepository interface {
	// FindByID returns a principal by ID, or nil if absent.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Principal, error)

	// FindByUsername returns a principal by username, or nil if absent.
	FindByUsername(ctx context.Context, db DBTX, username string) (*domain.Principal, error)

	// LockForUpdate takes a row lock (SELECT FOR UPDATE) on the principal.
	// It is the per-principal serialization point for session writes.
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Principal, error)

	// Create inserts a new principal.
	Create(ctx context.Context, db DBTX, p *domain.Principal) error

	// Upsert inserts or updates a principal keyed by username.
	Upsert(ctx context.Context, db DBTX, p *domain.Principal) (*domain.Principal, error)
}

// SessionRepository provides access to user_sessions.
type SessionRepository interface {
	// Insert creates an active session row.
	Insert(ctx context.Context, db DBTX, s *domain.Session) error

	// FindByToken returns the session for a token, or nil if absent.
	FindByToken(ctx context.Context, db DBTX, token string) (*domain.Session, error)

	// CountActive counts active rows for a principal.
	CountActive(ctx context.Context, db DBTX, principalID uuid.UUID) (int, error)

	// ListActive returns active rows for a principal in insertion order.
	ListActive(ctx context.Context, db DBTX, principalID uuid.UUID) ([]domain.Session, error)

	// Deactivate flips one active row of the principal to inactive.
	// Reports false when the token is unknown, inactive or owned by someone else.
	Deactivate(ctx context.Context, db DBTX, principalID uuid.UUID, token string) (bool, error)

	// DeactivateByToken flips the row to inactive and returns it, or nil if it was not active.
	DeactivateByToken(ctx context.Context, db DBTX, token string) (*domain.Session, error)

	// Touch updates last_seen_at of an active row.
	Touch(ctx context.Context, db DBTX, token string, at time.Time) error

	// Search lists sessions matching an admin filter, newest first.
	Search(ctx context.Context, db DBTX, filter domain.SessionFilter) ([]domain.Session, error)
}

// RiskEventRepository provides access to risk_events.
type RiskEventRepository interface {
	// Insert appends an enforcement event.
	Insert(ctx context.Context, db DBTX, ev *domain.EnforcementEvent) error

	// Recent returns a principal's events, newest first.
	Recent(ctx context.Context, db DBTX, principalID uuid.UUID, limit int) ([]domain.EnforcementEvent, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the state change).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events for the outbox relay.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxRow, error)

	// MarkPublished deletes published events.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}
