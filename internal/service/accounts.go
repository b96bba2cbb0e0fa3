package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/riskguard/platform/internal/audit"
	"github.com/riskguard/platform/internal/domain"
	"github.com/riskguard/platform/internal/repository"
)

// ErrDuplicatePrincipal is returned by Accounts.Create on a username or email clash.
var ErrDuplicatePrincipal = errors.New("principal already exists")

// Accounts is the principal store used by AuthService.
type Accounts interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Principal, error)
	FindByUsername(ctx context.Context, username string) (*domain.Principal, error)
	Create(ctx context.Context, p *domain.Principal) error
	Upsert(ctx context.Context, p *domain.Principal) (*domain.Principal, error)
}

// PgAccounts stores principals and emits principal.created onto the outbox
// in the same transaction.
type PgAccounts struct {
	pool       audit.Pool
	principals repository.PrincipalRepository
	outbox     repository.OutboxRepository
}

var _ Accounts = (*PgAccounts)(nil)

func NewPgAccounts(pool audit.Pool, principals repository.PrincipalRepository, outbox repository.OutboxRepository) *PgAccounts {
	return &PgAccounts{pool: pool, principals: principals, outbox: outbox}
}

func (a *PgAccounts) FindByID(ctx context.Context, id uuid.UUID) (*domain.Principal, error) {
	return a.principals.FindByID(ctx, a.pool, id)
}

func (a *PgAccounts) FindByUsername(ctx context.Context, username string) (*domain.Principal, error) {
	return a.principals.FindByUsername(ctx, a.pool, username)
}

func (a *PgAccounts) Create(ctx context.Context, p *domain.Principal) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := a.principals.Create(ctx, tx, p); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicatePrincipal
		}
		return fmt.Errorf("create principal: %w", err)
	}
	if err := a.outbox.Insert(ctx, tx, domain.NewPrincipalCreatedEvent(p)); err != nil {
		return fmt.Errorf("outbox insert: %w", err)
	}
	return tx.Commit(ctx)
}

// Upsert is used by the seeder. Only first inserts emit principal.created.
func (a *PgAccounts) Upsert(ctx context.Context, p *domain.Principal) (*domain.Principal, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	saved, err := a.principals.Upsert(ctx, tx, p)
	if err != nil {
		return nil, fmt.Errorf("upsert principal: %w", err)
	}
	if saved.ID == p.ID {
		if err := a.outbox.Insert(ctx, tx, domain.NewPrincipalCreatedEvent(saved)); err != nil {
			return nil, fmt.Errorf("outbox insert: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return saved, nil
}
