package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riskguard/platform/internal/domain"
)

const principalColumns = `id, username, email, password_hash, privileged, locked, created_at, updated_at`

// PgPrincipalRepository implements PrincipalRepository using pgx.
type PgPrincipalRepository struct{}

// NewPgPrincipalRepository creates a new PgPrincipalRepository.
func NewPgPrincipalRepository() *PgPrincipalRepository {
	return &PgPrincipalRepository{}
}

func scanPrincipal(row pgx.Row) (*domain.Principal, error) {
	p := &domain.Principal{}
	err := row.Scan(&p.ID, &p.Username, &p.Email, &p.PasswordHash, &p.Privileged, &p.Locked, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FindByID returns a principal by ID, or nil if not found.
func (r *PgPrincipalRepository) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Principal, error) {
	return scanPrincipal(db.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = $1`, id))
}

// FindByUsername returns a principal by username, or nil if not found.
func (r *PgPrincipalRepository) FindByUsername(ctx context.Context, db DBTX, username string) (*domain.Principal, error) {
	return scanPrincipal(db.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE username = $1`, username))
}

// LockForUpdate locks the principal row for the rest of the transaction.
func (r *PgPrincipalRepository) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Principal, error) {
	p, err := scanPrincipal(tx.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("lock principal: %w", err)
	}
	return p, nil
}

// Create inserts a new principal.
func (r *PgPrincipalRepository) Create(ctx context.Context, db DBTX, p *domain.Principal) error {
	_, err := db.Exec(ctx,
		`INSERT INTO principals (id, username, email, password_hash, privileged, locked)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Username, p.Email, p.PasswordHash, p.Privileged, p.Locked)
	return err
}

// Upsert inserts the principal or refreshes email, password and privilege of an existing username.
func (r *PgPrincipalRepository) Upsert(ctx context.Context, db DBTX, p *domain.Principal) (*domain.Principal, error) {
	return scanPrincipal(db.QueryRow(ctx,
		`INSERT INTO principals (id, username, email, password_hash, privileged, locked)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (username) DO UPDATE
		   SET email = EXCLUDED.email,
		       password_hash = EXCLUDED.password_hash,
		       privileged = EXCLUDED.privileged,
		       updated_at = now()
		 RETURNING `+principalColumns,
		p.ID, p.Username, p.Email, p.PasswordHash, p.Privileged, p.Locked))
}

// PrincipalDirectory resolves principals for the session registry.
type PrincipalDirectory struct {
	db   DBTX
	repo PrincipalRepository
}

// NewPrincipalDirectory creates a directory reading through db.
func NewPrincipalDirectory(db DBTX, repo PrincipalRepository) *PrincipalDirectory {
	return &PrincipalDirectory{db: db, repo: repo}
}

// FindPrincipal returns nil, nil when the principal does not exist.
func (d *PrincipalDirectory) FindPrincipal(ctx context.Context, id uuid.UUID) (*domain.Principal, error) {
	return d.repo.FindByID(ctx, d.db, id)
}
