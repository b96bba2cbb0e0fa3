package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riskguard/platform/internal/domain"
	"github.com/riskguard/platform/internal/repository"
)

// PgStore implements Store on PostgreSQL. The principal row lock
// (SELECT ... FOR UPDATE) is the per-principal serialization point.
type PgStore struct {
	pool       *pgxpool.Pool
	principals repository.PrincipalRepository
	sessions   repository.SessionRepository
	outbox     repository.OutboxRepository
}

var _ Store = (*PgStore)(nil)

// NewPgStore creates a Postgres-backed session store.
func NewPgStore(pool *pgxpool.Pool, principals repository.PrincipalRepository, sessions repository.SessionRepository, outbox repository.OutboxRepository) *PgStore {
	return &PgStore{pool: pool, principals: principals, sessions: sessions, outbox: outbox}
}

// Within opens a transaction, locks the principal and commits after fn.
func (s *PgStore) Within(ctx context.Context, principalID uuid.UUID, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	p, err := s.principals.LockForUpdate(ctx, tx, principalID)
	if err != nil {
		return err
	}
	if p == nil {
		return domain.ErrPrincipalNotFound(principalID.String())
	}

	if err := fn(&pgTx{store: s, tx: tx, principalID: principalID}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PgStore) FindByToken(ctx context.Context, token string) (*domain.Session, error) {
	return s.sessions.FindByToken(ctx, s.pool, token)
}

func (s *PgStore) CountActive(ctx context.Context, principalID uuid.UUID) (int, error) {
	return s.sessions.CountActive(ctx, s.pool, principalID)
}

func (s *PgStore) ListActive(ctx context.Context, principalID uuid.UUID) ([]domain.Session, error) {
	return s.sessions.ListActive(ctx, s.pool, principalID)
}

// Deactivate flips the token and emits session.revoked in the same transaction.
func (s *PgStore) Deactivate(ctx context.Context, token string) (*domain.Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	sess, err := s.sessions.DeactivateByToken(ctx, tx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewSessionRevokedEvent(sess.PrincipalID, sess.Token)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return sess, nil
}

func (s *PgStore) Touch(ctx context.Context, token string, at time.Time) error {
	return s.sessions.Touch(ctx, s.pool, token, at)
}

func (s *PgStore) Search(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	return s.sessions.Search(ctx, s.pool, filter)
}

type pgTx struct {
	store       *PgStore
	tx          pgx.Tx
	principalID uuid.UUID
}

func (t *pgTx) Insert(ctx context.Context, sess *domain.Session) error {
	if err := t.store.sessions.Insert(ctx, t.tx, sess); err != nil {
		return err
	}
	return t.store.outbox.Insert(ctx, t.tx, domain.NewSessionCreatedEvent(sess))
}

func (t *pgTx) CountActive(ctx context.Context) (int, error) {
	return t.store.sessions.CountActive(ctx, t.tx, t.principalID)
}

func (t *pgTx) ListActive(ctx context.Context) ([]domain.Session, error) {
	return t.store.sessions.ListActive(ctx, t.tx, t.principalID)
}

// Deactivate runs inside a savepoint so one failing row does not poison
// the enclosing transaction.
func (t *pgTx) Deactivate(ctx context.Context, token string) (bool, error) {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("savepoint: %w", err)
	}

	changed, err := t.store.sessions.Deactivate(ctx, sp, t.principalID, token)
	if err == nil && changed {
		err = t.store.outbox.Insert(ctx, sp, domain.NewSessionRevokedEvent(t.principalID, token))
	}
	if err != nil {
		_ = sp.Rollback(ctx)
		return false, err
	}
	if err := sp.Commit(ctx); err != nil {
		return false, fmt.Errorf("release savepoint: %w", err)
	}
	return changed, nil
}
