package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riskguard/platform/internal/domain"
)

var sessionColumns = []string{
	"token", "principal_id", "device_id", "source_address", "created_at", "last_seen_at", "active",
}

const sessionSelect = `SELECT token, principal_id, device_id, source_address, created_at, last_seen_at, active
	FROM user_sessions`

type sessionRepo struct{}

// NewSessionRepository returns a pgx-backed SessionRepository.
func NewSessionRepository() SessionRepository {
	return &sessionRepo{}
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	s := &domain.Session{}
	err := row.Scan(&s.Token, &s.PrincipalID, &s.DeviceID, &s.SourceAddress, &s.CreatedAt, &s.LastSeenAt, &s.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func collectSessions(rows pgx.Rows) ([]domain.Session, error) {
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.Token, &s.PrincipalID, &s.DeviceID, &s.SourceAddress, &s.CreatedAt, &s.LastSeenAt, &s.Active); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *sessionRepo) Insert(ctx context.Context, db DBTX, s *domain.Session) error {
	_, err := db.Exec(ctx, `
		INSERT INTO user_sessions (token, principal_id, device_id, source_address, created_at, last_seen_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, true)`,
		s.Token, s.PrincipalID, s.DeviceID, s.SourceAddress, s.CreatedAt, s.LastSeenAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *sessionRepo) FindByToken(ctx context.Context, db DBTX, token string) (*domain.Session, error) {
	return scanSession(db.QueryRow(ctx, sessionSelect+` WHERE token = $1`, token))
}

func (r *sessionRepo) CountActive(ctx context.Context, db DBTX, principalID uuid.UUID) (int, error) {
	var n int
	err := db.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_sessions WHERE principal_id = $1 AND active`, principalID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return n, nil
}

func (r *sessionRepo) ListActive(ctx context.Context, db DBTX, principalID uuid.UUID) ([]domain.Session, error) {
	rows, err := db.Query(ctx, sessionSelect+` WHERE principal_id = $1 AND active ORDER BY seq ASC`, principalID)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return collectSessions(rows)
}

func (r *sessionRepo) Deactivate(ctx context.Context, db DBTX, principalID uuid.UUID, token string) (bool, error) {
	tag, err := db.Exec(ctx,
		`UPDATE user_sessions SET active = false
		 WHERE token = $1 AND principal_id = $2 AND active`, token, principalID)
	if err != nil {
		return false, fmt.Errorf("deactivate session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *sessionRepo) DeactivateByToken(ctx context.Context, db DBTX, token string) (*domain.Session, error) {
	s, err := scanSession(db.QueryRow(ctx, `
		UPDATE user_sessions SET active = false
		WHERE token = $1 AND active
		RETURNING token, principal_id, device_id, source_address, created_at, last_seen_at, active`, token))
	if err != nil {
		return nil, fmt.Errorf("deactivate session by token: %w", err)
	}
	return s, nil
}

func (r *sessionRepo) Touch(ctx context.Context, db DBTX, token string, at time.Time) error {
	_, err := db.Exec(ctx,
		`UPDATE user_sessions SET last_seen_at = $2 WHERE token = $1 AND active`, token, at)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func applySessionFilter(qb sq.SelectBuilder, filter domain.SessionFilter) sq.SelectBuilder {
	if filter.PrincipalID != nil {
		qb = qb.Where(sq.Eq{"principal_id": *filter.PrincipalID})
	}
	if filter.ActiveOnly {
		qb = qb.Where(sq.Eq{"active": true})
	}
	return qb
}

func (r *sessionRepo) Search(ctx context.Context, db DBTX, filter domain.SessionFilter) ([]domain.Session, error) {
	qb := applySessionFilter(psq.Select(sessionColumns...).From("user_sessions"), filter)
	qb = qb.OrderBy("seq DESC")
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		qb = qb.Offset(uint64(filter.Offset))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build session search: %w", err)
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search sessions: %w", err)
	}
	return collectSessions(rows)
}
