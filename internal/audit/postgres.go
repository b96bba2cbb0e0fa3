package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riskguard/platform/internal/domain"
	"github.com/riskguard/platform/internal/repository"
)

// Pool is the subset of pgxpool.Pool used by PgLog.
type Pool interface {
	repository.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgLog writes events to risk_events and mirrors them onto the outbox in one transaction.
type PgLog struct {
	pool   Pool
	events repository.RiskEventRepository
	outbox repository.OutboxRepository
	logger *slog.Logger
}

var _ EventLog = (*PgLog)(nil)

func NewPgLog(pool Pool, events repository.RiskEventRepository, outbox repository.OutboxRepository, logger *slog.Logger) *PgLog {
	return &PgLog{pool: pool, events: events, outbox: outbox, logger: logger}
}

// Record persists ev. A failure is logged and swallowed.
func (l *PgLog) Record(ctx context.Context, ev domain.EnforcementEvent) {
	ctx = context.WithoutCancel(ctx)
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	if err := l.write(ctx, &ev); err != nil {
		l.logger.Error("audit write failed",
			"principal_id", ev.PrincipalID,
			"action", ev.Action,
			"active_sessions", ev.ActiveSessions,
			"error", err,
		)
	}
}

func (l *PgLog) write(ctx context.Context, ev *domain.EnforcementEvent) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := l.events.Insert(ctx, tx, ev); err != nil {
		return err
	}
	if err := l.outbox.Insert(ctx, tx, domain.NewRiskEnforcedEvent(*ev)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Recent returns the principal's events, newest first.
func (l *PgLog) Recent(ctx context.Context, principalID uuid.UUID, limit int) ([]domain.EnforcementEvent, error) {
	events, err := l.events.Recent(ctx, l.pool, principalID, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	return events, nil
}
