package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/riskguard/platform/internal/domain"
)

var riskEventColumns = []string{
	"id", "principal_id", "display_name", "active_sessions", "allowed_sessions",
	"risk_signal", "action", "description", "occurred_at",
}

type riskEventRepo struct{}

// NewRiskEventRepository returns a pgx-backed RiskEventRepository.
func NewRiskEventRepository() RiskEventRepository {
	return &riskEventRepo{}
}

func (r *riskEventRepo) Insert(ctx context.Context, db DBTX, ev *domain.EnforcementEvent) error {
	query, args, err := psq.Insert("risk_events").
		Columns(riskEventColumns...).
		Values(ev.ID, ev.PrincipalID, ev.DisplayName, ev.ActiveSessions, ev.AllowedSessions,
			ev.RiskSignal, string(ev.Action), ev.Description, ev.OccurredAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build risk event insert: %w", err)
	}
	if _, err := db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert risk event: %w", err)
	}
	return nil
}

// Recent returns the principal's events in insertion order, newest first.
// seq breaks ties between events sharing a timestamp.
func (r *riskEventRepo) Recent(ctx context.Context, db DBTX, principalID uuid.UUID, limit int) ([]domain.EnforcementEvent, error) {
	qb := psq.Select(riskEventColumns...).
		From("risk_events").
		Where("principal_id = ?", principalID).
		OrderBy("seq DESC")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent risk events: %w", err)
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent risk events: %w", err)
	}
	defer rows.Close()

	var events []domain.EnforcementEvent
	for rows.Next() {
		var ev domain.EnforcementEvent
		var action string
		if err := rows.Scan(&ev.ID, &ev.PrincipalID, &ev.DisplayName, &ev.ActiveSessions, &ev.AllowedSessions,
			&ev.RiskSignal, &action, &ev.Description, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan risk event: %w", err)
		}
		ev.Action = domain.EnforcementAction(action)
		events = append(events, ev)
	}
	return events, rows.Err()
}
