// Package risk turns a principal's active session count into a decision
// and enforces the session cap.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riskguard/platform/internal/audit"
	"github.com/riskguard/platform/internal/domain"
	"github.com/riskguard/platform/internal/policy"
	"github.com/riskguard/platform/internal/session"
)

const (
	msgEnforced       = "Session limit exceeded. Other sessions have been invalidated."
	msgWithinLimits   = "Sessions are within acceptable limits."
	msgReadOnly       = "Current risk evaluation (read-only)."
	msgAllInvalidated = "All sessions have been invalidated."
	msgNothingActive  = "No active sessions to invalidate."
)

// Sessions is the registry surface the evaluator needs.
type Sessions interface {
	Principal(ctx context.Context, id uuid.UUID) (*domain.Principal, error)
	CountActive(ctx context.Context, principalID uuid.UUID) (int, error)
	WithPrincipal(ctx context.Context, principalID uuid.UUID, fn func(scope *session.Scope) error) error
}

// Evaluator computes session risk and deactivates sessions over the cap.
type Evaluator struct {
	cfg      Config
	sessions Sessions
	events   audit.EventLog
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewEvaluator creates an evaluator. metrics may be nil.
func NewEvaluator(cfg Config, sessions Sessions, events audit.EventLog, metrics *Metrics, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		cfg:      cfg,
		sessions: sessions,
		events:   events,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

func (e *Evaluator) Config() Config { return e.cfg }

// Evaluate counts the principal's active sessions and, when the cap is
// exceeded, deactivates every session except survivor and records an
// enforcement event. survivor may be domain.NoSurvivor.
//
// Once started, enforcement is not abandoned when ctx is cancelled.
func (e *Evaluator) Evaluate(ctx context.Context, principalID uuid.UUID, survivor string) (*domain.RiskEvaluation, error) {
	ctx = context.WithoutCancel(ctx)

	p, err := e.sessions.Principal(ctx, principalID)
	if err != nil {
		return nil, err
	}

	var eval *domain.RiskEvaluation
	err = e.sessions.WithPrincipal(ctx, principalID, func(scope *session.Scope) error {
		active, err := scope.CountActive(ctx)
		if err != nil {
			return fmt.Errorf("count active sessions: %w", err)
		}
		eval = e.assess(p, active)
		if !eval.CapExceeded {
			eval.Action = domain.ActionNone
			eval.Message = msgWithinLimits
			return nil
		}

		n, err := scope.DeactivateAllExcept(ctx, survivor)
		if err != nil {
			return err
		}
		eval.Action = domain.ActionOtherSessionsInvalidated
		eval.Deactivated = n
		eval.Message = msgEnforced
		return nil
	})
	if err != nil {
		return nil, err
	}

	if eval.CapExceeded {
		e.logger.Info("session cap enforced",
			"principal_id", principalID,
			"active_sessions", eval.ActiveSessions,
			"allowed_sessions", eval.AllowedSessions,
			"deactivated", eval.Deactivated,
		)
		e.events.Record(ctx, e.eventFor(eval))
	}
	e.metrics.record(ctx, eval, "evaluate")
	return eval, nil
}

// Peek computes the same snapshot as Evaluate without touching any session
// or recording an event, even when the cap is exceeded.
func (e *Evaluator) Peek(ctx context.Context, principalID uuid.UUID) (*domain.RiskEvaluation, error) {
	p, err := e.sessions.Principal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	active, err := e.sessions.CountActive(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("count active sessions: %w", err)
	}

	eval := e.assess(p, active)
	eval.Action = domain.ActionNone
	eval.Message = msgReadOnly
	e.metrics.record(ctx, eval, "peek")
	return eval, nil
}

// InvalidateAll runs the enforcement branch with no surviving session:
// every active session of the principal is deactivated under the same
// action label Evaluate uses. An event is recorded only when at least one
// session was deactivated.
func (e *Evaluator) InvalidateAll(ctx context.Context, principalID uuid.UUID) (*domain.RiskEvaluation, error) {
	ctx = context.WithoutCancel(ctx)

	p, err := e.sessions.Principal(ctx, principalID)
	if err != nil {
		return nil, err
	}

	var eval *domain.RiskEvaluation
	err = e.sessions.WithPrincipal(ctx, principalID, func(scope *session.Scope) error {
		active, err := scope.CountActive(ctx)
		if err != nil {
			return fmt.Errorf("count active sessions: %w", err)
		}
		eval = e.assess(p, active)

		n, err := scope.DeactivateAllExcept(ctx, domain.NoSurvivor)
		if err != nil {
			return err
		}
		eval.Deactivated = n
		if n == 0 {
			eval.Action = domain.ActionNone
			eval.Message = msgNothingActive
			return nil
		}
		eval.Action = domain.ActionOtherSessionsInvalidated
		eval.Message = msgAllInvalidated
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("all sessions invalidated",
		"principal_id", principalID,
		"deactivated", eval.Deactivated,
	)
	if eval.Deactivated > 0 {
		e.events.Record(ctx, e.eventFor(eval))
	}
	e.metrics.record(ctx, eval, "invalidate_all")
	return eval, nil
}

// RecentEvents returns the principal's enforcement events, newest first.
func (e *Evaluator) RecentEvents(ctx context.Context, principalID uuid.UUID, limit int) ([]domain.EnforcementEvent, error) {
	if _, err := e.sessions.Principal(ctx, principalID); err != nil {
		return nil, err
	}
	return e.events.Recent(ctx, principalID, limit)
}

func (e *Evaluator) assess(p *domain.Principal, active int) *domain.RiskEvaluation {
	r := policy.EvaluateSessionRisk(active, e.cfg.MaxAllowedSessions, e.cfg.DisplayThresholdPercent)
	return &domain.RiskEvaluation{
		PrincipalID:           p.ID,
		DisplayName:           p.DisplayName(),
		ActiveSessions:        active,
		AllowedSessions:       e.cfg.MaxAllowedSessions,
		RiskSignal:            r.Signal,
		Tier:                  r.Tier,
		CapExceeded:           r.CapExceeded,
		AboveDisplayThreshold: r.AboveDisplayThreshold,
		EvaluatedAt:           e.now(),
	}
}

func (e *Evaluator) eventFor(eval *domain.RiskEvaluation) domain.EnforcementEvent {
	return domain.EnforcementEvent{
		ID:              uuid.New(),
		PrincipalID:     eval.PrincipalID,
		DisplayName:     eval.DisplayName,
		ActiveSessions:  eval.ActiveSessions,
		AllowedSessions: eval.AllowedSessions,
		RiskSignal:      eval.RiskSignal,
		Action:          eval.Action,
		Description:     describe(eval),
		OccurredAt:      eval.EvaluatedAt,
	}
}

func describe(eval *domain.RiskEvaluation) string {
	return fmt.Sprintf("Session cap check: %d active sessions (allowed: %d), risk signal %.2f%%, %d deactivated. Action: %s.",
		eval.ActiveSessions, eval.AllowedSessions, eval.RiskSignal, eval.Deactivated, eval.Action)
}
