// Package admin serves operator endpoints for session risk enforcement.
package admin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/riskguard/platform/internal/auth"
	"github.com/riskguard/platform/internal/domain"
	"github.com/riskguard/platform/internal/handler"
)

// Evaluator is the risk surface exposed to operators.
type Evaluator interface {
	Evaluate(ctx context.Context, principalID uuid.UUID, survivor string) (*domain.RiskEvaluation, error)
	Peek(ctx context.Context, principalID uuid.UUID) (*domain.RiskEvaluation, error)
	InvalidateAll(ctx context.Context, principalID uuid.UUID) (*domain.RiskEvaluation, error)
	RecentEvents(ctx context.Context, principalID uuid.UUID, limit int) ([]domain.EnforcementEvent, error)
}

// Registry is the session surface exposed to operators.
type Registry interface {
	Principal(ctx context.Context, id uuid.UUID) (*domain.Principal, error)
	ListActive(ctx context.Context, principalID uuid.UUID) ([]domain.Session, error)
	Search(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error)
	Lookup(ctx context.Context, token string) (*domain.Session, error)
	Deactivate(ctx context.Context, token string) error
}

// RiskAdminHandler handles admin risk and session management.
type RiskAdminHandler struct {
	evaluator Evaluator
	registry  Registry
	logger    *slog.Logger
}

func NewRiskAdminHandler(evaluator Evaluator, registry Registry, logger *slog.Logger) *RiskAdminHandler {
	return &RiskAdminHandler{evaluator: evaluator, registry: registry, logger: logger}
}

type evaluateRequest struct {
	SurvivingToken string `json:"surviving_token"`
}

// Evaluate handles POST /admin/risk/{principalID}/evaluate. An empty body
// or surviving_token enforces with no survivor.
func (h *RiskAdminHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	principalID, ok := principalParam(w, r)
	if !ok {
		return
	}

	var req evaluateRequest
	if err := handler.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		handler.RespondInvalidBody(w)
		return
	}

	eval, err := h.evaluator.Evaluate(r.Context(), principalID, req.SurvivingToken)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	h.audit(r, "evaluate", principalID, eval)
	handler.RespondJSON(w, http.StatusOK, eval)
}

// Status handles GET /admin/risk/{principalID}/status.
func (h *RiskAdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	principalID, ok := principalParam(w, r)
	if !ok {
		return
	}
	eval, err := h.evaluator.Peek(r.Context(), principalID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, eval)
}

// Sessions handles GET /admin/risk/{principalID}/sessions.
func (h *RiskAdminHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	principalID, ok := principalParam(w, r)
	if !ok {
		return
	}
	if _, err := h.registry.Principal(r.Context(), principalID); err != nil {
		handler.RespondError(w, err)
		return
	}
	sessions, err := h.registry.ListActive(r.Context(), principalID)
	if err != nil {
		handler.RespondError(w, domain.ErrInternal("list sessions", err))
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	handler.RespondJSON(w, http.StatusOK, sessions)
}

// Invalidate handles POST /admin/risk/{principalID}/invalidate.
func (h *RiskAdminHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	principalID, ok := principalParam(w, r)
	if !ok {
		return
	}
	eval, err := h.evaluator.InvalidateAll(r.Context(), principalID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	h.audit(r, "invalidate_all", principalID, eval)
	handler.RespondJSON(w, http.StatusOK, eval)
}

// Events handles GET /admin/risk/{principalID}/events?limit=.
func (h *RiskAdminHandler) Events(w http.ResponseWriter, r *http.Request) {
	principalID, ok := principalParam(w, r)
	if !ok {
		return
	}
	limit, err := handler.QueryInt(r, "limit", 0)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	events, err := h.evaluator.RecentEvents(r.Context(), principalID, limit)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if events == nil {
		events = []domain.EnforcementEvent{}
	}
	handler.RespondJSON(w, http.StatusOK, events)
}

// SearchSessions handles GET /admin/sessions?principal_id=&active=&limit=&offset=.
func (h *RiskAdminHandler) SearchSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter domain.SessionFilter

	if raw := q.Get("principal_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			handler.RespondError(w, domain.ErrValidation("invalid principal_id"))
			return
		}
		filter.PrincipalID = &id
	}
	filter.ActiveOnly = q.Get("active") == "true"

	var err error
	if filter.Limit, err = handler.QueryInt(r, "limit", 50); err != nil {
		handler.RespondError(w, err)
		return
	}
	if filter.Offset, err = handler.QueryInt(r, "offset", 0); err != nil {
		handler.RespondError(w, err)
		return
	}
	if filter.Limit == 0 || filter.Limit > 200 {
		filter.Limit = 200
	}

	sessions, err := h.registry.Search(r.Context(), filter)
	if err != nil {
		handler.RespondError(w, domain.ErrInternal("search sessions", err))
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	handler.RespondJSON(w, http.StatusOK, sessions)
}

// RevokeSession handles DELETE /admin/sessions/{token}.
func (h *RiskAdminHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	sess, err := h.registry.Lookup(r.Context(), token)
	if err != nil {
		handler.RespondError(w, domain.ErrInternal("lookup session", err))
		return
	}
	if sess == nil {
		handler.RespondError(w, domain.ErrNotFound("session", token))
		return
	}
	if err := h.registry.Deactivate(r.Context(), token); err != nil {
		handler.RespondError(w, domain.ErrInternal("revoke session", err))
		return
	}
	h.logger.Info("admin revoked session",
		"admin_id", auth.PrincipalIDFromContext(r.Context()),
		"principal_id", sess.PrincipalID,
	)
	handler.RespondJSON(w, http.StatusNoContent, nil)
}

func (h *RiskAdminHandler) audit(r *http.Request, op string, principalID uuid.UUID, eval *domain.RiskEvaluation) {
	h.logger.Info("admin risk action",
		"op", op,
		"admin_id", auth.PrincipalIDFromContext(r.Context()),
		"principal_id", principalID,
		"action", eval.Action,
		"deactivated", eval.Deactivated,
	)
}

func principalParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "principalID"))
	if err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid principal id"))
		return uuid.Nil, false
	}
	return id, true
}
