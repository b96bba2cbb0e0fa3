package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/riskguard/platform/internal/auth"
	"github.com/riskguard/platform/internal/domain"
	"github.com/riskguard/platform/internal/infra"
)

const sseKeepAlive = 25 * time.Second

// SessionLister reads a principal's active sessions.
type SessionLister interface {
	ListActive(ctx context.Context, principalID uuid.UUID) ([]domain.Session, error)
}

// RiskReader is the read-only evaluator surface.
type RiskReader interface {
	Peek(ctx context.Context, principalID uuid.UUID) (*domain.RiskEvaluation, error)
	RecentEvents(ctx context.Context, principalID uuid.UUID, limit int) ([]domain.EnforcementEvent, error)
}

const tokenHintLen = 8

// SessionView is a session as shown to its owner. The raw token is the
// revocation handle and is never listed; TokenHint is enough to tell
// sessions apart.
type SessionView struct {
	TokenHint     string    `json:"token_hint"`
	DeviceID      string    `json:"device_id"`
	SourceAddress string    `json:"source_address"`
	CreatedAt     time.Time `json:"created_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	Current       bool      `json:"current"`
}

// NewSessionView builds the owner-facing view of s.
func NewSessionView(s domain.Session, currentToken string) SessionView {
	return SessionView{
		TokenHint:     tokenHint(s.Token),
		DeviceID:      s.DeviceID,
		SourceAddress: s.SourceAddress,
		CreatedAt:     s.CreatedAt,
		LastSeenAt:    s.LastSeenAt,
		Current:       s.Token == currentToken,
	}
}

func tokenHint(token string) string {
	if len(token) <= tokenHintLen {
		return strings.Repeat("*", len(token))
	}
	return token[:tokenHintLen] + "..."
}

// SessionHandler serves the caller's own sessions and risk state.
type SessionHandler struct {
	sessions SessionLister
	risk     RiskReader
	hub      *infra.LiveHub
	logger   *slog.Logger
}

func NewSessionHandler(sessions SessionLister, risk RiskReader, hub *infra.LiveHub, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, risk: risk, hub: hub, logger: logger}
}

// List handles GET /sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	principalID := auth.PrincipalIDFromContext(r.Context())
	current := auth.SessionTokenFromContext(r.Context())

	sessions, err := h.sessions.ListActive(r.Context(), principalID)
	if err != nil {
		RespondError(w, domain.ErrInternal("list sessions", err))
		return
	}

	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, NewSessionView(s, current))
	}
	RespondJSON(w, http.StatusOK, views)
}

// RiskStatus handles GET /risk/status.
func (h *SessionHandler) RiskStatus(w http.ResponseWriter, r *http.Request) {
	eval, err := h.risk.Peek(r.Context(), auth.PrincipalIDFromContext(r.Context()))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, eval)
}

// Events handles GET /risk/events?limit=.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	limit, err := QueryInt(r, "limit", 0)
	if err != nil {
		RespondError(w, err)
		return
	}
	events, err := h.risk.RecentEvents(r.Context(), auth.PrincipalIDFromContext(r.Context()), limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	if events == nil {
		events = []domain.EnforcementEvent{}
	}
	RespondJSON(w, http.StatusOK, events)
}

// Stream handles GET /sessions/stream as Server-Sent Events. The stream ends
// with a session.revoked frame when the session is deactivated.
func (h *SessionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		RespondError(w, domain.ErrInternal("streaming unsupported", nil))
		return
	}

	token := auth.SessionTokenFromContext(r.Context())
	principalID := auth.PrincipalIDFromContext(r.Context())
	conn := h.hub.Subscribe(token, principalID.String(), 16)
	defer h.hub.Unsubscribe(conn)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "data: {\"type\":%q}\n\n", infra.LiveEventConnected)
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case msg, ok := <-conn.Send:
			if !ok {
				h.logger.Debug("live stream closed", "principal_id", principalID)
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
