package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/riskguard/platform/internal/domain"
)

type contextKey string

const (
	claimsKey    contextKey = "auth_claims"
	principalKey contextKey = "auth_principal"
)

// SessionChecker is the registry surface the middleware needs.
type SessionChecker interface {
	Lookup(ctx context.Context, token string) (*domain.Session, error)
	Touch(ctx context.Context, token string) error
}

// ClaimsFromContext extracts JWT claims from request context.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// PrincipalIDFromContext returns the authenticated principal, or uuid.Nil.
func PrincipalIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(principalKey).(uuid.UUID)
	return id
}

// SessionTokenFromContext returns the session the request is authenticated with.
func SessionTokenFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.SessionToken()
	}
	return ""
}

// WithClaims stores claims in ctx the way Authenticate does.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	if id, err := claims.PrincipalID(); err == nil {
		ctx = context.WithValue(ctx, principalKey, id)
	}
	return ctx
}

// Authenticate validates the bearer token and requires its session to still
// be active. Tokens whose session was deactivated (logout or enforcement)
// are rejected even if the JWT itself has not expired.
func Authenticate(jwtMgr *JWTManager, sessions SessionChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractAndValidate(r, jwtMgr)
			if err != nil {
				writeError(w, domain.ErrUnauthorized(err.Error()))
				return
			}

			sess, err := sessions.Lookup(r.Context(), claims.SessionToken())
			if err != nil {
				logger.Error("session lookup failed", "error", err)
				writeError(w, domain.ErrInternal("session lookup failed", err))
				return
			}
			if sess == nil || !sess.Active || sess.PrincipalID.String() != claims.Subject {
				writeError(w, domain.ErrSessionRevoked())
				return
			}
			if err := sessions.Touch(r.Context(), sess.Token); err != nil {
				logger.Warn("session touch failed", "error", err)
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireAdmin rejects requests whose token lacks the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			writeError(w, domain.ErrUnauthorized("no auth context"))
			return
		}
		if !claims.IsAdmin() {
			writeError(w, domain.ErrForbidden("admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAndValidate(r *http.Request, jwtMgr *JWTManager) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, fmt.Errorf("invalid Authorization format")
	}

	return jwtMgr.ValidateToken(parts[1])
}

func writeError(w http.ResponseWriter, appErr *domain.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status)
	_ = json.NewEncoder(w).Encode(appErr)
}
