package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riskguard/platform/internal/domain"
)

// Registry is the single writer of session state. Every change to a
// session's active flag goes through it.
type Registry struct {
	store      Store
	directory  Directory
	terminator Terminator
	logger     *slog.Logger
	now        func() time.Time
}

// NewRegistry creates a registry. A nil terminator means no live-session layer.
func NewRegistry(store Store, directory Directory, terminator Terminator, logger *slog.Logger) *Registry {
	if terminator == nil {
		terminator = NopTerminator
	}
	return &Registry{
		store:      store,
		directory:  directory,
		terminator: terminator,
		logger:     logger,
		now:        time.Now,
	}
}

// Principal resolves id or returns a PRINCIPAL_NOT_FOUND error.
func (r *Registry) Principal(ctx context.Context, id uuid.UUID) (*domain.Principal, error) {
	p, err := r.directory.FindPrincipal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve principal: %w", err)
	}
	if p == nil {
		return nil, domain.ErrPrincipalNotFound(id.String())
	}
	return p, nil
}

// Register inserts a new active session. It is committed, and visible to
// CountActive, when Register returns.
func (r *Registry) Register(ctx context.Context, principalID uuid.UUID, token, deviceID, sourceAddress string) (*domain.Session, error) {
	if token == domain.NoSurvivor {
		return nil, domain.ErrValidation("session token is required")
	}
	if _, err := r.Principal(ctx, principalID); err != nil {
		return nil, err
	}

	now := r.now()
	sess := &domain.Session{
		Token:         token,
		PrincipalID:   principalID,
		DeviceID:      deviceID,
		SourceAddress: sourceAddress,
		CreatedAt:     now,
		LastSeenAt:    now,
		Active:        true,
	}
	err := r.store.Within(ctx, principalID, func(tx Tx) error {
		return tx.Insert(ctx, sess)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("session registered",
		"principal_id", principalID,
		"device_id", deviceID,
		"source_address", sourceAddress,
	)
	return sess, nil
}

func (r *Registry) CountActive(ctx context.Context, principalID uuid.UUID) (int, error) {
	return r.store.CountActive(ctx, principalID)
}

// ListActive returns active sessions in insertion order.
func (r *Registry) ListActive(ctx context.Context, principalID uuid.UUID) ([]domain.Session, error) {
	return r.store.ListActive(ctx, principalID)
}

// Lookup returns the session for token, or nil if unknown.
func (r *Registry) Lookup(ctx context.Context, token string) (*domain.Session, error) {
	return r.store.FindByToken(ctx, token)
}

// Touch refreshes last-seen on an active session.
func (r *Registry) Touch(ctx context.Context, token string) error {
	return r.store.Touch(ctx, token, r.now())
}

func (r *Registry) Search(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	return r.store.Search(ctx, filter)
}

// Deactivate ends one session. Unknown or already inactive tokens are a no-op.
func (r *Registry) Deactivate(ctx context.Context, token string) error {
	sess, err := r.store.Deactivate(ctx, token)
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	if sess == nil {
		return nil
	}
	r.terminate(ctx, sess.PrincipalID, []string{token})
	return nil
}

// DeactivateAllExcept ends every active session of the principal other than
// survivor. domain.NoSurvivor ends all of them. Returns how many were ended.
func (r *Registry) DeactivateAllExcept(ctx context.Context, principalID uuid.UUID, survivor string) (int, error) {
	if _, err := r.Principal(ctx, principalID); err != nil {
		return 0, err
	}
	var n int
	err := r.WithPrincipal(ctx, principalID, func(scope *Scope) error {
		var err error
		n, err = scope.DeactivateAllExcept(ctx, survivor)
		return err
	})
	return n, err
}

// WithPrincipal runs fn under the principal's serialization point. Sessions
// ended through the scope have their live connections terminated once the
// changes are committed.
func (r *Registry) WithPrincipal(ctx context.Context, principalID uuid.UUID, fn func(scope *Scope) error) error {
	scope := &Scope{registry: r, principalID: principalID}
	err := r.store.Within(ctx, principalID, func(tx Tx) error {
		scope.tx = tx
		return fn(scope)
	})
	if err != nil {
		return err
	}
	r.terminate(ctx, principalID, scope.revoked)
	return nil
}

// terminate tells the live-session layer about ended sessions. Failures are
// logged per session and never returned.
func (r *Registry) terminate(ctx context.Context, principalID uuid.UUID, tokens []string) {
	for _, token := range tokens {
		if err := r.terminateOne(ctx, token); err != nil {
			r.logger.Warn("live session termination failed",
				"principal_id", principalID,
				"session_token", token,
				"error", err,
			)
		}
	}
}

func (r *Registry) terminateOne(ctx context.Context, token string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("terminator panic: %v", rec)
		}
	}()
	return r.terminator.Terminate(ctx, token)
}

// Scope is the serialized view of one principal's sessions inside WithPrincipal.
type Scope struct {
	registry    *Registry
	principalID uuid.UUID
	tx          Tx
	revoked     []string
}

func (s *Scope) PrincipalID() uuid.UUID { return s.principalID }

func (s *Scope) CountActive(ctx context.Context) (int, error) {
	return s.tx.CountActive(ctx)
}

func (s *Scope) ListActive(ctx context.Context) ([]domain.Session, error) {
	return s.tx.ListActive(ctx)
}

// DeactivateAllExcept ends every active session but survivor. A failure on
// one session is logged and the pass continues with the next.
func (s *Scope) DeactivateAllExcept(ctx context.Context, survivor string) (int, error) {
	active, err := s.tx.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active sessions: %w", err)
	}

	n := 0
	for _, sess := range active {
		if survivor != domain.NoSurvivor && sess.Token == survivor {
			continue
		}
		changed, err := s.tx.Deactivate(ctx, sess.Token)
		if err != nil {
			s.registry.logger.Warn("session deactivation failed",
				"principal_id", s.principalID,
				"session_token", sess.Token,
				"error", err,
			)
			continue
		}
		if changed {
			s.revoked = append(s.revoked, sess.Token)
			n++
		}
	}
	return n, nil
}
