package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riskguard/platform/internal/audit"
	"github.com/riskguard/platform/internal/auth"
	"github.com/riskguard/platform/internal/domain"
	"github.com/riskguard/platform/internal/guard"
	"github.com/riskguard/platform/internal/policy"
	"github.com/riskguard/platform/internal/risk"
	"github.com/riskguard/platform/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memAccounts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*domain.Principal
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: make(map[uuid.UUID]*domain.Principal)}
}

func (m *memAccounts) FindByID(_ context.Context, id uuid.UUID) (*domain.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byID[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *memAccounts) FindByUsername(_ context.Context, username string) (*domain.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.Username == username {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memAccounts) Create(_ context.Context, p *domain.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Username == p.Username || existing.Email == p.Email {
			return ErrDuplicatePrincipal
		}
	}
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *memAccounts) Upsert(ctx context.Context, p *domain.Principal) (*domain.Principal, error) {
	return p, m.Create(ctx, p)
}

// FindPrincipal lets memAccounts act as the registry's directory.
func (m *memAccounts) FindPrincipal(ctx context.Context, id uuid.UUID) (*domain.Principal, error) {
	return m.FindByID(ctx, id)
}

type denyGate struct{}

func (denyGate) Allow(context.Context, *domain.Principal, *policy.Coordinates) (bool, error) {
	return false, nil
}

type harness struct {
	svc      *AuthService
	accounts *memAccounts
	registry *session.Registry
	events   *audit.MemoryLog
	jwt      *auth.JWTManager
}

func newHarness(t *testing.T, mutate func(*AuthDeps)) *harness {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	accounts := newMemAccounts()
	registry := session.NewRegistry(session.NewMemoryStore(), accounts, session.NopTerminator, logger)
	events := audit.NewMemoryLog()
	evaluator := risk.NewEvaluator(risk.DefaultConfig(), registry, events, nil, logger)
	jwtMgr := auth.NewJWTManager("test-secret", time.Hour)

	deps := AuthDeps{
		Accounts:  accounts,
		Sessions:  registry,
		Evaluator: evaluator,
		JWT:       jwtMgr,
		Logger:    logger,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return &harness{svc: NewAuthService(deps), accounts: accounts, registry: registry, events: events, jwt: jwtMgr}
}

func (h *harness) addPrincipal(t *testing.T, username, password string) *domain.Principal {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	p := &domain.Principal{ID: uuid.New(), Username: username, Email: username + "@example.com", PasswordHash: string(hash)}
	require.NoError(t, h.accounts.Create(context.Background(), p))
	return p
}

func appCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *domain.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr.Code
}

func TestRegister(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	p, err := h.svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.NotEmpty(t, p.PasswordHash)
	assert.NotEqual(t, "correct-horse", p.PasswordHash)

	_, err = h.svc.Register(ctx, RegisterInput{Username: "alice", Email: "other@example.com", Password: "correct-horse"})
	assert.Equal(t, "CONFLICT", appCode(t, err))
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t, nil)
	tests := []struct {
		name  string
		input RegisterInput
	}{
		{"short username", RegisterInput{Username: "al", Email: "a@example.com", Password: "long-enough"}},
		{"bad email", RegisterInput{Username: "alice", Email: "nope", Password: "long-enough"}},
		{"short password", RegisterInput{Username: "alice", Email: "a@example.com", Password: "short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Register(context.Background(), tt.input)
			assert.Equal(t, "VALIDATION_ERROR", appCode(t, err))
		})
	}
}

func TestLoginOpensSessionAndIssuesBoundToken(t *testing.T) {
	h := newHarness(t, nil)
	p := h.addPrincipal(t, "alice", "password123")

	res, err := h.svc.Login(context.Background(), LoginInput{Username: "alice", Password: "password123"},
		ClientInfo{SourceAddress: "10.0.0.1", UserAgent: "test-agent"})
	require.NoError(t, err)
	assert.Equal(t, p.ID, res.PrincipalID)
	require.NotNil(t, res.Risk)
	assert.Equal(t, domain.ActionNone, res.Risk.Action)

	claims, err := h.jwt.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.SessionToken, claims.SessionToken())

	sess, err := h.registry.Lookup(context.Background(), res.SessionToken)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, sess.Active)
	assert.Equal(t, "10.0.0.1", sess.SourceAddress)
	assert.Equal(t, DeviceFingerprint("test-agent"), sess.DeviceID)
}

func TestThirdLoginRevokesOlderSessions(t *testing.T) {
	h := newHarness(t, nil)
	p := h.addPrincipal(t, "alice", "password123")
	ctx := context.Background()
	in := LoginInput{Username: "alice", Password: "password123"}

	first, err := h.svc.Login(ctx, in, ClientInfo{SourceAddress: "10.0.0.1"})
	require.NoError(t, err)
	second, err := h.svc.Login(ctx, in, ClientInfo{SourceAddress: "10.0.0.2"})
	require.NoError(t, err)
	third, err := h.svc.Login(ctx, in, ClientInfo{SourceAddress: "10.0.0.3"})
	require.NoError(t, err)

	assert.Equal(t, domain.ActionOtherSessionsInvalidated, third.Risk.Action)
	assert.Equal(t, 2, third.Risk.Deactivated)

	active, err := h.registry.ListActive(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, third.SessionToken, active[0].Token)

	for _, old := range []string{first.SessionToken, second.SessionToken} {
		sess, err := h.registry.Lookup(ctx, old)
		require.NoError(t, err)
		assert.False(t, sess.Active)
	}
	assert.Len(t, h.events.All(), 1)
}

func TestLoginFailures(t *testing.T) {
	t.Run("wrong password", func(t *testing.T) {
		h := newHarness(t, nil)
		h.addPrincipal(t, "alice", "password123")
		_, err := h.svc.Login(context.Background(), LoginInput{Username: "alice", Password: "nope"}, ClientInfo{})
		assert.Equal(t, "UNAUTHORIZED", appCode(t, err))
	})

	t.Run("unknown user", func(t *testing.T) {
		h := newHarness(t, nil)
		_, err := h.svc.Login(context.Background(), LoginInput{Username: "ghost", Password: "password123"}, ClientInfo{})
		assert.Equal(t, "UNAUTHORIZED", appCode(t, err))
	})

	t.Run("locked account", func(t *testing.T) {
		h := newHarness(t, nil)
		p := h.addPrincipal(t, "alice", "password123")
		h.accounts.byID[p.ID].Locked = true
		_, err := h.svc.Login(context.Background(), LoginInput{Username: "alice", Password: "password123"}, ClientInfo{})
		assert.Equal(t, "ACCOUNT_LOCKED", appCode(t, err))
	})

	t.Run("location denied", func(t *testing.T) {
		h := newHarness(t, func(d *AuthDeps) { d.Gate = denyGate{} })
		h.addPrincipal(t, "alice", "password123")
		_, err := h.svc.Login(context.Background(), LoginInput{Username: "alice", Password: "password123"}, ClientInfo{})
		assert.Equal(t, "FORBIDDEN", appCode(t, err))
	})

	t.Run("privileged bypasses location gate", func(t *testing.T) {
		h := newHarness(t, func(d *AuthDeps) { d.Gate = denyGate{} })
		p := h.addPrincipal(t, "root", "password123")
		h.accounts.byID[p.ID].Privileged = true
		_, err := h.svc.Login(context.Background(), LoginInput{Username: "root", Password: "password123"}, ClientInfo{})
		assert.NoError(t, err)
	})

	t.Run("rate limited", func(t *testing.T) {
		h := newHarness(t, func(d *AuthDeps) { d.Limiter = guard.NewRateLimiter(1, time.Minute) })
		h.addPrincipal(t, "alice", "password123")
		client := ClientInfo{SourceAddress: "10.0.0.9"}
		_, err := h.svc.Login(context.Background(), LoginInput{Username: "alice", Password: "password123"}, client)
		require.NoError(t, err)
		_, err = h.svc.Login(context.Background(), LoginInput{Username: "alice", Password: "password123"}, client)
		assert.Equal(t, "RATE_LIMITED", appCode(t, err))
	})
}

func TestLogoutDeactivatesSession(t *testing.T) {
	h := newHarness(t, nil)
	h.addPrincipal(t, "alice", "password123")
	ctx := context.Background()

	res, err := h.svc.Login(ctx, LoginInput{Username: "alice", Password: "password123"}, ClientInfo{})
	require.NoError(t, err)

	require.NoError(t, h.svc.Logout(ctx, res.SessionToken))
	require.NoError(t, h.svc.Logout(ctx, res.SessionToken))

	sess, err := h.registry.Lookup(ctx, res.SessionToken)
	require.NoError(t, err)
	assert.False(t, sess.Active)
}

func TestMe(t *testing.T) {
	h := newHarness(t, nil)
	p := h.addPrincipal(t, "alice", "password123")

	got, err := h.svc.Me(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	_, err = h.svc.Me(context.Background(), uuid.New())
	assert.True(t, domain.IsPrincipalNotFound(err))
}

func TestDeviceFingerprint(t *testing.T) {
	a := DeviceFingerprint("Mozilla/5.0")
	assert.Equal(t, a, DeviceFingerprint("Mozilla/5.0"))
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, DeviceFingerprint("curl/8.0"))

	unknown := DeviceFingerprint("")
	assert.True(t, strings.HasPrefix(unknown, "UNKNOWN_DEVICE_"))
	assert.Len(t, unknown, len("UNKNOWN_DEVICE_")+8)
}
