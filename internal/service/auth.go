package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riskguard/platform/internal/auth"
	"github.com/riskguard/platform/internal/domain"
	"github.com/riskguard/platform/internal/policy"
	"golang.org/x/crypto/bcrypt"
)

// SessionRegistry is the registry surface used by AuthService.
type SessionRegistry interface {
	Register(ctx context.Context, principalID uuid.UUID, token, deviceID, sourceAddress string) (*domain.Session, error)
	Deactivate(ctx context.Context, token string) error
}

// RiskEvaluator enforces the session cap after a login.
type RiskEvaluator interface {
	Evaluate(ctx context.Context, principalID uuid.UUID, survivor string) (*domain.RiskEvaluation, error)
}

// RateChecker limits login attempts per client.
type RateChecker interface {
	Check(ctx context.Context, key string) domain.GuardResult
}

// LoginLockout tracks failed logins per username.
type LoginLockout interface {
	CheckLocked(ctx context.Context, username string) error
	RecordAttempt(ctx context.Context, username, ip string, success bool)
}

// AuthService handles principal registration, login and logout.
type AuthService struct {
	accounts  Accounts
	sessions  SessionRegistry
	evaluator RiskEvaluator
	jwtMgr    *auth.JWTManager
	limiter   RateChecker
	lockout   LoginLockout
	gate      policy.LocationGate
	logger    *slog.Logger
}

// AuthDeps groups AuthService collaborators. Limiter, Lockout and Gate are optional.
type AuthDeps struct {
	Accounts  Accounts
	Sessions  SessionRegistry
	Evaluator RiskEvaluator
	JWT       *auth.JWTManager
	Limiter   RateChecker
	Lockout   LoginLockout
	Gate      policy.LocationGate
	Logger    *slog.Logger
}

func NewAuthService(d AuthDeps) *AuthService {
	gate := d.Gate
	if gate == nil {
		gate = policy.AllowAllLocations{}
	}
	return &AuthService{
		accounts:  d.Accounts,
		sessions:  d.Sessions,
		evaluator: d.Evaluator,
		jwtMgr:    d.JWT,
		limiter:   d.Limiter,
		lockout:   d.Lockout,
		gate:      gate,
		logger:    d.Logger,
	}
}

// RegisterInput holds the registration request fields.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a principal. It does not open a session.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.Principal, error) {
	if err := domain.ValidateUsername(input.Username); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateEmail(input.Email); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidatePassword(input.Password); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	existing, err := s.accounts.FindByUsername(ctx, input.Username)
	if err != nil {
		return nil, domain.ErrInternal("find principal", err)
	}
	if existing != nil {
		return nil, domain.ErrConflict("username already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ErrInternal("hash password", err)
	}

	p := &domain.Principal{
		ID:           uuid.New(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hash),
	}
	if err := s.accounts.Create(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicatePrincipal) {
			return nil, domain.ErrConflict("username or email already registered")
		}
		return nil, domain.ErrInternal("create principal", err)
	}

	s.logger.Info("principal registered", "principal_id", p.ID, "username", p.Username)
	return p, nil
}

// LoginInput holds the login request fields.
type LoginInput struct {
	Username string              `json:"username"`
	Password string              `json:"password"`
	Location *policy.Coordinates `json:"location,omitempty"`
}

// ClientInfo describes the connection a login arrives on.
type ClientInfo struct {
	SourceAddress string
	UserAgent     string
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token        string                 `json:"token"`
	ExpiresAt    time.Time              `json:"expires_at"`
	SessionToken string                 `json:"session_token"`
	PrincipalID  uuid.UUID              `json:"principal_id"`
	Username     string                 `json:"username"`
	DeviceID     string                 `json:"device_id"`
	Risk         *domain.RiskEvaluation `json:"risk,omitempty"`
}

// Login authenticates a principal, opens a new session and runs the session
// cap evaluation with the new session as survivor.
func (s *AuthService) Login(ctx context.Context, input LoginInput, client ClientInfo) (*LoginResult, error) {
	if s.limiter != nil {
		if res := s.limiter.Check(ctx, "login:"+client.SourceAddress); !res.Allowed {
			return nil, domain.ErrRateLimited(res.Reason)
		}
	}
	if s.lockout != nil {
		if err := s.lockout.CheckLocked(ctx, input.Username); err != nil {
			return nil, err
		}
	}

	p, err := s.accounts.FindByUsername(ctx, input.Username)
	if err != nil {
		return nil, domain.ErrInternal("find principal", err)
	}
	if p == nil || bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(input.Password)) != nil {
		s.recordAttempt(ctx, input.Username, client.SourceAddress, false)
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	status, err := policy.EvaluateLoginPolicy(ctx, p, s.gate, input.Location)
	if err != nil {
		return nil, domain.ErrInternal("login policy", err)
	}
	if !status.AccountActive {
		return nil, domain.ErrAccountLocked("account is locked")
	}
	if !status.IsLoginCleared() {
		return nil, domain.ErrForbidden("login not permitted from this location")
	}
	s.recordAttempt(ctx, input.Username, client.SourceAddress, true)

	deviceID := DeviceFingerprint(client.UserAgent)
	sess, err := s.sessions.Register(ctx, p.ID, uuid.NewString(), deviceID, client.SourceAddress)
	if err != nil {
		return nil, err
	}

	eval, err := s.evaluator.Evaluate(ctx, p.ID, sess.Token)
	if err != nil {
		// the session exists; a failed evaluation is retried on the next login
		s.logger.Error("post-login risk evaluation failed", "principal_id", p.ID, "error", err)
	}

	token, expiresAt, err := s.jwtMgr.GenerateToken(p, sess.Token)
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}

	return &LoginResult{
		Token:        token,
		ExpiresAt:    expiresAt,
		SessionToken: sess.Token,
		PrincipalID:  p.ID,
		Username:     p.Username,
		DeviceID:     deviceID,
		Risk:         eval,
	}, nil
}

// Logout deactivates the caller's session.
func (s *AuthService) Logout(ctx context.Context, sessionToken string) error {
	if err := s.sessions.Deactivate(ctx, sessionToken); err != nil {
		return domain.ErrInternal("logout", err)
	}
	return nil
}

// Me returns the authenticated principal.
func (s *AuthService) Me(ctx context.Context, principalID uuid.UUID) (*domain.Principal, error) {
	p, err := s.accounts.FindByID(ctx, principalID)
	if err != nil {
		return nil, domain.ErrInternal("find principal", err)
	}
	if p == nil {
		return nil, domain.ErrPrincipalNotFound(principalID.String())
	}
	return p, nil
}

func (s *AuthService) recordAttempt(ctx context.Context, username, ip string, success bool) {
	if s.lockout != nil {
		s.lockout.RecordAttempt(ctx, username, ip, success)
	}
}
