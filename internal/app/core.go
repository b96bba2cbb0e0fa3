package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riskguard/platform/internal/audit"
	"github.com/riskguard/platform/internal/auth"
	"github.com/riskguard/platform/internal/guard"
	"github.com/riskguard/platform/internal/infra"
	"github.com/riskguard/platform/internal/repository"
	"github.com/riskguard/platform/internal/risk"
	"github.com/riskguard/platform/internal/service"
	"github.com/riskguard/platform/internal/session"
)

// Core bundles the session governance components. The live hub is the
// registry's terminator, so enforcement closes open streams.
type Core struct {
	Registry  *session.Registry
	Evaluator *risk.Evaluator
	Hub       *infra.LiveHub
}

// NewCore wires a registry and evaluator over the given storage.
func NewCore(store session.Store, directory session.Directory, events audit.EventLog, cfg risk.Config, metrics *risk.Metrics, logger *slog.Logger) *Core {
	hub := infra.NewLiveHub(logger)
	registry := session.NewRegistry(store, directory, hub, logger)
	return &Core{
		Registry:  registry,
		Evaluator: risk.NewEvaluator(cfg, registry, events, metrics, logger),
		Hub:       hub,
	}
}

// Postgres holds the database-backed wiring used by cmd/api.
type Postgres struct {
	Core     *Core
	Accounts *service.PgAccounts
	Lockout  *guard.Lockout
}

// NewPostgres builds the core over pgx repositories.
func NewPostgres(pool *pgxpool.Pool, cfg risk.Config, metrics *risk.Metrics, logger *slog.Logger) *Postgres {
	principalRepo := repository.NewPgPrincipalRepository()
	sessionRepo := repository.NewSessionRepository()
	eventRepo := repository.NewRiskEventRepository()
	outboxRepo := repository.NewOutboxRepository()

	store := session.NewPgStore(pool, principalRepo, sessionRepo, outboxRepo)
	directory := repository.NewPrincipalDirectory(pool, principalRepo)
	events := audit.NewPgLog(pool, eventRepo, outboxRepo, logger)

	return &Postgres{
		Core:     NewCore(store, directory, events, cfg, metrics, logger),
		Accounts: service.NewPgAccounts(pool, principalRepo, outboxRepo),
		Lockout:  guard.NewLockout(pool, logger),
	}
}

// NewAuthService wires the login flow onto a core.
func NewAuthService(core *Core, accounts service.Accounts, jwtMgr *auth.JWTManager, limiter *guard.RateLimiter, lockout service.LoginLockout, logger *slog.Logger) *service.AuthService {
	deps := service.AuthDeps{
		Accounts:  accounts,
		Sessions:  core.Registry,
		Evaluator: core.Evaluator,
		JWT:       jwtMgr,
		Lockout:   lockout,
		Logger:    logger,
	}
	if limiter != nil {
		deps.Limiter = limiter
	}
	return service.NewAuthService(deps)
}
