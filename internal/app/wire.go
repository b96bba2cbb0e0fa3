package app

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/riskguard/platform/internal/auth"
	"github.com/riskguard/platform/internal/handler"
	adminhandler "github.com/riskguard/platform/internal/handler/admin"
	"github.com/riskguard/platform/internal/infra"
	"github.com/riskguard/platform/internal/service"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Core        *Core
	Auth        *service.AuthService
	JWTMgr      *auth.JWTManager
	Health      infra.Pinger
	Limiter     handler.Limiter
	CORSOrigins []string
	Logger      *slog.Logger
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	core := deps.Core

	authHandler := handler.NewAuthHandler(deps.Auth)
	sessionHandler := handler.NewSessionHandler(core.Registry, core.Evaluator, core.Hub, logger)
	riskAdmin := adminhandler.NewRiskAdminHandler(core.Evaluator, core.Registry, logger)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(deps.CORSOrigins...))

	r.Route("/api/v1", func(r chi.Router) {
		r.With(handler.JSONContentType).Get("/health", handler.HealthHandler(deps.Health))

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(handler.JSONContentType)
				if deps.Limiter != nil {
					r.With(handler.RateLimit(deps.Limiter, "register")).Post("/register", authHandler.Register)
				} else {
					r.Post("/register", authHandler.Register)
				}
				r.Post("/login", authHandler.Login)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.Authenticate(deps.JWTMgr, core.Registry, logger))
				r.Use(handler.JSONContentType)
				r.Post("/logout", authHandler.Logout)
				r.Get("/me", authHandler.Me)
			})
		})

		// Session-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate(deps.JWTMgr, core.Registry, logger))

			// SSE sets its own content type
			r.Get("/sessions/stream", sessionHandler.Stream)

			r.Group(func(r chi.Router) {
				r.Use(handler.JSONContentType)
				r.Get("/sessions", sessionHandler.List)
				r.Get("/risk/status", sessionHandler.RiskStatus)
				r.Get("/risk/events", sessionHandler.Events)
			})
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.Authenticate(deps.JWTMgr, core.Registry, logger))
			r.Use(auth.RequireAdmin)
			r.Use(handler.JSONContentType)

			r.Route("/risk/{principalID}", func(r chi.Router) {
				r.Post("/evaluate", riskAdmin.Evaluate)
				r.Get("/status", riskAdmin.Status)
				r.Get("/sessions", riskAdmin.Sessions)
				r.Post("/invalidate", riskAdmin.Invalidate)
				r.Get("/events", riskAdmin.Events)
			})

			r.Get("/sessions", riskAdmin.SearchSessions)
			r.Delete("/sessions/{token}", riskAdmin.RevokeSession)
		})
	})

	return r
}
