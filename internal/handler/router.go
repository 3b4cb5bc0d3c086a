package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/studydesk/account-core/internal/config"
	"github.com/studydesk/account-core/internal/metrics"
	"github.com/studydesk/account-core/internal/middleware"
	"github.com/studydesk/account-core/internal/service"
)

// RouterDeps is everything the HTTP surface needs. Health may be nil when there
// is no backing database to ping.
type RouterDeps struct {
	Auth          *service.AuthService
	Sessions      *service.SessionRegistry
	Quota         *service.QuotaService
	Subscriptions *service.SubscriptionService
	Assistant     *service.AssistantService
	Admin         *service.AdminService
	Limiter       middleware.Limiter
	Health        func(ctx context.Context) error
	IsProduction  bool
}

func NewRouter(deps RouterDeps) chi.Router {
	if deps.Limiter == nil {
		deps.Limiter = middleware.NewRateLimiter()
	}

	authMiddleware := middleware.NewAuthMiddleware(deps.Sessions)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(deps.IsProduction)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(config.DefaultMaxBodySize)
	askBodyLimitMiddleware := middleware.NewBodyLimitMiddleware(config.AskMaxBodySize)
	authRateLimit := middleware.NewRateLimitMiddleware(deps.Limiter, config.AuthIPRateLimitPerMin, middleware.IPKey("auth"))
	askRateLimit := middleware.NewRateLimitMiddleware(deps.Limiter, config.AskRateLimitPerMin, middleware.AccountKey)

	authHandler := NewAuthHandler(deps.Auth, authMiddleware.ClientSession, authRateLimit.Handler)
	accountHandler := NewAccountHandler(deps.Quota)
	assistantHandler := NewAssistantHandler(deps.Assistant)
	paymentHandler := NewPaymentHandler(deps.Subscriptions)
	adminHandler := NewAdminHandler(deps.Admin)
	eventsHandler := NewEventsHandler(deps.Quota)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", healthHandler(deps.Health))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Use(bodyLimitMiddleware.Handler)

			// Register and login issue the client id the other routes require.
			r.Mount("/auth", authHandler.Routes())

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.ClientSession)
				r.Get("/session", accountHandler.Session)

				r.Group(func(r chi.Router) {
					r.Use(authMiddleware.RequireAccount)
					r.Put("/profile", accountHandler.UpdateProfile)
					r.Get("/quota", accountHandler.Quota)
					r.Post("/payments", paymentHandler.Submit)
					r.Get("/payments", paymentHandler.List)
				})
			})
		})

		// Streaming and completion routes carry their own deadlines.
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.ClientSession)
			r.Use(authMiddleware.RequireAccount)
			r.With(askRateLimit.Handler, askBodyLimitMiddleware.Handler).Post("/ask", assistantHandler.Ask)
			r.Get("/events", eventsHandler.ServeHTTP)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(bodyLimitMiddleware.Handler)
		r.Use(authMiddleware.ClientSession)
		r.Use(authMiddleware.RequireAccount)
		r.Use(authMiddleware.RequireAdmin)
		r.Mount("/", adminHandler.Routes())
	})

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		}

		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				log.Warn().Err(err).Msg("health check failed")
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}

		writeJSON(w, status, body)
	}
}
