package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/iho/pspledger/internal/adapter/http/handler"
	"github.com/iho/pspledger/internal/adapter/http/middleware"
	"github.com/iho/pspledger/internal/infrastructure/metrics"
	"github.com/iho/pspledger/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	PSPHandler        *handler.PSPHandler
	OverrideHandler   *handler.OverrideHandler
	AllocationHandler *handler.AllocationHandler
	LedgerHandler     *handler.LedgerHandler
	AuditHandler      *handler.AuditHandler
	SessionHandler    *handler.SessionHandler
	HealthHandler     *handler.HealthHandler

	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler

	// TokenVerifier enables bearer authentication. Without it every request
	// runs as the anonymous principal.
	TokenVerifier middleware.TokenVerifier

	SecurityTokens   usecase.SecurityTokenStore
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter

	CORSAllowedOrigins []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{
				"Authorization", "Content-Type",
				middleware.IdempotencyKeyHeader,
				middleware.SecurityTokenHeader,
				middleware.ActorHeader,
				middleware.SessionIDHeader,
			},
			ExposedHeaders: []string{middleware.IdempotencyReplayHeader},
			MaxAge:         300,
		}))
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.TokenVerifier != nil {
			r.Use(middleware.Authenticate(cfg.TokenVerifier))
		} else {
			r.Use(middleware.Anonymous)
		}

		r.Get("/psps", cfg.PSPHandler.List)
		r.Get("/transactions", cfg.PSPHandler.Transactions)
		r.Get("/ledger/{year}/{month}", cfg.LedgerHandler.Month)
		r.Get("/overrides", cfg.OverrideHandler.List)
		r.Get("/overrides/{date}/{psp}/{kind}", cfg.OverrideHandler.Get)
		r.Get("/audit", cfg.AuditHandler.List)
		r.Get("/audit/export", cfg.AuditHandler.Export)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireWrite)
			r.Post("/session/security-token", cfg.SessionHandler.IssueSecurityToken)
		})

		// Writes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireWrite)
			if cfg.SecurityTokens != nil {
				r.Use(middleware.NewSecurityTokenMiddleware(cfg.SecurityTokens, cfg.Metrics).Wrap)
			}
			if cfg.IdempotencyStore != nil {
				r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL).Wrap)
			}

			r.Put("/overrides", cfg.OverrideHandler.Save)
			r.Post("/allocations/bulk", cfg.AllocationHandler.Bulk)
		})
	})

	return r
}
