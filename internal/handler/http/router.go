package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/authgate/internal/claims"
	"github.com/utafrali/authgate/pkg/health"
	"github.com/utafrali/authgate/pkg/middleware"
	"github.com/utafrali/authgate/pkg/ratelimit"
)

// RouterConfig holds the dependencies of the HTTP router.
type RouterConfig struct {
	ServiceName string
	Service     AuthService
	Resolver    claims.Resolver
	Health      *health.Handler
	AdminGroup  string
	CORS        middleware.CORSConfig
	PprofCIDRs  []string

	// Limiter throttles the unauthenticated endpoints. Nil disables it.
	Limiter ratelimit.Limiter
	// Proxies lists the CIDRs whose forwarding headers are trusted when
	// keying the limiter.
	Proxies []string

	Logger *slog.Logger
}

// NewRouter creates a chi router with all auth routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.LivenessHandler())
		r.Get("/health/ready", cfg.Health.ReadinessHandler())
	}
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	authHandler := NewAuthHandler(cfg.Service, logger)
	authenticate := middleware.Auth(TokenValidator(cfg.Resolver), logger)

	r.Route("/api/v1/auth", func(r chi.Router) {
		// Public endpoints
		r.Group(func(r chi.Router) {
			if cfg.Limiter != nil {
				r.Use(middleware.RateLimit(cfg.Limiter, middleware.TrustedClientIP(cfg.Proxies, logger), logger))
			}

			// Takes only the email query parameter.
			r.Post("/forgot_password", authHandler.ForgotPassword)

			// JSON bodies
			r.Group(func(r chi.Router) {
				r.Use(ContentTypeJSON)

				r.Post("/sign_up", authHandler.SignUp)
				r.Post("/sign_up/confirm", authHandler.ConfirmSignUp)
				r.Post("/forgot_password/confirm", authHandler.ConfirmForgotPassword)

				r.With(middleware.NoStore).Post("/sign_in", authHandler.SignIn)
				r.With(middleware.NoStore).Post("/token/refresh", authHandler.RefreshToken)
			})
		})

		// Bearer-authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.NoStore)

			r.Get("/me", authHandler.Me)
			r.With(middleware.RequireGroup(cfg.AdminGroup, logger)).Get("/admin", authHandler.Admin)
		})
	})

	return r
}

// TokenValidator bridges a claims resolver to the auth middleware.
func TokenValidator(resolver claims.Resolver) middleware.TokenValidator {
	return func(ctx context.Context, token string) (*middleware.Principal, error) {
		user, err := resolver.Resolve(ctx, token)
		if err != nil {
			return nil, err
		}
		return &middleware.Principal{
			Subject: user.ID,
			Email:   user.Email,
			Groups:  user.Groups,
		}, nil
	}
}
