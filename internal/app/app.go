package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/authgate/internal/claims"
	"github.com/utafrali/authgate/internal/config"
	"github.com/utafrali/authgate/internal/event"
	handler "github.com/utafrali/authgate/internal/handler/http"
	"github.com/utafrali/authgate/internal/provider/cognito"
	"github.com/utafrali/authgate/internal/service"
	"github.com/utafrali/authgate/pkg/database"
	"github.com/utafrali/authgate/pkg/health"
	"github.com/utafrali/authgate/pkg/httpclient"
	pkgkafka "github.com/utafrali/authgate/pkg/kafka"
	"github.com/utafrali/authgate/pkg/middleware"
	"github.com/utafrali/authgate/pkg/ratelimit"
	"github.com/utafrali/authgate/pkg/tracing"
)

const (
	serviceName     = "authgate"
	startupTimeout  = 15 * time.Second
	limiterTTL      = 10 * time.Minute
	rateLimitPrefix = "authgate:ratelimit"
)

// App wires together all dependencies and runs the auth gateway.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	producer       *pkgkafka.Producer
	redis          *redis.Client
	memLimiter     *ratelimit.MemoryLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	// stopBackground ends the JWKS refresh loop.
	stopBackground context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	// Initialize OpenTelemetry tracing.
	a.tracerShutdown, err = tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRate:     cfg.OTelSampleRate,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Identity provider.
	idp, err := cognito.New(ctx, cognito.Config{
		Region:         cfg.AWSRegion,
		UserPoolID:     cfg.CognitoUserPoolID,
		ClientID:       cfg.CognitoClientID,
		ClientSecret:   cfg.CognitoClientSecret,
		Endpoint:       cfg.CognitoEndpoint,
		Timeout:        cfg.ProviderTimeout,
		MaxAttempts:    cfg.ProviderMaxAttempts,
		CircuitBreaker: cfg.CircuitBreakerConfig(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init cognito client: %w", err)
	}
	logger.Info("cognito client initialized",
		slog.String("region", cfg.AWSRegion),
		slog.String("user_pool_id", cfg.CognitoUserPoolID),
	)

	// Token resolver.
	resolver, err := a.newResolver(cfg)
	if err != nil {
		return nil, err
	}

	// Health checks.
	healthHandler := health.NewHandler()

	// Kafka producer.
	var publisher event.Publisher = event.Nop{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(a.producer, logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Rate limiter.
	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter, err = a.newLimiter(ctx, cfg, healthHandler)
		if err != nil {
			return nil, err
		}
	}

	authService := service.NewAuthService(idp, publisher, cfg.DefaultGroup, logger)

	corsCfg := middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins...)
	router := handler.NewRouter(handler.RouterConfig{
		ServiceName: serviceName,
		Service:     authService,
		Resolver:    resolver,
		Health:      healthHandler,
		AdminGroup:  cfg.AdminGroup,
		CORS:        corsCfg,
		PprofCIDRs:  cfg.PprofAllowedCIDRs,
		Limiter:     limiter,
		Proxies:     cfg.RateLimitTrustedProxies,
		Logger:      logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

// newResolver builds the bearer token resolver. The JWKS resolver refreshes
// keys in the background until Shutdown.
func (a *App) newResolver(cfg *config.Config) (claims.Resolver, error) {
	if cfg.Verifier == config.VerifierStatic {
		a.logger.Warn("using static token verifier; do not use in production")
		r, err := claims.NewStatic(cfg.StaticSecret, cfg.TokenLeeway)
		if err != nil {
			return nil, fmt.Errorf("init static resolver: %w", err)
		}
		return r, nil
	}

	issuer := cfg.Issuer
	if issuer == "" {
		issuer = claims.IssuerURL(cfg.AWSRegion, cfg.CognitoUserPoolID)
	}

	bgCtx, stop := context.WithCancel(context.Background())
	a.stopBackground = stop
	discoveryClient := httpclient.New(httpclient.DefaultConfig()).HTTPClient()

	r, err := claims.NewJWKS(oidc.ClientContext(bgCtx, discoveryClient), claims.JWKSConfig{
		Issuer:   issuer,
		ClientID: cfg.CognitoClientID,
		Leeway:   cfg.TokenLeeway,
	})
	if err != nil {
		return nil, fmt.Errorf("init jwks resolver: %w", err)
	}
	a.logger.Info("jwks resolver initialized", slog.String("issuer", issuer))
	return r, nil
}

func (a *App) newLimiter(ctx context.Context, cfg *config.Config, hh *health.Handler) (ratelimit.Limiter, error) {
	if cfg.UsesRedis() {
		client, err := database.NewRedisClient(ctx, cfg.RedisConfig())
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		hh.RegisterCritical("redis", database.RedisChecker(client))
		a.logger.Info("connected to Redis", slog.String("addr", cfg.RedisConfig().Addr()))

		return ratelimit.NewRedisLimiter(client, rateLimitPrefix, cfg.RateLimitBurst, cfg.RateLimitWindow()), nil
	}

	a.memLimiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, limiterTTL)
	return a.memLimiter, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.release()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush spans from drained requests)
// 3. Kafka producer, Redis client, limiter and JWKS refresh
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.release(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// release closes everything except the HTTP server.
func (a *App) release() error {
	var errs []error

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.producer = nil
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.redis = nil
	}

	if a.memLimiter != nil {
		a.memLimiter.Close()
	}
	if a.stopBackground != nil {
		a.stopBackground()
	}

	return errors.Join(errs...)
}
