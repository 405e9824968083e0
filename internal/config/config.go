package config

import (
	"errors"
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/authgate/pkg/config"
	"github.com/utafrali/authgate/pkg/database"
	"github.com/utafrali/authgate/pkg/httpclient"
)

// Token verifier backends.
const (
	VerifierJWKS   = "jwks"
	VerifierStatic = "static"
)

// Rate limiter backends.
const (
	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

const minStaticSecretLen = 32

// Config holds all configuration for the auth gateway.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Version     string `env:"SERVICE_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort        int           `env:"AUTH_HTTP_PORT" envDefault:"8001"`
	ReadTimeout     time.Duration `env:"AUTH_HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"AUTH_HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"AUTH_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Cognito
	AWSRegion           string        `env:"AWS_REGION" envDefault:"us-east-1"`
	CognitoUserPoolID   string        `env:"COGNITO_USER_POOL_ID"`
	CognitoClientID     string        `env:"COGNITO_CLIENT_ID"`
	CognitoClientSecret string        `env:"COGNITO_CLIENT_SECRET"`
	CognitoEndpoint     string        `env:"COGNITO_ENDPOINT"`
	ProviderTimeout     time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	ProviderMaxAttempts int           `env:"PROVIDER_MAX_ATTEMPTS" envDefault:"3"`

	// Circuit breaker around the provider transport
	BreakerMaxRequests  uint32        `env:"PROVIDER_BREAKER_MAX_REQUESTS" envDefault:"1"`
	BreakerInterval     time.Duration `env:"PROVIDER_BREAKER_INTERVAL" envDefault:"60s"`
	BreakerTimeout      time.Duration `env:"PROVIDER_BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerFailureRatio float64       `env:"PROVIDER_BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests  uint32        `env:"PROVIDER_BREAKER_MIN_REQUESTS" envDefault:"5"`

	// Token verification
	Verifier     string        `env:"AUTH_VERIFIER" envDefault:"jwks"`
	StaticSecret string        `env:"AUTH_STATIC_SECRET"`
	Issuer       string        `env:"AUTH_ISSUER"`
	TokenLeeway  time.Duration `env:"AUTH_TOKEN_LEEWAY" envDefault:"30s"`

	// Groups
	DefaultGroup string `env:"AUTH_DEFAULT_GROUP" envDefault:"user"`
	AdminGroup   string `env:"AUTH_ADMIN_GROUP" envDefault:"admin"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Rate limiting
	RateLimitEnabled        bool     `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitBackend        string   `env:"RATE_LIMIT_BACKEND" envDefault:"memory"`
	RateLimitRPS            float64  `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst          int      `env:"RATE_LIMIT_BURST" envDefault:"10"`
	RateLimitTrustedProxies []string `env:"RATE_LIMIT_TRUSTED_PROXIES" envSeparator:","`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// pprof
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load authgate config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field rules the env tags cannot express.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.Verifier {
	case VerifierJWKS:
		if c.CognitoUserPoolID == "" && c.Issuer == "" {
			return errors.New("COGNITO_USER_POOL_ID or AUTH_ISSUER is required when AUTH_VERIFIER=jwks")
		}
	case VerifierStatic:
		if c.StaticSecret == "" {
			return errors.New("AUTH_STATIC_SECRET is required when AUTH_VERIFIER=static")
		}
		if c.Environment != "development" && len(c.StaticSecret) < minStaticSecretLen {
			return fmt.Errorf("AUTH_STATIC_SECRET must be at least %d characters long, got %d",
				minStaticSecretLen, len(c.StaticSecret))
		}
	default:
		return fmt.Errorf("unknown AUTH_VERIFIER %q", c.Verifier)
	}

	if c.CognitoClientID == "" {
		return errors.New("COGNITO_CLIENT_ID is required")
	}
	if c.ProviderMaxAttempts < 1 {
		return fmt.Errorf("PROVIDER_MAX_ATTEMPTS must be positive, got %d", c.ProviderMaxAttempts)
	}
	if c.DefaultGroup == "" || c.AdminGroup == "" {
		return errors.New("AUTH_DEFAULT_GROUP and AUTH_ADMIN_GROUP must not be empty")
	}

	if c.RateLimitEnabled {
		switch c.RateLimitBackend {
		case RateLimitMemory, RateLimitRedis:
		default:
			return fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimitBackend)
		}
		if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
			return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
		}
		if c.UsesRedis() && c.RateLimitWindow() < time.Millisecond {
			return fmt.Errorf("RATE_LIMIT_BURST/RATE_LIMIT_RPS must be at least 1ms for the redis backend, got %v",
				c.RateLimitWindow())
		}
	}

	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %v", c.OTelSampleRate)
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.RateLimitEnabled && c.RateLimitBackend == RateLimitRedis
}

// RateLimitWindow is the fixed window of the redis limiter, sized so the
// sustained rate matches RATE_LIMIT_RPS.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(float64(c.RateLimitBurst) / c.RateLimitRPS * float64(time.Second))
}

// RedisConfig returns the Redis connection settings.
func (c *Config) RedisConfig() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}

// CircuitBreakerConfig returns the breaker settings for the provider transport.
func (c *Config) CircuitBreakerConfig() httpclient.CircuitBreakerConfig {
	return httpclient.CircuitBreakerConfig{
		Name:         "cognito",
		MaxRequests:  c.BreakerMaxRequests,
		Interval:     c.BreakerInterval,
		Timeout:      c.BreakerTimeout,
		FailureRatio: c.BreakerFailureRatio,
		MinRequests:  c.BreakerMinRequests,
	}
}
