package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setEnvs sets multiple env vars for the duration of the test.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func cognitoEnv() map[string]string {
	return map[string]string{
		"COGNITO_USER_POOL_ID": "us-east-1_abc123",
		"COGNITO_CLIENT_ID":    "client-123",
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnvs(t, cognitoEnv())

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8001, cfg.HTTPPort)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)
	assert.Equal(t, VerifierJWKS, cfg.Verifier)
	assert.Equal(t, "user", cfg.DefaultGroup)
	assert.Equal(t, "admin", cfg.AdminGroup)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 30*time.Second, cfg.TokenLeeway)
	assert.False(t, cfg.KafkaEnabled)
	assert.True(t, cfg.RateLimitEnabled)
	assert.Equal(t, RateLimitMemory, cfg.RateLimitBackend)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.RateLimitTrustedProxies)
	assert.False(t, cfg.UsesRedis())
}

func TestLoad_Overrides(t *testing.T) {
	envs := cognitoEnv()
	envs["AUTH_HTTP_PORT"] = "9090"
	envs["AUTH_DEFAULT_GROUP"] = "customers"
	envs["KAFKA_ENABLED"] = "true"
	envs["KAFKA_BROKERS"] = "k1:9092,k2:9092"
	envs["RATE_LIMIT_BACKEND"] = "redis"
	envs["REDIS_HOST"] = "cache"
	envs["PROVIDER_BREAKER_TIMEOUT"] = "5s"
	setEnvs(t, envs)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, "customers", cfg.DefaultGroup)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.UsesRedis())
	assert.Equal(t, "cache:6379", cfg.RedisConfig().Addr())

	cb := cfg.CircuitBreakerConfig()
	assert.Equal(t, "cognito", cb.Name)
	assert.Equal(t, 5*time.Second, cb.Timeout)
}

func TestLoad_InvalidPort(t *testing.T) {
	envs := cognitoEnv()
	envs["AUTH_HTTP_PORT"] = "70000"
	setEnvs(t, envs)

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}

func TestLoad_JWKSRequiresPool(t *testing.T) {
	setEnvs(t, map[string]string{"COGNITO_CLIENT_ID": "client-123"})

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "COGNITO_USER_POOL_ID")
}

func TestLoad_RequiresClientID(t *testing.T) {
	setEnvs(t, map[string]string{"COGNITO_USER_POOL_ID": "us-east-1_abc123"})

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "COGNITO_CLIENT_ID")
}

func TestLoad_StaticVerifier(t *testing.T) {
	tests := []struct {
		name    string
		envs    map[string]string
		wantErr string
	}{
		{
			name: "development accepts short secret",
			envs: map[string]string{"AUTH_STATIC_SECRET": "short"},
		},
		{
			name:    "missing secret",
			envs:    map[string]string{},
			wantErr: "AUTH_STATIC_SECRET is required",
		},
		{
			name:    "production rejects short secret",
			envs:    map[string]string{"ENVIRONMENT": "production", "AUTH_STATIC_SECRET": "short"},
			wantErr: "at least 32 characters",
		},
		{
			name: "production accepts strong secret",
			envs: map[string]string{
				"ENVIRONMENT":        "production",
				"AUTH_STATIC_SECRET": "this-is-a-very-secure-secret-key-for-production-use",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.envs["AUTH_VERIFIER"] = "static"
			tt.envs["COGNITO_CLIENT_ID"] = "client-123"
			setEnvs(t, tt.envs)

			cfg, err := Load()

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, VerifierStatic, cfg.Verifier)
		})
	}
}

func TestLoad_RejectsUnknownBackends(t *testing.T) {
	tests := []struct {
		key, value, wantErr string
	}{
		{"AUTH_VERIFIER", "ldap", "unknown AUTH_VERIFIER"},
		{"RATE_LIMIT_BACKEND", "memcached", "unknown RATE_LIMIT_BACKEND"},
		{"OTEL_SAMPLE_RATE", "1.5", "OTEL_SAMPLE_RATE"},
		{"PROVIDER_MAX_ATTEMPTS", "0", "PROVIDER_MAX_ATTEMPTS"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			envs := cognitoEnv()
			envs[tt.key] = tt.value
			setEnvs(t, envs)

			_, err := Load()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_RateLimitDisabledSkipsBackendCheck(t *testing.T) {
	envs := cognitoEnv()
	envs["RATE_LIMIT_ENABLED"] = "false"
	envs["RATE_LIMIT_BACKEND"] = "memcached"
	setEnvs(t, envs)

	cfg, err := Load()

	require.NoError(t, err)
	assert.False(t, cfg.UsesRedis())
}

func TestLoad_RedisWindowTooShort(t *testing.T) {
	envs := cognitoEnv()
	envs["RATE_LIMIT_BACKEND"] = "redis"
	envs["RATE_LIMIT_RPS"] = "100000"
	envs["RATE_LIMIT_BURST"] = "1"
	setEnvs(t, envs)

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 1ms")
}

func TestLoad_RateLimitSettings(t *testing.T) {
	envs := cognitoEnv()
	envs["RATE_LIMIT_BACKEND"] = "redis"
	envs["RATE_LIMIT_RPS"] = "5"
	envs["RATE_LIMIT_BURST"] = "10"
	envs["RATE_LIMIT_TRUSTED_PROXIES"] = "10.0.0.0/8,192.168.0.0/16"
	setEnvs(t, envs)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.RateLimitWindow())
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16"}, cfg.RateLimitTrustedProxies)
}
