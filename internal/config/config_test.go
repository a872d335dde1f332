package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setRequired(t *testing.T) {
	t.Setenv("TOKEN_SECRET", testSecret)
	t.Setenv("GATEWAY_URL", "http://gateway.local/pay")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultOracleTimeout, cfg.OracleTimeout)
	assert.Equal(t, DefaultGatewayTimeout, cfg.GatewayTimeout)
	assert.Equal(t, DefaultTokenTTL, cfg.TokenTTL)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPS)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("ORACLE_URL", "http://oracle.local/score")
	t.Setenv("ORACLE_API_KEY", "sk-test")
	t.Setenv("ORACLE_TIMEOUT", "2s")
	t.Setenv("RATE_LIMIT_RPS", "25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "http://oracle.local/score", cfg.OracleURL)
	assert.Equal(t, 2*time.Second, cfg.OracleTimeout)
	assert.Equal(t, 25, cfg.RateLimitRPS)
}

func TestLoad_MissingTokenSecret(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "")
	t.Setenv("GATEWAY_URL", "http://gateway.local/pay")

	_, err := Load()
	assert.ErrorContains(t, err, "TOKEN_SECRET")
}

func TestLoad_ShortTokenSecret(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "too-short")
	t.Setenv("GATEWAY_URL", "http://gateway.local/pay")

	_, err := Load()
	assert.ErrorContains(t, err, "32 characters")
}

func TestLoad_OracleKeyRequiredWithURL(t *testing.T) {
	setRequired(t)
	t.Setenv("ORACLE_URL", "http://oracle.local/score")
	t.Setenv("ORACLE_API_KEY", "")

	_, err := Load()
	assert.ErrorContains(t, err, "ORACLE_API_KEY")
}

func TestLoad_NoGateway(t *testing.T) {
	t.Setenv("TOKEN_SECRET", testSecret)
	t.Setenv("GATEWAY_URL", "")
	t.Setenv("STRIPE_API_KEY", "")

	_, err := Load()
	assert.ErrorContains(t, err, "GATEWAY_URL")
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	setRequired(t)
	t.Setenv("GATEWAY_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultGatewayTimeout, cfg.GatewayTimeout)
}
