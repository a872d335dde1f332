// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Fraud-analysis oracle
	OracleURL     string        // Scoring oracle endpoint (optional, rules-only if not set)
	OracleAPIKey  string        // Bearer token for the oracle
	OracleTimeout time.Duration // Hard budget per oracle call

	// Payment gateway
	GatewayURL     string // HTTP gateway endpoint
	GatewayAPIKey  string
	GatewayTimeout time.Duration
	StripeAPIKey   string // If set, the Stripe gateway is used for card payments

	// Identity verification provider
	VerifierURL     string
	VerifierAPIKey  string
	VerifierTimeout time.Duration

	// Security
	TokenSecret     string        // HMAC secret for verification security tokens
	TokenTTL        time.Duration // Security token lifetime
	WebhookAlertURL string        // Alert sink endpoint (optional)
	WebhookSecret   string        // HMAC secret for signing alert deliveries
	RateLimitRPS    int

	// Observability
	OTLPEndpoint string // OTEL collector endpoint (optional, tracing disabled if not set)
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultOracleTimeout  = 4 * time.Second
	DefaultGatewayTimeout = 15 * time.Second
	DefaultTokenTTL       = 10 * time.Minute
	DefaultRateLimit      = 100
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		OracleURL:       os.Getenv("ORACLE_URL"),
		OracleAPIKey:    os.Getenv("ORACLE_API_KEY"),
		OracleTimeout:   getEnvDuration("ORACLE_TIMEOUT", DefaultOracleTimeout),
		GatewayURL:      os.Getenv("GATEWAY_URL"),
		GatewayAPIKey:   os.Getenv("GATEWAY_API_KEY"),
		GatewayTimeout:  getEnvDuration("GATEWAY_TIMEOUT", DefaultGatewayTimeout),
		StripeAPIKey:    os.Getenv("STRIPE_API_KEY"),
		VerifierURL:     os.Getenv("VERIFIER_URL"),
		VerifierAPIKey:  os.Getenv("VERIFIER_API_KEY"),
		VerifierTimeout: getEnvDuration("VERIFIER_TIMEOUT", DefaultOracleTimeout),
		TokenSecret:     os.Getenv("TOKEN_SECRET"),
		TokenTTL:        getEnvDuration("TOKEN_TTL", DefaultTokenTTL),
		WebhookAlertURL: os.Getenv("WEBHOOK_ALERT_URL"),
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),
		RateLimitRPS:    int(getEnvInt64("RATE_LIMIT_RPS", DefaultRateLimit)),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.TokenSecret == "" {
		return fmt.Errorf("TOKEN_SECRET is required")
	}
	if len(c.TokenSecret) < 32 {
		return fmt.Errorf("TOKEN_SECRET must be at least 32 characters")
	}
	if c.OracleURL != "" && c.OracleAPIKey == "" {
		return fmt.Errorf("ORACLE_API_KEY is required when ORACLE_URL is set")
	}
	if c.GatewayURL == "" && c.StripeAPIKey == "" {
		return fmt.Errorf("one of GATEWAY_URL or STRIPE_API_KEY is required")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
