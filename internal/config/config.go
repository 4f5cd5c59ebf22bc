package config

import (
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/utafrali/WeddingDonations/pkg/config"
	"github.com/utafrali/WeddingDonations/pkg/database"
	"github.com/utafrali/WeddingDonations/pkg/tracing"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Gateway modes.
const (
	PaystackModeLive = "live"
	PaystackModeFake = "fake"
)

// Config holds all configuration for the donation API.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int      `env:"HTTP_PORT" envDefault:"3001"`
	FrontendURL        string   `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"wedding"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"wedding_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"wedding_donations"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"500"`

	// Redis (webhook de-duplication)
	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka (domain events)
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELInsecure   bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// JWT and refresh tokens
	JWTSecret             string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTAccessExpiry       time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	RefreshTokenExpiry    time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"168h"`
	RefreshTokenMaxExpiry time.Duration `env:"REFRESH_TOKEN_MAX_EXPIRY" envDefault:"720h"`
	TokenCleanupInterval  time.Duration `env:"TOKEN_CLEANUP_INTERVAL" envDefault:"1h"`

	// Paystack
	PaystackMode      string        `env:"PAYSTACK_MODE" envDefault:"live"`
	PaystackSecretKey string        `env:"PAYSTACK_SECRET_KEY"`
	PaystackBaseURL   string        `env:"PAYSTACK_BASE_URL" envDefault:"https://api.paystack.co"`
	PaystackTimeout   time.Duration `env:"PAYSTACK_TIMEOUT" envDefault:"30s"`

	// Payments
	DefaultCurrency     string        `env:"PAYMENT_DEFAULT_CURRENCY" envDefault:"XOF"`
	AnonymousDonorEmail string        `env:"ANONYMOUS_DONOR_EMAIL" envDefault:"anonymous@wedding-donations.local"`
	WebhookDedupTTL     time.Duration `env:"WEBHOOK_DEDUP_TTL" envDefault:"24h"`

	// Rate limits
	AuthRateLimitRPS      float64 `env:"AUTH_RATE_LIMIT_RPS" envDefault:"1"`
	AuthRateLimitBurst    int     `env:"AUTH_RATE_LIMIT_BURST" envDefault:"5"`
	WebhookRateLimitRPS   float64 `env:"WEBHOOK_RATE_LIMIT_RPS" envDefault:"20"`
	WebhookRateLimitBurst int     `env:"WEBHOOK_RATE_LIMIT_BURST" envDefault:"40"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load donation config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.FrontendURL == "" {
		return fmt.Errorf("FRONTEND_URL is required")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if c.JWTAccessExpiry <= 0 {
		return fmt.Errorf("JWT_ACCESS_TOKEN_EXPIRY must be > 0, got %s", c.JWTAccessExpiry)
	}
	if c.RefreshTokenExpiry <= 0 || c.RefreshTokenExpiry > c.RefreshTokenMaxExpiry {
		return fmt.Errorf("REFRESH_TOKEN_EXPIRY must be in (0, %s], got %s", c.RefreshTokenMaxExpiry, c.RefreshTokenExpiry)
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("PAYMENT_DEFAULT_CURRENCY must be a 3-letter code, got %q", c.DefaultCurrency)
	}
	c.DefaultCurrency = strings.ToUpper(c.DefaultCurrency)

	switch c.PaystackMode {
	case PaystackModeLive, PaystackModeFake:
	default:
		return fmt.Errorf("PAYSTACK_MODE must be %q or %q, got %q", PaystackModeLive, PaystackModeFake, c.PaystackMode)
	}
	if c.RedisEnabled && c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required when REDIS_ENABLED is true")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}

	// Outside development, secrets must be explicitly set.
	if !c.IsDevelopment() {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret))
		}
		if c.PaystackSecretKey == "" {
			return fmt.Errorf("PAYSTACK_SECRET_KEY is required in %q mode", c.Environment)
		}
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// WebhookSecret is the key provider notifications are signed with. Paystack
// signs webhooks with the account's secret key.
func (c *Config) WebhookSecret() string {
	return c.PaystackSecretKey
}

// Postgres returns the connection and pool settings.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the Redis connection settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		PoolSize: 10,
	}
}

// Tracing returns the OpenTelemetry exporter settings.
func (c *Config) Tracing(serviceName, version string) tracing.Config {
	return tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTELEndpoint,
		Insecure:       c.OTELInsecure,
		SampleRate:     c.OTELSampleRate,
		Enabled:        c.OTELEnabled,
	}
}
