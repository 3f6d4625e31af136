package config

import (
	"fmt"
	"slices"
	"time"

	pkgconfig "github.com/justin-elyphant/elyphant-v1-sub002/pkg/config"
	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/database"
)

// Storage backends for profile documents.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Config holds all configuration for the wishlist service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// HTTP server
	HTTPPort int `env:"WISHLIST_HTTP_PORT" envDefault:"8010"`

	// Profile storage
	StoreBackend string `env:"STORE_BACKEND" envDefault:"postgres"`

	// PostgreSQL
	PostgresHost       string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort       int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser       string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass       string `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB         string `env:"WISHLIST_DB_NAME" envDefault:"wishlist_db"`
	PostgresSSL        string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns         int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns         int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	SlowQueryThreshold int    `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"wishlist-service"`

	// JWT
	JWTSecret string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTLeeway time.Duration `env:"JWT_LEEWAY" envDefault:"30s"`

	// Product catalog
	CatalogBaseURL string        `env:"CATALOG_BASE_URL" envDefault:"http://localhost:8001"`
	CatalogTimeout time.Duration `env:"CATALOG_TIMEOUT" envDefault:"3s"`

	// Engine
	AddRetryDelay  time.Duration `env:"WISHLIST_ADD_RETRY_DELAY" envDefault:"500ms"`
	SessionIdleTTL time.Duration `env:"WISHLIST_SESSION_IDLE_TTL" envDefault:"30m"`

	// Rate limiting, per account
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// pprof
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load wishlist config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if !slices.Contains([]string{BackendPostgres, BackendRedis}, c.StoreBackend) {
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendRedis, c.StoreBackend)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.AddRetryDelay < 0 {
		return fmt.Errorf("WISHLIST_ADD_RETRY_DELAY must not be negative")
	}
	if c.SessionIdleTTL < 0 {
		return fmt.Errorf("WISHLIST_SESSION_IDLE_TTL must not be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1], got %v", c.OTELSampleRate)
	}

	if c.Environment != "development" {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret))
		}
	}
	return nil
}

// Postgres returns the connection settings for database.NewPostgresPool.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Redis returns the connection settings for database.NewRedisClient.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}
