package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinSecretBytes is the minimum HMAC secret length (256 bits for HS256)
	MinSecretBytes = 32

	// MinTokenTTL is the shortest access token lifetime accepted at startup
	MinTokenTTL = time.Minute
)

// User store backends
const (
	UserStorePostgres = "postgres"
	UserStoreMemory   = "memory"
)

// Role check modes for already-issued tokens
const (
	// RoleCheckSnapshot trusts the roles embedded in the token
	RoleCheckSnapshot = "snapshot"

	// RoleCheckLive intersects token roles with the user's current roles
	RoleCheckLive = "live"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	JWT           JWTConfig
	RateLimit     RateLimitConfig
	Auth          AuthConfig
	Admin         AdminConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	// TrustProxyHeaders takes the client address from X-Forwarded-For /
	// X-Real-IP. Only enable behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// JWTConfig holds token signing configuration
type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

// RateLimitConfig holds login rate limiting configuration
type RateLimitConfig struct {
	Window          time.Duration
	MaxAttempts     int
	MaxKeys         int
	CleanupInterval time.Duration
}

// AuthConfig holds request authentication behaviour
type AuthConfig struct {
	UserStore     string // postgres or memory
	RoleCheck     string // snapshot or live
	PublicPaths   []string
	AdminPrefixes []string
	BcryptCost    int
}

// AdminConfig holds the bootstrap administrator account.
// Bootstrap is skipped when Password is empty.
type AdminConfig struct {
	Username string
	Email    string
	Password string
}

// AuditConfig holds the security audit trail settings
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	WorkerCount int
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	env := &envLoader{}
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:              getEnv("SERVER_HOST", "0.0.0.0"),
			Port:              env.getPort(),
			ReadTimeout:       env.getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      env.getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout:   env.getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:    getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*"}),
			TrustProxyHeaders: env.getEnvAsBool("SERVER_TRUST_PROXY_HEADERS", false),
		},
		Database: env.loadDatabaseConfig(),
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", ""),
			Issuer:     getEnv("JWT_ISSUER", ""),
			Expiration: time.Duration(env.getEnvAsInt64("JWT_EXPIRATION_MS", 900000)) * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Window:          env.getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
			MaxAttempts:     env.getEnvAsInt("RATE_LIMIT_MAX_ATTEMPTS", 5),
			MaxKeys:         env.getEnvAsInt("RATE_LIMIT_MAX_KEYS", 10000),
			CleanupInterval: env.getEnvAsDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Auth: AuthConfig{
			UserStore:     getEnv("USER_STORE", UserStorePostgres),
			RoleCheck:     getEnv("AUTH_ROLE_CHECK", RoleCheckSnapshot),
			PublicPaths:   getEnvAsList("AUTH_PUBLIC_PATHS", DefaultPublicPaths()),
			AdminPrefixes: getEnvAsList("AUTH_ADMIN_PREFIXES", []string{"/admin", "/api/admin"}),
			BcryptCost:    env.getEnvAsInt("AUTH_BCRYPT_COST", bcrypt.DefaultCost),
		},
		Admin: AdminConfig{
			Username: getEnv("ADMIN_USERNAME", "admin"),
			Email:    getEnv("ADMIN_EMAIL", "admin@system.local"),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
		Audit: AuditConfig{
			Enabled:     env.getEnvAsBool("AUDIT_ENABLED", true),
			BufferSize:  env.getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			WorkerCount: env.getEnvAsInt("AUDIT_WORKERS", 2),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Malformed values are fatal rather than silently replaced by defaults
	if err := env.err(); err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultPublicPaths returns the paths that never require authentication.
// Entries ending in "/**" match the prefix and everything below it.
func DefaultPublicPaths() []string {
	return []string{
		"/login",
		"/v3/api-docs/**",
		"/swagger-ui/**",
		"/swagger-ui.html",
		"/healthz",
		"/readyz",
	}
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if err := c.JWT.Validate(); err != nil {
		return err
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	if c.Audit.Enabled && (c.Audit.BufferSize <= 0 || c.Audit.WorkerCount <= 0) {
		return fmt.Errorf("audit buffer size and worker count must be positive")
	}

	switch c.Auth.UserStore {
	case UserStorePostgres:
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	case UserStoreMemory:
		if c.IsProduction() {
			return fmt.Errorf("memory user store is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown user store %q (expected %s or %s)", c.Auth.UserStore, UserStorePostgres, UserStoreMemory)
	}

	if c.Auth.RoleCheck != RoleCheckSnapshot && c.Auth.RoleCheck != RoleCheckLive {
		return fmt.Errorf("unknown role check mode %q (expected %s or %s)", c.Auth.RoleCheck, RoleCheckSnapshot, RoleCheckLive)
	}

	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost) {
		return fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.Auth.BcryptCost)
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// Validate checks the token signing settings
func (c *JWTConfig) Validate() error {
	if len(c.Secret) < MinSecretBytes {
		return fmt.Errorf("jwt secret must be at least %d bytes, got %d", MinSecretBytes, len(c.Secret))
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("jwt issuer is required")
	}
	if c.Expiration < MinTokenTTL {
		return fmt.Errorf("jwt expiration must be at least %s, got %s", MinTokenTTL, c.Expiration)
	}
	return nil
}

// Validate checks the rate limit settings
func (c *RateLimitConfig) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("rate limit max attempts must be at least 1")
	}
	if c.MaxKeys < 1 {
		return fmt.Errorf("rate limit max keys must be at least 1")
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func (e *envLoader) loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     e.getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     e.getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  e.getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            e.getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "authgate"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "authgate"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    e.getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    e.getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: e.getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// envLoader reads typed environment values and collects every value that
// fails to parse, so a typo never falls back to a default unnoticed.
type envLoader struct {
	errs []error
}

func (e *envLoader) fail(key, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (e *envLoader) err() error {
	return errors.Join(e.errs...)
}

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func (e *envLoader) getPort() int {
	if os.Getenv("PORT") != "" {
		return e.getEnvAsInt("PORT", 8080)
	}
	return e.getEnvAsInt("SERVER_PORT", 8080)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (e *envLoader) getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		e.fail(key, valueStr, err)
		return defaultValue
	}
	return value
}

func (e *envLoader) getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(strings.TrimSpace(valueStr), 10, 64)
	if err != nil {
		e.fail(key, valueStr, err)
		return defaultValue
	}
	return value
}

func (e *envLoader) getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		e.fail(key, valueStr, err)
		return defaultValue
	}
	return value
}

func (e *envLoader) getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil {
		e.fail(key, valueStr, err)
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
