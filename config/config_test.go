package config

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default configuration",
			envVars: map[string]string{
				"JWT_SECRET": testSecret,
				"JWT_ISSUER": "authgate",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.False(t, cfg.Server.TrustProxyHeaders)
				assert.Equal(t, 15*time.Minute, cfg.JWT.Expiration)
				assert.Equal(t, time.Minute, cfg.RateLimit.Window)
				assert.Equal(t, 5, cfg.RateLimit.MaxAttempts)
				assert.Equal(t, 10000, cfg.RateLimit.MaxKeys)
				assert.Equal(t, UserStorePostgres, cfg.Auth.UserStore)
				assert.Equal(t, RoleCheckSnapshot, cfg.Auth.RoleCheck)
				assert.Equal(t, DefaultPublicPaths(), cfg.Auth.PublicPaths)
				assert.Equal(t, []string{"/admin", "/api/admin"}, cfg.Auth.AdminPrefixes)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 10, cfg.Auth.BcryptCost)
				assert.Equal(t, "admin", cfg.Admin.Username)
				assert.Empty(t, cfg.Admin.Password)
				assert.True(t, cfg.Audit.Enabled)
				assert.Equal(t, 1000, cfg.Audit.BufferSize)
				assert.Equal(t, 2, cfg.Audit.WorkerCount)
			},
		},
		{
			name: "custom token and rate limit settings",
			envVars: map[string]string{
				"JWT_SECRET":              testSecret,
				"JWT_ISSUER":              "issuer.example.com",
				"JWT_EXPIRATION_MS":       "120000",
				"RATE_LIMIT_WINDOW":       "30s",
				"RATE_LIMIT_MAX_ATTEMPTS": "3",
				"RATE_LIMIT_MAX_KEYS":     "100",
				"AUTH_ROLE_CHECK":         "live",
				"USER_STORE":              "memory",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "issuer.example.com", cfg.JWT.Issuer)
				assert.Equal(t, 2*time.Minute, cfg.JWT.Expiration)
				assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
				assert.Equal(t, 3, cfg.RateLimit.MaxAttempts)
				assert.Equal(t, 100, cfg.RateLimit.MaxKeys)
				assert.Equal(t, RoleCheckLive, cfg.Auth.RoleCheck)
				assert.Equal(t, UserStoreMemory, cfg.Auth.UserStore)
			},
		},
		{
			name: "list settings are split on commas",
			envVars: map[string]string{
				"JWT_SECRET":           testSecret,
				"JWT_ISSUER":           "authgate",
				"AUTH_PUBLIC_PATHS":    "/login, /status ,",
				"CORS_ALLOWED_ORIGINS": "https://app.example.com",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"/login", "/status"}, cfg.Auth.PublicPaths)
				assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
			},
		},
		{
			name: "PORT env var takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"JWT_SECRET":  testSecret,
				"JWT_ISSUER":  "authgate",
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name: "missing secret fails",
			envVars: map[string]string{
				"JWT_ISSUER": "authgate",
			},
			wantErr: true,
		},
		{
			name: "short secret fails",
			envVars: map[string]string{
				"JWT_SECRET": "too-short",
				"JWT_ISSUER": "authgate",
			},
			wantErr: true,
		},
		{
			name: "blank issuer fails",
			envVars: map[string]string{
				"JWT_SECRET": testSecret,
				"JWT_ISSUER": "   ",
			},
			wantErr: true,
		},
		{
			name: "expiration below one minute fails",
			envVars: map[string]string{
				"JWT_SECRET":        testSecret,
				"JWT_ISSUER":        "authgate",
				"JWT_EXPIRATION_MS": "59999",
			},
			wantErr: true,
		},
		{
			name: "memory store rejected in production",
			envVars: map[string]string{
				"JWT_SECRET":  testSecret,
				"JWT_ISSUER":  "authgate",
				"USER_STORE":  "memory",
				"ENVIRONMENT": "production",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := New(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Database: DatabaseConfig{
			Host:     "localhost",
			User:     "user",
			Database: "db",
		},
		JWT: JWTConfig{
			Secret:     testSecret,
			Issuer:     "authgate",
			Expiration: 15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Window:      time.Minute,
			MaxAttempts: 5,
			MaxKeys:     100,
		},
		Auth: AuthConfig{
			UserStore: UserStorePostgres,
			RoleCheck: RoleCheckSnapshot,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid development config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "secret of exactly 32 bytes is accepted",
			mutate:  func(c *Config) { c.JWT.Secret = strings.Repeat("s", MinSecretBytes) },
			wantErr: false,
		},
		{
			name:    "secret of 31 bytes is rejected",
			mutate:  func(c *Config) { c.JWT.Secret = strings.Repeat("s", MinSecretBytes-1) },
			wantErr: true,
			errMsg:  "jwt secret must be at least 32 bytes",
		},
		{
			name:    "expiration of exactly one minute is accepted",
			mutate:  func(c *Config) { c.JWT.Expiration = time.Minute },
			wantErr: false,
		},
		{
			name:    "missing database host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: true,
			errMsg:  "database configuration required",
		},
		{
			name: "memory store needs no database",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{}
				c.Auth.UserStore = UserStoreMemory
			},
			wantErr: false,
		},
		{
			name:    "unknown user store",
			mutate:  func(c *Config) { c.Auth.UserStore = "ldap" },
			wantErr: true,
			errMsg:  "unknown user store",
		},
		{
			name:    "unknown role check mode",
			mutate:  func(c *Config) { c.Auth.RoleCheck = "sometimes" },
			wantErr: true,
			errMsg:  "unknown role check mode",
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *Config) { c.RateLimit.MaxAttempts = 0 },
			wantErr: true,
			errMsg:  "max attempts",
		},
		{
			name:    "bcrypt cost out of range",
			mutate:  func(c *Config) { c.Auth.BcryptCost = 3 },
			wantErr: true,
			errMsg:  "bcrypt cost",
		},
		{
			name:    "enabled audit with no workers",
			mutate:  func(c *Config) { c.Audit = AuditConfig{Enabled: true, BufferSize: 10} },
			wantErr: true,
			errMsg:  "audit buffer size",
		},
		{
			name:    "disabled audit ignores sizes",
			mutate:  func(c *Config) { c.Audit = AuditConfig{Enabled: false} },
			wantErr: false,
		},
		{
			name:    "zero window",
			mutate:  func(c *Config) { c.RateLimit.Window = 0 },
			wantErr: true,
			errMsg:  "window must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	assert.True(t, (&Config{Environment: "production"}).IsProduction())
	assert.True(t, (&Config{Environment: "prod"}).IsProduction())
	assert.False(t, (&Config{Environment: "development"}).IsProduction())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		Database: "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	assert.Equal(t, expected, cfg.DSN())

	cfg.ConnectionString = "postgres://u:p@db.internal:6543/auth"
	assert.Equal(t, "postgres://u:p@db.internal:6543/auth", cfg.DSN())
	assert.Equal(t, "host=db.internal port=6543 database=auth", cfg.LogString())
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{
		Host: "0.0.0.0",
		Port: 8080,
	}

	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
}

func TestGetEnvAsInt64(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue int64
		want         int64
		wantErr      bool
	}{
		{"valid int", "TEST_INT64", "900000", 10, 900000, false},
		{"empty value", "TEST_INT64", "", 10, 10, false},
		{"invalid int", "TEST_INT64", "not-a-number", 10, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv(tt.key, tt.value)
			}
			env := &envLoader{}
			got := env.getEnvAsInt64(tt.key, tt.defaultValue)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				require.Error(t, env.err())
				assert.Contains(t, env.err().Error(), tt.key)
			} else {
				assert.NoError(t, env.err())
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue time.Duration
		want         time.Duration
		wantErr      bool
	}{
		{"valid duration", "45s", time.Second, 45 * time.Second, false},
		{"empty value", "", time.Second, time.Second, false},
		{"invalid duration", "soon", time.Second, time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_DURATION", tt.value)
			}
			env := &envLoader{}
			assert.Equal(t, tt.want, env.getEnvAsDuration("TEST_DURATION", tt.defaultValue))
			assert.Equal(t, tt.wantErr, env.err() != nil)
		})
	}
}

func TestNew_MalformedValuesAreFatal(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"token lifetime given as a duration", "JWT_EXPIRATION_MS", "30s"},
		{"max attempts spelled out", "RATE_LIMIT_MAX_ATTEMPTS", "five"},
		{"max keys not a number", "RATE_LIMIT_MAX_KEYS", "lots"},
		{"window without unit", "RATE_LIMIT_WINDOW", "60"},
		{"bcrypt cost not a number", "AUTH_BCRYPT_COST", "high"},
		{"proxy trust not a bool", "SERVER_TRUST_PROXY_HEADERS", "maybe"},
		{"port not a number", "PORT", "http"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("JWT_SECRET", testSecret)
			os.Setenv("JWT_ISSUER", "authgate")
			os.Setenv(tt.key, tt.value)

			cfg, err := New(context.Background())
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestNew_ReportsEveryMalformedValue(t *testing.T) {
	os.Clearenv()
	os.Setenv("JWT_SECRET", testSecret)
	os.Setenv("JWT_ISSUER", "authgate")
	os.Setenv("JWT_EXPIRATION_MS", "30s")
	os.Setenv("RATE_LIMIT_MAX_ATTEMPTS", "five")

	_, err := New(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_EXPIRATION_MS")
	assert.Contains(t, err.Error(), "RATE_LIMIT_MAX_ATTEMPTS")
}
