package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/authgate/config"
	"github.com/upb/authgate/repositories"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

func TestNewDependencies(t *testing.T) {
	t.Run("memory store wires every component", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig()
		logger := zaptest.NewLogger(t)

		deps, err := NewDependencies(ctx, cfg, logger)
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.NotNil(t, deps.Metrics)
		assert.Nil(t, deps.RepoFactory)
		assert.NotNil(t, deps.Repos)
		assert.NotNil(t, deps.Codec)
		assert.NotNil(t, deps.Limiter)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.AccessPolicy)
		assert.NotNil(t, deps.AuthService)
		assert.NotNil(t, deps.UserService)
		assert.Nil(t, deps.Audit)
		assert.Empty(t, deps.HealthChecks)
		assert.Equal(t, int64(900), deps.Codec.ExpirationSeconds())

		admin, err := deps.Repos.Users.GetByUsername(ctx, "admin")
		require.NoError(t, err)
		assert.True(t, admin.IsAdmin())

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("audit trail enabled", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig()
		cfg.Audit = config.AuditConfig{Enabled: true, BufferSize: 10, WorkerCount: 1}

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps.Audit)
		assert.True(t, deps.Audit.GetStats().Started)

		require.NoError(t, deps.Audit.LogLoginSucceeded("admin", "127.0.0.1", ""))
		require.NoError(t, deps.Close(ctx))
		assert.Nil(t, deps.Audit)

		logs, err := deps.Repos.Audit.List(ctx, repositories.AuditFilter{}, 10, 0)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, "admin", logs[0].Subject)
	})

	t.Run("admin bootstrap skipped without password", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig()
		cfg.Admin.Password = ""

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		exists, err := deps.UserService.Exists(ctx, "admin")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("weak secret fails", func(t *testing.T) {
		cfg := testConfig()
		cfg.JWT.Secret = "short"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize security")
	})

	t.Run("database connection failure", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig()
		cfg.Auth.UserStore = config.UserStorePostgres
		cfg.Database = config.DatabaseConfig{
			Host:     "invalid-host-that-does-not-exist",
			Port:     5432,
			User:     "authgate",
			Database: "authgate",
			SSLMode:  "disable",
		}

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize user store")
	})
}

func TestDependencies_StartBackground(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig()
	cfg.RateLimit.CleanupInterval = 10 * time.Millisecond

	// the worker may log after the test returns, so no zaptest logger here
	deps, err := NewDependencies(ctx, cfg, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, deps.Limiter.Allow("198.51.100.4"))
	deps.StartBackground(ctx)
	cancel()
	assert.NoError(t, deps.Close(context.Background()))
}

// Test helpers

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		JWT: config.JWTConfig{
			Secret:     "0123456789abcdef0123456789abcdef",
			Issuer:     "authgate-test",
			Expiration: 15 * time.Minute,
		},
		RateLimit: config.RateLimitConfig{
			Window:      time.Minute,
			MaxAttempts: 5,
			MaxKeys:     100,
		},
		Auth: config.AuthConfig{
			UserStore:     config.UserStoreMemory,
			RoleCheck:     config.RoleCheckSnapshot,
			PublicPaths:   config.DefaultPublicPaths(),
			AdminPrefixes: []string{"/admin", "/api/admin"},
			BcryptCost:    bcrypt.MinCost,
		},
		Admin: config.AdminConfig{
			Username: "admin",
			Email:    "admin@system.local",
			Password: "admin-password",
		},
		Observability: config.ObservabilityConfig{LogLevel: "info"},
	}
}
