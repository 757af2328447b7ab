package app

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/authgate/config"
	"github.com/upb/authgate/handlers"
	"github.com/upb/authgate/internal/observability"
	"github.com/upb/authgate/jwtauth"
	"github.com/upb/authgate/middleware"
	"github.com/upb/authgate/repositories"
	"github.com/upb/authgate/repositories/memory"
	"github.com/upb/authgate/repositories/postgres"
	"github.com/upb/authgate/services/audit"
	"github.com/upb/authgate/services/auth"
	"github.com/upb/authgate/services/bootstrap"
	"github.com/upb/authgate/services/ratelimit"
	"github.com/upb/authgate/services/users"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.AuthMetrics

	// RepoFactory is nil when the in-memory user store is configured
	RepoFactory *postgres.RepositoryFactory
	Repos       *repositories.Repositories

	// Security
	Codec          *jwtauth.Codec
	Limiter        *ratelimit.LoginLimiter
	AuthMiddleware *middleware.AuthMiddleware
	AccessPolicy   *middleware.AccessPolicy

	// Services
	AuthService *auth.Service
	UserService *users.Service
	// Audit is nil when AUDIT_ENABLED=false
	Audit *audit.AuditService

	HealthChecks map[string]handlers.HealthCheck
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:       cfg,
		Logger:       logger,
		HealthChecks: make(map[string]handlers.HealthCheck),
	}

	metrics, err := observability.NewAuthMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	deps.Metrics = metrics

	if err := deps.initStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize user store: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		deps.closeStore()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := deps.initSecurity(cfg); err != nil {
		deps.stopAudit(time.Second)
		deps.closeStore()
		return nil, fmt.Errorf("failed to initialize security: %w", err)
	}

	seeder := bootstrap.NewAdminSeeder(cfg.Admin, deps.Repos.Users, deps.UserService, logger)
	if _, err := seeder.EnsureAdmin(ctx); err != nil {
		deps.stopAudit(time.Second)
		deps.closeStore()
		return nil, fmt.Errorf("failed to bootstrap admin user: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("user_store", cfg.Auth.UserStore),
		zap.String("role_check", cfg.Auth.RoleCheck),
		zap.Bool("audit", cfg.Audit.Enabled))
	return deps, nil
}

// initStore opens the configured user store
func (d *Dependencies) initStore(ctx context.Context, cfg *config.Config) error {
	if cfg.Auth.UserStore == config.UserStoreMemory {
		d.Repos = memory.NewRepositories()
		d.Logger.Warn("using in-memory user store; accounts are lost on restart")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	d.RepoFactory = factory

	if err := factory.InitSchema(ctx); err != nil {
		d.closeStore()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Repos = factory.NewRepositories()
	d.HealthChecks["database"] = factory.GetDB().HealthCheck
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) error {
	authService, err := auth.NewService(d.Repos.Users, d.Logger, auth.WithBcryptCost(cfg.Auth.BcryptCost))
	if err != nil {
		return err
	}
	d.AuthService = authService
	d.UserService = users.NewService(d.Repos, d.Logger, cfg.Auth.BcryptCost)

	if cfg.Audit.Enabled {
		d.Audit = audit.NewAuditService(d.Repos.Audit, d.Logger, audit.Config{
			BufferSize:  cfg.Audit.BufferSize,
			WorkerCount: cfg.Audit.WorkerCount,
		})
		if err := d.Audit.Start(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dependencies) initSecurity(cfg *config.Config) error {
	codec, err := jwtauth.NewCodec(cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to create token codec: %w", err)
	}
	d.Codec = codec

	limiter, err := ratelimit.NewLoginLimiter(cfg.RateLimit, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create login limiter: %w", err)
	}
	d.Limiter = limiter

	public := middleware.NewPathMatcher(cfg.Auth.PublicPaths)
	admin := middleware.NewPrefixMatcher(cfg.Auth.AdminPrefixes)

	opts := []middleware.AuthOption{middleware.WithMetrics(d.Metrics)}
	if cfg.Auth.RoleCheck == config.RoleCheckLive {
		opts = append(opts, middleware.WithIdentityLookup(d.AuthService))
	}
	d.AuthMiddleware = middleware.NewAuthMiddleware(codec, public, d.Logger, opts...)
	d.AccessPolicy = middleware.NewAccessPolicy(public, admin, d.Logger)
	return nil
}

// StartBackground runs the limiter cleanup worker until ctx is cancelled
func (d *Dependencies) StartBackground(ctx context.Context) {
	if d.Config.RateLimit.CleanupInterval <= 0 {
		return
	}
	go d.Limiter.StartCleanupWorker(ctx, d.Config.RateLimit.CleanupInterval)
}

func (d *Dependencies) stopAudit(timeout time.Duration) error {
	if d.Audit == nil {
		return nil
	}
	err := d.Audit.Stop(timeout)
	d.Audit = nil
	return err
}

func (d *Dependencies) closeStore() {
	if d.RepoFactory == nil {
		return
	}
	if err := d.RepoFactory.Close(); err != nil {
		d.Logger.Warn("failed to close database", zap.Error(err))
	}
	d.RepoFactory = nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// drain audit events before the database goes away
	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := d.stopAudit(timeout); err != nil {
		errs = append(errs, err)
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
