// Package bootstrap seeds the administrator account at startup.
package bootstrap

import (
	"context"
	"errors"

	"github.com/upb/authgate/config"
	"github.com/upb/authgate/models"
	"github.com/upb/authgate/repositories"
	"github.com/upb/authgate/services"
	"github.com/upb/authgate/services/users"
	"go.uber.org/zap"
)

// Outcome reports what EnsureAdmin did
type Outcome string

const (
	OutcomeSkipped      Outcome = "skipped"
	OutcomeCreated      Outcome = "created"
	OutcomeRolesGranted Outcome = "roles_granted"
	OutcomeUnchanged    Outcome = "unchanged"
)

// adminRoles are the roles the administrator must always hold
var adminRoles = []models.Role{models.RoleAdmin, models.RoleUser}

// AdminSeeder makes sure the configured administrator exists
type AdminSeeder struct {
	cfg    config.AdminConfig
	users  repositories.UserRepository
	svc    *users.Service
	logger *zap.Logger
}

// NewAdminSeeder creates a seeder
func NewAdminSeeder(cfg config.AdminConfig, repo repositories.UserRepository, svc *users.Service, logger *zap.Logger) *AdminSeeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminSeeder{
		cfg:    cfg,
		users:  repo,
		svc:    svc,
		logger: logger,
	}
}

// EnsureAdmin creates the administrator when missing and grants any missing
// admin roles to an existing one. Without a configured password it does nothing.
// An existing administrator's password is never changed.
func (s *AdminSeeder) EnsureAdmin(ctx context.Context) (Outcome, error) {
	if s.cfg.Password == "" {
		s.logger.Info("admin bootstrap skipped: ADMIN_PASSWORD not set")
		return OutcomeSkipped, nil
	}

	existing, err := s.find(ctx)
	if err != nil {
		return "", services.WrapInternal("failed to look up admin user", err)
	}

	if existing == nil {
		roles := make([]string, len(adminRoles))
		for i, r := range adminRoles {
			roles[i] = r.String()
		}
		_, err := s.svc.Create(ctx, users.CreateUserRequest{
			Username: s.cfg.Username,
			Email:    s.cfg.Email,
			Password: s.cfg.Password,
			Roles:    roles,
		})
		if err != nil {
			return "", err
		}
		s.logger.Info("admin user created", zap.String("username", s.cfg.Username))
		return OutcomeCreated, nil
	}

	missing := false
	granted := models.NewRoleSet()
	for r := range existing.Roles {
		granted.Add(r)
	}
	for _, r := range adminRoles {
		if granted.Add(r) {
			missing = true
		}
	}
	if !missing {
		return OutcomeUnchanged, nil
	}

	roles := make([]models.Role, 0, len(granted))
	for r := range granted {
		roles = append(roles, r)
	}
	if err := s.svc.SetRoles(ctx, existing.Username, roles...); err != nil {
		return "", err
	}

	s.logger.Info("admin roles granted",
		zap.String("username", existing.Username),
		zap.Strings("roles", granted.Strings()))
	return OutcomeRolesGranted, nil
}

// find matches the configured username first, then the configured email.
func (s *AdminSeeder) find(ctx context.Context) (*models.User, error) {
	for _, login := range []string{s.cfg.Username, s.cfg.Email} {
		if login == "" {
			continue
		}
		user, err := s.users.FindByUsernameOrEmail(ctx, login)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}
