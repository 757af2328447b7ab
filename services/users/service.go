// Package users manages local accounts: creation, role grants and disabling.
package users

import (
	"context"
	"errors"
	"strings"

	"github.com/upb/authgate/models"
	"github.com/upb/authgate/repositories"
	"github.com/upb/authgate/services"
	"github.com/upb/authgate/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// CreateUserRequest describes a new account
type CreateUserRequest struct {
	Username string   `json:"username" validate:"required,min=3,max=100"`
	Email    string   `json:"email" validate:"required,email,max=255"`
	Password string   `json:"password" validate:"required,min=8,max=72"`
	Roles    []string `json:"roles" validate:"dive,role"`
}

// Service manages user accounts
type Service struct {
	repos  *repositories.Repositories
	logger *zap.Logger
	cost   int
}

// NewService creates a user service. cost is the bcrypt cost for new passwords;
// zero selects bcrypt.DefaultCost.
func NewService(repos *repositories.Repositories, logger *zap.Logger, cost int) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		repos:  repos,
		logger: logger,
		cost:   cost,
	}
}

// Create validates req, hashes the password and stores the account.
// Accounts without explicit roles get ROLE_USER.
func (s *Service) Create(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if err := utils.ValidateStruct(&req); err != nil {
		return nil, services.WrapError(services.ErrorTypeValidation, err.Error(), err)
	}

	roles := []models.Role{models.RoleUser}
	if len(req.Roles) > 0 {
		set, unknown := models.ParseRoleSet(req.Roles)
		if len(unknown) > 0 {
			return nil, services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidRole.Message, nil).
				WithDetail("roles", unknown)
		}
		roles = roles[:0]
		for r := range set {
			roles = append(roles, r)
		}
	}

	hash, err := HashPassword(req.Password, s.cost)
	if err != nil {
		return nil, err
	}

	user := models.NewUser(req.Username, req.Email, hash, roles...)
	if err := s.repos.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, services.NewDomainError(services.ErrorTypeConflict, services.ErrDuplicateUser.Message, err)
		}
		return nil, services.WrapInternal("failed to create user", err)
	}

	s.logger.Info("user created",
		zap.String("username", user.Username),
		zap.Strings("roles", user.Roles.Strings()))
	return user, nil
}

// SetRoles replaces the roles of username. Tokens issued earlier keep the
// roles they were issued with.
func (s *Service) SetRoles(ctx context.Context, username string, roles ...models.Role) error {
	for _, r := range roles {
		if !r.IsValid() {
			return services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidRole.Message, nil).
				WithDetail("role", string(r))
		}
	}

	return services.WithTransaction(ctx, s.repos.Transactions, func(ctx context.Context, _ repositories.Transaction) error {
		user, err := s.lookup(ctx, username)
		if err != nil {
			return err
		}
		if err := s.repos.Users.SetRoles(ctx, user.ID, models.NewRoleSet(roles...)); err != nil {
			return services.WrapInternal("failed to update roles", err)
		}
		s.logger.Info("user roles updated",
			zap.String("username", username),
			zap.Strings("roles", models.NewRoleSet(roles...).Strings()))
		return nil
	})
}

// SetEnabled enables or disables login for username
func (s *Service) SetEnabled(ctx context.Context, username string, enabled bool) error {
	user, err := s.lookup(ctx, username)
	if err != nil {
		return err
	}
	if err := s.repos.Users.SetEnabled(ctx, user.ID, enabled); err != nil {
		return services.WrapInternal("failed to update user", err)
	}
	s.logger.Info("user enabled flag updated",
		zap.String("username", username),
		zap.Bool("enabled", enabled))
	return nil
}

// Exists reports whether username is taken
func (s *Service) Exists(ctx context.Context, username string) (bool, error) {
	exists, err := s.repos.Users.ExistsByUsername(ctx, username)
	if err != nil {
		return false, services.WrapInternal("failed to check username", err)
	}
	return exists, nil
}

// List returns a page of users ordered by username
func (s *Service) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	list, err := s.repos.Users.List(ctx, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list users", err)
	}
	return list, nil
}

func (s *Service) lookup(ctx context.Context, username string) (*models.User, error) {
	user, err := s.repos.Users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, services.WrapInternal("failed to load user", err)
	}
	return user, nil
}

// HashPassword hashes password with bcrypt at cost
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", services.NewDomainError(services.ErrorTypeValidation, "password longer than 72 bytes", err)
		}
		return "", services.WrapInternal("failed to hash password", err)
	}
	return string(hash), nil
}
