// Package auth verifies login credentials against the user store.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/upb/authgate/models"
	"github.com/upb/authgate/repositories"
	"github.com/upb/authgate/services"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Option configures a Service
type Option func(*Service)

// WithBcryptCost sets the cost of the placeholder hash compared when a user
// does not exist. It should match the cost used for real passwords.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

// Service checks credentials and resolves identities
type Service struct {
	users     repositories.UserRepository
	logger    *zap.Logger
	cost      int
	dummyHash []byte
}

// NewService creates a credential service backed by users
func NewService(users repositories.UserRepository, logger *zap.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		users:  users,
		logger: logger,
		cost:   bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("authgate-placeholder"), s.cost)
	if err != nil {
		return nil, services.WrapInternal("failed to prepare password hasher", err)
	}
	s.dummyHash = hash

	return s, nil
}

// Authenticate resolves login (username or email) and verifies password.
// Unknown users and wrong passwords both yield services.ErrBadCredentials;
// a correct password on a disabled account yields services.ErrAccountDisabled.
func (s *Service) Authenticate(ctx context.Context, login, password string) (models.Identity, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return models.Identity{}, services.ErrBadCredentials
	}

	user, err := s.users.FindByUsernameOrEmail(ctx, login)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// Spend the same work as a real check so timing does not reveal unknown users
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return models.Identity{}, services.ErrBadCredentials
		}
		return models.Identity{}, services.WrapInternal("failed to load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.logger.Warn("stored password hash is unusable",
				zap.String("username", user.Username),
				zap.Error(err))
		}
		return models.Identity{}, services.ErrBadCredentials
	}

	if !user.Enabled {
		return models.Identity{}, services.ErrAccountDisabled
	}

	return user.Identity(), nil
}

// LookupIdentity returns the current identity for subject. It is used to
// re-check roles of already issued tokens.
func (s *Service) LookupIdentity(ctx context.Context, subject string) (models.Identity, error) {
	user, err := s.users.GetByUsername(ctx, subject)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Identity{}, services.ErrUserNotFound
		}
		return models.Identity{}, services.WrapInternal("failed to load user", err)
	}
	return user.Identity(), nil
}
