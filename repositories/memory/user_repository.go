// Package memory provides process-local repositories for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/authgate/models"
	"github.com/upb/authgate/repositories"
)

// UserRepository keeps users in a map. Values are copied on the way in and
// out so callers never share state with the store.
type UserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*models.User
}

// NewUserRepository creates an empty repository
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users: make(map[uuid.UUID]*models.User),
	}
}

// NewRepositories returns an in-memory repository set
func NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Users:        NewUserRepository(),
		Audit:        NewAuditRepository(),
		Transactions: TransactionManager{},
	}
}

// Create stores a copy of user
func (r *UserRepository) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return fmt.Errorf("%w: user %s", repositories.ErrDuplicate, user.ID)
	}
	for _, existing := range r.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return fmt.Errorf("%w: user %s or email %s already exists", repositories.ErrDuplicate, user.Username, user.Email)
		}
	}

	r.users[user.ID] = clone(user)
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", repositories.ErrNotFound, id)
	}
	return clone(user), nil
}

// GetByUsername retrieves a user by exact username
func (r *UserRepository) GetByUsername(_ context.Context, username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.Username == username {
			return clone(user), nil
		}
	}
	return nil, fmt.Errorf("%w: username %s", repositories.ErrNotFound, username)
}

// FindByUsernameOrEmail prefers an exact username match over an email match
func (r *UserRepository) FindByUsernameOrEmail(_ context.Context, login string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var byEmail *models.User
	for _, user := range r.users {
		if user.Username == login {
			return clone(user), nil
		}
		if user.Email == login {
			byEmail = user
		}
	}
	if byEmail != nil {
		return clone(byEmail), nil
	}
	return nil, fmt.Errorf("%w: login %s", repositories.ErrNotFound, login)
}

// ExistsByUsername reports whether a username is taken
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.GetByUsername(ctx, username)
	return err == nil, nil
}

// List returns users ordered by username
func (r *UserRepository) List(_ context.Context, limit, offset int) ([]*models.User, error) {
	r.mu.RLock()
	all := make([]*models.User, 0, len(r.users))
	for _, user := range r.users {
		all = append(all, clone(user))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// SetRoles replaces the user's roles
func (r *UserRepository) SetRoles(_ context.Context, id uuid.UUID, roles models.RoleSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return fmt.Errorf("%w: user %s", repositories.ErrNotFound, id)
	}
	user.Roles = models.NewRoleSet()
	for role := range roles {
		user.Roles.Add(role)
	}
	user.UpdatedAt = time.Now().UTC()
	return nil
}

// SetEnabled enables or disables login for the user
func (r *UserRepository) SetEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return fmt.Errorf("%w: user %s", repositories.ErrNotFound, id)
	}
	user.Enabled = enabled
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func clone(u *models.User) *models.User {
	c := *u
	c.Roles = models.NewRoleSet()
	for role := range u.Roles {
		c.Roles.Add(role)
	}
	return &c
}
