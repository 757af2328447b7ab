package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/authgate/models"
)

var (
	// ErrNotFound is returned when no row matches the lookup
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a unique constraint would be violated
	ErrDuplicate = errors.New("duplicate record")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles user account data operations.
// Lookups return ErrNotFound (wrapped) when the user does not exist.
type UserRepository interface {
	// Create inserts the user together with its roles
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByUsername retrieves a user by exact username
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// FindByUsernameOrEmail retrieves a user whose username or email equals login
	FindByUsernameOrEmail(ctx context.Context, login string) (*models.User, error)

	// ExistsByUsername reports whether a username is taken
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// List retrieves users ordered by username
	List(ctx context.Context, limit, offset int) ([]*models.User, error)

	// SetRoles replaces the user's roles. Callers should run it inside a transaction.
	SetRoles(ctx context.Context, id uuid.UUID, roles models.RoleSet) error

	// SetEnabled enables or disables login for the user
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
}

// AuditRepository stores the security audit trail. Entries are append-only.
type AuditRepository interface {
	// Insert appends an entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// List retrieves entries newest first, optionally filtered by subject
	List(ctx context.Context, filter AuditFilter, limit, offset int) ([]*models.AuditLog, error)
}

// AuditFilter narrows an audit listing. Zero values match everything.
type AuditFilter struct {
	Subject string
	Action  models.AuditAction
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users        UserRepository
	Audit        AuditRepository
	Transactions TransactionManager
}
