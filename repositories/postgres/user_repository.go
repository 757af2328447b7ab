package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/authgate/models"
	"github.com/upb/authgate/repositories"
	"go.uber.org/zap"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = "23505"

const selectUser = `
	SELECT u.id, u.username, u.email, u.password_hash, u.enabled, u.created_at, u.updated_at,
	       COALESCE(array_agg(r.role ORDER BY r.role) FILTER (WHERE r.role IS NOT NULL), '{}')
	FROM users u
	LEFT JOIN user_roles r ON r.user_id = u.id
`

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the user row and its roles in a single statement
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		WITH new_user AS (
			INSERT INTO users (id, username, email, password_hash, enabled, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		)
		INSERT INTO user_roles (user_id, role)
		SELECT id, unnest($8::text[]) FROM new_user
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Enabled,
		user.CreatedAt,
		user.UpdatedAt,
		pq.Array(user.Roles.Strings()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s or email %s already exists", repositories.ErrDuplicate, user.Username, user.Email)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Debug("user created",
		zap.String("id", user.ID.String()),
		zap.String("username", user.Username))
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := r.getOne(ctx, selectUser+`WHERE u.id = $1 GROUP BY u.id`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", repositories.ErrNotFound, id)
	}
	return user, err
}

// GetByUsername retrieves a user by exact username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := r.getOne(ctx, selectUser+`WHERE u.username = $1 GROUP BY u.id`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: username %s", repositories.ErrNotFound, username)
	}
	return user, err
}

// FindByUsernameOrEmail matches login against both columns. An exact
// username match wins over an email match.
func (r *UserRepository) FindByUsernameOrEmail(ctx context.Context, login string) (*models.User, error) {
	query := selectUser + `
		WHERE u.username = $1 OR u.email = $1
		GROUP BY u.id
		ORDER BY (u.username = $1) DESC
		LIMIT 1
	`
	user, err := r.getOne(ctx, query, login)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: login %s", repositories.ErrNotFound, login)
	}
	return user, err
}

// ExistsByUsername reports whether a username is taken
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

// List retrieves users ordered by username
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := selectUser + `
		GROUP BY u.id
		ORDER BY u.username
		LIMIT $1 OFFSET $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := r.scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	return users, nil
}

// SetRoles replaces the user's roles
func (r *UserRepository) SetRoles(ctx context.Context, id uuid.UUID, roles models.RoleSet) error {
	if err := r.touch(ctx, id); err != nil {
		return err
	}

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear roles: %w", err)
	}

	if len(roles) > 0 {
		_, err := executor.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role) SELECT $1, unnest($2::text[])`,
			id, pq.Array(roles.Strings()))
		if err != nil {
			return fmt.Errorf("failed to insert roles: %w", err)
		}
	}

	r.logger.Debug("user roles replaced",
		zap.String("id", id.String()),
		zap.Strings("roles", roles.Strings()))
	return nil
}

// SetEnabled enables or disables login for the user
func (r *UserRepository) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	query := `
		UPDATE users
		SET enabled = $2,
		    updated_at = $3
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, enabled, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if err := requireRow(result, id); err != nil {
		return err
	}

	r.logger.Debug("user enabled flag updated",
		zap.String("id", id.String()),
		zap.Bool("enabled", enabled))
	return nil
}

func (r *UserRepository) touch(ctx context.Context, id uuid.UUID) error {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx,
		`UPDATE users SET updated_at = $2 WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireRow(result, id)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	executor := GetExecutor(ctx, r.db)
	user, err := r.scanUser(executor.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *UserRepository) scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var roles pq.StringArray

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Enabled,
		&user.CreatedAt,
		&user.UpdatedAt,
		&roles,
	)
	if err != nil {
		return nil, err
	}

	set, unknown := models.ParseRoleSet(roles)
	if len(unknown) > 0 {
		r.logger.Warn("ignoring unknown roles stored for user",
			zap.String("username", user.Username),
			zap.Strings("roles", unknown))
	}
	user.Roles = set

	return user, nil
}

func requireRow(result sql.Result, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: user %s", repositories.ErrNotFound, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
