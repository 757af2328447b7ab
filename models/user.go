package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a locally managed account that logs in with a password
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Roles        RoleSet   `json:"-" db:"-"`
	Enabled      bool      `json:"enabled" db:"enabled"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new enabled User instance
func NewUser(username, email, passwordHash string, roles ...Role) *User {
	now := time.Now()
	return &User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Roles:        NewRoleSet(roles...),
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsAdmin returns true if the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Roles.Has(RoleAdmin)
}

// Identity returns the authentication view of the user
func (u *User) Identity() Identity {
	roles := make(RoleSet, len(u.Roles))
	for r := range u.Roles {
		roles[r] = struct{}{}
	}
	return Identity{
		Subject: u.Username,
		Roles:   roles,
		Enabled: u.Enabled,
	}
}

// Identity is the authenticated subject and its granted roles. It is a
// value snapshot; changing the user afterwards does not affect it.
type Identity struct {
	Subject string
	Roles   RoleSet
	Enabled bool
}
