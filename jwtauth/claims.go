package jwtauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the JWT payload as it appears on the wire
type TokenClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Claims is the validated content of an access token
type Claims struct {
	ID        string
	Subject   string
	Issuer    string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// parseClaims converts wire claims into Claims, enforcing the shape we issue
func parseClaims(tc *TokenClaims) (*Claims, error) {
	if tc.Subject == "" {
		return nil, ErrMalformed
	}
	if tc.IssuedAt == nil || tc.ExpiresAt == nil {
		return nil, ErrMalformed
	}

	roles := make([]string, len(tc.Roles))
	copy(roles, tc.Roles)

	return &Claims{
		ID:        tc.ID,
		Subject:   tc.Subject,
		Issuer:    tc.Issuer,
		Roles:     roles,
		IssuedAt:  tc.IssuedAt.Time,
		ExpiresAt: tc.ExpiresAt.Time,
	}, nil
}
