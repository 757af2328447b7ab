// Package jwtauth issues and validates the HS256 access tokens handed out by
// the login endpoint. The Codec is the only holder of the signing key.
package jwtauth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/authgate/config"
	"github.com/upb/authgate/models"
)

var (
	// ErrMalformed is returned when the token cannot be parsed into the expected claims
	ErrMalformed = errors.New("malformed token")

	// ErrInvalidSignature is returned when the signature does not verify
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrExpired is returned when the token is at or past its expiry
	ErrExpired = errors.New("token expired")

	// ErrIssuerMismatch is returned when the iss claim differs from the configured issuer
	ErrIssuerMismatch = errors.New("token issuer mismatch")

	// ErrEmptySubject is returned when issuing a token for an identity without a subject
	ErrEmptySubject = errors.New("identity subject is empty")

	// ErrWeakSecret is returned by NewCodec when the secret is shorter than the HS256 minimum
	ErrWeakSecret = errors.New("signing secret too short")

	// ErrBlankIssuer is returned by NewCodec when no issuer is configured
	ErrBlankIssuer = errors.New("issuer is blank")

	// ErrShortTTL is returned by NewCodec when the token lifetime is below the minimum
	ErrShortTTL = errors.New("token lifetime too short")
)

// Option configures a Codec
type Option func(*Codec)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// Codec signs and verifies access tokens. It is immutable after construction
// and safe for concurrent use.
type Codec struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewCodec derives the signing key from cfg. A Codec can never exist with a
// secret shorter than config.MinSecretBytes.
func NewCodec(cfg config.JWTConfig, opts ...Option) (*Codec, error) {
	if len(cfg.Secret) < config.MinSecretBytes {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrWeakSecret, config.MinSecretBytes, len(cfg.Secret))
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, ErrBlankIssuer
	}
	if cfg.Expiration < config.MinTokenTTL {
		return nil, fmt.Errorf("%w: need at least %s, got %s", ErrShortTTL, config.MinTokenTTL, cfg.Expiration)
	}

	key := make([]byte, len(cfg.Secret))
	copy(key, cfg.Secret)

	c := &Codec{
		key:    key,
		issuer: cfg.Issuer,
		ttl:    cfg.Expiration,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)

	return c, nil
}

// Issue signs a new access token for identity. The roles are copied into the
// token as a sorted snapshot.
func (c *Codec) Issue(identity models.Identity) (string, *Claims, error) {
	if strings.TrimSpace(identity.Subject) == "" {
		return "", nil, ErrEmptySubject
	}

	// NumericDate has second resolution; truncating keeps exp exactly iat+ttl
	issuedAt := c.now().Truncate(time.Second)

	claims := &TokenClaims{
		Roles: identity.Roles.Strings(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.Subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	issued, err := parseClaims(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, issued, nil
}

// Validate verifies the signature, issuer and expiry of tokenString and
// returns its claims. No clock skew leeway is applied.
func (c *Codec) Validate(tokenString string) (*Claims, error) {
	tc := &TokenClaims{}
	_, err := c.parser.ParseWithClaims(tokenString, tc, c.keyFunc)
	if err != nil {
		return nil, c.classify(tokenString, tc, err)
	}
	return parseClaims(tc)
}

// ExpirationSeconds returns the token lifetime reported to clients
func (c *Codec) ExpirationSeconds() int64 {
	return int64(c.ttl / time.Second)
}

// Issuer returns the configured issuer
func (c *Codec) Issuer() string {
	return c.issuer
}

func (c *Codec) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return c.key, nil
}

// classify maps golang-jwt errors onto the package's error taxonomy
func (c *Codec) classify(tokenString string, tc *TokenClaims, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		if signatureUndecodable(tokenString) {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: expected %s, got %s", ErrIssuerMismatch, c.issuer, tc.Issuer)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing) && tc.Issuer == "":
		return fmt.Errorf("%w: iss claim missing", ErrIssuerMismatch)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

// signatureUndecodable reports whether header and payload are well formed
// but the signature segment is not canonical base64url.
func signatureUndecodable(tokenString string) bool {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return false
	}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &TokenClaims{}); err != nil {
		return false
	}
	_, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	return err != nil
}
