package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/upb/authgate/internal/observability"
	"github.com/upb/authgate/jwtauth"
	"github.com/upb/authgate/models"
	"github.com/upb/authgate/services"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// identityLookupTimeout bounds a shared identity lookup. The lookup outlives
// the request that started it, so it needs its own deadline.
const identityLookupTimeout = 5 * time.Second

// TokenValidator validates bearer tokens
type TokenValidator interface {
	Validate(token string) (*jwtauth.Claims, error)
}

// IdentityLookup loads the current state of a subject. It is only consulted
// when live role checking is enabled.
type IdentityLookup interface {
	LookupIdentity(ctx context.Context, subject string) (models.Identity, error)
}

// AuthOption configures an AuthMiddleware
type AuthOption func(*AuthMiddleware)

// WithIdentityLookup enables live role checking: token roles are narrowed to
// the subject's current roles and disabled subjects are treated as anonymous.
func WithIdentityLookup(lookup IdentityLookup) AuthOption {
	return func(m *AuthMiddleware) {
		m.lookup = lookup
	}
}

// WithMetrics records rejected tokens
func WithMetrics(metrics *observability.AuthMetrics) AuthOption {
	return func(m *AuthMiddleware) {
		m.metrics = metrics
	}
}

// AuthMiddleware turns a bearer token into a SecurityContext
type AuthMiddleware struct {
	validator TokenValidator
	public    *PathMatcher
	lookup    IdentityLookup
	lookups   singleflight.Group // one store read per subject at a time
	metrics   *observability.AuthMetrics
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator TokenValidator, public *PathMatcher, logger *zap.Logger, opts ...AuthOption) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &AuthMiddleware{
		validator: validator,
		public:    public,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Authenticate attaches a SecurityContext to every request. It never writes
// a response: missing or invalid tokens leave the request anonymous and the
// access policy decides what that means.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if _, ok := LookupSecurityContext(ctx); ok {
			next.ServeHTTP(w, r)
			return
		}

		sc := SecurityContext{}
		if !m.public.Match(r.URL.Path) {
			sc = m.resolve(ctx, extractBearerToken(r))
		}

		next.ServeHTTP(w, r.WithContext(WithSecurityContext(ctx, sc)))
	})
}

func (m *AuthMiddleware) resolve(ctx context.Context, token string) SecurityContext {
	if token == "" {
		return SecurityContext{}
	}
	requestID := GetRequestIDFromContext(ctx)

	claims, err := m.validator.Validate(token)
	if err != nil {
		reason := rejectionReason(err)
		m.logger.Debug("bearer token rejected",
			zap.String("request_id", requestID),
			zap.String("reason", reason),
			zap.Error(err))
		m.metrics.RecordTokenRejected(ctx, reason)
		return SecurityContext{}
	}

	authorities, unknown := models.ParseRoleSet(claims.Roles)
	if len(unknown) > 0 {
		m.logger.Warn("dropping unknown roles from token",
			zap.String("request_id", requestID),
			zap.String("sub", claims.Subject),
			zap.Strings("roles", unknown))
	}

	if m.lookup != nil {
		current, ok := m.currentRoles(ctx, claims.Subject)
		if !ok {
			return SecurityContext{}
		}
		authorities = authorities.Intersect(current)
	}

	m.logger.Debug("authentication successful",
		zap.String("request_id", requestID),
		zap.String("sub", claims.Subject),
		zap.Strings("roles", authorities.Strings()))

	return SecurityContext{
		Principal:   &Principal{Subject: claims.Subject},
		Authorities: authorities,
	}
}

// currentRoles returns the subject's roles as stored now. ok is false when
// the subject is unusable or the caller's request is cancelled while waiting.
func (m *AuthMiddleware) currentRoles(ctx context.Context, subject string) (models.RoleSet, bool) {
	// The shared lookup must not inherit the starting request's cancellation.
	ch := m.lookups.DoChan(subject, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), identityLookupTimeout)
		defer cancel()
		return m.lookup.LookupIdentity(lookupCtx, subject)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		m.logger.Debug("request cancelled during identity lookup",
			zap.String("sub", subject),
			zap.Error(ctx.Err()))
		return nil, false
	}

	if res.Err != nil {
		reason := "lookup_failed"
		if services.IsNotFoundError(res.Err) {
			reason = "unknown_subject"
		} else {
			m.logger.Error("identity lookup failed",
				zap.String("sub", subject),
				zap.Error(res.Err))
		}
		m.metrics.RecordTokenRejected(ctx, reason)
		return nil, false
	}
	identity := res.Val.(models.Identity)
	if !identity.Enabled {
		m.logger.Debug("token subject is disabled", zap.String("sub", subject))
		m.metrics.RecordTokenRejected(ctx, "disabled")
		return nil, false
	}
	return identity.Roles, true
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, jwtauth.ErrExpired):
		return "expired"
	case errors.Is(err, jwtauth.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, jwtauth.ErrIssuerMismatch):
		return "issuer_mismatch"
	default:
		return "malformed"
	}
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
