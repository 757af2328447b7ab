package middleware

import (
	"context"

	"github.com/upb/authgate/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// SecurityContextKey is the context key for the per-request SecurityContext
	SecurityContextKey contextKey = "security_context"
)

// Principal is the authenticated caller
type Principal struct {
	Subject string
}

// SecurityContext is the authentication state of one request.
// An empty SecurityContext (nil Principal) means anonymous.
type SecurityContext struct {
	Principal   *Principal
	Authorities models.RoleSet
}

// IsAuthenticated reports whether a principal is present
func (sc SecurityContext) IsAuthenticated() bool {
	return sc.Principal != nil
}

// HasAuthority reports whether the caller holds role
func (sc SecurityContext) HasAuthority(role models.Role) bool {
	return sc.Principal != nil && sc.Authorities.Has(role)
}

// Subject returns the principal's subject or ""
func (sc SecurityContext) Subject() string {
	if sc.Principal == nil {
		return ""
	}
	return sc.Principal.Subject
}

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithSecurityContext stores sc in the context
func WithSecurityContext(ctx context.Context, sc SecurityContext) context.Context {
	return context.WithValue(ctx, SecurityContextKey, sc)
}

// LookupSecurityContext returns the SecurityContext and whether one was set
func LookupSecurityContext(ctx context.Context) (SecurityContext, bool) {
	sc, ok := ctx.Value(SecurityContextKey).(SecurityContext)
	return sc, ok
}

// GetSecurityContext returns the request's SecurityContext, or an empty one
func GetSecurityContext(ctx context.Context) SecurityContext {
	sc, _ := LookupSecurityContext(ctx)
	return sc
}
