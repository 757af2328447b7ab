package middleware

import (
	"net/http"

	"github.com/upb/authgate/models"
	"github.com/upb/authgate/utils"
	"go.uber.org/zap"
)

// Decision is the outcome of an access check
type Decision int

const (
	Allow Decision = iota
	Unauthenticated
	Forbidden
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// AccessPolicy applies ordered path rules, first match wins:
// public paths are open, admin prefixes need ROLE_ADMIN, everything
// else needs an authenticated caller.
type AccessPolicy struct {
	public *PathMatcher
	admin  *PathMatcher
	logger *zap.Logger
}

// NewAccessPolicy creates an AccessPolicy
func NewAccessPolicy(public, admin *PathMatcher, logger *zap.Logger) *AccessPolicy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessPolicy{
		public: public,
		admin:  admin,
		logger: logger,
	}
}

// Authorize decides whether sc may access path
func (p *AccessPolicy) Authorize(path string, sc SecurityContext) Decision {
	if p.public.Match(path) {
		return Allow
	}
	if !sc.IsAuthenticated() {
		return Unauthenticated
	}
	if p.admin.Match(path) && !sc.HasAuthority(models.RoleAdmin) {
		return Forbidden
	}
	return Allow
}

// Enforce rejects requests the policy does not allow with 401 or 403
func (p *AccessPolicy) Enforce(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc := GetSecurityContext(r.Context())

		switch p.Authorize(r.URL.Path, sc) {
		case Unauthenticated:
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		case Forbidden:
			p.logger.Info("access denied",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("sub", sc.Subject()),
				zap.String("path", r.URL.Path))
			_ = utils.WriteForbidden(w, "Insufficient permissions")
			return
		}

		next.ServeHTTP(w, r)
	})
}
