package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/upb/authgate/internal/observability"
	"github.com/upb/authgate/services/ratelimit"
	"github.com/upb/authgate/utils"
	"go.uber.org/zap"
)

// LoginRateLimitMessage is returned with 429 responses on the login endpoint
const LoginRateLimitMessage = "Too many login attempts. Please try again later."

// AttemptLimiter counts attempts per client key
type AttemptLimiter interface {
	Check(key string) ratelimit.Result
	Now() time.Time
}

// RateLimitAuditor records rejected login attempts
type RateLimitAuditor interface {
	LogLoginRateLimited(ipAddress, requestID string) error
}

// LoginRateLimit rejects login requests from clients that exceeded their
// attempt budget. Every request counts, successful or not. auditor and
// metrics may be nil.
func LoginRateLimit(limiter AttemptLimiter, auditor RateLimitAuditor, metrics *observability.AuthMetrics, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r)
			result := limiter.Check(key)
			if err := result.Err(); err != nil {
				requestID := GetRequestIDFromContext(r.Context())
				logger.Warn("login rate limit exceeded",
					zap.String("request_id", requestID),
					zap.String("ip", key),
					zap.Error(err))
				metrics.RecordRateLimited(r.Context())
				if auditor != nil {
					_ = auditor.LogLoginRateLimited(key, requestID)
				}
				_ = utils.WriteTooManyRequests(w, LoginRateLimitMessage, result.RetryAfter(limiter.Now()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of the request's remote address. Proxy
// headers count only if chi's RealIP middleware rewrote RemoteAddr upstream.
// An empty result maps to ratelimit.UnknownKey in the limiter.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
