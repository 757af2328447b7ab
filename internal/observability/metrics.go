package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "authgate/auth"

// Login outcomes recorded on authgate.login.attempts
const (
	LoginSucceeded   = "success"
	LoginRejected    = "bad_credentials"
	LoginDisabled    = "disabled"
	LoginFailedError = "error"
)

// AuthMetrics holds the counters for the login and token paths.
// A nil *AuthMetrics records nothing.
type AuthMetrics struct {
	LoginAttempts    metric.Int64Counter
	LoginRateLimited metric.Int64Counter
	TokenRejected    metric.Int64Counter
}

// NewAuthMetrics creates the counters on the global meter provider.
func NewAuthMetrics() (*AuthMetrics, error) {
	return NewAuthMetricsWithMeter(otel.Meter(meterName))
}

// NewAuthMetricsWithMeter creates the counters on meter.
func NewAuthMetricsWithMeter(meter metric.Meter) (*AuthMetrics, error) {
	loginAttempts, err := meter.Int64Counter(
		"authgate.login.attempts",
		metric.WithDescription("Login attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	rateLimited, err := meter.Int64Counter(
		"authgate.login.rate_limited",
		metric.WithDescription("Login requests rejected by the per-client limiter"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	tokenRejected, err := meter.Int64Counter(
		"authgate.token.rejected",
		metric.WithDescription("Bearer tokens that failed validation"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		LoginAttempts:    loginAttempts,
		LoginRateLimited: rateLimited,
		TokenRejected:    tokenRejected,
	}, nil
}

// RecordLogin counts a login attempt with its outcome.
func (m *AuthMetrics) RecordLogin(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("login.outcome", outcome)))
}

// RecordRateLimited counts a login rejected by the limiter.
func (m *AuthMetrics) RecordRateLimited(ctx context.Context) {
	if m == nil {
		return
	}
	m.LoginRateLimited.Add(ctx, 1)
}

// RecordTokenRejected counts a bearer token that failed validation.
func (m *AuthMetrics) RecordTokenRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.TokenRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("token.reason", reason)))
}
