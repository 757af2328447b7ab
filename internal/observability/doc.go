// Package observability builds the zap logger and the OpenTelemetry
// counters shared by the login and token paths.
//
// Metrics go through the global meter provider, so they are no-ops until a
// binary installs an SDK.
package observability
