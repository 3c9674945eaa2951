// Package contextkeys provides centralized context key definitions
//
// All context keys used across larder are defined here so that producers
// and consumers agree on the key and the stored type.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithIdentity(ctx, id)
//	id := contextkeys.GetIdentity(ctx)
package contextkeys

import (
	"context"

	"github.com/platinummonkey/larder/pkg/auth"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *auth.Identity
	// Set by: middleware.Gate (pkg/middleware/auth.go)
	// Required by: authenticated handlers, user-keyed rate limits
	IdentityKey Key = "identity"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error responses
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	// Used by: Handlers that need structured logging with request context
	LoggerKey Key = "logger"

	// ClientIPKey contains the client address string
	// Set by: httputil.ClientIPMiddleware
	// Used by: IP-keyed rate limits, audit events
	ClientIPKey Key = "client_ip"
)

// WithIdentity adds the resolved identity to the context
func WithIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// GetIdentity retrieves the resolved identity, or nil
func GetIdentity(ctx context.Context) *auth.Identity {
	if id, ok := ctx.Value(IdentityKey).(*auth.Identity); ok {
		return id
	}
	return nil
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetLogger retrieves the raw logger value from context
func GetLogger(ctx context.Context) interface{} {
	return ctx.Value(LoggerKey)
}

// WithClientIP adds the resolved client address to the context
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// GetClientIP retrieves the resolved client address, or ""
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}
