// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets the values; services and the unit-of-work read them. The
// package stays free of net/http so the audit engines can consume identity
// and correlation without pulling in transport code.
//
// Usage in services (read values):
//
//	subject := requestcontext.Subject(ctx)
//	correlation := requestcontext.CorrelationUID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithIdentity(ctx, "user-7", "Ada")
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	subjectKey        struct{}
	userNameKey       struct{}
	correlationUIDKey struct{}
	clientIPKey       struct{}
	userAgentKey      struct{}
	deviceLabelKey    struct{}
	requestTimeKey    struct{}
)

// -----------------------------------------------------------------------------
// Identity (acting operator)
// -----------------------------------------------------------------------------

// Subject retrieves the acting operator's identifier from the context.
// Empty when the request is unauthenticated; the audit layer substitutes its
// anonymous sentinel downstream.
func Subject(ctx context.Context) string {
	if s, ok := ctx.Value(subjectKey{}).(string); ok {
		return s
	}
	return ""
}

// UserName retrieves the acting operator's display name from the context.
func UserName(ctx context.Context) string {
	if n, ok := ctx.Value(userNameKey{}).(string); ok {
		return n
	}
	return ""
}

// WithIdentity injects the operator identity into the context.
func WithIdentity(ctx context.Context, subject, userName string) context.Context {
	ctx = context.WithValue(ctx, subjectKey{}, subject)
	ctx = context.WithValue(ctx, userNameKey{}, userName)
	return ctx
}

// -----------------------------------------------------------------------------
// Correlation
// -----------------------------------------------------------------------------

// CorrelationUID retrieves the correlation identifier grouping all audit
// records of one logical operation. Empty if no middleware set one.
func CorrelationUID(ctx context.Context) string {
	if c, ok := ctx.Value(correlationUIDKey{}).(string); ok {
		return c
	}
	return ""
}

// WithCorrelationUID injects a correlation identifier into the context.
func WithCorrelationUID(ctx context.Context, correlationUID string) context.Context {
	return context.WithValue(ctx, correlationUIDKey{}, correlationUID)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the raw User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// DeviceLabel retrieves the parsed, human-readable device label.
func DeviceLabel(ctx context.Context) string {
	if label, ok := ctx.Value(deviceLabelKey{}).(string); ok {
		return label
	}
	return ""
}

// WithClientMetadata injects client IP, User-Agent and device label into a
// context. Useful for service unit tests that skip the middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent, deviceLabel string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	ctx = context.WithValue(ctx, deviceLabelKey{}, deviceLabel)
	return ctx
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context. Every audit record of
// one commit reads the same instant through this accessor. Falls back to
// time.Now() outside an HTTP request (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
