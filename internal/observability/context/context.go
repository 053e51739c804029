package context

import (
	"context"
	"strings"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	requesterKey ctxKey = "requester"
	scopeKey     ctxKey = "stats_scope"
)

// WithRequestID stores the inbound request identifier.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithRequester stores the identity of the employee making the request.
func WithRequester(ctx context.Context, employeeID, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requesterKey, [2]string{strings.TrimSpace(employeeID), strings.TrimSpace(role)})
}

// RequesterFromContext returns the requesting employee id and role.
func RequesterFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	v, ok := ctx.Value(requesterKey).([2]string)
	if !ok {
		return "", ""
	}
	return v[0], v[1]
}

// WithScope tags the context with the stats scope being served.
func WithScope(ctx context.Context, scope string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, scopeKey, strings.TrimSpace(scope))
}

func ScopeFromContext(ctx context.Context) string {
	return stringValue(ctx, scopeKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
