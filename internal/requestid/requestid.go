// Package requestid carries the per-request correlation id through a context.
package requestid

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Header is the HTTP header that carries the id in both directions.
const Header = "X-Request-Id"

const maxLength = 128

type contextKey struct{}

// WithID returns a copy of ctx carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the id stored on ctx, or "" when none is set.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Resolve keeps a caller-supplied id when it is usable and otherwise mints a new UUID.
func Resolve(candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" || len(trimmed) > maxLength || strings.ContainsAny(trimmed, "\r\n") {
		return uuid.NewString()
	}
	return trimmed
}
