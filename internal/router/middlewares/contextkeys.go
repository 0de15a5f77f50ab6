package middlewares

import (
	"context"

	"github.com/viviendahub/go-viviendahub/pkg/userdir"
)

// ContextKey is used to key context values.
type ContextKey int

const (
	// ContextKeyUser is used to store the authenticated account of the
	// incoming request, resolved from the Authorization bearer token.
	ContextKeyUser ContextKey = iota
	// ContextIPAddress is used to store the client address of the incoming
	// request, taken from X-Forwarded-For when present.
	ContextIPAddress ContextKey = iota
)

// UserFromContext returns the account attached by the Authentication
// middleware.
func UserFromContext(ctx context.Context) (*userdir.User, bool) {
	user, ok := ctx.Value(ContextKeyUser).(*userdir.User)
	return user, ok
}

// IPFromContext returns the client address attached by the IPPolicy
// middleware.
func IPFromContext(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(ContextIPAddress).(string)
	return ip, ok
}
