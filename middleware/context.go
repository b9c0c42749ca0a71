package middleware

import (
	"context"

	"github.com/veridoc/veridoc/identity"
)

// Context key type to avoid collisions
type contextKey string

const (
	// ClaimsKey is the context key for verified token claims
	ClaimsKey contextKey = "claims"
)

// WithClaims adds verified claims to the context
func WithClaims(ctx context.Context, claims *identity.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetClaimsFromContext retrieves verified claims from context
func GetClaimsFromContext(ctx context.Context) *identity.Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*identity.Claims); ok {
			return claims
		}
	}
	return nil
}
