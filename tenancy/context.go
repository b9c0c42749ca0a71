// Package tenancy carries the active tenant through a single unit of work.
//
// The tenant binding lives on a derived context.Context: installing a tenant
// returns a child context and never mutates shared state, so concurrent
// requests and worker invocations cannot observe each other's binding, and
// the binding vanishes with the context on every exit path.
package tenancy

import "context"

// Tenant is an opaque tenant identifier. It is a namespace prefix and an
// isolation boundary, not a stored entity.
type Tenant string

type contextKey struct{}

var tenantKey contextKey

// WithTenant returns a child context carrying the given tenant.
func WithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// FromContext returns the tenant bound to ctx, if any.
func FromContext(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(tenantKey).(Tenant)
	if !ok || t == "" {
		return "", false
	}
	return t, true
}
