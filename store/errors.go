package store

import (
	"errors"
	"fmt"

	"github.com/veridoc/veridoc/tenancy"
)

// BreachError reports an attempted store access outside the active tenant's
// subtree, or any access without an active tenant. It is always raised
// synchronously from the operation that attempted the access and must never
// be downgraded or swallowed by business logic.
type BreachError struct {
	Tenant tenancy.Tenant
	Path   string
	Reason string
}

func (e *BreachError) Error() string {
	if e.Tenant == "" {
		return fmt.Sprintf("security breach: %s (path %q, no active tenant)", e.Reason, e.Path)
	}
	return fmt.Sprintf("security breach: %s (path %q, tenant %q)", e.Reason, e.Path, e.Tenant)
}

// IsBreach reports whether err is a tenant isolation violation.
func IsBreach(err error) bool {
	var be *BreachError
	return errors.As(err, &be)
}
