package identity

import (
	"context"
	"fmt"
)

// ServiceVerifier verifies the dispatch infrastructure's own signed identity
// on worker invocations. It is a separate instantiation from the user-token
// verifier: different issuer, different audience, and instead of a tenant
// claim it requires the token to assert the dispatcher's service account.
type ServiceVerifier struct {
	verifier       *Verifier
	serviceAccount string
}

// NewServiceVerifier creates a verifier for dispatcher invocation tokens.
// serviceAccount, when non-empty, is the email identity the token must carry.
func NewServiceVerifier(cfg Config, serviceAccount string) *ServiceVerifier {
	return &ServiceVerifier{
		verifier:       NewVerifier(cfg),
		serviceAccount: serviceAccount,
	}
}

// VerifyInvocation validates a service-invocation token and confirms it was
// issued to the dispatcher's service account.
func (v *ServiceVerifier) VerifyInvocation(ctx context.Context, token string) (*Claims, error) {
	claims, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if v.serviceAccount != "" && claims.Email != v.serviceAccount {
		return nil, fmt.Errorf("%w: %s", ErrWrongServiceAccount, claims.Email)
	}
	return claims, nil
}
