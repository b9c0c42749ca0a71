package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/veridoc/veridoc/identity"
	"github.com/veridoc/veridoc/tenancy"
	"github.com/veridoc/veridoc/utils"
)

// TokenVerifier verifies a user bearer token and returns its claims
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*identity.Claims, error)
}

// InvocationVerifier verifies the signed service identity on worker
// invocations
type InvocationVerifier interface {
	VerifyInvocation(ctx context.Context, token string) (*identity.Claims, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	users             TokenVerifier
	services          InvocationVerifier
	skipServiceVerify bool
	logger            *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. skipServiceVerify disables
// worker-invocation verification; callers must only set it outside
// production.
func NewAuthMiddleware(users TokenVerifier, services InvocationVerifier,
	skipServiceVerify bool, logger *zap.Logger) *AuthMiddleware {
	if skipServiceVerify {
		logger.Warn("worker invocation verification is DISABLED; never run this configuration in production")
	}
	return &AuthMiddleware{
		users:             users,
		services:          services,
		skipServiceVerify: skipServiceVerify,
		logger:            logger,
	}
}

// RequireTenant requires a valid user token carrying a tenant claim and
// installs the tenant into the request context. Every downstream store access
// is scoped by what this middleware installs; a request that reaches a
// handler without passing here carries no tenant and cannot touch any data.
func (m *AuthMiddleware) RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := chimiddleware.GetReqID(ctx)

		token := extractBearer(r)
		if token == "" {
			m.logger.Warn("missing bearer token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		claims, err := m.users.Verify(ctx, token)
		if err != nil {
			m.logger.Warn("token verification failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		// A valid identity without a tenant binding gets no access at all.
		if claims.TenantID == "" {
			m.logger.Warn("token missing tenant claim",
				zap.String("request_id", requestID),
				zap.String("sub", claims.Subject))
			_ = utils.WriteForbidden(w, "Token carries no tenant")
			return
		}

		ctx = WithClaims(ctx, claims)
		ctx = tenancy.WithTenant(ctx, tenancy.Tenant(claims.TenantID))

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("tenant", claims.TenantID))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireServiceIdentity gates the worker endpoint on the dispatcher's signed
// service identity. The tenant for the unit of work comes from the task
// payload, not from this credential.
func (m *AuthMiddleware) RequireServiceIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := chimiddleware.GetReqID(ctx)

		if m.skipServiceVerify {
			m.logger.Warn("accepting worker invocation WITHOUT verification",
				zap.String("request_id", requestID))
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearer(r)
		if token == "" {
			m.logger.Warn("worker invocation missing bearer token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		claims, err := m.services.VerifyInvocation(ctx, token)
		if err != nil {
			m.logger.Warn("worker invocation rejected",
				zap.String("request_id", requestID),
				zap.Error(err))
			if errors.Is(err, identity.ErrWrongServiceAccount) {
				_ = utils.WriteForbidden(w, "Caller identity not trusted")
				return
			}
			_ = utils.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
	})
}

// extractBearer pulls the token out of the Authorization header
func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
