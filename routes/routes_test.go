package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veridoc/veridoc/app"
	"github.com/veridoc/veridoc/config"
	"github.com/veridoc/veridoc/handlers"
	"github.com/veridoc/veridoc/identity"
	"github.com/veridoc/veridoc/middleware"
	"github.com/veridoc/veridoc/observability"
	"github.com/veridoc/veridoc/services/analysis"
	"github.com/veridoc/veridoc/services/dispatch"
	"github.com/veridoc/veridoc/services/firewall"
	"github.com/veridoc/veridoc/store"
	"github.com/veridoc/veridoc/store/memory"
)

type stubVerifier struct {
	tenants map[string]string
}

func (s *stubVerifier) Verify(ctx context.Context, token string) (*identity.Claims, error) {
	tenant, ok := s.tenants[token]
	if !ok {
		return nil, identity.ErrInvalidToken
	}
	return &identity.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
		TenantID:         tenant,
	}, nil
}

type loopbackQueue struct {
	tasks []dispatch.Task
}

func (q *loopbackQueue) Enqueue(ctx context.Context, task dispatch.Task) error {
	q.tasks = append(q.tasks, task)
	return nil
}

func testServer(t *testing.T) (http.Handler, *loopbackQueue) {
	t.Helper()
	logger := zap.NewNop()
	scoped := store.New(memory.New(), logger)
	queue := &loopbackQueue{}
	svc := analysis.NewService(scoped, queue, firewall.New(nil, nil, logger),
		analysis.StaticAnalyzer{}, observability.Noop{}, logger)

	users := &stubVerifier{tenants: map[string]string{
		"token-acme":   "acme",
		"token-globex": "globex",
	}}
	deps := &app.Dependencies{
		Config: &config.Config{
			Environment:   "test",
			Observability: config.ObservabilityConfig{MetricsEnabled: true},
		},
		Logger:         logger,
		Metrics:        observability.Noop{},
		Store:          scoped,
		Analysis:       svc,
		AuthMiddleware: middleware.NewAuthMiddleware(users, nil, true, logger),
	}
	return SetupRoutes(deps), queue
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := testServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/api/v1/status", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestAnalysisRequiresAuthentication(t *testing.T) {
	router, _ := testServer(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/analysis",
		strings.NewReader(`{"document_text":"text"}`)))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitProcessReadRoundTrip(t *testing.T) {
	router, queue := testServer(t)

	// Submit as acme.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis",
		strings.NewReader(`{"document_text":"ordinary contract text"}`))
	req.Header.Set("Authorization", "Bearer token-acme")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var submitted handlers.SubmitAnalysisResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	require.Len(t, queue.tasks, 1)

	// Deliver the task the way the dispatch service would.
	body, err := json.Marshal(queue.tasks[0])
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/worker/process", strings.NewReader(string(body)))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Read back as acme.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/analysis/"+submitted.JobID, nil)
	req.Header.Set("Authorization", "Bearer token-acme")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var job handlers.JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, "COMPLETED", job.Status)
	require.NotNil(t, job.Result)

	// The same job does not exist for globex.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/analysis/"+submitted.JobID, nil)
	req.Header.Set("Authorization", "Bearer token-globex")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnknownRouteReturns404(t *testing.T) {
	router, _ := testServer(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
