package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Liveness(t *testing.T) {
	h := NewHealthChecker(nil)
	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthChecker_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		wantStatus int
		wantReady  string
	}{
		{name: "ready", ready: true, wantStatus: http.StatusOK, wantReady: healthStatusOK},
		{name: "not ready", ready: false, wantStatus: http.StatusServiceUnavailable, wantReady: healthStatusNotReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker(nil)
			h.SetReady(tt.ready)

			rec := httptest.NewRecorder()
			h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantReady, resp.Checks["ready"])
		})
	}
}

func TestHealthChecker_ShutdownNotReady(t *testing.T) {
	env := newTestEnv(t, nil)
	sc, err := NewServerContext(t.Context(), env.cfg, WithGmailSource(env.gmail), WithGenerator(env.generator))
	require.NoError(t, err)
	h := NewHealthChecker(sc)

	require.NoError(t, sc.Shutdown())
	assert.True(t, sc.IsShutdown())

	rec := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, healthStatusShuttingDown, resp.Checks["shutdown"])
}

func TestHealthChecker_DetailedIntegrations(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodGet, "/healthz/detailed", nil)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, healthStatusOK, body["status"])
	assert.Equal(t, map[string]any{
		"templates_dir": healthStatusOK,
		"gemini":        healthStatusOK,
		"gmail":         healthStatusUnconfigured,
	}, body["integrations"])
}
