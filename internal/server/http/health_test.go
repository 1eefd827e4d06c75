package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/localgen/internal/backend/backendtest"
	"github.com/ekisa-team/localgen/internal/config"
	"github.com/ekisa-team/localgen/internal/metrics"
)

func TestHealth_IndependentOfModel(t *testing.T) {
	api := newTestAPI(t, newTestService(t, backendtest.NewScripted("x"), false))

	resp := api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "OK", resp.Body.String())
	assert.Contains(t, resp.Header().Get("Content-Type"), "text/plain")
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg)

	srv := NewServer(config.Default().Server, newTestService(t, backendtest.NewScripted("x"), false), reg)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "localgen_jobs_started_total")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "OK", rec.Body.String())
}
