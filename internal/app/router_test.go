package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/receivables/internal/observability"
	_ "github.com/odyssey-erp/receivables/internal/testing/guard"
)

func serve(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestRouterHealthAndReadiness(t *testing.T) {
	var notReady error = errors.New("snapshot not loaded")
	router := NewRouter(RouterParams{
		Config:  &Config{AppEnv: "development"},
		Metrics: observability.NewMetrics(),
		Ready:   func(context.Context) error { return notReady },
	})

	rr := serve(t, router, "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = serve(t, router, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	notReady = nil
	rr = serve(t, router, "/readyz")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterMetricsAndNotFound(t *testing.T) {
	router := NewRouter(RouterParams{Metrics: observability.NewMetrics()})

	serve(t, router, "/healthz")
	rr := serve(t, router, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), "receivables_http_requests_total"))

	rr = serve(t, router, "/nope")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestInTestModeHonoursEnv(t *testing.T) {
	t.Setenv(testModeEnv, "true")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	require.False(t, InTestMode())

	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
}
