package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/seedrank/backend/internal/api/handlers"
	"github.com/wonny/seedrank/backend/internal/registry"
	"github.com/wonny/seedrank/backend/pkg/logger"
	"github.com/wonny/seedrank/backend/pkg/metrics"
)

func TestRouter_Health(t *testing.T) {
	router := NewRouter(Handlers{}, logger.Nop())

	for _, path := range []string{"/health", "/api/health"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))

			require.Equal(t, http.StatusOK, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "ok", body["status"])
			assert.Equal(t, serviceName, body["service"])
			assert.NotEmpty(t, body["timestamp"])
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	rec := metrics.New()
	rec.RecordRun("swing", "ok", 0, 3)

	router := NewRouter(Handlers{Metrics: rec.Handler()}, logger.Nop())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "seedrank_")
}

func TestRouter_MountsOnlyConfiguredHandlers(t *testing.T) {
	reg := registry.New(registry.NewMemoryStore(), logger.Nop())
	router := NewRouter(Handlers{
		Algorithms: handlers.NewAlgorithmHandler(reg, registry.NewVersionManager(reg), logger.Nop()),
	}, logger.Nop())

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/api/algorithms", http.StatusOK},
		{"GET", "/api/families/swing/events", http.StatusOK},
		{"POST", "/api/families/swing/rollback", http.StatusConflict},
		{"DELETE", "/api/algorithms", http.StatusMethodNotAllowed},
		{"GET", "/api/abtests", http.StatusNotFound},
		{"GET", "/metrics", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("seed exploded")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

func TestLoggingMiddleware_KeepsStatus(t *testing.T) {
	h := loggingMiddleware(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
