package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/seedrank/backend/internal/api/handlers"
	"github.com/wonny/seedrank/backend/pkg/logger"
)

const serviceName = "seedrank-api"

// Handlers groups every endpoint handler the router mounts.
// Nil members leave their routes unmounted.
type Handlers struct {
	Recommendations *handlers.RecommendationHandler
	Algorithms      *handlers.AlgorithmHandler
	ABTests         *handlers.ABTestHandler
	Performance     *handlers.PerformanceHandler
	Metrics         http.Handler
	RunFeed         http.Handler
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics).Methods("GET")
	}
	if h.RunFeed != nil {
		r.Handle("/ws/runs", h.RunFeed)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// Recommendation endpoints
	if rec := h.Recommendations; rec != nil {
		api.HandleFunc("/recommendations/{family}", rec.Run).Methods("POST")
		api.HandleFunc("/recommendations/{family}", rec.RunQuery).Methods("GET")
		api.HandleFunc("/recommendations/{family}/history", rec.History).Methods("GET")
		api.HandleFunc("/runs/{id}", rec.GetRun).Methods("GET")
	}

	// Registry / version endpoints
	if alg := h.Algorithms; alg != nil {
		api.HandleFunc("/algorithms", alg.List).Methods("GET")
		api.HandleFunc("/algorithms", alg.Register).Methods("POST")
		api.HandleFunc("/algorithms/{id}/history", alg.History).Methods("GET")
		api.HandleFunc("/algorithms/{id}/versions/{version}/activate", alg.Activate).Methods("POST")
		api.HandleFunc("/families/{family}/rollback", alg.Rollback).Methods("POST")
		api.HandleFunc("/families/{family}/events", alg.Events).Methods("GET")
	}

	// A/B test endpoints
	if ab := h.ABTests; ab != nil {
		api.HandleFunc("/abtests", ab.List).Methods("GET")
		api.HandleFunc("/abtests", ab.Start).Methods("POST")
		api.HandleFunc("/abtests/{id}", ab.Get).Methods("GET")
		api.HandleFunc("/abtests/{id}/route", ab.Route).Methods("GET")
		api.HandleFunc("/abtests/{id}/summary", ab.Summary).Methods("GET")
		api.HandleFunc("/abtests/{id}/complete", ab.Complete).Methods("POST")
		api.HandleFunc("/abtests/{id}/abort", ab.Abort).Methods("POST")
	}

	// Performance endpoints
	if perf := h.Performance; perf != nil {
		api.HandleFunc("/performance/evaluate", perf.Evaluate).Methods("POST")
		api.HandleFunc("/performance/{algorithm}/{version}", perf.GetMetrics).Methods("GET")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"service":   serviceName,
		"timestamp": time.Now().UTC(),
	})
}

// statusRecorder captures the response status for request logs
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the wrapped writer to http.ResponseController
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// websocket 업그레이드는 Hijacker가 필요하므로 래핑하지 않음
			if r.Header.Get("Upgrade") != "" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			// Call next handler
			next.ServeHTTP(rec, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
						"code":  "internal_error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
