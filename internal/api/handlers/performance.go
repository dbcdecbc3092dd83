package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/seedrank/backend/internal/performance"
	"github.com/wonny/seedrank/backend/pkg/logger"
)

// PerformanceHandler handles performance tracking endpoints
type PerformanceHandler struct {
	tracker *performance.Tracker
	quotes  performance.QuoteFetcher
	logger  *logger.Logger
	now     func() time.Time
}

// NewPerformanceHandler creates a new performance handler
func NewPerformanceHandler(tracker *performance.Tracker, quotes performance.QuoteFetcher, log *logger.Logger) *PerformanceHandler {
	return &PerformanceHandler{
		tracker: tracker,
		quotes:  quotes,
		logger:  log,
		now:     time.Now,
	}
}

// EvaluateRequest optionally pins the evaluation time
type EvaluateRequest struct {
	AsOf *time.Time `json:"as_of,omitempty"`
}

// GetMetrics returns hit rate and mean return of one algorithm version
// GET /api/performance/{algorithm}/{version}
func (h *PerformanceHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	m, err := h.tracker.GetMetrics(r.Context(), vars["algorithm"], vars["version"])
	if err != nil {
		h.logger.WithError(err).Error("Failed to get performance metrics")
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// Evaluate closes every due pending record at current prices
// POST /api/performance/evaluate
func (h *PerformanceHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		respondValidation(w, errs)
		return
	}

	asOf := h.now().UTC()
	if req.AsOf != nil {
		asOf = req.AsOf.UTC()
	}

	res, err := h.tracker.EvaluateDue(r.Context(), h.quotes, asOf)
	if err != nil {
		h.logger.WithError(err).Error("Evaluation failed")
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"as_of":  asOf,
		"result": res,
	})
}
