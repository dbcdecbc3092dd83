package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/internal/orchestrator"
	"github.com/wonny/seedrank/backend/pkg/logger"
)

// Run status labels
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Runner executes one orchestration run
type Runner interface {
	Run(ctx context.Context, family contracts.StrategyFamily, params contracts.RequestParams) (*orchestrator.RunResult, error)
}

// BatchReader reads stored recommendation batches
type BatchReader interface {
	GetBatch(ctx context.Context, runID string) (*contracts.RecommendationBatch, error)
	ListBatches(ctx context.Context, family contracts.StrategyFamily, limit int) ([]contracts.RecommendationBatch, error)
}

// RecommendationHandler serves orchestration runs and their stored batches
// ⭐ SSOT: 추천 API 핸들러는 이 구조체에서만
type RecommendationHandler struct {
	runner  Runner
	batches BatchReader
	logger  *logger.Logger
}

// NewRecommendationHandler creates a new recommendation handler
func NewRecommendationHandler(runner Runner, batches BatchReader, log *logger.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		runner:  runner,
		batches: batches,
		logger:  log,
	}
}

// RecommendationResponse is the body of a run request
type RecommendationResponse struct {
	Status          string                     `json:"status"` // ok | partial | failed
	Recommendations []contracts.Recommendation `json:"recommendations"`
	Metadata        *contracts.RunMetadata     `json:"metadata,omitempty"`
	Error           string                     `json:"error,omitempty"`
	Code            string                     `json:"code,omitempty"`
	Details         []contracts.SourceFailure  `json:"details,omitempty"`
}

// HistoryQuery selects stored batches
type HistoryQuery struct {
	Limit int `json:"limit" default:"20" validate:"gte=1,lte=200"`
}

// Run executes a run with a JSON body of request params
// POST /api/recommendations/{family}
func (h *RecommendationHandler) Run(w http.ResponseWriter, r *http.Request) {
	var params contracts.RequestParams
	if errs := decodeAndValidate(r, &params); errs != nil {
		respondValidation(w, errs)
		return
	}
	h.run(w, r, params)
}

// RunQuery executes a run with request params from the query string
// GET /api/recommendations/{family}?min_score=&limit_per_query=&top_recommendations=&force_refresh=
func (h *RecommendationHandler) RunQuery(w http.ResponseWriter, r *http.Request) {
	params, errs := paramsFromQuery(r)
	if errs == nil {
		errs = defaultsAndValidate(r, &params)
	}
	if errs != nil {
		respondValidation(w, errs)
		return
	}
	h.run(w, r, params)
}

func (h *RecommendationHandler) run(w http.ResponseWriter, r *http.Request, params contracts.RequestParams) {
	family, err := contracts.ParseStrategyFamily(mux.Vars(r)["family"])
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if params.RequestID == "" {
		params.RequestID = r.Header.Get("X-Request-ID")
	}

	result, err := h.runner.Run(r.Context(), family, params)
	if err != nil {
		code := contracts.ErrorCode(err)
		resp := RecommendationResponse{
			Status:          StatusFailed,
			Recommendations: []contracts.Recommendation{},
			Error:           err.Error(),
			Code:            code,
		}
		// 전 시드 실패여도 메타데이터는 돌려줌
		if result != nil {
			meta := result.Metadata
			resp.Metadata = &meta
			resp.Details = meta.Failures
		}
		if statusForCode(code) == http.StatusInternalServerError {
			h.logger.WithError(err).WithField("family", family).Error("Recommendation run failed")
			resp.Error = "Internal server error"
		}
		respondJSON(w, statusForCode(code), resp)
		return
	}

	status := StatusOK
	if result.Metadata.Partial {
		status = StatusPartial
	}
	meta := result.Metadata
	respondJSON(w, http.StatusOK, RecommendationResponse{
		Status:          status,
		Recommendations: result.Recommendations,
		Metadata:        &meta,
		Details:         meta.Failures,
	})
}

// History lists stored batches of a family, newest first
// GET /api/recommendations/{family}/history?limit=20
func (h *RecommendationHandler) History(w http.ResponseWriter, r *http.Request) {
	family, err := contracts.ParseStrategyFamily(mux.Vars(r)["family"])
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var q HistoryQuery
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'limit' (expected integer)")
			return
		}
		q.Limit = n
	}
	if errs := defaultsAndValidate(r, &q); errs != nil {
		respondValidation(w, errs)
		return
	}

	batches, err := h.batches.ListBatches(r.Context(), family, q.Limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list batches")
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"strategy_family": family,
		"count":           len(batches),
		"batches":         batches,
	})
}

// GetRun returns one stored batch
// GET /api/runs/{id}
func (h *RecommendationHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	batch, err := h.batches.GetBatch(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

func paramsFromQuery(r *http.Request) (contracts.RequestParams, []ValidationError) {
	q := r.URL.Query()
	var p contracts.RequestParams
	var errs []ValidationError

	intParam := func(name string, dst *int) {
		if raw := q.Get(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				errs = append(errs, ValidationError{Code: "ERR_TYPE", Field: name, Message: name + " must be an integer"})
				return
			}
			*dst = n
		}
	}
	intParam("limit_per_query", &p.LimitPerQuery)
	intParam("top_recommendations", &p.TopRecommendations)

	if raw := q.Get("min_score"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, ValidationError{Code: "ERR_TYPE", Field: "min_score", Message: "min_score must be a number"})
		} else {
			p.MinScore = contracts.Float64(v)
		}
	}
	if raw := q.Get("force_refresh"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, ValidationError{Code: "ERR_TYPE", Field: "force_refresh", Message: "force_refresh must be a boolean"})
		} else {
			p.ForceRefresh = b
		}
	}
	p.RequestID = q.Get("request_id")

	return p, errs
}
