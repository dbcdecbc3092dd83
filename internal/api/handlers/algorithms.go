package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/internal/registry"
	"github.com/wonny/seedrank/backend/pkg/logger"
)

// AlgorithmHandler handles registry and version endpoints
// ⭐ SSOT: 알고리즘 버전 API 핸들러는 이 구조체에서만
type AlgorithmHandler struct {
	registry *registry.Registry
	versions *registry.VersionManager
	logger   *logger.Logger
}

// NewAlgorithmHandler creates a new algorithm handler
func NewAlgorithmHandler(reg *registry.Registry, versions *registry.VersionManager, log *logger.Logger) *AlgorithmHandler {
	return &AlgorithmHandler{
		registry: reg,
		versions: versions,
		logger:   log,
	}
}

// RegisterRequest describes a new algorithm version
type RegisterRequest struct {
	AlgorithmID    string                   `json:"algorithm_id" validate:"required,max=64"`
	Version        string                   `json:"version" validate:"required,max=64"`
	Variant        string                   `json:"variant,omitempty" validate:"max=64"`
	StrategyFamily contracts.StrategyFamily `json:"strategy_family" validate:"required"`
	Parameters     contracts.Parameters     `json:"parameters,omitempty"`
	Enabled        *bool                    `json:"enabled,omitempty" default:"true"`
	Weight         *float64                 `json:"weight,omitempty" default:"1" validate:"gte=0"`
	Active         bool                     `json:"active,omitempty"`
}

func (req RegisterRequest) config() contracts.AlgorithmConfig {
	return contracts.AlgorithmConfig{
		AlgorithmID:    req.AlgorithmID,
		Version:        req.Version,
		Variant:        req.Variant,
		StrategyFamily: req.StrategyFamily,
		Parameters:     req.Parameters,
		Enabled:        *req.Enabled,
		Weight:         *req.Weight,
		IsActive:       req.Active,
	}
}

// ActivateRequest optionally names the family of the version
type ActivateRequest struct {
	StrategyFamily contracts.StrategyFamily `json:"strategy_family,omitempty"`
}

// List returns the active set of a family, or every registered version
// GET /api/algorithms?family=swing
func (h *AlgorithmHandler) List(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("family")
	if raw == "" {
		configs := h.registry.List()
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"count":      len(configs),
			"algorithms": configs,
		})
		return
	}

	family, err := contracts.ParseStrategyFamily(raw)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	configs, err := h.registry.GetActive(family)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"strategy_family": family,
		"count":           len(configs),
		"algorithms":      configs,
	})
}

// History returns every version of one algorithm, newest first
// GET /api/algorithms/{id}/history
func (h *AlgorithmHandler) History(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	configs, err := h.registry.GetHistory(id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"algorithm_id": id,
		"versions":     configs,
	})
}

// Register stores a new algorithm version
// POST /api/algorithms
func (h *AlgorithmHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		respondValidation(w, errs)
		return
	}

	cfg := req.config()
	if err := h.registry.Register(r.Context(), cfg); err != nil {
		respondDomainError(w, err)
		return
	}

	stored, err := h.registry.Get(cfg.AlgorithmID, cfg.Version)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, stored)
}

// Activate makes a version active for its family
// POST /api/algorithms/{id}/versions/{version}/activate
func (h *AlgorithmHandler) Activate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, version := vars["id"], vars["version"]

	var req ActivateRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		respondValidation(w, errs)
		return
	}

	family := req.StrategyFamily
	if family == "" {
		cfg, err := h.registry.Get(id, version)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		family = cfg.StrategyFamily
	}

	ev, err := h.registry.Activate(r.Context(), id, version, family)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	// 이미 활성 버전이면 이벤트 없음
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"algorithm_id":    id,
		"version":         version,
		"strategy_family": family,
		"changed":         ev != nil,
		"event":           ev,
	})
}

// Rollback reactivates the version replaced by the family's latest activation
// POST /api/families/{family}/rollback
func (h *AlgorithmHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	family, err := contracts.ParseStrategyFamily(mux.Vars(r)["family"])
	if err != nil {
		respondDomainError(w, err)
		return
	}

	cfg, err := h.versions.Rollback(r.Context(), family)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"family":       family,
		"algorithm_id": cfg.AlgorithmID,
		"version":      cfg.Version,
	}).Info("Rollback via API")

	respondJSON(w, http.StatusOK, cfg)
}

// Events returns the activation audit trail of a family
// GET /api/families/{family}/events
func (h *AlgorithmHandler) Events(w http.ResponseWriter, r *http.Request) {
	family, err := contracts.ParseStrategyFamily(mux.Vars(r)["family"])
	if err != nil {
		respondDomainError(w, err)
		return
	}

	events, err := h.versions.Events(r.Context(), family)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"strategy_family": family,
		"events":          events,
	})
}
