package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/seedrank/backend/internal/abtest"
	"github.com/wonny/seedrank/backend/pkg/logger"
)

// ABTestHandler handles A/B test endpoints
// ⭐ SSOT: A/B 테스트 API 핸들러는 이 구조체에서만
type ABTestHandler struct {
	framework *abtest.Framework
	logger    *logger.Logger
}

// NewABTestHandler creates a new A/B test handler
func NewABTestHandler(f *abtest.Framework, log *logger.Logger) *ABTestHandler {
	return &ABTestHandler{
		framework: f,
		logger:    log,
	}
}

// Start begins a test for a family
// POST /api/abtests
func (h *ABTestHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req abtest.StartRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		respondValidation(w, errs)
		return
	}

	test, err := h.framework.StartTest(r.Context(), req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, test)
}

// List returns every known test
// GET /api/abtests
func (h *ABTestHandler) List(w http.ResponseWriter, r *http.Request) {
	tests := h.framework.List()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(tests),
		"tests": tests,
	})
}

// Get returns one test
// GET /api/abtests/{id}
func (h *ABTestHandler) Get(w http.ResponseWriter, r *http.Request) {
	test, err := h.framework.Get(mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, test)
}

// Route returns the arm an identity is routed to
// GET /api/abtests/{id}/route?identity=
func (h *ABTestHandler) Route(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		respondError(w, http.StatusBadRequest, "Missing 'identity' query parameter")
		return
	}

	test, err := h.framework.Get(id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	arm, err := h.framework.Route(id, identity)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"test_id":  id,
		"identity": identity,
		"arm":      arm,
		"version":  test.VersionFor(arm),
	})
}

// Summary aggregates the outcomes recorded so far
// GET /api/abtests/{id}/summary
func (h *ABTestHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.framework.Summarize(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// Complete stops a test with a verdict
// POST /api/abtests/{id}/complete
func (h *ABTestHandler) Complete(w http.ResponseWriter, r *http.Request) {
	test, err := h.framework.Complete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, test)
}

// Abort stops a test without a verdict
// POST /api/abtests/{id}/abort
func (h *ABTestHandler) Abort(w http.ResponseWriter, r *http.Request) {
	test, err := h.framework.Abort(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, test)
}
