package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"otcbot/internal/apperr"
	"otcbot/internal/models"
)

// RuleHandler serves the time-rule (scheduled spread override) CRUD
// endpoints (§6.2).
type RuleHandler struct {
	deps *Dependencies
}

func NewRuleHandler(deps *Dependencies) *RuleHandler {
	return &RuleHandler{deps: deps}
}

// Create handles POST /api/rules.
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var tr models.TimeRule
	if err := decodeJSON(r, &tr); err != nil {
		writeError(w, err)
		return
	}
	tr.CreatedAt = time.Now()

	if err := h.deps.TimeRules.Create(r.Context(), &tr); err != nil {
		writeError(w, err)
		return
	}
	if h.deps.Resolver != nil {
		h.deps.Resolver.Invalidate(tr.GroupJID)
	}

	writeJSON(w, http.StatusCreated, tr)
}

// Update handles PUT /api/rules/:id.
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid rule id"))
		return
	}

	var tr models.TimeRule
	if err := decodeJSON(r, &tr); err != nil {
		writeError(w, err)
		return
	}
	tr.ID = id

	if err := h.deps.TimeRules.Update(r.Context(), &tr); err != nil {
		writeError(w, err)
		return
	}
	if h.deps.Resolver != nil {
		h.deps.Resolver.Invalidate(tr.GroupJID)
	}

	writeJSON(w, http.StatusOK, tr)
}

// Delete handles DELETE /api/rules/:id. A system rule refuses deletion
// with 403, matching §6.2 exactly (apperr classifies the same sentinel
// as a conflict for the generic mapping; this endpoint overrides it).
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid rule id"))
		return
	}

	if err := h.deps.TimeRules.Delete(r.Context(), id); err != nil {
		if err == apperr.ErrSystemRuleProtect {
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: err.Error(), Code: string(apperr.KindConflict)})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Message: "rule deleted"})
}
