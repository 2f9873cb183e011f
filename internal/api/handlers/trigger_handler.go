package handlers

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"otcbot/internal/apperr"
	"otcbot/internal/models"
)

// TriggerHandler serves the per-group trigger CRUD and dry-run test
// endpoints (§6.2).
type TriggerHandler struct {
	deps *Dependencies
}

func NewTriggerHandler(deps *Dependencies) *TriggerHandler {
	return &TriggerHandler{deps: deps}
}

// List handles GET /api/groups/:jid/triggers.
func (h *TriggerHandler) List(w http.ResponseWriter, r *http.Request) {
	jid := mux.Vars(r)["jid"]
	triggers, err := h.deps.Triggers.LoadTriggers(r.Context(), jid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, triggers)
}

// Create handles POST /api/groups/:jid/triggers.
func (h *TriggerHandler) Create(w http.ResponseWriter, r *http.Request) {
	jid := mux.Vars(r)["jid"]

	var t models.Trigger
	if err := decodeJSON(r, &t); err != nil {
		writeError(w, err)
		return
	}
	t.GroupJID = jid
	t.CreatedAt = time.Now()

	if t.PatternType == models.PatternRegex {
		if _, err := regexp.Compile(t.Phrase); err != nil {
			writeError(w, apperr.New(apperr.KindValidation, "regex does not compile: "+err.Error()))
			return
		}
	}

	if err := h.deps.Triggers.Create(r.Context(), &t); err != nil {
		writeError(w, err)
		return
	}
	h.deps.Matcher.Invalidate(jid)

	writeJSON(w, http.StatusCreated, t)
}

// Update handles PUT /api/groups/:jid/triggers/:id.
func (h *TriggerHandler) Update(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jid := vars["jid"]
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid trigger id"))
		return
	}

	var t models.Trigger
	if err := decodeJSON(r, &t); err != nil {
		writeError(w, err)
		return
	}
	t.ID = id
	t.GroupJID = jid

	if t.PatternType == models.PatternRegex {
		if _, err := regexp.Compile(t.Phrase); err != nil {
			writeError(w, apperr.New(apperr.KindValidation, "regex does not compile: "+err.Error()))
			return
		}
	}

	if err := h.deps.Triggers.Update(r.Context(), &t); err != nil {
		writeError(w, err)
		return
	}
	h.deps.Matcher.Invalidate(jid)

	writeJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /api/groups/:jid/triggers/:id.
func (h *TriggerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jid := vars["jid"]
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid trigger id"))
		return
	}

	if err := h.deps.Triggers.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	h.deps.Matcher.Invalidate(jid)

	writeJSON(w, http.StatusOK, SuccessResponse{Message: "trigger deleted"})
}

type testTriggerRequest struct {
	Message string `json:"message"`
}

type testTriggerResponse struct {
	Matched     bool            `json:"matched"`
	Trigger     *models.Trigger `json:"trigger,omitempty"`
	MatchedSpan string          `json:"matched_span,omitempty"`
	DryRunAction string         `json:"dry_run_action,omitempty"`
}

// Test handles POST /api/groups/:jid/triggers/test — a dry run of the
// matcher that never invokes the trigger's action (§6.2).
func (h *TriggerHandler) Test(w http.ResponseWriter, r *http.Request) {
	jid := mux.Vars(r)["jid"]

	var req testTriggerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	match, err := h.deps.Matcher.Match(r.Context(), jid, req.Message, false)
	if err != nil {
		writeError(w, err)
		return
	}
	if match == nil {
		writeJSON(w, http.StatusOK, testTriggerResponse{Matched: false})
		return
	}

	writeJSON(w, http.StatusOK, testTriggerResponse{
		Matched:      true,
		Trigger:      match.Trigger,
		MatchedSpan:  match.MatchedSpan,
		DryRunAction: match.Trigger.ActionType,
	})
}
