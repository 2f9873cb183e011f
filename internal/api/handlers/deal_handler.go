package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"otcbot/internal/apperr"
)

const defaultDealHistoryLimit = 100

// DealHandler serves the per-group active/historical deal listing and
// the manual cancel/extend/sweep actions (§6.2).
type DealHandler struct {
	deps *Dependencies
}

func NewDealHandler(deps *Dependencies) *DealHandler {
	return &DealHandler{deps: deps}
}

// ListActive handles GET /api/groups/:jid/deals.
func (h *DealHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	jid := mux.Vars(r)["jid"]

	all, err := h.deps.Deals.ActiveDeals(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]interface{}, 0, len(all))
	for _, d := range all {
		if d.GroupJID == jid {
			out = append(out, d)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// ListHistory handles GET /api/groups/:jid/deal-history.
func (h *DealHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	jid := mux.Vars(r)["jid"]

	history, err := h.deps.DealHistory.ListByGroup(r.Context(), jid, defaultDealHistoryLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// Cancel handles POST /api/groups/:jid/deals/:dealId/cancel.
func (h *DealHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	dealID := mux.Vars(r)["dealId"]

	d, err := h.deps.Deals.GetDeal(r.Context(), dealID)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.deps.DealEngine.Cancel(r.Context(), d.GroupJID, d.ClientJID, dealID, "operator_cancelled")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type extendDealRequest struct {
	Seconds int `json:"seconds"`
}

// Extend handles POST /api/groups/:jid/deals/:dealId/extend.
func (h *DealHandler) Extend(w http.ResponseWriter, r *http.Request) {
	dealID := mux.Vars(r)["dealId"]

	var req extendDealRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Seconds <= 0 {
		writeError(w, apperr.New(apperr.KindValidation, "seconds must be positive"))
		return
	}

	d, err := h.deps.Deals.GetDeal(r.Context(), dealID)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.deps.DealEngine.Extend(r.Context(), d.GroupJID, d.ClientJID, dealID, req.Seconds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Sweep handles POST /api/groups/:jid/deals/:dealId/sweep.
func (h *DealHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	dealID := mux.Vars(r)["dealId"]

	d, err := h.deps.Deals.GetDeal(r.Context(), dealID)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.deps.DealEngine.ForceSweep(r.Context(), d.GroupJID, d.ClientJID, dealID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
