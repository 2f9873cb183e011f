package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"otcbot/internal/apperr"
	"otcbot/internal/models"
)

// GroupHandler serves per-group listing, mode changes, and the
// volatility/spread configuration sub-resources (§6.2).
type GroupHandler struct {
	deps *Dependencies
}

func NewGroupHandler(deps *Dependencies) *GroupHandler {
	return &GroupHandler{deps: deps}
}

type groupSummary struct {
	JID             string `json:"jid"`
	Name            string `json:"name"`
	Mode            string `json:"mode"`
	LearningDays    int    `json:"learning_days,omitempty"`
	ActiveRuleCount int    `json:"active_rule_count"`
	LastActivity    string `json:"last_activity"`
}

// List handles GET /api/groups.
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.deps.Groups.ListGroups(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]groupSummary, 0, len(groups))
	for _, g := range groups {
		summary := groupSummary{
			JID:          g.JID,
			Name:         g.Name,
			Mode:         g.Mode,
			LastActivity: g.LastActivityAt.Format("2006-01-02T15:04:05Z07:00"),
		}

		if cfg, err := h.deps.Groups.LoadGroupConfig(r.Context(), g.JID); err == nil && cfg.LearningStartedAt != nil {
			summary.LearningDays = int(time.Now().Sub(*cfg.LearningStartedAt).Hours() / 24)
		}

		if h.deps.Triggers != nil {
			if triggers, err := h.deps.Triggers.LoadTriggers(r.Context(), g.JID); err == nil {
				for _, t := range triggers {
					if t.IsActive {
						summary.ActiveRuleCount++
					}
				}
			}
		}

		out = append(out, summary)
	}

	writeJSON(w, http.StatusOK, out)
}

type setModeRequest struct {
	Mode string `json:"mode"`
}

// SetMode handles PUT /api/groups/:jid/mode.
func (h *GroupHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	jid := mux.Vars(r)["jid"]

	var req setModeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !models.ValidGroupMode(req.Mode) {
		writeError(w, apperr.New(apperr.KindValidation, "invalid mode"))
		return
	}

	if err := h.deps.Groups.SetMode(r.Context(), jid, req.Mode); err != nil {
		writeError(w, err)
		return
	}

	if h.deps.Matcher != nil {
		h.deps.Matcher.Invalidate(jid)
	}
	if h.deps.Resolver != nil {
		h.deps.Resolver.Invalidate(jid)
	}
	if h.deps.Hub != nil {
		h.deps.Hub.BroadcastGroupModeUpdate(jid, req.Mode)
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Message: "mode updated"})
}

// GetVolatility handles GET /api/groups/:jid/volatility.
func (h *GroupHandler) GetVolatility(w http.ResponseWriter, r *http.Request) {
	jid := mux.Vars(r)["jid"]
	cfg, err := h.deps.Groups.LoadGroupConfig(r.Context(), jid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg.Volatility)
}

// SetVolatility handles PUT/POST /api/groups/:jid/volatility.
func (h *GroupHandler) SetVolatility(w http.ResponseWriter, r *http.Request) {
	jid := mux.Vars(r)["jid"]

	var req models.VolatilityConfig
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ThresholdBps < 10 || req.ThresholdBps > 1000 {
		writeError(w, apperr.New(apperr.KindValidation, "threshold_bps must be between 10 and 1000"))
		return
	}
	if req.MaxReprices < 1 || req.MaxReprices > 10 {
		writeError(w, apperr.New(apperr.KindValidation, "max_reprices must be between 1 and 10"))
		return
	}

	cfg, err := h.deps.Groups.LoadGroupConfig(r.Context(), jid)
	if err != nil {
		writeError(w, err)
		return
	}
	cfg.Volatility = req
	cfg.UpdatedAt = time.Now()
	if err := h.deps.Groups.SaveGroupConfig(r.Context(), cfg); err != nil {
		writeError(w, err)
		return
	}
	if h.deps.Resolver != nil {
		h.deps.Resolver.Invalidate(jid)
	}

	writeJSON(w, http.StatusOK, cfg.Volatility)
}

// GetSpread handles GET /api/groups/:jid/spread.
func (h *GroupHandler) GetSpread(w http.ResponseWriter, r *http.Request) {
	jid := mux.Vars(r)["jid"]
	cfg, err := h.deps.Groups.LoadGroupConfig(r.Context(), jid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// SetSpread handles PUT /api/groups/:jid/spread.
func (h *GroupHandler) SetSpread(w http.ResponseWriter, r *http.Request) {
	jid := mux.Vars(r)["jid"]

	var cfg models.GroupConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, err)
		return
	}
	cfg.GroupJID = jid
	cfg.UpdatedAt = time.Now()

	if err := h.deps.Groups.SaveGroupConfig(r.Context(), &cfg); err != nil {
		writeError(w, err)
		return
	}
	if h.deps.Resolver != nil {
		h.deps.Resolver.Invalidate(jid)
	}

	writeJSON(w, http.StatusOK, cfg)
}
