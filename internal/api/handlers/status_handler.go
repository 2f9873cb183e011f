package handlers

import (
	"net/http"
	"time"
)

// StatusHandler serves the dashboard's top-level operational snapshot
// (§6.2 GET /api/status).
type StatusHandler struct {
	deps *Dependencies
}

func NewStatusHandler(deps *Dependencies) *StatusHandler {
	return &StatusHandler{deps: deps}
}

type pauseInfo struct {
	Paused bool       `json:"paused"`
	Source string     `json:"source,omitempty"`
	Reason string     `json:"reason,omitempty"`
	At     *time.Time `json:"at,omitempty"`
}

type statusResponse struct {
	Connection        string         `json:"connection"`
	UptimeMs          int64          `json:"uptime_ms"`
	MessagesSentToday uint64         `json:"messages_sent_today"`
	GroupModeCounts   map[string]int `json:"group_mode_counts"`
	Pause             pauseInfo      `json:"pause"`
}

// Get handles GET /api/status.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Connection:      "unknown",
		UptimeMs:        time.Since(h.deps.StartedAt).Milliseconds(),
		GroupModeCounts: map[string]int{},
	}

	if h.deps.TransportConnected != nil {
		if h.deps.TransportConnected() {
			resp.Connection = "connected"
		} else {
			resp.Connection = "disconnected"
		}
	}

	if h.deps.Notifier != nil {
		resp.MessagesSentToday = h.deps.Notifier.Stats().Sent
	}

	if h.deps.Groups != nil {
		groups, err := h.deps.Groups.ListGroups(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		for _, g := range groups {
			resp.GroupModeCounts[g.Mode]++
		}
	}

	if h.deps.ErrService != nil {
		resp.Pause.Paused = h.deps.ErrService.IsPaused()
		if resp.Pause.Paused {
			ev := h.deps.ErrService.LastPause()
			resp.Pause.Source = ev.Source
			resp.Pause.Reason = ev.Reason
			at := ev.At
			resp.Pause.At = &at
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
