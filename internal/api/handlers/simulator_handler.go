package handlers

import (
	"net/http"
	"time"

	"otcbot/internal/apperr"
	"otcbot/internal/router"
)

// SimulatorHandler serves the dashboard's "dry run a message" tooling
// (§6.2). It never calls a deal.Engine mutating method (Quote/Lock/
// ApplyAmount/...) — only the pure decision functions (router.Route,
// trigger.Matcher.Match, rule.Resolver.Resolve) — so it's safe to run
// against the live repository without a transactional store overlay. A
// true in-memory fork of the deal/trigger/rule store would need
// isolation machinery nothing else in this module needs; composing the
// read-only decision path avoids that entirely.
type SimulatorHandler struct {
	deps *Dependencies
}

func NewSimulatorHandler(deps *Dependencies) *SimulatorHandler {
	return &SimulatorHandler{deps: deps}
}

type simulatedMessage struct {
	GroupID     string `json:"group_id"`
	SenderID    string `json:"sender_id"`
	Text        string `json:"text"`
	TimestampMs int64  `json:"timestamp_ms,omitempty"`
}

type simulatorSendRequest struct {
	simulatedMessage
}

type simulatorReplayRequest struct {
	Messages []simulatedMessage `json:"messages"`
}

type simulatorResult struct {
	Route         router.Destination `json:"route"`
	TriggerPhrase string              `json:"trigger_phrase,omitempty"`
	ActionType    string              `json:"action_type,omitempty"`
	PricingSource string              `json:"pricing_source,omitempty"`
	RuleName      string              `json:"rule_name,omitempty"`
}

type simulatorResponse struct {
	Route            router.Destination `json:"route"`
	Responses        []simulatorResult  `json:"responses"`
	ProcessingTimeMs float64            `json:"processingTimeMs"`
}

// Send handles POST /api/simulator/send.
func (h *SimulatorHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req simulatorSendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.GroupID == "" {
		writeError(w, apperr.New(apperr.KindValidation, "group_id is required"))
		return
	}

	start := time.Now()
	result, err := h.evaluate(r, req.simulatedMessage)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, simulatorResponse{
		Route:            result.Route,
		Responses:        []simulatorResult{result},
		ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000,
	})
}

// Replay handles POST /api/simulator/replay, running each message in
// order through the same read-only decision path as Send.
func (h *SimulatorHandler) Replay(w http.ResponseWriter, r *http.Request) {
	var req simulatorReplayRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, apperr.New(apperr.KindValidation, "messages must be non-empty"))
		return
	}

	start := time.Now()
	results := make([]simulatorResult, 0, len(req.Messages))
	for _, msg := range req.Messages {
		result, err := h.evaluate(r, msg)
		if err != nil {
			writeError(w, err)
			return
		}
		results = append(results, result)
	}

	lastRoute := results[len(results)-1].Route
	writeJSON(w, http.StatusOK, simulatorResponse{
		Route:            lastRoute,
		Responses:        results,
		ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000,
	})
}

func (h *SimulatorHandler) evaluate(r *http.Request, msg simulatedMessage) (simulatorResult, error) {
	ctx := r.Context()
	jid := msg.GroupID

	isControlGroup := false
	if h.deps.Groups != nil {
		if g, err := h.deps.Groups.GetByJID(ctx, jid); err == nil {
			isControlGroup = g.IsControl(h.deps.ControlGroupPattern)
		} else if !apperr.Is(err, apperr.KindNotFound) {
			return simulatorResult{}, err
		}
	}

	isIgnored := false
	if h.deps.IgnoredSenders != nil {
		ok, err := h.deps.IgnoredSenders.Exists(ctx, jid, msg.SenderID)
		if err != nil {
			return simulatorResult{}, err
		}
		isIgnored = ok
	}

	hasActiveDeal := false
	if h.deps.Deals != nil {
		if _, err := h.deps.Deals.ActiveDeal(ctx, jid, msg.SenderID); err == nil {
			hasActiveDeal = true
		} else if !apperr.Is(err, apperr.KindNotFound) {
			return simulatorResult{}, err
		}
	}

	match, err := h.deps.Matcher.Match(ctx, jid, msg.Text, isControlGroup)
	if err != nil {
		return simulatorResult{}, err
	}

	isPaused := false
	if h.deps.ErrService != nil {
		isPaused = h.deps.ErrService.IsPaused()
	}

	dest := router.Route(router.Context{
		GroupID:         jid,
		SenderID:        msg.SenderID,
		Text:            msg.Text,
		IsControlGroup:  isControlGroup,
		IsSenderIgnored: isIgnored,
		HasActiveDeal:   hasActiveDeal,
		TriggerMatched:  match != nil,
		IsPaused:        isPaused,
	})

	result := simulatorResult{Route: dest}
	if match != nil {
		result.TriggerPhrase = match.Trigger.Phrase
		result.ActionType = match.Trigger.ActionType
	}

	if h.deps.Resolver != nil {
		resolution, err := h.deps.Resolver.Resolve(ctx, jid, time.Now())
		if err == nil && resolution != nil {
			result.PricingSource = resolution.PricingSource
			result.RuleName = resolution.RuleName
		}
	}

	return result, nil
}
