// Package router implements the routing decision table of §4.2: a pure
// function from a request-scoped context to one destination, patterned
// after the teacher's state_machine.go (CanTransition's table-driven
// dispatch), but deciding a destination instead of a state transition.
package router

import (
	"strings"

	"otcbot/internal/transport"
)

// Destination is where an inbound message should be handled.
type Destination string

const (
	// DestinationControl routes to the control-group command handler.
	DestinationControl Destination = "CONTROL"
	// DestinationTriggered routes to the trigger's configured action.
	DestinationTriggered Destination = "TRIGGERED"
	// DestinationDeal continues an in-flight deal for this client.
	DestinationDeal Destination = "DEAL"
	// DestinationObserve records the message with no reply.
	DestinationObserve Destination = "OBSERVE"
	// DestinationIgnore drops the message: ignored sender or blank text.
	DestinationIgnore Destination = "IGNORE"
)

// Context carries every fact the decision table needs, already resolved
// by the caller (dispatcher/handler) before Route runs: whether this is
// the control group, whether the sender is on the group's ignore list,
// whether the sender has an in-flight deal, and whether a trigger
// matched. Route itself never queries a store.
type Context struct {
	GroupID         string
	GroupName       string
	SenderID        string
	SenderName      string
	Text            string
	IsControlGroup  bool
	Attachments     []transport.Attachment
	IsSenderIgnored bool
	HasActiveDeal   bool
	TriggerMatched  bool
	IsPaused        bool
}

// Route applies the ordering rule of §4.2: control group beats
// everything; then ignored-sender/blank-text; then an in-flight deal;
// then a trigger match; otherwise observe. While the bot is auto-paused
// (§4.8), a trigger match is downgraded from TRIGGERED to OBSERVE rather
// than acting — the control group still gets through, and an in-flight
// deal still runs to completion.
func Route(ctx Context) Destination {
	if ctx.IsControlGroup {
		return DestinationControl
	}
	if ctx.IsSenderIgnored || strings.TrimSpace(ctx.Text) == "" {
		return DestinationIgnore
	}
	if ctx.HasActiveDeal {
		return DestinationDeal
	}
	if ctx.TriggerMatched {
		if ctx.IsPaused {
			return DestinationObserve
		}
		return DestinationTriggered
	}
	return DestinationObserve
}
