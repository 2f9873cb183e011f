package models

import (
	"strings"
	"time"
)

// Group modes.
const (
	GroupModeLearning = "learning"
	GroupModeAssisted = "assisted"
	GroupModeActive   = "active"
	GroupModePaused   = "paused"
)

// Group represents an addressable chat room.
type Group struct {
	ID              int       `json:"id" db:"id"`
	JID             string    `json:"jid" db:"jid"`
	Name            string    `json:"name" db:"name"`
	IsControlGroup  bool      `json:"is_control_group" db:"is_control_group"`
	controlOverride bool      // true when IsControlGroup was set explicitly (read from a row)
	Mode            string    `json:"mode" db:"mode"`
	FirstSeenAt     time.Time `json:"first_seen_at" db:"first_seen_at"`
	LastActivityAt  time.Time `json:"last_activity_at" db:"last_activity_at"`
	MessageCount    int       `json:"message_count" db:"message_count"`
}

// IsControl resolves the control-group flag. The explicit `is_control_group`
// column is authoritative when the group row is loaded from storage; a group
// discovered for the first time (no row yet) falls back to matching its name
// against the configured control-group pattern. Checking only one of the two
// signals is a spec violation (see DESIGN.md, Open Question decisions, item 3).
func (g *Group) IsControl(controlPattern string) bool {
	if g.controlOverride {
		return g.IsControlGroup
	}
	if controlPattern == "" {
		return false
	}
	return strings.Contains(strings.ToLower(g.Name), strings.ToLower(controlPattern))
}

// SetIsControlGroup marks the flag as loaded from storage, making it authoritative.
func (g *Group) SetIsControlGroup(v bool) {
	g.IsControlGroup = v
	g.controlOverride = true
}

func validGroupMode(m string) bool {
	switch m {
	case GroupModeLearning, GroupModeAssisted, GroupModeActive, GroupModePaused:
		return true
	default:
		return false
	}
}

// ValidGroupMode reports whether m is one of the four recognized group modes.
func ValidGroupMode(m string) bool {
	return validGroupMode(m)
}
