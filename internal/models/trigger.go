package models

import "time"

// Trigger pattern types.
const (
	PatternExact    = "exact"
	PatternContains = "contains"
	PatternRegex    = "regex"
)

// Trigger scopes.
const (
	ScopeGroup       = "group"
	ScopeControlOnly = "control_only"
)

// Trigger action types.
const (
	ActionTextResponse  = "text_response"
	ActionAIPrompt      = "ai_prompt"
	ActionQuote         = "quote"
	ActionLock          = "lock"
	ActionCancel        = "cancel"
	ActionApplyAmount   = "apply_amount"
	ActionControlPause  = "control_pause"
	ActionControlResume = "control_resume"
	ActionControlStatus = "control_status"
)

// Trigger is a per-group text-matching rule.
type Trigger struct {
	ID            int                    `json:"id" db:"id"`
	GroupJID      string                 `json:"group_jid" db:"group_jid"`
	Phrase        string                 `json:"trigger_phrase" db:"trigger_phrase"`
	PatternType   string                 `json:"pattern_type" db:"pattern_type"`
	ActionType    string                 `json:"action_type" db:"action_type"`
	ActionParams  map[string]interface{} `json:"action_params" db:"action_params"`
	Priority      int                    `json:"priority" db:"priority"`
	IsActive      bool                   `json:"is_active" db:"is_active"`
	Scope         string                 `json:"scope" db:"scope"`
	IsSystem      bool                   `json:"is_system" db:"is_system"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`
}

func validPatternType(p string) bool {
	switch p {
	case PatternExact, PatternContains, PatternRegex:
		return true
	default:
		return false
	}
}

func validScope(s string) bool {
	switch s {
	case ScopeGroup, ScopeControlOnly:
		return true
	default:
		return false
	}
}

// Validate checks the API-boundary rules from spec.md §6.2. Regex
// compilability is checked separately by the trigger package (models must
// not import regexp-compilation concerns that belong to matching).
func (t *Trigger) Validate() string {
	if len(t.Phrase) < 1 || len(t.Phrase) > 200 {
		return "trigger_phrase must be between 1 and 200 characters"
	}
	if !validPatternType(t.PatternType) {
		return "invalid pattern_type"
	}
	if !validScope(t.Scope) {
		return "invalid scope"
	}
	if t.Priority < 0 || t.Priority > 100 {
		return "priority must be between 0 and 100"
	}
	switch t.ActionType {
	case ActionTextResponse:
		if text, _ := t.ActionParams["text"].(string); text == "" {
			return "text_response action requires non-empty text"
		}
	case ActionAIPrompt:
		if prompt, _ := t.ActionParams["prompt"].(string); prompt == "" {
			return "ai_prompt action requires non-empty prompt"
		}
	}
	return ""
}

// SystemTriggerSeeds returns the canonical OTC vocabulary triggers seeded
// into every new group (§3, Trigger.isSystem). They are editable afterwards.
func SystemTriggerSeeds(groupJID string) []*Trigger {
	now := time.Now()
	mk := func(phrase, patternType, actionType string, priority int, scope string, params map[string]interface{}) *Trigger {
		return &Trigger{
			GroupJID:     groupJID,
			Phrase:       phrase,
			PatternType:  patternType,
			ActionType:   actionType,
			ActionParams: params,
			Priority:     priority,
			IsActive:     true,
			Scope:        scope,
			IsSystem:     true,
			CreatedAt:    now,
		}
	}
	return []*Trigger{
		mk("preço", PatternContains, ActionQuote, 90, ScopeGroup, nil),
		mk("preco", PatternContains, ActionQuote, 90, ScopeGroup, nil),
		mk("cotação", PatternContains, ActionQuote, 90, ScopeGroup, nil),
		mk("trava", PatternContains, ActionLock, 95, ScopeGroup, nil),
		mk("fechado", PatternContains, ActionLock, 95, ScopeGroup, nil),
		mk("cancela", PatternContains, ActionCancel, 95, ScopeGroup, nil),
		mk("cancelar", PatternContains, ActionCancel, 95, ScopeGroup, nil),
		mk("pause", PatternExact, ActionControlPause, 100, ScopeControlOnly, nil),
		mk("resume", PatternExact, ActionControlResume, 100, ScopeControlOnly, nil),
		mk("status", PatternExact, ActionControlStatus, 100, ScopeControlOnly, nil),
	}
}
