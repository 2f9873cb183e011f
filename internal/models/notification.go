package models

import "time"

// BronzeDealEvent is an append-only event row describing one deal
// transition, written to bronze_deal_events (§6.3). Fire-and-forget: the
// deal engine never blocks on this write.
type BronzeDealEvent struct {
	DealID       string                 `json:"deal_id" db:"deal_id"`
	GroupJID     string                 `json:"group_jid" db:"group_jid"`
	ClientJID    string                 `json:"client_jid" db:"client_jid"`
	FromState    string                 `json:"from_state,omitempty" db:"from_state"`
	ToState      string                 `json:"to_state" db:"to_state"`
	EventType    string                 `json:"event_type" db:"event_type"` // created, locked, repriced, escalated, completed, expired, cancelled
	MarketPrice  *float64               `json:"market_price,omitempty" db:"market_price"`
	DealSnapshot map[string]interface{} `json:"deal_snapshot" db:"deal_snapshot"`
	Metadata     map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
}

// Notification severities.
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// Notification types destined for the control group.
const (
	NotificationTypeAutoPause     = "AUTO_PAUSE"
	NotificationTypeResumed       = "RESUMED"
	NotificationTypeManualPause   = "MANUAL_PAUSE"
	NotificationTypeManualResume  = "MANUAL_RESUME"
	NotificationTypeEscalatedDeal = "ESCALATED_DEAL"
)

// Notification is a message destined for the control group.
type Notification struct {
	ID        int                    `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	Type      string                 `json:"type" db:"type"`
	Severity  string                 `json:"severity" db:"severity"`
	GroupJID  *string                `json:"group_jid,omitempty" db:"group_jid"`
	Message   string                 `json:"message" db:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty" db:"meta"`
}

// AIUsage records one AI classifier call for cost tracking (§6.3 ai_usage).
type AIUsage struct {
	ID           int       `json:"id" db:"id"`
	Service      string    `json:"service" db:"service"`
	Model        string    `json:"model" db:"model"`
	InputTokens  int       `json:"input_tokens" db:"input_tokens"`
	OutputTokens int       `json:"output_tokens" db:"output_tokens"`
	CostUSD      float64   `json:"cost_usd" db:"cost_usd"`
	GroupJID     *string   `json:"group_jid,omitempty" db:"group_jid"`
	DurationMs   *int      `json:"duration_ms,omitempty" db:"duration_ms"`
	Success      bool      `json:"success" db:"success"`
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
