package models

import "time"

// Deal states (§3, §4.6.1).
const (
	DealStateQuoted    = "quoted"
	DealStateLocked    = "locked"
	DealStateComputing = "computing"
	DealStateCompleted = "completed"
	DealStateExpired   = "expired"
	DealStateCancelled = "cancelled"
)

// NonTerminalStates lists the states in which a deal still occupies the
// at-most-one-active-deal-per-client slot.
var NonTerminalStates = []string{DealStateQuoted, DealStateLocked, DealStateComputing}

// IsTerminal reports whether s is one of the three terminal states.
func IsTerminal(s string) bool {
	switch s {
	case DealStateCompleted, DealStateExpired, DealStateCancelled:
		return true
	default:
		return false
	}
}

// IsNonTerminal reports whether s occupies the active-deal slot.
func IsNonTerminal(s string) bool {
	switch s {
	case DealStateQuoted, DealStateLocked, DealStateComputing:
		return true
	default:
		return false
	}
}

// Deal is the core stateful entity: one operator-assisted OTC conversation
// between the bot and a client, scoped to a group.
type Deal struct {
	ID     string `json:"id" db:"id"`
	GroupJID string `json:"group_jid" db:"group_jid"`
	ClientJID string `json:"client_jid" db:"client_jid"`
	Side   string `json:"side" db:"side"`
	State  string `json:"state" db:"state"`

	BaseRate   float64 `json:"base_rate" db:"base_rate"`
	QuotedRate float64 `json:"quoted_rate" db:"quoted_rate"`

	LockedRate *float64   `json:"locked_rate,omitempty" db:"locked_rate"`
	LockedAt   *time.Time `json:"locked_at,omitempty" db:"locked_at"`

	AmountBRL  *float64 `json:"amount_brl,omitempty" db:"amount_brl"`
	AmountUSDT *float64 `json:"amount_usdt,omitempty" db:"amount_usdt"`

	TTLExpiresAt time.Time `json:"ttl_expires_at" db:"ttl_expires_at"`

	PricingSource string `json:"pricing_source" db:"pricing_source"`
	SpreadMode    string `json:"spread_mode" db:"spread_mode"`
	SellSpread    float64 `json:"sell_spread" db:"sell_spread"`
	BuySpread     float64 `json:"buy_spread" db:"buy_spread"`

	RuleIDUsed   *int   `json:"rule_id_used,omitempty" db:"rule_id_used"`
	RuleName     string `json:"rule_name,omitempty" db:"rule_name"`
	RepriceCount int    `json:"reprice_count" db:"reprice_count"`

	// Metadata carries implementation-specific flags that are not states,
	// e.g. "await_operator" when the reprice cap has been hit (§4.6.4).
	Metadata map[string]interface{} `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AwaitingOperator reports whether the deal is held pending manual
// intervention because its reprice cap was exceeded.
func (d *Deal) AwaitingOperator() bool {
	if d.Metadata == nil {
		return false
	}
	v, _ := d.Metadata["await_operator"].(bool)
	return v
}

// DealHistory is the terminal archive of a Deal (invariant 6, §3).
type DealHistory struct {
	Deal
	FinalState       string    `json:"final_state" db:"final_state"`
	CompletionReason string    `json:"completion_reason" db:"completion_reason"`
	ArchivedAt       time.Time `json:"archived_at" db:"archived_at"`
}

// ToHistory archives a terminal deal. Panics if d is not terminal — callers
// (the deal engine) must never call this on a non-terminal deal.
func (d *Deal) ToHistory(reason string) *DealHistory {
	if !IsTerminal(d.State) {
		panic("models: ToHistory called on non-terminal deal")
	}
	return &DealHistory{
		Deal:             *d,
		FinalState:       d.State,
		CompletionReason: reason,
		ArchivedAt:       time.Now(),
	}
}
