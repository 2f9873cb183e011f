package models

import "time"

// Spread modes.
const (
	SpreadModeBps    = "bps"
	SpreadModeAbsBRL = "abs_brl"
	SpreadModeFlat   = "flat"
)

// Deal sides, expressed from the client's perspective.
const (
	SideClientBuysUSDT  = "client_buys_usdt"
	SideClientSellsUSDT = "client_sells_usdt"
)

// Currencies.
const (
	CurrencyBRL  = "BRL"
	CurrencyUSDT = "USDT"
)

// Languages.
const (
	LanguagePtBR = "pt-BR"
	LanguageEn   = "en"
)

// GroupConfig is the per-group pricing and behavior policy.
type GroupConfig struct {
	GroupJID          string            `json:"group_jid" db:"group_jid"`
	PricingSource     string            `json:"pricing_source" db:"pricing_source"`
	SpreadMode        string            `json:"spread_mode" db:"spread_mode"`
	SellSpread        float64           `json:"sell_spread" db:"sell_spread"`
	BuySpread         float64           `json:"buy_spread" db:"buy_spread"`
	QuoteTTLSeconds   int               `json:"quote_ttl_seconds" db:"quote_ttl_seconds"`
	DefaultSide       string            `json:"default_side" db:"default_side"`
	DefaultCurrency   string            `json:"default_currency" db:"default_currency"`
	Language          string            `json:"language" db:"language"`
	PlayerRoles       map[string]string `json:"player_roles" db:"player_roles"`
	Volatility        VolatilityConfig  `json:"volatility" db:"volatility"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" db:"updated_at"`
	LearningStartedAt *time.Time        `json:"learning_started_at,omitempty" db:"learning_started_at"`
}

// VolatilityConfig controls volatility-aware reprice behavior (§4.6.4).
type VolatilityConfig struct {
	Enabled      bool `json:"enabled"`
	ThresholdBps int  `json:"threshold_bps"` // 10..1000, default 30
	MaxReprices  int  `json:"max_reprices"`  // 1..10, default 3
}

// DefaultGroupConfig returns the documented defaults for a newly discovered group.
func DefaultGroupConfig(groupJID string) *GroupConfig {
	now := time.Now()
	return &GroupConfig{
		GroupJID:        groupJID,
		PricingSource:   PricingSourceBinance,
		SpreadMode:      SpreadModeBps,
		SellSpread:      0,
		BuySpread:       0,
		QuoteTTLSeconds: 180,
		DefaultSide:     SideClientBuysUSDT,
		DefaultCurrency: CurrencyBRL,
		Language:        LanguagePtBR,
		PlayerRoles:     map[string]string{},
		Volatility: VolatilityConfig{
			Enabled:      true,
			ThresholdBps: 30,
			MaxReprices:  3,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func validSpreadMode(m string) bool {
	switch m {
	case SpreadModeBps, SpreadModeAbsBRL, SpreadModeFlat:
		return true
	default:
		return false
	}
}

func validSide(s string) bool {
	switch s {
	case SideClientBuysUSDT, SideClientSellsUSDT:
		return true
	default:
		return false
	}
}

func validCurrency(c string) bool {
	switch c {
	case CurrencyBRL, CurrencyUSDT:
		return true
	default:
		return false
	}
}

func validLanguage(l string) bool {
	switch l {
	case LanguagePtBR, LanguageEn:
		return true
	default:
		return false
	}
}

// Validate checks range/enum invariants, returning a description of the
// first violation found or "" when the config is well-formed.
func (c *GroupConfig) Validate() string {
	if !validPricingSource(c.PricingSource) {
		return "invalid pricing_source"
	}
	if !validSpreadMode(c.SpreadMode) {
		return "invalid spread_mode"
	}
	if c.QuoteTTLSeconds < 1 || c.QuoteTTLSeconds > 3600 {
		return "quote_ttl_seconds must be between 1 and 3600"
	}
	if !validSide(c.DefaultSide) {
		return "invalid default_side"
	}
	if !validCurrency(c.DefaultCurrency) {
		return "invalid default_currency"
	}
	if !validLanguage(c.Language) {
		return "invalid language"
	}
	if c.Volatility.ThresholdBps < 10 || c.Volatility.ThresholdBps > 1000 {
		return "volatility threshold_bps must be between 10 and 1000"
	}
	if c.Volatility.MaxReprices < 1 || c.Volatility.MaxReprices > 10 {
		return "volatility max_reprices must be between 1 and 10"
	}
	return ""
}
