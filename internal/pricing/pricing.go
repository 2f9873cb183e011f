// Package pricing wires the rule resolver and the price aggregator
// into a single client-facing quote: resolve(groupId, now) picks the
// policy, the aggregator supplies the mid, and internal/money applies
// the spread. Everything here is pure/deterministic except the
// aggregator read itself.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"otcbot/internal/models"
	"otcbot/internal/money"
	"otcbot/internal/rule"
)

// PriceSource reads the latest-price view; internal/price.Aggregator
// satisfies it.
type PriceSource interface {
	GetPrice(source, symbol string) (price float64, age time.Duration, stale bool, ok bool)
}

// Resolver answers the active pricing policy for a group;
// internal/rule.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, groupID string, now time.Time) (*rule.Resolution, error)
}

// Quote is the deterministic client-facing price snapshot for one side
// of a deal.
type Quote struct {
	PricingSource string
	SourceSymbol  string
	SpreadMode    string
	Mid           decimal.Decimal
	Rate          decimal.Decimal
	Side          string
	Currency      string
	Language      string
	TTL           time.Duration
	RuleName      string
	CapturedAt    time.Time
	Stale         bool
}

// sourceRoute maps a GroupConfig/TimeRule pricingSource label onto the
// concrete (aggregator source, symbol) pair it reads from. "tradingview"
// is the embedded-browser commercial-dollar scrape (§6.4's TRADINGVIEW_*
// config lives on that same scraper); "commercial" is the same USD/BRL
// symbol but read on demand via REST_FALLBACK instead of the live
// scrape, for groups that want the commercial rate without running the
// browser continuously. This mapping is an explicit decision recorded
// in DESIGN.md (spec.md leaves the pricingSource→source wiring
// unspecified).
var sourceRoute = map[string]struct {
	source string
	symbol string
}{
	models.PricingSourceBinance:     {models.SourceStreamA, models.SymbolUSDTBRL},
	models.PricingSourceTradingView: {models.SourceStreamB, models.SymbolUSDBRL},
	models.PricingSourceCommercial:  {models.SourceRESTFallback, models.SymbolUSDBRL},
}

// Route exposes the pricingSource -> (aggregator source, symbol) mapping
// for callers that need to keep reading the same feed a quote was struck
// against without re-resolving the group's rule (the deal engine's
// volatility reprice watch, which must never let a mid-deal rule change
// silently swap the quote's underlying feed).
func Route(pricingSource string) (source, symbol string, ok bool) {
	route, found := sourceRoute[pricingSource]
	if !found {
		return "", "", false
	}
	return route.source, route.symbol, true
}

// Engine produces client-facing quotes.
type Engine struct {
	resolver Resolver
	prices   PriceSource
}

func New(resolver Resolver, prices PriceSource) *Engine {
	return &Engine{resolver: resolver, prices: prices}
}

// Quote resolves the group's pricing policy and applies its spread to
// the current mid for the requested side. An empty side falls back to
// the group's configured default side.
func (e *Engine) Quote(ctx context.Context, groupID, side string, now time.Time) (*Quote, error) {
	resolution, err := e.resolver.Resolve(ctx, groupID, now)
	if err != nil {
		return nil, fmt.Errorf("pricing: resolve: %w", err)
	}
	if side == "" {
		side = resolution.Side
	}

	route, ok := sourceRoute[resolution.PricingSource]
	if !ok {
		return nil, fmt.Errorf("pricing: no source route configured for pricing_source %q", resolution.PricingSource)
	}

	priceVal, age, stale, ok := e.prices.GetPrice(route.source, route.symbol)
	if !ok {
		return nil, fmt.Errorf("pricing: no price available for %s/%s", route.source, route.symbol)
	}

	mid := decimal.NewFromFloat(priceVal)
	sellSpread := decimal.NewFromFloat(resolution.SellSpread)
	buySpread := decimal.NewFromFloat(resolution.BuySpread)

	var rate decimal.Decimal
	switch side {
	case models.SideClientBuysUSDT:
		rate = money.ClientBuyRate(mid, resolution.SpreadMode, sellSpread)
	case models.SideClientSellsUSDT:
		rate = money.ClientSellRate(mid, resolution.SpreadMode, buySpread)
	default:
		return nil, fmt.Errorf("pricing: invalid side %q", side)
	}

	return &Quote{
		PricingSource: resolution.PricingSource,
		SourceSymbol:  route.symbol,
		SpreadMode:    resolution.SpreadMode,
		Mid:           mid,
		Rate:          money.Truncate2(rate),
		Side:          side,
		Currency:      resolution.Currency,
		Language:      resolution.Language,
		TTL:           resolution.TTL,
		RuleName:      resolution.RuleName,
		CapturedAt:    now.Add(-age),
		Stale:         stale,
	}, nil
}
