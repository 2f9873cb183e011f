// Package deal implements the stateful per-(group,client) conversation of
// §4.6: Engine is the direct generalization of the teacher's bot.Engine —
// a per-entity lock-striped map (here striped by group+client instead of
// the teacher's per-pair PairState mutex), a TTL sweeper goroutine, and a
// volatility watch loop that plays the role of the teacher's
// PositionManager PNL watch.
package deal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"otcbot/internal/apperr"
	"otcbot/internal/models"
	"otcbot/internal/money"
	"otcbot/internal/pricing"
	"otcbot/pkg/utils"
)

const numStripes = 32

// fnvOffset32/fnvPrime32 back an allocation-free FNV-1a hash for stripe
// selection, the same inline hash the teacher uses to shard PriceTracker.
const (
	fnvOffset32 = uint32(2166136261)
	fnvPrime32  = uint32(16777619)
)

func fnvHash(s string) uint32 {
	h := fnvOffset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime32
	}
	return h
}

func stripeKey(groupID, clientID string) string { return groupID + "|" + clientID }

// Store is the persistence boundary the engine operates through;
// internal/repository provides the real implementation.
type Store interface {
	ActiveDeal(ctx context.Context, groupID, clientID string) (*models.Deal, error)
	GetDeal(ctx context.Context, dealID string) (*models.Deal, error)
	CreateDeal(ctx context.Context, d *models.Deal) error
	// UpdateDeal performs an atomic compare-and-swap keyed on (d.ID,
	// expectedState), matching §4.10's `UPDATE ... WHERE id=$1 AND
	// state=$2`. Returns apperr.ErrDealConflict if the row's state no
	// longer matches expectedState.
	UpdateDeal(ctx context.Context, d *models.Deal, expectedState string) error
	ArchiveDeal(ctx context.Context, h *models.DealHistory) error
	// SweepExpired returns every non-terminal deal whose TTL had already
	// elapsed at or before now, for the sweeper to transition.
	SweepExpired(ctx context.Context, now time.Time) ([]*models.Deal, error)
	// ActiveDeals lists every non-terminal deal, used on boot to re-arm
	// sweep/reprice watching after a restart (§4.6, recovery).
	ActiveDeals(ctx context.Context) ([]*models.Deal, error)
}

// EventType enumerates the bronze-sink events the engine emits.
type EventType string

const (
	EventCreated   EventType = "created"
	EventLocked    EventType = "locked"
	EventRepriced  EventType = "repriced"
	EventEscalated EventType = "escalated"
	EventCompleted EventType = "completed"
	EventCancelled EventType = "cancelled"
	EventExpired   EventType = "expired"
)

// Event is one deal-lifecycle fact, archived to the bronze sink.
type Event struct {
	Type   EventType
	Deal   models.Deal
	Reason string
	At     time.Time
}

// EventSink receives deal-lifecycle events; implementations must never
// block the caller (mirrors internal/price.Aggregator's fire-and-forget
// bronze push).
type EventSink interface {
	Emit(e Event)
}

// Notifier reaches the group's control channel; internal/notifier
// provides the throttled/deduped implementation.
type Notifier interface {
	NotifyOperator(ctx context.Context, groupID, message string) error
}

// QuoteEngine resolves a group's pricing policy into a client-facing
// quote; internal/pricing.Engine satisfies it.
type QuoteEngine interface {
	Quote(ctx context.Context, groupID, side string, now time.Time) (*pricing.Quote, error)
}

// PriceSource reads the latest mid for a (source, symbol) pair;
// internal/price.Aggregator satisfies it.
type PriceSource interface {
	GetPrice(source, symbol string) (price float64, age time.Duration, stale bool, ok bool)
}

// Metrics receives transition/reprice counters for observability wiring.
type Metrics interface {
	Transition(from, to string)
	Repriced(groupID string)
	Escalated(groupID string)
	SweepExpired(count int)
}

type noopMetrics struct{}

func (noopMetrics) Transition(string, string)  {}
func (noopMetrics) Repriced(string)            {}
func (noopMetrics) Escalated(string)           {}
func (noopMetrics) SweepExpired(int)           {}

// Config controls TTL, sweeping, and extend limits (§4.6.5, §6.4).
type Config struct {
	DefaultTTL          time.Duration
	SweepInterval       time.Duration
	RepriceCheckInterval time.Duration
	LockTimeout         time.Duration
	MaxExtendPerCall    time.Duration
	MaxCumulativeExtendX int
}

func DefaultConfig() Config {
	return Config{
		DefaultTTL:           180 * time.Second,
		SweepInterval:        10 * time.Second,
		RepriceCheckInterval: 2 * time.Second,
		LockTimeout:          2 * time.Second,
		MaxExtendPerCall:     3600 * time.Second,
		MaxCumulativeExtendX: 2,
	}
}

// Result wraps the deal returned by an operation plus a reason code for
// the no-op/idempotent cases the spec requires instead of an error
// (§4.6.3: "they return the current deal and a reason code").
type Result struct {
	Deal    *models.Deal
	Reason  string
	Changed bool
}

// Engine owns the per-(group,client) deal lifecycle: lock striping,
// quote/lock/applyAmount/complete/cancel/extend, the TTL sweeper, and the
// volatility-aware reprice watch.
type Engine struct {
	store   Store
	sink    EventSink
	notify  Notifier
	quotes  QuoteEngine
	prices  PriceSource
	metrics Metrics
	cfg     Config

	stripes [numStripes]chan struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	groupConfigs func(ctx context.Context, groupID string) (*models.GroupConfig, error)
}

// New builds an Engine. groupConfigs supplies the group's volatility
// policy for the reprice watch; internal/repository's group-config loader
// satisfies it.
func New(store Store, sink EventSink, notify Notifier, quotes QuoteEngine, prices PriceSource, metrics Metrics, cfg Config, groupConfigs func(ctx context.Context, groupID string) (*models.GroupConfig, error)) *Engine {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 180 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Second
	}
	if cfg.RepriceCheckInterval <= 0 {
		cfg.RepriceCheckInterval = 2 * time.Second
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 2 * time.Second
	}
	e := &Engine{
		store:        store,
		sink:         sink,
		notify:       notify,
		quotes:       quotes,
		prices:       prices,
		metrics:      metrics,
		cfg:          cfg,
		stopCh:       make(chan struct{}),
		groupConfigs: groupConfigs,
	}
	for i := range e.stripes {
		e.stripes[i] = make(chan struct{}, 1)
		e.stripes[i] <- struct{}{}
	}
	return e
}

func (e *Engine) lockFor(groupID, clientID string) chan struct{} {
	idx := fnvHash(stripeKey(groupID, clientID)) % numStripes
	return e.stripes[idx]
}

// withLock runs fn holding the per-(group,client) stripe, bounded by
// cfg.LockTimeout (§5's "row-scoped lock", reinterpreted as a striped
// in-process mutex since a single process owns the active-deal slot). The
// stripe is a buffered channel holding a single token rather than a
// sync.Mutex: acquiring it is itself a select case, so a timed-out or
// canceled wait never leaves a detached goroutine that acquires the lock
// later and forgets to release it.
func (e *Engine) withLock(ctx context.Context, groupID, clientID string, fn func() (Result, error)) (Result, error) {
	mu := e.lockFor(groupID, clientID)
	select {
	case <-mu:
		defer func() { mu <- struct{}{} }()
		return fn()
	case <-time.After(e.cfg.LockTimeout):
		return Result{}, apperr.ErrLockTimeout
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (e *Engine) emit(typ EventType, d *models.Deal, reason string) {
	if e.sink == nil || d == nil {
		return
	}
	e.sink.Emit(Event{Type: typ, Deal: *d, Reason: reason, At: time.Now().UTC()})
}

func (e *Engine) transition(ctx context.Context, d *models.Deal, to string) error {
	from := d.State
	d.State = to
	d.UpdatedAt = time.Now().UTC()
	if err := e.store.UpdateDeal(ctx, d, from); err != nil {
		d.State = from
		return err
	}
	e.metrics.Transition(from, to)
	return nil
}

// Quote implements quote(groupId, clientId, side, amountHint?) -> Deal.
// P1: a second quote while one is already non-terminal returns conflict
// and the existing deal unchanged.
func (e *Engine) Quote(ctx context.Context, groupID, clientID, side string, amountHint *decimal.Decimal) (Result, error) {
	return e.withLock(ctx, groupID, clientID, func() (Result, error) {
		existing, err := e.store.ActiveDeal(ctx, groupID, clientID)
		if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
			return Result{}, err
		}
		if existing != nil {
			return Result{Deal: existing, Reason: "already_active"}, apperr.ErrDealConflict
		}

		now := time.Now().UTC()
		q, err := e.quotes.Quote(ctx, groupID, side, now)
		if err != nil {
			return Result{}, fmt.Errorf("deal: quote: %w", err)
		}
		if q.Stale {
			return Result{}, apperr.New(apperr.KindTransient, "price is stale, cannot quote")
		}

		d := &models.Deal{
			GroupJID:      groupID,
			ClientJID:     clientID,
			Side:          q.Side,
			State:         models.DealStateQuoted,
			BaseRate:      q.Mid.InexactFloat64(),
			QuotedRate:    q.Rate.InexactFloat64(),
			TTLExpiresAt:  now.Add(e.cfg.DefaultTTL),
			PricingSource: q.PricingSource,
			SpreadMode:    q.SpreadMode,
			RuleName:      q.RuleName,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if amountHint != nil {
			v := amountHint.InexactFloat64()
			switch d.Side {
			case models.SideClientBuysUSDT:
				d.AmountBRL = &v
			case models.SideClientSellsUSDT:
				d.AmountUSDT = &v
			}
		}

		if err := e.store.CreateDeal(ctx, d); err != nil {
			return Result{}, err
		}
		e.metrics.Transition("", models.DealStateQuoted)
		e.emit(EventCreated, d, "")
		utils.L().Info("deal: created", utils.Group(groupID), utils.Client(clientID), utils.Deal(d.ID), utils.Side(d.Side))
		return Result{Deal: d, Changed: true}, nil
	})
}

// Lock implements lock(dealId) -> Deal: quoted -> locked.
func (e *Engine) Lock(ctx context.Context, groupID, clientID, dealID string) (Result, error) {
	return e.withLock(ctx, groupID, clientID, func() (Result, error) {
		d, err := e.store.GetDeal(ctx, dealID)
		if err != nil {
			return Result{}, err
		}
		if models.IsTerminal(d.State) {
			return Result{Deal: d, Reason: "already_terminal"}, nil
		}
		if time.Now().UTC().After(d.TTLExpiresAt) {
			return Result{Deal: d, Reason: "expired"}, apperr.New(apperr.KindConflict, "expired")
		}
		if d.State != models.DealStateQuoted {
			return Result{Deal: d, Reason: "not_quotable"}, apperr.New(apperr.KindConflict, "not quotable")
		}

		rate := d.QuotedRate
		now := time.Now().UTC()
		d.LockedRate = &rate
		d.LockedAt = &now
		if err := e.transition(ctx, d, models.DealStateLocked); err != nil {
			return Result{}, err
		}
		e.emit(EventLocked, d, "")
		return Result{Deal: d, Changed: true}, nil
	})
}

// ApplyAmount implements applyAmount(dealId, amountBrl?, amountUsdt?): it
// fills the missing side from lockedRate (or quotedRate if not yet
// locked), transiting through computing back to the prior state.
func (e *Engine) ApplyAmount(ctx context.Context, groupID, clientID, dealID string, amountBRL, amountUSDT *decimal.Decimal) (Result, error) {
	return e.withLock(ctx, groupID, clientID, func() (Result, error) {
		d, err := e.store.GetDeal(ctx, dealID)
		if err != nil {
			return Result{}, err
		}
		if models.IsTerminal(d.State) {
			return Result{Deal: d, Reason: "already_terminal"}, nil
		}
		if amountBRL == nil && amountUSDT == nil {
			return Result{Deal: d, Reason: "no_amount"}, apperr.New(apperr.KindValidation, "no amount supplied")
		}

		priorState := d.State
		rateF := d.QuotedRate
		if d.LockedRate != nil {
			rateF = *d.LockedRate
		}
		rate := decimal.NewFromFloat(rateF)

		var brl, usdt decimal.Decimal
		switch {
		case amountBRL != nil:
			brl = money.Truncate2(*amountBRL)
			usdt = money.BRLToUSDT(brl, rate)
		case amountUSDT != nil:
			usdt = money.Truncate2(*amountUSDT)
			brl = money.USDTToBRL(usdt, rate)
		}

		brlF, usdtF := brl.InexactFloat64(), usdt.InexactFloat64()
		d.AmountBRL = &brlF
		d.AmountUSDT = &usdtF

		if err := e.transition(ctx, d, models.DealStateComputing); err != nil {
			return Result{}, err
		}
		if err := e.transition(ctx, d, priorState); err != nil {
			return Result{}, err
		}
		return Result{Deal: d, Changed: true}, nil
	})
}

// Complete implements complete(dealId, reason): terminal, archives, frees
// the (group,client) slot.
func (e *Engine) Complete(ctx context.Context, groupID, clientID, dealID, reason string) (Result, error) {
	return e.finish(ctx, groupID, clientID, dealID, models.DealStateCompleted, EventCompleted, reason)
}

// Cancel implements cancel(dealId, reason): terminal, archives.
func (e *Engine) Cancel(ctx context.Context, groupID, clientID, dealID, reason string) (Result, error) {
	return e.finish(ctx, groupID, clientID, dealID, models.DealStateCancelled, EventCancelled, reason)
}

func (e *Engine) finish(ctx context.Context, groupID, clientID, dealID, toState string, evt EventType, reason string) (Result, error) {
	return e.withLock(ctx, groupID, clientID, func() (Result, error) {
		d, err := e.store.GetDeal(ctx, dealID)
		if err != nil {
			return Result{}, err
		}
		if models.IsTerminal(d.State) {
			// P2: terminal escape never happens; idempotent no-op.
			return Result{Deal: d, Reason: "already_terminal"}, nil
		}
		if err := e.transition(ctx, d, toState); err != nil {
			return Result{}, err
		}
		if err := e.store.ArchiveDeal(ctx, d.ToHistory(reason)); err != nil {
			return Result{}, err
		}
		e.emit(evt, d, reason)
		return Result{Deal: d, Changed: true}, nil
	})
}

// Extend implements extend(dealId, seconds), capped at MaxExtendPerCall
// and MaxCumulativeExtendX times the original TTL.
func (e *Engine) Extend(ctx context.Context, groupID, clientID, dealID string, seconds int) (Result, error) {
	return e.withLock(ctx, groupID, clientID, func() (Result, error) {
		d, err := e.store.GetDeal(ctx, dealID)
		if err != nil {
			return Result{}, err
		}
		if models.IsTerminal(d.State) {
			return Result{Deal: d, Reason: "already_terminal"}, nil
		}

		requested := time.Duration(seconds) * time.Second
		if requested > e.cfg.MaxExtendPerCall {
			requested = e.cfg.MaxExtendPerCall
		}

		originalTTL := e.cfg.DefaultTTL
		maxTotal := d.CreatedAt.Add(time.Duration(e.cfg.MaxCumulativeExtendX) * originalTTL)
		newExpiry := d.TTLExpiresAt.Add(requested)
		if newExpiry.After(maxTotal) {
			newExpiry = maxTotal
		}
		d.TTLExpiresAt = newExpiry
		d.UpdatedAt = time.Now().UTC()
		if err := e.store.UpdateDeal(ctx, d, d.State); err != nil {
			return Result{}, err
		}
		return Result{Deal: d, Changed: true}, nil
	})
}

// ForceSweep immediately expires dealID if its TTL has already elapsed,
// for the dashboard's manual "sweep now" action (§6.2). A deal that is
// already terminal or not yet past its TTL is left untouched and
// reported via Result.Reason rather than as an error.
func (e *Engine) ForceSweep(ctx context.Context, groupID, clientID, dealID string) (Result, error) {
	d, err := e.store.GetDeal(ctx, dealID)
	if err != nil {
		return Result{}, err
	}
	if models.IsTerminal(d.State) {
		return Result{Deal: d, Reason: "already_terminal"}, nil
	}
	if time.Now().UTC().Before(d.TTLExpiresAt) {
		return Result{Deal: d, Reason: "not_yet_expired"}, nil
	}
	return e.finish(ctx, groupID, clientID, dealID, models.DealStateExpired, EventExpired, "manual_sweep")
}

// Reprice implements reprice(dealId): quoted -> quoted with a refreshed
// rate, only valid while state=quoted. Escalates past maxReprices instead
// of repricing a 4th time (§4.6.4, P9).
func (e *Engine) Reprice(ctx context.Context, groupID, clientID, dealID string) (Result, error) {
	return e.withLock(ctx, groupID, clientID, func() (Result, error) {
		d, err := e.store.GetDeal(ctx, dealID)
		if err != nil {
			return Result{}, err
		}
		if d.State != models.DealStateQuoted {
			return Result{Deal: d, Reason: "not_repriceable"}, nil
		}

		cfg, err := e.groupConfigs(ctx, groupID)
		if err != nil {
			return Result{}, err
		}
		if !cfg.Volatility.Enabled {
			return Result{Deal: d, Reason: "volatility_disabled"}, nil
		}

		source, symbol, ok := pricing.Route(d.PricingSource)
		if !ok {
			return Result{Deal: d, Reason: "no_source_route"}, nil
		}
		priceVal, _, stale, ok := e.prices.GetPrice(source, symbol)
		if !ok || stale {
			return Result{Deal: d, Reason: "no_fresh_price"}, nil
		}

		base := decimal.NewFromFloat(d.BaseRate)
		current := decimal.NewFromFloat(priceVal)
		driftBps := money.DriftBps(base, current)
		threshold := decimal.NewFromInt(int64(cfg.Volatility.ThresholdBps))
		if driftBps.LessThan(threshold) {
			return Result{Deal: d, Reason: "within_threshold"}, nil
		}

		if d.RepriceCount >= cfg.Volatility.MaxReprices {
			if d.Metadata == nil {
				d.Metadata = map[string]interface{}{}
			}
			d.Metadata["await_operator"] = true
			d.UpdatedAt = time.Now().UTC()
			if err := e.store.UpdateDeal(ctx, d, d.State); err != nil {
				return Result{}, err
			}
			e.emit(EventEscalated, d, "reprice_cap_exceeded")
			e.metrics.Escalated(groupID)
			if e.notify != nil {
				_ = e.notify.NotifyOperator(ctx, groupID, fmt.Sprintf("deal %s escalated: reprice cap reached, awaiting operator", d.ID))
			}
			return Result{Deal: d, Reason: "escalated", Changed: true}, nil
		}

		sellSpread := decimal.NewFromFloat(d.SellSpread)
		buySpread := decimal.NewFromFloat(d.BuySpread)
		var newRate decimal.Decimal
		switch d.Side {
		case models.SideClientBuysUSDT:
			newRate = money.ClientBuyRate(current, d.SpreadMode, sellSpread)
		case models.SideClientSellsUSDT:
			newRate = money.ClientSellRate(current, d.SpreadMode, buySpread)
		default:
			newRate = current
		}

		d.BaseRate = priceVal
		d.QuotedRate = money.Truncate2(newRate).InexactFloat64()
		d.RepriceCount++
		d.UpdatedAt = time.Now().UTC()
		if err := e.store.UpdateDeal(ctx, d, d.State); err != nil {
			return Result{}, err
		}
		e.emit(EventRepriced, d, "")
		e.metrics.Repriced(groupID)
		if e.notify != nil {
			_ = e.notify.NotifyOperator(ctx, groupID, fmt.Sprintf("deal %s repriced: new rate %.2f", d.ID, d.QuotedRate))
		}
		return Result{Deal: d, Changed: true}, nil
	})
}

// Sweep implements sweep(): every non-terminal deal whose TTL has elapsed
// is transitioned to expired and archived (§4.6.5, P3). Idempotent and
// safe to call concurrently with the background sweeper.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	expired, err := e.store.SweepExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, d := range expired {
		if _, err := e.finish(ctx, d.GroupJID, d.ClientJID, d.ID, models.DealStateExpired, EventExpired, "ttl"); err != nil {
			utils.L().Warn("deal: sweep transition failed", utils.Deal(d.ID), utils.Err(err))
			continue
		}
		count++
	}
	e.metrics.SweepExpired(count)
	return count, nil
}

// Start launches the TTL sweeper and volatility reprice watch loops, and
// recovers in-flight deals from the store (§4.6, recovery: "reload
// non-terminal deals from the active store on boot and re-arm their
// sweep/reprice watchers" — both loops already scan the full active set
// on every tick, so recovery here is simply starting them; no separate
// one-shot reload is needed).
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(2)
	go e.sweepLoop(ctx)
	go e.repriceLoop(ctx)
}

// Stop signals both background loops to exit and waits for them.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

func (e *Engine) sweepLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			if _, err := e.Sweep(ctx); err != nil {
				utils.L().Warn("deal: sweep failed", utils.Err(err))
			}
		}
	}
}

func (e *Engine) repriceLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.RepriceCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.repriceActiveDeals(ctx)
		}
	}
}

func (e *Engine) repriceActiveDeals(ctx context.Context) {
	active, err := e.store.ActiveDeals(ctx)
	if err != nil {
		utils.L().Warn("deal: reprice scan failed", utils.Err(err))
		return
	}
	for _, d := range active {
		if d.State != models.DealStateQuoted {
			continue
		}
		if _, err := e.Reprice(ctx, d.GroupJID, d.ClientJID, d.ID); err != nil {
			utils.L().Warn("deal: reprice failed", utils.Deal(d.ID), utils.Err(err))
		}
	}
}
