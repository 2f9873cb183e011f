package deal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"otcbot/internal/apperr"
	"otcbot/internal/models"
	"otcbot/internal/pricing"
)

type fakeStore struct {
	mu       sync.Mutex
	deals    map[string]*models.Deal // by ID
	active   map[string]string       // "group|client" -> dealID
	archived []*models.DealHistory
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{deals: map[string]*models.Deal{}, active: map[string]string{}}
}

func activeKey(groupID, clientID string) string { return groupID + "|" + clientID }

func (s *fakeStore) ActiveDeal(ctx context.Context, groupID, clientID string) (*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[activeKey(groupID, clientID)]
	if !ok {
		return nil, nil
	}
	d := s.deals[id]
	cp := *d
	return &cp, nil
}

func (s *fakeStore) GetDeal(ctx context.Context, dealID string) (*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[dealID]
	if !ok {
		return nil, apperr.ErrDealNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *fakeStore) CreateDeal(ctx context.Context, d *models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := activeKey(d.GroupJID, d.ClientJID)
	if _, ok := s.active[key]; ok {
		return apperr.ErrDealConflict
	}
	s.nextID++
	d.ID = string(rune('a' + s.nextID))
	cp := *d
	s.deals[d.ID] = &cp
	s.active[key] = d.ID
	return nil
}

func (s *fakeStore) UpdateDeal(ctx context.Context, d *models.Deal, expectedState string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.deals[d.ID]
	if !ok {
		return apperr.ErrDealNotFound
	}
	if cur.State != expectedState {
		return apperr.ErrDealConflict
	}
	cp := *d
	s.deals[d.ID] = &cp
	return nil
}

func (s *fakeStore) ArchiveDeal(ctx context.Context, h *models.DealHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archived = append(s.archived, h)
	delete(s.active, activeKey(h.GroupJID, h.ClientJID))
	return nil
}

func (s *fakeStore) SweepExpired(ctx context.Context, now time.Time) ([]*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Deal
	for _, d := range s.deals {
		if models.IsNonTerminal(d.State) && !d.TTLExpiresAt.After(now) {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) ActiveDeals(ctx context.Context) ([]*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Deal
	for _, id := range s.active {
		cp := *s.deals[id]
		out = append(out, &cp)
	}
	return out, nil
}

type fakeQuotes struct {
	quote *pricing.Quote
	err   error
}

func (f *fakeQuotes) Quote(ctx context.Context, groupID, side string, now time.Time) (*pricing.Quote, error) {
	return f.quote, f.err
}

type fakePrices struct {
	mu    sync.Mutex
	price float64
	stale bool
	ok    bool
}

func (f *fakePrices) GetPrice(source, symbol string) (float64, time.Duration, bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price, time.Second, f.stale, f.ok
}

func (f *fakePrices) set(price float64) {
	f.mu.Lock()
	f.price, f.ok = price, true
	f.mu.Unlock()
}

type fakeSink struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakeSink) Emit(e Event) {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.mu.Unlock()
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) NotifyOperator(ctx context.Context, groupID, message string) error {
	f.mu.Lock()
	f.messages = append(f.messages, message)
	f.mu.Unlock()
	return nil
}

func baseGroupConfig() func(ctx context.Context, groupID string) (*models.GroupConfig, error) {
	cfg := models.DefaultGroupConfig("g1")
	return func(ctx context.Context, groupID string) (*models.GroupConfig, error) {
		return cfg, nil
	}
}

func newTestEngine(quotes *fakeQuotes, prices *fakePrices, store *fakeStore, sink *fakeSink, notify *fakeNotifier) *Engine {
	cfg := DefaultConfig()
	cfg.SweepInterval = time.Hour
	cfg.RepriceCheckInterval = time.Hour
	return New(store, sink, notify, quotes, prices, nil, cfg, baseGroupConfig())
}

func sampleQuote() *pricing.Quote {
	return &pricing.Quote{
		PricingSource: models.PricingSourceBinance,
		SpreadMode:    models.SpreadModeBps,
		Mid:           decimal.NewFromFloat(5.30),
		Rate:          decimal.NewFromFloat(5.32),
		Side:          models.SideClientBuysUSDT,
		Currency:      models.CurrencyBRL,
	}
}

func TestQuote_CreatesNewDeal(t *testing.T) {
	store := newFakeStore()
	sink := &fakeSink{}
	e := newTestEngine(&fakeQuotes{quote: sampleQuote()}, &fakePrices{}, store, sink, nil)

	res, err := e.Quote(context.Background(), "g1", "c1", "", nil)
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if res.Deal.State != models.DealStateQuoted {
		t.Errorf("State = %q, want quoted", res.Deal.State)
	}
	if len(sink.events) != 1 || sink.events[0].Type != EventCreated {
		t.Errorf("sink events = %+v, want one created event", sink.events)
	}
}

func TestQuote_SecondQuoteConflicts(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(&fakeQuotes{quote: sampleQuote()}, &fakePrices{}, store, &fakeSink{}, nil)

	first, err := e.Quote(context.Background(), "g1", "c1", "", nil)
	if err != nil {
		t.Fatalf("first Quote() error = %v", err)
	}

	second, err := e.Quote(context.Background(), "g1", "c1", "", nil)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("second Quote() error = %v, want conflict", err)
	}
	if second.Deal.ID != first.Deal.ID {
		t.Errorf("conflict result should return the existing deal unchanged")
	}
}

func TestQuote_StalePriceRejected(t *testing.T) {
	store := newFakeStore()
	q := sampleQuote()
	q.Stale = true
	e := newTestEngine(&fakeQuotes{quote: q}, &fakePrices{}, store, &fakeSink{}, nil)

	_, err := e.Quote(context.Background(), "g1", "c1", "", nil)
	if err == nil {
		t.Error("Quote() error = nil, want error for a stale price")
	}
}

func TestLock_QuotedToLocked(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(&fakeQuotes{quote: sampleQuote()}, &fakePrices{}, store, &fakeSink{}, nil)
	created, _ := e.Quote(context.Background(), "g1", "c1", "", nil)

	res, err := e.Lock(context.Background(), "g1", "c1", created.Deal.ID)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if res.Deal.State != models.DealStateLocked {
		t.Errorf("State = %q, want locked", res.Deal.State)
	}
	if res.Deal.LockedRate == nil {
		t.Error("LockedRate should be set")
	}
}

func TestLock_ExpiredDealRejected(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(&fakeQuotes{quote: sampleQuote()}, &fakePrices{}, store, &fakeSink{}, nil)
	created, _ := e.Quote(context.Background(), "g1", "c1", "", nil)

	d, _ := store.GetDeal(context.Background(), created.Deal.ID)
	d.TTLExpiresAt = time.Now().Add(-time.Minute)
	store.UpdateDeal(context.Background(), d, d.State)

	_, err := e.Lock(context.Background(), "g1", "c1", created.Deal.ID)
	if err == nil {
		t.Error("Lock() error = nil, want error for an expired deal")
	}
}

func TestLock_TerminalDealIsIdempotentNoOp(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(&fakeQuotes{quote: sampleQuote()}, &fakePrices{}, store, &fakeSink{}, nil)
	created, _ := e.Quote(context.Background(), "g1", "c1", "", nil)
	e.Cancel(context.Background(), "g1", "c1", created.Deal.ID, "test")

	res, err := e.Lock(context.Background(), "g1", "c1", created.Deal.ID)
	if err != nil {
		t.Fatalf("Lock() on terminal deal error = %v, want no-op", err)
	}
	if res.Reason != "already_terminal" {
		t.Errorf("Reason = %q, want already_terminal", res.Reason)
	}
}

func TestApplyAmount_FillsFromLockedRate(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(&fakeQuotes{quote: sampleQuote()}, &fakePrices{}, store, &fakeSink{}, nil)
	created, _ := e.Quote(context.Background(), "g1", "c1", "", nil)
	e.Lock(context.Background(), "g1", "c1", created.Deal.ID)

	amount := decimal.NewFromInt(1000)
	res, err := e.ApplyAmount(context.Background(), "g1", "c1", created.Deal.ID, &amount, nil)
	if err != nil {
		t.Fatalf("ApplyAmount() error = %v", err)
	}
	if res.Deal.AmountUSDT == nil {
		t.Fatal("AmountUSDT should be filled")
	}
	if res.Deal.State != models.DealStateLocked {
		t.Errorf("State = %q, want locked (restored after computing)", res.Deal.State)
	}
}

func TestCancel_ArchivesAndFreesSlot(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(&fakeQuotes{quote: sampleQuote()}, &fakePrices{}, store, &fakeSink{}, nil)
	created, _ := e.Quote(context.Background(), "g1", "c1", "", nil)

	res, err := e.Cancel(context.Background(), "g1", "c1", created.Deal.ID, "client_cancelled")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if res.Deal.State != models.DealStateCancelled {
		t.Errorf("State = %q, want cancelled", res.Deal.State)
	}
	if len(store.archived) != 1 {
		t.Fatalf("archived = %d, want 1", len(store.archived))
	}

	again, err := e.Quote(context.Background(), "g1", "c1", "", nil)
	if err != nil {
		t.Fatalf("Quote() after cancel error = %v, slot should be freed", err)
	}
	if again.Deal.ID == created.Deal.ID {
		t.Error("new deal should get a fresh ID")
	}
}

func TestSweep_ExpiresOverdueDeals(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(&fakeQuotes{quote: sampleQuote()}, &fakePrices{}, store, &fakeSink{}, nil)
	created, _ := e.Quote(context.Background(), "g1", "c1", "", nil)

	d, _ := store.GetDeal(context.Background(), created.Deal.ID)
	d.TTLExpiresAt = time.Now().Add(-time.Second)
	store.UpdateDeal(context.Background(), d, d.State)

	count, err := e.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Sweep() count = %d, want 1", count)
	}
	final, _ := store.GetDeal(context.Background(), created.Deal.ID)
	if final.State != models.DealStateExpired {
		t.Errorf("State = %q, want expired", final.State)
	}
}

func TestSweep_IsIdempotent(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(&fakeQuotes{quote: sampleQuote()}, &fakePrices{}, store, &fakeSink{}, nil)
	created, _ := e.Quote(context.Background(), "g1", "c1", "", nil)
	d, _ := store.GetDeal(context.Background(), created.Deal.ID)
	d.TTLExpiresAt = time.Now().Add(-time.Second)
	store.UpdateDeal(context.Background(), d, d.State)

	e.Sweep(context.Background())
	count, err := e.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second Sweep() error = %v", err)
	}
	if count != 0 {
		t.Errorf("second Sweep() count = %d, want 0 (already expired)", count)
	}
}

func TestReprice_BelowThresholdDoesNothing(t *testing.T) {
	store := newFakeStore()
	prices := &fakePrices{}
	prices.set(5.30)
	e := newTestEngine(&fakeQuotes{quote: sampleQuote()}, prices, store, &fakeSink{}, nil)
	created, _ := e.Quote(context.Background(), "g1", "c1", "", nil)

	prices.set(5.305) // well under 30bps drift
	res, err := e.Reprice(context.Background(), "g1", "c1", created.Deal.ID)
	if err != nil {
		t.Fatalf("Reprice() error = %v", err)
	}
	if res.Reason != "within_threshold" {
		t.Errorf("Reason = %q, want within_threshold", res.Reason)
	}
}

func TestReprice_AboveThresholdRefreshesRate(t *testing.T) {
	store := newFakeStore()
	prices := &fakePrices{}
	prices.set(5.30)
	sink := &fakeSink{}
	e := newTestEngine(&fakeQuotes{quote: sampleQuote()}, prices, store, sink, nil)
	created, _ := e.Quote(context.Background(), "g1", "c1", "", nil)

	prices.set(5.50) // ~377bps drift, over default 30bps threshold
	res, err := e.Reprice(context.Background(), "g1", "c1", created.Deal.ID)
	if err != nil {
		t.Fatalf("Reprice() error = %v", err)
	}
	if res.Deal.RepriceCount != 1 {
		t.Errorf("RepriceCount = %d, want 1", res.Deal.RepriceCount)
	}
	if res.Deal.BaseRate != 5.50 {
		t.Errorf("BaseRate = %v, want 5.50", res.Deal.BaseRate)
	}
}

func TestReprice_EscalatesAfterMaxReprices(t *testing.T) {
	store := newFakeStore()
	prices := &fakePrices{}
	prices.set(5.30)
	sink := &fakeSink{}
	notify := &fakeNotifier{}
	e := newTestEngine(&fakeQuotes{quote: sampleQuote()}, prices, store, sink, notify)
	created, _ := e.Quote(context.Background(), "g1", "c1", "", nil)

	mid := 5.30
	for i := 0; i < 3; i++ {
		mid += 1.0
		prices.set(mid)
		if _, err := e.Reprice(context.Background(), "g1", "c1", created.Deal.ID); err != nil {
			t.Fatalf("Reprice() #%d error = %v", i, err)
		}
	}

	prices.set(mid + 1.0)
	res, err := e.Reprice(context.Background(), "g1", "c1", created.Deal.ID)
	if err != nil {
		t.Fatalf("Reprice() escalation error = %v", err)
	}
	if res.Reason != "escalated" {
		t.Errorf("Reason = %q, want escalated", res.Reason)
	}
	if !res.Deal.AwaitingOperator() {
		t.Error("AwaitingOperator() should be true after escalation")
	}
	// three "repriced" notices plus one escalation notice
	if len(notify.messages) != 4 {
		t.Errorf("notify messages = %d, want 4", len(notify.messages))
	}
}

func TestReprice_LockedDealNeverRepriced(t *testing.T) {
	store := newFakeStore()
	prices := &fakePrices{}
	prices.set(5.30)
	e := newTestEngine(&fakeQuotes{quote: sampleQuote()}, prices, store, &fakeSink{}, nil)
	created, _ := e.Quote(context.Background(), "g1", "c1", "", nil)
	e.Lock(context.Background(), "g1", "c1", created.Deal.ID)

	prices.set(6.00)
	res, err := e.Reprice(context.Background(), "g1", "c1", created.Deal.ID)
	if err != nil {
		t.Fatalf("Reprice() error = %v", err)
	}
	if res.Reason != "not_repriceable" {
		t.Errorf("Reason = %q, want not_repriceable", res.Reason)
	}
	if res.Deal.RepriceCount != 0 {
		t.Error("locked deal must never be repriced")
	}
}

func TestExtend_CapsAtMaxCumulative(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(&fakeQuotes{quote: sampleQuote()}, &fakePrices{}, store, &fakeSink{}, nil)
	e.cfg.DefaultTTL = 100 * time.Second
	e.cfg.MaxCumulativeExtendX = 2
	e.cfg.MaxExtendPerCall = 10000 * time.Second
	created, _ := e.Quote(context.Background(), "g1", "c1", "", nil)

	res, err := e.Extend(context.Background(), "g1", "c1", created.Deal.ID, 100000)
	if err != nil {
		t.Fatalf("Extend() error = %v", err)
	}
	maxAllowed := created.Deal.CreatedAt.Add(2 * 100 * time.Second)
	if res.Deal.TTLExpiresAt.After(maxAllowed.Add(time.Second)) {
		t.Errorf("TTLExpiresAt = %v, should be capped near %v", res.Deal.TTLExpiresAt, maxAllowed)
	}
}

func TestComplete_IsIdempotentOnAlreadyTerminal(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(&fakeQuotes{quote: sampleQuote()}, &fakePrices{}, store, &fakeSink{}, nil)
	created, _ := e.Quote(context.Background(), "g1", "c1", "", nil)
	e.Complete(context.Background(), "g1", "c1", created.Deal.ID, "settled")

	res, err := e.Complete(context.Background(), "g1", "c1", created.Deal.ID, "settled_again")
	if err != nil {
		t.Fatalf("second Complete() error = %v, want idempotent no-op", err)
	}
	if res.Reason != "already_terminal" {
		t.Errorf("Reason = %q, want already_terminal", res.Reason)
	}
}

// TestWithLock_TimeoutDoesNotPoisonStripe guards against the stripe lock
// leaking when an attempt times out: a losing wait must never leave the
// stripe permanently held, or every future Quote/Lock/... on the same
// (groupId, clientId) pair would block forever.
func TestWithLock_TimeoutDoesNotPoisonStripe(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(&fakeQuotes{quote: sampleQuote()}, &fakePrices{}, store, &fakeSink{}, nil)
	e.cfg.LockTimeout = 20 * time.Millisecond

	stripe := e.lockFor("g1", "c1")
	<-stripe // hold the stripe ourselves, simulating a slow concurrent operation

	_, err := e.withLock(context.Background(), "g1", "c1", func() (Result, error) {
		t.Fatal("fn must not run while the stripe is held elsewhere")
		return Result{}, nil
	})
	if err != apperr.ErrLockTimeout {
		t.Fatalf("withLock() error = %v, want ErrLockTimeout", err)
	}

	stripe <- struct{}{} // release, as the original holder eventually would

	done := make(chan error, 1)
	go func() {
		_, err := e.withLock(context.Background(), "g1", "c1", func() (Result, error) {
			return Result{}, nil
		})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("withLock() after release error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("withLock deadlocked on the stripe after a prior timeout")
	}
}

// TestWithLock_ContextCancelDoesNotPoisonStripe mirrors the timeout case
// for ctx.Done() firing before the stripe is free.
func TestWithLock_ContextCancelDoesNotPoisonStripe(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(&fakeQuotes{quote: sampleQuote()}, &fakePrices{}, store, &fakeSink{}, nil)
	e.cfg.LockTimeout = time.Minute

	stripe := e.lockFor("g1", "c1")
	<-stripe

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.withLock(ctx, "g1", "c1", func() (Result, error) {
		t.Fatal("fn must not run while the stripe is held elsewhere")
		return Result{}, nil
	})
	if err != context.Canceled {
		t.Fatalf("withLock() error = %v, want context.Canceled", err)
	}

	stripe <- struct{}{}

	done := make(chan error, 1)
	go func() {
		_, err := e.withLock(context.Background(), "g1", "c1", func() (Result, error) {
			return Result{}, nil
		})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("withLock() after release error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("withLock deadlocked on the stripe after a prior cancellation")
	}
}
