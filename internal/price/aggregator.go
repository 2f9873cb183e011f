// Package price implements the latest-price aggregator of §4.5: a
// sharded, lock-free read store of the newest sample per (source,
// symbol), a plausibility-band sanity filter, and a fire-and-forget
// feed to the bronze sink. The sharded store is grounded on the
// teacher's PriceTracker/pairsBySymbol sync.Map shape in
// internal/bot/engine.go, keyed here by source+symbol instead of
// exchange+symbol.
package price

import (
	"fmt"
	"sync"
	"time"

	"otcbot/internal/models"
	"otcbot/pkg/utils"
)

// Band is a plausibility range a sample's price must fall inside to be
// accepted (§4.5's sanity filter).
type Band struct {
	Min float64
	Max float64
}

func (b Band) contains(price float64) bool {
	return price >= b.Min && price <= b.Max
}

// Metrics receives aggregator events for observability wiring; nil is
// replaced with a no-op implementation.
type Metrics interface {
	SampleAccepted(source, symbol string)
	SampleRejected(source, symbol, reason string)
	SinkDropped(source, symbol string)
}

type noopMetrics struct{}

func (noopMetrics) SampleAccepted(string, string)         {}
func (noopMetrics) SampleRejected(string, string, string) {}
func (noopMetrics) SinkDropped(string, string)            {}

// Config controls staleness thresholds and sanity bands.
type Config struct {
	// StaleThreshold is how old a sample may be before GetPrice reports
	// it as stale (§4.5's "absent" vs "stale" distinction).
	StaleThreshold time.Duration
	// Bands maps symbol -> plausibility range. A symbol absent from the
	// map is never rejected on sanity grounds.
	Bands map[string]Band
	// SinkBufferSize bounds the fire-and-forget bronze sink channel.
	SinkBufferSize int
}

func DefaultConfig() Config {
	return Config{
		StaleThreshold: 120 * time.Second,
		Bands: map[string]Band{
			models.SymbolUSDBRL:  {Min: 3, Max: 10},
			models.SymbolUSDTBRL: {Min: 3, Max: 10},
		},
		SinkBufferSize: 1000,
	}
}

type entry struct {
	sample models.PriceSample
}

// Aggregator holds the latest accepted sample per (source, symbol) and
// fans every accepted sample out to the bronze sink, never blocking a
// caller of RecordSample on a slow sink consumer.
type Aggregator struct {
	cfg     Config
	metrics Metrics

	latest sync.Map // key "source|symbol" -> *entry

	sink chan models.PriceSample
}

// New creates an Aggregator. Callers must drain Sink() or samples will
// eventually be dropped under backpressure (counted via Metrics).
func New(cfg Config, metrics Metrics) *Aggregator {
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 120 * time.Second
	}
	if cfg.SinkBufferSize <= 0 {
		cfg.SinkBufferSize = 1000
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Aggregator{
		cfg:     cfg,
		metrics: metrics,
		sink:    make(chan models.PriceSample, cfg.SinkBufferSize),
	}
}

func key(source, symbol string) string { return source + "|" + symbol }

// RecordSample applies the sanity filter and, if accepted, swaps in
// the new latest sample and fire-and-forget pushes it to the bronze
// sink. Rejected samples are counted and never overwrite the existing
// latest value.
func (a *Aggregator) RecordSample(sample models.PriceSample) error {
	if band, ok := a.cfg.Bands[sample.Symbol]; ok && !band.contains(sample.Price) {
		a.metrics.SampleRejected(sample.Source, sample.Symbol, "out_of_band")
		return fmt.Errorf("price: sample %s/%s=%.4f outside plausibility band [%.2f,%.2f]",
			sample.Source, sample.Symbol, sample.Price, band.Min, band.Max)
	}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = time.Now().UTC()
	}

	a.latest.Store(key(sample.Source, sample.Symbol), &entry{sample: sample})
	a.metrics.SampleAccepted(sample.Source, sample.Symbol)

	a.pushToSink(sample)
	return nil
}

// pushToSink never blocks: a full sink buffer drops its oldest sample to
// make room for the new one and increments a counter rather than
// stalling the reader that called RecordSample (§4.5: "emissions are
// fire-and-forget and must never block readers").
func (a *Aggregator) pushToSink(sample models.PriceSample) {
	select {
	case a.sink <- sample:
		return
	default:
	}
	select {
	case old := <-a.sink:
		a.metrics.SinkDropped(old.Source, old.Symbol)
		utils.L().Warn("price: bronze sink full, dropping oldest sample",
			utils.Source(old.Source),
			utils.Symbol(old.Symbol),
		)
	default:
	}
	select {
	case a.sink <- sample:
	default:
		a.metrics.SinkDropped(sample.Source, sample.Symbol)
	}
}

// Sink returns the channel bronze-sink writers should drain.
func (a *Aggregator) Sink() <-chan models.PriceSample {
	return a.sink
}

// GetPrice implements §4.5's accessor contract: the latest price for
// (source, symbol), its age, and whether that age exceeds
// StaleThreshold. ok is false only when no sample was ever recorded.
func (a *Aggregator) GetPrice(source, symbol string) (priceVal float64, age time.Duration, stale bool, ok bool) {
	v, found := a.latest.Load(key(source, symbol))
	if !found {
		return 0, 0, false, false
	}
	e := v.(*entry)
	age = time.Since(e.sample.CapturedAt)
	return e.sample.Price, age, age > a.cfg.StaleThreshold, true
}

// Latest returns the full latest sample for (source, symbol), or false
// if none has ever been recorded.
func (a *Aggregator) Latest(source, symbol string) (models.PriceSample, bool) {
	v, found := a.latest.Load(key(source, symbol))
	if !found {
		return models.PriceSample{}, false
	}
	return v.(*entry).sample, true
}
