// Package observability wires every package's Metrics interface to
// concrete Prometheus collectors. Grounded on the teacher's
// internal/bot/metrics.go: promauto-registered vectors under one
// namespace, a thin wrapper type per subsystem exposing the interface
// the consuming package already declares, and no direct prometheus
// import anywhere outside this package.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "otcbot"

// ============ Routing / dispatch ============

var (
	routingLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "latency_ms",
			Help:      "Time to route an inbound message to a destination, in milliseconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50},
		},
	)

	dispatchEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "enqueued_total",
			Help:      "Messages enqueued onto a per-group worker",
		},
		[]string{"group"},
	)

	dispatchDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "dropped_total",
			Help:      "Messages dropped on queue overflow",
		},
		[]string{"group"},
	)

	dispatchProcessed = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "processed_latency_ms",
			Help:      "Time to process a dequeued message, in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"group", "result"},
	)

	dispatchActiveGroups = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "active_groups",
			Help:      "Number of groups with a live worker goroutine",
		},
	)
)

// Dispatcher implements internal/dispatcher.Metrics.
type Dispatcher struct{}

func (Dispatcher) Enqueued(groupID string) { dispatchEnqueued.WithLabelValues(groupID).Inc() }
func (Dispatcher) Dropped(groupID string)  { dispatchDropped.WithLabelValues(groupID).Inc() }

func (Dispatcher) Processed(groupID string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	dispatchProcessed.WithLabelValues(groupID, result).Observe(float64(duration.Microseconds()) / 1000)
}

func (Dispatcher) ActiveGroups(n int) { dispatchActiveGroups.Set(float64(n)) }

// RecordRoutingLatency is called directly by internal/router's caller
// (router.Route itself takes no Metrics dependency — it's a pure
// function — so the dispatcher times the call around it instead).
func RecordRoutingLatency(latencyMs float64) {
	routingLatency.Observe(latencyMs)
}

// ============ Trigger matching ============

var (
	triggerMatchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "match_latency_ms",
			Help:      "Time spent evaluating a message against a group's trigger cache, in milliseconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50},
		},
	)

	triggerBudgetExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "budget_exceeded_total",
			Help:      "Matches that exceeded the per-match time budget and were abandoned",
		},
		[]string{"group"},
	)

	triggerCacheRefreshed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "cache_refreshed_total",
			Help:      "Trigger cache refreshes by group",
		},
		[]string{"group"},
	)

	triggerCacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "cache_size",
			Help:      "Number of triggers in a group's cached snapshot after the last refresh",
		},
		[]string{"group"},
	)
)

// Trigger implements internal/trigger.Metrics.
type Trigger struct{}

func (Trigger) BudgetExceeded(groupID string) {
	triggerBudgetExceeded.WithLabelValues(groupID).Inc()
}

func (Trigger) CacheRefreshed(groupID string, count int) {
	triggerCacheRefreshed.WithLabelValues(groupID).Inc()
	triggerCacheSize.WithLabelValues(groupID).Set(float64(count))
}

// RecordMatchLatency observes one trigger-match latency in milliseconds.
// Nothing in the module calls it; the pipeline times routing only.
func RecordMatchLatency(latencyMs float64) {
	triggerMatchLatency.Observe(latencyMs)
}

// ============ Rule resolution ============

var ruleCacheRefreshed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rule",
		Name:      "cache_refreshed_total",
		Help:      "Group pricing-policy cache refreshes",
	},
	[]string{"group"},
)

// Rule implements internal/rule.Metrics.
type Rule struct{}

func (Rule) CacheRefreshed(groupID string) { ruleCacheRefreshed.WithLabelValues(groupID).Inc() }

// ============ Price feeds ============

var (
	priceSampleAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "sample_accepted_total",
			Help:      "Price samples accepted by the sanity filter",
		},
		[]string{"source", "symbol"},
	)

	priceSampleRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "sample_rejected_total",
			Help:      "Price samples rejected by the sanity filter",
		},
		[]string{"source", "symbol", "reason"},
	)

	priceSinkDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "sink_dropped_total",
			Help:      "Accepted samples dropped because the bronze sink buffer was full",
		},
		[]string{"source", "symbol"},
	)

	priceStaleness = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "staleness_ms",
			Help:      "Age of the last accepted sample for a source, in milliseconds",
		},
		[]string{"source"},
	)
)

// Price implements internal/price.Metrics.
type Price struct{}

func (Price) SampleAccepted(source, symbol string) {
	priceSampleAccepted.WithLabelValues(source, symbol).Inc()
}

func (Price) SampleRejected(source, symbol, reason string) {
	priceSampleRejected.WithLabelValues(source, symbol, reason).Inc()
}

func (Price) SinkDropped(source, symbol string) {
	priceSinkDropped.WithLabelValues(source, symbol).Inc()
}

// RecordStaleness sets the staleness gauge of source to ageMs. Nothing in
// the module calls it: neither cmd/otcbot nor the aggregator polls or
// pushes staleness.
func RecordStaleness(source string, ageMs float64) {
	priceStaleness.WithLabelValues(source).Set(ageMs)
}

// ============ Deal lifecycle ============

var (
	dealTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deal",
			Name:      "transitions_total",
			Help:      "Deal state transitions",
		},
		[]string{"from", "to"},
	)

	dealRepriced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deal",
			Name:      "repriced_total",
			Help:      "Deals repriced due to volatility drift",
		},
		[]string{"group"},
	)

	dealEscalated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deal",
			Name:      "escalated_total",
			Help:      "Deals escalated to await_operator after exhausting their reprice budget",
		},
		[]string{"group"},
	)

	dealSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deal",
			Name:      "swept_total",
			Help:      "Deals force-expired by the sweep loop",
		},
	)
)

// Deal implements internal/deal.Metrics.
type Deal struct{}

func (Deal) Transition(from, to string) { dealTransitions.WithLabelValues(from, to).Inc() }
func (Deal) Repriced(groupID string)    { dealRepriced.WithLabelValues(groupID).Inc() }
func (Deal) Escalated(groupID string)   { dealEscalated.WithLabelValues(groupID).Inc() }
func (Deal) SweepExpired(count int)     { dealSwept.Add(float64(count)) }

// ============ Auto-pause ============

var autopauseTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "errsvc",
		Name:      "autopause_total",
		Help:      "Automatic pauses triggered, by originating source",
	},
	[]string{"reason"},
)

// RecordAutoPause is called by internal/errsvc directly (that package
// predates this one and has no Metrics interface of its own — wiring a
// full interface there for a single counter would be more machinery
// than the one call site needs).
func RecordAutoPause(reason string) {
	autopauseTotal.WithLabelValues(reason).Inc()
}
