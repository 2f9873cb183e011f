// Package dispatcher serializes message processing per group while
// allowing parallelism across groups (§4.1). Each group gets its own
// lazily-created FIFO worker; a global semaphore bounds how many
// group-handlers run concurrently, generalizing the teacher's
// Engine.priceEventWorker per-shard pool (fixed N shards, M workers
// each) to one worker per group with a cap on simultaneous execution
// instead of a cap on shard count.
package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"otcbot/internal/transport"
	"otcbot/pkg/utils"
)

// Handler drives one inbound message through the full pipeline
// (router → trigger matcher → deal engine | control handler | observe).
// A returned error is logged; it never triggers an automatic retry.
type Handler func(ctx context.Context, msg transport.InboundMessage) error

// Metrics receives dispatcher events for observability wiring. Callers
// that don't need metrics can leave it nil; the dispatcher falls back
// to a no-op implementation.
type Metrics interface {
	Enqueued(groupID string)
	Dropped(groupID string)
	Processed(groupID string, duration time.Duration, err error)
	ActiveGroups(n int)
}

type noopMetrics struct{}

func (noopMetrics) Enqueued(string)                        {}
func (noopMetrics) Dropped(string)                          {}
func (noopMetrics) Processed(string, time.Duration, error) {}
func (noopMetrics) ActiveGroups(int)                        {}

// Config controls the dispatcher's concurrency and backpressure limits.
type Config struct {
	MaxConcurrentGroups int
	QueueDepthPerGroup  int
	WorkerIdleTimeout   time.Duration
	HandlerTimeout      time.Duration
}

// Dispatcher owns one FIFO queue + worker goroutine per group.
type Dispatcher struct {
	handler Handler
	metrics Metrics
	cfg     Config

	sem    chan struct{}
	groups sync.Map // groupID -> *groupWorker

	activeCount int64

	closed chan struct{}
	wg     sync.WaitGroup
}

type groupWorker struct {
	groupID string
	queue   chan transport.InboundMessage
}

// New creates a Dispatcher. handler must be non-nil; it is invoked at
// most once at a time per group, but up to cfg.MaxConcurrentGroups
// handlers may run concurrently across different groups.
func New(cfg Config, handler Handler, metrics Metrics) *Dispatcher {
	if cfg.MaxConcurrentGroups <= 0 {
		cfg.MaxConcurrentGroups = 500
	}
	if cfg.QueueDepthPerGroup <= 0 {
		cfg.QueueDepthPerGroup = 100
	}
	if cfg.WorkerIdleTimeout <= 0 {
		cfg.WorkerIdleTimeout = 5 * time.Minute
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 10 * time.Second
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Dispatcher{
		handler: handler,
		metrics: metrics,
		cfg:     cfg,
		sem:     make(chan struct{}, cfg.MaxConcurrentGroups),
		closed:  make(chan struct{}),
	}
}

// Submit enqueues msg onto its group's FIFO and returns immediately. If
// the group's queue is full, the oldest queued message is dropped and
// counted to make room (§4.1 overflow policy).
func (d *Dispatcher) Submit(msg transport.InboundMessage) {
	w := d.getOrCreateWorker(msg.GroupID)

	select {
	case w.queue <- msg:
		d.metrics.Enqueued(msg.GroupID)
		return
	default:
	}

	select {
	case <-w.queue:
		d.metrics.Dropped(msg.GroupID)
	default:
	}

	select {
	case w.queue <- msg:
		d.metrics.Enqueued(msg.GroupID)
	default:
		d.metrics.Dropped(msg.GroupID)
	}
}

func (d *Dispatcher) getOrCreateWorker(groupID string) *groupWorker {
	if v, ok := d.groups.Load(groupID); ok {
		return v.(*groupWorker)
	}

	w := &groupWorker{
		groupID: groupID,
		queue:   make(chan transport.InboundMessage, d.cfg.QueueDepthPerGroup),
	}

	actual, loaded := d.groups.LoadOrStore(groupID, w)
	if loaded {
		return actual.(*groupWorker)
	}

	d.wg.Add(1)
	n := atomic.AddInt64(&d.activeCount, 1)
	d.metrics.ActiveGroups(int(n))
	go d.runWorker(w)

	return w
}

func (d *Dispatcher) runWorker(w *groupWorker) {
	defer d.wg.Done()

	idle := time.NewTimer(d.cfg.WorkerIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case msg := <-w.queue:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			d.process(w.groupID, msg)
			idle.Reset(d.cfg.WorkerIdleTimeout)

		case <-idle.C:
			// One last non-blocking check before giving up the worker:
			// a Submit racing with this timer could have just enqueued.
			select {
			case msg := <-w.queue:
				d.process(w.groupID, msg)
				idle.Reset(d.cfg.WorkerIdleTimeout)
				continue
			default:
			}
			d.groups.Delete(w.groupID)
			n := atomic.AddInt64(&d.activeCount, -1)
			d.metrics.ActiveGroups(int(n))
			return

		case <-d.closed:
			return
		}
	}
}

func (d *Dispatcher) process(groupID string, msg transport.InboundMessage) {
	select {
	case d.sem <- struct{}{}:
	case <-d.closed:
		return
	}
	defer func() { <-d.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.HandlerTimeout)
	defer cancel()

	start := time.Now()
	err := d.runHandlerSafely(ctx, msg)
	d.metrics.Processed(groupID, time.Since(start), err)

	if err != nil {
		utils.L().Error("dispatcher: handler returned error",
			utils.Group(groupID),
			utils.String("messageId", msg.MessageID),
			utils.Err(err),
		)
	}
}

// runHandlerSafely recovers a panicking handler so one bad message never
// kills the group's worker goroutine (§4.1 failure semantics).
func (d *Dispatcher) runHandlerSafely(ctx context.Context, msg transport.InboundMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			utils.L().Error("dispatcher: handler panicked",
				utils.Group(msg.GroupID),
				utils.String("messageId", msg.MessageID),
				utils.Any("panic", r),
			)
		}
	}()
	return d.handler(ctx, msg)
}

// ActiveGroups returns the number of currently live group workers.
func (d *Dispatcher) ActiveGroups() int {
	return int(atomic.LoadInt64(&d.activeCount))
}

// Close stops accepting new work and waits for in-flight handlers to
// finish processing their current message.
func (d *Dispatcher) Close() {
	close(d.closed)
	d.wg.Wait()
}
