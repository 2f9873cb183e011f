package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"otcbot/internal/transport"
)

func TestSubmit_ProcessesInOrderPerGroup(t *testing.T) {
	var mu sync.Mutex
	var order []string

	d := New(Config{
		MaxConcurrentGroups: 4,
		QueueDepthPerGroup:  10,
		WorkerIdleTimeout:   time.Second,
		HandlerTimeout:      time.Second,
	}, func(ctx context.Context, msg transport.InboundMessage) error {
		mu.Lock()
		order = append(order, msg.MessageID)
		mu.Unlock()
		return nil
	}, nil)
	defer d.Close()

	for i := 0; i < 5; i++ {
		d.Submit(transport.InboundMessage{GroupID: "g1", MessageID: string(rune('a' + i))})
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	})

	mu.Lock()
	defer mu.Unlock()
	want := "abcde"
	for i, id := range order {
		if id != string(want[i]) {
			t.Errorf("order[%d] = %q, want %q", i, id, string(want[i]))
		}
	}
}

func TestSubmit_ParallelAcrossGroups(t *testing.T) {
	var processed int64

	d := New(Config{
		MaxConcurrentGroups: 4,
		QueueDepthPerGroup:  10,
		WorkerIdleTimeout:   time.Second,
		HandlerTimeout:      time.Second,
	}, func(ctx context.Context, msg transport.InboundMessage) error {
		atomic.AddInt64(&processed, 1)
		return nil
	}, nil)
	defer d.Close()

	for i := 0; i < 3; i++ {
		d.Submit(transport.InboundMessage{GroupID: "g" + string(rune('1'+i)), MessageID: "m"})
	}

	waitFor(t, func() bool { return atomic.LoadInt64(&processed) == 3 })
}

func TestSubmit_RecoversFromPanic(t *testing.T) {
	var calls int64

	d := New(Config{
		MaxConcurrentGroups: 1,
		QueueDepthPerGroup:  10,
		WorkerIdleTimeout:   time.Second,
		HandlerTimeout:      time.Second,
	}, func(ctx context.Context, msg transport.InboundMessage) error {
		n := atomic.AddInt64(&calls, 1)
		if n == 1 {
			panic("boom")
		}
		return nil
	}, nil)
	defer d.Close()

	d.Submit(transport.InboundMessage{GroupID: "g1", MessageID: "1"})
	d.Submit(transport.InboundMessage{GroupID: "g1", MessageID: "2"})

	waitFor(t, func() bool { return atomic.LoadInt64(&calls) == 2 })
}

func TestSubmit_DropsOldestOnOverflow(t *testing.T) {
	block := make(chan struct{})
	var mu sync.Mutex
	var seen []string

	d := New(Config{
		MaxConcurrentGroups: 1,
		QueueDepthPerGroup:  2,
		WorkerIdleTimeout:   time.Second,
		HandlerTimeout:      time.Second,
	}, func(ctx context.Context, msg transport.InboundMessage) error {
		if msg.MessageID == "first" {
			<-block // hold the worker so the queue backs up
		}
		mu.Lock()
		seen = append(seen, msg.MessageID)
		mu.Unlock()
		return nil
	}, nil)
	defer d.Close()

	d.Submit(transport.InboundMessage{GroupID: "g1", MessageID: "first"})
	time.Sleep(20 * time.Millisecond) // let the worker pick up "first" and block

	d.Submit(transport.InboundMessage{GroupID: "g1", MessageID: "a"})
	d.Submit(transport.InboundMessage{GroupID: "g1", MessageID: "b"})
	d.Submit(transport.InboundMessage{GroupID: "g1", MessageID: "c"}) // queue depth 2: "a" should be dropped

	close(block)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	for _, id := range seen {
		if id == "a" {
			t.Error("oldest message should have been dropped on overflow")
		}
	}
}

func TestDispatcher_MetricsHooksCalled(t *testing.T) {
	m := &countingMetrics{}
	d := New(Config{
		MaxConcurrentGroups: 2,
		QueueDepthPerGroup:  5,
		WorkerIdleTimeout:   time.Second,
		HandlerTimeout:      time.Second,
	}, func(ctx context.Context, msg transport.InboundMessage) error {
		return nil
	}, m)
	defer d.Close()

	d.Submit(transport.InboundMessage{GroupID: "g1", MessageID: "1"})

	waitFor(t, func() bool { return atomic.LoadInt64(&m.processed) == 1 })

	if atomic.LoadInt64(&m.enqueued) != 1 {
		t.Errorf("enqueued = %d, want 1", m.enqueued)
	}
}

func TestDispatcher_HandlerTimeout(t *testing.T) {
	var gotErr error
	var mu sync.Mutex
	done := make(chan struct{})

	d := New(Config{
		MaxConcurrentGroups: 1,
		QueueDepthPerGroup:  1,
		WorkerIdleTimeout:   time.Second,
		HandlerTimeout:      10 * time.Millisecond,
	}, func(ctx context.Context, msg transport.InboundMessage) error {
		<-ctx.Done()
		mu.Lock()
		gotErr = ctx.Err()
		mu.Unlock()
		close(done)
		return ctx.Err()
	}, nil)
	defer d.Close()

	d.Submit(transport.InboundMessage{GroupID: "g1", MessageID: "1"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never observed context cancellation")
	}

	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(gotErr, context.DeadlineExceeded) {
		t.Errorf("ctx.Err() = %v, want DeadlineExceeded", gotErr)
	}
}

func TestActiveGroups(t *testing.T) {
	d := New(Config{
		MaxConcurrentGroups: 4,
		QueueDepthPerGroup:  5,
		WorkerIdleTimeout:   50 * time.Millisecond,
		HandlerTimeout:      time.Second,
	}, func(ctx context.Context, msg transport.InboundMessage) error { return nil }, nil)
	defer d.Close()

	d.Submit(transport.InboundMessage{GroupID: "g1", MessageID: "1"})
	d.Submit(transport.InboundMessage{GroupID: "g2", MessageID: "1"})

	waitFor(t, func() bool { return d.ActiveGroups() == 2 })

	// idle reap: both workers should eventually retire.
	waitFor(t, func() bool { return d.ActiveGroups() == 0 })
}

type countingMetrics struct {
	enqueued  int64
	dropped   int64
	processed int64
}

func (m *countingMetrics) Enqueued(string) { atomic.AddInt64(&m.enqueued, 1) }
func (m *countingMetrics) Dropped(string)  { atomic.AddInt64(&m.dropped, 1) }
func (m *countingMetrics) Processed(string, time.Duration, error) {
	atomic.AddInt64(&m.processed, 1)
}
func (m *countingMetrics) ActiveGroups(int) {}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
