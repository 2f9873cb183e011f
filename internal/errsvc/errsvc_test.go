package errsvc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) NotifyOperator(ctx context.Context, groupID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func TestRecordFailure_BelowThresholdStaysTransient(t *testing.T) {
	n := &fakeNotifier{}
	s := New(DefaultConfig(), n)
	now := time.Now()

	class := s.RecordFailure(context.Background(), "feed-a", "timeout", now)
	if class != ClassTransient {
		t.Errorf("class = %v, want transient", class)
	}
	if s.IsPaused() {
		t.Error("single failure should not pause the bot")
	}
}

func TestRecordFailure_ConsecutiveThresholdEscalates(t *testing.T) {
	n := &fakeNotifier{}
	s := New(DefaultConfig(), n)
	now := time.Now()

	var last Classification
	for i := 0; i < 3; i++ {
		last = s.RecordFailure(context.Background(), "feed-a", "timeout", now.Add(time.Duration(i)*time.Millisecond))
	}
	if last != ClassCritical {
		t.Errorf("class after 3 consecutive failures = %v, want critical", last)
	}
	if !s.IsPaused() {
		t.Error("bot should be paused after consecutive threshold crossed")
	}
	if n.count() != 1 {
		t.Errorf("notify count = %d, want 1", n.count())
	}
}

func TestRecordFailure_SlidingWindowEscalates(t *testing.T) {
	n := &fakeNotifier{}
	s := New(DefaultConfig(), n)
	base := time.Now()

	s.RecordFailure(context.Background(), "feed-b", "blip", base)
	s.RecordFailure(context.Background(), "feed-b", "blip", base.Add(10*time.Second))
	class := s.RecordFailure(context.Background(), "feed-b", "blip", base.Add(20*time.Second))

	if class != ClassCritical {
		t.Errorf("class after 3 failures within window = %v, want critical", class)
	}
}

func TestRecordFailure_WindowExpiryDropsOldFailures(t *testing.T) {
	n := &fakeNotifier{}
	s := New(DefaultConfig(), n)
	base := time.Now()

	s.RecordFailure(context.Background(), "feed-a", "blip", base)
	s.RecordFailure(context.Background(), "feed-a", "blip", base.Add(2*time.Minute))
	class := s.RecordFailure(context.Background(), "feed-a", "blip", base.Add(2*time.Minute+time.Second))

	if class != ClassTransient {
		t.Errorf("class = %v, want transient (first failure should have aged out of the window)", class)
	}
	if s.IsPaused() {
		t.Error("bot should not be paused when window failures stay below threshold")
	}
}

func TestTriggerAutoPause_IsIdempotent(t *testing.T) {
	n := &fakeNotifier{}
	s := New(DefaultConfig(), n)
	now := time.Now()

	s.triggerAutoPause(context.Background(), "feed-a", "manual", now)
	s.triggerAutoPause(context.Background(), "feed-b", "manual-2", now.Add(time.Second))

	if n.count() != 1 {
		t.Errorf("notify count = %d, want 1 (second pause attempt should be a no-op)", n.count())
	}
	if s.LastPause().Source != "feed-a" {
		t.Errorf("LastPause().Source = %q, want feed-a", s.LastPause().Source)
	}
}

func TestArmRecoveryProbe_ResumesOnFirstSuccess(t *testing.T) {
	n := &fakeNotifier{}
	cfg := DefaultConfig()
	cfg.ProbeInitialInterval = time.Millisecond
	cfg.ProbeMaxInterval = 5 * time.Millisecond
	s := New(cfg, n)
	now := time.Now()

	for i := 0; i < 3; i++ {
		s.RecordFailure(context.Background(), "feed-a", "down", now.Add(time.Duration(i)*time.Millisecond))
	}
	if !s.IsPaused() {
		t.Fatal("expected bot paused before arming recovery probe")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	recovered := make(chan struct{})
	var probeCount int
	var mu sync.Mutex
	s.ArmRecoveryProbe(ctx, "feed-a", func(ctx context.Context) error {
		mu.Lock()
		probeCount++
		n := probeCount
		mu.Unlock()
		if n < 2 {
			return errors.New("still down")
		}
		close(recovered)
		return nil
	})

	select {
	case <-recovered:
	case <-ctx.Done():
		t.Fatal("probe never succeeded within timeout")
	}

	// give recoveryLoop a moment to flip status after the probe returned nil
	time.Sleep(20 * time.Millisecond)
	if s.IsPaused() {
		t.Error("bot should resume to running after a successful probe")
	}
}

func TestArmRecoveryProbe_SecondCallForSameSourceIsNoOp(t *testing.T) {
	n := &fakeNotifier{}
	cfg := DefaultConfig()
	cfg.ProbeInitialInterval = time.Hour
	s := New(cfg, n)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	probe := func(ctx context.Context) error {
		calls++
		return nil
	}
	s.ArmRecoveryProbe(ctx, "feed-a", probe)
	s.ArmRecoveryProbe(ctx, "feed-a", probe)

	s.probeMu.Lock()
	n2 := len(s.probing)
	s.probeMu.Unlock()
	if n2 != 1 {
		t.Errorf("probing map size = %d, want 1 (second arm should be a no-op)", n2)
	}
}

func TestStatus_StringRepresentation(t *testing.T) {
	if StatusRunning.String() != "running" {
		t.Errorf("StatusRunning.String() = %q, want running", StatusRunning.String())
	}
	if StatusPaused.String() != "paused" {
		t.Errorf("StatusPaused.String() = %q, want paused", StatusPaused.String())
	}
}
