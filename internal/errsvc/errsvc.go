// Package errsvc implements the error service and auto-pause of §4.8: per
// source consecutive-failure and sliding-window tracking that escalates a
// source from transient to critical, triggers a global pause, and
// recovers it via a backing-off health probe. The global operational
// status is a lock-free atomic int32, the same technique the teacher uses
// for its hot-path activeArbs counter (internal/bot/engine.go).
package errsvc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"otcbot/internal/observability"
	"otcbot/pkg/utils"
)

// Status is the bot's global operational state.
type Status int32

const (
	StatusRunning Status = iota
	StatusPaused
)

func (s Status) String() string {
	if s == StatusPaused {
		return "paused"
	}
	return "running"
}

// Classification is the escalated severity of a source's recent failures.
type Classification string

const (
	ClassTransient Classification = "transient"
	ClassCritical  Classification = "critical"
)

// Prober checks whether a previously-failing source has recovered.
type Prober func(ctx context.Context) error

// Notifier reaches the control channel to announce a pause/recovery.
type Notifier interface {
	NotifyOperator(ctx context.Context, groupID, message string) error
}

// Config controls escalation thresholds and recovery probing.
type Config struct {
	ConsecutiveThreshold int           // consecutive failures before escalation
	WindowDuration       time.Duration // sliding window length, default 60s
	WindowThreshold      int           // failures within window before escalation, default 3
	ProbeInitialInterval time.Duration // default 5s
	ProbeMaxInterval     time.Duration // default 5m
	ControlGroupID       string
}

func DefaultConfig() Config {
	return Config{
		ConsecutiveThreshold: 3,
		WindowDuration:       60 * time.Second,
		WindowThreshold:      3,
		ProbeInitialInterval: 5 * time.Second,
		ProbeMaxInterval:     5 * time.Minute,
	}
}

type sourceState struct {
	mu          sync.Mutex
	consecutive int
	window      []time.Time
}

// PauseEvent records why and when the bot was paused, for the dashboard.
type PauseEvent struct {
	Source string
	Reason string
	At     time.Time
}

// Service tracks per-source failures and owns the global pause/resume
// state machine.
type Service struct {
	cfg       Config
	notify    Notifier
	sources   sync.Map // source -> *sourceState
	status    int32
	lastPause atomic.Value // PauseEvent

	probeMu sync.Mutex
	probing map[string]context.CancelFunc
}

func New(cfg Config, notify Notifier) *Service {
	if cfg.ConsecutiveThreshold <= 0 {
		cfg.ConsecutiveThreshold = 3
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = 60 * time.Second
	}
	if cfg.WindowThreshold <= 0 {
		cfg.WindowThreshold = 3
	}
	if cfg.ProbeInitialInterval <= 0 {
		cfg.ProbeInitialInterval = 5 * time.Second
	}
	if cfg.ProbeMaxInterval <= 0 {
		cfg.ProbeMaxInterval = 5 * time.Minute
	}
	return &Service{cfg: cfg, notify: notify, probing: map[string]context.CancelFunc{}}
}

func (s *Service) stateFor(source string) *sourceState {
	v, _ := s.sources.LoadOrStore(source, &sourceState{})
	return v.(*sourceState)
}

// Status reports the current global operational status, lock-free.
func (s *Service) Status() Status {
	return Status(atomic.LoadInt32(&s.status))
}

// IsPaused is shorthand for Status() == StatusPaused, the check the
// router consults to downgrade TRIGGERED to OBSERVE.
func (s *Service) IsPaused() bool {
	return s.Status() == StatusPaused
}

// RecordSuccess resets source's consecutive-failure counter and failure
// window. It does not change the global status; resuming is done by the
// recovery probe loop (see ArmRecoveryProbe).
func (s *Service) RecordSuccess(source string) {
	st := s.stateFor(source)
	st.mu.Lock()
	st.consecutive = 0
	st.window = nil
	st.mu.Unlock()
}

// RecordFailure registers a failure for source at now, returning the
// escalated Classification. Crossing either the consecutive or
// sliding-window threshold triggers auto-pause (idempotent if already
// paused).
func (s *Service) RecordFailure(ctx context.Context, source, reason string, now time.Time) Classification {
	st := s.stateFor(source)
	st.mu.Lock()
	st.consecutive++
	st.window = append(st.window, now)
	cutoff := now.Add(-s.cfg.WindowDuration)
	kept := st.window[:0]
	for _, t := range st.window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	st.window = kept
	consecutive := st.consecutive
	windowCount := len(st.window)
	st.mu.Unlock()

	classification := ClassTransient
	if consecutive >= s.cfg.ConsecutiveThreshold || windowCount >= s.cfg.WindowThreshold {
		classification = ClassCritical
		s.triggerAutoPause(ctx, source, reason, now)
	}
	return classification
}

// triggerAutoPause sets the global status to paused (idempotent),
// records the pause event and notifies the operator. It does not arm a
// recovery probe; that takes a separate ArmRecoveryProbe call with a
// Prober for the source.
func (s *Service) triggerAutoPause(ctx context.Context, source, reason string, now time.Time) {
	if !atomic.CompareAndSwapInt32(&s.status, int32(StatusRunning), int32(StatusPaused)) {
		return // already paused
	}
	s.lastPause.Store(PauseEvent{Source: source, Reason: reason, At: now})
	observability.RecordAutoPause(reason)
	utils.L().Warn("errsvc: auto-pause triggered", utils.Source(source), utils.Reason(reason))
	if s.notify != nil {
		_ = s.notify.NotifyOperator(ctx, s.cfg.ControlGroupID, "bot paused: "+reason+" ("+source+")")
	}
}

// LastPause returns the most recent pause event, or the zero value if the
// bot has never paused.
func (s *Service) LastPause() PauseEvent {
	v, _ := s.lastPause.Load().(PauseEvent)
	return v
}

// ArmRecoveryProbe starts a backing-off probe loop for source: on
// success, consecutive counters reset and — if this was the source that
// triggered the current pause — the bot resumes to running. Probing for
// a source that already has a probe in flight is a no-op.
func (s *Service) ArmRecoveryProbe(ctx context.Context, source string, probe Prober) {
	s.probeMu.Lock()
	if _, exists := s.probing[source]; exists {
		s.probeMu.Unlock()
		return
	}
	probeCtx, cancel := context.WithCancel(ctx)
	s.probing[source] = cancel
	s.probeMu.Unlock()

	go s.recoveryLoop(probeCtx, source, probe, cancel)
}

func (s *Service) recoveryLoop(ctx context.Context, source string, probe Prober, cancel context.CancelFunc) {
	defer func() {
		s.probeMu.Lock()
		delete(s.probing, source)
		s.probeMu.Unlock()
		cancel()
	}()

	interval := s.cfg.ProbeInitialInterval
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if err := probe(ctx); err != nil {
			interval *= 2
			if interval > s.cfg.ProbeMaxInterval {
				interval = s.cfg.ProbeMaxInterval
			}
			continue
		}

		s.RecordSuccess(source)
		if s.LastPause().Source == source && atomic.CompareAndSwapInt32(&s.status, int32(StatusPaused), int32(StatusRunning)) {
			utils.L().Info("errsvc: recovered, resuming", utils.Source(source))
			if s.notify != nil {
				_ = s.notify.NotifyOperator(ctx, s.cfg.ControlGroupID, "bot resumed: "+source+" recovered")
			}
		}
		return
	}
}
