// Package suppress implements the anti-duplicate guard of §4.7: after any
// bot send, a subsequent send of the same message class within a cooldown
// window is suppressed. Keyed per (groupId, class) in a sync.Map, the same
// lock-free read/write-heavy-cache shape as the teacher's risk.go
// marginCache — a small struct swapped in under Store, never mutated in
// place, so concurrent shouldSuppress calls never race a writer.
package suppress

import (
	"sync"
	"time"
)

// Class distinguishes categories of bot sends that suppress independently
// of one another (a price nudge and a lock confirmation belong to
// different classes and never suppress each other).
type Class string

const (
	ClassPriceUpdate    Class = "price_update"
	ClassReminder       Class = "reminder"
	ClassGeneric        Class = "generic"
	ClassLockConfirm    Class = "lock_confirm"
)

// neverSuppressed lists classes the deal engine's own state transitions
// emit, which §4.7 says must always reach the group ("a locked
// confirmation is never suppressed") regardless of cooldown.
var neverSuppressed = map[Class]bool{
	ClassLockConfirm: true,
}

type record struct {
	lastSentAt time.Time
}

func key(groupID string, class Class) string { return groupID + "|" + string(class) }

// Config controls the cooldown window per class; classes absent from the
// map fall back to Default.
type Config struct {
	Default   time.Duration
	PerClass  map[Class]time.Duration
}

func DefaultConfig() Config {
	return Config{
		Default: 30 * time.Second,
		PerClass: map[Class]time.Duration{
			ClassPriceUpdate: 60 * time.Second,
			ClassReminder:    5 * time.Minute,
		},
	}
}

func (c Config) cooldown(class Class) time.Duration {
	if d, ok := c.PerClass[class]; ok {
		return d
	}
	return c.Default
}

// Suppressor tracks the last bot response per (group, class).
type Suppressor struct {
	cfg   Config
	store sync.Map // key(groupID,class) -> *record
}

func New(cfg Config) *Suppressor {
	if cfg.Default <= 0 {
		cfg.Default = 30 * time.Second
	}
	return &Suppressor{cfg: cfg}
}

// ShouldSuppress reports whether a send of class to groupID at now should
// be dropped because one of the same class already went out within the
// cooldown window. Deal-engine state-transition classes listed in
// neverSuppressed always return false.
func (s *Suppressor) ShouldSuppress(groupID string, class Class, now time.Time) bool {
	if neverSuppressed[class] {
		return false
	}
	v, ok := s.store.Load(key(groupID, class))
	if !ok {
		return false
	}
	r := v.(*record)
	return now.Sub(r.lastSentAt) < s.cfg.cooldown(class)
}

// RecordBotResponse stores lastBotResponseAt for (groupID, class), to be
// called after any bot send regardless of whether it was suppressed —
// §4.7 only suppresses the *next* send, not the one just recorded.
func (s *Suppressor) RecordBotResponse(groupID string, class Class, now time.Time) {
	s.store.Store(key(groupID, class), &record{lastSentAt: now})
}
