package suppress

import (
	"testing"
	"time"
)

func TestShouldSuppress_NothingRecordedYet(t *testing.T) {
	s := New(DefaultConfig())
	if s.ShouldSuppress("g1", ClassGeneric, time.Now()) {
		t.Error("ShouldSuppress() = true, want false before any send")
	}
}

func TestShouldSuppress_WithinCooldown(t *testing.T) {
	s := New(DefaultConfig())
	now := time.Now()
	s.RecordBotResponse("g1", ClassGeneric, now)

	if !s.ShouldSuppress("g1", ClassGeneric, now.Add(5*time.Second)) {
		t.Error("ShouldSuppress() = false, want true within cooldown")
	}
}

func TestShouldSuppress_AfterCooldownExpires(t *testing.T) {
	s := New(DefaultConfig())
	now := time.Now()
	s.RecordBotResponse("g1", ClassGeneric, now)

	if s.ShouldSuppress("g1", ClassGeneric, now.Add(time.Hour)) {
		t.Error("ShouldSuppress() = true, want false after cooldown expires")
	}
}

func TestShouldSuppress_ClassesAreIndependent(t *testing.T) {
	s := New(DefaultConfig())
	now := time.Now()
	s.RecordBotResponse("g1", ClassPriceUpdate, now)

	if s.ShouldSuppress("g1", ClassReminder, now.Add(time.Second)) {
		t.Error("a different class in the same group should not be suppressed")
	}
}

func TestShouldSuppress_GroupsAreIndependent(t *testing.T) {
	s := New(DefaultConfig())
	now := time.Now()
	s.RecordBotResponse("g1", ClassGeneric, now)

	if s.ShouldSuppress("g2", ClassGeneric, now.Add(time.Second)) {
		t.Error("a different group should not be suppressed")
	}
}

func TestShouldSuppress_LockConfirmNeverSuppressed(t *testing.T) {
	s := New(DefaultConfig())
	now := time.Now()
	s.RecordBotResponse("g1", ClassLockConfirm, now)

	if s.ShouldSuppress("g1", ClassLockConfirm, now.Add(time.Millisecond)) {
		t.Error("lock confirmations must never be suppressed, even back-to-back")
	}
}

func TestShouldSuppress_PerClassCooldownOverridesDefault(t *testing.T) {
	cfg := Config{Default: time.Second, PerClass: map[Class]time.Duration{ClassReminder: time.Hour}}
	s := New(cfg)
	now := time.Now()
	s.RecordBotResponse("g1", ClassReminder, now)

	if !s.ShouldSuppress("g1", ClassReminder, now.Add(30*time.Second)) {
		t.Error("reminder's own cooldown (1h) should still suppress at 30s")
	}
}
