package models

import (
	"testing"
	"time"
)

func TestEffectiveTimeoutUsesRowValueWhenSet(t *testing.T) {
	s := &ExchangeStatus{Timeout: 60}
	if got := s.EffectiveTimeout(30 * time.Second); got != 60*time.Second {
		t.Errorf("EffectiveTimeout() = %v, want 60s (row value wins)", got)
	}
}

func TestEffectiveTimeoutFallsBackToDefault(t *testing.T) {
	s := &ExchangeStatus{Timeout: 0}
	if got := s.EffectiveTimeout(30 * time.Second); got != 30*time.Second {
		t.Errorf("EffectiveTimeout() = %v, want 30s default", got)
	}
}

func TestTimedOutNotRunning(t *testing.T) {
	s := &ExchangeStatus{Running: false}
	if s.TimedOut(time.Now(), 30*time.Second) {
		t.Error("TimedOut() = true for a non-running status, want false")
	}
}

func TestTimedOutNoTimeStarted(t *testing.T) {
	s := &ExchangeStatus{Running: true, TimeStarted: nil}
	if s.TimedOut(time.Now(), 30*time.Second) {
		t.Error("TimedOut() = true with no TimeStarted, want false")
	}
}

func TestTimedOutWithinTimeout(t *testing.T) {
	started := time.Now().Add(-10 * time.Second)
	s := &ExchangeStatus{Running: true, TimeStarted: &started}
	if s.TimedOut(time.Now(), 30*time.Second) {
		t.Error("TimedOut() = true within the timeout window, want false")
	}
}

func TestTimedOutExceedsTimeout(t *testing.T) {
	started := time.Now().Add(-40 * time.Second)
	s := &ExchangeStatus{Running: true, TimeStarted: &started}
	if !s.TimedOut(time.Now(), 30*time.Second) {
		t.Error("TimedOut() = false beyond the timeout window, want true")
	}
}

func TestTimedOutHonorsPerExchangeTimeoutOverride(t *testing.T) {
	started := time.Now().Add(-40 * time.Second)
	s := &ExchangeStatus{Running: true, TimeStarted: &started, Timeout: 120}
	if s.TimedOut(time.Now(), 30*time.Second) {
		t.Error("TimedOut() = true despite a longer per-exchange timeout override, want false")
	}
}
