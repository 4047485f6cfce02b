package engine

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimer_RemainingAnchoredToDeadline(t *testing.T) {
	base := time.Now()
	tm := NewTimer(base.Add(90*time.Second), nil, nil)
	tm.now = func() time.Time { return base }

	if got := tm.Remaining(); got != 90 {
		t.Errorf("Remaining() = %d, want 90", got)
	}

	// A host that slept 40s loses that time: remaining is recomputed from
	// the deadline, never decremented locally.
	tm.now = func() time.Time { return base.Add(40 * time.Second) }
	if got := tm.Remaining(); got != 50 {
		t.Errorf("Remaining() after skip = %d, want 50", got)
	}

	tm.now = func() time.Time { return base.Add(2 * time.Hour) }
	if got := tm.Remaining(); got != 0 {
		t.Errorf("Remaining() past deadline = %d, want 0", got)
	}
}

func TestTimer_ExpiresExactlyOnce(t *testing.T) {
	var expired atomic.Int32

	tm := NewTimer(time.Now().Add(15*time.Millisecond), nil, func() {
		expired.Add(1)
	})
	tm.interval = 5 * time.Millisecond
	tm.Start()

	// Extra direct expirations simulate a tick racing the first expiry.
	tm.expire()
	tm.expire()

	time.Sleep(100 * time.Millisecond)
	if got := expired.Load(); got != 1 {
		t.Errorf("onExpire fired %d times, want 1", got)
	}
}

func TestTimer_StopPreventsExpiry(t *testing.T) {
	var expired atomic.Int32

	tm := NewTimer(time.Now().Add(30*time.Millisecond), nil, func() {
		expired.Add(1)
	})
	tm.interval = 5 * time.Millisecond
	tm.Start()
	tm.Stop()
	tm.Stop() // idempotent

	time.Sleep(80 * time.Millisecond)
	if got := expired.Load(); got != 0 {
		t.Errorf("onExpire fired %d times after Stop, want 0", got)
	}
}

func TestTimer_TicksReportRemaining(t *testing.T) {
	var ticks atomic.Int32

	tm := NewTimer(time.Now().Add(time.Hour), func(remaining int) {
		if remaining <= 0 || remaining > 3600 {
			t.Errorf("tick remaining = %d out of range", remaining)
		}
		ticks.Add(1)
	}, nil)
	tm.interval = 5 * time.Millisecond
	tm.Start()
	defer tm.Stop()

	time.Sleep(40 * time.Millisecond)
	if ticks.Load() < 2 {
		t.Errorf("tick count = %d, want >= 2", ticks.Load())
	}
}
