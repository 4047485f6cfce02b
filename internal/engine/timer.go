package engine

import (
	"sync"
	"time"
)

// Timer is the single countdown authority for one attempt. Remaining time is
// recomputed from the session deadline on every tick rather than decremented,
// so suspend/resume or a slow host cannot desynchronize it from wall clock.
type Timer struct {
	deadline time.Time
	interval time.Duration
	now      func() time.Time

	onTick   func(remainingSeconds int)
	onExpire func()

	stopOnce   sync.Once
	expireOnce sync.Once
	stopCh     chan struct{}
}

// NewTimer creates a timer against the given deadline. onTick fires once per
// interval with the recomputed remaining seconds; onExpire fires exactly once
// when the deadline passes, even if ticks keep racing in.
func NewTimer(deadline time.Time, onTick func(int), onExpire func()) *Timer {
	return &Timer{
		deadline: deadline,
		interval: time.Second,
		now:      time.Now,
		onTick:   onTick,
		onExpire: onExpire,
		stopCh:   make(chan struct{}),
	}
}

// Remaining returns whole seconds until the deadline, floored at zero.
func (t *Timer) Remaining() int {
	rem := t.deadline.Sub(t.now())
	if rem <= 0 {
		return 0
	}
	return int(rem / time.Second)
}

// Start launches the tick loop. Call in a goroutine is not needed; Start
// spawns its own and returns immediately.
func (t *Timer) Start() {
	go t.loop()
}

func (t *Timer) loop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			remaining := t.Remaining()
			if t.onTick != nil {
				t.onTick(remaining)
			}
			if remaining == 0 {
				t.expire()
				return
			}
		}
	}
}

// expire invokes onExpire exactly once.
func (t *Timer) expire() {
	t.expireOnce.Do(func() {
		if t.onExpire != nil {
			t.onExpire()
		}
	})
}

// Stop halts the tick loop. Idempotent; safe to call from onExpire or after
// the session reaches a terminal state.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
}
