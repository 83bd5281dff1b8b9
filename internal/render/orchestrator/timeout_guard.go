package orchestrator

import (
	"sync/atomic"
	"time"
)

// TimeoutGuard runs a cancellation action once after a delay unless disarmed first.
// It counts as fired only when the action reports that it took effect.
type TimeoutGuard struct {
	timer *time.Timer
	fired atomic.Bool
}

func newTimeoutGuard(d time.Duration, action func() bool) *TimeoutGuard {
	g := &TimeoutGuard{}
	g.timer = time.AfterFunc(d, func() {
		if action() {
			g.fired.Store(true)
		}
	})
	return g
}

// Disarm stops the timer. It returns false when the action already started.
func (g *TimeoutGuard) Disarm() bool {
	return g.timer.Stop()
}

// Fired reports whether the action ran and took effect
func (g *TimeoutGuard) Fired() bool {
	return g.fired.Load()
}
