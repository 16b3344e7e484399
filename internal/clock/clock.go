// Package clock lets timer-driven code run against real time in production
// and a manually advanced clock in tests.
package clock

import "time"

// Clock is the subset of the time package the sync engine depends on.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine (real) or inside Advance (fake)
	// once d has elapsed.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a cancellable AfterFunc registration.
type Timer struct {
	stop func() bool
}

// Stop cancels the pending call. It reports whether the call was still pending.
func (t *Timer) Stop() bool {
	if t == nil || t.stop == nil {
		return false
	}
	return t.stop()
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stop: t.Stop}
}
