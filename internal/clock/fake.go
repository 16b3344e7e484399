package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock only moves when Advance is called. AfterFunc callbacks run
// synchronously inside Advance, in deadline order.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	callback func()
	done     bool
}

// Fake returns a FakeClock set to start.
func Fake(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	w := &fakeWaiter{deadline: c.now.Add(d), callback: f}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w.done {
			return false
		}
		w.done = true
		return true
	}}
}

// Advance moves the clock forward by d and fires every callback whose
// deadline has been reached. Callbacks registered while firing are measured
// from the advanced time.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()
	for {
		due := c.collect(target)
		if len(due) == 0 {
			return
		}
		for _, w := range due {
			w.callback()
		}
	}
}

// Pending reports how many callbacks are scheduled and not yet fired or stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waiters {
		if !w.done {
			n++
		}
	}
	return n
}

func (c *FakeClock) collect(target time.Time) []*fakeWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	var due, remaining []*fakeWaiter
	for _, w := range c.waiters {
		switch {
		case w.done:
		case !w.deadline.After(target):
			w.done = true
			due = append(due, w)
		default:
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	return due
}

var _ Clock = (*FakeClock)(nil)
