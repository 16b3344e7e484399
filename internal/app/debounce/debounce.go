package debounce

import (
	"sync"
	"time"

	"rentsync/internal/clock"
)

const DefaultDelay = 500 * time.Millisecond

// Debouncer runs the most recently triggered function once the triggers
// have been quiet for the delay. Each Trigger cancels the pending run.
type Debouncer struct {
	clock clock.Clock
	delay time.Duration

	mu      sync.Mutex
	timer   *clock.Timer
	gen     uint64
	stopped bool
}

func New(clk clock.Clock, delay time.Duration) *Debouncer {
	if clk == nil {
		clk = clock.Real()
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{clock: clk, delay: delay}
}

// Trigger (re)starts the quiet period. It reports false after Stop.
func (d *Debouncer) Trigger(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	d.timer.Stop()
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.stopped || gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
	return true
}

// Cancel drops the pending run, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timer.Stop()
	d.timer = nil
	d.gen++
}

// Stop cancels the pending run and refuses further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timer.Stop()
	d.timer = nil
	d.stopped = true
}

// Pending reports whether a run is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
