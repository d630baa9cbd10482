package turn

import (
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultDebounce is the silence interval after which a caller turn ends.
const DefaultDebounce = 600 * time.Millisecond

// Debouncer is the caller silence timer. Every Reset cancels the pending
// expiry and schedules a new one; on expiry fire is invoked with the
// generation that armed it. The owner passes that generation back to Expired
// to reject fires that raced with a later Reset.
//
// Reset, Stop and Expired must be called from one goroutine. fire runs on a
// timer goroutine and should only post the generation to the owner.
type Debouncer struct {
	clock    clock.Clock
	interval time.Duration
	fire     func(gen uint64)

	timer *clock.Timer
	gen   uint64
	armed bool
}

// NewDebouncer returns a stopped Debouncer. A nil clk uses the wall clock.
func NewDebouncer(clk clock.Clock, interval time.Duration, fire func(gen uint64)) *Debouncer {
	if clk == nil {
		clk = clock.New()
	}
	if interval <= 0 {
		interval = DefaultDebounce
	}
	return &Debouncer{clock: clk, interval: interval, fire: fire}
}

// Interval returns the configured silence interval.
func (d *Debouncer) Interval() time.Duration { return d.interval }

// Reset (re)arms the timer for a full interval from now.
func (d *Debouncer) Reset() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	d.armed = true
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.interval, func() { d.fire(gen) })
}

// Stop cancels any pending expiry. Fires already in flight become stale.
func (d *Debouncer) Stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.armed = false
}

// Expired reports whether gen belongs to the most recent Reset and has not
// been consumed yet. A true result disarms the debouncer, so each Reset
// yields at most one boundary.
func (d *Debouncer) Expired(gen uint64) bool {
	if !d.armed || gen != d.gen {
		return false
	}
	d.armed = false
	d.timer = nil
	return true
}
