package listview

import (
	"sync"
	"time"
)

// DefaultDebounce is the settle window for search input.
const DefaultDebounce = 500 * time.Millisecond

// Debouncer delivers a value only after it has been stable for the delay.
// Every Push resets the pending timer.
type Debouncer struct {
	delay time.Duration
	fn    func(string)

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
	wg      sync.WaitGroup
}

// NewDebouncer returns a Debouncer calling fn with each settled value.
func NewDebouncer(delay time.Duration, fn func(string)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay, fn: fn}
}

// Push records a new raw value and restarts the settle window.
func (d *Debouncer) Push(value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil && d.timer.Stop() {
		d.wg.Done()
	}
	d.gen++
	gen := d.gen
	d.wg.Add(1)
	d.timer = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		current := d.gen == gen && !d.stopped
		d.mu.Unlock()
		if current {
			d.fn(value)
		}
	})
}

// Stop cancels any pending delivery and waits for a running callback to
// return. It is safe to call more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if d.timer != nil && d.timer.Stop() {
		d.wg.Done()
	}
	d.mu.Unlock()
	d.wg.Wait()
}
