// Package coalesce collapses bursts of updates into one delayed effect that
// sees only the most recent value.
package coalesce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Coalescer re-arms a single timer on every Schedule. When the timer fires
// without an intervening Schedule, the effect runs once with the last value.
type Coalescer[T any] struct {
	clock  clockwork.Clock
	delay  time.Duration
	effect func(T)

	mu    sync.Mutex
	timer clockwork.Timer
	value T
	gen   uint64
}

func New[T any](clock clockwork.Clock, delay time.Duration, effect func(T)) *Coalescer[T] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Coalescer[T]{clock: clock, delay: delay, effect: effect}
}

// Schedule replaces any pending value with v and restarts the delay.
func (c *Coalescer[T]) Schedule(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.value = v
	c.timer = c.clock.AfterFunc(c.delay, func() { c.fire(gen) })
}

// Cancel drops the pending value, if any, and reports whether one existed.
func (c *Coalescer[T]) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelLocked()
}

// Flush runs the effect now with the pending value. It reports false when
// nothing was pending.
func (c *Coalescer[T]) Flush() bool {
	c.mu.Lock()
	v := c.value
	if !c.cancelLocked() {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()
	c.effect(v)
	return true
}

// Pending reports whether a value is waiting for its timer.
func (c *Coalescer[T]) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

func (c *Coalescer[T]) cancelLocked() bool {
	if c.timer == nil {
		return false
	}
	c.timer.Stop()
	c.timer = nil
	c.gen++
	var zero T
	c.value = zero
	return true
}

func (c *Coalescer[T]) fire(gen uint64) {
	c.mu.Lock()
	// a Schedule or Cancel raced with the timer; the newer call owns the value
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	v := c.value
	c.timer = nil
	var zero T
	c.value = zero
	c.mu.Unlock()
	c.effect(v)
}
