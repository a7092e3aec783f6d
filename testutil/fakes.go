package testutil

import (
	"image"
	"sort"
	"sync"
	"time"
)

// FakeComparator implements the pixel comparator used for transparency
// detection and reference comparison with canned answers
type FakeComparator struct {
	mu          sync.Mutex
	transparent bool
	ssim        float64
	calls       int
}

// NewFakeComparator creates a comparator that reports nothing transparent
// and every comparison a perfect match
func NewFakeComparator() *FakeComparator {
	return &FakeComparator{ssim: 1}
}

// Transparent returns the configured transparency answer
func (c *FakeComparator) Transparent(img image.Image, r image.Rectangle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	return c.transparent
}

// SSIM returns the configured similarity
func (c *FakeComparator) SSIM(a, b image.Image, r image.Rectangle, useAlpha bool) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	return c.ssim
}

// SetTransparent sets the answer to every Transparent call
func (c *FakeComparator) SetTransparent(transparent bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transparent = transparent
}

// SetSSIM sets the answer to every SSIM call
func (c *FakeComparator) SetSSIM(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ssim = v
}

// Calls returns the number of comparisons made
func (c *FakeComparator) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeTimer struct {
	at      time.Time
	seq     int
	fn      func()
	stopped bool
}

// FakeClock is a manually advanced clock. Timers armed with AfterFunc fire
// synchronously from Advance, in deadline order, once the clock reaches
// their deadline.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

// NewFakeClock creates a clock starting at a fixed instant
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc arms fn to run once the clock has advanced by d. The returned
// function cancels it, reporting whether it was still pending.
func (c *FakeClock) AfterFunc(d time.Duration, fn func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &fakeTimer{at: c.now.Add(d), seq: c.seq, fn: fn}
	c.timers = append(c.timers, t)

	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if t.stopped {
			return false
		}
		t.stopped = true
		return true
	}
}

// Advance moves the clock forward by d, running every timer that falls due.
// Timer callbacks run without the clock lock held and may arm new timers.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.Slice(c.timers, func(i, j int) bool {
			if c.timers[i].at.Equal(c.timers[j].at) {
				return c.timers[i].seq < c.timers[j].seq
			}
			return c.timers[i].at.Before(c.timers[j].at)
		})

		var due *fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.at.After(target) {
				due = t
				break
			}
		}
		if due == nil {
			c.now = target
			c.gc()
			c.mu.Unlock()
			return
		}
		due.stopped = true
		c.now = due.at
		c.mu.Unlock()

		due.fn()
	}
}

// Pending returns the number of armed timers
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (c *FakeClock) gc() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	c.timers = live
}

// ExitRecorder stands in for the process exit taken after a fatal check
type ExitRecorder struct {
	mu    sync.Mutex
	calls int
}

// Exit records one call
func (e *ExitRecorder) Exit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
}

// Calls returns how many times Exit was called
func (e *ExitRecorder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
