package display

import (
	"sync"
	"time"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
)

// Default watchdog deadlines
const (
	VBlankTimeout     = 50 * time.Millisecond
	PageFlipTimeout   = 50 * time.Millisecond
	SetDisplayTimeout = 15 * time.Second
	DPMSTimeout       = 15 * time.Second
)

// Clock is the time source behind watchdogs and latency measurements.
// AfterFunc arms f to run after d and returns a function that cancels it.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// SystemClock returns the wall clock
func SystemClock() Clock { return systemClock{} }

// Watchdog is a one-shot deadline on an operation in flight. If it is not
// stopped before the deadline, a failure is reported against its check.
type Watchdog struct {
	mu      sync.Mutex
	name    string
	timeout time.Duration
	check   checks.Check
	rec     checks.Recorder
	clock   Clock

	stop    func() bool
	started time.Time
	gen     uint64
}

// NewWatchdog creates a stopped watchdog. A nil clock uses the wall clock.
func NewWatchdog(name string, timeout time.Duration, check checks.Check, rec checks.Recorder, clock Clock) *Watchdog {
	if clock == nil {
		clock = SystemClock()
	}
	return &Watchdog{
		name:    name,
		timeout: timeout,
		check:   check,
		rec:     rec,
		clock:   clock,
	}
}

// Name identifies the watchdog in failure messages
func (w *Watchdog) Name() string { return w.name }

// SetName renames the watchdog, for instance when its CRTC id changes
func (w *Watchdog) SetName(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.name = name
}

// Timeout returns the deadline
func (w *Watchdog) Timeout() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timeout
}

// SetTimeout changes the deadline used from the next Start
func (w *Watchdog) SetTimeout(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timeout = d
}

// Start (re)arms the watchdog, counting one evaluation of its check
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopLocked()
	w.gen++
	gen := w.gen
	w.started = w.clock.Now()
	w.rec.IncEval(w.check)
	w.stop = w.clock.AfterFunc(w.timeout, func() { w.expire(gen) })
}

// Stop disarms the watchdog. Stopping an idle watchdog does nothing.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

// Running reports whether the watchdog is armed
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stop != nil
}

func (w *Watchdog) stopLocked() {
	if w.stop != nil {
		w.stop()
		w.stop = nil
	}
	w.gen++
}

func (w *Watchdog) expire(gen uint64) {
	w.mu.Lock()
	if gen != w.gen || w.stop == nil {
		w.mu.Unlock()
		return
	}
	w.stop = nil
	elapsed := w.clock.Now().Sub(w.started)
	name := w.name
	w.mu.Unlock()

	w.rec.Report(w.check, "%s timed out after %dms", name, elapsed.Milliseconds())
}
