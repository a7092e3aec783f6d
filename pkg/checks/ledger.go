package checks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Recorder is the part of the ledger the model code depends on
type Recorder interface {
	IsEnabled(check Check) bool
	IncEval(check Check)
	AddEval(check Check, n uint32)
	Report(check Check, format string, args ...any) Priority
	Logf(priority Priority, format string, args ...any)
}

var _ Recorder = (*Ledger)(nil)

// Ledger is the shared entry point for recording check evaluations and
// failures. It is safe for concurrent use.
type Ledger struct {
	mu     sync.Mutex
	config *Config
	result *Result

	logger *slog.Logger
	exit   func()
	now    func() time.Time
}

// LedgerOption configures a Ledger
type LedgerOption func(*Ledger)

// WithLogger sets the logger failures are written to
func WithLogger(l *slog.Logger) LedgerOption {
	return func(lg *Ledger) {
		if l != nil {
			lg.logger = l
		}
	}
}

// WithExit sets the callback invoked after a fatal-priority failure
func WithExit(fn func()) LedgerOption {
	return func(lg *Ledger) {
		lg.exit = fn
	}
}

// WithNow sets the time source used for run start and end times
func WithNow(fn func() time.Time) LedgerOption {
	return func(lg *Ledger) {
		if fn != nil {
			lg.now = fn
		}
	}
}

// NewLedger creates a ledger over config. A nil config gets NewConfig().
func NewLedger(config *Config, opts ...LedgerOption) *Ledger {
	if config == nil {
		config = NewConfig()
	}
	l := &Ledger{
		config: config,
		result: NewResult(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.result.StartTime = l.now()
	return l
}

// Configure runs fn with the config under the ledger lock
func (l *Ledger) Configure(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.config)
}

// IsEnabled reports whether check is enabled
func (l *Ledger) IsEnabled(check Check) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.config.IsEnabled(check)
}

// IncEval records one evaluation of check
func (l *Ledger) IncEval(check Check) {
	l.mu.Lock()
	l.result.IncEval(check)
	l.mu.Unlock()
}

// AddEval records n evaluations of check
func (l *Ledger) AddEval(check Check, n uint32) {
	l.mu.Lock()
	l.result.AddEval(check, n)
	l.mu.Unlock()
}

// Report records a failure of check with a formatted detail message and
// returns the priority it was logged at. A fatal priority invokes the exit
// callback after the lock is released.
func (l *Ledger) Report(check Check, format string, args ...any) Priority {
	return l.report(check, 1, fmt.Sprintf(format, args...))
}

// ReportN records n failures of check as one log entry
func (l *Ledger) ReportN(check Check, n uint32, format string, args ...any) Priority {
	return l.report(check, n, fmt.Sprintf(format, args...))
}

// ReportE records a failure with no detail beyond the check description
func (l *Ledger) ReportE(check Check) Priority {
	return l.report(check, 1, "")
}

func (l *Ledger) report(check Check, n uint32, detail string) Priority {
	l.mu.Lock()
	l.result.SetFail(check, n)
	priority := l.config.Priority(check)
	logIt := l.config.IsLevelEnabled(priority)
	exit := l.exit
	l.mu.Unlock()

	if logIt {
		attrs := []slog.Attr{slog.String("check", check.String())}
		if detail != "" {
			attrs = append(attrs, slog.String("detail", detail))
		}
		l.logger.LogAttrs(context.Background(), slogLevel(priority), check.Description(), attrs...)
	}

	if priority == PriorityFatal && exit != nil {
		exit()
	}
	return priority
}

// Logf logs at priority without recording a failure. Used for the
// non-failing diagnostics that accompany checks.
func (l *Ledger) Logf(priority Priority, format string, args ...any) {
	l.mu.Lock()
	enabled := l.config.IsLevelEnabled(priority)
	l.mu.Unlock()
	if enabled {
		l.logger.Log(context.Background(), slogLevel(priority), fmt.Sprintf(format, args...))
	}
}

// RecordFrames stores per-display frame statistics
func (l *Ledger) RecordFrames(display int, frames, dropped, maxConsecutive uint32) {
	if display < 0 || display >= len(l.result.Displays) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	d := &l.result.Displays[display]
	d.Frames = frames
	d.DroppedFrames = dropped
	if maxConsecutive > d.MaxConsecutiveDroppedFrames {
		d.MaxConsecutiveDroppedFrames = maxConsecutive
	}
}

// CountCompVal records one HWC composition validation, done or skipped
func (l *Ledger) CountCompVal(skipped bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if skipped {
		l.result.HwcCompValSkipped++
	} else {
		l.result.HwcCompValCount++
	}
}

// CountSfCompVal records one SurfaceFlinger composition validation, done
// or skipped
func (l *Ledger) CountSfCompVal(skipped bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if skipped {
		l.result.SfCompValSkipped++
	} else {
		l.result.SfCompValCount++
	}
}

// FailCount returns the number of failures recorded for check
func (l *Ledger) FailCount(check Check) uint32 {
	if !check.Valid() {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result.FailCount[check]
}

// EvalCount returns the number of evaluations recorded for check
func (l *Ledger) EvalCount(check Check) uint32 {
	if !check.Valid() {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result.EvalCount[check]
}

// Reset clears non-sticky counters and restarts the run clock
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.result.Reset(l.config, l.now())
}

// Finish stamps the end time, copies final priorities and returns a
// snapshot of the result
func (l *Ledger) Finish() *Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.result.EndTime = l.now()
	l.result.CopyPriorities(l.config)
	return l.result.Clone()
}

// Snapshot returns a copy of the current result without finishing the run
func (l *Ledger) Snapshot() *Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result.Clone()
}

// ConfigSnapshot returns a copy of the config
func (l *Ledger) ConfigSnapshot() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := *l.config
	return &c
}

func slogLevel(p Priority) slog.Level {
	switch {
	case p >= PriorityError:
		return slog.LevelError
	case p == PriorityWarn:
		return slog.LevelWarn
	case p == PriorityInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
