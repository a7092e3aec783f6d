package checks

import (
	"time"

	"github.com/google/uuid"

	"github.com/emergingrobotics/go-hwcval/pkg/drm"
)

// PerDisplay holds frame statistics for one display slot
type PerDisplay struct {
	MaxConsecutiveDroppedFrames uint32
	DroppedFrames               uint32
	Frames                      uint32
}

// Result accumulates evaluation and failure counts for one run.
// It is not safe for concurrent use; Ledger serialises access.
type Result struct {
	RunID uuid.UUID

	FailCount [NumChecks]uint32
	EvalCount [NumChecks]uint32

	Displays [drm.MaxCrtcs]PerDisplay

	HwcCompValCount   uint32
	HwcCompValSkipped uint32
	SfCompValCount    uint32
	SfCompValSkipped  uint32

	StartTime time.Time
	EndTime   time.Time

	finalPriority  [NumChecks]Priority
	causesTestFail [NumChecks]bool
}

// NewResult returns an empty result with a fresh run id and default priorities
func NewResult() *Result {
	r := &Result{RunID: uuid.New()}
	for i := range r.finalPriority {
		r.finalPriority[i] = checkTable[i].priority
		r.causesTestFail[i] = true
	}
	return r
}

// IncEval records one opportunity for check to fail
func (r *Result) IncEval(check Check) {
	if check.Valid() {
		r.EvalCount[check]++
	}
}

// AddEval records n opportunities for check to fail
func (r *Result) AddEval(check Check, n uint32) {
	if check.Valid() {
		r.EvalCount[check] += n
	}
}

// SetFail records n failures of check
func (r *Result) SetFail(check Check, n uint32) {
	if check.Valid() {
		r.FailCount[check] += n
	}
}

// Add folds rhs into r. Counts are summed, the higher final priority of
// each check is kept, and frame counts and times are taken from rhs.
func (r *Result) Add(rhs *Result) {
	for i := range r.EvalCount {
		r.EvalCount[i] += rhs.EvalCount[i]
		r.FailCount[i] += rhs.FailCount[i]
		r.finalPriority[i] = max(r.finalPriority[i], rhs.finalPriority[i])
		r.causesTestFail[i] = r.causesTestFail[i] || rhs.causesTestFail[i]
	}
	for i := range r.Displays {
		r.Displays[i].MaxConsecutiveDroppedFrames += rhs.Displays[i].MaxConsecutiveDroppedFrames
		r.Displays[i].DroppedFrames += rhs.Displays[i].DroppedFrames
		r.Displays[i].Frames = rhs.Displays[i].Frames
	}
	r.HwcCompValSkipped += rhs.HwcCompValSkipped
	r.HwcCompValCount += rhs.HwcCompValCount
	r.SfCompValSkipped += rhs.SfCompValSkipped
	r.SfCompValCount += rhs.SfCompValCount
	r.StartTime = rhs.StartTime
	r.EndTime = rhs.EndTime
}

// Reset clears counters. With a config, sticky-test checks keep their counts.
func (r *Result) Reset(config *Config, now time.Time) {
	for i := range r.EvalCount {
		if config == nil || config.checks[i].Category != CategoryStickyTest {
			r.EvalCount[i] = 0
			r.FailCount[i] = 0
		}
	}
	r.HwcCompValSkipped = 0
	r.HwcCompValCount = 0
	r.SfCompValSkipped = 0
	r.SfCompValCount = 0
	r.StartTime = now
}

// SetStartEndTime sets the run interval used for frame rate reporting
func (r *Result) SetStartEndTime(start, end time.Time) {
	r.StartTime = start
	r.EndTime = end
}

// Duration is the reported run time, never negative
func (r *Result) Duration() time.Duration {
	d := r.EndTime.Sub(r.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// CopyPriorities snapshots the config's priorities and fail flags as the
// final values used for the verdict
func (r *Result) CopyPriorities(config *Config) {
	for i := range r.finalPriority {
		r.finalPriority[i] = config.checks[i].Priority
		r.causesTestFail[i] = config.checks[i].CausesTestFail
	}
}

// FinalPriority returns the priority used for the verdict
func (r *Result) FinalPriority(check Check) Priority {
	if !check.Valid() {
		return PriorityError
	}
	return r.finalPriority[check]
}

// CausesTestFail reports whether failures of check count against the run
func (r *Result) CausesTestFail(check Check) bool {
	return check.Valid() && r.causesTestFail[check]
}

// SetFinalPriority overrides the verdict priority of check
func (r *Result) SetFinalPriority(check Check, p Priority) {
	if check.Valid() {
		r.finalPriority[check] = p
	}
}

// ConditionalDropPriority lowers the verdict priority of check to reduced if
// it failed no more than maxNormCount times
func (r *Result) ConditionalDropPriority(check Check, maxNormCount uint32, reduced Priority) {
	if check.Valid() && r.FailCount[check] <= maxNormCount {
		r.finalPriority[check] = reduced
	}
}

// ConditionalRevertPriority restores the configured priority of check if it
// failed more than maxNormCount times
func (r *Result) ConditionalRevertPriority(config *Config, check Check, maxNormCount uint32) {
	if check.Valid() && r.FailCount[check] > maxNormCount {
		r.finalPriority[check] = config.checks[check].Priority
	}
}

// IsGlobalFail reports whether any fail-causing check at error priority or
// above has failed
func (r *Result) IsGlobalFail() bool {
	for i := range r.FailCount {
		if r.FailCount[i] > 0 && r.finalPriority[i] >= PriorityError && r.causesTestFail[i] {
			return true
		}
	}
	return false
}

// ExitCode is 1 on a global fail, else 0
func (r *Result) ExitCode() int {
	if r.IsGlobalFail() {
		return 1
	}
	return 0
}

// Clone returns an independent copy
func (r *Result) Clone() *Result {
	c := *r
	return &c
}
