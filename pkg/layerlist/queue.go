package layerlist

import (
	"log/slog"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
)

// DefaultDepth is the number of layer lists kept per display
const DefaultDepth = 100

// MinRetention is the number of frames a layer list must stay queued
// before validation can reasonably have caught up with it
const MinRetention = 6

type entry struct {
	list        *List
	frame       uint32
	unvalidated bool
}

// Queue holds the layer lists submitted for one display, oldest first,
// until the frame they describe is validated. A full queue evicts its
// oldest entry.
type Queue struct {
	display int
	depth   int
	entries []entry

	expectPrevSignalled bool

	rec    checks.Recorder
	logger *slog.Logger
}

// NewQueue creates the queue for display. depth <= 0 selects DefaultDepth.
func NewQueue(display, depth int, rec checks.Recorder, logger *slog.Logger) *Queue {
	if depth <= 0 {
		depth = DefaultDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		display: display,
		depth:   depth,
		entries: make([]entry, 0, depth),
		rec:     rec,
		logger:  logger.With("llq", display),
	}
}

// Push queues the layer list for frame, evicting the oldest entry if the
// queue is full
func (q *Queue) Push(list *List, frame uint32) {
	if len(q.entries) >= q.depth {
		old := q.entries[0]
		q.entries = q.entries[1:]

		q.rec.Report(checks.CheckLLQOverflow, "LLQ-D%d has too many entries - flushing frame:%d", q.display, old.frame)
		if !old.list.RetireFence.IsSignalled() {
			q.rec.Report(checks.CheckRetireFenceSignalledPromptly, "Expired old unsignalled fence %d from display %d frame:%d",
				old.list.RetireFence.Fd(), q.display, old.frame)
		} else {
			q.logger.Debug("flushed entry", "frame", old.frame)
		}
	}
	q.entries = append(q.entries, entry{list: list, frame: frame, unvalidated: true})
}

// Len returns the number of queued layer lists
func (q *Queue) Len() int { return len(q.entries) }

// IsFull reports whether the next Push will evict an entry
func (q *Queue) IsFull() bool { return len(q.entries) >= q.depth }

// Back returns the most recently pushed layer list, or nil
func (q *Queue) Back() *List {
	if len(q.entries) == 0 {
		return nil
	}
	return q.entries[len(q.entries)-1].list
}

// BackFrame returns the frame number of the newest entry, or 0
func (q *Queue) BackFrame() uint32 {
	if len(q.entries) == 0 {
		return 0
	}
	return q.entries[len(q.entries)-1].frame
}

// FrontFrame returns the frame number of the oldest entry, or 0
func (q *Queue) FrontFrame() uint32 {
	if len(q.entries) == 0 {
		return 0
	}
	return q.entries[0].frame
}

// BackNeedsValidating reports whether the newest entry is still to be
// validated
func (q *Queue) BackNeedsValidating() bool {
	return len(q.entries) > 0 && q.entries[len(q.entries)-1].unvalidated
}

// GetFrame returns the layer list for frame, discarding any older entries
// on the way. An older entry whose retire fence is still unsignalled means
// the composer retired frames out of order, unless frames were dropped:
// expectPrevSignalled false says this frame follows a drop, and the check
// is skipped both now and for the next lookup.
func (q *Queue) GetFrame(frame uint32, expectPrevSignalled bool) *List {
	for len(q.entries) > 0 {
		front := &q.entries[0]

		if front.frame == frame {
			front.unvalidated = false
			return front.list
		}
		if front.frame > frame {
			break
		}

		if front.unvalidated {
			q.logger.Debug("frame dropped without notification", "frame", front.frame)
		}
		if !front.list.RetireFence.IsSignalled() {
			if q.expectPrevSignalled && expectPrevSignalled {
				q.rec.Report(checks.CheckFlipFences, "SF%d frame:%d requested for validation when frame:%d not yet signalled",
					q.display, frame, front.frame)
			} else {
				q.logger.Debug("frame dropped so not expecting earlier frame to be signalled",
					"frame", frame, "earlier", front.frame)
			}
		}
		q.expectPrevSignalled = expectPrevSignalled
		q.entries = q.entries[1:]
	}

	q.logger.Warn("frame not found", "display", q.display, "frame", frame)
	return nil
}
