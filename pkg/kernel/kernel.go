package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emergingrobotics/go-hwcval/pkg/buffer"
	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/compare"
	"github.com/emergingrobotics/go-hwcval/pkg/display"
	"github.com/emergingrobotics/go-hwcval/pkg/drm"
	"github.com/emergingrobotics/go-hwcval/pkg/layerlist"
	"github.com/emergingrobotics/go-hwcval/pkg/logparse"
	"github.com/emergingrobotics/go-hwcval/pkg/work"
)

// DrmCallDurationWarning is how long a page flip or set plane may take
// before a warning is logged
const DrmCallDurationWarning = time.Millisecond

// Options configure a Kernel. Zero values select defaults.
type Options struct {
	Logger     *slog.Logger
	Ledger     *checks.Ledger
	Clock      display.Clock
	Comparator buffer.Comparator
	Device     display.Device
	Timeouts   display.Timeouts
	Stalls     display.Stalls

	// LayerListDepth bounds each display's layer list queue
	LayerListDepth int

	// CompareWorkers bounds the number of composition comparisons run at
	// once
	CompareWorkers int

	// UniversalPlanes says primary planes are reported through GETPLANE.
	// Without it each CRTC is given a main plane sharing its id.
	UniversalPlanes bool

	SpoofDRRS bool

	// PreferredHDMIMode, when set, moves the preferred flag of removable
	// connectors to the closest matching mode
	PreferredHDMIMode display.Mode

	// StartUnplugged makes hot-pluggable displays appear disconnected until
	// SimulateHotPlug connects them
	StartUnplugged bool
}

// connector is what the kernel remembers about a DRM connector
type connector struct {
	crtc        *display.Crtc
	displayIx   int
	modes       []display.Mode
	realRefresh uint32
	drrs        bool
	realType    display.DisplayType
}

// Kernel is the validation context. It owns the model of every CRTC, plane,
// connector and buffer, and every intercepted call passes through it. One
// lock serialises the model; calls that must not block only queue work for
// the next lock holder.
type Kernel struct {
	mu     sync.Mutex
	closed bool

	opts   Options
	logger *slog.Logger
	ledger *checks.Ledger
	env    *display.Env
	cmp    buffer.Comparator
	worker *compare.Worker
	work   *work.Queue
	store  *buffer.Store

	crtcs        map[uint32]*display.Crtc
	crtcByPipe   [drm.MaxPipes]*display.Crtc
	crtcByDisp   [drm.MaxCrtcs]*display.Crtc
	planes       map[uint32]*display.Plane
	connectors   map[uint32]*connector
	hotPluggable map[uint32]bool

	llq          [drm.MaxCrtcs]*layerlist.Queue
	fn           buffer.FrameNums
	startFN      buffer.FrameNums
	currentFrame [drm.MaxCrtcs]uint32

	rotationStart     uint32
	rotationEnd       uint32
	snapshots         map[buffer.Handle]uint32
	snapshotsRestored uint32

	hwcOptions   map[string]string
	compositions map[logparse.Composer]uint32

	requireExtendedMode      bool
	requireEMPanel           checks.PanelMode
	lastRequireEMPanel       checks.PanelMode
	framesSinceEMPanelChange uint32

	newDisplayConnected bool
	spoofDRRS           bool
}

var (
	_ display.Kernel = (*Kernel)(nil)
	_ work.Handler   = (*Kernel)(nil)
)

// New creates a kernel. Composition comparisons run until ctx is cancelled
// or the kernel is shut down.
func New(ctx context.Context, opts Options) *Kernel {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ledger := opts.Ledger
	if ledger == nil {
		ledger = checks.NewLedger(nil, checks.WithLogger(logger))
	}
	clock := opts.Clock
	if clock == nil {
		clock = display.SystemClock()
	}
	cmp := opts.Comparator
	if cmp == nil {
		cmp = compare.New()
	}
	if opts.Timeouts == (display.Timeouts{}) {
		opts.Timeouts = display.DefaultTimeouts()
	}

	k := &Kernel{
		opts:   opts,
		logger: logger,
		ledger: ledger,
		cmp:    cmp,
		worker: compare.NewWorker(ctx, opts.CompareWorkers, logger),
		work:   work.NewQueue(logger),
		store:  buffer.NewStore(logger),
		env: &display.Env{
			Rec:      ledger,
			Logger:   logger,
			Clock:    clock,
			Cmp:      cmp,
			Device:   opts.Device,
			Timeouts: opts.Timeouts,
		},
		crtcs:               make(map[uint32]*display.Crtc),
		planes:              make(map[uint32]*display.Plane),
		connectors:          make(map[uint32]*connector),
		hotPluggable:        make(map[uint32]bool),
		snapshots:           make(map[buffer.Handle]uint32),
		hwcOptions:          make(map[string]string),
		compositions:        make(map[logparse.Composer]uint32),
		newDisplayConnected: !opts.StartUnplugged,
		spoofDRRS:           opts.SpoofDRRS || ledger.IsEnabled(checks.OptSpoofDRRS),
	}
	for d := range k.llq {
		k.llq[d] = layerlist.NewQueue(d, opts.LayerListDepth, ledger, logger)
	}
	return k
}

// lock takes the kernel lock and applies any queued work. It returns false,
// without the lock held, once the kernel has been shut down.
func (k *Kernel) lock() bool {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return false
	}
	k.work.Process(k)
	return true
}

// Ledger returns the check ledger results are recorded in
func (k *Kernel) Ledger() *checks.Ledger { return k.ledger }

// Crtc returns the CRTC with the given id, or nil. The CRTC belongs to the
// kernel and must only be inspected while no intercepted calls are running.
func (k *Kernel) Crtc(id uint32) *display.Crtc {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.crtcs[id]
}

// CrtcByDisplay returns the CRTC driving logical display d, or nil
func (k *Kernel) CrtcByDisplay(d int) *display.Crtc {
	k.mu.Lock()
	defer k.mu.Unlock()
	if d < 0 || d >= len(k.crtcByDisp) {
		return nil
	}
	return k.crtcByDisp[d]
}

// Plane returns the plane with the given id, or nil
func (k *Kernel) Plane(id uint32) *display.Plane {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.planes[id]
}

// BufferByFbID returns the buffer bound to a framebuffer id, or nil
func (k *Kernel) BufferByFbID(fbID uint32) *buffer.Buffer {
	if !k.lock() {
		return nil
	}
	defer k.mu.Unlock()
	return k.store.ByFbID(fbID)
}

// Sync applies all queued work. Work is otherwise applied lazily by the
// next intercepted call.
func (k *Kernel) Sync() {
	if k.lock() {
		k.mu.Unlock()
	}
}

// Snapshot returns the results recorded so far
func (k *Kernel) Snapshot() *checks.Result {
	return k.ledger.Snapshot()
}

// Shutdown ends the run: frames still queued are settled, watchdogs are
// stopped, outstanding comparisons are waited for and the final result is
// returned. Intercepted calls made afterwards are ignored.
func (k *Kernel) Shutdown() (*checks.Result, error) {
	if !k.lock() {
		return nil, ErrClosed
	}
	k.finalise()
	k.sendFrameCounts(false)
	for _, crtc := range k.allCrtcs() {
		crtc.StopWatchdogs()
		crtc.EsdRecoveryEnd("did not complete in")
	}
	k.closed = true
	k.mu.Unlock()

	k.work.Close()
	err := k.worker.Close()

	result := k.ledger.Finish()
	if err != nil {
		return result, fmt.Errorf("composition comparison: %w", err)
	}
	return result, nil
}

// allCrtcs returns every known CRTC once, including pipes whose CRTC id is
// not known yet
func (k *Kernel) allCrtcs() []*display.Crtc {
	seen := make(map[*display.Crtc]bool)
	var out []*display.Crtc
	add := func(c *display.Crtc) {
		if c != nil && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range k.crtcByPipe {
		add(c)
	}
	for _, c := range k.crtcs {
		add(c)
	}
	return out
}

// takeComparison detaches buf's content for comparison, if one is due.
// It must be called with the kernel lock held, so that nothing of the
// buffer is read once the lock is released.
func (k *Kernel) takeComparison(buf *buffer.Buffer) *buffer.Comparison {
	if buf == nil || !buf.IsToBeComparedOnce() {
		return nil
	}
	if !buf.HasRef() || !buf.HasBufCopy() {
		k.logger.Debug("nothing to compare", "buffer", buf.String(),
			"ref", buf.HasRef(), "copy", buf.HasBufCopy())
		k.countCompVal(buf.IsFbt(), true)
		buf.FreeBufCopies()
		return nil
	}
	c := buf.TakeComparison()
	return &c
}

// compareAsync checks a composition taken by takeComparison. It must be
// called without the kernel lock held.
func (k *Kernel) compareAsync(c *buffer.Comparison) {
	if c == nil {
		return
	}
	_, err := k.worker.Submit(c.Label, func(ctx context.Context) error {
		c.Run(true, nil, k.cmp, k.ledger)
		k.countCompVal(c.IsFbt(), false)
		return nil
	})
	if err != nil {
		k.logger.Debug("comparison not run", "buffer", c.Label, "error", err)
		k.countCompVal(c.IsFbt(), true)
	}
}

func (k *Kernel) countCompVal(fbt, skipped bool) {
	if fbt {
		k.ledger.CountSfCompVal(skipped)
	} else {
		k.ledger.CountCompVal(skipped)
	}
}
