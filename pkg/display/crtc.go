package display

import (
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/emergingrobotics/go-hwcval/pkg/buffer"
	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
)

// NoDisplay marks a CRTC not mapped to any logical display
const NoDisplay = -1

// Device selects generation-specific plane rules
type Device int

const (
	DeviceBroxton Device = iota
	DeviceGeneric
)

// DisplayType classifies how a display is attached. Types are bits so a
// set of them can be selected at once.
type DisplayType uint32

const (
	DisplayFixed     DisplayType = 1 << 0
	DisplayRemovable DisplayType = 1 << 1
	DisplayVirtual   DisplayType = 1 << 2
	DisplayAny                   = DisplayFixed | DisplayRemovable | DisplayVirtual
)

func (t DisplayType) String() string {
	switch t {
	case DisplayFixed:
		return "Fixed"
	case DisplayRemovable:
		return "Removable"
	case DisplayVirtual:
		return "Virtual"
	default:
		return fmt.Sprintf("DisplayType(0x%x)", uint32(t))
	}
}

// Mode is one display timing offered by a connector
type Mode struct {
	Width     uint32
	Height    uint32
	Refresh   uint32
	Clock     uint32
	Flags     uint32
	Preferred bool
}

func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%d", m.Width, m.Height, m.Refresh)
}

// Timeouts are the deadlines a CRTC enforces
type Timeouts struct {
	VBlank      time.Duration
	PageFlip    time.Duration
	SetDisplay  time.Duration
	DPMS        time.Duration
	Unblanking  time.Duration
	EsdRecovery time.Duration
}

// DefaultTimeouts returns the standard deadlines
func DefaultTimeouts() Timeouts {
	return Timeouts{
		VBlank:      VBlankTimeout,
		PageFlip:    PageFlipTimeout,
		SetDisplay:  SetDisplayTimeout,
		DPMS:        DPMSTimeout,
		Unblanking:  MaxUnblankingLatency,
		EsdRecovery: MaxEsdRecovery,
	}
}

// Env is what every CRTC shares with the kernel that owns it
type Env struct {
	Rec      checks.Recorder
	Logger   *slog.Logger
	Clock    Clock
	Cmp      buffer.Comparator
	Device   Device
	Timeouts Timeouts
}

func (e *Env) withDefaults() *Env {
	out := *e
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.Clock == nil {
		out.Clock = SystemClock()
	}
	if out.Timeouts == (Timeouts{}) {
		out.Timeouts = DefaultTimeouts()
	}
	return &out
}

// Crtc models one display pipe: its planes, mode, power state and the
// per-frame record of what was put on screen
type Crtc struct {
	env    *Env
	rec    checks.Recorder
	logger *slog.Logger

	id          uint32
	pipe        int
	displayIx   int
	sfSrcDisp   int
	displayType DisplayType
	realType    DisplayType
	connectors  []uint32

	width    uint32
	height   uint32
	clock    uint32
	vrefresh uint32
	outW     uint32
	outH     uint32

	cropT  transform.Transform
	scaleT transform.Transform

	planes    []*Plane
	mainPlane *Plane
	zOrder    []uint32

	transforms []transform.Transform

	power          PowerState
	powerLastFlip  PowerState
	powerSinceUnbl PowerState
	esd            EsdState
	esdStart       time.Time
	unblankingTime time.Time

	frame         uint32
	drmStartFrame uint32
	drmEndFrame   uint32
	drawCount     uint32
	activePlanes  uint32
	bppChange     *Plane
	maxFifo       bool
	wasMaxFifo    bool

	pageFlipsSinceDPMS uint32
	pageFlipTime       time.Time
	validatedFrames    uint32
	lastDisplayedFrame uint32

	videoLayerIndex int
	videoDF         transform.Rect

	skipAllLayers    bool
	skipValidateNext bool

	setDisplayFailed bool
	setDisplayFails  uint32
	setDisplayPasses uint32

	droppedFrame   bool
	dropped        uint32
	consecutive    uint32
	maxConsecutive uint32

	modes                 []Mode
	actualMode            Mode
	preferredMode         Mode
	preferredCount        int
	framesSinceModeSet    uint32
	framesSinceModeChange uint32

	connected bool
	drrs      bool

	pfMode      PanelFitterMode
	pfSrcW      uint32
	pfSrcH      uint32
	pfTransform transform.Transform
	pfModeCount [NumPanelFitterModes]uint32

	vblankActive atomic.Bool
	vblankWD     *Watchdog
	pageFlipWD   *Watchdog
	setDisplayWD *Watchdog
	dpmsWD       *Watchdog
}

// NewCrtc creates a CRTC with no planes, powered on and unconnected
func NewCrtc(id uint32, env *Env) *Crtc {
	env = env.withDefaults()
	c := &Crtc{
		env:             env,
		rec:             env.Rec,
		logger:          env.Logger.With("crtc", id),
		id:              id,
		pipe:            -1,
		displayIx:       NoDisplay,
		sfSrcDisp:       NoDisplay,
		displayType:     DisplayFixed,
		realType:        DisplayFixed,
		videoLayerIndex: -1,
		maxFifo:         true,
		connected:       true,
		cropT:           transform.New(nil, 0, 0),
		scaleT:          transform.New(nil, 0, 0),
		pfTransform:     transform.New(nil, 0, 0),
	}
	c.power = PowerState{DPMS: true, DispScreenControl: true}
	c.powerLastFlip = c.power
	c.powerSinceUnbl = c.power

	t := env.Timeouts
	c.vblankWD = NewWatchdog(fmt.Sprintf("VBlank watchdog Crtc %d", id), t.VBlank, checks.CheckDispGeneratesVSync, env.Rec, env.Clock)
	c.pageFlipWD = NewWatchdog(fmt.Sprintf("Page flip watchdog Crtc %d", id), t.PageFlip, checks.CheckTimelyPageFlip, env.Rec, env.Clock)
	c.setDisplayWD = NewWatchdog(fmt.Sprintf("Set Display watchdog Crtc %d", id), t.SetDisplay, checks.CheckDrmSetDisplayLockup, env.Rec, env.Clock)
	c.dpmsWD = NewWatchdog(fmt.Sprintf("DPMS watchdog Crtc %d", id), t.DPMS, checks.CheckDPMSLockup, env.Rec, env.Clock)
	return c
}

func (c *Crtc) ID() uint32                          { return c.id }
func (c *Crtc) Pipe() int                           { return c.pipe }
func (c *Crtc) SetPipe(pipe int)                    { c.pipe = pipe }
func (c *Crtc) DisplayIx() int                      { return c.displayIx }
func (c *Crtc) SfSrcDisplayIx() int                 { return c.sfSrcDisp }
func (c *Crtc) Width() uint32                       { return c.width }
func (c *Crtc) Height() uint32                      { return c.height }
func (c *Crtc) Clock() uint32                       { return c.clock }
func (c *Crtc) VRefresh() uint32                    { return c.vrefresh }
func (c *Crtc) DisplayType() DisplayType            { return c.displayType }
func (c *Crtc) SetDisplayType(t DisplayType)        { c.displayType = t }
func (c *Crtc) RealDisplayType() DisplayType        { return c.realType }
func (c *Crtc) SetRealDisplayType(t DisplayType)    { c.realType = t }
func (c *Crtc) CropTransform() transform.Transform  { return c.cropT }
func (c *Crtc) ScaleTransform() transform.Transform { return c.scaleT }
func (c *Crtc) Transforms() []transform.Transform   { return c.transforms }
func (c *Crtc) Frame() uint32                       { return c.frame }
func (c *Crtc) ValidatedFrames() uint32             { return c.validatedFrames }
func (c *Crtc) LastDisplayedFrame() uint32          { return c.lastDisplayedFrame }
func (c *Crtc) DRRS() bool                          { return c.drrs }
func (c *Crtc) SetDRRS(enabled bool)                { c.drrs = enabled }

// SetID renames the CRTC, as happens when a pipe is reprogrammed with a
// different CRTC
func (c *Crtc) SetID(id uint32) {
	c.id = id
	c.logger = c.env.Logger.With("crtc", id)
	c.vblankWD.SetName(fmt.Sprintf("VBlank watchdog Crtc %d", id))
	c.pageFlipWD.SetName(fmt.Sprintf("Page flip watchdog Crtc %d", id))
	c.setDisplayWD.SetName(fmt.Sprintf("Set Display watchdog Crtc %d", id))
	c.dpmsWD.SetName(fmt.Sprintf("DPMS watchdog Crtc %d", id))
}

// SetDisplayIx maps the CRTC to a logical display. The surface source
// display follows unless a mosaic mapping says otherwise.
func (c *Crtc) SetDisplayIx(ix int) {
	c.displayIx = ix
	c.sfSrcDisp = ix
}

// ClearDisplayIx unmaps the CRTC from its logical display
func (c *Crtc) ClearDisplayIx() {
	c.displayIx = NoDisplay
	c.sfSrcDisp = NoDisplay
}

// IsConnectedDisplay reports whether the CRTC drives a logical display
func (c *Crtc) IsConnectedDisplay() bool { return c.displayIx != NoDisplay }

// IsExternalDisplay reports whether the CRTC shows something other than
// the primary display's content
func (c *Crtc) IsExternalDisplay() bool { return c.sfSrcDisp > 0 }

// IsMappedFromOtherDisplay reports whether the CRTC mirrors content
// composed for another display
func (c *Crtc) IsMappedFromOtherDisplay() bool { return c.sfSrcDisp != c.displayIx }

// IsHotPluggable reports whether the display can come and go
func (c *Crtc) IsHotPluggable() bool { return c.displayType == DisplayRemovable }

// Connectors returns the connector ids driven by the CRTC
func (c *Crtc) Connectors() []uint32 { return c.connectors }

// AddConnector associates a connector with the CRTC
func (c *Crtc) AddConnector(id uint32) {
	for _, conn := range c.connectors {
		if conn == id {
			return
		}
	}
	c.connectors = append(c.connectors, id)
}

// ClearConnectors forgets every connector
func (c *Crtc) ClearConnectors() { c.connectors = nil }

// HasConnector reports whether the CRTC drives connector id
func (c *Crtc) HasConnector(id uint32) bool {
	for _, conn := range c.connectors {
		if conn == id {
			return true
		}
	}
	return false
}

// SetDimensions sets the mode size and pixel clock
func (c *Crtc) SetDimensions(width, height, clock, vrefresh uint32) {
	c.width = width
	c.height = height
	c.clock = clock
	c.vrefresh = vrefresh
	c.cropT.SetSourceCropSize(0, 0, float64(width), float64(height))

	if c.outW == 0 || c.outH == 0 || (c.outW == width && c.outH == height) {
		c.ResetOutDimensions()
	} else {
		c.SetOutDimensions(c.outW, c.outH)
	}
}

// ResetOutDimensions makes the output the same size as the mode
func (c *Crtc) ResetOutDimensions() {
	c.scaleT = c.cropT
}

// SetOutDimensions sets the size the composition is scaled to, keeping
// its aspect ratio
func (c *Crtc) SetOutDimensions(width, height uint32) {
	c.outW = width
	c.outH = height
	if c.width == 0 || c.height == 0 {
		c.scaleT = transform.New(nil, float64(width), float64(height))
	} else {
		c.scaleT = transform.FixedAspectRatio(c.width, c.height, width, height)
	}
	c.cropT.SetSourceCropSize(0, 0, float64(width), float64(height))
}

// SetMosaicTransform shows the region (srcLeft, srcTop, srcW x srcH) of
// display srcDisp at (dstLeft, dstTop) scaled to dstW x dstH
func (c *Crtc) SetMosaicTransform(srcDisp int, srcLeft, srcTop, srcW, srcH, dstLeft, dstTop, dstW, dstH float64) {
	c.sfSrcDisp = srcDisp
	c.logger.Info("mosaic transform",
		"src", fmt.Sprintf("D%d (%f,%f) %fx%f", srcDisp, srcLeft, srcTop, srcW, srcH),
		"dst", fmt.Sprintf("D%d (%f,%f) %fx%f", c.displayIx, dstLeft, dstTop, dstW, dstH))

	c.scaleT.SetSourceCropSize(srcLeft, srcTop, srcW, srcH)
	c.scaleT.SetDisplayOffset(int32(dstLeft+0.5), int32(dstTop+0.5))
	c.scaleT.SetDisplayFrameSize(int32(dstW+0.5), int32(dstH+0.5))
}

// SetZOrder sets the plane stacking sequence used by non-Broxton devices
func (c *Crtc) SetZOrder(seq []uint32) { c.zOrder = append(c.zOrder[:0], seq...) }

// AddPlane attaches p to the CRTC. Planes are kept in id order and indexed
// from the back of the stack.
func (c *Crtc) AddPlane(p *Plane) {
	for _, existing := range c.planes {
		if existing == p {
			return
		}
	}
	p.crtc = c
	c.planes = append(c.planes, p)
	sort.Slice(c.planes, func(i, j int) bool { return c.planes[i].id < c.planes[j].id })
	for i, pl := range c.planes {
		pl.index = uint32(i)
	}
}

// Planes returns the planes in stacking order
func (c *Crtc) Planes() []*Plane { return c.planes }

// NumPlanes is the number of planes attached
func (c *Crtc) NumPlanes() int { return len(c.planes) }

// SetMainPlane records the plane page flips are directed at
func (c *Crtc) SetMainPlane(p *Plane) {
	c.AddPlane(p)
	c.mainPlane = p
}

// MainPlane returns the plane page flips are directed at
func (c *Crtc) MainPlane() *Plane { return c.mainPlane }

// IsUsing reports whether any plane shows buf or last flipped it
func (c *Crtc) IsUsing(buf *buffer.Buffer) bool {
	for _, p := range c.planes {
		if p.IsUsing(buf) {
			return true
		}
	}
	return false
}

// SetAvailableModes records the modes offered by the connector
func (c *Crtc) SetAvailableModes(modes []Mode) {
	c.modes = append([]Mode(nil), modes...)
	c.preferredCount = 0
	for _, m := range modes {
		if m.Preferred {
			c.preferredMode = m
			c.preferredCount++
		}
	}
	c.framesSinceModeChange = 0
}

// AvailableModes returns the connector's modes
func (c *Crtc) AvailableModes() []Mode { return c.modes }

// PreferredMode returns the connector's preferred mode, if exactly one is
// marked
func (c *Crtc) PreferredMode() (Mode, bool) {
	return c.preferredMode, c.preferredCount == 1
}

// SetActualMode records the mode programmed by SetCrtc
func (c *Crtc) SetActualMode(m Mode) { c.actualMode = m }

// ActualMode returns the programmed mode
func (c *Crtc) ActualMode() Mode { return c.actualMode }

// MatchMode reports whether a mode of the given size and refresh is
// available
func (c *Crtc) MatchMode(width, height, refresh uint32) bool {
	for _, m := range c.modes {
		if m.Width == width && m.Height == height && (refresh == 0 || m.Refresh == refresh) {
			return true
		}
	}
	return false
}

// RecentModeChange reports whether the available modes changed within the
// last few validated frames
func (c *Crtc) RecentModeChange() bool {
	return c.framesSinceModeChange <= ExtendedModeChangeWindow
}

// SimulateHotPlug forces the connection state seen by the harness
func (c *Crtc) SimulateHotPlug(connected bool) {
	c.connected = connected
}

// IsBehavingAsConnected reports the simulated connection state
func (c *Crtc) IsBehavingAsConnected() bool { return c.connected }

// IsConnected reports whether the display has modes and is not simulated
// as unplugged
func (c *Crtc) IsConnected() bool {
	return len(c.modes) > 0 && c.connected
}

// SetSkipAllLayers suppresses consistency checks, as during a rotation
// animation
func (c *Crtc) SetSkipAllLayers(skip bool) { c.skipAllLayers = skip }

// SkipAllLayers reports whether consistency checks are suppressed
func (c *Crtc) SkipAllLayers() bool { return c.skipAllLayers }

// SkipValidateNextFrame suppresses validation of the next frame only
func (c *Crtc) SkipValidateNextFrame() { c.skipValidateNext = true }

// AmSkippingFrameValidation consumes the flag set by SkipValidateNextFrame
func (c *Crtc) AmSkippingFrameValidation() bool {
	if c.skipValidateNext {
		c.skipValidateNext = false
		return true
	}
	return false
}

// SetDisplayFailed records the outcome of the latest attempt to display
func (c *Crtc) SetDisplayFailed(failed bool) {
	c.setDisplayFailed = failed
	if failed {
		c.setDisplayFails++
	} else {
		c.setDisplayPasses++
	}
}

// DidSetDisplayFail reports the outcome recorded by SetDisplayFailed
func (c *Crtc) DidSetDisplayFail() bool { return c.setDisplayFailed }

// IsTotalDisplayFail reports whether displaying has essentially never
// worked
func (c *Crtc) IsTotalDisplayFail() bool {
	return c.setDisplayFails > 50 && c.setDisplayPasses < 10
}

// StopWatchdogs disarms every watchdog on the CRTC
func (c *Crtc) StopWatchdogs() {
	c.vblankWD.Stop()
	c.pageFlipWD.Stop()
	c.setDisplayWD.Stop()
	c.dpmsWD.Stop()
}

// VBlankRequested notes a vblank event request and arms the watchdog
// expecting it. It returns whether a request was already outstanding.
func (c *Crtc) VBlankRequested() bool {
	was := c.vblankActive.Swap(true)
	c.vblankWD.Start()
	return was
}

// VBlank records a vblank. A zero sequence just advances the frame.
func (c *Crtc) VBlank(seq uint32) {
	c.vblankActive.Store(false)
	c.vblankWD.Stop()
	if seq != 0 {
		c.frame = seq
	} else {
		c.frame++
	}
}

// IsVBlankActive reports whether a vblank is awaited
func (c *Crtc) IsVBlankActive() bool { return c.vblankActive.Load() }

// StartPageFlipWatchdog arms the page flip watchdog
func (c *Crtc) StartPageFlipWatchdog() { c.pageFlipWD.Start() }

// StopPageFlipWatchdog disarms the page flip watchdog and records when the
// flip completed
func (c *Crtc) StopPageFlipWatchdog() {
	c.pageFlipWD.Stop()
	c.pageFlipTime = c.env.Clock.Now()
}

// StartSetDisplayWatchdog arms the set display watchdog
func (c *Crtc) StartSetDisplayWatchdog() { c.setDisplayWD.Start() }

// StopSetDisplayWatchdog disarms the set display watchdog
func (c *Crtc) StopSetDisplayWatchdog() { c.setDisplayWD.Stop() }

// NotifyRetireFence is called once the frame's retire fence has signalled
func (c *Crtc) NotifyRetireFence() {
	c.StopPageFlipWatchdog()
	c.ResetDrawCount()
	c.PageFlipsSinceDPMS()
	for _, p := range c.planes {
		p.Flip()
	}
}

func (c *Crtc) String() string {
	return fmt.Sprintf("Crtc %d D%d %dx%d", c.id, c.displayIx, c.width, c.height)
}
