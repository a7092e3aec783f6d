package display

import (
	"time"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
)

// Power-related limits
const (
	MaxUnblankingLatency = 600 * time.Millisecond
	MaxEsdRecovery       = 3 * time.Second
)

// PowerState is the combination of controls that decide whether a display
// shows anything
type PowerState struct {
	DPMS              bool
	DispScreenControl bool
	ModeSet           bool
	BlankingRequested bool
	Black             bool
	HasContent        bool
}

// EsdState tracks recovery from a panel electrostatic discharge event
type EsdState int

const (
	EsdComplete EsdState = iota
	EsdStarted
	EsdDpmsOff
	EsdModeSet
	EsdAny
)

func (s EsdState) String() string {
	switch s {
	case EsdComplete:
		return "Complete"
	case EsdStarted:
		return "Started"
	case EsdDpmsOff:
		return "DpmsOff"
	case EsdModeSet:
		return "ModeSet"
	case EsdAny:
		return "Any"
	default:
		return "Unknown"
	}
}

// Power returns the current power state
func (c *Crtc) Power() PowerState { return c.power }

// IsDisplayEnabled reports whether the screen is powered and not switched
// off by the display controller
func (c *Crtc) IsDisplayEnabled() bool {
	return c.power.DispScreenControl && c.power.DPMS
}

// IsDPMSEnabled reports the DPMS state
func (c *Crtc) IsDPMSEnabled() bool { return c.power.DPMS }

// IsModeSet reports whether a mode has been programmed since DPMS off
func (c *Crtc) IsModeSet() bool { return c.power.ModeSet }

// IsBlankingRequested reports whether the compositor asked for blanking
func (c *Crtc) IsBlankingRequested() bool { return c.power.BlankingRequested }

// WasBlankingRequested reports whether blanking was requested as of the
// last flip
func (c *Crtc) WasBlankingRequested() bool { return c.powerLastFlip.BlankingRequested }

// IsBlack reports whether the last checked frame put nothing on screen
func (c *Crtc) IsBlack() bool { return c.power.Black }

// SetDispScreenControl records the display controller's screen switch
func (c *Crtc) SetDispScreenControl(on bool) { c.power.DispScreenControl = on }

// SetModeSet records whether a mode is programmed
func (c *Crtc) SetModeSet(set bool) {
	c.power.ModeSet = set
	c.framesSinceModeSet = 0
}

// SetBlankingRequested records a blank or unblank request. Unblanking a
// powered down, connected display starts the unblanking latency clock.
func (c *Crtc) SetBlankingRequested(blank bool) {
	if !blank && !c.power.DPMS && c.connected {
		c.unblankingTime = c.env.Clock.Now()
		c.rec.IncEval(checks.CheckUnblankingLatency)
	}
	if blank {
		c.esdStart = time.Time{}
	}
	c.power.BlankingRequested = blank
}

// SetDPMSEnabled records a DPMS change. Enabling completes any ESD
// recovery that has reached the mode set stage; disabling stops the flip
// and vblank watchdogs since nothing is expected of the pipe.
func (c *Crtc) SetDPMSEnabled(enable bool) {
	if enable {
		if c.EsdStateTransition(EsdModeSet, EsdComplete) {
			c.logger.Debug("ESD recovery complete", "display", c.displayIx)
			c.EsdRecoveryEnd("took")
		}
	} else {
		c.powerSinceUnbl.DPMS = false
		c.EsdStateTransition(EsdStarted, EsdDpmsOff)
		c.vblankWD.Stop()
		c.pageFlipWD.Stop()
	}
	c.logger.Debug("DPMS", "display", c.displayIx, "enabled", enable)
	c.power.DPMS = enable
	c.pageFlipsSinceDPMS = 0
}

// SetDPMSInProgress arms the DPMS watchdog while a DPMS call is running
func (c *Crtc) SetDPMSInProgress(inProgress bool) {
	if inProgress {
		c.dpmsWD.Start()
	} else {
		c.dpmsWD.Stop()
	}
}

// IsDPMSInProgress reports whether a DPMS call is running
func (c *Crtc) IsDPMSInProgress() bool { return c.dpmsWD.Running() }

// EsdState returns the ESD recovery state
func (c *Crtc) EsdState() EsdState { return c.esd }

// esdPrev is the state each ESD state is entered from. Started may be
// entered from any state.
var esdPrev = map[EsdState]EsdState{
	EsdStarted:  EsdAny,
	EsdDpmsOff:  EsdStarted,
	EsdModeSet:  EsdDpmsOff,
	EsdComplete: EsdModeSet,
}

// EsdStateTransition moves from one ESD state to another. The move only
// happens when it is one the recovery sequence allows and the current
// state is from, or from is EsdAny. Anything else is ignored.
func (c *Crtc) EsdStateTransition(from, to EsdState) bool {
	prev, ok := esdPrev[to]
	if !ok || (prev != EsdAny && prev != from) {
		c.logger.Debug("ESD state transition ignored", "from", from, "to", to)
		return false
	}
	if from != EsdAny && from != c.esd {
		return false
	}
	c.logger.Debug("ESD state", "from", c.esd, "to", to)
	c.esd = to
	return true
}

// IsEsdRecoveryMode reports whether an ESD recovery is under way
func (c *Crtc) IsEsdRecoveryMode() bool { return c.esd != EsdComplete }

// MarkEsdRecoveryStart starts timing an ESD recovery on an enabled display
func (c *Crtc) MarkEsdRecoveryStart() {
	if c.IsDisplayEnabled() {
		c.esdStart = c.env.Clock.Now()
	}
}

// EsdRecoveryEnd stops timing an ESD recovery, reporting it if it went on
// too long. what describes the outcome for the message.
func (c *Crtc) EsdRecoveryEnd(what string) {
	if c.esdStart.IsZero() {
		return
	}
	d := c.env.Clock.Now().Sub(c.esdStart)
	c.esdStart = time.Time{}
	if d > c.env.Timeouts.EsdRecovery {
		c.rec.Report(checks.CheckEsdRecovery, "ESD Recovery CRTC %d %s %fs", c.id, what, d.Seconds())
	}
}

// PageFlipsSinceDPMS counts one more flip since the last DPMS change and
// returns the count
func (c *Crtc) PageFlipsSinceDPMS() uint32 {
	c.pageFlipsSinceDPMS++
	return c.pageFlipsSinceDPMS
}

// SetDisplayIsBlack records whether the frame just checked showed
// anything, and whether the layer list had content
func (c *Crtc) SetDisplayIsBlack(numTransforms, numLayers int) {
	c.powerLastFlip = c.power
	c.power.Black = numTransforms == 0 || !c.power.DPMS
	c.power.HasContent = numLayers > 1
}
