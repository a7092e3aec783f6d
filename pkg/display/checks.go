package display

import (
	"github.com/emergingrobotics/go-hwcval/pkg/buffer"
	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/layerlist"
)

// Kernel is what frame checks need to know about the wider test state
type Kernel interface {
	// IsRotationInProgress reports whether a rotation animation covers
	// frame, making geometry comparison meaningless
	IsRotationInProgress(frame uint32) bool

	// IsSnapshot reports whether h is the snapshot shown during a rotation
	// animation at frame
	IsSnapshot(h buffer.Handle, frame uint32) bool

	IsExtendedModeStable() bool
	IsEMPanelOffRequired() bool
	IsEMPanelOffAllowed() bool
	StableModeExpect() checks.PanelMode
}

// Checks validates what the CRTC put on screen for hwcFrame against ll,
// the layer list the compositor submitted for that frame
func (c *Crtc) Checks(ll *layerlist.List, k Kernel, hwcFrame uint32) {
	c.validatedFrames++
	c.lastDisplayedFrame = hwcFrame
	c.pfModeCount[c.pfMode]++

	if ll == nil || ll.NumLayers() == 0 {
		c.ConfirmNewFrame(c.frame)
		return
	}

	c.clearDrawnList()
	for _, p := range c.planes {
		c.rec.IncEval(checks.CheckSetPlaneNeededAfterRotate)
		if p.RedrawExpected() {
			c.rec.Report(checks.CheckSetPlaneNeededAfterRotate, "plane %d", p.ID())
			p.SetRedrawExpected(false)
		}

		buf := p.Buf()
		if buf == nil {
			continue
		}
		p.Transform().SetPlaneOrder(p.ZOrder())
		c.flickerClassify(p, buf.Bpp())
		c.transforms = p.Expand(c.transforms, c.rec)
		p.ValidateFormat(c.rec)
	}

	c.FlickerChecks()
	c.ConfirmNewFrame(c.frame)
	c.framesSinceModeChange++
	c.framesSinceModeSet++

	if c.displayIx > 0 && k.IsExtendedModeStable() && c.drawCount > 0 {
		c.ExtendedModeChecks(k)
	}
	if c.displayIx > 0 || !k.IsEMPanelOffRequired() {
		c.ConsistencyChecks(ll, k, hwcFrame)
	}
}

// ExtendedModeChecks compares the test's expectation of the panel state in
// extended mode with what the compositor's state implies
func (c *Crtc) ExtendedModeChecks(k Kernel) {
	c.rec.IncEval(checks.CheckExtendedModeExpectation)

	switch k.StableModeExpect() {
	case checks.PanelOff:
		if !k.IsEMPanelOffAllowed() {
			c.rec.Report(checks.CheckExtendedModeExpectation,
				"Test expects panel to be disabled, but MDS state combined with layer list contents is not consistent with this")
		}
	case checks.PanelOn:
		if k.IsEMPanelOffRequired() {
			c.rec.Report(checks.CheckExtendedModeExpectation,
				"Test expects panel to be enabled, but MDS state combined with layer list contents suggests it should be turned off")
		}
	}
}
