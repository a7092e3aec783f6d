package display

import (
	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
)

// ExtendedModeChangeWindow is the number of frames after a mode list
// change during which the mode is treated as still settling
const ExtendedModeChangeWindow = 4

// IncDrawCount counts one more DRM update since the last retire fence
func (c *Crtc) IncDrawCount() uint32 {
	c.drawCount++
	return c.drawCount
}

// DrawCount is the number of DRM updates since the last retire fence
func (c *Crtc) DrawCount() uint32 { return c.drawCount }

// ResetDrawCount zeroes the DRM update count
func (c *Crtc) ResetDrawCount() { c.drawCount = 0 }

// SetDrmFrame notes that a DRM update was made during the current vblank
// period, extending the span of periods touched by this frame's updates
func (c *Crtc) SetDrmFrame() {
	if c.drmStartFrame == 0 {
		c.drmStartFrame = c.frame
	}
	c.drmEndFrame = c.frame
}

// IsFlickerDetected reports whether this frame's DRM updates spanned a
// vblank
func (c *Crtc) IsFlickerDetected() bool { return c.drmStartFrame != c.drmEndFrame }

// DrmFrames returns the first and last vblank periods touched by DRM
// updates for this frame
func (c *Crtc) DrmFrames() (start, end uint32) { return c.drmStartFrame, c.drmEndFrame }

// ConfirmNewFrame closes the span of DRM updates belonging to the frame
// just checked. Updates already made for a later period are kept.
func (c *Crtc) ConfirmNewFrame(frame uint32) {
	if c.drmEndFrame > frame {
		c.drmStartFrame = frame
	} else {
		c.drmStartFrame = 0
		c.drmEndFrame = 0
	}
}

// ClearMaxFifo notes that more than one plane is active, which takes the
// pipe out of max FIFO mode
func (c *Crtc) ClearMaxFifo() { c.maxFifo = false }

// HasLeftMaxFifo reports whether this frame moved the pipe out of max FIFO
// mode
func (c *Crtc) HasLeftMaxFifo() bool { return c.wasMaxFifo && !c.maxFifo }

// flickerClassify notes the plane's colour depth, remembering a plane
// whose depth changed
func (c *Crtc) flickerClassify(p *Plane, bpp int) {
	c.activePlanes++
	old := p.Bpp()
	p.SetBpp(bpp)
	if old == 0 {
		c.drmStartFrame = c.drmEndFrame
	} else if old != bpp {
		c.logger.Debug("plane colour depth changed", "plane", p.ID(), "from", old, "to", bpp)
		c.bppChange = p
	}
}

// FlickerChecks reports DRM updates that spanned a vblank, classified by
// the most likely cause
func (c *Crtc) FlickerChecks() {
	if c.activePlanes > 1 {
		c.ClearMaxFifo()
	}

	c.rec.IncEval(checks.CheckFlickerMaxFifo)
	c.rec.IncEval(checks.CheckFlickerClrDepth)
	c.rec.IncEval(checks.CheckFlicker)

	if !c.IsFlickerDetected() {
		return
	}
	switch {
	case c.HasLeftMaxFifo():
		c.rec.Report(checks.CheckFlickerMaxFifo, "DRM calls span VSync (frame %d-%d) on crtc %d",
			c.drmStartFrame, c.drmEndFrame, c.id)
	case c.bppChange != nil:
		c.rec.Report(checks.CheckFlickerClrDepth, "DRM calls span VSync (frame %d-%d) on crtc %d, colour depth change plane %d",
			c.drmStartFrame, c.drmEndFrame, c.id, c.bppChange.ID())
	default:
		c.rec.Report(checks.CheckFlicker, "DRM calls span VSync (frame %d-%d) on crtc %d",
			c.drmStartFrame, c.drmEndFrame, c.id)
	}
}

// clearDrawnList starts a new frame's record of what is on screen,
// settling the dropped frame count for the previous one
func (c *Crtc) clearDrawnList() {
	c.transforms = c.transforms[:0]
	c.updateDroppedFrameCounts(c.droppedFrame)
	c.droppedFrame = false
	c.bppChange = nil
	c.activePlanes = 0
	c.wasMaxFifo = c.maxFifo
	c.maxFifo = true
}

// SetDroppedFrame marks the frame being checked as dropped
func (c *Crtc) SetDroppedFrame() { c.droppedFrame = true }

// IsDroppedFrame reports whether the frame being checked was dropped
func (c *Crtc) IsDroppedFrame() bool { return c.droppedFrame }

// AddDroppedFrames counts frames the compositor chose not to display
func (c *Crtc) AddDroppedFrames(n uint32) {
	c.dropped += n
	c.consecutive += n
}

// RecordDroppedFrames counts dropped frames, ignoring those in the first
// flips after a DPMS change
func (c *Crtc) RecordDroppedFrames(n uint32) {
	if n == 0 {
		return
	}
	if c.pageFlipsSinceDPMS <= 2 {
		c.logger.Info("ignoring dropped frames after DPMS",
			"dropped", n, "display", c.displayIx, "flips", c.pageFlipsSinceDPMS)
		return
	}
	c.logger.Info("frames dropped", "dropped", n, "display", c.displayIx)
	c.AddDroppedFrames(n)
}

func (c *Crtc) updateDroppedFrameCounts(dropped bool) {
	if dropped {
		c.logger.Debug("dropped frame detected by consistency checking")
		c.dropped++
		c.consecutive++
	}
	if c.consecutive > c.maxConsecutive {
		c.maxConsecutive = c.consecutive
	}
	if !dropped {
		c.consecutive = 0
	}
}

// ResetConsecutiveDroppedFrames ends a run of dropped frames
func (c *Crtc) ResetConsecutiveDroppedFrames() { c.updateDroppedFrameCounts(false) }

// DroppedFrameCounts returns the total and longest run of dropped frames.
// clear starts the counts afresh.
func (c *Crtc) DroppedFrameCounts(clear bool) (dropped, maxConsecutive uint32) {
	if c.consecutive > c.maxConsecutive {
		c.maxConsecutive = c.consecutive
	}
	dropped, maxConsecutive = c.dropped, c.maxConsecutive
	c.consecutive = 0
	if clear {
		c.dropped = 0
		c.maxConsecutive = 0
		c.pfModeCount = [NumPanelFitterModes]uint32{}
	}
	return dropped, maxConsecutive
}

// setVideoLayer remembers the first video layer of the frame, behind
// which layers may be legitimately dropped as transparent
func (c *Crtc) setVideoLayer(ix int, df transform.Rect) {
	c.videoLayerIndex = ix
	c.videoDF = df
}
