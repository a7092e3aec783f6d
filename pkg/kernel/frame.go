package kernel

import (
	"image"

	"github.com/emergingrobotics/go-hwcval/pkg/buffer"
	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/display"
	"github.com/emergingrobotics/go-hwcval/pkg/layerlist"
	"github.com/emergingrobotics/go-hwcval/pkg/logparse"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
)

// Dropped frame limits applied when frame counts are reported
const (
	droppedFramesMinFrames    = 50
	maxConsecutiveDropped     = 120
	snapshotsRestoredMinCount = 10
)

// SubmitLayerList queues the layer list the compositor submitted for frame
// of logical display d. It is validated when the frame is next reported
// on screen.
func (k *Kernel) SubmitLayerList(d int, ll *layerlist.List, frame uint32) error {
	if d < 0 || d >= len(k.llq) {
		return ErrUnknownDisplay
	}
	if ll == nil {
		return ErrNilLayerList
	}
	if !k.lock() {
		return ErrClosed
	}
	defer k.mu.Unlock()

	for _, layer := range ll.Layers {
		if layer.Buf != nil {
			layer.Buf.SetLastHwcFrame(k.fn, true)
		}
	}
	k.composeTarget(d, ll)
	k.llq[d].Push(ll, frame)
	k.fn[d] = frame
	return nil
}

// composeTarget records what the framebuffer target of ll was composed
// from: the client composited layers and the skip layers left to the
// client. A target with client layers is flagged for comparison against
// its reference composition. A list holding nothing but skip layers and
// the target, as during a rotation animation, suspends consistency checks
// on the display.
func (k *Kernel) composeTarget(d int, ll *layerlist.List) {
	var (
		target  *buffer.Buffer
		sources []transform.Transform
		sf      int
		skips   int
	)
	for i, layer := range ll.Layers {
		if layer.IsSkip() {
			skips++
		}
		switch {
		case layer.Composition == layerlist.CompositionTarget:
			target = layer.Buf
		case layer.Buf == nil:
		case layer.Composition == layerlist.CompositionSF && !layer.IsSkip():
			sources = append(sources, transform.FromLayer(layer.Buf, uint32(i), layer.Geometry))
			sf++
		case layer.Composition == layerlist.CompositionHWC && layer.IsSkip():
			sources = append(sources, transform.FromLayer(layer.Buf, uint32(i), layer.Geometry))
		}
	}

	k.ledger.AddEval(checks.CheckSkipLayerUsage, uint32(skips))
	if crtc := k.crtcByDisp[d]; crtc != nil {
		n := ll.NumLayers()
		crtc.SetSkipAllLayers(n > 1 && skips == n-1)
	}
	if target == nil {
		return
	}

	combined := sources[:0]
	for _, t := range sources {
		if src := t.Buf.(*buffer.Buffer); src.IsCombinedFrom(target) {
			k.ledger.Report(checks.CheckInternalError, "D%d framebuffer target %s composed from itself", d, target)
			continue
		}
		combined = append(combined, t)
	}

	target.SetSource(transform.SourceSfComp)
	target.SetFbtDisplay(d)
	target.SetAllCombinedFrom(combined)
	if sf > 0 && k.ledger.IsEnabled(checks.CheckSfCompMatchesRef) {
		target.SetToBeCompared(true)
	}
	k.logger.Debug("framebuffer target composed", "display", d, "buffer", target.String(),
		"sources", len(combined), "skip", skips)
}

// RecordBufferState notes a buffer the compositor is using. A buffer
// already known by handle is reused; otherwise a placeholder buffer known
// only by its global name adopts the handle, or a new buffer is made.
func (k *Kernel) RecordBufferState(h buffer.Handle, source transform.SourceType, meta buffer.Meta, globalID uint32) *buffer.Buffer {
	if !k.lock() {
		return nil
	}
	defer k.mu.Unlock()

	buf := k.store.ByHandle(h)
	if buf == nil {
		if named := k.store.ByGlobalID(globalID); named != nil && named.Handle() == 0 {
			buf = named
			k.logger.Debug("buffer handle allocated", "handle", uint64(h), "name", globalID, "buffer", buf.String())
		} else {
			buf = buffer.New(h, source)
			if globalID != 0 {
				k.store.SetGlobalID(buf, globalID)
			}
		}
		buf.SetHandle(h)
		buf.SetBlanking(false)
		k.store.TrackHandle(buf)
	} else {
		buf.SetNew(false)
	}

	if meta != (buffer.Meta{}) {
		buf.SetMeta(meta)
	}
	buf.SetSource(source)
	buf.SetLastHwcFrame(k.fn, false)
	return buf
}

// SetBufferContent stores a copy of the content of the buffer with handle h
// and the reference composition it should match. A nil image leaves the
// stored one unchanged. The pair is compared when the buffer is next put on
// screen, if the buffer is flagged for comparison then. It reports false
// for an unknown handle.
func (k *Kernel) SetBufferContent(h buffer.Handle, cpy, ref image.Image) bool {
	if !k.lock() {
		return false
	}
	defer k.mu.Unlock()

	buf := k.store.ByHandle(h)
	if buf == nil {
		return false
	}
	if cpy != nil {
		buf.SetBufCopy(cpy)
	}
	if ref != nil {
		buf.SetRef(ref)
	}
	return true
}

// ValidateFrame validates the frame last put on screen by crtcID, now that
// nextFrame is about to replace it. A nextFrame of zero means the display
// is being blanked and the outgoing frame can not be checked.
func (k *Kernel) ValidateFrame(crtcID, nextFrame uint32) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	crtc, ok := k.crtcs[crtcID]
	if !ok {
		k.ledger.Report(checks.CheckInvalidCrtc, "Unknown CRTC %d", crtcID)
		return
	}
	k.validateFrame(crtc, nextFrame)
}

// ValidateDrmReleaseTo validates the last frame on the display driven by
// connector before it is released
func (k *Kernel) ValidateDrmReleaseTo(connID uint32) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	c, ok := k.connectors[connID]
	if !ok {
		k.logger.Debug("release of unknown connector", "connector", connID)
		return
	}
	if c.crtc == nil {
		k.logger.Debug("release of connector with no CRTC", "connector", connID)
		return
	}
	if c.crtc.IsConnectedDisplay() {
		k.validateFrame(c.crtc, buffer.UndefinedFrame)
	}
}

func (k *Kernel) validateFrame(crtc *display.Crtc, nextFrame uint32) {
	d := crtc.DisplayIx()
	if d == display.NoDisplay || d >= len(k.currentFrame) {
		k.logger.Debug("CRTC disconnected from compositor, skipping validation", "crtc", crtc.ID())
		return
	}
	defer crtc.PageFlipsSinceDPMS()

	cur := k.currentFrame[d]
	k.currentFrame[d] = nextFrame
	if cur == 0 || cur == buffer.UndefinedFrame {
		return
	}

	src := crtc.SfSrcDisplayIx()
	if src < 0 || src >= len(k.llq) {
		src = d
	}
	// Mosaic fences can not signal twice, and a blanking frame follows
	// suspend, so earlier fences are only expected in the plain case
	expectPrev := !crtc.IsMappedFromOtherDisplay() && nextFrame != 0
	ll := k.llq[src].GetFrame(cur, expectPrev)

	if crtc.DidSetDisplayFail() {
		k.logger.Info("set display failed, skipping validation", "crtc", crtc.ID(), "frame", cur)
		return
	}
	if ll == nil {
		k.logger.Warn("no layer list for frame", "crtc", crtc.ID(), "display", src, "frame", cur)
		return
	}
	if crtc.IsExternalDisplay() {
		k.setExtendedModeExpectation(ll.Video.SingleFullScreen, true, cur)
	}
	if nextFrame > 0 {
		crtc.Checks(ll, k, cur)
	}
}

// setExtendedModeExpectation works out whether the panel should be off
// because a single full screen video is playing on another display, and
// checks the panel's power state against that once it has been stable for
// long enough
func (k *Kernel) setExtendedModeExpectation(singleFullScreenVideo, haveSecondDisplay bool, hwcFrame uint32) {
	d0 := k.crtcByDisp[0]
	if d0 == nil || !d0.IsConnected() {
		k.logger.Warn("no D0, skipping extended mode validation")
		return
	}

	k.requireExtendedMode = singleFullScreenVideo && haveSecondDisplay
	if haveSecondDisplay {
		k.ledger.Configure(func(c *checks.Config) { k.requireEMPanel = c.StableModeExpect() })
	} else {
		k.requireEMPanel = checks.PanelOff
	}

	if k.requireEMPanel != k.lastRequireEMPanel || d0.IsBlankingRequested() || d0.IsDPMSInProgress() {
		k.framesSinceEMPanelChange = 0
		k.lastRequireEMPanel = k.requireEMPanel
	} else {
		k.framesSinceEMPanelChange++
	}

	k.ledger.IncEval(checks.CheckExtendedModePanelControl)
	if !d0.IsDisplayEnabled() && k.crtcByDisp[1] == nil && k.crtcByDisp[2] == nil {
		k.ledger.Report(checks.CheckExtendedModePanelControl,
			"Panel DPMS disabled when no other display active frame:%d", hwcFrame)
	}

	require := checks.PanelDontCare
	if k.framesSinceEMPanelChange > display.ExtendedModeChangeWindow {
		require = k.requireEMPanel
	}
	switch require {
	case checks.PanelOn:
		if !d0.IsBlankingRequested() && !d0.IsDPMSEnabled() && !d0.IsEsdRecoveryMode() {
			k.ledger.Report(checks.CheckExtendedModePanelControl,
				"Panel DPMS Disabled when extended mode not expected and display not blanked frame:%d", hwcFrame)
		}
	case checks.PanelOff:
		if d0.IsDPMSEnabled() {
			k.ledger.Report(checks.CheckExtendedModePanelControl,
				"Extended mode expected but panel not DPMS disabled frame:%d", hwcFrame)
		}
	default:
		k.logger.Debug("extended mode not stable, not validating",
			"frames", k.framesSinceEMPanelChange, "frame", hwcFrame)
	}
}

// IsExtendedModeStable reports whether the panel requirement has held
// long enough for extended mode to be checked
func (k *Kernel) IsExtendedModeStable() bool { return k.framesSinceEMPanelChange > 6 }

func (k *Kernel) IsEMPanelOffRequired() bool { return k.requireEMPanel == checks.PanelOff }
func (k *Kernel) IsEMPanelOffAllowed() bool  { return k.requireEMPanel != checks.PanelOn }

// StableModeExpect returns the panel state the test expects once extended
// mode has settled
func (k *Kernel) StableModeExpect() checks.PanelMode {
	var m checks.PanelMode
	k.ledger.Configure(func(c *checks.Config) { m = c.StableModeExpect() })
	return m
}

// SetSnapshot marks h as the snapshot held on screen during a rotation
// animation. Snapshots seen on consecutive frames extend the same
// rotation.
func (k *Kernel) SetSnapshot(h buffer.Handle, keepCount uint32) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	now := k.fn[0]
	if k.rotationEnd+1 < now {
		k.rotationStart = now
	}
	k.rotationEnd = now
	k.snapshots[h] = k.rotationEnd
	k.logger.Debug("rotation snapshot", "handle", uint64(h), "keep", keepCount,
		"start", k.rotationStart, "end", k.rotationEnd)
}

// IsRotationInProgress reports whether a rotation animation covers frame
func (k *Kernel) IsRotationInProgress(frame uint32) bool {
	return frame >= k.rotationStart && frame <= k.rotationEnd
}

// IsSnapshot reports whether h is a rotation snapshot still current at
// frame. Expired snapshots are forgotten.
func (k *Kernel) IsSnapshot(h buffer.Handle, frame uint32) bool {
	expiry, ok := k.snapshots[h]
	if !ok {
		return false
	}
	if frame <= expiry {
		k.snapshotsRestored++
		return true
	}
	k.logger.Debug("snapshot expired", "handle", uint64(h), "frame", frame, "expiry", expiry)
	delete(k.snapshots, h)
	return false
}

// RecordDroppedFrame counts a frame the compositor chose not to display
func (k *Kernel) RecordDroppedFrame(ev logparse.FrameDropped) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	var crtc *display.Crtc
	if ev.ByCrtc {
		crtc = k.crtcs[ev.Crtc]
	} else if ev.Display >= 0 && ev.Display < len(k.crtcByDisp) {
		crtc = k.crtcByDisp[ev.Display]
	}
	if crtc == nil {
		k.logger.Warn("dropped frame on unknown display", "event", ev.String())
		return
	}
	crtc.RecordDroppedFrames(1)

	if d := crtc.DisplayIx(); d >= 0 && d < len(k.llq) {
		if ll := k.llq[d].GetFrame(ev.Frame, false); ll != nil {
			k.logger.Debug("dropped frame discarded", "display", d, "crtc", crtc.ID(),
				"frame", ev.Frame, "fence", ll.RetireFence.Fd())
		}
	}
}

// SetComposition counts a frame composed by c. SurfaceFlinger is only
// expected when two stage fallback is not available.
func (k *Kernel) SetComposition(c logparse.Composer) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	k.compositions[c]++
	if c == logparse.ComposerSurfaceFlinger {
		k.ledger.Report(checks.CheckSfFallback, "Not required, TwoStageFallback should be used")
	}
}

// CompositionCount returns the number of frames composed by c
func (k *Kernel) CompositionCount(c logparse.Composer) uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.compositions[c]
}

// SetHwcOption records an option value announced by the compositor
func (k *Kernel) SetHwcOption(name, value string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.hwcOptions[name] = value
}

// HwcOption returns an option announced by the compositor
func (k *Kernel) HwcOption(name string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.hwcOptions[name]
	return v, ok
}

// SendFrameCounts records each display's frame and dropped frame counts
// in the result and checks them. clear starts the counts afresh.
func (k *Kernel) SendFrameCounts(clear bool) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()
	k.sendFrameCounts(clear)
}

func (k *Kernel) sendFrameCounts(clear bool) {
	for d, crtc := range k.crtcByDisp {
		if crtc == nil {
			continue
		}
		dropped, consecutive := crtc.DroppedFrameCounts(clear)
		frames := k.fn[d] - k.startFN[d]
		k.ledger.RecordFrames(d, frames, dropped, consecutive)

		k.ledger.IncEval(checks.CheckTooManyDroppedFrames)
		if frames > droppedFramesMinFrames && dropped > frames/2 {
			k.ledger.Report(checks.CheckTooManyDroppedFrames, "Display %d had %d frames dropped out of %d (%d%%)",
				d, dropped, frames, 100*dropped/frames)
		}
		k.ledger.IncEval(checks.CheckTooManyConsecutiveDroppedFrames)
		if consecutive > maxConsecutiveDropped {
			k.ledger.Report(checks.CheckTooManyConsecutiveDroppedFrames,
				"Display %d had %d consecutive dropped frames", d, consecutive)
		}
	}
	if clear {
		k.startFN = k.fn
	}
}

// finalise settles counts that can only be known at the end of a run
func (k *Kernel) finalise() {
	k.ledger.AddEval(checks.CheckSfFallback,
		k.compositions[logparse.ComposerTwoStageFallback]+k.compositions[logparse.ComposerSurfaceFlinger])

	// A final frame still queued should have been displayed
	for d, crtc := range k.crtcByDisp {
		if crtc == nil {
			continue
		}
		if q := k.llq[d]; q.BackFrame() == k.fn[d] && q.BackNeedsValidating() {
			crtc.AddDroppedFrames(1)
			k.logger.Info("final frame dropped", "display", d, "frame", k.fn[d])
		}
	}

	frameCount := k.fn[0] - k.startFN[0]
	if k.snapshotsRestored > snapshotsRestoredMinCount && k.snapshotsRestored > frameCount/1000 {
		k.ledger.Report(checks.CheckTooManySnapshotsRestored, "%d snaphots restored", k.snapshotsRestored)
	}
}
