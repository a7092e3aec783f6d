package kernel

import (
	"math"

	"github.com/emergingrobotics/go-hwcval/pkg/buffer"
	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/display"
	"github.com/emergingrobotics/go-hwcval/pkg/drm"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
)

// CheckGetPlaneResourcesExit records the plane ids returned by
// GETPLANERESOURCES
func (k *Kernel) CheckGetPlaneResourcesExit(planeIDs []uint32) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	for _, id := range planeIDs {
		if _, ok := k.planes[id]; !ok {
			k.planes[id] = display.NewPlane(id, drm.PlaneTypeOverlay)
		}
	}
}

// CheckGetPlaneExit attaches a plane to the single CRTC it can drive. kind
// is the plane's "type" property.
func (k *Kernel) CheckGetPlaneExit(p *drm.ModeGetPlane, kind drm.PlaneType) {
	if p == nil {
		return
	}
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	pipe := 0
	for pipe < drm.MaxPipes && p.PossibleCrtcs&(1<<pipe) == 0 {
		pipe++
	}
	if pipe >= drm.MaxPipes || uint32(1)<<pipe != p.PossibleCrtcs {
		k.ledger.Report(checks.CheckDrmShimFail, "Plane %d mapped to multiple/unknown CRTCs. possible_crtcs=0x%x",
			p.PlaneID, p.PossibleCrtcs)
		return
	}

	plane, ok := k.planes[p.PlaneID]
	if !ok {
		k.logger.Info("GetPlane for plane not in plane resources", "plane", p.PlaneID)
		return
	}
	plane.SetKind(kind)

	crtc := k.createPipe(pipe, 0)
	if crtc == nil {
		return
	}
	switch {
	case plane.IsCursor():
		k.logger.Debug("cursor plane not modelled", "plane", p.PlaneID, "pipe", pipe)
	case kind == drm.PlaneTypePrimary && k.opts.UniversalPlanes:
		crtc.SetMainPlane(plane)
	default:
		crtc.AddPlane(plane)
	}
}

// updateBufferPlane binds the buffer behind fbID to plane, taking the pixel
// format and compression from the framebuffer's creation parameters
func (k *Kernel) updateBufferPlane(fbID uint32, crtc *display.Crtc, plane *display.Plane) *buffer.Buffer {
	plane.SetDsID(int64(fbID))

	k.ledger.IncEval(checks.CheckDrmFbId)
	buf := k.store.ByFbID(fbID)
	if buf != nil {
		if data, ok := buf.FbIDData(fbID); ok {
			plane.SetPixelFormat(data.PixelFormat)
			plane.SetAux(data.HasAuxBuffer, data.AuxPitch, data.AuxOffset)
			plane.SetModifier(data.Modifier)
		}
		buf.SetDsID(int64(fbID))
	} else {
		k.ledger.Report(checks.CheckDrmFbId, "FB %d does not map to any open buffer (crtc %d plane %d)",
			fbID, crtc.ID(), plane.ID())
	}
	plane.SetBuf(buf)
	return buf
}

// mainPlane finds the plane page flips to crtcID are applied to
func (k *Kernel) mainPlane(crtcID uint32) *display.Plane {
	if p, ok := k.planes[crtcID]; ok {
		return p
	}
	if crtc, ok := k.crtcs[crtcID]; ok {
		return crtc.MainPlane()
	}
	return nil
}

// CheckPageFlipEnter records a page flip of fbID onto the main plane of
// crtcID. The buffer's composition is checked once the lock is released.
func (k *Kernel) CheckPageFlipEnter(crtcID, fbID uint32) {
	if !k.lock() {
		return
	}

	c := k.takeComparison(k.pageFlipEnter(crtcID, fbID))
	k.mu.Unlock()

	k.compareAsync(c)
}

func (k *Kernel) pageFlipEnter(crtcID, fbID uint32) *buffer.Buffer {
	k.ledger.IncEval(checks.CheckInvalidCrtc)
	plane := k.mainPlane(crtcID)
	if plane == nil {
		k.ledger.Report(checks.CheckInvalidCrtc, "Unknown CRTC %d", crtcID)
		return nil
	}
	crtc := plane.Crtc()
	if crtc == nil {
		k.ledger.Report(checks.CheckInvalidCrtc, "Could not find a crtc entry for id %d", crtcID)
		return nil
	}

	crtc.IncDrawCount()
	crtc.SetDrmFrame()
	plane.DrmCallStart(k.env.Clock.Now())
	crtc.StartSetDisplayWatchdog()
	k.opts.Stalls.Do(display.StallPageFlip, &k.mu)

	if int64(fbID) == plane.DsID() {
		return nil
	}
	if fbID == 0 {
		plane.SetDsID(0)
		plane.ClearBuf()
		return nil
	}
	if k.store.ByFbID(fbID) == nil {
		plane.SetDsID(int64(fbID))
		plane.ClearBuf()
		return nil
	}

	buf := k.updateBufferPlane(fbID, crtc, plane)
	if buf == nil {
		return nil
	}
	w, h := buf.Width(), buf.Height()
	plane.SetSourceCrop(0, 0, float64(w), float64(h))
	plane.SetDisplayFrame(0, 0, w, h)

	if buf.Handle() != 0 {
		k.ledger.IncEval(checks.CheckMainPlaneFullScreen)
		if w < crtc.Width() || h < crtc.Height() {
			k.ledger.Report(checks.CheckMainPlaneFullScreen,
				"Page flip to crtc %d: %s Size is %dx%d, crtc is %dx%d",
				crtcID, buf, w, h, crtc.Width(), crtc.Height())
		}
	}
	return buf
}

// CheckPageFlipExit records the outcome of a page flip
func (k *Kernel) CheckPageFlipExit(crtcID, fbID uint32, ret int) {
	k.ledger.IncEval(checks.CheckDrmCallSuccess)
	if ret != 0 {
		k.ledger.Report(checks.CheckDrmCallSuccess, "Page flip failed to crtc %d (status %d)", crtcID, ret)
	}

	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	plane := k.mainPlane(crtcID)
	if plane == nil || plane.Crtc() == nil {
		return
	}
	crtc := plane.Crtc()

	if d := plane.DrmCallDuration(k.env.Clock.Now()); d > DrmCallDurationWarning {
		k.logger.Warn("slow page flip", "crtc", crtcID, "fb", fbID,
			"ms", float64(d.Microseconds())/1000)
	}
	crtc.SetDrmFrame()
	crtc.StopSetDisplayWatchdog()
	if ret == 0 {
		crtc.StartPageFlipWatchdog()
	}
}

// CheckSetPlaneEnter records a SETPLANE. Geometry is in 16.16 fixed point
// for the source and whole pixels for the destination.
func (k *Kernel) CheckSetPlaneEnter(sp *drm.ModeSetPlane) {
	if sp == nil {
		return
	}
	if !k.lock() {
		return
	}

	c := k.takeComparison(k.setPlaneEnter(sp))
	k.mu.Unlock()

	k.compareAsync(c)
}

func (k *Kernel) setPlaneEnter(sp *drm.ModeSetPlane) *buffer.Buffer {
	k.ledger.IncEval(checks.CheckPlaneIdInvalidForCrtc)
	plane, ok := k.planes[sp.PlaneID]
	if !ok {
		k.ledger.Report(checks.CheckPlaneIdInvalidForCrtc, "Unknown plane %d", sp.PlaneID)
		return nil
	}
	crtc := plane.Crtc()
	if crtc == nil {
		k.ledger.Report(checks.CheckPlaneIdInvalidForCrtc, "No entry for crtc %d on plane %d", sp.CrtcID, sp.PlaneID)
		return nil
	}
	if crtc.ID() != sp.CrtcID {
		k.ledger.Report(checks.CheckPlaneIdInvalidForCrtc, "Plane %d sent to wrong CRTC %d (should be %d)",
			sp.PlaneID, sp.CrtcID, crtc.ID())
		return nil
	}

	crtc.IncDrawCount()
	crtc.SetDrmFrame()
	plane.DrmCallStart(k.env.Clock.Now())
	k.opts.Stalls.Do(display.StallSetPlane, &k.mu)

	srcX, srcY := drm.Fixed16(sp.SrcX), drm.Fixed16(sp.SrcY)
	w, h := drm.Fixed16(sp.SrcW), drm.Fixed16(sp.SrcH)
	place := func() {
		plane.SetSourceCrop(srcX, srcY, w, h)
		plane.SetDisplayFrame(sp.CrtcX, sp.CrtcY, sp.CrtcW, sp.CrtcH)
	}

	if int64(sp.FbID) == plane.DsID() {
		place()
		return nil
	}
	if sp.FbID == 0 {
		plane.SetDsID(0)
		plane.ClearBuf()
		return nil
	}

	buf := k.updateBufferPlane(sp.FbID, crtc, plane)
	if buf != nil && !buf.IsBlanking() && !buf.IsBlack() {
		k.ledger.IncEval(checks.CheckBufferTooSmall)
		if w > float64(buf.Width()) || h > float64(buf.Height()) {
			k.ledger.Report(checks.CheckBufferTooSmall, "Plane %d %s (alloc %dx%d) Crop %fx%f Display %dx%d",
				sp.PlaneID, buf, buf.Width(), buf.Height(), w, h, sp.CrtcW, sp.CrtcH)
		}

		if k.env.Device == display.DeviceBroxton {
			crtc.BroxtonPlaneValidation(plane, "Plane", sp.PlaneID, w, h, sp.CrtcW, sp.CrtcH,
				plane.Transform().Rotation)
		} else {
			k.ledger.IncEval(checks.CheckDisplayCropEqualDisplayFrame)
			if math.Abs(w-float64(sp.CrtcW)) > 1 || math.Abs(h-float64(sp.CrtcH)) > 1 {
				k.ledger.Report(checks.CheckDisplayCropEqualDisplayFrame,
					"Plane %d %s Crop %fx%f Display %dx%d: this plane can not scale",
					sp.PlaneID, buf, w, h, sp.CrtcW, sp.CrtcH)
			}
		}
	}
	place()
	return buf
}

// CheckSetPlaneExit records the outcome of a SETPLANE
func (k *Kernel) CheckSetPlaneExit(sp *drm.ModeSetPlane, ret int) {
	if sp == nil {
		return
	}
	k.ledger.IncEval(checks.CheckDrmCallSuccess)
	if ret != 0 {
		k.ledger.Report(checks.CheckDrmCallSuccess, "SetPlane failed to plane %d (status %d)", sp.PlaneID, ret)
	}

	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	plane, ok := k.planes[sp.PlaneID]
	if !ok || plane.Crtc() == nil {
		return
	}
	if d := plane.DrmCallDuration(k.env.Clock.Now()); d > DrmCallDurationWarning {
		k.logger.Warn("slow set plane", "plane", sp.PlaneID,
			"ms", float64(d.Microseconds())/1000)
	}
	plane.Crtc().SetDrmFrame()
}

// CheckSetPlaneRotation records a change of a plane's rotation property
func (k *Kernel) CheckSetPlaneRotation(planeID uint32, rotation uint64) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	k.ledger.IncEval(checks.CheckIoctlParameters)
	plane, ok := k.planes[planeID]
	if !ok {
		k.ledger.Report(checks.CheckIoctlParameters, "SetPlaneRotation: plane %d unknown", planeID)
		return
	}
	id, ok := transform.FromDrmRotation(uint32(rotation))
	if !ok {
		k.ledger.Report(checks.CheckIoctlParameters, "SetPlaneRotation: plane %d invalid rotation 0x%x",
			planeID, rotation)
		return
	}
	plane.SetRotation(id)
	plane.SetRedrawExpected(true)
	if crtc := plane.Crtc(); crtc != nil {
		crtc.SetDrmFrame()
	}
}

// CheckVBlankRequest records a request for a vblank event on crtcID and
// arms the vblank watchdog
func (k *Kernel) CheckVBlankRequest(crtcID uint32) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	crtc, ok := k.crtcs[crtcID]
	if !ok {
		k.logger.Debug("vblank request for unknown CRTC", "crtc", crtcID)
		return
	}
	if crtc.VBlankRequested() {
		k.logger.Debug("vblank already requested", "crtc", crtcID)
	}
}

// CheckVBlank records a vblank on crtcID. seq is the vblank sequence, or
// zero to advance by one.
func (k *Kernel) CheckVBlank(crtcID, seq uint32) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	crtc, ok := k.crtcs[crtcID]
	if !ok {
		k.logger.Debug("vblank for unknown CRTC", "crtc", crtcID)
		return
	}
	crtc.VBlank(seq)
}

// CheckPageFlipEvent records the completion event of a page flip, which
// signals the retire fence of the flipped frame
func (k *Kernel) CheckPageFlipEvent(crtcID uint32) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	crtc, ok := k.crtcs[crtcID]
	if !ok {
		k.logger.Debug("page flip event for unknown CRTC", "crtc", crtcID)
		return
	}
	crtc.NotifyRetireFence()
}
