package kernel

import (
	"time"

	"github.com/emergingrobotics/go-hwcval/pkg/buffer"
	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/display"
	"github.com/emergingrobotics/go-hwcval/pkg/drm"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
	"github.com/emergingrobotics/go-hwcval/pkg/work"
)

// Buffers of this size, seen before any content, are taken to be the
// compositor's empty placeholder rather than a blanking buffer
const (
	emptyBufferWidth  = 16
	emptyBufferHeight = 16
)

// The ioctl entry points below can arrive on any thread at any time, so
// they never take the kernel lock. They queue work applied by the next
// caller that does.

// CheckAddFB queues the creation of a framebuffer. Failed calls are only
// logged.
func (k *Kernel) CheckAddFB(fd int, fb *drm.ModeFbCmd2, ret int) {
	if fb == nil {
		return
	}
	if ret != 0 || fb.FbID == 0 {
		k.logger.Warn("drmModeAddFB failed to allocate FB ID",
			"boHandle", fb.Handles[0], "fb", fb.FbID, "status", ret)
		return
	}

	it := work.AddFb{
		Fd:          fd,
		BoHandle:    fb.Handles[0],
		FbID:        fb.FbID,
		Width:       fb.Width,
		Height:      fb.Height,
		PixelFormat: fb.PixelFormat,
		Modifier:    fb.Modifier[0],
	}
	if fb.Flags&drm.FbAuxPlane != 0 {
		it.HasAuxBuffer = true
		it.AuxPitch = fb.Pitches[1]
		it.AuxOffset = fb.Offsets[1]
		it.Modifier = fb.Modifier[1]
	}
	k.work.Push(it)
}

// CheckRmFB queues the removal of a framebuffer
func (k *Kernel) CheckRmFB(fd int, fbID uint32) {
	k.work.Push(work.RmFb{Fd: fd, FbID: fbID})
}

// CheckGemOpen queues the opening of global name id as BO (fd, bo)
func (k *Kernel) CheckGemOpen(fd int, id, bo uint32) {
	k.work.Push(work.GemOpen{Fd: fd, ID: id, BoHandle: bo})
}

// CheckGemClose queues the closing of a BO
func (k *Kernel) CheckGemClose(fd int, bo uint32) {
	k.work.Push(work.GemClose{Fd: fd, BoHandle: bo})
}

// CheckGemCreate queues the creation of a BO
func (k *Kernel) CheckGemCreate(fd int, bo uint32) {
	k.work.Push(work.GemCreate{Fd: fd, BoHandle: bo})
}

// CheckGemWait records a GEM_WAIT. Only a failed wait is queued; the GEM
// wait stall, if configured, runs afterwards.
func (k *Kernel) CheckGemWait(fd int, bo uint32, status int32, delay time.Duration) {
	k.ledger.IncEval(checks.CheckDrmIoctlGemWaitLatency)
	if status != 0 {
		k.work.Push(work.GemWait{Fd: fd, BoHandle: bo, Status: status, Delay: delay})
	}
	k.opts.Stalls.Do(display.StallGemWait, nil)
}

// CheckPrime queues a PRIME handle conversion
func (k *Kernel) CheckPrime(fd int, bo uint32, dmaFd int) {
	k.work.Push(work.Prime{Fd: fd, BoHandle: bo, DmaHandle: dmaFd})
}

// CheckBufferFree queues the buffer manager's release of a native handle
func (k *Kernel) CheckBufferFree(h buffer.Handle) {
	k.work.Push(work.BufferFree{Handle: h})
}

// DoAddFb binds a framebuffer id to the buffer behind its BO. A BO seen
// for the first time gets a placeholder buffer that later calls fill in.
func (k *Kernel) DoAddFb(it work.AddFb) {
	data := buffer.FbIDData{
		PixelFormat:  it.PixelFormat,
		HasAuxBuffer: it.HasAuxBuffer,
		AuxPitch:     it.AuxPitch,
		AuxOffset:    it.AuxOffset,
		Modifier:     it.Modifier,
	}

	var buf *buffer.Buffer
	if bo := k.store.BOs().Lookup(it.Fd, it.BoHandle); bo != nil {
		buf = bo.Buffer()
		if buf == nil {
			buf = buffer.New(0, transform.SourceInput)
			if it.Width == emptyBufferWidth && it.Height == emptyBufferHeight {
				buf.SetBlack(true)
			} else {
				buf.SetBlanking(true)
			}
			buf.AddBo(bo)
			k.logger.Debug("AddFB to BO with no buffer", "fb", it.FbID, "bo", bo.String(), "buffer", buf.String())
		}
	} else {
		buf = buffer.New(0, transform.SourceInput)
		k.store.Attach(it.Fd, it.BoHandle, buf)
		k.logger.Debug("AddFB to new BO", "fb", it.FbID, "fd", it.Fd, "boHandle", it.BoHandle)
	}

	if buf.Meta() == (buffer.Meta{}) {
		buf.SetMeta(buffer.Meta{Width: it.Width, Height: it.Height, Format: it.PixelFormat})
	}
	k.store.BindFbID(buf, it.FbID, data)
}

// DoRmFb unbinds a framebuffer id. The BO may already have gone.
func (k *Kernel) DoRmFb(it work.RmFb) {
	if buf, ok := k.store.UnbindFbID(it.FbID); ok {
		k.logger.Debug("drmModeRmFB", "fb", it.FbID, "buffer", buf.String())
		return
	}
	k.logger.Warn("drmModeRmFB: unknown FB ID", "fb", it.FbID)
}

// DoGemOpen associates BO (fd, handle) with the buffer carrying the global
// name, creating a blanking placeholder for a name not seen before
func (k *Kernel) DoGemOpen(it work.GemOpen) {
	if it.BoHandle == 0 {
		return
	}
	buf := k.store.ByGlobalID(it.ID)

	if bo := k.store.BOs().Lookup(it.Fd, it.BoHandle); bo != nil {
		if old := bo.Buffer(); old != nil {
			if old.GlobalID() == it.ID {
				return
			}
			k.logger.Debug("GEM_OPEN moves BO", "bo", bo.String(), "from", old.String(), "name", it.ID)
			old.RemoveBo(bo)
			if buf != nil {
				buf.AddBo(bo)
				return
			}
		}
	}

	if buf != nil {
		k.store.Attach(it.Fd, it.BoHandle, buf)
		k.logger.Debug("GEM_OPEN", "name", it.ID, "fd", it.Fd, "boHandle", it.BoHandle, "buffer", buf.String())
		return
	}

	buf = buffer.New(0, transform.SourceInput)
	buf.SetLastHwcFrame(k.fn, false)
	buf.SetBlanking(true)
	k.store.Attach(it.Fd, it.BoHandle, buf)
	k.store.SetGlobalID(buf, it.ID)
	k.logger.Debug("GEM_OPEN handle not yet allocated", "name", it.ID, "fd", it.Fd, "boHandle", it.BoHandle)
}

// DoGemClose forgets a BO. A buffer left with no BOs loses its global name.
func (k *Kernel) DoGemClose(it work.GemClose) {
	k.store.BOs().Remove(it.Fd, it.BoHandle)
}

// DoGemCreate gives a new BO a blanking placeholder buffer
func (k *Kernel) DoGemCreate(it work.GemCreate) {
	if bo := k.store.BOs().Lookup(it.Fd, it.BoHandle); bo != nil {
		k.logger.Debug("GEM_CREATE of existing BO", "bo", bo.String())
		return
	}
	buf := buffer.New(0, transform.SourceInput)
	buf.SetBlanking(true)
	k.store.Attach(it.Fd, it.BoHandle, buf)
}

// DoGemWait reports a GEM_WAIT that did not complete
func (k *Kernel) DoGemWait(it work.GemWait) {
	if it.BoHandle == 0 {
		return
	}
	secs := it.Delay.Seconds()
	bo := k.store.BOs().Lookup(it.Fd, it.BoHandle)
	switch {
	case bo == nil:
		k.ledger.Report(checks.CheckDrmIoctlGemWaitLatency, "Timeout %fs waiting for unknown boHandle 0x%x",
			secs, it.BoHandle)
	case bo.Buffer() == nil:
		k.ledger.Report(checks.CheckDrmIoctlGemWaitLatency,
			"Timeout %fs waiting for buffer object %s (unknown buffer, error %d)", secs, bo, it.Status)
	default:
		buf := bo.Buffer()
		k.ledger.Report(checks.CheckDrmIoctlGemWaitLatency,
			"Timeout %fs waiting for %s boHandle 0x%x buffer %s (error %d)",
			secs, buf.Source(), it.BoHandle, buf, it.Status)
	}
}

// DoPrime needs no model change; PRIME handles are tracked through
// GEM_OPEN
func (k *Kernel) DoPrime(it work.Prime) {
	k.logger.Debug("prime", "fd", it.Fd, "boHandle", it.BoHandle, "dmaHandle", it.DmaHandle)
}

// DoBufferFree forgets a native handle and every BO of its buffer
func (k *Kernel) DoBufferFree(it work.BufferFree) {
	buf := k.store.ForgetHandle(it.Handle)
	if buf == nil {
		k.logger.Info("free of unknown buffer handle", "handle", uint64(it.Handle))
		return
	}
	k.logger.Debug("buffer freed", "buffer", buf.String())
	for _, bo := range append([]*buffer.BO(nil), buf.Bos()...) {
		k.store.BOs().Remove(bo.Fd, bo.Handle)
	}
}
