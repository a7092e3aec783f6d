package buffer

import (
	"fmt"
	"image"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/drm"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
)

// UndefinedFrame marks a display slot with no frame number
const UndefinedFrame = 0xffffffff

// FrameNums holds one frame number per display
type FrameNums [drm.MaxCrtcs]uint32

func (f FrameNums) String() string {
	parts := make([]string, len(f))
	for i, n := range f {
		parts[i] = fmt.Sprint(int32(n))
	}
	return strings.Join(parts, ".")
}

// Handle is a native buffer handle. Zero means none.
type Handle uint64

// FbIDData is the metadata a framebuffer id was created with
type FbIDData struct {
	PixelFormat  uint32
	HasAuxBuffer bool
	AuxPitch     uint32
	AuxOffset    uint32
	Modifier     uint64
}

// Meta describes the allocation behind a buffer
type Meta struct {
	Width  uint32
	Height uint32
	Format uint32
	Usage  uint32
	Pitch  uint32
}

var (
	nextID       atomic.Uint64
	numBufCopies atomic.Int32
)

// Buffer is the validator's model of one graphics buffer. It may be known
// through several BOs and several framebuffer ids at once, and may itself
// be the result of composing other buffers.
//
// A Buffer is not safe for concurrent use; callers hold the kernel lock.
// The comparison flag is the exception and may be tested from any goroutine.
type Buffer struct {
	id     uint64
	handle Handle
	meta   Meta

	bos      []*BO
	dsID     int64
	globalID uint32

	isNew      bool
	used       bool
	blanking   bool
	black      bool
	source     transform.SourceType
	fbtDisplay int

	transparentFromHarness bool
	content                Content

	fbIDs        map[uint32]FbIDData
	combinedFrom []transform.Transform

	lastHwcFrame   FrameNums
	lastOnSetFrame FrameNums

	ref             image.Image
	cpy             image.Image
	toBeCompared    atomic.Bool
	appearanceCount uint32

	logger *slog.Logger
}

var _ transform.Source = (*Buffer)(nil)

// New creates a buffer for handle, which may be zero
func New(handle Handle, source transform.SourceType) *Buffer {
	b := &Buffer{
		id:         nextID.Add(1),
		handle:     handle,
		isNew:      true,
		source:     source,
		fbtDisplay: -1,
		fbIDs:      make(map[uint32]FbIDData),
	}
	for i := range b.lastHwcFrame {
		b.lastHwcFrame[i] = 0xfffffffe
	}
	return b
}

// ID is a process-unique number used to identify the buffer in logs
func (b *Buffer) ID() uint64 { return b.id }

// Handle returns the native handle, zero if none
func (b *Buffer) Handle() Handle { return b.handle }

// SetHandle gives a buffer first seen through its BO the native handle it
// is later presented with
func (b *Buffer) SetHandle(h Handle) { b.handle = h }

// Meta returns the allocation metadata
func (b *Buffer) Meta() Meta { return b.meta }

// SetMeta sets the allocation metadata
func (b *Buffer) SetMeta(m Meta) { b.meta = m }

// Width returns the allocation width
func (b *Buffer) Width() uint32 { return b.meta.Width }

// Height returns the allocation height
func (b *Buffer) Height() uint32 { return b.meta.Height }

// Format returns the DRM pixel format
func (b *Buffer) Format() uint32 { return b.meta.Format }

// AddBo attaches bo to this buffer, detaching it from any previous one.
// Adding a BO already held is a no-op.
func (b *Buffer) AddBo(bo *BO) {
	if bo.buf == b && b.HasBo(bo) {
		return
	}
	if bo.buf != nil && bo.buf != b {
		bo.buf.RemoveBo(bo)
	}
	if !b.HasBo(bo) {
		b.bos = append(b.bos, bo)
	}
	bo.buf = b
}

// RemoveBo detaches bo. Returns false if the buffer did not hold it.
func (b *Buffer) RemoveBo(bo *BO) bool {
	for i, held := range b.bos {
		if held == bo {
			b.bos = append(b.bos[:i], b.bos[i+1:]...)
			if bo.buf == b {
				bo.buf = nil
			}
			return true
		}
	}
	b.log().Debug("remove of buffer object not held", "bo", bo.String(), "buffer", b.String())
	return false
}

// RemoveBoKey detaches the BO opened as (fd, handle)
func (b *Buffer) RemoveBoKey(fd int, handle uint32) bool {
	for _, held := range b.bos {
		if held.Fd == fd && held.Handle == handle {
			return b.RemoveBo(held)
		}
	}
	b.log().Debug("remove of buffer object not held",
		"bo", Key{Fd: fd, Handle: handle}.String(), "buffer", b.String())
	return false
}

// SetLogger sets where the buffer logs. The default logger is used until
// one is set.
func (b *Buffer) SetLogger(logger *slog.Logger) { b.logger = logger }

func (b *Buffer) log() *slog.Logger {
	if b.logger == nil {
		return slog.Default()
	}
	return b.logger
}

// HasBo reports whether bo is attached
func (b *Buffer) HasBo(bo *BO) bool {
	for _, held := range b.bos {
		if held == bo {
			return true
		}
	}
	return false
}

// Bos returns the attached BOs. The slice must not be modified.
func (b *Buffer) Bos() []*BO { return b.bos }

// OpenCount is the number of attached BOs
func (b *Buffer) OpenCount() int { return len(b.bos) }

// IsOpen reports whether any BO is attached
func (b *Buffer) IsOpen() bool { return len(b.bos) > 0 }

func (b *Buffer) SetNew(isNew bool) { b.isNew = isNew }
func (b *Buffer) IsNew() bool       { return b.isNew }

func (b *Buffer) SetUsed(used bool) { b.used = used }
func (b *Buffer) IsUsed() bool      { return b.used }

func (b *Buffer) SetBlanking(blanking bool) { b.blanking = blanking }
func (b *Buffer) IsBlanking() bool          { return b.blanking }

func (b *Buffer) SetBlack(black bool) { b.black = black }
func (b *Buffer) IsBlack() bool       { return b.black }

// SetSource sets where the buffer content comes from
func (b *Buffer) SetSource(source transform.SourceType) { b.source = source }

// Source returns where the buffer content comes from
func (b *Buffer) Source() transform.SourceType { return b.source }

// IsCompositionTarget reports whether the buffer was written by a composer
// rather than supplied as an input
func (b *Buffer) IsCompositionTarget() bool {
	return b.source != transform.SourceInput && b.source != transform.SourceHwc
}

// SetFbtDisplay marks the buffer as the framebuffer target of a display
func (b *Buffer) SetFbtDisplay(display int) { b.fbtDisplay = display }

// IsFbt reports whether the buffer is a framebuffer target
func (b *Buffer) IsFbt() bool { return b.fbtDisplay >= 0 }

// FbtDisplay returns the display the buffer is framebuffer target for, or -1
func (b *Buffer) FbtDisplay() int { return b.fbtDisplay }

// SetDsID sets the device-specific id
func (b *Buffer) SetDsID(id int64) { b.dsID = id }

// DsID returns the device-specific id
func (b *Buffer) DsID() int64 { return b.dsID }

// SetGlobalID sets the flink/prime name. Zero clears it.
func (b *Buffer) SetGlobalID(id uint32) { b.globalID = id }

// GlobalID returns the flink/prime name, zero if none
func (b *Buffer) GlobalID() uint32 { return b.globalID }

// AddFbID binds a framebuffer id with its metadata
func (b *Buffer) AddFbID(fbID uint32, data FbIDData) {
	b.fbIDs[fbID] = data
}

// RemoveFbID unbinds a framebuffer id. Returns false if it was not bound.
func (b *Buffer) RemoveFbID(fbID uint32) bool {
	if _, ok := b.fbIDs[fbID]; !ok {
		return false
	}
	delete(b.fbIDs, fbID)
	return true
}

// FbIDData returns the metadata for fbID
func (b *Buffer) FbIDData(fbID uint32) (FbIDData, bool) {
	d, ok := b.fbIDs[fbID]
	return d, ok
}

// PixelFormat returns the pixel format fbID was created with, or 0
func (b *Buffer) PixelFormat(fbID uint32) uint32 {
	return b.fbIDs[fbID].PixelFormat
}

// FbIDs returns the bound framebuffer ids in ascending order
func (b *Buffer) FbIDs() []uint32 {
	ids := make([]uint32, 0, len(b.fbIDs))
	for id := range b.fbIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NumFbIDs is the number of bound framebuffer ids
func (b *Buffer) NumFbIDs() int { return len(b.fbIDs) }

// Bpp is the bits per pixel of the buffer format
func (b *Buffer) Bpp() int { return drm.Bpp(b.meta.Format) }

// IsVideoFormat reports whether the buffer holds decoded video
func (b *Buffer) IsVideoFormat() bool { return drm.IsVideoFormat(b.meta.Format) }

// IsNV12Format reports whether the buffer is NV12
func (b *Buffer) IsNV12Format() bool { return drm.IsNV12Format(b.meta.Format) }

// FormatHasPixelAlpha reports whether the buffer format has an alpha channel
func (b *Buffer) FormatHasPixelAlpha() bool { return drm.FormatHasPixelAlpha(b.meta.Format) }

// AddCombinedFrom appends a child transform to the composition history
func (b *Buffer) AddCombinedFrom(t transform.Transform) {
	b.combinedFrom = append(b.combinedFrom, t)
}

// SetAllCombinedFrom replaces the composition history
func (b *Buffer) SetAllCombinedFrom(ts []transform.Transform) {
	b.combinedFrom = append([]transform.Transform(nil), ts...)
}

// CombinedFrom returns the child transforms. The slice must not be modified.
func (b *Buffer) CombinedFrom() []transform.Transform { return b.combinedFrom }

// NumCombinedFrom is the number of child transforms
func (b *Buffer) NumCombinedFrom() int { return len(b.combinedFrom) }

// IsCombinedFrom reports whether other is this buffer or any buffer it was
// transitively composed from
func (b *Buffer) IsCombinedFrom(other *Buffer) bool {
	if other == b {
		return true
	}
	for _, t := range b.combinedFrom {
		if child, ok := t.Buf.(*Buffer); ok && child != nil && child.IsCombinedFrom(other) {
			return true
		}
	}
	return false
}

// Unassociate drops the composition history and any framebuffer target
// display marking, before the buffer is released
func (b *Buffer) Unassociate() {
	b.combinedFrom = nil
	b.fbtDisplay = -1
}

// SetLastHwcFrame records the frames in which the buffer was last seen
func (b *Buffer) SetLastHwcFrame(fn FrameNums, isOnSet bool) {
	b.lastHwcFrame = fn
	if isOnSet {
		b.lastOnSetFrame = fn
	}
}

// LastHwcFrame returns the frames in which the buffer was last seen
func (b *Buffer) LastHwcFrame() FrameNums { return b.lastHwcFrame }

// IsCurrent reports whether the buffer was seen in or just before fn on any
// display
func (b *Buffer) IsCurrent(fn FrameNums) bool {
	for d, n := range fn {
		if n == UndefinedFrame {
			continue
		}
		if b.lastHwcFrame[d]+1 >= n {
			return true
		}
	}
	return false
}

// SetToBeCompared flags the buffer for reference composition comparison
func (b *Buffer) SetToBeCompared(v bool) { b.toBeCompared.Store(v) }

// IsToBeCompared reports the comparison flag
func (b *Buffer) IsToBeCompared() bool { return b.toBeCompared.Load() }

// IsToBeComparedOnce reports and clears the comparison flag
func (b *Buffer) IsToBeComparedOnce() bool { return b.toBeCompared.Swap(false) }

func (b *Buffer) IncAppearanceCount()     { b.appearanceCount++ }
func (b *Buffer) ResetAppearanceCount()   { b.appearanceCount = 0 }
func (b *Buffer) AppearanceCount() uint32 { return b.appearanceCount }

// SetTransparentFromHarness records that the test harness filled the buffer
// with transparent content
func (b *Buffer) SetTransparentFromHarness() { b.transparentFromHarness = true }

// IsActuallyTransparent reports what the harness declared
func (b *Buffer) IsActuallyTransparent() bool { return b.transparentFromHarness }

// DbgCheckNoReferenceTo reports an internal error if other appears among
// this buffer's direct children
func (b *Buffer) DbgCheckNoReferenceTo(other *Buffer, rec checks.Recorder) bool {
	clean := true
	for _, t := range b.combinedFrom {
		if child, ok := t.Buf.(*Buffer); ok && child == other {
			rec.Report(checks.CheckInternalError, "Deleting %s which is referenced in combinedFrom %s", other, b)
			clean = false
		}
	}
	return clean
}

// ReportStatus logs a description of the buffer and its children
func (b *Buffer) ReportStatus(rec checks.Recorder, priority checks.Priority, label string) {
	blanking := "-Blanking"
	if b.blanking {
		blanking = "+Blanking"
	}
	rec.Logf(priority, "%s: %s %s %s", label, b, b.source, blanking)
	rec.Logf(priority, "  Size %dx%d DrmFormat %s Usage %x", b.meta.Width, b.meta.Height,
		drm.FormatName(b.meta.Format), b.meta.Usage)

	if len(b.combinedFrom) > 0 {
		names := make([]string, 0, len(b.combinedFrom))
		for _, t := range b.combinedFrom {
			names = append(names, sourceName(t.Buf))
		}
		rec.Logf(priority, "  CombinedFrom: %s", strings.Join(names, ", "))
	}
}

func sourceName(s transform.Source) string {
	if s == nil {
		return "buf@0"
	}
	return s.String()
}

func (b *Buffer) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "buf@%d handle 0x%x prime 0x%x", b.id, uint64(b.handle), b.globalID)

	for i, id := range b.FbIDs() {
		if i == 0 {
			fmt.Fprintf(&sb, " FB %d", id)
		} else {
			fmt.Fprintf(&sb, ",%d", id)
		}
	}
	if b.dsID > 0 {
		fmt.Fprintf(&sb, " DS %d", b.dsID)
	}
	fmt.Fprintf(&sb, " (last seen %s)", b.lastOnSetFrame)
	return sb.String()
}
