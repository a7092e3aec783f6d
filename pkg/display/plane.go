package display

import (
	"fmt"
	"time"

	"github.com/emergingrobotics/go-hwcval/pkg/buffer"
	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/drm"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
)

// Tiling is the memory layout of the buffer bound to a plane
type Tiling int

const (
	TilingLinear Tiling = iota
	TilingX
	TilingY
	TilingYf
)

func (t Tiling) String() string {
	switch t {
	case TilingX:
		return "X"
	case TilingY:
		return "Y"
	case TilingYf:
		return "Yf"
	default:
		return "Linear"
	}
}

// TilingFromModifier maps a framebuffer modifier onto a tiling
func TilingFromModifier(modifier uint64) Tiling {
	switch modifier {
	case drm.ModIntelXTiled:
		return TilingX
	case drm.ModIntelYTiled, drm.ModIntelYTiledCCS:
		return TilingY
	case drm.ModIntelYfTiled, drm.ModIntelYfTiledCCS:
		return TilingYf
	default:
		return TilingLinear
	}
}

// Plane is one hardware plane and the buffer currently placed on it
type Plane struct {
	id    uint32
	index uint32
	kind  drm.PlaneType
	crtc  *Crtc

	transform transform.Transform
	flipped   *buffer.Buffer

	redrawExpected   bool
	setDisplayFailed bool
	bufferUpdated    bool

	bpp          int
	pixelFormat  uint32
	tiling       Tiling
	hasAuxBuffer bool
	auxPitch     uint32
	auxOffset    uint32
	renderComp   bool
	dsID         int64

	drmCallStart time.Time
}

// NewPlane creates an unbound plane
func NewPlane(id uint32, kind drm.PlaneType) *Plane {
	return &Plane{
		id:        id,
		kind:      kind,
		transform: transform.New(nil, 0, 0),
	}
}

func (p *Plane) ID() uint32               { return p.id }
func (p *Plane) Kind() drm.PlaneType      { return p.kind }
func (p *Plane) SetKind(k drm.PlaneType)  { p.kind = k }
func (p *Plane) IsCursor() bool           { return p.kind == drm.PlaneTypeCursor }
func (p *Plane) Index() uint32            { return p.index }
func (p *Plane) SetIndex(ix uint32)       { p.index = ix }
func (p *Plane) Crtc() *Crtc              { return p.crtc }
func (p *Plane) Bpp() int                 { return p.bpp }
func (p *Plane) SetBpp(bpp int)           { p.bpp = bpp }
func (p *Plane) PixelFormat() uint32      { return p.pixelFormat }
func (p *Plane) SetPixelFormat(f uint32)  { p.pixelFormat = f }
func (p *Plane) Tiling() Tiling           { return p.tiling }
func (p *Plane) DsID() int64              { return p.dsID }
func (p *Plane) SetDsID(id int64)         { p.dsID = id }
func (p *Plane) RedrawExpected() bool     { return p.redrawExpected }
func (p *Plane) SetRedrawExpected(v bool) { p.redrawExpected = v }

// Transform is the placement of the plane's buffer on its CRTC
func (p *Plane) Transform() *transform.Transform { return &p.transform }

// Buf returns the buffer on the plane, or nil
func (p *Plane) Buf() *buffer.Buffer {
	b, _ := p.transform.Buf.(*buffer.Buffer)
	return b
}

// SetBuf binds buf to the plane
func (p *Plane) SetBuf(buf *buffer.Buffer) {
	if buf == nil {
		p.transform.Buf = nil
	} else {
		p.transform.Buf = buf
	}
	p.bufferUpdated = true
}

// ClearBuf leaves the plane showing nothing
func (p *Plane) ClearBuf() {
	p.transform.Buf = nil
	p.bufferUpdated = true
}

// IsBufferUpdated reports and clears whether SetBuf was called since the
// last query
func (p *Plane) IsBufferUpdated() bool {
	u := p.bufferUpdated
	p.bufferUpdated = false
	return u
}

// SetAux records the render compression aux buffer layout from an FB
func (p *Plane) SetAux(has bool, pitch, offset uint32) {
	p.hasAuxBuffer = has
	p.auxPitch = pitch
	p.auxOffset = offset
}

// HasAuxBuffer reports whether the bound FB carries an aux plane
func (p *Plane) HasAuxBuffer() bool { return p.hasAuxBuffer }

// SetModifier sets tiling and render compression from an FB modifier
func (p *Plane) SetModifier(modifier uint64) {
	p.tiling = TilingFromModifier(modifier)
	p.renderComp = drm.IsRenderCompressed(modifier)
}

// IsRenderCompressed reports whether the bound FB is render compressed
func (p *Plane) IsRenderCompressed() bool { return p.renderComp }

// ZOrder is the plane's place in the hardware stack. Broxton stacks planes
// by index; other devices use the CRTC's z-order sequence.
func (p *Plane) ZOrder() uint32 {
	if p.crtc == nil || p.crtc.env.Device == DeviceBroxton {
		return p.index
	}
	seq := p.crtc.zOrder
	if int(p.index) < len(seq) {
		return seq[p.index]
	}
	return 0
}

// SetDisplayFrame places the plane at (x, y). Only Broxton planes scale to
// a destination size; elsewhere the size follows the source crop.
func (p *Plane) SetDisplayFrame(x, y int32, w, h uint32) {
	p.transform.SetDisplayOffset(x, y)
	if p.crtc == nil || p.crtc.env.Device == DeviceBroxton {
		if p.transform.SourceCrop.Width() > 0 && p.transform.SourceCrop.Height() > 0 {
			p.transform.SetDisplayFrameSize(int32(w), int32(h))
		}
	}
}

// SetSourceCrop sets the region of the buffer shown on the plane
func (p *Plane) SetSourceCrop(left, top, width, height float64) {
	p.transform.SetSourceCropSize(left, top, width, height)
}

// SetRotation sets the plane's hardware transform. A change means the
// plane must be explicitly placed again before the next frame is checked.
func (p *Plane) SetRotation(id transform.ID) {
	if id != p.transform.Rotation {
		p.redrawExpected = true
	}
	p.transform.Rotation = id
}

// DrmCallStart records the start of a DRM call on the plane
func (p *Plane) DrmCallStart(now time.Time) { p.drmCallStart = now }

// DrmCallDuration is the time since DrmCallStart
func (p *Plane) DrmCallDuration(now time.Time) time.Duration {
	if p.drmCallStart.IsZero() {
		return 0
	}
	return now.Sub(p.drmCallStart)
}

// Flip notes that the bound buffer has reached the screen
func (p *Plane) Flip() { p.flipped = p.Buf() }

// IsUsing reports whether buf is bound or was the last buffer flipped
func (p *Plane) IsUsing(buf *buffer.Buffer) bool {
	return buf != nil && (p.Buf() == buf || p.flipped == buf)
}

// SetDisplayFailed records whether the last attempt to display the plane
// failed
func (p *Plane) SetDisplayFailed(failed bool) { p.setDisplayFailed = failed }

// DidSetDisplayFail reports the outcome recorded by SetDisplayFailed
func (p *Plane) DidSetDisplayFail() bool { return p.setDisplayFailed }

// FormatHasPixelAlpha reports whether the plane's pixel format has alpha
func (p *Plane) FormatHasPixelAlpha() bool { return drm.FormatHasPixelAlpha(p.pixelFormat) }

// Expand appends the flattened transforms of the plane's buffer to dst,
// applying the CRTC's panel fitter when it is active
func (p *Plane) Expand(dst []transform.Transform, rec checks.Recorder) []transform.Transform {
	buf := p.Buf()
	if buf == nil {
		return dst
	}

	t := p.transform
	if p.crtc != nil && p.crtc.IsPanelFitterEnabled() {
		t = transform.Combine(t, p.crtc.pfTransform, rec)
	}
	dst = buf.AddSourceFBsToList(dst, t, 0, rec)

	if !p.setDisplayFailed && p.crtc != nil && p.crtc.IsDisplayEnabled() {
		buf.SetUsed(true)
	}
	return dst
}

// ValidateFormat rejects formats with pixel alpha at the back of the
// hardware stack
func (p *Plane) ValidateFormat(rec checks.Recorder) {
	if p.ZOrder() != 0 {
		return
	}
	rec.IncEval(checks.CheckBackHwStackPixelFormat)
	if p.FormatHasPixelAlpha() {
		rec.Report(checks.CheckBackHwStackPixelFormat, "Plane %d at back of HW stack is %s",
			p.id, drm.FormatName(p.pixelFormat))
	}
}

func (p *Plane) String() string {
	return fmt.Sprintf("Plane %d %s", p.id, p.transform)
}
