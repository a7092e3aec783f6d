package transform

import (
	"fmt"
	"strings"
)

const (
	zOrderLevelBits      = 8
	mostSignificantShift = zOrderLevelBits * 7

	// NoLayer marks a transform not yet matched to a compositor layer
	NoLayer = -1
)

// Blending is the per-layer blend mode
type Blending int

const (
	BlendNone Blending = iota
	BlendCoverage
	BlendPremult
)

func (b Blending) String() string {
	switch b {
	case BlendNone:
		return "NONE"
	case BlendCoverage:
		return "COVERAGE"
	case BlendPremult:
		return "PREMULT"
	default:
		return "UNKNOWN HWCBlending"
	}
}

// SourceType classifies where a buffer's content came from
type SourceType int

const (
	SourceInput SourceType = iota
	SourceSfComp
	SourcePartitionedComposer
	SourceWriteback
	SourceHwc
	SourceValidation
)

var sourceNames = [...]string{"Input", "SfComp", "PartitionedComposer", "Writeback", "Hwc", "Validation"}

func (t SourceType) String() string {
	if t < 0 || int(t) >= len(sourceNames) {
		return "Unknown source"
	}
	return sourceNames[t]
}

// Bit returns the SourceMask bit for t
func (t SourceType) Bit() SourceMask { return SourceMask(1) << uint(t) }

// SourceMask is a set of SourceType bits
type SourceMask uint32

// Has reports whether t is in m
func (m SourceMask) Has(t SourceType) bool { return m&t.Bit() != 0 }

func (m SourceMask) String() string {
	var parts []string
	if m.Has(SourceSfComp) {
		parts = append(parts, "Sf")
	}
	if m.Has(SourcePartitionedComposer) {
		parts = append(parts, "PC")
	}
	return strings.Join(parts, " ")
}

// Source is the buffer a transform places on screen
type Source interface {
	fmt.Stringer
	IsCompositionTarget() bool
	FormatHasPixelAlpha() bool
}

// Transform places one source buffer on screen: a source crop, scaled and
// offset into display coordinates, with rotation, z-order and blend state.
// Transforms are values; combining two yields a new one.
type Transform struct {
	Buf Source

	// ZOrder packs one byte per nesting level, outermost in the top byte
	ZOrder       uint64
	ZOrderLevels uint32

	SourceCrop RectF
	XScale     float64
	YScale     float64
	XOffset    float64
	YOffset    float64

	// Rotation is the reflection/rotation applied to the source
	Rotation ID

	LayerIndex    int
	Decrypt       bool
	Blending      Blending
	HasPixelAlpha bool
	PlaneAlpha    float32
	Sources       SourceMask
}

// New returns an identity transform of buf with a width x height source crop
func New(buf Source, width, height float64) Transform {
	return Transform{
		Buf:           buf,
		ZOrderLevels:  1,
		SourceCrop:    RectF{0, 0, width, height},
		XScale:        1,
		YScale:        1,
		LayerIndex:    NoLayer,
		HasPixelAlpha: true,
		PlaneAlpha:    1,
	}
}

// NewScale returns a bufferless transform scaling sw x sh to dw x dh
func NewScale(sw, sh, dw, dh float64) Transform {
	t := New(nil, sw, sh)
	t.XScale = dw / sw
	t.YScale = dh / sh
	return t
}

// FixedAspectRatio scales sw x sh uniformly into dw x dh without cropping,
// centring the source in the destination
func FixedAspectRatio(sw, sh, dw, dh uint32) Transform {
	t := New(nil, float64(sw), float64(sh))

	xscale := float64(dw) / float64(sw)
	yscale := float64(dh) / float64(sh)

	var scale float64
	if xscale > yscale {
		scale = yscale
		t.XOffset = (float64(dw) - scale*float64(sw)) / 2
	} else {
		scale = xscale
		t.YOffset = (float64(dh) - scale*float64(sh)) / 2
	}
	t.XScale = scale
	t.YScale = scale
	return t
}

// SetPlaneOrder places the transform at plane order ix in the outermost level
func (t *Transform) SetPlaneOrder(ix uint32) {
	t.ZOrder = uint64(ix) << mostSignificantShift
}

// SetSourceCropSize sets the source crop from an origin and size
func (t *Transform) SetSourceCropSize(left, top, width, height float64) {
	t.SourceCrop = RectF{left, top, left + width, top + height}
}

// SetDisplayOffset sets the top left of the display frame
func (t *Transform) SetDisplayOffset(x, y int32) {
	t.XOffset = float64(x)
	t.YOffset = float64(y)
}

// SetDisplayFrameSize derives the scale factors from a destination size.
// The source crop and rotation must already be set.
func (t *Transform) SetDisplayFrameSize(w, h int32) {
	if t.Rotation.HasRot90() {
		t.XScale = float64(w) / t.SourceCrop.Height()
		t.YScale = float64(h) / t.SourceCrop.Width()
	} else {
		t.XScale = float64(w) / t.SourceCrop.Width()
		t.YScale = float64(h) / t.SourceCrop.Height()
	}
}

// SetBlend sets blend mode, pixel alpha and plane alpha together
func (t *Transform) SetBlend(b Blending, hasPixelAlpha bool, planeAlpha float32) {
	t.Blending = b
	t.HasPixelAlpha = hasPixelAlpha
	t.PlaneAlpha = planeAlpha
}

// DisplayRight is the right edge of the display frame
func (t Transform) DisplayRight() float64 {
	if t.Rotation.HasRot90() {
		return t.XOffset + t.SourceCrop.Height()*t.XScale
	}
	return t.XOffset + t.SourceCrop.Width()*t.XScale
}

// DisplayBottom is the bottom edge of the display frame
func (t Transform) DisplayBottom() float64 {
	if t.Rotation.HasRot90() {
		return t.YOffset + t.SourceCrop.Width()*t.YScale
	}
	return t.YOffset + t.SourceCrop.Height()*t.YScale
}

// EffectiveDisplayFrame is the display frame rounded to whole pixels
func (t Transform) EffectiveDisplayFrame() Rect {
	left := int32(t.XOffset)
	top := int32(t.YOffset)

	w, h := t.SourceCrop.Width(), t.SourceCrop.Height()
	if t.Rotation.HasRot90() {
		w, h = h, w
	}
	return Rect{
		Left:   left,
		Top:    top,
		Right:  left + int32(w*t.XScale+0.5),
		Bottom: top + int32(h*t.YScale+0.5),
	}
}

// IsDfIntersecting reports whether the display frame overlaps the box
// (0, 0, width, height)
func (t Transform) IsDfIntersecting(width, height int32) bool {
	r := t.EffectiveDisplayFrame()

	if r.Left == r.Right || r.Top == r.Bottom {
		return false
	}
	if r.Right <= 0 || r.Bottom <= 0 {
		return false
	}
	if r.Left > width || r.Top > height {
		return false
	}
	return true
}

// Inverse maps the display frame back onto the source crop
func (t Transform) Inverse() Transform {
	result := New(nil, 0, 0)
	result.SourceCrop = t.EffectiveDisplayFrame().Float()

	if t.Rotation.HasRot90() {
		result.XScale = 1 / t.YScale
		result.YScale = 1 / t.XScale
	} else {
		result.XScale = 1 / t.XScale
		result.YScale = 1 / t.YScale
	}

	result.XOffset = t.SourceCrop.Left
	result.YOffset = t.SourceCrop.Top
	result.Rotation = t.Rotation.Inverse()
	return result
}

// IsFromSfComp reports whether any contributor was a SurfaceFlinger composition
func (t Transform) IsFromSfComp() bool {
	return t.Sources.Has(SourceSfComp)
}

// BlendString describes the blend state for logs
func (t Transform) BlendString() string {
	sign := "-"
	if t.HasPixelAlpha {
		sign = "+"
	}
	return fmt.Sprintf("%s %sPXA %f", t.Blending, sign, t.PlaneAlpha)
}

func (t Transform) String() string {
	buf := "buf@0"
	if t.Buf != nil {
		buf = t.Buf.String()
	}
	decrypt := ""
	if t.Decrypt {
		decrypt = " DECRYPT"
	}
	return fmt.Sprintf("%s z=%016x Sourcecropf(l,t,r,b)=(%4.1f,%4.1f,%4.1f,%4.1f) Offset=(%4.1f,%4.1f) Scale=(%1.3f,%1.3f)%s Tf=%s %s srcs %s",
		buf, t.ZOrder, t.SourceCrop.Left, t.SourceCrop.Top, t.SourceCrop.Right, t.SourceCrop.Bottom,
		t.XOffset, t.YOffset, t.XScale, t.YScale, decrypt, t.Rotation, t.BlendString(), t.Sources)
}
