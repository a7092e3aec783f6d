package transform

import (
	"sort"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
)

// Geometry is the placement the compositor requested for one layer
type Geometry struct {
	SourceCrop   RectF
	DisplayFrame Rect
	Rotation     ID
	Blending     Blending
	PlaneAlpha   float32
}

// FromLayer builds the transform the compositor requested for layer layerIx
func FromLayer(buf Source, layerIx uint32, g Geometry) Transform {
	t := Transform{
		Buf:          buf,
		ZOrder:       uint64(layerIx) << mostSignificantShift,
		ZOrderLevels: 1,
		SourceCrop:   g.SourceCrop,
		XOffset:      float64(g.DisplayFrame.Left),
		YOffset:      float64(g.DisplayFrame.Top),
		Rotation:     g.Rotation,
		LayerIndex:   NoLayer,
		Blending:     g.Blending,
		PlaneAlpha:   g.PlaneAlpha,
	}
	if buf != nil {
		t.HasPixelAlpha = buf.FormatHasPixelAlpha()
	}

	dw := float64(g.DisplayFrame.Width())
	dh := float64(g.DisplayFrame.Height())
	if g.Rotation.HasRot90() {
		t.XScale = dw / t.SourceCrop.Height()
		t.YScale = dh / t.SourceCrop.Width()
	} else {
		t.XScale = dw / t.SourceCrop.Width()
		t.YScale = dh / t.SourceCrop.Height()
	}
	return t
}

// InverseTransformRect maps rect, given in display coordinates, back into
// the source coordinates of the layer described by g
func InverseTransformRect(rect Rect, g Geometry) Rect {
	inverse := FromLayer(nil, 0, g).Inverse()

	subject := FromLayer(nil, 0, Geometry{
		SourceCrop:   rect.Float(),
		DisplayFrame: rect,
	})

	inSource := Combine(subject, inverse, nil)
	return Rect{
		Left:   int32(inSource.XOffset),
		Top:    int32(inSource.YOffset),
		Right:  int32(inSource.DisplayRight()),
		Bottom: int32(inSource.DisplayBottom()),
	}
}

// Cropped returns the layer transform trimmed (and scaled if appropriate) to
// physical screen coordinates by screen, the CRTC's scale transform. When the
// bounding box of the visible region is tighter than the display frame, the
// source crop is first narrowed to match.
func Cropped(buf Source, layerIx uint32, g Geometry, visible []Rect, width, height int32, screen Transform, rec checks.Recorder) Transform {
	layer := FromLayer(buf, layerIx, g)

	if len(visible) > 0 {
		bounds := Bounds(visible)
		df := g.DisplayFrame

		if bounds.Left > df.Left || bounds.Right < df.Right || bounds.Top > df.Top || bounds.Bottom < df.Bottom {
			inverse := FromLayer(buf, 0, Geometry{
				SourceCrop:   df.Float(),
				DisplayFrame: g.SourceCrop.Int(),
				Rotation:     g.Rotation.Inverse(),
			})
			bounding := FromLayer(buf, 0, Geometry{
				SourceCrop:   RectF{0, 0, float64(width), float64(height)},
				DisplayFrame: bounds,
			})
			derived := Combine(bounding, inverse, rec)
			layer.SourceCrop = derived.EffectiveDisplayFrame().Float()
		}
	}

	cropped := Combine(layer, screen, rec)
	cropped.LayerIndex = int(layerIx)
	return cropped
}

// SortByZOrder orders transforms back to front. Equal z-orders are reported
// as an internal conflict since one would hide the other.
func SortByZOrder(ts []Transform, rec checks.Recorder) {
	sort.SliceStable(ts, func(i, j int) bool {
		return ts[i].ZOrder < ts[j].ZOrder
	})
	if rec == nil {
		return
	}
	for i := 1; i < len(ts); i++ {
		if ts[i].ZOrder == ts[i-1].ZOrder {
			rec.Report(checks.CheckInternalZOrder,
				"identical Z-orders %016x in transform list: %s / %s", ts[i].ZOrder, ts[i-1], ts[i])
		}
	}
}
