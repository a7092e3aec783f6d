package transform

import (
	"github.com/emergingrobotics/go-hwcval/pkg/checks"
)

// Combine returns the transform equivalent to applying a and then b. a is
// the inner (source side) transform and b the outer one, so the result keeps
// a's buffer and layer index, and nests a's z-order inside b's.
//
// The source crop of the result is a's crop further restricted by b's crop
// mapped back into a's source space. rec may be nil.
func Combine(a, b Transform, rec checks.Recorder) Transform {
	r := Transform{
		Buf:          a.Buf,
		ZOrder:       b.ZOrder | (a.ZOrder >> (b.ZOrderLevels * zOrderLevelBits)),
		ZOrderLevels: a.ZOrderLevels + b.ZOrderLevels,
		LayerIndex:   a.LayerIndex,
		Sources:      a.Sources,
	}

	if r.ZOrderLevels*zOrderLevelBits > 64 && rec != nil {
		rec.Report(checks.CheckInternalZOrder, "Maximum Z-order nesting capability exceeded (%d+%d=%d)",
			a.ZOrderLevels, b.ZOrderLevels, r.ZOrderLevels)
	}

	if id, ok := a.Rotation.Then(b.Rotation); ok {
		r.Rotation = id
	} else if rec != nil {
		rec.Report(checks.CheckInternalError, "Invalid transform (%d or %d)", a.Rotation, b.Rotation)
	}

	ac := a.SourceCrop
	bc := b.SourceCrop
	var xOrigin, yOrigin float64

	if a.Rotation.HasRot90() {
		// b's vertical crop limits a's horizontal source extent and vice versa
		xcrop := bc.Top - a.YOffset
		if a.Rotation.HasReflectY() {
			if xcrop < 0 {
				r.SourceCrop.Left = ac.Left
				yOrigin = -xcrop
			} else {
				r.SourceCrop.Left = xcrop/a.YScale + ac.Left
			}
			r.SourceCrop.Right = min((bc.Bottom-a.YOffset)/a.YScale+ac.Left, ac.Right)
		} else {
			if xcrop < 0 {
				r.SourceCrop.Right = ac.Right
				yOrigin = -xcrop
			} else {
				r.SourceCrop.Right = ac.Right - xcrop/a.YScale
			}
			r.SourceCrop.Left = ac.Left - min((bc.Bottom-a.YOffset)/a.YScale, 0)
		}

		ycrop := bc.Left - a.XOffset
		if a.Rotation.HasReflectX() {
			if ycrop < 0 {
				r.SourceCrop.Top = ac.Top
				xOrigin = -ycrop
			} else {
				r.SourceCrop.Top = ycrop/a.XScale + ac.Top
			}
			r.SourceCrop.Bottom = min((bc.Right-a.XOffset)/a.XScale+ac.Top, ac.Bottom)
		} else {
			if ycrop < 0 {
				r.SourceCrop.Bottom = ac.Bottom
				xOrigin = -ycrop
			} else {
				r.SourceCrop.Bottom = ac.Bottom - ycrop/a.XScale
			}
			r.SourceCrop.Top = max(ac.Bottom-(bc.Right-a.XOffset)/a.XScale, ac.Top)
		}
	} else {
		xcrop := bc.Left - a.XOffset
		if a.Rotation.HasReflectX() {
			if xcrop < 0 {
				r.SourceCrop.Right = ac.Right
				xOrigin = -xcrop
			} else {
				r.SourceCrop.Right = ac.Right - xcrop/a.XScale
			}
			r.SourceCrop.Left = max(ac.Right+(a.XOffset-bc.Right)/a.XScale, ac.Left)
		} else {
			if xcrop < 0 {
				r.SourceCrop.Left = ac.Left
				xOrigin = -xcrop
			} else {
				r.SourceCrop.Left = xcrop/a.XScale + ac.Left
			}
			r.SourceCrop.Right = min((bc.Right-a.XOffset)/a.XScale+ac.Left, ac.Right)
		}

		ycrop := bc.Top - a.YOffset
		if a.Rotation.HasReflectY() {
			if ycrop < 0 {
				r.SourceCrop.Bottom = ac.Bottom
				yOrigin = -ycrop
			} else {
				r.SourceCrop.Bottom = ac.Bottom - ycrop/a.YScale
			}
			r.SourceCrop.Top = max(ac.Bottom+(a.YOffset-bc.Bottom)/a.YScale, ac.Top)
		} else {
			if ycrop < 0 {
				r.SourceCrop.Top = ac.Top
				yOrigin = -ycrop
			} else {
				r.SourceCrop.Top = ycrop/a.YScale + ac.Top
			}
			r.SourceCrop.Bottom = min((bc.Bottom-a.YOffset)/a.YScale+ac.Top, ac.Bottom)
		}
	}

	if b.Rotation.HasRot90() {
		r.XScale = a.YScale * b.XScale
		r.YScale = a.XScale * b.YScale

		// This gives the offset from the right hand side; corrected by the
		// forced horizontal flip below.
		r.XOffset = b.XOffset + yOrigin*b.XScale
		r.YOffset = b.YOffset + xOrigin*b.YScale
	} else {
		r.XScale = a.XScale * b.XScale
		r.YScale = a.YScale * b.YScale
		r.XOffset = b.XOffset + xOrigin*b.XScale
		r.YOffset = b.YOffset + yOrigin*b.YScale
	}

	flipH := b.Rotation.HasReflectX()
	flipV := b.Rotation.HasReflectY()
	if b.Rotation.HasRot90() {
		flipH, flipV = flipV, flipH
		flipH = !flipH
	}
	if flipH {
		r.XOffset = b.XOffset + b.DisplayRight() - r.DisplayRight()
	}
	if flipV {
		r.YOffset = b.YOffset + b.DisplayBottom() - r.DisplayBottom()
	}

	r.Decrypt = a.Decrypt || b.Decrypt
	r.Blending = a.Blending
	r.HasPixelAlpha = a.HasPixelAlpha

	switch b.Blending {
	case BlendNone:
		r.PlaneAlpha = a.PlaneAlpha
	case BlendCoverage:
		if b.Buf != nil && b.Buf.IsCompositionTarget() && rec != nil {
			rec.Report(checks.CheckCompositionBlend, "Invalid blend %s on composition target %s",
				b.BlendString(), b.Buf)
		}
		r.PlaneAlpha = a.PlaneAlpha * b.PlaneAlpha
	default:
		r.PlaneAlpha = a.PlaneAlpha * b.PlaneAlpha
	}

	return r
}
