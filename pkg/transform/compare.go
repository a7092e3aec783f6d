package transform

import (
	"math"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
)

const (
	// CropMargin is the tolerance on source crop edges, in source pixels
	CropMargin = 2.0

	// DisplayFrameMargin is the tolerance on display frame edges, in pixels
	DisplayFrameMargin = 2
)

// ErrorCounts accumulates crop and scale mismatches over one frame so they
// can be reported once rather than per layer
type ErrorCounts struct {
	Crop  uint32
	Scale uint32
}

func bufName(s Source) string {
	if s == nil {
		return "buf@0"
	}
	return s.String()
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// Compare checks the requested transform t against what was actually put on
// screen. orig is the uncropped layer transform, used only for logging.
// Crop and scale mismatches are counted in counts; rotation, blending, pixel
// alpha and plane alpha mismatches are reported directly.
func (t Transform) Compare(actual, orig Transform, display int, hwcFrame uint32, counts *ErrorCounts, rec checks.Recorder) {
	sc := t.SourceCrop
	ac := actual.SourceCrop

	if math.Abs(sc.Width()) < CropMargin || math.Abs(sc.Height()) < CropMargin {
		// Nothing should be on screen, and nothing is
		if math.Abs(ac.Width()) < CropMargin || math.Abs(ac.Height()) < CropMargin {
			return
		}
	}

	if math.Abs(sc.Left-ac.Left) > CropMargin || math.Abs(sc.Top-ac.Top) > CropMargin ||
		math.Abs(sc.Right-ac.Right) > CropMargin || math.Abs(sc.Bottom-ac.Bottom) > CropMargin {
		counts.Crop++
		rec.Logf(checks.PriorityError,
			"  D%d SC: Layer%2d (%6.1f,%6.1f,%6.1f,%6.1f) Scaled (%6.1f,%6.1f,%6.1f,%6.1f) actual (%6.1f,%6.1f,%6.1f,%6.1f) %s",
			display, t.LayerIndex,
			orig.SourceCrop.Left, orig.SourceCrop.Top, orig.SourceCrop.Right, orig.SourceCrop.Bottom,
			sc.Left, sc.Top, sc.Right, sc.Bottom,
			ac.Left, ac.Top, ac.Right, ac.Bottom, bufName(t.Buf))
	}

	t.CompareDf(actual, orig, display, counts, rec)

	rec.IncEval(checks.CheckPlaneTransform)
	if t.Rotation != actual.Rotation {
		rec.Report(checks.CheckPlaneTransform, "Layer %d %s transform expected=%s actual=%s to display %d frame:%d",
			t.LayerIndex, bufName(t.Buf), t.Rotation, actual.Rotation, display, hwcFrame)
	}

	rec.IncEval(checks.CheckPlaneBlending)

	opaqueOrPremult := func(b Blending) bool { return b == BlendNone || b == BlendPremult }

	// Back layer with no blending may be shown premultiplied
	if t.Blending == BlendNone && opaqueOrPremult(actual.Blending) {
		return
	}

	compatible := t.Blending == actual.Blending ||
		(t.LayerIndex == 0 && opaqueOrPremult(t.Blending) && opaqueOrPremult(actual.Blending))
	if !compatible && actual.HasPixelAlpha {
		rec.Report(checks.CheckPlaneBlending, "Layer %d %s incompatible blending: expected %s actual %s (frame:%d)",
			t.LayerIndex, bufName(t.Buf), t.BlendString(), actual.BlendString(), hwcFrame)
		return
	}

	rec.IncEval(checks.CheckPixelAlpha)
	if t.HasPixelAlpha && !actual.HasPixelAlpha && t.LayerIndex > 0 && t.Blending != BlendNone {
		rec.Report(checks.CheckPixelAlpha, "Layer %d %s per-pixel alpha is not being rendered: expected %s actual %s (frame: %d)",
			t.LayerIndex, bufName(t.Buf), t.BlendString(), actual.BlendString(), hwcFrame)
	}

	rec.IncEval(checks.CheckPlaneAlpha)
	if t.PlaneAlpha != actual.PlaneAlpha {
		rec.Report(checks.CheckPlaneAlpha, "Layer %d %s plane alpha rendered incorrectly: expected %f actual %f (frame:%d)",
			t.LayerIndex, bufName(t.Buf), t.PlaneAlpha, actual.PlaneAlpha, hwcFrame)
	}
}

// CompareDf checks the requested display frame against the actual one,
// counting a scale error if any edge differs by more than DisplayFrameMargin
func (t Transform) CompareDf(actual, orig Transform, display int, counts *ErrorCounts, rec checks.Recorder) {
	req := t.EffectiveDisplayFrame()
	eff := actual.EffectiveDisplayFrame()

	if abs32(req.Left-eff.Left) > DisplayFrameMargin || abs32(req.Top-eff.Top) > DisplayFrameMargin ||
		abs32(req.Right-eff.Right) > DisplayFrameMargin || abs32(req.Bottom-eff.Bottom) > DisplayFrameMargin {
		o := orig.EffectiveDisplayFrame()
		counts.Scale++
		rec.Logf(checks.PriorityError,
			"  D%d DF: Layer%2d (%6d,%6d,%6d,%6d) Scaled (%6d,%6d,%6d,%6d) actual (%6d,%6d,%6d,%6d) %s",
			display, t.LayerIndex, o.Left, o.Top, o.Right, o.Bottom,
			req.Left, req.Top, req.Right, req.Bottom,
			eff.Left, eff.Top, eff.Right, eff.Bottom, bufName(t.Buf))
	}
}
