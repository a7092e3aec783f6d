package display

import (
	"math"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/drm"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
)

// Broxton scaler limits
const (
	MinScalerSource   = 8
	MaxScalerSource   = 4096
	MinScalerVideoDim = 16

	MinScale     = 1.0 / 3.0
	MinScaleNV12 = 0.5
)

// BroxtonPlaneValidation checks that scaling srcW x srcH onto dstW x dstH
// with rotation is within what a Broxton scaler supports. p supplies the
// buffer format and compression and may be nil for pipe-level scaling.
// kind and id identify the object in messages. It returns the number of
// scalers the operation consumes, 0 or 1.
func (c *Crtc) BroxtonPlaneValidation(p *Plane, kind string, id uint32, srcW, srcH float64, dstW, dstH uint32, rotation transform.ID) int {
	var (
		rc      bool
		isVideo bool
		isNV12  bool
		name    string
		format  string
		bufW    uint32
		bufH    uint32
	)
	if p != nil {
		rc = p.IsRenderCompressed()
		if buf := p.Buf(); buf != nil {
			isVideo = buf.IsVideoFormat()
			isNV12 = buf.IsNV12Format()
			name = buf.String()
			format = drm.FormatName(buf.Format())
			bufW, bufH = buf.Width(), buf.Height()
		}
	}

	logDstW, logDstH := dstW, dstH
	if rotation.HasRot90() {
		c.rec.IncEval(checks.CheckRCWithInvalidRotation)
		if rc {
			c.rec.Report(checks.CheckRCWithInvalidRotation, "Can not rotate 90/270 degrees with Render Compression")
		}
		logDstW, logDstH = dstH, dstW
	}

	if math.Abs(srcW-float64(logDstW)) <= 1 && math.Abs(srcH-float64(logDstH)) <= 1 {
		// NV12 always goes through a scaler
		if isNV12 {
			return 1
		}
		return 0
	}

	c.rec.IncEval(checks.CheckBadScalerSourceSize)
	if srcW < MinScalerSource || srcH < MinScalerSource || srcW > MaxScalerSource {
		c.rec.Report(checks.CheckBadScalerSourceSize, "%s %d %s Crop %fx%f, for BXT should be 8-4096 pixels.",
			kind, id, name, srcW, srcH)
	} else if isVideo {
		if srcH < MinScalerVideoDim {
			c.rec.Report(checks.CheckBadScalerSourceSize,
				"%s %d %s Crop %fx%f, for BXT min height for YUV 420 planar/NV12 formats is 16 pixels",
				kind, id, name, srcW, srcH)
		}
		if isNV12 && srcW < MinScalerVideoDim {
			c.rec.Report(checks.CheckBadScalerSourceSize,
				"%s %d %s Crop %fx%f, for BXT min width for NV12 formats is 16 pixels",
				kind, id, name, srcW, srcH)
		}
	}

	minScale := MinScale
	if isNV12 {
		minScale = MinScaleNV12
	}
	var minFromBandwidth float64
	if c.clock != 0 {
		minFromBandwidth = float64(c.clock) / drm.BroxtonCdClk
		minScale = math.Max(minScale, minFromBandwidth)
	}

	xScale := float64(logDstW) / srcW
	yScale := float64(logDstH) / srcH

	c.rec.IncEval(checks.CheckScalingFactor)
	if xScale < minScale || yScale < minScale {
		c.rec.Report(checks.CheckScalingFactor,
			"%s %d %s %dx%d Crop %fx%f Display (in source frame) %dx%d Scale %fx%f",
			kind, id, name, bufW, bufH, srcW, srcH, logDstW, logDstH, xScale, yScale)
		c.logger.Error("minimum supported scale factor", "format", format, "min", minScale)
	} else if minFromBandwidth > 0 && xScale*yScale <= minFromBandwidth {
		c.rec.Report(checks.CheckScalingFactor,
			"%s %d %s %dx%d Crop %fx%f Display (in source frame) %dx%d Scale %fx%f=%f",
			kind, id, name, bufW, bufH, srcW, srcH, logDstW, logDstH, xScale, yScale, xScale*yScale)
		c.logger.Error("minimum supported scale factor for product", "format", format, "min", minFromBandwidth)
	}
	return 1
}
