package display

import (
	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
)

// PanelFitterMode is the scaling the display pipe applies to the whole
// composition
type PanelFitterMode uint32

const (
	PanelFitterOff PanelFitterMode = iota
	PanelFitterAuto
	PanelFitterPillarbox
	PanelFitterLetterbox
	NumPanelFitterModes
)

func (m PanelFitterMode) String() string {
	switch m {
	case PanelFitterOff:
		return "OFF"
	case PanelFitterAuto:
		return "AUTOSCALE"
	case PanelFitterPillarbox:
		return "PILLARBOX"
	case PanelFitterLetterbox:
		return "LETTERBOX"
	default:
		return "UNKNOWN"
	}
}

// SetPanelFitter selects the panel fitter mode
func (c *Crtc) SetPanelFitter(mode PanelFitterMode) {
	if mode >= NumPanelFitterModes {
		mode = PanelFitterOff
	}
	c.pfMode = mode
	c.calculatePanelFitterTransform()
}

// PanelFitterMode returns the selected mode
func (c *Crtc) PanelFitterMode() PanelFitterMode { return c.pfMode }

// IsPanelFitterEnabled reports whether the panel fitter is scaling
func (c *Crtc) IsPanelFitterEnabled() bool { return c.pfMode != PanelFitterOff }

// PanelFitterTransform maps panel fitter source coordinates to the screen
func (c *Crtc) PanelFitterTransform() transform.Transform { return c.pfTransform }

// PanelFitterSourceSize returns the size composed for; the mode size when
// the panel fitter is off
func (c *Crtc) PanelFitterSourceSize() (width, height uint32) {
	if c.IsPanelFitterEnabled() {
		return c.pfSrcW, c.pfSrcH
	}
	return c.width, c.height
}

// PanelFitterModeCounts returns how many validated frames used each mode
func (c *Crtc) PanelFitterModeCounts() [NumPanelFitterModes]uint32 { return c.pfModeCount }

// SetPanelFitterSourceSize sets the size of the composition fed to the
// panel fitter and checks the resulting scaling is supported
func (c *Crtc) SetPanelFitterSourceSize(width, height uint32) {
	c.pfSrcW = width
	c.pfSrcH = height
	c.logger.Debug("panel fitter source size", "width", width, "height", height, "mode", c.pfMode)

	if c.env.Device == DeviceBroxton {
		c.BroxtonPlaneValidation(nil, "Crtc", c.id, float64(width), float64(height),
			c.width, c.height, transform.Identity)
	} else {
		// Aspect ratio must be preserved to within 1%
		swdh := int64(width) * int64(c.height)
		shdw := int64(height) * int64(c.width)
		marginX := int64(c.height) * int64(width) / 100
		marginY := int64(c.width) * int64(height) / 100

		c.rec.IncEval(checks.CheckPanelFitterConstantAspectRatio)
		if swdh-marginX > shdw || shdw > swdh+marginX || shdw-marginY > swdh || swdh > shdw+marginY {
			c.rec.Report(checks.CheckPanelFitterConstantAspectRatio, "Screen %dx%d Panel fitter %dx%d",
				c.width, c.height, width, height)
		}
	}
	c.calculatePanelFitterTransform()
}

func (c *Crtc) calculatePanelFitterTransform() {
	sw, sh := c.pfSrcW, c.pfSrcH
	if sw == 0 || sh == 0 || c.width == 0 || c.height == 0 {
		c.pfTransform = transform.New(nil, float64(c.width), float64(c.height))
		return
	}

	switch c.pfMode {
	case PanelFitterAuto:
		c.pfTransform = transform.NewScale(float64(sw), float64(sh), float64(c.width), float64(c.height))
	case PanelFitterPillarbox, PanelFitterLetterbox:
		c.pfTransform = transform.FixedAspectRatio(sw, sh, c.width, c.height)
	default:
		c.pfTransform = transform.New(nil, float64(sw), float64(sh))
	}
}
