package replay

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emergingrobotics/go-hwcval/pkg/config"
	"github.com/emergingrobotics/go-hwcval/pkg/display"
	"github.com/emergingrobotics/go-hwcval/pkg/drm"
	"github.com/emergingrobotics/go-hwcval/pkg/layerlist"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
)

// Trace ops. Each names the intercepted call, log line or harness action
// a trace document replays.
const (
	OpGetResources      = "get_resources"
	OpGetPlaneResources = "get_plane_resources"
	OpGetPlane          = "get_plane"
	OpGetConnector      = "get_connector"
	OpSetCrtc           = "set_crtc"
	OpSetPlane          = "set_plane"
	OpPageFlip          = "page_flip"
	OpPageFlipEvent     = "page_flip_event"
	OpAddFB             = "add_fb"
	OpRmFB              = "rm_fb"
	OpGemOpen           = "gem_open"
	OpGemClose          = "gem_close"
	OpGemCreate         = "gem_create"
	OpGemWait           = "gem_wait"
	OpPrime             = "prime"
	OpDPMS              = "dpms"
	OpPanelFitter       = "panel_fitter"
	OpPanelFitterSource = "panel_fitter_source"
	OpRotation          = "rotation"
	OpVBlankRequest     = "vblank_request"
	OpVBlank            = "vblank"
	OpBuffer            = "buffer"
	OpBufferFree        = "buffer_free"
	OpLayers            = "layers"
	OpLog               = "log"
	OpHotPlug           = "hotplug"
	OpValidateFrame     = "validate_frame"
	OpFrameCounts       = "frame_counts"
	OpContent           = "content"
)

// Event is one document of a trace. Only the fields its op uses need be
// set.
type Event struct {
	Op string `yaml:"op"`

	Fd         int      `yaml:"fd,omitempty"`
	Crtc       uint32   `yaml:"crtc,omitempty"`
	Crtcs      []uint32 `yaml:"crtcs,omitempty"`
	Plane      uint32   `yaml:"plane,omitempty"`
	Planes     []uint32 `yaml:"planes,omitempty"`
	Connector  uint32   `yaml:"connector,omitempty"`
	Connectors []uint32 `yaml:"connectors,omitempty"`
	Fb         uint32   `yaml:"fb,omitempty"`
	Bo         uint32   `yaml:"bo,omitempty"`
	Name       uint32   `yaml:"name,omitempty"`
	Handle     uint64   `yaml:"handle,omitempty"`
	DmaFd      int      `yaml:"dma_fd,omitempty"`
	Display    int      `yaml:"display,omitempty"`
	Frame      uint32   `yaml:"frame,omitempty"`
	Seq        uint32   `yaml:"seq,omitempty"`
	Status     int      `yaml:"status,omitempty"`

	// Type is a connector type ("eDP", "HDMI-A", ...) or plane type
	// ("primary", "overlay", "cursor")
	Type          string   `yaml:"type,omitempty"`
	Connected     *bool    `yaml:"connected,omitempty"`
	PossibleCrtcs uint32   `yaml:"possible_crtcs,omitempty"`
	Modes         []string `yaml:"modes,omitempty"`
	Mode          string   `yaml:"mode,omitempty"`

	Width    uint32 `yaml:"width,omitempty"`
	Height   uint32 `yaml:"height,omitempty"`
	Format   string `yaml:"format,omitempty"`
	Modifier uint64 `yaml:"modifier,omitempty"`
	Aux      *Aux   `yaml:"aux,omitempty"`

	// Src is the source rectangle x, y, w, h in pixels; Dst the CRTC
	// rectangle
	Src []float64 `yaml:"src,omitempty"`
	Dst []int32   `yaml:"dst,omitempty"`

	Value    string        `yaml:"value,omitempty"`
	Rotation uint64        `yaml:"rotation,omitempty"`
	Delay    time.Duration `yaml:"delay,omitempty"`
	Clear    bool          `yaml:"clear,omitempty"`

	Line string `yaml:"line,omitempty"`

	// Copy and Ref are RGBA fill colours for a content document's buffer
	// copy and reference composition
	Copy []uint8 `yaml:"copy,omitempty"`
	Ref  []uint8 `yaml:"ref,omitempty"`

	Layers []Layer `yaml:"layers,omitempty"`
	Video  string  `yaml:"video,omitempty"`
	Fence  *int    `yaml:"fence,omitempty"`
}

// Aux describes the compression plane of a framebuffer
type Aux struct {
	Pitch    uint32 `yaml:"pitch"`
	Offset   uint32 `yaml:"offset"`
	Modifier uint64 `yaml:"modifier"`
}

// Layer is one entry of a "layers" document
type Layer struct {
	Handle      uint64    `yaml:"handle,omitempty"`
	Composition string    `yaml:"composition,omitempty"`
	Crop        []float64 `yaml:"crop,omitempty"`
	Frame       []int32   `yaml:"frame,omitempty"`
	Rotation    uint32    `yaml:"rotation,omitempty"`
	Blending    string    `yaml:"blending,omitempty"`
	Alpha       *float32  `yaml:"alpha,omitempty"`
	Skip        bool      `yaml:"skip,omitempty"`
	Validity    string    `yaml:"validity,omitempty"`
}

var connectorTypes = map[string]uint32{
	"vga":         drm.ConnectorTypeVGA,
	"dvi-i":       drm.ConnectorTypeDVII,
	"dvi-d":       drm.ConnectorTypeDVID,
	"dp":          drm.ConnectorTypeDisplayPort,
	"displayport": drm.ConnectorTypeDisplayPort,
	"hdmi":        drm.ConnectorTypeHDMIA,
	"hdmi-a":      drm.ConnectorTypeHDMIA,
	"hdmi-b":      drm.ConnectorTypeHDMIB,
	"edp":         drm.ConnectorTypeEDP,
	"virtual":     drm.ConnectorTypeVirtual,
	"dsi":         drm.ConnectorTypeDSI,
}

func parseConnectorType(s string) (uint32, error) {
	if t, ok := connectorTypes[strings.ToLower(s)]; ok {
		return t, nil
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: connector type %q", ErrBadArgument, s)
	}
	return uint32(n), nil
}

func parsePlaneType(s string) (drm.PlaneType, error) {
	switch strings.ToLower(s) {
	case "", "overlay":
		return drm.PlaneTypeOverlay, nil
	case "primary":
		return drm.PlaneTypePrimary, nil
	case "cursor":
		return drm.PlaneTypeCursor, nil
	}
	return drm.PlaneTypeOverlay, fmt.Errorf("%w: plane type %q", ErrBadArgument, s)
}

// parseFormat accepts a four character code such as "XR24" or a number
func parseFormat(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	if len(s) == 4 {
		if _, err := strconv.Atoi(s); err != nil {
			return drm.Fourcc(s[0], s[1], s[2], s[3]), nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: format %q", ErrBadArgument, s)
	}
	return uint32(n), nil
}

func parseModeInfo(s string, preferred bool) (drm.ModeInfo, error) {
	m, err := config.ParseMode(s)
	if err != nil {
		return drm.ModeInfo{}, fmt.Errorf("%w: %w", ErrBadArgument, err)
	}
	if m.Width == 0 || m.Height == 0 {
		return drm.ModeInfo{}, fmt.Errorf("%w: mode %q", ErrBadArgument, s)
	}
	mi := drm.ModeInfo{
		Hdisplay: uint16(m.Width),
		Vdisplay: uint16(m.Height),
		Vrefresh: m.Refresh,
	}
	if preferred {
		mi.Type = drm.ModeTypePreferred
	}
	return mi, nil
}

func parseDPMS(s string) (uint64, error) {
	switch strings.ToLower(s) {
	case "on":
		return drm.DpmsOn, nil
	case "off":
		return drm.DpmsOff, nil
	}
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: dpms value %q", ErrBadArgument, s)
	}
	return n, nil
}

func parsePanelFitter(s string) (uint64, error) {
	switch strings.ToLower(s) {
	case "off":
		return uint64(display.PanelFitterOff), nil
	case "auto":
		return uint64(display.PanelFitterAuto), nil
	case "pillarbox":
		return uint64(display.PanelFitterPillarbox), nil
	case "letterbox":
		return uint64(display.PanelFitterLetterbox), nil
	}
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: panel fitter mode %q", ErrBadArgument, s)
	}
	return n, nil
}

func parseComposition(s string) (layerlist.CompositionType, error) {
	switch strings.ToLower(s) {
	case "", "hwc", "overlay":
		return layerlist.CompositionHWC, nil
	case "sf", "gles", "client":
		return layerlist.CompositionSF, nil
	case "target", "tgt", "fbt":
		return layerlist.CompositionTarget, nil
	}
	return layerlist.CompositionUnknown, fmt.Errorf("%w: composition %q", ErrBadArgument, s)
}

func parseBlending(s string) (transform.Blending, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return transform.BlendNone, nil
	case "coverage":
		return transform.BlendCoverage, nil
	case "premult", "premultiplied":
		return transform.BlendPremult, nil
	}
	return transform.BlendNone, fmt.Errorf("%w: blending %q", ErrBadArgument, s)
}

func parseValidity(s string) (layerlist.Validity, error) {
	if s == "" {
		return layerlist.Valid, nil
	}
	for v := layerlist.Invalid; v <= layerlist.Indeterminate; v++ {
		if strings.EqualFold(s, v.String()) {
			return v, nil
		}
	}
	return layerlist.Invalid, fmt.Errorf("%w: validity %q", ErrBadArgument, s)
}

func parseVideo(s string) (layerlist.VideoFlags, error) {
	var v layerlist.VideoFlags
	switch strings.ToLower(s) {
	case "", "none":
	case "single_full_screen":
		v.SingleFullScreen = true
		v.FullScreen = true
	case "full_screen":
		v.FullScreen = true
	case "part_screen":
		v.PartScreen = true
	default:
		return v, fmt.Errorf("%w: video %q", ErrBadArgument, s)
	}
	return v, nil
}

// layerGeometry reads an l, t, r, b crop and display frame
func layerGeometry(l Layer) (transform.Geometry, error) {
	var g transform.Geometry
	if len(l.Crop) != 0 && len(l.Crop) != 4 {
		return g, fmt.Errorf("%w: crop needs 4 values, got %d", ErrBadArgument, len(l.Crop))
	}
	if len(l.Frame) != 0 && len(l.Frame) != 4 {
		return g, fmt.Errorf("%w: frame needs 4 values, got %d", ErrBadArgument, len(l.Frame))
	}
	if len(l.Crop) == 4 {
		g.SourceCrop = transform.RectF{Left: l.Crop[0], Top: l.Crop[1], Right: l.Crop[2], Bottom: l.Crop[3]}
	}
	if len(l.Frame) == 4 {
		g.DisplayFrame = transform.Rect{Left: l.Frame[0], Top: l.Frame[1], Right: l.Frame[2], Bottom: l.Frame[3]}
	}
	blending, err := parseBlending(l.Blending)
	if err != nil {
		return g, err
	}
	g.Blending = blending
	g.Rotation = transform.ID(l.Rotation)
	g.PlaneAlpha = 1
	if l.Alpha != nil {
		g.PlaneAlpha = *l.Alpha
	}
	return g, nil
}
