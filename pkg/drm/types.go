package drm

import "unsafe"

// DisplayModeLen is the fixed size of a mode name
const DisplayModeLen = 32

// ModeInfo matches struct drm_mode_modeinfo
type ModeInfo struct {
	Clock      uint32
	Hdisplay   uint16
	HsyncStart uint16
	HsyncEnd   uint16
	Htotal     uint16
	Hskew      uint16
	Vdisplay   uint16
	VsyncStart uint16
	VsyncEnd   uint16
	Vtotal     uint16
	Vscan      uint16
	Vrefresh   uint32
	Flags      uint32
	Type       uint32
	Name       [DisplayModeLen]byte
}

// ModeNameString returns the mode name without trailing NULs
func (m *ModeInfo) ModeNameString() string {
	n := 0
	for n < len(m.Name) && m.Name[n] != 0 {
		n++
	}
	return string(m.Name[:n])
}

// ModeCardRes matches struct drm_mode_card_res
type ModeCardRes struct {
	FbIDPtr         uint64
	CrtcIDPtr       uint64
	ConnectorIDPtr  uint64
	EncoderIDPtr    uint64
	CountFbs        uint32
	CountCrtcs      uint32
	CountConnectors uint32
	CountEncoders   uint32
	MinWidth        uint32
	MaxWidth        uint32
	MinHeight       uint32
	MaxHeight       uint32
}

// ModeGetConnector matches struct drm_mode_get_connector
type ModeGetConnector struct {
	EncodersPtr     uint64
	ModesPtr        uint64
	PropsPtr        uint64
	PropValuesPtr   uint64
	CountModes      uint32
	CountProps      uint32
	CountEncoders   uint32
	EncoderID       uint32
	ConnectorID     uint32
	ConnectorType   uint32
	ConnectorTypeID uint32
	Connection      uint32
	MmWidth         uint32
	MmHeight        uint32
	Subpixel        uint32
	_               uint32 // pad
}

// ModeGetPlaneRes matches struct drm_mode_get_plane_res
type ModeGetPlaneRes struct {
	PlaneIDPtr  uint64
	CountPlanes uint32
	_           uint32 // pad
}

// ModeGetPlane matches struct drm_mode_get_plane
type ModeGetPlane struct {
	PlaneID          uint32
	CrtcID           uint32
	FbID             uint32
	PossibleCrtcs    uint32
	GammaSize        uint32
	CountFormatTypes uint32
	FormatTypePtr    uint64
}

// ModeSetPlane matches struct drm_mode_set_plane; source coordinates are 16.16 fixed point
type ModeSetPlane struct {
	PlaneID uint32
	CrtcID  uint32
	FbID    uint32
	Flags   uint32
	CrtcX   int32
	CrtcY   int32
	CrtcW   uint32
	CrtcH   uint32
	SrcX    uint32
	SrcY    uint32
	SrcH    uint32
	SrcW    uint32
}

// ModeFbCmd2 matches struct drm_mode_fb_cmd2
type ModeFbCmd2 struct {
	FbID        uint32
	Width       uint32
	Height      uint32
	PixelFormat uint32
	Flags       uint32
	Handles     [4]uint32
	Pitches     [4]uint32
	Offsets     [4]uint32
	_           uint32 // pad
	Modifier    [4]uint64
}

// ModeCrtcPageFlip matches struct drm_mode_crtc_page_flip
type ModeCrtcPageFlip struct {
	CrtcID   uint32
	FbID     uint32
	Flags    uint32
	Reserved uint32
	UserData uint64
}

// GemOpen matches struct drm_gem_open
type GemOpen struct {
	Name   uint32
	Handle uint32
	Size   uint64
}

// GemClose matches struct drm_gem_close
type GemClose struct {
	Handle uint32
	_      uint32 // pad
}

// Struct sizes used when building IOCTL codes
var (
	SizeOfModeInfo         = int(unsafe.Sizeof(ModeInfo{}))
	SizeOfModeCardRes      = int(unsafe.Sizeof(ModeCardRes{}))
	SizeOfModeGetConnector = int(unsafe.Sizeof(ModeGetConnector{}))
	SizeOfModeGetPlaneRes  = int(unsafe.Sizeof(ModeGetPlaneRes{}))
	SizeOfModeGetPlane     = int(unsafe.Sizeof(ModeGetPlane{}))
	SizeOfModeSetPlane     = int(unsafe.Sizeof(ModeSetPlane{}))
	SizeOfModeFbCmd2       = int(unsafe.Sizeof(ModeFbCmd2{}))
	SizeOfModeCrtcPageFlip = int(unsafe.Sizeof(ModeCrtcPageFlip{}))
	SizeOfGemOpen          = int(unsafe.Sizeof(GemOpen{}))
	SizeOfGemClose         = int(unsafe.Sizeof(GemClose{}))
)

// Fixed16 converts a 16.16 fixed-point coordinate to float
func Fixed16(v uint32) float64 {
	return float64(v) / 65536.0
}

// ToFixed16 converts a coordinate to 16.16 fixed point
func ToFixed16(v float64) uint32 {
	return uint32(v * 65536.0)
}
