package drm

import "fmt"

// IOCTL magic - must match drm.h
const DrmIoctlBase = 'd' // 0x64

// IOCTL command numbers - core
const (
	IoctlGemClose        = 0x09
	IoctlGemFlink        = 0x0a
	IoctlGemOpen         = 0x0b
	IoctlPrimeHandleToFd = 0x2d
	IoctlPrimeFdToHandle = 0x2e
)

// IOCTL command numbers - KMS
const (
	IoctlModeGetResources      = 0xA0
	IoctlModeGetCrtc           = 0xA1
	IoctlModeSetCrtc           = 0xA2
	IoctlModeGetEncoder        = 0xA6
	IoctlModeGetConnector      = 0xA7
	IoctlModeAddFB             = 0xAE
	IoctlModeRmFB              = 0xAF
	IoctlModePageFlip          = 0xB0
	IoctlModeGetPlaneResources = 0xB5
	IoctlModeGetPlane          = 0xB6
	IoctlModeSetPlane          = 0xB7
	IoctlModeAddFB2            = 0xB8
	IoctlModeObjSetProperty    = 0xBA
	IoctlModeAtomic            = 0xBC
)

// IOCTL direction flags for _IOC macro
const (
	IocNone  = 0
	IocWrite = 1
	IocRead  = 2
)

// IOCTL size/direction encoding constants
const (
	IocNrBits   = 8
	IocTypeBits = 8
	IocSizeBits = 14
	IocDirBits  = 2

	IocNrShift   = 0
	IocTypeShift = IocNrShift + IocNrBits
	IocSizeShift = IocTypeShift + IocTypeBits
	IocDirShift  = IocSizeShift + IocSizeBits
)

// Ioc creates an IOCTL command number
func Ioc(dir, iocType, nr, size int) uint32 {
	return uint32((dir << IocDirShift) |
		(iocType << IocTypeShift) |
		(nr << IocNrShift) |
		(size << IocSizeShift))
}

// IoW creates a write IOCTL (data flows from user to kernel)
func IoW(iocType, nr, size int) uint32 {
	return Ioc(IocWrite, iocType, nr, size)
}

// IoR creates a read IOCTL (data flows from kernel to user)
func IoR(iocType, nr, size int) uint32 {
	return Ioc(IocRead, iocType, nr, size)
}

// IoWR creates a read-write IOCTL
func IoWR(iocType, nr, size int) uint32 {
	return Ioc(IocRead|IocWrite, iocType, nr, size)
}

// Io creates an IOCTL with no data transfer
func Io(iocType, nr int) uint32 {
	return Ioc(IocNone, iocType, nr, 0)
}

// DPMS property values
const (
	DpmsOn      = 0
	DpmsStandby = 1
	DpmsSuspend = 2
	DpmsOff     = 3
)

// Plane rotation property bits
const (
	RotateZero  = 1 << 0
	Rotate90    = 1 << 1
	Rotate180   = 1 << 2
	Rotate270   = 1 << 3
	ReflectX    = 1 << 4
	ReflectY    = 1 << 5
	RotateMask  = RotateZero | Rotate90 | Rotate180 | Rotate270
	ReflectMask = ReflectX | ReflectY
)

// Framebuffer creation flags
const (
	FbInterlaced = 1 << 0
	FbModifiers  = 1 << 1
	// FbAuxPlane marks an ADDFB2 whose second plane is a render-compression aux buffer
	FbAuxPlane = 1 << 2
)

// Plane types reported by the "type" plane property
type PlaneType uint32

const (
	PlaneTypeOverlay PlaneType = 0
	PlaneTypePrimary PlaneType = 1
	PlaneTypeCursor  PlaneType = 2
)

// ModeTypePreferred marks the connector's preferred mode
const ModeTypePreferred = 1 << 3

// Connector status values
const (
	Connected         = 1
	Disconnected      = 2
	UnknownConnection = 3
)

// Connector types that can come and go at runtime
const (
	ConnectorTypeVGA         = 1
	ConnectorTypeDVII        = 2
	ConnectorTypeDVID        = 3
	ConnectorTypeDisplayPort = 10
	ConnectorTypeHDMIA       = 11
	ConnectorTypeHDMIB       = 12
	ConnectorTypeEDP         = 14
	ConnectorTypeVirtual     = 15
	ConnectorTypeDSI         = 16
)

var connectorTypeNames = map[uint32]string{
	ConnectorTypeVGA:         "VGA",
	ConnectorTypeDVII:        "DVI-I",
	ConnectorTypeDVID:        "DVI-D",
	ConnectorTypeDisplayPort: "DP",
	ConnectorTypeHDMIA:       "HDMI-A",
	ConnectorTypeHDMIB:       "HDMI-B",
	ConnectorTypeEDP:         "eDP",
	ConnectorTypeVirtual:     "Virtual",
	ConnectorTypeDSI:         "DSI",
}

// ConnectorTypeName returns the kernel's name for a connector type
func ConnectorTypeName(connectorType uint32) string {
	if name, ok := connectorTypeNames[connectorType]; ok {
		return name
	}
	return fmt.Sprintf("type%d", connectorType)
}

// IsRemovableConnector reports whether a connector type is hot-pluggable
func IsRemovableConnector(connectorType uint32) bool {
	switch connectorType {
	case ConnectorTypeVGA, ConnectorTypeDVII, ConnectorTypeDVID,
		ConnectorTypeDisplayPort, ConnectorTypeHDMIA, ConnectorTypeHDMIB:
		return true
	default:
		return false
	}
}

// Limits of the display engine
const (
	MaxCrtcs = 3
	MaxPipes = 5

	// BroxtonCdClk is the reference clock (kHz) used to derive the
	// bandwidth-limited minimum scale factor
	BroxtonCdClk = 288000
)

// Modifier vendor and tiling codes
const (
	ModVendorIntel = 0x01

	ModLinear = 0
)

// FourccMod builds a framebuffer modifier
func FourccMod(vendor, val uint64) uint64 {
	return (vendor << 56) | (val & 0x00ffffffffffffff)
}

// Intel tiling and render-compression modifiers
var (
	ModIntelXTiled     = FourccMod(ModVendorIntel, 1)
	ModIntelYTiled     = FourccMod(ModVendorIntel, 2)
	ModIntelYfTiled    = FourccMod(ModVendorIntel, 3)
	ModIntelYTiledCCS  = FourccMod(ModVendorIntel, 4)
	ModIntelYfTiledCCS = FourccMod(ModVendorIntel, 5)
)

// IsRenderCompressed reports whether a modifier enables render compression
func IsRenderCompressed(modifier uint64) bool {
	return modifier == ModIntelYTiledCCS || modifier == ModIntelYfTiledCCS
}
