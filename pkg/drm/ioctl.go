package drm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// DeviceFile represents an open DRM card file descriptor
type DeviceFile struct {
	fd   int
	path string
}

// OpenDevice opens a DRM card by path
func OpenDevice(path string) (*DeviceFile, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		errno, ok := err.(unix.Errno)
		if ok {
			return nil, StatusFromErrno(errno, "opening device "+path)
		}
		return nil, NewErrorWithCause(StatusCallFailed, "opening device "+path, err)
	}
	return &DeviceFile{fd: fd, path: path}, nil
}

// Close closes the device file
func (d *DeviceFile) Close() error {
	if d.fd >= 0 {
		err := unix.Close(d.fd)
		d.fd = -1
		if err != nil {
			return NewErrorWithCause(StatusCallFailed, "closing device", err)
		}
	}
	return nil
}

// Fd returns the file descriptor
func (d *DeviceFile) Fd() int {
	return d.fd
}

// Path returns the device path
func (d *DeviceFile) Path() string {
	return d.path
}

// ioctl performs an ioctl syscall, retrying on EINTR/EAGAIN as libdrm does
func (d *DeviceFile) ioctl(cmd uint32, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(cmd), uintptr(arg))
		if errno == unix.EINTR || errno == unix.EAGAIN {
			continue
		}
		if errno != 0 {
			return StatusFromErrno(errno, "ioctl")
		}
		return nil
	}
}

// IOCTL command codes (calculated from type and size)
var (
	ioctlModeGetResources      = IoWR(DrmIoctlBase, IoctlModeGetResources, SizeOfModeCardRes)
	ioctlModeGetConnector      = IoWR(DrmIoctlBase, IoctlModeGetConnector, SizeOfModeGetConnector)
	ioctlModeGetPlaneResources = IoWR(DrmIoctlBase, IoctlModeGetPlaneResources, SizeOfModeGetPlaneRes)
	ioctlModeGetPlane          = IoWR(DrmIoctlBase, IoctlModeGetPlane, SizeOfModeGetPlane)
	ioctlModeSetPlane          = IoWR(DrmIoctlBase, IoctlModeSetPlane, SizeOfModeSetPlane)
	ioctlModeAddFB2            = IoWR(DrmIoctlBase, IoctlModeAddFB2, SizeOfModeFbCmd2)
	ioctlModePageFlip          = IoWR(DrmIoctlBase, IoctlModePageFlip, SizeOfModeCrtcPageFlip)
	ioctlGemOpen               = IoWR(DrmIoctlBase, IoctlGemOpen, SizeOfGemOpen)
	ioctlGemClose              = IoW(DrmIoctlBase, IoctlGemClose, SizeOfGemClose)
)

// IoctlName names a DRM ioctl code, for logging intercepted calls
func IoctlName(cmd uint32) string {
	switch cmd {
	case ioctlModeGetResources:
		return "MODE_GETRESOURCES"
	case ioctlModeGetConnector:
		return "MODE_GETCONNECTOR"
	case ioctlModeGetPlaneResources:
		return "MODE_GETPLANERESOURCES"
	case ioctlModeGetPlane:
		return "MODE_GETPLANE"
	case ioctlModeSetPlane:
		return "MODE_SETPLANE"
	case ioctlModeAddFB2:
		return "MODE_ADDFB2"
	case ioctlModePageFlip:
		return "MODE_PAGE_FLIP"
	case ioctlGemOpen:
		return "GEM_OPEN"
	case ioctlGemClose:
		return "GEM_CLOSE"
	default:
		return "UNKNOWN"
	}
}

// Resources lists the KMS objects of a card
type Resources struct {
	Fbs        []uint32
	Crtcs      []uint32
	Connectors []uint32
	Encoders   []uint32
	MinWidth   uint32
	MaxWidth   uint32
	MinHeight  uint32
	MaxHeight  uint32
}

// GetResources queries the card's CRTCs, connectors and encoders
func (d *DeviceFile) GetResources() (*Resources, error) {
	var res ModeCardRes
	if err := d.ioctl(ioctlModeGetResources, unsafe.Pointer(&res)); err != nil {
		return nil, err
	}

	out := &Resources{
		Fbs:        make([]uint32, res.CountFbs),
		Crtcs:      make([]uint32, res.CountCrtcs),
		Connectors: make([]uint32, res.CountConnectors),
		Encoders:   make([]uint32, res.CountEncoders),
	}
	res.FbIDPtr = slicePtr(out.Fbs)
	res.CrtcIDPtr = slicePtr(out.Crtcs)
	res.ConnectorIDPtr = slicePtr(out.Connectors)
	res.EncoderIDPtr = slicePtr(out.Encoders)

	if err := d.ioctl(ioctlModeGetResources, unsafe.Pointer(&res)); err != nil {
		return nil, err
	}

	out.MinWidth, out.MaxWidth = res.MinWidth, res.MaxWidth
	out.MinHeight, out.MaxHeight = res.MinHeight, res.MaxHeight
	return out, nil
}

// Connector describes one connector and its modes
type Connector struct {
	ID         uint32
	EncoderID  uint32
	Type       uint32
	TypeID     uint32
	Connection uint32
	MmWidth    uint32
	MmHeight   uint32
	Modes      []ModeInfo
}

// GetConnector queries a connector including its mode list
func (d *DeviceFile) GetConnector(id uint32) (*Connector, error) {
	conn := ModeGetConnector{ConnectorID: id}
	if err := d.ioctl(ioctlModeGetConnector, unsafe.Pointer(&conn)); err != nil {
		return nil, err
	}

	modes := make([]ModeInfo, conn.CountModes)
	if len(modes) > 0 {
		conn.ModesPtr = uint64(uintptr(unsafe.Pointer(&modes[0])))
	}
	conn.CountProps = 0
	conn.CountEncoders = 0

	if err := d.ioctl(ioctlModeGetConnector, unsafe.Pointer(&conn)); err != nil {
		return nil, err
	}

	if int(conn.CountModes) < len(modes) {
		modes = modes[:conn.CountModes]
	}

	return &Connector{
		ID:         conn.ConnectorID,
		EncoderID:  conn.EncoderID,
		Type:       conn.ConnectorType,
		TypeID:     conn.ConnectorTypeID,
		Connection: conn.Connection,
		MmWidth:    conn.MmWidth,
		MmHeight:   conn.MmHeight,
		Modes:      modes,
	}, nil
}

// GetPlaneResources lists the plane ids of the card
func (d *DeviceFile) GetPlaneResources() ([]uint32, error) {
	var res ModeGetPlaneRes
	if err := d.ioctl(ioctlModeGetPlaneResources, unsafe.Pointer(&res)); err != nil {
		return nil, err
	}

	planes := make([]uint32, res.CountPlanes)
	res.PlaneIDPtr = slicePtr(planes)
	if err := d.ioctl(ioctlModeGetPlaneResources, unsafe.Pointer(&res)); err != nil {
		return nil, err
	}
	return planes[:res.CountPlanes], nil
}

// GetPlane queries one plane
func (d *DeviceFile) GetPlane(id uint32) (*ModeGetPlane, error) {
	plane := ModeGetPlane{PlaneID: id}
	if err := d.ioctl(ioctlModeGetPlane, unsafe.Pointer(&plane)); err != nil {
		return nil, err
	}
	plane.CountFormatTypes = 0
	plane.FormatTypePtr = 0
	return &plane, nil
}

func slicePtr(s []uint32) uint64 {
	if len(s) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&s[0])))
}
