package drm

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Status represents the outcome of a DRM/KMS call as seen by the validator
type Status int

// DRM call status codes
const (
	StatusSuccess          Status = 0
	StatusInvalidArgument  Status = 1
	StatusNotFound         Status = 2
	StatusPermissionDenied Status = 3
	StatusBusy             Status = 4
	StatusOutOfMemory      Status = 5
	StatusInterrupted      Status = 6
	StatusTimeout          Status = 7
	StatusNotSupported     Status = 8
	StatusInvalidIoctl     Status = 9
	StatusDeviceGone       Status = 10
	StatusCallFailed       Status = 11
)

var statusMessages = map[Status]string{
	StatusSuccess:          "success",
	StatusInvalidArgument:  "invalid argument",
	StatusNotFound:         "object not found",
	StatusPermissionDenied: "permission denied (not DRM master?)",
	StatusBusy:             "device busy",
	StatusOutOfMemory:      "out of memory",
	StatusInterrupted:      "interrupted",
	StatusTimeout:          "timed out",
	StatusNotSupported:     "not supported by driver",
	StatusInvalidIoctl:     "invalid ioctl",
	StatusDeviceGone:       "device removed",
	StatusCallFailed:       "DRM call failed",
}

// String returns the human-readable status message
func (s Status) String() string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return fmt.Sprintf("unknown status (%d)", int(s))
}

// DrmError represents an error from a DRM device call
type DrmError struct {
	Status  Status
	Context string
	Cause   error
}

// Error implements the error interface
func (e *DrmError) Error() string {
	if e.Context != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Context, e.Status.String(), e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Context, e.Status.String())
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Status.String(), e.Cause)
	}
	return e.Status.String()
}

// Unwrap returns the underlying cause
func (e *DrmError) Unwrap() error {
	return e.Cause
}

// Is matches on status
func (e *DrmError) Is(target error) bool {
	var drmErr *DrmError
	if errors.As(target, &drmErr) {
		return e.Status == drmErr.Status
	}
	return false
}

// NewError creates a new DrmError with the given status
func NewError(status Status, context string) *DrmError {
	return &DrmError{
		Status:  status,
		Context: context,
	}
}

// NewErrorWithCause creates a new DrmError with an underlying cause
func NewErrorWithCause(status Status, context string, cause error) *DrmError {
	return &DrmError{
		Status:  status,
		Context: context,
		Cause:   cause,
	}
}

// ErrnoToStatus converts a Linux errno to a DRM call status
func ErrnoToStatus(errno unix.Errno) Status {
	switch errno {
	case 0:
		return StatusSuccess
	case unix.EINVAL, unix.ERANGE:
		return StatusInvalidArgument
	case unix.ENOENT:
		return StatusNotFound
	case unix.EACCES, unix.EPERM:
		return StatusPermissionDenied
	case unix.EBUSY, unix.EAGAIN:
		return StatusBusy
	case unix.ENOMEM, unix.ENOSPC:
		return StatusOutOfMemory
	case unix.EINTR:
		return StatusInterrupted
	case unix.ETIMEDOUT, unix.ETIME:
		return StatusTimeout
	case unix.EOPNOTSUPP:
		return StatusNotSupported
	case unix.ENOTTY:
		return StatusInvalidIoctl
	case unix.ENODEV:
		return StatusDeviceGone
	default:
		return StatusCallFailed
	}
}

// StatusFromErrno creates a DrmError from an errno
func StatusFromErrno(errno unix.Errno, context string) *DrmError {
	return &DrmError{
		Status:  ErrnoToStatus(errno),
		Context: context,
		Cause:   errno,
	}
}

// StatusFromReturn maps a libdrm-style return code (0 or -errno) to a status
func StatusFromReturn(ret int) Status {
	if ret >= 0 {
		return StatusSuccess
	}
	return ErrnoToStatus(unix.Errno(-ret))
}
