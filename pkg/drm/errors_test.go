//go:build unit

package drm

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

func TestAllStatusCodesHaveMessages(t *testing.T) {
	for status := StatusSuccess; status <= StatusCallFailed; status++ {
		msg := status.String()
		if msg == "" {
			t.Errorf("status %d has empty message", status)
		}
		if len(msg) >= 8 && msg[:8] == "unknown " {
			t.Errorf("status %d has no defined message: %s", status, msg)
		}
	}
}

func TestStatusStringReturnsUnknownForUndefinedStatus(t *testing.T) {
	msg := Status(9999).String()
	if msg != "unknown status (9999)" {
		t.Errorf("expected 'unknown status (9999)', got '%s'", msg)
	}
}

func TestDrmErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *DrmError
		expected string
	}{
		{
			name:     "status only",
			err:      &DrmError{Status: StatusInvalidArgument},
			expected: "invalid argument",
		},
		{
			name:     "status with context",
			err:      &DrmError{Status: StatusNotFound, Context: "GETPLANE 31"},
			expected: "GETPLANE 31: object not found",
		},
		{
			name:     "status with cause",
			err:      &DrmError{Status: StatusBusy, Cause: unix.EBUSY},
			expected: "device busy: " + unix.EBUSY.Error(),
		},
		{
			name:     "everything",
			err:      &DrmError{Status: StatusTimeout, Context: "ioctl", Cause: unix.ETIMEDOUT},
			expected: "ioctl: timed out: " + unix.ETIMEDOUT.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestDrmErrorIsMatchesStatus(t *testing.T) {
	err := StatusFromErrno(unix.ENOENT, "GETCONNECTOR")

	if !errors.Is(err, NewError(StatusNotFound, "")) {
		t.Error("errors.Is should match on status")
	}
	if errors.Is(err, NewError(StatusBusy, "")) {
		t.Error("errors.Is should not match a different status")
	}
	if !errors.Is(err, unix.ENOENT) {
		t.Error("errors.Is should reach the wrapped errno")
	}
}

func TestErrnoToStatus(t *testing.T) {
	tests := []struct {
		errno    unix.Errno
		expected Status
	}{
		{0, StatusSuccess},
		{unix.EINVAL, StatusInvalidArgument},
		{unix.ENOENT, StatusNotFound},
		{unix.EACCES, StatusPermissionDenied},
		{unix.EBUSY, StatusBusy},
		{unix.ENOMEM, StatusOutOfMemory},
		{unix.EINTR, StatusInterrupted},
		{unix.ETIMEDOUT, StatusTimeout},
		{unix.EOPNOTSUPP, StatusNotSupported},
		{unix.ENOTTY, StatusInvalidIoctl},
		{unix.ENODEV, StatusDeviceGone},
		{unix.EIO, StatusCallFailed},
	}

	for _, tt := range tests {
		if got := ErrnoToStatus(tt.errno); got != tt.expected {
			t.Errorf("ErrnoToStatus(%v) = %v, expected %v", tt.errno, got, tt.expected)
		}
	}
}

func TestStatusFromReturn(t *testing.T) {
	if got := StatusFromReturn(0); got != StatusSuccess {
		t.Errorf("StatusFromReturn(0) = %v, expected success", got)
	}
	if got := StatusFromReturn(-int(unix.EINVAL)); got != StatusInvalidArgument {
		t.Errorf("StatusFromReturn(-EINVAL) = %v, expected invalid argument", got)
	}
}
