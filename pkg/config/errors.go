package config

import "errors"

var (
	ErrBadReportFormat = errors.New("unknown report format")
	ErrBadDevice       = errors.New("unknown device")
	ErrBadMode         = errors.New("malformed display mode")
)
