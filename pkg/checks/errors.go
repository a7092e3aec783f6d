package checks

import "errors"

var (
	ErrUnknownCheck    = errors.New("unknown check name")
	ErrUnknownPriority = errors.New("unknown priority")
	ErrUnknownFormat   = errors.New("unknown report format")
)
