package display

import "errors"

var (
	ErrBadStall      = errors.New("malformed stall specification")
	ErrBadStallUnit  = errors.New("unknown stall duration unit")
	ErrUnknownStall  = errors.New("unknown stall point")
	ErrBadPercentage = errors.New("stall percentage out of range")
)
