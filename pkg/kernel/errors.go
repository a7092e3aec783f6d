package kernel

import "errors"

// Errors returned by the harness-facing kernel API. Model inconsistencies
// are never errors; they are recorded as check failures.
var (
	ErrClosed         = errors.New("kernel is shut down")
	ErrUnknownDisplay = errors.New("display index out of range")
	ErrNilLayerList   = errors.New("nil layer list")
)
