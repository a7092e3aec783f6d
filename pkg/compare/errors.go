package compare

import "errors"

// ErrWorkerClosed is returned when submitting to a closed worker
var ErrWorkerClosed = errors.New("comparison worker closed")
