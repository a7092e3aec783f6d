package buffer

import "errors"

// Errors for buffer bookkeeping
var (
	ErrDanglingBo      = errors.New("buffer object points at a buffer that does not hold it")
	ErrAsymmetricBo    = errors.New("buffer holds a buffer object that points elsewhere")
	ErrStillReferenced = errors.New("buffer is still referenced by a composition")
)
