package replay

import "errors"

var (
	ErrUnknownOp    = errors.New("unknown trace op")
	ErrBadArgument  = errors.New("bad trace argument")
	ErrMissingField = errors.New("missing trace field")
)
