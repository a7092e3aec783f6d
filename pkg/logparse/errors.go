package logparse

import "github.com/pkg/errors"

var (
	// ErrNilSink is returned when a reader is run without an event sink
	ErrNilSink = errors.New("logparse: nil event sink")
)
