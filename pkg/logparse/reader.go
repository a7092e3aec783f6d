package logparse

import (
	"bufio"
	"context"
	"io"

	"github.com/pkg/errors"
)

// MaxLineSize bounds a single log line
const MaxLineSize = 64 * 1024

// Stats counts the lines a Reader has seen
type Stats struct {
	Lines   uint64
	Matched uint64
}

// Reader feeds the lines of a log stream through a Parser
type Reader struct {
	parser *Parser
	stats  Stats
}

func NewReader(p *Parser) *Reader {
	if p == nil {
		p = NewParser(nil)
	}
	return &Reader{parser: p}
}

// Run reads src until EOF, passing each event to sink. It stops early if
// ctx is cancelled or sink returns an error.
func (r *Reader) Run(ctx context.Context, src io.Reader, sink func(Event) error) error {
	if sink == nil {
		return ErrNilSink
	}
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 4096), MaxLineSize)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "log read stopped after %d lines", r.stats.Lines)
		}
		r.stats.Lines++
		ev, ok := r.parser.Parse(sc.Text())
		if !ok {
			continue
		}
		r.stats.Matched++
		if err := sink(ev); err != nil {
			return errors.Wrapf(err, "line %d", r.stats.Lines)
		}
	}
	if err := sc.Err(); err != nil {
		return errors.Wrap(err, "failed to read log")
	}
	return nil
}

func (r *Reader) Stats() Stats { return r.stats }
