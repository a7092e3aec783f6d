package buffer

import (
	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
)

// AddSourceFBsToList appends to dst the leaf transforms that t expands to.
// If the buffer was composed from others, each child transform is combined
// with t and expanded in turn, depth first; otherwise t itself is appended.
// Every appended transform carries the source types of all the buffers it
// passed through, its own included.
func (b *Buffer) AddSourceFBsToList(dst []transform.Transform, t transform.Transform, sources transform.SourceMask, rec checks.Recorder) []transform.Transform {
	sources |= b.source.Bit()

	if len(b.combinedFrom) == 0 {
		t.Sources = sources
		return append(dst, t)
	}

	for _, child := range b.combinedFrom {
		combined := transform.Combine(child, t, rec)
		childBuf, ok := child.Buf.(*Buffer)
		if !ok || childBuf == nil {
			combined.Sources = sources
			dst = append(dst, combined)
			continue
		}
		dst = childBuf.AddSourceFBsToList(dst, combined, sources, rec)
	}
	return dst
}

// Flatten expands t into a fresh list of leaf transforms. A transform
// whose buffer is not a *Buffer is returned as is.
func Flatten(t transform.Transform, rec checks.Recorder) []transform.Transform {
	b, ok := t.Buf.(*Buffer)
	if !ok || b == nil {
		return []transform.Transform{t}
	}
	return b.AddSourceFBsToList(nil, t, 0, rec)
}

// Leaves returns the leaf buffers of b's composition tree in depth-first
// order, b itself if it has no children
func (b *Buffer) Leaves() []*Buffer {
	if len(b.combinedFrom) == 0 {
		return []*Buffer{b}
	}
	var out []*Buffer
	for _, child := range b.combinedFrom {
		if cb, ok := child.Buf.(*Buffer); ok && cb != nil {
			out = append(out, cb.Leaves()...)
		} else {
			out = append(out, nil)
		}
	}
	return out
}

// CheckFlattened verifies that list holds exactly the leaves of t's buffer
// in order, reporting an internal error for the first divergence
func CheckFlattened(list []transform.Transform, t transform.Transform, rec checks.Recorder) bool {
	b, ok := t.Buf.(*Buffer)
	if !ok || b == nil {
		return true
	}
	leaves := b.Leaves()

	for i, tr := range list {
		if i >= len(leaves) {
			rec.Report(checks.CheckInternalError, "TRANSFORM MISMATCH: TOO MANY TRANSFORMS IN RESULT expanding %s", b)
			return false
		}
		got, _ := tr.Buf.(*Buffer)
		if got != leaves[i] {
			rec.Report(checks.CheckInternalError, "TRANSFORM MISMATCH: RESULT CONTAINS %s NOT IN SOURCE %s",
				sourceName(tr.Buf), b)
			return false
		}
	}
	if len(list) < len(leaves) {
		rec.Report(checks.CheckInternalError, "TRANSFORM MISMATCH: NOT ALL SOURCES COPIED expanding %s", b)
		return false
	}
	return true
}
