//go:build unit

package layerlist

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergingrobotics/go-hwcval/pkg/buffer"
	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/drm"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newLedger() *checks.Ledger {
	l := checks.NewLedger(nil, checks.WithLogger(quiet()))
	l.Configure(func(c *checks.Config) { c.Initialise(true, true, true, true, false) })
	return l
}

func listWithFence(signalled bool) *List {
	l := New(1)
	l.RetireFence = NewFence(10)
	if signalled {
		l.RetireFence.Signal()
	}
	return l
}

func TestValidity(t *testing.T) {
	tests := []struct {
		v    Validity
		want bool
	}{
		{Invalid, false},
		{InvalidWithinTimeout, false},
		{Invalidating, false},
		{ValidUntilModeChange, true},
		{Valid, true},
		{Indeterminate, true},
	}
	for _, tt := range tests {
		if got := tt.v.IsValid(); got != tt.want {
			t.Errorf("%s.IsValid() = %v, expected %v", tt.v, got, tt.want)
		}
	}
	assert.Equal(t, "Unknown", Validity(42).String())
	assert.Equal(t, "TGT", CompositionTarget.String())
}

func TestLayerVisibleBounds(t *testing.T) {
	layer := Layer{Geometry: transform.Geometry{DisplayFrame: transform.Rect{Left: 10, Top: 10, Right: 110, Bottom: 60}}}
	assert.Equal(t, layer.Geometry.DisplayFrame, layer.VisibleBounds())

	layer.Visible = []transform.Rect{{Left: 20, Top: 10, Right: 50, Bottom: 30}, {Left: 40, Top: 25, Right: 90, Bottom: 60}}
	assert.Equal(t, transform.Rect{Left: 20, Top: 10, Right: 90, Bottom: 60}, layer.VisibleBounds())

	assert.False(t, layer.IsSkip())
	layer.Flags = FlagSkip
	assert.True(t, layer.IsSkip())
	assert.Equal(t, buffer.Handle(0), layer.Handle())
}

func TestListIsVideo(t *testing.T) {
	rgb := buffer.New(1, transform.SourceInput)
	rgb.SetMeta(buffer.Meta{Format: drm.FormatXRGB8888})
	nv12 := buffer.New(2, transform.SourceInput)
	nv12.SetMeta(buffer.Meta{Format: drm.FormatNV12})

	l := New(2)
	l.Add(Layer{Buf: rgb})
	l.Add(Layer{})
	assert.False(t, l.IsVideo())

	l.Add(Layer{Buf: nv12})
	assert.True(t, l.IsVideo())
	assert.Equal(t, 3, l.NumLayers())
}

func TestFence(t *testing.T) {
	var nilFence *Fence
	assert.True(t, nilFence.IsSignalled())
	assert.Equal(t, -1, nilFence.Fd())

	f := NewFence(12)
	assert.False(t, f.IsSignalled())
	f.Signal()
	assert.True(t, f.IsSignalled())
}

func TestQueueGetFrame(t *testing.T) {
	rec := newLedger()
	q := NewQueue(0, 10, rec, quiet())

	lists := make(map[uint32]*List)
	for f := uint32(1); f <= 4; f++ {
		lists[f] = listWithFence(true)
		q.Push(lists[f], f)
	}
	assert.Equal(t, uint32(1), q.FrontFrame())
	assert.Equal(t, uint32(4), q.BackFrame())
	assert.True(t, q.BackNeedsValidating())

	assert.Same(t, lists[3], q.GetFrame(3, true))
	assert.Equal(t, 2, q.Len(), "older frames discarded")
	assert.Equal(t, uint32(3), q.FrontFrame())

	assert.Same(t, lists[3], q.GetFrame(3, true), "same frame can be fetched again")
	assert.Nil(t, q.GetFrame(2, true), "discarded frames are gone")

	assert.Same(t, lists[4], q.GetFrame(4, true))
	assert.False(t, q.BackNeedsValidating())
	assert.Equal(t, uint32(0), rec.FailCount(checks.CheckFlipFences))
}

func TestQueueReportsUnsignalledEarlierFrame(t *testing.T) {
	rec := newLedger()
	q := NewQueue(1, 10, rec, quiet())

	q.Push(listWithFence(false), 1)
	q.Push(listWithFence(true), 2)
	q.Push(listWithFence(false), 3)
	q.Push(listWithFence(true), 4)

	// The first pop only arms the expectation
	q.GetFrame(2, true)
	assert.Equal(t, uint32(0), rec.FailCount(checks.CheckFlipFences))

	q.GetFrame(4, true)
	assert.Equal(t, uint32(1), rec.FailCount(checks.CheckFlipFences), "frame 3 still unsignalled")
}

func TestQueueSkipsFenceCheckAfterDrop(t *testing.T) {
	rec := newLedger()
	q := NewQueue(0, 10, rec, quiet())

	q.Push(listWithFence(true), 1)
	q.Push(listWithFence(false), 2)
	q.Push(listWithFence(false), 3)
	q.Push(listWithFence(true), 4)

	q.GetFrame(2, true)
	q.GetFrame(4, false)
	assert.Equal(t, uint32(0), rec.FailCount(checks.CheckFlipFences))
}

func TestQueueOverflowEvictsOldest(t *testing.T) {
	rec := newLedger()
	q := NewQueue(0, 3, rec, quiet())

	q.Push(listWithFence(false), 1)
	q.Push(listWithFence(true), 2)
	q.Push(listWithFence(true), 3)
	require.True(t, q.IsFull())

	q.Push(listWithFence(true), 4)
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, uint32(2), q.FrontFrame())
	assert.Equal(t, uint32(1), rec.FailCount(checks.CheckLLQOverflow))
	assert.Equal(t, uint32(1), rec.FailCount(checks.CheckRetireFenceSignalledPromptly))

	q.Push(listWithFence(true), 5)
	assert.Equal(t, uint32(2), rec.FailCount(checks.CheckLLQOverflow))
	assert.Equal(t, uint32(1), rec.FailCount(checks.CheckRetireFenceSignalledPromptly), "signalled fences expire quietly")
}

func TestQueueDefaultDepth(t *testing.T) {
	q := NewQueue(0, 0, newLedger(), nil)
	for f := uint32(1); f <= DefaultDepth; f++ {
		q.Push(New(0), f)
	}
	assert.True(t, q.IsFull())
	assert.Nil(t, q.Back().RetireFence)
}
