//go:build unit

package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergingrobotics/go-hwcval/pkg/buffer"
	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/drm"
	"github.com/emergingrobotics/go-hwcval/pkg/layerlist"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
	"github.com/emergingrobotics/go-hwcval/testutil"
)

func placed(buf *buffer.Buffer) transform.Transform {
	return transform.FromLayer(buf, 0, fullScreen(buf).Geometry)
}

func listOf(bufs ...*buffer.Buffer) *layerlist.List {
	ll := layerlist.New(len(bufs))
	for _, b := range bufs {
		ll.Add(fullScreen(b))
	}
	return ll
}

func bindPlane(p *Plane, buf *buffer.Buffer) {
	if buf == nil {
		p.ClearBuf()
		return
	}
	p.SetBuf(buf)
	p.SetSourceCrop(0, 0, float64(buf.Width()), float64(buf.Height()))
	p.SetDisplayFrame(0, 0, buf.Width(), buf.Height())
}

func TestFlickerClassification(t *testing.T) {
	a := newBuf(1, drm.FormatXRGB8888, 640, 480)
	b := newBuf(2, drm.FormatXRGB8888, 640, 480)
	b16 := newBuf(3, drm.FormatRGB565, 640, 480)

	type frame struct {
		a, b *buffer.Buffer
		span bool
	}
	tests := []struct {
		name   string
		frames []frame
		check  checks.Check
	}{
		{
			name:   "updates span a vblank",
			frames: []frame{{a, b, false}, {a, b, true}},
			check:  checks.CheckFlicker,
		},
		{
			name:   "colour depth change",
			frames: []frame{{a, b, false}, {a, b16, true}},
			check:  checks.CheckFlickerClrDepth,
		},
		{
			name:   "leaving max fifo",
			frames: []frame{{a, b, false}, {a, nil, false}, {a, b, true}},
			check:  checks.CheckFlickerMaxFifo,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ledger, _ := newTestCrtc(t, DeviceBroxton)
			pa := NewPlane(10, drm.PlaneTypePrimary)
			pb := NewPlane(11, drm.PlaneTypeOverlay)
			c.AddPlane(pa)
			c.AddPlane(pb)
			k := &fakeKernel{}

			for i, f := range tt.frames {
				seq := uint32(i + 1)
				bindPlane(pa, f.a)
				c.SetDrmFrame()
				if f.span {
					c.VBlank(seq)
				}
				bindPlane(pb, f.b)
				c.SetDrmFrame()
				if !f.span {
					c.VBlank(seq)
				}

				var bufs []*buffer.Buffer
				for _, buf := range []*buffer.Buffer{f.a, f.b} {
					if buf != nil {
						bufs = append(bufs, buf)
					}
				}
				c.Checks(listOf(bufs...), k, seq)
			}

			all := []checks.Check{checks.CheckFlicker, checks.CheckFlickerClrDepth, checks.CheckFlickerMaxFifo}
			for _, check := range all {
				want := uint32(0)
				if check == tt.check {
					want = 1
				}
				if got := ledger.FailCount(check); got != want {
					t.Errorf("FailCount(%s) = %d, expected %d", check, got, want)
				}
			}
		})
	}
}

func TestConsistencyLayerOrder(t *testing.T) {
	a := newBuf(1, drm.FormatXRGB8888, 1920, 1080)
	b := newBuf(2, drm.FormatXRGB8888, 1920, 1080)

	tests := []struct {
		name      string
		onScreen  []*buffer.Buffer
		wantOrder uint32
	}{
		{"same order", []*buffer.Buffer{a, b}, 0},
		{"swapped", []*buffer.Buffer{b, a}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ledger, _ := newTestCrtc(t, DeviceBroxton)
			for _, buf := range tt.onScreen {
				c.transforms = append(c.transforms, placed(buf))
			}

			c.ConsistencyChecks(listOf(a, b), &fakeKernel{}, 5)

			assert.Equal(t, tt.wantOrder, ledger.FailCount(checks.CheckLayerOrder))
			assert.Equal(t, uint32(0), ledger.FailCount(checks.CheckLayerDisplay))
			for i, tr := range c.transforms {
				assert.NotEqual(t, transform.NoLayer, tr.LayerIndex, "transform %d unmatched", i)
			}
		})
	}
}

func TestConsistencyMissingAndExtraLayers(t *testing.T) {
	a := newBuf(1, drm.FormatXRGB8888, 1920, 1080)
	b := newBuf(2, drm.FormatXRGB8888, 1920, 1080)

	t.Run("missing", func(t *testing.T) {
		c, ledger, _ := newTestCrtc(t, DeviceBroxton)
		c.validatedFrames = 5
		c.transforms = []transform.Transform{placed(a)}

		c.ConsistencyChecks(listOf(a, b), &fakeKernel{}, 5)
		assert.Equal(t, uint32(1), ledger.FailCount(checks.CheckLayerDisplay))
	})

	t.Run("missing on first frames", func(t *testing.T) {
		c, ledger, _ := newTestCrtc(t, DeviceBroxton)
		c.validatedFrames = 1
		c.transforms = []transform.Transform{placed(a)}

		c.ConsistencyChecks(listOf(a, b), &fakeKernel{}, 5)
		assert.Equal(t, uint32(0), ledger.FailCount(checks.CheckLayerDisplay))
	})

	t.Run("extra", func(t *testing.T) {
		c, ledger, _ := newTestCrtc(t, DeviceBroxton)
		c.transforms = []transform.Transform{placed(a), placed(b)}

		c.ConsistencyChecks(listOf(a, a), &fakeKernel{}, 5)
		assert.Equal(t, uint32(1), ledger.FailCount(checks.CheckLayerDisplay))
	})

	t.Run("extra snapshot", func(t *testing.T) {
		c, ledger, _ := newTestCrtc(t, DeviceBroxton)
		c.transforms = []transform.Transform{placed(a), placed(b)}

		c.ConsistencyChecks(listOf(a, a), &fakeKernel{snapshot: b.Handle()}, 5)
		assert.Equal(t, uint32(0), ledger.FailCount(checks.CheckLayerDisplay))
	})
}

func TestConsistencyTargetExpandedToLayer(t *testing.T) {
	x := newBuf(1, drm.FormatXRGB8888, 1920, 1080)
	y := newBuf(2, drm.FormatXRGB8888, 1920, 1080)
	y.SetFbtDisplay(0)

	ll := layerlist.New(2)
	ll.Add(fullScreen(x))
	target := fullScreen(y)
	target.Composition = layerlist.CompositionTarget
	ll.Add(target)

	c, ledger, _ := newTestCrtc(t, DeviceBroxton)
	c.validatedFrames = 5
	c.transforms = []transform.Transform{placed(x)}

	c.ConsistencyChecks(ll, &fakeKernel{}, 5)
	assert.Equal(t, uint32(0), ledger.FailCount(checks.CheckLayerDisplay))
	assert.Equal(t, uint32(0), ledger.FailCount(checks.CheckLayerOrder))
	assert.Equal(t, 0, c.transforms[0].LayerIndex)
}

func TestConsistencyTransparentOverVideo(t *testing.T) {
	video := newBuf(1, drm.FormatNV12, 1920, 1080)
	overlay := newBuf(2, drm.FormatARGB8888, 1920, 1080)
	overlay.SetBufCopy(testutil.MakeTestImage(1920, 1080, 0))

	c, ledger, _ := newTestCrtc(t, DeviceBroxton)
	cmp := c.env.Cmp.(*testutil.FakeComparator)
	cmp.SetTransparent(true)
	c.validatedFrames = 5
	c.transforms = []transform.Transform{placed(video)}

	c.ConsistencyChecks(listOf(video, overlay), &fakeKernel{}, 5)
	assert.Equal(t, uint32(0), ledger.FailCount(checks.CheckLayerDisplay))
	assert.Equal(t, 1, cmp.Calls())
}

func TestConsistencySkippedFrames(t *testing.T) {
	a := newBuf(1, drm.FormatXRGB8888, 1920, 1080)
	b := newBuf(2, drm.FormatXRGB8888, 1920, 1080)

	c, ledger, _ := newTestCrtc(t, DeviceBroxton)
	c.transforms = []transform.Transform{placed(b), placed(a)}

	c.ConsistencyChecks(listOf(a, b), &fakeKernel{}, 0)
	c.SetSkipAllLayers(true)
	c.ConsistencyChecks(listOf(a, b), &fakeKernel{}, 6)
	assert.Equal(t, uint32(0), ledger.FailCount(checks.CheckLayerOrder))
}

func TestSetPlaneNeededAfterRotate(t *testing.T) {
	c, ledger, _ := newTestCrtc(t, DeviceBroxton)
	p := NewPlane(10, drm.PlaneTypePrimary)
	c.AddPlane(p)
	a := newBuf(1, drm.FormatXRGB8888, 1920, 1080)
	bindPlane(p, a)

	p.SetRotation(transform.Rot180)
	c.Checks(listOf(a), &fakeKernel{}, 1)
	assert.Equal(t, uint32(1), ledger.FailCount(checks.CheckSetPlaneNeededAfterRotate))

	c.Checks(listOf(a), &fakeKernel{}, 2)
	assert.Equal(t, uint32(1), ledger.FailCount(checks.CheckSetPlaneNeededAfterRotate))
	assert.Equal(t, uint32(2), ledger.EvalCount(checks.CheckSetPlaneNeededAfterRotate))
}

func TestExtendedModeChecks(t *testing.T) {
	tests := []struct {
		name  string
		k     fakeKernel
		fails uint32
	}{
		{"off as expected", fakeKernel{expect: checks.PanelOff, offAllowed: true}, 0},
		{"off not allowed", fakeKernel{expect: checks.PanelOff}, 1},
		{"on as expected", fakeKernel{expect: checks.PanelOn}, 0},
		{"on but off required", fakeKernel{expect: checks.PanelOn, offRequired: true}, 1},
		{"don't care", fakeKernel{expect: checks.PanelDontCare, offRequired: true}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ledger, _ := newTestCrtc(t, DeviceBroxton)
			c.ExtendedModeChecks(&tt.k)
			assert.Equal(t, uint32(1), ledger.EvalCount(checks.CheckExtendedModeExpectation))
			assert.Equal(t, tt.fails, ledger.FailCount(checks.CheckExtendedModeExpectation))
		})
	}
}

func TestBroxtonScaling(t *testing.T) {
	tests := []struct {
		name      string
		format    uint32
		dst       uint32
		wantFails uint32
		scalers   int
	}{
		{"nv12 at half", drm.FormatNV12, 50, 0, 1},
		{"nv12 below half", drm.FormatNV12, 49, 1, 1},
		{"rgb at a third", drm.FormatXRGB8888, 34, 0, 1},
		{"rgb below a third", drm.FormatXRGB8888, 32, 1, 1},
		{"rgb unscaled", drm.FormatXRGB8888, 100, 0, 0},
		{"nv12 unscaled", drm.FormatNV12, 100, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ledger, _ := newTestCrtc(t, DeviceBroxton)
			require.Equal(t, uint32(0), c.Clock())
			p := NewPlane(10, drm.PlaneTypeOverlay)
			p.SetBuf(newBuf(1, tt.format, 100, 100))

			got := c.BroxtonPlaneValidation(p, "Plane", p.ID(), 100, 100, tt.dst, tt.dst, transform.Identity)
			assert.Equal(t, tt.scalers, got)
			assert.Equal(t, tt.wantFails, ledger.FailCount(checks.CheckScalingFactor))
		})
	}
}

func TestBroxtonScalerSourceSize(t *testing.T) {
	c, ledger, _ := newTestCrtc(t, DeviceBroxton)
	p := NewPlane(10, drm.PlaneTypeOverlay)
	p.SetBuf(newBuf(1, drm.FormatNV12, 100, 100))

	c.BroxtonPlaneValidation(p, "Plane", p.ID(), 12, 12, 24, 24, transform.Identity)
	assert.Equal(t, uint32(2), ledger.FailCount(checks.CheckBadScalerSourceSize))

	ledger.Reset()
	c.BroxtonPlaneValidation(p, "Plane", p.ID(), 6, 100, 12, 200, transform.Identity)
	assert.Equal(t, uint32(1), ledger.FailCount(checks.CheckBadScalerSourceSize))
}

func TestBroxtonRenderCompressedRotation(t *testing.T) {
	c, ledger, _ := newTestCrtc(t, DeviceBroxton)
	p := NewPlane(10, drm.PlaneTypeOverlay)
	p.SetBuf(newBuf(1, drm.FormatXRGB8888, 100, 100))
	p.SetModifier(drm.ModIntelYTiledCCS)
	require.True(t, p.IsRenderCompressed())

	c.BroxtonPlaneValidation(p, "Plane", p.ID(), 100, 50, 50, 100, transform.Rot90)
	assert.Equal(t, uint32(1), ledger.FailCount(checks.CheckRCWithInvalidRotation))
}
