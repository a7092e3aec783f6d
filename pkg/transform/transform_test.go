//go:build unit

package transform

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/drm"
)

type fakeBuf struct {
	name   string
	alpha  bool
	target bool
}

func (f *fakeBuf) String() string            { return f.name }
func (f *fakeBuf) IsCompositionTarget() bool { return f.target }
func (f *fakeBuf) FormatHasPixelAlpha() bool { return f.alpha }

func newLedger() *checks.Ledger {
	l := checks.NewLedger(nil, checks.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	l.Configure(func(c *checks.Config) { c.Initialise(true, true, true, true, false) })
	return l
}

func TestProductTableIsAGroup(t *testing.T) {
	for a := Identity; a < MaxID; a++ {
		if got, _ := a.Then(Identity); got != a {
			t.Errorf("%s then None = %s", a, got)
		}
		if got, _ := Identity.Then(a); got != a {
			t.Errorf("None then %s = %s", a, got)
		}
		if got, _ := a.Then(a.Inverse()); got != Identity {
			t.Errorf("%s then inverse %s = %s", a, a.Inverse(), got)
		}
		for b := Identity; b < MaxID; b++ {
			for c := Identity; c < MaxID; c++ {
				ab, _ := a.Then(b)
				bc, _ := b.Then(c)
				left, _ := ab.Then(c)
				right, _ := a.Then(bc)
				if left != right {
					t.Fatalf("not associative for %s %s %s", a, b, c)
				}
			}
		}
	}
}

func TestProductKnownValues(t *testing.T) {
	tests := []struct {
		a, b, want ID
	}{
		{Rot90, Rot90, Rot180},
		{Rot90, Rot180, Rot270},
		{ReflectX, ReflectY, Rot180},
		{ReflectX, Rot90, Flip45},
		{Rot90, ReflectX, Flip135},
	}
	for _, tt := range tests {
		got, ok := tt.a.Then(tt.b)
		if !ok || got != tt.want {
			t.Errorf("%s.Then(%s) = %s, expected %s", tt.a, tt.b, got, tt.want)
		}
	}

	if _, ok := ID(9).Then(Identity); ok {
		t.Error("invalid transform should not combine")
	}
}

func TestIDNames(t *testing.T) {
	want := []string{"None", "FlipH", "FlipV", "Rot180", "Rot90", "Flip135", "Flip45", "Rot270"}
	for i, name := range want {
		assert.Equal(t, name, ID(i).String())
	}
	assert.Equal(t, "ID(12)", ID(12).String())
}

func TestFromDrmRotation(t *testing.T) {
	tests := []struct {
		rotation uint32
		want     ID
		ok       bool
	}{
		{0, Identity, true},
		{drm.RotateZero, Identity, true},
		{drm.Rotate90, Rot90, true},
		{drm.Rotate180, Rot180, true},
		{drm.Rotate270, Rot270, true},
		{drm.RotateZero | drm.ReflectX, ReflectX, true},
		{drm.RotateZero | drm.ReflectX | drm.ReflectY, Rot180, true},
		{drm.Rotate90 | drm.ReflectX, Flip45, true},
		{drm.Rotate90 | drm.Rotate180, Identity, false},
	}
	for _, tt := range tests {
		got, ok := FromDrmRotation(tt.rotation)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FromDrmRotation(%#x) = %s, %v, expected %s, %v", tt.rotation, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFromLayerScales(t *testing.T) {
	buf := &fakeBuf{name: "buf", alpha: true}

	tr := FromLayer(buf, 2, Geometry{
		SourceCrop:   RectF{0, 0, 200, 100},
		DisplayFrame: Rect{10, 20, 110, 70},
		Blending:     BlendPremult,
		PlaneAlpha:   1,
	})
	assert.Equal(t, 0.5, tr.XScale)
	assert.Equal(t, 0.5, tr.YScale)
	assert.Equal(t, uint64(2)<<56, tr.ZOrder)
	assert.Equal(t, NoLayer, tr.LayerIndex)
	assert.True(t, tr.HasPixelAlpha)
	assert.Equal(t, Rect{10, 20, 110, 70}, tr.EffectiveDisplayFrame())

	rot := FromLayer(buf, 0, Geometry{
		SourceCrop:   RectF{0, 0, 100, 50},
		DisplayFrame: Rect{0, 0, 50, 100},
		Rotation:     Rot90,
	})
	assert.Equal(t, 1.0, rot.XScale)
	assert.Equal(t, 1.0, rot.YScale)
	assert.Equal(t, Rect{0, 0, 50, 100}, rot.EffectiveDisplayFrame())
}

func TestInverse(t *testing.T) {
	tr := FromLayer(nil, 0, Geometry{
		SourceCrop:   RectF{0, 0, 200, 100},
		DisplayFrame: Rect{10, 20, 110, 70},
	})
	inv := tr.Inverse()
	assert.Equal(t, RectF{10, 20, 110, 70}, inv.SourceCrop)
	assert.Equal(t, 2.0, inv.XScale)
	assert.Equal(t, Rect{0, 0, 200, 100}, inv.EffectiveDisplayFrame())

	r90 := Transform{Rotation: Rot90, XScale: 2, YScale: 4, SourceCrop: RectF{0, 0, 10, 10}}
	inv90 := r90.Inverse()
	assert.Equal(t, Rot270, inv90.Rotation)
	assert.Equal(t, 0.25, inv90.XScale)
	assert.Equal(t, 0.5, inv90.YScale)
}

func TestInverseTransformRect(t *testing.T) {
	g := Geometry{
		SourceCrop:   RectF{0, 0, 200, 100},
		DisplayFrame: Rect{10, 20, 110, 70},
	}
	got := InverseTransformRect(Rect{10, 20, 60, 45}, g)
	assert.Equal(t, Rect{0, 0, 100, 50}, got)
}

func TestCombineWithIdentityScreen(t *testing.T) {
	buf := &fakeBuf{name: "layer"}
	layer := FromLayer(buf, 1, Geometry{
		SourceCrop:   RectF{0, 0, 1920, 1080},
		DisplayFrame: Rect{0, 0, 1920, 1080},
		PlaneAlpha:   1,
	})
	screen := New(nil, 1920, 1080)

	got := Combine(layer, screen, nil)

	assert.Equal(t, RectF{0, 0, 1920, 1080}, got.SourceCrop)
	assert.Equal(t, Rect{0, 0, 1920, 1080}, got.EffectiveDisplayFrame())
	assert.Equal(t, Identity, got.Rotation)
	assert.Same(t, buf, got.Buf.(*fakeBuf))
}

func TestCombineScalesToScreen(t *testing.T) {
	layer := FromLayer(nil, 0, Geometry{
		SourceCrop:   RectF{0, 0, 1920, 1080},
		DisplayFrame: Rect{0, 0, 1920, 1080},
	})
	got := Combine(layer, NewScale(1920, 1080, 960, 540), nil)
	assert.Equal(t, Rect{0, 0, 960, 540}, got.EffectiveDisplayFrame())
	assert.Equal(t, 0.5, got.XScale)
}

func TestCombineCropsOffScreen(t *testing.T) {
	layer := FromLayer(nil, 0, Geometry{
		SourceCrop:   RectF{0, 0, 100, 100},
		DisplayFrame: Rect{-50, 0, 50, 100},
	})
	got := Combine(layer, New(nil, 1920, 1080), nil)

	assert.Equal(t, RectF{50, 0, 100, 100}, got.SourceCrop)
	assert.Equal(t, Rect{0, 0, 50, 100}, got.EffectiveDisplayFrame())
}

func TestCombineMirrorsIntoFlippedParent(t *testing.T) {
	child := FromLayer(nil, 0, Geometry{
		SourceCrop:   RectF{0, 0, 20, 100},
		DisplayFrame: Rect{10, 0, 30, 100},
	})
	parent := New(nil, 100, 100)
	parent.Rotation = ReflectX

	got := Combine(child, parent, nil)

	assert.Equal(t, ReflectX, got.Rotation)
	assert.Equal(t, Rect{70, 0, 90, 100}, got.EffectiveDisplayFrame())
}

func TestCombineIntoRotatedParent(t *testing.T) {
	child := FromLayer(nil, 0, Geometry{
		SourceCrop:   RectF{0, 0, 100, 50},
		DisplayFrame: Rect{0, 0, 100, 50},
	})
	parent := New(nil, 100, 50)
	parent.Rotation = Rot90

	got := Combine(child, parent, nil)

	assert.Equal(t, Rot90, got.Rotation)
	assert.Equal(t, Rect{0, 0, 50, 100}, got.EffectiveDisplayFrame())
}

func TestCombineNestsZOrder(t *testing.T) {
	child := New(nil, 10, 10)
	child.SetPlaneOrder(2)
	parent := New(nil, 10, 10)
	parent.SetPlaneOrder(1)

	got := Combine(child, parent, nil)
	assert.Equal(t, uint64(1)<<56|uint64(2)<<48, got.ZOrder)
	assert.Equal(t, uint32(2), got.ZOrderLevels)
}

func TestCombineReportsZOrderOverflow(t *testing.T) {
	rec := newLedger()
	a := New(nil, 10, 10)
	a.ZOrderLevels = 5
	b := New(nil, 10, 10)
	b.ZOrderLevels = 4

	Combine(a, b, rec)
	assert.Equal(t, uint32(1), rec.FailCount(checks.CheckInternalZOrder))
}

func TestCombineBlending(t *testing.T) {
	rec := newLedger()
	a := New(nil, 10, 10)
	a.SetBlend(BlendPremult, true, 0.5)

	b := New(nil, 10, 10)
	b.SetBlend(BlendNone, false, 0.25)
	got := Combine(a, b, rec)
	assert.Equal(t, float32(0.5), got.PlaneAlpha)
	assert.Equal(t, BlendPremult, got.Blending)

	b.SetBlend(BlendPremult, false, 0.5)
	got = Combine(a, b, rec)
	assert.Equal(t, float32(0.25), got.PlaneAlpha)

	b.Buf = &fakeBuf{name: "fbt", target: true}
	b.SetBlend(BlendCoverage, false, 1)
	Combine(a, b, rec)
	assert.Equal(t, uint32(1), rec.FailCount(checks.CheckCompositionBlend))
}

func TestIsDfIntersecting(t *testing.T) {
	tests := []struct {
		name string
		df   Rect
		want bool
	}{
		{"on screen", Rect{0, 0, 100, 100}, true},
		{"partly off left", Rect{-50, 0, 50, 100}, true},
		{"wholly left", Rect{-100, 0, 0, 100}, false},
		{"wholly above", Rect{0, -100, 100, 0}, false},
		{"beyond right", Rect{1921, 0, 2000, 100}, false},
		{"touching right edge", Rect{1920, 0, 2000, 100}, true},
		{"empty", Rect{10, 10, 10, 100}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := FromLayer(nil, 0, Geometry{SourceCrop: RectF{0, 0, 100, 100}, DisplayFrame: tt.df})
			if got := tr.IsDfIntersecting(1920, 1080); got != tt.want {
				t.Errorf("IsDfIntersecting(%s) = %v, expected %v", tt.df, got, tt.want)
			}
		})
	}
}

func TestFixedAspectRatio(t *testing.T) {
	letterbox := FixedAspectRatio(1920, 1080, 1920, 1200)
	assert.Equal(t, 1.0, letterbox.XScale)
	assert.Equal(t, 60.0, letterbox.YOffset)
	assert.Equal(t, Rect{0, 60, 1920, 1140}, letterbox.EffectiveDisplayFrame())

	pillar := FixedAspectRatio(1000, 1000, 2000, 1000)
	assert.Equal(t, 1.0, pillar.YScale)
	assert.Equal(t, 500.0, pillar.XOffset)
}

func TestCroppedUsesVisibleRegion(t *testing.T) {
	g := Geometry{
		SourceCrop:   RectF{0, 0, 100, 100},
		DisplayFrame: Rect{0, 0, 100, 100},
		PlaneAlpha:   1,
	}
	screen := New(nil, 1920, 1080)

	full := Cropped(nil, 3, g, nil, 1920, 1080, screen, nil)
	assert.Equal(t, 3, full.LayerIndex)
	assert.Equal(t, RectF{0, 0, 100, 100}, full.SourceCrop)

	half := Cropped(nil, 3, g, []Rect{{0, 0, 50, 100}}, 1920, 1080, screen, nil)
	assert.Equal(t, RectF{0, 0, 50, 100}, half.SourceCrop)
}

func TestSortByZOrder(t *testing.T) {
	rec := newLedger()
	mk := func(z uint64, name string) Transform {
		tr := New(&fakeBuf{name: name}, 1, 1)
		tr.ZOrder = z
		return tr
	}
	ts := []Transform{mk(3, "c"), mk(1, "a"), mk(2, "b")}
	SortByZOrder(ts, rec)

	var names []string
	for _, tr := range ts {
		names = append(names, tr.Buf.String())
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, names); diff != "" {
		t.Errorf("sorted order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint32(0), rec.FailCount(checks.CheckInternalZOrder))

	SortByZOrder([]Transform{mk(1, "x"), mk(1, "y")}, rec)
	assert.Equal(t, uint32(1), rec.FailCount(checks.CheckInternalZOrder))
}

func TestCompareIdentical(t *testing.T) {
	rec := newLedger()
	buf := &fakeBuf{name: "b", alpha: true}
	want := FromLayer(buf, 1, Geometry{SourceCrop: RectF{0, 0, 100, 100}, DisplayFrame: Rect{0, 0, 100, 100}, Blending: BlendPremult, PlaneAlpha: 1})
	want.LayerIndex = 1

	var counts ErrorCounts
	want.Compare(want, want, 0, 10, &counts, rec)

	assert.Equal(t, ErrorCounts{}, counts)
	for _, c := range []checks.Check{checks.CheckPlaneTransform, checks.CheckPlaneBlending, checks.CheckPixelAlpha, checks.CheckPlaneAlpha} {
		assert.Equal(t, uint32(0), rec.FailCount(c), c.String())
		assert.Equal(t, uint32(1), rec.EvalCount(c), c.String())
	}
}

func TestCompareMismatches(t *testing.T) {
	rec := newLedger()
	buf := &fakeBuf{name: "b", alpha: true}
	want := FromLayer(buf, 1, Geometry{SourceCrop: RectF{0, 0, 100, 100}, DisplayFrame: Rect{0, 0, 100, 100}, Blending: BlendPremult, PlaneAlpha: 1})
	want.LayerIndex = 1

	actual := want
	actual.SourceCrop = RectF{5, 0, 105, 100}
	actual.XOffset = 10
	actual.Rotation = Rot180
	actual.PlaneAlpha = 0.5

	var counts ErrorCounts
	want.Compare(actual, want, 0, 10, &counts, rec)

	assert.Equal(t, ErrorCounts{Crop: 1, Scale: 1}, counts)
	assert.Equal(t, uint32(1), rec.FailCount(checks.CheckPlaneTransform))
	assert.Equal(t, uint32(0), rec.FailCount(checks.CheckPlaneBlending))
	assert.Equal(t, uint32(1), rec.FailCount(checks.CheckPlaneAlpha))
}

func TestCompareBlending(t *testing.T) {
	buf := &fakeBuf{name: "b", alpha: true}
	base := FromLayer(buf, 1, Geometry{SourceCrop: RectF{0, 0, 100, 100}, DisplayFrame: Rect{0, 0, 100, 100}, PlaneAlpha: 1})
	base.LayerIndex = 1

	tests := []struct {
		name          string
		want, actual  Blending
		actualAlpha   bool
		blendFails    uint32
		pixelAlphaErr uint32
	}{
		{"none shown premult", BlendNone, BlendPremult, true, 0, 0},
		{"premult shown coverage", BlendPremult, BlendCoverage, true, 1, 0},
		{"premult shown coverage without alpha", BlendPremult, BlendCoverage, false, 0, 1},
		{"premult alpha lost", BlendPremult, BlendPremult, false, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newLedger()
			want := base
			want.Blending = tt.want
			actual := base
			actual.Blending = tt.actual
			actual.HasPixelAlpha = tt.actualAlpha

			var counts ErrorCounts
			want.Compare(actual, want, 0, 1, &counts, rec)
			assert.Equal(t, tt.blendFails, rec.FailCount(checks.CheckPlaneBlending))
			assert.Equal(t, tt.pixelAlphaErr, rec.FailCount(checks.CheckPixelAlpha))
		})
	}
}

func TestCompareEmptyCropsMatch(t *testing.T) {
	rec := newLedger()
	want := New(nil, 1, 1)
	actual := New(nil, 0.5, 300)
	actual.XOffset = 500

	var counts ErrorCounts
	want.Compare(actual, want, 0, 1, &counts, rec)
	assert.Equal(t, ErrorCounts{}, counts)
	assert.Equal(t, uint32(0), rec.EvalCount(checks.CheckPlaneTransform))
}
