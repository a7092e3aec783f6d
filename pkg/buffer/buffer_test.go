//go:build unit

package buffer

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/drm"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLedger() *checks.Ledger {
	l := checks.NewLedger(nil, checks.WithLogger(quietLogger()))
	l.Configure(func(c *checks.Config) { c.Initialise(true, true, true, true, true) })
	return l
}

type fakeComparator struct {
	transparent      bool
	ssim             float64
	transparentCalls int
	ssimCalls        int
}

func (f *fakeComparator) Transparent(image.Image, image.Rectangle) bool {
	f.transparentCalls++
	return f.transparent
}

func (f *fakeComparator) SSIM(a, b image.Image, r image.Rectangle, useAlpha bool) float64 {
	f.ssimCalls++
	return f.ssim
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestIndexGetOrCreate(t *testing.T) {
	x := NewIndex(quietLogger())

	bo, created := x.GetOrCreate(3, 0x10)
	require.True(t, created)
	assert.Equal(t, Key{Fd: 3, Handle: 0x10}, bo.Key)

	again, created := x.GetOrCreate(3, 0x10)
	assert.False(t, created)
	assert.Same(t, bo, again)

	other, created := x.GetOrCreate(4, 0x10)
	assert.True(t, created)
	assert.NotSame(t, bo, other)
	assert.Equal(t, 2, x.Len())
	assert.Equal(t, []Key{{3, 0x10}, {4, 0x10}}, x.Keys())
}

func TestIndexRemove(t *testing.T) {
	x := NewIndex(quietLogger())
	buf := New(0, transform.SourceInput)
	buf.SetGlobalID(7)

	a, _ := x.GetOrCreate(3, 1)
	b, _ := x.GetOrCreate(3, 2)
	buf.AddBo(a)
	buf.AddBo(b)

	got, ok := x.Remove(3, 1)
	require.True(t, ok)
	assert.Same(t, buf, got)
	assert.Nil(t, a.Buffer())
	assert.Equal(t, uint32(7), buf.GlobalID(), "global id kept while a BO remains")

	x.Remove(3, 2)
	assert.Equal(t, 0, buf.OpenCount())
	assert.Equal(t, uint32(0), buf.GlobalID())
	assert.Nil(t, x.Lookup(3, 2))

	_, ok = x.Remove(3, 2)
	assert.False(t, ok, "second close is benign")
}

func TestAddBoMovesBetweenBuffers(t *testing.T) {
	first := New(0, transform.SourceInput)
	second := New(0, transform.SourceInput)
	bo := &BO{Key: Key{Fd: 3, Handle: 9}}

	first.AddBo(bo)
	first.AddBo(bo)
	assert.Equal(t, 1, first.OpenCount())

	second.AddBo(bo)
	assert.Same(t, second, bo.Buffer())
	assert.False(t, first.HasBo(bo))
	assert.True(t, second.HasBo(bo))

	assert.False(t, first.RemoveBo(bo))
	assert.True(t, second.RemoveBoKey(3, 9))
	assert.Nil(t, bo.Buffer())
}

func TestRemoveBoNotHeldIsLogged(t *testing.T) {
	var out bytes.Buffer
	buf := New(0x10, transform.SourceInput)
	buf.SetLogger(slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug})))

	assert.False(t, buf.RemoveBo(&BO{Key: Key{Fd: 3, Handle: 9}}))
	assert.Contains(t, out.String(), "remove of buffer object not held")
	assert.Contains(t, out.String(), "boHandle 0x9")

	out.Reset()
	assert.False(t, buf.RemoveBoKey(4, 12))
	assert.Contains(t, out.String(), "boHandle 0xc")
}

func TestReferentialIntegrityUnderRandomOps(t *testing.T) {
	for seed := int64(1); seed <= 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		x := NewIndex(quietLogger())
		pool := []*Buffer{
			New(0, transform.SourceInput), New(0, transform.SourceInput),
			New(0, transform.SourceSfComp), New(0, transform.SourceInput),
		}

		for step := 0; step < 200; step++ {
			fd := 3 + rng.Intn(2)
			handle := uint32(1 + rng.Intn(4))
			buf := pool[rng.Intn(len(pool))]

			switch rng.Intn(5) {
			case 0:
				x.GetOrCreate(fd, handle)
			case 1:
				x.Remove(fd, handle)
			case 2:
				bo, _ := x.GetOrCreate(fd, handle)
				buf.AddBo(bo)
			case 3:
				if bo := x.Lookup(fd, handle); bo != nil {
					buf.RemoveBo(bo)
				}
			case 4:
				buf.RemoveBoKey(fd, handle)
			}

			if err := x.CheckIntegrity(); err != nil {
				t.Fatalf("seed %d step %d: %v", seed, step, err)
			}
			for _, b := range pool {
				for _, bo := range b.Bos() {
					if bo.Buffer() != b {
						t.Fatalf("seed %d step %d: %s held by %s points at %v", seed, step, bo, b, bo.Buffer())
					}
					if x.Lookup(bo.Fd, bo.Handle) != bo {
						t.Fatalf("seed %d step %d: %s held by %s is not indexed", seed, step, bo, b)
					}
				}
			}
		}
	}
}

func TestCheckIntegrityDetectsDanglingBo(t *testing.T) {
	x := NewIndex(quietLogger())
	buf := New(0, transform.SourceInput)
	bo, _ := x.GetOrCreate(3, 1)
	bo.buf = buf

	err := x.CheckIntegrity()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDanglingBo))
}

func TestFbIDs(t *testing.T) {
	buf := New(0, transform.SourceInput)
	buf.AddFbID(12, FbIDData{PixelFormat: drm.FormatXRGB8888})
	buf.AddFbID(5, FbIDData{PixelFormat: drm.FormatNV12, HasAuxBuffer: true, AuxPitch: 64})

	assert.Equal(t, []uint32{5, 12}, buf.FbIDs())
	assert.Equal(t, drm.FormatNV12, buf.PixelFormat(5))
	assert.Equal(t, uint32(0), buf.PixelFormat(99))

	data, ok := buf.FbIDData(5)
	require.True(t, ok)
	assert.Equal(t, uint32(64), data.AuxPitch)

	_, ok = buf.FbIDData(99)
	assert.False(t, ok)

	assert.True(t, buf.RemoveFbID(5))
	assert.False(t, buf.RemoveFbID(5))
	assert.Equal(t, 1, buf.NumFbIDs())
}

func TestFormatClassification(t *testing.T) {
	buf := New(0, transform.SourceInput)
	buf.SetMeta(Meta{Width: 1920, Height: 1080, Format: drm.FormatNV12})
	assert.True(t, buf.IsVideoFormat())
	assert.True(t, buf.IsNV12Format())
	assert.False(t, buf.FormatHasPixelAlpha())
	assert.Equal(t, 12, buf.Bpp())

	buf.SetMeta(Meta{Format: drm.FormatARGB8888})
	assert.False(t, buf.IsVideoFormat())
	assert.True(t, buf.FormatHasPixelAlpha())
	assert.Equal(t, 32, buf.Bpp())
}

func TestCompositionTarget(t *testing.T) {
	tests := []struct {
		source transform.SourceType
		want   bool
	}{
		{transform.SourceInput, false},
		{transform.SourceHwc, false},
		{transform.SourceSfComp, true},
		{transform.SourcePartitionedComposer, true},
		{transform.SourceWriteback, true},
	}
	for _, tt := range tests {
		if got := New(0, tt.source).IsCompositionTarget(); got != tt.want {
			t.Errorf("IsCompositionTarget(%s) = %v, expected %v", tt.source, got, tt.want)
		}
	}
}

func TestIsCombinedFrom(t *testing.T) {
	leaf := New(0, transform.SourceInput)
	mid := New(0, transform.SourcePartitionedComposer)
	top := New(0, transform.SourceSfComp)
	stranger := New(0, transform.SourceInput)

	mid.AddCombinedFrom(transform.New(leaf, 10, 10))
	top.AddCombinedFrom(transform.New(mid, 10, 10))

	assert.True(t, top.IsCombinedFrom(top))
	assert.True(t, top.IsCombinedFrom(leaf))
	assert.False(t, top.IsCombinedFrom(stranger))
	assert.False(t, leaf.IsCombinedFrom(top))

	top.SetFbtDisplay(0)
	top.Unassociate()
	assert.False(t, top.IsCombinedFrom(leaf))
	assert.False(t, top.IsFbt())
}

func TestIsCurrent(t *testing.T) {
	buf := New(0, transform.SourceInput)
	assert.True(t, buf.IsCurrent(FrameNums{5, UndefinedFrame, UndefinedFrame}), "unseen buffers count as current")

	buf.SetLastHwcFrame(FrameNums{10, 0, 0}, true)
	assert.True(t, buf.IsCurrent(FrameNums{11, UndefinedFrame, UndefinedFrame}))
	assert.False(t, buf.IsCurrent(FrameNums{12, UndefinedFrame, UndefinedFrame}))
	assert.Equal(t, "10.0.0", buf.LastHwcFrame().String())
}

type leafInfo struct {
	buf     *Buffer
	sources transform.SourceMask
}

var treeSources = []transform.SourceType{
	transform.SourceInput, transform.SourceSfComp,
	transform.SourcePartitionedComposer, transform.SourceHwc,
}

func growTree(rng *rand.Rand, depth, maxDepth int, inherited transform.SourceMask, leaves *[]leafInfo) *Buffer {
	b := New(0, treeSources[rng.Intn(len(treeSources))])
	mask := inherited | b.Source().Bit()

	if depth == maxDepth || (depth > 0 && rng.Intn(3) == 0) {
		*leaves = append(*leaves, leafInfo{buf: b, sources: mask})
		return b
	}

	n := 1 + rng.Intn(4)
	for i := 0; i < n; i++ {
		child := growTree(rng, depth+1, maxDepth, mask, leaves)
		t := transform.New(child, 100, 100)
		t.SetPlaneOrder(uint32(i))
		b.AddCombinedFrom(t)
	}
	return b
}

func TestFlattenMatchesDepthFirstLeaves(t *testing.T) {
	for seed := int64(1); seed <= 200; seed++ {
		rng := rand.New(rand.NewSource(seed))
		var leaves []leafInfo
		root := growTree(rng, 0, 1+rng.Intn(5), 0, &leaves)

		rec := newLedger()
		top := transform.New(root, 100, 100)
		flat := Flatten(top, rec)

		var want, got []uint64
		for _, l := range leaves {
			want = append(want, l.buf.ID())
		}
		for _, tr := range flat {
			got = append(got, tr.Buf.(*Buffer).ID())
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("seed %d: leaf order mismatch (-want +got):\n%s", seed, diff)
		}

		for i, tr := range flat {
			if tr.Sources != leaves[i].sources {
				t.Errorf("seed %d leaf %d: sources %b, expected %b", seed, i, tr.Sources, leaves[i].sources)
			}
			if i > 0 && tr.ZOrder <= flat[i-1].ZOrder {
				t.Errorf("seed %d leaf %d: z-order %x not after %x", seed, i, tr.ZOrder, flat[i-1].ZOrder)
			}
		}

		if !CheckFlattened(flat, top, rec) {
			t.Fatalf("seed %d: self-check rejected a correct expansion", seed)
		}
		if n := rec.FailCount(checks.CheckInternalZOrder); n != 0 {
			t.Fatalf("seed %d: %d z-order overflows", seed, n)
		}
	}
}

func TestFlattenRestartable(t *testing.T) {
	leaf := New(0, transform.SourceInput)
	fbt := New(0, transform.SourceSfComp)
	fbt.AddCombinedFrom(transform.New(leaf, 10, 10))
	top := transform.New(fbt, 10, 10)

	first := Flatten(top, nil)
	second := Flatten(top, nil)
	require.Len(t, first, 1)
	assert.Equal(t, first, second)
	assert.Equal(t, transform.SourceInput.Bit()|transform.SourceSfComp.Bit(), first[0].Sources)
	assert.True(t, first[0].IsFromSfComp())
}

func TestFlattenComposesGeometry(t *testing.T) {
	left := New(0, transform.SourceInput)
	right := New(0, transform.SourceInput)

	fbt := New(0, transform.SourceSfComp)
	fbt.AddCombinedFrom(transform.FromLayer(left, 0, transform.Geometry{
		SourceCrop:   transform.RectF{Right: 960, Bottom: 1080},
		DisplayFrame: transform.Rect{Right: 960, Bottom: 1080},
	}))
	fbt.AddCombinedFrom(transform.FromLayer(right, 1, transform.Geometry{
		SourceCrop:   transform.RectF{Right: 960, Bottom: 1080},
		DisplayFrame: transform.Rect{Left: 960, Right: 1920, Bottom: 1080},
	}))

	// The plane shows the composition at half size
	plane := transform.FromLayer(fbt, 0, transform.Geometry{
		SourceCrop:   transform.RectF{Right: 1920, Bottom: 1080},
		DisplayFrame: transform.Rect{Right: 960, Bottom: 540},
	})

	flat := Flatten(plane, nil)
	require.Len(t, flat, 2)
	assert.Same(t, left, flat[0].Buf.(*Buffer))
	assert.Equal(t, transform.Rect{Right: 480, Bottom: 540}, flat[0].EffectiveDisplayFrame())
	assert.Equal(t, transform.Rect{Left: 480, Right: 960, Bottom: 540}, flat[1].EffectiveDisplayFrame())
}

func TestCheckFlattenedDetectsDivergence(t *testing.T) {
	leafA := New(0, transform.SourceInput)
	leafB := New(0, transform.SourceInput)
	fbt := New(0, transform.SourceSfComp)
	fbt.AddCombinedFrom(transform.New(leafA, 10, 10))
	fbt.AddCombinedFrom(transform.New(leafB, 10, 10))
	top := transform.New(fbt, 10, 10)

	rec := newLedger()
	flat := Flatten(top, rec)

	assert.False(t, CheckFlattened(flat[:1], top, rec))
	assert.False(t, CheckFlattened([]transform.Transform{flat[1], flat[0]}, top, rec))
	assert.False(t, CheckFlattened(append(flat, flat[0]), top, rec))
	assert.Equal(t, uint32(3), rec.FailCount(checks.CheckInternalError))
}

func TestIsBufferTransparentIsCached(t *testing.T) {
	rec := newLedger()
	fake := &fakeComparator{transparent: true}
	rect := transform.Rect{Right: 4, Bottom: 4}

	buf := New(0, transform.SourceInput)
	buf.SetBufCopy(solid(4, 4, color.RGBA{}))

	assert.True(t, buf.IsBufferTransparent(rect, fake, rec))
	fake.transparent = false
	assert.True(t, buf.IsBufferTransparent(rect, fake, rec))
	assert.Equal(t, 1, fake.transparentCalls)
	assert.Equal(t, ContentNull, buf.ContentState())

	noCopy := New(0, transform.SourceInput)
	assert.False(t, noCopy.IsBufferTransparent(rect, fake, rec))
	assert.Equal(t, ContentNotNull, noCopy.ContentState())
	assert.Equal(t, 1, fake.transparentCalls)
}

func TestCompareWithRef(t *testing.T) {
	white := color.RGBA{255, 255, 255, 255}
	grey := color.RGBA{250, 250, 250, 255}

	tests := []struct {
		name      string
		ref       image.Image
		ssim      float64
		fbt       bool
		wantSame  bool
		wantCheck checks.Check
		wantFails uint32
		ssimCalls int
	}{
		{"identical", solid(4, 4, white), 0, false, true, checks.CheckHwcCompMatchesRef, 0, 0},
		{"similar enough", solid(4, 4, grey), 0.9995, false, false, checks.CheckHwcCompMatchesRef, 0, 1},
		{"mismatch", solid(4, 4, grey), 0.5, false, false, checks.CheckHwcCompMatchesRef, 1, 1},
		{"framebuffer target mismatch", solid(4, 4, grey), 0.5, true, false, checks.CheckSfCompMatchesRef, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newLedger()
			fake := &fakeComparator{ssim: tt.ssim}

			buf := New(0, transform.SourceHwc)
			if tt.fbt {
				buf.SetFbtDisplay(0)
			}
			buf.SetBufCopy(solid(4, 4, white))
			buf.SetRef(tt.ref)

			same := buf.CompareWithRef(false, nil, fake, rec)

			assert.Equal(t, tt.wantSame, same)
			assert.Equal(t, uint32(1), rec.EvalCount(tt.wantCheck))
			assert.Equal(t, tt.wantFails, rec.FailCount(tt.wantCheck))
			assert.Equal(t, tt.ssimCalls, fake.ssimCalls)
			assert.False(t, buf.HasBufCopy())
			assert.False(t, buf.HasRef())
		})
	}
}

func TestCompareWithRefWithoutReference(t *testing.T) {
	rec := newLedger()
	buf := New(0, transform.SourceHwc)
	buf.SetBufCopy(solid(2, 2, color.RGBA{A: 255}))

	assert.False(t, buf.CompareWithRef(true, nil, &fakeComparator{}, rec))
	assert.Equal(t, uint32(1), rec.FailCount(checks.CheckInternalError))
	assert.False(t, buf.HasBufCopy(), "copies released on the failure path")
}

func TestCompareWithRefRestrictsToRect(t *testing.T) {
	rec := newLedger()
	cpy := solid(4, 4, color.RGBA{255, 0, 0, 255})
	ref := solid(4, 4, color.RGBA{255, 0, 0, 255})
	ref.SetRGBA(3, 3, color.RGBA{0, 0, 255, 255})

	buf := New(0, transform.SourceHwc)
	buf.SetBufCopy(cpy)
	buf.SetRef(ref)

	rect := transform.Rect{Right: 2, Bottom: 2}
	assert.True(t, buf.CompareWithRef(false, &rect, &fakeComparator{}, rec))
}

func TestStoreBindings(t *testing.T) {
	s := NewStore(quietLogger())
	a := New(0x100, transform.SourceInput)
	b := New(0x200, transform.SourceInput)

	s.BindFbID(a, 5, FbIDData{PixelFormat: drm.FormatXRGB8888})
	assert.Same(t, a, s.ByFbID(5))

	s.BindFbID(b, 5, FbIDData{})
	assert.Same(t, b, s.ByFbID(5))
	assert.Equal(t, 0, a.NumFbIDs())

	got, ok := s.UnbindFbID(5)
	assert.True(t, ok)
	assert.Same(t, b, got)
	_, ok = s.UnbindFbID(5)
	assert.False(t, ok)

	s.TrackHandle(a)
	assert.Same(t, a, s.ByHandle(0x100))
	assert.Nil(t, s.ByHandle(0))

	bo := s.Attach(3, 0x10, a)
	s.SetGlobalID(a, 42)
	assert.Same(t, a, s.ByGlobalID(42))

	s.BOs().Remove(bo.Fd, bo.Handle)
	assert.Nil(t, s.ByGlobalID(42), "name forgotten when the last BO closes")
}

func TestStoreSweepKeepsCompositionSources(t *testing.T) {
	s := NewStore(quietLogger())

	onScreen := New(0x1, transform.SourceSfComp)
	s.BindFbID(onScreen, 1, FbIDData{})

	source := New(0x2, transform.SourceInput)
	s.TrackHandle(source)
	onScreen.AddCombinedFrom(transform.New(source, 10, 10))

	orphan := New(0x3, transform.SourceInput)
	s.TrackHandle(orphan)

	pinned := New(0x4, transform.SourceInput)
	s.TrackHandle(pinned)

	n := s.Sweep(func(b *Buffer) bool { return b == pinned })
	assert.Equal(t, 1, n)
	assert.Same(t, source, s.ByHandle(0x2))
	assert.Same(t, pinned, s.ByHandle(0x4))
	assert.Nil(t, s.ByHandle(0x3))
}

func TestStoreReleaseRefusesReferencedBuffer(t *testing.T) {
	rec := newLedger()
	s := NewStore(quietLogger())

	parent := New(0x1, transform.SourceSfComp)
	s.BindFbID(parent, 1, FbIDData{})
	child := New(0x2, transform.SourceInput)
	s.TrackHandle(child)
	s.Attach(3, 7, child)
	parent.AddCombinedFrom(transform.New(child, 10, 10))

	err := s.Release(child, rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStillReferenced))
	assert.Equal(t, uint32(1), rec.FailCount(checks.CheckInternalError))

	require.NoError(t, s.Release(parent, rec))
	assert.Nil(t, s.ByFbID(1))

	require.NoError(t, s.Release(child, rec))
	assert.Nil(t, s.ByHandle(0x2))
	assert.Nil(t, s.BOs().Lookup(3, 7))
	assert.Empty(t, s.Buffers())
}
