package buffer

import (
	"bytes"
	"image"
	"image/color"
	"math"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/drm"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
)

// SSIMAcceptance is the structural similarity below which a composition
// that differs from its reference is reported as a mismatch
const SSIMAcceptance = 0.999

// Content is the cached result of testing a buffer for transparency
type Content int

const (
	ContentNotTested Content = iota
	ContentNull
	ContentNotNull
)

func (c Content) String() string {
	switch c {
	case ContentNull:
		return "Null"
	case ContentNotNull:
		return "Not Null"
	default:
		return ""
	}
}

// Comparator does the pixel work behind transparency detection and
// reference comparison
type Comparator interface {
	// Transparent reports whether every pixel of img inside r is zero
	Transparent(img image.Image, r image.Rectangle) bool

	// SSIM returns the mean structural similarity of a and b over r
	SSIM(a, b image.Image, r image.Rectangle, useAlpha bool) float64
}

// SetRef stores the reference composition for later comparison
func (b *Buffer) SetRef(img image.Image) { b.ref = img }

// HasRef reports whether a reference composition is stored
func (b *Buffer) HasRef() bool { return b.ref != nil }

// SetBufCopy stores a copy of the buffer content
func (b *Buffer) SetBufCopy(img image.Image) {
	switch {
	case b.cpy == nil && img != nil:
		numBufCopies.Add(1)
	case b.cpy != nil && img == nil:
		numBufCopies.Add(-1)
	}
	b.cpy = img
}

// BufCopy returns the stored copy of the buffer content
func (b *Buffer) BufCopy() image.Image { return b.cpy }

// HasBufCopy reports whether a copy of the content is stored
func (b *Buffer) HasBufCopy() bool { return b.cpy != nil }

// BufCopies is the number of buffer content copies currently held
func BufCopies() int { return int(numBufCopies.Load()) }

// FreeBufCopies releases the stored copy and reference
func (b *Buffer) FreeBufCopies() {
	b.SetBufCopy(nil)
	b.ref = nil
}

// ContentState returns the cached transparency result
func (b *Buffer) ContentState() Content { return b.content }

// IsBufferTransparent reports whether the buffer content inside rect is all
// zero. The answer is computed on first use and cached: from the stored copy
// when there is one, otherwise the buffer is assumed to have content.
func (b *Buffer) IsBufferTransparent(rect transform.Rect, cmp Comparator, rec checks.Recorder) bool {
	priority := checks.PriorityDebug
	if b.transparentFromHarness {
		priority = checks.PriorityWarn
	}

	if b.content == ContentNotTested {
		if b.cpy != nil && cmp != nil {
			if cmp.Transparent(b.cpy, imageRect(rect)) {
				b.content = ContentNull
			} else {
				b.content = ContentNotNull
			}
		} else {
			b.content = ContentNotNull
		}
	}

	rec.Logf(priority, "IsBufferTransparent %s rect%s %s", b, rect, b.content)
	return b.content == ContentNull
}

// Comparison is a buffer's content and reference composition detached
// from the buffer, so that it can be checked without the kernel lock
type Comparison struct {
	// Label names the buffer in reports
	Label string
	Frame FrameNums
	Check checks.Check

	cpy         image.Image
	ref         image.Image
	alphaFormat bool
}

// TakeComparison detaches the stored copy and reference from b, releasing
// them from the buffer
func (b *Buffer) TakeComparison() Comparison {
	c := Comparison{
		Label:       b.String(),
		Frame:       b.lastHwcFrame,
		Check:       checks.CheckHwcCompMatchesRef,
		cpy:         b.cpy,
		ref:         b.ref,
		alphaFormat: b.meta.Format == drm.FormatABGR8888,
	}
	if b.IsFbt() {
		c.Check = checks.CheckSfCompMatchesRef
	}
	b.FreeBufCopies()
	return c
}

// IsFbt reports whether the compared buffer is a framebuffer target
func (c Comparison) IsFbt() bool { return c.Check == checks.CheckSfCompMatchesRef }

// CompareWithRef compares the stored copy against the stored reference
// composition over rect, or the whole buffer if rect is nil. The copies are
// always released. See Comparison.Run.
func (b *Buffer) CompareWithRef(useAlpha bool, rect *transform.Rect, cmp Comparator, rec checks.Recorder) bool {
	return b.TakeComparison().Run(useAlpha, rect, cmp, rec)
}

// Run compares the copy against the reference over rect, or the whole
// image if rect is nil. Identical pixels pass outright; otherwise the
// comparison falls back to SSIM and fails below SSIMAcceptance. Once both
// images are present the evaluation is always counted.
func (c Comparison) Run(useAlpha bool, rect *transform.Rect, cmp Comparator, rec checks.Recorder) bool {
	if c.ref == nil {
		rec.Report(checks.CheckInternalError, "CompareWithRef: %s NO REF!!", c.Label)
		return false
	}
	if c.cpy == nil {
		rec.Logf(checks.PriorityWarn, "CompareWithRef: %s has no copy to compare", c.Label)
		return false
	}
	defer rec.IncEval(c.Check)

	r := c.cpy.Bounds().Intersect(c.ref.Bounds())
	if rect != nil {
		r = imageRect(*rect).Intersect(r)
	}

	if samePixels(c.cpy, c.ref, r) {
		rec.Logf(checks.PriorityInfo, "CompareWithRef: %s comparison pass (identical)", c.Label)
		return true
	}

	ssim := cmp.SSIM(c.cpy, c.ref, r, useAlpha && c.alphaFormat)
	if ssim < SSIMAcceptance {
		c.reportMismatch(r, ssim, rec)
	} else {
		rec.Logf(checks.PriorityInfo, "CompareWithRef: %s: Comparison passed with SSIM Index = %.6f (frame:%s)",
			c.Label, ssim, c.Frame)
	}
	return false
}

func (c Comparison) reportMismatch(r image.Rectangle, ssim float64, rec checks.Recorder) {
	var mismatched, total int
	var sumSquares float64
	firstLine := -1

	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			a := color.RGBAModel.Convert(c.cpy.At(x, y)).(color.RGBA)
			e := color.RGBAModel.Convert(c.ref.At(x, y)).(color.RGBA)
			for _, d := range [4]int{
				int(a.R) - int(e.R), int(a.G) - int(e.G),
				int(a.B) - int(e.B), int(a.A) - int(e.A),
			} {
				total++
				if d != 0 {
					mismatched++
					sumSquares += float64(d * d)
					if firstLine < 0 {
						firstLine = y
					}
				}
			}
		}
	}

	var rms, pct float64
	if total > 0 {
		rms = math.Sqrt(sumSquares / float64(total))
		pct = 100 * float64(mismatched) / float64(total)
	}

	rec.Report(c.Check, "CompareWithRef: Composition mismatch with real buffer %s from frame:%s at line %d",
		c.Label, c.Frame, firstLine)
	rec.Logf(checks.PriorityError, "  -- %2.6f%% of bytes mismatch; RMS = %3.6f; SSIM index = %f (frame:%s)",
		pct, rms, ssim, c.Frame)
}

func imageRect(r transform.Rect) image.Rectangle {
	return image.Rect(int(r.Left), int(r.Top), int(r.Right), int(r.Bottom))
}

func samePixels(a, b image.Image, r image.Rectangle) bool {
	ra, okA := a.(*image.RGBA)
	rb, okB := b.(*image.RGBA)
	if okA && okB {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			la := ra.Pix[ra.PixOffset(r.Min.X, y):ra.PixOffset(r.Max.X, y)]
			lb := rb.Pix[rb.PixOffset(r.Min.X, y):rb.PixOffset(r.Max.X, y)]
			if !bytes.Equal(la, lb) {
				return false
			}
		}
		return true
	}

	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			r1, g1, b1, a1 := a.At(x, y).RGBA()
			r2, g2, b2, a2 := b.At(x, y).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 || a1 != a2 {
				return false
			}
		}
	}
	return true
}
