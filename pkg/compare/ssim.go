package compare

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// SSIM window geometry and stabilising constants for 8-bit channels
const (
	windowSize   = 8
	windowStride = 4

	c1 = (0.01 * 255) * (0.01 * 255)
	c2 = (0.03 * 255) * (0.03 * 255)
)

// Comparator is the pixel comparator used for transparency detection and
// composition checks
type Comparator struct {
	// Scaler resamples the second image of a comparison when its region
	// differs in size from the first
	Scaler draw.Scaler
}

// New returns a comparator resampling with bilinear interpolation
func New() *Comparator {
	return &Comparator{Scaler: draw.BiLinear}
}

// Transparent reports whether every pixel of img inside r is zero in all
// channels. An empty region is transparent.
func (c *Comparator) Transparent(img image.Image, r image.Rectangle) bool {
	r = r.Intersect(img.Bounds())
	rgba := toRGBA(img, r)
	for _, v := range rgba.Pix {
		if v != 0 {
			return false
		}
	}
	return true
}

// SSIM returns the mean structural similarity of a and b over r, in
// [-1, 1]. b is resampled to a's region size if the two differ. Alpha
// takes part as a fourth channel when useAlpha is set.
func (c *Comparator) SSIM(a, b image.Image, r image.Rectangle, useAlpha bool) float64 {
	ra := r.Intersect(a.Bounds())
	rb := r.Intersect(b.Bounds())
	if ra.Empty() || rb.Empty() {
		return 0
	}

	x := toRGBA(a, ra)
	var y *image.RGBA
	if ra.Size() == rb.Size() {
		y = toRGBA(b, rb)
	} else {
		y = image.NewRGBA(image.Rect(0, 0, ra.Dx(), ra.Dy()))
		c.scaler().Scale(y, y.Bounds(), b, rb, draw.Src, nil)
	}

	channels := 3
	if useAlpha {
		channels = 4
	}
	var sum float64
	for ch := 0; ch < channels; ch++ {
		sum += meanSSIM(x, y, ch)
	}
	return sum / float64(channels)
}

func (c *Comparator) scaler() draw.Scaler {
	if c.Scaler == nil {
		return draw.BiLinear
	}
	return c.Scaler
}

// toRGBA copies r of img into a new RGBA image anchored at the origin
func toRGBA(img image.Image, r image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// meanSSIM averages SSIM over sliding windows of one channel. Regions
// smaller than a window are treated as a single window.
func meanSSIM(x, y *image.RGBA, ch int) float64 {
	b := x.Bounds()
	ww := min(windowSize, b.Dx())
	wh := min(windowSize, b.Dy())

	var total float64
	var n int
	for y0 := 0; y0+wh <= b.Dy(); y0 += windowStride {
		for x0 := 0; x0+ww <= b.Dx(); x0 += windowStride {
			total += windowSSIM(x, y, ch, image.Rect(x0, y0, x0+ww, y0+wh))
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return total / float64(n)
}

func windowSSIM(x, y *image.RGBA, ch int, w image.Rectangle) float64 {
	var sx, sy, sxx, syy, sxy float64
	for j := w.Min.Y; j < w.Max.Y; j++ {
		for i := w.Min.X; i < w.Max.X; i++ {
			a := float64(x.Pix[x.PixOffset(i, j)+ch])
			b := float64(y.Pix[y.PixOffset(i, j)+ch])
			sx += a
			sy += b
			sxx += a * a
			syy += b * b
			sxy += a * b
		}
	}
	n := float64(w.Dx() * w.Dy())
	mx, my := sx/n, sy/n
	vx := math.Max(sxx/n-mx*mx, 0)
	vy := math.Max(syy/n-my*my, 0)
	cov := sxy/n - mx*my

	return ((2*mx*my + c1) * (2*cov + c2)) / ((mx*mx + my*my + c1) * (vx + vy + c2))
}
