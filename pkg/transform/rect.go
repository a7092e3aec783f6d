package transform

import "fmt"

// Rect is an integer rectangle in display pixels
type Rect struct {
	Left, Top, Right, Bottom int32
}

// Width of r
func (r Rect) Width() int32 { return r.Right - r.Left }

// Height of r
func (r Rect) Height() int32 { return r.Bottom - r.Top }

// Empty reports whether r has no area
func (r Rect) Empty() bool { return r.Right <= r.Left || r.Bottom <= r.Top }

// Float converts r to a RectF
func (r Rect) Float() RectF {
	return RectF{float64(r.Left), float64(r.Top), float64(r.Right), float64(r.Bottom)}
}

// Union returns the bounding box of r and o. An empty operand is ignored.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{min(r.Left, o.Left), min(r.Top, o.Top), max(r.Right, o.Right), max(r.Bottom, o.Bottom)}
}

// Contains reports whether o lies entirely within r
func (r Rect) Contains(o Rect) bool {
	return o.Left >= r.Left && o.Top >= r.Top && o.Right <= r.Right && o.Bottom <= r.Bottom
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", r.Left, r.Top, r.Right, r.Bottom)
}

// RectF is a sub-pixel rectangle, used for source crops
type RectF struct {
	Left, Top, Right, Bottom float64
}

// Width of r
func (r RectF) Width() float64 { return r.Right - r.Left }

// Height of r
func (r RectF) Height() float64 { return r.Bottom - r.Top }

// Int truncates r to a Rect
func (r RectF) Int() Rect {
	return Rect{int32(r.Left), int32(r.Top), int32(r.Right), int32(r.Bottom)}
}

func (r RectF) String() string {
	return fmt.Sprintf("(%.1f,%.1f,%.1f,%.1f)", r.Left, r.Top, r.Right, r.Bottom)
}

// Bounds returns the bounding box of rects
func Bounds(rects []Rect) Rect {
	var b Rect
	for _, r := range rects {
		b = b.Union(r)
	}
	return b
}
