package layerlist

import (
	"fmt"
	"sync/atomic"

	"github.com/emergingrobotics/go-hwcval/pkg/buffer"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
)

// CompositionType says who composes a layer
type CompositionType int

const (
	CompositionUnknown CompositionType = iota
	// CompositionSF layers are composed by SurfaceFlinger into the target
	CompositionSF
	// CompositionHWC layers are placed on planes by the composer
	CompositionHWC
	// CompositionTarget is the framebuffer target holding the SF composition
	CompositionTarget
)

var compositionNames = [...]string{"UNKNOWN", "SF", "HWC", "TGT"}

func (c CompositionType) String() string {
	if c < 0 || int(c) >= len(compositionNames) {
		return "UNKNOWN"
	}
	return compositionNames[c]
}

// Validity is the state of a layer's content when it was submitted
type Validity int

const (
	Invalid Validity = iota
	InvalidWithinTimeout
	Invalidating
	ValidUntilModeChange
	Valid
	Indeterminate
)

var validityNames = [...]string{"Invalid", "InvalidWithinTimeout", "Invalidating", "ValidUntilModeChange", "Valid", "Indeterminate"}

func (v Validity) String() string {
	if v < 0 || int(v) >= len(validityNames) {
		return "Unknown"
	}
	return validityNames[v]
}

// IsValid reports whether content in this state is expected on screen.
// Anything else (protected content whose session has gone) should be
// shown as black.
func (v Validity) IsValid() bool {
	return v == Valid || v == ValidUntilModeChange || v == Indeterminate
}

// FlagSkip marks a layer the composer was told not to touch
const FlagSkip uint32 = 1

// Layer is one entry of a submitted layer list
type Layer struct {
	Buf         *buffer.Buffer
	Composition CompositionType
	Geometry    transform.Geometry

	// Visible is the visible region in screen coordinates. Empty means the
	// whole display frame is visible.
	Visible []transform.Rect

	Flags    uint32
	Validity Validity
}

// IsSkip reports whether the layer carries FlagSkip
func (l Layer) IsSkip() bool { return l.Flags&FlagSkip != 0 }

// Handle returns the native handle of the layer's buffer, or 0
func (l Layer) Handle() buffer.Handle {
	if l.Buf == nil {
		return 0
	}
	return l.Buf.Handle()
}

// VisibleBounds is the bounding box of the visible region, or the display
// frame when no region was given
func (l Layer) VisibleBounds() transform.Rect {
	if len(l.Visible) == 0 {
		return l.Geometry.DisplayFrame
	}
	return transform.Bounds(l.Visible)
}

func (l Layer) String() string {
	buf := "no buffer"
	if l.Buf != nil {
		buf = l.Buf.String()
	}
	return fmt.Sprintf("%s %s crop%s df%s %s", l.Composition, buf, l.Geometry.SourceCrop, l.Geometry.DisplayFrame, l.Validity)
}

// VideoFlags describe how video appears in a frame
type VideoFlags struct {
	SingleFullScreen bool
	FullScreen       bool
	PartScreen       bool
}

// Fence is a retire fence: it signals once the frame it belongs to has
// been replaced on screen. A nil fence counts as signalled.
type Fence struct {
	fd        int
	signalled atomic.Bool
}

// NewFence returns an unsignalled fence
func NewFence(fd int) *Fence { return &Fence{fd: fd} }

// Fd returns the fence descriptor, or -1 for a nil fence
func (f *Fence) Fd() int {
	if f == nil {
		return -1
	}
	return f.fd
}

// Signal marks the fence signalled
func (f *Fence) Signal() {
	if f != nil {
		f.signalled.Store(true)
	}
}

// IsSignalled reports whether the fence has signalled
func (f *Fence) IsSignalled() bool {
	return f == nil || f.signalled.Load()
}

// List is the layer list submitted for one frame of one display
type List struct {
	Layers      []Layer
	RetireFence *Fence
	Video       VideoFlags
}

// New returns an empty list with room for n layers
func New(n int) *List {
	return &List{Layers: make([]Layer, 0, n)}
}

// Add appends a layer
func (l *List) Add(layer Layer) { l.Layers = append(l.Layers, layer) }

// NumLayers returns the number of layers
func (l *List) NumLayers() int { return len(l.Layers) }

// IsVideo reports whether any layer shows a video format buffer
func (l *List) IsVideo() bool {
	for _, layer := range l.Layers {
		if layer.Buf != nil && layer.Buf.IsVideoFormat() {
			return true
		}
	}
	return false
}
