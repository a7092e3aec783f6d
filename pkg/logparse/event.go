package logparse

import "fmt"

// Event is a typed notification recognised in a compositor log line
type Event interface {
	fmt.Stringer
	isEvent()
}

// PageFlipUpdates marks the compositor issuing the DRM updates for a frame
// on a CRTC, which makes the previous frame ready for validation. Frame is
// zero when the line carried no frame number.
type PageFlipUpdates struct {
	Crtc  uint32
	Frame uint32
}

// ReleaseTo is a display being released to another connector
type ReleaseTo struct {
	Connector uint32
}

// EsdEvent starts ESD recovery on a display
type EsdEvent struct {
	Display int
}

// SelfTeardown is the compositor tearing a display down itself
type SelfTeardown struct{}

// HotPlugToHotpluggable is a hotplug event delivered to a removable display
type HotPlugToHotpluggable struct{}

// DisplayMapped is a new connection of a connector to a CRTC
type DisplayMapped struct {
	Connector uint32
	Crtc      uint32
}

// DisplayUnmapped is a CRTC's connection being reset
type DisplayUnmapped struct {
	Crtc uint32
}

// FrameDropped is a frame the compositor chose not to display. It is
// identified either by CRTC (ByCrtc) or by display index.
type FrameDropped struct {
	ByCrtc  bool
	Crtc    uint32
	Display int
	Frame   uint32
}

// BufferFreed is the buffer manager releasing a native handle
type BufferFreed struct {
	Handle uint64
}

// Composer names the composition path chosen for a frame
type Composer int

const (
	ComposerSurfaceFlinger Composer = iota
	ComposerTwoStageFallback
	ComposerLowloss
)

func (c Composer) String() string {
	switch c {
	case ComposerSurfaceFlinger:
		return "SurfaceFlinger"
	case ComposerTwoStageFallback:
		return "TwoStageFallback"
	case ComposerLowloss:
		return "Lowloss"
	default:
		return fmt.Sprintf("Composer(%d)", int(c))
	}
}

// Composition records which composer handled a frame
type Composition struct {
	Composer Composer
}

// Snapshot marks a buffer as the still image shown during a rotation
// animation
type Snapshot struct {
	KeepCount uint32
	Handle    uint64
}

// Option is a compositor option value announced at startup
type Option struct {
	Name   string
	Value  string
	Forced bool
}

func (PageFlipUpdates) isEvent()       {}
func (ReleaseTo) isEvent()             {}
func (EsdEvent) isEvent()              {}
func (SelfTeardown) isEvent()          {}
func (HotPlugToHotpluggable) isEvent() {}
func (DisplayMapped) isEvent()         {}
func (DisplayUnmapped) isEvent()       {}
func (FrameDropped) isEvent()          {}
func (BufferFreed) isEvent()           {}
func (Composition) isEvent()           {}
func (Snapshot) isEvent()              {}
func (Option) isEvent()                {}

func (e PageFlipUpdates) String() string {
	return fmt.Sprintf("PageFlipUpdates crtc %d frame:%d", e.Crtc, e.Frame)
}
func (e ReleaseTo) String() string           { return fmt.Sprintf("ReleaseTo connector %d", e.Connector) }
func (e EsdEvent) String() string            { return fmt.Sprintf("EsdEvent D%d", e.Display) }
func (SelfTeardown) String() string          { return "SelfTeardown" }
func (HotPlugToHotpluggable) String() string { return "HotPlugToHotpluggable" }

func (e DisplayMapped) String() string {
	return fmt.Sprintf("DisplayMapped connector %d crtc %d", e.Connector, e.Crtc)
}

func (e DisplayUnmapped) String() string { return fmt.Sprintf("DisplayUnmapped crtc %d", e.Crtc) }

func (e FrameDropped) String() string {
	if e.ByCrtc {
		return fmt.Sprintf("FrameDropped crtc %d frame:%d", e.Crtc, e.Frame)
	}
	return fmt.Sprintf("FrameDropped D%d frame:%d", e.Display, e.Frame)
}

func (e BufferFreed) String() string { return fmt.Sprintf("BufferFreed handle 0x%x", e.Handle) }
func (e Composition) String() string { return "Composition " + e.Composer.String() }

func (e Snapshot) String() string {
	return fmt.Sprintf("Snapshot handle 0x%x keep %d", e.Handle, e.KeepCount)
}

func (e Option) String() string { return fmt.Sprintf("Option %s=%q", e.Name, e.Value) }
