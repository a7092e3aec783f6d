package transform

import (
	"fmt"

	"github.com/emergingrobotics/go-hwcval/pkg/drm"
)

// ID is a compositor transform: a combination of horizontal reflection,
// vertical reflection and 90 degree rotation, applied in that order
type ID uint32

const (
	Identity ID = 0
	ReflectX ID = 1
	ReflectY ID = 2
	Rot180   ID = 3
	Rot90    ID = 4
	Flip135  ID = 5
	Flip45   ID = 6
	Rot270   ID = 7

	// MaxID is one past the last valid transform
	MaxID ID = 8
)

var idNames = [MaxID]string{"None", "FlipH", "FlipV", "Rot180", "Rot90", "Flip135", "Flip45", "Rot270"}

// product[a][b] is the transform equivalent to a followed by b
var product = [MaxID][MaxID]ID{
	{Identity, ReflectX, ReflectY, Rot180, Rot90, Flip135, Flip45, Rot270},
	{ReflectX, Identity, Rot180, ReflectY, Flip45, Rot270, Rot90, Flip135},
	{ReflectY, Rot180, Identity, ReflectX, Flip135, Rot90, Rot270, Flip45},
	{Rot180, ReflectY, ReflectX, Identity, Rot270, Flip45, Flip135, Rot90},
	{Rot90, Flip135, Flip45, Rot270, Rot180, ReflectY, ReflectX, Identity},
	{Flip135, Rot90, Rot270, Flip45, ReflectX, Identity, Rot180, ReflectY},
	{Flip45, Rot270, Rot90, Flip135, ReflectY, Rot180, Identity, ReflectX},
	{Rot270, Flip45, Flip135, Rot90, Identity, ReflectX, ReflectY, Rot180},
}

// Valid reports whether id is one of the eight transforms
func (id ID) Valid() bool { return id < MaxID }

// HasRot90 reports whether id swaps the axes
func (id ID) HasRot90() bool { return id&Rot90 != 0 }

// HasReflectX reports whether id has a horizontal reflection component
func (id ID) HasReflectX() bool { return id&ReflectX != 0 }

// HasReflectY reports whether id has a vertical reflection component
func (id ID) HasReflectY() bool { return id&ReflectY != 0 }

func (id ID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("ID(%d)", uint32(id))
	}
	return idNames[id]
}

// Then returns the transform equivalent to id followed by next
func (id ID) Then(next ID) (ID, bool) {
	if !id.Valid() || !next.Valid() {
		return Identity, false
	}
	return product[id][next], true
}

// Inverse returns the transform that undoes id
func (id ID) Inverse() ID {
	switch id {
	case Rot90:
		return Rot270
	case Rot270:
		return Rot90
	default:
		return id
	}
}

// FromDrmRotation converts DRM plane rotation property bits to a transform.
// Returns false for combinations with no equivalent.
func FromDrmRotation(rotation uint32) (ID, bool) {
	var id ID
	switch rotation & drm.RotateMask {
	case 0, drm.RotateZero:
		id = Identity
	case drm.Rotate90:
		id = Rot90
	case drm.Rotate180:
		id = Rot180
	case drm.Rotate270:
		id = Rot270
	default:
		return Identity, false
	}

	// DRM reflects before rotating, as the compositor transform does
	var flip ID
	if rotation&drm.ReflectX != 0 {
		flip ^= ReflectX
	}
	if rotation&drm.ReflectY != 0 {
		flip ^= ReflectY
	}
	if flip == Identity {
		return id, true
	}
	return flip.Then(id)
}
