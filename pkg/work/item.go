package work

import (
	"fmt"
	"time"

	"github.com/emergingrobotics/go-hwcval/pkg/buffer"
)

// Item is a deferred model mutation recorded at an interception point
// where taking the kernel lock is unsafe. Items are immutable once pushed.
type Item interface {
	fmt.Stringer
	isItem()
}

// AddFb records a successful ADDFB/ADDFB2
type AddFb struct {
	Fd          int
	BoHandle    uint32
	FbID        uint32
	Width       uint32
	Height      uint32
	PixelFormat uint32

	HasAuxBuffer bool
	AuxPitch     uint32
	AuxOffset    uint32
	Modifier     uint64
}

// RmFb records RMFB
type RmFb struct {
	Fd   int
	FbID uint32
}

// GemOpen records GEM_OPEN of a global name
type GemOpen struct {
	Fd       int
	ID       uint32
	BoHandle uint32
}

// GemClose records GEM_CLOSE
type GemClose struct {
	Fd       int
	BoHandle uint32
}

// GemCreate records GEM_CREATE
type GemCreate struct {
	Fd       int
	BoHandle uint32
}

// GemWait records a GEM_WAIT and how long it took
type GemWait struct {
	Fd       int
	BoHandle uint32
	Status   int32
	Delay    time.Duration
}

// Prime records PRIME_HANDLE_TO_FD or PRIME_FD_TO_HANDLE
type Prime struct {
	Fd        int
	BoHandle  uint32
	DmaHandle int
}

// BufferFree records the buffer manager freeing a native handle
type BufferFree struct {
	Handle buffer.Handle
}

func (AddFb) isItem()      {}
func (RmFb) isItem()       {}
func (GemOpen) isItem()    {}
func (GemClose) isItem()   {}
func (GemCreate) isItem()  {}
func (GemWait) isItem()    {}
func (Prime) isItem()      {}
func (BufferFree) isItem() {}

func (i AddFb) String() string {
	return fmt.Sprintf("AddFb fd %d boHandle 0x%x fb %d %dx%d format 0x%x", i.Fd, i.BoHandle, i.FbID, i.Width, i.Height, i.PixelFormat)
}

func (i RmFb) String() string { return fmt.Sprintf("RmFb fd %d fb %d", i.Fd, i.FbID) }

func (i GemOpen) String() string {
	return fmt.Sprintf("GemOpen fd %d id %d boHandle 0x%x", i.Fd, i.ID, i.BoHandle)
}

func (i GemClose) String() string  { return fmt.Sprintf("GemClose fd %d boHandle 0x%x", i.Fd, i.BoHandle) }
func (i GemCreate) String() string { return fmt.Sprintf("GemCreate fd %d boHandle 0x%x", i.Fd, i.BoHandle) }

func (i GemWait) String() string {
	return fmt.Sprintf("GemWait fd %d boHandle 0x%x status %d delay %s", i.Fd, i.BoHandle, i.Status, i.Delay)
}

func (i Prime) String() string {
	return fmt.Sprintf("Prime fd %d boHandle 0x%x dmabuf %d", i.Fd, i.BoHandle, i.DmaHandle)
}

func (i BufferFree) String() string { return fmt.Sprintf("BufferFree handle 0x%x", uint64(i.Handle)) }

// Handler applies work items to the model. Every method is called with the
// kernel lock held.
type Handler interface {
	DoAddFb(AddFb)
	DoRmFb(RmFb)
	DoGemOpen(GemOpen)
	DoGemClose(GemClose)
	DoGemCreate(GemCreate)
	DoGemWait(GemWait)
	DoPrime(Prime)
	DoBufferFree(BufferFree)
}

// Dispatch routes it to the matching method of h
func Dispatch(h Handler, it Item) {
	switch it := it.(type) {
	case AddFb:
		h.DoAddFb(it)
	case RmFb:
		h.DoRmFb(it)
	case GemOpen:
		h.DoGemOpen(it)
	case GemClose:
		h.DoGemClose(it)
	case GemCreate:
		h.DoGemCreate(it)
	case GemWait:
		h.DoGemWait(it)
	case Prime:
		h.DoPrime(it)
	case BufferFree:
		h.DoBufferFree(it)
	}
}
