package buffer

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Key identifies a buffer object: the device fd it was opened on and its
// local GEM handle
type Key struct {
	Fd     int
	Handle uint32
}

func (k Key) String() string {
	return fmt.Sprintf("fd %d boHandle 0x%x", k.Fd, k.Handle)
}

// BO is a kernel buffer object. It refers to, but does not own, the
// Buffer it currently represents; handles are recycled by the allocator so
// that Buffer can change over the BO's lifetime.
type BO struct {
	Key
	buf *Buffer
}

// Buffer returns the buffer this BO currently represents, or nil
func (bo *BO) Buffer() *Buffer {
	return bo.buf
}

func (bo *BO) String() string {
	return "bo " + bo.Key.String()
}

// Index maps (fd, handle) to BO. It is not safe for concurrent use; the
// kernel lock protects it.
type Index struct {
	bos    map[Key]*BO
	logger *slog.Logger
}

// NewIndex creates an empty BO index
func NewIndex(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		bos:    make(map[Key]*BO),
		logger: logger,
	}
}

// GetOrCreate returns the BO for (fd, handle), creating it on first sight.
// created reports whether a new BO was made.
func (x *Index) GetOrCreate(fd int, handle uint32) (bo *BO, created bool) {
	k := Key{Fd: fd, Handle: handle}
	if bo, ok := x.bos[k]; ok {
		return bo, false
	}
	bo = &BO{Key: k}
	x.bos[k] = bo
	return bo, true
}

// Lookup returns the BO for (fd, handle) or nil
func (x *Index) Lookup(fd int, handle uint32) *BO {
	return x.bos[Key{Fd: fd, Handle: handle}]
}

// Remove detaches the BO from its buffer and forgets it. When the buffer is
// left with no BOs its global id is cleared, so it is treated as new if it
// is ever seen again. Returns the buffer the BO was attached to, if any.
// Removing an unknown BO is benign: handles are closed more than once.
func (x *Index) Remove(fd int, handle uint32) (*Buffer, bool) {
	k := Key{Fd: fd, Handle: handle}
	bo, ok := x.bos[k]
	if !ok {
		x.logger.Debug("close of unknown buffer object", "bo", k.String())
		return nil, false
	}

	buf := bo.buf
	if buf != nil {
		buf.RemoveBo(bo)
		if buf.OpenCount() == 0 {
			buf.SetGlobalID(0)
		}
	}
	delete(x.bos, k)
	return buf, true
}

// Len returns the number of BOs indexed
func (x *Index) Len() int {
	return len(x.bos)
}

// Keys returns the indexed keys in (fd, handle) order
func (x *Index) Keys() []Key {
	keys := make([]Key, 0, len(x.bos))
	for k := range x.bos {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Fd != keys[j].Fd {
			return keys[i].Fd < keys[j].Fd
		}
		return keys[i].Handle < keys[j].Handle
	})
	return keys
}

// CheckIntegrity verifies that every BO's buffer holds the BO and that every
// BO held by one of those buffers points back at it
func (x *Index) CheckIntegrity() error {
	var errs []error
	seen := make(map[*Buffer]bool)

	for _, k := range x.Keys() {
		bo := x.bos[k]
		if bo.buf == nil {
			continue
		}
		if !bo.buf.HasBo(bo) {
			errs = append(errs, fmt.Errorf("%s -> %s: %w", bo, bo.buf, ErrDanglingBo))
		}
		if seen[bo.buf] {
			continue
		}
		seen[bo.buf] = true
		for _, held := range bo.buf.Bos() {
			if held.buf != bo.buf {
				errs = append(errs, fmt.Errorf("%s holds %s: %w", bo.buf, held, ErrAsymmetricBo))
			}
		}
	}
	return errors.Join(errs...)
}
