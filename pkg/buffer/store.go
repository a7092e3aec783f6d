package buffer

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
)

// Store owns every Buffer the validator knows about, indexed by BO, by
// framebuffer id, by native handle and by global name. Everything else
// (planes, transforms, layer lists) holds plain references that the Store
// never invalidates while a composition still refers to them.
//
// A Store is not safe for concurrent use; the kernel lock protects it.
type Store struct {
	bos     *Index
	fbs     map[uint32]*Buffer
	handles map[Handle]*Buffer
	names   map[uint32]*Buffer
	logger  *slog.Logger
}

// NewStore creates an empty store
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		bos:     NewIndex(logger),
		fbs:     make(map[uint32]*Buffer),
		handles: make(map[Handle]*Buffer),
		names:   make(map[uint32]*Buffer),
		logger:  logger,
	}
}

// BOs returns the buffer object index
func (s *Store) BOs() *Index { return s.bos }

// ByFbID returns the buffer bound to fbID, or nil
func (s *Store) ByFbID(fbID uint32) *Buffer {
	return s.fbs[fbID]
}

// BindFbID binds fbID to buf, unbinding it from any buffer that held it
func (s *Store) BindFbID(buf *Buffer, fbID uint32, data FbIDData) {
	if prev, ok := s.fbs[fbID]; ok && prev != buf {
		s.logger.Debug("framebuffer id rebound", "fb", fbID, "from", prev.String(), "to", buf.String())
		prev.RemoveFbID(fbID)
	}
	buf.SetLogger(s.logger)
	buf.AddFbID(fbID, data)
	s.fbs[fbID] = buf
}

// UnbindFbID removes the binding for fbID. An unknown id is benign: the
// buffer may already have been torn down with its BO.
func (s *Store) UnbindFbID(fbID uint32) (*Buffer, bool) {
	buf, ok := s.fbs[fbID]
	if !ok {
		s.logger.Debug("remove of unknown framebuffer id", "fb", fbID)
		return nil, false
	}
	buf.RemoveFbID(fbID)
	delete(s.fbs, fbID)
	return buf, true
}

// ByHandle returns the buffer for a native handle, or nil
func (s *Store) ByHandle(h Handle) *Buffer {
	if h == 0 {
		return nil
	}
	return s.handles[h]
}

// TrackHandle records buf as the buffer for its native handle
func (s *Store) TrackHandle(buf *Buffer) {
	buf.SetLogger(s.logger)
	if buf.handle != 0 {
		s.handles[buf.handle] = buf
	}
}

// ForgetHandle drops the handle mapping, returning the buffer it held
func (s *Store) ForgetHandle(h Handle) *Buffer {
	buf := s.handles[h]
	delete(s.handles, h)
	return buf
}

// ByGlobalID returns the buffer currently carrying global name id, or nil.
// A buffer that lost its last BO no longer answers to its old name.
func (s *Store) ByGlobalID(id uint32) *Buffer {
	if id == 0 {
		return nil
	}
	buf := s.names[id]
	if buf == nil || buf.GlobalID() != id {
		return nil
	}
	return buf
}

// SetGlobalID gives buf the global name id
func (s *Store) SetGlobalID(buf *Buffer, id uint32) {
	if old := buf.GlobalID(); old != 0 && s.names[old] == buf {
		delete(s.names, old)
	}
	buf.SetGlobalID(id)
	if id != 0 {
		s.names[id] = buf
	}
}

// Attach binds BO (fd, handle) to buf, creating the BO if needed
func (s *Store) Attach(fd int, handle uint32, buf *Buffer) *BO {
	bo, _ := s.bos.GetOrCreate(fd, handle)
	buf.SetLogger(s.logger)
	buf.AddBo(bo)
	return bo
}

// Buffers returns every distinct buffer reachable from the store's indexes
// in id order
func (s *Store) Buffers() []*Buffer {
	seen := make(map[*Buffer]bool)
	add := func(b *Buffer) {
		if b != nil {
			seen[b] = true
		}
	}
	for _, bo := range s.bos.bos {
		add(bo.buf)
	}
	for _, b := range s.fbs {
		add(b)
	}
	for _, b := range s.handles {
		add(b)
	}
	for _, b := range s.names {
		add(b)
	}

	out := make([]*Buffer, 0, len(seen))
	for b := range seen {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Release drops buf from every index. It refuses, reporting an internal
// error, while any other known buffer was composed from it.
func (s *Store) Release(buf *Buffer, rec checks.Recorder) error {
	for _, other := range s.Buffers() {
		if other == buf {
			continue
		}
		if !other.DbgCheckNoReferenceTo(buf, rec) {
			return fmt.Errorf("release %s: %w", buf, ErrStillReferenced)
		}
	}

	buf.Unassociate()
	for _, bo := range append([]*BO(nil), buf.bos...) {
		buf.RemoveBo(bo)
		delete(s.bos.bos, bo.Key)
	}
	for _, id := range buf.FbIDs() {
		buf.RemoveFbID(id)
		if s.fbs[id] == buf {
			delete(s.fbs, id)
		}
	}
	if s.handles[buf.handle] == buf {
		delete(s.handles, buf.handle)
	}
	if s.names[buf.globalID] == buf {
		delete(s.names, buf.globalID)
	}
	buf.FreeBufCopies()
	return nil
}

// Sweep forgets buffers that have neither BOs nor framebuffer ids, are not
// kept alive by keep, and are not part of the composition tree of any
// buffer that is. Returns the number forgotten.
func (s *Store) Sweep(keep func(*Buffer) bool) int {
	all := s.Buffers()
	live := make(map[*Buffer]bool)

	var mark func(b *Buffer)
	mark = func(b *Buffer) {
		if b == nil || live[b] {
			return
		}
		live[b] = true
		for _, t := range b.combinedFrom {
			if child, ok := t.Buf.(*Buffer); ok {
				mark(child)
			}
		}
	}

	for _, b := range all {
		if b.IsOpen() || b.NumFbIDs() > 0 || (keep != nil && keep(b)) {
			mark(b)
		}
	}

	for h, b := range s.handles {
		if !live[b] {
			delete(s.handles, h)
		}
	}
	for id, b := range s.names {
		if !live[b] {
			delete(s.names, id)
		}
	}

	n := 0
	for _, b := range all {
		if live[b] {
			continue
		}
		b.Unassociate()
		b.FreeBufCopies()
		n++
	}
	if n > 0 {
		s.logger.Debug("swept unreferenced buffers", "count", n)
	}
	return n
}
