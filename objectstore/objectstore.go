// Package objectstore implements a paged allocator: a variable-size record
// heap above a Storage, with size-class free lists and an optional
// named-root registry. Record handles are the payload's byte offset; the
// 2-byte length prefix lives at handle-2.
package objectstore

import (
	"context"
	"hash/fnv"

	"github.com/blockengine/blockengine/blockerr"
	"github.com/blockengine/blockengine/blockio"
	"github.com/blockengine/blockengine/internal/logging"
)

// MagicID identifies this store's on-disk layout.
const MagicID uint64 = 0x424C4B454E474E31 // "BLKENGN1"

const (
	// MinSize is the smallest record payload accepted by allocate.
	MinSize = 8
	// MaxSize is the largest record payload accepted by allocate (u16 length prefix).
	MaxSize = 65535
	// MaxPools bounds the number of size-class free lists.
	MaxPools = 64
	// poolEntrySize is the on-disk size of one {u32 size_class; u64 head} pair.
	poolEntrySize = 12
)

const (
	preambleOffset          = 0
	preambleMagicOffset     = 0
	preambleCursorOffset    = 8
	preamblePoolCountOffset = 16
	preambleRegCountOffset  = 20
	preamblePoolsOffset     = 24
)

// KeyNull is the sentinel "no handle" value, reused from the B+ tree's
// KEY_NULL so the whole engine shares one "absent" constant.
const KeyNull uint64 = 0xFFFFFFFFFFFFFFFF

// Store is the subset of blockstore.Storage (and of coordinator.Coordinator,
// which satisfies the same shape) that the object store needs. Declaring it
// locally keeps objectstore decoupled from which thread-safety wrapper, if
// any, sits in front of the Storage.
type Store interface {
	Size(ctx context.Context) int64
	Truncate(ctx context.Context, newSize int64) (bool, error)
	Access(ctx context.Context, location, length int64, writable bool) (*blockio.Access, error)
}

// Options configures an ObjectStore.
type Options struct {
	PageSize int64 // must match the Storage's own page size
	// WithRegistry reserves page 1 for the named-root table; records then
	// start at page 2 instead of page 1.
	WithRegistry  bool
	MaxRegistered int // default: as many 16-byte slots as fit in one page
	// Logger receives the startup diagnostics line from Create/Open. Nil
	// disables it (equivalent to logging.Nop()).
	Logger logging.Logger
}

// ObjectStore is a paged allocator above a Storage.
type ObjectStore struct {
	store         Store
	pageSize      int64
	withRegistry  bool
	maxRegistered int
	recordsStart  int64
	log           logging.Logger
}

// Create initializes a brand-new ObjectStore on an empty (or pre-truncated)
// Storage, writing the preamble (and registry table, if requested).
func Create(ctx context.Context, store Store, opts Options) (*ObjectStore, error) {
	o := newObjectStore(store, opts)

	a, err := store.Access(ctx, preambleOffset, pageHeader(o.pageSize), true)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	if err := a.WriteUint64(MagicID); err != nil {
		return nil, err
	}
	if err := a.WriteUint64(uint64(o.recordsStart)); err != nil {
		return nil, err
	}
	if err := a.WriteUint32(0); err != nil { // pool_count
		return nil, err
	}
	if o.withRegistry {
		if err := a.WriteUint32(0); err != nil { // registered_count
			return nil, err
		}
	}
	o.Diagnostics(ctx)
	return o, nil
}

// Open attaches to an ObjectStore previously written by Create, validating
// the magic id.
func Open(ctx context.Context, store Store, opts Options) (*ObjectStore, error) {
	o := newObjectStore(store, opts)

	a, err := store.Access(ctx, preambleOffset, pageHeader(o.pageSize), false)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	magic, err := a.ReadUint64()
	if err != nil {
		return nil, err
	}
	if magic != MagicID {
		return nil, blockerr.New(blockerr.IOErr, "object store preamble has wrong magic id")
	}
	o.Diagnostics(ctx)
	return o, nil
}

func pageHeader(pageSize int64) int64 { return pageSize } // the preamble never exceeds one page

func newObjectStore(store Store, opts Options) *ObjectStore {
	pageSize := opts.PageSize
	recordsStart := pageSize
	maxRegistered := opts.MaxRegistered
	if opts.WithRegistry {
		recordsStart = pageSize * 2
		if maxRegistered <= 0 {
			maxRegistered = int(pageSize / 16)
		}
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &ObjectStore{
		store:         store,
		pageSize:      pageSize,
		withRegistry:  opts.WithRegistry,
		maxRegistered: maxRegistered,
		recordsStart:  recordsStart,
		log:           log,
	}
}

// Diagnostics logs a one-line summary of the store's on-disk layout: magic
// id, free-space cursor and per-pool occupancy. Errors reading pool state
// are logged and otherwise swallowed; diagnostics must never fail an open.
func (o *ObjectStore) Diagnostics(ctx context.Context) {
	cursor, err := o.readCursor(ctx)
	if err != nil {
		o.log.Warn("diagnostics: read cursor: %v", err)
		return
	}
	count, err := o.poolCount(ctx)
	if err != nil {
		o.log.Warn("diagnostics: read pool count: %v", err)
		return
	}
	o.log.Info("object store opened: magic=%#x cursor=%d pools=%d records_start=%d", MagicID, cursor, count, o.recordsStart)
	for i := 0; i < count; i++ {
		sizeClass, head, err := o.readPool(ctx, i)
		if err != nil {
			o.log.Warn("diagnostics: read pool %d: %v", i, err)
			continue
		}
		o.log.Debug("object store pool[%d]: size_class=%d head=%#x free=%t", i, sizeClass, head, head != KeyNull)
	}
}

func (o *ObjectStore) readCursor(ctx context.Context) (int64, error) {
	a, err := o.store.Access(ctx, preambleCursorOffset, 8, false)
	if err != nil {
		return 0, err
	}
	defer a.Close()
	v, err := a.ReadUint64()
	return int64(v), err
}

func (o *ObjectStore) writeCursor(ctx context.Context, v int64) error {
	a, err := o.store.Access(ctx, preambleCursorOffset, 8, true)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.WriteUint64(uint64(v))
}

func (o *ObjectStore) poolCount(ctx context.Context) (int, error) {
	a, err := o.store.Access(ctx, preamblePoolCountOffset, 4, false)
	if err != nil {
		return 0, err
	}
	defer a.Close()
	v, err := a.ReadUint32()
	return int(v), err
}

func (o *ObjectStore) setPoolCount(ctx context.Context, n int) error {
	a, err := o.store.Access(ctx, preamblePoolCountOffset, 4, true)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.WriteUint32(uint32(n))
}

// poolOffset is the preamble offset of the i-th pool entry, a
// {size_class, head_record_pointer} pair.
func (o *ObjectStore) poolOffset(i int) int64 { return preamblePoolsOffset + int64(i)*poolEntrySize }

func (o *ObjectStore) readPool(ctx context.Context, i int) (sizeClass uint32, head uint64, err error) {
	a, err := o.store.Access(ctx, o.poolOffset(i), poolEntrySize, false)
	if err != nil {
		return 0, 0, err
	}
	defer a.Close()
	sizeClass, err = a.ReadUint32()
	if err != nil {
		return 0, 0, err
	}
	head, err = a.ReadUint64()
	return sizeClass, head, err
}

func (o *ObjectStore) writePool(ctx context.Context, i int, sizeClass uint32, head uint64) error {
	a, err := o.store.Access(ctx, o.poolOffset(i), poolEntrySize, true)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.WriteUint32(sizeClass); err != nil {
		return err
	}
	return a.WriteUint64(head)
}

func roundUpSize(size int) int {
	if size < MinSize {
		return MinSize
	}
	return size
}

// findPool returns the pool index for sizeClass, or -1 if none exists yet.
func (o *ObjectStore) findPool(ctx context.Context, sizeClass uint32) (int, int, error) {
	count, err := o.poolCount(ctx)
	if err != nil {
		return -1, 0, err
	}
	for i := 0; i < count; i++ {
		sc, _, err := o.readPool(ctx, i)
		if err != nil {
			return -1, 0, err
		}
		if sc == sizeClass {
			return i, count, nil
		}
	}
	return -1, count, nil
}

// Allocate reserves a record of the given payload size, reusing a free-list
// slot of a matching size class if one exists, otherwise falling through to
// direct (bump) allocation.
func (o *ObjectStore) Allocate(ctx context.Context, size int) (uint64, error) {
	size = roundUpSize(size)
	if size > MaxSize {
		return 0, blockerr.Newf(blockerr.Overflow, "allocate size %d exceeds MAX_SIZE %d", size, MaxSize)
	}

	idx, _, err := o.findPool(ctx, uint32(size))
	if err != nil {
		return 0, err
	}
	if idx >= 0 {
		_, head, err := o.readPool(ctx, idx)
		if err != nil {
			return 0, err
		}
		if head != KeyNull && head != 0 {
			handle := head
			a, err := o.store.Access(ctx, int64(handle), 8, false)
			if err != nil {
				return 0, err
			}
			next, err := a.ReadUint64()
			a.Close()
			if err != nil {
				return 0, err
			}
			if err := o.writePool(ctx, idx, uint32(size), next); err != nil {
				return 0, err
			}
			if err := o.writeLengthPrefix(ctx, handle, uint16(size)); err != nil {
				return 0, err
			}
			return handle, nil
		}
	}
	return o.allocateDirect(ctx, size)
}

func (o *ObjectStore) writeLengthPrefix(ctx context.Context, handle uint64, length uint16) error {
	a, err := o.store.Access(ctx, int64(handle)-2, 2, true)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.WriteChar(length)
}

// allocateDirect bump-allocates size+2 bytes from the free-space cursor,
// skipping to the next page if the record would straddle a page boundary.
func (o *ObjectStore) allocateDirect(ctx context.Context, size int) (uint64, error) {
	cursor, err := o.readCursor(ctx)
	if err != nil {
		return 0, err
	}
	recordLen := int64(size) + 2
	pageOfStart := cursor / o.pageSize
	pageOfEnd := (cursor + recordLen - 1) / o.pageSize
	if pageOfEnd != pageOfStart {
		cursor = (pageOfStart + 1) * o.pageSize
	}

	handle := uint64(cursor + 2)
	if err := o.writeLengthPrefix(ctx, handle, uint16(size)); err != nil {
		return 0, err
	}
	if err := o.writeCursor(ctx, cursor+recordLen); err != nil {
		return 0, err
	}
	return handle, nil
}

// AllocateDirect exposes allocateDirect for callers that intentionally want
// a fresh record never drawn from a free list (e.g. the B+ tree, which
// allocates every node this way; the node records it frees go into their
// size-class pool and are not handed back to the tree).
func (o *ObjectStore) AllocateDirect(ctx context.Context, size int) (uint64, error) {
	size = roundUpSize(size)
	if size > MaxSize {
		return 0, blockerr.Newf(blockerr.Overflow, "allocate size %d exceeds MAX_SIZE %d", size, MaxSize)
	}
	return o.allocateDirect(ctx, size)
}

// Free releases handle back to the matching size-class pool, creating the
// pool if one does not exist yet and there is room; otherwise the space is
// leaked.
func (o *ObjectStore) Free(ctx context.Context, handle uint64) error {
	length, err := o.readLength(ctx, handle)
	if err != nil {
		return err
	}
	idx, count, err := o.findPool(ctx, uint32(length))
	if err != nil {
		return err
	}
	if idx < 0 {
		if count >= MaxPools {
			return nil // leaked: no room for a new size class
		}
		idx = count
		if err := o.setPoolCount(ctx, count+1); err != nil {
			return err
		}
		if err := o.writePool(ctx, idx, uint32(length), KeyNull); err != nil {
			return err
		}
	}
	_, head, err := o.readPool(ctx, idx)
	if err != nil {
		return err
	}
	a, err := o.store.Access(ctx, int64(handle), 8, true)
	if err != nil {
		return err
	}
	if err := a.WriteUint64(head); err != nil {
		a.Close()
		return err
	}
	a.Close()
	return o.writePool(ctx, idx, uint32(length), handle)
}

func (o *ObjectStore) readLength(ctx context.Context, handle uint64) (uint16, error) {
	a, err := o.store.Access(ctx, int64(handle)-2, 2, false)
	if err != nil {
		return 0, err
	}
	defer a.Close()
	return a.ReadChar()
}

// Access returns a bounded Access over the record at handle: the 2-byte
// length prefix is read first, then the Access spans [handle, handle+length).
func (o *ObjectStore) Access(ctx context.Context, handle uint64, writable bool) (*blockio.Access, error) {
	length, err := o.readLength(ctx, handle)
	if err != nil {
		return nil, err
	}
	return o.store.Access(ctx, int64(handle), int64(length), writable)
}

// nameHash is a fixed 8-byte fingerprint of a root name. Any stable 64-bit
// string hash works here; FNV-1a avoids hand-rolling one.
func nameHash(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}
