package blockstore

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blockengine/blockengine/blockerr"
	"github.com/blockengine/blockengine/blockio"
	"github.com/blockengine/blockengine/internal/logging"
	"github.com/blockengine/blockengine/internal/metrics"
)

// fileState is the coarse state machine of a Buffered-File storage: only one
// of flushing or reclaiming may be active at a time.
type fileState int32

const (
	stateReady fileState = iota
	stateFlushing
	stateReclaiming
	stateClosed
)

// DefaultMaxBlocks is the default cache pool capacity.
const DefaultMaxBlocks = 1024

// block is one cached page: an absolute, page-aligned location (-1 if
// unused), the bytes themselves, an LRU timestamp, and a dirty bit. The
// location is atomic because scans race against reclaim rewriting it.
type block struct {
	mu       sync.Mutex
	location atomic.Int64
	buf      []byte
	lastHit  atomic.Int64
	dirty    atomic.Bool
	resident atomic.Bool
}

// BufferedFileOptions configures a Buffered-File storage.
type BufferedFileOptions struct {
	PageSize                int64
	MaxBlocks               int
	Writable                bool
	Logger                  logging.Logger
	Metrics                 *metrics.CacheMetrics
	BackgroundFlushInterval time.Duration // 0 disables the optional flush ticker
}

// BufferedFileStorage is a single file backed by a pool of at most MaxBlocks
// cached pages, reclaimed LRU when the pool is full.
type BufferedFileStorage struct {
	file      *os.File
	pageSize  int64
	maxBlocks int
	blocks    []*block
	blockCnt  atomic.Int32
	clock     atomic.Int64
	size      atomic.Int64
	writable  bool
	state     atomic.Int32
	log       logging.Logger
	metrics   *metrics.CacheMetrics

	flushMu     sync.Mutex // serializes concurrent Flush() callers
	ticker      *time.Ticker
	closeTicker chan struct{}

	triggerMu     sync.Mutex
	nextTrigger   int
	evictTriggers map[int]func(location int64)
	flushTriggers map[int]func()
}

// Handle unregisters a trigger previously registered with RegisterOnEvict or
// RegisterOnFlush.
type Handle struct {
	unregister func()
}

// Unregister removes the trigger. Safe to call more than once.
func (h Handle) Unregister() {
	if h.unregister != nil {
		h.unregister()
	}
}

// RegisterOnEvict registers fn to be called, with the absolute location of
// the evicted page, whenever reclaim() evicts a resident block to make room
// for another. Intended for tests that want to observe cache pressure
// without racing the cache's internal locks.
func (s *BufferedFileStorage) RegisterOnEvict(fn func(location int64)) Handle {
	s.triggerMu.Lock()
	defer s.triggerMu.Unlock()
	if s.evictTriggers == nil {
		s.evictTriggers = make(map[int]func(int64))
	}
	id := s.nextTrigger
	s.nextTrigger++
	s.evictTriggers[id] = fn
	return Handle{unregister: func() {
		s.triggerMu.Lock()
		defer s.triggerMu.Unlock()
		delete(s.evictTriggers, id)
	}}
}

// RegisterOnFlush registers fn to be called once a Flush() call has written
// back every dirty block and fsynced the file.
func (s *BufferedFileStorage) RegisterOnFlush(fn func()) Handle {
	s.triggerMu.Lock()
	defer s.triggerMu.Unlock()
	if s.flushTriggers == nil {
		s.flushTriggers = make(map[int]func())
	}
	id := s.nextTrigger
	s.nextTrigger++
	s.flushTriggers[id] = fn
	return Handle{unregister: func() {
		s.triggerMu.Lock()
		defer s.triggerMu.Unlock()
		delete(s.flushTriggers, id)
	}}
}

func (s *BufferedFileStorage) fireEvict(location int64) {
	s.triggerMu.Lock()
	fns := make([]func(int64), 0, len(s.evictTriggers))
	for _, fn := range s.evictTriggers {
		fns = append(fns, fn)
	}
	s.triggerMu.Unlock()
	for _, fn := range fns {
		fn(location)
	}
}

func (s *BufferedFileStorage) fireFlush() {
	s.triggerMu.Lock()
	fns := make([]func(), 0, len(s.flushTriggers))
	for _, fn := range s.flushTriggers {
		fns = append(fns, fn)
	}
	s.triggerMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// OpenBufferedFile opens (creating if necessary) path as a Buffered-File
// storage.
func OpenBufferedFile(path string, opts BufferedFileOptions) (*BufferedFileStorage, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	maxBlocks := opts.MaxBlocks
	if maxBlocks <= 0 {
		maxBlocks = DefaultMaxBlocks
	}
	flag := os.O_RDWR | os.O_CREATE
	if !opts.Writable {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, blockerr.Wrap(blockerr.IOErr, err, "open buffered file")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, blockerr.Wrap(blockerr.IOErr, err, "stat buffered file")
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewCacheMetrics(nil, "blockengine", "bufferedfile")
	}
	s := &BufferedFileStorage{
		file:      f,
		pageSize:  pageSize,
		maxBlocks: maxBlocks,
		blocks:    make([]*block, maxBlocks),
		writable:  opts.Writable,
		log:       log,
		metrics:   m,
	}
	for i := range s.blocks {
		b := &block{buf: make([]byte, pageSize)}
		b.location.Store(-1)
		s.blocks[i] = b
	}
	s.size.Store(info.Size())

	if opts.BackgroundFlushInterval > 0 {
		s.ticker = time.NewTicker(opts.BackgroundFlushInterval)
		s.closeTicker = make(chan struct{})
		go s.backgroundFlush()
	}
	return s, nil
}

func (s *BufferedFileStorage) backgroundFlush() {
	for {
		select {
		case <-s.closeTicker:
			return
		case <-s.ticker.C:
			if err := s.Flush(context.Background()); err != nil {
				s.log.Warn("background flush failed: %v", err)
			}
		}
	}
}

func (s *BufferedFileStorage) Writable() bool { return s.writable }

func (s *BufferedFileStorage) Size(context.Context) int64 { return s.size.Load() }

func (s *BufferedFileStorage) tick() int64 { return s.clock.Add(1) }

// acquireBlock resolves a page-aligned location to a cached block: scan for
// a resident match, grow the pool while there is room, otherwise reclaim the
// coldest block.
func (s *BufferedFileStorage) acquireBlock(loc int64) (*block, error) {
	if fileState(s.state.Load()) == stateClosed {
		return nil, blockerr.New(blockerr.AlreadyClosed, "buffered file is closed")
	}

	count := int(s.blockCnt.Load())
	if b := s.scanResident(loc, count); b != nil {
		return b, nil
	}

	if count < s.maxBlocks {
		if b, ok := s.reserveNext(loc); ok {
			return b, nil
		}
		// lost the race to reserve the next slot; fall through to a fresh
		// scan, the winner may have just published our target location.
		count = int(s.blockCnt.Load())
		if b := s.scanResident(loc, count); b != nil {
			return b, nil
		}
	}

	return s.reclaim(loc)
}

func (s *BufferedFileStorage) scanResident(loc int64, count int) *block {
	for i := 0; i < count; i++ {
		b := s.blocks[i]
		if b.resident.Load() && b.location.Load() == loc {
			b.lastHit.Store(s.tick())
			s.metrics.Hits.Inc()
			return b
		}
	}
	return nil
}

func (s *BufferedFileStorage) reserveNext(loc int64) (*block, bool) {
	idx := s.blockCnt.Load()
	if int(idx) >= s.maxBlocks {
		return nil, false
	}
	if !s.blockCnt.CompareAndSwap(idx, idx+1) {
		return nil, false
	}
	b := s.blocks[idx]
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := s.loadInto(b, loc); err != nil {
		s.log.Error("load block at %d: %v", loc, err)
	}
	b.location.Store(loc)
	b.lastHit.Store(s.tick())
	b.dirty.Store(false)
	b.resident.Store(true)
	s.metrics.Misses.Inc()
	s.metrics.Occupancy.Inc()
	return b, true
}

func (s *BufferedFileStorage) reclaim(loc int64) (*block, error) {
	// Spin until no flush is in flight rather than blocking, matching the
	// coordinator's "wait by retrying" philosophy elsewhere in the engine.
	for !s.state.CompareAndSwap(int32(stateReady), int32(stateReclaiming)) {
		if fileState(s.state.Load()) == stateClosed {
			return nil, blockerr.New(blockerr.AlreadyClosed, "buffered file is closed")
		}
	}
	defer s.state.Store(int32(stateReady))

	// A concurrent load may have just published loc while we waited for the
	// reclaiming state; check once more before evicting anything.
	if b := s.scanResident(loc, int(s.blockCnt.Load())); b != nil {
		return b, nil
	}

	// Slots invalidated by Truncate are free capacity; reuse one before
	// evicting anything that is still live.
	count := int(s.blockCnt.Load())
	var victim *block
	for i := 0; i < count; i++ {
		if b := s.blocks[i]; !b.resident.Load() {
			victim = b
			break
		}
	}
	if victim == nil {
		var minHit int64 = 1<<63 - 1
		for _, b := range s.blocks {
			if !b.resident.Load() {
				continue
			}
			if h := b.lastHit.Load(); h < minHit {
				minHit = h
				victim = b
			}
		}
	}
	if victim == nil {
		return nil, blockerr.New(blockerr.IOErr, "no reclaimable block in buffered file cache")
	}

	victim.mu.Lock()
	defer victim.mu.Unlock()
	if victim.location.Load() == loc && victim.resident.Load() {
		victim.lastHit.Store(s.tick())
		return victim, nil
	}
	if victim.resident.Load() {
		if victim.dirty.Load() {
			if err := s.writeBack(victim); err != nil {
				return nil, err
			}
		}
		s.fireEvict(victim.location.Load())
		s.metrics.Evictions.Inc()
	} else {
		s.metrics.Occupancy.Inc()
	}
	if err := s.loadInto(victim, loc); err != nil {
		return nil, err
	}
	victim.location.Store(loc)
	victim.lastHit.Store(s.tick())
	victim.dirty.Store(false)
	victim.resident.Store(true)
	return victim, nil
}

func (s *BufferedFileStorage) loadInto(b *block, loc int64) error {
	if loc < s.size.Load() {
		// The logical size can run ahead of the file on disk (pages extended
		// in cache but never written back), so EOF here just means zero-fill.
		n, err := s.file.ReadAt(b.buf, loc)
		if err != nil && !errors.Is(err, io.EOF) {
			return blockerr.Wrap(blockerr.IOErr, err, "read block")
		}
		for i := n; i < len(b.buf); i++ {
			b.buf[i] = 0
		}
		return nil
	}
	for i := range b.buf {
		b.buf[i] = 0
	}
	if end := loc + s.pageSize; end > s.size.Load() {
		s.size.Store(end)
	}
	return nil
}

func (s *BufferedFileStorage) writeBack(b *block) error {
	if _, err := s.file.WriteAt(b.buf, b.location.Load()); err != nil {
		return blockerr.Wrap(blockerr.IOErr, err, "write back dirty block")
	}
	b.dirty.Store(false)
	s.metrics.DirtyWrite.Inc()
	return nil
}

// AcquireEndpointAt returns the block covering index as a page-sized
// Endpoint, wiring OnWrite to the block's dirty bit.
func (s *BufferedFileStorage) AcquireEndpointAt(index int64) (*blockio.Endpoint, error) {
	loc := index &^ (s.pageSize - 1)
	b, err := s.acquireBlock(loc)
	if err != nil {
		return nil, err
	}
	ep := blockio.NewEndpoint(loc, b.buf)
	ep.OnWrite = func() { b.dirty.Store(true) }
	ep.SetOwner(b)
	return ep, nil
}

func (s *BufferedFileStorage) ReleaseEndpoint(*blockio.Endpoint) {} // blocks stay resident until reclaimed

func (s *BufferedFileStorage) Access(_ context.Context, location, length int64, writable bool) (*blockio.Access, error) {
	if fileState(s.state.Load()) == stateClosed {
		return nil, blockerr.New(blockerr.AlreadyClosed, "buffered file is closed")
	}
	if writable && !s.writable {
		return nil, blockerr.New(blockerr.OutOfBounds, "write access on a read-only storage")
	}
	return blockio.NewAccess(s, location, length, writable), nil
}

// Flush sets state FLUSHING, writes back every dirty resident block, and
// forces the OS to persist them.
func (s *BufferedFileStorage) Flush(context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	for !s.state.CompareAndSwap(int32(stateReady), int32(stateFlushing)) {
		if fileState(s.state.Load()) == stateClosed {
			return blockerr.New(blockerr.AlreadyClosed, "buffered file is closed")
		}
	}
	defer s.state.Store(int32(stateReady))

	count := int(s.blockCnt.Load())
	for i := 0; i < count; i++ {
		b := s.blocks[i]
		b.mu.Lock()
		if b.resident.Load() && b.dirty.Load() {
			if err := s.writeBack(b); err != nil {
				b.mu.Unlock()
				return err
			}
		}
		b.mu.Unlock()
	}
	if err := s.file.Sync(); err != nil {
		return blockerr.Wrap(blockerr.IOErr, err, "fsync")
	}
	s.metrics.Flushes.Inc()
	s.fireFlush()
	return nil
}

// Truncate returns false (no error) if newSize >= current size, otherwise
// truncates and returns true.
func (s *BufferedFileStorage) Truncate(ctx context.Context, newSize int64) (bool, error) {
	old := s.size.Load()
	if newSize >= old {
		return false, nil
	}
	if err := s.Flush(ctx); err != nil {
		return false, err
	}
	count := int(s.blockCnt.Load())
	for i := 0; i < count; i++ {
		b := s.blocks[i]
		b.mu.Lock()
		if b.resident.Load() && b.location.Load() >= newSize {
			b.resident.Store(false)
			b.location.Store(-1)
			s.metrics.Occupancy.Dec()
		}
		b.mu.Unlock()
	}
	if err := s.file.Truncate(newSize); err != nil {
		return false, blockerr.Wrap(blockerr.IOErr, err, "truncate")
	}
	s.size.Store(newSize)
	return true, nil
}

func (s *BufferedFileStorage) Close(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}
	s.state.Store(int32(stateClosed))
	if s.ticker != nil {
		s.ticker.Stop()
		close(s.closeTicker)
	}
	if err := s.file.Close(); err != nil {
		return blockerr.Wrap(blockerr.IOErr, err, "close")
	}
	return nil
}
