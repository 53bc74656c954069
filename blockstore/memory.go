package blockstore

import (
	"context"
	"sync"

	"github.com/blockengine/blockengine/blockerr"
	"github.com/blockengine/blockengine/blockio"
)

// MemoryOptions configures an in-memory Storage.
type MemoryOptions struct {
	PageSize int64 // defaults to DefaultPageSize
	Writable bool
}

// MemoryStorage is a growable byte array composed of fixed-size pages, the
// simplest of the four Storage variants.
type MemoryStorage struct {
	mu       sync.RWMutex
	pageSize int64
	pages    [][]byte
	size     int64
	writable bool
	closed   bool
}

// NewMemoryStorage returns an empty in-memory Storage.
func NewMemoryStorage(opts MemoryOptions) *MemoryStorage {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &MemoryStorage{pageSize: pageSize, writable: opts.Writable}
}

func (m *MemoryStorage) Writable() bool { return m.writable }

func (m *MemoryStorage) Size(context.Context) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryStorage) Flush(context.Context) error { return nil } // nothing to persist

func (m *MemoryStorage) Truncate(_ context.Context, newSize int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, blockerr.New(blockerr.AlreadyClosed, "storage already closed")
	}
	if newSize >= m.size {
		return false, nil
	}
	pageCount := (newSize + m.pageSize - 1) / m.pageSize
	if pageCount < int64(len(m.pages)) {
		m.pages = m.pages[:pageCount]
	}
	if rem := newSize % m.pageSize; rem != 0 && pageCount > 0 {
		last := m.pages[pageCount-1]
		for i := rem; i < int64(len(last)); i++ {
			last[i] = 0
		}
	}
	m.size = newSize
	return true, nil
}

func (m *MemoryStorage) growLocked(toIndex int64) {
	needed := toIndex/m.pageSize + 1
	for int64(len(m.pages)) < needed {
		m.pages = append(m.pages, make([]byte, m.pageSize))
	}
	if end := needed * m.pageSize; end > m.size {
		m.size = end
	}
}

// AcquireEndpointAt returns the page containing index as a page-sized
// Endpoint window [pageStart, pageStart+PageSize).
func (m *MemoryStorage) AcquireEndpointAt(index int64) (*blockio.Endpoint, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, blockerr.New(blockerr.AlreadyClosed, "storage already closed")
	}
	pageIdx := index / m.pageSize
	m.growLocked(index)
	page := m.pages[pageIdx]
	m.mu.Unlock()
	return blockio.NewEndpoint(pageIdx*m.pageSize, page), nil
}

func (m *MemoryStorage) ReleaseEndpoint(*blockio.Endpoint) {} // pages mutate in place, nothing to release

func (m *MemoryStorage) Access(_ context.Context, location, length int64, writable bool) (*blockio.Access, error) {
	if writable && !m.writable {
		return nil, blockerr.New(blockerr.OutOfBounds, "write access on a read-only storage")
	}
	return blockio.NewAccess(m, location, length, writable), nil
}

func (m *MemoryStorage) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.pages = nil
	return nil
}
