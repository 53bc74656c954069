package blockstore

import (
	"context"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/blockengine/blockengine/blockerr"
	"github.com/blockengine/blockengine/blockio"
)

// MappedFileOptions configures a memory-mapped-file Storage.
type MappedFileOptions struct {
	Writable bool
	// InitialSize is used only when creating a brand-new (empty) file; an
	// existing file's on-disk size is used instead.
	InitialSize int64
}

// MappedFileStorage is a single file backed by one memory-mapped region; the
// whole mapping is exposed as a single Endpoint spanning [0, size). mmap has
// no stdlib equivalent, so this uses golang.org/x/sys/unix directly.
type MappedFileStorage struct {
	file     *os.File
	mu       sync.RWMutex
	data     []byte
	size     int64
	writable bool
	closed   bool
}

// OpenMappedFile opens (creating if necessary) path as a memory-mapped
// Storage.
func OpenMappedFile(path string, opts MappedFileOptions) (*MappedFileStorage, error) {
	flag := os.O_RDWR | os.O_CREATE
	if !opts.Writable {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, blockerr.Wrap(blockerr.IOErr, err, "open mapped file")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, blockerr.Wrap(blockerr.IOErr, err, "stat mapped file")
	}
	size := info.Size()
	if size == 0 && opts.InitialSize > 0 {
		if err := f.Truncate(opts.InitialSize); err != nil {
			f.Close()
			return nil, blockerr.Wrap(blockerr.IOErr, err, "preallocate mapped file")
		}
		size = opts.InitialSize
	}

	m := &MappedFileStorage{file: f, writable: opts.Writable}
	if err := m.remapLocked(size); err != nil {
		f.Close()
		return nil, err
	}
	return m, nil
}

func (m *MappedFileStorage) mmapProt() int {
	if m.writable {
		return unix.PROT_READ | unix.PROT_WRITE
	}
	return unix.PROT_READ
}

// remapLocked unmaps any existing region and maps [0, size). Callers must
// hold m.mu for writing.
func (m *MappedFileStorage) remapLocked(size int64) error {
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			return blockerr.Wrap(blockerr.IOErr, err, "munmap")
		}
		m.data = nil
	}
	if size == 0 {
		m.size = 0
		return nil
	}
	data, err := unix.Mmap(int(m.file.Fd()), 0, int(size), m.mmapProt(), unix.MAP_SHARED)
	if err != nil {
		return blockerr.Wrap(blockerr.IOErr, err, "mmap")
	}
	m.data = data
	m.size = size
	return nil
}

func (m *MappedFileStorage) Writable() bool { return m.writable }

func (m *MappedFileStorage) Size(context.Context) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MappedFileStorage) Flush(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return blockerr.New(blockerr.AlreadyClosed, "mapped file is closed")
	}
	if len(m.data) == 0 {
		return nil
	}
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return blockerr.Wrap(blockerr.IOErr, err, "msync")
	}
	return nil
}

// grow extends the file and remaps it if index falls outside the current
// mapping; writes beyond the current size must be able to land somewhere.
func (m *MappedFileStorage) grow(index int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return blockerr.New(blockerr.AlreadyClosed, "mapped file is closed")
	}
	if index < m.size {
		return nil
	}
	newSize := index + 1
	if err := m.file.Truncate(newSize); err != nil {
		return blockerr.Wrap(blockerr.IOErr, err, "grow mapped file")
	}
	return m.remapLocked(newSize)
}

func (m *MappedFileStorage) AcquireEndpointAt(index int64) (*blockio.Endpoint, error) {
	if err := m.grow(index); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return blockio.NewEndpoint(0, m.data), nil
}

func (m *MappedFileStorage) ReleaseEndpoint(*blockio.Endpoint) {} // the mapping stays resident

func (m *MappedFileStorage) Access(_ context.Context, location, length int64, writable bool) (*blockio.Access, error) {
	if writable && !m.writable {
		return nil, blockerr.New(blockerr.OutOfBounds, "write access on a read-only storage")
	}
	return blockio.NewAccess(m, location, length, writable), nil
}

func (m *MappedFileStorage) Truncate(_ context.Context, newSize int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, blockerr.New(blockerr.AlreadyClosed, "mapped file is closed")
	}
	if newSize >= m.size {
		return false, nil
	}
	if err := m.file.Truncate(newSize); err != nil {
		return false, blockerr.Wrap(blockerr.IOErr, err, "truncate")
	}
	if err := m.remapLocked(newSize); err != nil {
		return false, err
	}
	return true, nil
}

func (m *MappedFileStorage) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	if m.data != nil {
		if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
			return blockerr.Wrap(blockerr.IOErr, err, "msync on close")
		}
		if err := unix.Munmap(m.data); err != nil {
			return blockerr.Wrap(blockerr.IOErr, err, "munmap on close")
		}
		m.data = nil
	}
	m.closed = true
	return m.file.Close()
}
