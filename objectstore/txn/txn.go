// Package txn implements the transactional variant of objectstore: every
// allocate/free/access call takes an externally supplied transaction handle
// instead of touching the underlying Storage directly. The transaction
// boundary is opaque to objectstore: it is only a sequence number used for
// commit-time conflict detection.
package txn

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/blockengine/blockengine/blockerr"
	"github.com/blockengine/blockengine/blockio"
	"github.com/blockengine/blockengine/objectstore"
)

// Txn is an opaque transaction handle. The zero value is not valid; obtain
// one from Manager.Begin.
type Txn struct {
	id      uint64
	write   bool
	baseSeq uint64 // the manager's commit sequence observed at Begin
	mgr     *Manager
	done    atomic.Bool
}

// ID returns the transaction's sequence number, assigned in Begin order.
func (t *Txn) ID() uint64 { return t.id }

// Manager hands out transactions over a single ObjectStore and detects
// write-write conflicts at commit time by comparing the manager's global
// commit sequence against the sequence the transaction observed at Begin.
// It does not implement MVCC snapshotting of reads.
type Manager struct {
	store *objectstore.ObjectStore

	mu         sync.Mutex
	nextID     atomic.Uint64
	commitSeq  uint64
	writerLive bool
}

// NewManager wraps store with transaction admission.
func NewManager(store *objectstore.ObjectStore) *Manager {
	return &Manager{store: store}
}

// Begin starts a new transaction. Only one writable transaction may be live
// at a time; readers may run concurrently with each other.
func (m *Manager) Begin(write bool) (*Txn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if write && m.writerLive {
		return nil, blockerr.New(blockerr.ConcurrentWrite, "a writable transaction is already in progress")
	}
	if write {
		m.writerLive = true
	}
	return &Txn{
		id:      m.nextID.Add(1),
		write:   write,
		baseSeq: m.commitSeq,
		mgr:     m,
	}, nil
}

// Commit finalizes t. For writable transactions this bumps the manager's
// commit sequence and fails with a ConcurrentWriteError if another writer
// committed since t began.
func (m *Manager) Commit(t *Txn) error {
	if !t.done.CompareAndSwap(false, true) {
		return blockerr.New(blockerr.AlreadyClosed, "transaction already finished")
	}
	if !t.write {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writerLive = false
	if m.commitSeq != t.baseSeq {
		return &blockerr.ConcurrentWriteError{ConflictingSeq: m.commitSeq, TimestampUnix: 0}
	}
	m.commitSeq++
	return nil
}

// Abort discards t without applying any conflict check.
func (m *Manager) Abort(t *Txn) {
	if !t.done.CompareAndSwap(false, true) {
		return
	}
	if t.write {
		m.mu.Lock()
		m.writerLive = false
		m.mu.Unlock()
	}
}

// Allocate passes t through to the underlying ObjectStore; the store itself
// has no notion of transactions, so this is a direct delegation that exists
// solely to keep the transactional variant's call surface symmetric with
// the simple variant.
func (m *Manager) Allocate(ctx context.Context, t *Txn, size int) (uint64, error) {
	if err := m.checkLive(t); err != nil {
		return 0, err
	}
	return m.store.Allocate(ctx, size)
}

// Free delegates to the underlying ObjectStore under t.
func (m *Manager) Free(ctx context.Context, t *Txn, handle uint64) error {
	if err := m.checkLive(t); err != nil {
		return err
	}
	return m.store.Free(ctx, handle)
}

// Access delegates to the underlying ObjectStore under t.
func (m *Manager) Access(ctx context.Context, t *Txn, handle uint64, writable bool) (*blockio.Access, error) {
	if err := m.checkLive(t); err != nil {
		return nil, err
	}
	if writable && !t.write {
		return nil, blockerr.New(blockerr.OutOfBounds, "write access inside a read-only transaction")
	}
	return m.store.Access(ctx, handle, writable)
}

func (m *Manager) checkLive(t *Txn) error {
	if t.done.Load() {
		return blockerr.New(blockerr.AlreadyClosed, "transaction already finished")
	}
	return nil
}
