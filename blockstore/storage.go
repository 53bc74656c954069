// Package blockstore implements the engine's Storage variants: a virtually
// unbounded byte array exposed through Endpoint/Access, backed by an
// in-memory buffer, a single buffered file, a memory-mapped file, or a
// directory of fixed-size part files.
package blockstore

import (
	"context"

	"github.com/blockengine/blockengine/blockio"
)

// DefaultPageSize is the fixed power-of-two page size used when a caller
// does not override it.
const DefaultPageSize = 8192

// Storage is implemented by every backend variant. Storage, coordinators and
// object stores may be shared across goroutines; individual Accesses must
// not be.
type Storage interface {
	blockio.EndpointSource

	// Writable reports whether this storage accepts write accesses.
	Writable() bool
	// Size returns the current logical size in bytes.
	Size(ctx context.Context) int64
	// Flush persists all writes completed before it returns. It does not
	// order concurrent writes still in flight.
	Flush(ctx context.Context) error
	// Truncate shrinks the logical size, discarding bytes past the new
	// size. Returns false if newSize >= current size (no-op; it never
	// grows the storage), true if a truncation actually happened.
	Truncate(ctx context.Context, newSize int64) (bool, error)
	// Access returns a scoped cursor over [location, location+length).
	Access(ctx context.Context, location, length int64, writable bool) (*blockio.Access, error)
	// Close releases all resources. Subsequent operations fail with
	// AlreadyClosed.
	Close(ctx context.Context) error
}
