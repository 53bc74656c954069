package blockstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blockengine/blockengine/blockerr"
	"github.com/blockengine/blockengine/blockio"
	"github.com/blockengine/blockengine/internal/logging"
	"github.com/blockengine/blockengine/internal/metrics"
)

// DefaultMaxPartSize is the default size cap of a single part file.
const DefaultMaxPartSize int64 = 1 << 30 // 1 GiB

// SplitFileOptions configures a Split-File storage.
type SplitFileOptions struct {
	PageSize    int64
	MaxPartSize int64
	MaxBlocks   int // per-part buffered-file cache size
	Writable    bool
	Logger      logging.Logger
	Metrics     *metrics.CacheMetrics
	// Prefix/Suffix name each part file as Prefix+<NNNN>+Suffix inside the
	// directory passed to OpenSplitFile; an empty Prefix means "part-".
	Prefix, Suffix string
}

func (o SplitFileOptions) partName(idx int) string {
	prefix, suffix := o.Prefix, o.Suffix
	if prefix == "" {
		prefix = "part-"
	}
	return fmt.Sprintf("%s%04d%s", prefix, idx, suffix)
}

// splitOwner is attached to every proxy Endpoint returned by SplitFileStorage
// so ReleaseEndpoint can route back to the owning part.
type splitOwner struct {
	part    *BufferedFileStorage
	partIdx int
}

// SplitFileStorage presents a directory of size-capped part files as a
// single contiguous byte array. Each part is itself a
// BufferedFileStorage; this type only translates between global offsets and
// (part index, local offset) pairs.
type SplitFileStorage struct {
	dir         string
	opts        SplitFileOptions
	maxPartSize int64

	mu    sync.RWMutex
	parts []*BufferedFileStorage
}

// OpenSplitFile opens (creating if necessary) dir as a Split-File storage.
func OpenSplitFile(dir string, opts SplitFileOptions) (*SplitFileStorage, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	maxPartSize := opts.MaxPartSize
	if maxPartSize <= 0 {
		maxPartSize = DefaultMaxPartSize
	}
	opts.PageSize = pageSize

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, blockerr.Wrap(blockerr.IOErr, err, "create split file directory")
	}
	s := &SplitFileStorage{dir: dir, opts: opts, maxPartSize: maxPartSize}

	for idx := 0; ; idx++ {
		path := filepath.Join(dir, opts.partName(idx))
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				break
			}
			return nil, blockerr.Wrap(blockerr.IOErr, err, "stat part file")
		}
		part, err := s.openPart(idx)
		if err != nil {
			return nil, err
		}
		s.parts = append(s.parts, part)
	}
	if len(s.parts) == 0 {
		part, err := s.openPart(0)
		if err != nil {
			return nil, err
		}
		s.parts = append(s.parts, part)
	}
	return s, nil
}

func (s *SplitFileStorage) openPart(idx int) (*BufferedFileStorage, error) {
	path := filepath.Join(s.dir, s.opts.partName(idx))
	return OpenBufferedFile(path, BufferedFileOptions{
		PageSize:  s.opts.PageSize,
		MaxBlocks: s.opts.MaxBlocks,
		Writable:  s.opts.Writable,
		Logger:    s.opts.Logger,
		Metrics:   s.opts.Metrics,
	})
}

func (s *SplitFileStorage) Writable() bool { return s.opts.Writable }

func (s *SplitFileStorage) Size(ctx context.Context) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.parts) == 0 {
		return 0
	}
	last := len(s.parts) - 1
	return int64(last)*s.maxPartSize + s.parts[last].Size(ctx)
}

func (s *SplitFileStorage) Flush(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.parts {
		if err := p.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// partFor translates a global offset into a (part index, local offset)
// pair; ensurePart opens the part if it does not exist yet.
func (s *SplitFileStorage) partFor(globalIndex int64) (int, int64) {
	idx := int(globalIndex / s.maxPartSize)
	local := globalIndex % s.maxPartSize
	return idx, local
}

func (s *SplitFileStorage) ensurePart(idx int) (*BufferedFileStorage, error) {
	s.mu.RLock()
	if idx < len(s.parts) {
		p := s.parts[idx]
		s.mu.RUnlock()
		return p, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.parts) <= idx {
		part, err := s.openPart(len(s.parts))
		if err != nil {
			return nil, err
		}
		s.parts = append(s.parts, part)
	}
	return s.parts[idx], nil
}

// AcquireEndpointAt returns a proxy Endpoint translated into the owning
// part's local coordinate space, re-based to the caller's global index.
func (s *SplitFileStorage) AcquireEndpointAt(index int64) (*blockio.Endpoint, error) {
	partIdx, local := s.partFor(index)
	part, err := s.ensurePart(partIdx)
	if err != nil {
		return nil, err
	}
	localEp, err := part.AcquireEndpointAt(local)
	if err != nil {
		return nil, err
	}
	base := int64(partIdx) * s.maxPartSize
	proxy := blockio.NewEndpoint(localEp.Lower+base, localEp.Bytes)
	proxy.OnWrite = localEp.OnWrite
	proxy.SetOwner(splitOwner{part: part, partIdx: partIdx})
	return proxy, nil
}

func (s *SplitFileStorage) ReleaseEndpoint(ep *blockio.Endpoint) {
	if owner, ok := ep.Owner().(splitOwner); ok {
		owner.part.ReleaseEndpoint(ep)
	}
}

func (s *SplitFileStorage) Access(_ context.Context, location, length int64, writable bool) (*blockio.Access, error) {
	if writable && !s.opts.Writable {
		return nil, blockerr.New(blockerr.OutOfBounds, "write access on a read-only storage")
	}
	return blockio.NewAccess(s, location, length, writable), nil
}

// Truncate drops part files entirely past newSize and truncates the part
// that now straddles the boundary.
func (s *SplitFileStorage) Truncate(ctx context.Context, newSize int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldSize := int64(0)
	if len(s.parts) > 0 {
		last := len(s.parts) - 1
		oldSize = int64(last)*s.maxPartSize + s.parts[last].Size(ctx)
	}
	if newSize >= oldSize {
		return false, nil
	}

	keepIdx, localSize := s.partFor(newSize)
	for i := len(s.parts) - 1; i > keepIdx; i-- {
		if err := s.parts[i].Close(ctx); err != nil {
			return false, err
		}
		path := filepath.Join(s.dir, s.opts.partName(i))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return false, blockerr.Wrap(blockerr.IOErr, err, "remove part file")
		}
		s.parts = s.parts[:i]
	}
	if keepIdx < len(s.parts) {
		part := s.parts[keepIdx]
		if part.Size(ctx) < localSize {
			// The kept part was never written up to the cut point; extend it
			// so the storage's size still comes out as newSize.
			if err := part.file.Truncate(localSize); err != nil {
				return false, blockerr.Wrap(blockerr.IOErr, err, "extend part file")
			}
			part.size.Store(localSize)
		} else if _, err := part.Truncate(ctx, localSize); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *SplitFileStorage) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.parts {
		if err := p.Close(ctx); err != nil {
			return err
		}
	}
	return nil
}
