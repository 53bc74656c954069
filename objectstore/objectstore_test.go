package objectstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockengine/blockengine/blockstore"
	"github.com/blockengine/blockengine/objectstore"
)

func newStore(t *testing.T, withRegistry bool) (*objectstore.ObjectStore, context.Context) {
	ctx := context.Background()
	storage := blockstore.NewMemoryStorage(blockstore.MemoryOptions{PageSize: 256, Writable: true})
	t.Cleanup(func() { storage.Close(ctx) })
	o, err := objectstore.Create(ctx, storage, objectstore.Options{PageSize: 256, WithRegistry: withRegistry})
	require.NoError(t, err)
	return o, ctx
}

func TestObjectStoreAllocateWriteReadRoundTrip(t *testing.T) {
	o, ctx := newStore(t, false)

	handle, err := o.Allocate(ctx, 16)
	require.NoError(t, err)

	a, err := o.Access(ctx, handle, true)
	require.NoError(t, err)
	require.NoError(t, a.WriteLong(0xCAFEBABE))
	require.NoError(t, a.Close())

	a2, err := o.Access(ctx, handle, false)
	require.NoError(t, err)
	defer a2.Close()
	v, err := a2.ReadLong()
	require.NoError(t, err)
	require.Equal(t, int64(0xCAFEBABE), v)
}

func TestObjectStoreFreeAndReuse(t *testing.T) {
	o, ctx := newStore(t, false)

	h1, err := o.Allocate(ctx, 16)
	require.NoError(t, err)
	require.NoError(t, o.Free(ctx, h1))

	h2, err := o.Allocate(ctx, 16)
	require.NoError(t, err)
	require.Equal(t, h1, h2, "freed record of the same size class should be reused")
}

func TestObjectStoreAllocateRejectsOversizedRecord(t *testing.T) {
	o, ctx := newStore(t, false)

	_, err := o.Allocate(ctx, objectstore.MaxSize+1)
	require.Error(t, err)
}

func TestObjectStoreRecordsNeverStraddlePages(t *testing.T) {
	o, ctx := newStore(t, false)

	for i := 0; i < 10; i++ {
		h, err := o.Allocate(ctx, 40)
		require.NoError(t, err)
		// payload [h, h+40) plus its 2-byte prefix must not cross a 256-byte page.
		require.Equal(t, int64(h-2)/256, int64(h+40-1)/256)
	}
}

// Allocate records of several sizes, free them, allocate the same sizes
// again, and expect LIFO reuse of each size class's single freed handle.
func TestObjectStoreReuseAcrossSizeClasses(t *testing.T) {
	o, ctx := newStore(t, false)

	sizes := []int{8, 16, 32}
	handles := make([]uint64, len(sizes))
	for i, sz := range sizes {
		h, err := o.Allocate(ctx, sz)
		require.NoError(t, err)
		handles[i] = h
	}
	for _, h := range handles {
		require.NoError(t, o.Free(ctx, h))
	}
	for i, sz := range sizes {
		h, err := o.Allocate(ctx, sz)
		require.NoError(t, err)
		require.Equal(t, handles[i], h, "same size class should hand back the just-freed handle")
	}
}

func TestObjectStoreNamedRootRegistry(t *testing.T) {
	o, ctx := newStore(t, true)

	h, err := o.Allocate(ctx, 16)
	require.NoError(t, err)
	require.NoError(t, o.Register(ctx, "root", h))

	got, err := o.GetObject(ctx, "root")
	require.NoError(t, err)
	require.Equal(t, h, got)

	require.NoError(t, o.Unregister(ctx, "root"))
	got, err = o.GetObject(ctx, "root")
	require.NoError(t, err)
	require.Equal(t, objectstore.KeyNull, got)
}
