package btree_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockengine/blockengine/blockstore"
	"github.com/blockengine/blockengine/btree"
	"github.com/blockengine/blockengine/objectstore"
)

func newTree(t *testing.T, n int) (*btree.Tree, context.Context) {
	ctx := context.Background()
	storage := blockstore.NewMemoryStorage(blockstore.MemoryOptions{PageSize: 4096, Writable: true})
	t.Cleanup(func() { storage.Close(ctx) })
	store, err := objectstore.Create(ctx, storage, objectstore.Options{PageSize: 4096})
	require.NoError(t, err)
	tr, _, err := btree.New(ctx, store, n)
	require.NoError(t, err)
	return tr, ctx
}

func collect(t *testing.T, ctx context.Context, tr *btree.Tree) []btree.Entry {
	var entries []btree.Entry
	require.NoError(t, tr.Iterate(ctx, func(e btree.Entry) bool {
		entries = append(entries, e)
		return true
	}))
	return entries
}

func TestTreeGetPutRoundTrip(t *testing.T) {
	tr, ctx := newTree(t, 3)

	require.NoError(t, tr.Put(ctx, 10, 100))
	v, err := tr.Get(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(100), v)

	v, err = tr.Get(ctx, 999)
	require.NoError(t, err)
	require.Equal(t, btree.KeyNull, v)
}

func TestTreePutOverwritesExisting(t *testing.T) {
	tr, ctx := newTree(t, 3)
	require.NoError(t, tr.Put(ctx, 1, 10))
	require.NoError(t, tr.Put(ctx, 1, 20))
	v, err := tr.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(20), v)
}

func TestTreeRemove(t *testing.T) {
	tr, ctx := newTree(t, 3)
	require.NoError(t, tr.Put(ctx, 1, 10))

	ok, err := tr.Remove(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	v, err := tr.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, btree.KeyNull, v)

	ok, err = tr.Remove(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTreeCompareAndSetSequence(t *testing.T) {
	tr, ctx := newTree(t, 3)

	ok, err := tr.TryPut(ctx, 42, 100)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tr.TryPut(ctx, 42, 200)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = tr.CompareAndSet(ctx, 42, 100, 200)
	require.NoError(t, err)
	require.True(t, ok)

	v, err := tr.Get(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, uint64(200), v)

	ok, err = tr.TryRemove(ctx, 42, 100)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = tr.TryRemove(ctx, 42, 200)
	require.NoError(t, err)
	require.True(t, ok)

	v, err = tr.Get(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, btree.KeyNull, v)
}

// Sequential inserts at N=3 force many splits; the removals afterwards
// force merges back down.
func TestTreeRoundTripUnderSplits(t *testing.T) {
	tr, ctx := newTree(t, 3)
	const upper = 200

	for k := uint64(0); k < upper; k++ {
		require.NoError(t, tr.Put(ctx, k, k))
	}

	v, err := tr.Get(ctx, upper/2)
	require.NoError(t, err)
	require.Equal(t, uint64(upper/2), v)

	entries := collect(t, ctx, tr)
	require.Len(t, entries, upper)
	for i, e := range entries {
		require.Equal(t, uint64(i), e.Key)
		require.Equal(t, uint64(i), e.Value)
		if i > 0 {
			require.Greater(t, e.Key, entries[i-1].Key)
		}
	}

	for k := uint64(0); k <= upper/2; k++ {
		ok, err := tr.Remove(ctx, k)
		require.NoError(t, err)
		require.True(t, ok)
	}

	entries = collect(t, ctx, tr)
	require.Len(t, entries, int(upper-upper/2-1))
	for i, e := range entries {
		require.Equal(t, upper/2+1+uint64(i), e.Key)
		if i > 0 {
			require.Greater(t, e.Key, entries[i-1].Key)
		}
	}
}

func TestTreeClearResetsToEmpty(t *testing.T) {
	tr, ctx := newTree(t, 3)
	for k := uint64(0); k < 100; k++ {
		require.NoError(t, tr.Put(ctx, k, k))
	}
	require.NoError(t, tr.Clear(ctx))
	require.Empty(t, collect(t, ctx, tr))

	require.NoError(t, tr.Put(ctx, 5, 50))
	v, err := tr.Get(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(50), v)
}

func TestTreeReverseInsertOrder(t *testing.T) {
	tr, ctx := newTree(t, 3)
	const upper = 150
	for k := int64(upper - 1); k >= 0; k-- {
		require.NoError(t, tr.Put(ctx, uint64(k), uint64(k)))
	}
	entries := collect(t, ctx, tr)
	require.Len(t, entries, upper)
	for i, e := range entries {
		require.Equal(t, uint64(i), e.Key)
	}
}

func TestTreeRandomInsertRemoveInterleaved(t *testing.T) {
	tr, ctx := newTree(t, 4)
	want := map[uint64]uint64{}

	keys := []uint64{50, 10, 90, 30, 70, 20, 60, 40, 80, 5, 15, 25, 35, 45, 55}
	for _, k := range keys {
		require.NoError(t, tr.Put(ctx, k, k*10))
		want[k] = k * 10
	}
	for _, k := range []uint64{10, 30, 70, 90} {
		ok, err := tr.Remove(ctx, k)
		require.NoError(t, err)
		require.True(t, ok)
		delete(want, k)
	}
	for k, v := range want {
		got, err := tr.Get(ctx, k)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
	for _, k := range []uint64{10, 30, 70, 90} {
		got, err := tr.Get(ctx, k)
		require.NoError(t, err)
		require.Equal(t, btree.KeyNull, got)
	}

	entries := collect(t, ctx, tr)
	for i := 1; i < len(entries); i++ {
		require.Greater(t, entries[i].Key, entries[i-1].Key)
	}
}
