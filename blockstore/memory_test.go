package blockstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockengine/blockengine/blockstore"
)

func TestMemoryStorageGrowsOnDemand(t *testing.T) {
	ctx := context.Background()
	s := blockstore.NewMemoryStorage(blockstore.MemoryOptions{PageSize: 16, Writable: true})
	defer s.Close(ctx)

	a, err := s.Access(ctx, 0, 64, true)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Seek(40))
	require.NoError(t, a.WriteLong(123456789))
	require.Equal(t, int64(48), s.Size(ctx))

	require.NoError(t, a.Seek(40))
	v, err := a.ReadLong()
	require.NoError(t, err)
	require.Equal(t, int64(123456789), v)
}

func TestMemoryStorageTruncate(t *testing.T) {
	ctx := context.Background()
	s := blockstore.NewMemoryStorage(blockstore.MemoryOptions{PageSize: 16, Writable: true})
	defer s.Close(ctx)

	a, err := s.Access(ctx, 0, 32, true)
	require.NoError(t, err)
	require.NoError(t, a.WriteLong(42))
	require.NoError(t, a.Close())

	ok, err := s.Truncate(ctx, 100)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.Truncate(ctx, 4)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(4), s.Size(ctx))
}

func TestMemoryStorageRejectsWriteWhenReadOnly(t *testing.T) {
	ctx := context.Background()
	s := blockstore.NewMemoryStorage(blockstore.MemoryOptions{PageSize: 16, Writable: false})
	defer s.Close(ctx)

	_, err := s.Access(ctx, 0, 16, true)
	require.Error(t, err)
}
