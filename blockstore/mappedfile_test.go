package blockstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockengine/blockengine/blockstore"
)

func TestMappedFileWriteReadAcrossReopens(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.mmap")

	s, err := blockstore.OpenMappedFile(path, blockstore.MappedFileOptions{Writable: true, InitialSize: 4096})
	require.NoError(t, err)

	a, err := s.Access(ctx, 0, 4096, true)
	require.NoError(t, err)
	require.NoError(t, a.Seek(200))
	require.NoError(t, a.WriteLong(0x0102030405060708))
	require.NoError(t, a.Close())
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Close(ctx))

	s2, err := blockstore.OpenMappedFile(path, blockstore.MappedFileOptions{Writable: true})
	require.NoError(t, err)
	defer s2.Close(ctx)

	a2, err := s2.Access(ctx, 0, 4096, true)
	require.NoError(t, err)
	defer a2.Close()
	require.NoError(t, a2.Seek(200))
	v, err := a2.ReadLong()
	require.NoError(t, err)
	require.Equal(t, int64(0x0102030405060708), v)
}

func TestMappedFileGrowsBeyondInitialSize(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.mmap")

	s, err := blockstore.OpenMappedFile(path, blockstore.MappedFileOptions{Writable: true})
	require.NoError(t, err)
	defer s.Close(ctx)

	a, err := s.Access(ctx, 0, 8192, true)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Seek(8000))
	require.NoError(t, a.WriteLong(77))
	require.GreaterOrEqual(t, s.Size(ctx), int64(8008))
}

func TestMappedFileTruncateShrinks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.mmap")

	s, err := blockstore.OpenMappedFile(path, blockstore.MappedFileOptions{Writable: true, InitialSize: 4096})
	require.NoError(t, err)
	defer s.Close(ctx)

	ok, err := s.Truncate(ctx, 8192)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.Truncate(ctx, 1024)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1024), s.Size(ctx))
}
