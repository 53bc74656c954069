package blockstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockengine/blockengine/blockstore"
)

func TestBufferedFileWriteReadAcrossPages(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.blk")
	const pageSize = 8192

	s, err := blockstore.OpenBufferedFile(path, blockstore.BufferedFileOptions{
		PageSize: pageSize, MaxBlocks: 4, Writable: true,
	})
	require.NoError(t, err)

	a1, err := s.Access(ctx, 0, 4, true)
	require.NoError(t, err)
	require.NoError(t, a1.WriteInt(0x01020304))
	require.NoError(t, a1.Close())

	a2, err := s.Access(ctx, pageSize, 4, true)
	require.NoError(t, err)
	require.NoError(t, a2.WriteInt(0x05060708))
	require.NoError(t, a2.Close())

	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Close(ctx))
	require.Equal(t, int64(2*pageSize), func() int64 {
		info, err := os.Stat(path)
		require.NoError(t, err)
		return info.Size()
	}())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, raw[:4])

	s2, err := blockstore.OpenBufferedFile(path, blockstore.BufferedFileOptions{
		PageSize: pageSize, MaxBlocks: 4, Writable: true,
	})
	require.NoError(t, err)
	defer s2.Close(ctx)

	r1, err := s2.Access(ctx, 0, 4, false)
	require.NoError(t, err)
	defer r1.Close()
	v1, err := r1.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int32(0x01020304), v1)

	r2, err := s2.Access(ctx, pageSize, 4, false)
	require.NoError(t, err)
	defer r2.Close()
	v2, err := r2.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int32(0x05060708), v2)
}

func TestBufferedFileWriteReadAcrossReopens(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.blk")

	s, err := blockstore.OpenBufferedFile(path, blockstore.BufferedFileOptions{
		PageSize: 64, MaxBlocks: 4, Writable: true,
	})
	require.NoError(t, err)

	a, err := s.Access(ctx, 0, 128, true)
	require.NoError(t, err)
	require.NoError(t, a.Seek(70))
	require.NoError(t, a.WriteLong(0xdeadbeef))
	require.NoError(t, a.Close())
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Close(ctx))

	s2, err := blockstore.OpenBufferedFile(path, blockstore.BufferedFileOptions{
		PageSize: 64, MaxBlocks: 4, Writable: true,
	})
	require.NoError(t, err)
	defer s2.Close(ctx)

	a2, err := s2.Access(ctx, 0, 128, true)
	require.NoError(t, err)
	defer a2.Close()
	require.NoError(t, a2.Seek(70))
	v, err := a2.ReadLong()
	require.NoError(t, err)
	require.Equal(t, int64(0xdeadbeef), v)
}

func TestBufferedFileEvictsUnderPressure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.blk")

	s, err := blockstore.OpenBufferedFile(path, blockstore.BufferedFileOptions{
		PageSize: 16, MaxBlocks: 2, Writable: true,
	})
	require.NoError(t, err)
	defer s.Close(ctx)

	a, err := s.Access(ctx, 0, 16*8, true)
	require.NoError(t, err)
	defer a.Close()

	for i := int64(0); i < 8; i++ {
		require.NoError(t, a.Seek(i*16))
		require.NoError(t, a.WriteLong(i))
	}
	for i := int64(0); i < 8; i++ {
		require.NoError(t, a.Seek(i*16))
		v, err := a.ReadLong()
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
}

func TestBufferedFileRegisterOnEvictFiresOnlyWhileRegistered(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.blk")

	s, err := blockstore.OpenBufferedFile(path, blockstore.BufferedFileOptions{
		PageSize: 16, MaxBlocks: 2, Writable: true,
	})
	require.NoError(t, err)
	defer s.Close(ctx)

	var evicted []int64
	h := s.RegisterOnEvict(func(location int64) { evicted = append(evicted, location) })

	a, err := s.Access(ctx, 0, 16*4, true)
	require.NoError(t, err)
	defer a.Close()

	for i := int64(0); i < 3; i++ {
		require.NoError(t, a.Seek(i*16))
		require.NoError(t, a.WriteLong(i))
	}
	require.NotEmpty(t, evicted, "writing a 3rd page into a 2-block cache should evict one")

	h.Unregister()
	before := len(evicted)
	require.NoError(t, a.Seek(48))
	require.NoError(t, a.WriteLong(99))
	require.Equal(t, before, len(evicted), "no more callbacks after Unregister")
}

func TestBufferedFileTruncate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.blk")

	s, err := blockstore.OpenBufferedFile(path, blockstore.BufferedFileOptions{
		PageSize: 16, MaxBlocks: 4, Writable: true,
	})
	require.NoError(t, err)
	defer s.Close(ctx)

	a, err := s.Access(ctx, 0, 64, true)
	require.NoError(t, err)
	require.NoError(t, a.Seek(48))
	require.NoError(t, a.WriteLong(7))
	require.NoError(t, a.Close())
	require.NoError(t, s.Flush(ctx))

	ok, err := s.Truncate(ctx, 1000)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.Truncate(ctx, 16)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(16), s.Size(ctx))
}
