package blockio_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockengine/blockengine/blockio"
)

// pageSource is a minimal EndpointSource backed by a single growable byte
// slice, split into fixed-size pages -- just enough to exercise Access's
// boundary-crossing logic without pulling in a real Storage implementation.
type pageSource struct {
	pageSize int64
	buf      []byte
}

func newPageSource(pageSize int64, size int64) *pageSource {
	return &pageSource{pageSize: pageSize, buf: make([]byte, size)}
}

func (p *pageSource) AcquireEndpointAt(index int64) (*blockio.Endpoint, error) {
	start := (index / p.pageSize) * p.pageSize
	end := start + p.pageSize
	if end > int64(len(p.buf)) {
		grown := make([]byte, end)
		copy(grown, p.buf)
		p.buf = grown
	}
	return blockio.NewEndpoint(start, p.buf[start:end]), nil
}

func (p *pageSource) ReleaseEndpoint(*blockio.Endpoint) {}

func TestAccessRoundTripAcrossPages(t *testing.T) {
	src := newPageSource(8, 32)
	a := blockio.NewAccess(src, 0, 32, true)
	defer a.Close()

	require.NoError(t, a.Seek(6))
	require.NoError(t, a.WriteInt(0x01020304)) // straddles the page boundary at 8

	require.NoError(t, a.Seek(6))
	v, err := a.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int32(0x01020304), v)
}

func TestAccessBigEndianByteOrder(t *testing.T) {
	src := newPageSource(64, 64)
	a := blockio.NewAccess(src, 0, 64, true)
	defer a.Close()

	require.NoError(t, a.WriteInt(0x01020304))
	raw := src.buf[0:4]
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, raw)
}

func TestAccessOutOfBounds(t *testing.T) {
	src := newPageSource(16, 16)
	a := blockio.NewAccess(src, 4, 4, true)
	defer a.Close()

	require.NoError(t, a.Seek(7))
	_, err := a.ReadInt() // would read [7,11), past the span end at 8
	require.Error(t, err)
}

func TestAccessWriteOnReadOnlyFails(t *testing.T) {
	src := newPageSource(16, 16)
	a := blockio.NewAccess(src, 0, 16, false)
	defer a.Close()

	err := a.WriteByte(1)
	require.Error(t, err)
}

func TestAccessWriteBytesUsesDataLength(t *testing.T) {
	// WriteBytes must size itself off the data being written, not off the
	// access's own span length.
	src := newPageSource(64, 64)
	a := blockio.NewAccess(src, 0, 64, true)
	defer a.Close()

	data := []byte{1, 2, 3}
	require.NoError(t, a.WriteBytes(data))
	require.Equal(t, int64(3), a.Cursor())
}

func TestAccessSeekResetSkip(t *testing.T) {
	src := newPageSource(16, 16)
	a := blockio.NewAccess(src, 0, 16, true)
	defer a.Close()

	require.NoError(t, a.Skip(4))
	require.Equal(t, int64(4), a.Cursor())
	a.Reset()
	require.Equal(t, int64(0), a.Cursor())
	require.Error(t, a.Seek(17))
}

func TestAccessDoubleCloseIsSafe(t *testing.T) {
	src := newPageSource(16, 16)
	a := blockio.NewAccess(src, 0, 16, true)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	_, err := a.ReadByte()
	require.Error(t, err)
}

func TestEndpointRoundTripAllPrimitives(t *testing.T) {
	ep := blockio.NewEndpoint(0, make([]byte, 64))

	require.NoError(t, ep.WriteByte(0, 0xAB))
	b, err := ep.ReadByte(0)
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), b)

	require.NoError(t, ep.WriteShort(2, -1234))
	s, err := ep.ReadShort(2)
	require.NoError(t, err)
	require.Equal(t, int16(-1234), s)

	require.NoError(t, ep.WriteChar(4, 60000))
	c, err := ep.ReadChar(4)
	require.NoError(t, err)
	require.Equal(t, uint16(60000), c)

	require.NoError(t, ep.WriteLong(8, -9223372036854775000))
	l, err := ep.ReadLong(8)
	require.NoError(t, err)
	require.Equal(t, int64(-9223372036854775000), l)

	require.NoError(t, ep.WriteFloat(16, 3.5))
	f, err := ep.ReadFloat(16)
	require.NoError(t, err)
	require.Equal(t, float32(3.5), f)

	require.NoError(t, ep.WriteDouble(24, 2.71828))
	d, err := ep.ReadDouble(24)
	require.NoError(t, err)
	require.Equal(t, 2.71828, d)
}
