// Package blockio implements the two leaf abstractions of the storage
// engine: Endpoint, a byte window addressed by absolute index, and Access, a
// scoped cursor built on top of one or more Endpoints.
package blockio

import (
	"encoding/binary"

	"github.com/blockengine/blockengine/blockerr"
)

// Endpoint is a read/write window onto a contiguous segment of the
// underlying storage bytes, addressed by absolute index in [Lower, Upper).
// It does not move a cursor; Access owns that. All multi-byte primitives are
// encoded big-endian (high byte at the lowest address).
type Endpoint struct {
	Lower, Upper int64
	Bytes        []byte

	// OnWrite, if set, is invoked after every successful write through this
	// endpoint. Buffered-file storage uses it to flip a block's dirty bit
	// without Endpoint needing to know anything about caching.
	OnWrite func()

	owner any
}

// NewEndpoint wraps buf as the window [lower, lower+len(buf)).
func NewEndpoint(lower int64, buf []byte) *Endpoint {
	return &Endpoint{Lower: lower, Upper: lower + int64(len(buf)), Bytes: buf}
}

// SetOwner attaches storage-private bookkeeping (e.g. which part file a
// Split-File proxy endpoint came from) so ReleaseEndpoint can find it again.
func (e *Endpoint) SetOwner(v any) { e.owner = v }

// Owner returns whatever SetOwner last attached.
func (e *Endpoint) Owner() any { return e.owner }

// Contains reports whether index falls within [Lower, Upper).
func (e *Endpoint) Contains(index int64) bool {
	return index >= e.Lower && index < e.Upper
}

// Fits reports whether the span [index, index+size) is fully contained.
func (e *Endpoint) Fits(index int64, size int64) bool {
	return index >= e.Lower && index+size <= e.Upper
}

func (e *Endpoint) offset(index int64) int64 { return index - e.Lower }

func oobErr(index, size, lower, upper int64) error {
	return blockerr.Newf(blockerr.OutOfBounds,
		"endpoint access at %d (size %d) outside bounds [%d, %d)", index, size, lower, upper)
}

func (e *Endpoint) markWritten() {
	if e.OnWrite != nil {
		e.OnWrite()
	}
}

// ReadByte reads one byte at the given absolute index.
func (e *Endpoint) ReadByte(index int64) (byte, error) {
	if !e.Fits(index, 1) {
		return 0, oobErr(index, 1, e.Lower, e.Upper)
	}
	return e.Bytes[e.offset(index)], nil
}

// WriteByte writes one byte at the given absolute index.
func (e *Endpoint) WriteByte(index int64, v byte) error {
	if !e.Fits(index, 1) {
		return oobErr(index, 1, e.Lower, e.Upper)
	}
	e.Bytes[e.offset(index)] = v
	e.markWritten()
	return nil
}

// ReadBytes copies len(dst) bytes starting at index into dst.
func (e *Endpoint) ReadBytes(index int64, dst []byte) error {
	n := int64(len(dst))
	if !e.Fits(index, n) {
		return oobErr(index, n, e.Lower, e.Upper)
	}
	off := e.offset(index)
	copy(dst, e.Bytes[off:off+n])
	return nil
}

// WriteBytes copies src into the window starting at index.
func (e *Endpoint) WriteBytes(index int64, src []byte) error {
	n := int64(len(src))
	if !e.Fits(index, n) {
		return oobErr(index, n, e.Lower, e.Upper)
	}
	off := e.offset(index)
	copy(e.Bytes[off:off+n], src)
	e.markWritten()
	return nil
}

// ReadShort reads a signed 16-bit big-endian value.
func (e *Endpoint) ReadShort(index int64) (int16, error) {
	v, err := e.ReadChar(index)
	return int16(v), err
}

// WriteShort writes a signed 16-bit big-endian value.
func (e *Endpoint) WriteShort(index int64, v int16) error {
	return e.WriteChar(index, uint16(v))
}

// ReadChar reads an unsigned 16-bit big-endian value.
func (e *Endpoint) ReadChar(index int64) (uint16, error) {
	if !e.Fits(index, 2) {
		return 0, oobErr(index, 2, e.Lower, e.Upper)
	}
	off := e.offset(index)
	return binary.BigEndian.Uint16(e.Bytes[off : off+2]), nil
}

// WriteChar writes an unsigned 16-bit big-endian value.
func (e *Endpoint) WriteChar(index int64, v uint16) error {
	if !e.Fits(index, 2) {
		return oobErr(index, 2, e.Lower, e.Upper)
	}
	off := e.offset(index)
	binary.BigEndian.PutUint16(e.Bytes[off:off+2], v)
	e.markWritten()
	return nil
}

// ReadInt reads a signed 32-bit big-endian value.
func (e *Endpoint) ReadInt(index int64) (int32, error) {
	if !e.Fits(index, 4) {
		return 0, oobErr(index, 4, e.Lower, e.Upper)
	}
	off := e.offset(index)
	return int32(binary.BigEndian.Uint32(e.Bytes[off : off+4])), nil
}

// WriteInt writes a signed 32-bit big-endian value.
func (e *Endpoint) WriteInt(index int64, v int32) error {
	if !e.Fits(index, 4) {
		return oobErr(index, 4, e.Lower, e.Upper)
	}
	off := e.offset(index)
	binary.BigEndian.PutUint32(e.Bytes[off:off+4], uint32(v))
	e.markWritten()
	return nil
}

// ReadLong reads a signed 64-bit big-endian value.
func (e *Endpoint) ReadLong(index int64) (int64, error) {
	if !e.Fits(index, 8) {
		return 0, oobErr(index, 8, e.Lower, e.Upper)
	}
	off := e.offset(index)
	return int64(binary.BigEndian.Uint64(e.Bytes[off : off+8])), nil
}

// WriteLong writes a signed 64-bit big-endian value.
func (e *Endpoint) WriteLong(index int64, v int64) error {
	if !e.Fits(index, 8) {
		return oobErr(index, 8, e.Lower, e.Upper)
	}
	off := e.offset(index)
	binary.BigEndian.PutUint64(e.Bytes[off:off+8], uint64(v))
	e.markWritten()
	return nil
}

// ReadUint64 reads an unsigned 64-bit big-endian value (used for handles and
// keys, which are logically unsigned throughout objectstore and btree).
func (e *Endpoint) ReadUint64(index int64) (uint64, error) {
	v, err := e.ReadLong(index)
	return uint64(v), err
}

// WriteUint64 writes an unsigned 64-bit big-endian value.
func (e *Endpoint) WriteUint64(index int64, v uint64) error {
	return e.WriteLong(index, int64(v))
}

// ReadUint32 reads an unsigned 32-bit big-endian value.
func (e *Endpoint) ReadUint32(index int64) (uint32, error) {
	v, err := e.ReadInt(index)
	return uint32(v), err
}

// WriteUint32 writes an unsigned 32-bit big-endian value.
func (e *Endpoint) WriteUint32(index int64, v uint32) error {
	return e.WriteInt(index, int32(v))
}

// ReadFloat reads an IEEE-754 32-bit float, big-endian.
func (e *Endpoint) ReadFloat(index int64) (float32, error) {
	v, err := e.ReadInt(index)
	if err != nil {
		return 0, err
	}
	return int32BitsToFloat32(v), nil
}

// WriteFloat writes an IEEE-754 32-bit float, big-endian.
func (e *Endpoint) WriteFloat(index int64, v float32) error {
	return e.WriteInt(index, float32BitsToInt32(v))
}

// ReadDouble reads an IEEE-754 64-bit float, big-endian.
func (e *Endpoint) ReadDouble(index int64) (float64, error) {
	v, err := e.ReadLong(index)
	if err != nil {
		return 0, err
	}
	return int64BitsToFloat64(v), nil
}

// WriteDouble writes an IEEE-754 64-bit float, big-endian.
func (e *Endpoint) WriteDouble(index int64, v float64) error {
	return e.WriteLong(index, float64BitsToInt64(v))
}
