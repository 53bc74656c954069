package blockio

import "github.com/blockengine/blockengine/blockerr"

// EndpointSource is implemented by every Storage variant (and by the Access
// Coordinator, which wraps one). It is the only thing Access needs in order
// to cross endpoint boundaries, which keeps blockio free of any dependency
// on the blockstore package.
type EndpointSource interface {
	AcquireEndpointAt(index int64) (*Endpoint, error)
	ReleaseEndpoint(ep *Endpoint)
}

// Access is a scoped, bounded, single-threaded cursor over a contiguous
// logical range [location, location+length) inside a Storage. It must be
// acquired then released exactly once, and must never be shared across
// goroutines.
type Access struct {
	source   EndpointSource
	location int64
	length   int64
	writable bool
	cursor   int64
	ep       *Endpoint
	closed   bool
	onClose  func() error
}

// SetCloseHook attaches fn to run after this Access releases its endpoint on
// Close. Used by the Access Coordinator to fold its remove protocol into the
// Access's own lifecycle, so callers still see a single Close call.
func (a *Access) SetCloseHook(fn func() error) { a.onClose = fn }

// NewAccess constructs an Access over [location, location+length) against
// source. Callers normally get one back from a Storage's Access method
// rather than calling this directly.
func NewAccess(source EndpointSource, location, length int64, writable bool) *Access {
	return &Access{source: source, location: location, length: length, writable: writable, cursor: location}
}

// Location returns the access's starting offset.
func (a *Access) Location() int64 { return a.location }

// Length returns the access's span length.
func (a *Access) Length() int64 { return a.length }

// Writable reports whether this access may perform writes.
func (a *Access) Writable() bool { return a.writable }

// Cursor returns the current absolute cursor position.
func (a *Access) Cursor() int64 { return a.cursor }

// Seek moves the cursor to an absolute offset within the span.
func (a *Access) Seek(offset int64) error {
	if offset < a.location || offset > a.location+a.length {
		return blockerr.Newf(blockerr.OutOfBounds, "seek %d outside span [%d, %d]", offset, a.location, a.location+a.length)
	}
	a.cursor = offset
	return nil
}

// Reset moves the cursor back to the start of the span.
func (a *Access) Reset() { a.cursor = a.location }

// Skip advances (or rewinds, for negative delta) the cursor.
func (a *Access) Skip(delta int64) error { return a.Seek(a.cursor + delta) }

// Close releases any held endpoint. It is safe to call more than once; only
// the first call has an effect.
func (a *Access) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	if a.ep != nil {
		a.source.ReleaseEndpoint(a.ep)
		a.ep = nil
	}
	if a.onClose != nil {
		return a.onClose()
	}
	return nil
}

func (a *Access) checkClosed() error {
	if a.closed {
		return blockerr.New(blockerr.AlreadyClosed, "access is closed")
	}
	return nil
}

// checkSpan verifies cursor+size does not run past the access's own span,
// i.e. 0 <= cursor-location <= length is preserved after the operation.
func (a *Access) checkSpan(size int64) error {
	if a.cursor < a.location || a.cursor+size > a.location+a.length {
		return blockerr.Newf(blockerr.OutOfBounds, "operation of size %d at cursor %d exceeds span [%d, %d)", size, a.cursor, a.location, a.location+a.length)
	}
	return nil
}

func (a *Access) checkWritable() error {
	if !a.writable {
		return blockerr.New(blockerr.OutOfBounds, "write on a non-writable access")
	}
	return nil
}

// ensureEndpoint makes sure the cached endpoint covers index, releasing and
// reacquiring if necessary.
func (a *Access) ensureEndpoint(index int64) (*Endpoint, error) {
	if a.ep != nil && a.ep.Contains(index) {
		return a.ep, nil
	}
	if a.ep != nil {
		a.source.ReleaseEndpoint(a.ep)
		a.ep = nil
	}
	ep, err := a.source.AcquireEndpointAt(index)
	if err != nil {
		return nil, err
	}
	a.ep = ep
	return ep, nil
}

// ReadByte reads and advances the cursor by one byte.
func (a *Access) ReadByte() (byte, error) {
	if err := a.checkClosed(); err != nil {
		return 0, err
	}
	if err := a.checkSpan(1); err != nil {
		return 0, err
	}
	ep, err := a.ensureEndpoint(a.cursor)
	if err != nil {
		return 0, err
	}
	v, err := ep.ReadByte(a.cursor)
	if err != nil {
		return 0, err
	}
	a.cursor++
	return v, nil
}

// WriteByte writes and advances the cursor by one byte.
func (a *Access) WriteByte(v byte) error {
	if err := a.checkClosed(); err != nil {
		return err
	}
	if err := a.checkWritable(); err != nil {
		return err
	}
	if err := a.checkSpan(1); err != nil {
		return err
	}
	ep, err := a.ensureEndpoint(a.cursor)
	if err != nil {
		return err
	}
	if err := ep.WriteByte(a.cursor, v); err != nil {
		return err
	}
	a.cursor++
	return nil
}

// ReadBytes reads len(dst) bytes, crossing endpoints byte-wise if needed.
func (a *Access) ReadBytes(dst []byte) error {
	if err := a.checkClosed(); err != nil {
		return err
	}
	n := int64(len(dst))
	if err := a.checkSpan(n); err != nil {
		return err
	}
	ep, err := a.ensureEndpoint(a.cursor)
	if err != nil {
		return err
	}
	if ep.Fits(a.cursor, n) {
		if err := ep.ReadBytes(a.cursor, dst); err != nil {
			return err
		}
		a.cursor += n
		return nil
	}
	for i := range dst {
		b, err := a.ReadByte()
		if err != nil {
			return err
		}
		dst[i] = b
	}
	return nil
}

// WriteBytes writes all of data, crossing endpoints byte-wise if needed.
// The fast path sizes itself off len(data), never off the access's own span
// length.
func (a *Access) WriteBytes(data []byte) error {
	if err := a.checkClosed(); err != nil {
		return err
	}
	if err := a.checkWritable(); err != nil {
		return err
	}
	n := int64(len(data))
	if err := a.checkSpan(n); err != nil {
		return err
	}
	ep, err := a.ensureEndpoint(a.cursor)
	if err != nil {
		return err
	}
	if ep.Fits(a.cursor, n) {
		if err := ep.WriteBytes(a.cursor, data); err != nil {
			return err
		}
		a.cursor += n
		return nil
	}
	for _, b := range data {
		if err := a.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}

// ReadShort reads a signed 16-bit big-endian value.
func (a *Access) ReadShort() (int16, error) {
	v, err := a.ReadChar()
	return int16(v), err
}

// WriteShort writes a signed 16-bit big-endian value.
func (a *Access) WriteShort(v int16) error { return a.WriteChar(uint16(v)) }

// ReadChar reads an unsigned 16-bit big-endian value.
func (a *Access) ReadChar() (uint16, error) {
	if err := a.checkClosed(); err != nil {
		return 0, err
	}
	if err := a.checkSpan(2); err != nil {
		return 0, err
	}
	ep, err := a.ensureEndpoint(a.cursor)
	if err != nil {
		return 0, err
	}
	if ep.Fits(a.cursor, 2) {
		v, err := ep.ReadChar(a.cursor)
		if err != nil {
			return 0, err
		}
		a.cursor += 2
		return v, nil
	}
	hi, err := a.ReadByte()
	if err != nil {
		return 0, err
	}
	lo, err := a.ReadByte()
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

// WriteChar writes an unsigned 16-bit big-endian value.
func (a *Access) WriteChar(v uint16) error {
	if err := a.checkClosed(); err != nil {
		return err
	}
	if err := a.checkWritable(); err != nil {
		return err
	}
	if err := a.checkSpan(2); err != nil {
		return err
	}
	ep, err := a.ensureEndpoint(a.cursor)
	if err != nil {
		return err
	}
	if ep.Fits(a.cursor, 2) {
		if err := ep.WriteChar(a.cursor, v); err != nil {
			return err
		}
		a.cursor += 2
		return nil
	}
	if err := a.WriteByte(byte(v >> 8)); err != nil {
		return err
	}
	return a.WriteByte(byte(v))
}

// ReadInt reads a signed 32-bit big-endian value.
func (a *Access) ReadInt() (int32, error) {
	if err := a.checkClosed(); err != nil {
		return 0, err
	}
	if err := a.checkSpan(4); err != nil {
		return 0, err
	}
	ep, err := a.ensureEndpoint(a.cursor)
	if err != nil {
		return 0, err
	}
	if ep.Fits(a.cursor, 4) {
		v, err := ep.ReadInt(a.cursor)
		if err != nil {
			return 0, err
		}
		a.cursor += 4
		return v, nil
	}
	var out uint32
	for i := 0; i < 4; i++ {
		b, err := a.ReadByte()
		if err != nil {
			return 0, err
		}
		out = out<<8 | uint32(b)
	}
	return int32(out), nil
}

// WriteInt writes a signed 32-bit big-endian value.
func (a *Access) WriteInt(v int32) error {
	if err := a.checkClosed(); err != nil {
		return err
	}
	if err := a.checkWritable(); err != nil {
		return err
	}
	if err := a.checkSpan(4); err != nil {
		return err
	}
	ep, err := a.ensureEndpoint(a.cursor)
	if err != nil {
		return err
	}
	if ep.Fits(a.cursor, 4) {
		if err := ep.WriteInt(a.cursor, v); err != nil {
			return err
		}
		a.cursor += 4
		return nil
	}
	u := uint32(v)
	for i := 3; i >= 0; i-- {
		if err := a.WriteByte(byte(u >> (8 * uint(i)))); err != nil {
			return err
		}
	}
	return nil
}

// ReadLong reads a signed 64-bit big-endian value.
func (a *Access) ReadLong() (int64, error) {
	if err := a.checkClosed(); err != nil {
		return 0, err
	}
	if err := a.checkSpan(8); err != nil {
		return 0, err
	}
	ep, err := a.ensureEndpoint(a.cursor)
	if err != nil {
		return 0, err
	}
	if ep.Fits(a.cursor, 8) {
		v, err := ep.ReadLong(a.cursor)
		if err != nil {
			return 0, err
		}
		a.cursor += 8
		return v, nil
	}
	var out uint64
	for i := 0; i < 8; i++ {
		b, err := a.ReadByte()
		if err != nil {
			return 0, err
		}
		out = out<<8 | uint64(b)
	}
	return int64(out), nil
}

// WriteLong writes a signed 64-bit big-endian value.
func (a *Access) WriteLong(v int64) error {
	if err := a.checkClosed(); err != nil {
		return err
	}
	if err := a.checkWritable(); err != nil {
		return err
	}
	if err := a.checkSpan(8); err != nil {
		return err
	}
	ep, err := a.ensureEndpoint(a.cursor)
	if err != nil {
		return err
	}
	if ep.Fits(a.cursor, 8) {
		if err := ep.WriteLong(a.cursor, v); err != nil {
			return err
		}
		a.cursor += 8
		return nil
	}
	u := uint64(v)
	for i := 7; i >= 0; i-- {
		if err := a.WriteByte(byte(u >> (8 * uint(i)))); err != nil {
			return err
		}
	}
	return nil
}

// ReadUint64 reads an unsigned 64-bit big-endian value.
func (a *Access) ReadUint64() (uint64, error) {
	v, err := a.ReadLong()
	return uint64(v), err
}

// WriteUint64 writes an unsigned 64-bit big-endian value.
func (a *Access) WriteUint64(v uint64) error { return a.WriteLong(int64(v)) }

// ReadUint32 reads an unsigned 32-bit big-endian value.
func (a *Access) ReadUint32() (uint32, error) {
	v, err := a.ReadInt()
	return uint32(v), err
}

// WriteUint32 writes an unsigned 32-bit big-endian value.
func (a *Access) WriteUint32(v uint32) error { return a.WriteInt(int32(v)) }

// ReadFloat reads an IEEE-754 32-bit float, big-endian.
func (a *Access) ReadFloat() (float32, error) {
	v, err := a.ReadInt()
	if err != nil {
		return 0, err
	}
	return int32BitsToFloat32(v), nil
}

// WriteFloat writes an IEEE-754 32-bit float, big-endian.
func (a *Access) WriteFloat(v float32) error { return a.WriteInt(float32BitsToInt32(v)) }

// ReadDouble reads an IEEE-754 64-bit float, big-endian.
func (a *Access) ReadDouble() (float64, error) {
	v, err := a.ReadLong()
	if err != nil {
		return 0, err
	}
	return int64BitsToFloat64(v), nil
}

// WriteDouble writes an IEEE-754 64-bit float, big-endian.
func (a *Access) WriteDouble(v float64) error { return a.WriteLong(float64BitsToInt64(v)) }
