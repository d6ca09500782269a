// Package binread provides positioned little-endian readers over immutable
// byte ranges.
package binread

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Reader is the sequential/positioned reader capability the decoders
// consume. A Reader has a mutable cursor; it must not be shared between
// goroutines without external locking. Duplicate returns an independent
// cursor over the same bytes.
type Reader interface {
	Position() int64
	SetPosition(pos int64) error
	Len() int64
	Remaining() int64

	ReadU8() (uint8, error)
	ReadU16() (uint16, error)
	ReadU32() (uint32, error)
	ReadU64() (uint64, error)
	ReadI16() (int16, error)
	ReadI32() (int32, error)
	ReadI64() (int64, error)

	// ReadBytes returns the next n bytes. The returned slice may alias the
	// backing storage and must not be modified.
	ReadBytes(n int) ([]byte, error)
	Skip(n int64) error

	// Substream carves a bounded view of the next n bytes and advances this
	// reader past them.
	Substream(n int64) (Reader, error)
	Duplicate() Reader
}

// ByteReader is a Reader over a byte slice.
type ByteReader struct {
	data []byte
	pos  int64
}

// NewByteReader returns a reader positioned at the start of data.
func NewByteReader(data []byte) *ByteReader {
	return &ByteReader{data: data}
}

// Position returns the current cursor offset.
func (r *ByteReader) Position() int64 { return r.pos }

// Len returns the total length of the view.
func (r *ByteReader) Len() int64 { return int64(len(r.data)) }

// Remaining returns the number of bytes after the cursor.
func (r *ByteReader) Remaining() int64 { return int64(len(r.data)) - r.pos }

// SetPosition moves the cursor. pos may equal Len.
func (r *ByteReader) SetPosition(pos int64) error {
	if pos < 0 || pos > int64(len(r.data)) {
		return fmt.Errorf("position %d outside [0, %d]", pos, len(r.data))
	}
	r.pos = pos
	return nil
}

// Bytes returns the whole backing slice.
func (r *ByteReader) Bytes() []byte { return r.data }

func (r *ByteReader) take(n int) ([]byte, error) {
	if n < 0 || int64(n) > r.Remaining() {
		return nil, fmt.Errorf("read of %d bytes at offset %d (length %d): %w", n, r.pos, len(r.data), io.ErrUnexpectedEOF)
	}
	b := r.data[r.pos : r.pos+int64(n)]
	r.pos += int64(n)
	return b, nil
}

func (r *ByteReader) ReadU8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *ByteReader) ReadU16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *ByteReader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *ByteReader) ReadU64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *ByteReader) ReadI16() (int16, error) {
	v, err := r.ReadU16()
	return int16(v), err
}

func (r *ByteReader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *ByteReader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

func (r *ByteReader) ReadBytes(n int) ([]byte, error) {
	return r.take(n)
}

func (r *ByteReader) Skip(n int64) error {
	if n < 0 || n > r.Remaining() {
		return fmt.Errorf("skip of %d bytes at offset %d (length %d): %w", n, r.pos, len(r.data), io.ErrUnexpectedEOF)
	}
	r.pos += n
	return nil
}

func (r *ByteReader) Substream(n int64) (Reader, error) {
	if n < 0 || n > r.Remaining() {
		return nil, fmt.Errorf("substream of %d bytes at offset %d (length %d): %w", n, r.pos, len(r.data), io.ErrUnexpectedEOF)
	}
	sub := &ByteReader{data: r.data[r.pos : r.pos+n]}
	r.pos += n
	return sub, nil
}

func (r *ByteReader) Duplicate() Reader {
	return &ByteReader{data: r.data, pos: r.pos}
}

// ReadCString reads a NUL-terminated string. A string that runs to the end
// of the view without a terminator is an error.
func ReadCString(r Reader) (string, error) {
	if br, ok := r.(*ByteReader); ok {
		rest := br.data[br.pos:]
		idx := bytes.IndexByte(rest, 0)
		if idx == -1 {
			return "", fmt.Errorf("unterminated string at offset %d: %w", br.pos, io.ErrUnexpectedEOF)
		}
		s := string(rest[:idx])
		br.pos += int64(idx) + 1
		return s, nil
	}

	var buf []byte
	for {
		c, err := r.ReadU8()
		if err != nil {
			return "", fmt.Errorf("unterminated string: %w", err)
		}
		if c == 0 {
			return string(buf), nil
		}
		buf = append(buf, c)
	}
}

// ReadU32Array reads n consecutive little-endian uint32 values.
func ReadU32Array(r Reader, n int) ([]uint32, error) {
	if n < 0 || int64(n)*4 > r.Remaining() {
		return nil, fmt.Errorf("array of %d uint32 at offset %d (remaining %d): %w", n, r.Position(), r.Remaining(), io.ErrUnexpectedEOF)
	}
	out := make([]uint32, n)
	for i := range out {
		v, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
