// Package pdbtest builds synthetic MSF images, TPI streams and CodeView
// record payloads for tests.
package pdbtest

import (
	"encoding/binary"
)

// W accumulates little-endian fields.
type W struct {
	buf []byte
}

// NewW returns an empty writer.
func NewW() *W { return &W{} }

func (w *W) U8(v uint8) *W {
	w.buf = append(w.buf, v)
	return w
}

func (w *W) U16(v uint16) *W {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	return w
}

func (w *W) U32(v uint32) *W {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

func (w *W) I32(v int32) *W {
	return w.U32(uint32(v))
}

func (w *W) U64(v uint64) *W {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	return w
}

func (w *W) Raw(b []byte) *W {
	w.buf = append(w.buf, b...)
	return w
}

// CString writes s followed by a NUL terminator.
func (w *W) CString(s string) *W {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
	return w
}

// Numeric writes v as a CodeView encoded unsigned integer, using the
// smallest form that holds it.
func (w *W) Numeric(v uint64) *W {
	switch {
	case v < 0x8000:
		return w.U16(uint16(v))
	case v <= 0xffff:
		return w.U16(0x8002).U16(uint16(v))
	case v <= 0xffffffff:
		return w.U16(0x8004).U32(uint32(v))
	default:
		return w.U16(0x800a).U64(v)
	}
}

// Pad writes LF_PAD bytes up to the next 4-byte boundary, counting from
// the start of the writer.
func (w *W) Pad() *W {
	for n := (4 - len(w.buf)%4) % 4; n > 0; n-- {
		w.buf = append(w.buf, byte(0xf0+n))
	}
	return w
}

// Len returns the number of bytes written.
func (w *W) Len() int { return len(w.buf) }

// Bytes returns the accumulated bytes.
func (w *W) Bytes() []byte { return w.buf }
