package streams

import (
	"fmt"

	"github.com/jtang613/pdbtpi/pkg/pdb/binread"
)

// TPI Stream versions
const (
	TPIStreamVersion40  = 19950410
	TPIStreamVersion41  = 19951122
	TPIStreamVersion50  = 19961031
	TPIStreamVersionV70 = 19990903
	TPIStreamVersionV80 = 20040203
)

// TPIStreamHeaderSize is the on-disk size of TPIStreamHeader.
const TPIStreamHeaderSize = 56

// NoHashStream is the hash stream index meaning "no hash stream".
const NoHashStream = 0xFFFF

// Accepted range of TPIStreamHeader.HashBucketsCount.
const (
	MinTPIHashBuckets = 0x1000
	MaxTPIHashBuckets = 0x40000
)

// EmbeddedBuffer locates a buffer inside the hash stream.
type EmbeddedBuffer struct {
	Offset int32
	Length uint32
}

// TPIStreamHeader is the header of the TPI and IPI streams.
type TPIStreamHeader struct {
	Version            uint32
	HeaderSize         uint32
	TypeIndexBegin     uint32
	TypeIndexEnd       uint32
	TypeRecordBytes    uint32
	HashStreamIndex    uint16
	HashAuxStreamIndex uint16
	HashKeySize        uint32
	HashBucketsCount   uint32
	HashValueBuffer    EmbeddedBuffer
	IndexOffsetBuffer  EmbeddedBuffer
	HashAdjusterBuffer EmbeddedBuffer
}

// HasHashStream reports whether the header names a hash stream.
func (h *TPIStreamHeader) HasHashStream() bool {
	return h.HashStreamIndex != NoHashStream
}

// ReadTPIStreamHeader decodes the header fields in order. It does not
// validate them.
func ReadTPIStreamHeader(r binread.Reader) (*TPIStreamHeader, error) {
	var h TPIStreamHeader
	var err error

	u32 := func(dst *uint32) {
		if err == nil {
			*dst, err = r.ReadU32()
		}
	}
	u16 := func(dst *uint16) {
		if err == nil {
			*dst, err = r.ReadU16()
		}
	}
	buffer := func(dst *EmbeddedBuffer) {
		if err == nil {
			dst.Offset, err = r.ReadI32()
		}
		u32(&dst.Length)
	}

	u32(&h.Version)
	u32(&h.HeaderSize)
	u32(&h.TypeIndexBegin)
	u32(&h.TypeIndexEnd)
	u32(&h.TypeRecordBytes)
	u16(&h.HashStreamIndex)
	u16(&h.HashAuxStreamIndex)
	u32(&h.HashKeySize)
	u32(&h.HashBucketsCount)
	buffer(&h.HashValueBuffer)
	buffer(&h.IndexOffsetBuffer)
	buffer(&h.HashAdjusterBuffer)

	if err != nil {
		return nil, fmt.Errorf("failed to read TPI header: %w", err)
	}
	return &h, nil
}
