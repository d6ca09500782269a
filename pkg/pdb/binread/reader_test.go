package binread

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteReaderFixedWidth(t *testing.T) {
	r := NewByteReader([]byte{
		0x01,
		0x02, 0x03,
		0x04, 0x05, 0x06, 0x07,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	})

	u8, err := r.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), u8)

	u16, err := r.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0302), u16)

	u32, err := r.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x07060504), u32)

	i64, err := r.ReadI64()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), i64)

	assert.Equal(t, int64(0), r.Remaining())
	_, err = r.ReadU8()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestByteReaderSubstreamIsBounded(t *testing.T) {
	r := NewByteReader([]byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, r.Skip(1))

	sub, err := r.Substream(3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), r.Position(), "parent advances past the substream")
	assert.Equal(t, int64(3), sub.Len())

	b, err := sub.ReadBytes(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3, 4}, b)

	_, err = sub.ReadU8()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = r.Substream(10)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestByteReaderDuplicateIsIndependent(t *testing.T) {
	r := NewByteReader([]byte{1, 2, 3, 4})
	require.NoError(t, r.Skip(2))

	dup := r.Duplicate()
	assert.Equal(t, int64(2), dup.Position())

	require.NoError(t, dup.SetPosition(0))
	assert.Equal(t, int64(2), r.Position())

	require.Error(t, r.SetPosition(5))
	require.NoError(t, r.SetPosition(4))
}

func TestReadCString(t *testing.T) {
	r := NewByteReader([]byte("abc\x00de\x00f"))

	s, err := ReadCString(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", s)

	s, err = ReadCString(r)
	require.NoError(t, err)
	assert.Equal(t, "de", s)

	_, err = ReadCString(r)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadEncodedInteger(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		want   uint64
		signed bool
	}{
		{name: "inline", data: []byte{0x34, 0x12}, want: 0x1234},
		{name: "char", data: []byte{0x00, 0x80, 0xfe}, want: uint64(0xfffffffffffffffe), signed: true},
		{name: "short", data: []byte{0x01, 0x80, 0xff, 0xff}, want: uint64(0xffffffffffffffff), signed: true},
		{name: "ushort", data: []byte{0x02, 0x80, 0xff, 0xff}, want: 0xffff},
		{name: "long", data: []byte{0x03, 0x80, 0x00, 0x00, 0x00, 0x80}, want: uint64(0xffffffff80000000), signed: true},
		{name: "ulong", data: []byte{0x04, 0x80, 0x00, 0x00, 0x00, 0x80}, want: 0x80000000},
		{name: "uquad", data: []byte{0x0a, 0x80, 1, 0, 0, 0, 0, 0, 0, 0x80}, want: 0x8000000000000001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewByteReader(tt.data)
			n, err := ReadEncodedInteger(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.Value)
			assert.Equal(t, tt.signed, n.Signed)
			assert.Equal(t, int64(0), r.Remaining())
		})
	}
}

func TestReadEncodedIntegerUnsupported(t *testing.T) {
	r := NewByteReader([]byte{0x05, 0x80, 0, 0, 0, 0})
	_, err := ReadEncodedInteger(r)
	var unsupported ErrUnsupportedNumeric
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, ErrUnsupportedNumeric(0x8005), unsupported)
}

func TestReadU32Array(t *testing.T) {
	r := NewByteReader([]byte{1, 0, 0, 0, 2, 0, 0, 0})
	vals, err := ReadU32Array(r, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, vals)

	_, err = ReadU32Array(NewByteReader([]byte{1, 0}), 1)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
