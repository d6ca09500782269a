package streams

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtang613/pdbtpi/internal/pdbtest"
	"github.com/jtang613/pdbtpi/pkg/pdb/binread"
	"github.com/jtang613/pdbtpi/pkg/pdb/pdberr"
)

func dbiHeader(signature int32, machine uint16) []byte {
	w := pdbtest.NewW().I32(signature).U32(DBIStreamVersionV70).U32(4)
	w.U16(7).U16(0x8e00).U16(8).U16(0).U16(9).U16(0)
	for i := 0; i < 8; i++ {
		w.U32(0)
	}
	return w.U16(0).U16(machine).U32(0).Bytes()
}

func TestReadDBIHeader(t *testing.T) {
	data := dbiHeader(-1, MachineAMD64)
	require.Len(t, data, DBIHeaderSize)

	h, err := ReadDBIHeader(binread.NewByteReader(data))
	require.NoError(t, err)
	assert.Equal(t, uint32(DBIStreamVersionV70), h.VersionHeader)
	assert.Equal(t, uint32(4), h.Age)
	assert.Equal(t, uint16(7), h.GlobalStreamIndex)
	assert.Equal(t, uint16(8), h.PublicStreamIndex)
	assert.Equal(t, uint16(9), h.SymRecordStream)
	assert.Equal(t, "x64", h.MachineName())
}

func TestReadDBIHeaderErrors(t *testing.T) {
	_, err := ReadDBIHeader(binread.NewByteReader(dbiHeader(0, MachineI386)))
	assert.ErrorIs(t, err, ErrDBISignature)
	assert.ErrorIs(t, err, pdberr.ErrFormat)

	_, err = ReadDBIHeader(binread.NewByteReader(dbiHeader(-1, MachineI386)[:40]))
	assert.Error(t, err)
}

func TestMachineTypeName(t *testing.T) {
	assert.Equal(t, "x86", MachineTypeName(MachineI386))
	assert.Equal(t, "ARM64", MachineTypeName(MachineARM64))
	assert.Equal(t, "0x1234", MachineTypeName(0x1234))
}
