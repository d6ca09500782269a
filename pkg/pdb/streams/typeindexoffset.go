package streams

import (
	"fmt"
	"sort"

	"github.com/jtang613/pdbtpi/pkg/pdb/binread"
	"github.com/jtang613/pdbtpi/pkg/pdb/codeview"
)

// TypeIndexOffsetSize is the on-disk size of one TypeIndexOffset.
const TypeIndexOffsetSize = 8

// TypeIndexOffset is a sample stored by the producer: the record for Type
// starts at Offset in the record sub-stream.
type TypeIndexOffset struct {
	Type   codeview.TypeIndex
	Offset uint32
}

// TypeIndexOffsets is the sorted sample list from the hash stream.
type TypeIndexOffsets []TypeIndexOffset

func readTypeIndexOffsets(r binread.Reader, n int) (TypeIndexOffsets, error) {
	if int64(n)*TypeIndexOffsetSize > r.Remaining() {
		return nil, fmt.Errorf("%w: %d samples, %d bytes left", ErrIndexOffsetBuffer, n, r.Remaining())
	}
	out := make(TypeIndexOffsets, n)
	for i := range out {
		ti, err := codeview.ReadTypeIndex(r)
		if err != nil {
			return nil, err
		}
		off, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		out[i] = TypeIndexOffset{Type: ti, Offset: off}
	}
	return out, nil
}

// Nearest returns the last sample whose type index is at or before ti.
// Scanning forward from its offset reaches ti's record.
func (s TypeIndexOffsets) Nearest(ti codeview.TypeIndex) (TypeIndexOffset, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].Type > ti })
	if i == 0 {
		return TypeIndexOffset{}, false
	}
	return s[i-1], true
}
