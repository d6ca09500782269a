package streams

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtang613/pdbtpi/internal/pdbtest"
	"github.com/jtang613/pdbtpi/pkg/pdb/binread"
	"github.com/jtang613/pdbtpi/pkg/pdb/codeview"
	"github.com/jtang613/pdbtpi/pkg/pdb/pdberr"
)

// memSource serves streams from memory and counts how often they are opened.
type memSource struct {
	streams [][]byte
	opened  int
}

func (m *memSource) NumStreams() int { return len(m.streams) }

func (m *memSource) StreamReader(i int) (binread.Reader, error) {
	m.opened++
	return binread.NewByteReader(m.streams[i]), nil
}

func readTPI(t *testing.T, b *pdbtest.TPI, source StreamSource) *TPIStream {
	t.Helper()
	tpi, err := ReadTPIStream(binread.NewByteReader(b.Bytes()), source)
	require.NoError(t, err)
	return tpi
}

func modifier(ti uint32) []byte {
	return pdbtest.NewW().U32(ti).U16(uint16(codeview.ModifierConst)).Pad().Bytes()
}

func argList(tis ...uint32) []byte {
	w := pdbtest.NewW().U32(uint32(len(tis)))
	for _, ti := range tis {
		w.U32(ti)
	}
	return w.Bytes()
}

func TestScenarioSingleModifier(t *testing.T) {
	b := pdbtest.NewTPI().AddRaw(6, uint16(codeview.LF_MODIFIER), pdbtest.NewW().U32(0x74).Bytes())
	require.Len(t, b.RecordBytes(), 8)

	tpi := readTPI(t, b, nil)
	assert.Equal(t, 1, tpi.Count())

	rec, err := tpi.Get(codeview.FromArrayIndex(0))
	require.NoError(t, err)
	assert.Equal(t, codeview.LF_MODIFIER, rec.Kind())
	assert.Equal(t, codeview.TypeIndex(0x74), rec.(*codeview.ModifierRecord).ModifiedType)

	hv, err := tpi.HashValues()
	assert.NoError(t, err)
	assert.Nil(t, hv)
}

func TestScenarioNoHashStream(t *testing.T) {
	source := &memSource{streams: [][]byte{{}, {}, {}}}
	tpi := readTPI(t, pdbtest.NewTPI().Add(uint16(codeview.LF_MODIFIER), modifier(0x74)), source)

	hv, err := tpi.HashValues()
	assert.NoError(t, err)
	assert.Nil(t, hv)

	offsets, err := tpi.TypeIndexOffsets()
	assert.NoError(t, err)
	assert.Nil(t, offsets)

	adj, err := tpi.HashAdjusters()
	assert.NoError(t, err)
	assert.Nil(t, adj)

	assert.Equal(t, 0, source.opened, "no secondary stream may be touched")
}

func TestScenarioCorruptRecordLength(t *testing.T) {
	b := pdbtest.NewTPI().
		Add(uint16(codeview.LF_MODIFIER), modifier(0x74)).
		AddRaw(1, uint16(codeview.LF_MODIFIER), []byte{0, 0, 0})

	tpi, err := ReadTPIStream(binread.NewByteReader(b.Bytes()), nil)
	assert.Nil(t, tpi)
	assert.ErrorIs(t, err, ErrRecordTooShort)
	assert.ErrorIs(t, err, pdberr.ErrCorruptRecord)
}

func TestReadTPIStreamHeaderErrors(t *testing.T) {
	named := []error{ErrUnsupportedVersion, ErrHeaderSize, ErrHashKeySize, ErrHashBucketCount}

	tests := []struct {
		name   string
		mutate func(*pdbtest.TPI)
		want   error
	}{
		{"version V70", func(b *pdbtest.TPI) { b.Version = TPIStreamVersionV70 }, ErrUnsupportedVersion},
		{"header size", func(b *pdbtest.TPI) { b.HeaderSize = 52 }, ErrHeaderSize},
		{"hash key size", func(b *pdbtest.TPI) { b.HashKeySize = 8 }, ErrHashKeySize},
		{"buckets below minimum", func(b *pdbtest.TPI) { b.HashBucketsCount = 0x500 }, ErrHashBucketCount},
		{"buckets above maximum", func(b *pdbtest.TPI) { b.HashBucketsCount = 0x80000 }, ErrHashBucketCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := pdbtest.NewTPI().Add(uint16(codeview.LF_MODIFIER), modifier(0x74))
			tt.mutate(b)
			_, err := ReadTPIStream(binread.NewByteReader(b.Bytes()), nil)
			require.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, pdberr.ErrFormat)
			for _, other := range named {
				if other != tt.want {
					assert.NotErrorIs(t, err, other)
				}
			}
		})
	}
}

func TestReadTPIStreamBucketBounds(t *testing.T) {
	for _, n := range []uint32{MinTPIHashBuckets, MaxTPIHashBuckets} {
		b := pdbtest.NewTPI()
		b.HashBucketsCount = n
		readTPI(t, b, nil)
	}
}

func TestReadTPIStreamSizing(t *testing.T) {
	t.Run("missing header", func(t *testing.T) {
		_, err := ReadTPIStream(binread.NewByteReader(make([]byte, 40)), nil)
		assert.ErrorIs(t, err, ErrMissingHeader)
	})

	t.Run("record bytes past stream", func(t *testing.T) {
		data := pdbtest.NewTPI().Add(uint16(codeview.LF_MODIFIER), modifier(0x74)).Bytes()
		_, err := ReadTPIStream(binread.NewByteReader(data[:len(data)-1]), nil)
		assert.ErrorIs(t, err, ErrRecordBytes)
	})

	t.Run("record overruns stream", func(t *testing.T) {
		b := pdbtest.NewTPI().AddRaw(20, uint16(codeview.LF_MODIFIER), modifier(0x74))
		_, err := ReadTPIStream(binread.NewByteReader(b.Bytes()), nil)
		assert.ErrorIs(t, err, ErrRecordOverrun)
		assert.ErrorIs(t, err, pdberr.ErrCorruptRecord)
	})

	t.Run("truncated prefix", func(t *testing.T) {
		b := pdbtest.NewTPI().Add(uint16(codeview.LF_MODIFIER), modifier(0x74))
		stream := append(b.Bytes(), 0x02, 0x00)
		// Grow TypeRecordBytes (offset 16) to cover the stray bytes.
		stream[16] += 2
		_, err := ReadTPIStream(binread.NewByteReader(stream), nil)
		assert.ErrorIs(t, err, ErrRecordOverrun)
	})

	t.Run("empty record stream", func(t *testing.T) {
		tpi := readTPI(t, pdbtest.NewTPI(), nil)
		assert.Equal(t, 0, tpi.Count())
		assert.Equal(t, tpi.TypeIndexBegin(), tpi.TypeIndexEnd())
	})
}

// mixedTPI holds records 0x1000..0x1004: arglist, modifier, arglist, label,
// arglist.
func mixedTPI() *pdbtest.TPI {
	return pdbtest.NewTPI().
		Add(uint16(codeview.LF_ARGLIST), argList(0x74)).
		Add(uint16(codeview.LF_MODIFIER), modifier(0x1000)).
		Add(uint16(codeview.LF_ARGLIST), argList()).
		Add(uint16(codeview.LF_LABEL), pdbtest.NewW().U16(0).Pad().Bytes()).
		Add(uint16(codeview.LF_ARGLIST), argList(0x74, 0x75))
}

func TestGetIsMemoized(t *testing.T) {
	tpi := readTPI(t, mixedTPI(), nil)
	assert.Equal(t, 5, tpi.Count())

	for i := 0; i < tpi.Count(); i++ {
		ti := codeview.FromArrayIndex(i)
		first, err := tpi.Get(ti)
		require.NoError(t, err)
		second, err := tpi.Get(ti)
		require.NoError(t, err)
		assert.Same(t, first, second, "index %s", ti)
	}

	rec, err := tpi.Get(0x1004)
	require.NoError(t, err)
	assert.Equal(t, []codeview.TypeIndex{0x74, 0x75}, rec.(*codeview.ArgumentListRecord).Arguments)
}

func TestGetIndexes(t *testing.T) {
	tpi := readTPI(t, mixedTPI(), nil)

	seq := tpi.GetIndexes(codeview.LF_ARGLIST)
	want := []codeview.TypeIndex{0x1000, 0x1002, 0x1004}
	assert.Equal(t, want, slices.Collect(seq))
	assert.Equal(t, want, slices.Collect(seq), "sequence is restartable")

	assert.Equal(t, []codeview.TypeIndex{0x1001}, slices.Collect(tpi.GetIndexes(codeview.LF_MODIFIER)))
	assert.Empty(t, slices.Collect(tpi.GetIndexes(codeview.LF_UNION)))

	for ti := range seq {
		assert.Equal(t, codeview.TypeIndex(0x1000), ti)
		break
	}

	// Iteration does not decode.
	tpi.mu.Lock()
	for _, s := range tpi.slots {
		assert.False(t, s.decoded)
	}
	tpi.mu.Unlock()

	total := 0
	for kind, n := range tpi.Kinds() {
		assert.Len(t, slices.Collect(tpi.GetIndexes(kind)), n)
		total += n
	}
	assert.Equal(t, tpi.Count(), total)
}

func TestGetAllIsCached(t *testing.T) {
	tpi := readTPI(t, mixedTPI(), nil)

	all, err := tpi.GetAll(codeview.LF_ARGLIST)
	require.NoError(t, err)
	require.Len(t, all, 3)

	again, err := tpi.GetAll(codeview.LF_ARGLIST)
	require.NoError(t, err)
	require.Len(t, again, 3)
	assert.Same(t, &all[0], &again[0], "cached slice is returned")

	for i, ti := range []codeview.TypeIndex{0x1000, 0x1002, 0x1004} {
		rec, err := tpi.Get(ti)
		require.NoError(t, err)
		assert.Same(t, rec, all[i])
	}

	none, err := tpi.GetAll(codeview.LF_UNION)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetIndexErrors(t *testing.T) {
	tpi := readTPI(t, mixedTPI(), nil)

	_, err := tpi.Get(0x74)
	assert.ErrorIs(t, err, ErrSimpleTypeIndex)

	_, err = tpi.Get(0x1005)
	assert.ErrorIs(t, err, ErrTypeIndexRange)

	_, err = tpi.Kind(0x2000)
	assert.ErrorIs(t, err, ErrTypeIndexRange)

	b := mixedTPI()
	b.TypeIndexBegin = 0x2000
	shifted := readTPI(t, b, nil)
	_, err = shifted.Get(0x1fff)
	assert.ErrorIs(t, err, ErrTypeIndexRange)
	rec, err := shifted.Get(0x2001)
	require.NoError(t, err)
	assert.Equal(t, codeview.LF_MODIFIER, rec.Kind())
}

func TestIndexAt(t *testing.T) {
	b := mixedTPI()
	b.TypeIndexBegin = 0x2000
	tpi := readTPI(t, b, nil)

	assert.Equal(t, codeview.TypeIndex(0x2000), tpi.IndexAt(0))
	ti := tpi.IndexAt(1)
	assert.Equal(t, codeview.TypeIndex(0x2001), ti)
	assert.NotEqual(t, codeview.FromArrayIndex(1), ti)

	rec, err := tpi.Get(ti)
	require.NoError(t, err)
	assert.Equal(t, codeview.LF_MODIFIER, rec.Kind())
}

func TestKindAndRawRecord(t *testing.T) {
	tpi := readTPI(t, mixedTPI(), nil)

	kind, err := tpi.Kind(0x1003)
	require.NoError(t, err)
	assert.Equal(t, codeview.LF_LABEL, kind)

	raw, err := tpi.RawRecord(0x1004)
	require.NoError(t, err)
	assert.Equal(t, argList(0x74, 0x75), raw)
}

func TestDecodeTolerance(t *testing.T) {
	label := func(extra int) []byte {
		return pdbtest.NewW().U16(4).Raw(make([]byte, extra)).Bytes()
	}

	tpi := readTPI(t, pdbtest.NewTPI().
		Add(uint16(codeview.LF_LABEL), label(4)).
		Add(uint16(codeview.LF_LABEL), label(6)).
		Add(uint16(codeview.LF_POINTER), pdbtest.NewW().U32(0x74).Bytes()), nil)

	rec, err := tpi.Get(0x1000)
	require.NoError(t, err, "up to four trailing bytes are tolerated")
	assert.Equal(t, uint16(4), rec.(*codeview.LabelRecord).Mode)

	_, err = tpi.Get(0x1001)
	assert.ErrorIs(t, err, ErrParsingWentWrong)
	assert.ErrorIs(t, err, pdberr.ErrDecodeMismatch)

	var recErr *pdberr.RecordError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, uint32(0x1001), recErr.Index)
	assert.Equal(t, uint16(codeview.LF_LABEL), recErr.Kind)

	_, err = tpi.Get(0x1002)
	assert.ErrorIs(t, err, pdberr.ErrDecodeMismatch, "reading past the record is a mismatch")
}

func TestUnsupportedNumericIsDecodeMismatch(t *testing.T) {
	// LF_REAL32 where the array size belongs.
	array := pdbtest.NewW().U32(0x74).U32(0x23).U16(0x8005).U32(0).CString("a").Pad().Bytes()
	tpi := readTPI(t, pdbtest.NewTPI().Add(uint16(codeview.LF_ARRAY), array), nil)

	_, err := tpi.Get(0x1000)
	require.Error(t, err)
	assert.ErrorIs(t, err, pdberr.ErrDecodeMismatch)
	var numeric binread.ErrUnsupportedNumeric
	require.ErrorAs(t, err, &numeric)
	assert.Equal(t, binread.ErrUnsupportedNumeric(0x8005), numeric)
	var recErr *pdberr.RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, uint32(0x1000), recErr.Index)
}

func TestUnknownKindIsLazy(t *testing.T) {
	tpi := readTPI(t, pdbtest.NewTPI().
		Add(uint16(codeview.LF_FUNC_ID), pdbtest.NewW().U32(0).U32(0x1001).CString("main").Pad().Bytes()).
		Add(uint16(codeview.LF_MODIFIER), modifier(0x74)), nil)
	assert.Equal(t, 2, tpi.Count())

	_, err := tpi.Get(0x1000)
	assert.ErrorIs(t, err, pdberr.ErrUnknownRecordKind)
	_, again := tpi.Get(0x1000)
	assert.Same(t, err, again, "failures are cached")

	_, err = tpi.Get(0x1001)
	assert.NoError(t, err)

	_, err = tpi.GetAll(codeview.LF_FUNC_ID)
	assert.ErrorIs(t, err, pdberr.ErrUnknownRecordKind)
}

func TestPrefetch(t *testing.T) {
	b := pdbtest.NewTPI()
	for i := 0; i < 100; i++ {
		b.Add(uint16(codeview.LF_ARGLIST), argList(uint32(i)))
	}
	b.Add(uint16(codeview.LF_STRING_ID), pdbtest.NewW().U32(0).CString("x").Pad().Bytes())
	tpi := readTPI(t, b, nil)

	early, err := tpi.Get(0x1010)
	require.NoError(t, err)

	require.NoError(t, tpi.Prefetch(context.Background(), 4))

	tpi.mu.Lock()
	for i, s := range tpi.slots[:100] {
		assert.True(t, s.decoded, "slot %d", i)
	}
	assert.False(t, tpi.slots[100].decoded)
	tpi.mu.Unlock()

	again, err := tpi.Get(0x1010)
	require.NoError(t, err)
	assert.Same(t, early, again, "prefetch keeps the first decoded value")

	rec, err := tpi.Get(0x1063)
	require.NoError(t, err)
	assert.Equal(t, []codeview.TypeIndex{99}, rec.(*codeview.ArgumentListRecord).Arguments)
}

func TestPrefetchErrors(t *testing.T) {
	b := pdbtest.NewTPI()
	for i := 0; i < 10; i++ {
		b.Add(uint16(codeview.LF_ARGLIST), argList(uint32(i)))
	}
	b.Add(uint16(codeview.LF_LABEL), pdbtest.NewW().U16(0).Raw(make([]byte, 8)).Bytes())

	err := readTPI(t, b, nil).Prefetch(context.Background(), 3)
	assert.ErrorIs(t, err, pdberr.ErrDecodeMismatch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = readTPI(t, b, nil).Prefetch(ctx, 2)
	assert.ErrorIs(t, err, context.Canceled)

	assert.NoError(t, readTPI(t, pdbtest.NewTPI(), nil).Prefetch(context.Background(), 8))
}
