package streams

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jtang613/pdbtpi/pkg/pdb/binread"
	"github.com/jtang613/pdbtpi/pkg/pdb/codeview"
	"github.com/jtang613/pdbtpi/pkg/pdb/pdberr"
)

// TPI header validation failures.
var (
	ErrMissingHeader      = pdberr.New(pdberr.ErrFormat, "TPI stream does not contain a header")
	ErrUnsupportedVersion = pdberr.New(pdberr.ErrFormat, "unsupported TPI version")
	ErrHeaderSize         = pdberr.New(pdberr.ErrFormat, "corrupt TPI header size")
	ErrHashKeySize        = pdberr.New(pdberr.ErrFormat, "TPI stream expected 4 byte hash key size")
	ErrHashBucketCount    = pdberr.New(pdberr.ErrFormat, "TPI stream invalid number of hash buckets")
	ErrRecordBytes        = pdberr.New(pdberr.ErrFormat, "TPI record bytes exceed stream length")
	ErrHashStreamIndex    = pdberr.New(pdberr.ErrFormat, "invalid TPI hash stream index")
	ErrHashValueCount     = pdberr.New(pdberr.ErrFormat, "TPI hash count does not match the number of type records")
	ErrIndexOffsetBuffer  = pdberr.New(pdberr.ErrFormat, "TPI index offset buffer exceeds the hash stream")
)

// Record scan failures.
var (
	ErrRecordTooShort = pdberr.New(pdberr.ErrCorruptRecord, "CV corrupt record")
	ErrRecordOverrun  = pdberr.New(pdberr.ErrCorruptRecord, "record runs past the end of the record stream")
)

// ErrParsingWentWrong reports a decoder that stopped outside the allowed
// window before the end of the record.
var ErrParsingWentWrong = pdberr.New(pdberr.ErrDecodeMismatch, "parsing went wrong")

// Lookup failures for indexes the catalog does not hold.
var (
	ErrSimpleTypeIndex = errors.New("simple type index has no record")
	ErrTypeIndexRange  = errors.New("type index out of range")
)

const (
	recordPrefixSize = 4
	// decodeSlack is how far short of the record end a decoder may stop.
	decodeSlack = 4
)

// StreamSource opens other streams of the same file. It is used to reach
// the hash stream.
type StreamSource interface {
	NumStreams() int
	StreamReader(index int) (binread.Reader, error)
}

// recordReference locates one record inside the record sub-stream.
type recordReference struct {
	dataOffset int64
	dataLen    uint32
	kind       codeview.LeafKind
}

// slot caches the decode result of one record. It moves from undecoded to
// decoded once and is never reset.
type slot struct {
	decoded bool
	rec     codeview.Record
	err     error
}

// lazy computes a value once and caches it with its error.
type lazy[T any] struct {
	once sync.Once
	v    T
	err  error
}

func (l *lazy[T]) get(f func() (T, error)) (T, error) {
	l.once.Do(func() { l.v, l.err = f() })
	return l.v, l.err
}

// TPIStream is the type catalog of a TPI or IPI stream. Records are decoded
// on first access and cached for the life of the stream. A TPIStream is safe
// for concurrent use.
type TPIStream struct {
	header *TPIStreamHeader
	source StreamSource
	log    zerolog.Logger

	// base is never read from; it is duplicated for independent cursors.
	base binread.Reader
	refs []recordReference

	mu     sync.Mutex
	cursor binread.Reader // guarded by mu
	slots  []slot         // guarded by mu
	byKind map[codeview.LeafKind][]codeview.Record

	hashValues   lazy[[]uint32]
	indexOffsets lazy[TypeIndexOffsets]
	adjusters    lazy[*HashAdjusters]
}

// Option configures a TPIStream.
type Option func(*TPIStream)

// WithLogger sets the logger used while scanning the stream.
func WithLogger(log zerolog.Logger) Option {
	return func(t *TPIStream) {
		t.log = log
	}
}

// ReadTPIStream validates the header and scans the record sub-stream. r must
// be positioned at the start of the stream. source is consulted only when
// the header names a hash stream and may be nil otherwise.
func ReadTPIStream(r binread.Reader, source StreamSource, opts ...Option) (*TPIStream, error) {
	t := &TPIStream{
		source: source,
		log:    zerolog.Nop(),
		byKind: make(map[codeview.LeafKind][]codeview.Record),
	}
	for _, opt := range opts {
		opt(t)
	}

	if r.Remaining() < TPIStreamHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMissingHeader, r.Remaining())
	}
	header, err := ReadTPIStreamHeader(r)
	if err != nil {
		return nil, err
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}
	t.header = header

	if int64(header.TypeRecordBytes) > r.Remaining() {
		return nil, fmt.Errorf("%w: %d > %d", ErrRecordBytes, header.TypeRecordBytes, r.Remaining())
	}
	records, err := r.Substream(int64(header.TypeRecordBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read type records: %w", err)
	}

	refs, err := scanRecords(records.Duplicate())
	if err != nil {
		return nil, err
	}
	t.base = records
	t.cursor = records.Duplicate()
	t.refs = refs
	t.slots = make([]slot, len(refs))

	if header.HasHashStream() {
		if source == nil || int(header.HashStreamIndex) >= source.NumStreams() {
			return nil, fmt.Errorf("%w: %d", ErrHashStreamIndex, header.HashStreamIndex)
		}
	}

	if want := header.TypeIndexEnd - header.TypeIndexBegin; want != uint32(len(refs)) {
		t.log.Debug().
			Uint32("declared", want).
			Int("scanned", len(refs)).
			Msg("type index range does not match record count")
	}
	t.log.Debug().
		Uint32("version", header.Version).
		Int("records", len(refs)).
		Uint32("record_bytes", header.TypeRecordBytes).
		Bool("hash_stream", header.HasHashStream()).
		Msg("scanned type records")

	return t, nil
}

func validateHeader(h *TPIStreamHeader) error {
	if h.Version != TPIStreamVersionV80 {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if h.HeaderSize != TPIStreamHeaderSize {
		return fmt.Errorf("%w: %d", ErrHeaderSize, h.HeaderSize)
	}
	if h.HashKeySize != 4 {
		return fmt.Errorf("%w: %d", ErrHashKeySize, h.HashKeySize)
	}
	if h.HashBucketsCount < MinTPIHashBuckets || h.HashBucketsCount > MaxTPIHashBuckets {
		return fmt.Errorf("%w: 0x%x", ErrHashBucketCount, h.HashBucketsCount)
	}
	return nil
}

// scanRecords walks the record prefixes once, building a reference per
// record. Any sizing inconsistency fails the whole scan.
func scanRecords(r binread.Reader) ([]recordReference, error) {
	var refs []recordReference
	end := r.Len()
	for pos := int64(0); pos < end; {
		if end-pos < recordPrefixSize {
			return nil, fmt.Errorf("%w: %d trailing bytes at offset %d", ErrRecordOverrun, end-pos, pos)
		}
		length, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		kind, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		if length < 2 {
			return nil, fmt.Errorf("%w: length %d at offset %d", ErrRecordTooShort, length, pos)
		}
		next := pos + int64(length) + 2
		if next > end {
			return nil, fmt.Errorf("%w: record at offset %d ends at %d, stream is %d bytes", ErrRecordOverrun, pos, next, end)
		}
		refs = append(refs, recordReference{
			dataOffset: pos + recordPrefixSize,
			dataLen:    uint32(length) - 2,
			kind:       codeview.LeafKind(kind),
		})
		pos = next
		if err := r.SetPosition(pos); err != nil {
			return nil, err
		}
	}
	return refs, nil
}

// Header returns the stream header.
func (t *TPIStream) Header() *TPIStreamHeader {
	return t.header
}

// TypeIndexBegin is the index of the first record.
func (t *TPIStream) TypeIndexBegin() codeview.TypeIndex {
	return codeview.TypeIndex(t.header.TypeIndexBegin)
}

// TypeIndexEnd is one past the index of the last record.
func (t *TPIStream) TypeIndexEnd() codeview.TypeIndex {
	return t.TypeIndexBegin() + codeview.TypeIndex(len(t.refs))
}

// Count returns the number of records in the stream.
func (t *TPIStream) Count() int {
	return len(t.refs)
}

// IndexAt returns the type index of the i-th record, counted from the
// header's TypeIndexBegin.
func (t *TPIStream) IndexAt(i int) codeview.TypeIndex {
	return t.TypeIndexBegin() + codeview.TypeIndex(i)
}

func (t *TPIStream) arrayIndex(ti codeview.TypeIndex) (int, error) {
	begin := t.TypeIndexBegin()
	if ti < begin {
		if ti.IsSimple() {
			return 0, fmt.Errorf("%w: %s", ErrSimpleTypeIndex, ti)
		}
		return 0, fmt.Errorf("%w: 0x%x before 0x%x", ErrTypeIndexRange, uint32(ti), uint32(begin))
	}
	i := uint64(ti - begin)
	if i >= uint64(len(t.refs)) {
		return 0, fmt.Errorf("%w: 0x%x, stream holds [0x%x, 0x%x)", ErrTypeIndexRange, uint32(ti), uint32(begin), uint32(t.TypeIndexEnd()))
	}
	return int(i), nil
}

// Kind returns the leaf kind of a record without decoding it.
func (t *TPIStream) Kind(ti codeview.TypeIndex) (codeview.LeafKind, error) {
	i, err := t.arrayIndex(ti)
	if err != nil {
		return 0, err
	}
	return t.refs[i].kind, nil
}

// RawRecord returns the undecoded data bytes of a record, excluding the
// length and kind prefix. The slice must not be modified.
func (t *TPIStream) RawRecord(ti codeview.TypeIndex) ([]byte, error) {
	i, err := t.arrayIndex(ti)
	if err != nil {
		return nil, err
	}
	ref := t.refs[i]
	r := t.base.Duplicate()
	if err := r.SetPosition(ref.dataOffset); err != nil {
		return nil, err
	}
	return r.ReadBytes(int(ref.dataLen))
}

// Get returns the decoded record for ti. The first call decodes it; later
// calls return the same value, or the same error.
func (t *TPIStream) Get(ti codeview.TypeIndex) (codeview.Record, error) {
	i, err := t.arrayIndex(ti)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getLocked(i)
}

func (t *TPIStream) getLocked(i int) (codeview.Record, error) {
	s := &t.slots[i]
	if !s.decoded {
		rec, err := t.decode(t.cursor, i)
		*s = slot{decoded: true, rec: rec, err: err}
	}
	return s.rec, s.err
}

// decode reads record i using r, which the caller owns.
func (t *TPIStream) decode(r binread.Reader, i int) (codeview.Record, error) {
	ref := t.refs[i]
	fail := func(err error) error {
		return &pdberr.RecordError{
			Index:  uint32(t.IndexAt(i)),
			Offset: ref.dataOffset,
			Kind:   uint16(ref.kind),
			Err:    err,
		}
	}

	if err := r.SetPosition(ref.dataOffset); err != nil {
		return nil, fail(err)
	}
	data, err := r.Substream(int64(ref.dataLen))
	if err != nil {
		return nil, fail(err)
	}

	rec, err := codeview.Decode(data, ref.kind)
	if err != nil {
		var numeric binread.ErrUnsupportedNumeric
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &numeric) {
			err = fmt.Errorf("%w: %w", pdberr.ErrDecodeMismatch, err)
		}
		return nil, fail(err)
	}
	if data.Remaining() > decodeSlack {
		return nil, fail(fmt.Errorf("%w: stopped at %d of %d bytes", ErrParsingWentWrong, data.Position(), ref.dataLen))
	}
	return rec, nil
}

// GetAll decodes every record of the given kind, in index order. The result
// is cached and the same slice is returned on later calls; it must not be
// modified.
func (t *TPIStream) GetAll(kind codeview.LeafKind) ([]codeview.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if recs, ok := t.byKind[kind]; ok {
		return recs, nil
	}
	recs := []codeview.Record{}
	for i, ref := range t.refs {
		if ref.kind != kind {
			continue
		}
		rec, err := t.getLocked(i)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	t.byKind[kind] = recs
	return recs, nil
}

// GetIndexes yields, in ascending order, the index of every record of the
// given kind. It does not decode records and may be iterated repeatedly.
func (t *TPIStream) GetIndexes(kind codeview.LeafKind) iter.Seq[codeview.TypeIndex] {
	return func(yield func(codeview.TypeIndex) bool) {
		for i, ref := range t.refs {
			if ref.kind == kind && !yield(t.IndexAt(i)) {
				return
			}
		}
	}
}

// Kinds returns the number of records of each kind.
func (t *TPIStream) Kinds() map[codeview.LeafKind]int {
	counts := make(map[codeview.LeafKind]int)
	for _, ref := range t.refs {
		counts[ref.kind]++
	}
	return counts
}

// Prefetch decodes every record with a decoder using up to workers
// goroutines, each with its own reader. Records of kinds without a decoder
// are left for Get to report. The first decode error stops the remaining
// work and is returned.
func (t *TPIStream) Prefetch(ctx context.Context, workers int) error {
	if workers < 1 {
		workers = 1
	}
	n := len(t.refs)
	chunk := (n + workers - 1) / workers
	if chunk == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			r := t.base.Duplicate()
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if !codeview.CanDecode(t.refs[i].kind) || t.isDecoded(i) {
					continue
				}
				rec, decodeErr := t.decode(r, i)
				if err := t.install(i, rec, decodeErr); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	t.log.Debug().Int("records", n).Int("workers", workers).Msg("prefetched type records")
	return nil
}

func (t *TPIStream) isDecoded(i int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[i].decoded
}

// install stores a decode result unless another goroutine got there first,
// and returns the stored error.
func (t *TPIStream) install(i int, rec codeview.Record, err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &t.slots[i]
	if !s.decoded {
		*s = slot{decoded: true, rec: rec, err: err}
	}
	return s.err
}

func (t *TPIStream) hashStream() (binread.Reader, error) {
	return t.source.StreamReader(int(t.header.HashStreamIndex))
}

func (t *TPIStream) hashBuffer(b EmbeddedBuffer) (binread.Reader, error) {
	r, err := t.hashStream()
	if err != nil {
		return nil, fmt.Errorf("failed to open hash stream: %w", err)
	}
	if err := r.SetPosition(int64(b.Offset)); err != nil {
		return nil, fmt.Errorf("hash buffer at offset %d: %w", b.Offset, err)
	}
	return r, nil
}

// HashValues returns one hash per record, or an empty slice if the
// producer wrote none. It returns nil, nil when there is no hash stream.
func (t *TPIStream) HashValues() ([]uint32, error) {
	if !t.header.HasHashStream() {
		return nil, nil
	}
	return t.hashValues.get(func() ([]uint32, error) {
		n := t.header.HashValueBuffer.Length / 4
		if n != 0 && int(n) != len(t.refs) {
			return nil, fmt.Errorf("%w: %d hashes, %d records", ErrHashValueCount, n, len(t.refs))
		}
		if n == 0 {
			return []uint32{}, nil
		}
		r, err := t.hashBuffer(t.header.HashValueBuffer)
		if err != nil {
			return nil, err
		}
		return binread.ReadU32Array(r, int(n))
	})
}

// TypeIndexOffsets returns the producer's offset samples. It returns
// nil, nil when there is no hash stream.
func (t *TPIStream) TypeIndexOffsets() (TypeIndexOffsets, error) {
	if !t.header.HasHashStream() {
		return nil, nil
	}
	return t.indexOffsets.get(func() (TypeIndexOffsets, error) {
		r, err := t.hashBuffer(t.header.IndexOffsetBuffer)
		if err != nil {
			return nil, err
		}
		return readTypeIndexOffsets(r, int(t.header.IndexOffsetBuffer.Length/TypeIndexOffsetSize))
	})
}

// HashAdjusters returns the deduplication table. It returns nil, nil when
// there is no hash stream or the buffer is empty.
func (t *TPIStream) HashAdjusters() (*HashAdjusters, error) {
	if !t.header.HasHashStream() || t.header.HashAdjusterBuffer.Length == 0 {
		return nil, nil
	}
	return t.adjusters.get(func() (*HashAdjusters, error) {
		r, err := t.hashBuffer(t.header.HashAdjusterBuffer)
		if err != nil {
			return nil, err
		}
		table, err := ReadHashTable(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read hash adjusters: %w", err)
		}
		return NewHashAdjusters(table), nil
	})
}
