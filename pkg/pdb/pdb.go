package pdb

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jtang613/pdbtpi/pkg/pdb/codeview"
	"github.com/jtang613/pdbtpi/pkg/pdb/msf"
	"github.com/jtang613/pdbtpi/pkg/pdb/streams"
)

// Stream indices
const (
	StreamPDB = 1 // PDB info stream
	StreamTPI = 2 // Type info stream
	StreamDBI = 3 // Debug info stream
	StreamIPI = 4 // ID info stream
)

// ErrStreamMissing is returned when a fixed stream is absent or deleted.
var ErrStreamMissing = errors.New("pdb: stream not present")

// File represents an opened PDB file. The info stream and both type
// catalogs are parsed on first use; a File is safe for concurrent use.
type File struct {
	msf *msf.MSF
	log zerolog.Logger

	infoOnce sync.Once
	info     *streams.PDBInfo
	infoErr  error

	dbiOnce sync.Once
	dbi     *streams.DBIHeader
	dbiErr  error

	tpiOnce sync.Once
	tpi     *streams.TPIStream
	tpiErr  error

	ipiOnce sync.Once
	ipi     *streams.TPIStream
	ipiErr  error
}

// Option configures how a File is opened.
type Option func(*File)

// WithLogger sets the logger passed down to the container and catalogs.
func WithLogger(log zerolog.Logger) Option {
	return func(f *File) {
		f.log = log
	}
}

// Open maps a PDB file and parses its container structure.
func Open(path string, opts ...Option) (*File, error) {
	f := newFile(opts)
	m, err := msf.Open(path, msf.WithLogger(f.log))
	if err != nil {
		return nil, fmt.Errorf("failed to open MSF: %w", err)
	}
	f.msf = m
	return f, nil
}

// FromBytes parses a PDB image held in memory.
func FromBytes(data []byte, opts ...Option) (*File, error) {
	f := newFile(opts)
	m, err := msf.FromBytes(data, msf.WithLogger(f.log))
	if err != nil {
		return nil, fmt.Errorf("failed to open MSF: %w", err)
	}
	f.msf = m
	return f, nil
}

func newFile(opts []Option) *File {
	f := &File{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Close closes the PDB file.
func (f *File) Close() error {
	return f.msf.Close()
}

// MSF returns the underlying container.
func (f *File) MSF() *msf.MSF {
	return f.msf
}

func (f *File) hasStream(index int) bool {
	if index >= f.msf.NumStreams() {
		return false
	}
	s, err := f.msf.Stream(index)
	return err == nil && s.Size() > 0
}

// Info returns the parsed PDB info stream.
func (f *File) Info() (*streams.PDBInfo, error) {
	f.infoOnce.Do(func() {
		if !f.hasStream(StreamPDB) {
			f.infoErr = fmt.Errorf("%w: PDB info stream %d", ErrStreamMissing, StreamPDB)
			return
		}
		r, err := f.msf.StreamReader(StreamPDB)
		if err != nil {
			f.infoErr = err
			return
		}
		if f.info, err = streams.ReadPDBInfo(r); err != nil {
			f.infoErr = fmt.Errorf("failed to read PDB info stream: %w", err)
		}
	})
	return f.info, f.infoErr
}

// DBI returns the header of the debug info stream.
func (f *File) DBI() (*streams.DBIHeader, error) {
	f.dbiOnce.Do(func() {
		if !f.hasStream(StreamDBI) {
			f.dbiErr = fmt.Errorf("%w: DBI stream %d", ErrStreamMissing, StreamDBI)
			return
		}
		r, err := f.msf.StreamReader(StreamDBI)
		if err != nil {
			f.dbiErr = err
			return
		}
		f.dbi, f.dbiErr = streams.ReadDBIHeader(r)
	})
	return f.dbi, f.dbiErr
}

// TPI returns the type catalog (stream 2).
func (f *File) TPI() (*streams.TPIStream, error) {
	f.tpiOnce.Do(func() {
		f.tpi, f.tpiErr = f.openCatalog(StreamTPI, "TPI")
	})
	return f.tpi, f.tpiErr
}

// IPI returns the ID catalog (stream 4).
func (f *File) IPI() (*streams.TPIStream, error) {
	f.ipiOnce.Do(func() {
		f.ipi, f.ipiErr = f.openCatalog(StreamIPI, "IPI")
	})
	return f.ipi, f.ipiErr
}

func (f *File) openCatalog(index int, name string) (*streams.TPIStream, error) {
	if !f.hasStream(index) {
		return nil, fmt.Errorf("%w: %s stream %d", ErrStreamMissing, name, index)
	}
	r, err := f.msf.StreamReader(index)
	if err != nil {
		return nil, err
	}
	log := f.log.With().Str("stream", name).Logger()
	tpi, err := streams.ReadTPIStream(r, f.msf, streams.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s stream: %w", name, err)
	}
	return tpi, nil
}

// Summary returns basic PDB file information. Catalogs that are absent are
// left nil; any other failure is returned.
func (f *File) Summary() (*Summary, error) {
	sb := f.msf.SuperBlock()
	s := &Summary{
		BlockSize: sb.BlockSize,
		Blocks:    sb.NumBlocks,
		Streams:   f.msf.NumStreams(),
	}

	info, err := f.Info()
	switch {
	case err == nil:
		s.GUID = info.GUIDString()
		s.Age = info.Age
		s.Signature = info.Signature
		s.Version = info.Version
		s.NamedStreams = info.NamedStreams
	case !errors.Is(err, ErrStreamMissing):
		return nil, err
	}

	dbi, err := f.DBI()
	switch {
	case err == nil:
		s.Machine = dbi.MachineName()
	case !errors.Is(err, ErrStreamMissing):
		return nil, err
	}

	if s.TPI, err = catalogSummary(f.TPI()); err != nil {
		return nil, err
	}
	if s.IPI, err = catalogSummary(f.IPI()); err != nil {
		return nil, err
	}
	return s, nil
}

func catalogSummary(tpi *streams.TPIStream, err error) (*CatalogSummary, error) {
	if errors.Is(err, ErrStreamMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	h := tpi.Header()
	kinds := make(map[string]int)
	for k, n := range tpi.Kinds() {
		kinds[k.String()] = n
	}
	return &CatalogSummary{
		Version:        h.Version,
		TypeIndexBegin: uint32(tpi.TypeIndexBegin()),
		TypeIndexEnd:   uint32(tpi.TypeIndexEnd()),
		Records:        tpi.Count(),
		RecordBytes:    h.TypeRecordBytes,
		HashStream:     h.HasHashStream(),
		Kinds:          kinds,
	}, nil
}

// Describe decodes one record of a catalog into a TypeInfo. Simple type
// indexes are described without touching the catalog.
func Describe(tpi *streams.TPIStream, ti codeview.TypeIndex) (*TypeInfo, error) {
	namer := NewTypeNamer(tpi)
	if ti.IsSimple() {
		return &TypeInfo{
			Index:     uint32(ti),
			Kind:      "builtin",
			Name:      ti.SimpleTypeName(),
			Signature: ti.SimpleTypeName(),
		}, nil
	}

	rec, err := tpi.Get(ti)
	if err != nil {
		return nil, err
	}
	info := &TypeInfo{
		Index:     uint32(ti),
		Kind:      rec.Kind().String(),
		Signature: namer.Name(ti),
		Record:    rec,
	}

	var fieldList codeview.TypeIndex
	switch r := rec.(type) {
	case *codeview.ClassRecord:
		info.Name, info.Size, fieldList = r.Name, r.Size, r.FieldList
	case *codeview.UnionRecord:
		info.Name, info.Size, fieldList = r.Name, r.Size, r.FieldList
	case *codeview.EnumRecord:
		info.Name, fieldList = r.Name, r.FieldList
	case *codeview.ArrayRecord:
		info.Name, info.Size = r.Name, r.Size
	}
	if fieldList == 0 {
		return info, nil
	}

	members, err := Members(tpi, fieldList)
	if err != nil {
		return nil, fmt.Errorf("field list of 0x%x: %w", uint32(ti), err)
	}
	for _, m := range members {
		info.Members = append(info.Members, describeMember(namer, m))
	}
	return info, nil
}

// Members returns the fields of a field list, following LF_INDEX
// continuations. A continuation chain that revisits a list is cut.
func Members(tpi *streams.TPIStream, fieldList codeview.TypeIndex) ([]codeview.Record, error) {
	var out []codeview.Record
	seen := make(map[codeview.TypeIndex]bool)
	for ti := fieldList; ti != 0 && !seen[ti]; {
		seen[ti] = true
		rec, err := tpi.Get(ti)
		if err != nil {
			return nil, err
		}
		list, ok := rec.(*codeview.FieldListRecord)
		if !ok {
			return nil, fmt.Errorf("type 0x%x is %s, not a field list", uint32(ti), rec.Kind())
		}
		ti = 0
		for _, field := range list.Fields {
			if cont, ok := field.(*codeview.ListContinuationRecord); ok {
				ti = cont.ContinuationIndex
				continue
			}
			out = append(out, field)
		}
	}
	return out, nil
}

func describeMember(namer *TypeNamer, rec codeview.Record) Member {
	m := Member{Kind: rec.Kind().String()}
	switch r := rec.(type) {
	case *codeview.DataMemberRecord:
		m.Name, m.TypeName, m.Offset = r.Name, namer.Name(r.Type), r.Offset
		m.Access = r.Attributes.Access().String()
	case *codeview.StaticDataMemberRecord:
		m.Name, m.TypeName = r.Name, namer.Name(r.Type)
		m.Access = r.Attributes.Access().String()
	case *codeview.EnumeratorRecord:
		m.Name, m.Value = r.Name, r.Value.String()
	case *codeview.OneMethodRecord:
		m.Name, m.TypeName = r.Name, namer.Name(r.Type)
		m.Access = r.Attributes.Access().String()
	case *codeview.OverloadedMethodRecord:
		m.Name = r.Name
	case *codeview.NestedTypeRecord:
		m.Name, m.TypeName = r.Name, namer.Name(r.Type)
	case *codeview.BaseClassRecord:
		m.TypeName, m.Offset = namer.Name(r.Type), r.Offset
		m.Access = r.Attributes.Access().String()
	case *codeview.VirtualBaseClassRecord:
		m.TypeName = namer.Name(r.BaseType)
		m.Access = r.Attributes.Access().String()
	case *codeview.VirtualFunctionPointerRecord:
		m.TypeName = namer.Name(r.Type)
	}
	return m
}

// Types describes every record of the given kind, in type index order.
func Types(tpi *streams.TPIStream, kind codeview.LeafKind) ([]*TypeInfo, error) {
	var out []*TypeInfo
	for ti := range tpi.GetIndexes(kind) {
		info, err := Describe(tpi, ti)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// Duplicates groups the indexes of records whose kind and data bytes are
// identical. fingerprint buckets the records; members of a bucket are then
// compared byte for byte, so collisions never merge different records.
// Groups of one are dropped; the result is ordered by first index.
func Duplicates(tpi *streams.TPIStream, fingerprint func([]byte) uint64) ([][]codeview.TypeIndex, error) {
	type key struct {
		kind codeview.LeafKind
		hash uint64
	}
	type group struct {
		data    []byte
		indexes []codeview.TypeIndex
	}
	buckets := make(map[key][]*group)
	for i := 0; i < tpi.Count(); i++ {
		ti := tpi.IndexAt(i)
		kind, err := tpi.Kind(ti)
		if err != nil {
			return nil, err
		}
		data, err := tpi.RawRecord(ti)
		if err != nil {
			return nil, err
		}
		k := key{kind, fingerprint(data)}
		var g *group
		for _, candidate := range buckets[k] {
			if bytes.Equal(candidate.data, data) {
				g = candidate
				break
			}
		}
		if g == nil {
			g = &group{data: data}
			buckets[k] = append(buckets[k], g)
		}
		g.indexes = append(g.indexes, ti)
	}

	var out [][]codeview.TypeIndex
	for _, gs := range buckets {
		for _, g := range gs {
			if len(g.indexes) > 1 {
				out = append(out, g.indexes)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out, nil
}
