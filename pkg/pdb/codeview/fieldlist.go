package codeview

import (
	"fmt"

	"github.com/jtang613/pdbtpi/pkg/pdb/binread"
	"github.com/jtang613/pdbtpi/pkg/pdb/pdberr"
)

// memberDecoders decodes the entries of an LF_FIELDLIST. The leaf has
// already been consumed.
var memberDecoders = map[LeafKind]decodeFunc{
	LF_ENUMERATE:  decodeEnumerator,
	LF_MEMBER:     decodeDataMember,
	LF_NESTTYPE:   decodeNestedType,
	LF_ONEMETHOD:  decodeOneMethod,
	LF_METHOD:     decodeOverloadedMethod,
	LF_BCLASS:     decodeBaseClass,
	LF_BINTERFACE: decodeBaseClass,
	LF_VFUNCTAB:   decodeVirtualFunctionPointer,
	LF_STMEMBER:   decodeStaticDataMember,
	LF_VBCLASS:    decodeVirtualBaseClass,
	LF_IVBCLASS:   decodeVirtualBaseClass,
	LF_INDEX:      decodeListContinuation,
}

func decodeFieldList(r binread.Reader, kind LeafKind) (Record, error) {
	rec := &FieldListRecord{leaf: leaf{kind}}
	for r.Remaining() > 0 {
		v, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		member := LeafKind(v)
		decode, ok := memberDecoders[member]
		if !ok {
			return nil, fmt.Errorf("%w: field list member %s at offset %d", pdberr.ErrUnknownRecordKind, member, r.Position()-2)
		}
		field, err := decode(r, member)
		if err != nil {
			return nil, fmt.Errorf("field %d (%s): %w", len(rec.Fields), member, err)
		}
		rec.Fields = append(rec.Fields, field)

		if err := skipPadding(r); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// skipPadding skips LF_PADn bytes after a member. The low nibble of the
// first pad byte counts the pad bytes including itself.
func skipPadding(r binread.Reader) error {
	if r.Remaining() == 0 {
		return nil
	}
	b, err := r.ReadU8()
	if err != nil {
		return err
	}
	if b <= uint8(LF_PAD0) {
		return r.SetPosition(r.Position() - 1)
	}
	if n := int64(b&0x0f) - 1; n > 0 {
		return r.Skip(n)
	}
	return nil
}

func decodeEnumerator(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &EnumeratorRecord{
		leaf:       leaf{kind},
		Attributes: MemberAttributes(f.u16()),
		Value:      f.numeric(),
		Name:       f.cstring(),
	}
	return rec, f.err
}

func decodeDataMember(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &DataMemberRecord{
		leaf:       leaf{kind},
		Attributes: MemberAttributes(f.u16()),
		Type:       f.typeIndex(),
		Offset:     f.numeric().Uint64(),
		Name:       f.cstring(),
	}
	return rec, f.err
}

func decodeStaticDataMember(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &StaticDataMemberRecord{
		leaf:       leaf{kind},
		Attributes: MemberAttributes(f.u16()),
		Type:       f.typeIndex(),
		Name:       f.cstring(),
	}
	return rec, f.err
}

func decodeOneMethod(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &OneMethodRecord{
		leaf:       leaf{kind},
		Attributes: MemberAttributes(f.u16()),
		Type:       f.typeIndex(),
	}
	if rec.Attributes.IsIntroducedVirtual() {
		rec.VFTableOffset = f.i32()
	}
	rec.Name = f.cstring()
	return rec, f.err
}

func decodeOverloadedMethod(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &OverloadedMethodRecord{
		leaf:        leaf{kind},
		MethodCount: f.u16(),
		MethodList:  f.typeIndex(),
		Name:        f.cstring(),
	}
	return rec, f.err
}

func decodeBaseClass(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &BaseClassRecord{
		leaf:       leaf{kind},
		Attributes: MemberAttributes(f.u16()),
		Type:       f.typeIndex(),
		Offset:     f.numeric().Uint64(),
	}
	return rec, f.err
}

func decodeVirtualBaseClass(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &VirtualBaseClassRecord{
		leaf:                     leaf{kind},
		Attributes:               MemberAttributes(f.u16()),
		BaseType:                 f.typeIndex(),
		VirtualBasePointerType:   f.typeIndex(),
		VirtualBasePointerOffset: f.numeric().Uint64(),
		VirtualTableIndex:        f.numeric().Uint64(),
	}
	return rec, f.err
}

func decodeVirtualFunctionPointer(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	f.skip(2) // padding
	rec := &VirtualFunctionPointerRecord{leaf: leaf{kind}, Type: f.typeIndex()}
	return rec, f.err
}

func decodeListContinuation(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	f.skip(2) // padding
	rec := &ListContinuationRecord{leaf: leaf{kind}, ContinuationIndex: f.typeIndex()}
	return rec, f.err
}
