package codeview

import (
	"fmt"

	"github.com/jtang613/pdbtpi/pkg/pdb/binread"
	"github.com/jtang613/pdbtpi/pkg/pdb/pdberr"
)

// decodeFunc decodes one record from a reader bounded to the record's data.
type decodeFunc func(r binread.Reader, kind LeafKind) (Record, error)

// decoders is the dispatch table for top-level records. A kind without an
// entry cannot be decoded.
var decoders = map[LeafKind]decodeFunc{
	LF_MODIFIER:    decodeModifier,
	LF_PROCEDURE:   decodeProcedure,
	LF_MFUNCTION:   decodeMemberFunction,
	LF_LABEL:       decodeLabel,
	LF_MFUNC_ID:    decodeMemberFunctionId,
	LF_ARGLIST:     decodeArgumentList,
	LF_SUBSTR_LIST: decodeStringList,
	LF_POINTER:     decodePointer,
	LF_NESTTYPE:    decodeNestedType,
	LF_FIELDLIST:   decodeFieldList,
	LF_ENUM:        decodeEnum,
	LF_CLASS:       decodeClass,
	LF_STRUCTURE:   decodeClass,
	LF_INTERFACE:   decodeClass,
	LF_ARRAY:       decodeArray,
	LF_BITFIELD:    decodeBitField,
	LF_METHODLIST:  decodeMethodList,
	LF_UNION:       decodeUnion,
	LF_VTSHAPE:     decodeVTableShape,
}

// CanDecode reports whether kind has a decoder.
func CanDecode(kind LeafKind) bool {
	_, ok := decoders[kind]
	return ok
}

// Decode decodes a record of the given kind. r must be bounded to the
// record's data; list records read until r is exhausted. The caller checks
// how much of r was consumed.
func Decode(r binread.Reader, kind LeafKind) (Record, error) {
	decode, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pdberr.ErrUnknownRecordKind, kind)
	}
	return decode(r, kind)
}

// fieldReader reads fields in order and keeps the first error, so decoders
// can read a fixed layout without checking every call.
type fieldReader struct {
	r   binread.Reader
	err error
}

func (f *fieldReader) u8() uint8 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.ReadU8()
	f.err = err
	return v
}

func (f *fieldReader) u16() uint16 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.ReadU16()
	f.err = err
	return v
}

func (f *fieldReader) u32() uint32 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.ReadU32()
	f.err = err
	return v
}

func (f *fieldReader) i32() int32 {
	return int32(f.u32())
}

func (f *fieldReader) typeIndex() TypeIndex {
	return TypeIndex(f.u32())
}

func (f *fieldReader) numeric() binread.Numeric {
	if f.err != nil {
		return binread.Numeric{}
	}
	v, err := binread.ReadEncodedInteger(f.r)
	f.err = err
	return v
}

func (f *fieldReader) cstring() string {
	if f.err != nil {
		return ""
	}
	s, err := binread.ReadCString(f.r)
	f.err = err
	return s
}

func (f *fieldReader) skip(n int64) {
	if f.err != nil {
		return
	}
	f.err = f.r.Skip(n)
}

func decodeModifier(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &ModifierRecord{leaf: leaf{kind}, ModifiedType: f.typeIndex()}
	// Short records omit the modifier word.
	if f.err == nil && r.Remaining() >= 2 {
		rec.Modifiers = ModifierOptions(f.u16())
	}
	return rec, f.err
}

func decodeProcedure(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &ProcedureRecord{
		leaf:              leaf{kind},
		ReturnType:        f.typeIndex(),
		CallingConvention: CallingConvention(f.u8()),
		Options:           FunctionOptions(f.u8()),
		ParameterCount:    f.u16(),
		ArgumentList:      f.typeIndex(),
	}
	return rec, f.err
}

func decodeMemberFunction(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &MemberFunctionRecord{
		leaf:                  leaf{kind},
		ReturnType:            f.typeIndex(),
		ClassType:             f.typeIndex(),
		ThisType:              f.typeIndex(),
		CallingConvention:     CallingConvention(f.u8()),
		Options:               FunctionOptions(f.u8()),
		ParameterCount:        f.u16(),
		ArgumentList:          f.typeIndex(),
		ThisPointerAdjustment: f.i32(),
	}
	return rec, f.err
}

func decodeLabel(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &LabelRecord{leaf: leaf{kind}, Mode: f.u16()}
	return rec, f.err
}

func decodeMemberFunctionId(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &MemberFunctionIdRecord{
		leaf:         leaf{kind},
		ClassType:    f.typeIndex(),
		FunctionType: f.typeIndex(),
		Name:         f.cstring(),
	}
	return rec, f.err
}

// readIndexList reads a u32 count followed by that many type indexes. The
// count may not claim more indexes than the record holds.
func readIndexList(r binread.Reader) ([]TypeIndex, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int64(count)*4 > r.Remaining() {
		return nil, fmt.Errorf("%w: list of %d indexes exceeds %d remaining bytes", pdberr.ErrDecodeMismatch, count, r.Remaining())
	}
	list := make([]TypeIndex, count)
	for i := range list {
		if list[i], err = ReadTypeIndex(r); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func decodeArgumentList(r binread.Reader, kind LeafKind) (Record, error) {
	args, err := readIndexList(r)
	if err != nil {
		return nil, err
	}
	return &ArgumentListRecord{leaf: leaf{kind}, Arguments: args}, nil
}

func decodeStringList(r binread.Reader, kind LeafKind) (Record, error) {
	strs, err := readIndexList(r)
	if err != nil {
		return nil, err
	}
	return &StringListRecord{leaf: leaf{kind}, Strings: strs}, nil
}

func decodePointer(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &PointerRecord{
		leaf:         leaf{kind},
		ReferentType: f.typeIndex(),
		Attributes:   f.u32(),
	}
	if f.err == nil && rec.IsPointerToMember() {
		rec.MemberInfo = &MemberPointerInfo{
			ContainingType: f.typeIndex(),
			Representation: f.u16(),
		}
	}
	return rec, f.err
}

func decodeNestedType(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	f.skip(2) // padding
	rec := &NestedTypeRecord{
		leaf: leaf{kind},
		Type: f.typeIndex(),
		Name: f.cstring(),
	}
	return rec, f.err
}

func decodeEnum(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &EnumRecord{
		leaf:           leaf{kind},
		MemberCount:    f.u16(),
		Options:        ClassOptions(f.u16()),
		UnderlyingType: f.typeIndex(),
		FieldList:      f.typeIndex(),
		Name:           f.cstring(),
	}
	if rec.Options.HasUniqueName() {
		rec.UniqueName = f.cstring()
	}
	return rec, f.err
}

func decodeClass(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &ClassRecord{
		leaf:           leaf{kind},
		MemberCount:    f.u16(),
		Options:        ClassOptions(f.u16()),
		FieldList:      f.typeIndex(),
		DerivationList: f.typeIndex(),
		VTableShape:    f.typeIndex(),
		Size:           f.numeric().Uint64(),
		Name:           f.cstring(),
	}
	if rec.Options.HasUniqueName() {
		rec.UniqueName = f.cstring()
	}
	return rec, f.err
}

func decodeUnion(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &UnionRecord{
		leaf:        leaf{kind},
		MemberCount: f.u16(),
		Options:     ClassOptions(f.u16()),
		FieldList:   f.typeIndex(),
		Size:        f.numeric().Uint64(),
		Name:        f.cstring(),
	}
	if rec.Options.HasUniqueName() {
		rec.UniqueName = f.cstring()
	}
	return rec, f.err
}

func decodeArray(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &ArrayRecord{
		leaf:        leaf{kind},
		ElementType: f.typeIndex(),
		IndexType:   f.typeIndex(),
		Size:        f.numeric().Uint64(),
		Name:        f.cstring(),
	}
	return rec, f.err
}

func decodeBitField(r binread.Reader, kind LeafKind) (Record, error) {
	f := fieldReader{r: r}
	rec := &BitFieldRecord{
		leaf:      leaf{kind},
		Type:      f.typeIndex(),
		BitSize:   f.u8(),
		BitOffset: f.u8(),
	}
	return rec, f.err
}

func decodeMethodList(r binread.Reader, kind LeafKind) (Record, error) {
	rec := &MethodOverloadListRecord{leaf: leaf{kind}}
	for r.Remaining() > 0 {
		f := fieldReader{r: r}
		m := OneMethodRecord{
			leaf:       leaf{LF_ONEMETHOD},
			Attributes: MemberAttributes(f.u16()),
		}
		f.skip(2) // padding
		m.Type = f.typeIndex()
		if m.Attributes.IsIntroducedVirtual() {
			m.VFTableOffset = f.i32()
		}
		if f.err != nil {
			return nil, fmt.Errorf("method %d: %w", len(rec.Methods), f.err)
		}
		rec.Methods = append(rec.Methods, m)
	}
	return rec, nil
}

func decodeVTableShape(r binread.Reader, kind LeafKind) (Record, error) {
	count, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	packed, err := r.ReadBytes((int(count) + 1) / 2)
	if err != nil {
		return nil, err
	}
	slots := make([]VTableSlotKind, count)
	for i := range slots {
		b := packed[i/2]
		if i%2 == 1 {
			b >>= 4
		}
		slots[i] = VTableSlotKind(b & 0x0f)
	}
	return &VTableShapeRecord{leaf: leaf{kind}, Slots: slots}, nil
}
