package codeview

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtang613/pdbtpi/internal/pdbtest"
	"github.com/jtang613/pdbtpi/pkg/pdb/binread"
	"github.com/jtang613/pdbtpi/pkg/pdb/pdberr"
)

func decode(t *testing.T, kind LeafKind, w *pdbtest.W) Record {
	t.Helper()
	r := binread.NewByteReader(w.Bytes())
	rec, err := Decode(r, kind)
	require.NoError(t, err)
	assert.Equal(t, kind, rec.Kind())
	assert.Equal(t, int64(0), r.Remaining(), "decoder must consume the whole record")
	return rec
}

func TestDecodeModifier(t *testing.T) {
	rec := decode(t, LF_MODIFIER, pdbtest.NewW().U32(0x1005).U16(3))
	assert.Equal(t, &ModifierRecord{leaf: leaf{LF_MODIFIER}, ModifiedType: 0x1005, Modifiers: ModifierConst | ModifierVolatile}, rec)

	short := decode(t, LF_MODIFIER, pdbtest.NewW().U32(0x74))
	assert.Equal(t, TypeIndex(0x74), short.(*ModifierRecord).ModifiedType)
	assert.Equal(t, ModifierOptions(0), short.(*ModifierRecord).Modifiers)
}

func TestDecodeProcedure(t *testing.T) {
	rec := decode(t, LF_PROCEDURE, pdbtest.NewW().U32(0x74).U8(uint8(CallNearStd)).U8(0).U16(2).U32(0x1002))
	assert.Equal(t, &ProcedureRecord{
		leaf:              leaf{LF_PROCEDURE},
		ReturnType:        0x74,
		CallingConvention: CallNearStd,
		ParameterCount:    2,
		ArgumentList:      0x1002,
	}, rec)
}

func TestDecodeMemberFunction(t *testing.T) {
	rec := decode(t, LF_MFUNCTION, pdbtest.NewW().
		U32(0x03).U32(0x1010).U32(0x1011).
		U8(uint8(CallThis)).U8(uint8(FunctionConstructor)).U16(1).
		U32(0x1012).I32(-8))
	mf := rec.(*MemberFunctionRecord)
	assert.Equal(t, TypeIndex(0x1010), mf.ClassType)
	assert.Equal(t, TypeIndex(0x1011), mf.ThisType)
	assert.Equal(t, CallThis, mf.CallingConvention)
	assert.Equal(t, FunctionConstructor, mf.Options)
	assert.Equal(t, int32(-8), mf.ThisPointerAdjustment)
}

func TestDecodeSmallRecords(t *testing.T) {
	label := decode(t, LF_LABEL, pdbtest.NewW().U16(4))
	assert.Equal(t, uint16(4), label.(*LabelRecord).Mode)

	id := decode(t, LF_MFUNC_ID, pdbtest.NewW().U32(0x1001).U32(0x1002).CString("Run"))
	assert.Equal(t, &MemberFunctionIdRecord{leaf: leaf{LF_MFUNC_ID}, ClassType: 0x1001, FunctionType: 0x1002, Name: "Run"}, id)

	nested := decode(t, LF_NESTTYPE, pdbtest.NewW().U16(0).U32(0x1003).CString("Inner"))
	assert.Equal(t, &NestedTypeRecord{leaf: leaf{LF_NESTTYPE}, Type: 0x1003, Name: "Inner"}, nested)

	bits := decode(t, LF_BITFIELD, pdbtest.NewW().U32(0x75).U8(3).U8(5))
	assert.Equal(t, &BitFieldRecord{leaf: leaf{LF_BITFIELD}, Type: 0x75, BitSize: 3, BitOffset: 5}, bits)
}

func TestDecodeLists(t *testing.T) {
	args := decode(t, LF_ARGLIST, pdbtest.NewW().U32(2).U32(0x74).U32(0x1001))
	assert.Equal(t, []TypeIndex{0x74, 0x1001}, args.(*ArgumentListRecord).Arguments)

	empty := decode(t, LF_ARGLIST, pdbtest.NewW().U32(0))
	assert.Empty(t, empty.(*ArgumentListRecord).Arguments)

	strs := decode(t, LF_SUBSTR_LIST, pdbtest.NewW().U32(1).U32(0x1007))
	assert.Equal(t, []TypeIndex{0x1007}, strs.(*StringListRecord).Strings)

	_, err := Decode(binread.NewByteReader(pdbtest.NewW().U32(10).U32(0x74).Bytes()), LF_ARGLIST)
	assert.ErrorIs(t, err, pdberr.ErrDecodeMismatch)
}

func TestDecodePointer(t *testing.T) {
	// 64-bit const pointer, size 8.
	attr := uint32(PointerNear64) | uint32(PointerConst) | 8<<13
	rec := decode(t, LF_POINTER, pdbtest.NewW().U32(0x1004).U32(attr))
	p := rec.(*PointerRecord)
	assert.Equal(t, PointerNear64, p.PointerKind())
	assert.Equal(t, PointerModePointer, p.Mode())
	assert.Equal(t, uint8(8), p.Size())
	assert.True(t, p.IsConst())
	assert.False(t, p.IsVolatile())
	assert.False(t, p.IsReference())
	assert.Nil(t, p.MemberInfo)

	ref := decode(t, LF_POINTER, pdbtest.NewW().U32(0x74).U32(uint32(PointerModeRValueReference)<<5))
	assert.True(t, ref.(*PointerRecord).IsReference())

	pmAttr := uint32(PointerModePointerToMemberFunction)<<5 | 8<<13
	pm := decode(t, LF_POINTER, pdbtest.NewW().U32(0x1009).U32(pmAttr).U32(0x1002).U16(3))
	require.NotNil(t, pm.(*PointerRecord).MemberInfo)
	assert.Equal(t, MemberPointerInfo{ContainingType: 0x1002, Representation: 3}, *pm.(*PointerRecord).MemberInfo)
	assert.True(t, pm.(*PointerRecord).IsPointerToMember())
}

func TestDecodeTagRecords(t *testing.T) {
	class := decode(t, LF_STRUCTURE, pdbtest.NewW().
		U16(2).U16(uint16(ClassHasUniqueName)).
		U32(0x1001).U32(0).U32(0).
		Numeric(0x10000).
		CString("Point").CString(".?AUPoint@@"))
	assert.Equal(t, &ClassRecord{
		leaf:        leaf{LF_STRUCTURE},
		MemberCount: 2,
		Options:     ClassHasUniqueName,
		FieldList:   0x1001,
		Size:        0x10000,
		Name:        "Point",
		UniqueName:  ".?AUPoint@@",
	}, class)

	fwd := decode(t, LF_CLASS, pdbtest.NewW().
		U16(0).U16(uint16(ClassForwardReference)).
		U32(0).U32(0).U32(0).Numeric(0).CString("Fwd"))
	assert.True(t, fwd.(*ClassRecord).Options.IsForwardReference())
	assert.Empty(t, fwd.(*ClassRecord).UniqueName)

	iface := decode(t, LF_INTERFACE, pdbtest.NewW().
		U16(0).U16(0).U32(0).U32(0).U32(0).Numeric(8).CString("IFoo"))
	assert.Equal(t, "IFoo", iface.(*ClassRecord).Name)

	union := decode(t, LF_UNION, pdbtest.NewW().
		U16(2).U16(0).U32(0x1003).Numeric(4).CString("U"))
	assert.Equal(t, &UnionRecord{leaf: leaf{LF_UNION}, MemberCount: 2, FieldList: 0x1003, Size: 4, Name: "U"}, union)

	enum := decode(t, LF_ENUM, pdbtest.NewW().
		U16(3).U16(uint16(ClassHasUniqueName)).U32(0x74).U32(0x1002).CString("Color").CString(".?AW4Color@@"))
	assert.Equal(t, &EnumRecord{
		leaf:           leaf{LF_ENUM},
		MemberCount:    3,
		Options:        ClassHasUniqueName,
		UnderlyingType: 0x74,
		FieldList:      0x1002,
		Name:           "Color",
		UniqueName:     ".?AW4Color@@",
	}, enum)

	array := decode(t, LF_ARRAY, pdbtest.NewW().U32(0x74).U32(0x23).Numeric(40).CString(""))
	assert.Equal(t, &ArrayRecord{leaf: leaf{LF_ARRAY}, ElementType: 0x74, IndexType: 0x23, Size: 40}, array)
}

func TestDecodeMethodList(t *testing.T) {
	introVirtual := uint16(AccessPublic) | uint16(MethodIntroducingVirtual)<<2
	rec := decode(t, LF_METHODLIST, pdbtest.NewW().
		U16(uint16(AccessPublic)).U16(0).U32(0x1005).
		U16(introVirtual).U16(0).U32(0x1006).I32(16))
	methods := rec.(*MethodOverloadListRecord).Methods
	require.Len(t, methods, 2)
	assert.Equal(t, TypeIndex(0x1005), methods[0].Type)
	assert.Equal(t, int32(0), methods[0].VFTableOffset)
	assert.Equal(t, TypeIndex(0x1006), methods[1].Type)
	assert.Equal(t, int32(16), methods[1].VFTableOffset)

	_, err := Decode(binread.NewByteReader(pdbtest.NewW().U16(0).U16(0).U16(1).Bytes()), LF_METHODLIST)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecodeVTableShape(t *testing.T) {
	rec := decode(t, LF_VTSHAPE, pdbtest.NewW().U16(3).U8(0x65).U8(0x04))
	assert.Equal(t, []VTableSlotKind{VTableSlotNear, VTableSlotFar, VTableSlotMeta}, rec.(*VTableShapeRecord).Slots)
}

func TestDecodeUnknownKind(t *testing.T) {
	for _, kind := range []LeafKind{LF_FUNC_ID, LF_STRING_ID, LF_BUILDINFO, LF_UDT_SRC_LINE, LeafKind(0x9999)} {
		assert.False(t, CanDecode(kind))
		_, err := Decode(binread.NewByteReader([]byte{0, 0, 0, 0}), kind)
		assert.ErrorIs(t, err, pdberr.ErrUnknownRecordKind, "%s", kind)
	}
	assert.True(t, CanDecode(LF_MODIFIER))
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode(binread.NewByteReader([]byte{1, 2, 3}), LF_POINTER)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = Decode(binread.NewByteReader(pdbtest.NewW().U32(0x74).U32(0).Raw([]byte("noterm")).Bytes()), LF_ARRAY)
	assert.Error(t, err)
}
