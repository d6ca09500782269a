package codeview

import "github.com/jtang613/pdbtpi/pkg/pdb/binread"

// Record is a decoded type record. The set of implementations is closed;
// records refer to other records only by TypeIndex.
type Record interface {
	Kind() LeafKind
	isRecord()
}

// leaf carries the kind of every record.
type leaf struct {
	Leaf LeafKind `json:"kind" yaml:"kind" cbor:"kind"`
}

func (l leaf) Kind() LeafKind { return l.Leaf }

func (leaf) isRecord() {}

// ModifierRecord (LF_MODIFIER) adds cv-qualifiers to a type.
type ModifierRecord struct {
	leaf         `yaml:",inline"`
	ModifiedType TypeIndex
	Modifiers    ModifierOptions
}

// ProcedureRecord (LF_PROCEDURE) is a free function signature.
type ProcedureRecord struct {
	leaf              `yaml:",inline"`
	ReturnType        TypeIndex
	CallingConvention CallingConvention
	Options           FunctionOptions
	ParameterCount    uint16
	ArgumentList      TypeIndex
}

// MemberFunctionRecord (LF_MFUNCTION) is a member function signature.
type MemberFunctionRecord struct {
	leaf                  `yaml:",inline"`
	ReturnType            TypeIndex
	ClassType             TypeIndex
	ThisType              TypeIndex
	CallingConvention     CallingConvention
	Options               FunctionOptions
	ParameterCount        uint16
	ArgumentList          TypeIndex
	ThisPointerAdjustment int32
}

// LabelRecord (LF_LABEL) marks a code label; Mode is 0 for near, 4 for far.
type LabelRecord struct {
	leaf `yaml:",inline"`
	Mode uint16
}

// MemberFunctionIdRecord (LF_MFUNC_ID) names a member function.
type MemberFunctionIdRecord struct {
	leaf         `yaml:",inline"`
	ClassType    TypeIndex
	FunctionType TypeIndex
	Name         string
}

// ArgumentListRecord (LF_ARGLIST) lists parameter types.
type ArgumentListRecord struct {
	leaf      `yaml:",inline"`
	Arguments []TypeIndex
}

// StringListRecord (LF_SUBSTR_LIST) lists string ID indexes.
type StringListRecord struct {
	leaf    `yaml:",inline"`
	Strings []TypeIndex
}

// MemberPointerInfo follows a pointer-to-member's attribute word.
type MemberPointerInfo struct {
	ContainingType TypeIndex
	Representation uint16
}

// PointerRecord (LF_POINTER) describes pointers and references.
type PointerRecord struct {
	leaf         `yaml:",inline"`
	ReferentType TypeIndex
	Attributes   uint32
	MemberInfo   *MemberPointerInfo `json:",omitempty" yaml:",omitempty" cbor:",omitempty"`
}

const (
	pointerKindMask    = 0x1f
	pointerModeShift   = 5
	pointerModeMask    = 0x07
	pointerOptionsMask = 0xff00
	pointerSizeShift   = 13
	pointerSizeMask    = 0xff
)

func (p *PointerRecord) PointerKind() PointerKind { return PointerKind(p.Attributes & pointerKindMask) }

func (p *PointerRecord) Mode() PointerMode {
	return PointerMode((p.Attributes >> pointerModeShift) & pointerModeMask)
}

func (p *PointerRecord) Options() PointerOptions {
	return PointerOptions(p.Attributes & pointerOptionsMask)
}

// Size is the pointer width in bytes.
func (p *PointerRecord) Size() uint8 {
	return uint8((p.Attributes >> pointerSizeShift) & pointerSizeMask)
}

func (p *PointerRecord) IsPointerToMember() bool {
	m := p.Mode()
	return m == PointerModePointerToDataMember || m == PointerModePointerToMemberFunction
}

func (p *PointerRecord) IsReference() bool {
	m := p.Mode()
	return m == PointerModeLValueReference || m == PointerModeRValueReference
}

func (p *PointerRecord) IsConst() bool { return p.Options()&PointerConst != 0 }

func (p *PointerRecord) IsVolatile() bool { return p.Options()&PointerVolatile != 0 }

// NestedTypeRecord (LF_NESTTYPE) declares a nested type name.
type NestedTypeRecord struct {
	leaf `yaml:",inline"`
	Type TypeIndex
	Name string
}

// FieldListRecord (LF_FIELDLIST) holds the members of a class, union or enum.
type FieldListRecord struct {
	leaf   `yaml:",inline"`
	Fields []Record
}

// EnumRecord (LF_ENUM).
type EnumRecord struct {
	leaf           `yaml:",inline"`
	MemberCount    uint16
	Options        ClassOptions
	UnderlyingType TypeIndex
	FieldList      TypeIndex
	Name           string
	UniqueName     string `json:",omitempty" yaml:",omitempty" cbor:",omitempty"`
}

// ClassRecord is shared by LF_CLASS, LF_STRUCTURE and LF_INTERFACE.
type ClassRecord struct {
	leaf           `yaml:",inline"`
	MemberCount    uint16
	Options        ClassOptions
	FieldList      TypeIndex
	DerivationList TypeIndex
	VTableShape    TypeIndex
	Size           uint64
	Name           string
	UniqueName     string `json:",omitempty" yaml:",omitempty" cbor:",omitempty"`
}

// UnionRecord (LF_UNION).
type UnionRecord struct {
	leaf        `yaml:",inline"`
	MemberCount uint16
	Options     ClassOptions
	FieldList   TypeIndex
	Size        uint64
	Name        string
	UniqueName  string `json:",omitempty" yaml:",omitempty" cbor:",omitempty"`
}

// ArrayRecord (LF_ARRAY). Size is the total size in bytes.
type ArrayRecord struct {
	leaf        `yaml:",inline"`
	ElementType TypeIndex
	IndexType   TypeIndex
	Size        uint64
	Name        string
}

// BitFieldRecord (LF_BITFIELD).
type BitFieldRecord struct {
	leaf      `yaml:",inline"`
	Type      TypeIndex
	BitSize   uint8
	BitOffset uint8
}

// MethodOverloadListRecord (LF_METHODLIST) lists the overloads referenced by
// an LF_METHOD member. Entries have no names.
type MethodOverloadListRecord struct {
	leaf    `yaml:",inline"`
	Methods []OneMethodRecord
}

// VTableSlotKind is a 4-bit vtable shape descriptor.
type VTableSlotKind uint8

const (
	VTableSlotNear16 VTableSlotKind = iota
	VTableSlotFar16
	VTableSlotThin
	VTableSlotOuter
	VTableSlotMeta
	VTableSlotNear
	VTableSlotFar
)

// VTableShapeRecord (LF_VTSHAPE).
type VTableShapeRecord struct {
	leaf  `yaml:",inline"`
	Slots []VTableSlotKind
}

// Field list members.

// EnumeratorRecord (LF_ENUMERATE) is one enumerator constant.
type EnumeratorRecord struct {
	leaf       `yaml:",inline"`
	Attributes MemberAttributes
	Value      binread.Numeric
	Name       string
}

// DataMemberRecord (LF_MEMBER) is a non-static data member.
type DataMemberRecord struct {
	leaf       `yaml:",inline"`
	Attributes MemberAttributes
	Type       TypeIndex
	Offset     uint64
	Name       string
}

// StaticDataMemberRecord (LF_STMEMBER).
type StaticDataMemberRecord struct {
	leaf       `yaml:",inline"`
	Attributes MemberAttributes
	Type       TypeIndex
	Name       string
}

// OneMethodRecord (LF_ONEMETHOD) is a method without overloads. It is also
// the entry type of MethodOverloadListRecord.
type OneMethodRecord struct {
	leaf          `yaml:",inline"`
	Attributes    MemberAttributes
	Type          TypeIndex
	VFTableOffset int32
	Name          string `json:",omitempty" yaml:",omitempty" cbor:",omitempty"`
}

// OverloadedMethodRecord (LF_METHOD) names a set of overloads.
type OverloadedMethodRecord struct {
	leaf        `yaml:",inline"`
	MethodCount uint16
	MethodList  TypeIndex
	Name        string
}

// BaseClassRecord (LF_BCLASS, LF_BINTERFACE).
type BaseClassRecord struct {
	leaf       `yaml:",inline"`
	Attributes MemberAttributes
	Type       TypeIndex
	Offset     uint64
}

// VirtualBaseClassRecord (LF_VBCLASS, LF_IVBCLASS).
type VirtualBaseClassRecord struct {
	leaf                     `yaml:",inline"`
	Attributes               MemberAttributes
	BaseType                 TypeIndex
	VirtualBasePointerType   TypeIndex
	VirtualBasePointerOffset uint64
	VirtualTableIndex        uint64
}

// VirtualFunctionPointerRecord (LF_VFUNCTAB).
type VirtualFunctionPointerRecord struct {
	leaf `yaml:",inline"`
	Type TypeIndex
}

// ListContinuationRecord (LF_INDEX) continues a field list in another
// LF_FIELDLIST record.
type ListContinuationRecord struct {
	leaf              `yaml:",inline"`
	ContinuationIndex TypeIndex
}
