package codeview

import (
	"fmt"

	"github.com/jtang613/pdbtpi/pkg/pdb/binread"
)

// TypeIndex identifies a type. Values below FirstNonSimpleIndex name
// built-in types; the rest index the catalog.
type TypeIndex uint32

const (
	// FirstNonSimpleIndex is the first index that refers to a catalog record.
	FirstNonSimpleIndex TypeIndex = 0x1000

	SimpleKindMask = 0x000000ff
	SimpleModeMask = 0x00000700
)

// SimpleTypeKind is the low byte of a simple type index.
type SimpleTypeKind uint32

const (
	SimpleNone                    SimpleTypeKind = 0x0000
	SimpleVoid                    SimpleTypeKind = 0x0003
	SimpleNotTranslated           SimpleTypeKind = 0x0007
	SimpleHResult                 SimpleTypeKind = 0x0008
	SimpleSignedCharacter         SimpleTypeKind = 0x0010
	SimpleUnsignedCharacter       SimpleTypeKind = 0x0020
	SimpleNarrowCharacter         SimpleTypeKind = 0x0070
	SimpleWideCharacter           SimpleTypeKind = 0x0071
	SimpleCharacter16             SimpleTypeKind = 0x007a
	SimpleCharacter32             SimpleTypeKind = 0x007b
	SimpleSByte                   SimpleTypeKind = 0x0068
	SimpleByte                    SimpleTypeKind = 0x0069
	SimpleInt16Short              SimpleTypeKind = 0x0011
	SimpleUInt16Short             SimpleTypeKind = 0x0021
	SimpleInt16                   SimpleTypeKind = 0x0072
	SimpleUInt16                  SimpleTypeKind = 0x0073
	SimpleInt32Long               SimpleTypeKind = 0x0012
	SimpleUInt32Long              SimpleTypeKind = 0x0022
	SimpleInt32                   SimpleTypeKind = 0x0074
	SimpleUInt32                  SimpleTypeKind = 0x0075
	SimpleInt64Quad               SimpleTypeKind = 0x0013
	SimpleUInt64Quad              SimpleTypeKind = 0x0023
	SimpleInt64                   SimpleTypeKind = 0x0076
	SimpleUInt64                  SimpleTypeKind = 0x0077
	SimpleInt128Oct               SimpleTypeKind = 0x0014
	SimpleUInt128Oct              SimpleTypeKind = 0x0024
	SimpleInt128                  SimpleTypeKind = 0x0078
	SimpleUInt128                 SimpleTypeKind = 0x0079
	SimpleFloat16                 SimpleTypeKind = 0x0046
	SimpleFloat32                 SimpleTypeKind = 0x0040
	SimpleFloat32PartialPrecision SimpleTypeKind = 0x0045
	SimpleFloat48                 SimpleTypeKind = 0x0044
	SimpleFloat64                 SimpleTypeKind = 0x0041
	SimpleFloat80                 SimpleTypeKind = 0x0042
	SimpleFloat128                SimpleTypeKind = 0x0043
	SimpleComplex16               SimpleTypeKind = 0x0056
	SimpleComplex32               SimpleTypeKind = 0x0050
	SimpleComplex32Partial        SimpleTypeKind = 0x0055
	SimpleComplex48               SimpleTypeKind = 0x0054
	SimpleComplex64               SimpleTypeKind = 0x0051
	SimpleComplex80               SimpleTypeKind = 0x0052
	SimpleComplex128              SimpleTypeKind = 0x0053
	SimpleBoolean8                SimpleTypeKind = 0x0030
	SimpleBoolean16               SimpleTypeKind = 0x0031
	SimpleBoolean32               SimpleTypeKind = 0x0032
	SimpleBoolean64               SimpleTypeKind = 0x0033
	SimpleBoolean128              SimpleTypeKind = 0x0034
)

// SimpleTypeMode is the pointer mode encoded in bits 8-10 of a simple index.
type SimpleTypeMode uint32

const (
	ModeDirect         SimpleTypeMode = 0x000
	ModeNearPointer    SimpleTypeMode = 0x100
	ModeFarPointer     SimpleTypeMode = 0x200
	ModeHugePointer    SimpleTypeMode = 0x300
	ModeNearPointer32  SimpleTypeMode = 0x400
	ModeFarPointer32   SimpleTypeMode = 0x500
	ModeNearPointer64  SimpleTypeMode = 0x600
	ModeNearPointer128 SimpleTypeMode = 0x700
)

var simpleModeNames = map[SimpleTypeMode]string{
	ModeDirect:         "Direct",
	ModeNearPointer:    "NearPointer",
	ModeFarPointer:     "FarPointer",
	ModeHugePointer:    "HugePointer",
	ModeNearPointer32:  "NearPointer32",
	ModeFarPointer32:   "FarPointer32",
	ModeNearPointer64:  "NearPointer64",
	ModeNearPointer128: "NearPointer128",
}

func (m SimpleTypeMode) String() string {
	if name, ok := simpleModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode_0x%x", uint32(m))
}

var simpleTypeNames = map[SimpleTypeKind]string{
	SimpleVoid:                    "void",
	SimpleNotTranslated:           "<not translated>",
	SimpleHResult:                 "HRESULT",
	SimpleSignedCharacter:         "signed char",
	SimpleUnsignedCharacter:       "unsigned char",
	SimpleNarrowCharacter:         "char",
	SimpleWideCharacter:           "wchar_t",
	SimpleCharacter16:             "char16_t",
	SimpleCharacter32:             "char32_t",
	SimpleSByte:                   "__int8",
	SimpleByte:                    "unsigned __int8",
	SimpleInt16Short:              "short",
	SimpleUInt16Short:             "unsigned short",
	SimpleInt16:                   "__int16",
	SimpleUInt16:                  "unsigned __int16",
	SimpleInt32Long:               "long",
	SimpleUInt32Long:              "unsigned long",
	SimpleInt32:                   "int",
	SimpleUInt32:                  "unsigned",
	SimpleInt64Quad:               "__int64",
	SimpleUInt64Quad:              "unsigned __int64",
	SimpleInt64:                   "__int64",
	SimpleUInt64:                  "unsigned __int64",
	SimpleInt128:                  "__int128",
	SimpleUInt128:                 "unsigned __int128",
	SimpleFloat16:                 "__half",
	SimpleFloat32:                 "float",
	SimpleFloat32PartialPrecision: "float",
	SimpleFloat48:                 "__float48",
	SimpleFloat64:                 "double",
	SimpleFloat80:                 "long double",
	SimpleFloat128:                "__float128",
	SimpleComplex32:               "_Complex float",
	SimpleComplex64:               "_Complex double",
	SimpleComplex80:               "_Complex long double",
	SimpleComplex128:              "_Complex __float128",
	SimpleBoolean8:                "bool",
	SimpleBoolean16:               "__bool16",
	SimpleBoolean32:               "__bool32",
	SimpleBoolean64:               "__bool64",
}

// NewSimpleTypeIndex combines a simple kind and mode.
func NewSimpleTypeIndex(kind SimpleTypeKind, mode SimpleTypeMode) TypeIndex {
	return TypeIndex(uint32(kind) | uint32(mode))
}

// FromArrayIndex returns the type index for a zero-based array index in a
// catalog that begins at FirstNonSimpleIndex. Use TPIStream.IndexAt for a
// catalog with another begin.
func FromArrayIndex(i int) TypeIndex {
	return FirstNonSimpleIndex + TypeIndex(i)
}

// ReadTypeIndex reads a 32-bit type index.
func ReadTypeIndex(r binread.Reader) (TypeIndex, error) {
	v, err := r.ReadU32()
	return TypeIndex(v), err
}

// IsSimple reports whether ti names a built-in type.
func (ti TypeIndex) IsSimple() bool { return ti < FirstNonSimpleIndex }

// IsNone reports whether ti is the "no type" index.
func (ti TypeIndex) IsNone() bool { return ti == 0 }

// ArrayIndex is the zero-based position of a non-simple index, relative to
// FirstNonSimpleIndex.
func (ti TypeIndex) ArrayIndex() uint32 { return uint32(ti - FirstNonSimpleIndex) }

func (ti TypeIndex) SimpleKind() SimpleTypeKind { return SimpleTypeKind(ti & SimpleKindMask) }

func (ti TypeIndex) SimpleMode() SimpleTypeMode { return SimpleTypeMode(ti & SimpleModeMask) }

// SimpleTypeName returns the C spelling of a built-in type. Pointer modes
// append "*".
func (ti TypeIndex) SimpleTypeName() string {
	if ti.IsNone() {
		return "<no type>"
	}
	name, ok := simpleTypeNames[ti.SimpleKind()]
	if !ok {
		return "<unknown simple type>"
	}
	if ti.SimpleMode() != ModeDirect {
		return name + "*"
	}
	return name
}

func (ti TypeIndex) String() string {
	if ti.IsSimple() {
		return fmt.Sprintf("%s (0x%x | %s)", ti.SimpleTypeName(), uint32(ti.SimpleKind()), ti.SimpleMode())
	}
	return fmt.Sprintf("%d (0x%X)", ti.ArrayIndex(), uint32(ti))
}
