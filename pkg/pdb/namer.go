package pdb

import (
	"fmt"
	"strings"

	"github.com/jtang613/pdbtpi/pkg/pdb/codeview"
	"github.com/jtang613/pdbtpi/pkg/pdb/streams"
)

// maxNameDepth bounds how many records a single name may walk through.
const maxNameDepth = 32

// TypeNamer renders type indexes as C-like type names.
type TypeNamer struct {
	tpi *streams.TPIStream
}

// NewTypeNamer creates a namer over a type catalog. tpi may be nil, in which
// case only simple types get real names.
func NewTypeNamer(tpi *streams.TPIStream) *TypeNamer {
	return &TypeNamer{tpi: tpi}
}

// Name resolves a type index to a human-readable string. Records that cannot
// be decoded are named type_0x<index>.
func (n *TypeNamer) Name(ti codeview.TypeIndex) string {
	return n.name(ti, 0)
}

func (n *TypeNamer) name(ti codeview.TypeIndex, depth int) string {
	if ti.IsSimple() {
		return ti.SimpleTypeName()
	}
	if n.tpi == nil || depth >= maxNameDepth {
		return placeholder(ti)
	}
	rec, err := n.tpi.Get(ti)
	if err != nil {
		return placeholder(ti)
	}

	depth++
	switch r := rec.(type) {
	case *codeview.ClassRecord:
		return r.Name
	case *codeview.UnionRecord:
		return r.Name
	case *codeview.EnumRecord:
		return r.Name
	case *codeview.ModifierRecord:
		base := n.name(r.ModifiedType, depth)
		if q := r.Modifiers.Qualifiers(); q != "" {
			return q + " " + base
		}
		return base
	case *codeview.PointerRecord:
		return n.pointer(r, depth)
	case *codeview.ArrayRecord:
		return n.array(r, depth)
	case *codeview.ProcedureRecord:
		return n.function(r.ReturnType, r.CallingConvention, "", r.ArgumentList, depth)
	case *codeview.MemberFunctionRecord:
		return n.function(r.ReturnType, r.CallingConvention, n.name(r.ClassType, depth)+"::", r.ArgumentList, depth)
	case *codeview.ArgumentListRecord:
		return n.arguments(r.Arguments, depth)
	case *codeview.BitFieldRecord:
		return fmt.Sprintf("%s : %d", n.name(r.Type, depth), r.BitSize)
	}
	return placeholder(ti)
}

func placeholder(ti codeview.TypeIndex) string {
	return fmt.Sprintf("type_0x%x", uint32(ti))
}

func (n *TypeNamer) pointer(p *codeview.PointerRecord, depth int) string {
	base := n.name(p.ReferentType, depth)

	var suffix string
	switch p.Mode() {
	case codeview.PointerModeLValueReference:
		suffix = "&"
	case codeview.PointerModeRValueReference:
		suffix = "&&"
	case codeview.PointerModePointerToDataMember, codeview.PointerModePointerToMemberFunction:
		class := "?"
		if p.MemberInfo != nil {
			class = n.name(p.MemberInfo.ContainingType, depth)
		}
		suffix = " " + class + "::*"
	default:
		suffix = "*"
	}

	result := base + suffix
	if p.IsConst() {
		result += " const"
	}
	if p.IsVolatile() {
		result += " volatile"
	}
	return result
}

func (n *TypeNamer) array(a *codeview.ArrayRecord, depth int) string {
	elem := n.name(a.ElementType, depth)
	if size := n.size(a.ElementType, depth); size > 0 && a.Size%size == 0 {
		return fmt.Sprintf("%s[%d]", elem, a.Size/size)
	}
	return elem + "[]"
}

func (n *TypeNamer) function(ret codeview.TypeIndex, cc codeview.CallingConvention, scope string, args codeview.TypeIndex, depth int) string {
	var sb strings.Builder
	sb.WriteString(n.name(ret, depth))
	sb.WriteByte(' ')
	if kw := cc.Keyword(); kw != "" {
		sb.WriteString(kw)
		sb.WriteByte(' ')
	}
	sb.WriteString(scope)
	sb.WriteByte('(')
	sb.WriteString(n.name(args, depth))
	sb.WriteByte(')')
	return sb.String()
}

func (n *TypeNamer) arguments(args []codeview.TypeIndex, depth int) string {
	if len(args) == 0 {
		return "void"
	}
	names := make([]string, len(args))
	for i, a := range args {
		names[i] = n.name(a, depth)
	}
	return strings.Join(names, ", ")
}

// size returns the byte size of a type, or 0 if it cannot be determined.
func (n *TypeNamer) size(ti codeview.TypeIndex, depth int) uint64 {
	if ti.IsSimple() {
		return simpleSize(ti)
	}
	if n.tpi == nil || depth >= maxNameDepth {
		return 0
	}
	rec, err := n.tpi.Get(ti)
	if err != nil {
		return 0
	}
	depth++
	switch r := rec.(type) {
	case *codeview.ClassRecord:
		return r.Size
	case *codeview.UnionRecord:
		return r.Size
	case *codeview.ArrayRecord:
		return r.Size
	case *codeview.PointerRecord:
		return uint64(r.Size())
	case *codeview.EnumRecord:
		return n.size(r.UnderlyingType, depth)
	case *codeview.ModifierRecord:
		return n.size(r.ModifiedType, depth)
	}
	return 0
}

func simpleSize(ti codeview.TypeIndex) uint64 {
	switch ti.SimpleMode() {
	case codeview.ModeDirect:
	case codeview.ModeNearPointer:
		return 2
	case codeview.ModeFarPointer, codeview.ModeHugePointer, codeview.ModeNearPointer32, codeview.ModeFarPointer32:
		return 4
	case codeview.ModeNearPointer64:
		return 8
	case codeview.ModeNearPointer128:
		return 16
	default:
		return 0
	}

	switch ti.SimpleKind() {
	case codeview.SimpleSignedCharacter, codeview.SimpleUnsignedCharacter, codeview.SimpleNarrowCharacter,
		codeview.SimpleSByte, codeview.SimpleByte, codeview.SimpleBoolean8:
		return 1
	case codeview.SimpleWideCharacter, codeview.SimpleCharacter16, codeview.SimpleInt16Short,
		codeview.SimpleUInt16Short, codeview.SimpleInt16, codeview.SimpleUInt16,
		codeview.SimpleFloat16, codeview.SimpleBoolean16:
		return 2
	case codeview.SimpleCharacter32, codeview.SimpleInt32Long, codeview.SimpleUInt32Long,
		codeview.SimpleInt32, codeview.SimpleUInt32, codeview.SimpleFloat32,
		codeview.SimpleFloat32PartialPrecision, codeview.SimpleBoolean32, codeview.SimpleHResult:
		return 4
	case codeview.SimpleFloat48:
		return 6
	case codeview.SimpleInt64Quad, codeview.SimpleUInt64Quad, codeview.SimpleInt64,
		codeview.SimpleUInt64, codeview.SimpleFloat64, codeview.SimpleBoolean64:
		return 8
	case codeview.SimpleFloat80:
		return 10
	case codeview.SimpleInt128Oct, codeview.SimpleUInt128Oct, codeview.SimpleInt128,
		codeview.SimpleUInt128, codeview.SimpleFloat128, codeview.SimpleBoolean128:
		return 16
	}
	return 0
}
