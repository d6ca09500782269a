package codeview

import "strings"

// MemberAccess is the access level in bits 0-1 of MemberAttributes.
type MemberAccess uint16

const (
	AccessNone MemberAccess = iota
	AccessPrivate
	AccessProtected
	AccessPublic
)

func (a MemberAccess) String() string {
	switch a {
	case AccessPrivate:
		return "private"
	case AccessProtected:
		return "protected"
	case AccessPublic:
		return "public"
	default:
		return "none"
	}
}

// MethodKind is stored in bits 2-4 of MemberAttributes.
type MethodKind uint16

const (
	MethodVanilla MethodKind = iota
	MethodVirtual
	MethodStatic
	MethodFriend
	MethodIntroducingVirtual
	MethodPureVirtual
	MethodPureIntroducingVirtual
)

// MemberAttributes is the 16-bit attribute word of members and methods.
type MemberAttributes uint16

const (
	memberAccessMask = 0x0003
	methodKindMask   = 0x001c
	methodKindShift  = 2
)

func (a MemberAttributes) Access() MemberAccess { return MemberAccess(a & memberAccessMask) }

func (a MemberAttributes) MethodKind() MethodKind {
	return MethodKind((a & methodKindMask) >> methodKindShift)
}

// IsIntroducedVirtual reports whether the method starts a new vtable slot;
// such methods carry a vtable offset.
func (a MemberAttributes) IsIntroducedVirtual() bool {
	k := a.MethodKind()
	return k == MethodIntroducingVirtual || k == MethodPureIntroducingVirtual
}

func (a MemberAttributes) IsVirtual() bool {
	k := a.MethodKind()
	return k == MethodVirtual || k == MethodPureVirtual || a.IsIntroducedVirtual()
}

func (a MemberAttributes) IsStatic() bool { return a.MethodKind() == MethodStatic }

// ClassOptions are the property flags of class, struct, union and enum
// records.
type ClassOptions uint16

const (
	ClassPacked             ClassOptions = 0x0001
	ClassHasConstructor     ClassOptions = 0x0002
	ClassHasOverloadedOps   ClassOptions = 0x0004
	ClassNested             ClassOptions = 0x0008
	ClassContainsNested     ClassOptions = 0x0010
	ClassHasOverloadedAssgn ClassOptions = 0x0020
	ClassHasConversionOp    ClassOptions = 0x0040
	ClassForwardReference   ClassOptions = 0x0080
	ClassScoped             ClassOptions = 0x0100
	ClassHasUniqueName      ClassOptions = 0x0200
	ClassSealed             ClassOptions = 0x0400
	ClassIntrinsic          ClassOptions = 0x2000
)

func (o ClassOptions) HasUniqueName() bool { return o&ClassHasUniqueName != 0 }

func (o ClassOptions) IsForwardReference() bool { return o&ClassForwardReference != 0 }

func (o ClassOptions) IsNested() bool { return o&ClassNested != 0 }

// ModifierOptions are the cv-qualifiers of an LF_MODIFIER record.
type ModifierOptions uint16

const (
	ModifierConst     ModifierOptions = 0x0001
	ModifierVolatile  ModifierOptions = 0x0002
	ModifierUnaligned ModifierOptions = 0x0004
)

// Qualifiers renders the set flags as a C qualifier prefix, e.g.
// "const volatile".
func (o ModifierOptions) Qualifiers() string {
	var q []string
	if o&ModifierConst != 0 {
		q = append(q, "const")
	}
	if o&ModifierVolatile != 0 {
		q = append(q, "volatile")
	}
	if o&ModifierUnaligned != 0 {
		q = append(q, "__unaligned")
	}
	return strings.Join(q, " ")
}

// PointerKind is bits 0-4 of the pointer attribute word.
type PointerKind uint8

const (
	PointerNear16                PointerKind = 0x00
	PointerFar16                 PointerKind = 0x01
	PointerHuge16                PointerKind = 0x02
	PointerBasedOnSegment        PointerKind = 0x03
	PointerBasedOnValue          PointerKind = 0x04
	PointerBasedOnSegmentValue   PointerKind = 0x05
	PointerBasedOnAddress        PointerKind = 0x06
	PointerBasedOnSegmentAddress PointerKind = 0x07
	PointerBasedOnType           PointerKind = 0x08
	PointerBasedOnSelf           PointerKind = 0x09
	PointerNear32                PointerKind = 0x0a
	PointerFar32                 PointerKind = 0x0b
	PointerNear64                PointerKind = 0x0c
)

// PointerMode is bits 5-7 of the pointer attribute word.
type PointerMode uint8

const (
	PointerModePointer                 PointerMode = 0x00
	PointerModeLValueReference         PointerMode = 0x01
	PointerModePointerToDataMember     PointerMode = 0x02
	PointerModePointerToMemberFunction PointerMode = 0x03
	PointerModeRValueReference         PointerMode = 0x04
)

// PointerOptions are the flag bits 8-15 of the pointer attribute word.
type PointerOptions uint32

const (
	PointerFlat32    PointerOptions = 0x00000100
	PointerVolatile  PointerOptions = 0x00000200
	PointerConst     PointerOptions = 0x00000400
	PointerUnaligned PointerOptions = 0x00000800
	PointerRestrict  PointerOptions = 0x00001000
)

// CallingConvention of procedure and member function records.
type CallingConvention uint8

const (
	CallNearC      CallingConvention = 0x00
	CallFarC       CallingConvention = 0x01
	CallNearPascal CallingConvention = 0x02
	CallFarPascal  CallingConvention = 0x03
	CallNearFast   CallingConvention = 0x04
	CallFarFast    CallingConvention = 0x05
	CallNearStd    CallingConvention = 0x07
	CallFarStd     CallingConvention = 0x08
	CallNearSys    CallingConvention = 0x09
	CallFarSys     CallingConvention = 0x0a
	CallThis       CallingConvention = 0x0b
	CallMips       CallingConvention = 0x0c
	CallGeneric    CallingConvention = 0x0d
	CallAlpha      CallingConvention = 0x0e
	CallPpc        CallingConvention = 0x0f
	CallSH         CallingConvention = 0x10
	CallArm        CallingConvention = 0x11
	CallAM33       CallingConvention = 0x12
	CallTri        CallingConvention = 0x13
	CallSH5        CallingConvention = 0x14
	CallM32R       CallingConvention = 0x15
	CallClr        CallingConvention = 0x16
	CallInline     CallingConvention = 0x17
	CallNearVector CallingConvention = 0x18
)

var callingConventionNames = map[CallingConvention]string{
	CallNearC:      "__cdecl",
	CallFarC:       "__cdecl",
	CallNearPascal: "__pascal",
	CallFarPascal:  "__pascal",
	CallNearFast:   "__fastcall",
	CallFarFast:    "__fastcall",
	CallNearStd:    "__stdcall",
	CallFarStd:     "__stdcall",
	CallNearSys:    "__syscall",
	CallFarSys:     "__syscall",
	CallThis:       "__thiscall",
	CallClr:        "__clrcall",
	CallNearVector: "__vectorcall",
}

// Keyword returns the MSVC keyword for the convention, or "" if none applies.
func (c CallingConvention) Keyword() string {
	return callingConventionNames[c]
}

// FunctionOptions are the flags of procedure and member function records.
type FunctionOptions uint8

const (
	FunctionCxxReturnUdt           FunctionOptions = 0x01
	FunctionConstructor            FunctionOptions = 0x02
	FunctionConstructorWithVirtual FunctionOptions = 0x04
)
