package binread

import (
	"fmt"
	"strconv"
)

// Numeric leaf prefixes used by CodeView encoded integers.
const (
	leafNumeric   = 0x8000
	leafChar      = 0x8000
	leafShort     = 0x8001
	leafUShort    = 0x8002
	leafLong      = 0x8003
	leafULong     = 0x8004
	leafQuadWord  = 0x8009
	leafUQuadWord = 0x800a
)

// Numeric is a CodeView variable-length integer. Values below 0x8000 are
// stored inline; larger values are introduced by a numeric leaf that names
// the width and signedness of the payload.
type Numeric struct {
	Value  uint64 // two's complement bits when Signed is set
	Signed bool
}

// Int64 returns the value as a signed integer.
func (n Numeric) Int64() int64 { return int64(n.Value) }

// Uint64 returns the value as an unsigned integer.
func (n Numeric) Uint64() uint64 { return n.Value }

func (n Numeric) String() string {
	if n.Signed {
		return strconv.FormatInt(int64(n.Value), 10)
	}
	return strconv.FormatUint(n.Value, 10)
}

// ErrUnsupportedNumeric is returned for numeric leaves that do not encode
// an integer (reals, complex, strings).
type ErrUnsupportedNumeric uint16

func (e ErrUnsupportedNumeric) Error() string {
	return fmt.Sprintf("unsupported numeric leaf 0x%04x", uint16(e))
}

// ReadEncodedInteger reads a CodeView encoded integer.
func ReadEncodedInteger(r Reader) (Numeric, error) {
	leaf, err := r.ReadU16()
	if err != nil {
		return Numeric{}, err
	}
	if leaf < leafNumeric {
		return Numeric{Value: uint64(leaf)}, nil
	}

	switch leaf {
	case leafChar:
		v, err := r.ReadU8()
		return Numeric{Value: uint64(int64(int8(v))), Signed: true}, err
	case leafShort:
		v, err := r.ReadI16()
		return Numeric{Value: uint64(int64(v)), Signed: true}, err
	case leafUShort:
		v, err := r.ReadU16()
		return Numeric{Value: uint64(v)}, err
	case leafLong:
		v, err := r.ReadI32()
		return Numeric{Value: uint64(int64(v)), Signed: true}, err
	case leafULong:
		v, err := r.ReadU32()
		return Numeric{Value: uint64(v)}, err
	case leafQuadWord:
		v, err := r.ReadI64()
		return Numeric{Value: uint64(v), Signed: true}, err
	case leafUQuadWord:
		v, err := r.ReadU64()
		return Numeric{Value: v}, err
	}
	return Numeric{}, ErrUnsupportedNumeric(leaf)
}
