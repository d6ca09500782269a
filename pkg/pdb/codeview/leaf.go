// Package codeview decodes CodeView type records: leaf kinds, type indexes
// and the closed set of record structures stored in the TPI and IPI streams.
package codeview

import (
	"fmt"
	"sort"
)

// LeafKind is the 16-bit kind code in a record prefix or field list entry.
type LeafKind uint16

// Leaf kinds of top-level type records
const (
	LF_VTSHAPE     LeafKind = 0x000a
	LF_LABEL       LeafKind = 0x000e
	LF_NULL        LeafKind = 0x000f
	LF_ENDPRECOMP  LeafKind = 0x0014
	LF_MODIFIER    LeafKind = 0x1001
	LF_POINTER     LeafKind = 0x1002
	LF_PROCEDURE   LeafKind = 0x1008
	LF_MFUNCTION   LeafKind = 0x1009
	LF_ARGLIST     LeafKind = 0x1201
	LF_FIELDLIST   LeafKind = 0x1203
	LF_DERIVED     LeafKind = 0x1204
	LF_BITFIELD    LeafKind = 0x1205
	LF_METHODLIST  LeafKind = 0x1206
	LF_TYPESERVER  LeafKind = 0x1501
	LF_ARRAY       LeafKind = 0x1503
	LF_CLASS       LeafKind = 0x1504
	LF_STRUCTURE   LeafKind = 0x1505
	LF_UNION       LeafKind = 0x1506
	LF_ENUM        LeafKind = 0x1507
	LF_DIMARRAY    LeafKind = 0x1508
	LF_PRECOMP     LeafKind = 0x1509
	LF_ALIAS       LeafKind = 0x150a
	LF_TYPESERVER2 LeafKind = 0x1515
	LF_INTERFACE   LeafKind = 0x1519
	LF_VFTABLE     LeafKind = 0x151d
)

// Leaf kinds of ID records, stored in the IPI stream
const (
	LF_FUNC_ID          LeafKind = 0x1601
	LF_MFUNC_ID         LeafKind = 0x1602
	LF_BUILDINFO        LeafKind = 0x1603
	LF_SUBSTR_LIST      LeafKind = 0x1604
	LF_STRING_ID        LeafKind = 0x1605
	LF_UDT_SRC_LINE     LeafKind = 0x1606
	LF_UDT_MOD_SRC_LINE LeafKind = 0x1607
)

// Leaf kinds of field list members
const (
	LF_BCLASS     LeafKind = 0x1400
	LF_VBCLASS    LeafKind = 0x1401
	LF_IVBCLASS   LeafKind = 0x1402
	LF_INDEX      LeafKind = 0x1404
	LF_VFUNCTAB   LeafKind = 0x1409
	LF_ENUMERATE  LeafKind = 0x1502
	LF_MEMBER     LeafKind = 0x150d
	LF_STMEMBER   LeafKind = 0x150e
	LF_METHOD     LeafKind = 0x150f
	LF_NESTTYPE   LeafKind = 0x1510
	LF_ONEMETHOD  LeafKind = 0x1511
	LF_BINTERFACE LeafKind = 0x151a
)

// Padding leaves fill records to a 4-byte boundary.
const (
	LF_PAD0  LeafKind = 0xf0
	LF_PAD15 LeafKind = 0xff
)

var leafNames = map[LeafKind]string{
	LF_VTSHAPE:          "LF_VTSHAPE",
	LF_LABEL:            "LF_LABEL",
	LF_NULL:             "LF_NULL",
	LF_ENDPRECOMP:       "LF_ENDPRECOMP",
	LF_MODIFIER:         "LF_MODIFIER",
	LF_POINTER:          "LF_POINTER",
	LF_PROCEDURE:        "LF_PROCEDURE",
	LF_MFUNCTION:        "LF_MFUNCTION",
	LF_ARGLIST:          "LF_ARGLIST",
	LF_FIELDLIST:        "LF_FIELDLIST",
	LF_DERIVED:          "LF_DERIVED",
	LF_BITFIELD:         "LF_BITFIELD",
	LF_METHODLIST:       "LF_METHODLIST",
	LF_TYPESERVER:       "LF_TYPESERVER",
	LF_ARRAY:            "LF_ARRAY",
	LF_CLASS:            "LF_CLASS",
	LF_STRUCTURE:        "LF_STRUCTURE",
	LF_UNION:            "LF_UNION",
	LF_ENUM:             "LF_ENUM",
	LF_DIMARRAY:         "LF_DIMARRAY",
	LF_PRECOMP:          "LF_PRECOMP",
	LF_ALIAS:            "LF_ALIAS",
	LF_TYPESERVER2:      "LF_TYPESERVER2",
	LF_INTERFACE:        "LF_INTERFACE",
	LF_VFTABLE:          "LF_VFTABLE",
	LF_FUNC_ID:          "LF_FUNC_ID",
	LF_MFUNC_ID:         "LF_MFUNC_ID",
	LF_BUILDINFO:        "LF_BUILDINFO",
	LF_SUBSTR_LIST:      "LF_SUBSTR_LIST",
	LF_STRING_ID:        "LF_STRING_ID",
	LF_UDT_SRC_LINE:     "LF_UDT_SRC_LINE",
	LF_UDT_MOD_SRC_LINE: "LF_UDT_MOD_SRC_LINE",
	LF_BCLASS:           "LF_BCLASS",
	LF_VBCLASS:          "LF_VBCLASS",
	LF_IVBCLASS:         "LF_IVBCLASS",
	LF_INDEX:            "LF_INDEX",
	LF_VFUNCTAB:         "LF_VFUNCTAB",
	LF_ENUMERATE:        "LF_ENUMERATE",
	LF_MEMBER:           "LF_MEMBER",
	LF_STMEMBER:         "LF_STMEMBER",
	LF_METHOD:           "LF_METHOD",
	LF_NESTTYPE:         "LF_NESTTYPE",
	LF_ONEMETHOD:        "LF_ONEMETHOD",
	LF_BINTERFACE:       "LF_BINTERFACE",
}

var leafByName = func() map[string]LeafKind {
	m := make(map[string]LeafKind, len(leafNames))
	for k, name := range leafNames {
		m[name] = k
	}
	return m
}()

func (k LeafKind) String() string {
	if name, ok := leafNames[k]; ok {
		return name
	}
	return fmt.Sprintf("LF_0x%04x", uint16(k))
}

// MarshalText renders the kind by name.
func (k LeafKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsPadding reports whether k is one of the LF_PAD0..LF_PAD15 bytes.
func (k LeafKind) IsPadding() bool {
	return k >= LF_PAD0 && k <= LF_PAD15
}

// ParseLeafKind looks up a kind by its LF_ name.
func ParseLeafKind(name string) (LeafKind, bool) {
	k, ok := leafByName[name]
	return k, ok
}

// LeafKindNames returns every known LF_ name in sorted order.
func LeafKindNames() []string {
	names := make([]string, 0, len(leafByName))
	for name := range leafByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
