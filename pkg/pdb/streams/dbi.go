package streams

import (
	"fmt"

	"github.com/jtang613/pdbtpi/pkg/pdb/binread"
	"github.com/jtang613/pdbtpi/pkg/pdb/pdberr"
)

// DBI Stream versions
const (
	DBIStreamVersionVC41 = 930803
	DBIStreamVersionV50  = 19960307
	DBIStreamVersionV60  = 19970606
	DBIStreamVersionV70  = 19990903
	DBIStreamVersionV110 = 20091201
)

// Machine types
const (
	MachineUnknown = 0x0000
	MachineI386    = 0x014c
	MachineIA64    = 0x0200
	MachineAMD64   = 0x8664
	MachineARM     = 0x01c0
	MachineARM64   = 0xAA64
)

// DBIHeaderSize is the on-disk size of DBIHeader.
const DBIHeaderSize = 64

// ErrDBISignature is returned when the DBI header does not start with -1.
var ErrDBISignature = pdberr.New(pdberr.ErrFormat, "invalid DBI version signature")

// DBIHeader is the fixed header of the DBI stream. Only the header is
// decoded; the module and symbol substreams that follow it are not.
type DBIHeader struct {
	VersionSignature        int32  // Always -1
	VersionHeader           uint32 // DBI version
	Age                     uint32 // PDB age
	GlobalStreamIndex       uint16 // Global symbols stream index
	BuildNumber             uint16 // Toolchain version
	PublicStreamIndex       uint16 // Public symbols stream index
	PdbDllVersion           uint16
	SymRecordStream         uint16 // Symbol record stream index
	PdbDllRbld              uint16
	ModInfoSize             int32 // Size of module info substream
	SectionContributionSize int32 // Size of section contribution substream
	SectionMapSize          int32 // Size of section map substream
	SourceInfoSize          int32 // Size of source info substream
	TypeServerMapSize       int32 // Size of type server map substream
	MFCTypeServerIndex      uint32
	OptionalDbgHeaderSize   int32 // Size of optional debug header
	ECSubstreamSize         int32 // Size of EC substream
	Flags                   uint16
	Machine                 uint16 // CPU type
	Padding                 uint32
}

// ReadDBIHeader parses the DBI stream header.
func ReadDBIHeader(r binread.Reader) (*DBIHeader, error) {
	if r.Remaining() < DBIHeaderSize {
		return nil, fmt.Errorf("DBI stream too small: %d bytes", r.Remaining())
	}

	var h DBIHeader
	var err error

	u32 := func(dst *uint32) {
		if err == nil {
			*dst, err = r.ReadU32()
		}
	}
	i32 := func(dst *int32) {
		if err == nil {
			*dst, err = r.ReadI32()
		}
	}
	u16 := func(dst *uint16) {
		if err == nil {
			*dst, err = r.ReadU16()
		}
	}

	i32(&h.VersionSignature)
	u32(&h.VersionHeader)
	u32(&h.Age)
	u16(&h.GlobalStreamIndex)
	u16(&h.BuildNumber)
	u16(&h.PublicStreamIndex)
	u16(&h.PdbDllVersion)
	u16(&h.SymRecordStream)
	u16(&h.PdbDllRbld)
	i32(&h.ModInfoSize)
	i32(&h.SectionContributionSize)
	i32(&h.SectionMapSize)
	i32(&h.SourceInfoSize)
	i32(&h.TypeServerMapSize)
	u32(&h.MFCTypeServerIndex)
	i32(&h.OptionalDbgHeaderSize)
	i32(&h.ECSubstreamSize)
	u16(&h.Flags)
	u16(&h.Machine)
	u32(&h.Padding)

	if err != nil {
		return nil, fmt.Errorf("failed to read DBI header: %w", err)
	}
	if h.VersionSignature != -1 {
		return nil, fmt.Errorf("%w: %d", ErrDBISignature, h.VersionSignature)
	}
	return &h, nil
}

// MachineName returns the human-readable name of the target machine.
func (h *DBIHeader) MachineName() string {
	return MachineTypeName(h.Machine)
}

// MachineTypeName returns the human-readable name for a machine type.
func MachineTypeName(machine uint16) string {
	switch machine {
	case MachineI386:
		return "x86"
	case MachineAMD64:
		return "x64"
	case MachineARM:
		return "ARM"
	case MachineARM64:
		return "ARM64"
	case MachineIA64:
		return "IA64"
	default:
		return fmt.Sprintf("0x%04x", machine)
	}
}
