// Package streams provides parsers for the various PDB streams.
package streams

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/jtang613/pdbtpi/pkg/pdb/binread"
)

// PDB Stream versions
const (
	PDBStreamVersionVC2     = 19941610
	PDBStreamVersionVC4     = 19950623
	PDBStreamVersionVC41    = 19950814
	PDBStreamVersionVC50    = 19960307
	PDBStreamVersionVC98    = 19970604
	PDBStreamVersionVC70Dep = 19990604
	PDBStreamVersionVC70    = 20000404
	PDBStreamVersionVC80    = 20030901
	PDBStreamVersionVC110   = 20091201
	PDBStreamVersionVC140   = 20140508
)

// PDBInfo represents the PDB Info Stream (Stream 1).
type PDBInfo struct {
	Version      uint32
	Signature    uint32            // Timestamp of PDB creation
	Age          uint32            // Number of times PDB has been written
	GUID         [16]byte          // Unique identifier
	NamedStreams map[string]uint32 // Map of named streams to stream indices
}

// ReadPDBInfo parses the PDB info stream.
func ReadPDBInfo(r binread.Reader) (*PDBInfo, error) {
	info := &PDBInfo{NamedStreams: make(map[string]uint32)}

	var err error
	if info.Version, err = r.ReadU32(); err != nil {
		return nil, fmt.Errorf("failed to read PDB info header: %w", err)
	}
	if info.Signature, err = r.ReadU32(); err != nil {
		return nil, fmt.Errorf("failed to read PDB info header: %w", err)
	}
	if info.Age, err = r.ReadU32(); err != nil {
		return nil, fmt.Errorf("failed to read PDB info header: %w", err)
	}
	guid, err := r.ReadBytes(len(info.GUID))
	if err != nil {
		return nil, fmt.Errorf("failed to read PDB info header: %w", err)
	}
	copy(info.GUID[:], guid)

	// Named streams might not be present in older PDBs
	if r.Remaining() == 0 {
		return info, nil
	}

	// Format: StringTableSize + StringTable + HashTable
	strBufSize, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("failed to read named stream buffer size: %w", err)
	}
	strBuf, err := r.Substream(int64(strBufSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read named stream buffer: %w", err)
	}

	table, err := ReadHashTable(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read named stream map: %w", err)
	}
	for _, e := range table.Entries {
		if err := strBuf.SetPosition(int64(e.Key)); err != nil {
			return nil, fmt.Errorf("named stream %d: %w", e.Value, err)
		}
		name, err := binread.ReadCString(strBuf)
		if err != nil {
			return nil, fmt.Errorf("named stream %d: %w", e.Value, err)
		}
		info.NamedStreams[name] = e.Value
	}

	return info, nil
}

// StreamNames returns the named stream names in sorted order.
func (p *PDBInfo) StreamNames() []string {
	names := make([]string, 0, len(p.NamedStreams))
	for name := range p.NamedStreams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GUIDString returns the GUID as a formatted string.
func (p *PDBInfo) GUIDString() string {
	return fmt.Sprintf("%08X%04X%04X%02X%02X%02X%02X%02X%02X%02X%02X",
		binary.LittleEndian.Uint32(p.GUID[0:4]),
		binary.LittleEndian.Uint16(p.GUID[4:6]),
		binary.LittleEndian.Uint16(p.GUID[6:8]),
		p.GUID[8], p.GUID[9], p.GUID[10], p.GUID[11],
		p.GUID[12], p.GUID[13], p.GUID[14], p.GUID[15])
}
