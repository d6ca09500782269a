// Package pdb provides high-level access to Microsoft PDB debug files.
package pdb

import "github.com/jtang613/pdbtpi/pkg/pdb/codeview"

// Summary contains basic PDB file information.
type Summary struct {
	GUID         string            `json:"guid,omitempty" yaml:"guid,omitempty" cbor:"guid,omitempty"`
	Age          uint32            `json:"age" yaml:"age" cbor:"age"`
	Signature    uint32            `json:"signature" yaml:"signature" cbor:"signature"`
	Version      uint32            `json:"version" yaml:"version" cbor:"version"`
	Machine      string            `json:"machine,omitempty" yaml:"machine,omitempty" cbor:"machine,omitempty"`
	BlockSize    uint32            `json:"block_size" yaml:"block_size" cbor:"block_size"`
	Blocks       uint32            `json:"blocks" yaml:"blocks" cbor:"blocks"`
	Streams      int               `json:"streams" yaml:"streams" cbor:"streams"`
	NamedStreams map[string]uint32 `json:"named_streams,omitempty" yaml:"named_streams,omitempty" cbor:"named_streams,omitempty"`
	TPI          *CatalogSummary   `json:"tpi,omitempty" yaml:"tpi,omitempty" cbor:"tpi,omitempty"`
	IPI          *CatalogSummary   `json:"ipi,omitempty" yaml:"ipi,omitempty" cbor:"ipi,omitempty"`
}

// CatalogSummary describes a TPI or IPI stream.
type CatalogSummary struct {
	Version        uint32         `json:"version" yaml:"version" cbor:"version"`
	TypeIndexBegin uint32         `json:"type_index_begin" yaml:"type_index_begin" cbor:"type_index_begin"`
	TypeIndexEnd   uint32         `json:"type_index_end" yaml:"type_index_end" cbor:"type_index_end"`
	Records        int            `json:"records" yaml:"records" cbor:"records"`
	RecordBytes    uint32         `json:"record_bytes" yaml:"record_bytes" cbor:"record_bytes"`
	HashStream     bool           `json:"hash_stream" yaml:"hash_stream" cbor:"hash_stream"`
	Kinds          map[string]int `json:"kinds" yaml:"kinds" cbor:"kinds"`
}

// TypeInfo represents a decoded type record.
type TypeInfo struct {
	Index     uint32          `json:"index" yaml:"index" cbor:"index"`
	Kind      string          `json:"kind" yaml:"kind" cbor:"kind"`
	Name      string          `json:"name,omitempty" yaml:"name,omitempty" cbor:"name,omitempty"`
	Size      uint64          `json:"size,omitempty" yaml:"size,omitempty" cbor:"size,omitempty"`
	Signature string          `json:"signature" yaml:"signature" cbor:"signature"`
	Members   []Member        `json:"members,omitempty" yaml:"members,omitempty" cbor:"members,omitempty"`
	Record    codeview.Record `json:"record,omitempty" yaml:"record,omitempty" cbor:"record,omitempty"`
}

// Member represents a field list entry of a class, union or enum.
type Member struct {
	Kind     string `json:"kind" yaml:"kind" cbor:"kind"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty" cbor:"name,omitempty"`
	TypeName string `json:"type_name,omitempty" yaml:"type_name,omitempty" cbor:"type_name,omitempty"`
	Offset   uint64 `json:"offset,omitempty" yaml:"offset,omitempty" cbor:"offset,omitempty"`
	Value    string `json:"value,omitempty" yaml:"value,omitempty" cbor:"value,omitempty"`
	Access   string `json:"access,omitempty" yaml:"access,omitempty" cbor:"access,omitempty"`
}
