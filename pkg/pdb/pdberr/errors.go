// Package pdberr defines the error categories shared by the PDB decoders.
//
// Decoding failures wrap exactly one of the category sentinels below, so
// callers can branch with errors.Is without knowing the specific check that
// failed. Specific checks are exported sentinel values in the package that
// performs them (msf, streams, codeview), each wrapping its category. Lookup
// errors such as an out-of-range type index are plain errors.
package pdberr

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat reports a magic, version or bounds mismatch in a fixed
	// header. It is raised at open time and is never retried.
	ErrFormat = errors.New("pdb: format violation")

	// ErrCorruptRecord reports a sizing inconsistency found while scanning
	// the record stream. No part of the catalog is usable afterwards.
	ErrCorruptRecord = errors.New("pdb: corrupt record")

	// ErrUnknownRecordKind reports a record kind with no decoder. It only
	// affects the record being decoded.
	ErrUnknownRecordKind = errors.New("pdb: unknown record kind")

	// ErrDecodeMismatch reports a decoder that consumed a different number of
	// bytes than the record declared.
	ErrDecodeMismatch = errors.New("pdb: decode mismatch")
)

// New returns a named error that wraps the given category.
func New(category error, msg string) error {
	return fmt.Errorf("%w: %s", category, msg)
}

// RecordError describes a failure to decode one record of a catalog.
type RecordError struct {
	Index  uint32 // numeric type index of the record
	Offset int64  // data offset inside the record sub-stream
	Kind   uint16 // leaf kind from the record prefix
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record 0x%x (kind 0x%04x at offset %d): %v", e.Index, e.Kind, e.Offset, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
