package pdbtest

// TPI stream constants.
const (
	TPIVersionV80     = 20040203
	TPIHeaderSize     = 56
	NoHashStream      = 0xFFFF
	FirstNonSimple    = 0x1000
	DefaultHashBucket = 0x3FFFF
)

// Buffer is an (offset, length) descriptor inside the hash stream.
type Buffer struct {
	Offset int32
	Length uint32
}

// TPI builds a TPI stream.
type TPI struct {
	Version          uint32
	HeaderSize       uint32
	TypeIndexBegin   uint32
	HashStreamIndex  uint16
	HashAuxIndex     uint16
	HashKeySize      uint32
	HashBucketsCount uint32
	HashValues       Buffer
	IndexOffsets     Buffer
	HashAdjusters    Buffer

	// TypeIndexEnd overrides the computed end when non-zero.
	TypeIndexEnd uint32

	records [][]byte
}

// NewTPI returns a builder with a valid V80 header and no hash stream.
func NewTPI() *TPI {
	return &TPI{
		Version:          TPIVersionV80,
		HeaderSize:       TPIHeaderSize,
		TypeIndexBegin:   FirstNonSimple,
		HashStreamIndex:  NoHashStream,
		HashAuxIndex:     NoHashStream,
		HashKeySize:      4,
		HashBucketsCount: DefaultHashBucket,
	}
}

// Add appends a record whose prefix length covers the kind and payload.
func (t *TPI) Add(kind uint16, payload []byte) *TPI {
	return t.AddRaw(uint16(len(payload)+2), kind, payload)
}

// AddRaw appends a record with an explicit prefix length.
func (t *TPI) AddRaw(length, kind uint16, payload []byte) *TPI {
	t.records = append(t.records, NewW().U16(length).U16(kind).Raw(payload).Bytes())
	return t
}

// Count returns the number of records added.
func (t *TPI) Count() int { return len(t.records) }

// RecordBytes returns the concatenated record sub-stream.
func (t *TPI) RecordBytes() []byte {
	w := NewW()
	for _, r := range t.records {
		w.Raw(r)
	}
	return w.Bytes()
}

// Bytes returns the full stream: header followed by the records.
func (t *TPI) Bytes() []byte {
	records := t.RecordBytes()
	end := t.TypeIndexEnd
	if end == 0 {
		end = t.TypeIndexBegin + uint32(len(t.records))
	}
	return NewW().
		U32(t.Version).
		U32(t.HeaderSize).
		U32(t.TypeIndexBegin).
		U32(end).
		U32(uint32(len(records))).
		U16(t.HashStreamIndex).
		U16(t.HashAuxIndex).
		U32(t.HashKeySize).
		U32(t.HashBucketsCount).
		I32(t.HashValues.Offset).U32(t.HashValues.Length).
		I32(t.IndexOffsets.Offset).U32(t.IndexOffsets.Length).
		I32(t.HashAdjusters.Offset).U32(t.HashAdjusters.Length).
		Raw(records).
		Bytes()
}

// HashTable encodes a PDB hash table with the given capacity. Entries are
// placed in buckets key%capacity with linear probing.
func HashTable(capacity uint32, entries [][2]uint32) []byte {
	buckets := make([]*[2]uint32, capacity)
	for i := range entries {
		e := entries[i]
		slot := e[0] % capacity
		for buckets[slot] != nil {
			slot = (slot + 1) % capacity
		}
		buckets[slot] = &e
	}

	words := (capacity + 31) / 32
	present := make([]uint32, words)
	for i, b := range buckets {
		if b != nil {
			present[i/32] |= 1 << (uint32(i) % 32)
		}
	}

	w := NewW().U32(uint32(len(entries))).U32(capacity)
	w.U32(words)
	for _, p := range present {
		w.U32(p)
	}
	w.U32(0) // deleted bit vector
	for _, b := range buckets {
		if b != nil {
			w.U32(b[0]).U32(b[1])
		}
	}
	return w.Bytes()
}
