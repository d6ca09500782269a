package streams

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/jtang613/pdbtpi/pkg/pdb/binread"
	"github.com/jtang613/pdbtpi/pkg/pdb/codeview"
	"github.com/jtang613/pdbtpi/pkg/pdb/pdberr"
)

// Hash table validation failures.
var (
	ErrHashTableCapacity  = pdberr.New(pdberr.ErrFormat, "invalid hash table capacity")
	ErrHashTableSize      = pdberr.New(pdberr.ErrFormat, "invalid hash table size")
	ErrHashTablePresent   = pdberr.New(pdberr.ErrFormat, "present bit vector does not match size")
	ErrHashTableDeleted   = pdberr.New(pdberr.ErrFormat, "present bit vector intersects deleted")
	ErrHashTableBucketMap = pdberr.New(pdberr.ErrFormat, "present bucket past capacity")
)

// HashEntry is one occupied bucket.
type HashEntry struct {
	Key   uint32
	Value uint32
}

// HashTable is the serialized open-addressing table used by PDB streams for
// string-keyed and hash-keyed maps.
type HashTable struct {
	Size     uint32
	Capacity uint32
	// Entries holds the present buckets in bucket order.
	Entries []HashEntry
}

// ReadHashTable decodes and validates a hash table.
func ReadHashTable(r binread.Reader) (*HashTable, error) {
	size, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("failed to read hash table size: %w", err)
	}
	capacity, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("failed to read hash table capacity: %w", err)
	}
	if capacity == 0 {
		return nil, ErrHashTableCapacity
	}
	if size > maxLoad(capacity) {
		return nil, fmt.Errorf("%w: %d entries, capacity %d", ErrHashTableSize, size, capacity)
	}

	present, err := readBitVector(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read present bit vector: %w", err)
	}
	if n := countBits(present); n != int(size) {
		return nil, fmt.Errorf("%w: %d bits, size %d", ErrHashTablePresent, n, size)
	}

	deleted, err := readBitVector(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read deleted bit vector: %w", err)
	}
	if bitsIntersect(present, deleted) {
		return nil, ErrHashTableDeleted
	}

	t := &HashTable{Size: size, Capacity: capacity, Entries: make([]HashEntry, 0, size)}
	for word, w := range present {
		for bit := 0; bit < 32; bit++ {
			if w&(1<<bit) == 0 {
				continue
			}
			if bucket := uint32(word*32 + bit); bucket >= capacity {
				return nil, fmt.Errorf("%w: bucket %d, capacity %d", ErrHashTableBucketMap, bucket, capacity)
			}
			var e HashEntry
			if e.Key, err = r.ReadU32(); err != nil {
				return nil, err
			}
			if e.Value, err = r.ReadU32(); err != nil {
				return nil, err
			}
			t.Entries = append(t.Entries, e)
		}
	}
	return t, nil
}

// Map returns the entries as a key to value map. Later buckets win on
// duplicate keys.
func (t *HashTable) Map() map[uint32]uint32 {
	m := make(map[uint32]uint32, len(t.Entries))
	for _, e := range t.Entries {
		m[e.Key] = e.Value
	}
	return m
}

func maxLoad(capacity uint32) uint32 {
	return uint32(uint64(capacity)*2/3 + 1)
}

func readBitVector(r binread.Reader) ([]uint32, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int64(n)*4 > r.Remaining() {
		return nil, fmt.Errorf("bit vector of %d words exceeds %d remaining bytes", n, r.Remaining())
	}
	return binread.ReadU32Array(r, int(n))
}

func countBits(words []uint32) int {
	n := 0
	for _, w := range words {
		n += bits.OnesCount32(w)
	}
	return n
}

func bitsIntersect(a, b []uint32) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i]&b[i] != 0 {
			return true
		}
	}
	return false
}

// HashAdjusters maps a record content hash to the canonical type indexes
// chosen for it. Records sharing a hash form a chain in bucket order.
type HashAdjusters struct {
	byHash map[uint32][]codeview.TypeIndex
	count  int
}

// NewHashAdjusters builds the multi-map from a decoded hash table.
func NewHashAdjusters(t *HashTable) *HashAdjusters {
	h := &HashAdjusters{byHash: make(map[uint32][]codeview.TypeIndex, len(t.Entries))}
	for _, e := range t.Entries {
		h.byHash[e.Key] = append(h.byHash[e.Key], codeview.TypeIndex(e.Value))
	}
	h.count = len(t.Entries)
	return h
}

// Lookup returns the type indexes recorded for hash, or nil.
func (h *HashAdjusters) Lookup(hash uint32) []codeview.TypeIndex {
	return h.byHash[hash]
}

// Len is the number of (hash, index) pairs.
func (h *HashAdjusters) Len() int {
	return h.count
}

// Hashes returns the distinct hashes in ascending order.
func (h *HashAdjusters) Hashes() []uint32 {
	out := make([]uint32, 0, len(h.byHash))
	for k := range h.byHash {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
