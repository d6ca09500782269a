package pdbtest

import (
	"encoding/binary"
)

// Magic is the MSF 7.00 signature.
var Magic = []byte("Microsoft C/C++ MSF 7.00\r\n\x1aDS\x00\x00\x00")

// SuperBlock holds raw SuperBlock fields so tests can break any of them.
type SuperBlock struct {
	Magic             []byte
	BlockSize         uint32
	FreeBlockMapBlock uint32
	NumBlocks         uint32
	NumDirectoryBytes uint32
	Unknown           uint32
	BlockMapAddr      uint32
}

// ValidSuperBlock returns a SuperBlock that passes validation.
func ValidSuperBlock() SuperBlock {
	return SuperBlock{
		Magic:             Magic,
		BlockSize:         4096,
		FreeBlockMapBlock: 1,
		NumBlocks:         8,
		NumDirectoryBytes: 16,
		BlockMapAddr:      3,
	}
}

// Encode returns the 56-byte on-disk form.
func (sb SuperBlock) Encode() []byte {
	magic := make([]byte, 32)
	copy(magic, sb.Magic)
	return NewW().
		Raw(magic).
		U32(sb.BlockSize).
		U32(sb.FreeBlockMapBlock).
		U32(sb.NumBlocks).
		U32(sb.NumDirectoryBytes).
		U32(sb.Unknown).
		U32(sb.BlockMapAddr).
		Bytes()
}

// MSF lays out streams in a synthetic MSF image. A nil stream is written as
// deleted (size 0xFFFFFFFF); an empty non-nil stream has size zero.
type MSF struct {
	BlockSize uint32
	Streams   [][]byte
}

// Layout of the fixed blocks written by Build.
const (
	superBlockBlock = 0
	fpmBlock        = 1
	blockMapBlock   = 3
	firstDataBlock  = 4
)

// Build returns the image bytes. Multi-block streams get their blocks in
// descending order so that readers must follow the block list. One extra
// trailing block is left unused and marked free in the free page map.
func (m MSF) Build() []byte {
	bs := m.BlockSize
	if bs == 0 {
		bs = 512
	}

	next := uint32(firstDataBlock)
	blockLists := make([][]uint32, len(m.Streams))
	for i, s := range m.Streams {
		if s == nil {
			continue
		}
		n := (uint32(len(s)) + bs - 1) / bs
		blocks := make([]uint32, n)
		for j := range blocks {
			blocks[j] = next + n - 1 - uint32(j)
		}
		next += n
		blockLists[i] = blocks
	}

	dir := NewW().U32(uint32(len(m.Streams)))
	for _, s := range m.Streams {
		if s == nil {
			dir.U32(0xFFFFFFFF)
			continue
		}
		dir.U32(uint32(len(s)))
	}
	for _, blocks := range blockLists {
		for _, b := range blocks {
			dir.U32(b)
		}
	}
	dirBytes := dir.Bytes()

	numDirBlocks := (uint32(len(dirBytes)) + bs - 1) / bs
	dirBlocks := make([]uint32, numDirBlocks)
	for i := range dirBlocks {
		dirBlocks[i] = next
		next++
	}

	freeBlock := next
	numBlocks := next + 1
	image := make([]byte, int(numBlocks)*int(bs))

	sb := SuperBlock{
		Magic:             Magic,
		BlockSize:         bs,
		FreeBlockMapBlock: fpmBlock,
		NumBlocks:         numBlocks,
		NumDirectoryBytes: uint32(len(dirBytes)),
		BlockMapAddr:      blockMapBlock,
	}
	copy(image[superBlockBlock*bs:], sb.Encode())

	image[fpmBlock*bs+freeBlock/8] |= 1 << (freeBlock % 8)

	for i, b := range dirBlocks {
		binary.LittleEndian.PutUint32(image[blockMapBlock*bs+uint32(i)*4:], b)
	}

	writeBlocks(image, bs, dirBlocks, dirBytes)
	for i, s := range m.Streams {
		writeBlocks(image, bs, blockLists[i], s)
	}
	return image
}

func writeBlocks(image []byte, bs uint32, blocks []uint32, data []byte) {
	for i, b := range blocks {
		start := uint32(i) * bs
		end := start + bs
		if end > uint32(len(data)) {
			end = uint32(len(data))
		}
		copy(image[b*bs:], data[start:end])
	}
}
