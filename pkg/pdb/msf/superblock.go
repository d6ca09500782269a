// Package msf implements parsing for Microsoft's Multi-Stream Format (MSF) container.
package msf

import (
	"bytes"
	"fmt"

	"github.com/jtang613/pdbtpi/pkg/pdb/binread"
	"github.com/jtang613/pdbtpi/pkg/pdb/pdberr"
)

// MSF 7.00 magic signature
var MSFMagic = []byte("Microsoft C/C++ MSF 7.00\r\n\x1aDS\x00\x00\x00")

// SuperBlock validation failures.
var (
	ErrBadMagic           = pdberr.New(pdberr.ErrFormat, "MSF magic header doesn't match")
	ErrBadBlockSize       = pdberr.New(pdberr.ErrFormat, "unsupported block size")
	ErrDirectorySize      = pdberr.New(pdberr.ErrFormat, "directory size is not a multiple of 4")
	ErrTooManyDirBlocks   = pdberr.New(pdberr.ErrFormat, "too many directory blocks")
	ErrReservedBlockMap   = pdberr.New(pdberr.ErrFormat, "block map address is reserved block 0")
	ErrBlockMapOutOfRange = pdberr.New(pdberr.ErrFormat, "block map address is past the last block")
	ErrBadFreeBlockMap    = pdberr.New(pdberr.ErrFormat, "free block map is not at block 1 or block 2")
)

// SuperBlock is the header structure at the beginning of an MSF file.
// It contains metadata needed to navigate the file's stream structure.
type SuperBlock struct {
	Magic             [32]byte // Must be MSFMagic
	BlockSize         uint32   // Block size in bytes (512, 1024, 2048, or 4096)
	FreeBlockMapBlock uint32   // Index of active FPM block (1 or 2)
	NumBlocks         uint32   // Total number of blocks in file
	NumDirectoryBytes uint32   // Size of stream directory in bytes
	Unknown           uint32   // Reserved/unknown field
	BlockMapAddr      uint32   // Block index containing the stream directory block map
}

// SuperBlockSize is the size of the SuperBlock structure in bytes.
const SuperBlockSize = 56

// ValidBlockSizes are the allowed block sizes for MSF files.
var ValidBlockSizes = []uint32{512, 1024, 2048, 4096}

// ReadSuperBlock decodes the SuperBlock fields in file order. It does not
// validate them; call Validate.
func ReadSuperBlock(r binread.Reader) (*SuperBlock, error) {
	var sb SuperBlock

	magic, err := r.ReadBytes(len(sb.Magic))
	if err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", err)
	}
	copy(sb.Magic[:], magic)

	fields := []*uint32{
		&sb.BlockSize,
		&sb.FreeBlockMapBlock,
		&sb.NumBlocks,
		&sb.NumDirectoryBytes,
		&sb.Unknown,
		&sb.BlockMapAddr,
	}
	for _, f := range fields {
		if *f, err = r.ReadU32(); err != nil {
			return nil, fmt.Errorf("failed to read superblock: %w", err)
		}
	}

	return &sb, nil
}

// Validate checks every structural invariant of the SuperBlock and returns
// the named error for the first one that is broken.
func (sb *SuperBlock) Validate() error {
	if !bytes.Equal(sb.Magic[:], MSFMagic) {
		return ErrBadMagic
	}

	if !isValidBlockSize(sb.BlockSize) {
		return fmt.Errorf("%w: %d", ErrBadBlockSize, sb.BlockSize)
	}

	if sb.NumDirectoryBytes%4 != 0 {
		return fmt.Errorf("%w: %d", ErrDirectorySize, sb.NumDirectoryBytes)
	}

	// The block map is a single block of 4-byte block numbers.
	if sb.NumDirectoryBlocks() > sb.BlockSize/4 {
		return fmt.Errorf("%w: %d", ErrTooManyDirBlocks, sb.NumDirectoryBlocks())
	}

	if sb.BlockMapAddr == 0 {
		return ErrReservedBlockMap
	}

	if sb.BlockMapAddr >= sb.NumBlocks {
		return fmt.Errorf("%w: %d >= %d", ErrBlockMapOutOfRange, sb.BlockMapAddr, sb.NumBlocks)
	}

	if sb.FreeBlockMapBlock != 1 && sb.FreeBlockMapBlock != 2 {
		return fmt.Errorf("%w: %d", ErrBadFreeBlockMap, sb.FreeBlockMapBlock)
	}

	return nil
}

// NumDirectoryBlocks returns the number of blocks needed to store the stream directory.
func (sb *SuperBlock) NumDirectoryBlocks() uint32 {
	return sb.BytesToBlocks(sb.NumDirectoryBytes)
}

// BlockMapOffset returns the file offset of the directory block map.
func (sb *SuperBlock) BlockMapOffset() uint64 {
	return sb.BlocksToBytes(sb.BlockMapAddr)
}

// BytesToBlocks returns the number of blocks required to store n bytes.
func (sb *SuperBlock) BytesToBlocks(n uint32) uint32 {
	return uint32((uint64(n) + uint64(sb.BlockSize) - 1) / uint64(sb.BlockSize))
}

// BlocksToBytes returns the number of bytes held by n blocks.
func (sb *SuperBlock) BlocksToBytes(n uint32) uint64 {
	return uint64(n) * uint64(sb.BlockSize)
}

// FileSize returns the expected file size based on block count.
func (sb *SuperBlock) FileSize() int64 {
	return int64(sb.BlocksToBytes(sb.NumBlocks))
}

func isValidBlockSize(size uint32) bool {
	for _, valid := range ValidBlockSizes {
		if size == valid {
			return true
		}
	}
	return false
}
