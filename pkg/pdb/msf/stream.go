package msf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/jtang613/pdbtpi/pkg/pdb/binread"
)

// ErrPageFault reports a fault while reading the mapped file.
var ErrPageFault = errors.New("msf: page fault reading mapped file")

// Stream represents a single stream within an MSF file.
// Streams are composed of potentially non-contiguous blocks.
type Stream struct {
	msf    *MSF
	size   uint32
	blocks []uint32
}

// Size returns the size of the stream in bytes.
func (s *Stream) Size() uint32 {
	return s.size
}

// Blocks returns the block indices that make up this stream.
func (s *Stream) Blocks() []uint32 {
	return s.blocks
}

// Reader returns a new reader positioned at the start of the stream.
func (s *Stream) Reader() *StreamReader {
	return newStreamReader(s.msf.data, s.msf.superBlock.BlockSize, s.blocks, 0, int64(s.size))
}

// ReadAll reads the entire stream contents into a byte slice.
func (s *Stream) ReadAll() ([]byte, error) {
	return s.Reader().ReadBytes(int(s.size))
}

// StreamReader reads a logical stream whose bytes are scattered over
// fixed-size blocks of the file. It implements binread.Reader; positions are
// relative to the start of the view [base, base+length) of the stream.
type StreamReader struct {
	data      []byte
	blockSize int64
	blocks    []uint32
	base      int64 // offset of this view inside the logical stream
	length    int64
	pos       int64
}

func newStreamReader(data []byte, blockSize uint32, blocks []uint32, base, length int64) *StreamReader {
	return &StreamReader{
		data:      data,
		blockSize: int64(blockSize),
		blocks:    blocks,
		base:      base,
		length:    length,
	}
}

// Position returns the cursor offset within the view.
func (sr *StreamReader) Position() int64 { return sr.pos }

// Len returns the view length.
func (sr *StreamReader) Len() int64 { return sr.length }

// Remaining returns the number of bytes after the cursor.
func (sr *StreamReader) Remaining() int64 { return sr.length - sr.pos }

// SetPosition moves the cursor. pos may equal Len.
func (sr *StreamReader) SetPosition(pos int64) error {
	if pos < 0 || pos > sr.length {
		return fmt.Errorf("stream position %d outside [0, %d]", pos, sr.length)
	}
	sr.pos = pos
	return nil
}

// fileOffset maps a logical stream offset to a file offset and the number
// of contiguous bytes available in that block.
func (sr *StreamReader) fileOffset(logical int64) (int64, int64) {
	blockIdx := logical / sr.blockSize
	inBlock := logical % sr.blockSize
	return int64(sr.blocks[blockIdx])*sr.blockSize + inBlock, sr.blockSize - inBlock
}

// ReadBytes returns a copy of the next n bytes.
func (sr *StreamReader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || int64(n) > sr.Remaining() {
		return nil, fmt.Errorf("read of %d bytes at stream offset %d (length %d): %w", n, sr.pos, sr.length, io.ErrUnexpectedEOF)
	}
	if n == 0 {
		return []byte{}, nil
	}

	out := make([]byte, n)
	if err := sr.copyBlocks(out, sr.base+sr.pos); err != nil {
		return nil, err
	}
	sr.pos += int64(n)
	return out, nil
}

// copyBlocks gathers the stream bytes starting at logical into p, following
// the block list. A page fault on a mapped file, as raised when the file is
// truncated underneath the mapping, is returned as ErrPageFault.
func (sr *StreamReader) copyBlocks(p []byte, logical int64) (err error) {
	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			err = fmt.Errorf("%w at stream offset %d: %v", ErrPageFault, logical, r)
		}
	}()

	copied := 0
	for copied < len(p) {
		off, avail := sr.fileOffset(logical + int64(copied))
		chunk := int64(len(p) - copied)
		if chunk > avail {
			chunk = avail
		}
		if off+chunk > int64(len(sr.data)) {
			return fmt.Errorf("block at file offset %d past end of file: %w", off, io.ErrUnexpectedEOF)
		}
		copy(p[copied:], sr.data[off:off+chunk])
		copied += int(chunk)
	}
	return nil
}

func (sr *StreamReader) ReadU8() (uint8, error) {
	b, err := sr.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (sr *StreamReader) ReadU16() (uint16, error) {
	b, err := sr.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (sr *StreamReader) ReadU32() (uint32, error) {
	b, err := sr.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (sr *StreamReader) ReadU64() (uint64, error) {
	b, err := sr.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (sr *StreamReader) ReadI16() (int16, error) {
	v, err := sr.ReadU16()
	return int16(v), err
}

func (sr *StreamReader) ReadI32() (int32, error) {
	v, err := sr.ReadU32()
	return int32(v), err
}

func (sr *StreamReader) ReadI64() (int64, error) {
	v, err := sr.ReadU64()
	return int64(v), err
}

func (sr *StreamReader) Skip(n int64) error {
	if n < 0 || n > sr.Remaining() {
		return fmt.Errorf("skip of %d bytes at stream offset %d (length %d): %w", n, sr.pos, sr.length, io.ErrUnexpectedEOF)
	}
	sr.pos += n
	return nil
}

// Substream returns a bounded view over the next n bytes and advances past them.
func (sr *StreamReader) Substream(n int64) (binread.Reader, error) {
	if n < 0 || n > sr.Remaining() {
		return nil, fmt.Errorf("substream of %d bytes at stream offset %d (length %d): %w", n, sr.pos, sr.length, io.ErrUnexpectedEOF)
	}
	sub := newStreamReader(sr.data, uint32(sr.blockSize), sr.blocks, sr.base+sr.pos, n)
	sr.pos += n
	return sub, nil
}

func (sr *StreamReader) Duplicate() binread.Reader {
	dup := *sr
	return &dup
}

// Read implements io.Reader.
func (sr *StreamReader) Read(p []byte) (int, error) {
	if sr.Remaining() == 0 {
		return 0, io.EOF
	}
	n := len(p)
	if int64(n) > sr.Remaining() {
		n = int(sr.Remaining())
	}
	b, err := sr.ReadBytes(n)
	if err != nil {
		return 0, err
	}
	return copy(p, b), nil
}

// StreamDirectory represents the directory of all streams in the MSF file.
type StreamDirectory struct {
	NumStreams   uint32
	StreamSizes  []uint32
	StreamBlocks [][]uint32
}
