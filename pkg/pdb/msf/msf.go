package msf

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jtang613/pdbtpi/pkg/pdb/binread"
	"github.com/jtang613/pdbtpi/pkg/pdb/pdberr"
)

// Container-level validation failures.
var (
	ErrFileSize          = pdberr.New(pdberr.ErrFormat, "file size is not a multiple of block size")
	ErrStreamBlockMap    = pdberr.New(pdberr.ErrFormat, "stream block map is corrupt")
	ErrDirectoryLeftover = pdberr.New(pdberr.ErrFormat, "stream directory was not fully consumed")
)

// deletedStreamSize marks an unused/deleted stream in the directory.
const deletedStreamSize = 0xFFFFFFFF

// MSF represents an opened MSF (Multi-Stream Format) file. The backing
// bytes are never modified, so readers over them may be used from several
// goroutines as long as each goroutine owns its reader.
type MSF struct {
	data       []byte
	release    func() error
	superBlock *SuperBlock
	directory  *StreamDirectory
	streams    []*Stream
	freePages  []byte
	log        zerolog.Logger
}

// Option configures how an MSF file is opened.
type Option func(*MSF)

// WithLogger sets the logger used while parsing the container.
func WithLogger(log zerolog.Logger) Option {
	return func(m *MSF) {
		m.log = log
	}
}

// Open maps an MSF file read-only and parses its structure.
func Open(path string, opts ...Option) (*MSF, error) {
	data, release, err := mapFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	m, err := newMSF(data, release, opts)
	if err != nil {
		release()
		return nil, err
	}
	return m, nil
}

// FromBytes parses an MSF image held in memory. data must not be modified
// while the MSF is in use.
func FromBytes(data []byte, opts ...Option) (*MSF, error) {
	return newMSF(data, nil, opts)
}

func newMSF(data []byte, release func() error, opts []Option) (*MSF, error) {
	m := &MSF{
		data:    data,
		release: release,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	sb, err := ReadSuperBlock(binread.NewByteReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read superblock: %w", err)
	}
	if err := sb.Validate(); err != nil {
		return nil, fmt.Errorf("invalid superblock: %w", err)
	}
	m.superBlock = sb

	if uint64(len(data))%uint64(sb.BlockSize) != 0 {
		return nil, fmt.Errorf("%w: %d bytes, block size %d", ErrFileSize, len(data), sb.BlockSize)
	}

	if err := m.readFreePageMap(); err != nil {
		return nil, fmt.Errorf("failed to read free page map: %w", err)
	}

	if err := m.readStreamDirectory(); err != nil {
		return nil, fmt.Errorf("failed to read stream directory: %w", err)
	}

	m.buildStreams()

	m.log.Debug().
		Uint32("block_size", sb.BlockSize).
		Uint32("blocks", sb.NumBlocks).
		Int("streams", len(m.streams)).
		Msg("opened MSF container")

	return m, nil
}

// Close releases the file mapping, if any.
func (m *MSF) Close() error {
	if m.release == nil {
		return nil
	}
	release := m.release
	m.release = nil
	return release()
}

// SuperBlock returns the MSF SuperBlock.
func (m *MSF) SuperBlock() *SuperBlock {
	return m.superBlock
}

// NumStreams returns the number of streams in the file.
func (m *MSF) NumStreams() int {
	return len(m.streams)
}

// Stream returns the stream at the given index.
func (m *MSF) Stream(index int) (*Stream, error) {
	if index < 0 || index >= len(m.streams) {
		return nil, fmt.Errorf("stream index %d out of range [0, %d)", index, len(m.streams))
	}
	return m.streams[index], nil
}

// StreamReader returns a reader for the stream at the given index.
func (m *MSF) StreamReader(index int) (binread.Reader, error) {
	s, err := m.Stream(index)
	if err != nil {
		return nil, err
	}
	return s.Reader(), nil
}

// BlockSize returns the block size used by this MSF file.
func (m *MSF) BlockSize() uint32 {
	return m.superBlock.BlockSize
}

// FreePageMap returns the raw free page map, one bit per block.
func (m *MSF) FreePageMap() []byte {
	return m.freePages
}

// IsBlockFree reports whether the free page map marks block i as free.
func (m *MSF) IsBlockFree(i uint32) bool {
	if i >= m.superBlock.NumBlocks || int(i/8) >= len(m.freePages) {
		return false
	}
	return m.freePages[i/8]&(1<<(i%8)) != 0
}

// readFreePageMap gathers the free page map. The FPM repeats every
// BlockSize blocks at {1,2} + BlockSize*k, one bit per block.
func (m *MSF) readFreePageMap() error {
	sb := m.superBlock
	bitsPerBlock := uint64(sb.BlockSize) * 8
	intervals := (uint64(sb.NumBlocks) + bitsPerBlock - 1) / bitsPerBlock

	blocks := make([]uint32, intervals)
	current := uint64(sb.FreeBlockMapBlock)
	for i := range blocks {
		if current >= uint64(sb.NumBlocks) {
			return fmt.Errorf("%w: free page map block %d past block count %d", ErrStreamBlockMap, current, sb.NumBlocks)
		}
		blocks[i] = uint32(current)
		current += uint64(sb.BlockSize)
	}

	length := (int64(sb.NumBlocks) + 7) / 8
	r := newStreamReader(m.data, sb.BlockSize, blocks, 0, length)
	fpm, err := r.ReadBytes(int(length))
	if err != nil {
		return err
	}
	m.freePages = fpm
	return nil
}

// readStreamDirectory reads and parses the stream directory.
func (m *MSF) readStreamDirectory() error {
	sb := m.superBlock

	// Read the block map (list of blocks containing the stream directory)
	r := binread.NewByteReader(m.data)
	if err := r.SetPosition(int64(sb.BlockMapOffset())); err != nil {
		return fmt.Errorf("failed to seek to block map: %w", err)
	}
	blockMap, err := binread.ReadU32Array(r, int(sb.NumDirectoryBlocks()))
	if err != nil {
		return fmt.Errorf("failed to read block map: %w", err)
	}
	if err := m.checkBlocks(blockMap); err != nil {
		return err
	}

	dir := newStreamReader(m.data, sb.BlockSize, blockMap, 0, int64(sb.NumDirectoryBytes))
	if err := m.parseStreamDirectory(dir); err != nil {
		return err
	}

	if dir.Position() != int64(sb.NumDirectoryBytes) {
		return fmt.Errorf("%w: read %d of %d bytes", ErrDirectoryLeftover, dir.Position(), sb.NumDirectoryBytes)
	}
	return nil
}

// parseStreamDirectory parses the stream directory.
func (m *MSF) parseStreamDirectory(r binread.Reader) error {
	numStreams, err := r.ReadU32()
	if err != nil {
		return fmt.Errorf("failed to read NumStreams: %w", err)
	}

	// Read stream sizes
	streamSizes, err := binread.ReadU32Array(r, int(numStreams))
	if err != nil {
		return fmt.Errorf("failed to read stream sizes: %w", err)
	}

	// Read stream block lists
	streamBlocks := make([][]uint32, numStreams)
	for i, size := range streamSizes {
		if size == deletedStreamSize {
			continue
		}
		blocks, err := binread.ReadU32Array(r, int(m.superBlock.BytesToBlocks(size)))
		if err != nil {
			return fmt.Errorf("failed to read block indices for stream %d: %w", i, err)
		}
		if err := m.checkBlocks(blocks); err != nil {
			return fmt.Errorf("stream %d: %w", i, err)
		}
		streamBlocks[i] = blocks
	}

	m.directory = &StreamDirectory{
		NumStreams:   numStreams,
		StreamSizes:  streamSizes,
		StreamBlocks: streamBlocks,
	}

	return nil
}

// checkBlocks verifies that every block lies entirely inside the file.
func (m *MSF) checkBlocks(blocks []uint32) error {
	for _, block := range blocks {
		if (uint64(block)+1)*uint64(m.superBlock.BlockSize) > uint64(len(m.data)) {
			return fmt.Errorf("%w: block %d past end of file", ErrStreamBlockMap, block)
		}
	}
	return nil
}

// buildStreams creates Stream objects for all streams in the directory.
func (m *MSF) buildStreams() {
	m.streams = make([]*Stream, m.directory.NumStreams)
	for i := range m.streams {
		size := m.directory.StreamSizes[i]
		if size == deletedStreamSize {
			// Unused stream
			m.streams[i] = &Stream{msf: m}
			continue
		}
		m.streams[i] = &Stream{
			msf:    m,
			size:   size,
			blocks: m.directory.StreamBlocks[i],
		}
	}
}
