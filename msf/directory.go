package msf

import (
	"io"

	"github.com/pkg/errors"

	"github.com/skdltmxn/pdbmsf/internal/stream"
)

// NilStreamSize indicates a deleted or nil stream
const NilStreamSize = 0xFFFFFFFF

// Well-known stream indices
const (
	StreamOldDirectory = 0 // Old MSF directory (unused in PDB 7.0)
	StreamPDBInfo      = 1 // PDB Info stream (GUID, age, named streams)
	StreamTPI          = 2 // Type Program Information
	StreamDBI          = 3 // Debug Information
	StreamIPI          = 4 // ID Program Information
)

// Directory parsing errors
var (
	ErrTruncatedDirectory = errors.New("msf: truncated stream directory")
	ErrInvalidStreamIndex = errors.New("msf: invalid stream index")
	ErrInvalidBlockIndex  = errors.New("msf: invalid block index")
)

// StreamDirectory describes all streams in the MSF file.
// It is a jagged array where each stream has its own list of block indices.
type StreamDirectory struct {
	// NumStreams is the count of streams
	NumStreams uint32

	// StreamSizes holds the size in bytes of each stream.
	// A value of NilStreamSize (0xFFFFFFFF) indicates a deleted stream.
	StreamSizes []uint32

	// StreamBlocks is a jagged array where StreamBlocks[i] contains
	// the block indices for stream i. For nil and empty streams, this will be nil.
	StreamBlocks [][]uint32
}

// ParseDirectory decodes the stream directory from r, which must yield the
// directory bytes in logical order.
//
// Counts read from the directory are never trusted for preallocation; a
// count larger than the data behind it ends in ErrTruncatedDirectory.
func ParseDirectory(r io.Reader, blockSize uint32) (*StreamDirectory, error) {
	sr := stream.NewReader(r)
	dir := &StreamDirectory{}

	var err error
	if dir.NumStreams, err = sr.ReadU32("stream count"); err != nil {
		return nil, directoryError(err)
	}

	hint := min(dir.NumStreams, 1024)
	dir.StreamSizes = make([]uint32, 0, hint)
	for i := uint32(0); i < dir.NumStreams; i++ {
		size, err := sr.ReadU32("stream size")
		if err != nil {
			return nil, directoryError(err)
		}
		dir.StreamSizes = append(dir.StreamSizes, size)
	}

	dir.StreamBlocks = make([][]uint32, dir.NumStreams)
	for i, size := range dir.StreamSizes {
		if size == NilStreamSize || size == 0 {
			continue
		}

		numBlocks := ceilDiv(size, blockSize)
		blocks := make([]uint32, 0, min(numBlocks, 1024))
		for j := uint32(0); j < numBlocks; j++ {
			blk, err := sr.ReadU32("stream block index")
			if err != nil {
				return nil, directoryError(err)
			}
			blocks = append(blocks, blk)
		}
		dir.StreamBlocks[i] = blocks
	}

	return dir, nil
}

func directoryError(err error) error {
	if errors.Is(err, ErrTruncatedDirectory) {
		return err
	}
	if errors.Is(err, stream.ErrUnexpectedEOF) {
		return errors.Wrapf(ErrTruncatedDirectory, "%v", err)
	}
	return errors.Wrap(err, "msf: failed to read stream directory")
}

// StreamSize returns the size of the given stream, or 0 if the stream doesn't exist
// or is a nil stream.
func (d *StreamDirectory) StreamSize(streamIndex uint32) uint32 {
	if streamIndex >= d.NumStreams {
		return 0
	}
	size := d.StreamSizes[streamIndex]
	if size == NilStreamSize {
		return 0
	}
	return size
}

// StreamExists returns true if the stream exists and is not a nil stream.
func (d *StreamDirectory) StreamExists(streamIndex uint32) bool {
	if streamIndex >= d.NumStreams {
		return false
	}
	return d.StreamSizes[streamIndex] != NilStreamSize && d.StreamSizes[streamIndex] > 0
}

// GetStreamBlocks returns the block indices for the given stream.
// Returns an error if the stream doesn't exist.
func (d *StreamDirectory) GetStreamBlocks(streamIndex uint32) ([]uint32, error) {
	if streamIndex >= d.NumStreams {
		return nil, errors.Wrapf(ErrInvalidStreamIndex, "%d >= %d", streamIndex, d.NumStreams)
	}
	if d.StreamSizes[streamIndex] == NilStreamSize {
		return nil, nil
	}
	return d.StreamBlocks[streamIndex], nil
}

// DirectoryReader helps read the stream directory from an MSF file.
// It handles the indirection through the block map address.
type DirectoryReader struct {
	sb   *SuperBlock
	data io.ReaderAt
}

// NewDirectoryReader creates a new DirectoryReader.
func NewDirectoryReader(sb *SuperBlock, data io.ReaderAt) *DirectoryReader {
	return &DirectoryReader{sb: sb, data: data}
}

// ReadDirectory reads and parses the complete stream directory.
func (dr *DirectoryReader) ReadDirectory() (*StreamDirectory, error) {
	blockMap, err := dr.readBlockMap()
	if err != nil {
		return nil, err
	}

	cur := &directoryCursor{
		data:      dr.data,
		sb:        dr.sb,
		blocks:    blockMap,
		remaining: dr.sb.NumDirectoryBytes,
	}
	return ParseDirectory(cur, dr.sb.BlockSize)
}

// readBlockMap reads the array of block indices that make up the stream directory.
func (dr *DirectoryReader) readBlockMap() ([]uint32, error) {
	if dr.sb.BlockMapAddr >= dr.sb.NumBlocks {
		return nil, errors.Wrapf(ErrInvalidBlockIndex, "block map at %d >= %d",
			dr.sb.BlockMapAddr, dr.sb.NumBlocks)
	}

	count := dr.sb.NumDirectoryBlocks()
	section := io.NewSectionReader(dr.data, dr.sb.BlockOffset(dr.sb.BlockMapAddr), int64(count)*4)

	blockMap, err := stream.NewReader(section).ReadU32s(int(count), "directory block index")
	if err != nil {
		return nil, errors.Wrap(err, "msf: failed to read block map")
	}
	return blockMap, nil
}

// directoryCursor presents the directory bytes, scattered over the
// indirection blocks, as one sequential reader. The next indirection block is
// loaded only when the current one is used up and more bytes are wanted, so a
// directory ending exactly on a block boundary needs no further block.
type directoryCursor struct {
	data   io.ReaderAt
	sb     *SuperBlock
	blocks []uint32

	next      int    // position in blocks of the block to load on refill
	offset    int64  // file offset of the next unread byte
	inBlock   uint32 // unread bytes left in the current block
	remaining uint32 // unread directory bytes overall
}

func (c *directoryCursor) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if c.remaining == 0 {
			return n, ErrTruncatedDirectory
		}
		if c.inBlock == 0 {
			if err := c.refill(); err != nil {
				return n, err
			}
		}

		chunk := min(uint32(len(p)-n), c.inBlock, c.remaining)
		got, err := c.data.ReadAt(p[n:n+int(chunk)], c.offset)
		n += got
		c.offset += int64(got)
		c.inBlock -= uint32(got)
		c.remaining -= uint32(got)
		if got < int(chunk) && (err == nil || err == io.EOF) {
			return n, errors.Wrapf(ErrTruncatedFile, "directory block %d", c.blocks[c.next-1])
		}
		if err != nil && err != io.EOF {
			return n, errors.Wrapf(err, "msf: failed to read directory block %d", c.blocks[c.next-1])
		}
	}
	return n, nil
}

func (c *directoryCursor) refill() error {
	if c.next >= len(c.blocks) {
		return errors.Wrapf(ErrTruncatedDirectory, "out of indirection blocks after %d", len(c.blocks))
	}
	blk := c.blocks[c.next]
	if blk >= c.sb.NumBlocks {
		return errors.Wrapf(ErrInvalidBlockIndex, "directory block %d >= %d", blk, c.sb.NumBlocks)
	}
	c.next++
	c.offset = c.sb.BlockOffset(blk)
	c.inBlock = c.sb.BlockSize
	return nil
}
