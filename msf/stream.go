package msf

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Stream errors
var (
	ErrUnexpectedEndOfStream = errors.New("msf: unexpected end of stream")
	ErrUnsupportedSeek       = errors.New("msf: unsupported seek")
	ErrNilStream             = errors.New("msf: stream is nil")
	ErrNegativeOffset        = errors.New("msf: negative offset")
)

// endOfStreamError is returned by Read once nothing is left. It matches both
// io.EOF and ErrUnexpectedEndOfStream under errors.Is.
type endOfStreamError struct {
	index uint32
	pos   int64
}

func (e *endOfStreamError) Error() string {
	return fmt.Sprintf("%v: stream %d at offset %d: %v", ErrUnexpectedEndOfStream, e.index, e.pos, io.EOF)
}

func (e *endOfStreamError) Is(target error) bool {
	return target == io.EOF || target == ErrUnexpectedEndOfStream
}

// Stream provides reading across the non-contiguous blocks of one stream.
// It implements io.Reader, io.Seeker, io.ReaderAt and io.WriterTo.
//
// A Stream keeps a cursor (block position plus bytes consumed in that block)
// and is not safe for concurrent use. Separate Streams opened from the same
// File may be used concurrently: physical reads go through io.ReaderAt and
// never share a file position.
type Stream struct {
	file   *File
	index  uint32
	blocks []uint32 // borrowed from the directory
	size   uint32

	blockPos uint32 // index into blocks
	blockOff uint32 // bytes consumed in blocks[blockPos]
}

func newStream(f *File, index uint32, blocks []uint32, size uint32) *Stream {
	return &Stream{
		file:   f,
		index:  index,
		blocks: blocks,
		size:   size,
	}
}

// Read reads exactly len(p) bytes starting at the cursor.
//
// If fewer than len(p) bytes remain it fails with ErrUnexpectedEndOfStream and
// consumes nothing. When no bytes remain the error also matches io.EOF.
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	remaining := s.Remaining()
	if remaining == 0 {
		return 0, &endOfStreamError{index: s.index, pos: s.Position()}
	}
	if uint64(len(p)) > uint64(remaining) {
		return 0, errors.Wrapf(ErrUnexpectedEndOfStream, "%d bytes requested at offset %d of stream %d, %d remaining",
			len(p), s.Position(), s.index, remaining)
	}

	blockPos, blockOff, err := s.copyOut(p, s.blockPos, s.blockOff)
	if err != nil {
		return 0, err
	}
	s.blockPos, s.blockOff = blockPos, blockOff
	return len(p), nil
}

// WriteTo writes the unread rest of the stream to w one block at a time.
// io.Copy uses it in place of Read, which rejects requests past the end.
func (s *Stream) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, s.file.BlockSize())
	var total int64
	for {
		n := min(s.Remaining(), uint32(len(buf)))
		if n == 0 {
			return total, nil
		}
		if _, err := s.Read(buf[:n]); err != nil {
			return total, err
		}
		m, err := w.Write(buf[:n])
		total += int64(m)
		if err != nil {
			return total, err
		}
	}
}

// copyOut fills p from the stream starting at blocks[blockPos] + blockOff and
// returns the cursor just past the last byte read. The caller guarantees p
// lies within the stream.
func (s *Stream) copyOut(p []byte, blockPos, blockOff uint32) (uint32, uint32, error) {
	blockSize := s.file.BlockSize()

	for len(p) > 0 {
		leftInBlock := blockSize - blockOff
		chunk := leftInBlock
		if uint64(len(p)) < uint64(chunk) {
			chunk = uint32(len(p))
		}

		if err := s.file.readBlock(p[:chunk], s.blocks[blockPos], blockOff); err != nil {
			return blockPos, blockOff, errors.Wrapf(err, "msf: stream %d", s.index)
		}
		p = p[chunk:]

		if chunk == leftInBlock {
			blockPos++
			blockOff = 0
		} else {
			blockOff += chunk
		}
	}

	return blockPos, blockOff, nil
}

// ReadAt implements io.ReaderAt. It does not move the cursor.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.Wrapf(ErrNegativeOffset, "%d", off)
	}
	if off >= int64(s.size) {
		return 0, io.EOF
	}

	n := len(p)
	if avail := int64(s.size) - off; int64(n) > avail {
		n = int(avail)
	}

	blockSize := int64(s.file.BlockSize())
	if _, _, err := s.copyOut(p[:n], uint32(off/blockSize), uint32(off%blockSize)); err != nil {
		return 0, err
	}

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Seek implements io.Seeker. Only absolute seeks (io.SeekStart) are supported.
// The offset may reach the end of the stream's last block, one past which
// ErrUnexpectedEndOfStream is returned.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if whence != io.SeekStart {
		return s.Position(), errors.Wrapf(ErrUnsupportedSeek, "whence %d", whence)
	}
	if offset < 0 {
		return s.Position(), errors.Wrapf(ErrNegativeOffset, "%d", offset)
	}
	if offset > s.Capacity() {
		return s.Position(), errors.Wrapf(ErrUnexpectedEndOfStream, "seek to %d past capacity %d of stream %d",
			offset, s.Capacity(), s.index)
	}

	blockSize := int64(s.file.BlockSize())
	s.blockPos = uint32(offset / blockSize)
	s.blockOff = uint32(offset % blockSize)
	return offset, nil
}

// Index returns the stream's index in the directory.
func (s *Stream) Index() uint32 {
	return s.index
}

// Size returns the total size of the stream in bytes.
func (s *Stream) Size() uint32 {
	return s.size
}

// Capacity returns the number of addressable bytes: the stream's block count
// times the block size.
func (s *Stream) Capacity() int64 {
	return int64(len(s.blocks)) * int64(s.file.BlockSize())
}

// Blocks returns the physical block indices backing the stream.
// The slice is shared with the directory and must not be modified.
func (s *Stream) Blocks() []uint32 {
	return s.blocks
}

// Position returns the current read position.
func (s *Stream) Position() int64 {
	return int64(s.blockPos)*int64(s.file.BlockSize()) + int64(s.blockOff)
}

// Remaining returns the number of bytes remaining to be read.
func (s *Stream) Remaining() uint32 {
	pos := s.Position()
	if pos >= int64(s.size) {
		return 0
	}
	return uint32(int64(s.size) - pos)
}

// Bytes reads the entire stream into a byte slice.
// This is useful for smaller streams that fit in memory.
func (s *Stream) Bytes() ([]byte, error) {
	data := make([]byte, s.size)
	n, err := s.ReadAt(data, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return data[:n], nil
}

// Reset resets the stream position to the beginning.
func (s *Stream) Reset() {
	s.blockPos = 0
	s.blockOff = 0
}
