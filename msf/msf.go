package msf

import (
	"io"
	"sync"

	"github.com/hashicorp/golang-lru/arc/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/mmap"
)

// Option configures a File.
type Option func(*options)

type options struct {
	logger      logrus.FieldLogger
	cacheBlocks int
}

// WithLogger sets the logger receiving Debug level trace events.
// By default nothing is logged.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithBlockCache keeps up to n recently used blocks in memory.
// n <= 0 disables the cache, which is the default.
func WithBlockCache(n int) Option {
	return func(o *options) {
		o.cacheBlocks = n
	}
}

// File represents an opened MSF file.
// The directory and superblock are immutable once loaded; each Stream opened
// from the File carries its own cursor.
type File struct {
	data       io.ReaderAt
	closer     io.Closer // may be nil if data doesn't need closing
	size       int64
	superBlock *SuperBlock
	directory  *StreamDirectory

	log   logrus.FieldLogger
	cache *arc.ARCCache[uint32, []byte]

	// Lazy loading synchronization
	dirOnce sync.Once
	dirErr  error
}

// Open memory-maps the MSF file at path read-only.
func Open(path string, opts ...Option) (*File, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "msf: failed to open file")
	}

	f, err := NewFile(m, int64(m.Len()), opts...)
	if err != nil {
		m.Close()
		return nil, err
	}

	f.closer = m
	return f, nil
}

// NewFile creates an MSF file from an io.ReaderAt.
// This allows reading from arbitrary sources (embedded, network, etc.)
// The caller is responsible for closing the underlying reader if needed.
func NewFile(r io.ReaderAt, size int64, opts ...Option) (*File, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = discardLogger()
	}

	if size < SuperBlockSize {
		return nil, ErrTruncatedFile
	}

	sb, err := ReadSuperBlock(io.NewSectionReader(r, 0, SuperBlockSize))
	if err != nil {
		return nil, err
	}

	f := &File{
		data:       r,
		size:       size,
		superBlock: sb,
		log:        o.logger,
	}

	if o.cacheBlocks > 0 {
		f.cache, err = arc.NewARC[uint32, []byte](o.cacheBlocks)
		if err != nil {
			return nil, errors.Wrap(err, "msf: failed to create block cache")
		}
	}

	fields := logrus.Fields{
		"block_size":      sb.BlockSize,
		"blocks":          sb.NumBlocks,
		"directory_bytes": sb.NumDirectoryBytes,
		"block_map_addr":  sb.BlockMapAddr,
	}
	if sb.FileSize() != size {
		f.log.WithFields(fields).WithField("file_size", size).
			Debug("msf: block count does not match file size")
	} else {
		f.log.WithFields(fields).Debug("msf: superblock loaded")
	}

	return f, nil
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}

// Close releases resources associated with the MSF file.
func (f *File) Close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

// SuperBlock returns the MSF superblock.
func (f *File) SuperBlock() *SuperBlock {
	return f.superBlock
}

// Directory returns the stream directory.
// The directory is lazily loaded on first access.
func (f *File) Directory() (*StreamDirectory, error) {
	f.dirOnce.Do(func() {
		dr := NewDirectoryReader(f.superBlock, f.data)
		f.directory, f.dirErr = dr.ReadDirectory()
		if f.dirErr == nil {
			f.log.WithField("streams", f.directory.NumStreams).
				Debug("msf: stream directory loaded")
		}
	})

	if f.dirErr != nil {
		return nil, f.dirErr
	}
	return f.directory, nil
}

// NumStreams returns the number of streams in the file.
func (f *File) NumStreams() (uint32, error) {
	dir, err := f.Directory()
	if err != nil {
		return 0, err
	}
	return dir.NumStreams, nil
}

// StreamSize returns the size of the given stream in bytes.
func (f *File) StreamSize(streamIndex uint32) (uint32, error) {
	dir, err := f.Directory()
	if err != nil {
		return 0, err
	}
	return dir.StreamSize(streamIndex), nil
}

// StreamExists returns true if the stream exists and is not a nil stream.
func (f *File) StreamExists(streamIndex uint32) (bool, error) {
	dir, err := f.Directory()
	if err != nil {
		return false, err
	}
	return dir.StreamExists(streamIndex), nil
}

// OpenStream opens a stream for reading, positioned at its first byte.
func (f *File) OpenStream(streamIndex uint32) (*Stream, error) {
	dir, err := f.Directory()
	if err != nil {
		return nil, err
	}

	if streamIndex >= dir.NumStreams {
		return nil, errors.Wrapf(ErrInvalidStreamIndex, "stream %d of %d", streamIndex, dir.NumStreams)
	}

	size := dir.StreamSizes[streamIndex]
	if size == NilStreamSize {
		return nil, errors.Wrapf(ErrNilStream, "stream %d", streamIndex)
	}

	f.log.WithFields(logrus.Fields{
		"stream": streamIndex,
		"size":   size,
		"blocks": len(dir.StreamBlocks[streamIndex]),
	}).Debug("msf: stream opened")

	return newStream(f, streamIndex, dir.StreamBlocks[streamIndex], size), nil
}

// ReadStream reads an entire stream into memory.
// This is a convenience method for smaller streams.
func (f *File) ReadStream(streamIndex uint32) ([]byte, error) {
	stream, err := f.OpenStream(streamIndex)
	if err != nil {
		return nil, err
	}
	return stream.Bytes()
}

// readBlock fills p from physical block blk starting offset bytes into it.
// p must not extend past the end of the block.
func (f *File) readBlock(p []byte, blk, offset uint32) error {
	if blk >= f.superBlock.NumBlocks {
		return errors.Wrapf(ErrInvalidBlockIndex, "block %d >= %d", blk, f.superBlock.NumBlocks)
	}

	if f.cache == nil {
		return f.readFull(p, f.superBlock.BlockOffset(blk)+int64(offset))
	}

	block, ok := f.cache.Get(blk)
	if !ok {
		var err error
		if block, err = f.loadBlock(blk); err != nil {
			return err
		}
		f.cache.Add(blk, block)
	}

	end := int(offset) + len(p)
	if end > len(block) {
		return errors.Wrapf(ErrTruncatedFile, "block %d holds %d of %d bytes",
			blk, len(block), end)
	}
	copy(p, block[offset:end])
	return nil
}

// loadBlock reads as much of block blk as the file holds. The last block of
// a file may be short.
func (f *File) loadBlock(blk uint32) ([]byte, error) {
	off := f.superBlock.BlockOffset(blk)
	block := make([]byte, f.superBlock.BlockSize)
	n, err := f.data.ReadAt(block, off)
	if n < len(block) && err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "msf: read at offset 0x%x", off)
	}
	return block[:n], nil
}

func (f *File) readFull(p []byte, off int64) error {
	n, err := f.data.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		return errors.Wrapf(ErrTruncatedFile, "read %d of %d bytes at offset 0x%x", n, len(p), off)
	}
	return errors.Wrapf(err, "msf: read at offset 0x%x", off)
}

// BlockSize returns the block size used by this MSF file.
func (f *File) BlockSize() uint32 {
	return f.superBlock.BlockSize
}

// FileSize returns the total size of the MSF file.
func (f *File) FileSize() int64 {
	return f.size
}

// NumBlocks returns the total number of blocks in the file.
func (f *File) NumBlocks() uint32 {
	return f.superBlock.NumBlocks
}
