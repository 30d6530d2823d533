// Package msf provides parsing for the MSF (Multi-Stream File) container format
// used by Microsoft PDB files.
package msf

import (
	"io"

	"github.com/pkg/errors"

	"github.com/skdltmxn/pdbmsf/internal/stream"
)

// Magic signature for PDB 7.0 format (BigMsf)
const Magic = "Microsoft C/C++ MSF 7.00\r\n\x1a\x44\x53\x00\x00\x00"

// MagicSize is the size of the magic signature in bytes
const MagicSize = 32

// SuperBlockSize is the total size of the SuperBlock structure
const SuperBlockSize = 56

// Valid block sizes for MSF files
const (
	BlockSize512  uint32 = 512
	BlockSize1024 uint32 = 1024
	BlockSize2048 uint32 = 2048
	BlockSize4096 uint32 = 4096 // "BigMsf" - most common
)

// Errors returned during SuperBlock parsing
var (
	ErrInvalidMagic     = errors.New("msf: invalid magic signature, not a valid PDB file")
	ErrInvalidBlockSize = errors.New("msf: invalid block size")
	ErrTruncatedFile    = errors.New("msf: file is truncated")
)

// SuperBlock is located at file offset 0 and describes the MSF container structure.
// It contains metadata about the file's block-based layout and the location of
// the stream directory.
type SuperBlock struct {
	// FileMagic must equal the Magic constant (32 bytes)
	FileMagic [MagicSize]byte

	// BlockSize is the internal file system block size (512, 1024, 2048, or 4096)
	BlockSize uint32

	// FreeBlockMapBlock is the index of the active FPM block (1 or 2).
	// It is recorded but not interpreted by the reader.
	FreeBlockMapBlock uint32

	// NumBlocks is the total number of blocks in the file.
	// NumBlocks * BlockSize should equal the file size.
	NumBlocks uint32

	// NumDirectoryBytes is the size of the stream directory in bytes
	NumDirectoryBytes uint32

	// Unknown is a reserved field (always 0)
	Unknown uint32

	// BlockMapAddr is the block index containing the array of block indices
	// that make up the stream directory. For large directories spanning multiple
	// blocks, this provides an extra level of indirection.
	BlockMapAddr uint32
}

// ValidBlockSize reports whether size is one of the block sizes MSF 7.00 allows.
func ValidBlockSize(size uint32) bool {
	switch size {
	case BlockSize512, BlockSize1024, BlockSize2048, BlockSize4096:
		return true
	}
	return false
}

// ReadSuperBlock reads and validates a SuperBlock from the given reader.
// The reader should be positioned at the beginning of the PDB file.
//
// The magic is checked before anything else is consumed, and the block size
// before the remaining fields.
func ReadSuperBlock(r io.Reader) (*SuperBlock, error) {
	var sb SuperBlock
	sr := stream.NewReader(r)

	magic, err := sr.ReadBytes(MagicSize, "file magic")
	if err != nil {
		return nil, superBlockError(err)
	}
	copy(sb.FileMagic[:], magic)
	if string(sb.FileMagic[:]) != Magic {
		return nil, ErrInvalidMagic
	}

	if sb.BlockSize, err = sr.ReadU32("block size"); err != nil {
		return nil, superBlockError(err)
	}
	if !ValidBlockSize(sb.BlockSize) {
		return nil, errors.Wrapf(ErrInvalidBlockSize, "block size %d", sb.BlockSize)
	}

	fields := []struct {
		dst  *uint32
		name string
	}{
		{&sb.FreeBlockMapBlock, "free block map index"},
		{&sb.NumBlocks, "block count"},
		{&sb.NumDirectoryBytes, "directory byte count"},
		{&sb.Unknown, "reserved"},
		{&sb.BlockMapAddr, "block map address"},
	}
	for _, f := range fields {
		if *f.dst, err = sr.ReadU32(f.name); err != nil {
			return nil, superBlockError(err)
		}
	}

	return &sb, nil
}

func superBlockError(err error) error {
	if errors.Is(err, stream.ErrUnexpectedEOF) {
		return errors.Wrapf(ErrTruncatedFile, "%v", err)
	}
	return errors.Wrap(err, "msf: failed to read superblock")
}

// NumDirectoryBlocks returns the number of blocks needed to store the stream directory.
func (sb *SuperBlock) NumDirectoryBlocks() uint32 {
	return ceilDiv(sb.NumDirectoryBytes, sb.BlockSize)
}

// FileSize returns the expected file size based on NumBlocks and BlockSize.
func (sb *SuperBlock) FileSize() int64 {
	return int64(sb.NumBlocks) * int64(sb.BlockSize)
}

// BlockOffset returns the byte offset of the given block number.
func (sb *SuperBlock) BlockOffset(blockNum uint32) int64 {
	return int64(blockNum) * int64(sb.BlockSize)
}

// ceilDiv computes ceil(n / d) without overflowing on values near 2^32.
func ceilDiv(n, d uint32) uint32 {
	q := n / d
	if n%d != 0 {
		q++
	}
	return q
}
