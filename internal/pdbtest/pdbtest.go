// Package pdbtest builds synthetic MSF images and PDB Info streams for tests.
package pdbtest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

// Magic is the MSF 7.00 signature written at offset 0.
const Magic = "Microsoft C/C++ MSF 7.00\r\n\x1a\x44\x53\x00\x00\x00"

const nilStreamSize = 0xFFFFFFFF

// Image describes an MSF file to lay out.
type Image struct {
	BlockSize uint32

	// Streams holds the content of each stream. A nil entry is written as a
	// nil (deleted) stream; an empty non-nil entry as a zero-length one.
	Streams [][]byte

	// Scatter hands out data and directory blocks in descending order so that
	// no stream occupies contiguous, ascending blocks.
	Scatter bool

	// DirectoryBytes, when non-zero, replaces the directory byte count written
	// to the superblock.
	DirectoryBytes uint32
}

// Layout reports where Build placed everything.
type Layout struct {
	NumBlocks       uint32
	BlockMapAddr    uint32
	DirectoryBytes  uint32
	DirectoryBlocks []uint32
	StreamBlocks    [][]uint32
}

// Build encodes the image. Blocks 0, 1 and 2 hold the superblock and the two
// free block maps; data blocks come next, then the directory, then the block map.
func (img *Image) Build() ([]byte, *Layout) {
	bs := img.BlockSize
	layout := &Layout{StreamBlocks: make([][]uint32, len(img.Streams))}

	next := uint32(3)
	alloc := func(n uint32) []uint32 {
		blocks := make([]uint32, n)
		for i := range blocks {
			blocks[i] = next
			next++
		}
		if img.Scatter {
			slices.Reverse(blocks)
		}
		return blocks
	}

	var total uint32
	for _, s := range img.Streams {
		total += ceilDiv(uint32(len(s)), bs)
	}
	pool := alloc(total)
	for i, s := range img.Streams {
		n := ceilDiv(uint32(len(s)), bs)
		if n > 0 {
			layout.StreamBlocks[i] = pool[:n]
			pool = pool[n:]
		}
	}

	var dir bytes.Buffer
	PutU32(&dir, uint32(len(img.Streams)))
	for _, s := range img.Streams {
		if s == nil {
			PutU32(&dir, nilStreamSize)
		} else {
			PutU32(&dir, uint32(len(s)))
		}
	}
	for _, blocks := range layout.StreamBlocks {
		for _, b := range blocks {
			PutU32(&dir, b)
		}
	}
	layout.DirectoryBytes = uint32(dir.Len())
	layout.DirectoryBlocks = alloc(ceilDiv(uint32(dir.Len()), bs))

	layout.BlockMapAddr = next
	next += ceilDiv(uint32(len(layout.DirectoryBlocks))*4, bs)
	layout.NumBlocks = next

	out := make([]byte, int(layout.NumBlocks)*int(bs))
	block := func(i uint32) []byte {
		return out[int(i)*int(bs) : int(i+1)*int(bs)]
	}

	for i, s := range img.Streams {
		for j, b := range layout.StreamBlocks[i] {
			copy(block(b), s[j*int(bs):])
		}
	}
	dirData := dir.Bytes()
	for j, b := range layout.DirectoryBlocks {
		copy(block(b), dirData[j*int(bs):])
	}
	blockMap := out[int(layout.BlockMapAddr)*int(bs):]
	for j, b := range layout.DirectoryBlocks {
		binary.LittleEndian.PutUint32(blockMap[j*4:], b)
	}

	dirBytes := layout.DirectoryBytes
	if img.DirectoryBytes != 0 {
		dirBytes = img.DirectoryBytes
	}
	copy(out, Magic)
	hdr := out[32:]
	binary.LittleEndian.PutUint32(hdr[0:], bs)
	binary.LittleEndian.PutUint32(hdr[4:], 1)
	binary.LittleEndian.PutUint32(hdr[8:], layout.NumBlocks)
	binary.LittleEndian.PutUint32(hdr[12:], dirBytes)
	binary.LittleEndian.PutUint32(hdr[16:], 0)
	binary.LittleEndian.PutUint32(hdr[20:], layout.BlockMapAddr)

	return out, layout
}

// PutU32 appends v in little-endian order.
func PutU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// BitVector encodes a bit vector of the given word count with the listed
// positions set.
func BitVector(words uint32, positions ...uint32) []byte {
	var buf bytes.Buffer
	PutU32(&buf, words)
	bits := make([]byte, words*4)
	for _, p := range positions {
		bits[p/8] |= 1 << (p % 8)
	}
	buf.Write(bits)
	return buf.Bytes()
}

// Slot is one key/value entry of a serialized hash table.
type Slot struct {
	Key, Value uint32
}

// HashTable is a serialized hash table with u32 values.
type HashTable struct {
	Size     uint32
	Capacity uint32
	Present  []byte // encoded bit vector
	Deleted  []byte // encoded bit vector
	Entries  []Slot // Capacity entries
}

// NewHashTable builds a consistent table of the given capacity whose present
// slots are exactly the keys of slots.
func NewHashTable(capacity uint32, slots map[uint32]Slot) HashTable {
	words := ceilDiv(capacity, 32)
	present := make([]uint32, 0, len(slots))
	entries := make([]Slot, capacity)
	for pos, s := range slots {
		present = append(present, pos)
		entries[pos] = s
	}
	return HashTable{
		Size:     uint32(len(slots)),
		Capacity: capacity,
		Present:  BitVector(words, present...),
		Deleted:  BitVector(0),
		Entries:  entries,
	}
}

// Encode serializes the table.
func (h HashTable) Encode() []byte {
	var buf bytes.Buffer
	PutU32(&buf, h.Size)
	PutU32(&buf, h.Capacity)
	buf.Write(h.Present)
	buf.Write(h.Deleted)
	for _, e := range h.Entries {
		PutU32(&buf, e.Key)
		PutU32(&buf, e.Value)
	}
	return buf.Bytes()
}

// NamedStreamMap encodes names as a NUL-terminated string table followed by
// the table.
func NamedStreamMap(names []string, table HashTable) []byte {
	var strs bytes.Buffer
	for _, n := range names {
		strs.WriteString(n)
		strs.WriteByte(0)
	}

	var buf bytes.Buffer
	PutU32(&buf, uint32(strs.Len()))
	buf.Write(strs.Bytes())
	buf.Write(table.Encode())
	return buf.Bytes()
}

// Header holds the fixed PDB Info stream fields.
type Header struct {
	Version   uint32
	Signature uint32
	Age       uint32
	GUID      [16]byte
}

// InfoStream encodes a PDB Info stream: the header, the named stream map and
// any trailing feature codes.
func InfoStream(h Header, namedStreamMap []byte, features ...uint32) []byte {
	var buf bytes.Buffer
	PutU32(&buf, h.Version)
	PutU32(&buf, h.Signature)
	PutU32(&buf, h.Age)
	buf.Write(h.GUID[:])
	buf.Write(namedStreamMap)
	for _, f := range features {
		PutU32(&buf, f)
	}
	return buf.Bytes()
}

// Pattern returns n bytes whose values depend on their position, so that
// misplaced reads are detected.
func Pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7+i/251) ^ seed
	}
	return b
}

func ceilDiv(n, d uint32) uint32 {
	return (n + d - 1) / d
}

// WriteFile stores data in a temporary file and returns its path.
func WriteFile(t testing.TB, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pdb")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
