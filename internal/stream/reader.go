// Package stream provides binary reading utilities for PDB parsing.
package stream

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Errors returned by Reader
var (
	ErrUnexpectedEOF  = errors.New("stream: unexpected end of data")
	ErrNegativeLength = errors.New("stream: negative length")
)

// Reader decodes fixed-width fields from a sequential byte source.
// All multi-byte values are read in little-endian order.
//
// Every read names the field being decoded so that failures carry both the
// field and the offset at which its read started.
type Reader struct {
	src    io.Reader
	offset int64
	buf    [16]byte
}

// NewReader creates a Reader consuming src from its current position.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 {
	return r.offset
}

// fill reads exactly len(p) bytes.
func (r *Reader) fill(p []byte, field string) error {
	start := r.offset
	n, err := io.ReadFull(r.src, p)
	r.offset += int64(n)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.Wrapf(ErrUnexpectedEOF, "reading %s at offset 0x%x: got %d of %d bytes",
			field, start, n, len(p))
	}
	return errors.Wrapf(err, "stream: reading %s at offset 0x%x", field, start)
}

// ReadU8 reads an unsigned 8-bit integer.
func (r *Reader) ReadU8(field string) (uint8, error) {
	if err := r.fill(r.buf[:1], field); err != nil {
		return 0, err
	}
	return r.buf[0], nil
}

// ReadU16 reads an unsigned 16-bit integer.
func (r *Reader) ReadU16(field string) (uint16, error) {
	if err := r.fill(r.buf[:2], field); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(r.buf[:2]), nil
}

// ReadU32 reads an unsigned 32-bit integer.
func (r *Reader) ReadU32(field string) (uint32, error) {
	if err := r.fill(r.buf[:4], field); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.buf[:4]), nil
}

// ReadU64 reads an unsigned 64-bit integer.
func (r *Reader) ReadU64(field string) (uint64, error) {
	if err := r.fill(r.buf[:8], field); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(r.buf[:8]), nil
}

// ReadGUID reads a 16-byte GUID.
func (r *Reader) ReadGUID(field string) ([16]byte, error) {
	var guid [16]byte
	if err := r.fill(guid[:], field); err != nil {
		return guid, err
	}
	return guid, nil
}

// maxPrealloc bounds the buffer allocated up front for a length taken from
// the data; longer reads grow as bytes actually arrive.
const maxPrealloc = 64 << 10

// ReadBytes reads n bytes into a new slice.
func (r *Reader) ReadBytes(n int, field string) ([]byte, error) {
	if n < 0 {
		return nil, errors.Wrapf(ErrNegativeLength, "reading %s", field)
	}
	if n <= maxPrealloc {
		v := make([]byte, n)
		if err := r.fill(v, field); err != nil {
			return nil, err
		}
		return v, nil
	}

	var buf bytes.Buffer
	start := r.offset
	copied, err := io.CopyN(&buf, r.src, int64(n))
	r.offset += copied
	if errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(ErrUnexpectedEOF, "reading %s at offset 0x%x: got %d of %d bytes",
			field, start, copied, n)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "stream: reading %s at offset 0x%x", field, start)
	}
	return buf.Bytes(), nil
}

// ReadU32s reads count consecutive unsigned 32-bit integers.
func (r *Reader) ReadU32s(count int, field string) ([]uint32, error) {
	if count < 0 {
		return nil, errors.Wrapf(ErrNegativeLength, "reading %s", field)
	}
	v := make([]uint32, 0, min(count, maxPrealloc/4))
	for i := 0; i < count; i++ {
		x, err := r.ReadU32(field)
		if err != nil {
			return nil, err
		}
		v = append(v, x)
	}
	return v, nil
}

// Skip discards n bytes.
func (r *Reader) Skip(n int64, field string) error {
	if n < 0 {
		return errors.Wrapf(ErrNegativeLength, "skipping %s", field)
	}
	start := r.offset
	copied, err := io.CopyN(io.Discard, r.src, n)
	r.offset += copied
	if errors.Is(err, io.EOF) {
		return errors.Wrapf(ErrUnexpectedEOF, "skipping %s at offset 0x%x: got %d of %d bytes",
			field, start, copied, n)
	}
	if err != nil {
		return errors.Wrapf(err, "stream: skipping %s at offset 0x%x", field, start)
	}
	return nil
}
