package hashtable

import (
	"iter"
	"math/bits"

	"github.com/skdltmxn/pdbmsf/internal/stream"
)

// BitVector is a serialized bitmap: a word count followed by WordCount*4
// bytes. Bit n of byte i is logical position i*8+n.
type BitVector struct {
	WordCount uint32
	Bytes     []byte
}

// ReadBitVector decodes a bit vector.
func ReadBitVector(r *stream.Reader, field string) (BitVector, error) {
	words, err := r.ReadU32(field + " word count")
	if err != nil {
		return BitVector{}, err
	}

	b, err := r.ReadBytes(int(uint64(words)*4), field+" words")
	if err != nil {
		return BitVector{}, err
	}

	return BitVector{WordCount: words, Bytes: b}, nil
}

// SetBitPositions yields the position of every set bit in ascending order.
// The sequence may be ranged over any number of times.
func (v BitVector) SetBitPositions() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		for i, b := range v.Bytes {
			for b != 0 {
				n := bits.TrailingZeros8(b)
				if !yield(uint32(i)*8 + uint32(n)) {
					return
				}
				b &= b - 1
			}
		}
	}
}

// Test reports whether the bit at pos is set. Positions past the end are clear.
func (v BitVector) Test(pos uint32) bool {
	i := pos / 8
	if uint64(i) >= uint64(len(v.Bytes)) {
		return false
	}
	return v.Bytes[i]&(1<<(pos%8)) != 0
}

// Count returns the number of set bits.
func (v BitVector) Count() int {
	n := 0
	for _, b := range v.Bytes {
		n += bits.OnesCount8(b)
	}
	return n
}
