// Package hashtable decodes the serialized hash tables stored in PDB streams.
//
// A table is a fixed array of capacity slots plus two bit vectors marking
// which slots are present and which were deleted. Lookups scan the present
// slots in order; no hash function is involved.
package hashtable

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/pdbmsf/internal/stream"
)

// Errors returned by HashTable lookups.
var (
	ErrCorrupt       = errors.New("hashtable: corrupt table")
	ErrEntryNotFound = errors.New("hashtable: entry not found")
)

// EntryNotFoundError reports a key with no present slot.
type EntryNotFoundError struct {
	Key uint32
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("hashtable: key %d not found", e.Key)
}

// Is matches ErrEntryNotFound.
func (e *EntryNotFoundError) Is(target error) bool {
	return target == ErrEntryNotFound
}

// Entry is one slot of the table.
type Entry[V any] struct {
	Key   uint32
	Value V
}

// HashTable is a decoded serialized hash table.
type HashTable[V any] struct {
	// Size is the live-entry count as recorded in the file. It is advisory
	// and not checked against Present.
	Size     uint32
	Capacity uint32
	Present  BitVector
	Deleted  BitVector
	Entries  []Entry[V] // Capacity slots; only present ones are meaningful
}

// ValueReader decodes one slot value.
type ValueReader[V any] func(r *stream.Reader) (V, error)

// U32 decodes a 32-bit value.
func U32(r *stream.Reader) (uint32, error) {
	return r.ReadU32("hash table value")
}

// Read decodes a table whose values are decoded by readValue.
func Read[V any](r *stream.Reader, readValue ValueReader[V]) (*HashTable[V], error) {
	h := &HashTable[V]{}

	var err error
	if h.Size, err = r.ReadU32("hash table size"); err != nil {
		return nil, err
	}
	if h.Capacity, err = r.ReadU32("hash table capacity"); err != nil {
		return nil, err
	}
	if h.Present, err = ReadBitVector(r, "present"); err != nil {
		return nil, err
	}
	if h.Deleted, err = ReadBitVector(r, "deleted"); err != nil {
		return nil, err
	}

	h.Entries = make([]Entry[V], 0, min(h.Capacity, 1024))
	for i := uint32(0); i < h.Capacity; i++ {
		key, err := r.ReadU32("hash table key")
		if err != nil {
			return nil, err
		}
		value, err := readValue(r)
		if err != nil {
			return nil, err
		}
		h.Entries = append(h.Entries, Entry[V]{Key: key, Value: value})
	}

	return h, nil
}

// Lookup returns the value of the first present slot holding key.
func (h *HashTable[V]) Lookup(key uint32) (V, error) {
	var zero V
	for pos := range h.Present.SetBitPositions() {
		if err := h.checkSlot(pos); err != nil {
			return zero, err
		}
		if e := h.Entries[pos]; e.Key == key {
			return e.Value, nil
		}
	}
	return zero, &EntryNotFoundError{Key: key}
}

// Live returns the present slots in slot order.
func (h *HashTable[V]) Live() ([]Entry[V], error) {
	var live []Entry[V]
	for pos := range h.Present.SetBitPositions() {
		if err := h.checkSlot(pos); err != nil {
			return nil, err
		}
		live = append(live, h.Entries[pos])
	}
	return live, nil
}

func (h *HashTable[V]) checkSlot(pos uint32) error {
	if pos >= h.Capacity || uint64(pos) >= uint64(len(h.Entries)) {
		return fmt.Errorf("%w: present slot %d outside capacity %d", ErrCorrupt, pos, h.Capacity)
	}
	return nil
}
