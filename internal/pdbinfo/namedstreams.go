package pdbinfo

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/skdltmxn/pdbmsf/internal/hashtable"
	"github.com/skdltmxn/pdbmsf/internal/stream"
)

// Named stream map errors
var (
	ErrNameNotFound       = errors.New("pdbinfo: stream name not found")
	ErrInvalidStringTable = errors.New("pdbinfo: invalid string table")
)

// NameNotFoundError reports a name absent from the string table.
type NameNotFoundError struct {
	Name string
}

func (e *NameNotFoundError) Error() string {
	return fmt.Sprintf("pdbinfo: stream name %q not found", e.Name)
}

// Is matches ErrNameNotFound.
func (e *NameNotFoundError) Is(target error) bool {
	return target == ErrNameNotFound
}

// NamedStreamMap resolves stream names such as "/names" or "/LinkInfo" to
// stream indices.
//
// The table is keyed by the position of a name in Names, not by a hash or
// byte offset of the name.
type NamedStreamMap struct {
	Names []string
	Table *hashtable.HashTable[uint32]
}

// NamedStream pairs a name with the stream it resolves to.
type NamedStream struct {
	Name   string `json:"name" yaml:"name"`
	Stream uint32 `json:"stream" yaml:"stream"`
}

// ReadNamedStreamMap decodes a string table followed by a hash table.
func ReadNamedStreamMap(r *stream.Reader) (*NamedStreamMap, error) {
	length, err := r.ReadU32("string table length")
	if err != nil {
		return nil, err
	}
	table, err := r.ReadBytes(int(length), "string table")
	if err != nil {
		return nil, err
	}

	names, err := splitNames(table)
	if err != nil {
		return nil, err
	}

	ht, err := hashtable.Read(r, hashtable.U32)
	if err != nil {
		return nil, err
	}

	return &NamedStreamMap{Names: names, Table: ht}, nil
}

// splitNames returns the NUL-terminated strings of table in order. Bytes
// after the last NUL do not form a name.
func splitNames(table []byte) ([]string, error) {
	var names []string
	for {
		i := bytes.IndexByte(table, 0)
		if i < 0 {
			return names, nil
		}
		if !utf8.Valid(table[:i]) {
			return nil, fmt.Errorf("%w: name %d is not UTF-8", ErrInvalidStringTable, len(names))
		}
		names = append(names, string(table[:i]))
		table = table[i+1:]
	}
}

// Resolve returns the stream index recorded for name.
func (m *NamedStreamMap) Resolve(name string) (uint32, error) {
	pos := slices.Index(m.Names, name)
	if pos < 0 {
		return 0, &NameNotFoundError{Name: name}
	}
	return m.Table.Lookup(uint32(pos))
}

// Entries resolves every name in table order, skipping names with no entry.
func (m *NamedStreamMap) Entries() ([]NamedStream, error) {
	var out []NamedStream
	for i, name := range m.Names {
		idx, err := m.Table.Lookup(uint32(i))
		if errors.Is(err, hashtable.ErrEntryNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, NamedStream{Name: name, Stream: idx})
	}
	return out, nil
}
