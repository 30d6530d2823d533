// Package pdb opens Microsoft PDB files: the MSF container, its streams and
// the named stream map of the PDB Info stream.
package pdb

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/pdbmsf/internal/hashtable"
	"github.com/skdltmxn/pdbmsf/internal/pdbinfo"
	"github.com/skdltmxn/pdbmsf/msf"
)

// Sentinel errors for common conditions.
var (
	// ErrNotPDB indicates the file does not start with the MSF 7.00 magic.
	ErrNotPDB = msf.ErrInvalidMagic

	// ErrUnsupportedVersion indicates an info stream version other than VC70.
	ErrUnsupportedVersion = pdbinfo.ErrUnsupportedVersion

	// ErrNameNotFound indicates a name absent from the named stream map.
	ErrNameNotFound = pdbinfo.ErrNameNotFound

	// ErrEntryNotFound indicates a name with no hash table entry.
	ErrEntryNotFound = hashtable.ErrEntryNotFound

	// ErrCorruptHashTable indicates a present slot outside the table.
	ErrCorruptHashTable = hashtable.ErrCorrupt

	// ErrInvalidStreamIndex indicates a stream index past the directory.
	ErrInvalidStreamIndex = msf.ErrInvalidStreamIndex

	// ErrNilStream indicates a stream with no data.
	ErrNilStream = msf.ErrNilStream

	// ErrFileClosed indicates the PDB file has been closed.
	ErrFileClosed = errors.New("pdb: file is closed")
)

// ParseError provides detailed information about parsing failures.
type ParseError struct {
	Stream string // Stream name where error occurred
	Index  uint32 // Stream index
	Offset int64  // Bytes of the stream consumed when decoding stopped
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pdb: parse error in %s stream %d at offset 0x%x: %v",
		e.Stream, e.Index, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
