// Package pdbinfo decodes the PDB Info stream (MSF stream 1): the version,
// signature, age and GUID header, the named stream map and the feature list.
package pdbinfo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/skdltmxn/pdbmsf/internal/stream"
)

// ErrUnsupportedVersion is returned when the header version is not VC70.
var ErrUnsupportedVersion = errors.New("pdbinfo: unsupported PDB version")

// GUID is the 128-bit unique identifier matching a PDB to its image.
type GUID [16]byte

func (g GUID) String() string {
	return fmt.Sprintf("{%08X-%04X-%04X-%02X%02X-%02X%02X%02X%02X%02X%02X}",
		binary.LittleEndian.Uint32(g[0:4]),
		binary.LittleEndian.Uint16(g[4:6]),
		binary.LittleEndian.Uint16(g[6:8]),
		g[8], g[9],
		g[10], g[11], g[12], g[13], g[14], g[15])
}

// Header is the fixed part of the PDB Info stream.
type Header struct {
	Version   Version
	Signature uint32 // Timestamp of PDB creation
	Age       uint32 // Number of times the PDB has been written
	GUID      GUID
}

// Stream is a decoded PDB Info stream.
type Stream struct {
	Header
	NamedStreams *NamedStreamMap
	Features     []FeatureCode
}

// ReadHeader decodes the fixed header and checks that its version is VC70.
func ReadHeader(r *stream.Reader) (Header, error) {
	var h Header

	raw, err := r.ReadU32("version")
	if err != nil {
		return h, err
	}
	if h.Signature, err = r.ReadU32("signature"); err != nil {
		return h, err
	}
	if h.Age, err = r.ReadU32("age"); err != nil {
		return h, err
	}
	if h.GUID, err = r.ReadGUID("unique id"); err != nil {
		return h, err
	}

	if h.Version, err = ParseVersion(raw); err != nil {
		return h, fmt.Errorf("%w: %w", ErrUnsupportedVersion, err)
	}
	if h.Version != VC70 {
		return h, fmt.Errorf("%w: %d (%s)", ErrUnsupportedVersion, raw, h.Version)
	}
	return h, nil
}

// Parse decodes an info stream of size bytes from src.
func Parse(src io.Reader, size int64) (*Stream, error) {
	r := stream.NewReader(src)

	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	names, err := ReadNamedStreamMap(r)
	if err != nil {
		return nil, err
	}

	s := &Stream{Header: h, NamedStreams: names}
	for size-r.Offset() >= 4 {
		raw, err := r.ReadU32("feature code")
		if err != nil {
			return nil, err
		}
		code, err := ParseFeatureCode(raw)
		if err != nil {
			return nil, err
		}
		s.Features = append(s.Features, code)
	}

	return s, nil
}

// ResolveStream returns the stream index recorded for name.
func (s *Stream) ResolveStream(name string) (uint32, error) {
	return s.NamedStreams.Resolve(name)
}

// HasFeature reports whether the feature list contains code.
func (s *Stream) HasFeature(code FeatureCode) bool {
	return slices.Contains(s.Features, code)
}
