package pdbinfo

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/pdbmsf/internal/hashtable"
	"github.com/skdltmxn/pdbmsf/internal/pdbtest"
	"github.com/skdltmxn/pdbmsf/internal/stream"
)

func readMap(t *testing.T, data []byte) *NamedStreamMap {
	t.Helper()
	m, err := ReadNamedStreamMap(stream.NewReader(bytes.NewReader(data)))
	require.NoError(t, err)
	return m
}

func TestNamedStreamMapResolvesByPosition(t *testing.T) {
	require := require.New(t)

	m := readMap(t, pdbtest.NamedStreamMap(
		[]string{"/names", "/LinkInfo", "/src/headerblock"},
		pdbtest.NewHashTable(8, map[uint32]pdbtest.Slot{
			0: {Key: 0, Value: 12},
			3: {Key: 1, Value: 7},
			5: {Key: 2, Value: 9},
		}),
	))

	for name, want := range map[string]uint32{"/names": 12, "/LinkInfo": 7, "/src/headerblock": 9} {
		idx, err := m.Resolve(name)
		require.NoError(err, name)
		require.Equal(want, idx, name)
	}

	entries, err := m.Entries()
	require.NoError(err)
	require.Equal([]NamedStream{
		{Name: "/names", Stream: 12},
		{Name: "/LinkInfo", Stream: 7},
		{Name: "/src/headerblock", Stream: 9},
	}, entries)
}

func TestNamedStreamMapNameNotFound(t *testing.T) {
	m := readMap(t, pdbtest.NamedStreamMap([]string{"/names"},
		pdbtest.NewHashTable(1, map[uint32]pdbtest.Slot{0: {Key: 0, Value: 5}})))

	_, err := m.Resolve("/LinkInfo")
	require.ErrorIs(t, err, ErrNameNotFound)
	var nf *NameNotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, "/LinkInfo", nf.Name)
}

func TestNamedStreamMapEntriesSkipsUnmapped(t *testing.T) {
	m := readMap(t, pdbtest.NamedStreamMap([]string{"/a", "/b"},
		pdbtest.NewHashTable(2, map[uint32]pdbtest.Slot{1: {Key: 1, Value: 4}})))

	entries, err := m.Entries()
	require.NoError(t, err)
	require.Equal(t, []NamedStream{{Name: "/b", Stream: 4}}, entries)

	_, err = m.Resolve("/a")
	require.ErrorIs(t, err, hashtable.ErrEntryNotFound)
	require.NotErrorIs(t, err, ErrNameNotFound)
}

func TestNamedStreamMapCorruptTable(t *testing.T) {
	h := pdbtest.NewHashTable(1, nil)
	h.Present = pdbtest.BitVector(1, 3)
	m := readMap(t, pdbtest.NamedStreamMap([]string{"/a"}, h))

	_, err := m.Resolve("/a")
	require.ErrorIs(t, err, hashtable.ErrCorrupt)

	_, err = m.Entries()
	require.ErrorIs(t, err, hashtable.ErrCorrupt)
}

func TestSplitNames(t *testing.T) {
	require := require.New(t)

	names, err := splitNames([]byte("/names\x00\x00/LinkInfo\x00tail"))
	require.NoError(err)
	require.Equal([]string{"/names", "", "/LinkInfo"}, names)

	names, err = splitNames(nil)
	require.NoError(err)
	require.Empty(names)

	_, err = splitNames([]byte("ok\x00\xff\xfe\x00"))
	require.ErrorIs(err, ErrInvalidStringTable)
}

func TestNamedStreamMapTruncated(t *testing.T) {
	var buf bytes.Buffer
	pdbtest.PutU32(&buf, 100)
	buf.WriteString("/names\x00")

	_, err := ReadNamedStreamMap(stream.NewReader(&buf))
	require.ErrorIs(t, err, stream.ErrUnexpectedEOF)
	require.Contains(t, err.Error(), "string table")
}
