package msf

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/pdbmsf/internal/pdbtest"
)

// streamFixture builds a scattered image whose stream 1 is 2.5 blocks long.
func streamFixture(t *testing.T, bs uint32, opts ...Option) (*File, []byte, []byte, *pdbtest.Layout) {
	t.Helper()
	content := pdbtest.Pattern(int(bs)*5/2, 0x5a)
	img := &pdbtest.Image{
		BlockSize: bs,
		Scatter:   true,
		Streams:   [][]byte{pdbtest.Pattern(100, 1), content, pdbtest.Pattern(int(bs)+3, 2)},
	}
	data, layout := img.Build()
	f, err := NewFile(bytes.NewReader(data), int64(len(data)), opts...)
	require.NoError(t, err)
	return f, data, content, layout
}

func TestStreamReadWholeMatchesBlocks(t *testing.T) {
	for _, bs := range blockSizes {
		f, data, content, layout := streamFixture(t, bs)

		s, err := f.OpenStream(1)
		require.NoError(t, err)
		require.Equal(t, uint32(len(content)), s.Size())
		require.Equal(t, int64(3*bs), s.Capacity())
		require.Equal(t, layout.StreamBlocks[1], s.Blocks())

		got := make([]byte, len(content))
		n, err := s.Read(got)
		require.NoError(t, err)
		require.Equal(t, len(content), n)
		require.Equal(t, content, got)

		// Concatenating the physical blocks directly gives the same bytes.
		var direct []byte
		for _, b := range layout.StreamBlocks[1] {
			direct = append(direct, data[int(b)*int(bs):int(b+1)*int(bs)]...)
		}
		require.Equal(t, direct[:len(content)], got)

		n, err = s.Read(make([]byte, 1))
		require.Equal(t, 0, n)
		require.ErrorIs(t, err, io.EOF)
		require.ErrorIs(t, err, ErrUnexpectedEndOfStream)
	}
}

func TestStreamSplitReads(t *testing.T) {
	for _, bs := range blockSizes {
		f, _, content, _ := streamFixture(t, bs)

		for _, split := range []int{1, int(bs) / 3, int(bs) - 1, int(bs), int(bs) + 1, 2*int(bs) + 7} {
			s, err := f.OpenStream(1)
			require.NoError(t, err)

			first := make([]byte, split)
			_, err = s.Read(first)
			require.NoError(t, err)
			require.Equal(t, int64(split), s.Position())

			second := make([]byte, len(content)-split)
			_, err = s.Read(second)
			require.NoError(t, err)

			require.Equal(t, content, append(first, second...), "block size %d split %d", bs, split)
			require.Equal(t, uint32(0), s.Remaining())
		}
	}
}

func TestStreamSeekThenRead(t *testing.T) {
	for _, bs := range blockSizes {
		f, _, content, _ := streamFixture(t, bs)
		s, err := f.OpenStream(1)
		require.NoError(t, err)

		b := int(bs)
		cases := [][2]int{{0, 10}, {5, b}, {b - 1, 2}, {b, b}, {b + 1, b + 5}, {2*b - 3, b / 2}, {len(content) - 1, 1}}
		for _, c := range cases {
			k, n := c[0], c[1]

			pos, err := s.Seek(int64(k), io.SeekStart)
			require.NoError(t, err)
			require.Equal(t, int64(k), pos)

			got := make([]byte, n)
			_, err = s.Read(got)
			require.NoError(t, err)

			full := make([]byte, k+n)
			_, err = s.ReadAt(full, 0)
			require.NoError(t, err)

			require.Equal(t, full[k:], got, "block size %d seek %d read %d", bs, k, n)
			require.Equal(t, content[k:k+n], got)
		}
	}
}

func TestStreamOutOfBounds(t *testing.T) {
	require := require.New(t)

	f, _, content, _ := streamFixture(t, 512)
	s, err := f.OpenStream(1)
	require.NoError(err)

	_, err = s.Seek(s.Capacity()+1, io.SeekStart)
	require.ErrorIs(err, ErrUnexpectedEndOfStream)
	require.Equal(int64(0), s.Position())

	_, err = s.Seek(-1, io.SeekStart)
	require.ErrorIs(err, ErrNegativeOffset)

	pos, err := s.Seek(s.Capacity(), io.SeekStart)
	require.NoError(err)
	require.Equal(s.Capacity(), pos)
	n, err := s.Read(make([]byte, 4))
	require.Equal(0, n)
	require.ErrorIs(err, ErrUnexpectedEndOfStream)
	require.ErrorIs(err, io.EOF)
	require.Equal(s.Capacity(), s.Position())

	_, err = s.Seek(100, io.SeekStart)
	require.NoError(err)
	n, err = s.Read(make([]byte, len(content)))
	require.Equal(0, n)
	require.ErrorIs(err, ErrUnexpectedEndOfStream)
	require.Equal(int64(100), s.Position(), "a failed read must not move the cursor")

	buf := make([]byte, len(content)-100)
	_, err = s.Read(buf)
	require.NoError(err)
	require.Equal(content[100:], buf)
}

func TestStreamUnsupportedSeek(t *testing.T) {
	f, _, _, _ := streamFixture(t, 1024)
	s, err := f.OpenStream(1)
	require.NoError(t, err)

	for _, whence := range []int{io.SeekCurrent, io.SeekEnd, 42} {
		_, err = s.Seek(0, whence)
		require.ErrorIs(t, err, ErrUnsupportedSeek)
	}
}

func TestStreamReadAt(t *testing.T) {
	require := require.New(t)

	f, _, content, _ := streamFixture(t, 512)
	s, err := f.OpenStream(1)
	require.NoError(err)

	p := make([]byte, 64)
	n, err := s.ReadAt(p, int64(len(content)-10))
	require.Equal(10, n)
	require.Equal(io.EOF, err)
	require.Equal(content[len(content)-10:], p[:10])

	_, err = s.ReadAt(p, int64(len(content)))
	require.Equal(io.EOF, err)

	_, err = s.ReadAt(p, -5)
	require.ErrorIs(err, ErrNegativeOffset)

	require.Equal(int64(0), s.Position())

	all, err := s.Bytes()
	require.NoError(err)
	require.Equal(content, all)

	viaFile, err := f.ReadStream(1)
	require.NoError(err)
	require.Equal(content, viaFile)
}

func TestStreamReset(t *testing.T) {
	require := require.New(t)

	f, _, content, _ := streamFixture(t, 512)
	s, err := f.OpenStream(1)
	require.NoError(err)

	_, err = s.Read(make([]byte, 700))
	require.NoError(err)
	s.Reset()

	p := make([]byte, 4)
	_, err = s.Read(p)
	require.NoError(err)
	require.Equal(content[:4], p)
}

func TestStreamWriteTo(t *testing.T) {
	require := require.New(t)

	f, _, content, _ := streamFixture(t, 1024)
	s, err := f.OpenStream(1)
	require.NoError(err)

	_, err = s.Read(make([]byte, 10))
	require.NoError(err)

	var buf bytes.Buffer
	n, err := io.Copy(&buf, s)
	require.NoError(err)
	require.Equal(int64(len(content)-10), n)
	require.Equal(content[10:], buf.Bytes())
	require.Zero(s.Remaining())

	n, err = io.Copy(&buf, s)
	require.NoError(err)
	require.Zero(n)
}

func TestOpenStreamErrors(t *testing.T) {
	require := require.New(t)

	img := &pdbtest.Image{BlockSize: 512, Streams: [][]byte{{}, nil, {1}}}
	data, _ := img.Build()
	f, err := NewFile(bytes.NewReader(data), int64(len(data)))
	require.NoError(err)

	_, err = f.OpenStream(3)
	require.ErrorIs(err, ErrInvalidStreamIndex)

	_, err = f.OpenStream(1)
	require.ErrorIs(err, ErrNilStream)

	s, err := f.OpenStream(0)
	require.NoError(err)
	require.Equal(uint32(0), s.Size())
	_, err = s.Read(make([]byte, 1))
	require.ErrorIs(err, io.EOF)
	require.ErrorIs(err, ErrUnexpectedEndOfStream)
	b, err := s.Bytes()
	require.NoError(err)
	require.Empty(b)

	ok, err := f.StreamExists(2)
	require.NoError(err)
	require.True(ok)
	size, err := f.StreamSize(2)
	require.NoError(err)
	require.Equal(uint32(1), size)
	num, err := f.NumStreams()
	require.NoError(err)
	require.Equal(uint32(3), num)
}

func TestStreamBadBlockIndex(t *testing.T) {
	require := require.New(t)

	f, _, _, _ := streamFixture(t, 512)
	s := newStream(f, 9, []uint32{f.NumBlocks()}, 10)

	_, err := s.Read(make([]byte, 4))
	require.ErrorIs(err, ErrInvalidBlockIndex)
	require.Equal(int64(0), s.Position())

	_, err = s.ReadAt(make([]byte, 4), 0)
	require.ErrorIs(err, ErrInvalidBlockIndex)
}

func TestStreamTruncatedFile(t *testing.T) {
	img := &pdbtest.Image{BlockSize: 512, Streams: [][]byte{pdbtest.Pattern(600, 1)}}
	data, layout := img.Build()

	f, err := NewFile(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	_, err = f.Directory()
	require.NoError(t, err)

	// Blocks stay addressable but the bytes behind them are gone.
	cut := int64(layout.StreamBlocks[0][1]) * 512
	f.data = bytes.NewReader(data[:cut])
	_, err = f.ReadStream(0)
	require.ErrorIs(t, err, ErrTruncatedFile)
}

func TestBlockCache(t *testing.T) {
	require := require.New(t)

	plain, _, content, _ := streamFixture(t, 512)
	cached, _, _, _ := streamFixture(t, 512, WithBlockCache(2))
	require.NotNil(cached.cache)
	require.Nil(plain.cache)

	for _, f := range []*File{plain, cached} {
		s, err := f.OpenStream(1)
		require.NoError(err)
		for i := 0; i < 3; i++ {
			_, err = s.Seek(int64(i*37), io.SeekStart)
			require.NoError(err)
			got := make([]byte, len(content)-i*37)
			_, err = s.Read(got)
			require.NoError(err)
			require.Equal(content[i*37:], got)
		}
	}
	require.Positive(cached.cache.Len())
}

func TestBlockCacheShortLastBlock(t *testing.T) {
	img := &pdbtest.Image{
		BlockSize: 512,
		Streams:   [][]byte{pdbtest.Pattern(100, 1), pdbtest.Pattern(600, 2)},
	}
	data, layout := img.Build()
	last := int(layout.StreamBlocks[1][1])
	require.Equal(t, 5, last)

	for _, opts := range [][]Option{nil, {WithBlockCache(4)}} {
		f, err := NewFile(bytes.NewReader(data), int64(len(data)), opts...)
		require.NoError(t, err)
		_, err = f.Directory()
		require.NoError(t, err)

		// The file ends right after the stream's 88 bytes in its last block.
		f.data = bytes.NewReader(data[:last*512+88])
		got, err := f.ReadStream(1)
		require.NoError(t, err, "cached %v", f.cache != nil)
		require.Equal(t, img.Streams[1], got)

		// Cut 10 bytes into that block, the stream no longer fits.
		f.data = bytes.NewReader(data[:last*512+10])
		if f.cache != nil {
			f.cache.Purge()
		}
		_, err = f.ReadStream(1)
		require.ErrorIs(t, err, ErrTruncatedFile, "cached %v", f.cache != nil)
	}
}

func TestIndependentStreamsConcurrently(t *testing.T) {
	f, _, content, _ := streamFixture(t, 512, WithBlockCache(4))
	other, err := f.ReadStream(2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx, want := uint32(1), content
			if i%2 == 1 {
				idx, want = 2, other
			}
			s, err := f.OpenStream(idx)
			if err != nil {
				t.Error(err)
				return
			}
			for j := 0; j < 20; j++ {
				s.Reset()
				got := make([]byte, len(want))
				if _, err := s.Read(got); err != nil {
					t.Error(err)
					return
				}
				if !bytes.Equal(want, got) {
					t.Errorf("stream %d: content mismatch", idx)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestOpenPath(t *testing.T) {
	require := require.New(t)

	img := &pdbtest.Image{BlockSize: 1024, Scatter: true, Streams: [][]byte{nil, pdbtest.Pattern(3000, 9)}}
	data, _ := img.Build()
	path := filepath.Join(t.TempDir(), "test.pdb")
	require.NoError(os.WriteFile(path, data, 0o644))

	f, err := Open(path)
	require.NoError(err)
	defer f.Close()

	require.Equal(int64(len(data)), f.FileSize())
	require.Equal(uint32(1024), f.BlockSize())

	got, err := f.ReadStream(1)
	require.NoError(err)
	require.Equal(pdbtest.Pattern(3000, 9), got)

	_, err = Open(filepath.Join(t.TempDir(), "missing.pdb"))
	require.Error(err)

	bad := filepath.Join(t.TempDir(), "bad.pdb")
	require.NoError(os.WriteFile(bad, []byte("not a pdb"), 0o644))
	_, err = Open(bad)
	require.ErrorIs(err, ErrTruncatedFile)
}

func TestTraceEvents(t *testing.T) {
	require := require.New(t)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f, _, _, _ := streamFixture(t, 512, WithLogger(logger))
	_, err := f.OpenStream(1)
	require.NoError(err)

	var messages []string
	for _, e := range hook.AllEntries() {
		messages = append(messages, e.Message)
	}
	require.Equal([]string{
		"msf: superblock loaded",
		"msf: stream directory loaded",
		"msf: stream opened",
	}, messages)
	require.Equal(uint32(1), hook.LastEntry().Data["stream"])
}
