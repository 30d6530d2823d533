package pdb

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/skdltmxn/pdbmsf/internal/pdbinfo"
	"github.com/skdltmxn/pdbmsf/msf"
)

// Re-exported PDB Info stream types.
type (
	Info        = pdbinfo.Stream
	Header      = pdbinfo.Header
	Version     = pdbinfo.Version
	FeatureCode = pdbinfo.FeatureCode
	GUID        = pdbinfo.GUID
	NamedStream = pdbinfo.NamedStream
)

// Info stream versions and feature codes.
const (
	VC70  = pdbinfo.VC70
	VC98  = pdbinfo.VC98
	VC140 = pdbinfo.VC140

	FeatureVC110            = pdbinfo.FeatureVC110
	FeatureVC140            = pdbinfo.FeatureVC140
	FeatureNoTypeMerge      = pdbinfo.FeatureNoTypeMerge
	FeatureMinimalDebugInfo = pdbinfo.FeatureMinimalDebugInfo
)

// Option configures a File.
type Option func(*options)

type options struct {
	logger      logrus.FieldLogger
	cacheBlocks int
}

// WithLogger routes Debug level trace events of the container and info
// stream to l.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithBlockCache keeps up to n recently read blocks in memory.
func WithBlockCache(n int) Option {
	return func(o *options) {
		o.cacheBlocks = n
	}
}

func (o *options) msfOptions() []msf.Option {
	opts := []msf.Option{msf.WithBlockCache(o.cacheBlocks)}
	if o.logger != nil {
		opts = append(opts, msf.WithLogger(o.logger))
	}
	return opts
}

// File represents an opened PDB file.
// It is safe for concurrent read access after opening.
type File struct {
	msf    *msf.File
	log    logrus.FieldLogger
	closed bool
	mu     sync.RWMutex

	info     *Info
	infoOnce sync.Once
	infoErr  error
}

// StreamInfo describes one entry of the stream directory.
type StreamInfo struct {
	Index  uint32 `json:"index" yaml:"index"`
	Size   uint32 `json:"size" yaml:"size"`
	Blocks int    `json:"blocks" yaml:"blocks"`
	Nil    bool   `json:"nil,omitempty" yaml:"nil,omitempty"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Open opens a PDB file from the given path.
func Open(path string, opts ...Option) (*File, error) {
	o := newOptions(opts)
	msfFile, err := msf.Open(path, o.msfOptions()...)
	if err != nil {
		return nil, errors.Wrap(err, "pdb: failed to open file")
	}
	return newFile(msfFile, o), nil
}

// OpenReader opens a PDB from an io.ReaderAt.
// This allows reading from arbitrary sources (embedded, network, etc.)
func OpenReader(r io.ReaderAt, size int64, opts ...Option) (*File, error) {
	o := newOptions(opts)
	msfFile, err := msf.NewFile(r, size, o.msfOptions()...)
	if err != nil {
		return nil, errors.Wrap(err, "pdb: failed to open file")
	}
	return newFile(msfFile, o), nil
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func newFile(m *msf.File, o *options) *File {
	f := &File{msf: m, log: o.logger}
	if f.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		f.log = l
	}
	return f
}

// Close releases resources associated with the PDB file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}

	f.closed = true
	return f.msf.Close()
}

func (f *File) checkOpen() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrFileClosed
	}
	return nil
}

// Info decodes the PDB Info stream on first use.
func (f *File) Info() (*Info, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}

	f.infoOnce.Do(func() {
		f.info, f.infoErr = f.loadInfo()
	})

	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.info, nil
}

func (f *File) loadInfo() (*Info, error) {
	s, err := f.msf.OpenStream(msf.StreamPDBInfo)
	if err != nil {
		return nil, errors.Wrap(err, "pdb: failed to open PDB info stream")
	}

	info, err := pdbinfo.Parse(s, int64(s.Size()))
	if err != nil {
		return nil, &ParseError{
			Stream: "PDB info",
			Index:  msf.StreamPDBInfo,
			Offset: s.Position(),
			Err:    err,
		}
	}

	f.log.WithFields(logrus.Fields{
		"version":       info.Version,
		"age":           info.Age,
		"named_streams": len(info.NamedStreams.Names),
		"features":      len(info.Features),
	}).Debug("pdb: info stream decoded")

	return info, nil
}

// ResolveStream returns the stream index registered under name in the named
// stream map.
func (f *File) ResolveStream(name string) (uint32, error) {
	info, err := f.Info()
	if err != nil {
		return 0, err
	}
	return info.ResolveStream(name)
}

// NamedStreams lists the names that resolve to a stream.
func (f *File) NamedStreams() ([]NamedStream, error) {
	info, err := f.Info()
	if err != nil {
		return nil, err
	}
	return info.NamedStreams.Entries()
}

// OpenStream opens stream index for reading.
func (f *File) OpenStream(index uint32) (*msf.Stream, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	return f.msf.OpenStream(index)
}

// OpenNamedStream resolves name and opens the stream it refers to.
func (f *File) OpenNamedStream(name string) (*msf.Stream, error) {
	index, err := f.ResolveStream(name)
	if err != nil {
		return nil, err
	}
	return f.OpenStream(index)
}

// Streams describes every entry of the stream directory.
func (f *File) Streams() ([]StreamInfo, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}

	dir, err := f.msf.Directory()
	if err != nil {
		return nil, err
	}

	out := make([]StreamInfo, dir.NumStreams)
	for i := range out {
		size := dir.StreamSizes[i]
		out[i] = StreamInfo{
			Index:  uint32(i),
			Size:   size,
			Blocks: len(dir.StreamBlocks[i]),
			Nil:    size == msf.NilStreamSize,
		}
		if out[i].Nil {
			out[i].Size = 0
		}
	}
	return out, nil
}

// BlockSize returns the block size used by this PDB file.
func (f *File) BlockSize() uint32 {
	return f.msf.BlockSize()
}

// NumBlocks returns the number of blocks declared by the superblock.
func (f *File) NumBlocks() uint32 {
	return f.msf.NumBlocks()
}

// NumStreams returns the number of streams in the PDB.
func (f *File) NumStreams() (uint32, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	return f.msf.NumStreams()
}
