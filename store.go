package bstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/bobg/flock"
	"github.com/pkg/errors"

	"github.com/bobg/bstore/internal/pipeline"
	"github.com/bobg/bstore/internal/sindex"
	"github.com/bobg/bstore/internal/stream"
)

const (
	storageFileName = "storage.bin"
	indexFileName   = "index.bin"
	lockFileName    = "LOCK"
)

// Store is an open blob store: the assembled append pipeline, index,
// and data file, plus the bits of lifecycle management (locking,
// crash recovery, shutdown) that don't belong in any one of those.
type Store struct {
	cfg Config

	flocker flock.Locker
	locked  bool

	index    *sindex.Index
	dataFile *os.File
	pipe     *pipeline.Pipeline

	closeOnce sync.Once
	closeErr  error
}

// Open opens or creates a store rooted at cfg.WorkingFolder. Opening
// truncates storage.bin to the index's recorded durable length,
// recovering from a process that died after writing bytes but before
// its append thread drained them all; it refuses to open (ErrCorrupt)
// if storage.bin is shorter than that length, since that can't be
// repaired by truncation.
func Open(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.WorkingFolder, 0755); err != nil {
		return nil, errors.Wrap(err, "creating working folder")
	}

	s := &Store{cfg: cfg}

	lockPath := filepath.Join(cfg.WorkingFolder, lockFileName)
	if err := s.flocker.Lock(lockPath); err != nil {
		return nil, errors.Wrap(err, "locking working folder")
	}
	s.locked = true

	idx, err := sindex.Open(filepath.Join(cfg.WorkingFolder, indexFileName))
	if err != nil {
		s.flocker.Unlock(lockPath)
		return nil, errors.Wrap(err, "opening index")
	}
	s.index = idx

	dataPath := filepath.Join(cfg.WorkingFolder, storageFileName)
	df, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		idx.Close()
		s.flocker.Unlock(lockPath)
		return nil, errors.Wrap(err, "opening data file")
	}
	s.dataFile = df

	info, err := df.Stat()
	if err != nil {
		df.Close()
		idx.Close()
		s.flocker.Unlock(lockPath)
		return nil, errors.Wrap(err, "statting data file")
	}

	want := idx.TotalLength()
	switch {
	case info.Size() < want:
		df.Close()
		idx.Close()
		s.flocker.Unlock(lockPath)
		return nil, errors.Wrapf(ErrCorrupt, "data file is %d bytes, index expects at least %d", info.Size(), want)
	case info.Size() > want:
		if err := df.Truncate(want); err != nil {
			df.Close()
			idx.Close()
			s.flocker.Unlock(lockPath)
			return nil, errors.Wrap(err, "truncating data file to recovery point")
		}
	}
	if _, err := df.Seek(want, io.SeekStart); err != nil {
		df.Close()
		idx.Close()
		s.flocker.Unlock(lockPath)
		return nil, errors.Wrap(err, "seeking data file to append point")
	}

	s.pipe = pipeline.New(idx, df, cfg.blockSize())

	return s, nil
}

// Add stores data under key, consulting info for validation and
// optional compression.
func (s *Store) Add(ctx context.Context, key string, data Source, info StreamInfo) error {
	if key == "" || data == nil {
		return ErrInvalidArgument
	}

	declaredLength, err := data.Len()
	if err != nil {
		return errors.Wrap(err, "reading source length")
	}

	compressed := shouldCompress(info, declaredLength, s.cfg.CompressionThreshold)

	var compress func(io.Reader) io.Reader
	if compressed {
		compress = compressingReader
	}

	_, err = s.pipe.Add(ctx, key, data, compress, compressed, info.Length, info.Hash)
	return mapPipelineErr(err)
}

// ReadStream is a positionable, length-known read handle returned by
// Get. Closing it releases the underlying file handle.
type ReadStream interface {
	io.ReadCloser
	io.Seeker
	Len() int64
}

// Get resolves key to a readable stream over exactly its stored
// bytes. If the stored record is compressed, the returned stream
// transparently decompresses; such a stream's Len reports the stored
// (compressed) byte count, not the decompressed content length, and
// its Seek always fails; to read it again, call Get again.
func (s *Store) Get(key string) (ReadStream, error) {
	meta, ok, err := s.index.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	f, err := os.Open(filepath.Join(s.cfg.WorkingFolder, storageFileName))
	if err != nil {
		return nil, errors.Wrap(err, "opening data file for read")
	}

	sl, err := stream.New(f, meta.Offset, meta.Length)
	if err != nil {
		f.Close()
		return nil, err
	}

	if !meta.Compressed {
		return sl, nil
	}

	dr, err := newDecompressingReader(sl)
	if err != nil {
		return nil, err
	}
	return &compressedReadStream{inner: dr, length: meta.Length}, nil
}

// compressedReadStream adapts a decompressingReadCloser, which is a
// pure io.ReadCloser, to the ReadStream interface. Seek rejects every
// position, including a rewind to offset 0, with an error wrapping
// ErrInvalidArgument: gzip decompression is not randomly seekable.
type compressedReadStream struct {
	inner  *decompressingReadCloser
	length int64
	pos    int64
}

func (c *compressedReadStream) Read(p []byte) (int, error) {
	n, err := c.inner.Read(p)
	c.pos += int64(n)
	return n, err
}

func (c *compressedReadStream) Close() error { return c.inner.Close() }

func (c *compressedReadStream) Len() int64 { return c.length }

func (c *compressedReadStream) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekStart && offset == 0 {
		return 0, errors.Wrap(ErrInvalidArgument, "compressed stream does not support rewinding; reopen via Get instead")
	}
	return 0, errors.Wrap(ErrInvalidArgument, "compressed stream does not support seeking")
}

// Contains reports whether key has been added.
func (s *Store) Contains(key string) (bool, error) {
	return s.index.Contains(key)
}

// Close shuts the store down: it stops the append pipeline (joining
// the append thread and truncating the data file to its durable
// length), closes the index (rewriting its header), and releases the
// working-folder lock. Close is idempotent; only the first call's
// result is returned.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.close()
	})
	return s.closeErr
}

func (s *Store) close() error {
	fault := s.pipe.Close()

	want := s.index.TotalLength()
	if err := s.dataFile.Truncate(want); err != nil && fault == nil {
		fault = errors.Wrap(err, "truncating data file at shutdown")
	}
	if err := s.dataFile.Close(); err != nil && fault == nil {
		fault = errors.Wrap(err, "closing data file")
	}

	if err := s.index.Close(); err != nil && fault == nil {
		fault = err
	}

	if s.locked {
		if err := s.flocker.Unlock(filepath.Join(s.cfg.WorkingFolder, lockFileName)); err != nil && fault == nil {
			fault = errors.Wrap(err, "unlocking working folder")
		}
	}

	return fault
}

// mapPipelineErr translates the internal/pipeline package's sentinel
// errors onto this package's, so callers only ever need errors.Is
// against the bstore sentinels.
func mapPipelineErr(err error) error {
	switch errors.Cause(err) {
	case nil:
		return nil
	case pipeline.ErrInvalidArgument:
		return ErrInvalidArgument
	case pipeline.ErrCancelled:
		return ErrCancelled
	case pipeline.ErrDuplicateKey:
		return ErrDuplicateKey
	default:
		return err
	}
}
