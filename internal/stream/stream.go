// Package stream implements the bounded, read-only slice view over the
// data file that Store.Get hands back to callers.
package stream

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// ErrClosed is returned by Read and Seek on a Slice after Close.
var ErrClosed = errors.New("stream: use of closed slice")

// ErrOutOfRange is returned by New when [offset, offset+length) does
// not fit inside the handle, and by Seek for positions outside
// [0, length].
var ErrOutOfRange = errors.New("stream: range out of bounds")

// Slice is a read-only, positionable, bounded view of [offset,
// offset+length) in an underlying file. It owns the file handle: once
// the slice owning it is closed, the handle is closed too.
type Slice struct {
	f      *os.File
	offset int64
	length int64
	pos    int64
	closed bool
}

// New builds a Slice over [offset, offset+length) of f, taking
// ownership of f. It fails with ErrOutOfRange if offset alone exceeds
// f's length, or if offset+length does.
func New(f *os.File, offset, length int64) (*Slice, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "statting slice source")
	}
	size := info.Size()
	if offset > size {
		return nil, errors.Wrapf(ErrOutOfRange, "offset %d exceeds file length %d", offset, size)
	}
	if offset+length > size {
		return nil, errors.Wrapf(ErrOutOfRange, "range [%d,%d) exceeds file length %d", offset, offset+length, size)
	}
	return &Slice{f: f, offset: offset, length: length}, nil
}

// Len reports the slice's fixed length.
func (s *Slice) Len() int64 { return s.length }

// Read implements io.Reader, reading at most min(len(p), length-pos)
// bytes from the underlying file at offset+pos.
func (s *Slice) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if s.pos >= s.length {
		return 0, io.EOF
	}
	if max := s.length - s.pos; int64(len(p)) > max {
		p = p[:max]
	}
	n, err := s.f.ReadAt(p, s.offset+s.pos)
	s.pos += int64(n)
	return n, err
}

// Seek implements io.Seeker, rejecting any resulting position outside
// [0, length].
func (s *Slice) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.pos + offset
	case io.SeekEnd:
		newPos = s.length + offset
	default:
		return 0, errors.Errorf("stream: invalid whence %d", whence)
	}
	if newPos < 0 || newPos > s.length {
		return 0, errors.Wrapf(ErrOutOfRange, "seek to %d outside [0,%d]", newPos, s.length)
	}
	s.pos = newPos
	return newPos, nil
}

// Write, SetLength, and Flush are unsupported; the slice is read-only.
func (s *Slice) Write([]byte) (int, error) {
	return 0, errors.New("stream: slice is read-only")
}

func (s *Slice) SetLength(int64) error {
	return errors.New("stream: slice is read-only")
}

func (s *Slice) Flush() error {
	return errors.New("stream: slice is read-only")
}

// Close disposes the slice and the file handle it owns. Close is
// idempotent.
func (s *Slice) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}
