package bstore

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Source is the read side of a stream passed to Store.Add: a reader
// that can report its own length upfront. Admission needs the length
// before it starts hashing, to bound the transfer (a stream that grows
// past its declared length is an InvalidArgument, not silently
// truncated or accepted). A StreamInfo.Length hint is checked against
// the byte count actually stored, once the stream has been staged.
type Source interface {
	io.Reader
	Len() (int64, error)
}

// NewBytesSource wraps b as a Source of known length len(b).
func NewBytesSource(b []byte) Source {
	return &sliceSource{b: b}
}

type sliceSource struct {
	b   []byte
	pos int
}

func (s *sliceSource) Read(p []byte) (int, error) {
	if s.pos >= len(s.b) {
		return 0, io.EOF
	}
	n := copy(p, s.b[s.pos:])
	s.pos += n
	return n, nil
}

func (s *sliceSource) Len() (int64, error) { return int64(len(s.b)), nil }

// NewFileSource wraps f as a Source, using its current size as the
// declared length. The caller is responsible for f being positioned
// at the point it wants reading to start from.
func NewFileSource(f *os.File) (Source, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "statting source file")
	}
	return &fileSource{f: f, size: info.Size()}, nil
}

type fileSource struct {
	f    *os.File
	size int64
}

func (s *fileSource) Read(p []byte) (int, error) { return s.f.Read(p) }
func (s *fileSource) Len() (int64, error)         { return s.size, nil }
