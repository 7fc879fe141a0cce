// Package pipeline implements the append pipeline: the single-writer
// staging discipline that serializes many concurrent Add callers into
// one ordered append to the data file, while per-producer hashing and
// length validation run in parallel with that append.
package pipeline

import (
	"context"
	"crypto/md5"
	"hash"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/bobg/bstore/internal/ring"
	"github.com/bobg/bstore/internal/sindex"
)

// Source is the read side of a stream handed to Add: a reader that
// can report its own length upfront, so admission can validate and
// reserve an offset before streaming begins.
type Source interface {
	io.Reader
	Len() (int64, error)
}

// Errors surfaced by Add. Exported so the façade package can map them
// onto its own sentinel error values with errors.Is.
var (
	ErrInvalidArgument = errors.New("pipeline: invalid argument")
	ErrCancelled       = errors.New("pipeline: cancelled")
	ErrDuplicateKey    = sindex.ErrDuplicateKey
)

type ticket struct {
	required int64
	done     chan error
}

// Pipeline is the store's write path: one append goroutine draining a
// ring.Buffer into the data file, and an admission path (Add) that
// serializes producers with a single write lock.
type Pipeline struct {
	index    *sindex.Index
	dataFile *os.File
	ring     *ring.Buffer

	writeLock sync.Mutex // serializes admission steps 4-10

	pending   int64 // atomic: bytes submitted to the ring so far
	processed int64 // atomic: bytes the append goroutine has written so far

	ticketMu sync.Mutex
	tickets  []*ticket

	faultMu sync.Mutex
	fault   error

	cancel chan struct{}
	done   chan struct{} // closed once the append goroutine exits
}

// New starts a Pipeline's append goroutine over dataFile, using idx
// for offset reservation and metadata installation.
func New(idx *sindex.Index, dataFile *os.File, blockSize int) *Pipeline {
	p := &Pipeline{
		index:    idx,
		dataFile: dataFile,
		ring:     ring.New(blockSize),
		cancel:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.appendLoop()
	return p
}

func (p *Pipeline) appendLoop() {
	defer close(p.done)
	for {
		n, err := p.ring.ReadInto(p.dataFile)
		if err != nil {
			log.Printf("bstore: append thread write error: %s", err)
			p.setFault(errors.Wrap(err, "append thread write failed"))
			continue
		}
		if n == 0 {
			return
		}
		atomic.AddInt64(&p.processed, int64(n))
		p.notify()
	}
}

func (p *Pipeline) setFault(err error) {
	p.faultMu.Lock()
	if p.fault == nil {
		p.fault = err
	}
	p.faultMu.Unlock()
	p.completeAllTickets(err)
}

func (p *Pipeline) getFault() error {
	p.faultMu.Lock()
	defer p.faultMu.Unlock()
	return p.fault
}

func (p *Pipeline) enqueueTicket(required int64) <-chan error {
	done := make(chan error, 1)
	if fault := p.getFault(); fault != nil {
		done <- fault
		return done
	}
	if atomic.LoadInt64(&p.processed) >= required {
		done <- nil
		return done
	}
	p.ticketMu.Lock()
	p.tickets = append(p.tickets, &ticket{required: required, done: done})
	p.ticketMu.Unlock()
	return done
}

// notify completes every outstanding ticket whose required count has
// been reached by the append goroutine.
func (p *Pipeline) notify() {
	processed := atomic.LoadInt64(&p.processed)
	p.ticketMu.Lock()
	remaining := p.tickets[:0]
	for _, t := range p.tickets {
		if t.required <= processed {
			t.done <- nil
		} else {
			remaining = append(remaining, t)
		}
	}
	p.tickets = remaining
	p.ticketMu.Unlock()
}

func (p *Pipeline) completeAllTickets(err error) {
	p.ticketMu.Lock()
	for _, t := range p.tickets {
		t.done <- err
	}
	p.tickets = nil
	p.ticketMu.Unlock()
}

// hashingReader computes an MD5 digest and running length over
// whatever it reads from src, sharing a single pass with the transfer
// into the ring (composing a hashing wrapper around the source, per
// the spec's design notes).
type hashingReader struct {
	src io.Reader
	h   hash.Hash
	n   int64
}

func newHashingReader(src io.Reader) *hashingReader {
	return &hashingReader{src: src, h: md5.New()}
}

func (hr *hashingReader) Read(p []byte) (int, error) {
	n, err := hr.src.Read(p)
	if n > 0 {
		hr.h.Write(p[:n])
		hr.n += int64(n)
	}
	return n, err
}

func (hr *hashingReader) sum() [16]byte {
	var out [16]byte
	copy(out[:], hr.h.Sum(nil))
	return out
}

// Add admits one stream through the pipeline: validate, reserve an
// offset, stream bytes into the ring while hashing them, install the
// resulting metadata, and wait for the append goroutine to make those
// bytes durable before returning.
//
// compress, if non-nil, wraps the raw source with a transform (gzip)
// applied before hashing, so hash and length describe the stored
// (possibly compressed) bytes, per §3's definition of those fields.
func (p *Pipeline) Add(ctx context.Context, key string, data Source, compress func(io.Reader) io.Reader, compressed bool, wantLength *int64, wantHash *[16]byte) (sindex.StreamMetadata, error) {
	select {
	case <-ctx.Done():
		return sindex.StreamMetadata{}, ErrCancelled
	case <-p.cancel:
		return sindex.StreamMetadata{}, ErrCancelled
	default:
	}

	if key == "" || data == nil {
		return sindex.StreamMetadata{}, ErrInvalidArgument
	}

	declaredLength, err := data.Len()
	if err != nil {
		return sindex.StreamMetadata{}, errors.Wrap(err, "pipeline: source length unknown")
	}

	p.writeLock.Lock()

	if fault := p.getFault(); fault != nil {
		p.writeLock.Unlock()
		return sindex.StreamMetadata{}, fault
	}

	if ok, err := p.index.Contains(key); err != nil {
		p.writeLock.Unlock()
		return sindex.StreamMetadata{}, err
	} else if ok {
		p.writeLock.Unlock()
		return sindex.StreamMetadata{}, ErrDuplicateKey
	}

	offset := p.index.TotalLength()

	var src io.Reader = data
	if compress != nil {
		src = compress(src)
	}
	hr := newHashingReader(src)

	var running int64
	for {
		n, werr := p.ring.WriteFrom(hr)
		if werr != nil {
			p.index.Skip(running)
			p.writeLock.Unlock()
			return sindex.StreamMetadata{}, errors.Wrap(werr, "pipeline: streaming into ring")
		}
		if n == 0 {
			break
		}
		running += int64(n)
		atomic.AddInt64(&p.pending, int64(n))
		if running > declaredLength && compress == nil {
			p.index.Skip(running)
			p.writeLock.Unlock()
			return sindex.StreamMetadata{}, errors.Wrap(ErrInvalidArgument, "stream exceeded declared length")
		}
	}

	meta := sindex.StreamMetadata{
		Key:        key,
		Offset:     offset,
		Length:     running,
		Hash:       hr.sum(),
		Compressed: compressed,
	}

	if wantLength != nil && *wantLength != meta.Length {
		p.index.Skip(running)
		p.writeLock.Unlock()
		return sindex.StreamMetadata{}, ErrInvalidArgument
	}
	if wantHash != nil && *wantHash != meta.Hash {
		p.index.Skip(running)
		p.writeLock.Unlock()
		return sindex.StreamMetadata{}, ErrInvalidArgument
	}

	if err := p.index.Set(meta); err != nil {
		p.writeLock.Unlock()
		return sindex.StreamMetadata{}, err
	}

	required := atomic.LoadInt64(&p.pending)
	p.writeLock.Unlock()

	done := p.enqueueTicket(required)
	select {
	case err := <-done:
		if err != nil {
			return sindex.StreamMetadata{}, err
		}
	case <-ctx.Done():
		// Bytes already entered the ring and the index entry is
		// already installed; cancellation here is visible to the
		// caller but does not unwind either.
		return sindex.StreamMetadata{}, ErrCancelled
	}

	return meta, nil
}

// Close shuts the pipeline down: it disposes the ring (releasing any
// blocked caller with 0), joins the append goroutine, and reports the
// append goroutine's persistent fault, if any, to the caller.
func (p *Pipeline) Close() error {
	close(p.cancel)
	p.ring.Dispose()
	<-p.done
	return p.getFault()
}
