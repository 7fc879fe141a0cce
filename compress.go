package bstore

import (
	"compress/gzip"
	"io"

	"github.com/pkg/errors"
)

// shouldCompress applies the compression_threshold gate: a stream is
// actually compressed only if the caller requested it and either the
// threshold is disabled (0) or the declared length exceeds it.
func shouldCompress(info StreamInfo, declaredLength int64, threshold int64) bool {
	if !info.Compressed {
		return false
	}
	return threshold == 0 || declaredLength > threshold
}

// compressingReader gzip-compresses src on the fly, so a caller
// wrapping it in a hashing reader gets a hash and length that
// describe the compressed bytes actually written to the data file.
//
// gzip.Writer only pushes bytes to its underlying writer as its
// internal buffer fills, which doesn't compose with a pull-based
// Reader interface; io.Pipe bridges the two by running the gzip
// writer on a goroutine that feeds a PipeWriter, while Read on the
// PipeReader drives it forward one buffer at a time.
func compressingReader(src io.Reader) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		zw := gzip.NewWriter(pw)
		_, err := io.Copy(zw, src)
		if err != nil {
			zw.Close()
			pw.CloseWithError(err)
			return
		}
		if err := zw.Close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()
	return pr
}

// decompressingReadCloser wraps a gzip-compressed stream so Get
// returns caller-readable plaintext. gzip.Reader doesn't support
// random-access seeking, so a compressed stream's ReadStream does not
// support Seek at all; see compressedReadStream.Seek.
type decompressingReadCloser struct {
	inner io.ReadCloser
	zr    *gzip.Reader
}

func newDecompressingReader(inner io.ReadCloser) (*decompressingReadCloser, error) {
	zr, err := gzip.NewReader(inner)
	if err != nil {
		inner.Close()
		return nil, errors.Wrap(err, "opening compressed stream")
	}
	return &decompressingReadCloser{inner: inner, zr: zr}, nil
}

func (d *decompressingReadCloser) Read(p []byte) (int, error) { return d.zr.Read(p) }

func (d *decompressingReadCloser) Close() error {
	zerr := d.zr.Close()
	ierr := d.inner.Close()
	if zerr != nil {
		return zerr
	}
	return ierr
}
