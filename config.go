package bstore

import "github.com/bobg/bstore/internal/ring"

// Config holds the immutable parameters of one store instance.
type Config struct {
	// WorkingFolder holds exactly two files, storage.bin and index.bin.
	// It is created if it does not already exist.
	WorkingFolder string

	// CompressionThreshold gates automatic compression: a stream whose
	// StreamInfo.Compressed is true is actually gzip-compressed when its
	// length exceeds this many bytes, or unconditionally when threshold
	// is 0.
	CompressionThreshold int64

	// BlockSize sizes the append pipeline's staging ring. Zero selects
	// ring.DefaultBlockSize; out-of-range values are clamped.
	BlockSize int
}

func (c Config) blockSize() int {
	if c.BlockSize == 0 {
		return ring.DefaultBlockSize
	}
	return ring.ClampBlockSize(c.BlockSize)
}

// StreamInfo carries caller-supplied hints and requests for one Add
// call. Every non-nil field is validated against the bytes actually
// stored; a mismatch rejects the add.
type StreamInfo struct {
	// Length, if non-nil, must equal the stored byte count.
	Length *int64

	// Hash, if non-nil, must equal the MD5 of the stored bytes.
	Hash *[16]byte

	// Compressed requests gzip compression, subject to
	// Config.CompressionThreshold.
	Compressed bool
}
