package bstore

import "github.com/pkg/errors"

// Error kinds a caller can match with errors.Is.
var (
	// ErrNotFound is returned by Get for a key that has never been
	// added.
	ErrNotFound = errors.New("bstore: key not found")

	// ErrInvalidArgument covers a null key/data/info, a duplicate key,
	// a declared length or hash that doesn't match the computed one,
	// or a stream that grew past its declared length mid-transfer.
	ErrInvalidArgument = errors.New("bstore: invalid argument")

	// ErrDuplicateKey is returned by Add when the key is already
	// present. It is a kind of ErrInvalidArgument: errors.Is matches
	// it against both.
	ErrDuplicateKey = errors.WithMessage(ErrInvalidArgument, "bstore: duplicate key")

	// ErrCancelled is returned when a caller's context is done before
	// or at an admission checkpoint.
	ErrCancelled = errors.New("bstore: cancelled")

	// ErrCorrupt is returned by Open when the data file is shorter
	// than the index's recorded logical length: a state that cannot
	// be repaired by truncation alone.
	ErrCorrupt = errors.New("bstore: store corrupt")
)
