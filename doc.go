// Package bstore is an embedded, single-process binary blob store.
//
// Callers associate a unique string key with a byte stream, using
// Store.Add. The store persists every stream into a single
// append-only data file, storage.bin, and records its location and
// integrity metadata (offset, length, and an MD5 hash) in a companion
// index file, index.bin. Later, a caller supplies a key to Store.Get
// and receives a readable, bounded, positionable stream over exactly
// those bytes.
//
// The store survives process restarts: reopening a working folder
// picks up where the previous session left off, truncating away any
// bytes that were written to storage.bin but never confirmed durable
// (see Open). It tolerates concurrent Add calls from many producer
// goroutines and concurrent Get calls from many readers; see the
// internal/pipeline package for how writers are serialized into one
// ordered append while their hashing runs independently.
//
// A key, once added, cannot be updated or deleted, and there is no
// transactional atomicity across keys. The store does not fsync after
// every Add; durability is best-effort until Close. It assumes a
// single process owns the working folder for its lifetime (Open takes
// an advisory file lock to catch accidental double-opens); it has no
// notion of a network or of multiple cooperating processes.
package bstore
