// Package sindex implements the on-disk index: a fixed 65535-slot hash
// directory fronting chains of sorted, variable-length metadata
// blocks, written with an append-rewrite discipline.
package sindex

import (
	"crypto/md5"
	"encoding/binary"
	"unicode/utf16"
)

// DirectorySlots is the fixed number of hash-directory slots. It is
// deliberately not a power of two; compatibility with any other
// implementation of this format requires the exact slot count and
// hash fold below.
const DirectorySlots = 65535

// MaxBlockBytes bounds how large a combined block may grow before a
// new chain link is started instead of rewriting the head in place.
const MaxBlockBytes = 256 * 1024 * 1024

// BlockInfo locates a block inside the index file. Offset == 0 means
// "no block".
type BlockInfo struct {
	Offset int64
	Length int32
}

// BlockInfoSize is BlockInfo's fixed serialized size.
const BlockInfoSize = 8 + 4

func (bi BlockInfo) empty() bool { return bi.Offset == 0 }

func putBlockInfo(b []byte, bi BlockInfo) {
	binary.LittleEndian.PutUint64(b[0:8], uint64(bi.Offset))
	binary.LittleEndian.PutUint32(b[8:12], uint32(bi.Length))
}

func getBlockInfo(b []byte) BlockInfo {
	return BlockInfo{
		Offset: int64(binary.LittleEndian.Uint64(b[0:8])),
		Length: int32(binary.LittleEndian.Uint32(b[8:12])),
	}
}

// encodeUTF16LE renders key as little-endian UTF-16 code units.
func encodeUTF16LE(key string) []byte {
	units := utf16.Encode([]rune(key))
	out := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[2*i:2*i+2], u)
	}
	return out
}

func decodeUTF16LE(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i : 2*i+2])
	}
	return string(utf16.Decode(units))
}

// keyLess orders two keys by their UTF-16 code units, matching the
// order blocks are kept sorted in.
func keyLess(a, b string) bool {
	ua, ub := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}

// slot computes h(key) mod DirectorySlots using the fold specified for
// this format: abs(md5(utf16le(key)).fold(397, (s,b) => (s*397) xor b)).
func slot(key string) int {
	sum := md5.Sum(encodeUTF16LE(key))
	h := int32(397)
	for _, b := range sum {
		h = h*397 ^ int32(b)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v % DirectorySlots)
}
