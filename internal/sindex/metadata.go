package sindex

import "encoding/binary"

// StreamMetadata is the persistent per-key record. On disk, length is
// stored as a signed int64 whose sign bit carries Compressed: negative
// means compressed, and the magnitude is the real length.
type StreamMetadata struct {
	Key        string
	Offset     int64
	Length     int64
	Hash       [16]byte
	Compressed bool
}

// serializedLen returns StreamMetadata's encoded size: 2*int64 + 16 +
// int32 + 2*len(key) (UTF-16 code units), per the wire format.
func (m StreamMetadata) serializedLen() int32 {
	keyBytes := encodeUTF16LE(m.Key)
	return 8 + 8 + 16 + 4 + int32(len(keyBytes))
}

func (m StreamMetadata) encode(b []byte) int {
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.Offset))

	signed := m.Length
	if m.Compressed {
		signed = -signed
	}
	binary.LittleEndian.PutUint64(b[8:16], uint64(signed))

	copy(b[16:32], m.Hash[:])

	keyBytes := encodeUTF16LE(m.Key)
	binary.LittleEndian.PutUint32(b[32:36], uint32(len(keyBytes)))
	copy(b[36:], keyBytes)

	return 36 + len(keyBytes)
}

// decodeStreamMetadata reads one StreamMetadata from b, returning the
// number of bytes consumed.
func decodeStreamMetadata(b []byte) (StreamMetadata, int) {
	var m StreamMetadata
	m.Offset = int64(binary.LittleEndian.Uint64(b[0:8]))

	signed := int64(binary.LittleEndian.Uint64(b[8:16]))
	if signed < 0 {
		m.Compressed = true
		m.Length = -signed
	} else {
		m.Length = signed
	}

	copy(m.Hash[:], b[16:32])

	keyLen := binary.LittleEndian.Uint32(b[32:36])
	m.Key = decodeUTF16LE(b[36 : 36+int(keyLen)])

	return m, 36 + int(keyLen)
}
