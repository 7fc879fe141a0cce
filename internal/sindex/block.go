package sindex

import (
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
)

// IndexBlock is a sorted, variable-length payload of metadata records
// sharing a directory slot, chained to its predecessor via Next.
type IndexBlock struct {
	Next    BlockInfo
	Payload []StreamMetadata
}

func (blk IndexBlock) serializedLen() int32 {
	n := int32(BlockInfoSize + 4)
	for _, m := range blk.Payload {
		n += m.serializedLen()
	}
	return n
}

func (blk IndexBlock) encode() []byte {
	out := make([]byte, blk.serializedLen())
	putBlockInfo(out[0:BlockInfoSize], blk.Next)
	binary.LittleEndian.PutUint32(out[BlockInfoSize:BlockInfoSize+4], uint32(len(blk.Payload)))
	off := BlockInfoSize + 4
	for _, m := range blk.Payload {
		off += m.encode(out[off:])
	}
	return out
}

func decodeIndexBlock(b []byte) (IndexBlock, error) {
	if len(b) < BlockInfoSize+4 {
		return IndexBlock{}, errors.New("sindex: short block read")
	}
	var blk IndexBlock
	blk.Next = getBlockInfo(b[0:BlockInfoSize])
	count := binary.LittleEndian.Uint32(b[BlockInfoSize : BlockInfoSize+4])
	off := BlockInfoSize + 4
	blk.Payload = make([]StreamMetadata, 0, count)
	for i := uint32(0); i < count; i++ {
		if off >= len(b) {
			return IndexBlock{}, errors.New("sindex: short block read")
		}
		m, n := decodeStreamMetadata(b[off:])
		blk.Payload = append(blk.Payload, m)
		off += n
	}
	return blk, nil
}

// find does a binary search for key in a sorted payload, per invariant
// 5: it must take at most ceil(log2(len(payload))) comparisons.
func (blk IndexBlock) find(key string) (StreamMetadata, bool) {
	i := sort.Search(len(blk.Payload), func(i int) bool {
		return !keyLess(blk.Payload[i].Key, key)
	})
	if i < len(blk.Payload) && blk.Payload[i].Key == key {
		return blk.Payload[i], true
	}
	return StreamMetadata{}, false
}

// inserted returns a copy of blk.Payload with m inserted in sorted
// order. The caller must already know key is absent from the chain.
func (blk IndexBlock) inserted(m StreamMetadata) []StreamMetadata {
	i := sort.Search(len(blk.Payload), func(i int) bool {
		return !keyLess(blk.Payload[i].Key, m.Key)
	})
	out := make([]StreamMetadata, 0, len(blk.Payload)+1)
	out = append(out, blk.Payload[:i]...)
	out = append(out, m)
	out = append(out, blk.Payload[i:]...)
	return out
}
