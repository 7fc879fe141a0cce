package sindex

import (
	"io"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// ErrDuplicateKey is returned by Set when the key is already present.
var ErrDuplicateKey = errors.New("sindex: duplicate key")

// blockCacheSize bounds how many decoded blocks the index keeps
// around to avoid re-reading hot chains from disk.
const blockCacheSize = 1024

// Index owns the index file exclusively; every exported method holds
// its internal lock, so it's safe to call concurrently from many
// reader goroutines and the single append pipeline.
type Index struct {
	mu    sync.Mutex
	f     *os.File
	hdr   *indexHeader
	next  int64 // physical offset for the next appended block
	cache *lru.Cache
}

// Open loads (or initializes) the index file at path.
func Open(path string) (*Index, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening index file %s", path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "statting index file")
	}

	cache, _ := lru.New(blockCacheSize)
	idx := &Index{f: f, cache: cache}

	if info.Size() == 0 {
		idx.hdr = &indexHeader{}
		if _, err := f.WriteAt(idx.hdr.encode(), 0); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "initializing index header")
		}
		idx.next = FullHeaderSize
		return idx, nil
	}

	if info.Size() < FullHeaderSize {
		f.Close()
		return nil, errors.New("sindex: index file shorter than its header")
	}

	buf := make([]byte, FullHeaderSize)
	if err := readFullAt(f, buf, 0); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "reading index header")
	}
	idx.hdr = decodeIndexHeader(buf)
	idx.next = info.Size()

	return idx, nil
}

func readFullAt(f *os.File, buf []byte, off int64) error {
	n, err := f.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

func (idx *Index) readBlock(bi BlockInfo) (IndexBlock, error) {
	if v, ok := idx.cache.Get(bi.Offset); ok {
		return v.(IndexBlock), nil
	}
	buf := make([]byte, bi.Length)
	if err := readFullAt(idx.f, buf, bi.Offset); err != nil {
		return IndexBlock{}, errors.Wrap(err, "reading index block")
	}
	blk, err := decodeIndexBlock(buf)
	if err != nil {
		return IndexBlock{}, err
	}
	idx.cache.Add(bi.Offset, blk)
	return blk, nil
}

// writeBlock appends blk's encoding to the index file and flushes
// before returning, per the format's persistence order: a block must
// be durable before any directory slot points at it.
func (idx *Index) writeBlock(blk IndexBlock) (BlockInfo, error) {
	enc := blk.encode()
	off := idx.next
	if _, err := idx.f.WriteAt(enc, off); err != nil {
		return BlockInfo{}, errors.Wrap(err, "writing index block")
	}
	if err := idx.f.Sync(); err != nil {
		return BlockInfo{}, errors.Wrap(err, "syncing index block")
	}
	idx.next += int64(len(enc))
	bi := BlockInfo{Offset: off, Length: int32(len(enc))}
	idx.cache.Add(off, blk)
	return bi, nil
}

// Get looks up key's metadata, walking the slot's block chain.
func (idx *Index) Get(key string) (StreamMetadata, bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.get(key)
}

func (idx *Index) get(key string) (StreamMetadata, bool, error) {
	bi := idx.hdr.directory[slot(key)]
	for !bi.empty() {
		blk, err := idx.readBlock(bi)
		if err != nil {
			return StreamMetadata{}, false, err
		}
		if m, ok := blk.find(key); ok {
			return m, true, nil
		}
		bi = blk.Next
	}
	return StreamMetadata{}, false, nil
}

// Contains reports whether key is present, without returning its
// metadata.
func (idx *Index) Contains(key string) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, ok, err := idx.get(key)
	return ok, err
}

// Set installs m, rejecting the call if m.Key is already present. On
// success it advances both the index's logical byte count and the
// store's logical end-of-data (m.Offset is expected to equal the
// TotalLength observed before m was staged).
func (idx *Index) Set(m StreamMetadata) error {
	if m.Key == "" {
		return errors.New("sindex: empty key")
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok, err := idx.get(m.Key); err != nil {
		return err
	} else if ok {
		return ErrDuplicateKey
	}

	h := slot(m.Key)
	head := idx.hdr.directory[h]

	var (
		newBI  BlockInfo
		oldLen int32
		err    error
	)
	switch {
	case !head.empty() && int64(head.Length)+int64(m.serializedLen()) < MaxBlockBytes:
		headBlk, rerr := idx.readBlock(head)
		if rerr != nil {
			return rerr
		}
		combined := IndexBlock{Next: headBlk.Next, Payload: headBlk.inserted(m)}
		newBI, err = idx.writeBlock(combined)
		oldLen = head.Length
	default:
		fresh := IndexBlock{Next: head, Payload: []StreamMetadata{m}}
		newBI, err = idx.writeBlock(fresh)
	}
	if err != nil {
		return err
	}

	idx.hdr.directory[h] = newBI
	idx.hdr.indexWrittenLength += int64(newBI.Length) - int64(oldLen)
	idx.hdr.storageWrittenLength += m.Length

	return nil
}

// Skip advances the logical end-of-data by length without installing
// a record, accounting for bytes a failed add already committed to
// the data file.
func (idx *Index) Skip(length int64) {
	idx.mu.Lock()
	idx.hdr.storageWrittenLength += length
	idx.mu.Unlock()
}

// TotalLength returns the current logical end-of-data.
func (idx *Index) TotalLength() int64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.hdr.storageWrittenLength
}

// Close rewrites the header to offset 0, flushes, and closes the
// index file.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, err := idx.f.WriteAt(idx.hdr.encode(), 0); err != nil {
		idx.f.Close()
		return errors.Wrap(err, "writing index header")
	}
	if err := idx.f.Sync(); err != nil {
		idx.f.Close()
		return errors.Wrap(err, "syncing index file")
	}
	return idx.f.Close()
}
