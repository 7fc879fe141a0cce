package bstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"
)

func open(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(Config{WorkingFolder: dir})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func readAll(t *testing.T, rs ReadStream) []byte {
	t.Helper()
	b, err := io.ReadAll(rs)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// S1: a 64KiB stream round-trips exactly.
func TestScenarioLargeRoundTrip(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	data := make([]byte, 0, 65536)
	for i := 0; i < 256; i++ {
		for b := 0; b < 256; b++ {
			data = append(data, byte(b))
		}
	}
	if err := s.Add(context.Background(), "a", NewBytesSource(data), StreamInfo{}); err != nil {
		t.Fatal(err)
	}

	rs, err := s.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Close()

	got := readAll(t, rs)
	if !bytes.Equal(got, data) {
		t.Fatalf("round-tripped data mismatch, got %d bytes want %d", len(got), len(data))
	}
	if rs.Len() != 65536 {
		t.Fatalf("Len() = %d, want 65536", rs.Len())
	}
}

// S2: an empty stream is allowed and round-trips to an empty read.
func TestScenarioEmptyStream(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	if err := s.Add(context.Background(), "empty", NewBytesSource(nil), StreamInfo{}); err != nil {
		t.Fatal(err)
	}
	rs, err := s.Get("empty")
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Close()
	if got := readAll(t, rs); len(got) != 0 {
		t.Fatalf("got %d bytes, want 0", len(got))
	}
}

// S3: many keys persist across a close/reopen cycle.
func TestScenarioManyKeysPersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s := open(t, dir)

	rng := rand.New(rand.NewSource(1))
	const n = 500 // scaled down from the spec's 10,000 for test runtime
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("k%05d", i)
		data := make([]byte, 1024)
		rng.Read(data)
		if err := s.Add(context.Background(), key, NewBytesSource(data), StreamInfo{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2 := open(t, dir)
	defer s2.Close()
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("k%05d", i)
		ok, err := s2.Contains(key)
		if err != nil || !ok {
			t.Fatalf("key %s: ok=%v err=%v", key, ok, err)
		}
	}
}

// S4: two producers tile offsets densely.
func TestScenarioTwoProducersDenseOffsets(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	const perProducer = 1000
	const size = 4096

	var eg errgroup.Group
	var mu sync.Mutex
	offsets := make(map[string]int64)

	for p := 0; p < 2; p++ {
		p := p
		eg.Go(func() error {
			for i := 0; i < perProducer; i++ {
				key := fmt.Sprintf("p%d-%d", p, i)
				data := bytes.Repeat([]byte{byte(p)}, size)
				if err := s.Add(context.Background(), key, NewBytesSource(data), StreamInfo{}); err != nil {
					return err
				}
				meta, ok, err := s.index.Get(key)
				if err != nil || !ok {
					return fmt.Errorf("lost key %s after add", key)
				}
				mu.Lock()
				offsets[key] = meta.Offset
				mu.Unlock()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}

	sorted := make([]int64, 0, len(offsets))
	for _, off := range offsets {
		sorted = append(sorted, off)
	}
	want := make(map[int64]bool, len(sorted))
	for i := 0; i < 2*perProducer; i++ {
		want[int64(i*size)] = true
	}
	for _, off := range sorted {
		if !want[off] {
			t.Errorf("unexpected offset %d", off)
		}
		delete(want, off)
	}
	if len(want) != 0 {
		t.Fatalf("%d offsets never produced", len(want))
	}
}

// S5: a wrong hash hint rejects; a subsequent unhinted add succeeds.
func TestScenarioWrongHashThenRetry(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	data := []byte("some bytes")
	var wrong [16]byte
	copy(wrong[:], bytes.Repeat([]byte{0xAB}, 16))

	err := s.Add(context.Background(), "x", NewBytesSource(data), StreamInfo{Hash: &wrong})
	if err != ErrInvalidArgument {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}

	if err := s.Add(context.Background(), "x", NewBytesSource(data), StreamInfo{}); err != nil {
		t.Fatal(err)
	}
	rs, err := s.Get("x")
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Close()
	if got := readAll(t, rs); !bytes.Equal(got, data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}

// S6: a 0-byte stream followed by a 1-byte stream places the second
// at offset 0, since empty streams take no space in the data file.
func TestScenarioEmptyThenOneByte(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	if err := s.Add(context.Background(), "z", NewBytesSource(nil), StreamInfo{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(context.Background(), "one", NewBytesSource([]byte{0x42}), StreamInfo{}); err != nil {
		t.Fatal(err)
	}

	meta, ok, err := s.index.Get("one")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if meta.Offset != 0 {
		t.Fatalf("offset = %d, want 0", meta.Offset)
	}

	rs, err := s.Get("one")
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Close()
	if got := readAll(t, rs); !bytes.Equal(got, []byte{0x42}) {
		t.Fatalf("got %v, want [0x42]", got)
	}
}

func TestDuplicateKeyLeavesOriginalIntact(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	if err := s.Add(context.Background(), "k", NewBytesSource([]byte("first")), StreamInfo{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(context.Background(), "k", NewBytesSource([]byte("second")), StreamInfo{}); err != ErrDuplicateKey {
		t.Fatalf("got %v, want ErrDuplicateKey", err)
	}

	rs, err := s.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Close()
	if got := readAll(t, rs); string(got) != "first" {
		t.Fatalf("got %q, want %q", got, "first")
	}
}

func TestGetUnknownKeyNotFound(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	if _, err := s.Get("nope"); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSliceBoundsOnRetrievedStream(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	data := []byte("0123456789")
	if err := s.Add(context.Background(), "n", NewBytesSource(data), StreamInfo{}); err != nil {
		t.Fatal(err)
	}
	rs, err := s.Get("n")
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Close()

	if _, err := rs.Seek(int64(len(data)), io.SeekStart); err != nil {
		t.Fatalf("seek to length should succeed: %v", err)
	}
	buf := make([]byte, 1)
	if n, err := rs.Read(buf); n != 0 || err != io.EOF {
		t.Fatalf("read past length: n=%d err=%v, want 0,EOF", n, err)
	}

	if _, err := rs.Seek(int64(len(data)+1), io.SeekStart); err == nil {
		t.Fatal("seek past length should fail")
	}
}

func TestCrashTruncationRecovery(t *testing.T) {
	dir := t.TempDir()
	s := open(t, dir)

	if err := s.Add(context.Background(), "k1", NewBytesSource([]byte("hello")), StreamInfo{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	dataPath := filepath.Join(dir, storageFileName)
	f, err := os.OpenFile(dataPath, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte("garbage-appended-after-close")); err != nil {
		t.Fatal(err)
	}
	f.Close()

	s2 := open(t, dir)
	defer s2.Close()

	rs, err := s2.Get("k1")
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Close()
	if got := readAll(t, rs); string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}

	info, err := os.Stat(dataPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != int64(len("hello")) {
		t.Fatalf("data file size after recovery = %d, want %d", info.Size(), len("hello"))
	}
}

func TestCorruptWhenDataFileShorterThanIndex(t *testing.T) {
	dir := t.TempDir()
	s := open(t, dir)
	if err := s.Add(context.Background(), "k1", NewBytesSource([]byte("hello world")), StreamInfo{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	dataPath := filepath.Join(dir, storageFileName)
	if err := os.Truncate(dataPath, 3); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(Config{WorkingFolder: dir}); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("got %v, want ErrCorrupt", err)
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	data := bytes.Repeat([]byte("compress me please "), 1000)
	if err := s.Add(context.Background(), "c", NewBytesSource(data), StreamInfo{Compressed: true}); err != nil {
		t.Fatal(err)
	}

	meta, ok, err := s.index.Get("c")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if !meta.Compressed {
		t.Fatal("expected record to be flagged compressed")
	}
	if meta.Length >= int64(len(data)) {
		t.Fatalf("stored length %d not smaller than raw %d", meta.Length, len(data))
	}

	rs, err := s.Get("c")
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Close()
	if got := readAll(t, rs); !bytes.Equal(got, data) {
		t.Fatalf("decompressed mismatch: got %d bytes, want %d", len(got), len(data))
	}
}

func TestCompressionThresholdZeroDisablesGate(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	data := []byte("tiny")
	if err := s.Add(context.Background(), "tiny", NewBytesSource(data), StreamInfo{Compressed: true}); err != nil {
		t.Fatal(err)
	}
	meta, ok, err := s.index.Get("tiny")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if !meta.Compressed {
		t.Fatal("threshold 0 should compress regardless of length")
	}
}

func TestOrderingOfSequentialAdds(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	var prevOffset, prevLength int64
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("k%d", i)
		data := bytes.Repeat([]byte{byte(i)}, 37+i)
		if err := s.Add(context.Background(), key, NewBytesSource(data), StreamInfo{}); err != nil {
			t.Fatal(err)
		}
		meta, ok, err := s.index.Get(key)
		if err != nil || !ok {
			t.Fatalf("ok=%v err=%v", ok, err)
		}
		if i > 0 && meta.Offset != prevOffset+prevLength {
			t.Fatalf("add %d: offset %d, want %d", i, meta.Offset, prevOffset+prevLength)
		}
		prevOffset, prevLength = meta.Offset, meta.Length
	}
}

func TestMD5HashMatches(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	data := []byte("hash me")
	if err := s.Add(context.Background(), "h", NewBytesSource(data), StreamInfo{}); err != nil {
		t.Fatal(err)
	}
	meta, ok, err := s.index.Get("h")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	want := md5.Sum(data)
	if meta.Hash != want {
		t.Fatalf("hash mismatch: got %x, want %x", meta.Hash, want)
	}
}
