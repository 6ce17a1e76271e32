package sbtree

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// keyOf encodes n big-endian so that the default bytes.Compare comparator
// orders keys the same way as the integers they represent.
func keyOf(n int) []byte {
	b := make([]byte, 4)
	b[0] = byte(n >> 24)
	b[1] = byte(n >> 16)
	b[2] = byte(n >> 8)
	b[3] = byte(n)
	return b
}

func valueOf(n int) []byte {
	v := make([]byte, 12)
	copy(v, fmt.Sprintf("v%010d", n))
	return v
}

func testConfig() Config {
	return Config{
		PageSize: 512,
		KeySize:  4,
		DataSize: 12,
		Frames:   6,
	}
}

func openMemTree(t *testing.T, cfg Config) *Tree {
	t.Helper()
	tree, err := Open(NewMemStorage(cfg.PageSize), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return tree
}

// P1: every Put followed by a Get of the same key (after Flush) returns
// the value last written for that key.
func TestPutGetRoundTrip(t *testing.T) {
	tree := openMemTree(t, testConfig())
	defer tree.Close()

	const n = 5000
	for i := 0; i < n; i++ {
		if err := tree.Put(keyOf(i), valueOf(i)); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}
	if err := tree.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	dst := make([]byte, 12)
	for i := 0; i < n; i++ {
		if err := tree.Get(keyOf(i), dst); err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		want := valueOf(i)
		if string(dst) != string(want) {
			t.Fatalf("Get(%d) = %q, want %q", i, dst, want)
		}
	}
}

// P2: a key never put is reported not found.
func TestGetNotFound(t *testing.T) {
	tree := openMemTree(t, testConfig())
	defer tree.Close()

	for i := 0; i < 100; i++ {
		if err := tree.Put(keyOf(i*2), valueOf(i)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := tree.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	dst := make([]byte, 12)
	if err := tree.Get(keyOf(1), dst); err != ErrNotFound {
		t.Fatalf("Get(1) = %v, want ErrNotFound", err)
	}
	if err := tree.Get(keyOf(100000), dst); err != ErrNotFound {
		t.Fatalf("Get(100000) = %v, want ErrNotFound", err)
	}
}

// P3: Get of a key still only in the open write buffer (never flushed)
// succeeds without requiring a flush.
func TestGetFromWriteBuffer(t *testing.T) {
	tree := openMemTree(t, testConfig())
	defer tree.Close()

	for i := 0; i < 10; i++ {
		if err := tree.Put(keyOf(i), valueOf(i)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	dst := make([]byte, 12)
	if err := tree.Get(keyOf(5), dst); err != nil {
		t.Fatalf("Get(5) from write buffer: %v", err)
	}
	if string(dst) != string(valueOf(5)) {
		t.Fatalf("Get(5) = %q, want %q", dst, valueOf(5))
	}
}

// P4: the iterator visits every key in ascending order within bounds,
// spanning flushed leaves and the open write buffer.
func TestIteratorOrderedFullRange(t *testing.T) {
	tree := openMemTree(t, testConfig())
	defer tree.Close()

	const n = 3000
	for i := 0; i < n; i++ {
		if err := tree.Put(keyOf(i), valueOf(i)); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
		if i%777 == 0 {
			if err := tree.Flush(); err != nil {
				t.Fatalf("Flush: %v", err)
			}
		}
	}

	it := tree.NewIterator(nil, nil)
	got := 0
	for it.Next() {
		want := keyOf(got)
		if string(it.Key()) != string(want) {
			t.Fatalf("iterator key %d = %v, want %v", got, it.Key(), want)
		}
		if string(it.Value()) != string(valueOf(got)) {
			t.Fatalf("iterator value %d mismatch", got)
		}
		got++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	if got != n {
		t.Fatalf("iterator visited %d keys, want %d", got, n)
	}
}

// Range-bounded iteration: only keys in [min, max] are emitted.
func TestIteratorRangeBounds(t *testing.T) {
	tree := openMemTree(t, testConfig())
	defer tree.Close()

	const n = 1000
	for i := 0; i < n; i++ {
		if err := tree.Put(keyOf(i), valueOf(i)); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}
	if err := tree.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	it := tree.NewIterator(keyOf(100), keyOf(200))
	got := 100
	for it.Next() {
		if string(it.Key()) != string(keyOf(got)) {
			t.Fatalf("key = %v, want %v", it.Key(), keyOf(got))
		}
		got++
	}
	if got != 201 {
		t.Fatalf("visited up to %d, want 201", got)
	}
}

// Scenario 4 (spec.md §8): a single no-split flush of one leaf grows the
// tree from levels=1 to levels=2, with a root holding one separator.
func TestScenarioFirstFlushGrowsOneLevel(t *testing.T) {
	tree := openMemTree(t, testConfig())
	defer tree.Close()

	if tree.Levels() != 1 {
		t.Fatalf("fresh tree levels = %d, want 1", tree.Levels())
	}
	for i := 0; i < 5; i++ {
		if err := tree.Put(keyOf(i), valueOf(i)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := tree.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if tree.Levels() != 2 {
		t.Fatalf("levels after first flush = %d, want 2", tree.Levels())
	}
}

// Scenario: enough leaves to overflow the bottom interior level forces a
// root split and a third level.
func TestScenarioInteriorSplitGrowsLevel(t *testing.T) {
	cfg := testConfig()
	cfg.Frames = 8
	tree := openMemTree(t, cfg)
	defer tree.Close()

	lay, err := newLayout(cfg.PageSize, cfg.KeySize, cfg.DataSize)
	if err != nil {
		t.Fatalf("newLayout: %v", err)
	}

	n := lay.maxLeaf*(lay.maxInt+2) + 1
	for i := 0; i < n; i++ {
		if err := tree.Put(keyOf(i), valueOf(i)); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}
	if err := tree.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if tree.Levels() < 3 {
		t.Fatalf("levels = %d, want >= 3 after forcing an interior split", tree.Levels())
	}

	dst := make([]byte, 12)
	for _, i := range []int{0, n / 2, n - 1} {
		if err := tree.Get(keyOf(i), dst); err != nil {
			t.Fatalf("Get(%d) after interior split: %v", i, err)
		}
		if string(dst) != string(valueOf(i)) {
			t.Fatalf("Get(%d) = %q, want %q", i, dst, valueOf(i))
		}
	}
}

// Scenario 5 (spec.md §8): Flush with nothing new to write is a no-op.
func TestFlushIdempotent(t *testing.T) {
	tree := openMemTree(t, testConfig())
	defer tree.Close()

	for i := 0; i < 5; i++ {
		if err := tree.Put(keyOf(i), valueOf(i)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := tree.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	levelsAfterFirst := tree.Levels()

	if err := tree.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if tree.Levels() != levelsAfterFirst {
		t.Fatalf("idempotent Flush changed levels from %d to %d", levelsAfterFirst, tree.Levels())
	}
}

// Scenario 6 (spec.md §8): closing and reopening from the last flushed
// root preserves every previously written key.
func TestDurableReopen(t *testing.T) {
	dir := filepath.Join(os.TempDir(), "sbtree_reopen_test")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "sbtree.dat")

	cfg := testConfig()
	const n = 4000

	var rootID uint32
	var levels int
	func() {
		storage, err := OpenFileStorage(path, cfg.PageSize)
		if err != nil {
			t.Fatalf("OpenFileStorage: %v", err)
		}
		tree, err := Open(storage, cfg)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		for i := 0; i < n; i++ {
			if err := tree.Put(keyOf(i), valueOf(i)); err != nil {
				t.Fatalf("Put(%d): %v", i, err)
			}
		}
		if err := tree.Flush(); err != nil {
			t.Fatalf("Flush: %v", err)
		}
		if tree.Levels() < 2 {
			t.Fatalf("levels = %d, want >= 2", tree.Levels())
		}
		rootID = tree.activePath[0]
		levels = tree.levels
		if err := tree.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}()

	storage, err := OpenFileStorage(path, cfg.PageSize)
	if err != nil {
		t.Fatalf("reopen OpenFileStorage: %v", err)
	}

	cfg.ResumeRootID = rootID
	cfg.ResumeLevels = levels
	tree, err := Open(storage, cfg)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	defer tree.Close()

	dst := make([]byte, 12)
	for _, i := range []int{0, n - 1, n / 2} {
		if err := tree.Get(keyOf(i), dst); err != nil {
			t.Fatalf("Get(%d) after reopen: %v", i, err)
		}
		if string(dst) != string(valueOf(i)) {
			t.Fatalf("Get(%d) after reopen = %q, want %q", i, dst, valueOf(i))
		}
	}
}
