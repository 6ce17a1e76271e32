package sbtree

// Iterator is a forward-only range scan over the tree, bounded by
// [minKey, maxKey] (either bound nil for unbounded). Leaves carry no
// sibling pointers: advancing past the end of one leaf means climbing the
// per-level cursor array until a level with room is found, then
// re-descending leftmost from there.
type Iterator struct {
	t              *Tree
	minKey, maxKey []byte

	// pageIDs/cursors/counts are indexed by level: 0..bottom are interior,
	// bottom+1 (== levels-1) is the leaf.
	pageIDs []uint32
	cursors []int
	counts  []int
	bottom  int

	valid         bool
	started       bool
	inWriteBuffer bool
	err           error
}

// NewIterator returns a positioned Iterator over keys in [minKey, maxKey].
// A nil bound is unbounded on that side. Call Next before the first Key/Value.
func (t *Tree) NewIterator(minKey, maxKey []byte) *Iterator {
	it := &Iterator{t: t, minKey: minKey, maxKey: maxKey}
	it.init()
	return it
}

// init performs the leftmost-leaning descent to the first leaf that could
// contain keys >= minKey, per spec.md §4.5.
func (it *Iterator) init() {
	t := it.t
	if err := t.checkOpen(); err != nil {
		it.err = err
		return
	}

	if t.levels == 1 {
		it.startWriteBuffer()
		return
	}

	bottom := t.bottomInteriorLevel()
	it.bottom = bottom
	it.pageIDs = make([]uint32, t.levels)
	it.cursors = make([]int, t.levels)
	it.counts = make([]int, t.levels)

	pageID := t.activePath[0]
	for l := 0; l <= bottom; l++ {
		frameNo, err := t.pool.read(pageID)
		if err != nil {
			it.startWriteBuffer()
			return
		}
		buf := t.pool.frame(frameNo)
		n := pageCount(buf)
		idx := 0
		if it.minKey != nil {
			idx = t.descendInterior(buf, n, it.minKey)
		}
		it.pageIDs[l] = pageID
		it.cursors[l] = idx
		it.counts[l] = n
		pageID = t.resolveChild(buf, pageID, l, idx, n)
	}

	leafFrame, err := t.pool.read(pageID)
	if err != nil {
		it.startWriteBuffer()
		return
	}
	leaf := t.pool.frame(leafFrame)
	n := pageCount(leaf)
	idx := 0
	if it.minKey != nil {
		idx, _ = it.lowerBoundLeaf(leaf, n, it.minKey)
	}
	it.pageIDs[bottom+1] = pageID
	it.cursors[bottom+1] = idx
	it.counts[bottom+1] = n

	if idx < n {
		it.valid = true
		return
	}
	if n > 0 {
		// minKey is past this leaf's last key. Park the cursor on that
		// last record as already emitted, so the first Next advances to
		// the following leaf (or the write buffer) and applies the minKey
		// check there.
		it.cursors[bottom+1] = n - 1
		it.started = true
		it.valid = true
		return
	}
	// Empty leaf: fall through to the write buffer.
	it.startWriteBuffer()
}

// lowerBoundLeaf returns the index of the first record with key >= target.
func (it *Iterator) lowerBoundLeaf(buf []byte, n int, target []byte) (int, bool) {
	t := it.t
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cfg.Compare(t.lay.leafKey(buf, mid), target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < n
}

// startWriteBuffer positions the iterator over the in-memory write buffer,
// which holds the most recently put records that have not yet been folded
// into any persisted leaf. The buffer's keys are always >= every persisted
// key, so this runs after the persisted tree is exhausted (or when there
// is no persisted tree at all yet, or after a failed page read).
func (it *Iterator) startWriteBuffer() {
	t := it.t
	it.inWriteBuffer = true
	buf := t.pool.frame(0)
	idx := 0
	if it.minKey != nil {
		idx, _ = it.lowerBoundLeaf(buf, t.writeCount, it.minKey)
	}
	it.pageIDs = nil
	it.cursors = []int{idx}
	it.counts = []int{t.writeCount}
	it.valid = idx < t.writeCount
}

// Next advances the iterator and reports whether a new record is
// available. Once it returns false, the iterator is exhausted; Key/Value
// must not be called again.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.started {
		it.started = true
		if !it.valid {
			return false
		}
		key := it.currentKey()
		if it.maxKey != nil && it.t.cfg.Compare(key, it.maxKey) > 0 {
			it.valid = false
			return false
		}
		return true
	}
	if !it.valid {
		return false
	}

	for {
		if !it.advance() {
			it.valid = false
			return false
		}
		key := it.currentKey()
		if it.maxKey != nil && it.t.cfg.Compare(key, it.maxKey) > 0 {
			it.valid = false
			return false
		}
		if it.minKey == nil || it.t.cfg.Compare(key, it.minKey) >= 0 {
			return true
		}
	}
}

// advance moves to the next record, climbing and re-descending the cursor
// array as needed. It returns false when there is nothing left anywhere,
// including the write buffer.
func (it *Iterator) advance() bool {
	if it.inWriteBuffer {
		it.cursors[0]++
		return it.cursors[0] < it.counts[0]
	}

	t := it.t
	leafLevel := it.bottom + 1
	it.cursors[leafLevel]++
	if it.cursors[leafLevel] < it.counts[leafLevel] {
		return true
	}

	// Climb until a level has another sibling to descend into.
	// The active bottom node's active edge resolves to the most recently
	// flushed leaf, which is already its concrete child count-1, so that
	// edge is not visited.
	l := it.bottom
	for ; l >= 0; l-- {
		it.cursors[l]++
		last := it.counts[l]
		if l == it.bottom && it.pageIDs[l] == t.activePath[l] {
			last--
		}
		if it.cursors[l] <= last {
			break
		}
	}
	if l < 0 {
		it.startWriteBuffer()
		return it.valid
	}

	// Re-descend leftmost from level l down through the leaf.
	frameNo, err := t.pool.read(it.pageIDs[l])
	if err != nil {
		it.startWriteBuffer()
		return it.valid
	}
	buf := t.pool.frame(frameNo)
	pageID := t.resolveChild(buf, it.pageIDs[l], l, it.cursors[l], it.counts[l])

	for ll := l + 1; ll <= it.bottom; ll++ {
		frameNo, err := t.pool.read(pageID)
		if err != nil {
			it.startWriteBuffer()
			return it.valid
		}
		b := t.pool.frame(frameNo)
		n := pageCount(b)
		it.pageIDs[ll] = pageID
		it.cursors[ll] = 0
		it.counts[ll] = n
		pageID = t.resolveChild(b, pageID, ll, 0, n)
	}
	if it.counts[it.bottom] == 0 && it.pageIDs[it.bottom] == t.activePath[it.bottom] {
		// An empty active bottom node has no leaf of its own yet.
		it.startWriteBuffer()
		return it.valid
	}

	leafFrame, err := t.pool.read(pageID)
	if err != nil {
		it.startWriteBuffer()
		return it.valid
	}
	leaf := t.pool.frame(leafFrame)
	n := pageCount(leaf)
	it.pageIDs[leafLevel] = pageID
	it.cursors[leafLevel] = 0
	it.counts[leafLevel] = n
	if n > 0 {
		return true
	}
	it.startWriteBuffer()
	return it.valid
}

func (it *Iterator) currentKey() []byte {
	t := it.t
	if it.inWriteBuffer {
		return t.lay.leafKey(t.pool.frame(0), it.cursors[0])
	}
	leafLevel := it.bottom + 1
	frameNo, err := t.pool.read(it.pageIDs[leafLevel])
	if err != nil {
		return nil
	}
	return t.lay.leafKey(t.pool.frame(frameNo), it.cursors[leafLevel])
}

// Key returns the key at the iterator's current position.
func (it *Iterator) Key() []byte {
	k := it.currentKey()
	out := make([]byte, len(k))
	copy(out, k)
	return out
}

// Value returns the value at the iterator's current position.
func (it *Iterator) Value() []byte {
	t := it.t
	var buf []byte
	var idx int
	if it.inWriteBuffer {
		buf = t.pool.frame(0)
		idx = it.cursors[0]
	} else {
		leafLevel := it.bottom + 1
		frameNo, err := t.pool.read(it.pageIDs[leafLevel])
		if err != nil {
			return nil
		}
		buf = t.pool.frame(frameNo)
		idx = it.cursors[leafLevel]
	}
	v := t.lay.leafValue(buf, idx)
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

// Err reports ErrClosed or ErrPoisoned when the iterator was created on a
// closed or poisoned tree. A failed page read is not reported here: the
// iterator stops reading persisted pages and goes on to the write buffer.
// A clean end-of-range is not an error.
func (it *Iterator) Err() error {
	return it.err
}
