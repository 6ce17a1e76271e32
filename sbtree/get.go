package sbtree

// Get looks up key and, if found, copies its value into dst and returns
// nil. dst must be at least DataSize bytes. If key is absent it returns
// ErrNotFound.
func (t *Tree) Get(key []byte, dst []byte) error {
	if err := t.checkOpen(); err != nil {
		return err
	}

	// The write buffer (frame 0) is checked first: it holds the most
	// recently put records, not yet folded into any interior level. This
	// also covers the levels == 1 bootstrap case, where no interior
	// structure exists at all yet.
	buf := t.pool.frame(0)
	if i, ok := t.searchLeaf(buf, t.writeCount, key); ok {
		copy(dst, t.lay.leafValue(buf, i))
		return nil
	}

	if t.levels == 1 {
		return ErrNotFound
	}

	pageID := t.activePath[0]
	for l := 0; l <= t.bottomInteriorLevel(); l++ {
		frameNo, err := t.pool.read(pageID)
		if err != nil {
			return ErrNotFound
		}
		buf := t.pool.frame(frameNo)
		n := pageCount(buf)
		idx := t.descendInterior(buf, n, key)
		pageID = t.resolveChild(buf, pageID, l, idx, n)
	}

	frameNo, err := t.pool.read(pageID)
	if err != nil {
		return ErrNotFound
	}
	leaf := t.pool.frame(frameNo)
	if i, ok := t.searchLeaf(leaf, pageCount(leaf), key); ok {
		copy(dst, t.lay.leafValue(leaf, i))
		return nil
	}
	return ErrNotFound
}

// descendInterior returns the child pointer index to follow for key among
// an interior node's n separators: the index of the first separator
// strictly greater than key, or n if key is >= every separator.
func (t *Tree) descendInterior(buf []byte, n int, key []byte) int {
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cfg.Compare(key, t.lay.interiorKey(buf, mid)) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// resolveChild applies the active-path remap: if the node being read is
// the current active_path[l] and idx is its rightmost pointer, the stored
// pointer may be stale — the authoritative current location is
// active_path[l+1].
func (t *Tree) resolveChild(buf []byte, nodeID uint32, l, idx, n int) uint32 {
	if idx == n && nodeID == t.activePath[l] {
		return t.activePath[l+1]
	}
	return t.lay.interiorChild(buf, idx)
}

// searchLeaf binary-searches a leaf-shaped buffer's first n records for an
// exact key match.
func (t *Tree) searchLeaf(buf []byte, n int, key []byte) (int, bool) {
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		c := t.cfg.Compare(key, t.lay.leafKey(buf, mid))
		switch {
		case c == 0:
			return mid, true
		case c < 0:
			hi = mid
		default:
			lo = mid + 1
		}
	}
	return 0, false
}
