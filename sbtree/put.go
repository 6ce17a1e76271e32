package sbtree

import "fmt"

// Put appends (key, value) to the open write buffer (spec.md §4.4). Put
// assumes keys arrive in non-decreasing order; out-of-order insertion is
// documented misuse (spec.md §7) that this engine does not detect.
func (t *Tree) Put(key, value []byte) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if len(key) != t.lay.keySize {
		return fmt.Errorf("sbtree: key length %d does not match configured key size %d", len(key), t.lay.keySize)
	}
	if len(value) != t.lay.dataSize {
		return fmt.Errorf("sbtree: value length %d does not match configured data size %d", len(value), t.lay.dataSize)
	}

	if t.writeCount == t.lay.maxLeaf {
		if err := t.rotateWriteBuffer(key); err != nil {
			return t.poison(err)
		}
	}

	buf := t.pool.frame(0)
	t.lay.setLeafRecord(buf, t.writeCount, key, value)
	t.writeCount++
	setPageCount(buf, t.writeCount)
	return nil
}

// rotateWriteBuffer persists a full write buffer as a new leaf and folds
// it into the active path via update_index, per spec.md §4.4 step 1. key
// is the record that triggered the overflow — the first key of the next
// (not yet started) leaf, and the separator used at every interior level.
func (t *Tree) rotateWriteBuffer(key []byte) error {
	buf := t.pool.frame(0)
	minKey := append([]byte(nil), t.lay.leafKey(buf, 0)...)

	leafID, err := t.pool.write(0)
	if err != nil {
		return fmt.Errorf("sbtree: persisting full leaf: %w", err)
	}
	t.activePath[t.levels-1] = leafID

	if err := t.updateIndex(minKey, key, leafID); err != nil {
		return err
	}

	t.pool.zeroFrame(0, 0)
	t.writeCount = 0
	return nil
}

// Flush persists the open write buffer (if non-empty) and folds it into
// the active path with a sentinel separator strictly greater than the
// largest key ever written, then syncs storage. A second Flush with
// nothing new to write is a no-op (P5, idempotent flush).
func (t *Tree) Flush() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if t.writeCount == 0 {
		return t.storage.Sync()
	}

	buf := t.pool.frame(0)
	minKey := append([]byte(nil), t.lay.leafKey(buf, 0)...)
	maxKey := append([]byte(nil), t.lay.leafKey(buf, t.writeCount-1)...)

	leafID, err := t.pool.write(0)
	if err != nil {
		return t.poison(fmt.Errorf("sbtree: persisting final leaf: %w", err))
	}
	t.activePath[t.levels-1] = leafID

	sentinel := t.cfg.NextKey(maxKey)
	if err := t.updateIndex(minKey, sentinel, leafID); err != nil {
		return t.poison(err)
	}
	if err := t.finalizeActivePath(); err != nil {
		return t.poison(err)
	}

	t.pool.zeroFrame(0, 0)
	t.writeCount = 0

	if err := t.storage.Sync(); err != nil {
		return t.poison(fmt.Errorf("%w: %v", ErrStorageWrite, err))
	}
	return nil
}

// updateIndex walks the active path bottom-up from the deepest interior
// level, folding the just-closed child (childID) in as the node's next
// concrete entry.
//
// An interior node with count n holds n concrete (key, child) pairs at
// indices 0..n-1, each permanently bounding a completed subtree. Index n
// itself — one past the last concrete entry — is never written here; it
// is the node's active edge, and reads resolve it through active_path
// instead (resolveChild in get.go). Folding a child in therefore means
// writing at index n (freezing what was, until now, the active edge) and
// bumping count to n+1, which opens a fresh active edge at n+1 for the
// next fold to freeze in turn. original_source/sbtree.c's count==0 and
// has-room branches (sbtree.c:317-328) both write at index count and
// then increment it; growBootstrapRoot below is the same fold applied to
// a virgin root.
func (t *Tree) updateIndex(minKey, key []byte, childID uint32) error {
	bottom := t.bottomInteriorLevel()

	if bottom < 0 {
		// No interior level exists yet (levels == 1): this is the very
		// first leaf ever written.
		return t.growBootstrapRoot(key, childID)
	}

	frame0 := t.pool.frame(0)
	newChild := childID
	var sepKeyAtZero []byte

	for l := bottom; l >= 0; l-- {
		if err := t.pool.readInto(t.activePath[l], 0); err != nil {
			return err
		}
		buf := frame0
		n := pageCount(buf)

		// A separator is the exclusive upper bound of the child stored at
		// the same index, so every level uses key, the first key that
		// will follow the closed-off subtree.
		sepKey := key
		if l == 0 {
			sepKeyAtZero = sepKey
		}

		if n < t.lay.maxInt {
			t.lay.setInteriorKey(buf, n, sepKey)
			t.lay.setInteriorChild(buf, n, newChild)
			setPageCount(buf, n+1)
			newID, err := t.pool.write(0)
			if err != nil {
				return fmt.Errorf("sbtree: rewriting interior level %d: %w", l, err)
			}
			t.activePath[l] = newID
			return nil
		}

		// Full: this node's active edge (index maxInt, still unwritten)
		// takes newChild as its final concrete value, and the node is
		// persisted as-is. It will never be the active node at this
		// level again, so nothing further is written to it.
		t.lay.setInteriorChild(buf, t.lay.maxInt, newChild)
		persistedOldID, err := t.pool.write(0)
		if err != nil {
			return fmt.Errorf("sbtree: persisting full interior level %d: %w", l, err)
		}

		// A fresh, empty node takes over as the active node at this
		// level; its own active edge (index 0) is left unwritten, ready
		// for the next fold. The level above learns about the subtree
		// just closed off via a new separator one level up.
		t.pool.zeroFrame(0, 0)
		fresh := t.pool.frame(0)
		setPageInterior(fresh, true)
		freshID, err := t.pool.write(0)
		if err != nil {
			return fmt.Errorf("sbtree: writing fresh interior level %d: %w", l, err)
		}

		t.activePath[l] = freshID
		newChild = persistedOldID
	}

	// The walk fell past the root: level 0 just split. Grow a new root
	// over the subtree that was just closed off; the fresh sibling
	// created above becomes the new root's active edge once the active
	// path below it is shifted down a level.
	return t.growRootFromSplit(sepKeyAtZero, newChild)
}

// growBootstrapRoot handles the very first update_index call, when no
// interior level has ever existed. It is the count==0 case of the same
// fold every other level performs: key[0] and child[0] become concrete,
// count becomes 1, and the active edge moves to index 1.
func (t *Tree) growBootstrapRoot(key []byte, leafID uint32) error {
	t.pool.zeroFrame(0, 0)
	root := t.pool.frame(0)
	setPageInterior(root, true)
	setPageRoot(root, true)
	t.lay.setInteriorKey(root, 0, key)
	t.lay.setInteriorChild(root, 0, leafID)
	setPageCount(root, 1)
	rootID, err := t.pool.write(0)
	if err != nil {
		return fmt.Errorf("sbtree: growing bootstrap root: %w", err)
	}
	t.activePath[0] = rootID
	t.activePath[1] = leafID
	t.levels = 2
	return nil
}

// growRootFromSplit grows a new root over a root-level split. closedChild
// is the subtree that was just permanently bounded by sepKey; the fresh
// sibling already sitting at activePath[0] becomes the new root's active
// edge once the active path below the new root is shifted down.
func (t *Tree) growRootFromSplit(sepKey []byte, closedChild uint32) error {
	oldLevels := t.levels
	if oldLevels+1 > MaxLevels+1 {
		return fmt.Errorf("sbtree: tree depth would exceed MaxLevels (%d)", MaxLevels)
	}
	freshChild := t.activePath[0]

	t.pool.zeroFrame(0, 0)
	root := t.pool.frame(0)
	setPageInterior(root, true)
	setPageRoot(root, true)
	t.lay.setInteriorKey(root, 0, sepKey)
	t.lay.setInteriorChild(root, 0, closedChild)
	setPageCount(root, 1)
	rootID, err := t.pool.write(0)
	if err != nil {
		return fmt.Errorf("sbtree: growing root: %w", err)
	}

	for i := oldLevels; i >= 1; i-- {
		t.activePath[i] = t.activePath[i-1]
	}
	t.activePath[1] = freshChild
	t.activePath[0] = rootID
	t.levels = oldLevels + 1
	return nil
}
