package sbtree

import (
	"bytes"
	"fmt"
)

// MaxLevels bounds the number of interior levels the active path can
// track, matching spec.md §5's "levels is bounded by a compile-time
// constant (8 in the reference)". The active path array is sized
// MaxLevels+1 to also hold the current leaf slot (see SPEC_FULL.md §3).
const MaxLevels = 8

// Config configures a Tree. PageSize, KeySize, and DataSize are fixed for
// the lifetime of the tree; reopening an existing file with different
// values produces undefined results (spec.md classifies this as misuse).
type Config struct {
	PageSize int
	KeySize  int
	DataSize int

	// Frames is P, the number of buffer pool frames. Must be >= 2.
	Frames int

	// Compare is the total-order comparator over key bytes. Defaults to
	// bytes.Compare when nil.
	Compare func(a, b []byte) int

	// NextKey computes the successor of a key for flush()'s sentinel
	// separator (spec.md §4.4, §9 Open Question). Defaults to treating
	// the key as an unsigned big-endian integer (matching the default
	// Compare, bytes.Compare) and incrementing with carry, saturating
	// rather than wrapping.
	NextKey func(key []byte) []byte

	// ResumeRootID and ResumeLevels resume an existing, previously
	// flushed tree from its last persisted root instead of creating a
	// fresh empty one. Both must be set together; ResumeLevels is the
	// total depth (including the leaf) the root was at when the prior
	// session closed. The page format does not self-describe depth, so
	// the caller must have recorded it alongside the root id.
	ResumeRootID uint32
	ResumeLevels int
}

// Tree is the sequential copy-on-write B-tree engine (spec.md §4.4). All
// of its state is reachable from this single struct; there is no
// process-wide state (spec.md §9, "global-ish state").
type Tree struct {
	cfg     Config
	lay     layout
	storage Storage
	pool    *BufferPool

	// activePath holds levels slots: indices 0..levels-2 are the logical
	// ids of the interior levels from root down, and index levels-1 is
	// the id of the most recently flushed leaf. See SPEC_FULL.md §3 for
	// the full derivation of this indexing.
	activePath []uint32
	levels     int

	writeCount int

	poisoned error
	closed   bool
}

// Open prepares a Tree over storage per cfg. It computes record/key/data
// sizes, allocates the fixed-size buffer pool, and either creates a fresh
// empty root (leaving frame 0 as the empty write buffer) or resumes from
// cfg.ResumeRootID.
func Open(storage Storage, cfg Config) (*Tree, error) {
	if cfg.Frames < 2 {
		return nil, fmt.Errorf("sbtree: Config.Frames must be >= 2, got %d", cfg.Frames)
	}
	lay, err := newLayout(cfg.PageSize, cfg.KeySize, cfg.DataSize)
	if err != nil {
		return nil, err
	}
	if cfg.Compare == nil {
		cfg.Compare = bytes.Compare
	}
	if cfg.NextKey == nil {
		cfg.NextKey = incrementKey
	}

	activePath := make([]uint32, MaxLevels+1)
	for i := range activePath {
		activePath[i] = emptyPage
	}

	pool, err := newBufferPool(storage, cfg.PageSize, cfg.Frames, activePath)
	if err != nil {
		return nil, err
	}

	t := &Tree{
		cfg:        cfg,
		lay:        lay,
		storage:    storage,
		pool:       pool,
		activePath: activePath,
		levels:     1,
	}

	if cfg.ResumeLevels != 0 {
		// ResumeLevels, not ResumeRootID, is the resume trigger: page id 0
		// is a legitimate root id (the very first page ever allocated), so
		// it cannot double as an "unset" sentinel.
		if cfg.ResumeLevels < 1 {
			return nil, fmt.Errorf("sbtree: Config.ResumeLevels must be >= 1, got %d", cfg.ResumeLevels)
		}
		if err := t.resume(cfg.ResumeRootID, cfg.ResumeLevels); err != nil {
			return nil, err
		}
		return t, nil
	}

	// Fresh tree: zero a new root frame, mark it root (not interior — it
	// holds no separators; the first update_index replaces it with a new
	// interior root over the first leaf), write it, and record its id.
	// Frame 0 is left as the empty write buffer.
	const rootFrame = 1
	pool.zeroFrame(rootFrame, 0)
	setPageRoot(pool.frame(rootFrame), true)
	rootID, err := pool.write(rootFrame)
	if err != nil {
		return nil, fmt.Errorf("sbtree: initializing root: %w", err)
	}
	activePath[0] = rootID
	t.levels = 1

	// Frame 0 is the write buffer: a leaf-shaped page, count 0.
	pool.zeroFrame(0, 0)

	return t, nil
}

// finalizeActivePath patches the active edge (index count) of every
// interior level on the active path with the id of the level directly
// below it, walking bottom-up so each patched id feeds the next write
// up the chain. An interior node's active edge is otherwise never
// written to storage — Get and Iterator resolve it in memory via
// active_path instead — so a tree that closes without this step cannot
// be resumed: resume has no persisted bytes to read the edge from.
// Flush calls this before syncing so that a clean close is durable.
func (t *Tree) finalizeActivePath() error {
	if t.levels == 1 {
		return nil
	}
	bottom := t.bottomInteriorLevel()
	for l := bottom; l >= 0; l-- {
		if err := t.pool.readInto(t.activePath[l], 0); err != nil {
			return fmt.Errorf("sbtree: finalizing active path at level %d: %w", l, err)
		}
		buf := t.pool.frame(0)
		n := pageCount(buf)
		t.lay.setInteriorChild(buf, n, t.activePath[l+1])
		newID, err := t.pool.write(0)
		if err != nil {
			return fmt.Errorf("sbtree: finalizing active path at level %d: %w", l, err)
		}
		t.activePath[l] = newID
	}
	return nil
}

// resume re-derives the full active path by walking the rightmost
// pointer spine down from rootID, so that the active-path remap is
// correctly grounded even though this process never wrote any of the
// resumed pages itself. It relies on finalizeActivePath having patched
// every interior level's active edge before the prior session closed.
func (t *Tree) resume(rootID uint32, levels int) error {
	if levels > MaxLevels+1 {
		return fmt.Errorf("sbtree: Config.ResumeLevels %d exceeds MaxLevels %d", levels, MaxLevels)
	}
	t.levels = levels
	t.activePath[0] = rootID
	pool := t.pool
	pool.zeroFrame(0, 0)

	if levels == 1 {
		// No interior levels exist; nothing further to walk. Reads will
		// fall through to the (empty) write buffer until the first put.
		return nil
	}

	currentID := rootID
	for l := 0; l < levels-1; l++ {
		frameNo, err := pool.read(currentID)
		if err != nil {
			return fmt.Errorf("sbtree: resuming active path at level %d: %w", l, err)
		}
		buf := pool.frame(frameNo)
		n := pageCount(buf)
		nextID := t.lay.interiorChild(buf, n)
		t.activePath[l+1] = nextID
		currentID = nextID
	}
	return nil
}

// Levels reports the current total tree depth, including the leaf level.
// It starts at 1 (an empty tree) and only ever increases.
func (t *Tree) Levels() int { return t.levels }

// Close releases the underlying storage. It does not flush a pending
// write buffer; call Flush first if that is required.
func (t *Tree) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.storage.Close()
}

func (t *Tree) checkOpen() error {
	if t.closed {
		return ErrClosed
	}
	if t.poisoned != nil {
		return fmt.Errorf("%w: %v", ErrPoisoned, t.poisoned)
	}
	return nil
}

func (t *Tree) poison(err error) error {
	t.poisoned = err
	return err
}

// bottomInteriorLevel is the index (within activePath) of the interior
// level directly above the leaves, or -1 if no interior level exists yet.
func (t *Tree) bottomInteriorLevel() int {
	return t.levels - 2
}
