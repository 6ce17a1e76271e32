package sbtree

import "fmt"

// emptyPage is the buffer pool's "frame holds nothing" sentinel, per
// spec.md §4.2.
const emptyPage uint32 = 0x7FFFFFFF

// BufferPool owns a contiguous region of P page-sized frames and chooses
// among them via the reservation scheme of spec.md §4.2. Frame 0 is the
// Tree Engine's write buffer and is never chosen by read (update_index and
// finalizeActivePath load interior nodes into it explicitly via readInto);
// frame 1 is reserved for the root once P >= 3. All frames are allocated once,
// in newBufferPool, and never resized — there is no allocation on any
// read/write/evict path.
//
// Every interior/leaf frame the pool hands back via read/readInto is only
// ever read by the Tree Engine (Get, Iterator) or, during update_index,
// immediately re-persisted copy-on-write before the next frame is
// touched — nothing is ever left dirty across calls, so frames never need
// an opportunistic write-back on eviction.
type BufferPool struct {
	storage  Storage
	pageSize int

	frames   [][]byte
	resident []uint32

	lastHit uint32
	nextRR  int

	nextPageID      uint32
	nextPageWriteID uint32

	// activePath shares its backing array with the owning Tree's active
	// path; the buffer pool itself never writes through it (writes are
	// the Tree Engine's job, via write), but carries a reference so
	// selectVictim can recognize the current root.
	activePath []uint32

	hits, misses uint64
}

func newBufferPool(storage Storage, pageSize, numFrames int, activePath []uint32) (*BufferPool, error) {
	if numFrames < 2 {
		return nil, fmt.Errorf("sbtree: buffer pool needs at least 2 frames, got %d", numFrames)
	}
	p := &BufferPool{
		storage:    storage,
		pageSize:   pageSize,
		activePath: activePath,
	}
	p.frames = make([][]byte, numFrames)
	for i := range p.frames {
		p.frames[i] = make([]byte, pageSize)
	}
	p.resident = make([]uint32, numFrames)
	p.init()
	return p, nil
}

func (p *BufferPool) init() {
	for i := range p.resident {
		p.resident[i] = emptyPage
	}
	p.lastHit = emptyPage
	p.nextRR = 2
	p.nextPageID = 0
	p.nextPageWriteID = 0
}

func (p *BufferPool) numFrames() int { return len(p.frames) }

// frame returns the raw bytes of frame i for direct manipulation.
func (p *BufferPool) frame(i int) []byte { return p.frames[i] }

// zeroFrame resets frame i's content in place; used only to prepare a
// brand-new page (the write buffer at reset, a freshly grown root/split
// node, the initial root at Open).
func (p *BufferPool) zeroFrame(i int, id uint32) {
	resetPage(p.frames[i], id)
	p.resident[i] = id
}

// read returns the index of the frame holding pageID, reading it from
// storage into a freshly chosen victim frame if it is not resident.
func (p *BufferPool) read(pageID uint32) (int, error) {
	for i, r := range p.resident {
		if i != 0 && r == pageID {
			p.hits++
			p.lastHit = pageID
			return i, nil
		}
	}
	victim := p.selectVictim(pageID)
	if err := p.storage.ReadPage(pageID, p.frames[victim]); err != nil {
		return 0, fmt.Errorf("%w: page %d: %v", ErrStorageRead, pageID, err)
	}
	p.resident[victim] = pageID
	p.misses++
	p.lastHit = pageID
	return victim, nil
}

// readInto forces pageID to be read into a specific frame, discarding
// whatever that frame held. Used by the Tree Engine to keep the node
// under rewrite pinned in a known slot during update_index.
func (p *BufferPool) readInto(pageID uint32, frameNo int) error {
	if err := p.storage.ReadPage(pageID, p.frames[frameNo]); err != nil {
		return fmt.Errorf("%w: page %d: %v", ErrStorageRead, pageID, err)
	}
	p.resident[frameNo] = pageID
	p.lastHit = pageID
	return nil
}

// selectVictim implements spec.md §4.2's frame reservation/round-robin
// policy: "evict what wasn't just hit", with frame 1 reserved for the
// current root whenever there are enough frames to spare it.
func (p *BufferPool) selectVictim(requested uint32) int {
	n := len(p.frames)
	switch {
	case n == 2:
		return 1
	case n == 3:
		return 2
	default:
		if len(p.activePath) > 0 && requested == p.activePath[0] {
			return 1
		}
		for i := 2; i < n; i++ {
			if p.resident[i] == emptyPage {
				return i
			}
		}
		for {
			c := p.nextRR
			p.nextRR++
			if p.nextRR >= n {
				p.nextRR = 2
			}
			if p.lastHit != emptyPage && p.resident[c] == p.lastHit {
				continue
			}
			return c
		}
	}
}

// write persists frame i copy-on-write: it allocates the next physical
// slot and logical id, stamps the id into the page header, and writes it
// out. nextPageID (the logical id) and nextPageWriteID (the physical slot)
// advance in lockstep here, kept as two counters rather than one to mirror
// the physical/logical page id distinction spec.md draws even though this
// adapter never lets them diverge.
func (p *BufferPool) write(i int) (uint32, error) {
	id := p.nextPageID
	p.nextPageID++
	p.nextPageWriteID++
	setPageID(p.frames[i], id)
	if err := p.storage.WritePage(id, p.frames[i]); err != nil {
		return 0, fmt.Errorf("%w: page %d: %v", ErrStorageWrite, id, err)
	}
	p.resident[i] = id
	return id, nil
}

// Stats reports cumulative hit/miss counters, for diagnostics.
func (p *BufferPool) Stats() (hits, misses uint64) {
	return p.hits, p.misses
}
