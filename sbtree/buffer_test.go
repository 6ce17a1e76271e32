package sbtree

import "testing"

func TestBufferPoolRootReservation(t *testing.T) {
	activePath := make([]uint32, MaxLevels+1)
	activePath[0] = 7
	pool, err := newBufferPool(NewMemStorage(512), 512, 4, activePath)
	if err != nil {
		t.Fatalf("newBufferPool: %v", err)
	}
	if v := pool.selectVictim(7); v != 1 {
		t.Fatalf("selectVictim(root) = %d, want 1 (reserved root frame)", v)
	}
}

func TestBufferPoolTwoFrameAlwaysFrame1(t *testing.T) {
	pool, err := newBufferPool(NewMemStorage(512), 512, 2, make([]uint32, MaxLevels+1))
	if err != nil {
		t.Fatalf("newBufferPool: %v", err)
	}
	if v := pool.selectVictim(99); v != 1 {
		t.Fatalf("selectVictim with P=2 = %d, want 1", v)
	}
}

func TestBufferPoolDoesNotEvictLastHit(t *testing.T) {
	pool, err := newBufferPool(NewMemStorage(512), 512, 5, make([]uint32, MaxLevels+1))
	if err != nil {
		t.Fatalf("newBufferPool: %v", err)
	}
	if _, err := pool.read(10); err != nil {
		t.Fatalf("read(10): %v", err)
	}
	for i := 0; i < 10; i++ {
		v := pool.selectVictim(uint32(1000 + i))
		if pool.resident[v] == pool.lastHit {
			t.Fatalf("selectVictim chose the frame holding the last hit, page %d", pool.lastHit)
		}
	}
}

func TestBufferPoolWriteAllocatesDistinctIDs(t *testing.T) {
	pool, err := newBufferPool(NewMemStorage(512), 512, 4, make([]uint32, MaxLevels+1))
	if err != nil {
		t.Fatalf("newBufferPool: %v", err)
	}
	seen := make(map[uint32]bool)
	for i := 0; i < 3; i++ {
		pool.zeroFrame(2, 0)
		id, err := pool.write(2)
		if err != nil {
			t.Fatalf("write: %v", err)
		}
		if seen[id] {
			t.Fatalf("write reused id %d", id)
		}
		seen[id] = true
	}
}

func TestBufferPoolReadIntoReplacesFrameContent(t *testing.T) {
	pool, err := newBufferPool(NewMemStorage(512), 512, 4, make([]uint32, MaxLevels+1))
	if err != nil {
		t.Fatalf("newBufferPool: %v", err)
	}
	pool.zeroFrame(2, 0)
	setPageCount(pool.frame(2), 5)
	id, err := pool.write(2)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	pool.zeroFrame(2, 0)
	if err := pool.readInto(id, 2); err != nil {
		t.Fatalf("readInto: %v", err)
	}
	if pageCount(pool.frame(2)) != 5 {
		t.Fatalf("readInto did not restore written content: count = %d, want 5", pageCount(pool.frame(2)))
	}
}
