package sbtree

import (
	"encoding/binary"
	"fmt"
)

// Page header: 6 bytes, little-endian, byte-exact.
//
//	offset 0, size 4: logical page id (u32)
//	offset 4, size 2: count (14 bits) | is_interior (1 bit) | is_root (1 bit)
//
// The original source packs count and the interior/root flags into a
// single u16 using +10000/+20000 bias values. Separate bit fields avoid
// that bias-and-modulo arithmetic while keeping the same 6-byte layout.
const (
	headerSize   = 6
	countBits    = 14
	countMask    = uint16(1<<countBits - 1)
	interiorFlag = uint16(1 << countBits)
	rootFlag     = uint16(1 << (countBits + 1))
	maxCount     = int(countMask)

	pageIDSize = 4
)

func pageID(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[0:4])
}

func setPageID(buf []byte, id uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], id)
}

func flagsWord(buf []byte) uint16 {
	return binary.LittleEndian.Uint16(buf[4:6])
}

func setFlagsWord(buf []byte, v uint16) {
	binary.LittleEndian.PutUint16(buf[4:6], v)
}

func pageCount(buf []byte) int {
	return int(flagsWord(buf) & countMask)
}

func setPageCount(buf []byte, n int) {
	v := flagsWord(buf)&^countMask | uint16(n)&countMask
	setFlagsWord(buf, v)
}

func pageIsInterior(buf []byte) bool {
	return flagsWord(buf)&interiorFlag != 0
}

func setPageInterior(buf []byte, interior bool) {
	v := flagsWord(buf)
	if interior {
		v |= interiorFlag
	} else {
		v &^= interiorFlag
	}
	setFlagsWord(buf, v)
}

func pageIsRoot(buf []byte) bool {
	return flagsWord(buf)&rootFlag != 0
}

func setPageRoot(buf []byte, root bool) {
	v := flagsWord(buf)
	if root {
		v |= rootFlag
	} else {
		v &^= rootFlag
	}
	setFlagsWord(buf, v)
}

// resetPage zeroes buf and stamps id, clearing count and flags.
func resetPage(buf []byte, id uint32) {
	for i := range buf {
		buf[i] = 0
	}
	setPageID(buf, id)
}

// layout derives fixed record/slot geometry for a given page size and
// key/data size, per spec.md §3 and §6.
type layout struct {
	pageSize   int
	keySize    int
	dataSize   int
	recordSize int
	maxLeaf    int
	maxInt     int
}

func newLayout(pageSize, keySize, dataSize int) (layout, error) {
	if pageSize <= headerSize {
		return layout{}, fmt.Errorf("sbtree: page size %d too small for header", pageSize)
	}
	if keySize <= 0 || dataSize < 0 {
		return layout{}, fmt.Errorf("sbtree: invalid key_size=%d data_size=%d", keySize, dataSize)
	}
	recordSize := keySize + dataSize
	maxLeaf := (pageSize - headerSize) / recordSize
	if maxLeaf < 1 {
		return layout{}, fmt.Errorf("sbtree: page size %d too small to hold one record of size %d", pageSize, recordSize)
	}
	denom := keySize + pageIDSize
	maxInt := (pageSize - headerSize - pageIDSize) / denom
	if maxInt < 1 {
		return layout{}, fmt.Errorf("sbtree: page size %d too small to hold one interior separator", pageSize)
	}
	if maxInt > maxCount || maxLeaf > maxCount {
		return layout{}, fmt.Errorf("sbtree: page size %d yields a count field that overflows %d bits", pageSize, countBits)
	}
	return layout{
		pageSize:   pageSize,
		keySize:    keySize,
		dataSize:   dataSize,
		recordSize: recordSize,
		maxLeaf:    maxLeaf,
		maxInt:     maxInt,
	}, nil
}

// Leaf body: max_leaf records of (key, value), sorted by key.

func (l layout) leafRecordOffset(i int) int {
	return headerSize + i*l.recordSize
}

func (l layout) leafKey(buf []byte, i int) []byte {
	off := l.leafRecordOffset(i)
	return buf[off : off+l.keySize]
}

func (l layout) leafValue(buf []byte, i int) []byte {
	off := l.leafRecordOffset(i) + l.keySize
	return buf[off : off+l.dataSize]
}

func (l layout) setLeafRecord(buf []byte, i int, key, value []byte) {
	off := l.leafRecordOffset(i)
	copy(buf[off:off+l.keySize], key)
	copy(buf[off+l.keySize:off+l.recordSize], value)
}

// Interior body: max_int separator keys, then max_int+1 child page ids.

func (l layout) interiorKeysOffset() int {
	return headerSize
}

func (l layout) interiorChildrenOffset() int {
	return headerSize + l.maxInt*l.keySize
}

func (l layout) interiorKey(buf []byte, i int) []byte {
	off := l.interiorKeysOffset() + i*l.keySize
	return buf[off : off+l.keySize]
}

func (l layout) setInteriorKey(buf []byte, i int, key []byte) {
	off := l.interiorKeysOffset() + i*l.keySize
	copy(buf[off:off+l.keySize], key)
}

func (l layout) interiorChild(buf []byte, i int) uint32 {
	off := l.interiorChildrenOffset() + i*pageIDSize
	return binary.LittleEndian.Uint32(buf[off : off+pageIDSize])
}

func (l layout) setInteriorChild(buf []byte, i int, id uint32) {
	off := l.interiorChildrenOffset() + i*pageIDSize
	binary.LittleEndian.PutUint32(buf[off:off+pageIDSize], id)
}

// incrementKey treats b as an unsigned big-endian integer (matching the
// default Compare, bytes.Compare, whose lexicographic byte order only
// agrees with numeric order when the most significant byte comes first)
// and returns b+1 with carry, saturating at all-0xFF rather than wrapping.
// This is the default successor function flush() uses to build a
// separator strictly greater than the largest key ever written; see
// Config.NextKey.
func incrementKey(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out
		}
		out[i] = 0
	}
	// overflow: saturate at all-0xFF
	for i := range out {
		out[i] = 0xFF
	}
	return out
}
