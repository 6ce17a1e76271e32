package sbtree

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Dump writes a human-readable level-by-level dump of the tree to stdout.
func (t *Tree) Dump() error {
	return t.DumpTo(os.Stdout)
}

// DumpTo writes a BFS dump of every interior level, the leaf level, and the
// open write buffer to w. It walks the per-level active path directly
// rather than following leaf-sibling pointers, since leaves here carry none.
func (t *Tree) DumpTo(w io.Writer) error {
	p := func(format string, args ...interface{}) { fmt.Fprintf(w, format, args...) }

	p("sbtree dump: levels=%d\n", t.levels)
	p("active_path: %v\n", t.activePath[:t.levels])

	if t.levels > 1 {
		type queued struct {
			pageID uint32
			level  int
		}
		queue := []queued{{t.activePath[0], 0}}
		bottom := t.bottomInteriorLevel()

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]

			frameNo, err := t.pool.read(cur.pageID)
			if err != nil {
				p("  [page %d] read error: %v\n", cur.pageID, err)
				continue
			}
			buf := t.pool.frame(frameNo)
			n := pageCount(buf)

			if cur.level <= bottom {
				children := make([]uint32, n+1)
				for i := 0; i <= n; i++ {
					children[i] = t.resolveChild(buf, cur.pageID, cur.level, i, n)
				}
				keys := make([]string, n)
				for i := 0; i < n; i++ {
					keys[i] = formatKey(t.lay.interiorKey(buf, i))
				}
				p("  L%d [page %d] root=%v interior keys=%v children=%v\n",
					cur.level, cur.pageID, pageIsRoot(buf), keys, children)
				for _, c := range children {
					queue = append(queue, queued{c, cur.level + 1})
				}
			} else {
				p("  L%d [page %d] LEAF count=%d\n", cur.level, cur.pageID, n)
				for i := 0; i < n; i++ {
					p("      %s -> %s\n", formatKey(t.lay.leafKey(buf, i)), formatValue(t.lay.leafValue(buf, i)))
				}
			}
		}
	}

	wb := t.pool.frame(0)
	p("write buffer: count=%d\n", t.writeCount)
	for i := 0; i < t.writeCount; i++ {
		p("      %s -> %s\n", formatKey(t.lay.leafKey(wb, i)), formatValue(t.lay.leafValue(wb, i)))
	}
	return nil
}

// formatKey shows key bytes: 4-byte = big-endian int (matching the default
// Compare/NextKey byte order), else quoted.
func formatKey(b []byte) string {
	if len(b) == 4 {
		return fmt.Sprintf("%d", binary.BigEndian.Uint32(b))
	}
	return fmt.Sprintf("%q", string(b))
}

// formatValue shows the raw hex of a value, truncated for readability.
func formatValue(b []byte) string {
	const max = 8
	n := len(b)
	if n > max {
		n = max
	}
	s := fmt.Sprintf("%x", b[:n])
	if len(b) > max {
		s += "..."
	}
	return s
}
