package nptrie

import (
	"github.com/CVDpl/go-nptrie/internal/encoding"
)

// loudsLevel is one level of the nested trie stack. The LOUDS bits start
// with the "10" super-root run, so node v's children begin right after
// the (v+1)-th zero. Node ids are BFS order with the root at 0; the edge
// into node c (c >= 1) carries labels[c-1]. A set link bit means the
// edge spans a multi-byte tail: labels keeps the tail's first byte and
// links resolves to a terminal of the next level, or into the tail store
// at the deepest level.
type loudsLevel struct {
	louds    *encoding.BitVector
	terminal *encoding.BitVector
	link     *encoding.BitVector
	labels   []byte
	links    []uint32
}

// nodeCount returns the number of nodes, root included.
func (lv *loudsLevel) nodeCount() uint64 {
	return lv.louds.Ones()
}

// childRange returns the first child id, its LOUDS bit position, and the
// degree of node v. Degree 0 means a leaf.
func (lv *loudsLevel) childRange(v uint64) (first, pos, degree uint64) {
	pos = lv.louds.Select0(v) + 1
	degree = lv.louds.Select0(v+1) - pos
	first = pos - v - 1
	return
}

// parent returns the parent of node c. c must be >= 1.
func (lv *loudsLevel) parent(c uint64) uint64 {
	return lv.louds.Select1(c) - c - 1
}

// label returns the first byte of the edge into node c.
func (lv *loudsLevel) label(c uint64) byte {
	return lv.labels[c-1]
}

// isLink reports whether the edge into node c is a tail edge.
func (lv *loudsLevel) isLink(c uint64) bool {
	return lv.link.Get(c - 1)
}

// linkValue resolves the link reference of the tail edge into node c.
func (lv *loudsLevel) linkValue(c uint64) uint32 {
	return lv.links[lv.link.Rank1(c-1)]
}

// isTerminal reports whether a key ends at node v.
func (lv *loudsLevel) isTerminal(v uint64) bool {
	return lv.terminal.Get(v)
}

// terminalID returns the id of the terminal node v: its rank among
// terminal nodes in BFS order.
func (lv *loudsLevel) terminalID(v uint64) uint32 {
	return uint32(lv.terminal.Rank1(v))
}

// nodeOfTerminal is the inverse of terminalID.
func (lv *loudsLevel) nodeOfTerminal(id uint32) uint64 {
	return lv.terminal.Select1(uint64(id))
}

// numTerminals returns the number of accepting nodes.
func (lv *loudsLevel) numTerminals() uint64 {
	return lv.terminal.Ones()
}

// findChild locates the child of v whose edge starts with byte b.
// Children of label-ordered tries are binary searched; weight-ordered
// tries scan linearly. Returns 0 when no edge matches.
func (lv *loudsLevel) findChild(v uint64, b byte, sorted bool) uint64 {
	first, _, degree := lv.childRange(v)
	if degree == 0 {
		return 0
	}
	if sorted {
		lo, hi := uint64(0), degree
		for lo < hi {
			mid := (lo + hi) / 2
			if lv.labels[first-1+mid] < b {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo < degree && lv.labels[first-1+lo] == b {
			return first + lo
		}
		return 0
	}
	for i := uint64(0); i < degree; i++ {
		if lv.labels[first-1+i] == b {
			return first + i
		}
	}
	return 0
}
