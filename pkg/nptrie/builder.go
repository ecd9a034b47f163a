package nptrie

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/CVDpl/go-nptrie/internal/common"
	"github.com/CVDpl/go-nptrie/internal/encoding"
	"github.com/CVDpl/go-nptrie/internal/filters"
)

// buildEntry is one string fed into a trie level: a unique key at level
// 0, a reversed promoted tail at deeper levels. slots lists the link
// slots of the previous level that must be backfilled with this entry's
// terminal id.
type buildEntry struct {
	key    []byte
	weight float64
	slots  []int32
}

// pendingTail is a link edge recorded while a level is serialized; its
// string either feeds the next level or the tail store.
type pendingTail struct {
	bytes  []byte
	weight float64
	slot   int32
}

// levelResult carries a freshly serialized level plus its bookkeeping.
type levelResult struct {
	level    *loudsLevel
	tails    []pendingTail
	termNode []uint64 // entry index -> accepting node id
}

// build turns the keyset into the trie stack. It returns the per-input
// key ids (duplicates map to the same id).
func (t *Trie) build(ks *Keyset, cfg buildConfig, opts *Options) ([]uint32, error) {
	logger := opts.Logger
	entries, uniqueOf := normalizeKeyset(ks)
	if uint64(len(entries)) >= uint64(NotFound) {
		return nil, fmt.Errorf("%w: %d unique keys", common.ErrSize, len(entries))
	}

	levels := make([]*loudsLevel, 0, cfg.numTries)
	var store *tailStore
	var uniqueIDs []uint32
	var totalNodes uint64

	for depth := 0; depth < cfg.numTries; depth++ {
		last := depth == cfg.numTries-1
		oneBytePerEdge := last && cfg.tailMode == TailNone
		res := buildLevel(entries, cfg, oneBytePerEdge)
		levels = append(levels, res.level)

		totalNodes += res.level.nodeCount()
		if totalNodes >= common.MaxNodes {
			return nil, fmt.Errorf("%w: %d nodes", common.ErrSize, totalNodes)
		}

		if depth == 0 {
			uniqueIDs = make([]uint32, len(entries))
			for i, node := range res.termNode {
				uniqueIDs[i] = res.level.terminalID(node)
			}
		} else {
			prev := levels[depth-1]
			for i, e := range entries {
				id := res.level.terminalID(res.termNode[i])
				for _, slot := range e.slots {
					prev.links[slot] = id
				}
			}
		}

		logger.Debug("trie level built",
			"level", depth,
			"entries", len(entries),
			"nodes", res.level.nodeCount(),
			"links", len(res.level.links),
		)

		if len(res.tails) == 0 {
			break
		}
		if last {
			// Deepest level: remaining tails go to storage.
			tails := make([][]byte, len(res.tails))
			for i, pt := range res.tails {
				tails[i] = pt.bytes
			}
			var refs []uint32
			store, refs = buildTailStore(tails, cfg.tailMode)
			for i, pt := range res.tails {
				res.level.links[pt.slot] = refs[i]
			}
			break
		}
		entries = promoteTails(res.tails)
	}

	var filter *filters.BloomFilter
	if opts.EnableFilter {
		filter = filters.NewBloomFilter(uint64(len(uniqueIDs)), opts.FilterFPR)
		for i := 0; i < ks.Len(); i++ {
			key, _ := ks.At(i)
			filter.Add(key)
		}
	}

	keyIDs := make([]uint32, ks.Len())
	for i := range keyIDs {
		keyIDs[i] = uniqueIDs[uniqueOf[i]]
	}

	t.levels = levels
	t.tails = store
	t.filter = filter
	t.cfg = cfg
	t.flags = cfg.normalized()
	t.numKeys = uint32(len(uniqueIDs))

	logger.Info("dictionary built",
		"keys", t.numKeys,
		"tries", len(levels),
		"nodes", totalNodes,
		"tailMode", cfg.tailMode.String(),
	)
	return keyIDs, nil
}

// normalizeKeyset sorts the input lexicographically, collapses duplicates
// summing weights, and returns the unique entries plus the map from each
// input position to its unique entry.
func normalizeKeyset(ks *Keyset) ([]buildEntry, []int) {
	n := ks.Len()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, _ := ks.At(order[i])
		b, _ := ks.At(order[j])
		return bytes.Compare(a, b) < 0
	})

	entries := make([]buildEntry, 0, n)
	uniqueOf := make([]int, n)
	for _, idx := range order {
		key, weight := ks.At(idx)
		if len(entries) > 0 && bytes.Equal(entries[len(entries)-1].key, key) {
			entries[len(entries)-1].weight += weight
		} else {
			entries = append(entries, buildEntry{key: key, weight: weight})
		}
		uniqueOf[idx] = len(entries) - 1
	}
	return entries, uniqueOf
}

// promoteTails reverses the pending tails and merges duplicates into the
// sorted entry list for the next level. Weights sum across merged tails
// so deeper levels order siblings by the traffic through them.
func promoteTails(tails []pendingTail) []buildEntry {
	entries := make([]buildEntry, len(tails))
	for i, pt := range tails {
		rev := make([]byte, len(pt.bytes))
		for j, b := range pt.bytes {
			rev[len(rev)-1-j] = b
		}
		entries[i] = buildEntry{key: rev, weight: pt.weight, slots: []int32{pt.slot}}
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})

	merged := entries[:0]
	for _, e := range entries {
		if len(merged) > 0 && bytes.Equal(merged[len(merged)-1].key, e.key) {
			m := &merged[len(merged)-1]
			m.weight += e.weight
			m.slots = append(m.slots, e.slots...)
		} else {
			merged = append(merged, e)
		}
	}
	return merged
}

// nodeRange is a BFS work item: entries[lo:hi) share the first depth
// bytes and hang below one node.
type nodeRange struct {
	lo, hi int
	depth  int
}

// edgeGroup is one outgoing edge of the node under construction.
type edgeGroup struct {
	label  byte
	weight float64
	tail   []byte // nil for plain single-byte edges
	child  nodeRange
}

// buildLevel serializes one trie level from sorted unique entries.
// When oneBytePerEdge is set (deepest level without tail storage) every
// edge carries exactly one byte, so no tails can remain. Otherwise a
// unique remainder of two or more bytes becomes a tail edge, and in
// patricia mode a shared prefix of two or more bytes does too.
func buildLevel(entries []buildEntry, cfg buildConfig, oneBytePerEdge bool) levelResult {
	louds := encoding.NewBitVector()
	terminal := encoding.NewBitVector()
	link := encoding.NewBitVector()
	var labels []byte
	var tails []pendingTail
	termNode := make([]uint64, len(entries))

	// Super root.
	louds.Push(true)
	louds.Push(false)

	queue := []nodeRange{{lo: 0, hi: len(entries), depth: 0}}
	var groups []edgeGroup
	for qi := 0; qi < len(queue); qi++ {
		nr := queue[qi]
		v := uint64(qi)

		lo := nr.lo
		if lo < nr.hi && len(entries[lo].key) == nr.depth {
			terminal.Push(true)
			termNode[lo] = v
			lo++
		} else {
			terminal.Push(false)
		}

		groups = groups[:0]
		for s := lo; s < nr.hi; {
			b := entries[s].key[nr.depth]
			e := s + 1
			for e < nr.hi && entries[e].key[nr.depth] == b {
				e++
			}
			var weight float64
			for i := s; i < e; i++ {
				weight += entries[i].weight
			}
			groups = append(groups, makeEdge(entries, s, e, nr.depth, b, weight, cfg, oneBytePerEdge))
			s = e
		}

		if cfg.weightOrder {
			sort.SliceStable(groups, func(i, j int) bool {
				return groups[i].weight > groups[j].weight
			})
		}

		louds.PushRun(uint64(len(groups)))
		louds.Push(false)
		for _, g := range groups {
			labels = append(labels, g.label)
			if g.tail != nil {
				link.Push(true)
				tails = append(tails, pendingTail{
					bytes:  g.tail,
					weight: g.weight,
					slot:   int32(len(tails)),
				})
			} else {
				link.Push(false)
			}
			queue = append(queue, g.child)
		}
	}

	louds.Freeze()
	terminal.Freeze()
	link.Freeze()
	return levelResult{
		level: &loudsLevel{
			louds:    louds,
			terminal: terminal,
			link:     link,
			labels:   labels,
			links:    make([]uint32, len(tails)),
		},
		tails:    tails,
		termNode: termNode,
	}
}

// makeEdge decides the edge for the entry group [s,e) branching at depth.
func makeEdge(entries []buildEntry, s, e, depth int, b byte, weight float64, cfg buildConfig, oneBytePerEdge bool) edgeGroup {
	g := edgeGroup{label: b, weight: weight, child: nodeRange{lo: s, hi: e, depth: depth + 1}}
	if oneBytePerEdge {
		return g
	}
	if e-s == 1 {
		rest := entries[s].key[depth:]
		if len(rest) > 1 {
			g.tail = rest
			g.child.depth = len(entries[s].key)
		}
		return g
	}
	if cfg.patricia {
		// The group is sorted, so its common prefix is the common
		// prefix of its first and last entries.
		lcp := commonPrefixLen(entries[s].key[depth:], entries[e-1].key[depth:])
		if lcp > 1 {
			g.tail = entries[s].key[depth : depth+lcp]
			g.child.depth = depth + lcp
		}
	}
	return g
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
