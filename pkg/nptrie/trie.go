// Package nptrie implements a static string dictionary over a stack of
// recursively nested LOUDS-encoded patricia tries. Keys are raw byte
// strings; building assigns each unique key a dense 32-bit id supporting
// exact lookup, reverse lookup, common-prefix search and predictive
// search. Dictionaries serialize to a little-endian byte stream and can
// be memory-mapped for zero-copy queries.
package nptrie

import (
	"bytes"
	"fmt"

	"github.com/CVDpl/go-nptrie/internal/common"
	"github.com/CVDpl/go-nptrie/internal/filters"
	"github.com/CVDpl/go-nptrie/pkg/nptrie/utils"
)

// NotFound is the id returned by queries when no key matches.
const NotFound = ^uint32(0)

// Options configures dictionary construction beyond the Flags bitfield.
type Options struct {
	// Logger provides structured logging. Nil discards all messages.
	Logger common.Logger

	// EnableFilter builds a Bloom filter over the keys, used as a
	// negative fast path by Lookup.
	EnableFilter bool

	// FilterFPR sets the Bloom filter target false positive rate
	// (0 => default).
	FilterFPR float64
}

// DefaultOptions returns default build options.
func DefaultOptions() *Options {
	return &Options{
		Logger:       common.NewNullLogger(),
		EnableFilter: false,
		FilterFPR:    common.DefaultFilterFPR,
	}
}

// Trie is an immutable dictionary over a stack of nested LOUDS tries.
// All fields are read-only after Build/ReadFrom/MapFile, so any number
// of goroutines may query concurrently. Build and Clear reset the whole
// instance and must not race with queries.
type Trie struct {
	levels  []*loudsLevel
	tails   *tailStore
	filter  *filters.BloomFilter
	cfg     buildConfig
	flags   Flags
	numKeys uint32

	// mapping backs a memory-mapped dictionary; the trie owns it and
	// releases it in Clear/Close.
	mapping *utils.MemoryMap
}

// New creates an empty dictionary. Every query on it reports no matches.
func New() *Trie {
	return &Trie{}
}

// Build constructs the dictionary from the keyset with default options
// and returns the id assigned to each input position. Duplicate keys
// receive the same id. A failed build leaves the dictionary empty, except
// that a build over a memory-mapped dictionary is rejected with ErrState
// and leaves the mapped dictionary in place.
func (t *Trie) Build(ks *Keyset, flags Flags) ([]uint32, error) {
	return t.BuildWithOptions(ks, flags, nil)
}

// BuildWithOptions is Build with explicit options.
func (t *Trie) BuildWithOptions(ks *Keyset, flags Flags, opts *Options) ([]uint32, error) {
	if t.mapping != nil {
		return nil, fmt.Errorf("%w: build over a mapped dictionary", common.ErrState)
	}
	cfg, err := parseFlags(flags)
	if err != nil {
		t.reset()
		return nil, err
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Logger == nil {
		opts.Logger = common.NewNullLogger()
	}

	t.reset()
	ids, err := t.build(ks, cfg, opts)
	if err != nil {
		t.reset()
		return nil, err
	}
	return ids, nil
}

// Clear discards the dictionary contents, releasing any mapping.
func (t *Trie) Clear() {
	if t.mapping != nil {
		t.mapping.Close()
		t.mapping = nil
	}
	t.reset()
}

// Close releases resources. Equivalent to Clear.
func (t *Trie) Close() error {
	t.Clear()
	return nil
}

func (t *Trie) reset() {
	t.levels = nil
	t.tails = nil
	t.filter = nil
	t.cfg = buildConfig{}
	t.flags = 0
	t.numKeys = 0
}

// NumKeys returns the number of unique keys.
func (t *Trie) NumKeys() uint32 { return t.numKeys }

// NumTries returns the number of trie levels.
func (t *Trie) NumTries() int { return len(t.levels) }

// NumNodes returns the total node count across all levels.
func (t *Trie) NumNodes() uint64 {
	var n uint64
	for _, lv := range t.levels {
		n += lv.nodeCount()
	}
	return n
}

// Empty reports whether the dictionary has been built.
func (t *Trie) Empty() bool { return len(t.levels) == 0 }

// storeLevel reports whether links of level l resolve into the tail
// store rather than the next trie.
func (t *Trie) storeLevel(l int) bool {
	return l == len(t.levels)-1 && t.tails != nil
}

// Lookup returns the id of key, or NotFound.
func (t *Trie) Lookup(key []byte) uint32 {
	if len(t.levels) == 0 {
		return NotFound
	}
	if t.filter != nil && !t.filter.Contains(key) {
		return NotFound
	}
	lv := t.levels[0]
	node := uint64(0)
	pos := 0
	for pos < len(key) {
		child, next, ok := t.step(node, key, pos)
		if !ok {
			return NotFound
		}
		node, pos = child, next
	}
	if !lv.isTerminal(node) {
		return NotFound
	}
	return lv.terminalID(node)
}

// step descends one edge of the level-0 trie, consuming the edge's full
// byte string from query at pos.
func (t *Trie) step(node uint64, query []byte, pos int) (uint64, int, bool) {
	lv := t.levels[0]
	child := lv.findChild(node, query[pos], !t.cfg.weightOrder)
	if child == 0 {
		return 0, pos, false
	}
	if !lv.isLink(child) {
		return child, pos + 1, true
	}
	next, ok := t.matchLink(0, child, query, pos)
	if !ok {
		return 0, pos, false
	}
	return child, next, true
}

// matchLink consumes the full tail of the link edge into node c of
// level l against query at pos.
func (t *Trie) matchLink(l int, c uint64, query []byte, pos int) (int, bool) {
	ref := t.levels[l].linkValue(c)
	if t.storeLevel(l) {
		return t.tails.match(ref, query, pos)
	}
	next := t.levels[l+1]
	return t.matchRev(l+1, next.nodeOfTerminal(ref), query, pos)
}

// matchRev matches, walking node towards the root of level l, the
// stored string read leaf-to-root. Promoted tails are stored reversed,
// so this reads the original tail front-to-back.
func (t *Trie) matchRev(l int, node uint64, query []byte, pos int) (int, bool) {
	lv := t.levels[l]
	for node != 0 {
		if !lv.isLink(node) {
			if pos >= len(query) || query[pos] != lv.label(node) {
				return pos, false
			}
			pos++
		} else {
			ref := lv.linkValue(node)
			var ok bool
			if t.storeLevel(l) {
				pos, ok = t.tails.matchReverse(ref, query, pos)
			} else {
				pos, ok = t.matchFwd(l+1, t.levels[l+1].nodeOfTerminal(ref), query, pos)
			}
			if !ok {
				return pos, false
			}
		}
		node = lv.parent(node)
	}
	return pos, true
}

// matchFwd matches the stored string of level l read root-to-leaf.
func (t *Trie) matchFwd(l int, node uint64, query []byte, pos int) (int, bool) {
	if node == 0 {
		return pos, true
	}
	lv := t.levels[l]
	pos, ok := t.matchFwd(l, lv.parent(node), query, pos)
	if !ok {
		return pos, false
	}
	if !lv.isLink(node) {
		if pos >= len(query) || query[pos] != lv.label(node) {
			return pos, false
		}
		return pos + 1, true
	}
	ref := lv.linkValue(node)
	if t.storeLevel(l) {
		return t.tails.match(ref, query, pos)
	}
	return t.matchRev(l+1, t.levels[l+1].nodeOfTerminal(ref), query, pos)
}

// appendRev appends, walking node towards the root of level l, the
// stored string read leaf-to-root.
func (t *Trie) appendRev(l int, node uint64, dst []byte) []byte {
	lv := t.levels[l]
	for node != 0 {
		if !lv.isLink(node) {
			dst = append(dst, lv.label(node))
		} else {
			ref := lv.linkValue(node)
			if t.storeLevel(l) {
				dst = t.tails.appendReverse(ref, dst)
			} else {
				dst = t.appendFwd(l+1, t.levels[l+1].nodeOfTerminal(ref), dst)
			}
		}
		node = lv.parent(node)
	}
	return dst
}

// appendFwd appends the stored string of level l read root-to-leaf.
func (t *Trie) appendFwd(l int, node uint64, dst []byte) []byte {
	if node == 0 {
		return dst
	}
	lv := t.levels[l]
	dst = t.appendFwd(l, lv.parent(node), dst)
	if !lv.isLink(node) {
		return append(dst, lv.label(node))
	}
	ref := lv.linkValue(node)
	if t.storeLevel(l) {
		return t.tails.appendForward(ref, dst)
	}
	return t.appendRev(l+1, t.levels[l+1].nodeOfTerminal(ref), dst)
}

// linkString appends the full edge string of the link edge into node c
// of level l.
func (t *Trie) linkString(l int, c uint64, dst []byte) []byte {
	ref := t.levels[l].linkValue(c)
	if t.storeLevel(l) {
		return t.tails.appendForward(ref, dst)
	}
	return t.appendRev(l+1, t.levels[l+1].nodeOfTerminal(ref), dst)
}

// Key returns the bytes of the key with the given id.
func (t *Trie) Key(id uint32) ([]byte, error) {
	if uint64(id) >= uint64(t.numKeys) {
		return nil, fmt.Errorf("%w: id %d of %d keys", common.ErrParam, id, t.numKeys)
	}
	lv := t.levels[0]
	return t.appendFwd(0, lv.nodeOfTerminal(id), nil), nil
}

// Restore writes the key with the given id into buf and returns the key
// length. A nil buf only reports the length; a non-nil buf shorter than
// the key yields ErrParam with the required length.
func (t *Trie) Restore(id uint32, buf []byte) (int, error) {
	key, err := t.Key(id)
	if err != nil {
		return 0, err
	}
	if buf == nil {
		return len(key), nil
	}
	if len(buf) < len(key) {
		return len(key), fmt.Errorf("%w: buffer of %d bytes for a %d byte key", common.ErrParam, len(buf), len(key))
	}
	copy(buf, key)
	return len(key), nil
}

// FindCallback streams every key that is a prefix of query through fn in
// ascending length order and stops when fn returns false. The return
// value counts the keys reported, the stopping one included.
func (t *Trie) FindCallback(query []byte, fn func(id uint32, length int) bool) int {
	if len(t.levels) == 0 {
		return 0
	}
	lv := t.levels[0]
	count := 0
	node := uint64(0)
	pos := 0
	if lv.isTerminal(0) {
		count++
		if !fn(lv.terminalID(0), 0) {
			return count
		}
	}
	for pos < len(query) {
		child, next, ok := t.step(node, query, pos)
		if !ok {
			break
		}
		node, pos = child, next
		if lv.isTerminal(node) {
			count++
			if !fn(lv.terminalID(node), pos) {
				return count
			}
		}
	}
	return count
}

// Find appends the ids (and lengths, when requested) of every key that
// is a prefix of query, shortest first, and returns the number of new
// matches. Earlier contents of the slices are preserved.
func (t *Trie) Find(query []byte, ids *[]uint32, lengths *[]int) int {
	return t.FindCallback(query, func(id uint32, length int) bool {
		if ids != nil {
			*ids = append(*ids, id)
		}
		if lengths != nil {
			*lengths = append(*lengths, length)
		}
		return true
	})
}

// FindFirst returns the id and length of the shortest key that is a
// prefix of query, or (NotFound, 0).
func (t *Trie) FindFirst(query []byte) (uint32, int) {
	foundID, foundLen := NotFound, 0
	t.FindCallback(query, func(id uint32, length int) bool {
		foundID, foundLen = id, length
		return false
	})
	return foundID, foundLen
}

// FindLast returns the id and length of the longest key that is a
// prefix of query, or (NotFound, 0).
func (t *Trie) FindLast(query []byte) (uint32, int) {
	foundID, foundLen := NotFound, 0
	t.FindCallback(query, func(id uint32, length int) bool {
		foundID, foundLen = id, length
		return true
	})
	return foundID, foundLen
}

// predictRoot descends the prefix and returns the subtree root plus the
// unconsumed remainder of a partially matched tail edge.
func (t *Trie) predictRoot(prefix []byte) (uint64, []byte, bool) {
	lv := t.levels[0]
	node := uint64(0)
	pos := 0
	for pos < len(prefix) {
		child := lv.findChild(node, prefix[pos], !t.cfg.weightOrder)
		if child == 0 {
			return 0, nil, false
		}
		if !lv.isLink(child) {
			node = child
			pos++
			continue
		}
		tail := t.linkString(0, child, nil)
		n := len(prefix) - pos
		if n > len(tail) {
			n = len(tail)
		}
		if !bytes.Equal(tail[:n], prefix[pos:pos+n]) {
			return 0, nil, false
		}
		pos += n
		node = child
		if n < len(tail) {
			return node, tail[n:], true
		}
	}
	return node, nil, true
}

// PredictBreadthFirst appends the ids of keys having prefix as a prefix
// in ascending id order, up to max when max > 0, and returns the number
// appended. A nil ids slice only counts.
func (t *Trie) PredictBreadthFirst(prefix []byte, ids *[]uint32, max int) int {
	if len(t.levels) == 0 {
		return 0
	}
	root, _, ok := t.predictRoot(prefix)
	if !ok {
		return 0
	}
	lv := t.levels[0]
	count := 0
	queue := []uint64{root}
	for qi := 0; qi < len(queue); qi++ {
		v := queue[qi]
		if lv.isTerminal(v) {
			if ids != nil {
				*ids = append(*ids, lv.terminalID(v))
			}
			count++
			if max > 0 && count >= max {
				return count
			}
		}
		first, _, degree := lv.childRange(v)
		for i := uint64(0); i < degree; i++ {
			queue = append(queue, first+i)
		}
	}
	return count
}

// PredictCallback streams, depth first in sibling order, every key
// having prefix as a prefix through fn and stops when fn returns false.
// The key bytes passed to fn are only valid during the call. The return
// value counts the keys reported, the stopping one included.
func (t *Trie) PredictCallback(prefix []byte, fn func(id uint32, key []byte) bool) int {
	if len(t.levels) == 0 {
		return 0
	}
	root, pending, ok := t.predictRoot(prefix)
	if !ok {
		return 0
	}
	lv := t.levels[0]
	count := 0
	buf := make([]byte, 0, len(prefix)+len(pending)+16)
	buf = append(buf, prefix...)
	buf = append(buf, pending...)

	var walk func(node uint64) bool
	walk = func(node uint64) bool {
		if lv.isTerminal(node) {
			count++
			if !fn(lv.terminalID(node), buf) {
				return false
			}
		}
		first, _, degree := lv.childRange(node)
		for i := uint64(0); i < degree; i++ {
			child := first + i
			mark := len(buf)
			if lv.isLink(child) {
				buf = t.linkString(0, child, buf)
			} else {
				buf = append(buf, lv.label(child))
			}
			if !walk(child) {
				return false
			}
			buf = buf[:mark]
		}
		return true
	}
	walk(root)
	return count
}

// PredictDepthFirst appends ids and materialized keys depth first in
// sibling order, up to max when max > 0, and returns the number
// appended. Nil slices are skipped.
func (t *Trie) PredictDepthFirst(prefix []byte, ids *[]uint32, keys *[][]byte, max int) int {
	count := 0
	t.PredictCallback(prefix, func(id uint32, key []byte) bool {
		if ids != nil {
			*ids = append(*ids, id)
		}
		if keys != nil {
			*keys = append(*keys, append([]byte(nil), key...))
		}
		count++
		return max <= 0 || count < max
	})
	return count
}

// Predict appends the keys having prefix as a prefix. With only ids
// requested the enumeration is breadth first in ascending id order;
// materializing keys switches to depth first. Returns the number of new
// matches appended.
func (t *Trie) Predict(prefix []byte, ids *[]uint32, keys *[][]byte, max int) int {
	if keys == nil {
		return t.PredictBreadthFirst(prefix, ids, max)
	}
	return t.PredictDepthFirst(prefix, ids, keys, max)
}
