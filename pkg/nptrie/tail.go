package nptrie

import (
	"bytes"
	"sort"

	"github.com/CVDpl/go-nptrie/internal/encoding"
)

// tailStore holds the suffix strings of the deepest trie level. Text
// mode concatenates NUL-terminated tails and references them by byte
// offset; identical tails are stored once and a tail that is a suffix of
// another points into its bytes. Binary mode keeps a plain blob with a
// boundary bit vector (one set bit per tail start plus one at the end)
// and references tails by index, so NUL bytes are allowed.
type tailStore struct {
	mode   TailMode
	blob   []byte
	bounds *encoding.BitVector // binary mode only
}

// buildTailStore stores the given tails and returns one reference per
// input tail, aligned by position. A requested text mode degrades to
// binary when any tail contains a NUL byte.
func buildTailStore(tails [][]byte, mode TailMode) (*tailStore, []uint32) {
	if mode == TailText {
		for _, t := range tails {
			if bytes.IndexByte(t, 0) >= 0 {
				mode = TailBinary
				break
			}
		}
	}
	if mode == TailText {
		return buildTextTails(tails)
	}
	return buildBinaryTails(tails)
}

func buildTextTails(tails [][]byte) (*tailStore, []uint32) {
	// Sorting by reversed bytes in descending order makes every tail
	// that is a suffix of another adjacent to its container.
	order := make([]int, len(tails))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return compareReversed(tails[order[i]], tails[order[j]]) > 0
	})

	ts := &tailStore{mode: TailText}
	refs := make([]uint32, len(tails))
	var prev []byte
	prevEnd := 0
	for _, idx := range order {
		t := tails[idx]
		if prev != nil && len(t) <= len(prev) && bytes.Equal(prev[len(prev)-len(t):], t) {
			refs[idx] = uint32(prevEnd - len(t))
			continue
		}
		refs[idx] = uint32(len(ts.blob))
		ts.blob = append(ts.blob, t...)
		ts.blob = append(ts.blob, 0)
		prev = t
		prevEnd = len(ts.blob) - 1
	}
	return ts, refs
}

func buildBinaryTails(tails [][]byte) (*tailStore, []uint32) {
	ts := &tailStore{mode: TailBinary}
	refs := make([]uint32, len(tails))
	seen := make(map[string]uint32, len(tails))
	starts := make([]uint64, 0, len(tails))
	for i, t := range tails {
		if id, ok := seen[string(t)]; ok {
			refs[i] = id
			continue
		}
		id := uint32(len(starts))
		seen[string(t)] = id
		refs[i] = id
		starts = append(starts, uint64(len(ts.blob)))
		ts.blob = append(ts.blob, t...)
	}
	bounds := encoding.NewBitVectorCap(uint64(len(ts.blob)) + 1)
	next := 0
	for pos := uint64(0); pos <= uint64(len(ts.blob)); pos++ {
		if next < len(starts) && starts[next] == pos {
			bounds.Push(true)
			next++
		} else if pos == uint64(len(ts.blob)) {
			bounds.Push(true)
		} else {
			bounds.Push(false)
		}
	}
	bounds.Freeze()
	ts.bounds = bounds
	return ts, refs
}

// compareReversed compares a and b read back to front.
func compareReversed(a, b []byte) int {
	la, lb := len(a), len(b)
	n := la
	if lb < n {
		n = lb
	}
	for i := 1; i <= n; i++ {
		if a[la-i] != b[lb-i] {
			if a[la-i] < b[lb-i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	}
	return 0
}

// slice returns the tail bytes for ref. The bytes alias the store.
func (ts *tailStore) slice(ref uint32) []byte {
	if ts.mode == TailText {
		end := int(ref)
		for ts.blob[end] != 0 {
			end++
		}
		return ts.blob[ref:end]
	}
	start := ts.bounds.Select1(uint64(ref))
	end := ts.bounds.Select1(uint64(ref) + 1)
	return ts.blob[start:end]
}

// appendForward appends the tail bytes for ref to dst.
func (ts *tailStore) appendForward(ref uint32, dst []byte) []byte {
	return append(dst, ts.slice(ref)...)
}

// appendReverse appends the tail bytes for ref to dst back to front.
func (ts *tailStore) appendReverse(ref uint32, dst []byte) []byte {
	t := ts.slice(ref)
	for i := len(t) - 1; i >= 0; i-- {
		dst = append(dst, t[i])
	}
	return dst
}

// match consumes the whole tail against query at pos. Reports the new
// position and whether every tail byte matched.
func (ts *tailStore) match(ref uint32, query []byte, pos int) (int, bool) {
	t := ts.slice(ref)
	if pos+len(t) > len(query) || !bytes.Equal(t, query[pos:pos+len(t)]) {
		return pos, false
	}
	return pos + len(t), true
}

// matchReverse consumes the whole tail read back to front.
func (ts *tailStore) matchReverse(ref uint32, query []byte, pos int) (int, bool) {
	t := ts.slice(ref)
	if pos+len(t) > len(query) {
		return pos, false
	}
	for i := range t {
		if t[len(t)-1-i] != query[pos+i] {
			return pos, false
		}
	}
	return pos + len(t), true
}

// prefixMatch returns the length of the longest common prefix of the
// tail and query[pos:].
func (ts *tailStore) prefixMatch(ref uint32, query []byte, pos int) int {
	t := ts.slice(ref)
	n := len(query) - pos
	if n > len(t) {
		n = len(t)
	}
	for i := 0; i < n; i++ {
		if t[i] != query[pos+i] {
			return i
		}
	}
	return n
}

// count returns the number of distinct stored tails. Text mode counts
// NUL terminators, which excludes suffix-shared entries.
func (ts *tailStore) count() int {
	if ts.mode == TailText {
		return bytes.Count(ts.blob, []byte{0})
	}
	return int(ts.bounds.Ones()) - 1
}
