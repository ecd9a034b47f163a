package nptrie

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildKeyset(t *testing.T, keys []string) *Keyset {
	t.Helper()
	ks := NewKeyset()
	for _, k := range keys {
		require.NoError(t, ks.PushBack([]byte(k)))
	}
	return ks
}

func mustBuild(t *testing.T, keys []string, flags Flags) (*Trie, []uint32) {
	t.Helper()
	trie := New()
	ids, err := trie.Build(buildKeyset(t, keys), flags)
	require.NoError(t, err)
	return trie, ids
}

func checkRoundTrip(t *testing.T, trie *Trie, keys []string, ids []uint32) {
	t.Helper()
	for i, k := range keys {
		require.Equal(t, ids[i], trie.Lookup([]byte(k)), "lookup %q", k)
		key, err := trie.Key(ids[i])
		require.NoError(t, err)
		require.Equal(t, k, string(key), "restore id %d", ids[i])

		n, err := trie.Restore(ids[i], nil)
		require.NoError(t, err)
		require.Equal(t, len(k), n)
	}
}

func TestEmptyTrie(t *testing.T) {
	trie := New()
	require.Equal(t, uint32(0), trie.NumKeys())
	require.Equal(t, 0, trie.NumTries())
	require.Equal(t, uint64(0), trie.NumNodes())
	require.Equal(t, NotFound, trie.Lookup([]byte("")))
	require.Equal(t, 0, trie.Find([]byte("abc"), nil, nil))
	require.Equal(t, 0, trie.Predict([]byte(""), nil, nil, 0))

	ids, err := trie.Build(NewKeyset(), 0)
	require.NoError(t, err)
	require.Empty(t, ids)
	require.Equal(t, uint32(0), trie.NumKeys())
	require.Equal(t, 1, trie.NumTries())
	require.Equal(t, uint64(1), trie.NumNodes())
	require.Equal(t, NotFound, trie.Lookup([]byte("")))
}

func TestTrieLabelOrder(t *testing.T) {
	keys := []string{"apple", "and", "Bad", "apple", "app"}
	trie, ids := mustBuild(t, keys, 1|WithoutTail|LabelOrder)

	require.Equal(t, uint32(4), trie.NumKeys())
	require.Equal(t, 1, trie.NumTries())
	require.Equal(t, uint64(11), trie.NumNodes())
	require.Equal(t, []uint32{3, 1, 0, 3, 2}, ids)

	checkRoundTrip(t, trie, keys, ids)

	trie.Clear()
	require.Equal(t, uint32(0), trie.NumKeys())
	require.Equal(t, 0, trie.NumTries())
	require.Equal(t, uint64(0), trie.NumNodes())
}

func TestTrieWeightOrder(t *testing.T) {
	keys := []string{"apple", "and", "Bad", "apple", "app"}
	trie, ids := mustBuild(t, keys, 1|WithoutTail|WeightOrder)

	require.Equal(t, uint32(4), trie.NumKeys())
	require.Equal(t, uint64(11), trie.NumNodes())
	require.Equal(t, []uint32{3, 1, 2, 3, 0}, ids)
	checkRoundTrip(t, trie, keys, ids)

	idApp := trie.Lookup([]byte("app"))
	idAnd := trie.Lookup([]byte("and"))
	idBad := trie.Lookup([]byte("Bad"))
	idApple := trie.Lookup([]byte("apple"))

	require.Equal(t, NotFound, trie.Lookup([]byte("appl")))
	require.Equal(t, NotFound, trie.Lookup([]byte("Apple")))
	require.Equal(t, NotFound, trie.Lookup([]byte("applex")))

	id, _ := trie.FindFirst([]byte("ap"))
	require.Equal(t, NotFound, id)
	id, _ = trie.FindFirst([]byte("applex"))
	require.Equal(t, idApp, id)

	id, _ = trie.FindLast([]byte("ap"))
	require.Equal(t, NotFound, id)
	id, _ = trie.FindLast([]byte("applex"))
	require.Equal(t, idApple, id)

	var ids2 []uint32
	require.Equal(t, 0, trie.Find([]byte("ap"), &ids2, nil))
	require.Equal(t, 2, trie.Find([]byte("applex"), &ids2, nil))
	require.Equal(t, []uint32{idApp, idApple}, ids2)

	// Find appends; earlier contents must survive.
	var lengths []int
	require.Equal(t, 1, trie.Find([]byte("Baddie"), &ids2, &lengths))
	require.Equal(t, []uint32{idApp, idApple, idBad}, ids2)
	require.Equal(t, []int{3}, lengths)

	ids2 = ids2[:0]
	lengths = lengths[:0]
	n := trie.FindCallback([]byte("anderson"), func(id uint32, length int) bool {
		ids2 = append(ids2, id)
		lengths = append(lengths, length)
		return true
	})
	require.Equal(t, 1, n)
	require.Equal(t, []uint32{idAnd}, ids2)
	require.Equal(t, []int{3}, lengths)

	counts := map[string]int{
		"": 4, "a": 3, "ap": 2, "app": 2, "appl": 1, "apple": 1,
		"appleX": 0, "an": 1, "and": 1, "andX": 0, "B": 1, "BX": 0, "X": 0,
	}
	for prefix, want := range counts {
		require.Equal(t, want, trie.Predict([]byte(prefix), nil, nil, 0), "predict %q", prefix)
	}

	// Breadth-first: ascending id order.
	ids2 = ids2[:0]
	require.Equal(t, 3, trie.Predict([]byte("a"), &ids2, nil, 0))
	require.Equal(t, []uint32{idApp, idAnd, idApple}, ids2)

	// Depth-first when keys are materialized, appending throughout.
	var strs [][]byte
	require.Equal(t, 3, trie.Predict([]byte("a"), &ids2, &strs, 0))
	require.Len(t, ids2, 6)
	require.Equal(t, []uint32{idApp, idApple, idAnd}, ids2[3:])
	require.Equal(t, "app", string(strs[0]))
	require.Equal(t, "apple", string(strs[1]))
	require.Equal(t, "and", string(strs[2]))
}

func TestPrefixTrie(t *testing.T) {
	keys := []string{"after", "bar", "car", "caster"}

	trie, ids := mustBuild(t, keys, 1|PrefixTrie|TextTail|LabelOrder)
	require.Equal(t, uint32(4), trie.NumKeys())
	require.Equal(t, 1, trie.NumTries())
	require.Equal(t, uint64(7), trie.NumNodes())
	require.Equal(t, []uint32{0, 1, 2, 3}, ids)
	checkRoundTrip(t, trie, keys, ids)

	// Restore buffer semantics.
	n, err := trie.Restore(ids[0], nil)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	n, err = trie.Restore(ids[0], make([]byte, 4))
	require.ErrorContains(t, err, "invalid parameter")
	require.Equal(t, 5, n)
	buf := make([]byte, 6)
	n, err = trie.Restore(ids[0], buf)
	require.NoError(t, err)
	require.Equal(t, "after", string(buf[:n]))

	trie, ids = mustBuild(t, keys, 2|PrefixTrie|WithoutTail|WeightOrder)
	require.Equal(t, 2, trie.NumTries())
	require.Equal(t, uint64(16), trie.NumNodes())
	require.Equal(t, []uint32{0, 1, 2, 3}, ids)
	checkRoundTrip(t, trie, keys, ids)

	trie, ids = mustBuild(t, keys, 2|PrefixTrie|TextTail|LabelOrder)
	require.Equal(t, 2, trie.NumTries())
	require.Equal(t, uint64(14), trie.NumNodes())
	require.Equal(t, []uint32{0, 1, 2, 3}, ids)
	checkRoundTrip(t, trie, keys, ids)

	trie, ids = mustBuild(t, keys, 3|PrefixTrie|WithoutTail|WeightOrder)
	require.Equal(t, 3, trie.NumTries())
	require.Equal(t, uint64(19), trie.NumNodes())
	require.Equal(t, []uint32{0, 1, 2, 3}, ids)
	checkRoundTrip(t, trie, keys, ids)

	require.Equal(t, NotFound, trie.Lookup([]byte("ca")))
	require.Equal(t, NotFound, trie.Lookup([]byte("card")))

	id, _ := trie.FindFirst([]byte("ca"))
	require.Equal(t, NotFound, id)
	id, _ = trie.FindFirst([]byte("car"))
	require.Equal(t, trie.Lookup([]byte("car")), id)
	id, length := trie.FindFirst([]byte("card"))
	require.Equal(t, trie.Lookup([]byte("car")), id)
	require.Equal(t, 3, length)

	id, _ = trie.FindLast([]byte("afte"))
	require.Equal(t, NotFound, id)
	id, _ = trie.FindLast([]byte("after"))
	require.Equal(t, trie.Lookup([]byte("after")), id)
	id, length = trie.FindLast([]byte("afternoon"))
	require.Equal(t, trie.Lookup([]byte("after")), id)
	require.Equal(t, 5, length)

	var ids2 []uint32
	require.Equal(t, 2, trie.Predict([]byte("ca"), &ids2, nil, 0))
	require.Equal(t, []uint32{trie.Lookup([]byte("car")), trie.Lookup([]byte("caster"))}, ids2)

	require.Equal(t, 1, trie.Predict([]byte("ca"), &ids2, nil, 1))
	require.Len(t, ids2, 3)
	require.Equal(t, trie.Lookup([]byte("car")), ids2[2])

	ids2 = ids2[:0]
	var strs [][]byte
	require.Equal(t, 1, trie.Predict([]byte("ca"), &ids2, &strs, 1))
	require.Equal(t, []uint32{trie.Lookup([]byte("car"))}, ids2)
	require.Equal(t, "car", string(strs[0]))

	// Depth-first enumeration follows sibling order: heavy subtrees
	// first, label ties ascending.
	ids2 = ids2[:0]
	strs = strs[:0]
	n = trie.PredictCallback([]byte(""), func(id uint32, key []byte) bool {
		ids2 = append(ids2, id)
		strs = append(strs, append([]byte(nil), key...))
		return true
	})
	require.Equal(t, 4, n)
	want := []string{"car", "caster", "after", "bar"}
	for i, w := range want {
		require.Equal(t, w, string(strs[i]))
		require.Equal(t, trie.Lookup([]byte(w)), ids2[i])
	}
}

func TestPatriciaTrie(t *testing.T) {
	keys := []string{"bach", "bet", "chat", "check", "check"}

	trie, ids := mustBuild(t, keys, 1)
	require.Equal(t, uint32(4), trie.NumKeys())
	require.Equal(t, 1, trie.NumTries())
	require.Equal(t, uint64(7), trie.NumNodes())
	require.Equal(t, []uint32{2, 3, 1, 0, 0}, ids)
	checkRoundTrip(t, trie, keys, ids)

	trie, ids = mustBuild(t, keys, 2|WithoutTail)
	require.Equal(t, 2, trie.NumTries())
	require.Equal(t, uint64(17), trie.NumNodes())
	checkRoundTrip(t, trie, keys, ids)

	trie, ids = mustBuild(t, keys, 2)
	require.Equal(t, 2, trie.NumTries())
	require.Equal(t, uint64(14), trie.NumNodes())
	checkRoundTrip(t, trie, keys, ids)

	trie, ids = mustBuild(t, keys, 3|WithoutTail)
	require.Equal(t, 3, trie.NumTries())
	require.Equal(t, uint64(20), trie.NumNodes())
	checkRoundTrip(t, trie, keys, ids)
}

func TestEmptyStringKey(t *testing.T) {
	trie, ids := mustBuild(t, []string{""}, 0)
	require.Equal(t, uint32(1), trie.NumKeys())
	require.Equal(t, 1, trie.NumTries())
	require.Equal(t, uint64(1), trie.NumNodes())
	require.Equal(t, []uint32{0}, ids)

	require.Equal(t, uint32(0), trie.Lookup(nil))
	key, err := trie.Key(0)
	require.NoError(t, err)
	require.Empty(t, key)

	require.Equal(t, NotFound, trie.Lookup([]byte("x")))
	for _, q := range []string{"", "x"} {
		id, length := trie.FindFirst([]byte(q))
		require.Equal(t, uint32(0), id)
		require.Equal(t, 0, length)
		id, length = trie.FindLast([]byte(q))
		require.Equal(t, uint32(0), id)
		require.Equal(t, 0, length)
	}

	var ids2 []uint32
	require.Equal(t, 1, trie.Find([]byte("xyz"), &ids2, nil))
	require.Equal(t, []uint32{0}, ids2)

	var lengths []int
	require.Equal(t, 1, trie.Find([]byte("xyz"), &ids2, &lengths))
	require.Equal(t, []uint32{0, 0}, ids2)
	require.Equal(t, []int{0}, lengths)

	require.Equal(t, 0, trie.Predict([]byte("xyz"), nil, nil, 0))

	ids2 = ids2[:0]
	require.Equal(t, 1, trie.Predict([]byte(""), &ids2, nil, 0))
	require.Equal(t, []uint32{0}, ids2)

	var strs [][]byte
	require.Equal(t, 1, trie.Predict([]byte(""), &ids2, &strs, 0))
	require.Len(t, ids2, 2)
	require.Equal(t, uint32(0), ids2[1])
	require.Empty(t, strs[0])
}

func TestBinaryKey(t *testing.T) {
	binaryKey := "NP\x00Trie"
	keys := []string{binaryKey}

	trie, ids := mustBuild(t, keys, 1|WithoutTail)
	require.Equal(t, uint32(1), trie.NumKeys())
	require.Equal(t, uint64(8), trie.NumNodes())
	require.Equal(t, []uint32{0}, ids)
	checkRoundTrip(t, trie, keys, ids)

	trie, ids = mustBuild(t, keys, 1|PrefixTrie|BinaryTail)
	require.Equal(t, uint64(2), trie.NumNodes())
	checkRoundTrip(t, trie, keys, ids)

	// A NUL byte forces the text tail store into binary mode.
	trie, ids = mustBuild(t, keys, 1|PrefixTrie|TextTail)
	require.Equal(t, uint64(2), trie.NumNodes())
	require.Equal(t, TailBinary, trie.Stats().TailMode)
	checkRoundTrip(t, trie, keys, ids)

	var ids2 []uint32
	require.Equal(t, 1, trie.PredictBreadthFirst(nil, &ids2, 0))
	require.Equal(t, []uint32{0}, ids2)

	ids2 = ids2[:0]
	var strs [][]byte
	require.Equal(t, 1, trie.PredictDepthFirst([]byte("NP"), &ids2, &strs, 0))
	require.Equal(t, []uint32{0}, ids2)
	require.Equal(t, binaryKey, string(strs[0]))
}

func TestWeightedKeys(t *testing.T) {
	ks := NewKeyset()
	require.NoError(t, ks.PushBackWeighted([]byte("rare"), 1))
	require.NoError(t, ks.PushBackWeighted([]byte("common"), 100))

	trie := New()
	ids, err := trie.Build(ks, 1|WeightOrder)
	require.NoError(t, err)

	// Both keys hang off the root as tail edges; the heavy one is
	// ordered first and wins the lower id.
	require.Equal(t, uint32(0), ids[1])
	require.Equal(t, uint32(1), ids[0])
}

func TestFlagValidation(t *testing.T) {
	ks := buildKeyset(t, []string{"a"})
	trie := New()

	_, err := trie.Build(ks, LabelOrder|WeightOrder)
	require.ErrorContains(t, err, "invalid parameter")

	_, err = trie.Build(ks, TextTail|BinaryTail)
	require.ErrorContains(t, err, "invalid parameter")

	_, err = trie.Build(ks, PrefixTrie|PatriciaTrie)
	require.ErrorContains(t, err, "invalid parameter")

	_, err = trie.Build(ks, Flags(17))
	require.ErrorContains(t, err, "invalid parameter")

	_, err = trie.Build(ks, 1<<20)
	require.ErrorContains(t, err, "invalid parameter")
}

func TestDuplicateCoherence(t *testing.T) {
	keys := []string{"dup", "other", "dup", "dup"}
	trie, ids := mustBuild(t, keys, 0)
	require.Equal(t, uint32(2), trie.NumKeys())
	require.Equal(t, ids[0], ids[2])
	require.Equal(t, ids[0], ids[3])
	require.NotEqual(t, ids[0], ids[1])
}

func TestIDSpaceIsDense(t *testing.T) {
	keys := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"}
	for _, flags := range []Flags{0, 1, 2 | PrefixTrie, 4 | WithoutTail, 1 | BinaryTail | LabelOrder} {
		trie, ids := mustBuild(t, keys, flags)
		seen := make(map[uint32]bool)
		for _, id := range ids {
			require.Less(t, id, trie.NumKeys())
			seen[id] = true
		}
		require.Len(t, seen, len(keys))
	}
}

func TestLookupWithFilter(t *testing.T) {
	ks := buildKeyset(t, []string{"apple", "banana", "cherry"})
	trie := New()
	opts := DefaultOptions()
	opts.EnableFilter = true
	ids, err := trie.BuildWithOptions(ks, 0, opts)
	require.NoError(t, err)

	for i, k := range []string{"apple", "banana", "cherry"} {
		require.Equal(t, ids[i], trie.Lookup([]byte(k)))
	}
	require.Equal(t, NotFound, trie.Lookup([]byte("durian")))
	require.Equal(t, NotFound, trie.Lookup([]byte("app")))
}

func TestDeepNesting(t *testing.T) {
	keys := []string{
		"internationalization", "internationalize", "international",
		"interstellar", "interstitial", "internment", "internship",
		"intercontinental", "interoperability", "interposition",
	}
	for numTries := 1; numTries <= 6; numTries++ {
		for _, extra := range []Flags{0, WithoutTail, PrefixTrie, BinaryTail, LabelOrder} {
			flags := Flags(numTries) | extra
			trie, ids := mustBuild(t, keys, flags)
			checkRoundTrip(t, trie, keys, ids)

			var got [][]byte
			n := trie.Predict([]byte("inter"), nil, &got, 0)
			require.Equal(t, len(keys), n, "flags %x", flags)
		}
	}
}
