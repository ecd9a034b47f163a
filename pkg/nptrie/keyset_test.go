package nptrie

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CVDpl/go-nptrie/internal/common"
)

func TestKeysetBasics(t *testing.T) {
	ks := NewKeyset()
	require.Equal(t, 0, ks.Len())

	require.NoError(t, ks.PushBack([]byte("hello")))
	require.NoError(t, ks.PushBackWeighted([]byte("world"), 2.5))
	require.NoError(t, ks.PushBack(nil))

	require.Equal(t, 3, ks.Len())
	require.Equal(t, 10, ks.TotalBytes())

	key, weight := ks.At(0)
	require.Equal(t, "hello", string(key))
	require.Equal(t, 1.0, weight)

	key, weight = ks.At(1)
	require.Equal(t, "world", string(key))
	require.Equal(t, 2.5, weight)

	key, _ = ks.At(2)
	require.Empty(t, key)

	ks.Reset()
	require.Equal(t, 0, ks.Len())
	require.Equal(t, 0, ks.TotalBytes())
}

func TestKeysetKeysAreStable(t *testing.T) {
	// Pushed keys must not alias caller buffers.
	ks := NewKeyset()
	buf := []byte("mutable")
	require.NoError(t, ks.PushBack(buf))
	buf[0] = 'X'
	key, _ := ks.At(0)
	require.Equal(t, "mutable", string(key))
}

func TestKeysetLimits(t *testing.T) {
	ks := NewKeyset()
	require.ErrorIs(t, ks.PushBack(bytes.Repeat([]byte{'x'}, common.MaxKeySize+1)), common.ErrKeyTooLarge)
	require.ErrorIs(t, ks.PushBackWeighted([]byte("k"), -1), common.ErrParam)
	require.Equal(t, 0, ks.Len())
}

func TestNormalizeKeyset(t *testing.T) {
	ks := NewKeyset()
	require.NoError(t, ks.PushBackWeighted([]byte("b"), 1))
	require.NoError(t, ks.PushBackWeighted([]byte("a"), 2))
	require.NoError(t, ks.PushBackWeighted([]byte("b"), 3))

	entries, uniqueOf := normalizeKeyset(ks)
	require.Len(t, entries, 2)
	require.Equal(t, "a", string(entries[0].key))
	require.Equal(t, "b", string(entries[1].key))
	require.Equal(t, 2.0, entries[0].weight)
	require.Equal(t, 4.0, entries[1].weight)
	require.Equal(t, []int{1, 0, 1}, uniqueOf)
}
