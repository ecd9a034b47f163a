package nptrie

import (
	"fmt"

	"github.com/CVDpl/go-nptrie/internal/common"
)

// Keyset is the append-only input container for Build. Key bytes live in
// a shared arena; the entry table keeps (offset, length, weight) per key
// in input order. Duplicate keys are collapsed at build time with their
// weights summed.
type Keyset struct {
	pool    []byte
	entries []keyEntry
}

type keyEntry struct {
	off    uint64
	len    uint32
	weight float64
}

// NewKeyset creates an empty keyset.
func NewKeyset() *Keyset {
	return &Keyset{}
}

// PushBack appends a key with the default weight of 1.
func (ks *Keyset) PushBack(key []byte) error {
	return ks.PushBackWeighted(key, 1.0)
}

// PushBackWeighted appends a key with an explicit weight. Negative
// weights are rejected; the empty key is allowed.
func (ks *Keyset) PushBackWeighted(key []byte, weight float64) error {
	if len(key) > common.MaxKeySize {
		return fmt.Errorf("%w: %d bytes", common.ErrKeyTooLarge, len(key))
	}
	if weight < 0 {
		return fmt.Errorf("%w: negative weight %g", common.ErrParam, weight)
	}
	off := uint64(len(ks.pool))
	ks.pool = append(ks.pool, key...)
	ks.entries = append(ks.entries, keyEntry{off: off, len: uint32(len(key)), weight: weight})
	return nil
}

// Len returns the number of keys pushed.
func (ks *Keyset) Len() int { return len(ks.entries) }

// At returns the key bytes and weight at position i. The bytes alias the
// arena and must not be modified.
func (ks *Keyset) At(i int) ([]byte, float64) {
	e := ks.entries[i]
	return ks.pool[e.off : e.off+uint64(e.len)], e.weight
}

// TotalBytes returns the number of key bytes stored.
func (ks *Keyset) TotalBytes() int { return len(ks.pool) }

// Reset discards all keys but keeps the allocated arena for reuse.
func (ks *Keyset) Reset() {
	ks.pool = ks.pool[:0]
	ks.entries = ks.entries[:0]
}
