package nptrie

// Stats is a read-only snapshot of the dictionary shape.
type Stats struct {
	// NumKeys is the number of unique keys.
	NumKeys uint32

	// NumTries is the number of nested trie levels.
	NumTries int

	// NumNodes is the total node count across all levels.
	NumNodes uint64

	// NumTails is the number of distinct stored tail strings.
	NumTails int

	// TailMode reports how tails are stored.
	TailMode TailMode

	// TotalSize is the serialized size in bytes.
	TotalSize int64

	// Mapped reports whether the dictionary borrows a memory mapping.
	Mapped bool
}

// Stats returns the current dictionary statistics.
func (t *Trie) Stats() Stats {
	s := Stats{
		NumKeys:  t.numKeys,
		NumTries: len(t.levels),
		NumNodes: t.NumNodes(),
		TailMode: TailNone,
		Mapped:   t.mapping != nil,
	}
	if t.tails != nil {
		s.NumTails = t.tails.count()
		s.TailMode = t.tails.mode
	}
	s.TotalSize = t.TotalSize()
	return s
}

// TotalSize returns the serialized size of the dictionary in bytes,
// without serializing it.
func (t *Trie) TotalSize() int64 {
	if len(t.levels) == 0 {
		return 0
	}
	size := int64(headerSize)
	for _, lv := range t.levels {
		size += int64(lv.louds.MarshaledSize())
		size += int64(lv.terminal.MarshaledSize())
		size += int64(lv.link.MarshaledSize())
		size = alignedSection(size, len(lv.labels))
		size = alignedSection(size, len(lv.links)*4)
	}
	size += 8 // tail section header
	if t.tails != nil {
		size = alignedSection(size, len(t.tails.blob))
		if t.tails.mode == TailBinary {
			size += int64(t.tails.bounds.MarshaledSize())
		}
	}
	size += 8 // filter section header
	if t.filter != nil {
		size += int64(t.filter.MarshaledSize())
	}
	return size
}

func alignedSection(size int64, payload int) int64 {
	size += 4 + int64(payload)
	if rem := size % 8; rem != 0 {
		size += 8 - rem
	}
	return size
}
