package nptrie

import (
	"fmt"

	"github.com/CVDpl/go-nptrie/internal/common"
)

// Flags is the build configuration bitfield. Bits 0..7 carry the maximum
// number of tries (0 means the default of 3); the remaining bits select
// the trie shape, tail storage mode and sibling order. Unset groups fall
// back to their defaults, conflicting bits within a group are rejected.
type Flags uint32

const (
	// NumTriesMask extracts the trie count from the low byte.
	NumTriesMask Flags = 0xFF

	// PrefixTrie advances one byte per edge; PatriciaTrie (default)
	// compresses single-child chains into one edge.
	PrefixTrie   Flags = 1 << 8
	PatriciaTrie Flags = 1 << 9

	// Tail storage for the final trie level.
	WithoutTail Flags = 1 << 12
	TextTail    Flags = 1 << 13
	BinaryTail  Flags = 1 << 14

	// Sibling ordering. Weight order (default) places heavy subtrees
	// first for lookup locality; label order enables binary-search
	// descent.
	LabelOrder  Flags = 1 << 16
	WeightOrder Flags = 1 << 17

	flagsKnown = NumTriesMask | PrefixTrie | PatriciaTrie |
		WithoutTail | TextTail | BinaryTail | LabelOrder | WeightOrder
)

// TailMode selects how terminal tails are stored.
type TailMode uint8

const (
	TailNone TailMode = iota
	TailText
	TailBinary
)

func (m TailMode) String() string {
	switch m {
	case TailNone:
		return "none"
	case TailText:
		return "text"
	case TailBinary:
		return "binary"
	}
	return "unknown"
}

// buildConfig is the validated form of Flags.
type buildConfig struct {
	numTries    int
	patricia    bool
	tailMode    TailMode
	weightOrder bool
}

// parseFlags validates the bitfield and resolves defaults.
func parseFlags(flags Flags) (buildConfig, error) {
	var cfg buildConfig

	if flags&^flagsKnown != 0 {
		return cfg, fmt.Errorf("%w: unknown flag bits 0x%x", common.ErrParam, uint32(flags&^flagsKnown))
	}

	cfg.numTries = int(flags & NumTriesMask)
	if cfg.numTries == 0 {
		cfg.numTries = common.DefaultNumTries
	}
	if cfg.numTries > common.MaxNumTries {
		return cfg, fmt.Errorf("%w: num tries %d exceeds %d", common.ErrParam, cfg.numTries, common.MaxNumTries)
	}

	switch flags & (PrefixTrie | PatriciaTrie) {
	case 0, PatriciaTrie:
		cfg.patricia = true
	case PrefixTrie:
		cfg.patricia = false
	default:
		return cfg, fmt.Errorf("%w: both prefix and patricia flags set", common.ErrParam)
	}

	switch flags & (WithoutTail | TextTail | BinaryTail) {
	case 0, TextTail:
		cfg.tailMode = TailText
	case WithoutTail:
		cfg.tailMode = TailNone
	case BinaryTail:
		cfg.tailMode = TailBinary
	default:
		return cfg, fmt.Errorf("%w: conflicting tail mode flags", common.ErrParam)
	}

	switch flags & (LabelOrder | WeightOrder) {
	case 0, WeightOrder:
		cfg.weightOrder = true
	case LabelOrder:
		cfg.weightOrder = false
	default:
		return cfg, fmt.Errorf("%w: both label and weight order set", common.ErrParam)
	}

	return cfg, nil
}

// normalized re-encodes the configuration for the file header.
func (c buildConfig) normalized() Flags {
	f := Flags(c.numTries)
	if c.patricia {
		f |= PatriciaTrie
	} else {
		f |= PrefixTrie
	}
	switch c.tailMode {
	case TailNone:
		f |= WithoutTail
	case TailText:
		f |= TextTail
	case TailBinary:
		f |= BinaryTail
	}
	if c.weightOrder {
		f |= WeightOrder
	} else {
		f |= LabelOrder
	}
	return f
}
