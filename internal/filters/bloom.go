package filters

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/CVDpl/go-nptrie/internal/common"
)

// BloomFilter is a probabilistic membership filter used as a negative
// fast path for exact lookups. It is read-only after construction, so
// concurrent Contains calls are safe.
type BloomFilter struct {
	bits    []uint64
	numBits uint64
	numHash uint32
}

// NewBloomFilter creates a Bloom filter sized for numElements at the
// given target false positive rate.
func NewBloomFilter(numElements uint64, falsePositiveRate float64) *BloomFilter {
	if numElements == 0 {
		numElements = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = common.DefaultFilterFPR
	}

	// m = -n * ln(p) / (ln(2)^2), rounded up to whole words
	m := uint64(math.Ceil(-float64(numElements) * math.Log(falsePositiveRate) / math.Pow(math.Ln2, 2)))
	m = ((m + 63) / 64) * 64

	// k = (m/n) * ln(2)
	k := uint32(math.Ceil(float64(m) / float64(numElements) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 10 {
		k = 10
	}

	return &BloomFilter{
		bits:    make([]uint64, m/64),
		numBits: m,
		numHash: k,
	}
}

// Add adds an element to the filter.
func (bf *BloomFilter) Add(data []byte) {
	h1, h2 := hashPair(data)
	for i := uint32(0); i < bf.numHash; i++ {
		pos := (h1 + uint64(i)*h2) % bf.numBits
		bf.bits[pos/64] |= uint64(1) << (pos % 64)
	}
}

// Contains reports whether the element might be in the set.
func (bf *BloomFilter) Contains(data []byte) bool {
	h1, h2 := hashPair(data)
	for i := uint32(0); i < bf.numHash; i++ {
		pos := (h1 + uint64(i)*h2) % bf.numBits
		if bf.bits[pos/64]&(uint64(1)<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// hashPair computes two independent hash values for double hashing.
// Hashers are local so lookups stay safe under concurrency.
func hashPair(data []byte) (uint64, uint64) {
	h := fnv.New64a()
	h.Write(data)
	h1 := h.Sum64()

	h.Reset()
	h.Write([]byte{0x42}) // seed
	h.Write(data)
	h2 := h.Sum64()

	return h1, h2
}

// SizeInBytes returns the size of the filter bits in bytes.
func (bf *BloomFilter) SizeInBytes() int {
	return len(bf.bits) * 8
}

// MarshaledSize returns the serialized size in bytes.
func (bf *BloomFilter) MarshaledSize() int {
	return 16 + len(bf.bits)*8
}

// AppendTo appends the serialized filter (numBits, k, word count, words).
func (bf *BloomFilter) AppendTo(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, bf.numBits)
	buf = binary.LittleEndian.AppendUint32(buf, bf.numHash)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(bf.bits)))
	for _, w := range bf.bits {
		buf = binary.LittleEndian.AppendUint64(buf, w)
	}
	return buf
}

// UnmarshalBloomFilter decodes a filter and returns the bytes consumed.
func UnmarshalBloomFilter(data []byte) (*BloomFilter, int, error) {
	if len(data) < 16 {
		return nil, 0, fmt.Errorf("%w: truncated bloom filter", common.ErrFormat)
	}
	numBits := binary.LittleEndian.Uint64(data[0:8])
	numHash := binary.LittleEndian.Uint32(data[8:12])
	numWords := int(binary.LittleEndian.Uint32(data[12:16]))
	need := 16 + numWords*8
	if len(data) < need || numBits != uint64(numWords)*64 || numHash == 0 {
		return nil, 0, fmt.Errorf("%w: malformed bloom filter", common.ErrFormat)
	}
	bits := make([]uint64, numWords)
	for i := range bits {
		bits[i] = binary.LittleEndian.Uint64(data[16+i*8:])
	}
	return &BloomFilter{bits: bits, numBits: numBits, numHash: numHash}, need, nil
}
