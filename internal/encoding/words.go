package encoding

import (
	"encoding/binary"
	"unsafe"
)

// WordsFromBytes reinterprets b as little-endian uint64 words without
// copying when the slice is 8-byte aligned and the host is little-endian.
// Otherwise it decodes into a fresh slice. len(b) must be a multiple of 8.
func WordsFromBytes(b []byte) []uint64 {
	n := len(b) / 8
	if n == 0 {
		return nil
	}
	if hostLittleEndian && uintptr(unsafe.Pointer(&b[0]))%8 == 0 {
		return unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), n)
	}
	words := make([]uint64, n)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return words
}

var hostLittleEndian = func() bool {
	var x uint16 = 1
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()
