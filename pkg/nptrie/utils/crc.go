package utils

import (
	"hash/crc32"
)

// CRC32C uses the Castagnoli polynomial for better error detection.
// The dictionary header stores this checksum computed over the whole
// file with the checksum field zeroed.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ComputeCRC32C computes CRC32C checksum for the given data.
func ComputeCRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}

// ComputeCRC32CMulti computes CRC32C checksum for multiple data slices.
// Readers use it to splice a zeroed checksum field into the stream
// without copying the file.
func ComputeCRC32CMulti(data ...[]byte) uint32 {
	h := crc32.New(crcTable)
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum32()
}
