package nptrie

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/CVDpl/go-nptrie/internal/common"
	"github.com/CVDpl/go-nptrie/internal/encoding"
	"github.com/CVDpl/go-nptrie/internal/filters"
	"github.com/CVDpl/go-nptrie/pkg/nptrie/utils"
)

// Binary format v1, little-endian, every section 8-byte aligned:
//
//	header (64 bytes):
//	  u32 magic  u16 version  u16 reserved
//	  u32 flags  u32 numTries u32 numKeys  u32 numNodes
//	  u64 payload size  u64 file CRC32C  24 reserved bytes
//	per trie: louds, terminal and link bit vectors (u64 bit length +
//	  packed words), labels (u32 length + bytes), links (u32 count +
//	  u32 values)
//	tail section: u8 present, u8 mode, 6 pad; blob (u32 length + bytes);
//	  boundary bit vector in binary mode
//	filter section: u8 present, 7 pad; bloom filter
//
// The CRC covers the whole file with its own field zeroed. Rank/select
// indices are not stored; they are rebuilt on load.

const (
	headerSize  = common.HeaderSize
	offMagic    = 0
	offVersion  = 4
	offFlags    = 8
	offNumTries = 12
	offNumKeys  = 16
	offNumNodes = 20
	offPayload  = 24
	offCRC      = 32
)

// marshal serializes the dictionary into a fresh buffer.
func (t *Trie) marshal() ([]byte, error) {
	if len(t.levels) == 0 {
		return nil, fmt.Errorf("%w: write before build", common.ErrState)
	}

	buf := make([]byte, headerSize)
	for _, lv := range t.levels {
		buf = lv.louds.AppendTo(buf)
		buf = lv.terminal.AppendTo(buf)
		buf = lv.link.AppendTo(buf)
		buf = appendBytesSection(buf, lv.labels)
		buf = appendLinksSection(buf, lv.links)
	}

	if t.tails != nil {
		mode := common.TailModeText
		if t.tails.mode == TailBinary {
			mode = common.TailModeBinary
		}
		buf = append(buf, 1, mode, 0, 0, 0, 0, 0, 0)
		buf = appendBytesSection(buf, t.tails.blob)
		if t.tails.mode == TailBinary {
			buf = t.tails.bounds.AppendTo(buf)
		}
	} else {
		buf = append(buf, 0, common.TailModeNone, 0, 0, 0, 0, 0, 0)
	}

	if t.filter != nil {
		buf = append(buf, 1, 0, 0, 0, 0, 0, 0, 0)
		buf = t.filter.AppendTo(buf)
	} else {
		buf = append(buf, 0, 0, 0, 0, 0, 0, 0, 0)
	}

	binary.LittleEndian.PutUint32(buf[offMagic:], common.MagicDict)
	binary.LittleEndian.PutUint16(buf[offVersion:], common.VersionDict)
	binary.LittleEndian.PutUint32(buf[offFlags:], uint32(t.flags))
	binary.LittleEndian.PutUint32(buf[offNumTries:], uint32(len(t.levels)))
	binary.LittleEndian.PutUint32(buf[offNumKeys:], t.numKeys)
	binary.LittleEndian.PutUint32(buf[offNumNodes:], uint32(t.NumNodes()))
	binary.LittleEndian.PutUint64(buf[offPayload:], uint64(len(buf)-headerSize))
	crc := utils.ComputeCRC32C(buf)
	binary.LittleEndian.PutUint64(buf[offCRC:], uint64(crc))
	return buf, nil
}

// appendBytesSection appends a u32 length plus raw bytes, zero-padded so
// the next section stays 8-byte aligned.
func appendBytesSection(buf, data []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(data)))
	buf = append(buf, data...)
	return utils.PadSection(buf)
}

// appendLinksSection appends a u32 count plus the link values, padded.
func appendLinksSection(buf []byte, links []uint32) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(links)))
	for _, v := range links {
		buf = binary.LittleEndian.AppendUint32(buf, v)
	}
	return utils.PadSection(buf)
}

// parse decodes a serialized dictionary, borrowing label bytes, tail
// bytes and bit-vector words from data. The caller keeps data alive for
// the lifetime of the trie (the mapping, or the read buffer).
func (t *Trie) parse(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("%w: %d bytes is smaller than the header", common.ErrFormat, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[offMagic:]); magic != common.MagicDict {
		return fmt.Errorf("%w: got 0x%08x, expected 0x%08x", common.ErrInvalidMagic, magic, common.MagicDict)
	}
	if version := binary.LittleEndian.Uint16(data[offVersion:]); version != common.VersionDict {
		return fmt.Errorf("%w: got 0x%04x, expected 0x%04x", common.ErrUnsupportedVersion, version, common.VersionDict)
	}

	payload := binary.LittleEndian.Uint64(data[offPayload:])
	if uint64(len(data)) != headerSize+payload {
		return fmt.Errorf("%w: payload size %d does not match %d data bytes", common.ErrFormat, payload, len(data))
	}

	wantCRC := binary.LittleEndian.Uint64(data[offCRC:])
	var zeroed [8]byte
	gotCRC := uint64(utils.ComputeCRC32CMulti(data[:offCRC], zeroed[:], data[offCRC+8:]))
	if gotCRC != wantCRC {
		return fmt.Errorf("%w: got 0x%08x, expected 0x%08x", common.ErrCRCMismatch, gotCRC, wantCRC)
	}

	flags := Flags(binary.LittleEndian.Uint32(data[offFlags:]))
	cfg, err := parseFlags(flags)
	if err != nil {
		return fmt.Errorf("%w: bad flags in header: %v", common.ErrFormat, err)
	}
	numTries := int(binary.LittleEndian.Uint32(data[offNumTries:]))
	if numTries < 1 || numTries > common.MaxNumTries {
		return fmt.Errorf("%w: %d tries", common.ErrFormat, numTries)
	}
	numKeys := binary.LittleEndian.Uint32(data[offNumKeys:])
	numNodes := binary.LittleEndian.Uint32(data[offNumNodes:])

	r := sectionReader{data: data, off: headerSize}
	levels := make([]*loudsLevel, numTries)
	for i := range levels {
		lv := &loudsLevel{}
		if lv.louds, err = r.bitVector(); err != nil {
			return err
		}
		if lv.terminal, err = r.bitVector(); err != nil {
			return err
		}
		if lv.link, err = r.bitVector(); err != nil {
			return err
		}
		if lv.labels, err = r.bytesSection(); err != nil {
			return err
		}
		if lv.links, err = r.linksSection(); err != nil {
			return err
		}
		nodes := lv.nodeCount()
		if uint64(len(lv.labels)) != nodes-1 || lv.terminal.Len() != nodes ||
			lv.link.Len() != nodes-1 || lv.link.Ones() != uint64(len(lv.links)) {
			return fmt.Errorf("%w: inconsistent trie level %d", common.ErrFormat, i)
		}
		levels[i] = lv
	}

	var store *tailStore
	hdr, err := r.take(8)
	if err != nil {
		return err
	}
	if hdr[0] != 0 {
		store = &tailStore{}
		switch hdr[1] {
		case common.TailModeText:
			store.mode = TailText
		case common.TailModeBinary:
			store.mode = TailBinary
		default:
			return fmt.Errorf("%w: tail mode %d", common.ErrFormat, hdr[1])
		}
		if store.blob, err = r.bytesSection(); err != nil {
			return err
		}
		if store.mode == TailBinary {
			if store.bounds, err = r.bitVector(); err != nil {
				return err
			}
		}
	}

	var filter *filters.BloomFilter
	fhdr, err := r.take(8)
	if err != nil {
		return err
	}
	if fhdr[0] != 0 {
		var n int
		filter, n, err = filters.UnmarshalBloomFilter(r.data[r.off:])
		if err != nil {
			return err
		}
		r.off += n
	}

	var total uint64
	for _, lv := range levels {
		total += lv.nodeCount()
	}
	if total != uint64(numNodes) || levels[0].numTerminals() != uint64(numKeys) {
		return fmt.Errorf("%w: node or key counts do not match the header", common.ErrFormat)
	}

	t.levels = levels
	t.tails = store
	t.filter = filter
	t.cfg = cfg
	t.flags = flags
	t.numKeys = numKeys
	return nil
}

// sectionReader walks the aligned sections of a serialized dictionary.
type sectionReader struct {
	data []byte
	off  int
}

func (r *sectionReader) take(n int) ([]byte, error) {
	if r.off+n > len(r.data) {
		return nil, fmt.Errorf("%w: truncated at offset %d", common.ErrFormat, r.off)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *sectionReader) bitVector() (*encoding.BitVector, error) {
	b, err := r.take(8)
	if err != nil {
		return nil, err
	}
	nbits := binary.LittleEndian.Uint64(b)
	numWords := int((nbits + 63) / 64)
	wb, err := r.take(numWords * 8)
	if err != nil {
		return nil, err
	}
	return encoding.BitVectorFromWords(encoding.WordsFromBytes(wb), nbits), nil
}

func (r *sectionReader) bytesSection() ([]byte, error) {
	b, err := r.take(4)
	if err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint32(b))
	data, err := r.take(n)
	if err != nil {
		return nil, err
	}
	r.off = utils.AlignSection(r.off)
	if r.off > len(r.data) {
		return nil, fmt.Errorf("%w: truncated section padding", common.ErrFormat)
	}
	return data, nil
}

func (r *sectionReader) linksSection() ([]uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint32(b))
	raw, err := r.take(n * 4)
	if err != nil {
		return nil, err
	}
	links := make([]uint32, n)
	for i := range links {
		links[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	r.off = utils.AlignSection(r.off)
	if r.off > len(r.data) {
		return nil, fmt.Errorf("%w: truncated section padding", common.ErrFormat)
	}
	return links, nil
}

// WriteTo serializes the dictionary to w.
func (t *Trie) WriteTo(w io.Writer) (int64, error) {
	buf, err := t.marshal()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf)
	if err != nil {
		return int64(n), fmt.Errorf("%w: %v", common.ErrIO, err)
	}
	return int64(n), nil
}

// ReadFrom replaces the dictionary with one read from r.
func (t *Trie) ReadFrom(r io.Reader) (int64, error) {
	t.Clear()
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrIO, err)
	}
	payload := binary.LittleEndian.Uint64(header[offPayload:])
	if payload > uint64(1)<<40 {
		return int64(headerSize), fmt.Errorf("%w: implausible payload size %d", common.ErrFormat, payload)
	}
	data := make([]byte, headerSize+int(payload))
	copy(data, header)
	if _, err := io.ReadFull(r, data[headerSize:]); err != nil {
		return int64(headerSize), fmt.Errorf("%w: %v", common.ErrIO, err)
	}
	if err := t.parse(data); err != nil {
		t.reset()
		return int64(len(data)), err
	}
	return int64(len(data)), nil
}

// Save writes the dictionary to path atomically.
func (t *Trie) Save(path string) error {
	buf, err := t.marshal()
	if err != nil {
		return err
	}
	af, err := utils.NewAtomicFile(path)
	if err != nil {
		return err
	}
	if _, err := af.Write(buf); err != nil {
		af.Abort()
		return err
	}
	if err := af.Commit(); err != nil {
		af.Abort()
		return err
	}
	return nil
}

// Load replaces the dictionary with one read from path, copying it into
// memory.
func (t *Trie) Load(path string) error {
	t.Clear()
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrIO, err)
	}
	if err := t.parse(data); err != nil {
		t.reset()
		return err
	}
	return nil
}

// MapFile replaces the dictionary with a memory-mapped view of path.
// The trie owns the mapping and releases it in Clear or Close; label
// bytes, tail bytes and bit-vector words are used in place.
func (t *Trie) MapFile(path string) error {
	t.Clear()
	mm, err := utils.MapFile(path)
	if err != nil {
		return err
	}
	if err := t.parse(mm.Data()); err != nil {
		mm.Close()
		t.reset()
		return err
	}
	t.mapping = mm
	return nil
}
