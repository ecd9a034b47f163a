// Package utils provides the file-level plumbing for dictionary
// persistence: atomic single-blob writes, read-only memory mappings and
// the checksums carried by the dictionary header.
package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/CVDpl/go-nptrie/internal/common"
)

// AtomicFile stages a dictionary image in a temporary file and
// publishes it with a rename on Commit. A dictionary is one immutable
// blob, so readers observe either the previous image or the complete
// new one, never a torn write. Every failure path removes the
// temporary file; all errors are classified as ErrIO.
type AtomicFile struct {
	path     string
	tempPath string
	file     *os.File
}

// NewAtomicFile creates the temporary file next to path.
func NewAtomicFile(path string) (*AtomicFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: create directory: %v", common.ErrIO, err)
	}

	tempPath := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %v", common.ErrIO, err)
	}

	return &AtomicFile{
		path:     path,
		tempPath: tempPath,
		file:     file,
	}, nil
}

// Write appends to the staged image. On failure the temporary file is
// removed and the AtomicFile is unusable.
func (af *AtomicFile) Write(p []byte) (int, error) {
	if af.file == nil {
		return 0, fmt.Errorf("%w: write after commit or abort", common.ErrIO)
	}
	n, err := af.file.Write(p)
	if err != nil {
		af.discard()
		return n, fmt.Errorf("%w: write temp file: %v", common.ErrIO, err)
	}
	return n, nil
}

// Commit syncs the staged image, renames it to the final path and syncs
// the directory so the rename is durable.
func (af *AtomicFile) Commit() error {
	if af.file == nil {
		return fmt.Errorf("%w: commit after commit or abort", common.ErrIO)
	}
	if err := af.file.Sync(); err != nil {
		af.discard()
		return fmt.Errorf("%w: sync temp file: %v", common.ErrIO, err)
	}
	if err := af.file.Close(); err != nil {
		af.file = nil
		os.Remove(af.tempPath)
		return fmt.Errorf("%w: close temp file: %v", common.ErrIO, err)
	}
	af.file = nil
	if err := os.Rename(af.tempPath, af.path); err != nil {
		os.Remove(af.tempPath)
		return fmt.Errorf("%w: rename into place: %v", common.ErrIO, err)
	}
	if err := syncDir(filepath.Dir(af.path)); err != nil {
		return fmt.Errorf("%w: sync directory: %v", common.ErrIO, err)
	}
	return nil
}

// Abort removes the temporary file without publishing it. Safe to call
// after a failed Write or Commit.
func (af *AtomicFile) Abort() {
	af.discard()
}

func (af *AtomicFile) discard() {
	if af.file != nil {
		af.file.Close()
		af.file = nil
	}
	os.Remove(af.tempPath)
}

// syncDir syncs a directory so a completed rename is persisted.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Sync()
}

// PadSection zero-pads buf to the dictionary format's 8-byte section
// alignment, so bit-vector words following it can be reinterpreted in
// place from a mapping.
func PadSection(buf []byte) []byte {
	for len(buf)%common.SectionAlignment != 0 {
		buf = append(buf, 0)
	}
	return buf
}

// AlignSection rounds a payload offset up to the next section boundary.
func AlignSection(off int) int {
	if rem := off % common.SectionAlignment; rem != 0 {
		off += common.SectionAlignment - rem
	}
	return off
}

// MemoryMap is a read-only mapping of a dictionary file. The mapping is
// page aligned, which satisfies the word alignment the in-place
// bit-vector sections rely on.
type MemoryMap struct {
	data []byte
	file *os.File
}

// MapFile memory-maps a dictionary file for reading.
func MapFile(path string) (*MemoryMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIO, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrIO, err)
	}

	if stat.Size() == 0 {
		return &MemoryMap{
			data: []byte{},
			file: file,
		}, nil
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(stat.Size()),
		unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: mmap: %v", common.ErrIO, err)
	}

	// Dictionary queries jump across the mapping; let the kernel know
	// readahead will not help.
	_ = unix.Madvise(data, unix.MADV_RANDOM)

	return &MemoryMap{
		data: data,
		file: file,
	}, nil
}

// Data returns the mapped data.
func (m *MemoryMap) Data() []byte {
	return m.data
}

// Close unmaps the file and closes it.
func (m *MemoryMap) Close() error {
	if len(m.data) > 0 {
		if err := unix.Munmap(m.data); err != nil {
			m.file.Close()
			return fmt.Errorf("%w: munmap: %v", common.ErrIO, err)
		}
	}
	m.data = nil
	return m.file.Close()
}
