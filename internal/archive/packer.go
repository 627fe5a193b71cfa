package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/Adi8712/janus/internal/mmapfile"
)

// pendingEntry is one file queued into a Holder, not yet read off disk.
type pendingEntry struct {
	relPath  string
	absPath  string
	permBits uint32
	size     int64
}

// Holder accumulates small files for one workspace until it is nearly
// full (per spec.md §4.5's 128 MiB / 1024 file thresholds), at which
// point the caller freezes it into a linear byte buffer and starts a
// fresh one. A Holder is not safe for concurrent use.
type Holder struct {
	entries      []pendingEntry
	archiveSize  int64 // anticipated size: headers + payloads
}

// NewHolder returns an empty holder.
func NewHolder() *Holder { return &Holder{} }

// Add queues a file for packing. size and permBits are the values
// already known from the tree walk, so Add never stats the file itself;
// the bytes are read lazily, in Freeze.
func (h *Holder) Add(relPath, absPath string, permBits uint32, size int64) {
	h.entries = append(h.entries, pendingEntry{relPath: relPath, absPath: absPath, permBits: permBits, size: size})
	h.archiveSize += entryHeaderLen + int64(len(relPath)) + size
}

// NearlyFull reports whether the next Add should instead go to a fresh
// holder.
func (h *Holder) NearlyFull() bool {
	return h.archiveSize >= MaxArchiveBytes || len(h.entries) >= MaxArchiveEntries
}

// Empty reports whether the holder has nothing queued.
func (h *Holder) Empty() bool { return len(h.entries) == 0 }

// Count returns the number of files queued.
func (h *Holder) Count() int { return len(h.entries) }

// Freeze reads every queued file's bytes via mmap and concatenates
// per-entry headers and payloads into one buffer, per spec.md's archive
// entry layout: path_len(u32) | perm_bits(u32) | data_len(u64) |
// path_utf8 | data. The holder is left empty afterwards.
func (h *Holder) Freeze() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(h.archiveSize))

	for _, e := range h.entries {
		if err := writeEntry(&buf, e); err != nil {
			return nil, fmt.Errorf("archive: pack %q: %w", e.relPath, err)
		}
	}

	h.entries = nil
	h.archiveSize = 0
	return buf.Bytes(), nil
}

func writeEntry(buf *bytes.Buffer, e pendingEntry) error {
	pathBytes := []byte(e.relPath)

	var header [entryHeaderLen]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(pathBytes)))
	binary.BigEndian.PutUint32(header[4:8], e.permBits)
	binary.BigEndian.PutUint64(header[8:16], uint64(e.size))
	buf.Write(header[:])
	buf.Write(pathBytes)

	if e.size == 0 {
		return nil
	}

	mf, err := mmapfile.Open(e.absPath)
	if err != nil {
		return err
	}
	defer mf.Close()

	chunk := make([]byte, 0)
	remaining := e.size
	var offset int64
	const readChunk = 1 << 20
	for remaining > 0 {
		n := remaining
		if n > readChunk {
			n = readChunk
		}
		if int64(len(chunk)) < n {
			chunk = make([]byte, n)
		}
		read, err := mf.ReadAt(chunk[:n], offset)
		if err != nil {
			return err
		}
		buf.Write(chunk[:read])
		offset += int64(read)
		remaining -= int64(read)
	}
	return nil
}

// StatFile is a small convenience for callers building pendingEntry-shaped
// data from a fstree walk without re-importing os.FileInfo handling.
func StatFile(absPath string) (size int64, permBits uint32, err error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return 0, 0, err
	}
	return info.Size(), uint32(info.Mode().Perm()), nil
}
