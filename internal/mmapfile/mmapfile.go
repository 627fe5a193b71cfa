// Package mmapfile provides memory-mapped file I/O: open an existing file
// read-only, or create+truncate one and map it read-write, then read and
// write through bounded slices rather than syscalls per byte.
package mmapfile

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// chunkSize bounds a single mmap(2) call so platforms that cap one
// mapping at a 31-bit size still work against multi-gigabyte files.
const chunkSize = 1 << 30 // 1 GiB

type chunk struct {
	data   []byte // the mmap'd window
	offset int64  // file offset this window begins at
}

// File is a memory-mapped view of a regular file. It is not safe for
// concurrent use by multiple goroutines without external synchronisation
// beyond what Close's idempotency guarantees.
type File struct {
	f        *os.File
	readOnly bool
	size     int64
	chunks   []chunk

	readPos  int64
	writePos int64

	closeOnce sync.Once
	closeErr  error
}

// Open maps an existing file read-only in its entirety.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	mf := &File{f: f, readOnly: true, size: info.Size()}
	if err := mf.mapAll(unix.PROT_READ, false); err != nil {
		f.Close()
		return nil, err
	}
	return mf, nil
}

// Create truncates (or creates) path to size bytes and maps it
// read-write. perm is applied verbatim via os.Chmod once the file exists
// -- on the POSIX platforms this package targets there is no bit-width
// translation to perform, and filesystems where only the owner triad is
// meaningful get no separate handling.
func Create(path string, size int64, perm os.FileMode) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	if perm != 0 {
		if err := os.Chmod(path, perm); err != nil {
			f.Close()
			return nil, err
		}
	}
	mf := &File{f: f, readOnly: false, size: size}
	if size > 0 {
		if err := mf.mapAll(unix.PROT_READ|unix.PROT_WRITE, true); err != nil {
			f.Close()
			return nil, err
		}
	}
	return mf, nil
}

func (mf *File) mapAll(prot int, writable bool) error {
	remaining := mf.size
	var offset int64
	for remaining > 0 {
		n := remaining
		if n > chunkSize {
			n = chunkSize
		}
		data, err := unix.Mmap(int(mf.f.Fd()), offset, int(n), prot, unix.MAP_SHARED)
		if err != nil {
			mf.unmapAll()
			return fmt.Errorf("mmapfile: mmap at offset %d len %d: %w", offset, n, err)
		}
		mf.chunks = append(mf.chunks, chunk{data: data, offset: offset})
		offset += n
		remaining -= n
	}
	_ = writable
	return nil
}

func (mf *File) unmapAll() {
	for _, c := range mf.chunks {
		_ = unix.Munmap(c.data)
	}
	mf.chunks = nil
}

// Size reports the file's mapped length.
func (mf *File) Size() int64 { return mf.size }

// ReadAt copies min(len(buf), Size()-offset) bytes starting at offset
// into buf and returns the count. It returns an error if offset is
// outside [0, Size()].
func (mf *File) ReadAt(buf []byte, offset int64) (int, error) {
	if offset < 0 || offset > mf.size {
		return 0, fmt.Errorf("mmapfile: read offset %d out of range [0,%d]", offset, mf.size)
	}
	n := int64(len(buf))
	if offset+n > mf.size {
		n = mf.size - offset
	}
	mf.copyOut(buf[:n], offset)
	return int(n), nil
}

// WriteAt writes buf at offset. offset+len(buf) must not exceed Size().
func (mf *File) WriteAt(buf []byte, offset int64) (int, error) {
	if mf.readOnly {
		return 0, fmt.Errorf("mmapfile: file is mapped read-only")
	}
	if offset < 0 || offset+int64(len(buf)) > mf.size {
		return 0, fmt.Errorf("mmapfile: write [%d,%d) out of range [0,%d]", offset, offset+int64(len(buf)), mf.size)
	}
	mf.copyIn(buf, offset)
	return len(buf), nil
}

// Read advances an internal read cursor, reading into buf and returning
// io.EOF once the cursor reaches Size().
func (mf *File) Read(buf []byte) (int, error) {
	if mf.readPos >= mf.size {
		return 0, io.EOF
	}
	n, err := mf.ReadAt(buf, mf.readPos)
	mf.readPos += int64(n)
	return n, err
}

// Write advances an internal write cursor, writing buf and reporting an
// out-of-range error once the cursor would exceed Size().
func (mf *File) Write(buf []byte) (int, error) {
	n, err := mf.WriteAt(buf, mf.writePos)
	mf.writePos += int64(n)
	return n, err
}

func (mf *File) copyOut(dst []byte, offset int64) {
	for _, c := range mf.chunks {
		start := offset - c.offset
		if start < 0 || start >= int64(len(c.data)) {
			continue
		}
		n := copy(dst, c.data[start:])
		dst = dst[n:]
		offset += int64(n)
		if len(dst) == 0 {
			return
		}
	}
}

func (mf *File) copyIn(src []byte, offset int64) {
	for _, c := range mf.chunks {
		start := offset - c.offset
		if start < 0 || start >= int64(len(c.data)) {
			continue
		}
		n := copy(c.data[start:], src)
		src = src[n:]
		offset += int64(n)
		if len(src) == 0 {
			return
		}
	}
}

// Force flushes every mapped window to disk.
func (mf *File) Force() error {
	for _, c := range mf.chunks {
		if err := unix.Msync(c.data, unix.MS_SYNC); err != nil {
			return fmt.Errorf("mmapfile: msync: %w", err)
		}
	}
	return nil
}

// Close forces, unmaps, and closes the underlying file. It is idempotent
// and safe to call from any exit path, including defer chains that race
// an earlier explicit Close.
func (mf *File) Close() error {
	mf.closeOnce.Do(func() {
		if !mf.readOnly {
			mf.closeErr = mf.Force()
		}
		mf.unmapAll()
		if err := mf.f.Close(); err != nil && mf.closeErr == nil {
			mf.closeErr = err
		}
	})
	return mf.closeErr
}
