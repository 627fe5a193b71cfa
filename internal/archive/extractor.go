package archive

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"go.uber.org/zap"

	"github.com/Adi8712/janus/internal/mmapfile"
	"github.com/Adi8712/janus/internal/workerpool"
)

// blockChannelCapacity is spec.md §4.5/§5's ~192 blocks of backpressure:
// the network receiver blocks on sending once this many blocks are
// queued and disk extraction has not kept up.
const blockChannelCapacity = 192

// Pool runs one extraction goroutine per in-flight archive for a single
// lounge (server-side connection), parsing entries as bytes arrive and
// writing each one through mmap.
type Pool struct {
	workspaceRoot string
	log           *zap.Logger
	results       chan Result
}

// NewPool creates an extractor pool rooted at workspaceRoot.
func NewPool(workspaceRoot string, log *zap.Logger) *Pool {
	return &Pool{workspaceRoot: workspaceRoot, log: log, results: make(chan Result, 64)}
}

// Extract begins extracting one archive identified by seqID, with a
// declared total size of archiveSize bytes. It returns a channel the
// caller feeds raw DataBlock payloads into, in order; the caller must
// close the channel once exactly archiveSize bytes have been sent (or
// early, on a read error, to abort the extraction).
func (p *Pool) Extract(seqID uint64, archiveSize int64) chan<- []byte {
	blocks := make(chan []byte, blockChannelCapacity)
	go p.run(seqID, archiveSize, blocks)
	return blocks
}

func (p *Pool) run(seqID uint64, archiveSize int64, blocks <-chan []byte) {
	// Extraction is disk I/O per spec.md §5; the pool caps how many
	// archives are writing to disk at once regardless of how many are
	// in flight on the wire. The caller already has a channel to feed,
	// so blocking here just delays when bytes start draining from it.
	if err := workerpool.AcquireIO(context.Background()); err != nil {
		for range blocks {
		}
		p.results <- Result{SeqID: seqID, Status: StatusFailure}
		return
	}
	defer workerpool.ReleaseIO()

	status := StatusSuccess
	if err := p.extractOne(archiveSize, blocks); err != nil {
		p.log.Warn("archive: extraction failed", zap.Uint64("seq_id", seqID), zap.Error(err))
		status = StatusFailure
		// Drain any remaining blocks so the producer never blocks
		// forever writing to a channel nobody is reading.
		for range blocks {
		}
	}
	p.results <- Result{SeqID: seqID, Status: status}
}

func (p *Pool) extractOne(archiveSize int64, blocks <-chan []byte) error {
	cr := &channelReader{ch: blocks}
	lr := io.LimitReader(cr, archiveSize)

	var consumed int64
	for {
		n, err := p.extractEntry(lr, &consumed)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		_ = n
		if consumed >= archiveSize {
			break
		}
	}
	if consumed != archiveSize {
		return fmt.Errorf("archive: declared size %d but consumed %d", archiveSize, consumed)
	}
	return nil
}

// extractEntry reads one {path_len, perm_bits, data_len, path, data}
// entry from r, writes it into the workspace, and returns the number of
// payload bytes written or discarded; every byte read from r, header and
// path included, is added to *consumed. io.EOF with zero bytes consumed
// means the stream ended cleanly at an entry boundary.
func (p *Pool) extractEntry(r io.Reader, consumed *int64) (int64, error) {
	var header [entryHeaderLen]byte
	n, err := io.ReadFull(r, header[:])
	*consumed += int64(n)
	if err == io.EOF {
		return int64(n), io.EOF
	}
	if err != nil {
		return int64(n), fmt.Errorf("archive: read entry header: %w", err)
	}

	pathLen := binary.BigEndian.Uint32(header[0:4])
	permBits := binary.BigEndian.Uint32(header[4:8])
	dataLen := binary.BigEndian.Uint64(header[8:16])

	pathBuf := make([]byte, pathLen)
	if _, err := io.ReadFull(r, pathBuf); err != nil {
		*consumed += int64(len(pathBuf))
		return 0, fmt.Errorf("archive: read entry path: %w", err)
	}
	*consumed += int64(len(pathBuf))
	relPath := string(pathBuf)

	target, err := securejoin.SecureJoin(p.workspaceRoot, relPath)
	if clean := path.Clean(relPath); err == nil && (clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean)) {
		err = fmt.Errorf("archive: entry path %q leaves the workspace root", relPath)
	}
	if err != nil {
		p.log.Warn("archive: entry escapes workspace root, discarding", zap.String("path", relPath), zap.Error(err))
		discarded, derr := io.CopyN(io.Discard, r, int64(dataLen))
		*consumed += discarded
		return discarded, derr
	}

	written, err := writeEntryFile(target, permBits, int64(dataLen), r)
	*consumed += written
	if err != nil {
		return written, fmt.Errorf("archive: write %q: %w", relPath, err)
	}
	return written, nil
}

func writeEntryFile(target string, permBits uint32, dataLen int64, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}

	tmpPath := target + ".janus-sync-tmp"
	mf, err := mmapfile.Create(tmpPath, dataLen, os.FileMode(permBits).Perm())
	if err != nil {
		return 0, err
	}

	written, copyErr := io.CopyN(mf, r, dataLen)
	closeErr := mf.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return written, copyErr
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return written, closeErr
	}

	if err := renameAtomic(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return written, err
	}
	if permBits != 0 {
		_ = os.Chmod(target, os.FileMode(permBits).Perm())
	}
	return written, nil
}

// renameAtomic tries os.Rename (atomic on POSIX filesystems when source
// and target share a device); on failure it falls back to a
// remove-then-rename that is not atomic but still leaves at most the old
// file missing rather than corrupted.
func renameAtomic(oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err == nil {
		return nil
	}
	if err := os.Remove(newPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(oldPath, newPath)
}

// CheckExtracted drains whatever extraction results are currently ready.
// If none are ready and blockUntilSome is true, it waits for the first
// one instead of returning empty-handed.
func (p *Pool) CheckExtracted(blockUntilSome bool) []Result {
	var out []Result
	if blockUntilSome {
		select {
		case r, ok := <-p.results:
			if ok {
				out = append(out, r)
			}
		}
	}
	for {
		select {
		case r, ok := <-p.results:
			if !ok {
				return out
			}
			out = append(out, r)
		default:
			return out
		}
	}
}

// channelReader adapts a <-chan []byte (as fed by the network receive
// loop) into an io.Reader, buffering the tail of whatever block hasn't
// been fully consumed yet.
type channelReader struct {
	ch  <-chan []byte
	buf []byte
}

func (c *channelReader) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		block, ok := <-c.ch
		if !ok {
			return 0, io.EOF
		}
		c.buf = block
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}
