package archive

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func encodeTestEntry(t *testing.T, relPath string, permBits uint32, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var header [entryHeaderLen]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(relPath)))
	binary.BigEndian.PutUint32(header[4:8], permBits)
	binary.BigEndian.PutUint64(header[8:16], uint64(len(data)))
	buf.Write(header[:])
	buf.WriteString(relPath)
	buf.Write(data)
	return buf.Bytes()
}

func feedArchive(blocks chan<- []byte, archive []byte) {
	const chunk = 7 // deliberately small and not entry-aligned
	for i := 0; i < len(archive); i += chunk {
		end := i + chunk
		if end > len(archive) {
			end = len(archive)
		}
		blocks <- archive[i:end]
	}
	close(blocks)
}

func waitResult(t *testing.T, p *Pool) Result {
	t.Helper()
	results := p.CheckExtracted(true)
	require.Len(t, results, 1)
	return results[0]
}

func TestExtractSucceedsWithMultipleEntries(t *testing.T) {
	root := t.TempDir()
	log := zap.NewNop()
	p := NewPool(root, log)

	var archive bytes.Buffer
	archive.Write(encodeTestEntry(t, "a.txt", 0o644, []byte("hello")))
	archive.Write(encodeTestEntry(t, "nested/b.txt", 0o644, []byte("world")))

	blocks := p.Extract(1, int64(archive.Len()))
	go feedArchive(blocks, archive.Bytes())

	res := waitResult(t, p)
	require.Equal(t, uint64(1), res.SeqID)
	require.Equal(t, StatusSuccess, res.Status)

	got, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))

	got, err = os.ReadFile(filepath.Join(root, "nested", "b.txt"))
	require.NoError(t, err)
	require.Equal(t, "world", string(got))
}

func TestExtractDiscardsPathTraversalEntry(t *testing.T) {
	root := t.TempDir()
	log := zap.NewNop()
	p := NewPool(root, log)

	var archive bytes.Buffer
	archive.Write(encodeTestEntry(t, "../escape.txt", 0o644, []byte("evil")))
	archive.Write(encodeTestEntry(t, "safe.txt", 0o644, []byte("ok")))

	blocks := p.Extract(2, int64(archive.Len()))
	go feedArchive(blocks, archive.Bytes())

	res := waitResult(t, p)
	require.Equal(t, StatusSuccess, res.Status)

	_, err := os.Stat(filepath.Join(filepath.Dir(root), "escape.txt"))
	require.True(t, os.IsNotExist(err))

	got, err := os.ReadFile(filepath.Join(root, "safe.txt"))
	require.NoError(t, err)
	require.Equal(t, "ok", string(got))
}

func TestExtractFailsOnTruncatedArchive(t *testing.T) {
	root := t.TempDir()
	log := zap.NewNop()
	p := NewPool(root, log)

	full := encodeTestEntry(t, "a.txt", 0o644, []byte("hello world"))
	truncated := full[:len(full)-3]

	blocks := p.Extract(3, int64(len(full)))
	go func() {
		blocks <- truncated
		close(blocks)
	}()

	res := waitResult(t, p)
	require.Equal(t, StatusFailure, res.Status)
}

func TestCheckExtractedNonBlockingWhenEmpty(t *testing.T) {
	p := NewPool(t.TempDir(), zap.NewNop())
	require.Empty(t, p.CheckExtracted(false))
}

func TestCheckExtractedCollectsMultipleReadyResults(t *testing.T) {
	root := t.TempDir()
	p := NewPool(root, zap.NewNop())

	for i := uint64(1); i <= 3; i++ {
		entry := encodeTestEntry(t, "f.txt", 0o644, []byte("x"))
		blocks := p.Extract(i, int64(len(entry)))
		blocks <- entry
		close(blocks)
	}

	// Give the extraction goroutines a moment to finish and publish.
	deadline := time.Now().Add(2 * time.Second)
	var all []Result
	for len(all) < 3 && time.Now().Before(deadline) {
		all = append(all, p.CheckExtracted(true)...)
	}
	require.Len(t, all, 3)
}
