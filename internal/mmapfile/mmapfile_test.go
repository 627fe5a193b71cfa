package mmapfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	mf, err := Create(path, 4096, 0o644)
	require.NoError(t, err)

	payload := []byte("hello, janus")
	n, err := mf.WriteAt(payload, 100)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, mf.Force())
	require.NoError(t, mf.Close())

	ro, err := Open(path)
	require.NoError(t, err)
	defer ro.Close()

	buf := make([]byte, len(payload))
	n, err = ro.ReadAt(buf, 100)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, buf)
}

func TestWriteAtOutOfRangeErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	mf, err := Create(path, 16, 0o644)
	require.NoError(t, err)
	defer mf.Close()

	_, err = mf.WriteAt([]byte("too long for this file"), 0)
	require.Error(t, err)

	_, err = mf.WriteAt([]byte("x"), 100)
	require.Error(t, err)
}

func TestReadOnlyFileRejectsWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("immutable"), 0o644))

	mf, err := Open(path)
	require.NoError(t, err)
	defer mf.Close()

	_, err = mf.WriteAt([]byte("x"), 0)
	require.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	mf, err := Create(path, 8, 0o644)
	require.NoError(t, err)

	require.NoError(t, mf.Close())
	require.NoError(t, mf.Close())
}

func TestSequentialReadWriteCursors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	mf, err := Create(path, 12, 0o644)
	require.NoError(t, err)
	defer mf.Close()

	_, err = mf.Write([]byte("hello"))
	require.NoError(t, err)
	_, err = mf.Write([]byte("world"))
	require.NoError(t, err)

	out := make([]byte, 10)
	n, err := mf.Read(out)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, "helloworld", string(out))
}
