package client

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Adi8712/janus/internal/codec"
	"github.com/Adi8712/janus/internal/fstree"
	"github.com/Adi8712/janus/internal/lounge"
	"github.com/Adi8712/janus/internal/protocol"
	"github.com/Adi8712/janus/internal/transport"
)

func newPairedLounge(t *testing.T, ws *lounge.Workspace) (*protocol.Connection, chan error) {
	t.Helper()
	clientNet, serverNet := net.Pipe()
	log := zap.NewNop()

	registry := lounge.NewRegistry()
	lookup := func(name string) (*lounge.Workspace, bool) {
		if name == ws.Name {
			return ws, true
		}
		return nil, false
	}

	serverConn := protocol.NewConnection(transport.NewConn(context.Background(), serverNet), log)
	l := lounge.New(serverConn, log, registry, lookup)
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	clientConn := protocol.NewConnection(transport.NewConn(context.Background(), clientNet), log)
	return clientConn, done
}

// readServerBye reads the lounge's Bye reply, which Sync does not wait
// for. net.Pipe is unbuffered, so the lounge's reply (and with it Run)
// only completes once this end reads it.
func readServerBye(t *testing.T, conn *protocol.Connection) {
	t.Helper()
	m, err := conn.Recv()
	require.NoError(t, err)
	require.Equal(t, codec.TypeBye, m.Type())
}

func TestSyncUploadsNewAndLargeFiles(t *testing.T) {
	clientDir := t.TempDir()
	serverDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(clientDir, "small.txt"), []byte("tiny file"), 0o644))
	bigPayload := bytes.Repeat([]byte("b"), 2*1024*1024)
	require.NoError(t, os.WriteFile(filepath.Join(clientDir, "big.bin"), bigPayload, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(clientDir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(clientDir, "nested", "deep.txt"), []byte("deep"), 0o644))

	protect, err := fstree.ParseRules(nil)
	require.NoError(t, err)
	ws := &lounge.Workspace{Name: "ws1", Path: serverDir, AESKey: []byte("0123456789abcdef"), Protect: protect, Dangling: lounge.DanglingRemove}

	clientConn, done := newPairedLounge(t, ws)
	d := New(clientConn, zap.NewNop(), clientDir, nil)

	report, err := d.Sync(context.Background(), ws.Name, ws.AESKey)
	require.NoError(t, err)
	require.Equal(t, 1, report.FilesUploaded) // only big.bin streams directly
	require.Equal(t, 1, report.ArchivesUploaded) // small.txt + nested/deep.txt packed together

	readServerBye(t, clientConn)
	require.NoError(t, <-done)

	got, err := os.ReadFile(filepath.Join(serverDir, "small.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("tiny file"), got)

	got, err = os.ReadFile(filepath.Join(serverDir, "big.bin"))
	require.NoError(t, err)
	require.Equal(t, bigPayload, got)

	got, err = os.ReadFile(filepath.Join(serverDir, "nested", "deep.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("deep"), got)
}

func TestSyncEmptyTreesCompletesCleanly(t *testing.T) {
	clientDir := t.TempDir()
	serverDir := t.TempDir()

	protect, err := fstree.ParseRules(nil)
	require.NoError(t, err)
	ws := &lounge.Workspace{Name: "ws1", Path: serverDir, AESKey: []byte("0123456789abcdef"), Protect: protect, Dangling: lounge.DanglingRemove}

	clientConn, done := newPairedLounge(t, ws)
	d := New(clientConn, zap.NewNop(), clientDir, nil)

	report, err := d.Sync(context.Background(), ws.Name, ws.AESKey)
	require.NoError(t, err)
	require.Equal(t, 0, report.FilesUploaded)
	require.Equal(t, 0, report.ArchivesUploaded)
	readServerBye(t, clientConn)
	require.NoError(t, <-done)
}

func TestSyncRejectsWrongKey(t *testing.T) {
	clientDir := t.TempDir()
	serverDir := t.TempDir()

	protect, err := fstree.ParseRules(nil)
	require.NoError(t, err)
	ws := &lounge.Workspace{Name: "ws1", Path: serverDir, AESKey: []byte("0123456789abcdef"), Protect: protect, Dangling: lounge.DanglingRemove}

	clientConn, done := newPairedLounge(t, ws)
	d := New(clientConn, zap.NewNop(), clientDir, nil)

	_, err = d.Sync(context.Background(), ws.Name, []byte("fedcba9876543210"))
	require.Error(t, err)
	require.Error(t, <-done)
}
