package lounge

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Adi8712/janus/internal/archive"
	"github.com/Adi8712/janus/internal/codec"
	"github.com/Adi8712/janus/internal/fstree"
	"github.com/Adi8712/janus/internal/protocol"
	"github.com/Adi8712/janus/internal/syncplan"
	"github.com/Adi8712/janus/internal/transport"
)

func newTestLounge(t *testing.T, ws *Workspace) (*protocol.Connection, chan error) {
	t.Helper()
	clientNet, serverNet := net.Pipe()
	log := zap.NewNop()

	registry := NewRegistry()
	lookup := func(name string) (*Workspace, bool) {
		if name == ws.Name {
			return ws, true
		}
		return nil, false
	}

	serverConn := protocol.NewConnection(transport.NewConn(context.Background(), serverNet), log)
	l := New(serverConn, log, registry, lookup)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	client := protocol.NewConnection(transport.NewConn(context.Background(), clientNet), log)
	return client, done
}

func newWorkspace(t *testing.T, path string, protectPatterns []string, dangling DanglingPolicy) *Workspace {
	t.Helper()
	protect, err := fstree.ParseRules(protectPatterns)
	require.NoError(t, err)
	return &Workspace{
		Name:     "ws1",
		Path:     path,
		AESKey:   []byte("0123456789abcdef"),
		Protect:  protect,
		Dangling: dangling,
	}
}

// readServerBye reads the lounge's Bye reply on the client side. net.Pipe
// is unbuffered, so the lounge's reply (and with it Run) only completes
// once this end reads it.
func readServerBye(t *testing.T, client *protocol.Connection) {
	t.Helper()
	m, err := client.Recv()
	require.NoError(t, err)
	require.Equal(t, codec.TypeBye, m.Type())
}

func handshake(t *testing.T, client *protocol.Connection, ws *Workspace) {
	t.Helper()
	require.NoError(t, client.ClientHello())
	require.NoError(t, client.ClientAuth(ws.Name, ws.AESKey))
	require.NoError(t, client.ClientAwaitAdmission())
}

func TestEndToEndUploadSingleFile(t *testing.T) {
	clientDir := t.TempDir()
	serverDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(clientDir, "hello.txt"), []byte("hello world"), 0o640))

	ws := newWorkspace(t, serverDir, nil, DanglingRemove)
	client, done := newTestLounge(t, ws)

	handshake(t, client, ws)

	localTree, err := fstree.Walk(context.Background(), zap.NewNop(), clientDir, nil)
	require.NoError(t, err)
	require.NoError(t, fstree.ResolvePaths(localTree, clientDir))

	forest := syncplan.Build(localTree, nil, 0)
	require.NoError(t, client.ClientCommitPlan(forest))

	fileNode := findByPath(forest, "hello.txt")
	require.NotNil(t, fileNode)

	data, err := os.ReadFile(filepath.Join(clientDir, "hello.txt"))
	require.NoError(t, err)
	require.NoError(t, client.ClientUploadFile(1, fileNode.PermissionBits, fileNode.Path, uint64(len(data)), bytes.NewReader(data)))

	acks, err := client.ClientConfirmFiles()
	require.NoError(t, err)
	require.Equal(t, []protocol.Ack{{ID: 1, Code: 0}}, acks)

	require.NoError(t, client.ClientBye())
	readServerBye(t, client)
	require.NoError(t, <-done)

	got, err := os.ReadFile(filepath.Join(serverDir, "hello.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)
}

func TestEndToEndUploadArchive(t *testing.T) {
	clientDir := t.TempDir()
	serverDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(clientDir, "small.txt"), []byte("tiny"), 0o644))

	ws := newWorkspace(t, serverDir, nil, DanglingRemove)
	client, done := newTestLounge(t, ws)
	handshake(t, client, ws)

	holder := archive.NewHolder()
	holder.Add("small.txt", filepath.Join(clientDir, "small.txt"), 0o644, 4)
	blob, err := holder.Freeze()
	require.NoError(t, err)

	require.NoError(t, client.ClientUploadArchive(7, blob))

	acks, err := client.ClientConfirmArchives(false)
	require.NoError(t, err)
	require.Equal(t, []protocol.Ack{{ID: 7, Code: 0}}, acks)

	require.NoError(t, client.ClientBye())
	readServerBye(t, client)
	require.NoError(t, <-done)

	got, err := os.ReadFile(filepath.Join(serverDir, "small.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("tiny"), got)
}

func TestProtectRuleVetoesDeletion(t *testing.T) {
	clientDir := t.TempDir() // empty: local has nothing
	serverDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(serverDir, "keep.txt"), []byte("dont delete me"), 0o644))

	ws := newWorkspace(t, serverDir, []string{"keep.txt"}, DanglingRemove)
	client, done := newTestLounge(t, ws)
	handshake(t, client, ws)

	forest := buildDiffPlan(t, clientDir, serverDir)
	require.NoError(t, client.ClientCommitPlan(forest))
	require.NoError(t, client.ClientBye())
	readServerBye(t, client)
	require.NoError(t, <-done)

	_, err := os.Stat(filepath.Join(serverDir, "keep.txt"))
	require.NoError(t, err, "protected file must survive CommitSyncPlan")
}

func TestDanglingKeepSkipsDeletion(t *testing.T) {
	clientDir := t.TempDir()
	serverDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(serverDir, "orphan.txt"), []byte("leftover"), 0o644))

	ws := newWorkspace(t, serverDir, nil, DanglingKeep)
	client, done := newTestLounge(t, ws)
	handshake(t, client, ws)

	forest := buildDiffPlan(t, clientDir, serverDir)
	require.NoError(t, client.ClientCommitPlan(forest))
	require.NoError(t, client.ClientBye())
	readServerBye(t, client)
	require.NoError(t, <-done)

	_, err := os.Stat(filepath.Join(serverDir, "orphan.txt"))
	require.NoError(t, err, "dangling=keep must not delete the orphaned file")
}

func TestDanglingRemoveDeletesUnprotectedFile(t *testing.T) {
	clientDir := t.TempDir()
	serverDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(serverDir, "orphan.txt"), []byte("leftover"), 0o644))

	ws := newWorkspace(t, serverDir, nil, DanglingRemove)
	client, done := newTestLounge(t, ws)
	handshake(t, client, ws)

	forest := buildDiffPlan(t, clientDir, serverDir)
	require.NoError(t, client.ClientCommitPlan(forest))
	require.NoError(t, client.ClientBye())
	readServerBye(t, client)
	require.NoError(t, <-done)

	_, err := os.Stat(filepath.Join(serverDir, "orphan.txt"))
	require.True(t, os.IsNotExist(err), "dangling=remove must delete the orphaned file")
}

func TestAdmissionRejectsSecondConnectionToSameWorkspace(t *testing.T) {
	serverDir := t.TempDir()
	ws := newWorkspace(t, serverDir, nil, DanglingRemove)

	registry := NewRegistry()
	lookup := func(name string) (*Workspace, bool) {
		if name == ws.Name {
			return ws, true
		}
		return nil, false
	}
	log := zap.NewNop()

	clientNet1, serverNet1 := net.Pipe()
	server1 := protocol.NewConnection(transport.NewConn(context.Background(), serverNet1), log)
	l1 := New(server1, log, registry, lookup)
	done1 := make(chan error, 1)
	go func() { done1 <- l1.Run(context.Background()) }()

	client1 := protocol.NewConnection(transport.NewConn(context.Background(), clientNet1), log)
	// handshake's ClientAwaitAdmission only returns once l1 has actually
	// acquired the admission lock, so this is the race-free point from
	// which a second connection can be started.
	handshake(t, client1, ws)

	clientNet2, serverNet2 := net.Pipe()
	server2 := protocol.NewConnection(transport.NewConn(context.Background(), serverNet2), log)
	l2 := New(server2, log, registry, lookup)
	done2 := make(chan error, 1)
	go func() { done2 <- l2.Run(context.Background()) }()

	client2 := protocol.NewConnection(transport.NewConn(context.Background(), clientNet2), log)
	require.NoError(t, client2.ClientHello())
	require.NoError(t, client2.ClientAuth(ws.Name, ws.AESKey))
	require.Error(t, client2.ClientAwaitAdmission())
	require.ErrorIs(t, <-done2, ErrWorkspaceLocked)

	require.NoError(t, client1.ClientBye())
	readServerBye(t, client1)
	require.NoError(t, <-done1)
}

// buildDiffPlan walks both sides and returns the plan forest bringing
// serverDir in line with clientDir, skipping the clock-skew argument
// since these tests don't exercise mtime comparisons.
func buildDiffPlan(t *testing.T, clientDir, serverDir string) []*syncplan.Node {
	t.Helper()
	log := zap.NewNop()
	localTree, err := fstree.Walk(context.Background(), log, clientDir, nil)
	require.NoError(t, err)
	require.NoError(t, fstree.ResolvePaths(localTree, clientDir))

	remoteTree, err := fstree.Walk(context.Background(), log, serverDir, nil)
	require.NoError(t, err)
	require.NoError(t, fstree.ResolvePaths(remoteTree, serverDir))

	return syncplan.Build(localTree, remoteTree, 0)
}

func findByPath(forest []*syncplan.Node, relPath string) *syncplan.Node {
	for _, root := range forest {
		if found := findNodeByPath(root, relPath); found != nil {
			return found
		}
	}
	return nil
}

func findNodeByPath(n *syncplan.Node, relPath string) *syncplan.Node {
	if n.Path == relPath {
		return n
	}
	for _, c := range n.SortedChildren() {
		if found := findNodeByPath(c, relPath); found != nil {
			return found
		}
	}
	return nil
}
