// Package lounge implements the server side of one bound connection:
// hello, auth, workspace admission, and the READY-state dispatch loop
// that routes each incoming message to its handler.
package lounge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	securejoin "github.com/cyphar/filepath-securejoin"
	"go.uber.org/zap"

	"github.com/Adi8712/janus/internal/archive"
	"github.com/Adi8712/janus/internal/codec"
	"github.com/Adi8712/janus/internal/fstree"
	"github.com/Adi8712/janus/internal/mmapfile"
	"github.com/Adi8712/janus/internal/protocol"
)

// ErrWorkspaceLocked is returned by Run when the workspace the
// connection authenticated into is already bound to another lounge.
// The caller (the accept loop) maps this to no particular CLI exit
// code of its own; exit code 2 is a client-side concept (spec.md §6),
// reached when the client's own connection attempt is refused this way.
var ErrWorkspaceLocked = errors.New("lounge: workspace locked by another connection")

// Lounge drives one accepted connection through Hello, Auth, workspace
// admission, and the READY-state dispatch loop until Bye or a fatal
// error.
type Lounge struct {
	conn     *protocol.Connection
	log      *zap.Logger
	registry *Registry
	lookup   Lookup

	ws        *Workspace
	extractor *archive.Pool

	fileAckMu sync.Mutex
	fileAcks  []protocol.Ack

	archiveAckMu sync.Mutex
	archiveAcks  []protocol.Ack
}

// New wraps an already-accepted, not-yet-handshaken connection.
func New(conn *protocol.Connection, log *zap.Logger, registry *Registry, lookup Lookup) *Lounge {
	return &Lounge{
		conn:     conn,
		log:      log,
		registry: registry,
		lookup:   lookup,
	}
}

// Run executes the full session. It always closes the underlying
// connection before returning, releasing the workspace lock (if taken)
// on every exit path. A handler panic is not recovered; the deferred
// release and close still run while it unwinds.
func (l *Lounge) Run(ctx context.Context) error {
	defer l.conn.Close()

	if err := l.conn.ServerHello(); err != nil {
		l.log.Warn("lounge: hello failed", zap.Error(err))
		return err
	}

	if err := l.conn.ServerAuth(l.resolveKey); err != nil {
		l.log.Warn("lounge: auth failed", zap.Error(err))
		return err
	}

	if l.ws == nil {
		// Auth succeeded only if resolveKey returned ok=true, which
		// always sets l.ws first; this is defensive, not reachable.
		return fmt.Errorf("lounge: authenticated with no bound workspace")
	}

	release, ok := l.registry.TryAdmit("SERVER", l.ws.Name)
	if !ok {
		l.conn.ServerReplyAdmissionRefused("workspace locked by another connection")
		return ErrWorkspaceLocked
	}
	defer release()

	if err := l.conn.ServerReplyAdmitted(); err != nil {
		return err
	}

	l.extractor = archive.NewPool(l.ws.Path, l.log)

	return l.dispatch(ctx)
}

func (l *Lounge) resolveKey(name string) ([]byte, bool) {
	ws, ok := l.lookup(name)
	if !ok {
		return nil, false
	}
	l.ws = ws
	return ws.AESKey, true
}

func (l *Lounge) dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		m, err := l.conn.Recv()
		if err != nil {
			return err
		}

		err = l.handle(m)
		// handle has finished reading m's fields by the time it returns in
		// every case, including UploadFile (whose DataBlocks arrive on
		// nested expectType calls, not through m itself), so m is always
		// safe to release here. handleUploadArchive's own DataBlocks
		// stream through recvDataBlocksToChannel, which never releases
		// them (the extractor still reads their payloads); m in that
		// branch is the UploadArchive header, which isn't pooled to begin
		// with.
		codec.Release(m)
		if err != nil {
			if errors.Is(err, errBye) {
				return nil
			}
			l.log.Warn("lounge: handler failed, closing connection", zap.String("workspace", l.ws.Name), zap.Error(err))
			return err
		}
	}
}

var errBye = errors.New("lounge: bye received")

func (l *Lounge) handle(m codec.Message) error {
	switch msg := m.(type) {
	case *codec.FetchFileTree:
		return l.handleFetchTree()
	case *codec.GetSystemTimeMillis:
		return l.conn.ServerReplyClock()
	case *codec.CommitSyncPlan:
		return l.handleCommitPlan(msg)
	case *codec.UploadFile:
		return l.handleUploadFile(msg)
	case *codec.UploadArchive:
		return l.handleUploadArchive(msg)
	case *codec.ConfirmFiles:
		return l.handleConfirmFiles()
	case *codec.ConfirmArchives:
		return l.handleConfirmArchives(msg)
	case *codec.Bye:
		if err := l.conn.ServerReplyBye(); err != nil {
			return err
		}
		return errBye
	default:
		return protocol.Fatalf(protocol.ErrProtocolMisuse, "unexpected message %s in READY state", m.Type())
	}
}

func (l *Lounge) handleFetchTree() error {
	tree, err := fstree.Walk(context.Background(), l.log, l.ws.Path, l.ws.Ignore)
	if err != nil {
		return fmt.Errorf("lounge: walk workspace: %w", err)
	}
	return l.conn.ServerReplyTree(tree)
}

func (l *Lounge) handleCommitPlan(msg *codec.CommitSyncPlan) error {
	forest, err := protocol.ServerDecodePlan(msg)
	if err != nil {
		return err
	}
	if err := applyPlan(l.ws, forest, l.log); err != nil {
		l.log.Warn("lounge: plan application failed", zap.Error(err))
		return l.conn.ServerAckPlanFailed(err.Error())
	}
	return l.conn.ServerAckPlan()
}

func (l *Lounge) handleUploadFile(msg *codec.UploadFile) error {
	target, createErr := securejoin.SecureJoin(l.ws.Path, msg.Path)
	var mf *mmapfile.File
	var tmpPath string
	if createErr == nil {
		createErr = os.MkdirAll(filepath.Dir(target), 0o755)
	}
	if createErr == nil {
		tmpPath = target + ".janus-sync-tmp"
		mf, createErr = mmapfile.Create(tmpPath, int64(msg.Size), os.FileMode(msg.Perm).Perm())
	}

	var streamErr error
	if createErr != nil {
		streamErr = l.conn.ServerHandleUploadFile(msg, discardWriter{})
	} else {
		streamErr = l.conn.ServerHandleUploadFile(msg, mf)
	}
	if streamErr != nil && !errors.Is(streamErr, protocol.ErrFileWriteFailed) {
		if mf != nil {
			mf.Close()
			os.Remove(tmpPath)
		}
		return streamErr
	}

	ack := protocol.Ack{ID: msg.Nonce, Code: 0}
	switch {
	case createErr != nil:
		l.log.Warn("lounge: upload target unavailable", zap.String("path", msg.Path), zap.Error(createErr))
		ack.Code = 1
	case streamErr != nil:
		l.log.Warn("lounge: upload write failed", zap.String("path", msg.Path), zap.Error(streamErr))
		ack.Code = 1
		mf.Close()
		os.Remove(tmpPath)
	default:
		if err := finalizeUpload(mf, tmpPath, target, msg.Perm); err != nil {
			l.log.Warn("lounge: upload finalize failed", zap.String("path", msg.Path), zap.Error(err))
			ack.Code = 1
		}
	}

	l.pushFileAck(ack)
	return nil
}

func finalizeUpload(mf *mmapfile.File, tmpPath, target string, perm uint32) error {
	if err := mf.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := renameOver(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if perm != 0 {
		_ = os.Chmod(target, os.FileMode(perm).Perm())
	}
	return nil
}

// renameOver mirrors archive.Extract's atomic-rename-with-fallback, kept
// as a second small copy here rather than exported from internal/archive
// since a single-file upload and an archive entry are otherwise
// unrelated write paths.
func renameOver(oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err == nil {
		return nil
	}
	if err := os.Remove(newPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(oldPath, newPath)
}

func (l *Lounge) handleUploadArchive(msg *codec.UploadArchive) error {
	blocks := l.extractor.Extract(msg.SeqID, int64(msg.ArchiveSize))
	if err := l.conn.ServerHandleUploadArchive(msg, blocks); err != nil {
		return err
	}
	l.drainExtracted(false)
	return nil
}

func (l *Lounge) drainExtracted(blockUntilSome bool) {
	results := l.extractor.CheckExtracted(blockUntilSome)
	if len(results) == 0 {
		return
	}
	l.archiveAckMu.Lock()
	for _, r := range results {
		l.archiveAcks = append(l.archiveAcks, protocol.Ack{ID: r.SeqID, Code: int32(r.Status)})
	}
	l.archiveAckMu.Unlock()
}

func (l *Lounge) handleConfirmFiles() error {
	l.fileAckMu.Lock()
	pending := l.fileAcks
	l.fileAcks = nil
	l.fileAckMu.Unlock()
	return l.conn.ServerReplyConfirmFiles(pending)
}

func (l *Lounge) handleConfirmArchives(msg *codec.ConfirmArchives) error {
	l.drainExtracted(!msg.NoBlock)

	l.archiveAckMu.Lock()
	pending := l.archiveAcks
	l.archiveAcks = nil
	l.archiveAckMu.Unlock()

	return l.conn.ServerReplyConfirmArchives(pending)
}

func (l *Lounge) pushFileAck(a protocol.Ack) {
	l.fileAckMu.Lock()
	l.fileAcks = append(l.fileAcks, a)
	l.fileAckMu.Unlock()
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
