// Package client implements the client-side driver: one connection's
// worth of hello/auth/admission, tree diffing, and the upload/drain
// loop described in spec.md §4.8.
package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Adi8712/janus/internal/archive"
	"github.com/Adi8712/janus/internal/fstree"
	"github.com/Adi8712/janus/internal/protocol"
	"github.com/Adi8712/janus/internal/syncplan"
)

// Report summarises one completed sync, for the CLI to print.
type Report struct {
	FilesUploaded    int
	ArchivesUploaded int
	BytesUploaded    int64
	Elapsed          time.Duration
}

// Driver runs one sync over an already-dialed, not-yet-handshaken
// connection.
type Driver struct {
	conn      *protocol.Connection
	log       *zap.Logger
	localRoot string
	ignore    *fstree.Set

	nonceCounter uint64
	seqCounter   uint64
}

// New returns a Driver bound to conn, walking localRoot and applying
// ignore rules to decide what participates in the sync.
func New(conn *protocol.Connection, log *zap.Logger, localRoot string, ignore *fstree.Set) *Driver {
	return &Driver{conn: conn, log: log, localRoot: localRoot, ignore: ignore}
}

// Sync runs the full client-side protocol: Hello, Auth, admission, the
// tree/skew fetch (alongside the local walk), plan commit, upload,
// drain, and Bye.
func (d *Driver) Sync(ctx context.Context, workspaceName string, key []byte) (*Report, error) {
	start := time.Now()

	if err := d.conn.ClientHello(); err != nil {
		return nil, fmt.Errorf("client: hello: %w", err)
	}
	if err := d.conn.ClientAuth(workspaceName, key); err != nil {
		return nil, fmt.Errorf("client: auth: %w", err)
	}
	if err := d.conn.ClientAwaitAdmission(); err != nil {
		return nil, fmt.Errorf("client: admission: %w", err)
	}
	d.log.Info("client: admitted to workspace", zap.String("workspace", workspaceName))

	var skewMillis int64
	var remoteTree, localTree *fstree.Node
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The clock probe and the tree fetch share the connection, which
		// carries one request/response exchange at a time, so they run one
		// after the other; only the local walk runs alongside them.
		skew, err := d.conn.ClientProbeClock()
		if err != nil {
			return err
		}
		skewMillis = skew
		tree, err := d.conn.ClientFetchTree()
		remoteTree = tree
		return err
	})
	g.Go(func() error {
		tree, err := fstree.Walk(gctx, d.log, d.localRoot, d.ignore)
		if err != nil {
			return err
		}
		if err := fstree.ResolvePaths(tree, d.localRoot); err != nil {
			return err
		}
		localTree = tree
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("client: tree/skew fetch: %w", err)
	}

	// remoteTree's names are only validated for path-escape safety here;
	// localRoot stands in for the workspace root the real check cares
	// about, since the client has no filesystem to resolve the remote
	// tree against.
	if err := fstree.ResolvePaths(remoteTree, d.localRoot); err != nil {
		return nil, fmt.Errorf("client: remote tree failed path safety check: %w", err)
	}

	plan := syncplan.Build(localTree, remoteTree, skewMillis)
	if err := d.conn.ClientCommitPlan(plan); err != nil {
		return nil, fmt.Errorf("client: commit plan: %w", err)
	}
	d.log.Info("client: plan committed")

	report := &Report{}
	pendingArchives, err := d.uploadPlan(plan, report)
	if err != nil {
		return nil, fmt.Errorf("client: upload: %w", err)
	}

	for len(pendingArchives) > 0 {
		acks, err := d.conn.ClientConfirmArchives(false)
		if err != nil {
			return nil, fmt.Errorf("client: confirm archives: %w", err)
		}
		for _, a := range acks {
			delete(pendingArchives, a.ID)
			if a.Code != 0 {
				d.log.Warn("client: archive reported failure", zap.Uint64("seq_id", a.ID), zap.Int32("code", a.Code))
			}
		}
	}

	fileAcks, err := d.conn.ClientConfirmFiles()
	if err != nil {
		return nil, fmt.Errorf("client: confirm files: %w", err)
	}
	for _, a := range fileAcks {
		if a.Code != 0 {
			d.log.Warn("client: file reported failure", zap.Uint64("nonce", a.ID), zap.Int32("code", a.Code))
		}
	}

	if err := d.conn.ClientBye(); err != nil {
		return nil, fmt.Errorf("client: bye: %w", err)
	}

	report.Elapsed = time.Since(start)
	d.log.Info("client: sync complete",
		zap.Int("files", report.FilesUploaded),
		zap.Int("archives", report.ArchivesUploaded),
		zap.Int64("bytes", report.BytesUploaded),
		zap.Duration("elapsed", report.Elapsed))
	return report, nil
}

// frozenArchive is one holder's packed bytes, ready to send, paired
// with the seq_id it was assigned when the freeze was kicked off.
type frozenArchive struct {
	seqID uint64
	blob  []byte
	err   error
}

// uploadPlan walks forest breadth-first on the calling goroutine, the
// connection's only writer: ClientUploadFile and ClientUploadArchive
// both run here, never from a background goroutine, since the wire is
// single-writer per spec.md §5. Only Holder.Freeze (packing bytes off
// disk, no I/O on the connection) runs concurrently in the background;
// its result is picked up and sent by this same goroutine, either
// opportunistically between plan nodes or in the final drain.
func (d *Driver) uploadPlan(forest []*syncplan.Node, report *Report) (map[uint64]struct{}, error) {
	pendingArchives := make(map[uint64]struct{})
	results := make(chan frozenArchive, 8)
	inFlight := 0

	drainReady := func() error {
		for {
			select {
			case r := <-results:
				inFlight--
				if r.err != nil {
					return r.err
				}
				if err := d.conn.ClientUploadArchive(r.seqID, r.blob); err != nil {
					return err
				}
				report.ArchivesUploaded++
				report.BytesUploaded += int64(len(r.blob))
				pendingArchives[r.seqID] = struct{}{}
			default:
				return nil
			}
		}
	}

	holder := archive.NewHolder()
	flush := func() {
		if holder.Empty() {
			return
		}
		seqID := atomic.AddUint64(&d.seqCounter, 1)
		full := holder
		holder = archive.NewHolder()
		inFlight++
		go func() {
			blob, err := full.Freeze()
			results <- frozenArchive{seqID: seqID, blob: blob, err: err}
		}()
	}

	var queue []*syncplan.Node
	queue = append(queue, forest...)
	for len(queue) > 0 {
		if err := drainReady(); err != nil {
			return nil, err
		}

		n := queue[0]
		queue = queue[1:]
		queue = append(queue, n.SortedChildren()...)

		if n.Action != syncplan.ActionUpload || n.FileType != fstree.NodeFile {
			continue
		}

		absPath := filepath.Join(d.localRoot, n.Path)
		if n.Size <= archive.SmallFileThreshold {
			holder.Add(n.Path, absPath, n.PermissionBits, n.Size)
			if holder.NearlyFull() {
				flush()
			}
			continue
		}

		f, err := os.Open(absPath)
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", absPath, err)
		}
		nonce := atomic.AddUint64(&d.nonceCounter, 1)
		err = d.conn.ClientUploadFile(nonce, n.PermissionBits, n.Path, uint64(n.Size), f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("upload %q: %w", n.Path, err)
		}
		report.FilesUploaded++
		report.BytesUploaded += n.Size
	}
	flush()

	for inFlight > 0 {
		r := <-results
		inFlight--
		if r.err != nil {
			return nil, r.err
		}
		if err := d.conn.ClientUploadArchive(r.seqID, r.blob); err != nil {
			return nil, err
		}
		report.ArchivesUploaded++
		report.BytesUploaded += int64(len(r.blob))
		pendingArchives[r.seqID] = struct{}{}
	}

	return pendingArchives, nil
}
