package fstree

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Adi8712/janus/internal/workerpool"
)

// parallelThreshold is spec.md §4.3's "few children" cutoff: directories
// with fewer entries than this are walked sequentially in the calling
// goroutine; wider ones spawn one child task per entry.
const parallelThreshold = 16

// Walk recursively describes root as a tree, relative to itself, pruning
// any path that rules matches. A node whose attributes cannot be read is
// dropped with a warning; the parent directory still succeeds.
func Walk(ctx context.Context, log *zap.Logger, root string, rules *Set) (*Node, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return nil, err
	}
	node := New("", classify(info))
	node.PermissionBits = uint32(info.Mode().Perm())
	if !info.IsDir() {
		node.Size = info.Size()
		node.MTimeMillis = info.ModTime().UnixMilli()
		return node, nil
	}

	if err := walkDir(ctx, log, root, "", node, rules); err != nil {
		return nil, err
	}
	return node, nil
}

func classify(info os.FileInfo) NodeType {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return NodeSymlink
	case info.IsDir():
		return NodeDirectory
	case info.Mode().IsRegular():
		return NodeFile
	default:
		return NodeOther
	}
}

// walkDir populates dirNode (already created, already typed DIRECTORY)
// with entries found under absPath, whose root-relative path is relPath.
func walkDir(ctx context.Context, log *zap.Logger, absPath, relPath string, dirNode *Node, rules *Set) error {
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return err
	}

	type built struct {
		node *Node
	}

	// statEntry does the CPU-bound classify/rule-check work for one entry,
	// bounded by the CPU pool, and returns the un-recursed child plus
	// whether it is a directory still needing its own walkDir call. The
	// pool slot is released before any recursive walkDir call: walkDir
	// acquires the same pool for its own fan-out, and holding a slot
	// across the recursive call would deadlock once nesting depth exceeds
	// the pool size.
	statEntry := func(entry os.DirEntry) (child *Node, childAbs, childRel string, isDir bool) {
		childRel = entry.Name()
		if relPath != "" {
			childRel = path.Join(relPath, entry.Name())
		}

		info, err := entry.Info()
		if err != nil {
			log.Warn("fstree: dropping node, stat failed", zap.String("path", childRel), zap.Error(err))
			return nil, "", "", false
		}

		typ := classify(info)
		isDir = typ == NodeDirectory
		if rules.Match(childRel, isDir) {
			return nil, "", "", false
		}

		child = New(entry.Name(), typ)
		child.PermissionBits = uint32(info.Mode().Perm())
		child.Size = info.Size()
		child.MTimeMillis = info.ModTime().UnixMilli()
		if isDir {
			childAbs = filepath.Join(absPath, entry.Name())
		}
		return child, childAbs, childRel, isDir
	}

	build := func(ctx context.Context, entry os.DirEntry) *Node {
		if err := workerpool.AcquireCPU(ctx); err != nil {
			return nil
		}
		child, childAbs, childRel, isDir := statEntry(entry)
		workerpool.ReleaseCPU()
		if child == nil {
			return nil
		}
		if isDir {
			if err := walkDir(ctx, log, childAbs, childRel, child, rules); err != nil {
				log.Warn("fstree: dropping subtree, walk failed", zap.String("path", childRel), zap.Error(err))
				return nil
			}
		}
		return child
	}

	if len(entries) < parallelThreshold {
		for _, entry := range entries {
			if child := build(ctx, entry); child != nil {
				// os.ReadDir guarantees unique names, so this only fails
				// if the filesystem changed under us mid-walk.
				if err := dirNode.AddChild(child); err != nil {
					log.Warn("fstree: dropping node, add failed", zap.Error(err))
				}
			}
		}
		return nil
	}

	results := make([]*built, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			if child := build(gctx, entry); child != nil {
				results[i] = &built{node: child}
			}
			return nil
		})
	}
	_ = g.Wait() // build() never returns an error beyond ctx cancellation; dropped nodes are logged instead

	for _, r := range results {
		if r != nil {
			if err := dirNode.AddChild(r.node); err != nil {
				log.Warn("fstree: dropping node, add failed", zap.Error(err))
			}
		}
	}
	return nil
}
