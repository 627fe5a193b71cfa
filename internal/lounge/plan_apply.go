package lounge

import (
	"fmt"
	"os"
	"path"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"go.uber.org/zap"

	"github.com/Adi8712/janus/internal/fstree"
	"github.com/Adi8712/janus/internal/syncplan"
)

// applyPlan walks a committed plan forest and performs every
// non-transfer side effect it describes: directory creation for UPLOAD
// nodes, deletion for DELETE_REMOTE nodes. File content itself arrives
// separately via UploadFile/UploadArchive; this only prepares the tree
// they land in.
func applyPlan(ws *Workspace, forest []*syncplan.Node, log *zap.Logger) error {
	for _, root := range forest {
		if err := applyNode(ws, root, log); err != nil {
			return err
		}
	}
	return nil
}

func applyNode(ws *Workspace, n *syncplan.Node, log *zap.Logger) error {
	target, err := securejoin.SecureJoin(ws.Path, n.Path)
	if clean := path.Clean(n.Path); err == nil && (clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean)) {
		err = fmt.Errorf("lounge: plan path %q leaves the workspace root", n.Path)
	}
	if err != nil {
		log.Warn("lounge: plan path escapes workspace root, dropping", zap.String("path", n.Path), zap.Error(err))
		return nil
	}

	switch n.Action {
	case syncplan.ActionUpload:
		if n.FileType == fstree.NodeDirectory {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("lounge: create directory %q: %w", n.Path, err)
			}
		}

	case syncplan.ActionDeleteRemote:
		isDir := n.FileType == fstree.NodeDirectory
		if ws.Protect.Match(n.Path, isDir) {
			log.Info("lounge: protect rule vetoes deletion", zap.String("path", n.Path))
			return nil
		}
		switch ws.Dangling {
		case DanglingKeep:
			log.Info("lounge: dangling policy keeps path", zap.String("path", n.Path))
			return nil
		case DanglingPanic:
			return fmt.Errorf("lounge: dangling policy forbids deleting %q", n.Path)
		default: // DanglingRemove
			if err := os.RemoveAll(target); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("lounge: delete %q: %w", n.Path, err)
			}
		}
		return nil // deletion is recursive; no need to visit children

	case syncplan.ActionNone:
		// Nothing to do at this node itself; its children may still
		// carry real actions (rule 8's pruned-directory case).
	}

	for _, child := range n.SortedChildren() {
		if err := applyNode(ws, child, log); err != nil {
			return err
		}
	}
	return nil
}
