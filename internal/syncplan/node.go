// Package syncplan compares two fstree trees and builds the forest of
// actions (UPLOAD / DELETE_REMOTE / NONE) that brings the remote side in
// line with the local one.
package syncplan

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/Adi8712/janus/internal/codec"
	"github.com/Adi8712/janus/internal/fstree"
)

// Action is what should happen to a plan node on the server.
type Action byte

const (
	ActionNone         Action = 0
	ActionUpload       Action = 1
	ActionDeleteRemote Action = 2
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "NONE"
	case ActionUpload:
		return "UPLOAD"
	case ActionDeleteRemote:
		return "DELETE_REMOTE"
	default:
		return fmt.Sprintf("Action(%d)", a)
	}
}

// Node is one entry of the sync-plan forest. UPLOAD on a DIRECTORY means
// "ensure this directory exists"; UPLOAD on a FILE means "transfer bytes
// and metadata"; DELETE_REMOTE on a DIRECTORY implies recursive deletion.
type Node struct {
	FileType fstree.NodeType
	Action   Action
	Path     string

	// Size, MTimeMillis, and PermissionBits are carried along for FILE
	// UPLOAD nodes so the transfer phase does not need to re-stat the
	// local tree.
	Size           int64
	MTimeMillis    int64
	PermissionBits uint32

	name     string
	children []*Node
}

func newNode(name string, typ fstree.NodeType, action Action, path string) *Node {
	return &Node{FileType: typ, Action: action, Path: path, name: name}
}

// Name implements codec.TreeNode.
func (n *Node) Name() string { return n.name }

// SetName implements codec.TreeNode.
func (n *Node) SetName(name string) { n.name = name }

// SortedChildren returns children ordered by name for deterministic
// walks. Unlike fstree.Node, two children may legitimately share a name
// here -- rule 4 of the plan-building algorithm emits both a
// DELETE_REMOTE and an UPLOAD node for a path whose type changed -- so
// this is a stable sort, not a map lookup.
func (n *Node) SortedChildren() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	sort.SliceStable(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Children implements codec.TreeNode.
func (n *Node) Children() []codec.TreeNode {
	sorted := n.SortedChildren()
	out := make([]codec.TreeNode, len(sorted))
	for i, c := range sorted {
		out[i] = c
	}
	return out
}

// AddChild implements codec.TreeNode. Same-named siblings are allowed by
// design (see SortedChildren), so this never rejects a child.
func (n *Node) AddChild(child codec.TreeNode) error {
	n.children = append(n.children, child.(*Node))
	return nil
}

// WriteFixed implements codec.TreeNode.
func (n *Node) WriteFixed(w *bytes.Buffer) error {
	var fixed [1 + 1 + 2 + 8 + 8 + 4]byte
	fixed[0] = byte(n.FileType)
	fixed[1] = byte(n.Action)
	pathBytes := []byte(n.Path)
	if len(pathBytes) > 0xFFFF {
		return fmt.Errorf("syncplan: path %q exceeds 65535 bytes", n.Path)
	}
	binary.BigEndian.PutUint16(fixed[2:4], uint16(len(pathBytes)))
	binary.BigEndian.PutUint64(fixed[4:12], uint64(n.Size))
	binary.BigEndian.PutUint64(fixed[12:20], uint64(n.MTimeMillis))
	binary.BigEndian.PutUint32(fixed[20:24], n.PermissionBits)
	w.Write(fixed[:])
	w.Write(pathBytes)
	return nil
}

// ReadFixed implements codec.TreeNode.
func (n *Node) ReadFixed(r *bytes.Reader) error {
	var fixed [1 + 1 + 2 + 8 + 8 + 4]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return err
	}
	n.FileType = fstree.NodeType(fixed[0])
	n.Action = Action(fixed[1])
	pathLen := binary.BigEndian.Uint16(fixed[2:4])
	n.Size = int64(binary.BigEndian.Uint64(fixed[4:12]))
	n.MTimeMillis = int64(binary.BigEndian.Uint64(fixed[12:20]))
	n.PermissionBits = binary.BigEndian.Uint32(fixed[20:24])

	pathBytes := make([]byte, pathLen)
	if _, err := io.ReadFull(r, pathBytes); err != nil {
		return err
	}
	n.Path = string(pathBytes)
	n.children = nil
	return nil
}

// Encode serialises the subtree rooted at n (one forest root per call, to
// match CommitSyncPlan's repeated length-prefixed subtree layout).
func Encode(n *Node) ([]byte, error) {
	return codec.EncodeTree(n)
}

// Decode parses bytes produced by Encode back into a *Node subtree.
func Decode(data []byte) (*Node, error) {
	root, err := codec.DecodeTree(data, func() codec.TreeNode { return newNode("", 0, ActionNone, "") })
	if err != nil {
		return nil, err
	}
	return root.(*Node), nil
}
