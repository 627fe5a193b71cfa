// Package fstree describes a directory tree (type, size, mtime,
// permissions, children) and builds one by walking the filesystem, with
// gitignore-like ignore/protect rule support.
package fstree

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/Adi8712/janus/internal/codec"
)

// NodeType distinguishes the filesystem entry kinds Janus knows about.
// Only File and Directory participate in synchronisation; Symlink and
// Other are retained on the wire for completeness but dropped by the
// sync-plan builder.
type NodeType byte

const (
	NodeFile      NodeType = 1
	NodeDirectory NodeType = 2
	NodeSymlink   NodeType = 3
	NodeOther     NodeType = 4
)

func (t NodeType) String() string {
	switch t {
	case NodeFile:
		return "FILE"
	case NodeDirectory:
		return "DIRECTORY"
	case NodeSymlink:
		return "SYMLINK"
	case NodeOther:
		return "OTHER"
	default:
		return fmt.Sprintf("NodeType(%d)", t)
	}
}

// Node is one entry of a synchronised directory tree. Path is relative to
// the workspace root and is only populated once ResolvePaths has run
// (walking sets it as it goes; deserialising requires an explicit call).
// Children are kept parent-less on purpose (spec §9): there is no
// back-pointer to avoid a cyclic structure that the wire format would
// have to special-case, and callers needing ancestry pass it down
// explicitly while recursing.
type Node struct {
	Type           NodeType
	PermissionBits uint32
	Size           int64
	MTimeMillis    int64
	Path           string

	name     string
	children map[string]*Node
}

// New creates a node ready to have children attached.
func New(name string, typ NodeType) *Node {
	return &Node{Type: typ, name: name, children: make(map[string]*Node)}
}

// Name returns the node's own (non-path) name.
func (n *Node) Name() string { return n.name }

// SetName implements codec.TreeNode.
func (n *Node) SetName(name string) { n.name = name }

// Child looks up an immediate child by name.
func (n *Node) Child(name string) (*Node, bool) {
	c, ok := n.children[name]
	return c, ok
}

// SortedChildren returns this node's children ordered by name, useful for
// deterministic iteration (the wire format itself does not require
// ordering, but tests and the sync-plan builder benefit from it).
func (n *Node) SortedChildren() []*Node {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Node, len(names))
	for i, name := range names {
		out[i] = n.children[name]
	}
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

// AddChild attaches child under n, keyed by its own name. A duplicate
// name is rejected outright rather than silently overwriting the earlier
// child, enforcing the "unique child names among siblings" invariant.
func (n *Node) AddChild(child codec.TreeNode) error {
	c := child.(*Node)
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
	if _, exists := n.children[c.name]; exists {
		return fmt.Errorf("fstree: duplicate child name %q", c.name)
	}
	n.children[c.name] = c
	return nil
}

// WriteFixed implements codec.TreeNode.
func (n *Node) WriteFixed(w *bytes.Buffer) error {
	var fixed [1 + 4 + 8 + 8]byte
	fixed[0] = byte(n.Type)
	binary.BigEndian.PutUint32(fixed[1:5], n.PermissionBits)
	binary.BigEndian.PutUint64(fixed[5:13], uint64(n.Size))
	binary.BigEndian.PutUint64(fixed[13:21], uint64(n.MTimeMillis))
	w.Write(fixed[:])
	return nil
}

// ReadFixed implements codec.TreeNode.
func (n *Node) ReadFixed(r *bytes.Reader) error {
	var fixed [1 + 4 + 8 + 8]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return err
	}
	n.Type = NodeType(fixed[0])
	n.PermissionBits = binary.BigEndian.Uint32(fixed[1:5])
	n.Size = int64(binary.BigEndian.Uint64(fixed[5:13]))
	n.MTimeMillis = int64(binary.BigEndian.Uint64(fixed[13:21]))
	n.children = make(map[string]*Node)
	return nil
}

// Encode serialises the tree rooted at n.
func Encode(n *Node) ([]byte, error) {
	return codec.EncodeTree(n)
}

// Decode parses bytes produced by Encode back into a *Node tree. The
// result has not yet had ResolvePaths called on it.
func Decode(data []byte) (*Node, error) {
	root, err := codec.DecodeTree(data, func() codec.TreeNode { return New("", 0) })
	if err != nil {
		return nil, err
	}
	return root.(*Node), nil
}

// ResolvePaths walks n (which must be the tree's root) and sets every
// node's Path to its root-relative location, verifying along the way
// that the resolved absolute path stays inside workspaceRoot. A node
// whose path would escape (via an adversarial "../" name smuggled
// through deserialisation) causes the whole tree to be rejected, per the
// path-safety invariant.
func ResolvePaths(n *Node, workspaceRoot string) error {
	return resolvePaths(n, workspaceRoot, "")
}

func resolvePaths(n *Node, workspaceRoot, relParent string) error {
	rel := n.name
	if relParent != "" {
		rel = path.Join(relParent, n.name)
	}

	if clean := path.Clean(rel); clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return fmt.Errorf("fstree: path %q escapes workspace root", rel)
	}
	if _, err := securejoin.SecureJoin(workspaceRoot, rel); err != nil {
		return fmt.Errorf("fstree: path %q escapes workspace root: %w", rel, err)
	}
	n.Path = rel

	for _, c := range n.SortedChildren() {
		if err := resolvePaths(c, workspaceRoot, rel); err != nil {
			return err
		}
	}
	return nil
}
