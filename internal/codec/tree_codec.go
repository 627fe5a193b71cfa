package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// TreeNode is the minimal shape internal/fstree.Node and
// internal/syncplan.Node both present so the same recursive TLV writer
// and reader can serialise either tree without internal/codec knowing
// anything about files, permissions, or sync actions.
//
// WriteFixed/ReadFixed handle exactly the node's own fixed-width fields
// (everything except name and children, which this package handles
// uniformly). Name is written as a length-prefixed UTF-8 string.
type TreeNode interface {
	WriteFixed(w *bytes.Buffer) error
	ReadFixed(r *bytes.Reader) error
	Name() string
	SetName(string)
	Children() []TreeNode
	// AddChild attaches child under this node. Implementations that must
	// enforce unique sibling names (fstree.Node) reject a duplicate here;
	// implementations that intentionally allow same-named siblings
	// (syncplan.Node, when a path changes type) never error.
	AddChild(TreeNode) error
}

// EncodeTree serialises root (and its full subtree) into a self-describing
// byte stream: fixed fields, then a length-prefixed name, then a child
// count, then each child recursively.
func EncodeTree(root TreeNode) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeNode(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeNode(buf *bytes.Buffer, node TreeNode) error {
	if err := node.WriteFixed(buf); err != nil {
		return err
	}

	name := []byte(node.Name())
	if len(name) > 0xFFFF {
		return fmt.Errorf("codec: node name %q exceeds 65535 bytes", node.Name())
	}
	var nameLen [2]byte
	binary.BigEndian.PutUint16(nameLen[:], uint16(len(name)))
	buf.Write(nameLen[:])
	buf.Write(name)

	children := node.Children()
	var childCount [4]byte
	binary.BigEndian.PutUint32(childCount[:], uint32(len(children)))
	buf.Write(childCount[:])
	for _, c := range children {
		if err := encodeNode(buf, c); err != nil {
			return err
		}
	}
	return nil
}

// DecodeTree parses bytes written by EncodeTree back into a tree of
// nodes, calling newNode to allocate each node (the root and every
// descendant) before populating it.
func DecodeTree(data []byte, newNode func() TreeNode) (TreeNode, error) {
	r := bytes.NewReader(data)
	root, err := decodeNode(r, newNode)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("codec: %d trailing bytes after tree", r.Len())
	}
	return root, nil
}

func decodeNode(r *bytes.Reader, newNode func() TreeNode) (TreeNode, error) {
	node := newNode()
	if err := node.ReadFixed(r); err != nil {
		return nil, fmt.Errorf("codec: read node fixed fields: %w", err)
	}

	var nameLen [2]byte
	if _, err := io.ReadFull(r, nameLen[:]); err != nil {
		return nil, fmt.Errorf("codec: read name length: %w", err)
	}
	name := make([]byte, binary.BigEndian.Uint16(nameLen[:]))
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, fmt.Errorf("codec: read name: %w", err)
	}
	node.SetName(string(name))

	var childCount [4]byte
	if _, err := io.ReadFull(r, childCount[:]); err != nil {
		return nil, fmt.Errorf("codec: read child count: %w", err)
	}
	n := binary.BigEndian.Uint32(childCount[:])
	for i := uint32(0); i < n; i++ {
		child, err := decodeNode(r, newNode)
		if err != nil {
			return nil, err
		}
		if err := node.AddChild(child); err != nil {
			return nil, fmt.Errorf("codec: add child %q under %q: %w", child.Name(), node.Name(), err)
		}
	}
	return node, nil
}
