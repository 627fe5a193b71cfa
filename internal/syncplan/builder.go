package syncplan

import "github.com/Adi8712/janus/internal/fstree"

// Build compares local and remote (either may be nil, meaning "absent on
// that side") and returns the forest of plan nodes that would bring
// remote in line with local, applying clockSkewMillis (remote - local,
// already bias-corrected for round-trip time) before comparing mtimes.
//
// This implements spec.md §4.4 rules 1-8:
//  1. both missing -> empty forest
//  2. remote only -> single DELETE_REMOTE, no descent
//  3. local only -> single UPLOAD, descending into children if DIRECTORY
//  4. both present, different types -> DELETE_REMOTE for remote + UPLOAD
//     for local (descending the local side if it is a DIRECTORY)
//  5. SYMLINK/OTHER nodes are dropped silently
//  6. both FILE, local.mtime+skew <= remote.mtime -> skip (remote at
//     least as new; ties count as "not newer")
//  7. both FILE, local newer -> UPLOAD
//  8. both DIRECTORY -> NONE, with children diffed recursively and the
//     node pruned unless some descendant is non-NONE
func Build(local, remote *fstree.Node, clockSkewMillis int64) []*Node {
	return diffPair(local, remote, clockSkewMillis)
}

func diffPair(local, remote *fstree.Node, skew int64) []*Node {
	switch {
	case local == nil && remote == nil:
		// Rule 1.
		return nil

	case local == nil:
		// Rule 2: only remote.
		if !participates(remote.Type) {
			return nil
		}
		return []*Node{leaf(remote, ActionDeleteRemote)}

	case remote == nil:
		// Rule 3: only local.
		if !participates(local.Type) {
			return nil
		}
		n := leaf(local, ActionUpload)
		if local.Type == fstree.NodeDirectory {
			for _, c := range local.SortedChildren() {
				for _, child := range diffPair(c, nil, skew) {
					_ = n.AddChild(child)
				}
			}
		}
		return []*Node{n}

	case local.Type != remote.Type:
		// Rule 4: both present, different types.
		var out []*Node
		if participates(remote.Type) {
			out = append(out, leaf(remote, ActionDeleteRemote))
		}
		if participates(local.Type) {
			n := leaf(local, ActionUpload)
			if local.Type == fstree.NodeDirectory {
				for _, c := range local.SortedChildren() {
					for _, child := range diffPair(c, nil, skew) {
						_ = n.AddChild(child)
					}
				}
			}
			out = append(out, n)
		}
		return out

	case !participates(local.Type):
		// Rule 5: both present, same non-participating type (e.g. both
		// SYMLINK). Dropped silently.
		return nil

	case local.Type == fstree.NodeFile:
		// Rules 6/7.
		if local.MTimeMillis+skew <= remote.MTimeMillis {
			return nil
		}
		return []*Node{leaf(local, ActionUpload)}

	default: // both DIRECTORY
		// Rule 8.
		n := leaf(local, ActionNone)
		n.Path = local.Path

		names := unionNames(local, remote)
		anyNonNone := false
		for _, name := range names {
			lc, _ := local.Child(name)
			rc, _ := remote.Child(name)
			for _, child := range diffPair(lc, rc, skew) {
				_ = n.AddChild(child)
				if child.Action != ActionNone || hasNonNoneDescendant(child) {
					anyNonNone = true
				}
			}
		}
		if !anyNonNone {
			return nil
		}
		return []*Node{n}
	}
}

func participates(t fstree.NodeType) bool {
	return t == fstree.NodeFile || t == fstree.NodeDirectory
}

func leaf(src *fstree.Node, action Action) *Node {
	n := newNode(src.Name(), src.Type, action, src.Path)
	n.Size = src.Size
	n.MTimeMillis = src.MTimeMillis
	n.PermissionBits = src.PermissionBits
	return n
}

func hasNonNoneDescendant(n *Node) bool {
	for _, c := range n.children {
		if c.Action != ActionNone || hasNonNoneDescendant(c) {
			return true
		}
	}
	return false
}

func unionNames(local, remote *fstree.Node) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, c := range local.SortedChildren() {
		if _, ok := seen[c.Name()]; !ok {
			seen[c.Name()] = struct{}{}
			names = append(names, c.Name())
		}
	}
	for _, c := range remote.SortedChildren() {
		if _, ok := seen[c.Name()]; !ok {
			seen[c.Name()] = struct{}{}
			names = append(names, c.Name())
		}
	}
	return names
}
