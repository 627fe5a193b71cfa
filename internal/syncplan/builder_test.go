package syncplan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adi8712/janus/internal/fstree"
)

func file(name string, mtime int64) *fstree.Node {
	n := fstree.New(name, fstree.NodeFile)
	n.Size = 10
	n.MTimeMillis = mtime
	n.PermissionBits = 0o644
	return n
}

func dir(name string, children ...*fstree.Node) *fstree.Node {
	n := fstree.New(name, fstree.NodeDirectory)
	for _, c := range children {
		if err := n.AddChild(c); err != nil {
			panic(err)
		}
	}
	return n
}

func TestBuildBothMissing(t *testing.T) {
	got := Build(nil, nil, 0)
	require.Empty(t, got)
}

func TestBuildOnlyRemote(t *testing.T) {
	remote := file("stale.txt", 1000)
	got := Build(nil, remote, 0)
	require.Len(t, got, 1)
	require.Equal(t, ActionDeleteRemote, got[0].Action)
	require.Empty(t, got[0].children)
}

func TestBuildOnlyLocalFile(t *testing.T) {
	local := file("new.txt", 1000)
	got := Build(local, nil, 0)
	require.Len(t, got, 1)
	require.Equal(t, ActionUpload, got[0].Action)
}

func TestBuildOnlyLocalDirectoryRecurses(t *testing.T) {
	local := dir("sub", file("a.txt", 1000))
	got := Build(local, nil, 0)
	require.Len(t, got, 1)
	require.Equal(t, ActionUpload, got[0].Action)
	children := got[0].SortedChildren()
	require.Len(t, children, 1)
	require.Equal(t, ActionUpload, children[0].Action)
}

func TestBuildTypeChangeEmitsBoth(t *testing.T) {
	local := dir("x")
	remote := file("x", 1000)
	got := Build(local, remote, 0)
	require.Len(t, got, 2)

	var sawDelete, sawUpload bool
	for _, n := range got {
		switch n.Action {
		case ActionDeleteRemote:
			sawDelete = true
		case ActionUpload:
			sawUpload = true
		}
	}
	require.True(t, sawDelete)
	require.True(t, sawUpload)
}

func TestBuildSymlinkDroppedSilently(t *testing.T) {
	local := fstree.New("link", fstree.NodeSymlink)
	remote := fstree.New("link", fstree.NodeSymlink)
	got := Build(local, remote, 0)
	require.Empty(t, got)

	got = Build(local, nil, 0)
	require.Empty(t, got)
}

func TestBuildMtimeSkewRemoteAtLeastAsNew(t *testing.T) {
	local := file("a.txt", 1000)
	remote := file("a.txt", 1000) // equal mtimes: tie-break, not newer
	got := Build(local, remote, 0)
	require.Empty(t, got)
}

func TestBuildMtimeSkewLocalNewerUploads(t *testing.T) {
	local := file("a.txt", 2000)
	remote := file("a.txt", 1000)
	got := Build(local, remote, 0)
	require.Len(t, got, 1)
	require.Equal(t, ActionUpload, got[0].Action)
}

func TestBuildMtimeSkewAppliedBeforeComparison(t *testing.T) {
	// local older by 5s, but remote is "ahead" by 10s of clock skew, so
	// local+skew ends up newer than remote -> upload per the scenario in
	// spec.md §8 (mtime skew end-to-end case).
	local := file("a.txt", 10_000)
	remote := file("a.txt", 15_000)
	skew := int64(10_000) // remote ahead of local

	got := Build(local, remote, skew)
	require.Len(t, got, 1)
	require.Equal(t, ActionUpload, got[0].Action)
}

func TestBuildDirectoryPrunedWhenNoChanges(t *testing.T) {
	local := dir("sub", file("a.txt", 1000))
	remote := dir("sub", file("a.txt", 1000))
	got := Build(local, remote, 0)
	require.Empty(t, got)
}

func TestBuildDirectoryKeptWhenDescendantChanged(t *testing.T) {
	local := dir("sub", file("a.txt", 2000))
	remote := dir("sub", file("a.txt", 1000))
	got := Build(local, remote, 0)
	require.Len(t, got, 1)
	require.Equal(t, ActionNone, got[0].Action)

	children := got[0].SortedChildren()
	require.Len(t, children, 1)
	require.Equal(t, ActionUpload, children[0].Action)
}

func TestBuildUnionOfChildren(t *testing.T) {
	local := dir("sub", file("only-local.txt", 1000))
	remote := dir("sub", file("only-remote.txt", 1000))
	got := Build(local, remote, 0)
	require.Len(t, got, 1)

	children := got[0].SortedChildren()
	require.Len(t, children, 2)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	local := dir("sub", file("a.txt", 2000))
	remote := dir("sub", file("a.txt", 1000))
	forest := Build(local, remote, 0)
	require.Len(t, forest, 1)

	data, err := Encode(forest[0])
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, forest[0].Action, decoded.Action)
	require.Len(t, decoded.SortedChildren(), 1)
}
