package lounge

import "github.com/Adi8712/janus/internal/fstree"

// DanglingPolicy decides what happens to a path the plan wants to
// delete from the remote side.
type DanglingPolicy int

const (
	// DanglingRemove deletes the path, the default.
	DanglingRemove DanglingPolicy = iota
	// DanglingKeep leaves the path untouched.
	DanglingKeep
	// DanglingPanic aborts the whole plan application.
	DanglingPanic
)

// ParseDanglingPolicy maps a CLI/config string to a DanglingPolicy,
// defaulting to DanglingRemove on anything unrecognised.
func ParseDanglingPolicy(s string) DanglingPolicy {
	switch s {
	case "keep":
		return DanglingKeep
	case "panic":
		return DanglingPanic
	default:
		return DanglingRemove
	}
}

// Workspace is everything a lounge needs once a connection has
// announced a workspace name during Auth: where it lives on disk, the
// shared key that name authenticates against, and its filter/dangling
// rules.
type Workspace struct {
	Name     string
	Path     string
	AESKey   []byte
	Ignore   *fstree.Set
	Protect  *fstree.Set
	Dangling DanglingPolicy
}

// Lookup resolves a workspace name to its Workspace, for the server
// role. ok is false for an unconfigured name; ServerAuth still runs the
// full challenge dance in that case so an unknown name cannot be
// distinguished from a wrong key by an observer.
type Lookup func(name string) (*Workspace, bool)
