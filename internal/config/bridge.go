package config

import (
	"fmt"

	"github.com/Adi8712/janus/internal/fstree"
	"github.com/Adi8712/janus/internal/lounge"
)

// Effective is the fully merged, ready-to-use configuration for one
// run: file settings overlaid with CLI flags, a single workspace
// selected, secrets resolved to raw bytes.
type Effective struct {
	Server bool
	Host   string
	Port   uint16
	SSL    *SSLConfig

	WorkspaceName string
	RemoteName    string
	Role          string
	Path          string
	AESKey        []byte
	IgnorePat     []string
	ProtectPat    []string
	Dangling      lounge.DanglingPolicy
}

// Resolve merges an optionally-nil loaded File with CLIFlags into an
// Effective configuration. flags always win on conflict, per spec.md
// §6.
func Resolve(file *File, flags *CLIFlags) (*Effective, error) {
	if flags.Server == flags.Client {
		return nil, fmt.Errorf("config: exactly one of --server or --client must be set")
	}

	var entry WorkspaceEntry
	if found := file.FindWorkspace(flags.Workspace); found != nil {
		entry = *found
	} else {
		entry.Name = flags.Workspace
	}

	var fileHost string
	var globalFilter FilterConfig
	var fileSecret *SecretConfig
	if file != nil {
		fileHost = file.Host
		globalFilter = file.Filter
		fileSecret = file.Secret
	}

	e := &Effective{
		Server:        flags.Server,
		Host:          firstNonEmpty(flags.Host, entry.Host, fileHost),
		WorkspaceName: entry.Name,
		RemoteName:    entry.RemoteName,
		Role:          entry.Role,
		Path:          firstNonEmpty(flags.Path, entry.Path),
		Dangling:      lounge.ParseDanglingPolicy(flags.Dangling),
	}

	e.Port = flags.Port
	if e.Port == 0 {
		switch {
		case entry.Port != 0:
			e.Port = uint16(entry.Port)
		case file != nil && file.Port != 0:
			e.Port = uint16(file.Port)
		}
	}

	secret := entry.Secret
	if secret == nil {
		secret = fileSecret
	}
	if flags.Secret != "" {
		secret = &SecretConfig{Type: "string", Value: flags.Secret}
	}
	key, err := ResolveSecret(secret)
	if err != nil {
		return nil, err
	}
	e.AESKey = key

	ignore, protect := MergeFilter(globalFilter, entry.Filter)
	e.IgnorePat = ignore
	e.ProtectPat = protect

	e.SSL = entry.SSL
	if e.SSL == nil && file != nil {
		e.SSL = file.SSL
	}
	if flags.SSLCert != "" || flags.SSLKey != "" {
		e.SSL = &SSLConfig{Cert: flags.SSLCert, Key: flags.SSLKey}
	}

	// A client always pushes one particular workspace and needs its path
	// up front; a server listens for whichever workspace name a
	// connecting client authenticates as, resolved later via BuildLookup
	// against every SERVER-role entry in the file, so an empty path here
	// is not an error for it.
	if flags.Client && e.Path == "" {
		return nil, fmt.Errorf("config: workspace %q has no path", e.WorkspaceName)
	}
	if flags.Client && e.Host == "" {
		return nil, fmt.Errorf("config: workspace %q has no host to dial", e.WorkspaceName)
	}
	return e, nil
}

// BuildLookup compiles every SERVER-role workspace entry in file (role
// left blank also counts, for a single-workspace file that never
// bothered to say so) into a lounge.Lookup, applying eff.Dangling to all
// of them alike since spec.md's --dangling is a process-wide CLI flag,
// not a per-workspace file setting. When eff names a workspace the file
// has no entry for (including the fully-config-less case, file == nil),
// eff.ToWorkspace() is folded in too, so a pure-CLI
// "--server --workspace ws --path ... --secret ..." invocation can still
// admit a connection.
func BuildLookup(file *File, eff *Effective) (lounge.Lookup, error) {
	workspaces := make(map[string]*lounge.Workspace)
	if file != nil {
		for _, entry := range file.Workspaces {
			if entry.Role != "" && entry.Role != "SERVER" {
				continue
			}
			secret := entry.Secret
			if secret == nil {
				secret = file.Secret
			}
			key, err := ResolveSecret(secret)
			if err != nil {
				return nil, fmt.Errorf("config: workspace %q: %w", entry.Name, err)
			}

			ignorePat, protectPat := MergeFilter(file.Filter, entry.Filter)
			ignore, err := fstree.ParseRules(ignorePat)
			if err != nil {
				return nil, fmt.Errorf("config: workspace %q: compile ignore rules: %w", entry.Name, err)
			}
			protect, err := fstree.ParseRules(protectPat)
			if err != nil {
				return nil, fmt.Errorf("config: workspace %q: compile protect rules: %w", entry.Name, err)
			}

			workspaces[entry.Name] = &lounge.Workspace{
				Name:     entry.Name,
				Path:     entry.Path,
				AESKey:   key,
				Ignore:   ignore,
				Protect:  protect,
				Dangling: eff.Dangling,
			}
		}
	}

	if eff != nil && eff.WorkspaceName != "" {
		if _, ok := workspaces[eff.WorkspaceName]; !ok {
			ws, err := eff.ToWorkspace()
			if err != nil {
				return nil, fmt.Errorf("config: workspace %q: %w", eff.WorkspaceName, err)
			}
			workspaces[eff.WorkspaceName] = ws
		}
	}

	return func(name string) (*lounge.Workspace, bool) {
		ws, ok := workspaces[name]
		return ws, ok
	}, nil
}

// ToWorkspace builds the lounge.Workspace the server side needs from
// an Effective configuration, compiling its ignore/protect patterns.
func (e *Effective) ToWorkspace() (*lounge.Workspace, error) {
	ignore, err := fstree.ParseRules(e.IgnorePat)
	if err != nil {
		return nil, fmt.Errorf("config: compile ignore rules: %w", err)
	}
	protect, err := fstree.ParseRules(e.ProtectPat)
	if err != nil {
		return nil, fmt.Errorf("config: compile protect rules: %w", err)
	}
	return &lounge.Workspace{
		Name:     e.WorkspaceName,
		Path:     e.Path,
		AESKey:   e.AESKey,
		Ignore:   ignore,
		Protect:  protect,
		Dangling: e.Dangling,
	}, nil
}
