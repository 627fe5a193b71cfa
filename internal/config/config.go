// Package config loads the optional JSON configuration file and merges
// it with command-line flags, producing the values the server and
// client drivers need: listen/dial address, TLS material, and the set
// of workspaces with their filter rules and dangling-deletion policy.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// SecretConfig names where a shared AES key comes from. Type string
// and base64 carry the key (or its base64 form) inline in Value;
// file-string and file-base64 treat Value as a path to read from.
type SecretConfig struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// SSLConfig points at a certificate/key pair on disk.
type SSLConfig struct {
	Cert string `json:"cert"`
	Key  string `json:"key"`
}

// FilterConfig is the top-level ignore/protect list every workspace
// inherits unless it overrides.
type FilterConfig struct {
	Ignore  []string `json:"ignore"`
	Protect []string `json:"protect"`
}

// FilterOverride is a workspace's own filter block. Override=false (the
// default) merges Ignore/Protect into the global lists; true replaces
// them outright.
type FilterOverride struct {
	Override bool     `json:"override"`
	Ignore   []string `json:"ignore"`
	Protect  []string `json:"protect"`
}

// WorkspaceEntry is one element of the file's "workspaces" array.
type WorkspaceEntry struct {
	Name       string          `json:"name"`
	RemoteName string          `json:"remoteName"`
	Role       string          `json:"role"`
	Path       string          `json:"path"`
	Host       string          `json:"host"`
	Port       int             `json:"port"`
	Secret     *SecretConfig   `json:"secret"`
	SSL        *SSLConfig      `json:"ssl"`
	Filter     *FilterOverride `json:"filter"`
}

// File is the top-level shape of the configuration document.
type File struct {
	Mode       string           `json:"mode"`
	Port       int              `json:"port"`
	Host       string           `json:"host"`
	SSL        *SSLConfig       `json:"ssl"`
	Secret     *SecretConfig    `json:"secret"`
	Filter     FilterConfig     `json:"filter"`
	Workspaces []WorkspaceEntry `json:"workspaces"`
}

// Load reads and parses a JSONC configuration file. Comments and
// trailing commas are tolerated; everything else must be valid JSON.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(stripJSONC(raw), &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &f, nil
}

// FindWorkspace returns the named entry, or nil if the file has none
// by that name (or f itself is nil, meaning no config file was given).
func (f *File) FindWorkspace(name string) *WorkspaceEntry {
	if f == nil {
		return nil
	}
	for i := range f.Workspaces {
		if f.Workspaces[i].Name == name {
			return &f.Workspaces[i]
		}
	}
	return nil
}
