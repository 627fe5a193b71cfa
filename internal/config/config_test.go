package config

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestStripJSONCRemovesCommentsAndTrailingCommas(t *testing.T) {
	src := []byte(`{
		// a line comment
		"mode": "server", // trailing
		"port": 9000,
		/* block
		   comment */
		"workspaces": ["a", "b",],
	}`)
	var out map[string]any
	require.NoError(t, json.Unmarshal(stripJSONC(src), &out))
	require.Equal(t, "server", out["mode"])
	require.Equal(t, float64(9000), out["port"])
}

func TestStripJSONCLeavesSlashesInStringsAlone(t *testing.T) {
	src := []byte(`{"path": "/srv/ws", "note": "not // a comment"}`)
	var out map[string]any
	require.NoError(t, json.Unmarshal(stripJSONC(src), &out))
	require.Equal(t, "/srv/ws", out["path"])
	require.Equal(t, "not // a comment", out["note"])
}

func TestLoadParsesFullSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "janus.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"mode": "server",
		"port": 9000,
		"host": "0.0.0.0",
		"secret": {"type": "string", "value": "hunter2"},
		"filter": {"ignore": ["*.tmp"], "protect": ["*.log"]},
		"workspaces": [
			{"name": "ws1", "role": "SERVER", "path": "/srv/ws1"},
			{"name": "ws2", "role": "SERVER", "path": "/srv/ws2", "filter": {"override": true, "ignore": ["*.bak"]}}
		]
	}`), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "server", f.Mode)
	require.Equal(t, 9000, f.Port)
	require.Len(t, f.Workspaces, 2)
	require.Equal(t, "/srv/ws1", f.Workspaces[0].Path)
}

func TestResolveSecretString(t *testing.T) {
	key, err := ResolveSecret(&SecretConfig{Type: "string", Value: "hunter2"})
	require.NoError(t, err)
	require.Equal(t, []byte("hunter2"), key)
}

func TestResolveSecretBase64(t *testing.T) {
	raw := []byte("0123456789abcdef")
	key, err := ResolveSecret(&SecretConfig{Type: "base64", Value: base64.StdEncoding.EncodeToString(raw)})
	require.NoError(t, err)
	require.Equal(t, raw, key)
}

func TestResolveSecretFileString(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret.txt")
	require.NoError(t, os.WriteFile(path, []byte("hunter2\n"), 0o600))

	key, err := ResolveSecret(&SecretConfig{Type: "file-string", Value: path})
	require.NoError(t, err)
	require.Equal(t, []byte("hunter2"), key)
}

func TestResolveSecretNilIsNilKey(t *testing.T) {
	key, err := ResolveSecret(nil)
	require.NoError(t, err)
	require.Nil(t, key)
}

func TestResolveSecretUnknownTypeErrors(t *testing.T) {
	_, err := ResolveSecret(&SecretConfig{Type: "rot13", Value: "x"})
	require.Error(t, err)
}

func TestMergeFilterDefaultsToMerge(t *testing.T) {
	global := FilterConfig{Ignore: []string{"*.tmp"}, Protect: []string{"*.log"}}
	ignore, protect := MergeFilter(global, &FilterOverride{Ignore: []string{"*.bak"}})
	require.ElementsMatch(t, []string{"*.tmp", "*.bak"}, ignore)
	require.ElementsMatch(t, []string{"*.log"}, protect)
}

func TestMergeFilterOverrideReplaces(t *testing.T) {
	global := FilterConfig{Ignore: []string{"*.tmp"}}
	ignore, _ := MergeFilter(global, &FilterOverride{Override: true, Ignore: []string{"*.bak"}})
	require.Equal(t, []string{"*.bak"}, ignore)
}

func TestMergeFilterNilOverrideUsesGlobal(t *testing.T) {
	global := FilterConfig{Ignore: []string{"*.tmp"}}
	ignore, _ := MergeFilter(global, nil)
	require.Equal(t, []string{"*.tmp"}, ignore)
}

func TestResolveFlagsWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "janus.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"host": "file-host",
		"port": 1111,
		"secret": {"type": "string", "value": "file-secret"},
		"workspaces": [{"name": "ws1", "role": "SERVER", "path": "/from/file"}]
	}`), 0o644))
	f, err := Load(path)
	require.NoError(t, err)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--server",
		"--workspace=ws1",
		"--host=cli-host",
		"--secret=cli-secret",
	}))

	eff, err := Resolve(f, flags)
	require.NoError(t, err)
	require.Equal(t, "cli-host", eff.Host)
	require.Equal(t, uint16(1111), eff.Port)
	require.Equal(t, []byte("cli-secret"), eff.AESKey)
	require.Equal(t, "/from/file", eff.Path)
}

func TestResolveRequiresExactlyOneMode(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--path=/tmp/x"}))

	_, err := Resolve(nil, flags)
	require.Error(t, err)
}

func TestResolveWithNoFileUsesFlagsOnly(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--client", "--workspace=adhoc", "--path=/home/me/project", "--host=10.0.0.5", "--port=9000",
	}))

	eff, err := Resolve(nil, flags)
	require.NoError(t, err)
	require.Equal(t, "/home/me/project", eff.Path)
	require.Equal(t, "10.0.0.5", eff.Host)
	require.Equal(t, uint16(9000), eff.Port)
}

func TestToWorkspaceCompilesFilterRules(t *testing.T) {
	eff := &Effective{
		WorkspaceName: "ws1",
		Path:          "/srv/ws1",
		AESKey:        []byte("hunter2"),
		IgnorePat:     []string{"*.tmp"},
		ProtectPat:    []string{"*.log"},
	}
	ws, err := eff.ToWorkspace()
	require.NoError(t, err)
	require.Equal(t, "ws1", ws.Name)
	require.NotNil(t, ws.Ignore)
	require.NotNil(t, ws.Protect)
}
