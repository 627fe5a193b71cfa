package config

import (
	"github.com/spf13/pflag"
)

// CLIFlags mirrors spec.md §6's flag surface. RegisterFlags binds these
// onto a FlagSet; Resolve then overlays whichever of them the user set
// onto a loaded File, flags always winning over the file.
type CLIFlags struct {
	Server          bool
	Client          bool
	Host            string
	Port            uint16
	ConfigPath      string
	Workspace       string
	Path            string
	Secret          string
	SSLCert         string
	SSLKey          string
	Dangling        string
	GenerateSSLKeys bool
	Version         bool
	Usage           bool

	fs *pflag.FlagSet
}

// RegisterFlags declares the full flag surface on fs and returns the
// struct RegisterFlags's caller should pass to Resolve after fs.Parse.
func RegisterFlags(fs *pflag.FlagSet) *CLIFlags {
	c := &CLIFlags{fs: fs}
	fs.BoolVar(&c.Server, "server", false, "run as the server")
	fs.BoolVar(&c.Client, "client", false, "run as the client")
	fs.StringVar(&c.Host, "host", "", "listen or dial address")
	fs.StringVar(&c.Host, "ip", "", "alias for --host")
	fs.Uint16Var(&c.Port, "port", 0, "listen or dial port")
	fs.StringVar(&c.ConfigPath, "config", "", "path to the JSON configuration file")
	fs.StringVar(&c.Workspace, "workspace", "", "workspace name to run")
	fs.StringVar(&c.Path, "path", "", "workspace root directory")
	fs.StringVar(&c.Secret, "secret", "", "shared secret, literal string")
	fs.StringVar(&c.SSLCert, "ssl-cert", "", "TLS certificate path")
	fs.StringVar(&c.SSLKey, "ssl-key", "", "TLS key path")
	fs.StringVar(&c.Dangling, "dangling", "remove", "dangling remote file policy: remove|keep|panic")
	fs.BoolVar(&c.GenerateSSLKeys, "generate-ssl-keys", false, "write a self-signed cert/key pair and exit")
	fs.BoolVar(&c.Version, "version", false, "print version and exit")
	fs.BoolVar(&c.Usage, "usage", false, "print usage and exit")
	return c
}

// firstNonEmpty returns the first of its arguments that is non-empty.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
