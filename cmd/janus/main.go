// Command janus is the Janus directory-synchroniser front end: it
// parses spec.md §6's flag surface, loads the optional configuration
// file, and runs either the server accept loop or one client sync.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Adi8712/janus/internal/certgen"
	"github.com/Adi8712/janus/internal/client"
	"github.com/Adi8712/janus/internal/config"
	"github.com/Adi8712/janus/internal/fstree"
	"github.com/Adi8712/janus/internal/logging"
	"github.com/Adi8712/janus/internal/lounge"
	"github.com/Adi8712/janus/internal/protocol"
	"github.com/Adi8712/janus/internal/server"
	"github.com/Adi8712/janus/internal/transport"
)

// version is the only version string Janus reports; there is no
// release pipeline wiring it up to anything more specific.
const version = "janus 0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := &cobra.Command{
		Use:           "janus",
		Short:         "Janus directory synchroniser",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := config.RegisterFlags(root.Flags())

	root.RunE = func(cmd *cobra.Command, _ []string) error {
		return dispatch(cmd.Context(), flags)
	}
	root.SetArgs(args)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "janus:", err)
		return exitCodeFor(err)
	}
	return 0
}

func dispatch(ctx context.Context, flags *config.CLIFlags) error {
	switch {
	case flags.Version:
		fmt.Println(version)
		return nil
	case flags.Usage:
		fmt.Println("usage: janus --server|--client [flags]")
		return nil
	case flags.GenerateSSLKeys:
		return runGenerateSSLKeys(flags)
	}

	log, err := logging.New(logging.ParseLevel(os.Getenv("JANUS_LOG")))
	if err != nil {
		return internalErr{err}
	}
	defer log.Sync()

	var file *config.File
	if flags.ConfigPath != "" {
		file, err = config.Load(flags.ConfigPath)
		if err != nil {
			return configErr{err}
		}
	}

	eff, err := config.Resolve(file, flags)
	if err != nil {
		return configErr{err}
	}

	if eff.Server {
		return runServer(ctx, log, file, eff)
	}
	return runClient(ctx, log, eff)
}

func runServer(ctx context.Context, log *zap.Logger, file *config.File, eff *config.Effective) error {
	lookup, err := config.BuildLookup(file, eff)
	if err != nil {
		return configErr{err}
	}

	var tlsConfig *tls.Config
	if eff.SSL != nil && eff.SSL.Cert != "" && eff.SSL.Key != "" {
		cert, err := tls.LoadX509KeyPair(eff.SSL.Cert, eff.SSL.Key)
		if err != nil {
			return configErr{err}
		}
		tlsConfig = transport.ServerTLSConfig(cert)
	} else {
		log.Warn("server: TLS not configured, running cleartext")
	}

	addr := fmt.Sprintf("%s:%d", orDefaultHost(eff.Host), eff.Port)
	ln, err := transport.Listen(addr, tlsConfig)
	if err != nil {
		return configErr{err}
	}
	defer ln.Close()

	srv := server.New(ln, log, lookup)
	if err := srv.Serve(ctx); err != nil {
		return internalErr{err}
	}
	return nil
}

func runClient(ctx context.Context, log *zap.Logger, eff *config.Effective) error {
	var tlsConfig *tls.Config
	if eff.SSL != nil && eff.SSL.Cert != "" {
		certPEM, err := os.ReadFile(eff.SSL.Cert)
		if err != nil {
			return configErr{err}
		}
		cfg, err := transport.ClientTLSConfig(certPEM)
		if err != nil {
			return configErr{err}
		}
		tlsConfig = cfg
	} else {
		log.Warn("client: TLS not configured, connecting cleartext")
	}

	addr := fmt.Sprintf("%s:%d", eff.Host, eff.Port)
	conn, err := transport.Dial(ctx, "tcp", addr, tlsConfig)
	if err != nil {
		return internalErr{err}
	}

	ignore, err := fstree.ParseRules(eff.IgnorePat)
	if err != nil {
		return configErr{err}
	}

	driver := client.New(protocol.NewConnection(conn, log), log, eff.Path, ignore)
	report, err := driver.Sync(ctx, eff.WorkspaceName, eff.AESKey)
	if err != nil {
		if isWorkspaceLocked(err) {
			return lockedErr{err}
		}
		return internalErr{err}
	}

	fmt.Printf("synced %d files, %d archives, %d bytes in %s\n",
		report.FilesUploaded, report.ArchivesUploaded, report.BytesUploaded, report.Elapsed)
	return nil
}

// runGenerateSSLKeys writes the server's leaf certificate and key to
// --ssl-cert/--ssl-key (or prints them, if those flags are unset) and
// always prints the CA certificate: the server needs the leaf pair for
// ServerTLSConfigFromFiles, while every client needs the CA certificate
// at its own --ssl-cert to pin against, and there is no flag for that
// third file.
func runGenerateSSLKeys(flags *config.CLIFlags) error {
	bundle, err := certgen.Generate()
	if err != nil {
		return internalErr{err}
	}

	if flags.SSLCert == "" && flags.SSLKey == "" {
		fmt.Println(string(bundle.LeafCertPEM))
		fmt.Println(string(bundle.LeafKeyPEM))
	} else {
		if err := os.WriteFile(flags.SSLCert, bundle.LeafCertPEM, 0o644); err != nil {
			return configErr{err}
		}
		if err := os.WriteFile(flags.SSLKey, bundle.LeafKeyPEM, 0o600); err != nil {
			return configErr{err}
		}
	}

	fmt.Println("CA certificate (distribute to clients as their --ssl-cert):")
	fmt.Println(string(bundle.CACertPEM))
	return nil
}

func orDefaultHost(host string) string {
	if host == "" {
		return "0.0.0.0"
	}
	return host
}

func isWorkspaceLocked(err error) bool {
	return errors.Is(err, lounge.ErrWorkspaceLocked)
}

// configErr, lockedErr, and internalErr classify a run failure for
// exitCodeFor, per spec.md §6: 0 on success, 1 for a configuration or
// I/O problem, 2 when another client holds the workspace lock, negative
// for anything else unhandled.
type configErr struct{ err error }

func (e configErr) Error() string { return e.err.Error() }
func (e configErr) Unwrap() error { return e.err }

type lockedErr struct{ err error }

func (e lockedErr) Error() string { return e.err.Error() }
func (e lockedErr) Unwrap() error { return e.err }

type internalErr struct{ err error }

func (e internalErr) Error() string { return e.err.Error() }
func (e internalErr) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	switch {
	case errors.As(err, new(configErr)):
		return 1
	case errors.As(err, new(lockedErr)):
		return 2
	default:
		return -1
	}
}
