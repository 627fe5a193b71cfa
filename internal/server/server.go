// Package server runs the accept loop that turns each inbound
// connection into one internal/lounge.Lounge session.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"

	"go.uber.org/zap"

	"github.com/Adi8712/janus/internal/lounge"
	"github.com/Adi8712/janus/internal/protocol"
	"github.com/Adi8712/janus/internal/transport"
)

// Server accepts connections on a listener and hands each one to a
// fresh lounge, sharing one Registry so the admission mutex is per
// (role, workspace-name) across every connection it accepts.
type Server struct {
	listener *transport.Listener
	log      *zap.Logger
	registry *lounge.Registry
	lookup   lounge.Lookup
}

// New wraps an already-bound listener. tlsConfig may be nil for
// cleartext; the listener itself was already built with it via
// transport.Listen, this constructor only needs the other collaborators.
func New(listener *transport.Listener, log *zap.Logger, lookup lounge.Lookup) *Server {
	return &Server{listener: listener, log: log, registry: lounge.NewRegistry(), lookup: lookup}
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed, running each lounge in its own goroutine. A single
// connection's accept or handshake failure never stops the loop.
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info("server: listening", zap.String("addr", s.listener.Addr().String()))
	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("server: accept failed", zap.Error(err))
			continue
		}
		s.log.Info("server: accepted connection", zap.String("remote", conn.RemoteAddr().String()))
		go s.run(ctx, conn)
	}
}

func (s *Server) run(ctx context.Context, conn *transport.Conn) {
	pc := protocol.NewConnection(conn, s.log)
	l := lounge.New(pc, s.log, s.registry, s.lookup)
	if err := l.Run(ctx); err != nil {
		s.log.Warn("server: lounge terminated", zap.Error(err))
	}
}

// ServerTLSConfigFromFiles loads a certificate/key pair for Listen,
// or returns a nil *tls.Config (cleartext) when either path is empty,
// per spec.md §6's "if unconfigured, transport is cleartext with a
// warning".
func ServerTLSConfigFromFiles(certPath, keyPath string) (*tls.Config, error) {
	if certPath == "" || keyPath == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	return transport.ServerTLSConfig(cert), nil
}
