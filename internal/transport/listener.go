package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
)

// Listener accepts incoming connections, optionally wrapping each one
// in TLS, and binds accepted connections to the context passed to
// Accept rather than to the listener's own lifetime.
type Listener struct {
	netListener net.Listener
	tlsConfig   *tls.Config
}

// Listen opens a TCP listener on address, wrapping accepted connections
// in TLS when tlsConfig is non-nil.
func Listen(address string, tlsConfig *tls.Config) (*Listener, error) {
	nl, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", address, err)
	}
	return &Listener{netListener: nl, tlsConfig: tlsConfig}, nil
}

// Accept blocks for the next inbound connection and binds it to ctx.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	nc, err := l.netListener.Accept()
	if err != nil {
		return nil, err
	}
	if l.tlsConfig != nil {
		tc := tls.Server(nc, l.tlsConfig)
		if err := tc.HandshakeContext(ctx); err != nil {
			tc.Close()
			return nil, fmt.Errorf("transport: tls handshake: %w", err)
		}
		nc = tc
	}
	return NewConn(ctx, nc), nil
}

// Addr returns the address the listener is bound to.
func (l *Listener) Addr() net.Addr { return l.netListener.Addr() }

// Close stops accepting new connections. In-flight connections returned
// by Accept are unaffected.
func (l *Listener) Close() error { return l.netListener.Close() }
