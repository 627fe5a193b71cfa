// Package transport wraps net.Conn with context-aware reads and writes
// and graceful shutdown, so the protocol and lounge layers never touch
// raw sockets or deadlines directly.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
)

// Conn is a single connection, plain TCP or TLS, bound to a lifetime
// context: cancelling that context closes the underlying socket and
// unblocks whatever ReadSome/WriteSome call is in flight.
type Conn struct {
	netConn net.Conn

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// NewConn wraps an already-established net.Conn (plain or TLS) and ties
// its lifetime to ctx.
func NewConn(ctx context.Context, nc net.Conn) *Conn {
	c := &Conn{netConn: nc, closed: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.closed:
		}
	}()
	return c
}

// Dial opens a TCP connection, optionally wrapping it in TLS, and binds
// it to ctx.
func Dial(ctx context.Context, network, address string, tlsConfig *tls.Config) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", address, err)
	}
	if tlsConfig != nil {
		tc := tls.Client(nc, tlsConfig)
		if err := tc.HandshakeContext(ctx); err != nil {
			nc.Close()
			return nil, fmt.Errorf("transport: tls handshake: %w", err)
		}
		nc = tc
	}
	return NewConn(ctx, nc), nil
}

// ReadSome performs one partial read, same contract as net.Conn.Read.
func (c *Conn) ReadSome(buf []byte) (int, error) {
	return c.netConn.Read(buf)
}

// WriteSome performs one partial write, same contract as net.Conn.Write.
func (c *Conn) WriteSome(buf []byte) (int, error) {
	return c.netConn.Write(buf)
}

// Read satisfies io.Reader so a Conn can be handed directly to
// codec.Decode and similar helpers.
func (c *Conn) Read(buf []byte) (int, error) { return c.ReadSome(buf) }

// Write satisfies io.Writer so a Conn can be handed directly to
// codec.Encode and similar helpers.
func (c *Conn) Write(buf []byte) (int, error) { return c.WriteSome(buf) }

// ReadExact reads exactly len(buf) bytes or returns an error, including
// on a short read before EOF.
func (c *Conn) ReadExact(buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := c.ReadSome(buf[read:])
		read += n
		if err != nil {
			return fmt.Errorf("transport: read exact (%d/%d bytes): %w", read, len(buf), err)
		}
	}
	return nil
}

// WriteAll writes every byte of buf or returns an error.
func (c *Conn) WriteAll(buf []byte) error {
	written := 0
	for written < len(buf) {
		n, err := c.WriteSome(buf[written:])
		written += n
		if err != nil {
			return fmt.Errorf("transport: write all (%d/%d bytes): %w", written, len(buf), err)
		}
	}
	return nil
}

// RemoteAddr returns the peer's address, for logging.
func (c *Conn) RemoteAddr() net.Addr { return c.netConn.RemoteAddr() }

// Close shuts the connection down. Safe to call more than once and from
// more than one goroutine; every call after the first returns the same
// error the first one observed.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.netConn.Close()
		close(c.closed)
	})
	return c.closeErr
}
