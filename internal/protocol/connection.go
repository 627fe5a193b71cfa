// Package protocol implements the Janus wire state machine on top of
// internal/transport and internal/codec: hello, auth, clock probe,
// tree fetch, plan commit, file/archive upload, confirmation, and bye.
package protocol

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Adi8712/janus/internal/codec"
	"github.com/Adi8712/janus/internal/transport"
)

// ProtocolVersion is the only version Janus currently speaks. Hello
// negotiation insists on this being the first offered version on both
// sides; any mismatch is fatal.
const ProtocolVersion uint64 = 1

// State names a position in the connection's state diagram:
// CONNECTED -> HELLO_DONE -> AUTH_DONE -> READY (then TREE/TRANSFER/
// CONFIRM handlers run without changing state) -> CLOSED.
type State int

const (
	StateConnected State = iota
	StateHelloDone
	StateAuthDone
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateHelloDone:
		return "HELLO_DONE"
	case StateAuthDone:
		return "AUTH_DONE"
	case StateReady:
		return "READY"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Connection wraps one transport.Conn with the framed message codec and
// the Janus state machine. WorkspaceName is populated once Auth
// succeeds.
type Connection struct {
	transport *transport.Conn
	log       *zap.Logger

	state         State
	WorkspaceName string
}

// NewConnection wraps an established transport connection.
func NewConnection(t *transport.Conn, log *zap.Logger) *Connection {
	return &Connection{transport: t, log: log, state: StateConnected}
}

// State reports the connection's current position in the state
// diagram.
func (c *Connection) State() State { return c.state }

// Send encodes and writes one message. It does not change state; state
// transitions are explicit, one method per named transition.
func (c *Connection) Send(m codec.Message) error {
	if err := codec.Encode(c.transport, m); err != nil {
		return Fatal(ErrTransport, fmt.Errorf("send %s: %w", m.Type(), err))
	}
	return nil
}

// Recv decodes the next message off the wire.
func (c *Connection) Recv() (codec.Message, error) {
	m, err := codec.Decode(c.transport)
	if err != nil {
		return nil, Fatal(ErrFraming, err)
	}
	return m, nil
}

// expectType reads one message and requires it to be of type t,
// returning a protocol-misuse FatalError otherwise.
func (c *Connection) expectType(t codec.Type) (codec.Message, error) {
	m, err := c.Recv()
	if err != nil {
		return nil, err
	}
	if m.Type() != t {
		return nil, Fatalf(ErrProtocolMisuse, "expected %s, got %s", t, m.Type())
	}
	return m, nil
}

// setState advances the state machine, logging the transition at debug
// level for traceability without being noisy at info level.
func (c *Connection) setState(s State) {
	c.log.Debug("protocol: state transition", zap.Stringer("from", c.state), zap.Stringer("to", s))
	c.state = s
}

// Close tears down the underlying transport connection.
func (c *Connection) Close() error {
	c.setState(StateClosed)
	return c.transport.Close()
}

// RemoteAddr is forwarded for logging at call sites.
func (c *Connection) RemoteAddr() string {
	return c.transport.RemoteAddr().String()
}
