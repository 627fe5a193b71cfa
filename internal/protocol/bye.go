package protocol

import "github.com/Adi8712/janus/internal/codec"

// ClientBye sends Bye and does not wait for a reply; the server side
// simply stops its dispatch loop on receipt.
func (c *Connection) ClientBye() error {
	return c.Send(&codec.Bye{})
}

// ServerReplyBye answers an already-received Bye with one of its own,
// symmetric and unacknowledged, before the lounge stops its loop.
func (c *Connection) ServerReplyBye() error {
	return c.Send(&codec.Bye{})
}
