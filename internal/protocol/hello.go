package protocol

import (
	"github.com/Adi8712/janus/internal/codec"
)

// ClientHello runs the client side of the three-way hello: send our
// offered versions, receive the server's chosen version, and confirm
// with a final Hello. Both sides insist ProtocolVersion is first.
func (c *Connection) ClientHello() error {
	if err := c.sendHello(); err != nil {
		return err
	}

	m, err := c.expectType(codec.TypeHello)
	if err != nil {
		return err
	}
	reply := m.(*codec.Hello)
	err = requireVersion(reply.Versions)
	codec.Release(reply)
	if err != nil {
		return err
	}

	if err := c.sendHello(); err != nil {
		return err
	}
	c.setState(StateHelloDone)
	return nil
}

// sendHello sends a Hello offering/confirming ProtocolVersion, borrowing
// the message from codec's pool rather than allocating one per call.
func (c *Connection) sendHello() error {
	h := codec.GetHello()
	h.Versions = append(h.Versions, ProtocolVersion)
	err := c.Send(h)
	codec.Release(h)
	return err
}

// ServerHello runs the server side: receive the client's offer, echo
// back the chosen version, then receive the client's confirmation.
func (c *Connection) ServerHello() error {
	m, err := c.expectType(codec.TypeHello)
	if err != nil {
		return err
	}
	offer := m.(*codec.Hello)
	err = requireVersion(offer.Versions)
	codec.Release(offer)
	if err != nil {
		return err
	}

	if err := c.sendHello(); err != nil {
		return err
	}

	m, err = c.expectType(codec.TypeHello)
	if err != nil {
		return err
	}
	confirm := m.(*codec.Hello)
	err = requireVersion(confirm.Versions)
	codec.Release(confirm)
	if err != nil {
		return err
	}

	c.setState(StateHelloDone)
	return nil
}

func requireVersion(offered []uint64) error {
	if len(offered) == 0 || offered[0] != ProtocolVersion {
		return Fatalf(ErrProtocolMisuse, "protocol version mismatch: offered %v, want %d first", offered, ProtocolVersion)
	}
	return nil
}
