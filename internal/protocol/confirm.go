package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/Adi8712/janus/internal/codec"
)

// Ack pairs an id (a file's nonce or an archive's seq_id) with its
// completion status: 0 success, 1 failure.
type Ack struct {
	ID   uint64
	Code int32
}

// encodeAcks lays out a CommonResponse.Data payload as count:u32
// followed by repeated {id:u64, code:i32}. Neither ConfirmFiles nor
// ConfirmArchives is specified down to the byte in spec.md §4.1's
// table; this is Janus's own choice, consistent across both.
func encodeAcks(acks []Ack) []byte {
	buf := make([]byte, 4+12*len(acks))
	binary.BigEndian.PutUint32(buf, uint32(len(acks)))
	for i, a := range acks {
		off := 4 + i*12
		binary.BigEndian.PutUint64(buf[off:], a.ID)
		binary.BigEndian.PutUint32(buf[off+8:], uint32(a.Code))
	}
	return buf
}

func decodeAcks(data []byte) ([]Ack, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("protocol: ack list too short (%d bytes)", len(data))
	}
	count := binary.BigEndian.Uint32(data)
	want := 4 + int(count)*12
	if len(data) != want {
		return nil, fmt.Errorf("protocol: ack list declares %d entries but has %d bytes, want %d", count, len(data), want)
	}
	acks := make([]Ack, count)
	for i := range acks {
		off := 4 + i*12
		acks[i] = Ack{
			ID:   binary.BigEndian.Uint64(data[off:]),
			Code: int32(binary.BigEndian.Uint32(data[off+8:])),
		}
	}
	return acks, nil
}

// ClientConfirmFiles drains the server's per-file ACK queue.
func (c *Connection) ClientConfirmFiles() ([]Ack, error) {
	if err := c.Send(&codec.ConfirmFiles{}); err != nil {
		return nil, err
	}
	m, err := c.expectType(codec.TypeCommonResponse)
	if err != nil {
		return nil, err
	}
	resp := m.(*codec.CommonResponse)
	code, msg, data := resp.Code, resp.Msg, resp.Data
	if code != codec.CommonResponseCodeSuccess {
		codec.Release(resp)
		return nil, Fatalf(ErrProtocolMisuse, "confirm files failed: %s", msg)
	}
	acks, err := decodeAcks(data)
	codec.Release(resp)
	if err != nil {
		return nil, Fatal(ErrFraming, err)
	}
	return acks, nil
}

// ServerReplyConfirmFiles answers an already-received ConfirmFiles
// request (empty body) with the pending acks the lounge already
// drained.
func (c *Connection) ServerReplyConfirmFiles(pending []Ack) error {
	return c.replyCommonResponse(codec.CommonResponseCodeSuccess, "", encodeAcks(pending))
}

// ClientConfirmArchives drains the server's per-archive ACK queue.
// noBlock mirrors ConfirmArchives.NoBlock: if true, the server returns
// immediately with whatever is ready.
func (c *Connection) ClientConfirmArchives(noBlock bool) ([]Ack, error) {
	if err := c.Send(&codec.ConfirmArchives{NoBlock: noBlock}); err != nil {
		return nil, err
	}
	m, err := c.expectType(codec.TypeCommonResponse)
	if err != nil {
		return nil, err
	}
	resp := m.(*codec.CommonResponse)
	code, msg, data := resp.Code, resp.Msg, resp.Data
	if code != codec.CommonResponseCodeSuccess {
		codec.Release(resp)
		return nil, Fatalf(ErrProtocolMisuse, "confirm archives failed: %s", msg)
	}
	acks, err := decodeAcks(data)
	codec.Release(resp)
	if err != nil {
		return nil, Fatal(ErrFraming, err)
	}
	return acks, nil
}

// ServerReplyConfirmArchives sends the pending acks gathered for a
// ConfirmArchives request.
func (c *Connection) ServerReplyConfirmArchives(pending []Ack) error {
	return c.replyCommonResponse(codec.CommonResponseCodeSuccess, "", encodeAcks(pending))
}
