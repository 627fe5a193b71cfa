package codec

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic is the 4-byte header that opens every Janus frame.
var Magic = [4]byte{'j', 'A', 'N', 'u'}

// HeaderLen is the fixed size of MAGIC(4) | TYPE(u32) | BODY_LEN(u64).
const HeaderLen = 4 + 4 + 8

// MaxBodyLen is the largest body a frame may declare. Anything above this
// is rejected before a single body byte is read.
const MaxBodyLen = 1 << 30 // 1 GiB

// Encode writes m's full frame (header + body) to w.
func Encode(w io.Writer, m Message) error {
	body, err := m.MarshalBody()
	if err != nil {
		return fmt.Errorf("codec: marshal %s body: %w", m.Type(), err)
	}
	if len(body) > MaxBodyLen {
		return fmt.Errorf("codec: %s body length %d exceeds %d byte ceiling", m.Type(), len(body), MaxBodyLen)
	}

	var header [HeaderLen]byte
	copy(header[0:4], Magic[:])
	binary.BigEndian.PutUint32(header[4:8], uint32(m.Type()))
	binary.BigEndian.PutUint64(header[8:16], uint64(len(body)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("codec: write header: %w", err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("codec: write body: %w", err)
		}
	}
	return nil
}

// DecodeHeader reads and validates exactly HeaderLen bytes from r,
// returning the declared type and body length. It does not read the body.
func DecodeHeader(r io.Reader) (Type, uint64, error) {
	var header [HeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, 0, err
	}
	if header[0] != Magic[0] || header[1] != Magic[1] || header[2] != Magic[2] || header[3] != Magic[3] {
		return 0, 0, fmt.Errorf("codec: bad magic %x, want %x", header[0:4], Magic)
	}
	t := Type(binary.BigEndian.Uint32(header[4:8]))
	bodyLen := binary.BigEndian.Uint64(header[8:16])
	if bodyLen > MaxBodyLen {
		return 0, 0, fmt.Errorf("codec: body length %d exceeds %d byte ceiling", bodyLen, MaxBodyLen)
	}
	if !KnownType(t) {
		return 0, 0, fmt.Errorf("codec: unknown message type %s", t)
	}
	return t, bodyLen, nil
}

// DecodeBody builds and populates a Message of type t from body, which
// must hold exactly the number of bytes DecodeHeader declared.
func DecodeBody(t Type, body []byte) (Message, error) {
	m, ok := newMessage(t)
	if !ok {
		return nil, fmt.Errorf("codec: unknown message type %s", t)
	}
	if err := m.UnmarshalBody(body); err != nil {
		return nil, fmt.Errorf("codec: unmarshal %s body: %w", t, err)
	}
	return m, nil
}

// Decode reads one full frame (header + body) from r and returns the
// decoded message. It is a convenience wrapper over DecodeHeader +
// DecodeBody for callers that do not need to stream the body themselves.
// The protocol connection reads every message through it, including each
// DataBlock that carries an UploadFile/UploadArchive payload.
func Decode(r io.Reader) (Message, error) {
	t, bodyLen, err := DecodeHeader(r)
	if err != nil {
		return nil, err
	}
	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("codec: read body: %w", err)
		}
	}
	return DecodeBody(t, body)
}
