package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Hello carries the protocol versions one side is willing to speak, in the
// order it prefers them. PROTOCOL_VERSION 1 must be the first entry.
type Hello struct {
	Versions []uint64
}

func (m *Hello) Type() Type { return TypeHello }

func (m *Hello) Reset() { m.Versions = m.Versions[:0] }

func (m *Hello) MarshalBody() ([]byte, error) {
	buf := make([]byte, 8*len(m.Versions))
	for i, v := range m.Versions {
		binary.BigEndian.PutUint64(buf[i*8:], v)
	}
	return buf, nil
}

func (m *Hello) UnmarshalBody(b []byte) error {
	if len(b)%8 != 0 {
		return fmt.Errorf("codec: Hello body length %d not a multiple of 8", len(b))
	}
	m.Versions = m.Versions[:0]
	for i := 0; i+8 <= len(b); i += 8 {
		m.Versions = append(m.Versions, binary.BigEndian.Uint64(b[i:]))
	}
	return nil
}

// Auth carries either the workspace name (client->server, first leg), a
// random challenge (server->client), or the encrypted challenge response
// (client->server, second leg). The wire body is opaque bytes in all
// directions; internal/protocol interprets them per state.
type Auth struct {
	Payload []byte
}

func (m *Auth) Type() Type { return TypeAuth }

func (m *Auth) Reset() { m.Payload = m.Payload[:0] }

func (m *Auth) MarshalBody() ([]byte, error) { return m.Payload, nil }

func (m *Auth) UnmarshalBody(b []byte) error {
	m.Payload = append(m.Payload[:0], b...)
	return nil
}

// GetSystemTimeMillis has an empty body in both directions; the response
// is carried back as a CommonResponse whose Data holds the big-endian
// u64 millisecond timestamp.
type GetSystemTimeMillis struct{}

func (m *GetSystemTimeMillis) Type() Type                 { return TypeGetSystemTimeMillis }
func (m *GetSystemTimeMillis) Reset()                     {}
func (m *GetSystemTimeMillis) MarshalBody() ([]byte, error) { return nil, nil }
func (m *GetSystemTimeMillis) UnmarshalBody(b []byte) error {
	if len(b) != 0 {
		return fmt.Errorf("codec: GetSystemTimeMillis expects an empty body, got %d bytes", len(b))
	}
	return nil
}

// FetchFileTree has an empty body; the response is a CommonResponse whose
// Data holds the serialised remote tree.
type FetchFileTree struct{}

func (m *FetchFileTree) Type() Type                 { return TypeFetchFileTree }
func (m *FetchFileTree) Reset()                     {}
func (m *FetchFileTree) MarshalBody() ([]byte, error) { return nil, nil }
func (m *FetchFileTree) UnmarshalBody(b []byte) error {
	if len(b) != 0 {
		return fmt.Errorf("codec: FetchFileTree expects an empty body, got %d bytes", len(b))
	}
	return nil
}

// CommitSyncPlan carries every plan subtree the client intends to commit,
// each already serialised (by internal/syncplan) and wrapped here as a
// length-prefixed blob.
type CommitSyncPlan struct {
	Subtrees [][]byte
}

func (m *CommitSyncPlan) Type() Type { return TypeCommitSyncPlan }

func (m *CommitSyncPlan) Reset() { m.Subtrees = m.Subtrees[:0] }

func (m *CommitSyncPlan) MarshalBody() ([]byte, error) {
	var buf bytes.Buffer
	for _, s := range m.Subtrees {
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
		buf.Write(lenBuf[:])
		buf.Write(s)
	}
	return buf.Bytes(), nil
}

func (m *CommitSyncPlan) UnmarshalBody(b []byte) error {
	m.Subtrees = m.Subtrees[:0]
	r := bytes.NewReader(b)
	for r.Len() > 0 {
		var lenBuf [8]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return fmt.Errorf("codec: CommitSyncPlan truncated subtree length: %w", err)
		}
		n := binary.BigEndian.Uint64(lenBuf[:])
		sub := make([]byte, n)
		if _, err := io.ReadFull(r, sub); err != nil {
			return fmt.Errorf("codec: CommitSyncPlan truncated subtree body: %w", err)
		}
		m.Subtrees = append(m.Subtrees, sub)
	}
	return nil
}

// UploadFile declares an incoming file transfer: the DataBlock messages
// that follow on the same connection carry exactly Size bytes of payload.
type UploadFile struct {
	Nonce    uint64
	Perm     uint32
	Reserved uint32
	Size     uint64
	Path     string // '/' separated, relative to the workspace root
}

func (m *UploadFile) Type() Type { return TypeUploadFile }

func (m *UploadFile) Reset() {
	m.Nonce, m.Perm, m.Reserved, m.Size, m.Path = 0, 0, 0, 0, ""
}

func (m *UploadFile) MarshalBody() ([]byte, error) {
	buf := make([]byte, 24+len(m.Path))
	binary.BigEndian.PutUint64(buf[0:], m.Nonce)
	binary.BigEndian.PutUint32(buf[8:], m.Perm)
	binary.BigEndian.PutUint32(buf[12:], m.Reserved)
	binary.BigEndian.PutUint64(buf[16:], m.Size)
	copy(buf[24:], m.Path)
	return buf, nil
}

func (m *UploadFile) UnmarshalBody(b []byte) error {
	if len(b) < 24 {
		return fmt.Errorf("codec: UploadFile body too short (%d bytes)", len(b))
	}
	m.Nonce = binary.BigEndian.Uint64(b[0:])
	m.Perm = binary.BigEndian.Uint32(b[8:])
	m.Reserved = binary.BigEndian.Uint32(b[12:])
	m.Size = binary.BigEndian.Uint64(b[16:])
	m.Path = string(b[24:])
	return nil
}

// UploadArchive declares an incoming archive: the DataBlock messages that
// follow carry exactly ArchiveSize bytes, which internal/archive parses
// into individual entries as they arrive.
type UploadArchive struct {
	SeqID       uint64
	ArchiveSize uint64
}

func (m *UploadArchive) Type() Type { return TypeUploadArchive }

func (m *UploadArchive) Reset() { m.SeqID, m.ArchiveSize = 0, 0 }

func (m *UploadArchive) MarshalBody() ([]byte, error) {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:], m.SeqID)
	binary.BigEndian.PutUint64(buf[8:], m.ArchiveSize)
	return buf, nil
}

func (m *UploadArchive) UnmarshalBody(b []byte) error {
	if len(b) != 16 {
		return fmt.Errorf("codec: UploadArchive body must be 16 bytes, got %d", len(b))
	}
	m.SeqID = binary.BigEndian.Uint64(b[0:])
	m.ArchiveSize = binary.BigEndian.Uint64(b[8:])
	return nil
}

// ConfirmArchives asks the server to drain whatever archive-completion
// statuses it has accumulated. NoBlock requests an immediate return with
// whatever is ready rather than waiting for at least one completion.
type ConfirmArchives struct {
	NoBlock bool
}

func (m *ConfirmArchives) Type() Type { return TypeConfirmArchives }

func (m *ConfirmArchives) Reset() { m.NoBlock = false }

func (m *ConfirmArchives) MarshalBody() ([]byte, error) {
	buf := make([]byte, 4)
	if m.NoBlock {
		binary.BigEndian.PutUint32(buf, 1)
	}
	return buf, nil
}

func (m *ConfirmArchives) UnmarshalBody(b []byte) error {
	if len(b) != 4 {
		return fmt.Errorf("codec: ConfirmArchives body must be 4 bytes, got %d", len(b))
	}
	m.NoBlock = binary.BigEndian.Uint32(b) != 0
	return nil
}

// ConfirmFiles has an empty body; it asks the server to drain the
// per-file (nonce -> status) ACK queue, returned via CommonResponse.
type ConfirmFiles struct{}

func (m *ConfirmFiles) Type() Type                 { return TypeConfirmFiles }
func (m *ConfirmFiles) Reset()                     {}
func (m *ConfirmFiles) MarshalBody() ([]byte, error) { return nil, nil }
func (m *ConfirmFiles) UnmarshalBody(b []byte) error {
	if len(b) != 0 {
		return fmt.Errorf("codec: ConfirmFiles expects an empty body, got %d bytes", len(b))
	}
	return nil
}

// Bye has an empty body; either side may send it to end the session.
type Bye struct{}

func (m *Bye) Type() Type                  { return TypeBye }
func (m *Bye) Reset()                      {}
func (m *Bye) MarshalBody() ([]byte, error) { return nil, nil }
func (m *Bye) UnmarshalBody(b []byte) error {
	if len(b) != 0 {
		return fmt.Errorf("codec: Bye expects an empty body, got %d bytes", len(b))
	}
	return nil
}

// CommonResponse is the generic server->client acknowledgement. Code 0
// means success; any other value is a failure, with Msg carrying a
// human-readable reason. Some requests (GetSystemTimeMillis,
// FetchFileTree, ConfirmFiles, ConfirmArchives) additionally stash
// structured data after Msg in Data, documented at each call site.
type CommonResponse struct {
	Code int32
	Msg  string
	Data []byte
}

func (m *CommonResponse) Type() Type { return TypeCommonResponse }

func (m *CommonResponse) Reset() {
	m.Code, m.Msg, m.Data = 0, "", m.Data[:0]
}

func (m *CommonResponse) MarshalBody() ([]byte, error) {
	msgBytes := []byte(m.Msg)
	buf := make([]byte, 8+len(msgBytes)+len(m.Data))
	binary.BigEndian.PutUint32(buf[0:], uint32(m.Code))
	binary.BigEndian.PutUint32(buf[4:], uint32(len(msgBytes)))
	copy(buf[8:], msgBytes)
	copy(buf[8+len(msgBytes):], m.Data)
	return buf, nil
}

func (m *CommonResponse) UnmarshalBody(b []byte) error {
	if len(b) < 8 {
		return fmt.Errorf("codec: CommonResponse body too short (%d bytes)", len(b))
	}
	m.Code = int32(binary.BigEndian.Uint32(b[0:]))
	msgLen := binary.BigEndian.Uint32(b[4:])
	if uint64(8+msgLen) > uint64(len(b)) {
		return fmt.Errorf("codec: CommonResponse msg_len %d exceeds body", msgLen)
	}
	m.Msg = string(b[8 : 8+msgLen])
	m.Data = append(m.Data[:0], b[8+msgLen:]...)
	return nil
}

// DataBlock is an opaque chunk of bytes belonging to whichever UploadFile
// or UploadArchive operation is currently in flight on the connection.
type DataBlock struct {
	Payload []byte
}

func (m *DataBlock) Type() Type { return TypeDataBlock }

func (m *DataBlock) Reset() { m.Payload = m.Payload[:0] }

func (m *DataBlock) MarshalBody() ([]byte, error) { return m.Payload, nil }

func (m *DataBlock) UnmarshalBody(b []byte) error {
	m.Payload = append(m.Payload[:0], b...)
	return nil
}
