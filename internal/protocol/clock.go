package protocol

import (
	"encoding/binary"
	"time"

	"github.com/Adi8712/janus/internal/codec"
)

// ClientProbeClock issues GetSystemTimeMillis and returns the clock
// skew (server time minus local time, bias-corrected for round trip)
// to feed into the sync-plan builder.
func (c *Connection) ClientProbeClock() (skewMillis int64, err error) {
	sentAt := time.Now()
	if err := c.Send(&codec.GetSystemTimeMillis{}); err != nil {
		return 0, err
	}

	m, err := c.expectType(codec.TypeCommonResponse)
	if err != nil {
		return 0, err
	}
	receivedAt := time.Now()

	resp := m.(*codec.CommonResponse)
	code, msg, data := resp.Code, resp.Msg, append([]byte(nil), resp.Data...)
	codec.Release(resp)
	if code != codec.CommonResponseCodeSuccess {
		return 0, Fatalf(ErrProtocolMisuse, "clock probe failed: %s", msg)
	}
	if len(data) != 8 {
		return 0, Fatalf(ErrFraming, "clock probe response carried %d bytes, want 8", len(data))
	}
	serverMillis := int64(binary.BigEndian.Uint64(data))

	rtt := receivedAt.Sub(sentAt)
	localMillisAtServerSample := sentAt.Add(rtt / 2).UnixMilli()

	return serverMillis - localMillisAtServerSample, nil
}

// ServerReplyClock answers an already-received GetSystemTimeMillis
// request with the server's current wall clock. The lounge dispatch
// loop reads the request itself (its body is empty, so there is
// nothing left to decode) and calls this to produce the reply.
func (c *Connection) ServerReplyClock() error {
	var data [8]byte
	binary.BigEndian.PutUint64(data[:], uint64(time.Now().UnixMilli()))

	return c.replyCommonResponse(codec.CommonResponseCodeSuccess, "", data[:])
}
