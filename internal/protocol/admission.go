package protocol

import "github.com/Adi8712/janus/internal/codec"

// ClientAwaitAdmission reads the server's post-auth admission verdict.
// Auth succeeding only proves the credentials were right; a workspace
// already bound to another connection is a separate rejection, reported
// here rather than folded into Auth's own response so the two failure
// modes stay distinguishable on the wire.
func (c *Connection) ClientAwaitAdmission() error {
	m, err := c.expectType(codec.TypeCommonResponse)
	if err != nil {
		return err
	}
	resp := m.(*codec.CommonResponse)
	code, respMsg := resp.Code, resp.Msg
	codec.Release(resp)
	if code != codec.CommonResponseCodeSuccess {
		return Fatalf(ErrProtocolMisuse, "workspace admission refused: %s", respMsg)
	}
	c.setState(StateReady)
	return nil
}

// ServerReplyAdmitted tells the client its workspace binding succeeded
// and advances to READY, from which the dispatch loop runs.
func (c *Connection) ServerReplyAdmitted() error {
	if err := c.replyCommonResponse(codec.CommonResponseCodeSuccess, "", nil); err != nil {
		return err
	}
	c.setState(StateReady)
	return nil
}

// ServerReplyAdmissionRefused reports that another connection already
// holds the workspace. The caller is expected to close the connection
// afterward; state does not advance to READY.
func (c *Connection) ServerReplyAdmissionRefused(msg string) error {
	return c.replyCommonResponse(codec.CommonResponseCodeFailure, msg, nil)
}
