package protocol

import (
	"github.com/Adi8712/janus/internal/codec"
	"github.com/Adi8712/janus/internal/fstree"
)

// ClientFetchTree requests the server's current file tree for the
// bound workspace and decodes it.
func (c *Connection) ClientFetchTree() (*fstree.Node, error) {
	if err := c.Send(&codec.FetchFileTree{}); err != nil {
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
		return nil, Fatalf(ErrProtocolMisuse, "fetch tree failed: %s", msg)
	}

	tree, err := fstree.Decode(data)
	codec.Release(resp)
	if err != nil {
		return nil, Fatal(ErrFraming, err)
	}
	return tree, nil
}

// ServerReplyTree answers an already-received FetchFileTree request
// (empty body, nothing left to decode) with the already-walked tree
// for the bound workspace. Keeping that tree current is the lounge's
// job, not this connection's.
func (c *Connection) ServerReplyTree(tree *fstree.Node) error {
	data, err := fstree.Encode(tree)
	if err != nil {
		return Fatal(ErrFilesystem, err)
	}
	return c.replyCommonResponse(codec.CommonResponseCodeSuccess, "", data)
}
