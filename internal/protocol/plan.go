package protocol

import (
	"github.com/Adi8712/janus/internal/codec"
	"github.com/Adi8712/janus/internal/syncplan"
)

// ClientCommitPlan serialises and sends every root of the plan forest
// in a single CommitSyncPlan message.
func (c *Connection) ClientCommitPlan(forest []*syncplan.Node) error {
	subtrees := make([][]byte, 0, len(forest))
	for _, root := range forest {
		data, err := syncplan.Encode(root)
		if err != nil {
			return Fatal(ErrFraming, err)
		}
		subtrees = append(subtrees, data)
	}

	if err := c.Send(&codec.CommitSyncPlan{Subtrees: subtrees}); err != nil {
		return err
	}

	m, err := c.expectType(codec.TypeCommonResponse)
	if err != nil {
		return err
	}
	resp := m.(*codec.CommonResponse)
	code, msg := resp.Code, resp.Msg
	codec.Release(resp)
	if code != codec.CommonResponseCodeSuccess {
		return Fatalf(ErrProtocolMisuse, "commit plan failed: %s", msg)
	}
	return nil
}

// ServerDecodePlan decodes the forest carried by an already-received
// CommitSyncPlan message. Applying it (deletions, directory creation)
// is the lounge's job, since that needs the bound workspace's root and
// protect rules.
func ServerDecodePlan(msg *codec.CommitSyncPlan) ([]*syncplan.Node, error) {
	forest := make([]*syncplan.Node, 0, len(msg.Subtrees))
	for _, sub := range msg.Subtrees {
		root, err := syncplan.Decode(sub)
		if err != nil {
			return nil, Fatal(ErrFraming, err)
		}
		forest = append(forest, root)
	}
	return forest, nil
}

// ServerAckPlan replies to a CommitSyncPlan once the lounge has applied
// it (deletions performed, directories pre-created).
func (c *Connection) ServerAckPlan() error {
	return c.replyCommonResponse(codec.CommonResponseCodeSuccess, "", nil)
}

// ServerAckPlanFailed reports a plan application failure.
func (c *Connection) ServerAckPlanFailed(msg string) error {
	return c.replyCommonResponse(codec.CommonResponseCodeFailure, msg, nil)
}
