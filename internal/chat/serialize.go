package chat

import (
	"context"
	"errors"

	"tutorboard/internal/store"
	"tutorboard/pkg/types"
)

// wireMessage serializes a message relative to its viewer. The sender sees
// the recipient's delivery state so their client can render ticks; a
// recipient sees their own state.
func wireMessage(ctx context.Context, st Store, msg *types.Message, viewerID string) (*types.WireMessage, error) {
	wire := &types.WireMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Sender:         types.WireUser{ID: msg.SenderID, Username: msg.SenderUsername},
		Content:        msg.Content,
		Timestamp:      msg.Timestamp,
		IsSystem:       msg.IsSystem,
		Attachment:     msg.Attachment,
	}

	stateOwner := viewerID
	if msg.SenderID == viewerID {
		others, err := st.OtherParticipantIDs(ctx, msg.ConversationID, viewerID)
		if err != nil {
			return nil, err
		}
		if len(others) == 0 {
			return wire, nil
		}
		stateOwner = others[0]
	}

	state, err := st.ReadStateFor(ctx, msg.ID, stateOwner)
	if errors.Is(err, store.ErrNotFound) {
		// No read-state row, such as the viewer's own copy in history.
		return wire, nil
	}
	if err != nil {
		return nil, err
	}
	wire.Status = &state.Status
	wire.IsRead = state.Status == types.ReadStatusSeen
	return wire, nil
}

func wireMessages(ctx context.Context, st Store, msgs []*types.Message, viewerID string) ([]*types.WireMessage, error) {
	wires := make([]*types.WireMessage, 0, len(msgs))
	for _, msg := range msgs {
		wire, err := wireMessage(ctx, st, msg, viewerID)
		if err != nil {
			return nil, err
		}
		wires = append(wires, wire)
	}
	return wires, nil
}
