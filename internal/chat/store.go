package chat

import (
	"context"

	"tutorboard/pkg/types"
)

// Store is the slice of the persistence layer the chat handler depends on.
// Satisfied by *store.Store; tests substitute lighter implementations.
type Store interface {
	SearchUsers(ctx context.Context, keyword, excludeID string, limit int) ([]*types.User, error)

	FindOrCreateConversation(ctx context.Context, userA, userB string) (*types.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*types.Conversation, error)
	OtherParticipantIDs(ctx context.Context, conversationID, excludeID string) ([]string, error)
	ListConversations(ctx context.Context, userID string) ([]*types.ConversationSummary, error)

	AppendMessage(ctx context.Context, conversationID, senderID, content string, attachment *string, isSystem bool) (*types.Message, error)
	GetMessage(ctx context.Context, messageID string) (*types.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*types.Message, error)
	MarkSeen(ctx context.Context, conversationID, readerID string) ([]string, error)
	MarkDelivered(ctx context.Context, messageID, recipientID string) error
	ReadStateFor(ctx context.Context, messageID, userID string) (*types.ReadState, error)

	IsContactUnlocked(ctx context.Context, userA, userB string) (bool, error)
}
