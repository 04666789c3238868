package chat

import (
	"encoding/json"

	"tutorboard/pkg/types"
)

// Inbound event types accepted over the socket.
const (
	EventMessage           = "chat.message"
	EventTyping            = "chat.typing"
	EventRead              = "chat.read"
	EventDelivered         = "chat.delivered"
	EventSearchUser        = "chat.search_user"
	EventStartConversation = "chat.start_conversation"
	EventGetConversations  = "chat.get_conversations"
	EventGetMessages       = "chat.get_messages"
)

// Outbound event types. EventMessage, EventTyping and EventRead are echoed
// back with the same name.
const (
	EventMessageStatus       = "chat.message_status"
	EventUnlock              = "chat.unlock"
	EventConversationStarted = "chat.conversation_started"
	EventConversations       = "chat.conversations"
	EventMessages            = "chat.messages"
	EventSearchResults       = "chat.search_results"
	EventError               = "chat.error"
)

// InboundEvent is the union of all client payloads. Unused fields stay at
// their zero values; each handler reads only what its type defines.
type InboundEvent struct {
	Type           string  `json:"type"`
	ConversationID string  `json:"conversation_id,omitempty"`
	Content        string  `json:"content,omitempty"`
	Attachment     *string `json:"attachment,omitempty"`
	ReceiverID     string  `json:"receiver_id,omitempty"`
	UserID         string  `json:"user_id,omitempty"`
	IsTyping       bool    `json:"is_typing,omitempty"`
	MessageID      string  `json:"message_id,omitempty"`
	Keyword        string  `json:"keyword,omitempty"`
}

func decodeInbound(data []byte) (*InboundEvent, error) {
	var event InboundEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// MessageEvent carries a new or historical message to a participant.
type MessageEvent struct {
	Type    string             `json:"type"`
	Message *types.WireMessage `json:"message"`
}

// TypingEvent relays a typing indicator to the receiver. Never persisted.
type TypingEvent struct {
	Type     string `json:"type"`
	SenderID string `json:"sender_id"`
	IsTyping bool   `json:"is_typing"`
}

// ReadEvent tells other participants the reader has seen the conversation.
type ReadEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	ReaderID       string `json:"reader_id"`
}

// MessageStatusEvent tells a sender one of their messages changed state.
type MessageStatusEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// UnlockEvent rejects an operation that requires an unlocked contact.
type UnlockEvent struct {
	Type      string `json:"type"`
	StudentID string `json:"student_id"`
	TutorID   string `json:"tutor_id"`
	Message   string `json:"message"`
}

// ConversationStartedEvent returns the found-or-created conversation.
type ConversationStartedEvent struct {
	Type         string `json:"type"`
	Conversation struct {
		ID           string           `json:"id"`
		Participants []types.WireUser `json:"participants"`
	} `json:"conversation"`
}

// ConversationsEvent returns the caller's conversation list.
type ConversationsEvent struct {
	Type          string                       `json:"type"`
	Conversations []*types.ConversationSummary `json:"conversations"`
}

// MessagesEvent returns a conversation's history.
type MessagesEvent struct {
	Type     string               `json:"type"`
	Messages []*types.WireMessage `json:"messages"`
}

// SearchResultsEvent returns users matching a keyword search.
type SearchResultsEvent struct {
	Type    string           `json:"type"`
	Results []types.WireUser `json:"results"`
}

// ErrorEvent reports a failed operation without closing the connection.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func errorEvent(message string) *ErrorEvent {
	return &ErrorEvent{Type: EventError, Message: message}
}
