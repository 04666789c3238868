package chat

import (
	"encoding/json"
	"testing"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    InboundEvent
		wantErr bool
	}{
		{
			name:    "chat message",
			payload: `{"type":"chat.message","conversation_id":"c1","content":"hi"}`,
			want:    InboundEvent{Type: EventMessage, ConversationID: "c1", Content: "hi"},
		},
		{
			name:    "typing",
			payload: `{"type":"chat.typing","receiver_id":"u2","is_typing":true}`,
			want:    InboundEvent{Type: EventTyping, ReceiverID: "u2", IsTyping: true},
		},
		{
			name:    "read",
			payload: `{"type":"chat.read","conversation_id":"c1"}`,
			want:    InboundEvent{Type: EventRead, ConversationID: "c1"},
		},
		{
			name:    "delivered",
			payload: `{"type":"chat.delivered","message_id":"m1"}`,
			want:    InboundEvent{Type: EventDelivered, MessageID: "m1"},
		},
		{
			name:    "search",
			payload: `{"type":"chat.search_user","keyword":"ali"}`,
			want:    InboundEvent{Type: EventSearchUser, Keyword: "ali"},
		},
		{
			name:    "start conversation via user_id",
			payload: `{"type":"chat.start_conversation","user_id":"u2"}`,
			want:    InboundEvent{Type: EventStartConversation, UserID: "u2"},
		},
		{
			name:    "unknown type still decodes",
			payload: `{"type":"chat.whatever"}`,
			want:    InboundEvent{Type: "chat.whatever"},
		},
		{
			name:    "malformed json",
			payload: `{"type":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeInbound([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected decode error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if *got != tt.want {
				t.Errorf("got %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestOutboundEventShapes(t *testing.T) {
	data, err := json.Marshal(&UnlockEvent{
		Type:      EventUnlock,
		StudentID: "s1",
		TutorID:   "t1",
		Message:   "Unlock contact to send messages.",
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var got map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for key, want := range map[string]string{
		"type":       "chat.unlock",
		"student_id": "s1",
		"tutor_id":   "t1",
	} {
		if got[key] != want {
			t.Errorf("field %s = %q, want %q", key, got[key], want)
		}
	}
}
