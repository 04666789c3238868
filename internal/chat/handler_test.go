package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"tutorboard/internal/auth"
	"tutorboard/internal/config"
	"tutorboard/internal/registry"
	"tutorboard/internal/store"
	"tutorboard/pkg/database"
	"tutorboard/pkg/types"
)

var testDBSeq atomic.Int64

const testSecret = "chat-test-secret"

type testEnv struct {
	store    *store.Store
	resolver *auth.JWTResolver
	server   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &database.Config{
		DatabasePath:    fmt.Sprintf("file:chat_test_%d?mode=memory&cache=shared", testDBSeq.Add(1)),
		MaxConnections:  4,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
	}
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	resolver := auth.NewJWTResolver(testSecret)
	handler := NewHandler(registry.New(), st, resolver, nil)
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)

	return &testEnv{store: st, resolver: resolver, server: server}
}

func (env *testEnv) seedUser(t *testing.T, id string, credits int) {
	t.Helper()
	ctx := context.Background()
	err := env.store.CreateUser(ctx, &types.User{ID: id, Username: "user-" + id, UserType: types.UserTypeStudent})
	if err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
	if credits > 0 {
		if err := env.store.AddCredits(ctx, id, credits); err != nil {
			t.Fatalf("failed to add credits for %s: %v", id, err)
		}
	}
}

func (env *testEnv) dial(t *testing.T, userID string) *gorillaws.Conn {
	t.Helper()

	token, err := env.resolver.Sign(&auth.Identity{
		UserID:   userID,
		Username: "user-" + userID,
		UserType: types.UserTypeStudent,
	}, time.Hour)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "?token=" + token
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial as %s: %v", userID, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *gorillaws.Conn, v interface{}) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("failed to send event: %v", err)
	}
}

// readEvent returns the next frame as a generic map, failing the test if
// nothing arrives in time.
func readEvent(t *testing.T, conn *gorillaws.Conn) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	var event map[string]interface{}
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("received invalid JSON: %v", err)
	}
	return event
}

func TestNewHandler_AppliesWebSocketConfig(t *testing.T) {
	cfg := &config.WebSocketConfig{
		PingInterval: 10 * time.Second,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 3 * time.Second,
		BufferSize:   42,
	}
	h := NewHandler(registry.New(), nil, nil, cfg)
	if h.pingInterval != cfg.PingInterval || h.readDeadline != cfg.ReadTimeout {
		t.Errorf("keepalive settings not applied: %+v", h)
	}
	if h.connConfig == nil || h.connConfig.BufferSize != 42 || h.connConfig.WriteTimeout != 3*time.Second {
		t.Errorf("connection settings not applied: %+v", h.connConfig)
	}

	def := NewHandler(registry.New(), nil, nil, nil)
	if def.readDeadline != defaultReadDeadline || def.pingInterval != defaultPingInterval {
		t.Error("nil config should keep the defaults")
	}
}

func TestHandleWebSocket_RejectsInvalidToken(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "?token=garbage"
	_, resp, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial with a bad token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 response, got %+v", resp)
	}
}

func TestStartConversation_RequiresUnlock(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", 0)
	env.seedUser(t, "bob", 0)

	conn := env.dial(t, "alice")
	send(t, conn, map[string]string{"type": EventStartConversation, "receiver_id": "bob"})

	event := readEvent(t, conn)
	if event["type"] != EventUnlock {
		t.Fatalf("expected %s, got %v", EventUnlock, event["type"])
	}
	if event["student_id"] != "alice" || event["tutor_id"] != "bob" {
		t.Errorf("unlock event names wrong parties: %v", event)
	}
}

func TestMessage_BlockedSendPersistsNothing(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", 0)
	env.seedUser(t, "bob", 0)
	ctx := context.Background()

	conv, err := env.store.FindOrCreateConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}

	conn := env.dial(t, "alice")
	send(t, conn, map[string]string{
		"type":            EventMessage,
		"conversation_id": conv.ID,
		"content":         "should not land",
	})

	event := readEvent(t, conn)
	if event["type"] != EventUnlock {
		t.Fatalf("expected %s, got %v", EventUnlock, event["type"])
	}

	msgs, err := env.store.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("failed to list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("blocked send must persist nothing, found %d messages", len(msgs))
	}
}

func TestMessage_EmptyContentDroppedSilently(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", 5)
	env.seedUser(t, "bob", 0)
	ctx := context.Background()

	if _, _, err := env.store.UnlockContact(ctx, "alice", "bob"); err != nil {
		t.Fatalf("failed to unlock contact: %v", err)
	}
	conv, err := env.store.FindOrCreateConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}

	conn := env.dial(t, "alice")
	send(t, conn, map[string]string{
		"type":            EventMessage,
		"conversation_id": conv.ID,
		"content":         "",
	})

	// Events are handled in order per connection, so the very next reply
	// proves the invalid message drew no error event.
	send(t, conn, map[string]string{"type": EventGetConversations})
	event := readEvent(t, conn)
	if event["type"] != EventConversations {
		t.Fatalf("empty message should draw no reply, got %v", event["type"])
	}

	msgs, err := env.store.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("failed to list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("empty message must persist nothing, found %d messages", len(msgs))
	}
}

func TestChatFlow_DeliveryAndReadReceipts(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", 5)
	env.seedUser(t, "bob", 0)
	ctx := context.Background()

	if _, _, err := env.store.UnlockContact(ctx, "alice", "bob"); err != nil {
		t.Fatalf("failed to unlock contact: %v", err)
	}

	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")

	// Start the conversation over the socket.
	send(t, alice, map[string]string{"type": EventStartConversation, "receiver_id": "bob"})
	started := readEvent(t, alice)
	if started["type"] != EventConversationStarted {
		t.Fatalf("expected %s, got %v", EventConversationStarted, started["type"])
	}
	convID := started["conversation"].(map[string]interface{})["id"].(string)

	// Alice sends; bob receives the fan-out, alice the echo.
	send(t, alice, map[string]string{
		"type":            EventMessage,
		"conversation_id": convID,
		"content":         "hello bob",
	})

	bobEvent := readEvent(t, bob)
	if bobEvent["type"] != EventMessage {
		t.Fatalf("bob expected %s, got %v", EventMessage, bobEvent["type"])
	}
	bobMsg := bobEvent["message"].(map[string]interface{})
	if bobMsg["content"] != "hello bob" {
		t.Errorf("bob got content %v", bobMsg["content"])
	}
	// Recipient view carries the recipient's own read-state.
	if bobMsg["status"] != types.ReadStatusSent {
		t.Errorf("bob's copy should carry status sent, got %v", bobMsg["status"])
	}

	aliceEcho := readEvent(t, alice)
	if aliceEcho["type"] != EventMessage {
		t.Fatalf("alice expected echo %s, got %v", EventMessage, aliceEcho["type"])
	}

	// Bob reads; alice gets the read event, then the per-message status.
	send(t, bob, map[string]string{"type": EventRead, "conversation_id": convID})

	readEvt := readEvent(t, alice)
	if readEvt["type"] != EventRead {
		t.Fatalf("expected %s, got %v", EventRead, readEvt["type"])
	}
	if readEvt["reader_id"] != "bob" || readEvt["conversation_id"] != convID {
		t.Errorf("read event mismatch: %v", readEvt)
	}

	statusEvt := readEvent(t, alice)
	if statusEvt["type"] != EventMessageStatus {
		t.Fatalf("expected %s, got %v", EventMessageStatus, statusEvt["type"])
	}
	if statusEvt["status"] != types.ReadStatusSeen {
		t.Errorf("expected status seen, got %v", statusEvt["status"])
	}
}

func TestSearchUsers_OverSocket(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", 0)
	env.seedUser(t, "bobby", 0)
	env.seedUser(t, "bobcat", 0)

	conn := env.dial(t, "alice")
	send(t, conn, map[string]string{"type": EventSearchUser, "keyword": "bob"})

	event := readEvent(t, conn)
	if event["type"] != EventSearchResults {
		t.Fatalf("expected %s, got %v", EventSearchResults, event["type"])
	}
	results := event["results"].([]interface{})
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
}

func TestUnknownEventType_Ignored(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", 0)

	conn := env.dial(t, "alice")
	send(t, conn, map[string]string{"type": "chat.bogus"})

	// The connection stays healthy and keeps serving known events.
	send(t, conn, map[string]string{"type": EventGetConversations})
	event := readEvent(t, conn)
	if event["type"] != EventConversations {
		t.Fatalf("expected %s after ignored event, got %v", EventConversations, event["type"])
	}
}
