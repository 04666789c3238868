package chat

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"tutorboard/internal/auth"
	"tutorboard/internal/config"
	"tutorboard/internal/registry"
	"tutorboard/internal/store"
	"tutorboard/internal/websocket"
	"tutorboard/pkg/types"
)

var upgrader = gorillaws.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is delegated to the deployment's reverse proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

const (
	defaultReadDeadline = 60 * time.Second
	defaultPingInterval = 30 * time.Second
	cleanupInterval     = 5 * time.Minute
)

// Handler owns the chat protocol: it authenticates connections, runs one
// read loop per connection and dispatches inbound events against the store
// and the registry.
type Handler struct {
	registry *registry.Registry
	store    Store
	resolver auth.Resolver
	limiter  *RateLimiter

	readDeadline time.Duration
	pingInterval time.Duration
	connConfig   *websocket.Config
}

// NewHandler builds the chat handler. A nil cfg uses the package defaults.
func NewHandler(reg *registry.Registry, st Store, resolver auth.Resolver, cfg *config.WebSocketConfig) *Handler {
	h := &Handler{
		registry:     reg,
		store:        st,
		resolver:     resolver,
		limiter:      NewRateLimiter(),
		readDeadline: defaultReadDeadline,
		pingInterval: defaultPingInterval,
	}
	if cfg != nil {
		h.readDeadline = cfg.ReadTimeout
		h.pingInterval = cfg.PingInterval
		h.connConfig = &websocket.Config{
			WriteTimeout: cfg.WriteTimeout,
			BufferSize:   cfg.BufferSize,
		}
	}
	return h
}

// StartCleanup prunes stale rate-limiter state until ctx is cancelled.
func (h *Handler) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.limiter.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// HandleWebSocket upgrades the request and runs the connection lifecycle.
// The token travels as a query parameter because browsers cannot set
// headers on websocket dials. Authentication happens before the upgrade so
// rejected clients get a real HTTP status.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	identity, err := h.resolver.Resolve(token)
	if err != nil {
		http.Error(w, "Invalid or missing token", http.StatusUnauthorized)
		return
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	conn := websocket.NewConnection(raw, h.connConfig)
	if err := conn.Authenticate(identity.UserID, identity.Username, identity.UserType); err != nil {
		log.Printf("failed to authenticate connection: %v", err)
		_ = conn.Close()
		return
	}
	if err := h.registry.Register(conn); err != nil {
		log.Printf("failed to register connection: %v", err)
		_ = conn.Close()
		return
	}
	if err := conn.Activate(); err != nil {
		h.registry.Unregister(conn)
		_ = conn.Close()
		return
	}

	go h.handleConnection(conn)
}

// handleConnection runs the read loop with ping/pong keepalive. It returns,
// unregistering and closing the connection, when the peer goes away or the
// socket errors.
func (h *Handler) handleConnection(conn *websocket.Connection) {
	defer func() {
		h.registry.Unregister(conn)
		_ = conn.Close()
	}()

	if err := conn.SetReadDeadline(time.Now().Add(h.readDeadline)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.readDeadline))
	})

	go func() {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.Ping(); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if gorillaws.IsUnexpectedCloseError(err, gorillaws.CloseGoingAway, gorillaws.CloseNormalClosure) {
				log.Printf("websocket read error for user %s: %v", conn.UserID(), err)
			}
			return
		}
		if messageType != gorillaws.TextMessage {
			continue
		}

		if !h.limiter.Allow(conn.UserID()) {
			_ = conn.WriteJSON(errorEvent("rate limit exceeded"))
			continue
		}

		h.dispatch(conn, data)
	}
}

// dispatch decodes one inbound frame and routes it. A handler panic is
// converted to a generic error event; only the socket itself can kill the
// connection.
func (h *Handler) dispatch(conn *websocket.Connection, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic handling event from user %s: %v", conn.UserID(), r)
			_ = conn.WriteJSON(errorEvent("internal error"))
		}
	}()

	event, err := decodeInbound(data)
	if err != nil {
		// Malformed frames are dropped without a reply.
		return
	}

	ctx := context.Background()

	switch event.Type {
	case EventMessage:
		h.handleMessage(ctx, conn, event)
	case EventTyping:
		h.handleTyping(conn, event)
	case EventRead:
		h.handleRead(ctx, conn, event)
	case EventDelivered:
		h.handleDelivered(ctx, conn, event)
	case EventSearchUser:
		h.handleSearch(ctx, conn, event)
	case EventStartConversation:
		h.handleStartConversation(ctx, conn, event)
	case EventGetConversations:
		h.handleGetConversations(ctx, conn)
	case EventGetMessages:
		h.handleGetMessages(ctx, conn, event)
	default:
		log.Printf("dropping unknown event type %q from user %s", event.Type, conn.UserID())
	}
}

// handleMessage persists and fans out a chat message. The unlock gate is
// checked against every recipient before anything is written: a blocked
// send stores nothing and answers with an unlock event instead.
func (h *Handler) handleMessage(ctx context.Context, conn *websocket.Connection, event *InboundEvent) {
	if event.ConversationID == "" {
		return
	}
	senderID := conn.UserID()

	others, err := h.store.OtherParticipantIDs(ctx, event.ConversationID, senderID)
	if err != nil {
		h.sendStoreError(conn, err)
		return
	}

	for _, receiverID := range others {
		unlocked, err := h.store.IsContactUnlocked(ctx, senderID, receiverID)
		if err != nil {
			h.sendStoreError(conn, err)
			return
		}
		if !unlocked {
			_ = conn.WriteJSON(&UnlockEvent{
				Type:      EventUnlock,
				StudentID: senderID,
				TutorID:   receiverID,
				Message:   "Unlock contact to send messages.",
			})
			return
		}
	}

	msg, err := h.store.AppendMessage(ctx, event.ConversationID, senderID, event.Content, event.Attachment, false)
	if err != nil {
		// Invalid payloads are dropped without a reply, like malformed frames.
		if errors.Is(err, types.ErrEmptyMessage) || errors.Is(err, types.ErrContentTooLarge) {
			return
		}
		h.sendStoreError(conn, err)
		return
	}

	for _, receiverID := range others {
		wire, err := wireMessage(ctx, h.store, msg, receiverID)
		if err != nil {
			log.Printf("failed to serialize message %s for user %s: %v", msg.ID, receiverID, err)
			continue
		}
		h.registry.SendToUser(receiverID, &MessageEvent{Type: EventMessage, Message: wire})
	}

	// Echo to every connection the sender holds, this one included.
	wire, err := wireMessage(ctx, h.store, msg, senderID)
	if err != nil {
		h.sendStoreError(conn, err)
		return
	}
	if !h.registry.SendToUser(senderID, &MessageEvent{Type: EventMessage, Message: wire}) {
		_ = conn.WriteJSON(&MessageEvent{Type: EventMessage, Message: wire})
	}
}

// handleTyping relays a typing indicator. Nothing is persisted and an
// offline receiver is not an error.
func (h *Handler) handleTyping(conn *websocket.Connection, event *InboundEvent) {
	if event.ReceiverID == "" {
		return
	}
	h.registry.SendToUser(event.ReceiverID, &TypingEvent{
		Type:     EventTyping,
		SenderID: conn.UserID(),
		IsTyping: event.IsTyping,
	})
}

// handleRead marks the conversation seen and runs two independent fan-outs:
// a read event to every other participant, and a per-message status event
// to the sender of each message that just transitioned.
func (h *Handler) handleRead(ctx context.Context, conn *websocket.Connection, event *InboundEvent) {
	if event.ConversationID == "" {
		return
	}
	readerID := conn.UserID()

	newlySeen, err := h.store.MarkSeen(ctx, event.ConversationID, readerID)
	if err != nil {
		h.sendStoreError(conn, err)
		return
	}

	others, err := h.store.OtherParticipantIDs(ctx, event.ConversationID, readerID)
	if err != nil {
		h.sendStoreError(conn, err)
		return
	}
	for _, pid := range others {
		h.registry.SendToUser(pid, &ReadEvent{
			Type:           EventRead,
			ConversationID: event.ConversationID,
			ReaderID:       readerID,
		})
	}

	for _, messageID := range newlySeen {
		msg, err := h.store.GetMessage(ctx, messageID)
		if err != nil {
			continue
		}
		h.registry.SendToUser(msg.SenderID, &MessageStatusEvent{
			Type:      EventMessageStatus,
			MessageID: messageID,
			Status:    types.ReadStatusSeen,
		})
	}
}

// handleDelivered records delivery for the current user. No fan-out: live
// status pushes happen only on seen, senders observe delivered state when
// they fetch history.
func (h *Handler) handleDelivered(ctx context.Context, conn *websocket.Connection, event *InboundEvent) {
	if event.MessageID == "" {
		return
	}
	if err := h.store.MarkDelivered(ctx, event.MessageID, conn.UserID()); err != nil {
		h.sendStoreError(conn, err)
	}
}

func (h *Handler) handleSearch(ctx context.Context, conn *websocket.Connection, event *InboundEvent) {
	users, err := h.store.SearchUsers(ctx, event.Keyword, conn.UserID(), 0)
	if err != nil {
		h.sendStoreError(conn, err)
		return
	}

	results := make([]types.WireUser, 0, len(users))
	for _, user := range users {
		results = append(results, types.WireUser{ID: user.ID, Username: user.Username})
	}
	_ = conn.WriteJSON(&SearchResultsEvent{Type: EventSearchResults, Results: results})
}

// handleStartConversation gates conversation creation behind the unlock
// check, then finds or creates the thread and returns its summary.
func (h *Handler) handleStartConversation(ctx context.Context, conn *websocket.Connection, event *InboundEvent) {
	otherID := event.ReceiverID
	if otherID == "" {
		otherID = event.UserID
	}
	if otherID == "" || otherID == conn.UserID() {
		return
	}

	unlocked, err := h.store.IsContactUnlocked(ctx, conn.UserID(), otherID)
	if err != nil {
		h.sendStoreError(conn, err)
		return
	}
	if !unlocked {
		_ = conn.WriteJSON(&UnlockEvent{
			Type:      EventUnlock,
			StudentID: conn.UserID(),
			TutorID:   otherID,
			Message:   "Contact not unlocked. Unlock required to start a conversation.",
		})
		return
	}

	conv, err := h.store.FindOrCreateConversation(ctx, conn.UserID(), otherID)
	if err != nil {
		h.sendStoreError(conn, err)
		return
	}

	reply := &ConversationStartedEvent{Type: EventConversationStarted}
	reply.Conversation.ID = conv.ID
	for _, p := range conv.Participants {
		reply.Conversation.Participants = append(reply.Conversation.Participants,
			types.WireUser{ID: p.UserID, Username: p.Username})
	}
	_ = conn.WriteJSON(reply)
}

func (h *Handler) handleGetConversations(ctx context.Context, conn *websocket.Connection) {
	summaries, err := h.store.ListConversations(ctx, conn.UserID())
	if err != nil {
		h.sendStoreError(conn, err)
		return
	}
	if summaries == nil {
		summaries = []*types.ConversationSummary{}
	}
	_ = conn.WriteJSON(&ConversationsEvent{Type: EventConversations, Conversations: summaries})
}

func (h *Handler) handleGetMessages(ctx context.Context, conn *websocket.Connection, event *InboundEvent) {
	if event.ConversationID == "" {
		return
	}
	msgs, err := h.store.ListMessages(ctx, event.ConversationID)
	if err != nil {
		h.sendStoreError(conn, err)
		return
	}
	wires, err := wireMessages(ctx, h.store, msgs, conn.UserID())
	if err != nil {
		h.sendStoreError(conn, err)
		return
	}
	_ = conn.WriteJSON(&MessagesEvent{Type: EventMessages, Messages: wires})
}

// sendStoreError maps storage failures onto client-visible events. Typed
// failures get their message; anything else is logged and reported
// generically.
func (h *Handler) sendStoreError(conn *websocket.Connection, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrNotParticipant),
		errors.Is(err, store.ErrSelfConversation),
		errors.Is(err, store.ErrInsufficientCredits):
		_ = conn.WriteJSON(errorEvent(err.Error()))
	case errors.Is(err, store.ErrConflict):
		_ = conn.WriteJSON(errorEvent("temporary storage conflict, please retry"))
	default:
		log.Printf("storage error for user %s: %v", conn.UserID(), err)
		_ = conn.WriteJSON(errorEvent("internal error"))
	}
}
