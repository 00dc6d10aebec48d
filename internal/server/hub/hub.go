// Package hub fans push events out to connected chat clients. A client
// session always receives user-level notifications; room-level events
// (messages, typing, receipts) only reach sessions joined to that
// conversation.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pnson1322/coursechat/internal/server/models"
	"github.com/pnson1322/coursechat/internal/server/storage"
)

type Hub struct {
	Store *storage.Store
	log   *slog.Logger

	mu     sync.RWMutex
	byUser map[string]map[*Client]struct{}
	rooms  map[string]map[*Client]struct{}
}

func New(store *storage.Store, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		Store:  store,
		log:    log,
		byUser: make(map[string]map[*Client]struct{}),
		rooms:  make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byUser[c.UserID] == nil {
		h.byUser[c.UserID] = make(map[*Client]struct{})
	}
	h.byUser[c.UserID][c] = struct{}{}
	h.log.Info("client connected", "user_id", c.UserID)
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.byUser[c.UserID]; ok {
		if _, present := clients[c]; present {
			delete(clients, c)
			close(c.Send)
		}
		if len(clients) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.log.Info("client disconnected", "user_id", c.UserID)
}

func (h *Hub) Join(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[conversationID] == nil {
		h.rooms[conversationID] = make(map[*Client]struct{})
	}
	h.rooms[conversationID][c] = struct{}{}
}

func (h *Hub) Leave(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[conversationID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// RoomMembers returns the user ids currently joined to a conversation.
func (h *Hub) RoomMembers(conversationID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var ids []string
	for c := range h.rooms[conversationID] {
		ids = append(ids, c.UserID)
	}
	return ids
}

// EmitToRoom delivers an event to every session joined to a conversation,
// optionally skipping one client (usually the sender of a typing signal).
func (h *Hub) EmitToRoom(conversationID string, skip *Client, event string, payload any) {
	data := marshalFrame(event, payload)
	if data == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[conversationID] {
		if c == skip {
			continue
		}
		h.push(c, data)
	}
}

// EmitToUser delivers an event to every session of one user.
func (h *Hub) EmitToUser(userID string, event string, payload any) {
	data := marshalFrame(event, payload)
	if data == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byUser[userID] {
		h.push(c, data)
	}
}

// DeliverMessage fans a stored message out: everyone in the room gets
// receive_message, and the other participant additionally gets a
// new_message_notification carrying a conversation snapshot computed
// from their side (unread count, last message). Used by both the
// websocket send path and the HTTP fallback send.
func (h *Hub) DeliverMessage(conv *models.Conversation, msg *models.Message) {
	h.EmitToRoom(conv.ID, nil, models.EventReceiveMessage, msg)

	peerID := conv.BuyerID
	if msg.SenderID == conv.BuyerID {
		peerID = conv.SellerID
	}
	snapshot, err := h.Store.GetConversation(conv.ID, peerID)
	if err != nil {
		h.log.Error("conversation snapshot", "conversation_id", conv.ID, "err", err)
		snapshot = nil
	}
	h.EmitToUser(peerID, models.EventNewMessageNotification, models.Notification{
		Message:      *msg,
		Conversation: snapshot,
	})
}

// push delivers without blocking; a session that cannot keep up is
// dropped, its read pump will unregister it.
func (h *Hub) push(c *Client, data []byte) {
	select {
	case c.Send <- data:
	default:
		h.log.Warn("dropping slow client", "user_id", c.UserID)
		c.Conn.Close()
	}
}

func marshalFrame(event string, payload any) []byte {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	data, err := json.Marshal(models.Frame{Type: event, Payload: body})
	if err != nil {
		return nil
	}
	return data
}
