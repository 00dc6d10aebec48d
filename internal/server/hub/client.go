package hub

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/pnson1322/coursechat/internal/server/models"
)

// Client is one authenticated websocket session. Authentication happens
// during the HTTP upgrade, so UserID is always set.
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID string
	IP     string
}

func NewClient(h *Hub, conn *websocket.Conn, userID, ip string) *Client {
	return &Client{
		Hub:    h,
		Conn:   conn,
		Send:   make(chan []byte, 64),
		UserID: userID,
		IP:     ip,
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			break
		}

		var frame models.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.Hub.log.Debug("bad frame", "user_id", c.UserID, "err", err)
			continue
		}

		c.ProcessFrame(frame)
	}
}

func (c *Client) WritePump() {
	defer c.Conn.Close()
	for msg := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) ProcessFrame(frame models.Frame) {
	switch frame.Type {
	case models.MethodJoinConversation:
		var payload models.ConversationRef
		json.Unmarshal(frame.Payload, &payload)

		if _, err := c.Hub.Store.GetConversation(payload.ConversationID, c.UserID); err != nil {
			c.SendError("not a participant of this conversation")
			return
		}
		c.Hub.Join(c, payload.ConversationID)
		c.Hub.EmitToRoom(payload.ConversationID, c, models.EventUserJoined, models.Presence{
			ConversationID: payload.ConversationID,
			UserID:         c.UserID,
		})

	case models.MethodLeaveConversation:
		var payload models.ConversationRef
		json.Unmarshal(frame.Payload, &payload)

		c.Hub.Leave(c, payload.ConversationID)
		c.Hub.EmitToRoom(payload.ConversationID, c, models.EventUserLeft, models.Presence{
			ConversationID: payload.ConversationID,
			UserID:         c.UserID,
		})

	case models.MethodSendMessage:
		var payload models.SendMessagePayload
		json.Unmarshal(frame.Payload, &payload)

		conv, err := c.Hub.Store.GetConversation(payload.ConversationID, c.UserID)
		if err != nil {
			c.SendError("not a participant of this conversation")
			return
		}
		if conv.IsBlocked {
			c.SendError("conversation is blocked")
			return
		}

		msg, err := c.Hub.Store.SaveMessage(payload.ConversationID, c.UserID, payload.Content, payload.Attachments)
		if err != nil {
			c.Hub.log.Error("save message", "err", err)
			c.SendError("message could not be saved")
			return
		}

		c.Hub.DeliverMessage(conv, msg)

	case models.MethodUserTyping:
		var payload models.TypingPayload
		json.Unmarshal(frame.Payload, &payload)

		c.Hub.EmitToRoom(payload.ConversationID, c, models.EventUserTypingStatus, models.TypingStatus{
			ConversationID: payload.ConversationID,
			UserID:         c.UserID,
			IsTyping:       payload.IsTyping,
		})

	case models.MethodMarkAsRead:
		var payload models.ConversationRef
		json.Unmarshal(frame.Payload, &payload)

		if err := c.Hub.Store.MarkRead(c.UserID, payload.ConversationID); err != nil {
			c.Hub.log.Error("mark read", "err", err)
			return
		}
		c.Hub.EmitToRoom(payload.ConversationID, nil, models.EventMessagesMarkedAsRead, models.ReadReceipt{
			ConversationID: payload.ConversationID,
			UserID:         c.UserID,
		})
	}
}

func (c *Client) SendError(msg string) {
	data := marshalFrame(models.EventError, map[string]string{"error": msg})
	if data != nil {
		c.Send <- data
	}
}
