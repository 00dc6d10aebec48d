package realtime

import (
	"encoding/json"

	"github.com/pnson1322/coursechat/internal/client/api"
)

// Push events delivered by the hub.
const (
	EventReceiveMessage         = "receive_message"
	EventNewMessageNotification = "new_message_notification"
	EventUserTypingStatus       = "user_typing_status"
	EventUserJoined             = "user_joined"
	EventUserLeft               = "user_left"
	EventMessagesMarkedAsRead   = "messages_marked_as_read"
)

// Methods invoked on the hub.
const (
	MethodJoinConversation  = "join_conversation"
	MethodLeaveConversation = "leave_conversation"
	MethodSendMessage       = "send_message"
	MethodUserTyping        = "user_typing"
	MethodMarkAsRead        = "mark_as_read"
)

// Frame is the wire envelope for both directions.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SendMessagePayload is the body of a send_message invoke.
type SendMessagePayload struct {
	ConversationID string           `json:"conversation_id"`
	Content        string           `json:"content"`
	Attachments    []api.Attachment `json:"attachments,omitempty"`
}

// ConversationRef addresses a single conversation.
type ConversationRef struct {
	ConversationID string `json:"conversation_id"`
}

// TypingPayload is the body of a user_typing invoke.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

// TypingStatus is the body of a user_typing_status event.
type TypingStatus struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

// Presence is the body of user_joined and user_left events.
type Presence struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// ReadReceipt is the body of a messages_marked_as_read event.
type ReadReceipt struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// Notification is the body of a new_message_notification event. The
// conversation snapshot lets a client synthesize a list entry it has
// never fetched.
type Notification struct {
	Message      api.Message       `json:"message"`
	Conversation *api.Conversation `json:"conversation,omitempty"`
}
