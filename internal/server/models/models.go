package models

import "time"

// User is a marketplace account able to chat (buyer or seller).
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Attachment is a file reference carried by a message.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Message is a stored chat message.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	Content        string       `json:"content"`
	CreatedAt      time.Time    `json:"created_at"`
	IsRead         bool         `json:"is_read"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// Conversation is a buyer/seller thread scoped to one course, with the
// denormalized fields the client list view renders.
type Conversation struct {
	ID            string    `json:"id"`
	CourseID      int64     `json:"course_id"`
	CourseTitle   string    `json:"course_title,omitempty"`
	BuyerID       string    `json:"buyer_id"`
	BuyerName     string    `json:"buyer_name,omitempty"`
	BuyerAvatar   string    `json:"buyer_avatar,omitempty"`
	SellerID      string    `json:"seller_id"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	UnreadCount   int       `json:"unread_count"`
	IsBlocked     bool      `json:"is_blocked"`
}

// ConversationPage is the paginated envelope of the conversation listing.
type ConversationPage struct {
	Items      []Conversation `json:"items"`
	TotalCount int            `json:"total_count"`
}

// MessagePage is the paginated envelope of the message listing.
type MessagePage struct {
	Items      []Message `json:"items"`
	TotalCount int       `json:"total_count"`
}
