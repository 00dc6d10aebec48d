package api

import "time"

// Attachment is a file attached to a message.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Message is a single chat message as served by the hub backend.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	Content        string       `json:"content"`
	CreatedAt      time.Time    `json:"created_at"`
	IsRead         bool         `json:"is_read"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// Conversation is a buyer/seller chat thread scoped to a course.
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

// LoginResult is the response of a successful credential exchange.
type LoginResult struct {
	Token       string `json:"token"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// ConversationPage is one page of a conversation listing.
type ConversationPage struct {
	Items      []Conversation `json:"items"`
	TotalCount int            `json:"total_count"`
}

// MessagePage is one page of a message listing, newest first.
type MessagePage struct {
	Items      []Message `json:"items"`
	TotalCount int       `json:"total_count"`
}
