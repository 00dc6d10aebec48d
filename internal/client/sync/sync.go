// Package sync keeps client-side conversation state consistent with the
// marketplace chat backend. Each synchronizer owns its collection behind a
// mutex; mutation happens only through the operations defined here, fed by
// the realtime channel, the REST API and the UI.
package sync

import (
	"context"
	"errors"

	"github.com/pnson1322/coursechat/internal/client/api"
)

var (
	// ErrEmptyMessage rejects sends with no content and no attachments.
	ErrEmptyMessage = errors.New("sync: message is empty")
	// ErrBlockedConversation rejects sends on a blocked conversation
	// before any network call.
	ErrBlockedConversation = errors.New("sync: conversation is blocked")
	// ErrNoActiveConversation rejects operations that need an open window.
	ErrNoActiveConversation = errors.New("sync: no active conversation")
	// ErrSendFailed wraps a send that failed on both the realtime and the
	// fallback path. The optimistic entry has been rolled back; the caller
	// should restore the composed input.
	ErrSendFailed = errors.New("sync: send failed")
)

// ConversationLister fetches conversation pages from the backend.
type ConversationLister interface {
	ListConversations(ctx context.Context, page, size int, courseID *int64) (api.ConversationPage, error)
}

// MessageAPI is the REST surface the message window depends on.
type MessageAPI interface {
	ListMessages(ctx context.Context, conversationID string, page, size int) (api.MessagePage, error)
	SendMessage(ctx context.Context, conversationID, content string, attachments []api.Attachment) (api.Message, error)
	MarkConversationRead(ctx context.Context, conversationID string) error
}

// UnreadFetcher returns the authoritative unread-conversation count.
type UnreadFetcher interface {
	UnreadConversationCount(ctx context.Context) (int, error)
}

// Invoker is the realtime surface the synchronizers depend on. All calls
// are best effort; a failed invoke degrades to stale data, never to a
// broken UI.
type Invoker interface {
	JoinConversation(conversationID string) error
	LeaveConversation(conversationID string) error
	SendMessage(conversationID, content string, attachments []api.Attachment) error
	UserTyping(conversationID string, typing bool) error
	MarkAsRead(conversationID string) error
}
