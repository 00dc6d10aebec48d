package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pnson1322/coursechat/internal/client/api"
)

// ConversationList maintains the ordered, paginated conversation view of
// the current seller: most-recently-active first, one unread counter per
// conversation, optionally scoped to a single course.
type ConversationList struct {
	lister ConversationLister
	log    *slog.Logger

	mu         sync.Mutex
	items      []api.Conversation
	page       int
	pageSize   int
	totalCount int
	loading    bool
	filter     *int64
	activeID   string
	epoch      int
}

// NewConversationList returns an empty list backed by the given API.
func NewConversationList(lister ConversationLister, pageSize int, log *slog.Logger) *ConversationList {
	if pageSize <= 0 {
		pageSize = 20
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &ConversationList{lister: lister, pageSize: pageSize, log: log}
}

// LoadFirstPage replaces the list with page 1 of the current scope and
// resets the pagination cursor. Any in-flight load for an older scope is
// discarded when it resolves.
func (l *ConversationList) LoadFirstPage(ctx context.Context) error {
	l.mu.Lock()
	l.epoch++
	epoch := l.epoch
	filter := l.filter
	l.loading = true
	size := l.pageSize
	l.mu.Unlock()

	page, err := l.lister.ListConversations(ctx, 1, size, filter)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.epoch != epoch {
		// Superseded by a scope switch; drop the result.
		return nil
	}
	l.loading = false
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	l.items = append([]api.Conversation(nil), page.Items...)
	l.page = 1
	l.totalCount = page.TotalCount
	return nil
}

// LoadNextPage appends the next page. It is a no-op while a load is in
// flight or when every conversation is already loaded. Entries whose id is
// already present (inserted meanwhile by a push event) are skipped.
func (l *ConversationList) LoadNextPage(ctx context.Context) error {
	l.mu.Lock()
	if l.loading || !l.hasMoreLocked() {
		l.mu.Unlock()
		return nil
	}
	l.loading = true
	epoch := l.epoch
	next := l.page + 1
	filter := l.filter
	size := l.pageSize
	l.mu.Unlock()

	page, err := l.lister.ListConversations(ctx, next, size, filter)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.epoch != epoch {
		return nil
	}
	l.loading = false
	if err != nil {
		return fmt.Errorf("load conversations page %d: %w", next, err)
	}
	seen := make(map[string]struct{}, len(l.items))
	for _, c := range l.items {
		seen[c.ID] = struct{}{}
	}
	for _, c := range page.Items {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		l.items = append(l.items, c)
	}
	l.page = next
	l.totalCount = page.TotalCount
	return nil
}

// FilterByCourse switches the course scope and reloads page 1. Passing nil
// clears the scope.
func (l *ConversationList) FilterByCourse(ctx context.Context, courseID *int64) error {
	l.mu.Lock()
	l.filter = courseID
	l.mu.Unlock()
	return l.LoadFirstPage(ctx)
}

// ApplyIncoming folds a pushed message into the list: the owning
// conversation moves to the front with refreshed last-message fields, and
// its unread counter grows unless the conversation is currently open. A
// message for an unknown conversation is synthesized from hint, but only
// when it matches the active course scope; otherwise it is dropped so a
// filtered view never leaks entries from other courses.
func (l *ConversationList) ApplyIncoming(msg api.Message, hint *api.Conversation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, c := range l.items {
		if c.ID != msg.ConversationID {
			continue
		}
		copy(l.items[i:], l.items[i+1:])
		l.items = l.items[:len(l.items)-1]

		c.LastMessage = msg.Content
		c.LastMessageAt = msg.CreatedAt
		if c.ID != l.activeID {
			c.UnreadCount++
		}
		l.items = append([]api.Conversation{c}, l.items...)
		return
	}

	if hint == nil || hint.ID != msg.ConversationID {
		return
	}
	if l.filter != nil && hint.CourseID != *l.filter {
		l.log.Debug("dropping conversation outside course scope",
			"conversation_id", hint.ID, "course_id", hint.CourseID)
		return
	}
	c := *hint
	c.LastMessage = msg.Content
	c.LastMessageAt = msg.CreatedAt
	if c.ID != l.activeID {
		if c.UnreadCount == 0 {
			c.UnreadCount = 1
		}
	} else {
		c.UnreadCount = 0
	}
	l.items = append([]api.Conversation{c}, l.items...)
	l.totalCount++
}

// SetActive records which conversation is open and zeroes its unread
// counter. Pass "" when no conversation is open.
func (l *ConversationList) SetActive(conversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeID = conversationID
	if conversationID == "" {
		return
	}
	for i := range l.items {
		if l.items[i].ID == conversationID {
			l.items[i].UnreadCount = 0
			return
		}
	}
}

// MarkRead zeroes the unread counter of one conversation.
func (l *ConversationList) MarkRead(conversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == conversationID {
			l.items[i].UnreadCount = 0
			return
		}
	}
}

// Items returns a copy of the current ordering.
func (l *ConversationList) Items() []api.Conversation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]api.Conversation(nil), l.items...)
}

// HasMore reports whether further pages remain.
func (l *ConversationList) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasMoreLocked()
}

// Loading reports whether a page load is in flight.
func (l *ConversationList) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// Filter returns the active course scope, or nil.
func (l *ConversationList) Filter() *int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filter
}

// hasMoreLocked derives "has more" from the authoritative total count,
// never from a page-full heuristic.
func (l *ConversationList) hasMoreLocked() bool {
	if l.page == 0 {
		return true
	}
	return len(l.items) < l.totalCount
}
