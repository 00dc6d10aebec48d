package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pnson1322/coursechat/internal/client/api"
)

// TempIDPrefix marks optimistic messages that have not been confirmed by
// the server yet.
const TempIDPrefix = "tmp-"

// IsTempID reports whether id belongs to an optimistic local echo.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// MessageWindow maintains the ordered message view of exactly one active
// conversation: backward pagination, forward realtime append, optimistic
// local echo of sends and de-duplication against server echoes. Messages
// are kept oldest to newest.
type MessageWindow struct {
	msgAPI MessageAPI
	rt     Invoker
	log    *slog.Logger
	selfID string

	mu           sync.Mutex
	conv         *api.Conversation
	messages     []api.Message
	page         int
	pageSize     int
	totalCount   int
	loadingOlder bool
	epoch        int
}

// NewMessageWindow returns a window with no active conversation.
func NewMessageWindow(msgAPI MessageAPI, rt Invoker, selfID string, pageSize int, log *slog.Logger) *MessageWindow {
	if pageSize <= 0 {
		pageSize = 30
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &MessageWindow{msgAPI: msgAPI, rt: rt, selfID: selfID, pageSize: pageSize, log: log}
}

// SetSelfID rebinds the window to a newly signed-in user, so own-echo
// detection matches the current session.
func (w *MessageWindow) SetSelfID(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selfID = id
}

// Open makes conv the active conversation: the previous room is left, the
// window is reset, page 1 is loaded, the new room is joined and the
// conversation is marked read. At most one conversation is active per
// session; room-join failures are logged, never fatal.
func (w *MessageWindow) Open(ctx context.Context, conv api.Conversation) error {
	w.mu.Lock()
	w.epoch++
	epoch := w.epoch
	var prevID string
	if w.conv != nil {
		prevID = w.conv.ID
	}
	c := conv
	w.conv = &c
	w.messages = nil
	w.page = 0
	w.totalCount = 0
	w.loadingOlder = false
	size := w.pageSize
	w.mu.Unlock()

	if prevID != "" && prevID != conv.ID {
		if err := w.rt.LeaveConversation(prevID); err != nil {
			w.log.Warn("leave room failed", "conversation_id", prevID, "error", err)
		}
	}
	if err := w.rt.JoinConversation(conv.ID); err != nil {
		w.log.Warn("join room failed", "conversation_id", conv.ID, "error", err)
	}

	page, err := w.msgAPI.ListMessages(ctx, conv.ID, 1, size)

	w.mu.Lock()
	if w.epoch != epoch {
		w.mu.Unlock()
		return nil
	}
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("load messages: %w", err)
	}
	w.messages = reverseChronological(page.Items)
	w.page = 1
	w.totalCount = page.TotalCount
	w.mu.Unlock()

	w.markRead(ctx, conv.ID)
	return nil
}

// Close deactivates the window and leaves the active room.
func (w *MessageWindow) Close() {
	w.mu.Lock()
	w.epoch++
	var prevID string
	if w.conv != nil {
		prevID = w.conv.ID
	}
	w.conv = nil
	w.messages = nil
	w.page = 0
	w.totalCount = 0
	w.loadingOlder = false
	w.mu.Unlock()

	if prevID != "" {
		if err := w.rt.LeaveConversation(prevID); err != nil {
			w.log.Warn("leave room failed", "conversation_id", prevID, "error", err)
		}
	}
}

// LoadOlder prepends the next older page and reports how many messages
// were added, so the caller can preserve the visual scroll offset. It is a
// no-op while a load is in flight or when the full history is loaded.
func (w *MessageWindow) LoadOlder(ctx context.Context) (int, error) {
	w.mu.Lock()
	if w.conv == nil || w.loadingOlder || !w.hasMoreLocked() {
		w.mu.Unlock()
		return 0, nil
	}
	w.loadingOlder = true
	epoch := w.epoch
	convID := w.conv.ID
	next := w.page + 1
	size := w.pageSize
	w.mu.Unlock()

	page, err := w.msgAPI.ListMessages(ctx, convID, next, size)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.epoch != epoch {
		return 0, nil
	}
	w.loadingOlder = false
	if err != nil {
		return 0, fmt.Errorf("load older messages: %w", err)
	}
	seen := make(map[string]struct{}, len(w.messages))
	for _, m := range w.messages {
		seen[m.ID] = struct{}{}
	}
	older := reverseChronological(page.Items)
	fresh := older[:0]
	for _, m := range older {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		fresh = append(fresh, m)
	}
	w.messages = append(append([]api.Message(nil), fresh...), w.messages...)
	w.page = next
	w.totalCount = page.TotalCount
	return len(fresh), nil
}

// Send delivers content to the active conversation. An optimistic echo is
// inserted immediately and resolved exactly once on every path: removed on
// realtime acknowledgment (the confirmed message arrives via push), removed
// after a successful REST fallback followed by a page-1 resync, or rolled
// back on failure, in which case the caller should restore the input.
func (w *MessageWindow) Send(ctx context.Context, content string, attachments []api.Attachment) error {
	content = strings.TrimSpace(content)
	if content == "" && len(attachments) == 0 {
		return ErrEmptyMessage
	}

	w.mu.Lock()
	if w.conv == nil {
		w.mu.Unlock()
		return ErrNoActiveConversation
	}
	if w.conv.IsBlocked {
		w.mu.Unlock()
		return ErrBlockedConversation
	}
	convID := w.conv.ID
	epoch := w.epoch
	temp := api.Message{
		ID:             TempIDPrefix + uuid.NewString(),
		ConversationID: convID,
		SenderID:       w.selfID,
		Content:        content,
		CreatedAt:      time.Now(),
		Attachments:    attachments,
	}
	w.messages = append(w.messages, temp)
	w.mu.Unlock()

	if err := w.rt.SendMessage(convID, content, attachments); err == nil {
		// Ack: the confirmed message comes back on the push channel.
		w.removeTemp(temp.ID, epoch)
		return nil
	}

	// Realtime channel unavailable; fall back to plain HTTP and resync
	// the first page so the window reflects server state.
	if _, err := w.msgAPI.SendMessage(ctx, convID, content, attachments); err != nil {
		w.removeTemp(temp.ID, epoch)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	w.removeTemp(temp.ID, epoch)
	if err := w.Reload(ctx); err != nil {
		w.log.Warn("resync after fallback send failed", "conversation_id", convID, "error", err)
	}
	return nil
}

// HandleIncoming appends a pushed message if it belongs to the active
// conversation, de-duplicating by id. A server echo of an own message also
// clears a matching optimistic entry in case it outruns the send
// acknowledgment. Messages for other conversations are ignored; the
// conversation list handles their badges.
func (w *MessageWindow) HandleIncoming(msg api.Message) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conv == nil || msg.ConversationID != w.conv.ID {
		return false
	}
	for _, m := range w.messages {
		if m.ID == msg.ID {
			return false
		}
	}
	if msg.SenderID == w.selfID {
		for i, m := range w.messages {
			if IsTempID(m.ID) && m.Content == msg.Content {
				w.messages = append(w.messages[:i], w.messages[i+1:]...)
				break
			}
		}
	}
	w.messages = append(w.messages, msg)
	w.totalCount++
	return true
}

// Reload refetches page 1 for the active conversation, replacing the
// loaded window. Used after reconnects and fallback sends, where
// incremental deltas cannot be trusted. Bumping the epoch here discards
// any older-page load in flight, so its stale cursor never lands on the
// fresh window.
func (w *MessageWindow) Reload(ctx context.Context) error {
	w.mu.Lock()
	if w.conv == nil {
		w.mu.Unlock()
		return nil
	}
	w.epoch++
	epoch := w.epoch
	w.loadingOlder = false
	convID := w.conv.ID
	size := w.pageSize
	w.mu.Unlock()

	page, err := w.msgAPI.ListMessages(ctx, convID, 1, size)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.epoch != epoch {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reload messages: %w", err)
	}
	w.messages = reverseChronological(page.Items)
	w.page = 1
	w.totalCount = page.TotalCount
	w.loadingOlder = false
	return nil
}

// Conversation returns the active conversation, or nil.
func (w *MessageWindow) Conversation() *api.Conversation {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conv == nil {
		return nil
	}
	c := *w.conv
	return &c
}

// Messages returns a copy of the loaded window, oldest first.
func (w *MessageWindow) Messages() []api.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]api.Message(nil), w.messages...)
}

// NewestID returns the id of the newest message. The UI scrolls to the
// bottom only when this value changes and no older-page load is running,
// so pagination and typing updates never jerk the viewport.
func (w *MessageWindow) NewestID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.messages) == 0 {
		return ""
	}
	return w.messages[len(w.messages)-1].ID
}

// HasMore reports whether older pages remain.
func (w *MessageWindow) HasMore() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hasMoreLocked()
}

// LoadingOlder reports whether an older-page load is in flight.
func (w *MessageWindow) LoadingOlder() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loadingOlder
}

func (w *MessageWindow) hasMoreLocked() bool {
	if w.page == 0 {
		return false
	}
	confirmed := 0
	for _, m := range w.messages {
		if !IsTempID(m.ID) {
			confirmed++
		}
	}
	return confirmed < w.totalCount
}

// removeTemp resolves an optimistic entry. The epoch guard keeps a late
// resolution from touching a window that was reopened meanwhile; the
// presence check makes resolution idempotent when the push echo already
// cleared the entry.
func (w *MessageWindow) removeTemp(tempID string, epoch int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.epoch != epoch {
		return
	}
	for i, m := range w.messages {
		if m.ID == tempID {
			w.messages = append(w.messages[:i], w.messages[i+1:]...)
			return
		}
	}
}

// markRead zeroes server-side unread state, both over REST and best effort
// on the realtime channel so the peer sees the receipt promptly.
func (w *MessageWindow) markRead(ctx context.Context, conversationID string) {
	if err := w.msgAPI.MarkConversationRead(ctx, conversationID); err != nil {
		w.log.Warn("mark read failed", "conversation_id", conversationID, "error", err)
	}
	if err := w.rt.MarkAsRead(conversationID); err != nil {
		w.log.Debug("realtime read receipt skipped", "conversation_id", conversationID, "error", err)
	}
}

// reverseChronological turns a newest-first server page into the
// oldest-first order the window keeps.
func reverseChronological(items []api.Message) []api.Message {
	out := append([]api.Message(nil), items...)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
