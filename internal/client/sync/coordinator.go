package sync

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pnson1322/coursechat/internal/client/api"
	"github.com/pnson1322/coursechat/internal/client/realtime"
)

// Backend is the full REST surface the coordinator wires up.
type Backend interface {
	ConversationLister
	MessageAPI
	UnreadFetcher
}

// EventSource registers push-event handlers and reconnect hooks. The
// realtime manager implements it.
type EventSource interface {
	Handle(event string, h realtime.Handler)
	OnReconnect(fn func())
}

// CoordinatorConfig collects the coordinator's dependencies.
type CoordinatorConfig struct {
	Events  EventSource
	Invoker Invoker
	Backend Backend
	SelfID  string
	// Notify wakes the UI after state changed from a push event or timer.
	Notify func()
	Logger *slog.Logger

	ConversationPageSize int
	MessagePageSize      int
}

// Coordinator owns the synchronizers of one chat session and routes push
// events to them. After a reconnect it reloads everything instead of
// trusting incremental deltas, since events during the gap are lost.
type Coordinator struct {
	Conversations *ConversationList
	Window        *MessageWindow
	Typing        *TypingTracker
	Unread        *UnreadCounter

	rt     Invoker
	log    *slog.Logger
	notify func()

	mu     sync.Mutex
	selfID string
}

// NewCoordinator builds the synchronizers and subscribes to the hub's
// push events.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	notify := cfg.Notify
	if notify == nil {
		notify = func() {}
	}
	c := &Coordinator{
		Conversations: NewConversationList(cfg.Backend, cfg.ConversationPageSize, log),
		Window:        NewMessageWindow(cfg.Backend, cfg.Invoker, cfg.SelfID, cfg.MessagePageSize, log),
		Typing:        NewTypingTracker(cfg.Invoker, notify, log),
		Unread:        NewUnreadCounter(cfg.Backend, notify, log),
		rt:            cfg.Invoker,
		log:           log,
		notify:        notify,
		selfID:        cfg.SelfID,
	}

	cfg.Events.Handle(realtime.EventReceiveMessage, c.onReceiveMessage)
	cfg.Events.Handle(realtime.EventNewMessageNotification, c.onNotification)
	cfg.Events.Handle(realtime.EventUserTypingStatus, c.onTypingStatus)
	cfg.Events.Handle(realtime.EventUserJoined, c.onPresence)
	cfg.Events.Handle(realtime.EventUserLeft, c.onPresence)
	cfg.Events.Handle(realtime.EventMessagesMarkedAsRead, c.onMarkedRead)
	cfg.Events.OnReconnect(c.Resync)
	return c
}

// SetSelfID rebinds the coordinator to a newly signed-in user. Event
// subscriptions on the realtime manager cannot be unregistered, so callers
// build one coordinator per process and rebind it here instead of
// constructing a second one that would stay subscribed forever.
func (c *Coordinator) SetSelfID(id string) {
	c.mu.Lock()
	c.selfID = id
	c.mu.Unlock()
	c.Window.SetSelfID(id)
}

func (c *Coordinator) self() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID
}

// Start performs the initial load: conversation page 1 and the unread
// count.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.Conversations.LoadFirstPage(ctx); err != nil {
		return err
	}
	if err := c.Unread.Refresh(ctx); err != nil {
		c.log.Warn("initial unread refresh failed", "error", err)
	}
	return nil
}

// OpenConversation switches the active conversation: the window leaves the
// old room, joins the new one, loads page 1 and marks it read; badges and
// typing state follow.
func (c *Coordinator) OpenConversation(ctx context.Context, conv api.Conversation) error {
	c.Typing.Reset()
	c.Conversations.SetActive(conv.ID)
	if err := c.Window.Open(ctx, conv); err != nil {
		return err
	}
	if err := c.Unread.Refresh(ctx); err != nil {
		c.log.Warn("unread refresh failed", "error", err)
	}
	return nil
}

// CloseConversation leaves the active room and clears the window.
func (c *Coordinator) CloseConversation() {
	c.Typing.Reset()
	c.Conversations.SetActive("")
	c.Window.Close()
}

// Send delivers a message to the active conversation (see
// MessageWindow.Send for the optimistic-echo contract).
func (c *Coordinator) Send(ctx context.Context, content string, attachments []api.Attachment) error {
	c.Typing.InputCleared()
	return c.Window.Send(ctx, content, attachments)
}

// Resync reloads conversation list, active message window and unread count
// from scratch, and rejoins the active room. Bound to the manager's
// reconnect hook.
func (c *Coordinator) Resync() {
	ctx := context.Background()
	if err := c.Conversations.LoadFirstPage(ctx); err != nil {
		c.log.Warn("resync conversations failed", "error", err)
	}
	if conv := c.Window.Conversation(); conv != nil {
		if err := c.rt.JoinConversation(conv.ID); err != nil {
			c.log.Warn("rejoin room failed", "conversation_id", conv.ID, "error", err)
		}
		if err := c.Window.Reload(ctx); err != nil {
			c.log.Warn("resync window failed", "error", err)
		}
	}
	if err := c.Unread.Refresh(ctx); err != nil {
		c.log.Warn("resync unread failed", "error", err)
	}
	c.notify()
}

func (c *Coordinator) onReceiveMessage(payload json.RawMessage) {
	var msg api.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.log.Warn("bad receive_message payload", "error", err)
		return
	}
	c.Window.HandleIncoming(msg)
	c.Conversations.ApplyIncoming(msg, nil)
	c.notify()
}

func (c *Coordinator) onNotification(payload json.RawMessage) {
	var n realtime.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		c.log.Warn("bad notification payload", "error", err)
		return
	}
	c.Conversations.ApplyIncoming(n.Message, n.Conversation)
	if err := c.Unread.Refresh(context.Background()); err != nil {
		c.log.Warn("unread refresh failed", "error", err)
	}
	c.notify()
}

func (c *Coordinator) onTypingStatus(payload json.RawMessage) {
	var st realtime.TypingStatus
	if err := json.Unmarshal(payload, &st); err != nil {
		c.log.Warn("bad typing payload", "error", err)
		return
	}
	if st.UserID == c.self() {
		return
	}
	conv := c.Window.Conversation()
	if conv == nil || conv.ID != st.ConversationID {
		return
	}
	c.Typing.SetStatus(st.UserID, st.IsTyping)
}

func (c *Coordinator) onPresence(payload json.RawMessage) {
	var p realtime.Presence
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	c.log.Debug("presence event", "conversation_id", p.ConversationID, "user_id", p.UserID)
}

func (c *Coordinator) onMarkedRead(payload json.RawMessage) {
	var r realtime.ReadReceipt
	if err := json.Unmarshal(payload, &r); err != nil {
		return
	}
	if r.UserID == c.self() {
		c.Conversations.MarkRead(r.ConversationID)
	}
	c.notify()
}
