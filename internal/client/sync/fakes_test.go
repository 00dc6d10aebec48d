package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pnson1322/coursechat/internal/client/api"
)

// fakeBackend serves conversation and message pages from in-memory slices
// and records the calls it saw.
type fakeBackend struct {
	mu sync.Mutex

	conversations []api.Conversation
	messages      map[string][]api.Message // conversation id -> newest first
	unread        int

	listConvErr   error
	listMsgErr    error
	sendErr       error
	unreadErr     error
	onListConv    func(page int, courseID *int64)
	onListMsg     func(conversationID string, page int)
	sentMessages  []api.Message
	markedRead    []string
	listConvCalls int
	unreadFetches int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{messages: make(map[string][]api.Message)}
}

func (f *fakeBackend) ListConversations(ctx context.Context, page, size int, courseID *int64) (api.ConversationPage, error) {
	f.mu.Lock()
	f.listConvCalls++
	hook := f.onListConv
	err := f.listConvErr
	var scoped []api.Conversation
	for _, c := range f.conversations {
		if courseID != nil && c.CourseID != *courseID {
			continue
		}
		scoped = append(scoped, c)
	}
	f.mu.Unlock()

	if hook != nil {
		hook(page, courseID)
	}
	if err != nil {
		return api.ConversationPage{}, err
	}

	start := (page - 1) * size
	if start > len(scoped) {
		start = len(scoped)
	}
	end := start + size
	if end > len(scoped) {
		end = len(scoped)
	}
	return api.ConversationPage{
		Items:      append([]api.Conversation(nil), scoped[start:end]...),
		TotalCount: len(scoped),
	}, nil
}

func (f *fakeBackend) ListMessages(ctx context.Context, conversationID string, page, size int) (api.MessagePage, error) {
	f.mu.Lock()
	hook := f.onListMsg
	err := f.listMsgErr
	all := append([]api.Message(nil), f.messages[conversationID]...)
	f.mu.Unlock()

	if hook != nil {
		hook(conversationID, page)
	}
	if err != nil {
		return api.MessagePage{}, err
	}
	start := (page - 1) * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return api.MessagePage{
		Items:      append([]api.Message(nil), all[start:end]...),
		TotalCount: len(all),
	}, nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, conversationID, content string, attachments []api.Attachment) (api.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return api.Message{}, f.sendErr
	}
	msg := api.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       "self",
		Content:        content,
		CreatedAt:      time.Now(),
		Attachments:    attachments,
	}
	f.messages[conversationID] = append([]api.Message{msg}, f.messages[conversationID]...)
	f.sentMessages = append(f.sentMessages, msg)
	return msg, nil
}

func (f *fakeBackend) MarkConversationRead(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = append(f.markedRead, conversationID)
	return nil
}

func (f *fakeBackend) UnreadConversationCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unreadFetches++
	if f.unreadErr != nil {
		return 0, f.unreadErr
	}
	return f.unread, nil
}

func (f *fakeBackend) unreadCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unreadFetches
}

// fakeInvoker records realtime invokes; each method can be forced to fail.
type fakeInvoker struct {
	mu sync.Mutex

	offline bool

	joined []string
	left   []string
	sent   []string
	typing []bool
	read   []string
}

var errOffline = errors.New("not connected")

func (f *fakeInvoker) JoinConversation(conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return errOffline
	}
	f.joined = append(f.joined, conversationID)
	return nil
}

func (f *fakeInvoker) LeaveConversation(conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return errOffline
	}
	f.left = append(f.left, conversationID)
	return nil
}

func (f *fakeInvoker) SendMessage(conversationID, content string, attachments []api.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return errOffline
	}
	f.sent = append(f.sent, content)
	return nil
}

func (f *fakeInvoker) UserTyping(conversationID string, typing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return errOffline
	}
	f.typing = append(f.typing, typing)
	return nil
}

func (f *fakeInvoker) MarkAsRead(conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return errOffline
	}
	f.read = append(f.read, conversationID)
	return nil
}

func (f *fakeInvoker) typingSignals() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.typing...)
}

func conv(id string, courseID int64) api.Conversation {
	return api.Conversation{
		ID:       id,
		CourseID: courseID,
		BuyerID:  "buyer-" + id,
		SellerID: "self",
	}
}

func msg(id, convID, senderID, content string, at time.Time) api.Message {
	return api.Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      at,
	}
}

// history fills a conversation with n messages, newest first, oldest
// content "m1".
func (f *fakeBackend) history(convID string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var newestFirst []api.Message
	for i := n; i >= 1; i-- {
		newestFirst = append(newestFirst, msg(
			fmt.Sprintf("%s-m%d", convID, i),
			convID,
			"buyer-"+convID,
			fmt.Sprintf("m%d", i),
			base.Add(time.Duration(i)*time.Minute),
		))
	}
	f.messages[convID] = newestFirst
}
