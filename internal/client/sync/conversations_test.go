package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnson1322/coursechat/internal/client/api"
)

func TestConversationListPagination(t *testing.T) {
	backend := newFakeBackend()
	for i := 0; i < 5; i++ {
		backend.conversations = append(backend.conversations, conv(string(rune('a'+i)), 1))
	}

	list := NewConversationList(backend, 2, nil)
	require.NoError(t, list.LoadFirstPage(context.Background()))
	assert.Len(t, list.Items(), 2)
	assert.True(t, list.HasMore())

	require.NoError(t, list.LoadNextPage(context.Background()))
	require.NoError(t, list.LoadNextPage(context.Background()))
	assert.Len(t, list.Items(), 5)
	assert.False(t, list.HasMore())

	// Exhausted: further loads must not call the backend again.
	calls := backend.listConvCalls
	require.NoError(t, list.LoadNextPage(context.Background()))
	assert.Equal(t, calls, backend.listConvCalls)
}

func TestConversationListHasMoreFromTotalCount(t *testing.T) {
	backend := newFakeBackend()
	backend.conversations = makeConversations(2)

	list := NewConversationList(backend, 2, nil)
	require.NoError(t, list.LoadFirstPage(context.Background()))

	// A full page with nothing behind it must not report more.
	assert.False(t, list.HasMore())
}

func TestConversationListIncomingMovesToFront(t *testing.T) {
	backend := newFakeBackend()
	backend.conversations = makeConversations(3)

	list := NewConversationList(backend, 10, nil)
	require.NoError(t, list.LoadFirstPage(context.Background()))

	incoming := msg("m1", "c2", "buyer-c2", "hello", time.Now())
	list.ApplyIncoming(incoming, nil)

	items := list.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "c2", items[0].ID)
	assert.Equal(t, "hello", items[0].LastMessage)
	assert.Equal(t, 1, items[0].UnreadCount)

	// Another message for the same conversation keeps it at the front and
	// bumps the counter; relative order of the rest is preserved.
	list.ApplyIncoming(msg("m2", "c2", "buyer-c2", "again", time.Now()), nil)
	items = list.Items()
	assert.Equal(t, []string{"c2", "c1", "c3"}, ids(items))
	assert.Equal(t, 2, items[0].UnreadCount)
}

func TestConversationListActiveConversationStaysRead(t *testing.T) {
	backend := newFakeBackend()
	backend.conversations = makeConversations(2)

	list := NewConversationList(backend, 10, nil)
	require.NoError(t, list.LoadFirstPage(context.Background()))

	list.SetActive("c1")
	list.ApplyIncoming(msg("m1", "c1", "buyer-c1", "hi", time.Now()), nil)

	items := list.Items()
	assert.Equal(t, "c1", items[0].ID)
	assert.Equal(t, 0, items[0].UnreadCount)
}

func TestConversationListSynthesizesFromHint(t *testing.T) {
	backend := newFakeBackend()
	backend.conversations = makeConversations(1)

	list := NewConversationList(backend, 10, nil)
	require.NoError(t, list.LoadFirstPage(context.Background()))

	hint := conv("c9", 7)
	list.ApplyIncoming(msg("m1", "c9", "buyer-c9", "new thread", time.Now()), &hint)

	items := list.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "c9", items[0].ID)
	assert.Equal(t, 1, items[0].UnreadCount)

	// Without a hint an unknown conversation is dropped.
	list.ApplyIncoming(msg("m2", "c404", "buyer-x", "lost", time.Now()), nil)
	assert.Len(t, list.Items(), 2)
}

func TestConversationListFilterDropsOtherCourses(t *testing.T) {
	backend := newFakeBackend()
	backend.conversations = []api.Conversation{conv("c1", 7), conv("c2", 8)}

	list := NewConversationList(backend, 10, nil)
	seven := int64(7)
	require.NoError(t, list.FilterByCourse(context.Background(), &seven))
	assert.Equal(t, []string{"c1"}, ids(list.Items()))

	// A pushed message for a conversation in another course must not leak
	// into the filtered view, hint or not.
	hint := conv("c3", 8)
	list.ApplyIncoming(msg("m1", "c3", "buyer-c3", "other course", time.Now()), &hint)
	assert.Equal(t, []string{"c1"}, ids(list.Items()))

	// Clearing the filter restores the full list.
	require.NoError(t, list.FilterByCourse(context.Background(), nil))
	assert.Len(t, list.Items(), 2)
}

func TestConversationListStaleLoadDiscarded(t *testing.T) {
	backend := newFakeBackend()
	backend.conversations = []api.Conversation{conv("c1", 7), conv("c2", 8)}

	list := NewConversationList(backend, 10, nil)

	// While the unfiltered page-1 request is in flight, the user switches
	// to course 8. The stale response must not overwrite the new scope.
	fired := false
	backend.onListConv = func(page int, courseID *int64) {
		if courseID == nil && !fired {
			fired = true
			backend.onListConv = nil
			eight := int64(8)
			require.NoError(t, list.FilterByCourse(context.Background(), &eight))
		}
	}

	require.NoError(t, list.LoadFirstPage(context.Background()))
	assert.Equal(t, []string{"c2"}, ids(list.Items()))
}

func TestConversationListMarkRead(t *testing.T) {
	backend := newFakeBackend()
	backend.conversations = makeConversations(1)

	list := NewConversationList(backend, 10, nil)
	require.NoError(t, list.LoadFirstPage(context.Background()))
	list.ApplyIncoming(msg("m1", "c1", "buyer-c1", "hi", time.Now()), nil)
	require.Equal(t, 1, list.Items()[0].UnreadCount)

	list.MarkRead("c1")
	assert.Equal(t, 0, list.Items()[0].UnreadCount)
}

func ids(items []api.Conversation) []string {
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = c.ID
	}
	return out
}

// makeConversations builds n conversations c1..cn in course 1.
func makeConversations(n int) []api.Conversation {
	out := make([]api.Conversation, n)
	for i := range out {
		out[i] = conv(fmt.Sprintf("c%d", i+1), 1)
	}
	return out
}
