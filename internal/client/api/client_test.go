package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{BaseURL: server.URL, Token: "test-token"})
	require.NoError(t, err)
	return client
}

func TestListConversations(t *testing.T) {
	var gotQuery map[string]string
	var gotAuth string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/conversations", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotQuery = map[string]string{
			"page":      r.URL.Query().Get("page"),
			"size":      r.URL.Query().Get("size"),
			"course_id": r.URL.Query().Get("course_id"),
		}
		json.NewEncoder(w).Encode(ConversationPage{
			Items:      []Conversation{{ID: "c1", CourseID: 7}},
			TotalCount: 12,
		})
	}))

	course := int64(7)
	page, err := client.ListConversations(context.Background(), 2, 20, &course)
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, map[string]string{"page": "2", "size": "20", "course_id": "7"}, gotQuery)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "c1", page.Items[0].ID)
	assert.Equal(t, 12, page.TotalCount)
}

func TestListMessages(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/conversations/c1/messages", r.URL.Path)
		json.NewEncoder(w).Encode(MessagePage{
			Items:      []Message{{ID: "m2"}, {ID: "m1"}},
			TotalCount: 2,
		})
	}))

	page, err := client.ListMessages(context.Background(), "c1", 1, 30)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "m2", page.Items[0].ID)
}

func TestSendMessage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/conversations/c1/messages", r.URL.Path)

		var body struct {
			Content     string       `json:"content"`
			Attachments []Attachment `json:"attachments"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body.Content)
		require.Len(t, body.Attachments, 1)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Message{ID: "m9", ConversationID: "c1", Content: body.Content})
	}))

	msg, err := client.SendMessage(context.Background(), "c1", "hello",
		[]Attachment{{Name: "syllabus.pdf", URL: "https://files.test/1", Type: "application/pdf"}})
	require.NoError(t, err)
	assert.Equal(t, "m9", msg.ID)
}

func TestMarkConversationRead(t *testing.T) {
	var called bool
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/conversations/c1/read", r.URL.Path)
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, client.MarkConversationRead(context.Background(), "c1"))
	assert.True(t, called)
}

func TestUnreadConversationCount(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/conversations/unread-count", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]int{"count": 4})
	}))

	count, err := client.UnreadConversationCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestLoginStoresToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			json.NewEncoder(w).Encode(LoginResult{Token: "fresh", UserID: "u1", DisplayName: "Seller"})
		case "/api/conversations/unread-count":
			assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]int{"count": 0})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	result, err := client.Login(context.Background(), "a@b.test", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u1", result.UserID)

	// Subsequent calls carry the fresh token.
	_, err = client.UnreadConversationCount(context.Background())
	require.NoError(t, err)
}

func TestStatusError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"conversation is blocked"}`, http.StatusConflict)
	}))

	_, err := client.SendMessage(context.Background(), "c1", "hi", nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.Status)
	assert.Contains(t, se.Body, "blocked")
}

func TestCallTimeout(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	client.callTimeout = 50 * time.Millisecond

	_, err := client.UnreadConversationCount(context.Background())
	require.Error(t, err)
}
