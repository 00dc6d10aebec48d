package hub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnson1322/coursechat/internal/server/models"
)

func testClient(h *Hub, userID string) *Client {
	return &Client{Hub: h, Send: make(chan []byte, 64), UserID: userID}
}

func drain(t *testing.T, c *Client) []models.Frame {
	t.Helper()
	var out []models.Frame
	for {
		select {
		case data := <-c.Send:
			var f models.Frame
			require.NoError(t, json.Unmarshal(data, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestRoomDelivery(t *testing.T) {
	h := New(nil, nil)
	seller := testClient(h, "seller")
	buyer := testClient(h, "buyer")
	outsider := testClient(h, "other")
	for _, c := range []*Client{seller, buyer, outsider} {
		h.Register(c)
	}

	h.Join(seller, "conv-1")
	h.Join(buyer, "conv-1")

	h.EmitToRoom("conv-1", nil, models.EventReceiveMessage, models.Message{ID: "m1"})

	assert.Len(t, drain(t, seller), 1)
	assert.Len(t, drain(t, buyer), 1)
	assert.Empty(t, drain(t, outsider))
}

func TestRoomSkipSender(t *testing.T) {
	h := New(nil, nil)
	a := testClient(h, "a")
	b := testClient(h, "b")
	h.Register(a)
	h.Register(b)
	h.Join(a, "conv-1")
	h.Join(b, "conv-1")

	// Typing signals go to everyone in the room except the sender.
	h.EmitToRoom("conv-1", a, models.EventUserTypingStatus, models.TypingStatus{
		ConversationID: "conv-1", UserID: "a", IsTyping: true,
	})

	assert.Empty(t, drain(t, a))
	frames := drain(t, b)
	require.Len(t, frames, 1)
	assert.Equal(t, models.EventUserTypingStatus, frames[0].Type)
}

func TestEmitToUserReachesEverySession(t *testing.T) {
	h := New(nil, nil)
	laptop := testClient(h, "seller")
	phone := testClient(h, "seller")
	h.Register(laptop)
	h.Register(phone)

	h.EmitToUser("seller", models.EventNewMessageNotification, models.Notification{
		Message: models.Message{ID: "m1"},
	})

	assert.Len(t, drain(t, laptop), 1)
	assert.Len(t, drain(t, phone), 1)
}

func TestUnregisterLeavesRooms(t *testing.T) {
	h := New(nil, nil)
	c := testClient(h, "seller")
	h.Register(c)
	h.Join(c, "conv-1")
	require.Equal(t, []string{"seller"}, h.RoomMembers("conv-1"))

	h.Unregister(c)
	assert.Empty(t, h.RoomMembers("conv-1"))

	// The send channel is closed so the write pump exits.
	_, open := <-c.Send
	assert.False(t, open)
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	h := New(nil, nil)
	c := testClient(h, "seller")
	h.Register(c)
	h.Join(c, "conv-1")
	h.Leave(c, "conv-1")

	h.EmitToRoom("conv-1", nil, models.EventReceiveMessage, models.Message{ID: "m1"})
	assert.Empty(t, drain(t, c))
}
