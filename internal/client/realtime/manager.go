package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pnson1322/coursechat/internal/client/api"
)

var (
	// ErrNoToken is returned by Connect when no session token is available.
	ErrNoToken = errors.New("realtime: session token required")
	// ErrNotConnected is returned by Invoke while the channel is down.
	ErrNotConnected = errors.New("realtime: not connected")
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// reconnectDelays is the retry schedule after a transport drop. The last
// entry repeats indefinitely.
var reconnectDelays = []time.Duration{0, 2 * time.Second, 10 * time.Second, 30 * time.Second}

func reconnectDelay(attempt int) time.Duration {
	if attempt >= len(reconnectDelays) {
		attempt = len(reconnectDelays) - 1
	}
	return reconnectDelays[attempt]
}

// Handler consumes the payload of one push event. Handlers run on the
// connection's read goroutine; each physical frame is dispatched at most
// once, but duplicates are possible across reconnect windows, so handlers
// must de-duplicate by id.
type Handler func(payload json.RawMessage)

// Manager owns the single persistent hub connection of a client session.
// It reconnects with backoff after transport drops and replays registered
// OnReconnect hooks so consumers can resynchronize state missed during
// the gap.
type Manager struct {
	url    string
	log    *slog.Logger
	dialer *websocket.Dialer

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	token       string
	stop        chan struct{}
	handlers    map[string][]Handler
	onReconnect []func()
}

// NewManager returns a manager for the hub at url (ws:// or wss://).
func NewManager(url string, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		url:      url,
		log:      log,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		handlers: make(map[string][]Handler),
	}
}

// Handle registers a handler for a named push event.
func (m *Manager) Handle(event string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], h)
}

// OnReconnect registers a hook that runs after every Reconnecting→Connected
// transition. Hooks run on the reconnect goroutine.
func (m *Manager) OnReconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnect = append(m.onReconnect, fn)
}

// State reports the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect establishes the hub connection. It is a no-op if a connection
// is already up or being established.
func (m *Manager) Connect(ctx context.Context, token string) error {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	if token == "" {
		m.mu.Unlock()
		return ErrNoToken
	}
	m.token = token
	m.state = StateConnecting
	stop := make(chan struct{})
	m.stop = stop
	m.mu.Unlock()

	conn, err := m.dial(ctx, token)
	if err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.stop = nil
		m.mu.Unlock()
		return fmt.Errorf("realtime: connect: %w", err)
	}

	m.mu.Lock()
	select {
	case <-stop:
		// Disconnected while the dial was in flight; the teardown wins.
		m.mu.Unlock()
		conn.Close()
		return nil
	default:
	}
	m.conn = conn
	m.state = StateConnected
	m.mu.Unlock()

	m.log.Info("hub connected", "url", m.url)
	go m.readLoop(conn, stop)
	return nil
}

// Disconnect tears the connection down and stops any reconnect attempts.
// Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Invoke sends a named method frame to the hub.
func (m *Manager) Invoke(method string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("realtime: encode %s: %w", method, err)
	}
	frame, err := json.Marshal(Frame{Type: method, Payload: data})
	if err != nil {
		return fmt.Errorf("realtime: encode frame: %w", err)
	}
	if err := m.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("realtime: invoke %s: %w", method, err)
	}
	return nil
}

// JoinConversation subscribes this session to a conversation room.
func (m *Manager) JoinConversation(conversationID string) error {
	return m.Invoke(MethodJoinConversation, ConversationRef{ConversationID: conversationID})
}

// LeaveConversation unsubscribes from a conversation room.
func (m *Manager) LeaveConversation(conversationID string) error {
	return m.Invoke(MethodLeaveConversation, ConversationRef{ConversationID: conversationID})
}

// SendMessage delivers a message through the realtime channel.
func (m *Manager) SendMessage(conversationID, content string, attachments []api.Attachment) error {
	return m.Invoke(MethodSendMessage, SendMessagePayload{
		ConversationID: conversationID,
		Content:        content,
		Attachments:    attachments,
	})
}

// UserTyping signals the typing state of the current user.
func (m *Manager) UserTyping(conversationID string, typing bool) error {
	return m.Invoke(MethodUserTyping, TypingPayload{ConversationID: conversationID, IsTyping: typing})
}

// MarkAsRead marks the conversation read for the current user.
func (m *Manager) MarkAsRead(conversationID string) error {
	return m.Invoke(MethodMarkAsRead, ConversationRef{ConversationID: conversationID})
}

func (m *Manager) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := m.dialer.DialContext(ctx, m.url, header)
	return conn, err
}

func (m *Manager) readLoop(conn *websocket.Conn, stop chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			m.log.Warn("hub connection lost", "error", err)
			m.reconnect(stop)
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			m.log.Warn("bad frame", "error", err)
			continue
		}
		m.dispatch(frame)
	}
}

func (m *Manager) dispatch(frame Frame) {
	m.mu.Lock()
	handlers := append([]Handler(nil), m.handlers[frame.Type]...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(frame.Payload)
	}
}

func (m *Manager) reconnect(stop chan struct{}) {
	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.state = StateReconnecting
	token := m.token
	m.mu.Unlock()

	for attempt := 0; ; attempt++ {
		delay := reconnectDelay(attempt)
		if delay > 0 {
			select {
			case <-stop:
				return
			case <-time.After(delay):
			}
		} else {
			select {
			case <-stop:
				return
			default:
			}
		}

		conn, err := m.dial(context.Background(), token)
		if err != nil {
			m.log.Warn("reconnect attempt failed", "attempt", attempt+1, "error", err)
			continue
		}

		m.mu.Lock()
		select {
		case <-stop:
			m.mu.Unlock()
			conn.Close()
			return
		default:
		}
		m.conn = conn
		m.state = StateConnected
		hooks := append([]func(){}, m.onReconnect...)
		m.mu.Unlock()

		m.log.Info("hub reconnected", "attempts", attempt+1)
		// Events missed during the gap are unrecoverable; hooks reload
		// list and window state instead of trusting deltas.
		for _, fn := range hooks {
			fn()
		}
		go m.readLoop(conn, stop)
		return
	}
}
