// Package handlers exposes the hub's HTTP surface: auth, the paginated
// REST endpoints backing the chat client, and the websocket upgrade.
package handlers

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/pnson1322/coursechat/internal/server/auth"
	"github.com/pnson1322/coursechat/internal/server/hub"
	"github.com/pnson1322/coursechat/internal/server/models"
	"github.com/pnson1322/coursechat/internal/server/ratelimit"
	"github.com/pnson1322/coursechat/internal/server/storage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	Store   *storage.Store
	Hub     *hub.Hub
	Limiter *ratelimit.Limiter
	Log     *slog.Logger
}

// Routes registers every endpoint on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.HealthCheck)
	mux.HandleFunc("POST /api/auth/login", s.Login)
	mux.HandleFunc("GET /api/conversations", s.withAuth(s.ListConversations))
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.withAuth(s.ListMessages))
	mux.HandleFunc("POST /api/conversations/{id}/messages", s.withAuth(s.SendMessage))
	mux.HandleFunc("POST /api/conversations/{id}/read", s.withAuth(s.MarkRead))
	mux.HandleFunc("GET /api/conversations/unread-count", s.withAuth(s.UnreadCount))
	mux.HandleFunc("GET /ws", s.HandleWebSocket)
	return mux
}

func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	ip := ratelimit.ClientIP(r)
	if !s.Limiter.AllowLogin(ip) {
		writeError(w, http.StatusTooManyRequests, "too many login attempts, wait a minute")
		return
	}

	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.Store.GetUserByEmail(body.Email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, body.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.GenerateToken(user.ID)
	if err != nil {
		s.Log.Error("issue token", "err", err)
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":        token,
		"user_id":      user.ID,
		"display_name": user.DisplayName,
	})
}

func (s *Server) ListConversations(w http.ResponseWriter, r *http.Request, userID string) {
	page, size := pageParams(r, 20)

	var courseID *int64
	if raw := r.URL.Query().Get("course_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid course_id")
			return
		}
		courseID = &id
	}

	items, total, err := s.Store.ListConversations(userID, courseID, page, size)
	if err != nil {
		s.Log.Error("list conversations", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list conversations")
		return
	}
	writeJSON(w, http.StatusOK, models.ConversationPage{Items: items, TotalCount: total})
}

func (s *Server) ListMessages(w http.ResponseWriter, r *http.Request, userID string) {
	convID := r.PathValue("id")
	if _, err := s.Store.GetConversation(convID, userID); err != nil {
		writeError(w, http.StatusForbidden, "not a participant of this conversation")
		return
	}

	page, size := pageParams(r, 30)
	items, total, err := s.Store.ListMessages(convID, page, size)
	if err != nil {
		s.Log.Error("list messages", "conversation_id", convID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not list messages")
		return
	}
	writeJSON(w, http.StatusOK, models.MessagePage{Items: items, TotalCount: total})
}

// SendMessage is the HTTP fallback for clients whose websocket is down.
// It persists the message and pushes the same events the socket path does.
func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request, userID string) {
	convID := r.PathValue("id")
	conv, err := s.Store.GetConversation(convID, userID)
	if err != nil {
		writeError(w, http.StatusForbidden, "not a participant of this conversation")
		return
	}
	if conv.IsBlocked {
		writeError(w, http.StatusConflict, "conversation is blocked")
		return
	}

	var body struct {
		Content     string              `json:"content"`
		Attachments []models.Attachment `json:"attachments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		writeError(w, http.StatusBadRequest, "message content is empty")
		return
	}

	msg, err := s.Store.SaveMessage(convID, userID, body.Content, body.Attachments)
	if err != nil {
		s.Log.Error("save message", "conversation_id", convID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not save message")
		return
	}

	s.Hub.DeliverMessage(conv, msg)
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) MarkRead(w http.ResponseWriter, r *http.Request, userID string) {
	convID := r.PathValue("id")
	if _, err := s.Store.GetConversation(convID, userID); err != nil {
		writeError(w, http.StatusForbidden, "not a participant of this conversation")
		return
	}
	if err := s.Store.MarkRead(userID, convID); err != nil && err != sql.ErrNoRows {
		s.Log.Error("mark read", "conversation_id", convID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not mark conversation read")
		return
	}
	s.Hub.EmitToRoom(convID, nil, models.EventMessagesMarkedAsRead, models.ReadReceipt{
		ConversationID: convID,
		UserID:         userID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) UnreadCount(w http.ResponseWriter, r *http.Request, userID string) {
	count, err := s.Store.UnreadConversationCount(userID)
	if err != nil {
		s.Log.Error("unread count", "err", err)
		writeError(w, http.StatusInternalServerError, "could not count unread conversations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := bearerUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	ip := ratelimit.ClientIP(r)
	if !s.Limiter.CanConnect(ip) {
		writeError(w, http.StatusTooManyRequests, "too many connections from your IP")
		s.Log.Warn("rate limited connection", "ip", ip)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Error("websocket upgrade", "err", err)
		return
	}

	s.Limiter.AddConnection(ip)

	client := hub.NewClient(s.Hub, conn, userID, ip)
	s.Hub.Register(client)

	go func() {
		defer s.Limiter.RemoveConnection(ip)
		client.WritePump()
	}()
	go client.ReadPump()
}

// withAuth wraps a handler that needs the authenticated user id.
func (s *Server) withAuth(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := bearerUser(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r, userID)
	}
}

// bearerUser extracts and verifies the JWT from the Authorization
// header, or from ?token= for websocket dials that cannot set headers.
func bearerUser(r *http.Request) (string, error) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" || raw == r.Header.Get("Authorization") {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return "", auth.ErrInvalidToken
	}
	return auth.ParseToken(raw)
}

func pageParams(r *http.Request, defaultSize int) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size < 1 || size > 100 {
		size = defaultSize
	}
	return page, size
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
