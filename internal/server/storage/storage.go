package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/pnson1322/coursechat/internal/server/models"
)

// Store wraps the postgres persistence of the hub server.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// New opens and pings the database.
func New(databaseURL string, log *slog.Logger) (*Store, error) {
	if databaseURL == "" {
		databaseURL = "postgres://localhost/coursechat?sslmode=disable"
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log.Info("connected to database")
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() {
	s.db.Close()
}

// User methods

func (s *Store) CreateUser(email, displayName, passwordHash, role string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		"INSERT INTO users (id, email, display_name, password_hash, role) VALUES ($1, $2, $3, $4, $5)",
		id, email, displayName, passwordHash, role,
	)
	return id, err
}

func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(
		"SELECT id, email, display_name, COALESCE(avatar_url, ''), password_hash, role FROM users WHERE email = $1",
		email,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL, &u.PasswordHash, &u.Role)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByID(id string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(
		"SELECT id, email, display_name, COALESCE(avatar_url, ''), role FROM users WHERE id = $1",
		id,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL, &u.Role)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Conversation methods

// ListConversations returns one page of the user's conversations ordered
// by most recent activity, plus the total count for the scope.
func (s *Store) ListConversations(userID string, courseID *int64, page, size int) ([]models.Conversation, int, error) {
	if page < 1 {
		page = 1
	}
	args := []any{userID}
	filter := ""
	if courseID != nil {
		filter = " AND c.course_id = $2"
		args = append(args, *courseID)
	}

	var total int
	countQuery := `
		SELECT COUNT(*)
		FROM conversations c
		WHERE (c.buyer_id = $1 OR c.seller_id = $1)` + filter
	if err := s.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT
			c.id, c.course_id, COALESCE(c.course_title, ''),
			c.buyer_id, COALESCE(u.display_name, ''), COALESCE(u.avatar_url, ''),
			c.seller_id,
			COALESCE(c.last_message, ''), COALESCE(c.last_message_at, c.created_at),
			(SELECT COUNT(*) FROM messages m
			 WHERE m.conversation_id = c.id
			 AND m.sender_id != $1
			 AND m.created_at > COALESCE(
				(SELECT r.last_read_at FROM conversation_reads r
				 WHERE r.conversation_id = c.id AND r.user_id = $1),
				'epoch'::timestamptz)) AS unread_count,
			(c.buyer_blocked OR c.seller_blocked) AS is_blocked
		FROM conversations c
		LEFT JOIN users u ON u.id = c.buyer_id
		WHERE (c.buyer_id = $1 OR c.seller_id = $1)` + filter + `
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC
		LIMIT ` + fmt.Sprintf("%d OFFSET %d", size, (page-1)*size)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(
			&c.ID, &c.CourseID, &c.CourseTitle,
			&c.BuyerID, &c.BuyerName, &c.BuyerAvatar,
			&c.SellerID, &c.LastMessage, &c.LastMessageAt,
			&c.UnreadCount, &c.IsBlocked,
		); err != nil {
			s.log.Warn("scan conversation failed", "error", err)
			continue
		}
		convs = append(convs, c)
	}
	return convs, total, rows.Err()
}

// GetConversation loads one conversation with the unread count computed
// for the given user.
func (s *Store) GetConversation(conversationID, userID string) (*models.Conversation, error) {
	var c models.Conversation
	err := s.db.QueryRow(`
		SELECT
			c.id, c.course_id, COALESCE(c.course_title, ''),
			c.buyer_id, COALESCE(u.display_name, ''), COALESCE(u.avatar_url, ''),
			c.seller_id,
			COALESCE(c.last_message, ''), COALESCE(c.last_message_at, c.created_at),
			(SELECT COUNT(*) FROM messages m
			 WHERE m.conversation_id = c.id
			 AND m.sender_id != $2
			 AND m.created_at > COALESCE(
				(SELECT r.last_read_at FROM conversation_reads r
				 WHERE r.conversation_id = c.id AND r.user_id = $2),
				'epoch'::timestamptz)) AS unread_count,
			(c.buyer_blocked OR c.seller_blocked) AS is_blocked
		FROM conversations c
		LEFT JOIN users u ON u.id = c.buyer_id
		WHERE c.id = $1
	`, conversationID, userID).Scan(
		&c.ID, &c.CourseID, &c.CourseTitle,
		&c.BuyerID, &c.BuyerName, &c.BuyerAvatar,
		&c.SellerID, &c.LastMessage, &c.LastMessageAt,
		&c.UnreadCount, &c.IsBlocked,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetOrCreateConversation returns the thread between a buyer and a seller
// for one course, creating it on first contact.
func (s *Store) GetOrCreateConversation(courseID int64, courseTitle, buyerID, sellerID string) (*models.Conversation, error) {
	var id string
	err := s.db.QueryRow(
		"SELECT id FROM conversations WHERE course_id = $1 AND buyer_id = $2 AND seller_id = $3",
		courseID, buyerID, sellerID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		id = uuid.NewString()
		_, err = s.db.Exec(
			"INSERT INTO conversations (id, course_id, course_title, buyer_id, seller_id) VALUES ($1, $2, $3, $4, $5)",
			id, courseID, courseTitle, buyerID, sellerID,
		)
	}
	if err != nil {
		return nil, err
	}
	return s.GetConversation(id, buyerID)
}

// Message methods

// ListMessages returns one page of a conversation's messages, newest
// first, plus the conversation's total message count.
func (s *Store) ListMessages(conversationID string, page, size int) ([]models.Message, int, error) {
	if page < 1 {
		page = 1
	}
	var total int
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE conversation_id = $1", conversationID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT id, conversation_id, sender_id, content, created_at, is_read, COALESCE(attachments, '[]'::jsonb)
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, conversationID, size, (page-1)*size)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var attachments []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt, &m.IsRead, &attachments); err != nil {
			s.log.Warn("scan message failed", "error", err)
			continue
		}
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			m.Attachments = nil
		}
		msgs = append(msgs, m)
	}
	return msgs, total, rows.Err()
}

// SaveMessage stores a message and refreshes the conversation's
// last-message fields in one transaction.
func (s *Store) SaveMessage(conversationID, senderID, content string, attachments []models.Attachment) (*models.Message, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	attachmentJSON, err := json.Marshal(attachments)
	if err != nil {
		return nil, err
	}

	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Attachments:    attachments,
	}
	err = tx.QueryRow(`
		INSERT INTO messages (id, conversation_id, sender_id, content, attachments)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, msg.ID, conversationID, senderID, content, attachmentJSON).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(
		"UPDATE conversations SET last_message = $1, last_message_at = $2 WHERE id = $3",
		content, msg.CreatedAt, conversationID,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead records a read receipt and flags the peer's messages read.
func (s *Store) MarkRead(userID, conversationID string) error {
	_, err := s.db.Exec(`
		INSERT INTO conversation_reads (conversation_id, user_id, last_read_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (conversation_id, user_id) DO UPDATE SET last_read_at = NOW()
	`, conversationID, userID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"UPDATE messages SET is_read = TRUE WHERE conversation_id = $1 AND sender_id != $2",
		conversationID, userID,
	)
	return err
}

// UnreadConversationCount counts the user's conversations holding
// messages newer than their read receipt.
func (s *Store) UnreadConversationCount(userID string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*)
		FROM conversations c
		WHERE (c.buyer_id = $1 OR c.seller_id = $1)
		AND EXISTS (
			SELECT 1 FROM messages m
			WHERE m.conversation_id = c.id
			AND m.sender_id != $1
			AND m.created_at > COALESCE(
				(SELECT r.last_read_at FROM conversation_reads r
				 WHERE r.conversation_id = c.id AND r.user_id = $1),
				'epoch'::timestamptz)
		)
	`, userID).Scan(&count)
	return count, err
}

// SetBlocked updates the caller's block flag on a conversation.
func (s *Store) SetBlocked(conversationID, userID string, blocked bool) error {
	res, err := s.db.Exec(`
		UPDATE conversations SET
			buyer_blocked  = CASE WHEN buyer_id  = $2 THEN $3 ELSE buyer_blocked  END,
			seller_blocked = CASE WHEN seller_id = $2 THEN $3 ELSE seller_blocked END
		WHERE id = $1 AND (buyer_id = $2 OR seller_id = $2)
	`, conversationID, userID, blocked)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

