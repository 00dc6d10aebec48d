package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config defines REST client settings.
type Config struct {
	BaseURL     string
	Token       string
	CallTimeout time.Duration
}

// Client wraps the chat REST API of the marketplace backend.
type Client struct {
	base        string
	token       string
	http        *http.Client
	callTimeout time.Duration
}

// StatusError reports a non-2xx response from the backend.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Body)
}

// NewClient returns a typed client for the chat REST endpoints.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("api: base URL required")
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:        cfg.BaseURL,
		token:       cfg.Token,
		http:        &http.Client{},
		callTimeout: timeout,
	}, nil
}

// SetToken replaces the bearer token used on subsequent calls.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Login exchanges credentials for a bearer token and stores it on the
// client for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}
	var out LoginResult
	if err := c.post(ctx, "/api/auth/login", body, &out); err != nil {
		return LoginResult{}, err
	}
	c.token = out.Token
	return out, nil
}

// ListConversations fetches one page of the seller's conversations,
// optionally scoped to a single course.
func (c *Client) ListConversations(ctx context.Context, page, size int, courseID *int64) (ConversationPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	if courseID != nil {
		q.Set("course_id", strconv.FormatInt(*courseID, 10))
	}
	var out ConversationPage
	if err := c.get(ctx, "/api/conversations", q, &out); err != nil {
		return ConversationPage{}, err
	}
	return out, nil
}

// ListMessages fetches one page of a conversation's messages, newest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string, page, size int) (MessagePage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	var out MessagePage
	if err := c.get(ctx, "/api/conversations/"+conversationID+"/messages", q, &out); err != nil {
		return MessagePage{}, err
	}
	return out, nil
}

// SendMessage posts a message over plain HTTP. This is the fallback path
// used when the realtime channel is unavailable.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string, attachments []Attachment) (Message, error) {
	body := struct {
		Content     string       `json:"content"`
		Attachments []Attachment `json:"attachments,omitempty"`
	}{Content: content, Attachments: attachments}
	var out Message
	if err := c.post(ctx, "/api/conversations/"+conversationID+"/messages", body, &out); err != nil {
		return Message{}, err
	}
	return out, nil
}

// MarkConversationRead marks every message in the conversation as read
// for the current user.
func (c *Client) MarkConversationRead(ctx context.Context, conversationID string) error {
	return c.post(ctx, "/api/conversations/"+conversationID+"/read", nil, nil)
}

// UnreadConversationCount returns the authoritative number of conversations
// with unread messages.
func (c *Client) UnreadConversationCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.get(ctx, "/api/conversations/unread-count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(callCtx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}
