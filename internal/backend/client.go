package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chadmichel/chadchat/internal/models"
)

// ErrNoServiceURL is returned when the backend base URL is missing or cannot
// be parsed. This is raised immediately, not deferred to the first call.
var ErrNoServiceURL = errors.New("service url is missing or invalid")

// API is the backend surface the store depends on.
type API interface {
	Init(ctx context.Context, email string) (models.Session, error)
	GetConversations(ctx context.Context) ([]models.Conversation, error)
	CreateConversation(ctx context.Context, inviteEmail string) error
	LogMessage(ctx context.Context, threadID, message string) (string, error)
}

// SessionFunc supplies the current session for request headers. It may return
// nil before login; Init is the only call expected to work without one.
type SessionFunc func() *models.Session

// Client talks to the conversation backend over HTTP/JSON. Every request
// carries the API key as the code query parameter plus Token, userId and
// userEmail headers sourced from the current session.
type Client struct {
	http    *http.Client
	baseURL string
	code    string
	session SessionFunc
}

// NewClient validates the base URL and builds a Client.
func NewClient(serviceURL, code string, session SessionFunc) (*Client, error) {
	trimmed := strings.TrimRight(serviceURL, "/")
	if trimmed == "" {
		return nil, ErrNoServiceURL
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, ErrNoServiceURL
	}
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: trimmed,
		code:    code,
		session: session,
	}, nil
}

// Init exchanges an email address for a session.
func (c *Client) Init(ctx context.Context, email string) (models.Session, error) {
	var session models.Session
	err := c.do(ctx, http.MethodPost, "/api/Init", map[string]string{"email": email}, &session)
	if err != nil {
		return models.Session{}, fmt.Errorf("init: %w", err)
	}
	return session, nil
}

// GetConversations fetches the caller's full conversation list.
func (c *Client) GetConversations(ctx context.Context) ([]models.Conversation, error) {
	var conversations []models.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/GetConversations", nil, &conversations); err != nil {
		return nil, fmt.Errorf("get conversations: %w", err)
	}
	return conversations, nil
}

// CreateConversation asks the backend to start a conversation with the user
// behind inviteEmail. The new thread arrives through the realtime channel.
func (c *Client) CreateConversation(ctx context.Context, inviteEmail string) error {
	if err := c.do(ctx, http.MethodPost, "/api/CreateConversation", map[string]string{"inviteEmail": inviteEmail}, nil); err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// LogMessage records an outgoing message with the backend and returns the
// text actually authorized to send; the server may have moderated it.
func (c *Client) LogMessage(ctx context.Context, threadID, message string) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	body := map[string]string{"threadId": threadID, "message": message}
	if err := c.do(ctx, http.MethodPost, "/api/LogMessage", body, &resp); err != nil {
		return "", fmt.Errorf("log message: %w", err)
	}
	return resp.Message, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	endpoint := c.baseURL + path
	if c.code != "" {
		endpoint += "?code=" + url.QueryEscape(c.code)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if session := c.session(); session != nil {
		req.Header.Set("Token", session.Token)
		req.Header.Set("userId", session.UserID)
		req.Header.Set("userEmail", session.Email)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
