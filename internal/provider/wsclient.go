package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wireEvent is the frame format pushed over the realtime websocket.
type wireEvent struct {
	Type    string                `json:"type"`
	Message *MessageReceivedEvent `json:"message,omitempty"`
	Thread  *ThreadCreatedEvent   `json:"thread,omitempty"`
}

// wsChatClient implements ChatClient against the chatserver protocol:
// websocket push at <endpoint>/realtime, thread history and send over HTTP.
type wsChatClient struct {
	endpoint string
	token    string
	http     *http.Client

	mu        sync.Mutex
	conn      *websocket.Conn
	onMessage func(MessageReceivedEvent)
	onThread  func(ThreadCreatedEvent)
	done      chan struct{}
}

// NewWSChatClient is the Factory for the shipped websocket implementation.
func NewWSChatClient(endpoint, token string) ChatClient {
	return &wsChatClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *wsChatClient) OnMessageReceived(handler func(MessageReceivedEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

func (c *wsChatClient) OnThreadCreated(handler func(ThreadCreatedEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onThread = handler
}

// StartRealtimeNotifications dials the push websocket and starts the read
// pump. Reconnection after a drop is the provider's concern, not ours, so a
// closed connection simply ends the pump.
func (c *wsChatClient) StartRealtimeNotifications(ctx context.Context) error {
	wsURL, err := c.realtimeURL()
	if err != nil {
		return err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("dial realtime: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	c.conn = conn
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.readPump(conn, done)
	return nil
}

// StopRealtimeNotifications closes the connection and waits for the pump.
func (c *wsChatClient) StopRealtimeNotifications() {
	c.mu.Lock()
	conn := c.conn
	done := c.done
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = conn.Close()
	if done != nil {
		<-done
	}
}

func (c *wsChatClient) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("realtime read error: %v", err)
			}
			return
		}
		var event wireEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("realtime: dropping unparseable frame: %v", err)
			continue
		}
		c.dispatch(event)
	}
}

func (c *wsChatClient) dispatch(event wireEvent) {
	c.mu.Lock()
	onMessage := c.onMessage
	onThread := c.onThread
	c.mu.Unlock()

	switch event.Type {
	case "message":
		if event.Message != nil && onMessage != nil {
			onMessage(*event.Message)
		}
	case "threadCreated":
		if event.Thread != nil && onThread != nil {
			onThread(*event.Thread)
		}
	default:
		log.Printf("realtime: ignoring event type %q", event.Type)
	}
}

// ListMessages drains the full history of a thread, oldest first as returned
// by the server.
func (c *wsChatClient) ListMessages(ctx context.Context, threadID string) ([]HistoryMessage, error) {
	var resp struct {
		Messages []HistoryMessage `json:"messages"`
	}
	path := fmt.Sprintf("%s/threads/%s/messages", c.endpoint, url.PathEscape(threadID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return resp.Messages, nil
}

// SendMessage delivers content to the thread and returns the provider id.
func (c *wsChatClient) SendMessage(ctx context.Context, threadID, content string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("%s/threads/%s/messages", c.endpoint, url.PathEscape(threadID))
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]string{"content": content}, &resp); err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

func (c *wsChatClient) realtimeURL() (string, error) {
	parsed, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/realtime"
	query := parsed.Query()
	query.Set("token", c.token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (c *wsChatClient) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
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
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
