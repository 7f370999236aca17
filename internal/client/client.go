// Package client provides an HTTP client for the kaiwa server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/raphaelgruber/kaiwa/internal/metrics"
	"github.com/raphaelgruber/kaiwa/internal/models"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("conversation not found")

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server error: %d %s", e.StatusCode, e.Message)
}

// Client is an HTTP client for the kaiwa server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no overall timeout; a reply may take minutes.
	streamClient *http.Client
}

// New creates a new client.
// If baseURL is empty, uses KAIWA_SERVER_URL env var or defaults to localhost:8484.
// Timeout can be configured via KAIWA_CLIENT_TIMEOUT env var (default 30s).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("KAIWA_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8484"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("KAIWA_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}
}

// BaseURL returns the server URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// UpdateRequest is a partial conversation update. Nil fields are left unchanged.
type UpdateRequest struct {
	Title    *string           `json:"title,omitempty"`
	Messages *[]models.Message `json:"messages,omitempty"`
}

type listResponse struct {
	Conversations []models.ConversationListItem `json:"conversations"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ListConversations returns all conversations, most recently updated first.
func (c *Client) ListConversations(ctx context.Context) ([]models.ConversationListItem, error) {
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &resp); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return resp.Conversations, nil
}

// CreateConversation creates an empty conversation. An empty title lets the
// server choose its default.
func (c *Client) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	body := map[string]string{}
	if title != "" {
		body["title"] = title
	}
	var conv models.Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", body, &conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &conv, nil
}

// GetConversation returns a conversation with its full history.
func (c *Client) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(id), nil, &conv); err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// UpdateConversation applies a partial update.
func (c *Client) UpdateConversation(ctx context.Context, id string, req UpdateRequest) (*models.Conversation, error) {
	var conv models.Conversation
	if err := c.do(ctx, http.MethodPut, "/conversations/"+url.PathEscape(id), req, &conv); err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}
	return &conv, nil
}

// DeleteConversation deletes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/conversations/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// Stats returns the server's runtime statistics.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &snap); err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return &snap, nil
}

// Chat starts a chat turn and returns the event stream body. The caller must
// close it. A non-2xx response is returned as an error and no body.
func (c *Client) Chat(ctx context.Context, req models.ChatRequest) (io.ReadCloser, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/chat", req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	if resp.Body == nil {
		return nil, fmt.Errorf("chat: empty response body")
	}
	return resp.Body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends a JSON request and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	var e errorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &e); err != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(data))
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: e.Error}
}
