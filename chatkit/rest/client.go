// Package rest provides the REST client for the chat backend: message
// history, presence snapshots and the admin conversation endpoints. It
// implements chatkit.HistoryAPI.
package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/lumeo/chatkit-go/chatkit"
)

// Client provides REST access to the chat endpoints under the API base
// URL, e.g. "http://localhost:8000/api/v1". Outbound calls go through a
// circuit breaker: after enough consecutive failures the breaker opens
// and calls fail fast until the cooldown elapses.
type Client struct {
	baseURL    string
	tokens     *TokenStore
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     zerolog.Logger
}

// NewClient creates a REST client. A nil TokenStore gets a fresh one.
func NewClient(baseURL string, tokens *TokenStore) *Client {
	if tokens == nil {
		tokens = NewTokenStore()
	}
	settings := gobreaker.Settings{
		Name:    "chatkit-rest",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Client-side rejections (4xx) don't indicate backend
			// trouble and must not trip the breaker.
			if apiErr, ok := err.(*APIError); ok && apiErr.Status < 500 {
				return true
			}
			return false
		},
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
		logger:     zerolog.Nop(),
	}
}

// SetHTTPClient allows setting a custom HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// SetLogger attaches a zerolog logger (optional).
func (c *Client) SetLogger(log zerolog.Logger) {
	c.logger = log
}

// Tokens returns the client's token store.
func (c *Client) Tokens() *TokenStore {
	return c.tokens
}

// Messages retrieves one page of history for a room. beforeID, when
// set, restricts the page to messages older than that id.
func (c *Client) Messages(ctx context.Context, roomID int64, page, pageSize int, beforeID *int64) ([]chatkit.ChatMessage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	if beforeID != nil {
		q.Set("before_id", strconv.FormatInt(*beforeID, 10))
	}
	path := fmt.Sprintf("/chat/rooms/%d/messages?%s", roomID, q.Encode())

	var out []chatkit.ChatMessage
	if err := c.do(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OnlineUsers returns the room's current presence snapshot.
func (c *Client) OnlineUsers(ctx context.Context, roomID int64) ([]chatkit.OnlineUser, error) {
	var out []chatkit.OnlineUser
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/chat/rooms/%d/online-users", roomID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PrivateRoom returns (creating on first use) the caller's private
// support room with an admin.
func (c *Client) PrivateRoom(ctx context.Context) (*chatkit.PrivateRoomInfo, error) {
	var out chatkit.PrivateRoomInfo
	if err := c.do(ctx, http.MethodGet, "/chat/private-room", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminChatList returns the admin's conversation list.
func (c *Client) AdminChatList(ctx context.Context) ([]chatkit.AdminChatEntry, error) {
	var out []chatkit.AdminChatEntry
	if err := c.do(ctx, http.MethodGet, "/chat/admin/chat-list", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StartChat opens (or returns) the admin's private room with userID.
func (c *Client) StartChat(ctx context.Context, userID int64) (*chatkit.StartedChat, error) {
	var out chatkit.StartedChat
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/chat/admin/start-chat/%d", userID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, dest any) error {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			c.logger.Warn().Str("path", path).Msg("circuit breaker rejected request")
			return &APIError{Status: http.StatusServiceUnavailable, Detail: "chat service unavailable"}
		}
		return err
	}
	if dest != nil && len(body) > 0 {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && eb.Detail != "" {
			apiErr.Detail = eb.Detail
		}
		c.logger.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("api error")
		return nil, apiErr
	}
	return body, nil
}
