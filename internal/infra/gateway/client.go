package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotFound is returned when the gateway does not know the channel
var ErrNotFound = errors.New("not found")

// Channel is a resolved channel as reported by the gateway
type Channel struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Title    string `json:"title"`
}

// JoinResponse is the raw outcome of a join request
type JoinResponse struct {
	HTTPStatus  int    `json:"-"`
	Status      string `json:"status"`
	WaitSeconds int    `json:"wait_seconds"`
	Error       string `json:"error"`
}

// Media is an attachment reference
type Media struct {
	Kind     string `json:"kind"`
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Event is one frame of the event stream
type Event struct {
	Type      string  `json:"type"`
	Channel   string  `json:"channel"`
	MessageID int64   `json:"message_id"`
	Date      int64   `json:"date"`
	Text      string  `json:"text"`
	Media     []Media `json:"media"`
	GroupedID string  `json:"grouped_id"`
	Views     int     `json:"views"`
	Forwards  int     `json:"forwards"`
	Link      string  `json:"link"`
}

type subscribeAction struct {
	Action string  `json:"action"`
	Peers  []int64 `json:"peers"`
}

type apiError struct {
	Error string `json:"error"`
}

// Client talks to the platform gateway over HTTP and WebSocket
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger

	// ReconnectDelay is the pause before the stream is redialed
	ReconnectDelay time.Duration
}

// NewClient creates a new gateway client
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		token:          token,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		dialer:         websocket.DefaultDialer,
		logger:         logger.With("component", "gateway"),
		ReconnectDelay: 5 * time.Second,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// getJSON performs a GET and decodes a 200 response into out
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", path, readError(resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func readError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e apiError
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// ResolveChannel looks up a channel by username
func (c *Client) ResolveChannel(ctx context.Context, username string) (*Channel, error) {
	var ch Channel
	if err := c.getJSON(ctx, "/v1/channels/"+url.PathEscape(username), &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// IsMember checks our participation in a channel
func (c *Client) IsMember(ctx context.Context, channelID int64) (bool, error) {
	var out struct {
		Member bool `json:"member"`
	}
	if err := c.getJSON(ctx, "/v1/channels/"+strconv.FormatInt(channelID, 10)+"/membership", &out); err != nil {
		return false, err
	}
	return out.Member, nil
}

// ListMemberships returns the usernames of every joined channel
func (c *Client) ListMemberships(ctx context.Context) ([]string, error) {
	var out struct {
		Channels []string `json:"channels"`
	}
	if err := c.getJSON(ctx, "/v1/memberships", &out); err != nil {
		return nil, err
	}
	return out.Channels, nil
}

// Join requests membership. Non-2xx answers are returned in the response, not as errors.
func (c *Client) Join(ctx context.Context, channelID int64) (*JoinResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/channels/"+strconv.FormatInt(channelID, 10)+"/join")
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("join request: %w", err)
	}
	defer resp.Body.Close()

	out := &JoinResponse{HTTPStatus: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read join response: %w", err)
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			out.Error = strings.TrimSpace(string(body))
		}
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("join request: status %d: %s", resp.StatusCode, out.Error)
	}
	return out, nil
}

// ListMedia returns every attachment of a post, including the rest of its album
func (c *Client) ListMedia(ctx context.Context, channel string, messageID int64) ([]Media, error) {
	var out struct {
		Media []Media `json:"media"`
	}
	path := "/v1/channels/" + url.PathEscape(channel) + "/messages/" + strconv.FormatInt(messageID, 10) + "/media"
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Media, nil
}

// DownloadFile streams a file into dir and returns the local path
func (c *Client) DownloadFile(ctx context.Context, fileID, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/v1/files/"+url.PathEscape(fileID))
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: %s", fileID, readError(resp))
	}

	if name == "" {
		name = fileID
	}
	file, err := os.CreateTemp(dir, "*-"+filepath.Base(name))
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return file.Name(), nil
}

// Stream connects to the event stream for the given channel ids.
// It reconnects until ctx ends and closes the returned channel afterwards.
func (c *Client) Stream(ctx context.Context, channelIDs []int64) (<-chan *Event, error) {
	conn, err := c.dial(ctx, channelIDs)
	if err != nil {
		return nil, err
	}

	out := make(chan *Event, 64)
	go func() {
		defer close(out)
		for {
			c.readLoop(ctx, conn, out)
			conn.Close()

			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.ReconnectDelay):
				}
				conn, err = c.dial(ctx, channelIDs)
				if err == nil {
					c.logger.Info("stream reconnected")
					break
				}
				c.logger.Warn("stream reconnect failed", "error", err)
			}
		}
	}()
	return out, nil
}

func (c *Client) dial(ctx context.Context, channelIDs []int64) (*websocket.Conn, error) {
	wsURL := c.baseURL + "/v1/stream"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial stream: %w", err)
	}

	if err := conn.WriteJSON(subscribeAction{Action: "subscribe", Peers: channelIDs}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return conn, nil
}

// readLoop forwards message frames until the connection breaks or ctx ends
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- *Event) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("stream read failed", "error", err)
			}
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warn("malformed stream frame", "error", err)
			continue
		}
		if ev.Type != "message" {
			continue
		}
		select {
		case out <- &ev:
		case <-ctx.Done():
			return
		}
	}
}
