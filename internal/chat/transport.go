package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame
	writeWait = 10 * time.Second

	// Time allowed to read the next pong
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size
	maxFrameSize = 512 * 1024
)

// Transport is a bidirectional message transport. *websocket.Conn
// satisfies it.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a transport for a user
type Dialer interface {
	Dial(ctx context.Context, token, userID string) (Transport, error)
}

// Optional transport capabilities used for keepalive and deadlines
type (
	controlWriter interface {
		WriteControl(messageType int, data []byte, deadline time.Time) error
	}
	writeDeadliner interface {
		SetWriteDeadline(t time.Time) error
	}
)

// WebSocketDialer dials the backend's real-time endpoint
type WebSocketDialer struct {
	BaseURL          string
	HandshakeTimeout time.Duration
}

// NewWebSocketDialer creates a dialer for an http(s) backend base URL
func NewWebSocketDialer(baseURL string) *WebSocketDialer {
	return &WebSocketDialer{
		BaseURL:          baseURL,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Dial opens the WebSocket and arms the read deadline refreshed by pongs
func (d *WebSocketDialer) Dial(ctx context.Context, token, userID string) (Transport, error) {
	endpoint, err := BuildURL(d.BaseURL, token, userID)
	if err != nil {
		return nil, err
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, fmt.Errorf("failed to connect: %s: %w", resp.Status, ErrUnauthorized)
			}
			return nil, fmt.Errorf("failed to connect: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	return conn, nil
}

// BuildURL returns the real-time endpoint for a user:
// ws(s)://host/user/{userID}/websocketTest?token=...&user_id=...
func BuildURL(baseURL, token, userID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("invalid server address: %w", err)
	}

	// Ensure WebSocket scheme
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server address: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server address: missing host")
	}

	rawBase := strings.TrimSuffix(u.EscapedPath(), "/")
	u.Path = strings.TrimSuffix(u.Path, "/") + "/user/" + userID + "/websocketTest"
	u.RawPath = rawBase + "/user/" + url.PathEscape(userID) + "/websocketTest"

	q := url.Values{}
	q.Set("token", token)
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// handle owns one open transport. Its generation ties callbacks from
// the transport's goroutines to the connect call that created it.
type handle struct {
	transport Transport
	gen       uint64
	done      chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newHandle(t Transport, gen uint64) *handle {
	return &handle{
		transport: t,
		gen:       gen,
		done:      make(chan struct{}),
	}
}

// write sends one text frame. Writes are serialized.
func (h *handle) write(data []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if d, ok := h.transport.(writeDeadliner); ok {
		d.SetWriteDeadline(time.Now().Add(writeWait))
	}
	return h.transport.WriteMessage(websocket.TextMessage, data)
}

// ping writes a keepalive ping if the transport supports control frames
func (h *handle) ping() error {
	cw, ok := h.transport.(controlWriter)
	if !ok {
		return nil
	}
	return cw.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// release closes the transport exactly once. A normal closure frame is
// attempted first when graceful is set.
func (h *handle) release(graceful bool) {
	h.closeOnce.Do(func() {
		close(h.done)
		if cw, ok := h.transport.(controlWriter); ok && graceful {
			cw.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
		}
		h.transport.Close()
	})
}
