package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/concord-chat/livechat/internal/models"
	"github.com/concord-chat/livechat/internal/observ"
	"github.com/concord-chat/livechat/internal/protocol"
)

// Status lines shown to the user on each transition
const (
	StatusMissingCredentials = "Authentication details are missing (no token or user ID)."
	StatusAlreadyConnected   = "Already connected."
	StatusConnecting         = "Connecting to WebSocket..."
	StatusConnected          = "Connection successful!"
	StatusDisconnected       = "Disconnected. Use /connect to try again."
	StatusError              = "Connection error. Check logs and backend."

	WelcomeText = "Welcome to the live chat!"
)

// DefaultMaxMessageLength is the longest outbound message accepted
const DefaultMaxMessageLength = 500

var (
	ErrMissingCredentials = errors.New("missing token or user id")
	ErrAlreadyConnected   = errors.New("already connected")
	ErrTransport          = errors.New("transport error")
	ErrUnauthorized       = errors.New("handshake rejected the credentials")
	ErrSendRejected       = errors.New("not connected")
	ErrConnectAborted     = errors.New("connect aborted by disconnect")
	ErrEmptyMessage       = errors.New("message is empty")
	ErrMessageTooLong     = errors.New("message is too long")
)

// EventKind classifies a connection event
type EventKind int

const (
	EventState   EventKind = iota // State or status changed
	EventMessage                  // A message was appended to the store
	EventNonJSON                  // An inbound frame was not a JSON object
	EventError                    // A write failed
)

// String returns a human-readable string representation of the event kind
func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventMessage:
		return "message"
	case EventNonJSON:
		return "non-json"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a notification delivered to the Listener. State and Status
// are always the values current when the event was produced.
type Event struct {
	Kind    EventKind
	State   models.ConnectionState
	Status  string
	Message *models.Message
	Detail  string
}

// Listener receives connection events. It is called outside the
// connection's lock and may call back into the connection.
type Listener func(Event)

// Config tunes the connection
type Config struct {
	Channel          string // Initial active channel
	DropEmpty        bool   // Skip inbound messages whose text is empty
	MaxMessageLength int
}

// Connection is the live chat session state machine. It owns at most
// one transport handle at a time.
type Connection struct {
	dialer Dialer
	store  *Store
	config Config
	logger *zap.Logger

	listener Listener

	state   models.ConnectionState
	status  string
	channel string
	handle  *handle
	gen     uint64

	mu sync.Mutex
}

// NewConnection creates an idle connection appending to store
func NewConnection(dialer Dialer, store *Store, config Config, logger *zap.Logger) *Connection {
	if config.Channel == "" {
		config.Channel = models.ChannelGeneral
	}
	if config.MaxMessageLength <= 0 {
		config.MaxMessageLength = DefaultMaxMessageLength
	}
	return &Connection{
		dialer:  dialer,
		store:   store,
		config:  config,
		logger:  observ.OrNop(logger).Named("connection"),
		state:   models.StateIdle,
		channel: config.Channel,
	}
}

// SetListener sets the event listener
func (c *Connection) SetListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

// State returns the current state
func (c *Connection) State() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the current status line
func (c *Connection) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Channel returns the active channel
func (c *Connection) Channel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// SetChannel makes channel the target for inbound messages
func (c *Connection) SetChannel(channel string) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	c.mu.Lock()
	c.channel = channel
	c.mu.Unlock()
}

// Store returns the message store the connection appends to
func (c *Connection) Store() *Store {
	return c.store
}

// Connect opens the transport for userID. It blocks until the dial
// completes or fails.
func (c *Connection) Connect(ctx context.Context, token, userID string) error {
	c.mu.Lock()
	if token == "" || userID == "" {
		c.status = StatusMissingCredentials
		events := []Event{c.eventLocked(EventState)}
		c.mu.Unlock()
		c.emit(events)
		return ErrMissingCredentials
	}
	if c.state.Live() {
		c.status = StatusAlreadyConnected
		events := []Event{c.eventLocked(EventState)}
		c.mu.Unlock()
		c.emit(events)
		return ErrAlreadyConnected
	}

	c.gen++
	gen := c.gen
	c.state = models.StateConnecting
	c.status = StatusConnecting
	events := []Event{c.eventLocked(EventState)}
	c.mu.Unlock()
	c.emit(events)

	c.logger.Info("connecting", zap.String("user_id", userID))
	transport, err := c.dialer.Dial(ctx, token, userID)

	c.mu.Lock()
	if gen != c.gen {
		// Disconnect ran while dialing
		c.mu.Unlock()
		if transport != nil {
			transport.Close()
		}
		c.logger.Info("discarding connection completed after disconnect", zap.Uint64("generation", gen))
		return ErrConnectAborted
	}

	if err != nil {
		c.state = models.StateErrored
		c.status = StatusError
		errored := c.eventLocked(EventState)
		errored.Detail = err.Error()
		c.state = models.StateClosed
		c.status = StatusDisconnected
		events := []Event{errored, c.eventLocked(EventState)}
		c.mu.Unlock()
		c.emit(events)
		c.logger.Warn("connect failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	h := newHandle(transport, gen)
	c.handle = h
	c.state = models.StateOpen
	c.status = StatusConnected
	welcome := models.NewSystemMessage(c.channel, WelcomeText)
	c.store.Append(welcome)
	events = []Event{c.eventLocked(EventState), c.messageEventLocked(welcome)}
	c.mu.Unlock()
	c.emit(events)

	c.logger.Info("connected", zap.String("user_id", userID), zap.Uint64("generation", gen))

	go c.readPump(h)
	if _, ok := transport.(controlWriter); ok {
		go c.pingPump(h)
	}
	return nil
}

// Disconnect closes the transport and moves to Closed. It is idempotent
// and may be called in any state, including while Connect is dialing.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	h := c.handle
	if h == nil && c.state == models.StateClosed {
		c.mu.Unlock()
		return
	}
	c.handle = nil
	c.gen++
	c.state = models.StateClosed
	c.status = StatusDisconnected
	events := []Event{c.eventLocked(EventState)}
	c.mu.Unlock()

	if h != nil {
		h.release(true)
	}
	c.emit(events)
	c.logger.Info("disconnected")
}

// Close releases the connection; it is Disconnect for use with defer
func (c *Connection) Close() error {
	c.Disconnect()
	return nil
}

// ValidateText checks an outbound message without any I/O
func (c *Connection) ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if n := utf8.RuneCountInString(text); n > c.config.MaxMessageLength {
		return fmt.Errorf("%w: %d characters, limit is %d", ErrMessageTooLong, n, c.config.MaxMessageLength)
	}
	return nil
}

// Send writes text to channel and, once the write succeeds, appends a
// self-authored echo. An empty channel means the active channel.
func (c *Connection) Send(text, channel string) error {
	if err := c.ValidateText(text); err != nil {
		return err
	}

	c.mu.Lock()
	h := c.handle
	if c.state != models.StateOpen || h == nil {
		c.mu.Unlock()
		return ErrSendRejected
	}
	if channel == "" {
		channel = c.channel
	}
	c.mu.Unlock()

	payload, err := protocol.NewOutboundFrame(text, channel)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	if err := h.write(payload); err != nil {
		c.logger.Warn("write failed", zap.Error(err))
		c.mu.Lock()
		ev := c.eventLocked(EventError)
		ev.Detail = err.Error()
		c.mu.Unlock()
		c.emit([]Event{ev})
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	echo := models.NewMessage(models.Self(), channel, text)
	c.store.Append(echo)

	c.mu.Lock()
	ev := c.messageEventLocked(echo)
	c.mu.Unlock()
	c.emit([]Event{ev})
	return nil
}

// readPump reads frames from the transport in arrival order
func (c *Connection) readPump(h *handle) {
	defer h.release(false)

	for {
		_, data, err := h.transport.ReadMessage()
		if err != nil {
			c.handleReadError(h, err)
			return
		}
		if !c.handleFrame(h, data) {
			return
		}
	}
}

// pingPump keeps the transport alive while the handle is open
func (c *Connection) pingPump(h *handle) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := h.ping(); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				return
			}
		case <-h.done:
			return
		}
	}
}

// handleFrame normalizes one frame and appends it to the active
// channel. It returns false once the handle is no longer current.
func (c *Connection) handleFrame(h *handle, data []byte) bool {
	n := protocol.Normalize(string(data))

	c.mu.Lock()
	if h.gen != c.gen {
		c.mu.Unlock()
		return false
	}

	var events []Event
	if n.NonJSON() {
		ev := c.eventLocked(EventNonJSON)
		ev.Detail = n.Text
		events = append(events, ev)
	}
	if n.Text != "" || !c.config.DropEmpty {
		msg := models.NewMessage(n.Sender, c.channel, n.Text)
		msg.NonJSON = n.NonJSON()
		c.store.Append(msg)
		events = append(events, c.messageEventLocked(msg))
	}
	c.mu.Unlock()

	if n.NonJSON() {
		c.logger.Warn("non-JSON frame received",
			zap.Stringer("kind", n.Kind),
			zap.Int("bytes", len(data)))
	}
	c.emit(events)
	return true
}

// handleReadError ends the handle after the transport stops
func (c *Connection) handleReadError(h *handle, err error) {
	c.mu.Lock()
	if h.gen != c.gen || c.handle != h {
		// Already torn down by Disconnect
		c.mu.Unlock()
		return
	}
	c.handle = nil

	var events []Event
	if !isCleanClose(err) {
		c.state = models.StateErrored
		c.status = StatusError
		ev := c.eventLocked(EventState)
		ev.Detail = err.Error()
		events = append(events, ev)
	}
	c.state = models.StateClosed
	c.status = StatusDisconnected
	events = append(events, c.eventLocked(EventState))
	c.mu.Unlock()

	h.release(false)
	if isCleanClose(err) {
		c.logger.Info("connection closed by peer")
	} else {
		c.logger.Warn("connection error", zap.Error(err))
	}
	c.emit(events)
}

// isCleanClose reports whether a read error is an orderly close rather
// than a transport failure
func isCleanClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code != websocket.CloseAbnormalClosure
	}
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

func (c *Connection) eventLocked(kind EventKind) Event {
	return Event{Kind: kind, State: c.state, Status: c.status}
}

func (c *Connection) messageEventLocked(msg models.Message) Event {
	ev := c.eventLocked(EventMessage)
	ev.Message = &msg
	return ev
}

func (c *Connection) emit(events []Event) {
	c.mu.Lock()
	l := c.listener
	c.mu.Unlock()
	if l == nil {
		return
	}
	for _, ev := range events {
		l(ev)
	}
}
