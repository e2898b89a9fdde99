package devserver

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/concord-chat/livechat/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024

	// Size of client send buffer
	sendBufferSize = 256
)

// Client is one WebSocket connection to the dev server
type Client struct {
	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	userID string
	logger *zap.Logger
}

func newClient(conn *websocket.Conn, hub *Hub, userID string, logger *zap.Logger) *Client {
	return &Client{
		conn:   conn,
		hub:    hub,
		send:   make(chan []byte, sendBufferSize),
		userID: userID,
		logger: logger,
	}
}

// readPump relays chat frames from the connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket error", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}

		frame, err := protocol.DecodeOutboundFrame(data)
		if err != nil {
			// Relay anything unstructured verbatim, as a lenient backend would
			c.hub.submit(broadcast{from: c, frame: protocol.BroadcastFrame{ID: c.userID, Text: string(data)}})
			continue
		}

		c.hub.submit(broadcast{
			from:  c,
			frame: protocol.BroadcastFrame{ID: c.userID, Text: frame.Text, Channel: frame.Channel},
		})
	}
}

// writePump writes relayed frames and keepalive pings to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed", zap.String("user_id", c.userID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
