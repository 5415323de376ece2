package realtime

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 64
)

// inboundEnvelope defers payload decoding to the message handler.
type inboundEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MessageHandler receives one decoded inbound frame.
type MessageHandler func(messageType string, data json.RawMessage)

// CloseHandler runs once when the connection's read pump exits.
type CloseHandler func()

// Client pumps messages between one websocket connection and the hub.
type Client struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	send      chan Message
	onMessage MessageHandler
	onClose   CloseHandler
	logger    *zap.Logger
}

// NewClient wraps an upgraded connection. The caller supplies the connection
// id and the inbound dispatch and close callbacks.
func NewClient(hub *Hub, conn *websocket.Conn, connectionID string, onMessage MessageHandler, onClose CloseHandler, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		id:        connectionID,
		hub:       hub,
		conn:      conn,
		send:      make(chan Message, sendBufferSize),
		onMessage: onMessage,
		onClose:   onClose,
		logger:    logger,
	}
}

// ID returns the connection identifier.
func (c *Client) ID() string {
	return c.id
}

// Start attaches the client to the hub and launches both pumps.
func (c *Client) Start() {
	c.hub.Attach(c)
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Detach(c.id)
		_ = c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var envelope inboundEnvelope
		if err := c.conn.ReadJSON(&envelope); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected websocket close",
					zap.String("connection_id", c.id),
					zap.Error(err))
			}
			return
		}
		if c.onMessage != nil {
			c.onMessage(envelope.Type, envelope.Data)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", zap.Error(err))
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Warn("failed to write message",
					zap.String("connection_id", c.id),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
