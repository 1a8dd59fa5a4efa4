package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	readLimit    = 4 * 1024
	readDeadline = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Client is one UI subscriber to the notification stream. Writes go
// through a buffered send channel; a slow client drops messages rather
// than stalling the broadcaster.
type Client struct {
	ws           *websocket.Conn
	send         chan []byte
	logger       *zap.Logger
	writeTimeout time.Duration
	onClose      func(*Client)
}

// NewClient builds a client wrapper.
func NewClient(ws *websocket.Conn, writeTimeout time.Duration, logger *zap.Logger, onClose func(*Client)) *Client {
	return &Client{
		ws:           ws,
		send:         make(chan []byte, 16),
		logger:       logger,
		writeTimeout: writeTimeout,
		onClose:      onClose,
	}
}

// Start launches the read and write pumps.
func (c *Client) Start(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump only watches for close; the stream is one-way.
func (c *Client) readPump(ctx context.Context) {
	defer c.cleanup()
	c.ws.SetReadLimit(readLimit)
	c.ws.SetReadDeadline(time.Now().Add(readDeadline))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, _, err := c.ws.ReadMessage(); err != nil {
			c.logger.Debug("notification client disconnected", zap.Error(err))
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

// Send enqueues a message for writing.
func (c *Client) Send(msg []byte) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("dropping notification, client buffer full")
	}
}

func (c *Client) write(messageType int, payload []byte) error {
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(messageType, payload)
}

func (c *Client) cleanup() {
	if c.onClose != nil {
		c.onClose(c)
	}
	_ = c.ws.Close()
}
