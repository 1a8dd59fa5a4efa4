package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server upgrades HTTP connections to WebSockets for the notification
// stream.
type Server struct {
	hub          *Hub
	logger       *zap.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewServer builds ws server.
func NewServer(hub *Hub, writeTimeout time.Duration, logger *zap.Logger) *Server {
	return &Server{
		hub:          hub,
		logger:       logger,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS is the HTTP handler for /ws/notifications.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(conn, s.writeTimeout, s.logger, func(c *Client) {
		s.hub.Remove(c)
		cancel()
	})
	s.hub.Add(client)

	go client.Start(ctx)
	s.logger.Info("notification client connected", zap.String("remote", r.RemoteAddr))
}
