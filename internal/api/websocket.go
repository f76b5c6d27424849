package api

import (
	"context"
	"sync"

	"github.com/Medi-Pal/medipal/internal/notify"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

type wsMessage struct {
	Type   string         `json:"type"`
	Notice *notify.Notice `json:"notice,omitempty"`
	Event  *notify.Event  `json:"event,omitempty"`
}

type wsClient struct {
	out chan wsMessage
}

// WSSink pushes notices to every connected websocket client. Clients that
// fall behind drop notices.
type WSSink struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

func NewWSSink(logger *zap.Logger) *WSSink {
	return &WSSink{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Name implements notify.Sink
func (w *WSSink) Name() string { return "websocket" }

// Deliver implements notify.Sink
func (w *WSSink) Deliver(_ context.Context, n notify.Notice) error {
	w.broadcast(wsMessage{Type: "notice", Notice: &n})
	return nil
}

// Clients returns the number of connected clients
func (w *WSSink) Clients() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.clients)
}

func (w *WSSink) add() *wsClient {
	c := &wsClient{out: make(chan wsMessage, 32)}
	w.mu.Lock()
	w.clients[c] = struct{}{}
	w.mu.Unlock()
	return c
}

func (w *WSSink) remove(c *wsClient) {
	w.mu.Lock()
	delete(w.clients, c)
	w.mu.Unlock()
}

func (w *WSSink) broadcast(msg wsMessage) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for c := range w.clients {
		select {
		case c.out <- msg:
		default:
		}
	}
}

// handleWebSocket streams notices and prescriptions-changed events. The
// connection is write-only; reads only detect the close.
func (s *Server) handleWebSocket(c *websocket.Conn) {
	defer c.Close()

	client := s.ws.add()
	defer s.ws.remove(client)

	var events <-chan notify.Event
	if s.deps.Broadcaster != nil {
		ch, unsubscribe := s.deps.Broadcaster.Subscribe(16)
		defer unsubscribe()
		events = ch
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		var msg wsMessage
		select {
		case <-closed:
			return
		case msg = <-client.out:
		case e, ok := <-events:
			if !ok {
				return
			}
			msg = wsMessage{Type: "event", Event: &e}
		}

		if err := c.WriteJSON(msg); err != nil {
			s.logger.Warn("WebSocket write error", zap.Error(err))
			return
		}
	}
}
