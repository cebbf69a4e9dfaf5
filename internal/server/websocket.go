package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"parking-spots/internal/logging"
	"parking-spots/internal/parking"
)

const (
	writeWait      = 10 * time.Second
	clientBuffer   = 16
	broadcastQueue = 64
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans registry events out to websocket clients. The client set is
// owned by the Run goroutine; clients that fall behind are dropped.
type Hub struct {
	upgrader   websocket.Upgrader
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
	done       chan struct{}
	clients    atomic.Int64
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, broadcastQueue),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	clients := make(map[*wsClient]struct{})
	drop := func(c *wsClient) {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			close(c.send)
			h.clients.Store(int64(len(clients)))
		}
	}

	for {
		select {
		case <-ctx.Done():
			for c := range clients {
				drop(c)
			}
			return

		case c := <-h.register:
			clients[c] = struct{}{}
			h.clients.Store(int64(len(clients)))
			logging.Debug(ctx).Int("clients", len(clients)).Msg("websocket client connected")

		case c := <-h.unregister:
			drop(c)
			logging.Debug(ctx).Int("clients", len(clients)).Msg("websocket client disconnected")

		case message := <-h.broadcast:
			for c := range clients {
				select {
				case c.send <- message:
				default:
					logging.Warn(ctx).Msg("dropping slow websocket client")
					drop(c)
				}
			}
		}
	}
}

// Publish queues a registry event for every connected client. It never
// blocks the caller.
func (h *Hub) Publish(event parking.SpotEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("marshal spot event")
		return
	}

	select {
	case h.broadcast <- message:
	default:
		logging.Logger().Warn().Str("type", string(event.Type)).Msg("broadcast queue full, dropping event")
	}
}

func (h *Hub) ClientCount() int {
	return int(h.clients.Load())
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn(ctx).Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writeLoop()
	go h.readLoop(c)
}

// readLoop only watches for the peer going away.
func (h *Hub) readLoop(c *wsClient) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Logger().Debug().Err(err).Msg("websocket read")
			}
			return
		}
	}
}

func (c *wsClient) writeLoop() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
