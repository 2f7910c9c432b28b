// Package realtime pushes photo workflow events to websocket subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/kindrid-api/internal/models"
)

const broadcastBuffer = 256

// Hub maintains active subscribers and fans events out to them.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan models.PhotoEvent
	done       chan struct{}

	clients  map[*client]struct{}
	count    atomic.Int64
	onCount  func(int)
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// Option customises a Hub.
type Option func(*Hub)

// WithClientCountHook is called from the hub loop whenever the subscriber count changes.
func WithClientCountHook(fn func(int)) Option {
	return func(h *Hub) { h.onCount = fn }
}

// WithAllowedOrigins restricts websocket upgrades to the listed origins. Empty allows all.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[o] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
}

// NewHub creates a hub. Call Run before serving subscribers.
func NewHub(logger *zap.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan models.PhotoEvent, broadcastBuffer),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.Named("realtime"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run processes registrations and broadcasts until ctx ends, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.countChanged()

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}

		case event := <-h.broadcast:
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("marshal event failed", zap.String("type", string(event.Type)), zap.Error(err))
				continue
			}
			for c := range h.clients {
				if !c.wants(event.PhotoID) {
					continue
				}
				select {
				case c.send <- payload:
				default:
					h.logger.Warn("slow subscriber dropped")
					h.drop(c)
				}
			}
		}
	}
}

// Publish queues an event for broadcast. Events are dropped when the buffer is full.
func (h *Hub) Publish(event models.PhotoEvent) {
	select {
	case <-h.done:
	case h.broadcast <- event:
	default:
		h.logger.Warn("event buffer full, dropping", zap.String("type", string(event.Type)), zap.String("photo_id", event.PhotoID))
	}
}

// Clients returns the current subscriber count.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// ServeWS upgrades the request and streams events. An optional photoId query
// parameter limits the stream to one photo.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, 32),
		photoID: r.URL.Query().Get("photoId"),
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return nil
	}

	go c.writePump()
	go c.readPump()
	return nil
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.countChanged()
}

func (h *Hub) countChanged() {
	n := len(h.clients)
	h.count.Store(int64(n))
	if h.onCount != nil {
		h.onCount(n)
	}
}
