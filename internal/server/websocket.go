package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/assetflow/internal/logging"
	"github.com/conneroisu/assetflow/internal/validation"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 50 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Messages queued for the hub and for each client.
	broadcastBuffer = 16
	clientBuffer    = 64
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// hub fans reload messages out to every connected browser.
type hub struct {
	logger     logging.Logger
	broadcast  chan []byte
	register   chan *client
	unregister chan *client

	clientsMutex sync.RWMutex
	clients      map[*client]struct{}
}

func newHub(logger logging.Logger) *hub {
	return &hub{
		logger:     logger,
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]struct{}),
	}
}

// publish queues message without blocking.
func (h *hub) publish(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Debug(context.Background(), "reload message dropped, queue full")
	}
}

func (h *hub) count() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

func (h *hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			if c == nil || c.conn == nil {
				continue
			}
			h.clientsMutex.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Debug(ctx, "browser connected", "clients", total)

		case c := <-h.unregister:
			if c == nil {
				continue
			}
			h.remove(c)

		case message := <-h.broadcast:
			var slow []*client
			h.clientsMutex.RLock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					slow = append(slow, c)
				}
			}
			h.clientsMutex.RUnlock()

			for _, c := range slow {
				h.remove(c)
			}
		}
	}
}

func (h *hub) remove(c *client) {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Debug(context.Background(), "browser disconnected", "clients", len(h.clients))
}

func (h *hub) closeAll() {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (s *DevServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	allowed := s.allowedHosts(r)
	if err := validation.ValidateOrigin(r.Header.Get("Origin"), allowed); err != nil {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: allowed,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	select {
	case s.hub.register <- c:
	case <-r.Context().Done():
		conn.Close(websocket.StatusGoingAway, "")
		return
	}

	// The request context ends when the handler returns, so the pumps run on
	// their own context tied to the connection.
	ctx, cancel := context.WithCancel(context.Background())
	go s.writePump(ctx, c)
	s.readPump(ctx, c)
	cancel()
}

// allowedHosts lists the host:port pairs a browser may connect from.
func (s *DevServer) allowedHosts(r *http.Request) []string {
	hosts := []string{s.config.Addr()}
	if r.Host != "" && r.Host != s.config.Addr() {
		hosts = append(hosts, r.Host)
	}
	return hosts
}

// readPump drains the connection until the browser goes away. Browsers never
// send anything meaningful, but reading is required to process control
// frames.
func (s *DevServer) readPump(ctx context.Context, c *client) {
	defer func() {
		select {
		case s.hub.unregister <- c:
		case <-time.After(writeWait):
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				s.logger.Debug(ctx, "websocket read ended", "error", err.Error())
			}
			return
		}
	}
}

func (s *DevServer) writePump(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				s.logger.Debug(ctx, "websocket write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
