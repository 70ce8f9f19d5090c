package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/smoker-monitor/internal/metrics"
	"github.com/afroash/smoker-monitor/internal/models"
)

// Constants for WebSocket timeouts
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 16
)

// Hub streams alerts to websocket clients. It is an alert sink: a client
// that cannot keep up is disconnected rather than slowing the caller.
type Hub struct {
	upgrader       websocket.Upgrader
	authToken      string
	allowedOrigins []string
	logger         zerolog.Logger
	startedAt      time.Time

	sendMu sync.Mutex
	seq    uint64 // last frame number sent, guarded by sendMu

	clients map[*streamClient]struct{}
	mutex   sync.RWMutex
}

// streamClient is one connected websocket subscriber
type streamClient struct {
	conn        *websocket.Conn
	send        chan []byte
	addr        string
	connectedAt time.Time
	closeOnce   sync.Once
}

// ClientInfo describes a connected client
type ClientInfo struct {
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// NewHub creates a websocket hub. An empty authToken disables auth.
func NewHub(authToken string, logger zerolog.Logger, allowedOrigins ...string) *Hub {
	h := &Hub{
		authToken:      authToken,
		allowedOrigins: allowedOrigins,
		logger:         logger,
		startedAt:      time.Now(),
		clients:        make(map[*streamClient]struct{}),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// checkOrigin validates the request Origin against the allowlist.
// Requests without an Origin header are same-origin.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range h.allowedOrigins {
		if origin == allowed || allowed == "*" {
			return true
		}
	}

	h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: origin not in allowlist")
	return false
}

// validateToken checks a "Bearer <token>" header
func (h *Hub) validateToken(authHeader string) bool {
	if h.authToken == "" {
		return true
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	return strings.TrimPrefix(authHeader, "Bearer ") == h.authToken
}

// ServeHTTP upgrades the request and streams alerts until the client leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.validateToken(r.Header.Get("Authorization")) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	c := &streamClient{
		conn:        conn,
		send:        make(chan []byte, clientSendSize),
		addr:        conn.RemoteAddr().String(),
		connectedAt: time.Now(),
	}

	h.mutex.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mutex.Unlock()
	h.logger.Info().Str("remote_addr", c.addr).Int("clients", total).Msg("Stream client connected")

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client frames and notices when the client goes away
func (h *Hub) readPump(c *streamClient) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("remote_addr", c.addr).Msg("WebSocket error")
			}
			return
		}
	}
}

// writePump delivers queued frames and keeps the connection alive
func (h *Hub) writePump(c *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.logger.Warn().Err(err).Str("remote_addr", c.addr).Msg("Failed to send frame")
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// remove unregisters a client and closes its send queue
func (h *Hub) remove(c *streamClient) {
	h.mutex.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mutex.Unlock()

	c.closeOnce.Do(func() { close(c.send) })
	if ok {
		h.logger.Info().Str("remote_addr", c.addr).Msg("Stream client disconnected")
	}
}

// Emit broadcasts an alert to every connected client
func (h *Hub) Emit(alert models.AlertEvent) {
	h.broadcast(func(seq uint64) (models.StreamMessage, error) {
		return models.NewAlertMessage(seq, alert)
	})
}

// broadcast numbers the frame built by frameAt and queues it for every
// client. Numbering and queueing share sendMu, so each client queue holds
// frames in seq order. Clients whose queue is full are dropped.
func (h *Hub) broadcast(frameAt func(seq uint64) (models.StreamMessage, error)) {
	h.sendMu.Lock()
	msg, err := frameAt(h.seq + 1)
	if err != nil {
		h.sendMu.Unlock()
		h.logger.Error().Err(err).Msg("Failed to frame stream message")
		return
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		h.sendMu.Unlock()
		h.logger.Error().Err(err).Uint64("seq", msg.Seq).Msg("Failed to encode stream frame")
		return
	}
	h.seq = msg.Seq

	var slow []*streamClient
	h.mutex.RLock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mutex.RUnlock()
	h.sendMu.Unlock()

	for _, c := range slow {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonSinkFull).Inc()
		h.logger.Warn().Str("remote_addr", c.addr).Msg("Stream client too slow, disconnecting")
		h.remove(c)
	}
}

// Run sends a heartbeat to every client each interval until ctx is done,
// then disconnects all clients.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-ticker.C:
			hb := models.Heartbeat{
				UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
				Clients:       h.ClientCount(),
			}
			h.broadcast(func(seq uint64) (models.StreamMessage, error) {
				return models.NewHeartbeatMessage(seq, hb)
			})
		}
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mutex.RLock()
	clients := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mutex.RUnlock()

	for _, c := range clients {
		h.remove(c)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Clients returns the currently connected clients
func (h *Hub) Clients() []ClientInfo {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]ClientInfo, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, ClientInfo{RemoteAddr: c.addr, ConnectedAt: c.connectedAt})
	}
	return clients
}
