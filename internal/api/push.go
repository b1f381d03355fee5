package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/loxhome-core/internal/infrastructure/config"
	"github.com/nerrad567/loxhome-core/internal/infrastructure/logging"
)

// Push message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// maxPendingReplies bounds responses queued for a client that stopped
	// reading.
	maxPendingReplies = 64
)

// Channel names a push channel.
type Channel string

// Push channels, in the order queued events are written.
const (
	// ChannelEntityStates carries the full entity state map on every change.
	ChannelEntityStates Channel = "entity.states"

	// ChannelDashboardConfig carries the dashboard config on every change.
	ChannelDashboardConfig Channel = "dashboard.config"

	// ChannelSidebar carries toggle-sidebar requests from embedded frames.
	ChannelSidebar Channel = "ui.sidebar"
)

var pushChannels = []Channel{ChannelEntityStates, ChannelDashboardConfig, ChannelSidebar}

func (c Channel) known() bool {
	for _, ch := range pushChannels {
		if c == ch {
			return true
		}
	}
	return false
}

// WSMessage is a message sent to a push client.
type WSMessage struct {
	Type      string  `json:"type"`
	ID        string  `json:"id,omitempty"`
	EventType Channel `json:"event_type,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
	Payload   any     `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe requests.
type WSSubscribePayload struct {
	Channels []Channel `json:"channels"`
}

// wsRequest is a message received from a push client.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SnapshotFunc returns the current value of a channel, if it has one.
type SnapshotFunc func(Channel) (any, bool)

// Hub fans channel events out to push clients.
//
// Events are coalesced per client and channel: a client that falls behind
// receives only the newest value of each channel it missed, never a stale
// one. Responses to a client's own requests are kept in order.
type Hub struct {
	cfg      config.WebSocketConfig
	logger   *logging.Logger
	snapshot SnapshotFunc

	mu      sync.RWMutex
	clients map[*pushClient]struct{}
}

// pushClient is one connected push WebSocket.
type pushClient struct {
	hub  *Hub
	conn *websocket.Conn

	mu         sync.Mutex
	subscribed map[Channel]bool
	replies    [][]byte
	latest     map[Channel][]byte

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origins are checked by the CORS middleware.
		return true
	},
}

// NewHub creates a hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*pushClient]struct{}),
	}
}

// SetSnapshot sets the function whose value a client receives as soon as
// it subscribes to a channel. Must be called before Run.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.snapshot = fn
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*pushClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

func newPushClient(h *Hub, conn *websocket.Conn) *pushClient {
	return &pushClient{
		hub:        h,
		conn:       conn,
		subscribed: make(map[Channel]bool),
		latest:     make(map[Channel][]byte),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

func (h *Hub) register(c *pushClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("push client connected", "clients", n)
}

func (h *Hub) unregister(c *pushClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	h.logger.Debug("push client disconnected", "clients", n)
}

// Broadcast queues payload for every client subscribed to channel.
func (h *Hub) Broadcast(channel Channel, payload any) {
	data, err := eventMessage(channel, payload)
	if err != nil {
		h.logger.Error("encoding push event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*pushClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.deliver(channel, data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the request to a push connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newPushClient(s.hub, conn)
	s.hub.register(c)

	go c.writeLoop()
	go c.readLoop()
}

// deliver replaces the queued event of channel if the client subscribes to it.
func (c *pushClient) deliver(channel Channel, data []byte) {
	c.mu.Lock()
	if !c.subscribed[channel] {
		c.mu.Unlock()
		return
	}
	c.latest[channel] = data
	c.mu.Unlock()
	c.signal()
}

func (c *pushClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(timeFormat),
		Payload:   payload,
	})
	if err != nil {
		return
	}

	c.mu.Lock()
	if len(c.replies) < maxPendingReplies {
		c.replies = append(c.replies, data)
	}
	c.mu.Unlock()
	c.signal()
}

func (c *pushClient) replyError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}

func (c *pushClient) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// next takes everything queued: replies first, then one event per channel.
func (c *pushClient) next() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.replies
	c.replies = nil
	for _, ch := range pushChannels {
		if data, ok := c.latest[ch]; ok {
			out = append(out, data)
			delete(c.latest, ch)
		}
	}
	return out
}

func (c *pushClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *pushClient) isSubscribed(channel Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed[channel]
}

func (c *pushClient) readLoop() {
	defer c.hub.unregister(c)

	cfg := c.hub.cfg
	keepAlive := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(keepAlive)) //nolint:errcheck // a failed deadline surfaces on read
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(keepAlive))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("push client read error", "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any message counts.
		c.conn.SetReadDeadline(time.Now().Add(keepAlive)) //nolint:errcheck // as above
		c.handle(data)
	}
}

func (c *pushClient) writeLoop() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) bool {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // a failed deadline surfaces on write
		return c.conn.WriteMessage(kind, data) == nil
	}

	for {
		select {
		case <-c.done:
			write(websocket.CloseMessage, nil)
			return
		case <-c.wake:
			for _, data := range c.next() {
				if !write(websocket.TextMessage, data) {
					c.hub.unregister(c)
					return
				}
			}
		case <-ticker.C:
			if !write(websocket.PingMessage, nil) {
				c.hub.unregister(c)
				return
			}
		}
	}
}

func (c *pushClient) handle(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.replyError("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypeSubscribe:
		c.subscribe(req)
	case WSTypeUnsubscribe:
		c.unsubscribe(req)
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.replyError(req.ID, "unknown message type: "+req.Type)
	}
}

// subscribe adds the known channels of req and queues their snapshots.
// Unknown channels are reported back, not subscribed.
func (c *pushClient) subscribe(req wsRequest) {
	var p WSSubscribePayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		c.replyError(req.ID, "invalid subscribe payload")
		return
	}

	accepted := []Channel{}
	rejected := []Channel{}
	c.mu.Lock()
	for _, ch := range p.Channels {
		if !ch.known() {
			rejected = append(rejected, ch)
			continue
		}
		c.subscribed[ch] = true
		accepted = append(accepted, ch)
	}
	c.mu.Unlock()

	resp := map[string]any{"subscribed": accepted}
	if len(rejected) > 0 {
		resp["rejected"] = rejected
	}
	c.reply(req.ID, WSTypeResponse, resp)

	if c.hub.snapshot == nil {
		return
	}
	for _, ch := range accepted {
		value, ok := c.hub.snapshot(ch)
		if !ok {
			continue
		}
		data, err := eventMessage(ch, value)
		if err != nil {
			c.hub.logger.Error("encoding push snapshot", "channel", ch, "error", err)
			continue
		}
		c.deliver(ch, data)
	}
}

func (c *pushClient) unsubscribe(req wsRequest) {
	var p WSSubscribePayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		c.replyError(req.ID, "invalid unsubscribe payload")
		return
	}

	c.mu.Lock()
	for _, ch := range p.Channels {
		delete(c.subscribed, ch)
		delete(c.latest, ch)
	}
	c.mu.Unlock()

	c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": p.Channels})
}

func eventMessage(channel Channel, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(timeFormat),
		Payload:   payload,
	})
}
