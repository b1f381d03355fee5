package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/loxhome-core/internal/handshake"
)

const (
	// websocketPath is the backend's WebSocket API endpoint.
	websocketPath = "/api/websocket"

	// authTimeout bounds the auth exchange when ctx has no deadline.
	authTimeout = 10 * time.Second

	// writeTimeout bounds a single frame write.
	writeTimeout = 10 * time.Second

	// unsubscribeTimeout bounds the best-effort unsubscribe_events command.
	unsubscribeTimeout = 5 * time.Second

	// maxMessageSize caps incoming frames; full entity snapshots can be large.
	maxMessageSize = 16 << 20
)

// Backend message types.
const (
	msgAuthRequired = "auth_required"
	msgAuth         = "auth"
	msgAuthOK       = "auth_ok"
	msgAuthInvalid  = "auth_invalid"
	msgResult       = "result"
	msgEvent        = "event"
)

// WSDialer connects to the backend WebSocket API.
type WSDialer struct {
	// Dialer is the underlying WebSocket dialer; nil uses websocket.DefaultDialer.
	Dialer *websocket.Dialer

	logger Logger
}

// NewWSDialer creates a dialer using websocket.DefaultDialer.
func NewWSDialer() *WSDialer {
	return &WSDialer{logger: noopLogger{}}
}

// SetLogger sets the logger for the dialer and the connections it opens.
func (d *WSDialer) SetLogger(logger Logger) {
	d.logger = logger
}

// WebSocketURL derives the backend WebSocket endpoint from its base URL.
//
//	WebSocketURL("https://ha.example.com")  // "wss://ha.example.com/api/websocket"
func WebSocketURL(backendURL string) (string, error) {
	u, err := url.Parse(backendURL)
	if err != nil {
		return "", fmt.Errorf("parsing backend url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported backend url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + websocketPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Dial connects to the backend and completes the auth exchange.
func (d *WSDialer) Dial(ctx context.Context, cred handshake.Credential) (Conn, error) {
	wsURL, err := WebSocketURL(cred.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := d.logger
	if logger == nil {
		logger = noopLogger{}
	}

	ws, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // upgrade response body is unused
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrConnectionFailed, wsURL, err)
	}
	ws.SetReadLimit(maxMessageSize)

	if err := authenticate(ctx, ws, cred.AccessToken); err != nil {
		ws.Close() //nolint:errcheck // already failing
		return nil, err
	}

	c := &wsConn{
		ws:      ws,
		pending: make(map[int]chan envelope),
		events:  make(map[int]func(json.RawMessage)),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go c.readLoop()

	logger.Info("connected to backend", "url", wsURL)
	return c, nil
}

// authenticate runs auth_required -> auth -> auth_ok|auth_invalid.
func authenticate(ctx context.Context, ws *websocket.Conn, token string) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(authTimeout)
	}
	if err := ws.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if err := ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	var first envelope
	if err := ws.ReadJSON(&first); err != nil {
		return fmt.Errorf("%w: reading auth request: %v", ErrConnectionFailed, err)
	}
	if first.Type != msgAuthRequired {
		return fmt.Errorf("%w: unexpected first message %q", ErrConnectionFailed, first.Type)
	}

	if err := ws.WriteJSON(map[string]string{"type": msgAuth, "access_token": token}); err != nil {
		return fmt.Errorf("%w: sending auth: %v", ErrConnectionFailed, err)
	}

	var reply envelope
	if err := ws.ReadJSON(&reply); err != nil {
		return fmt.Errorf("%w: reading auth reply: %v", ErrConnectionFailed, err)
	}
	switch reply.Type {
	case msgAuthOK:
	case msgAuthInvalid:
		return fmt.Errorf("%w: %s", ErrAuthInvalid, reply.Message)
	default:
		return fmt.Errorf("%w: unexpected auth reply %q", ErrConnectionFailed, reply.Type)
	}

	if err := ws.SetReadDeadline(time.Time{}); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// envelope is the union of every message the backend sends.
type envelope struct {
	ID      int             `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	Event   json.RawMessage `json:"event"`
	Message string          `json:"message"`
}

// wsConn is a Conn over a gorilla WebSocket.
//
// Commands are correlated with results by id. Event handlers run on the
// read goroutine, in arrival order.
type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int
	pending map[int]chan envelope
	events  map[int]func(json.RawMessage)

	done      chan struct{}
	closeOnce sync.Once
	logger    Logger
}

func (c *wsConn) Done() <-chan struct{} {
	return c.done
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close()
		close(c.done)
	})
	return err
}

func (c *wsConn) Command(ctx context.Context, msgType string, payload map[string]any, result any) error {
	id, ch := c.register(nil)
	return c.roundTrip(ctx, id, ch, msgType, payload, result)
}

func (c *wsConn) SubscribeEntities(ctx context.Context, fn func(States)) (func(), error) {
	// Events are folded on the read goroutine, so current needs no lock.
	current := States{}
	handler := func(raw json.RawMessage) {
		var ev entitiesEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.logger.Warn("dropping malformed entities event", "error", err)
			return
		}
		current = ev.apply(current)
		fn(current)
	}

	id, ch := c.register(handler)
	if err := c.roundTrip(ctx, id, ch, "subscribe_entities", nil, nil); err != nil {
		c.mu.Lock()
		delete(c.events, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("subscribing to entities: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.events, id)
			c.mu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
			defer cancel()
			if err := c.Command(ctx, "unsubscribe_events", map[string]any{"subscription": id}, nil); err != nil {
				c.logger.Debug("unsubscribe failed", "subscription", id, "error", err)
			}
		})
	}, nil
}

// register allocates a command id and its result channel, installing
// onEvent for subscriptions before the command is written.
func (c *wsConn) register(onEvent func(json.RawMessage)) (int, chan envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	ch := make(chan envelope, 1)
	c.pending[id] = ch
	if onEvent != nil {
		c.events[id] = onEvent
	}
	return id, ch
}

func (c *wsConn) roundTrip(ctx context.Context, id int, ch chan envelope, msgType string, payload map[string]any, result any) error {
	msg := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		msg[k] = v
	}
	msg["id"] = id
	msg["type"] = msgType

	if err := c.write(msg); err != nil {
		c.forget(id)
		return err
	}

	select {
	case env := <-ch:
		if !env.Success {
			if env.Error == nil {
				return &RPCError{Code: "unknown_error", Message: msgType + " failed"}
			}
			return env.Error
		}
		if result != nil && len(env.Result) > 0 {
			if err := json.Unmarshal(env.Result, result); err != nil {
				return fmt.Errorf("decoding %s result: %w", msgType, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("%w: connection closed", ErrConnectionFailed)
	}
}

func (c *wsConn) forget(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *wsConn) write(msg any) error {
	select {
	case <-c.done:
		return fmt.Errorf("%w: connection closed", ErrConnectionFailed)
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: writing command: %v", ErrConnectionFailed, err)
	}
	return nil
}

func (c *wsConn) readLoop() {
	defer c.Close() //nolint:errcheck // read side already failed

	for {
		var env envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("backend connection lost", "error", err)
			}
			return
		}

		switch env.Type {
		case msgResult:
			c.mu.Lock()
			ch, ok := c.pending[env.ID]
			delete(c.pending, env.ID)
			c.mu.Unlock()
			if ok {
				ch <- env
			}
		case msgEvent:
			c.mu.Lock()
			handler := c.events[env.ID]
			c.mu.Unlock()
			if handler != nil {
				handler(env.Event)
			}
		default:
			c.logger.Debug("ignoring backend message", "type", env.Type)
		}
	}
}
