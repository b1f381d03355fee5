package handshake

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsWriteTimeout bounds a single frame write when ctx has no deadline.
const wsWriteTimeout = 10 * time.Second

// WSPort carries cross-frame messages over a WebSocket so host and embedded
// side can run in different processes. Each text frame is one message.
type WSPort struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	listeners *listenerSet
	done      chan struct{}
	closeOnce sync.Once

	// readDone is closed after err is set by the read loop.
	readDone chan struct{}
	err      error
}

// NewWSPort wraps an established connection and starts its read loop.
func NewWSPort(conn *websocket.Conn) *WSPort {
	p := &WSPort{
		conn:      conn,
		listeners: newListenerSet(),
		done:      make(chan struct{}),
		readDone:  make(chan struct{}),
	}
	go p.readLoop()
	return p
}

// DialPort connects to a host frame endpoint such as ws://host:8090/frame.
func DialPort(ctx context.Context, url string) (*WSPort, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // handshake response body is unused
	}
	if err != nil {
		return nil, fmt.Errorf("dialing frame port %s: %w", url, err)
	}
	return NewWSPort(conn), nil
}

// UpgradePort upgrades an HTTP request to a frame port.
func UpgradePort(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader) (*WSPort, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrading frame port: %w", err)
	}
	// The HTTP server's read timeout must not end a long-lived frame.
	//nolint:errcheck // a failing deadline surfaces on the next read
	conn.SetReadDeadline(time.Time{})
	return NewWSPort(conn), nil
}

// PostMessage writes data as one text frame.
func (p *WSPort) PostMessage(ctx context.Context, data []byte) error {
	select {
	case <-p.done:
		return ErrPortClosed
	default:
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(wsWriteTimeout)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if err := p.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing frame message: %w", err)
	}
	return nil
}

// Listen registers fn for messages read from the connection.
func (p *WSPort) Listen(fn func([]byte)) func() {
	return p.listeners.add(fn)
}

// Done is closed when the connection ends.
func (p *WSPort) Done() <-chan struct{} {
	return p.done
}

// Err blocks until the read loop exits and returns the error that ended it.
func (p *WSPort) Err() error {
	<-p.readDone
	return p.err
}

// Close closes the underlying connection.
func (p *WSPort) Close() error {
	err := p.conn.Close()
	p.closeOnce.Do(func() { close(p.done) })
	return err
}

func (p *WSPort) readLoop() {
	for {
		msgType, data, err := p.conn.ReadMessage()
		if err != nil {
			p.err = err
			close(p.readDone)
			p.closeOnce.Do(func() { close(p.done) })
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		p.listeners.dispatch(data)
	}
}
