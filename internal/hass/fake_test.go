package hass

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nerrad567/loxhome-core/internal/handshake"
)

type fakeCommand struct {
	Type    string
	Payload map[string]any
}

// fakeConn records commands and answers them from canned results.
type fakeConn struct {
	mu       sync.Mutex
	commands []fakeCommand
	results  map[string]any
	errs     map[string]error
	subErr   error
	push     func(States)

	done      chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		results: map[string]any{},
		errs:    map[string]error{},
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) Command(_ context.Context, msgType string, payload map[string]any, result any) error {
	c.mu.Lock()
	c.commands = append(c.commands, fakeCommand{Type: msgType, Payload: payload})
	res, err := c.results[msgType], c.errs[msgType]
	c.mu.Unlock()

	if err != nil {
		return err
	}
	if result != nil && res != nil {
		data, err := json.Marshal(res)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, result)
	}
	return nil
}

func (c *fakeConn) SubscribeEntities(_ context.Context, fn func(States)) (func(), error) {
	if c.subErr != nil {
		return nil, c.subErr
	}
	c.mu.Lock()
	c.push = fn
	c.mu.Unlock()
	return func() {}, nil
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Push delivers s as if the backend had sent it.
func (c *fakeConn) Push(s States) {
	c.mu.Lock()
	fn := c.push
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (c *fakeConn) Commands() []fakeCommand {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]fakeCommand(nil), c.commands...)
}

// fakeDialer hands out fakeConns in order.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	creds []handshake.Credential
	err   error

	// gate, when set, blocks Dial until it is closed.
	gate chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, cred handshake.Credential) (Conn, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.creds = append(d.creds, cred)
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.creds)
}
