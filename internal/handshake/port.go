package handshake

import (
	"context"
	"sync"
)

// Port is a bidirectional message channel to one peer, modelled on the
// browser's window messaging: PostMessage delivers bytes to the peer, and
// Listen registers a callback for bytes arriving from the peer.
//
// Listener callbacks are invoked sequentially, in arrival order, on a
// goroutine owned by the port. A callback may remove listeners (including
// itself) and may post messages.
type Port interface {
	PostMessage(ctx context.Context, data []byte) error
	Listen(fn func(data []byte)) (remove func())
}

// listenerSet is the listener bookkeeping shared by the port implementations.
type listenerSet struct {
	mu     sync.Mutex
	nextID uint64
	fns    map[uint64]func([]byte)
	order  []uint64
}

func newListenerSet() *listenerSet {
	return &listenerSet{fns: make(map[uint64]func([]byte))}
}

func (l *listenerSet) add(fn func([]byte)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.fns[id] = fn
	l.order = append(l.order, id)
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.fns, id)
			for i, lid := range l.order {
				if lid == id {
					l.order = append(l.order[:i], l.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (l *listenerSet) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

// dispatch calls every listener registered at the time of the call.
// Listeners removed by an earlier callback in the same round are skipped.
func (l *listenerSet) dispatch(data []byte) {
	l.mu.Lock()
	ids := append([]uint64(nil), l.order...)
	l.mu.Unlock()

	for _, id := range ids {
		l.mu.Lock()
		fn, ok := l.fns[id]
		l.mu.Unlock()
		if ok {
			fn(data)
		}
	}
}

// pipeBuffer bounds the number of undelivered messages per pipe end.
const pipeBuffer = 64

// PipeEnd is one end of an in-memory Pipe.
type PipeEnd struct {
	peer      *PipeEnd
	inbox     chan []byte
	listeners *listenerSet
	done      chan struct{}
	closeOnce sync.Once
}

// NewPipe returns two connected port ends, typically one for the host and
// one for the embedded frame. Messages posted on one end are delivered to the
// listeners of the other, in order and asynchronously.
func NewPipe() (*PipeEnd, *PipeEnd) {
	a := newPipeEnd()
	b := newPipeEnd()
	a.peer, b.peer = b, a
	go a.run()
	go b.run()
	return a, b
}

func newPipeEnd() *PipeEnd {
	return &PipeEnd{
		inbox:     make(chan []byte, pipeBuffer),
		listeners: newListenerSet(),
		done:      make(chan struct{}),
	}
}

// PostMessage delivers a copy of data to the peer end.
func (p *PipeEnd) PostMessage(ctx context.Context, data []byte) error {
	msg := append([]byte(nil), data...)
	select {
	case <-p.done:
		return ErrPortClosed
	case <-p.peer.done:
		return ErrPortClosed
	default:
	}

	select {
	case p.peer.inbox <- msg:
		return nil
	case <-p.peer.done:
		return ErrPortClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Listen registers fn for messages arriving at this end.
func (p *PipeEnd) Listen(fn func([]byte)) func() {
	return p.listeners.add(fn)
}

// ListenerCount returns the number of registered listeners.
func (p *PipeEnd) ListenerCount() int {
	return p.listeners.count()
}

// Close stops delivery at this end. Pending messages are dropped.
func (p *PipeEnd) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

func (p *PipeEnd) run() {
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.inbox:
			p.listeners.dispatch(msg)
		}
	}
}
