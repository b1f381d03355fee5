package handshake

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultTimeout is how long the panel waits for the host's credential.
const DefaultTimeout = 5 * time.Second

// PanelOptions configures ConnectAsPanel.
type PanelOptions struct {
	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration

	// Logger receives handshake diagnostics. Optional.
	Logger Logger
}

// phase is the panel handshake state.
type phase int

const (
	phaseIdle phase = iota
	phaseAwaitingCredential
	phaseResolved
	phaseRejected
	phaseTimedOut
	phaseCancelled
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseAwaitingCredential:
		return "awaiting_credential"
	case phaseResolved:
		return "resolved"
	case phaseRejected:
		return "rejected"
	case phaseTimedOut:
		return "timed_out"
	case phaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type outcome struct {
	cred Credential
	err  error
}

// panelHandshake is one run of the embedded-side state machine. Only the
// first transition out of phaseAwaitingCredential takes effect.
type panelHandshake struct {
	mu     sync.Mutex
	phase  phase
	remove func()
	timer  *time.Timer
	done   chan outcome
	logger Logger
}

// ConnectAsPanel obtains a credential from the host through parent.
//
// It listens for the host's auth message, asks for it with auth-request,
// and waits up to the timeout. The listener and timer are removed exactly
// once whatever the result; auth messages arriving afterwards are ignored.
//
// Parameters:
//   - ctx: Cancelling ctx ends the wait with ctx.Err()
//   - parent: Port to the host, nil when not embedded
//   - opts: Timeout and logger
//
// Returns:
//   - Credential: The host's credential
//   - error: ErrNotEmbedded, ErrHandshakeTimeout, ErrInvalidCredential, or ctx.Err()
func ConnectAsPanel(ctx context.Context, parent Port, opts PanelOptions) (Credential, error) {
	if parent == nil {
		return Credential{}, ErrNotEmbedded
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	h := &panelHandshake{
		done:   make(chan outcome, 1),
		logger: logger,
	}

	h.mu.Lock()
	h.remove = parent.Listen(h.handleMessage)
	h.timer = time.AfterFunc(timeout, func() {
		h.finish(phaseTimedOut, outcome{err: ErrHandshakeTimeout})
	})
	h.phase = phaseAwaitingCredential
	h.mu.Unlock()

	if err := Post(ctx, parent, Message{Type: KindAuthRequest}); err != nil {
		logger.Warn("auth request not delivered, waiting for host", "error", err)
	}

	select {
	case o := <-h.done:
		return o.cred, o.err
	case <-ctx.Done():
		h.finish(phaseCancelled, outcome{err: ctx.Err()})
		o := <-h.done
		return o.cred, o.err
	}
}

func (h *panelHandshake) handleMessage(data []byte) {
	msg, err := ParseMessage(data)
	if err != nil {
		h.logger.Debug("ignoring host message", "error", err)
		return
	}
	if msg.Type != KindAuth {
		return
	}

	cred := msg.Credential()
	if err := cred.Validate(); err != nil {
		h.finish(phaseRejected, outcome{err: err})
		return
	}
	h.finish(phaseResolved, outcome{cred: cred})
}

// finish performs the terminal transition. It reports false when the
// handshake had already left phaseAwaitingCredential.
func (h *panelHandshake) finish(to phase, o outcome) bool {
	h.mu.Lock()
	if h.phase != phaseAwaitingCredential {
		h.mu.Unlock()
		return false
	}
	h.phase = to
	remove, timer := h.remove, h.timer
	h.mu.Unlock()

	remove()
	timer.Stop()
	h.logger.Debug("handshake finished", "state", to.String())

	if o.err != nil && to != phaseCancelled {
		o.err = fmt.Errorf("panel handshake: %w", o.err)
	}
	h.done <- o
	return true
}
