package handshake

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBasePath serves the embedded frame when the bootstrap script
	// location is unknown.
	DefaultBasePath = "/loxhome_static"

	// frameDocument is appended to the base path to form the frame URL.
	frameDocument = "/index.html"

	// settleDelay is how long the host waits after the frame's load event
	// before sending the credential.
	settleDelay = 200 * time.Millisecond
)

// SidebarToggler is the host capability invoked on toggle-sidebar.
type SidebarToggler interface {
	ToggleSidebar()
}

// SidebarTogglerFunc adapts a function to SidebarToggler.
type SidebarTogglerFunc func()

// ToggleSidebar calls f.
func (f SidebarTogglerFunc) ToggleSidebar() { f() }

// Host is the host side of the handshake. It owns the credential, embeds a
// single frame, and answers the frame's requests.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Host struct {
	mu             sync.Mutex
	frame          Port
	removeListener func()
	ready          bool
	credential     *Credential
	timer          *time.Timer
	settleDelay    time.Duration

	toggler SidebarToggler
	logger  Logger
}

// NewHost creates a host. toggler may be nil when the host has no sidebar.
func NewHost(toggler SidebarToggler) *Host {
	return &Host{
		toggler:     toggler,
		settleDelay: settleDelay,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the host.
func (h *Host) SetLogger(logger Logger) {
	h.logger = logger
}

// Embed attaches frame as the embedded dashboard and returns the URL the
// frame document should be loaded from.
//
// Parameters:
//   - frame: Port to the embedded frame
//   - scriptURL: Location of the host bootstrap script, or "" if unknown
//
// Returns:
//   - string: The frame URL (script directory, or the default base, plus /index.html)
func (h *Host) Embed(frame Port, scriptURL string) string {
	remove := frame.Listen(h.handleMessage)

	h.mu.Lock()
	old := h.removeListener
	h.frame = frame
	h.removeListener = remove
	h.ready = false
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.mu.Unlock()

	if old != nil {
		old()
	}
	return ResolveFrameURL(scriptURL)
}

// FrameLoaded marks the frame ready and schedules SendAuth after the
// settle delay.
func (h *Host) FrameLoaded() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.frame == nil {
		return
	}
	h.ready = true
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(h.settleDelay, func() {
		if err := h.SendAuth(context.Background()); err != nil {
			h.logger.Warn("sending credential after frame load failed", "error", err)
		}
	})
}

// SetCredential replaces the host credential and pushes it to a ready frame.
func (h *Host) SetCredential(c Credential) {
	h.mu.Lock()
	h.credential = &c
	h.mu.Unlock()

	if err := h.SendAuth(context.Background()); err != nil {
		h.logger.Warn("sending updated credential failed", "error", err)
	}
}

// SendAuth posts the credential to the frame. It does nothing unless a frame
// is embedded, the frame has loaded, and a credential is known.
func (h *Host) SendAuth(ctx context.Context) error {
	h.mu.Lock()
	frame, ready, cred := h.frame, h.ready, h.credential
	h.mu.Unlock()

	if frame == nil || !ready || cred == nil {
		return nil
	}
	return Post(ctx, frame, AuthMessage(*cred))
}

// Close detaches the frame and cancels a pending send.
func (h *Host) Close() {
	h.mu.Lock()
	remove := h.removeListener
	h.removeListener = nil
	h.frame = nil
	h.ready = false
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.mu.Unlock()

	if remove != nil {
		remove()
	}
}

func (h *Host) handleMessage(data []byte) {
	msg, err := ParseMessage(data)
	if err != nil {
		h.logger.Debug("ignoring frame message", "error", err)
		return
	}

	switch msg.Type {
	case KindAuthRequest:
		if err := h.SendAuth(context.Background()); err != nil {
			h.logger.Warn("answering auth request failed", "error", err)
		}
	case KindToggleSidebar:
		if h.toggler != nil {
			h.toggler.ToggleSidebar()
		}
	}
}

// ResolveFrameURL derives the frame document URL from the bootstrap script
// location by replacing the script's file name with index.html.
//
//	ResolveFrameURL("http://ha:8123/loxhome_static/loxhome-panel.js")
//	// "http://ha:8123/loxhome_static/index.html"
//	ResolveFrameURL("")
//	// "/loxhome_static/index.html"
func ResolveFrameURL(scriptURL string) string {
	if scriptURL == "" {
		return DefaultBasePath + frameDocument
	}

	u, err := url.Parse(scriptURL)
	if err != nil {
		return DefaultBasePath + frameDocument
	}

	dir := u.Path
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		dir = dir[:i]
	} else {
		dir = ""
	}
	u.Path = dir + frameDocument
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
