package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/loxhome-core/internal/handshake"
)

// frameUpgrader accepts embedded frames from any origin; the frame proves
// nothing and receives only what the host chooses to send.
var frameUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleFrame serves one embedded frame. The server acts as the handshake
// host: it holds the manager's credential, answers auth requests, pushes
// credential changes and relays toggle-sidebar to push clients.
//
// The optional script query parameter is the bootstrap script location the
// frame URL is derived from.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	port, err := handshake.UpgradePort(w, r, &frameUpgrader)
	if err != nil {
		s.logger.Error("frame upgrade failed", "error", err)
		return
	}

	s.frames.Add(1)
	defer s.frames.Done()

	host := handshake.NewHost(handshake.SidebarTogglerFunc(func() {
		s.hub.Broadcast(ChannelSidebar, map[string]string{"action": "toggle"})
	}))
	host.SetLogger(s.logger.With("component", "frame"))

	frameURL := host.Embed(port, r.URL.Query().Get("script"))
	unsubscribe := s.backend.Credential().Subscribe(func(cred *handshake.Credential) {
		if cred != nil {
			host.SetCredential(*cred)
		}
	})
	host.FrameLoaded()

	s.logger.Debug("frame attached", "frame_url", frameURL, "remote", r.RemoteAddr)

	select {
	case <-port.Done():
	case <-s.ctx.Done():
	}

	unsubscribe()
	host.Close()
	//nolint:errcheck // connection is finished either way
	port.Close()
	s.logger.Debug("frame detached", "remote", r.RemoteAddr)
}
