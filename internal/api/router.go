package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/loxhome-core/internal/handshake"
	"github.com/nerrad567/loxhome-core/internal/panel"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestID)
	r.Use(s.accessLog)
	r.Use(s.recoverPanics)
	r.Use(s.cors)
	r.Use(s.limitBody)

	// Frontend build, addressed the way embedded frames resolve it.
	static := http.StripPrefix(handshake.DefaultBasePath, panel.Handler(s.panelCfg.StaticDir))
	r.Handle(handshake.DefaultBasePath+"/*", static)
	r.Handle(handshake.DefaultBasePath, http.RedirectHandler(handshake.DefaultBasePath+"/", http.StatusMovedPermanently))

	// Handshake host endpoint; every WebSocket here is one embedded frame.
	r.Get("/frame", s.handleFrame)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/discovery", s.handleDiscovery)

		r.Route("/config", func(r chi.Router) {
			r.Get("/", s.handleGetConfig)
			r.Put("/", s.handlePutConfig)
			r.Get("/yaml", s.handleGetConfigYAML)
			r.Put("/yaml", s.handlePutConfigYAML)
		})

		r.Get("/states", s.handleListStates)
		r.Get("/states/{entity_id}", s.handleGetState)

		r.Post("/entities/{entity_id}/toggle", s.handleToggle)
		r.Post("/services/{domain}/{service}", s.handleCallService)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"version":   s.version,
		"connected": s.backend.Connected().Get(),
	}
	if cred := s.backend.Credential().Get(); cred != nil {
		if expiry, ok := cred.ExpiresAt(); ok {
			resp["token_expires_at"] = expiry.UTC().Format(timeFormat)
		}
	}
	if s.history != nil {
		resp["history"] = s.history.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}
