package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/loxhome-core/internal/discovery"
	"github.com/nerrad567/loxhome-core/internal/hass"
)

// discoveryResponse is a discovery result plus the sidebar categories.
type discoveryResponse struct {
	discovery.Result
	Categories []discovery.CategoryEntities `json:"categories"`
}

// handleDiscovery runs discovery against the connected backend.
func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	result, err := s.backend.Discover(r.Context())
	if errors.Is(err, hass.ErrNotConnected) {
		writeUnavailable(w, "backend not connected")
		return
	}
	if err != nil {
		s.logger.Error("discovery failed", "error", err)
		writeInternalError(w, "discovery failed")
		return
	}

	writeJSON(w, http.StatusOK, discoveryResponse{
		Result:     result,
		Categories: discovery.Categorize(result.AllEntities(), discovery.DefaultCategories()),
	})
}
