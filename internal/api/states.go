package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/loxhome-core/internal/hass"
)

// handleListStates returns every live entity state.
func (s *Server) handleListStates(w http.ResponseWriter, _ *http.Request) {
	states := s.backend.States().Get()
	if states == nil {
		states = hass.States{}
	}
	writeJSON(w, http.StatusOK, states)
}

// handleGetState returns the live state of one entity.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entity_id")
	st, ok := s.backend.States().Get()[entityID]
	if !ok {
		writeNotFound(w, "entity not found: "+entityID)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleToggle runs the domain-aware toggle for an entity. The call itself
// is fire-and-forget; failures are logged by the manager.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if !s.backend.Connected().Get() {
		writeUnavailable(w, "backend not connected")
		return
	}

	entityID := chi.URLParam(r, "entity_id")
	s.backend.Toggle(r.Context(), entityID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"entity_id": entityID,
		"service":   hass.ToggleService(entityID) + ".toggle",
	})
}

// serviceCallRequest is the body of POST /services/{domain}/{service}.
// entity_id may be a single id or a list.
type serviceCallRequest struct {
	EntityID json.RawMessage `json:"entity_id,omitempty"`
	Data     map[string]any  `json:"data,omitempty"`
}

// handleCallService runs an arbitrary backend service.
func (s *Server) handleCallService(w http.ResponseWriter, r *http.Request) {
	if !s.backend.Connected().Get() {
		writeUnavailable(w, "backend not connected")
		return
	}

	var req serviceCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	target, err := parseTarget(req.EntityID)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	domain, service := chi.URLParam(r, "domain"), chi.URLParam(r, "service")
	s.backend.Call(r.Context(), domain, service, req.Data, target)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"service": domain + "." + service,
	})
}

// parseTarget accepts a string, a list of strings or nothing.
func parseTarget(raw json.RawMessage) (*hass.Target, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return hass.EntityTarget(single), nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, errors.New("entity_id must be a string or a list of strings")
	}
	return &hass.Target{EntityID: many}, nil
}
