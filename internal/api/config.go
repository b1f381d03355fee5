package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/nerrad567/loxhome-core/internal/dashboard"
)

// handleGetConfig returns the current dashboard config.
func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dashboard.Config().Get())
}

// handlePutConfig replaces the dashboard config with a JSON document.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	s.replaceConfig(w, r, dashboard.ParseJSON)
}

// handleGetConfigYAML renders the dashboard config for the YAML editor.
func (s *Server) handleGetConfigYAML(w http.ResponseWriter, _ *http.Request) {
	data, err := dashboard.MarshalYAML(s.dashboard.Config().Get())
	if err != nil {
		s.logger.Error("rendering config yaml failed", "error", err)
		writeInternalError(w, "rendering config failed")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(data)
}

// handlePutConfigYAML replaces the dashboard config with a YAML document.
func (s *Server) handlePutConfigYAML(w http.ResponseWriter, r *http.Request) {
	s.replaceConfig(w, r, dashboard.ParseYAML)
}

func (s *Server) replaceConfig(w http.ResponseWriter, r *http.Request, parse func([]byte) (dashboard.Config, error)) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body: "+err.Error())
		return
	}

	cfg, err := parse(body)
	if errors.Is(err, dashboard.ErrInvalidConfig) {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	}
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	s.dashboard.Save(r.Context(), cfg)
	writeJSON(w, http.StatusOK, s.dashboard.Config().Get())
}
