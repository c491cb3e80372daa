package server

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/zeusync/envsim/internal/core/world"
)

// StatsResponse is served on /stats.
type StatsResponse struct {
	Environment world.Stats `json:"environment"`
	Server      Stats       `json:"server"`
}

// routes mounts the plain HTTP endpoints next to the websocket.
func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /snapshot", logRequests(s.logger, s.handleSnapshot))
	mux.HandleFunc("GET /stats", logRequests(s.logger, s.handleStats))
	mux.HandleFunc("POST /control", logRequests(s.logger, tokenAuth{token: s.config.ControlToken}.wrap(s.handleControl)))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.env.LastSnapshot()
	if snap == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	frame, err := s.encoder.encode(snap)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(frame)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{Environment: s.env.Stats(), Server: s.Stats()})
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var msg ControlMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxMessageSize)).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, ControlError{Type: "error", Error: err.Error()})
		return
	}
	action, err := world.ParseAction(msg.Action)
	if err == nil {
		err = s.env.SetIntent(msg.Agent, action, msg.Active)
	}
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, world.ErrUnknownAgent):
		writeJSON(w, http.StatusNotFound, ControlError{Type: "error", Error: err.Error()})
	default:
		writeJSON(w, http.StatusBadRequest, ControlError{Type: "error", Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
