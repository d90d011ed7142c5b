package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"review_collector/internal/app"
	"review_collector/internal/domain"
)

type Handlers struct{ Tracker *app.RunTracker }

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/runs", h.listRuns)
}

func (h *Handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Runs []domain.RunStatus `json:"runs"`
	}{Runs: h.Tracker.Snapshot()}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("write runs snapshot failed")
	}
}
