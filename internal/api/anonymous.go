package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aitema/hinweis-backend/internal/anonchannel"
	"github.com/aitema/hinweis-backend/internal/reqctx"
)

func (s *Server) handleAnonSubmit(w http.ResponseWriter, r *http.Request) {
	var req anonchannel.SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	resp, err := s.anon.Submit(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleAnonStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.anon.Lookup(r.Context(), mux.Vars(r)["receipt_code"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// handleAnonMessage appends one follow-up message. Authenticated staff
// write in the handler direction, everyone else as the reporter.
func (s *Server) handleAnonMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	receipt := mux.Vars(r)["receipt_code"]
	var err error
	if _, authenticated := reqctx.ActorFrom(r.Context()); authenticated {
		err = s.anon.HandlerMessage(r.Context(), receipt, req.Text)
	} else {
		err = s.anon.ReporterMessage(r.Context(), receipt, req.Text)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "gespeichert"})
}
