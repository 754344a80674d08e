package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aitema/hinweis-backend/internal/casemgmt"
	"github.com/aitema/hinweis-backend/internal/errs"
)

func (s *Server) handleOpenCase(w http.ResponseWriter, r *http.Request) {
	var req casemgmt.OpenRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	c, err := s.cases.Open(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	views, summary, err := s.cases.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"cases":   views,
		"fristen": summary,
	})
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	detail, err := s.cases.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req casemgmt.TransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	c, err := s.cases.Transition(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssigneeID string `json:"assignee_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.AssigneeID == "" {
		respondError(w, errs.Validation("Es muss ein Bearbeiter angegeben werden.").
			WithField("assignee_id", "erforderlich"))
		return
	}
	c, err := s.cases.Assign(r.Context(), mux.Vars(r)["id"], req.AssigneeID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	c, err := s.cases.Acknowledge(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nachricht string `json:"nachricht"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	c, err := s.cases.Resolve(r.Context(), mux.Vars(r)["id"], req.Nachricht)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	c, err := s.cases.Forward(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text              string `json:"text"`
		VisibleToReporter bool   `json:"visible_to_reporter"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	event, err := s.cases.AddNote(r.Context(), mux.Vars(r)["id"], req.Text, req.VisibleToReporter)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, event)
}

func (s *Server) handleCaseDeadlines(w http.ResponseWriter, r *http.Request) {
	detail, err := s.cases.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"fristen": detail.Deadlines})
}

func (s *Server) handleOmbudsList(w http.ResponseWriter, r *http.Request) {
	cases, err := s.ombuds.ListCases(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"cases": cases})
}

func (s *Server) handleOmbudsGet(w http.ResponseWriter, r *http.Request) {
	detail, err := s.ombuds.GetCase(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req casemgmt.RecommendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	c, err := s.cases.Recommend(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}
