package api

import (
	"net/http"
	"time"

	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/store"
)

func (s *Server) handleCompliance(w http.ResponseWriter, r *http.Request) {
	c, err := s.reports.Generate(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.AuditFilter{Action: model.AuditAction(q.Get("action"))}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = &t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = &t
		}
	}
	filter.Limit, filter.Offset = pagination(r)

	export, err := s.reports.ExportAudit(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, export)
}
