package api

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/intake"
)

// maxAttachmentBytes caps one uploaded file.
const maxAttachmentBytes = 10 << 20

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req intake.SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	resp, err := s.intake.Submit(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.intake.StatusByAccessCode(r.Context(), mux.Vars(r)["access_code"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	items, err := s.intake.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"submissions": items})
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	detail, err := s.intake.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// handleAddAttachment accepts one multipart file and records its
// metadata. The binary itself is hashed here; blob persistence happens
// behind the service.
func (s *Server) handleAddAttachment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAttachmentBytes); err != nil {
		respondError(w, errs.Validation("Datei konnte nicht gelesen werden.").WithField("file", err.Error()))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, errs.Validation("Es wurde keine Datei übermittelt.").WithField("file", "erforderlich"))
		return
	}
	defer file.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, io.LimitReader(file, maxAttachmentBytes+1))
	if err != nil {
		respondError(w, errs.Internal(err))
		return
	}
	if size > maxAttachmentBytes {
		respondError(w, errs.Validation("Die Datei ist zu groß (maximal 10 MB)."))
		return
	}

	attachment, err := s.intake.AddAttachment(r.Context(), intake.AttachmentRequest{
		ReportID:    mux.Vars(r)["id"],
		Filename:    header.Filename,
		MimeType:    header.Header.Get("Content-Type"),
		SizeBytes:   size,
		SHA256Plain: hex.EncodeToString(hasher.Sum(nil)),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, attachment)
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	attachments, err := s.intake.Attachments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"attachments": attachments})
}

// pagination reads limit/offset query parameters with sane bounds.
func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
