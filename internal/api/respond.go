package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/aitema/hinweis-backend/internal/errs"
)

var errorLogger = log.New(log.Writer(), "[API] ", log.LstdFlags)

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error  string                 `json:"error"`
	Fields map[string]string      `json:"fields,omitempty"`
	Meta   map[string]interface{} `json:"meta,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			errorLogger.Printf("❌ Failed to encode response: %v", err)
		}
	}
}

// respondError maps the error taxonomy onto HTTP. Internal causes are
// logged, never serialized.
func respondError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	body := errorBody{Error: "Interner Fehler."}

	var typed *errs.Error
	if errors.As(err, &typed) {
		body.Error = typed.Message
		body.Fields = typed.Fields
		body.Meta = typed.Meta
		if retry, ok := typed.Meta["retry_after_seconds"]; ok {
			w.Header().Set("Retry-After", fmt.Sprintf("%v", retry))
		}
	}

	if kind == errs.KindInternal || kind == errs.KindCryptoFailure {
		errorLogger.Printf("❌ %v", err)
		body.Fields, body.Meta = nil, nil
	}

	respondJSON(w, kind.HTTPStatus(), body)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Validation("Ungültiger Anfrageinhalt.").WithField("body", err.Error())
	}
	return nil
}
