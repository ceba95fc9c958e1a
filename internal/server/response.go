package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"noteshare-go/internal/ns"
)

// StatusCredentialRefresh tells the client its credential was not accepted
// and must be refreshed before retrying.
const StatusCredentialRefresh = 462

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
}

type uploadResponse struct {
	Success      bool   `json:"success"`
	Name         string `json:"name"`
	Filename     string `json:"filename"`
	URL          string `json:"url"`
	Expires      *int64 `json:"expires,omitempty"`
	Deduplicated bool   `json:"deduplicated"`
}

type checkResponse struct {
	Success bool   `json:"success"`
	Exists  bool   `json:"exists"`
	URL     string `json:"url,omitempty"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type filenameRequest struct {
	Filename string `json:"filename"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, errorResponse{Error: message})
}

func (s *Server) credentialRefresh(w http.ResponseWriter, v ns.Verdict) {
	writeJSON(w, StatusCredentialRefresh, errorResponse{
		Error:  "credential refresh required",
		Reason: v.String(),
	})
}

// writeError maps a domain error to its response status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *ns.ValidationError
		maxBytes   *http.MaxBytesError
		opErr      *ns.OpError
	)
	switch {
	case errors.As(err, &maxBytes):
		s.jsonError(w, "file exceeds maximum upload size", http.StatusRequestEntityTooLarge)
	case errors.As(err, &validation):
		code := http.StatusBadRequest
		if validation.TooLarge {
			code = http.StatusRequestEntityTooLarge
		}
		s.jsonError(w, validation.Reason, code)
	case errors.Is(err, ns.ErrNotFound):
		s.jsonError(w, "file not found", http.StatusNotFound)
	case errors.Is(err, ns.ErrForbidden):
		s.jsonError(w, "file not owned by caller", http.StatusForbidden)
	case errors.As(err, &opErr):
		s.logger.Error("storage failure", "path", r.URL.Path, "op", opErr.Op, "category", opErr.Category, "filename", opErr.Filename, "error", opErr.Err)
		s.jsonError(w, "storage failure", http.StatusInternalServerError)
	case errors.Is(err, ns.ErrNamingConflict):
		s.logger.Error("naming conflict", "path", r.URL.Path, "error", err)
		s.jsonError(w, "name already taken", http.StatusInternalServerError)
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		s.jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ns.ErrNotFound)
}
