package server

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"noteshare-go/internal/ns"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ttl, err := parseExpiration(r.Header.Get(HeaderExpiration))
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	size := r.ContentLength
	if size < 0 {
		size = ns.UnknownSize
	}
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize)

	res, err := s.files.Store(r.Context(), ns.StoreRequest{
		UID:      callerUID(r.Context()),
		FileType: r.Header.Get(HeaderFileType),
		Body:     body,
		Size:     size,
		TTL:      ttl,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if s.metrics != nil {
		if res.Deduplicated {
			s.metrics.Deduplicated.Inc()
		} else {
			s.metrics.BytesUploaded.Add(float64(res.Size))
		}
	}

	resp := uploadResponse{
		Success:      true,
		Name:         res.Name,
		Filename:     res.Filename,
		URL:          res.URL,
		Deduplicated: res.Deduplicated,
	}
	if res.ExpiresAt != nil {
		exp := res.ExpiresAt.Unix()
		resp.Expires = &exp
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	filename, ok := s.decodeFilename(w, r)
	if !ok {
		return
	}
	rec, err := s.files.Lookup(r.Context(), filename)
	if err != nil {
		if isNotFound(err) {
			writeJSON(w, http.StatusOK, checkResponse{Success: true})
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{Success: true, Exists: true, URL: s.files.URL(rec)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	filename, ok := s.decodeFilename(w, r)
	if !ok {
		return
	}
	if err := s.files.Delete(r.Context(), callerUID(r.Context()), filename); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// handleServe streams a stored file. The request path must match the file's
// sharded path exactly.
func (s *Server) handleServe(w http.ResponseWriter, r *http.Request) {
	filename := path.Base(r.URL.Path)
	rc, rec, err := s.files.Open(r.Context(), filename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer func() { _ = rc.Close() }()

	if strings.TrimPrefix(r.URL.Path, "/") != s.files.RelPath(rec) {
		s.jsonError(w, "file not found", http.StatusNotFound)
		return
	}

	h := w.Header()
	h.Set("Content-Type", ns.ContentType(rec.Filename))
	h.Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	h.Set("ETag", `"`+rec.Checksum+`"`)
	h.Set("X-Content-Type-Options", "nosniff")
	if rec.ExpiresAt != nil {
		h.Set("Expires", rec.ExpiresAt.UTC().Format(http.TimeFormat))
		maxAge := int64(rec.ExpiresAt.Sub(s.clock.Now()) / time.Second)
		h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
	}

	n, err := io.Copy(w, rc)
	if err != nil {
		s.logger.Warn("failed to stream file", "filename", rec.Filename, "error", err)
	}
	if s.metrics != nil && n > 0 {
		s.metrics.BytesServed.Add(float64(n))
	}
}

func (s *Server) decodeFilename(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req filenameRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return "", false
	}
	if req.Filename == "" || strings.ContainsAny(req.Filename, `/\`) {
		s.jsonError(w, "invalid filename", http.StatusBadRequest)
		return "", false
	}
	return req.Filename, true
}

// parseExpiration reads a TTL in whole seconds. Empty means the default.
func parseExpiration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("invalid %s header %q", HeaderExpiration, v)
	}
	if secs > int64(math.MaxInt64/time.Second) {
		secs = int64(math.MaxInt64 / time.Second)
	}
	return time.Duration(secs) * time.Second, nil
}
