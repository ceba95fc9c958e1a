package server

import "net/http"

// statusRecorder wraps http.ResponseWriter to capture the status code.
// Not safe for use outside a single request handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

// getStatus returns the recorded status, defaulting to 200.
func (r *statusRecorder) getStatus() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// classifyStatus converts an HTTP status code to a metric label.
func classifyStatus(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "success"
	case status == StatusCredentialRefresh:
		return "credential_refresh"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusForbidden:
		return "forbidden"
	case status >= 400 && status < 500:
		return "rejected"
	default:
		return "error"
	}
}
