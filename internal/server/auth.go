package server

import (
	"context"
	"net/http"

	"noteshare-go/internal/ns"
)

type uidKey struct{}

// withAuth verifies the identity headers and stores the caller's uid in the
// request context. Rejected credentials get StatusCredentialRefresh.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred := ns.RequestCredential{
			UID:       r.Header.Get(HeaderUID),
			Nonce:     r.Header.Get(HeaderNonce),
			Signature: r.Header.Get(HeaderSignature),
		}
		verdict, err := s.creds.VerifyRequest(r.Context(), cred)
		if err != nil {
			s.logger.Error("credential lookup failed", "uid", cred.UID, "error", err)
			s.jsonError(w, "internal error", http.StatusInternalServerError)
			return
		}
		if verdict != ns.VerdictValid {
			s.logger.Debug("credential rejected", "uid", cred.UID, "reason", verdict.String())
			if s.metrics != nil {
				s.metrics.AuthFailures.WithLabelValues(verdict.String()).Inc()
			}
			s.credentialRefresh(w, verdict)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), uidKey{}, cred.UID)))
	}
}

// callerUID returns the uid set by withAuth.
func callerUID(ctx context.Context) string {
	uid, _ := ctx.Value(uidKey{}).(string)
	return uid
}
