package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"noteshare-go/internal/ns"
)

// Identity and upload headers.
const (
	HeaderUID        = "X-Noteshare-Id"
	HeaderNonce      = "X-Noteshare-Nonce"
	HeaderSignature  = "X-Noteshare-Signature"
	HeaderFileType   = "X-Noteshare-Filetype"
	HeaderExpiration = "X-Noteshare-Expiration"
)

// Options configures a Server.
type Options struct {
	ListenAddr      string
	MaxUploadSize   int64
	ShutdownTimeout time.Duration
}

// Server is the HTTP boundary: it authenticates requests, maps them onto the
// FileStore and serves stored files.
type Server struct {
	files    *ns.FileStore
	creds    *ns.CredentialStore
	metrics  *Metrics
	gatherer prometheus.Gatherer
	opts     Options
	logger   ns.Logger
	clock    ns.Clock
	mux      *http.ServeMux
}

// New creates a Server. gatherer backs /metrics; a nil gatherer disables it.
func New(files *ns.FileStore, creds *ns.CredentialStore, metrics *Metrics, gatherer prometheus.Gatherer, opts Options, logger ns.Logger, clock ns.Clock) *Server {
	s := &Server{
		files:    files,
		creds:    creds,
		metrics:  metrics,
		gatherer: gatherer,
		opts:     opts,
		logger:   logger,
		clock:    clock,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /v1/file/upload", s.instrument("upload", s.withAuth(s.handleUpload)))
	s.mux.HandleFunc("POST /v1/file/check", s.instrument("check", s.withAuth(s.handleCheck)))
	s.mux.HandleFunc("POST /v1/file/delete", s.instrument("delete", s.withAuth(s.handleDelete)))
	for _, c := range ns.Categories {
		s.mux.HandleFunc("GET /"+string(c)+"/", s.instrument("serve", s.handleServe))
	}
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// instrument records request count and latency under route.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			if s.metrics != nil {
				s.metrics.RecordRequest(route, classifyStatus(rec.getStatus()), time.Since(start).Seconds())
			}
		}()
		next(rec, r)
	}
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	s.logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.opts.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}
