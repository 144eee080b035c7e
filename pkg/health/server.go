package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aist-nrm/nrm/pkg/util"
)

// Server exposes /healthz and /metrics next to the TCP request port,
// mirroring the mux-plus-promhttp wiring the teacher uses for its own
// device-health HTTP surface.
type Server struct {
	checker  *Checker
	registry *prometheus.Registry
	httpSrv  *http.Server
}

// NewServer builds a Server bound to addr, backed by checker for /healthz
// and reg for /metrics.
func NewServer(addr string, checker *Checker, reg *prometheus.Registry) *Server {
	mux := http.NewServeMux()
	s := &Server{checker: checker, registry: reg}

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	report := s.checker.Run(r.Context())
	w.Header().Set("Content-Type", "application/json")
	switch report.Overall {
	case StatusCritical:
		w.WriteHeader(http.StatusServiceUnavailable)
	case StatusWarning:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusOK)
	}
	if err := json.NewEncoder(w).Encode(report); err != nil {
		util.WithField("error", err).Warn("health: failed to encode report")
	}
}

// Start runs the HTTP server until the background context is done or the
// server errors; it never returns ErrServerClosed as an error.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return s.httpSrv.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Close shuts the HTTP server down immediately.
func (s *Server) Close() error {
	return s.httpSrv.Close()
}
