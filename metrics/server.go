package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tnicklin/grassy/logger"
)

// Config controls the optional /metrics listener.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Enabled reports whether a listen address is configured.
func (c Config) Enabled() bool { return c.ListenAddr != "" }

// Server exposes a registry over HTTP.
type Server struct {
	srv    *http.Server
	logger logger.Logger
}

type ServerParams struct {
	Config   Config
	Gatherer prometheus.Gatherer
	Logger   logger.Logger
}

func NewServer(p ServerParams) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		srv: &http.Server{
			Addr:              p.Config.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.OrNop(p.Logger),
	}
}

// Handler returns the HTTP handler served by the listener.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.ErrorW("metrics server stopped", "error", err)
		}
	}()
	s.logger.InfoW("metrics server listening", "addr", ln.Addr().String())
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
