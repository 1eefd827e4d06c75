// Package http exposes the generation service over HTTP using huma.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ekisa-team/localgen/internal/config"
	"github.com/ekisa-team/localgen/internal/metrics"
	"github.com/ekisa-team/localgen/internal/service"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP front of the inference service.
type Server struct {
	api huma.API
	mux *http.ServeMux
	srv *http.Server
}

// APIConfig returns the huma configuration shared by the server and its tests.
// Response bodies carry no $schema link, keeping them identical to the wire format clients expect.
func APIConfig() huma.Config {
	cfg := huma.DefaultConfig("localgen", "1.0.0")
	cfg.CreateHooks = nil
	return cfg
}

// NewServer builds the server. A nil gatherer disables /metrics.
func NewServer(cfg config.ServerConfig, svc *service.LLM, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	api := humago.New(mux, APIConfig())
	api.UseMiddleware(requestLogger)

	NewLLMHandler(api, svc)
	RegisterHealth(api)

	if gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(gatherer))
	}

	return &Server{
		api: api,
		mux: mux,
		srv: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           mux,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("HTTP server shutting down")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http: shutdown: %w", err)
	}

	return nil
}

func requestLogger(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	next(ctx)

	slog.Debug("HTTP request",
		"method", ctx.Method(),
		"path", ctx.URL().Path,
		"status", ctx.Status(),
		"duration", time.Since(start),
	)
}
