// Package grpc serves the standard gRPC health protocol for the inference server.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for generation.
const ServiceName = "localgen.v1.Generation"

// Readiness reports whether the model can serve generation.
type Readiness interface {
	Ready() bool
}

// HealthServer exposes model availability through grpc.health.v1.
// The overall ("") status is always SERVING; ServiceName follows Readiness.
type HealthServer struct {
	addr   string
	ready  Readiness
	server *grpc.Server
	health *health.Server
}

// NewHealthServer creates the gRPC server with health and reflection registered.
func NewHealthServer(addr string, ready Readiness) *HealthServer {
	s := &HealthServer{
		addr:   addr,
		ready:  ready,
		server: grpc.NewServer(),
		health: health.NewServer(),
	}

	grpc_health_v1.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)

	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.Refresh()

	return s
}

// Refresh re-reads readiness and updates the generation status.
func (s *HealthServer) Refresh() {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if s.ready.Ready() {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Health returns the underlying health service.
func (s *HealthServer) Health() grpc_health_v1.HealthServer {
	return s.health
}

// Run listens on the configured address and serves until ctx is done.
func (s *HealthServer) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc: listen %s: %w", s.addr, err)
	}

	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done.
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("gRPC health server listening", "addr", lis.Addr().String())
		errCh <- s.server.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.health.Shutdown()
	s.server.GracefulStop()
	return nil
}
