package grpc

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/testing/protocmp"
)

type readiness struct{ ok atomic.Bool }

func (r *readiness) Ready() bool { return r.ok.Load() }

func check(t *testing.T, hs grpc_health_v1.HealthServer, service string) *grpc_health_v1.HealthCheckResponse {
	t.Helper()
	resp, err := hs.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp
}

func TestHealthServer_FollowsReadiness(t *testing.T) {
	r := &readiness{}
	s := NewHealthServer("127.0.0.1:0", r)

	want := &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}
	if diff := cmp.Diff(want, check(t, s.Health(), ""), protocmp.Transform()); diff != "" {
		t.Errorf("overall status mismatch (-want +got):\n%s", diff)
	}

	want = &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING}
	if diff := cmp.Diff(want, check(t, s.Health(), ServiceName), protocmp.Transform()); diff != "" {
		t.Errorf("unloaded status mismatch (-want +got):\n%s", diff)
	}

	r.ok.Store(true)
	s.Refresh()

	want = &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}
	if diff := cmp.Diff(want, check(t, s.Health(), ServiceName), protocmp.Transform()); diff != "" {
		t.Errorf("loaded status mismatch (-want +got):\n%s", diff)
	}
}

func TestHealthServer_Serve(t *testing.T) {
	r := &readiness{}
	r.ok.Store(true)
	s := NewHealthServer("", r)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	require.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
