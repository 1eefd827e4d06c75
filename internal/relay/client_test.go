package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_StreamStatusError(t *testing.T) {
	srv := httptest.NewServer((&fakeCore{stream: func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}}).handler())
	defer srv.Close()

	_, err := NewClient(testRelayConfig(srv.URL)).Stream(context.Background(), "x")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
}

func TestClient_ConnectionError(t *testing.T) {
	_, err := NewClient(testRelayConfig("http://127.0.0.1:1")).Status(context.Background())

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Contains(t, err.Error(), "Connection error: ")
}

func TestClient_HealthTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	cfg := testRelayConfig(srv.URL)
	cfg.HealthTimeout = 20 * time.Millisecond

	start := time.Now()
	health := NewClient(cfg).Health(context.Background())

	assert.Equal(t, BackendDisconnected, health.Status)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestClient_WaitReady(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"is_generating":false}`))
	}))
	defer srv.Close()

	err := NewClient(testRelayConfig(srv.URL)).WaitReady(context.Background(), time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestClient_WaitReadyTimeout(t *testing.T) {
	cfg := testRelayConfig("http://127.0.0.1:1")
	err := NewClient(cfg).WaitReady(context.Background(), 50*time.Millisecond, 10*time.Millisecond)

	assert.True(t, errors.Is(err, context.DeadlineExceeded), err)
}
