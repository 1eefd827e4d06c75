package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ekisa-team/localgen/internal/config"
)

// ConnectionError wraps transport failures and timeouts talking to the core server.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "Connection error: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// StatusError is returned when the core server answers with a non-200 status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Server returned status %d", e.Code)
}

// Backend connection states reported by the relay health check.
const (
	BackendConnected    = "connected"
	BackendError        = "error"
	BackendDisconnected = "disconnected"
)

// BackendHealth is the result of probing the core server.
type BackendHealth struct {
	Status       string
	IsGenerating bool
}

// Client talks to the core inference server. It never retries.
type Client struct {
	baseURL string
	api     *http.Client
	quick   *http.Client
	stream  *http.Client
}

// NewClient creates a client for cfg.BackendURL.
func NewClient(cfg config.RelayConfig) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.StreamTimeout
	transport.DialContext = (&net.Dialer{Timeout: cfg.StreamTimeout}).DialContext

	return &Client{
		baseURL: strings.TrimRight(cfg.BackendURL, "/"),
		api:     &http.Client{Timeout: cfg.RequestTimeout},
		quick:   &http.Client{Timeout: cfg.HealthTimeout},
		stream:  &http.Client{Transport: transport},
	}
}

// Stream posts prompt to /generate-stream and returns the body once the core
// has answered 200. The body may keep streaming for longer than any timeout.
func (c *Client) Stream(ctx context.Context, prompt string) (io.ReadCloser, error) {
	resp, err := c.post(ctx, c.stream, "/generate-stream", map[string]string{"prompt": prompt})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode}
	}

	return resp.Body, nil
}

// Stop asks the core to stop generating and returns its answer.
func (c *Client) Stop(ctx context.Context) (map[string]any, error) {
	resp, err := c.post(ctx, c.api, "/stop-generation", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	return decodeBody(resp.Body)
}

// Status returns the core generation status.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	resp, err := c.get(ctx, c.api, "/generation-status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	return decodeBody(resp.Body)
}

// Health checks the core status endpoint with the short health timeout.
func (c *Client) Health(ctx context.Context) BackendHealth {
	resp, err := c.get(ctx, c.quick, "/generation-status")
	if err != nil {
		return BackendHealth{Status: BackendDisconnected}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return BackendHealth{Status: BackendError}
	}

	var st struct {
		IsGenerating bool `json:"is_generating"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return BackendHealth{Status: BackendError}
	}

	return BackendHealth{Status: BackendConnected, IsGenerating: st.IsGenerating}
}

// WaitReady polls the core status endpoint until it answers 200 or timeout
// elapses.
func (c *Client) WaitReady(ctx context.Context, timeout, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if c.Health(ctx).Status == BackendConnected {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("relay: %s did not become ready within %v: %w", c.baseURL, timeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, hc *http.Client, path string, body any) (*http.Response, error) {
	var r io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("relay: marshal: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, r)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(hc, req)
}

func (c *Client) get(ctx context.Context, hc *http.Client, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}

	return c.do(hc, req)
}

func (c *Client) do(hc *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	return resp, nil
}

func decodeBody(r io.Reader) (map[string]any, error) {
	var out map[string]any
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("relay: decode: %w", err)
	}
	return out, nil
}
