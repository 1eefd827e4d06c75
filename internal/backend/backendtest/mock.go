// Package backendtest provides test doubles for the backend interfaces.
package backendtest

import (
	"context"
	"io"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/ekisa-team/localgen/internal/backend"
)

// MockBackend is a testify mock of backend.Backend.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Provider() backend.BackendProvider {
	args := m.Called()
	return args.Get(0).(backend.BackendProvider)
}

func (m *MockBackend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	args := m.Called(ctx, req)
	if resp, ok := args.Get(0).(*backend.Response); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBackend) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockStreamingBackend is a testify mock of backend.StreamingBackend.
type MockStreamingBackend struct {
	MockBackend
}

func (m *MockStreamingBackend) InferStream(ctx context.Context, req *backend.Request) (<-chan backend.StreamChunk, error) {
	args := m.Called(ctx, req)
	if ch, ok := args.Get(0).(<-chan backend.StreamChunk); ok {
		return ch, args.Error(1)
	}
	return nil, args.Error(1)
}

// ReadPrompt returns the prompt carried by req.
func ReadPrompt(req *backend.Request) string {
	if req == nil || req.Input == nil {
		return ""
	}
	b, _ := io.ReadAll(req.Input)
	return string(b)
}

// TextResponse builds a Response whose output is text.
func TextResponse(text string) *backend.Response {
	return &backend.Response{Output: strings.NewReader(text)}
}
