package backendtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ekisa-team/localgen/internal/backend"
)

// Scripted is a streaming backend that replays fixed increments.
//
// When Gate is set, the producer waits for a value on it before sending each
// increment, which lets tests interleave stop requests with production.
// A non-nil Fail is sent as an error chunk after the increments.
type Scripted struct {
	Chunks []string
	Fail   error
	Gate   chan struct{}

	mu       sync.Mutex
	requests []*backend.Request
	prompts  []string
	stopped  chan struct{}
	once     sync.Once
}

// NewScripted returns a Scripted backend producing chunks.
func NewScripted(chunks ...string) *Scripted {
	return &Scripted{Chunks: chunks}
}

func (s *Scripted) Provider() backend.BackendProvider {
	return backend.BackendProviderLlamaCPP
}

func (s *Scripted) RenderPrompt(messages []backend.Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("no messages")
	}
	var b strings.Builder
	for _, m := range messages {
		b.WriteString("<" + string(m.Role) + ">" + m.Content)
	}
	return b.String(), nil
}

func (s *Scripted) Infer(_ context.Context, req *backend.Request) (*backend.Response, error) {
	s.record(req)
	if s.Fail != nil {
		return nil, s.Fail
	}
	return TextResponse(strings.Join(s.Chunks, "")), nil
}

func (s *Scripted) InferStream(ctx context.Context, req *backend.Request) (<-chan backend.StreamChunk, error) {
	s.record(req)

	ch := make(chan backend.StreamChunk)
	go func() {
		defer close(ch)
		defer s.markStopped()

		for _, c := range s.Chunks {
			if s.Gate != nil {
				select {
				case <-s.Gate:
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- backend.StreamChunk{Data: []byte(c)}:
			case <-ctx.Done():
				return
			}
		}

		if s.Fail != nil {
			select {
			case ch <- backend.StreamChunk{Error: s.Fail, Done: true}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

func (s *Scripted) Close() error { return nil }

// Prompts returns the prompts received so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Requests returns the requests received so far.
func (s *Scripted) Requests() []*backend.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*backend.Request(nil), s.requests...)
}

// Stopped is closed once the most recent producer goroutine has exited.
func (s *Scripted) Stopped() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped == nil {
		s.stopped = make(chan struct{})
	}
	return s.stopped
}

func (s *Scripted) record(req *backend.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	s.prompts = append(s.prompts, ReadPrompt(req))
	if s.stopped == nil {
		s.stopped = make(chan struct{})
	}
}

func (s *Scripted) markStopped() {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		close(s.stopped)
	})
}
