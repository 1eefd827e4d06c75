package generation

import "sync"

// StopSignal is the cancellation flag shared between the stop endpoint and
// the active job. Waiters can select on Done instead of polling Requested.
type StopSignal struct {
	mu        sync.Mutex
	requested bool
	ch        chan struct{}
}

// NewStopSignal returns a cleared signal.
func NewStopSignal() *StopSignal {
	return &StopSignal{ch: make(chan struct{})}
}

// Request sets the signal. Calling it more than once has no further effect.
func (s *StopSignal) Request() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.requested {
		return
	}
	s.requested = true
	close(s.ch)
}

// Clear resets the signal for the next job.
func (s *StopSignal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.requested {
		return
	}
	s.requested = false
	s.ch = make(chan struct{})
}

// Requested reports whether the signal is set.
func (s *StopSignal) Requested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.requested
}

// Done returns a channel closed when the signal is set. A later Clear does not
// reopen channels already handed out.
func (s *StopSignal) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ch
}
