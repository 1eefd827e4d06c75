// Package generation implements the streaming generation job: a single
// consumer pulling text increments from a producer while honoring a shared
// stop signal.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ekisa-team/localgen/internal/backend"
)

// ErrJobAlreadyRun is returned when Run is called a second time.
var ErrJobAlreadyRun = errors.New("generation: job already run")

// EmitFunc delivers one increment to the client. A non-nil error means the
// client is gone and is treated as a cancellation.
type EmitFunc func(chunk []byte) error

// Job is one streaming generation.
type Job struct {
	ID        string
	Prompt    string
	StartedAt time.Time

	chunks   <-chan backend.StreamChunk
	cancel   context.CancelFunc
	stop     *StopSignal
	observer Observer

	state    atomic.Int32
	produced atomic.Int64
	started  atomic.Bool

	superseded    chan struct{}
	supersedeOnce sync.Once
	done          chan struct{}
	mu            sync.Mutex
	err           error
}

// JobOption configures a Job.
type JobOption func(*Job)

// WithObserver attaches an observer to the job.
func WithObserver(o Observer) JobOption {
	return func(j *Job) {
		if o != nil {
			j.observer = o
		}
	}
}

// NewJob creates a running job consuming chunks. cancel stops the producer
// and is called exactly once when the job finishes.
func NewJob(id, prompt string, chunks <-chan backend.StreamChunk, cancel context.CancelFunc, stop *StopSignal, opts ...JobOption) *Job {
	if cancel == nil {
		cancel = func() {}
	}

	j := &Job{
		ID:         id,
		Prompt:     prompt,
		StartedAt:  time.Now(),
		chunks:     chunks,
		cancel:     cancel,
		stop:       stop,
		observer:   NopObserver,
		superseded: make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}

	j.state.Store(int32(StateRunning))
	j.observer.JobStarted()

	return j
}

// State returns the current state.
func (j *Job) State() State {
	return State(j.state.Load())
}

// Produced returns the number of increments delivered to the client.
func (j *Job) Produced() int64 {
	return j.produced.Load()
}

// Err returns the producer fault of a failed job.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.err
}

// Done is closed once the job has reached a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Supersede stops the job because a newer one replaced it. It does not touch
// the shared stop signal, which now belongs to the newer job.
func (j *Job) Supersede() {
	j.supersedeOnce.Do(func() {
		close(j.superseded)
		j.cancel()
	})
}

func (j *Job) isSuperseded() bool {
	select {
	case <-j.superseded:
		return true
	default:
		return false
	}
}

func (j *Job) interrupted() bool {
	return j.isSuperseded() || j.stop.Requested()
}

// Run consumes the producer on the calling goroutine and passes every
// increment to emit, in production order, until the producer is exhausted,
// a stop is requested, the job is superseded or ctx is cancelled.
//
// Cancelling ctx or a failing emit counts as a client disconnect and sets the
// stop signal. Run returns the producer fault for failed jobs, nil otherwise.
func (j *Job) Run(ctx context.Context, emit EmitFunc) error {
	if !j.started.CompareAndSwap(false, true) {
		return ErrJobAlreadyRun
	}

	stopCh := j.stop.Done()

	for {
		select {
		case <-ctx.Done():
			j.disconnect()
			return j.finish(StateStopping, nil)

		case <-stopCh:
			return j.finish(StateStopping, nil)

		case <-j.superseded:
			return j.finish(StateStopping, nil)

		case c, ok := <-j.chunks:
			if !ok {
				if j.interrupted() {
					return j.finish(StateStopping, nil)
				}
				return j.finish(StateCompleted, nil)
			}

			if c.Error != nil {
				if j.interrupted() || ctx.Err() != nil {
					return j.finish(StateStopping, nil)
				}
				return j.finish(StateFailed, c.Error)
			}

			if len(c.Data) > 0 {
				if ctx.Err() != nil {
					j.disconnect()
					return j.finish(StateStopping, nil)
				}
				if j.interrupted() {
					return j.finish(StateStopping, nil)
				}

				if err := emit(c.Data); err != nil {
					slog.Debug("Client write failed, stopping generation", "job_id", j.ID, "error", err)
					j.disconnect()
					return j.finish(StateStopping, nil)
				}

				j.produced.Add(1)
				j.observer.ChunkEmitted(len(c.Data))
			}

			if c.Done {
				return j.finish(StateCompleted, nil)
			}
		}
	}
}

// disconnect sets the stop signal unless a newer job owns it.
func (j *Job) disconnect() {
	if j.isSuperseded() {
		return
	}
	j.stop.Request()
}

func (j *Job) finish(state State, fault error) error {
	j.state.Store(int32(state))
	j.cancel()

	if state != StateCompleted {
		go drain(j.chunks)
	}

	if fault != nil {
		fault = fmt.Errorf("generation: job %s: %w", j.ID, fault)
		j.mu.Lock()
		j.err = fault
		j.mu.Unlock()
		slog.Error("Generation failed", "job_id", j.ID, "chunks", j.Produced(), "error", fault)
	}

	elapsed := time.Since(j.StartedAt)
	j.observer.JobFinished(state, j.Produced(), elapsed)
	slog.Info("Stream finished", "job_id", j.ID, "state", state.String(), "chunks", j.Produced(), "elapsed", elapsed)

	close(j.done)
	return fault
}

// drain discards whatever a producer still sends so it can run to completion.
func drain(ch <-chan backend.StreamChunk) {
	for range ch {
	}
}
