package generation

import "time"

// Observer receives job lifecycle events, typically for metrics.
type Observer interface {
	JobStarted()
	ChunkEmitted(bytes int)
	JobFinished(state State, produced int64, elapsed time.Duration)
	StopRequested()
}

type nopObserver struct{}

func (nopObserver) JobStarted() {}

func (nopObserver) ChunkEmitted(int) {}

func (nopObserver) JobFinished(State, int64, time.Duration) {}

func (nopObserver) StopRequested() {}

// NopObserver discards every event.
var NopObserver Observer = nopObserver{}
