package generation

// State is the lifecycle state of a Job.
type State int32

const (
	// StateRunning means the job is still pulling increments.
	StateRunning State = iota

	// StateStopping means the job observed a cancellation and stopped pulling.
	StateStopping

	// StateCompleted means the producer was exhausted.
	StateCompleted

	// StateFailed means the producer reported a fault.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the job no longer consumes output.
func (s State) Terminal() bool {
	return s != StateRunning
}
