package model

import (
	"sync"
	"time"
)

// Status is the current loading status of a model.
type Status string

const (
	// StatusUnloaded indicates that the model is not loaded.
	StatusUnloaded Status = "unloaded"

	// StatusLoading indicates that the model is being loaded.
	StatusLoading Status = "loading"

	// StatusLoaded indicates that the model is loaded.
	StatusLoaded Status = "loaded"

	// StatusFailed indicates that the model failed to load.
	StatusFailed Status = "failed"
)

// Instance is the model served by the process.
type Instance struct {
	ID       string
	Path     string
	mu       sync.RWMutex
	status   Status
	loadedAt time.Time
	err      error
}

// NewInstance creates an unloaded instance for path.
func NewInstance(id, path string) *Instance {
	return &Instance{
		ID:     id,
		Path:   path,
		status: StatusUnloaded,
	}
}

// SetStatus sets the status of the instance. err is kept for StatusFailed.
func (i *Instance) SetStatus(status Status, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.status = status
	i.err = nil

	switch status {
	case StatusLoaded:
		i.loadedAt = time.Now()
	case StatusFailed:
		i.err = err
	}
}

// Status returns the current status.
func (i *Instance) Status() Status {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.status
}

// Err returns the load failure, if any.
func (i *Instance) Err() error {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.err
}

// LoadedAt returns when the instance became loaded.
func (i *Instance) LoadedAt() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.loadedAt
}

// Ready reports whether the instance can serve generation.
func (i *Instance) Ready() bool {
	return i != nil && i.Status() == StatusLoaded
}
