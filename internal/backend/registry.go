package backend

import (
	"errors"
	"fmt"
	"sync"
)

// Registry manages backend instances.
type Registry struct {
	backends map[BackendProvider]Backend
	mu       sync.RWMutex
}

// NewRegistry creates a new backend registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[BackendProvider]Backend),
	}
}

// Register adds a backend to the registry.
func (r *Registry) Register(b Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	provider := b.Provider()
	if _, ok := r.backends[provider]; ok {
		return fmt.Errorf("registry: %s: %w", provider, ErrBackendAlreadyRegistered)
	}

	r.backends[provider] = b
	return nil
}

// Get retrieves a backend by provider.
func (r *Registry) Get(provider BackendProvider) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[provider]
	if !ok {
		return nil, fmt.Errorf("registry: %s: %w", provider, ErrBackendNotFound)
	}

	return b, nil
}

// GetStreaming retrieves a backend that supports streaming.
func (r *Registry) GetStreaming(provider BackendProvider) (StreamingBackend, error) {
	b, err := r.Get(provider)
	if err != nil {
		return nil, err
	}

	sb, ok := b.(StreamingBackend)
	if !ok {
		return nil, fmt.Errorf("registry: %s: %w", provider, ErrBackendNotStreamable)
	}

	return sb, nil
}

// Close closes all registered backends and reports every failure.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, b := range r.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
