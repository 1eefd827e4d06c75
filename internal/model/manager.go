package model

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ekisa-team/localgen/internal/backend"
	"github.com/ekisa-team/localgen/internal/config"
	"github.com/ekisa-team/localgen/internal/envvar"
	"github.com/ekisa-team/localgen/internal/xfs"
)

// Manager resolves and tracks the model served by the process.
type Manager struct {
	current *Instance
	mu      sync.RWMutex
}

// NewManager creates a new Manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// Current returns the last loaded instance.
func (m *Manager) Current() (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.current, m.current != nil
}

// Load resolves the configured model to a file and records it as loaded.
// When locator is nil the resolved path must already be a file.
func (m *Manager) Load(ctx context.Context, cfg config.ModelConfig, locator backend.ModelLocator) (*Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("manager: %w", ErrModelNotConfigured)
	}

	base := resolveModelPath(cfg.Path)
	instance := NewInstance(modelID(base), base)
	instance.SetStatus(StatusLoading, nil)
	m.current = instance

	path, err := locate(base, locator)
	if err != nil {
		instance.SetStatus(StatusFailed, err)
		slog.Error("Model failed to load", "path", base, "error", err)
		return instance, err
	}

	instance.Path = path
	instance.ID = modelID(path)
	instance.SetStatus(StatusLoaded, nil)

	slog.Info("Model loaded", "model_id", instance.ID, "path", path)

	return instance, nil
}

func locate(base string, locator backend.ModelLocator) (string, error) {
	if _, err := os.Stat(base); err != nil {
		return "", fmt.Errorf("manager: %s: %w", base, ErrModelNotFound)
	}

	if locator == nil {
		if xfs.IsDir(base) {
			return "", fmt.Errorf("manager: %s is a directory: %w", base, ErrModelNotFound)
		}
		return base, nil
	}

	path, err := locator.ResolveModelPath(base)
	if err != nil {
		return "", fmt.Errorf("manager: %w: %w", ErrModelNotFound, err)
	}

	return path, nil
}

// resolveModelPath returns the absolute model location.
// Relative paths that do not exist from the working directory are looked up in
// the models directory, which is LOCALGEN_MODELS_PATH or the default cache path.
func resolveModelPath(p string) string {
	p = xfs.ExpandTilde(p)
	if filepath.IsAbs(p) || xfs.Exists(p) {
		return p
	}

	return filepath.Join(modelsPath(), p)
}

func modelsPath() string {
	if p := os.Getenv(envvar.LocalgenModelsPath); p != "" {
		return xfs.ExpandTilde(p)
	}
	return xfs.ExpandTilde(config.DefaultModelsPath())
}

func modelID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
