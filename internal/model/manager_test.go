package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/localgen/internal/config"
	"github.com/ekisa-team/localgen/internal/envvar"
)

type locatorFunc func(string) (string, error)

func (f locatorFunc) ResolveModelPath(base string) (string, error) { return f(base) }

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("gguf"), 0o644))
}

func TestManager_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gemma-3-4b.gguf")
	touch(t, path)

	m := NewManager()
	inst, err := m.Load(context.Background(), config.ModelConfig{Path: path}, nil)
	require.NoError(t, err)

	assert.Equal(t, "gemma-3-4b", inst.ID)
	assert.Equal(t, path, inst.Path)
	assert.Equal(t, StatusLoaded, inst.Status())
	assert.True(t, inst.Ready())
	assert.False(t, inst.LoadedAt().IsZero())

	cur, ok := m.Current()
	assert.True(t, ok)
	assert.Same(t, inst, cur)
}

func TestManager_LoadDirectoryWithLocator(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "model.gguf")
	touch(t, file)

	m := NewManager()
	inst, err := m.Load(context.Background(), config.ModelConfig{Path: dir}, locatorFunc(func(base string) (string, error) {
		assert.Equal(t, dir, base)
		return file, nil
	}))
	require.NoError(t, err)
	assert.Equal(t, file, inst.Path)
	assert.Equal(t, "model", inst.ID)
}

func TestManager_RelativePathUsesModelsDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envvar.LocalgenModelsPath, dir)
	touch(t, filepath.Join(dir, "gemma", "model.gguf"))

	m := NewManager()
	inst, err := m.Load(context.Background(), config.ModelConfig{Path: "gemma/model.gguf"}, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "gemma", "model.gguf"), inst.Path)
}

func TestManager_LoadFailures(t *testing.T) {
	m := NewManager()

	_, err := m.Load(context.Background(), config.ModelConfig{}, nil)
	assert.ErrorIs(t, err, ErrModelNotConfigured)

	inst, err := m.Load(context.Background(), config.ModelConfig{Path: "/nonexistent/model.gguf"}, nil)
	assert.ErrorIs(t, err, ErrModelNotFound)
	require.NotNil(t, inst)
	assert.Equal(t, StatusFailed, inst.Status())
	assert.ErrorIs(t, inst.Err(), ErrModelNotFound)
	assert.False(t, inst.Ready())

	dir := t.TempDir()
	_, err = m.Load(context.Background(), config.ModelConfig{Path: dir}, nil)
	assert.ErrorIs(t, err, ErrModelNotFound)

	_, err = m.Load(context.Background(), config.ModelConfig{Path: dir}, locatorFunc(func(string) (string, error) {
		return "", errors.New("no gguf")
	}))
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestManager_LoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewManager().Load(ctx, config.ModelConfig{Path: "x"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
