package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/localgen/internal/env"
)

func TestNew_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(env.Production, WithWriter(&buf))

	log.Info("Model loaded", "path", "/models/a.gguf")

	assert.Contains(t, buf.String(), `"msg":"Model loaded"`)
	assert.Contains(t, buf.String(), `"path":"/models/a.gguf"`)
}

func TestNew_DevelopmentWritesText(t *testing.T) {
	var buf bytes.Buffer
	log := New(env.Test, WithWriter(&buf))

	log.Info("Stream finished", "chunks", 3)

	assert.Contains(t, buf.String(), "Stream finished")
	assert.Contains(t, buf.String(), "chunks=3")
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(env.Production, WithWriter(&buf), WithLevel(slog.LevelWarn))

	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_LogToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "localgen.log")

	log := New(env.Test, WithWriter(&buf), WithLogToFile(true), WithLogFile(path))
	log.With("component", "test").Info("Written twice")

	assert.Contains(t, buf.String(), "Written twice")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Written twice"`)
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
