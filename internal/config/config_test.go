package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/localgen/internal/envvar"
)

const sampleConfig = `
version: "1"
server:
  http_port: 5050
model:
  path: ~/models/gemma
  threads: 8
generation:
  stream_max_new_tokens: 256
  temperature: 0.7
relay:
  stream_timeout: 45s
  redis:
    addr: localhost:6379
logging:
  level: debug
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "localgen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAndValidate(t *testing.T) {
	cfg, err := LoadAndValidate(writeConfig(t, sampleConfig), "")
	require.NoError(t, err)

	assert.Equal(t, 5050, cfg.Server.HTTPPort)
	assert.Equal(t, "~/models/gemma", cfg.Model.Path)
	assert.Equal(t, 8, cfg.Model.Threads)
	assert.Equal(t, 256, cfg.Generation.StreamMaxNewTokens)
	assert.InDelta(t, 0.7, cfg.Generation.Temperature, 1e-9)
	assert.Equal(t, 45*time.Second, cfg.Relay.StreamTimeout)
	assert.Equal(t, "localhost:6379", cfg.Relay.Redis.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Defaults fill what the file leaves out.
	assert.Equal(t, 150, cfg.Generation.CompleteMaxNewTokens)
	assert.Equal(t, "llama.cpp", cfg.Model.Backend)
	assert.Equal(t, 5*time.Second, cfg.Relay.RequestTimeout)
	assert.Equal(t, 2*time.Second, cfg.Relay.HealthTimeout)
	assert.Equal(t, "http://localhost:5050", cfg.Relay.BackendURL)
}

func TestLoadAndValidate_SchemaViolation(t *testing.T) {
	cases := map[string]string{
		"unknown section": "version: \"1\"\nplugins: {}\n",
		"bad port":        "server:\n  http_port: 70000\n",
		"bad duration":    "relay:\n  stream_timeout: soon\n",
		"bad backend":     "model:\n  backend: onnx\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadAndValidate(writeConfig(t, body), "")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	t.Setenv(envvar.LocalgenModelPath, "/srv/models/gemma.gguf")
	t.Setenv(envvar.LocalgenServerHTTPPort, "")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.HTTPPort)
	assert.Equal(t, 4000, cfg.Generation.StreamMaxNewTokens)
	assert.Equal(t, ":8080", cfg.Relay.Listen)
	assert.Equal(t, "/srv/models/gemma.gguf", cfg.Model.Path)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(envvar.LocalgenServerHTTPPort, "6000")
	t.Setenv(envvar.LocalgenServerGRPCPort, "not-a-port")
	t.Setenv(envvar.LocalgenRelayBackendURL, "http://core:5000")
	t.Setenv(envvar.LocalgenRelayRedisAddr, "redis:6379")
	t.Setenv(envvar.LocalgenLogLevel, "warn")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, 6000, cfg.Server.HTTPPort)
	assert.Equal(t, defaultGRPCPort, cfg.Server.GRPCPort)
	assert.Equal(t, "http://core:5000", cfg.Relay.BackendURL)
	assert.Equal(t, "redis:6379", cfg.Relay.Redis.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", HTTPPort: 5000, GRPCPort: 50051}
	assert.Equal(t, "127.0.0.1:5000", s.Addr())
	assert.Equal(t, "127.0.0.1:50051", s.GRPCAddr())
}
