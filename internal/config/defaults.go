package config

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/ekisa-team/localgen/internal/envvar"
)

const (
	appName = "localgen"

	defaultHTTPPort  = 5000
	defaultGRPCPort  = 50051
	defaultRelayPort = 8080
)

// DefaultConfigPath returns the default path for the localgen config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", appName, "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", appName)
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultConfigFile returns the default config file location.
func DefaultConfigFile() string {
	return filepath.Join(DefaultConfigPath(), "localgen.yaml")
}

// DefaultModelsPath returns the default path for the localgen models directory.
func DefaultModelsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", appName, "models")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", appName, "models")
	case "darwin":
		return filepath.Join(home, "Library", "Caches", appName, "models")
	default:
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, appName, "models")
		}
		return filepath.Join(home, ".cache", appName, "models")
	}
}

// DefaultHTTPPort returns the HTTP port, honoring LOCALGEN_SERVER_HTTP_PORT.
func DefaultHTTPPort() int {
	return portFromEnv(envvar.LocalgenServerHTTPPort, defaultHTTPPort)
}

// DefaultGRPCPort returns the gRPC port, honoring LOCALGEN_SERVER_GRPC_PORT.
func DefaultGRPCPort() int {
	return portFromEnv(envvar.LocalgenServerGRPCPort, defaultGRPCPort)
}

// Default returns the built-in configuration used when no file exists.
func Default() *Config {
	cfg := &Config{Version: "1"}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every zero value with its default.
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = "1"
	}

	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = DefaultHTTPPort()
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = DefaultGRPCPort()
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = 10 * time.Second
	}

	if c.Model.Backend == "" {
		c.Model.Backend = "llama.cpp"
	}
	if c.Model.Binary == "" {
		c.Model.Binary = "llama-cli"
	}
	if c.Model.ContextSize == 0 {
		c.Model.ContextSize = 8192
	}
	if c.Model.Timeout == 0 {
		c.Model.Timeout = 10 * time.Minute
	}

	if c.Generation.StreamMaxNewTokens == 0 {
		c.Generation.StreamMaxNewTokens = 4000
	}
	if c.Generation.CompleteMaxNewTokens == 0 {
		c.Generation.CompleteMaxNewTokens = 150
	}
	if c.Generation.Temperature == 0 {
		c.Generation.Temperature = 1.0
	}
	if c.Generation.TopP == 0 {
		c.Generation.TopP = 0.95
	}
	if c.Generation.TopK == 0 {
		c.Generation.TopK = 64
	}
	if c.Generation.RepeatPenalty == 0 {
		c.Generation.RepeatPenalty = 1.1
	}

	if c.Relay.Listen == "" {
		c.Relay.Listen = ":" + strconv.Itoa(defaultRelayPort)
	}
	if c.Relay.BackendURL == "" {
		c.Relay.BackendURL = "http://" + joinHostPort("localhost", c.Server.HTTPPort)
	}
	if c.Relay.RequestTimeout == 0 {
		c.Relay.RequestTimeout = 5 * time.Second
	}
	if c.Relay.HealthTimeout == 0 {
		c.Relay.HealthTimeout = 2 * time.Second
	}
	if c.Relay.StreamTimeout == 0 {
		c.Relay.StreamTimeout = 30 * time.Second
	}
	if c.Relay.Redis.TTL == 0 {
		c.Relay.Redis.TTL = time.Hour
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join("logs", appName+".log")
	}
}

// ApplyEnv overrides fields with the LOCALGEN_* environment variables.
func (c *Config) ApplyEnv() {
	if p, ok := lookupPort(envvar.LocalgenServerHTTPPort); ok {
		c.Server.HTTPPort = p
	}
	if p, ok := lookupPort(envvar.LocalgenServerGRPCPort); ok {
		c.Server.GRPCPort = p
	}
	if v := os.Getenv(envvar.LocalgenModelPath); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv(envvar.LocalgenLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(envvar.LocalgenRelayBackendURL); v != "" {
		c.Relay.BackendURL = v
	}
	if v := os.Getenv(envvar.LocalgenRelayRedisAddr); v != "" {
		c.Relay.Redis.Addr = v
	}
}

func portFromEnv(key string, def int) int {
	if p, ok := lookupPort(key); ok {
		return p
	}
	return def
}

func lookupPort(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	p, err := strconv.Atoi(v)
	if err != nil || p <= 0 || p > 65535 {
		return 0, false
	}
	return p, true
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
