package config

import "time"

// Config holds the main configuration for the application.
type Config struct {
	Version    string           `json:"version"              yaml:"version"`
	Server     ServerConfig     `json:"server,omitempty"     yaml:"server,omitempty"`
	Model      ModelConfig      `json:"model,omitempty"      yaml:"model,omitempty"`
	Generation GenerationConfig `json:"generation,omitempty" yaml:"generation,omitempty"`
	Relay      RelayConfig      `json:"relay,omitempty"      yaml:"relay,omitempty"`
	Logging    LoggingConfig    `json:"logging,omitempty"    yaml:"logging,omitempty"`
}

// ServerConfig holds the listeners of the inference server.
type ServerConfig struct {
	Host              string        `json:"host,omitempty"                yaml:"host,omitempty"`
	HTTPPort          int           `json:"http_port,omitempty"           yaml:"http_port,omitempty"`
	GRPCPort          int           `json:"grpc_port,omitempty"           yaml:"grpc_port,omitempty"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout,omitempty" yaml:"read_header_timeout,omitempty"`
}

// ModelConfig describes the single model served by the process.
type ModelConfig struct {
	// Path is a model file or a directory containing one.
	Path        string        `json:"path,omitempty"         yaml:"path,omitempty"`
	Backend     string        `json:"backend,omitempty"      yaml:"backend,omitempty"`
	Binary      string        `json:"binary,omitempty"       yaml:"binary,omitempty"`
	ContextSize int           `json:"context_size,omitempty" yaml:"context_size,omitempty"`
	Threads     int           `json:"threads,omitempty"      yaml:"threads,omitempty"`
	GPULayers   int           `json:"gpu_layers,omitempty"   yaml:"gpu_layers,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"      yaml:"timeout,omitempty"`
}

// GenerationConfig holds the sampling settings. It can be hot reloaded.
type GenerationConfig struct {
	StreamMaxNewTokens   int     `json:"stream_max_new_tokens,omitempty"   yaml:"stream_max_new_tokens,omitempty"`
	CompleteMaxNewTokens int     `json:"complete_max_new_tokens,omitempty" yaml:"complete_max_new_tokens,omitempty"`
	Temperature          float64 `json:"temperature,omitempty"             yaml:"temperature,omitempty"`
	TopP                 float64 `json:"top_p,omitempty"                   yaml:"top_p,omitempty"`
	TopK                 int     `json:"top_k,omitempty"                   yaml:"top_k,omitempty"`
	RepeatPenalty        float64 `json:"repeat_penalty,omitempty"          yaml:"repeat_penalty,omitempty"`
}

// RelayConfig configures the web chat relay.
type RelayConfig struct {
	Listen         string        `json:"listen,omitempty"          yaml:"listen,omitempty"`
	BackendURL     string        `json:"backend_url,omitempty"     yaml:"backend_url,omitempty"`
	RequestTimeout time.Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
	HealthTimeout  time.Duration `json:"health_timeout,omitempty"  yaml:"health_timeout,omitempty"`
	StreamTimeout  time.Duration `json:"stream_timeout,omitempty"  yaml:"stream_timeout,omitempty"`
	Redis          RedisConfig   `json:"redis,omitempty"           yaml:"redis,omitempty"`
}

// RedisConfig enables the shared session store when Addr is set.
type RedisConfig struct {
	Addr     string        `json:"addr,omitempty"     yaml:"addr,omitempty"`
	Password string        `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int           `json:"db,omitempty"       yaml:"db,omitempty"`
	TTL      time.Duration `json:"ttl,omitempty"      yaml:"ttl,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"   yaml:"level,omitempty"`
	File   string `json:"file,omitempty"    yaml:"file,omitempty"`
	ToFile bool   `json:"to_file,omitempty" yaml:"to_file,omitempty"`
}

// Addr returns the host:port of the HTTP listener.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.HTTPPort)
}

// GRPCAddr returns the host:port of the gRPC listener.
func (s ServerConfig) GRPCAddr() string {
	return joinHostPort(s.Host, s.GRPCPort)
}
