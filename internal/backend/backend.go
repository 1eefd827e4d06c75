package backend

import (
	"context"
	"io"
	"time"
)

// BackendProvider is a string identifier for a backend provider.
type BackendProvider string

const (
	BackendProviderLlamaCPP BackendProvider = "llama.cpp"
)

// Backend defines the core interface for text generation backends.
type Backend interface {
	// Provider returns the backend identifier.
	Provider() BackendProvider

	// Infer executes generation and returns the complete result.
	Infer(ctx context.Context, req *Request) (*Response, error)

	// Close cleans up resources.
	Close() error
}

// StreamingBackend is an optional interface for backends that support streaming.
type StreamingBackend interface {
	Backend

	// InferStream executes generation and streams text increments as they're produced.
	// The channel is closed when generation ends. Cancelling ctx interrupts generation.
	InferStream(ctx context.Context, req *Request) (<-chan StreamChunk, error)
}

// PromptRenderer is an optional interface for backends that know the chat
// template of the model they serve.
type PromptRenderer interface {
	RenderPrompt(messages []Message) (string, error)
}

// Role is the author of a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is a single chat turn.
type Message struct {
	Role    Role
	Content string
}

// Request encapsulates all parameters for a generation call.
type Request struct {
	// ModelPath is the path to the model file.
	ModelPath string

	// Input is the rendered prompt.
	Input io.Reader

	// Parameters contains backend-specific generation parameters.
	Parameters map[string]any
}

// Response contains the result of a generation call.
type Response struct {
	// Output is the generated text.
	Output io.Reader

	// Metadata contains backend-specific information.
	Metadata *ResponseMetadata
}

// ResponseMetadata contains metadata about the response.
type ResponseMetadata struct {
	Provider        BackendProvider `json:"provider"`
	Model           string          `json:"model"`
	Timestamp       time.Time       `json:"timestamp"`
	OutputBytes     int64           `json:"output_bytes"`
	BackendSpecific map[string]any  `json:"backend_specific"`
}

// StreamChunk represents a single increment in a streaming response.
type StreamChunk struct {
	// Data is the increment content, always valid UTF-8.
	Data []byte

	// Done indicates if this is the final chunk.
	Done bool

	// Error if something went wrong.
	Error error
}

// Parameter keys understood by the backends.
const (
	ParamMaxNewTokens  = "max_new_tokens"
	ParamSampling      = "do_sample"
	ParamTemperature   = "temperature"
	ParamTopP          = "top_p"
	ParamTopK          = "top_k"
	ParamRepeatPenalty = "repeat_penalty"
	ParamContextSize   = "n_ctx"
	ParamThreads       = "threads"
	ParamGPULayers     = "n_gpu_layers"
)
