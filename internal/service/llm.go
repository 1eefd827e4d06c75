// Package service owns the loaded model and the single active generation job.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ekisa-team/localgen/internal/backend"
	"github.com/ekisa-team/localgen/internal/config"
	"github.com/ekisa-team/localgen/internal/generation"
	"github.com/ekisa-team/localgen/internal/model"
)

// CompleteRecorder receives the outcome of synchronous generations.
type CompleteRecorder interface {
	CompleteFinished(err error)
}

// Status is a point-in-time view of generation activity.
type Status struct {
	IsGenerating  bool
	StopRequested bool
	JobID         string
	Produced      int64
}

// LLM is the inference service. At most one streaming job is active; starting
// a new one supersedes the previous job.
type LLM struct {
	backends *backend.Registry
	models   *model.Manager
	observer generation.Observer
	recorder CompleteRecorder

	base       context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	backend  backend.StreamingBackend
	instance *model.Instance
	modelCfg config.ModelConfig
	active   *generation.Job

	stop     *generation.StopSignal
	settings atomic.Pointer[config.GenerationConfig]
}

// Option configures the LLM service.
type Option func(*LLM)

// WithObserver sets the job observer.
func WithObserver(o generation.Observer) Option {
	return func(s *LLM) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithCompleteRecorder sets the recorder for synchronous generations.
func WithCompleteRecorder(r CompleteRecorder) Option {
	return func(s *LLM) {
		s.recorder = r
	}
}

// NewLLM creates a new LLM service with no model loaded.
func NewLLM(backends *backend.Registry, models *model.Manager, opts ...Option) *LLM {
	base, cancel := context.WithCancel(context.Background())

	s := &LLM{
		backends:   backends,
		models:     models,
		observer:   generation.NopObserver,
		base:       base,
		baseCancel: cancel,
		stop:       generation.NewStopSignal(),
	}
	for _, opt := range opts {
		opt(s)
	}

	defaults := config.Default().Generation
	s.settings.Store(&defaults)

	return s
}

// Load resolves the configured model and backend. On failure the service
// stays unavailable for generation.
func (s *LLM) Load(ctx context.Context, cfg *config.Config) error {
	sb, err := s.backends.GetStreaming(backend.BackendProvider(cfg.Model.Backend))
	if err != nil {
		slog.Error("Failed to load model", "backend", cfg.Model.Backend, "error", err)
		return fmt.Errorf("service: %w: %w", ErrServiceUnavailable, err)
	}

	// Held across the swap so no stream starts against the outgoing model.
	s.mu.Lock()
	if s.active != nil && s.active.State() == generation.StateRunning {
		s.mu.Unlock()
		slog.Warn("Refusing model swap during generation", "job_id", s.active.ID, "path", cfg.Model.Path)
		return fmt.Errorf("service: %w", ErrGenerationActive)
	}

	locator, _ := sb.(backend.ModelLocator)
	instance, err := s.models.Load(ctx, cfg.Model, locator)
	if err != nil {
		s.mu.Unlock()
		slog.Error("Failed to load model", "path", cfg.Model.Path, "error", err)
		return fmt.Errorf("service: %w: %w", ErrServiceUnavailable, err)
	}

	s.backend = sb
	s.instance = instance
	s.modelCfg = cfg.Model
	s.mu.Unlock()

	s.ApplyGeneration(cfg.Generation)

	slog.Info("Model ready", "model_id", instance.ID, "backend", sb.Provider())
	return nil
}

// Ready reports whether a model is loaded.
func (s *LLM) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.backend != nil && s.instance.Ready()
}

// ApplyGeneration replaces the sampling settings used by jobs started afterwards.
func (s *LLM) ApplyGeneration(cfg config.GenerationConfig) {
	s.settings.Store(&cfg)
	slog.Info("Generation settings applied",
		"stream_max_new_tokens", cfg.StreamMaxNewTokens,
		"complete_max_new_tokens", cfg.CompleteMaxNewTokens,
		"temperature", cfg.Temperature,
	)
}

// Settings returns the current sampling settings.
func (s *LLM) Settings() config.GenerationConfig {
	return *s.settings.Load()
}

// StartStream creates the streaming job for prompt and makes it the active
// job. The caller must Run the returned job.
func (s *LLM) StartStream(ctx context.Context, prompt string) (*generation.Job, error) {
	if prompt == "" {
		return nil, fmt.Errorf("service: %w: prompt not provided", ErrInvalidRequest)
	}

	s.mu.Lock()
	sb, instance, modelCfg := s.backend, s.instance, s.modelCfg
	s.mu.Unlock()

	if sb == nil {
		return nil, fmt.Errorf("service: %w", ErrServiceUnavailable)
	}

	rendered, err := render(sb, prompt)
	if err != nil {
		return nil, fmt.Errorf("service: %w: %w", ErrInvalidRequest, err)
	}

	// Starting the producer may spawn a process; status and stop must not wait on it.
	settings := s.Settings()
	producerCtx, cancel := context.WithCancel(s.base)

	chunks, err := sb.InferStream(producerCtx, &backend.Request{
		ModelPath:  instance.Path,
		Input:      strings.NewReader(rendered),
		Parameters: parameters(modelCfg, settings, settings.StreamMaxNewTokens, true),
	})
	if err != nil {
		cancel()
		slog.Error("Failed to start generation", "error", err)
		return nil, fmt.Errorf("service: %w: %w", ErrGenerationFault, err)
	}

	job := generation.NewJob(uuid.NewString(), prompt, chunks, cancel, s.stop, generation.WithObserver(s.observer))

	s.mu.Lock()
	if s.active != nil && s.active.State() == generation.StateRunning {
		slog.Info("Superseding active generation", "job_id", s.active.ID)
		s.active.Supersede()
	}
	s.stop.Clear()
	s.active = job
	s.mu.Unlock()

	slog.Info("Stream started", "job_id", job.ID, "prompt_bytes", len(prompt))
	return job, nil
}

// RequestStop sets the stop signal. It always succeeds, with or without an active job.
func (s *LLM) RequestStop() {
	s.stop.Request()
	s.observer.StopRequested()

	jobID := ""
	if job := s.activeJob(); job != nil {
		jobID = job.ID
	}
	slog.Info("Generation stop requested", "job_id", jobID)
}

// Status reports whether a job is generating and whether a stop is pending.
func (s *LLM) Status() Status {
	st := Status{StopRequested: s.stop.Requested()}

	if job := s.activeJob(); job != nil {
		st.IsGenerating = job.State() == generation.StateRunning
		st.JobID = job.ID
		st.Produced = job.Produced()
	}

	return st
}

// GenerateComplete runs a bounded greedy generation on the raw prompt and
// returns the generated continuation. It does not create a job and ignores
// the stop signal.
func (s *LLM) GenerateComplete(ctx context.Context, prompt string) (text string, err error) {
	if prompt == "" {
		return "", fmt.Errorf("service: %w: prompt not provided", ErrInvalidRequest)
	}

	s.mu.Lock()
	b, instance, modelCfg := s.backend, s.instance, s.modelCfg
	s.mu.Unlock()

	if b == nil {
		return "", fmt.Errorf("service: %w", ErrServiceUnavailable)
	}

	if s.recorder != nil {
		defer func() { s.recorder.CompleteFinished(err) }()
	}

	settings := s.Settings()
	resp, err := b.Infer(ctx, &backend.Request{
		ModelPath:  instance.Path,
		Input:      strings.NewReader(prompt),
		Parameters: parameters(modelCfg, settings, settings.CompleteMaxNewTokens, false),
	})
	if err != nil {
		slog.Error("Failed to generate text", "error", err)
		return "", fmt.Errorf("service: %w: %w", ErrGenerationFault, err)
	}

	out, err := io.ReadAll(resp.Output)
	if err != nil {
		return "", fmt.Errorf("service: %w: read output: %w", ErrGenerationFault, err)
	}

	return string(out), nil
}

// Close stops every producer and releases the backends.
func (s *LLM) Close() error {
	s.baseCancel()

	if job := s.activeJob(); job != nil {
		job.Supersede()
	}

	return s.backends.Close()
}

func (s *LLM) activeJob() *generation.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}

func render(sb backend.StreamingBackend, prompt string) (string, error) {
	r, ok := sb.(backend.PromptRenderer)
	if !ok {
		return prompt, nil
	}

	return r.RenderPrompt([]backend.Message{{Role: backend.RoleUser, Content: prompt}})
}

func parameters(m config.ModelConfig, g config.GenerationConfig, maxNewTokens int, sampling bool) map[string]any {
	return map[string]any{
		backend.ParamMaxNewTokens:  maxNewTokens,
		backend.ParamSampling:      sampling,
		backend.ParamTemperature:   g.Temperature,
		backend.ParamTopP:          g.TopP,
		backend.ParamTopK:          g.TopK,
		backend.ParamRepeatPenalty: g.RepeatPenalty,
		backend.ParamContextSize:   m.ContextSize,
		backend.ParamThreads:       m.Threads,
		backend.ParamGPULayers:     m.GPULayers,
	}
}
