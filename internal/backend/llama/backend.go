package llama

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ekisa-team/localgen/internal/backend"
	"github.com/ekisa-team/localgen/internal/mapsafe"
)

const (
	defaultMaxNewTokens  = 512
	defaultRepeatPenalty = 1.1

	// endOfText is printed by llama-cli when the model emits end of generation.
	endOfText = "[end of text]"
)

// Backend implements backend.StreamingBackend for the llama.cpp CLI.
type Backend struct {
	executor *backend.Executor
	template ChatTemplate
}

// NewBackend creates a new llama.cpp backend running binPath.
func NewBackend(binPath string, timeout time.Duration) (*Backend, error) {
	executor, err := backend.NewExecutor(binPath, timeout)
	if err != nil {
		return nil, err
	}

	return NewBackendWithExecutor(executor), nil
}

// NewBackendWithExecutor creates a backend on top of an existing executor.
func NewBackendWithExecutor(executor *backend.Executor) *Backend {
	return &Backend{
		executor: executor,
		template: GemmaTemplate,
	}
}

// Provider returns the backend provider.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderLlamaCPP
}

// RenderPrompt applies the chat template.
func (b *Backend) RenderPrompt(messages []backend.Message) (string, error) {
	return b.template(messages)
}

// Infer executes synchronous generation.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	args, err := b.buildArgs(req)
	if err != nil {
		return nil, err
	}

	stdout, stderr, err := b.executor.Execute(ctx, args, nil)
	if err != nil {
		return nil, fmt.Errorf("llama: execution failed: %w: %s", err, strings.TrimSpace(string(stderr)))
	}

	text := parseOutput(string(stdout))

	return &backend.Response{
		Output: strings.NewReader(text),
		Metadata: &backend.ResponseMetadata{
			Provider:    b.Provider(),
			Model:       req.ModelPath,
			Timestamp:   time.Now(),
			OutputBytes: int64(len(text)),
			BackendSpecific: map[string]any{
				"args": strings.Join(args[:len(args)-2], " "),
			},
		},
	}, nil
}

// InferStream executes streaming generation.
func (b *Backend) InferStream(ctx context.Context, req *backend.Request) (<-chan backend.StreamChunk, error) {
	args, err := b.buildArgs(req)
	if err != nil {
		return nil, err
	}

	raw, err := b.executor.Stream(ctx, args, nil)
	if err != nil {
		return nil, err
	}

	return stripEndOfText(ctx, raw), nil
}

// ResolveModelPath returns basePath when it is a .gguf file, or the first
// .gguf file inside it when it is a directory. Projector files are skipped.
func (b *Backend) ResolveModelPath(basePath string) (string, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return "", fmt.Errorf("llama: %w", err)
	}

	if !info.IsDir() {
		if !isGGUF(basePath) {
			return "", fmt.Errorf("llama: %s is not a .gguf file", basePath)
		}
		return basePath, nil
	}

	matches, err := filepath.Glob(filepath.Join(basePath, "*.gguf"))
	if err != nil {
		return "", fmt.Errorf("llama: %w", err)
	}
	sort.Strings(matches)

	for _, m := range matches {
		if !strings.HasPrefix(strings.ToLower(filepath.Base(m)), "mmproj") {
			return m, nil
		}
	}

	return "", fmt.Errorf("llama: no .gguf model found in %s", basePath)
}

// Close cleans up resources. Every generation runs its own process, so there is nothing to release.
func (b *Backend) Close() error {
	return nil
}

// buildArgs builds llama-cli arguments. The prompt is always last.
func (b *Backend) buildArgs(req *backend.Request) ([]string, error) {
	if req == nil || req.Input == nil {
		return nil, fmt.Errorf("llama: request has no input")
	}

	prompt, err := io.ReadAll(req.Input)
	if err != nil {
		return nil, fmt.Errorf("llama: read input: %w", err)
	}

	p := req.Parameters
	args := []string{"--model", req.ModelPath}

	args = append(args, "-n", strconv.Itoa(mapsafe.Get(p, backend.ParamMaxNewTokens, defaultMaxNewTokens)))

	if v := mapsafe.Get(p, backend.ParamContextSize, 0); v > 0 {
		args = append(args, "--ctx-size", strconv.Itoa(v))
	}
	if v := mapsafe.Get(p, backend.ParamGPULayers, 0); v > 0 {
		args = append(args, "-ngl", strconv.Itoa(v))
	}
	if v := mapsafe.Get(p, backend.ParamThreads, 0); v > 0 {
		args = append(args, "-t", strconv.Itoa(v))
	}

	if mapsafe.Get(p, backend.ParamSampling, true) {
		if v := mapsafe.Get(p, backend.ParamTemperature, 0.0); v > 0 {
			args = append(args, "--temp", formatFloat(v))
		}
		if v := mapsafe.Get(p, backend.ParamTopP, 0.0); v > 0 {
			args = append(args, "--top-p", formatFloat(v))
		}
		if v := mapsafe.Get(p, backend.ParamTopK, 0); v > 0 {
			args = append(args, "--top-k", strconv.Itoa(v))
		}
	} else {
		// Greedy decoding.
		args = append(args, "--temp", "0")
	}

	args = append(args, "--repeat-penalty", formatFloat(mapsafe.Get(p, backend.ParamRepeatPenalty, defaultRepeatPenalty)))

	args = append(args,
		"--no-warmup",
		"--no-display-prompt",
		"--simple-io",
		"--no-conversation",
		"--log-disable",
		"--prompt", string(prompt),
	)

	return args, nil
}

// parseOutput drops llama.cpp diagnostics that leak onto stdout.
func parseOutput(output string) string {
	lines := strings.Split(output, "\n")
	var result strings.Builder
	inGeneration := false

	for _, line := range lines {
		if !inGeneration && isDiagnostic(line) {
			continue
		}

		if strings.TrimSpace(line) != "" {
			inGeneration = true
		}

		if inGeneration {
			result.WriteString(line)
			result.WriteString("\n")
		}
	}

	text := strings.TrimSpace(result.String())
	return strings.TrimSpace(strings.TrimSuffix(text, endOfText))
}

func isDiagnostic(line string) bool {
	for _, prefix := range []string{
		"system_info:", "llama_", "ggml_", "print_info:", "load:",
		"main:", "sampler", "generate:", "build:", "common_",
	} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// stripEndOfText forwards in while removing the end-of-text marker, holding
// back any tail that could be the start of it.
func stripEndOfText(ctx context.Context, in <-chan backend.StreamChunk) <-chan backend.StreamChunk {
	out := make(chan backend.StreamChunk)

	go func() {
		defer close(out)

		forward := func(c backend.StreamChunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var pending string
		for c := range in {
			if len(c.Data) > 0 {
				text := strings.ReplaceAll(pending+string(c.Data), endOfText, "")
				hold := markerPrefixLen(text)
				pending = text[len(text)-hold:]
				text = text[:len(text)-hold]

				if text != "" && !forward(backend.StreamChunk{Data: []byte(text)}) {
					return
				}
			}

			if c.Done || c.Error != nil {
				if pending != "" && !forward(backend.StreamChunk{Data: []byte(pending)}) {
					return
				}
				pending = ""
				if !forward(backend.StreamChunk{Done: c.Done, Error: c.Error}) {
					return
				}
			}
		}

		if pending != "" {
			forward(backend.StreamChunk{Data: []byte(pending)})
		}
	}()

	return out
}

// markerPrefixLen returns the length of the longest suffix of s that is a
// proper prefix of endOfText.
func markerPrefixLen(s string) int {
	for n := min(len(endOfText)-1, len(s)); n > 0; n-- {
		if strings.HasPrefix(endOfText, s[len(s)-n:]) {
			return n
		}
	}
	return 0
}

func isGGUF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gguf")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
