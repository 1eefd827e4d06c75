package http

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/localgen/internal/backend"
	"github.com/ekisa-team/localgen/internal/backend/backendtest"
	"github.com/ekisa-team/localgen/internal/config"
	"github.com/ekisa-team/localgen/internal/model"
	"github.com/ekisa-team/localgen/internal/service"
)

func newTestService(t *testing.T, b backend.Backend, load bool) *service.LLM {
	t.Helper()

	reg := backend.NewRegistry()
	require.NoError(t, reg.Register(b))
	svc := service.NewLLM(reg, model.NewManager())

	if load {
		path := filepath.Join(t.TempDir(), "gemma.gguf")
		require.NoError(t, os.WriteFile(path, []byte("gguf"), 0o644))
		cfg := config.Default()
		cfg.Model.Path = path
		require.NoError(t, svc.Load(context.Background(), cfg))
	}

	return svc
}

func newTestAPI(t *testing.T, svc *service.LLM) humatest.TestAPI {
	t.Helper()
	_, api := humatest.New(t, APIConfig())
	NewLLMHandler(api, svc)
	RegisterHealth(api)
	return api
}

func decode(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestGenerateStream_ThreeChunks(t *testing.T) {
	svc := newTestService(t, backendtest.NewScripted("Hello", ", ", "world"), true)
	api := newTestAPI(t, svc)

	resp := api.Post("/generate-stream", map[string]any{"prompt": "Say hello"})

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Hello, world", resp.Body.String())
	assert.Contains(t, resp.Header().Get("Content-Type"), "text/plain")
	assert.NotEmpty(t, resp.Header().Get("X-Job-Id"))

	st := svc.Status()
	assert.False(t, st.IsGenerating)
	assert.Equal(t, int64(3), st.Produced)
}

func TestGenerateStream_EmptyPrompt(t *testing.T) {
	svc := newTestService(t, backendtest.NewScripted("x"), true)
	api := newTestAPI(t, svc)

	resp := api.Post("/generate-stream", map[string]any{"prompt": ""})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, "Error: Prompt not provided.", resp.Body.String())
	assert.Empty(t, svc.Status().JobID, "no job is created")
}

func TestGenerateStream_EmptyPromptBeforeAvailability(t *testing.T) {
	api := newTestAPI(t, newTestService(t, backendtest.NewScripted("x"), false))

	resp := api.Post("/generate-stream", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = api.Post("/generate-stream", map[string]any{"prompt": "hi"})
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "Error: Model is not loaded.", resp.Body.String())
}

func TestGenerateStream_StopFromStatusPoll(t *testing.T) {
	chunks := make([]string, 100)
	for i := range chunks {
		chunks[i] = "tok "
	}
	b := backendtest.NewScripted(chunks...)
	b.Gate = make(chan struct{})
	svc := newTestService(t, b, true)
	api := newTestAPI(t, svc)

	done := make(chan string, 1)
	go func() {
		resp := api.Post("/generate-stream", map[string]any{"prompt": "Tell me a long story"})
		done <- resp.Body.String()
	}()

	// Let five increments through, then stop.
	for range 5 {
		b.Gate <- struct{}{}
	}
	require.Eventually(t, func() bool { return svc.Status().Produced == 5 }, 2*time.Second, 10*time.Millisecond)

	status := decode(t, api.Get("/generation-status").Body.Bytes())
	assert.Equal(t, true, status["is_generating"])
	assert.Equal(t, false, status["stop_requested"])

	resp := api.Post("/stop-generation")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Generation stop requested", decode(t, resp.Body.Bytes())["message"])

	body := <-done
	assert.Equal(t, "tok tok tok tok tok ", body)

	status = decode(t, api.Get("/generation-status").Body.Bytes())
	assert.Equal(t, false, status["is_generating"])
	assert.Equal(t, true, status["stop_requested"])
	assert.InDelta(t, 5, status["produced"], 0)
}

func TestGenerate(t *testing.T) {
	api := newTestAPI(t, newTestService(t, backendtest.NewScripted(" Paris", "."), true))

	resp := api.Post("/generate", map[string]any{"prompt": "The capital of France is"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, map[string]any{"response": " Paris."}, decode(t, resp.Body.Bytes()))

	resp = api.Post("/generate", map[string]any{"prompt": ""})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGenerate_ModelUnavailable(t *testing.T) {
	api := newTestAPI(t, newTestService(t, backendtest.NewScripted("x"), false))

	resp := api.Post("/generate", map[string]any{"prompt": "hi"})
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, map[string]any{"error": "Model is not loaded."}, decode(t, resp.Body.Bytes()))
}

func TestStatus_Idle(t *testing.T) {
	api := newTestAPI(t, newTestService(t, backendtest.NewScripted("x"), true))

	resp := api.Get("/generation-status")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, map[string]any{"is_generating": false, "stop_requested": false}, decode(t, resp.Body.Bytes()))
}

func TestStop_WithoutJob(t *testing.T) {
	api := newTestAPI(t, newTestService(t, backendtest.NewScripted("x"), false))

	resp := api.Post("/stop-generation")
	assert.Equal(t, http.StatusOK, resp.Code)

	status := decode(t, api.Get("/generation-status").Body.Bytes())
	assert.Equal(t, true, status["stop_requested"])
	assert.Equal(t, false, status["is_generating"])
}

func TestMalformedPromptIsBadRequest(t *testing.T) {
	svc := newTestService(t, backendtest.NewScripted("x"), true)
	api := newTestAPI(t, svc)

	for _, body := range []string{`{"prompt":5}`, `{"prompt":["a"]}`, `{"prompt":`, `[]`} {
		resp := api.Post("/generate", "Content-Type: application/json", strings.NewReader(body))
		assert.Equal(t, http.StatusBadRequest, resp.Code, body)
		assert.Equal(t, "Prompt not provided.", decode(t, resp.Body.Bytes())["error"], body)

		resp = api.Post("/generate-stream", "Content-Type: application/json", strings.NewReader(body))
		assert.Equal(t, http.StatusBadRequest, resp.Code, body)
		assert.Equal(t, "Error: Prompt not provided.", resp.Body.String(), body)
	}
	assert.Empty(t, svc.Status().JobID)
}

func TestGenerateStream_NoBody(t *testing.T) {
	api := newTestAPI(t, newTestService(t, backendtest.NewScripted("x"), true))

	resp := api.Post("/generate-stream")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Error: Prompt not provided.", resp.Body.String())
}
