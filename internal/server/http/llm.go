package http

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/danielgtaylor/huma/v2"
	"github.com/goccy/go-json"

	"github.com/ekisa-team/localgen/internal/service"
)

type (
	// GenerateRequestDTO is the request body of both generation operations.
	GenerateRequestDTO struct {
		Prompt string `json:"prompt,omitempty" doc:"Text to generate from"`
	}

	// GenerateResponseDTO is the response body of the complete generation.
	GenerateResponseDTO struct {
		Response string `json:"response"`
	}

	// StopResponseDTO acknowledges a stop request.
	StopResponseDTO struct {
		Message string `json:"message"`
	}

	// StatusResponseDTO reports generation activity.
	StatusResponseDTO struct {
		IsGenerating  bool   `json:"is_generating"`
		StopRequested bool   `json:"stop_requested"`
		JobID         string `json:"job_id,omitempty"`
		Produced      *int64 `json:"produced,omitempty"`
	}
)

type (
	// GenerateInput is the huma input for both generation operations. The body
	// is decoded by the handler so every malformed prompt is a 400.
	GenerateInput struct {
		RawBody []byte
	}

	// GenerateOutput is the huma output for the complete generation.
	GenerateOutput struct {
		Body GenerateResponseDTO
	}

	// StopOutput is the huma output for the stop operation.
	StopOutput struct {
		Body StopResponseDTO
	}

	// StatusOutput is the huma output for the status operation.
	StatusOutput struct {
		Body StatusResponseDTO
	}
)

// LLMHandler handles the generation endpoints.
type LLMHandler struct {
	service *service.LLM
}

// NewLLMHandler registers the generation operations on api.
func NewLLMHandler(api huma.API, svc *service.LLM) *LLMHandler {
	h := &LLMHandler{service: svc}
	body := generateRequestBody(api)
	text := map[string]*huma.MediaType{"text/plain": {}}

	huma.Register(api, huma.Operation{
		OperationID: "generate-stream",
		Method:      http.MethodPost,
		Path:        "/generate-stream",
		Summary:     "Stream generated text as plain text, flushed per increment",
		Tags:        []string{"generation"},
		RequestBody: body,
		Responses: map[string]*huma.Response{
			"200": {Description: "Generated text", Content: text},
			"400": {Description: "Prompt not provided", Content: text},
			"500": {Description: "Model not loaded or generation failed", Content: text},
		},
	}, h.handleGenerateStream)

	huma.Register(api, huma.Operation{
		OperationID:   "generate",
		Method:        http.MethodPost,
		Path:          "/generate",
		Summary:       "Generate a short greedy completion of a raw prompt",
		Tags:          []string{"generation"},
		DefaultStatus: http.StatusOK,
		RequestBody:   body,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, h.handleGenerate)

	huma.Register(api, huma.Operation{
		OperationID:   "stop-generation",
		Method:        http.MethodPost,
		Path:          "/stop-generation",
		Summary:       "Request cancellation of the active generation",
		Tags:          []string{"generation"},
		DefaultStatus: http.StatusOK,
	}, h.handleStop)

	huma.Register(api, huma.Operation{
		OperationID:   "generation-status",
		Method:        http.MethodGet,
		Path:          "/generation-status",
		Summary:       "Report whether a generation is active",
		Tags:          []string{"generation"},
		DefaultStatus: http.StatusOK,
	}, h.handleStatus)

	return h
}

// handleGenerateStream starts a job and streams its output.
func (h *LLMHandler) handleGenerateStream(ctx context.Context, input *GenerateInput) (*huma.StreamResponse, error) {
	prompt, err := input.prompt()
	if err != nil {
		return textError(err), nil
	}

	job, err := h.service.StartStream(ctx, prompt)
	if err != nil {
		return textError(err), nil
	}

	return &huma.StreamResponse{
		Body: func(hctx huma.Context) {
			hctx.SetHeader("Content-Type", "text/plain; charset=utf-8")
			hctx.SetHeader("Cache-Control", "no-cache")
			hctx.SetHeader("X-Accel-Buffering", "no")
			hctx.SetHeader("X-Job-Id", job.ID)
			hctx.SetStatus(http.StatusOK)

			w := hctx.BodyWriter()
			flusher, _ := w.(http.Flusher)
			if flusher != nil {
				flusher.Flush()
			}

			// Faults are logged by the job; the body simply ends.
			_ = job.Run(hctx.Context(), func(chunk []byte) error {
				if _, err := w.Write(chunk); err != nil {
					return err
				}
				if flusher != nil {
					flusher.Flush()
				}
				return nil
			})
		},
	}, nil
}

// handleGenerate runs a synchronous generation.
func (h *LLMHandler) handleGenerate(ctx context.Context, input *GenerateInput) (*GenerateOutput, error) {
	prompt, err := input.prompt()
	if err != nil {
		return nil, toErrorResponse(err)
	}

	text, err := h.service.GenerateComplete(ctx, prompt)
	if err != nil {
		return nil, toErrorResponse(err)
	}

	return &GenerateOutput{Body: GenerateResponseDTO{Response: text}}, nil
}

// handleStop sets the stop signal.
func (h *LLMHandler) handleStop(_ context.Context, _ *struct{}) (*StopOutput, error) {
	h.service.RequestStop()

	return &StopOutput{Body: StopResponseDTO{Message: "Generation stop requested"}}, nil
}

// handleStatus reports the service status.
func (h *LLMHandler) handleStatus(_ context.Context, _ *struct{}) (*StatusOutput, error) {
	st := h.service.Status()

	out := &StatusOutput{Body: StatusResponseDTO{
		IsGenerating:  st.IsGenerating,
		StopRequested: st.StopRequested,
		JobID:         st.JobID,
	}}
	if st.JobID != "" {
		produced := st.Produced
		out.Body.Produced = &produced
	}

	slog.Debug("Generation status", "is_generating", st.IsGenerating, "stop_requested", st.StopRequested)
	return out, nil
}

// prompt decodes the request body. An empty body yields an empty prompt.
func (in *GenerateInput) prompt() (string, error) {
	if len(bytes.TrimSpace(in.RawBody)) == 0 {
		return "", nil
	}

	var body GenerateRequestDTO
	if err := json.Unmarshal(in.RawBody, &body); err != nil {
		return "", fmt.Errorf("http: %w: %v", service.ErrInvalidRequest, err)
	}
	return body.Prompt, nil
}

func generateRequestBody(api huma.API) *huma.RequestBody {
	schema := api.OpenAPI().Components.Schemas.Schema(reflect.TypeOf(GenerateRequestDTO{}), true, "GenerateRequest")
	return &huma.RequestBody{
		Content: map[string]*huma.MediaType{"application/json": {Schema: schema}},
	}
}
