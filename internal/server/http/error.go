package http

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/localgen/internal/service"
)

// ErrorResponse is the body of every error returned by the generation API.
// It implements huma.StatusError, so huma writes it with its own status.
type ErrorResponse struct {
	status  int
	Message string `json:"error"`
}

func (e *ErrorResponse) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *ErrorResponse) GetStatus() int {
	return e.status
}

func newErrorResponse(status int, msg string) *ErrorResponse {
	return &ErrorResponse{status: status, Message: msg}
}

// toErrorResponse maps service errors to client responses.
func toErrorResponse(err error) *ErrorResponse {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return newErrorResponse(http.StatusBadRequest, "Prompt not provided.")
	case errors.Is(err, service.ErrServiceUnavailable):
		return newErrorResponse(http.StatusInternalServerError, "Model is not loaded.")
	default:
		return newErrorResponse(http.StatusInternalServerError, "Generation failed.")
	}
}

// textError answers err as a plain-text body, the way the streaming operation
// reports failures that happen before any output.
func textError(err error) *huma.StreamResponse {
	e := toErrorResponse(err)
	return &huma.StreamResponse{
		Body: func(hctx huma.Context) {
			hctx.SetHeader("Content-Type", "text/plain; charset=utf-8")
			hctx.SetStatus(e.status)
			_, _ = hctx.BodyWriter().Write([]byte("Error: " + e.Message))
		},
	}
}
