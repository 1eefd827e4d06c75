package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// HealthOutput is a plain text liveness answer.
type HealthOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// RegisterHealth registers GET /health. It answers regardless of model state.
func RegisterHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness check",
		Tags:        []string{"health"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Process is alive",
				Content:     map[string]*huma.MediaType{"text/plain": {}},
			},
		},
	}, func(context.Context, *struct{}) (*HealthOutput, error) {
		return &HealthOutput{ContentType: "text/plain; charset=utf-8", Body: []byte("OK")}, nil
	})
}
