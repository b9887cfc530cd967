package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/voxpipe/internal/diagnostics"
)

// Diagnoser produces a report on the pipeline's external dependencies.
type Diagnoser interface {
	Run() diagnostics.Report
}

type HealthOutput struct {
	Status int
	Body   diagnostics.Report
}

// HealthHandler handles HTTP requests for service health.
type HealthHandler struct {
	diagnostics Diagnoser
}

// NewHealthHandler creates a new HealthHandler instance.
func NewHealthHandler(api huma.API, d Diagnoser) *HealthHandler {
	h := &HealthHandler{diagnostics: d}

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Check external tools, models and upload storage",
		Tags:        []string{"health"},
		Responses: map[string]*huma.Response{
			"503": {Description: "At least one check failed"},
		},
	}, h.handleHealth)

	return h
}

func (h *HealthHandler) handleHealth(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	report := h.diagnostics.Run()

	status := http.StatusOK
	if report.HasFailures {
		status = http.StatusServiceUnavailable
	}

	return &HealthOutput{Status: status, Body: report}, nil
}
