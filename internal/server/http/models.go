package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/voxpipe/internal/model"
)

// ModelLister exposes the models found on disk.
type ModelLister interface {
	List() []model.Model
	Get(id string) (model.Model, bool)
}

type (
	ListModelsOutput struct {
		Body struct {
			Models []model.Model `json:"models"`
		}
	}

	GetModelInput struct {
		ID string `path:"id" doc:"Model identifier, e.g. base.en" minLength:"1"`
	}

	GetModelOutput struct {
		Body model.Model
	}
)

// ModelsHandler handles HTTP requests for the model catalog.
type ModelsHandler struct {
	models ModelLister
}

// NewModelsHandler creates a new ModelsHandler instance.
func NewModelsHandler(api huma.API, models ModelLister) *ModelsHandler {
	h := &ModelsHandler{models: models}

	huma.Register(api, huma.Operation{
		OperationID: "list-models",
		Method:      http.MethodGet,
		Path:        "/models",
		Summary:     "List the whisper.cpp models present on disk",
		Tags:        []string{"models"},
	}, h.handleList)

	huma.Register(api, huma.Operation{
		OperationID: "get-model",
		Method:      http.MethodGet,
		Path:        "/models/{id}",
		Summary:     "Get a single model",
		Tags:        []string{"models"},
	}, h.handleGet)

	return h
}

func (h *ModelsHandler) handleList(_ context.Context, _ *struct{}) (*ListModelsOutput, error) {
	out := &ListModelsOutput{}
	out.Body.Models = h.models.List()

	return out, nil
}

func (h *ModelsHandler) handleGet(_ context.Context, input *GetModelInput) (*GetModelOutput, error) {
	m, ok := h.models.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("model not found", model.ErrModelNotFound)
	}

	return &GetModelOutput{Body: m}, nil
}
