package http

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const apiTitle = "voxpipe"

// Deps are the services exposed over HTTP.
type Deps struct {
	STT         SpeechToText
	Models      ModelLister
	Diagnostics Diagnoser
	Version     string
	UploadField string
	MaxBodySize int64
}

// NewRouter builds the HTTP handler serving every route.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{ExitCodeTrailer},
		MaxAge:         300,
	}))

	NewSTTHandler(r, deps.STT, deps.UploadField, deps.MaxBodySize)

	config := huma.DefaultConfig(apiTitle, deps.Version)
	config.Info.Description = "Streams whisper.cpp transcriptions of uploaded audio."
	api := humachi.New(r, config)

	NewHealthHandler(api, deps.Diagnostics)
	NewModelsHandler(api, deps.Models)

	return r
}
