package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ekisa-team/voxpipe/internal/service"
)

// ExitCodeTrailer carries the transcriber's exit code once the body is complete.
const ExitCodeTrailer = "Voxpipe-Exit-Code"

// multipartOverhead is the slack allowed on top of the file size for boundaries and part headers.
const multipartOverhead = 1 << 20

// SpeechToText runs a transcription for an uploaded file.
type SpeechToText interface {
	Transcribe(ctx context.Context, in service.Input) (*service.Transcription, error)
}

// STTHandler handles HTTP requests for STT.
type STTHandler struct {
	service     SpeechToText
	field       string
	maxBodySize int64
}

// NewSTTHandler creates a new STTHandler and mounts POST /speech-to-text on r.
func NewSTTHandler(r chi.Router, svc SpeechToText, field string, maxFileSize int64) *STTHandler {
	h := &STTHandler{
		service: svc,
		field:   field,
	}
	if maxFileSize > 0 {
		h.maxBodySize = maxFileSize + multipartOverhead
	}

	r.Post("/speech-to-text", h.handleSpeechToText)

	return h
}

// handleSpeechToText stores the upload, converts it and streams the transcriber output.
func (h *STTHandler) handleSpeechToText(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	logger := slog.With("request_id", requestID)
	sw := newStreamWriter(w)

	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if rec == http.ErrAbortHandler {
			panic(rec)
		}

		logger.Error("Panic while handling speech-to-text request", "panic", rec, "stack", string(debug.Stack()))
		if !sw.Committed() {
			http.Error(sw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		panic(http.ErrAbortHandler)
	}()

	if h.maxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	}

	part, err := h.filePart(r)
	if err != nil {
		h.writeError(sw, logger, err)
		return
	}

	in := service.Input{
		Model:     r.URL.Query().Get("model"),
		Language:  r.URL.Query().Get("lang"),
		RequestID: requestID,
	}
	if part != nil {
		in.Body = part
		in.Filename = part.FileName()
	}

	tr, err := h.service.Transcribe(r.Context(), in)
	if err != nil {
		h.writeError(sw, logger, err)
		return
	}
	defer tr.Close()

	sw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	sw.Header().Set("X-Content-Type-Options", "nosniff")
	sw.Header().Set("Trailer", ExitCodeTrailer)

	for {
		chunk, ok := tr.Recv()
		if !ok {
			break
		}
		if len(chunk.Data) == 0 {
			continue
		}

		if _, err := sw.Write(chunk.Data); err != nil {
			logger.Warn("Client went away during transcription", "transcription_id", tr.ID, "error", err)
			return
		}
	}

	if !sw.Committed() {
		sw.WriteHeader(http.StatusOK)
	}
	sw.Header().Set(ExitCodeTrailer, strconv.Itoa(tr.ExitCode()))
}

// filePart returns the upload part named by the configured field, or nil when there is none.
// Parts before it are skipped; the returned part is read directly from the request body.
func (h *STTHandler) filePart(r *http.Request) (*multipart.Part, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		// not a multipart request
		return nil, nil
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, service.ErrUploadTooLarge
			}
			// malformed multipart bodies are treated as carrying no file
			slog.Debug("Failed to read multipart body", "error", err)
			return nil, nil
		}

		if part.FormName() == h.field && part.FileName() != "" {
			return part, nil
		}
	}
}

// writeError maps pipeline errors to a response. It is only valid before streaming started.
func (h *STTHandler) writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrNoFileUploaded):
		logger.Info("Rejected request without file")
		http.Error(w, "No file uploaded", http.StatusBadRequest)

	case errors.Is(err, service.ErrUploadTooLarge):
		logger.Warn("Rejected oversized upload", "error", err)
		http.Error(w, "Uploaded file too large", http.StatusRequestEntityTooLarge)

	case errors.Is(err, service.ErrConversionFailed):
		logger.Error("Audio conversion failed", "error", err)
		http.Error(w, "Error processing the audio file", http.StatusInternalServerError)

	default:
		logger.Error("Speech-to-text request failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
