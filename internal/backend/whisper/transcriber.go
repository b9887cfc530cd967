package whisper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ekisa-team/voxpipe/internal/backend"
)

// BackendName identifies the transcriber in logs and diagnostics.
const BackendName = "whisper.cpp"

// ModelResolver maps a model identifier to its file path.
type ModelResolver interface {
	Path(id string) string
}

// Request describes a single transcription run.
type Request struct {
	WaveformPath string
	Model        string
	Language     string
}

// Transcriber runs the whisper.cpp command-line program and streams its standard output.
type Transcriber struct {
	executor *backend.Executor
	models   ModelResolver
}

// NewTranscriber creates a new Transcriber.
func NewTranscriber(executor *backend.Executor, models ModelResolver) *Transcriber {
	return &Transcriber{
		executor: executor,
		models:   models,
	}
}

// Name returns the transcriber identifier.
func (t *Transcriber) Name() string {
	return BackendName
}

// Available reports whether the whisper.cpp binary can be resolved.
func (t *Transcriber) Available() (string, error) {
	return t.executor.Available()
}

// Stream starts whisper.cpp and returns its stdout as ordered raw chunks.
// Model and language are passed through unvalidated; an unknown model makes the process fail.
func (t *Transcriber) Stream(ctx context.Context, req Request) (<-chan backend.StreamChunk, error) {
	args := t.buildArgs(req)

	slog.Debug("Starting transcription", "binary", t.executor.BinaryPath(), "args", args)

	ch, err := t.executor.Stream(ctx, args, nil)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	return ch, nil
}

// buildArgs builds whisper.cpp command-line arguments.
func (t *Transcriber) buildArgs(req Request) []string {
	return []string{
		"-f", req.WaveformPath,
		"-l", req.Language,
		"-m", t.models.Path(req.Model),
	}
}
