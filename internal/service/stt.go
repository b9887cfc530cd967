package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/ekisa-team/voxpipe/internal/backend"
	"github.com/ekisa-team/voxpipe/internal/backend/whisper"
	"github.com/ekisa-team/voxpipe/internal/tempstore"
)

// Converter turns an uploaded file into a waveform the transcriber accepts.
type Converter interface {
	Convert(ctx context.Context, input, output string) error
}

// Transcriber streams the recognizer's output for a waveform.
type Transcriber interface {
	Stream(ctx context.Context, req whisper.Request) (<-chan backend.StreamChunk, error)
}

// Options configures the STT service.
type Options struct {
	DefaultModel    string
	DefaultLanguage string
	MaxUploadBytes  int64
}

// Input is one speech-to-text request. A nil Body means no file was uploaded.
type Input struct {
	Body      io.Reader
	Filename  string
	Model     string
	Language  string
	RequestID string
}

// STT runs the upload, convert, transcribe pipeline.
type STT struct {
	store       *tempstore.Store
	converter   Converter
	transcriber Transcriber
	opts        Options
}

// NewSTT creates a new STT service.
func NewSTT(store *tempstore.Store, converter Converter, transcriber Transcriber, opts Options) *STT {
	return &STT{
		store:       store,
		converter:   converter,
		transcriber: transcriber,
		opts:        opts,
	}
}

// Transcribe stores the upload, converts it and starts the transcriber.
//
// The upload is removed before Transcribe returns, whatever the outcome. On success the
// returned Transcription owns the waveform and the running process; the caller must Close it.
func (s *STT) Transcribe(ctx context.Context, in Input) (*Transcription, error) {
	logger := slog.With("request_id", in.RequestID)
	sm := newStateMachine(logger)

	if in.Body == nil {
		sm.Abort()
		return nil, ErrNoFileUploaded
	}

	modelID := cmp.Or(in.Model, s.opts.DefaultModel)
	language := cmp.Or(in.Language, s.opts.DefaultLanguage)

	upload, err := s.store.Allocate()
	if err != nil {
		sm.Abort()
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	defer s.store.Release(upload)

	id := filepath.Base(upload)
	logger = logger.With("transcription_id", id)
	sm.logger = logger

	size, err := s.save(upload, in.Body)
	if err != nil {
		sm.Abort()
		return nil, err
	}

	logger.Info("Upload received", "filename", in.Filename, "bytes", size, "model", modelID, "language", language)

	s.advance(sm, StateConverting)

	waveform := s.store.WaveformPath(upload)
	if err := s.converter.Convert(ctx, upload, waveform); err != nil {
		s.store.Release(waveform)
		sm.Abort()
		return nil, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	// The converter has exited, so the upload is no longer read by anyone.
	s.store.Release(upload)

	s.advance(sm, StateTranscribing)

	streamCtx, cancel := context.WithCancel(ctx)
	chunks, err := s.transcriber.Stream(streamCtx, whisper.Request{
		WaveformPath: waveform,
		Model:        modelID,
		Language:     language,
	})
	if err != nil {
		cancel()
		s.store.Release(waveform)
		sm.Abort()
		return nil, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}

	s.advance(sm, StateStreaming)

	return &Transcription{
		ID:        id,
		Model:     modelID,
		Language:  language,
		chunks:    chunks,
		cancel:    cancel,
		release:   func() { s.store.Release(waveform) },
		state:     sm,
		logger:    logger,
		startedAt: time.Now(),
	}, nil
}

// save writes the upload body, enforcing the configured size limit.
func (s *STT) save(path string, body io.Reader) (int64, error) {
	if s.opts.MaxUploadBytes > 0 {
		body = io.LimitReader(body, s.opts.MaxUploadBytes+1)
	}

	size, err := s.store.Save(path, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return size, fmt.Errorf("%w: %w", ErrUploadTooLarge, err)
		}
		return size, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	if s.opts.MaxUploadBytes > 0 && size > s.opts.MaxUploadBytes {
		return size, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, s.opts.MaxUploadBytes)
	}

	return size, nil
}

func (s *STT) advance(sm *stateMachine, to State) {
	if err := sm.Transition(to); err != nil {
		sm.logger.Error("Unexpected state transition", "error", err)
	}
}

// Transcription is a running transcriber process and the waveform it reads.
type Transcription struct {
	startedAt time.Time
	chunks    <-chan backend.StreamChunk
	cancel    context.CancelFunc
	release   func()
	state     *stateMachine
	logger    *slog.Logger
	final     *backend.StreamChunk
	ID        string
	Model     string
	Language  string
	closeOnce sync.Once
}

// Recv returns the next chunk of transcriber output. ok is false once the stream has ended.
// The last chunk has Done set and carries the exit status.
func (t *Transcription) Recv() (chunk backend.StreamChunk, ok bool) {
	chunk, ok = <-t.chunks
	if ok && chunk.Done {
		t.final = &chunk
	}

	return chunk, ok
}

// State returns the current pipeline state.
func (t *Transcription) State() State {
	return t.state.Current()
}

// ExitCode returns the transcriber's exit code, or -1 when it has not been observed.
func (t *Transcription) ExitCode() int {
	if t.final == nil {
		return -1
	}

	return t.final.ExitCode
}

// Close stops the transcriber if it is still running, waits for it to be reaped and
// removes the waveform. It is safe to call more than once.
func (t *Transcription) Close() {
	t.closeOnce.Do(func() {
		t.cancel()
		for range t.chunks {
		}
		t.release()

		if t.final == nil {
			t.state.Abort()
			t.logger.Warn("Transcription aborted", "elapsed", time.Since(t.startedAt))
			return
		}

		if err := t.state.Transition(StateCompleted); err != nil {
			t.logger.Error("Unexpected state transition", "error", err)
		}

		attrs := []any{"exit_code", t.final.ExitCode, "elapsed", time.Since(t.startedAt)}
		if t.final.Error != nil {
			t.logger.Warn("Transcriber exited with failure", append(attrs, "error", t.final.Error)...)
			return
		}
		t.logger.Info("Transcription completed", attrs...)
	})
}
