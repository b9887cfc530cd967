package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/ekisa-team/voxpipe/internal/backend"
)

// BackendName identifies the converter in logs and diagnostics.
const BackendName = "ffmpeg"

// ErrOutputMissing is returned when ffmpeg exits cleanly without producing its output file.
var ErrOutputMissing = errors.New("ffmpeg completed but output file is missing")

// Converter turns arbitrary audio into a waveform suitable for whisper.cpp.
type Converter struct {
	executor   *backend.Executor
	stat       func(string) (os.FileInfo, error)
	sampleRate int
	channels   int
}

// NewConverter creates a Converter producing sampleRate Hz audio with the given channel count.
func NewConverter(executor *backend.Executor, sampleRate, channels int) *Converter {
	return &Converter{
		executor:   executor,
		stat:       os.Stat,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Name returns the converter identifier.
func (c *Converter) Name() string {
	return BackendName
}

// Available reports whether the ffmpeg binary can be resolved.
func (c *Converter) Available() (string, error) {
	return c.executor.Available()
}

// Convert runs ffmpeg on input and blocks until it exits.
// It only returns nil once output exists and the process exited with status 0.
func (c *Converter) Convert(ctx context.Context, input, output string) error {
	args := c.buildArgs(input, output)

	start := time.Now()
	if _, _, err := c.executor.Execute(ctx, args, nil); err != nil {
		return fmt.Errorf("ffmpeg: conversion failed: %w", err)
	}

	if _, err := c.stat(output); err != nil {
		return fmt.Errorf("ffmpeg: %w: %w", ErrOutputMissing, err)
	}

	slog.Debug("Audio converted", "input", input, "output", output, "elapsed", time.Since(start))
	return nil
}

// buildArgs builds ffmpeg command-line arguments.
func (c *Converter) buildArgs(input, output string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", input,
		"-ar", strconv.Itoa(c.sampleRate),
		"-ac", strconv.Itoa(c.channels),
		output,
	}
}
