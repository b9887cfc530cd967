package service

import "errors"

// Error definitions for the service package.
var (
	ErrNoFileUploaded      = errors.New("no file uploaded")
	ErrUploadTooLarge      = errors.New("uploaded file too large")
	ErrUploadFailed        = errors.New("failed to store uploaded file")
	ErrConversionFailed    = errors.New("error processing the audio file")
	ErrTranscriptionFailed = errors.New("failed to start transcription")
	ErrInvalidTransition   = errors.New("invalid state transition")
)
