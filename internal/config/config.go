package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config holds the main configuration for the application.
// It is built once at startup and never mutated afterwards.
type Config struct {
	Log       LogConfig       `json:"log"       yaml:"log"`
	Server    ServerConfig    `json:"server"    yaml:"server"`
	Converter ConverterConfig `json:"converter" yaml:"converter"`
	Whisper   WhisperConfig   `json:"whisper"   yaml:"whisper"`
	Uploads   UploadsConfig   `json:"uploads"   yaml:"uploads"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Port            int           `json:"port"             yaml:"port"`
	GRPCPort        int           `json:"grpc_port"        yaml:"grpc_port"` // 0 disables the gRPC listener
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ConverterConfig holds settings for the external audio converter (ffmpeg).
type ConverterConfig struct {
	Binary     string        `json:"binary"      yaml:"binary"`
	Timeout    time.Duration `json:"timeout"     yaml:"timeout"`
	SampleRate int           `json:"sample_rate" yaml:"sample_rate"`
	Channels   int           `json:"channels"    yaml:"channels"`
}

// WhisperConfig holds settings for the external speech recognizer (whisper.cpp).
type WhisperConfig struct {
	Dir             string        `json:"dir"              yaml:"dir"`
	Binary          string        `json:"binary"           yaml:"binary"`
	ModelsDir       string        `json:"models_dir"       yaml:"models_dir"`    // relative to Dir unless absolute
	ModelPattern    string        `json:"model_pattern"    yaml:"model_pattern"` // e.g. "ggml-%s.bin"
	DefaultModel    string        `json:"default_model"    yaml:"default_model"`
	DefaultLanguage string        `json:"default_language" yaml:"default_language"`
	Timeout         time.Duration `json:"timeout"          yaml:"timeout"`
}

// UploadsConfig holds settings for temporary upload storage.
type UploadsConfig struct {
	Dir      string `json:"dir"       yaml:"dir"`
	Field    string `json:"field"     yaml:"field"`
	MaxBytes int64  `json:"max_bytes" yaml:"max_bytes"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file"  yaml:"file"`
}

// BinaryPath returns the path of the whisper.cpp executable.
func (w WhisperConfig) BinaryPath() string {
	if filepath.IsAbs(w.Binary) {
		return w.Binary
	}

	return filepath.Join(w.Dir, w.Binary)
}

// ModelsPath returns the directory holding the model files.
func (w WhisperConfig) ModelsPath() string {
	if filepath.IsAbs(w.ModelsDir) {
		return w.ModelsDir
	}

	return filepath.Join(w.Dir, w.ModelsDir)
}

// HTTPAddr returns the HTTP listen address.
func (s ServerConfig) HTTPAddr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// GRPCAddr returns the gRPC listen address.
func (s ServerConfig) GRPCAddr() string {
	return fmt.Sprintf(":%d", s.GRPCPort)
}
