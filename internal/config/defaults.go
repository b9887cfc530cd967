package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Default values used when neither the config file nor the environment set a key.
const (
	DefaultPort            = 3000
	DefaultModel           = "base.en"
	DefaultLanguage        = "en"
	DefaultUploadField     = "mp3"
	DefaultMaxUploadBytes  = 100 << 20
	DefaultShutdownTimeout = 10 * time.Second
	DefaultConvertTimeout  = 2 * time.Minute
	DefaultWhisperTimeout  = 10 * time.Minute
)

// Default returns a Config populated with built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Converter: ConverterConfig{
			Binary:     "ffmpeg",
			Timeout:    DefaultConvertTimeout,
			SampleRate: 16000,
			Channels:   1,
		},
		Whisper: WhisperConfig{
			Dir:             "./whisper.cpp",
			Binary:          "main",
			ModelsDir:       "models",
			ModelPattern:    "ggml-%s.bin",
			DefaultModel:    DefaultModel,
			DefaultLanguage: DefaultLanguage,
			Timeout:         DefaultWhisperTimeout,
		},
		Uploads: UploadsConfig{
			Dir:      "uploads",
			Field:    DefaultUploadField,
			MaxBytes: DefaultMaxUploadBytes,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultConfigPath returns the default path for the voxpipe config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "voxpipe", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "voxpipe")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "voxpipe")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "voxpipe")
		}
		return filepath.Join(home, ".config", "voxpipe")
	}
}
