package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"

	"github.com/ekisa-team/voxpipe/internal/envvar"
	"github.com/ekisa-team/voxpipe/internal/xfs"
)

const schemaURL = "voxpipe.schema.json"

//go:embed schema.json
var schemaJSON string

// LookupFunc resolves environment variables. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load builds the startup configuration.
// Precedence: defaults, then the YAML file at path (skipped when missing), then the environment.
func Load(path string, lookup LookupFunc) (Config, error) {
	cfg := Default()

	if path != "" {
		fileCfg, err := LoadAndValidate(path)
		switch {
		case err == nil:
			cfg = fileCfg
		case errors.Is(err, fs.ErrNotExist):
			// optional file
		default:
			return Config{}, err
		}
	}

	cfg, err := ApplyEnv(cfg, lookup)
	if err != nil {
		return Config{}, err
	}

	cfg = normalize(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadAndValidate loads the YAML file at path over the defaults and validates it against the embedded schema.
func LoadAndValidate(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: failed to read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML document over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("config: invalid YAML: %w", err)
	}
	if raw == nil {
		return cfg, nil
	}

	schema, err := compileSchema()
	if err != nil {
		return Config{}, fmt.Errorf("config: failed to compile schema: %w", err)
	}

	if err := schema.Validate(raw); err != nil {
		return Config{}, fmt.Errorf("config: validation failed: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: failed to unmarshal into Config struct: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays environment variables on cfg and returns the result.
func ApplyEnv(cfg Config, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return cfg, nil
	}

	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(envvar.Port); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid %s %q: %w", envvar.Port, v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := get(envvar.VoxpipeGRPCPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid %s %q: %w", envvar.VoxpipeGRPCPort, v, err)
		}
		cfg.Server.GRPCPort = port
	}
	if v, ok := get(envvar.WhisperDir); ok {
		cfg.Whisper.Dir = v
	}
	if v, ok := get(envvar.VoxpipeFFmpegPath); ok {
		cfg.Converter.Binary = v
	}
	if v, ok := get(envvar.VoxpipeUploadDir); ok {
		cfg.Uploads.Dir = v
	}
	if v, ok := get(envvar.VoxpipeLogLevel); ok {
		cfg.Log.Level = v
	}
	if v, ok := get(envvar.VoxpipeLogFile); ok {
		cfg.Log.File = v
	}

	return cfg, nil
}

// Validate checks constraints that the schema cannot express or that environment overrides may break.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_port out of range: %d", c.Server.GRPCPort))
	}
	if c.Server.GRPCPort != 0 && c.Server.GRPCPort == c.Server.Port {
		errs = append(errs, errors.New("server.grpc_port must differ from server.port"))
	}
	if c.Converter.Timeout <= 0 || c.Whisper.Timeout <= 0 {
		errs = append(errs, errors.New("converter.timeout and whisper.timeout must be positive"))
	}
	if strings.Count(c.Whisper.ModelPattern, "%s") != 1 {
		errs = append(errs, fmt.Errorf("whisper.model_pattern must contain exactly one %%s: %q", c.Whisper.ModelPattern))
	}
	if c.Uploads.MaxBytes <= 0 {
		errs = append(errs, errors.New("uploads.max_bytes must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	return nil
}

// normalize expands user paths.
func normalize(cfg Config) Config {
	cfg.Whisper.Dir = xfs.ExpandTilde(cfg.Whisper.Dir)
	cfg.Whisper.ModelsDir = xfs.ExpandTilde(cfg.Whisper.ModelsDir)
	cfg.Uploads.Dir = xfs.ExpandTilde(cfg.Uploads.Dir)
	cfg.Converter.Binary = xfs.ExpandTilde(cfg.Converter.Binary)
	cfg.Log.File = xfs.ExpandTilde(cfg.Log.File)

	return cfg
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return nil, err
	}

	return compiler.Compile(schemaURL)
}
