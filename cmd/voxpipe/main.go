package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ekisa-team/voxpipe/internal/backend"
	"github.com/ekisa-team/voxpipe/internal/backend/ffmpeg"
	"github.com/ekisa-team/voxpipe/internal/backend/whisper"
	"github.com/ekisa-team/voxpipe/internal/config"
	"github.com/ekisa-team/voxpipe/internal/diagnostics"
	"github.com/ekisa-team/voxpipe/internal/env"
	"github.com/ekisa-team/voxpipe/internal/logger"
	"github.com/ekisa-team/voxpipe/internal/model"
	grpcserver "github.com/ekisa-team/voxpipe/internal/server/grpc"
	httpserver "github.com/ekisa-team/voxpipe/internal/server/http"
	"github.com/ekisa-team/voxpipe/internal/service"
	"github.com/ekisa-team/voxpipe/internal/tempstore"
)

var version = "dev"

func main() {
	var (
		flagConfigPath = flag.String("config", path.Join(config.DefaultConfigPath(), "config.yaml"), "Path to config file")
		flagHTTPPort   = flag.Int("http-port", 0, "HTTP port to listen on (overrides config and PORT)")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	environment := env.FromEnv()

	cfg, err := config.Load(*flagConfigPath, os.LookupEnv)
	if err != nil {
		slog.Error("Failed to load config", "path", *flagConfigPath, "error", err)
		os.Exit(1)
	}
	if *flagHTTPPort != 0 {
		cfg.Server.Port = *flagHTTPPort
	}

	slog.SetDefault(
		logger.New(environment,
			logger.WithLevel(logger.ParseLevel(cfg.Log.Level)),
			logger.WithLogToFile(cfg.Log.File != ""),
			logger.WithLogFile(cfg.Log.File),
		),
	)

	slog.Info("Config loaded successfully", "config", *flagConfigPath, "env", environment, "version", version)

	if err := run(cfg); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog := model.NewCatalog(cfg.Whisper.ModelsPath(), cfg.Whisper.ModelPattern)
	if err := catalog.Refresh(); err != nil {
		slog.Warn("Models directory unavailable", "dir", catalog.Dir(), "error", err)
	}
	if err := catalog.Watch(ctx); err != nil {
		slog.Warn("Model catalog will not refresh automatically", "error", err)
	}

	converter := ffmpeg.NewConverter(
		backend.NewExecutor(cfg.Converter.Binary, cfg.Converter.Timeout),
		cfg.Converter.SampleRate,
		cfg.Converter.Channels,
	)
	transcriber := whisper.NewTranscriber(
		backend.NewExecutor(cfg.Whisper.BinaryPath(), cfg.Whisper.Timeout),
		catalog,
	)
	store := tempstore.New(cfg.Uploads.Dir)

	checker := diagnostics.NewChecker(catalog, store.Dir(), converter, transcriber)
	for _, item := range checker.Run().Items {
		if item.Status == diagnostics.StatusFail {
			slog.Warn("Startup check failed", "check", item.ID, "message", item.Message, "hint", item.Hint)
		}
	}

	stt := service.NewSTT(store, converter, transcriber, service.Options{
		DefaultModel:    cfg.Whisper.DefaultModel,
		DefaultLanguage: cfg.Whisper.DefaultLanguage,
		MaxUploadBytes:  cfg.Uploads.MaxBytes,
	})

	router := httpserver.NewRouter(httpserver.Deps{
		STT:         stt,
		Models:      catalog,
		Diagnostics: checker,
		Version:     version,
		UploadField: cfg.Uploads.Field,
		MaxBodySize: cfg.Uploads.MaxBytes,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpserver.NewServer(cfg.Server.HTTPAddr(), router, cfg.Server.ShutdownTimeout).Run(gctx)
	})

	if cfg.Server.GRPCPort != 0 {
		g.Go(func() error {
			return grpcserver.NewServer(checker).Run(gctx, cfg.Server.GRPCAddr())
		})
	}

	return g.Wait()
}
