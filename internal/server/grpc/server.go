// Package grpc exposes the standard gRPC health service backed by the pipeline diagnostics.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/ekisa-team/voxpipe/internal/diagnostics"
)

// ServiceName is the health service name reported for the transcription pipeline.
const ServiceName = "voxpipe.stt"

const defaultRefreshInterval = 30 * time.Second

// Diagnoser produces a report on the pipeline's external dependencies.
type Diagnoser interface {
	Run() diagnostics.Report
}

// Server serves grpc.health.v1.Health and server reflection.
type Server struct {
	srv         *grpc.Server
	health      *health.Server
	diagnostics Diagnoser
	interval    time.Duration
}

// NewServer creates a new Server.
func NewServer(d Diagnoser) *Server {
	srv := grpc.NewServer()
	hs := health.NewServer()

	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &Server{
		srv:         srv,
		health:      hs,
		diagnostics: d,
		interval:    defaultRefreshInterval,
	}
}

// Refresh runs the diagnostics and publishes the resulting status.
func (s *Server) Refresh() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING

	report := s.diagnostics.Run()
	if report.HasFailures {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)

	return status
}

// Run listens on addr and serves until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc: failed to listen on %s: %w", addr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, refreshing the health status periodically.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.Refresh()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gRPC server listening", "addr", ln.Addr().String())
		errCh <- s.srv.Serve(ln)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("grpc: server failed: %w", err)
			}
			return nil

		case <-ticker.C:
			if status := s.Refresh(); status != healthpb.HealthCheckResponse_SERVING {
				slog.Warn("Health check failing", "service", ServiceName, "status", status.String())
			}

		case <-ctx.Done():
			slog.Info("Shutting down gRPC server")
			s.health.Shutdown()
			s.srv.GracefulStop()
			return nil
		}
	}
}
