package grpcapp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"magiclink/internal/lib/logger/sl"
)

// ServiceName is the health service name reported besides the server-wide "".
const ServiceName = "magiclink"

const pingTimeout = 3 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	logger     *slog.Logger
	gRPCServer *grpc.Server
	health     *health.Server
	pinger     Pinger
	port       int
}

// New builds a gRPC server exposing the standard health checking service.
func New(
	logger *slog.Logger,
	pinger Pinger,
	port int,
) *App {
	gRPCServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(gRPCServer, healthServer)

	return &App{
		logger:     logger,
		gRPCServer: gRPCServer,
		health:     healthServer,
		pinger:     pinger,
		port:       port,
	}
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "grpcapp.Run"

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.port))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return a.Serve(listener)
}

// Serve checks storage once, publishes the resulting health status and
// serves gRPC on l.
func (a *App) Serve(l net.Listener) error {
	const op = "grpcapp.Serve"

	log := a.logger.With(
		slog.String("op", op),
		slog.Int("port", a.port),
	)

	a.CheckHealth(context.Background())

	log.Info("gRPC server is running", slog.String("address", l.Addr().String()))

	if err := a.gRPCServer.Serve(l); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// CheckHealth pings storage and updates the served health status.
func (a *App) CheckHealth(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := a.pinger.Ping(ctx); err != nil {
		a.logger.Error("storage is unavailable", sl.Err(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	a.health.SetServingStatus("", status)
	a.health.SetServingStatus(ServiceName, status)

	return status
}

func (a *App) Stop() {
	const op = "grpcapp.Stop"
	log := a.logger.With(slog.String("op", op))
	log.Info("stopping gRPC server", slog.Int("port", a.port))

	a.health.Shutdown()
	a.gRPCServer.GracefulStop()
}
