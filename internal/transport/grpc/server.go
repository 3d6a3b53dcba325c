// Package grpc exposes a minimal gRPC surface for container
// orchestration: the standard health-checking protocol and
// reflection. The reserve/confirm/getReservation contract itself is
// served over HTTP (see internal/transport/http); this server carries
// no generated service stubs.
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/amiosamu/checkout-core/internal/config"
	"github.com/amiosamu/checkout-core/internal/platform/observability/logging"
)

const serviceName = "checkout.v1.CheckoutCore"

// Server is the orchestration-facing gRPC listener.
type Server struct {
	config       *config.Config
	logger       logging.Logger
	grpcServer   *grpc.Server
	healthServer *health.Server
}

// NewServer creates a new gRPC server instance.
func NewServer(cfg *config.Config, logger logging.Logger) *Server {
	return &Server{config: cfg, logger: logger}
}

// Start initializes and starts the gRPC server. It returns once the
// listener is bound; serving happens in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info(ctx, "starting gRPC health server", map[string]interface{}{
		"port": s.config.Server.GRPCPort,
	})

	s.grpcServer = grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     15 * time.Second,
			MaxConnectionAge:      30 * time.Second,
			MaxConnectionAgeGrace: 5 * time.Second,
			Time:                  5 * time.Second,
			Timeout:               1 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.UnaryInterceptor(s.unaryInterceptor),
	)

	s.healthServer = health.NewServer()
	s.healthServer.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.healthServer)

	reflection.Register(s.grpcServer)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", s.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	go func() {
		s.logger.Info(ctx, "gRPC server listening", map[string]interface{}{"address": listener.Addr().String()})
		if err := s.grpcServer.Serve(listener); err != nil && err != grpc.ErrServerStopped {
			s.logger.Error(ctx, "gRPC server failed", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the gRPC server, force-stopping if the
// graceful path does not complete within 30 seconds.
func (s *Server) Stop(ctx context.Context) {
	if s.grpcServer == nil {
		return
	}

	s.logger.Info(ctx, "shutting down gRPC server")

	if s.healthServer != nil {
		s.healthServer.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info(ctx, "gRPC server stopped gracefully")
	case <-time.After(30 * time.Second):
		s.logger.Warn(ctx, "force stopping gRPC server due to timeout")
		s.grpcServer.Stop()
	}
}

// unaryInterceptor logs every RPC. The health/reflection surface this
// server exposes carries no business logic worth tracing beyond this.
func (s *Server) unaryInterceptor(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	start := time.Now()

	resp, err := handler(ctx, req)

	duration := time.Since(start)
	fields := map[string]interface{}{"method": info.FullMethod, "duration": duration.String()}
	if err != nil {
		fields["error"] = err.Error()
		s.logger.Error(ctx, "grpc request failed", err, fields)
	} else {
		s.logger.Debug(ctx, "grpc request completed", fields)
	}

	return resp, err
}
