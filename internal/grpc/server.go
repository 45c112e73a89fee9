package grpc

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// Server hosts the health and reflection services. Unary handlers return
// domain errors; the interceptor turns them into gRPC statuses.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

func NewServer(opts ...grpc.ServerOption) *Server {
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(errorInterceptor),
	}, opts...)
	srv := grpc.NewServer(opts...)

	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, h)

	// Enable reflection for grpcurl/grpcui
	reflection.Register(srv)

	return &Server{grpc: srv, health: h}
}

// Serve marks the server SERVING and blocks until it stops.
func (s *Server) Serve(lis net.Listener) error {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	slog.Info("grpc server listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Shutdown reports NOT_SERVING to health checkers before draining.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("grpc graceful stop timed out, forcing")
		s.grpc.Stop()
	}
}

func errorInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err == nil {
		return resp, nil
	}
	return nil, toStatus(err)
}

// toStatus maps domain errors onto gRPC codes. Errors that already carry a
// status pass through; internal errors do not leak their message.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := domain.Code(err)
	if code == codes.Internal {
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}
