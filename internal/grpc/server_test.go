package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func dial(t *testing.T, lis *bufconn.Listener) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServer_HealthLifecycle(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := NewServer()

	served := make(chan error, 1)
	go func() { served <- srv.Serve(lis) }()

	client := healthpb.NewHealthClient(dial(t, lis))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	srv.health.Shutdown()
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	srv.Shutdown(ctx)
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{fmt.Errorf("%w: bad qty", domain.ErrInvalidArgument), codes.InvalidArgument},
		{domain.ErrNotFound, codes.NotFound},
		{domain.ErrForbidden, codes.PermissionDenied},
		{domain.ErrInsufficientStock, codes.FailedPrecondition},
		{domain.ErrConflict, codes.Aborted},
		{domain.ErrUnauthenticated, codes.Unauthenticated},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
		{status.Error(codes.Unavailable, "down"), codes.Unavailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, status.Code(toStatus(tt.err)), tt.err.Error())
	}
}

func TestToStatus_HidesInternalMessage(t *testing.T) {
	st, _ := status.FromError(toStatus(errors.New("pq: connection refused")))
	assert.Equal(t, "internal error", st.Message())
}

func TestErrorInterceptor(t *testing.T) {
	handler := func(context.Context, any) (any, error) {
		return nil, fmt.Errorf("%w: order 7", domain.ErrNotFound)
	}

	_, err := errorInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, handler)

	assert.Equal(t, codes.NotFound, status.Code(err))
}
