package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestUnaryServerInterceptorPassesThrough(t *testing.T) {
	icpt := UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/trustsim.v1.ActionService/Invoke"}

	resp, err := icpt(context.Background(), "req", info, func(_ context.Context, req any) (any, error) {
		return req.(string) + "-ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "req-ok", resp)

	want := status.Error(codes.InvalidArgument, "action is required")
	_, err = icpt(context.Background(), "req", info, func(context.Context, any) (any, error) {
		return nil, want
	})
	assert.True(t, errors.Is(err, want))
}
