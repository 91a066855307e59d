// Package grpcclient exposes the pipeline executor over gRPC (§6's
// "gRPC transport"): a standard grpc_health_v1 health check, and a
// bidirectional-streaming pipeline service built on a raw-bytes codec
// that reuses §4.3's frame wire format as the RPC payload instead of a
// second protobuf schema. Grounded on the teacher's grpc.NewClient +
// insecure-credentials dial pattern
// (pkg/clients/integration/integration_client.go).
package grpcclient

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// RegisterHealth attaches the standard gRPC health service to s, and sets
// the named service (empty string means "the whole server") to SERVING.
// Call SetNotServing during graceful shutdown so in-flight health checks
// reflect the server's real state.
func RegisterHealth(s *grpc.Server, serviceName string) *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(s, hs)
	return hs
}

// SetNotServing marks serviceName as NOT_SERVING, e.g. while draining
// sessions before process exit.
func SetNotServing(hs *health.Server, serviceName string) {
	hs.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// DialInsecure opens a client connection with no transport security,
// matching the teacher's lightConnection dial for in-mesh traffic.
func DialInsecure(target string) (*grpc.ClientConn, error) {
	return grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// CheckHealth reports whether serviceName is SERVING on cc.
func CheckHealth(ctx context.Context, cc *grpc.ClientConn, serviceName string) (bool, error) {
	client := grpc_health_v1.NewHealthClient(cc)
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: serviceName})
	if err != nil {
		return false, err
	}
	return resp.Status == grpc_health_v1.HealthCheckResponse_SERVING, nil
}
