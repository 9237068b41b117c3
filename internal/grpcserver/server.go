// Package grpcserver exposes the standard gRPC health service. The
// "mangadex" service reports NOT_SERVING while the upstream circuit breaker
// is open.
package grpcserver

import (
	"net"

	gobreaker "github.com/sony/gobreaker/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"mangarelay/internal/logging"
)

// UpstreamService is the health service name tracking the upstream API.
const UpstreamService = "mangadex"

type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

func NewServer() *Server {
	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(UpstreamService, healthpb.HealthCheckResponse_SERVING)
	return s
}

// SetUpstreamState maps a breaker state onto the upstream health status.
func (s *Server) SetUpstreamState(state gobreaker.State) {
	status := healthpb.HealthCheckResponse_SERVING
	if state == gobreaker.StateOpen {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(UpstreamService, status)
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	l := logging.Component("grpc")
	l.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight RPCs.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
