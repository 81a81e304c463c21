package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"verida.org/internal/obs"
)

// HealthServer exposes readiness over the standard gRPC health protocol.
type HealthServer struct {
	*health.Server
	readiness Readiness
}

func NewHealthServer(r Readiness) *HealthServer {
	if r == nil {
		r = ReadyProbe{}
	}
	return &HealthServer{Server: health.NewServer(), readiness: r}
}

// Register attaches the health service to srv.
func (s *HealthServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.Server)
}

// Refresh evaluates readiness once and publishes the result for both the
// overall server and the named service.
func (s *HealthServer) Refresh(ctx context.Context) bool {
	status := healthpb.HealthCheckResponse_SERVING
	err := s.readiness.Check(ctx)
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		obs.Warn("readiness check failed", map[string]any{"error": err.Error()})
	}
	obs.SetReady(err == nil)
	s.SetServingStatus("", status)
	s.SetServingStatus(serviceName, status)
	return err == nil
}

// Run refreshes on every tick until ctx ends, then reports NOT_SERVING.
func (s *HealthServer) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 10 * time.Second
	}
	s.Refresh(ctx)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Shutdown()
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}
