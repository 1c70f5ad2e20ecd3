package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/example/storefront/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Checker reports whether a backing dependency is reachable.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// HealthServer exposes the standard gRPC health service. Each dependency is
// published as its own service name; the empty name reports overall health.
type HealthServer struct {
	config *config.ServerConfig
	logger *zap.Logger
	checks map[string]Checker

	srv    *grpc.Server
	health *health.Server

	mu   sync.Mutex
	last map[string]bool
}

func NewHealthServer(cfg *config.ServerConfig, logger *zap.Logger, checks map[string]Checker) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	for name := range checks {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_UNKNOWN)
	}

	return &HealthServer{
		config: cfg,
		logger: logger.Named("grpc"),
		checks: checks,
		srv:    srv,
		health: hs,
		last:   make(map[string]bool),
	}
}

func (s *HealthServer) Start() error {
	addr := s.config.Addr()
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health server listening", zap.String("address", lis.Addr().String()))
	return s.srv.Serve(lis)
}

// Probe pings every dependency once and publishes the results.
func (s *HealthServer) Probe(ctx context.Context) bool {
	healthy := true
	for name, check := range s.checks {
		err := check.Ping(ctx)
		ok := err == nil
		healthy = healthy && ok

		status := healthpb.HealthCheckResponse_SERVING
		if !ok {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.health.SetServingStatus(name, status)

		s.mu.Lock()
		prev, seen := s.last[name]
		s.last[name] = ok
		s.mu.Unlock()
		if !seen || prev != ok {
			if ok {
				s.logger.Info("dependency healthy", zap.String("dependency", name))
			} else {
				s.logger.Warn("dependency unhealthy", zap.String("dependency", name), zap.Error(err))
			}
		}
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", overall)
	return healthy
}

// RunProbes probes every interval until ctx ends.
func (s *HealthServer) RunProbes(ctx context.Context, interval time.Duration) {
	s.Probe(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			s.Probe(probeCtx)
			cancel()
		}
	}
}

func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
