// Package grpcserver runs the service's gRPC listener. It exposes the
// standard health service and reflection.
package grpcserver

import (
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type Server struct {
	GRPC    *grpc.Server
	Health  *health.Server
	Addr    string
	Service string
}

// New creates a server whose health status starts as NOT_SERVING for both the
// overall server and service.
func New(addr, service string, opts ...grpc.ServerOption) *Server {
	gs := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	s := &Server{GRPC: gs, Health: hs, Addr: addr, Service: service}
	s.SetServing(false)
	return s
}

func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.Health.SetServingStatus("", st)
	s.Health.SetServingStatus(s.Service, st)
}

func (s *Server) Start(log *zap.Logger) error {
	lis, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	log.Info("grpc server starting", zap.String("addr", s.Addr))
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	return s.GRPC.Serve(lis)
}

// Stop flips health to NOT_SERVING and drains in-flight calls, forcing the
// stop after timeout.
func (s *Server) Stop(timeout time.Duration) {
	s.Health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		s.GRPC.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		s.GRPC.Stop()
	}
}
