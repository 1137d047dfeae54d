package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCServer wraps the gRPC server (health and reflection) and the HTTP/JSON
// API served through a gRPC-Gateway runtime mux.
type GRPCServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	httpServer *http.Server
	grpcAddr   string
	httpAddr   string
	api        *API
	logger     zerolog.Logger
}

// NewGRPCServer creates the gRPC server and binds api to the HTTP mux.
func NewGRPCServer(grpcAddr, httpAddr string, api *API, logger zerolog.Logger) *GRPCServer {
	grpcServer := grpc.NewServer()

	// Health check
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer: grpcServer,
		health:     healthServer,
		grpcAddr:   grpcAddr,
		httpAddr:   httpAddr,
		api:        api,
		logger:     logger,
	}
}

// SetServing flips the gRPC health status.
func (s *GRPCServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
}

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("gRPC server shutting down")
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// NewGatewayMux builds the HTTP/JSON API mux.
func NewGatewayMux(api *API) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()
	if err := api.Register(mux); err != nil {
		return nil, fmt.Errorf("register api routes: %w", err)
	}
	return mux, nil
}

// StartHTTPGateway serves the HTTP/JSON API (blocking).
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	mux, err := NewGatewayMux(s.api)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
